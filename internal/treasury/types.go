package treasury

import (
	"errors"
	"time"

	"github.com/example/payroll-treasury/internal/custody"
	"github.com/example/payroll-treasury/internal/ledger"
)

// Custody namespaces. The derived addresses are stable functions of these
// and the owner identity, so every component arrives at the same
// sub-accounts without coordination.
var (
	nsHolding  = []byte("holding-wallet")
	nsTreasury = []byte("org-treasury")
	nsPool     = []byte("vault-pool")
)

// VaultPoolAddress derives the ledger address holding the yield vault's
// underlying tokens. Everything wiring a vault.Adapter must use this, so
// the pool account is the same one the service's vault legs settle
// against.
func VaultPoolAddress(d *custody.Deriver) custody.Address {
	addr, _ := d.Derive(nsPool, "main")
	return addr
}

// ErrStreamInactive means a payroll accrual was requested on a contract
// whose stream has been switched off. The contract is inert, not deleted.
var ErrStreamInactive = errors.New("stream inactive")

// Organisation is the org-level pooled account: an admin set gating raw
// treasury withdrawals plus a delegated streaming authority that lets the
// payroll path move treasury funds without an admin signature.
type Organisation struct {
	ID              string
	Admins          []custody.Address
	TreasuryAddress custody.Address
	StreamAuthority custody.Proof
}

// IsAdmin reports membership in the admin set.
func (o *Organisation) IsAdmin(addr custody.Address) bool {
	for _, a := range o.Admins {
		if a == addr {
			return true
		}
	}
	return false
}

// Contract is a streaming payroll agreement. LastPayment is monotonically
// non-decreasing; accrual covers [LastPayment, now) exactly once.
type Contract struct {
	OrgID        string
	EmployeeID   string
	Payee        custody.Address
	Rate         int64
	Frequency    ledger.Frequency
	LastPayment  time.Time
	StreamActive bool
}

// Clone returns an independent copy.
func (c *Contract) Clone() *Contract {
	cp := *c
	return &cp
}

func cloneOrganisation(o *Organisation) *Organisation {
	cp := *o
	cp.Admins = append([]custody.Address(nil), o.Admins...)
	return &cp
}

func cloneAllocation(a *ledger.Allocation) *ledger.Allocation {
	cp := *a
	return &cp
}
