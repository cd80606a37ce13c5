package treasury

import (
	"context"

	"github.com/example/payroll-treasury/internal/custody"
	"github.com/example/payroll-treasury/internal/ledger"
)

// Store persists treasury state and provides the unit of work every
// operation runs inside. RunAtomic reproduces the execution model the
// service is specified against: effects staged inside fn become visible
// only if fn returns nil; any error discards all of them, so no partial
// transfer ever persists.
type Store interface {
	RunAtomic(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the staged view of treasury state inside one unit of work.
// Records are addressed by stable identity, never by transient pointer,
// and mutations go through Put so invariants stay centrally enforced.
type Tx interface {
	// Allocation records, one per employee.
	Allocation(owner custody.Address) (*ledger.Allocation, error)
	PutAllocation(a *ledger.Allocation) error

	// Organisation records.
	Organisation(id string) (*Organisation, error)
	PutOrganisation(o *Organisation) error

	// Employee payroll contracts.
	Contract(orgID, employeeID string) (*Contract, error)
	PutContract(c *Contract) error

	// Underlying token ledger. MoveTokens is the atomic transfer
	// primitive; Credit mints external deposits into the system.
	Balance(addr custody.Address) (int64, error)
	MoveTokens(from, to custody.Address, amount int64) error
	Credit(addr custody.Address, amount int64) error

	// Vault share positions per holder.
	Shares(holder custody.Address) (int64, error)
	AddShares(holder custody.Address, delta int64) error
}
