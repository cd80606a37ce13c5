package ledger

import (
	"fmt"

	"github.com/example/payroll-treasury/internal/custody"
)

// Default split applied at employee onboarding.
const (
	DefaultReservePercent = 60
	DefaultVaultPercent   = 40
)

// Allocation is the per-employee record of how holdings split between the
// liquid reserve and the yield vault. The two percentages always sum to
// 100; the only mutation path is Rebalance, which keeps the invariant
// centrally enforced.
type Allocation struct {
	Owner          custody.Address
	ReservePercent uint
	VaultPercent   uint

	// ReserveAddress is the derived holding sub-account carrying the liquid
	// portion; Proof authorizes transfers out of it.
	ReserveAddress custody.Address
	Proof          custody.Proof
}

// NewAllocation creates the onboarding record with the default 60/40 split.
func NewAllocation(owner, reserveAddr custody.Address, proof custody.Proof) *Allocation {
	return &Allocation{
		Owner:          owner,
		ReservePercent: DefaultReservePercent,
		VaultPercent:   DefaultVaultPercent,
		ReserveAddress: reserveAddr,
		Proof:          proof,
	}
}

// Split returns the current (reserve, vault) percentages.
func (a *Allocation) Split() (reserve, vault uint) {
	return a.ReservePercent, a.VaultPercent
}

// CheckInvariant verifies the sum-to-100 invariant. Stores call it on load
// so a corrupted record is rejected before any money moves against it.
func (a *Allocation) CheckInvariant() error {
	if a.ReservePercent+a.VaultPercent != 100 {
		return fmt.Errorf("allocation %s: split %d/%d does not sum to 100",
			a.Owner, a.ReservePercent, a.VaultPercent)
	}
	return nil
}
