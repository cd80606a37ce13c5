package ledger

import "fmt"

// RebalanceRequest is an operator-triggered change of the target split,
// paired with exactly one pre-computed fund move between the pools. The
// engine enforces percentage bookkeeping and atomicity only; it does not
// derive the move amount from the percentage change, so sizing remains an
// operator decision.
type RebalanceRequest struct {
	NewVaultPercent uint
	WithdrawAmount  int64 // vault -> reserve, in underlying units
	DepositAmount   int64 // reserve -> vault, in underlying units
}

// Validate rejects malformed requests before any state changes.
func (r RebalanceRequest) Validate() error {
	if r.NewVaultPercent > 100 {
		return fmt.Errorf("vault percent %d exceeds 100: %w", r.NewVaultPercent, ErrInvalidRebalance)
	}
	if r.WithdrawAmount < 0 || r.DepositAmount < 0 {
		return fmt.Errorf("rebalance amounts must not be negative: %w", ErrInvalidRebalance)
	}
	if (r.WithdrawAmount == 0) == (r.DepositAmount == 0) {
		return fmt.Errorf("exactly one of withdraw/deposit must be set: %w", ErrInvalidRebalance)
	}
	return nil
}

// Rebalance records the new target split on the allocation. Both
// percentages change in one step so the sum-to-100 invariant is never
// observable as violated. The caller performs the corresponding vault move
// *after* this update: later withdrawal computations must already reflect
// the new target.
func (a *Allocation) Rebalance(req RebalanceRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	a.VaultPercent = req.NewVaultPercent
	a.ReservePercent = 100 - req.NewVaultPercent
	return nil
}
