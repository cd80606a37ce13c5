package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// WithdrawalPlan is the pool-wise breakdown of a single withdrawal.
// FromReserve + FromVault always equals the requested amount exactly; the
// vault side absorbs the division remainder so rounding never shrinks the
// payout.
type WithdrawalPlan struct {
	FromReserve    int64
	FromVault      int64
	SharesToRedeem int64
}

// PlanWithdrawal computes how much of requested must come out of each pool
// at the supplied live share price. The split is proportional to the
// *target* allocation rather than the pools' actual balances, so every
// withdrawal drifts the holdings toward the configured split instead of
// away from it. Share conversion floors, under-withdrawing from the vault
// rather than overdrawing it.
func (a *Allocation) PlanWithdrawal(requested, reserveBalance, vaultShares int64, price decimal.Decimal) (WithdrawalPlan, error) {
	if requested <= 0 {
		return WithdrawalPlan{}, fmt.Errorf("requested amount %d must be positive", requested)
	}
	if price.IsNegative() {
		return WithdrawalPlan{}, fmt.Errorf("share price %s must not be negative", price)
	}

	vaultValue := price.Mul(decimal.NewFromInt(vaultShares)).Floor().IntPart()
	if requested > reserveBalance+vaultValue {
		return WithdrawalPlan{}, fmt.Errorf("requested %d exceeds economic balance %d: %w",
			requested, reserveBalance+vaultValue, ErrInsufficientBalance)
	}

	fromReserve := decimal.NewFromInt(requested).
		Mul(decimal.NewFromInt(int64(a.ReservePercent))).
		Div(decimal.NewFromInt(100)).
		Floor().
		IntPart()
	fromVault := requested - fromReserve

	var shares int64
	if fromVault > 0 {
		// A zero price with a pending vault leg cannot be converted to
		// shares; the vault is effectively unable to serve the redemption.
		if !price.IsPositive() {
			return WithdrawalPlan{}, fmt.Errorf("cannot redeem %d at price %s: %w",
				fromVault, price, ErrVaultUnavailable)
		}
		shares = decimal.NewFromInt(fromVault).Div(price).Floor().IntPart()
	}

	return WithdrawalPlan{
		FromReserve:    fromReserve,
		FromVault:      fromVault,
		SharesToRedeem: shares,
	}, nil
}
