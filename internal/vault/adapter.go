package vault

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/example/payroll-treasury/internal/custody"
	"github.com/example/payroll-treasury/internal/ledger"
)

// Tx is the slice of the transactional store the adapter needs: token
// moves plus per-holder share positions. Every mutation is staged by the
// enclosing unit of work, so a failed vault call discards the whole
// operation's effects.
type Tx interface {
	MoveTokens(from, to custody.Address, amount int64) error
	Shares(holder custody.Address) (int64, error)
	AddShares(holder custody.Address, delta int64) error
}

// Adapter is the priced deposit/withdraw interface to the external yield
// vault. Pool is the ledger address holding the vault's underlying tokens.
// No local copy of position value is kept anywhere; value is always
// recomputed from the live price.
type Adapter struct {
	Oracle PriceOracle
	Pool   custody.Address
}

// CurrentPrice fetches the live share price. Oracle failures surface as
// the vault being unavailable.
func (a *Adapter) CurrentPrice(ctx context.Context) (decimal.Decimal, error) {
	price, err := a.Oracle.CurrentPrice(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price oracle: %v: %w", err, ledger.ErrVaultUnavailable)
	}
	if price.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative price %s: %w", price, ledger.ErrVaultUnavailable)
	}
	return price, nil
}

// Deposit moves amount of the underlying token from `from` into the vault
// pool and credits the shares bought at the live price to holder. Returns
// the shares received.
func (a *Adapter) Deposit(ctx context.Context, tx Tx, from, holder custody.Address, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("deposit amount %d must be positive", amount)
	}

	price, err := a.CurrentPrice(ctx)
	if err != nil {
		return 0, err
	}
	if !price.IsPositive() {
		return 0, fmt.Errorf("cannot buy shares at price %s: %w", price, ledger.ErrVaultUnavailable)
	}

	shares := decimal.NewFromInt(amount).Div(price).Floor().IntPart()

	if err := tx.MoveTokens(from, a.Pool, amount); err != nil {
		return 0, fmt.Errorf("fund vault pool: %w", err)
	}
	if err := tx.AddShares(holder, shares); err != nil {
		return 0, fmt.Errorf("credit shares: %w", err)
	}
	return shares, nil
}

// Withdraw redeems shares from holder's position at the live price and
// moves the proceeds from the pool to `to`. The returned amount is
// authoritative: the vault's own flooring decides it, not any caller
// pre-computation. minOut is the slippage floor; zero reproduces the
// permissive legacy behaviour.
func (a *Adapter) Withdraw(ctx context.Context, tx Tx, holder, to custody.Address, shares, minOut int64) (int64, error) {
	if shares <= 0 {
		return 0, fmt.Errorf("share count %d must be positive", shares)
	}

	held, err := tx.Shares(holder)
	if err != nil {
		return 0, err
	}
	if held < shares {
		return 0, fmt.Errorf("redeem %d shares with %d held: %w", shares, held, ledger.ErrInsufficientBalance)
	}

	price, err := a.CurrentPrice(ctx)
	if err != nil {
		return 0, err
	}

	amount := price.Mul(decimal.NewFromInt(shares)).Floor().IntPart()
	if amount < minOut {
		return 0, fmt.Errorf("redemption yields %d below minimum %d: %w", amount, minOut, ledger.ErrVaultUnavailable)
	}

	if err := tx.AddShares(holder, -shares); err != nil {
		return 0, fmt.Errorf("debit shares: %w", err)
	}
	if amount > 0 {
		if err := tx.MoveTokens(a.Pool, to, amount); err != nil {
			return 0, fmt.Errorf("pay out redemption: %w", err)
		}
	}
	return amount, nil
}
