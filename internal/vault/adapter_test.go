package vault

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/payroll-treasury/internal/custody"
	"github.com/example/payroll-treasury/internal/ledger"
)

type fakeTx struct {
	balances map[custody.Address]int64
	shares   map[custody.Address]int64
}

func newFakeTx() *fakeTx {
	return &fakeTx{
		balances: map[custody.Address]int64{},
		shares:   map[custody.Address]int64{},
	}
}

func (t *fakeTx) MoveTokens(from, to custody.Address, amount int64) error {
	if t.balances[from] < amount {
		return ledger.ErrInsufficientBalance
	}
	t.balances[from] -= amount
	t.balances[to] += amount
	return nil
}

func (t *fakeTx) Shares(holder custody.Address) (int64, error) {
	return t.shares[holder], nil
}

func (t *fakeTx) AddShares(holder custody.Address, delta int64) error {
	t.shares[holder] += delta
	return nil
}

type failingOracle struct{}

func (failingOracle) CurrentPrice(ctx context.Context) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("feed down")
}

func TestDepositBuysFlooredShares(t *testing.T) {
	tx := newFakeTx()
	tx.balances["treasury"] = 1000
	a := &Adapter{Oracle: NewStaticOracle(decimal.NewFromInt(3)), Pool: "pool"}

	shares, err := a.Deposit(context.Background(), tx, "treasury", "holding", 100)
	require.NoError(t, err)

	assert.Equal(t, int64(33), shares)
	assert.Equal(t, int64(900), tx.balances["treasury"])
	assert.Equal(t, int64(100), tx.balances["pool"])
	assert.Equal(t, int64(33), tx.shares["holding"])
}

func TestDepositFailsWhenPoolCannotBeFunded(t *testing.T) {
	tx := newFakeTx()
	tx.balances["treasury"] = 50
	a := &Adapter{Oracle: NewStaticOracle(decimal.NewFromInt(1)), Pool: "pool"}

	_, err := a.Deposit(context.Background(), tx, "treasury", "holding", 100)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
}

func TestDepositAtZeroPriceIsUnavailable(t *testing.T) {
	tx := newFakeTx()
	tx.balances["treasury"] = 100
	a := &Adapter{Oracle: NewStaticOracle(decimal.Zero), Pool: "pool"}

	_, err := a.Deposit(context.Background(), tx, "treasury", "holding", 100)
	assert.ErrorIs(t, err, ledger.ErrVaultUnavailable)
}

func TestWithdrawReturnsAuthoritativeAmount(t *testing.T) {
	tx := newFakeTx()
	tx.balances["pool"] = 1000
	tx.shares["holding"] = 50
	a := &Adapter{Oracle: NewStaticOracle(decimal.NewFromFloat(2.5)), Pool: "pool"}

	// 30 shares at 2.5 => 75, no fractional loss here; 33 shares => 82.5
	// floored to 82.
	amount, err := a.Withdraw(context.Background(), tx, "holding", "employee", 33, 0)
	require.NoError(t, err)

	assert.Equal(t, int64(82), amount)
	assert.Equal(t, int64(17), tx.shares["holding"])
	assert.Equal(t, int64(82), tx.balances["employee"])
	assert.Equal(t, int64(918), tx.balances["pool"])
}

func TestWithdrawEnforcesMinOut(t *testing.T) {
	tx := newFakeTx()
	tx.balances["pool"] = 1000
	tx.shares["holding"] = 50
	a := &Adapter{Oracle: NewStaticOracle(decimal.NewFromInt(2)), Pool: "pool"}

	_, err := a.Withdraw(context.Background(), tx, "holding", "employee", 10, 21)
	assert.ErrorIs(t, err, ledger.ErrVaultUnavailable)

	// Position and pool untouched on slippage rejection.
	assert.Equal(t, int64(50), tx.shares["holding"])
	assert.Equal(t, int64(1000), tx.balances["pool"])
}

func TestWithdrawRejectsShortPosition(t *testing.T) {
	tx := newFakeTx()
	tx.shares["holding"] = 5
	a := &Adapter{Oracle: NewStaticOracle(decimal.NewFromInt(2)), Pool: "pool"}

	_, err := a.Withdraw(context.Background(), tx, "holding", "employee", 10, 0)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
}

func TestOracleFailureSurfacesAsVaultUnavailable(t *testing.T) {
	tx := newFakeTx()
	tx.balances["treasury"] = 100
	a := &Adapter{Oracle: failingOracle{}, Pool: "pool"}

	_, err := a.Deposit(context.Background(), tx, "treasury", "holding", 100)
	assert.ErrorIs(t, err, ledger.ErrVaultUnavailable)

	_, err = a.CurrentPrice(context.Background())
	assert.ErrorIs(t, err, ledger.ErrVaultUnavailable)
}
