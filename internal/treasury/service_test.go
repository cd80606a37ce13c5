package treasury

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/payroll-treasury/internal/custody"
	"github.com/example/payroll-treasury/internal/ledger"
	"github.com/example/payroll-treasury/internal/vault"
)

type fixture struct {
	svc     *Service
	store   *MemoryStore
	deriver *custody.Deriver
	oracle  *vault.StaticOracle
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	deriver, err := custody.NewDeriver([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	f := &fixture{
		store:   NewMemoryStore(),
		deriver: deriver,
		oracle:  vault.NewStaticOracle(decimal.NewFromInt(2)),
		now:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	pool := VaultPoolAddress(deriver)
	f.svc = NewService(f.store, &vault.Adapter{Oracle: f.oracle, Pool: pool}, deriver, nil)
	f.svc.Now = func() time.Time { return f.now }
	return f
}

func (f *fixture) seed(t *testing.T, fn func(tx Tx) error) {
	t.Helper()
	require.NoError(t, f.store.RunAtomic(context.Background(), fn))
}

func (f *fixture) balance(t *testing.T, addr custody.Address) int64 {
	t.Helper()
	var out int64
	f.seed(t, func(tx Tx) error {
		var err error
		out, err = tx.Balance(addr)
		return err
	})
	return out
}

func (f *fixture) shares(t *testing.T, holder custody.Address) int64 {
	t.Helper()
	var out int64
	f.seed(t, func(tx Tx) error {
		var err error
		out, err = tx.Shares(holder)
		return err
	})
	return out
}

func TestSetupOrganisation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	org, err := f.svc.SetupOrganisation(ctx, "acme", []custody.Address{"alice", "bob"})
	require.NoError(t, err)
	assert.True(t, org.IsAdmin("alice"))
	assert.False(t, org.IsAdmin("mallory"))
	assert.NotEmpty(t, org.TreasuryAddress)

	_, err = f.svc.SetupOrganisation(ctx, "acme", []custody.Address{"alice"})
	assert.ErrorIs(t, err, ledger.ErrAlreadyExists)

	_, err = f.svc.SetupOrganisation(ctx, "empty", nil)
	assert.Error(t, err)
}

func TestSetupAllocationDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alloc, err := f.svc.SetupAllocation(ctx, "employee-1")
	require.NoError(t, err)

	reserve, vaultPct := alloc.Split()
	assert.Equal(t, uint(60), reserve)
	assert.Equal(t, uint(40), vaultPct)
	assert.NotEmpty(t, alloc.ReserveAddress)

	_, err = f.svc.SetupAllocation(ctx, "employee-1")
	assert.ErrorIs(t, err, ledger.ErrAlreadyExists)
}

func TestPayEmployeeSplitsPerAllocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	org, err := f.svc.SetupOrganisation(ctx, "acme", []custody.Address{"alice"})
	require.NoError(t, err)
	alloc, err := f.svc.SetupAllocation(ctx, "employee-1")
	require.NoError(t, err)
	require.NoError(t, f.svc.DepositToTreasury(ctx, "acme", 1000))

	// Price 2.0: 40% of 250 buys 50 shares, 60% stays liquid.
	require.NoError(t, f.svc.PayEmployee(ctx, "acme", "alice", "employee-1", 250))

	assert.Equal(t, int64(150), f.balance(t, alloc.ReserveAddress))
	assert.Equal(t, int64(50), f.shares(t, "employee-1"))
	assert.Equal(t, int64(750), f.balance(t, org.TreasuryAddress))

	err = f.svc.PayEmployee(ctx, "acme", "mallory", "employee-1", 10)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
	assert.Equal(t, int64(750), f.balance(t, org.TreasuryAddress))
}

func TestWithdrawDrawsBothPools(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alloc, err := f.svc.SetupAllocation(ctx, "employee-1")
	require.NoError(t, err)
	pool := f.svc.vault.Pool
	f.seed(t, func(tx Tx) error {
		if err := tx.Credit(alloc.ReserveAddress, 100); err != nil {
			return err
		}
		if err := tx.Credit(pool, 100); err != nil {
			return err
		}
		return tx.AddShares("employee-1", 50)
	})

	// 60/40 split of 150 at price 2.0: 90 liquid, 60 from 30 shares.
	receipt, err := f.svc.Withdraw(ctx, "employee-1", "payout-dest", 150)
	require.NoError(t, err)

	assert.Equal(t, int64(90), receipt.Plan.FromReserve)
	assert.Equal(t, int64(60), receipt.Plan.FromVault)
	assert.Equal(t, int64(30), receipt.Plan.SharesToRedeem)
	assert.Equal(t, int64(60), receipt.VaultProceeds)
	assert.Equal(t, int64(150), receipt.Paid)

	assert.Equal(t, int64(150), f.balance(t, "payout-dest"))
	assert.Equal(t, int64(10), f.balance(t, alloc.ReserveAddress))
	assert.Equal(t, int64(20), f.shares(t, "employee-1"))
}

func TestWithdrawRejectsOverdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alloc, err := f.svc.SetupAllocation(ctx, "employee-1")
	require.NoError(t, err)
	f.seed(t, func(tx Tx) error {
		return tx.Credit(alloc.ReserveAddress, 100)
	})

	// Economic balance is 100 liquid plus nothing vaulted.
	_, err = f.svc.Withdraw(ctx, "employee-1", "payout-dest", 101)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	assert.Equal(t, int64(100), f.balance(t, alloc.ReserveAddress))
}

func TestWithdrawRollsBackWhenRedemptionSlips(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.SlippageToleranceBps = 0
	f.oracle.SetPrice(decimal.NewFromInt(3))

	alloc, err := f.svc.SetupAllocation(ctx, "employee-1")
	require.NoError(t, err)
	pool := f.svc.vault.Pool
	f.seed(t, func(tx Tx) error {
		if err := tx.Credit(alloc.ReserveAddress, 100); err != nil {
			return err
		}
		if err := tx.Credit(pool, 90); err != nil {
			return err
		}
		return tx.AddShares("employee-1", 30)
	})

	// Vault leg of 40 floors to 13 shares worth 39, below the strict
	// minimum. The reserve leg must not survive the failure.
	_, err = f.svc.Withdraw(ctx, "employee-1", "payout-dest", 100)
	assert.ErrorIs(t, err, ledger.ErrVaultUnavailable)

	assert.Equal(t, int64(100), f.balance(t, alloc.ReserveAddress))
	assert.Equal(t, int64(30), f.shares(t, "employee-1"))
	assert.Equal(t, int64(0), f.balance(t, "payout-dest"))
}

func TestRebalanceDepositDirection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.oracle.SetPrice(decimal.NewFromInt(1))

	alloc, err := f.svc.SetupAllocation(ctx, "employee-1")
	require.NoError(t, err)
	f.seed(t, func(tx Tx) error {
		return tx.Credit(alloc.ReserveAddress, 100)
	})

	err = f.svc.Rebalance(ctx, "employee-1", ledger.RebalanceRequest{
		NewVaultPercent: 80,
		DepositAmount:   50,
	})
	require.NoError(t, err)

	updated, err := f.svc.AllocationOf(ctx, "employee-1")
	require.NoError(t, err)
	reserve, vaultPct := updated.Split()
	assert.Equal(t, uint(20), reserve)
	assert.Equal(t, uint(80), vaultPct)
	assert.Equal(t, int64(50), f.balance(t, alloc.ReserveAddress))
	assert.Equal(t, int64(50), f.shares(t, "employee-1"))
}

func TestRebalanceWithdrawDirection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.oracle.SetPrice(decimal.NewFromInt(1))

	alloc, err := f.svc.SetupAllocation(ctx, "employee-1")
	require.NoError(t, err)
	pool := f.svc.vault.Pool
	f.seed(t, func(tx Tx) error {
		if err := tx.Credit(pool, 60); err != nil {
			return err
		}
		return tx.AddShares("employee-1", 60)
	})

	err = f.svc.Rebalance(ctx, "employee-1", ledger.RebalanceRequest{
		NewVaultPercent: 10,
		WithdrawAmount:  30,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(30), f.balance(t, alloc.ReserveAddress))
	assert.Equal(t, int64(30), f.shares(t, "employee-1"))
}

func TestRebalanceRejectsAmbiguousMove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SetupAllocation(ctx, "employee-1")
	require.NoError(t, err)

	err = f.svc.Rebalance(ctx, "employee-1", ledger.RebalanceRequest{
		NewVaultPercent: 50,
		WithdrawAmount:  10,
		DepositAmount:   10,
	})
	assert.ErrorIs(t, err, ledger.ErrInvalidRebalance)

	err = f.svc.Rebalance(ctx, "employee-1", ledger.RebalanceRequest{NewVaultPercent: 50})
	assert.ErrorIs(t, err, ledger.ErrInvalidRebalance)
}

func TestContractAccrualLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	org, err := f.svc.SetupOrganisation(ctx, "acme", []custody.Address{"alice"})
	require.NoError(t, err)
	require.NoError(t, f.svc.DepositToTreasury(ctx, "acme", 10_000))

	// 3000 per 30-day month accrues 100 per day.
	contract, err := f.svc.SetupContract(ctx, "acme", "alice", "emp-1", "payee-1", 3000, ledger.Monthly)
	require.NoError(t, err)
	assert.True(t, contract.StreamActive)

	f.now = f.now.Add(24 * time.Hour)
	owed, err := f.svc.AccrueAndPay(ctx, "acme", "emp-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), owed)
	assert.Equal(t, int64(100), f.balance(t, "payee-1"))
	assert.Equal(t, int64(9_900), f.balance(t, org.TreasuryAddress))

	// Same instant again: nothing further has accrued.
	owed, err = f.svc.AccrueAndPay(ctx, "acme", "emp-1")
	require.NoError(t, err)
	assert.Zero(t, owed)
	assert.Equal(t, int64(100), f.balance(t, "payee-1"))
}

func TestAccrualZeroKeepsWindowOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SetupOrganisation(ctx, "acme", []custody.Address{"alice"})
	require.NoError(t, err)
	require.NoError(t, f.svc.DepositToTreasury(ctx, "acme", 1000))

	// 2592 per month is one unit per 1000 seconds.
	created := f.now
	_, err = f.svc.SetupContract(ctx, "acme", "alice", "emp-1", "payee-1", 2592, ledger.Monthly)
	require.NoError(t, err)

	f.now = f.now.Add(400 * time.Second)
	owed, err := f.svc.AccrueAndPay(ctx, "acme", "emp-1")
	require.NoError(t, err)
	assert.Zero(t, owed)

	// The unpaid window stays open rather than being discarded.
	contract, err := f.svc.ContractOf(ctx, "acme", "emp-1")
	require.NoError(t, err)
	assert.Equal(t, created, contract.LastPayment)

	f.now = f.now.Add(600 * time.Second)
	owed, err = f.svc.AccrueAndPay(ctx, "acme", "emp-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), owed)
}

func TestInactiveStreamDoesNotPay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SetupOrganisation(ctx, "acme", []custody.Address{"alice"})
	require.NoError(t, err)
	require.NoError(t, f.svc.DepositToTreasury(ctx, "acme", 10_000))
	_, err = f.svc.SetupContract(ctx, "acme", "alice", "emp-1", "payee-1", 3000, ledger.Monthly)
	require.NoError(t, err)

	require.NoError(t, f.svc.SetContractActive(ctx, "acme", "alice", "emp-1", false))

	f.now = f.now.Add(24 * time.Hour)
	_, err = f.svc.AccrueAndPay(ctx, "acme", "emp-1")
	assert.ErrorIs(t, err, ErrStreamInactive)
	assert.Equal(t, int64(0), f.balance(t, "payee-1"))

	// Reactivation restarts accrual from now; the inactive day is unpaid.
	require.NoError(t, f.svc.SetContractActive(ctx, "acme", "alice", "emp-1", true))
	owed, err := f.svc.AccrueAndPay(ctx, "acme", "emp-1")
	require.NoError(t, err)
	assert.Zero(t, owed)

	err = f.svc.SetContractActive(ctx, "acme", "mallory", "emp-1", false)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
}

func TestAdminWithdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	org, err := f.svc.SetupOrganisation(ctx, "acme", []custody.Address{"alice"})
	require.NoError(t, err)
	require.NoError(t, f.svc.DepositToTreasury(ctx, "acme", 500))

	err = f.svc.AdminWithdraw(ctx, "acme", "mallory", "elsewhere", 100)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
	assert.Equal(t, int64(500), f.balance(t, org.TreasuryAddress))

	require.NoError(t, f.svc.AdminWithdraw(ctx, "acme", "alice", "elsewhere", 100))
	assert.Equal(t, int64(400), f.balance(t, org.TreasuryAddress))
	assert.Equal(t, int64(100), f.balance(t, "elsewhere"))
}

func TestHoldingsValuedAtLivePrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alloc, err := f.svc.SetupAllocation(ctx, "employee-1")
	require.NoError(t, err)
	f.seed(t, func(tx Tx) error {
		if err := tx.Credit(alloc.ReserveAddress, 100); err != nil {
			return err
		}
		return tx.AddShares("employee-1", 50)
	})

	h, err := f.svc.HoldingsOf(ctx, "employee-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), h.Reserve)
	assert.Equal(t, int64(50), h.VaultShares)
	assert.Equal(t, int64(100), h.VaultValue)
	assert.Equal(t, int64(200), h.Total)

	// A price move changes the valuation without any stored state changing.
	f.oracle.SetPrice(decimal.RequireFromString("2.5"))
	h, err = f.svc.HoldingsOf(ctx, "employee-1")
	require.NoError(t, err)
	assert.Equal(t, int64(125), h.VaultValue)
	assert.Equal(t, int64(225), h.Total)
}
