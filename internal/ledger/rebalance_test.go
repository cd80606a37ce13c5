package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebalanceUpdatesBothPercents(t *testing.T) {
	a := NewAllocation("employee-1", "reserve-addr", custodyProofStub())

	require.NoError(t, a.Rebalance(RebalanceRequest{NewVaultPercent: 70, DepositAmount: 500}))
	assert.Equal(t, uint(30), a.ReservePercent)
	assert.Equal(t, uint(70), a.VaultPercent)
	assert.NoError(t, a.CheckInvariant())

	require.NoError(t, a.Rebalance(RebalanceRequest{NewVaultPercent: 0, WithdrawAmount: 500}))
	assert.Equal(t, uint(100), a.ReservePercent)
	assert.NoError(t, a.CheckInvariant())
}

func TestRebalanceRequiresExactlyOneMove(t *testing.T) {
	a := NewAllocation("employee-1", "reserve-addr", custodyProofStub())

	err := a.Rebalance(RebalanceRequest{NewVaultPercent: 50})
	assert.ErrorIs(t, err, ErrInvalidRebalance)

	err = a.Rebalance(RebalanceRequest{NewVaultPercent: 50, WithdrawAmount: 10, DepositAmount: 10})
	assert.ErrorIs(t, err, ErrInvalidRebalance)

	// A failed request must leave the split untouched.
	assert.Equal(t, uint(DefaultReservePercent), a.ReservePercent)
	assert.Equal(t, uint(DefaultVaultPercent), a.VaultPercent)
}

func TestRebalanceRejectsBadPercents(t *testing.T) {
	a := NewAllocation("employee-1", "reserve-addr", custodyProofStub())

	err := a.Rebalance(RebalanceRequest{NewVaultPercent: 101, DepositAmount: 10})
	assert.ErrorIs(t, err, ErrInvalidRebalance)

	err = a.Rebalance(RebalanceRequest{NewVaultPercent: 50, DepositAmount: -10})
	assert.ErrorIs(t, err, ErrInvalidRebalance)
}

func TestNewAllocationDefaults(t *testing.T) {
	a := NewAllocation("employee-1", "reserve-addr", custodyProofStub())
	reserve, vault := a.Split()
	assert.Equal(t, uint(60), reserve)
	assert.Equal(t, uint(40), vault)
	assert.NoError(t, a.CheckInvariant())
}
