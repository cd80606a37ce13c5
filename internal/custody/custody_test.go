package custody

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveIsDeterministic(t *testing.T) {
	d, err := NewDeriver([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	a1, p1 := d.Derive([]byte("holding-wallet"), "employee-1")
	a2, p2 := d.Derive([]byte("holding-wallet"), "employee-1")

	assert.Equal(t, a1, a2)
	assert.True(t, d.Verify(p1, a1))
	assert.True(t, d.Verify(p2, a1))
}

func TestDeriveSeparatesNamespaces(t *testing.T) {
	d, err := NewDeriver([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	holding, _ := d.Derive([]byte("holding-wallet"), "employee-1")
	streaming, _ := d.Derive([]byte("streaming-wallet"), "employee-1")
	other, _ := d.Derive([]byte("holding-wallet"), "employee-2")

	assert.NotEqual(t, holding, streaming)
	assert.NotEqual(t, holding, other)
}

func TestVerifyRejectsForeignProof(t *testing.T) {
	d, err := NewDeriver([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	addr, _ := d.Derive([]byte("holding-wallet"), "employee-1")
	_, wrongOwner := d.Derive([]byte("holding-wallet"), "employee-2")
	_, wrongNS := d.Derive([]byte("streaming-wallet"), "employee-1")

	assert.False(t, d.Verify(wrongOwner, addr))
	assert.False(t, d.Verify(wrongNS, addr))

	// A proof minted under a different secret must not verify either.
	other, err := NewDeriver([]byte("ffffffffffffffffffffffffffffffff"))
	require.NoError(t, err)
	_, forged := other.Derive([]byte("holding-wallet"), "employee-1")
	assert.False(t, d.Verify(forged, addr))
}

func TestNewDeriverRejectsShortSecret(t *testing.T) {
	_, err := NewDeriver([]byte("short"))
	assert.Error(t, err)
}
