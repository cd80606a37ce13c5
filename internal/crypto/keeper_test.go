package crypto

import (
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	kekPath := filepath.Join(t.TempDir(), "kek.hex")
	require.NoError(t, GenerateKeyFile(kekPath))

	keeper, err := NewKeeperFromFile(kekPath)
	require.NoError(t, err)

	secret := []byte("a-long-custody-derivation-secret")
	sealed, err := keeper.Seal(secret, "custody-secret")
	require.NoError(t, err)

	opened, err := keeper.Open(sealed, "custody-secret")
	require.NoError(t, err)
	assert.Equal(t, secret, opened)
}

func TestOpenRejectsWrongLabel(t *testing.T) {
	keeper, err := NewKeeper(make([]byte, 32))
	require.NoError(t, err)

	sealed, err := keeper.Seal([]byte("payload"), "custody-secret")
	require.NoError(t, err)

	_, err = keeper.Open(sealed, "oauth-signing-key")
	assert.Error(t, err)
}

func TestOpenRejectsWrongKey(t *testing.T) {
	keeper, err := NewKeeper(make([]byte, 32))
	require.NoError(t, err)
	sealed, err := keeper.Seal([]byte("payload"), "custody-secret")
	require.NoError(t, err)

	other := make([]byte, 32)
	other[0] = 1
	otherKeeper, err := NewKeeper(other)
	require.NoError(t, err)

	_, err = otherKeeper.Open(sealed, "custody-secret")
	assert.Error(t, err)
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	keeper, err := NewKeeper(make([]byte, 32))
	require.NoError(t, err)
	sealed, err := keeper.Seal([]byte("payload"), "custody-secret")
	require.NoError(t, err)

	raw, err := hex.DecodeString(sealed.Ciphertext)
	require.NoError(t, err)
	raw[0] ^= 0xff

	tampered := *sealed
	tampered.Ciphertext = hex.EncodeToString(raw)
	_, err = keeper.Open(&tampered, "custody-secret")
	assert.Error(t, err)
}

func TestSealToFileAndOpenFile(t *testing.T) {
	dir := t.TempDir()
	kekPath := filepath.Join(dir, "kek.hex")
	require.NoError(t, GenerateKeyFile(kekPath))

	keeper, err := NewKeeperFromFile(kekPath)
	require.NoError(t, err)

	sealedPath := filepath.Join(dir, "custody.sealed")
	require.NoError(t, keeper.SealToFile(sealedPath, []byte("stable-secret-value"), "custody-secret"))

	// A second keeper from the same KEK file must be able to open it.
	reopened, err := NewKeeperFromFile(kekPath)
	require.NoError(t, err)
	secret, err := reopened.OpenFile(sealedPath, "custody-secret")
	require.NoError(t, err)
	assert.Equal(t, []byte("stable-secret-value"), secret)
}

func TestNewKeeperRejectsShortKey(t *testing.T) {
	_, err := NewKeeper([]byte("short"))
	assert.Error(t, err)
}
