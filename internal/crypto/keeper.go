// Package crypto seals secrets at rest using AES-256-GCM envelope
// encryption. Each sealed blob carries its own random data key wrapped
// by a key-encryption key held in a file, so rotating the KEK only
// requires rewrapping, never re-deriving what the secret protects.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const kekSize = 32

// Keeper wraps and unwraps sealed secrets with a key-encryption key.
type Keeper struct {
	kek []byte
}

// NewKeeper builds a Keeper from a raw 32-byte key-encryption key.
func NewKeeper(kek []byte) (*Keeper, error) {
	if len(kek) != kekSize {
		return nil, fmt.Errorf("key-encryption key must be %d bytes, got %d", kekSize, len(kek))
	}
	return &Keeper{kek: append([]byte(nil), kek...)}, nil
}

// NewKeeperFromFile reads a hex-encoded key-encryption key from disk.
func NewKeeperFromFile(path string) (*Keeper, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key-encryption key: %w", err)
	}
	kek, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decode key-encryption key: %w", err)
	}
	return NewKeeper(kek)
}

// GenerateKeyFile creates a fresh key-encryption key and writes it
// hex-encoded to path with owner-only permissions.
func GenerateKeyFile(path string) error {
	kek := make([]byte, kekSize)
	if _, err := io.ReadFull(rand.Reader, kek); err != nil {
		return fmt.Errorf("generate key-encryption key: %w", err)
	}
	return os.WriteFile(path, []byte(hex.EncodeToString(kek)+"\n"), 0600)
}

// SealedSecret is the on-disk envelope. The label is authenticated but
// not encrypted, so a blob sealed for one purpose cannot be opened as
// another.
type SealedSecret struct {
	Label      string `json:"label"`
	WrappedKey string `json:"wrapped_key"`
	KeyNonce   string `json:"key_nonce"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// Seal encrypts plaintext under a fresh data key and wraps that key
// with the keeper's KEK.
func (k *Keeper) Seal(plaintext []byte, label string) (*SealedSecret, error) {
	dataKey := make([]byte, kekSize)
	if _, err := io.ReadFull(rand.Reader, dataKey); err != nil {
		return nil, fmt.Errorf("generate data key: %w", err)
	}

	wrappedKey, keyNonce, err := gcmSeal(k.kek, dataKey, []byte(label))
	if err != nil {
		return nil, fmt.Errorf("wrap data key: %w", err)
	}
	ciphertext, nonce, err := gcmSeal(dataKey, plaintext, []byte(label))
	if err != nil {
		return nil, fmt.Errorf("seal secret: %w", err)
	}

	return &SealedSecret{
		Label:      label,
		WrappedKey: hex.EncodeToString(wrappedKey),
		KeyNonce:   hex.EncodeToString(keyNonce),
		Nonce:      hex.EncodeToString(nonce),
		Ciphertext: hex.EncodeToString(ciphertext),
	}, nil
}

// Open unwraps the data key and decrypts the secret. The blob's label
// must match the expected one.
func (k *Keeper) Open(sealed *SealedSecret, label string) ([]byte, error) {
	if sealed.Label != label {
		return nil, fmt.Errorf("sealed secret labelled %q, expected %q", sealed.Label, label)
	}

	wrappedKey, keyNonce, nonce, ciphertext, err := sealed.decodeFields()
	if err != nil {
		return nil, err
	}

	dataKey, err := gcmOpen(k.kek, wrappedKey, keyNonce, []byte(label))
	if err != nil {
		return nil, fmt.Errorf("unwrap data key: %w", err)
	}
	plaintext, err := gcmOpen(dataKey, ciphertext, nonce, []byte(label))
	if err != nil {
		return nil, fmt.Errorf("open secret: %w", err)
	}
	return plaintext, nil
}

// SealToFile writes the envelope as JSON.
func (k *Keeper) SealToFile(path string, plaintext []byte, label string) error {
	sealed, err := k.Seal(plaintext, label)
	if err != nil {
		return err
	}
	blob, err := json.MarshalIndent(sealed, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(blob, '\n'), 0600)
}

// OpenFile reads a JSON envelope and opens it.
func (k *Keeper) OpenFile(path, label string) ([]byte, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sealed secret: %w", err)
	}
	var sealed SealedSecret
	if err := json.Unmarshal(blob, &sealed); err != nil {
		return nil, fmt.Errorf("decode sealed secret: %w", err)
	}
	return k.Open(&sealed, label)
}

func (s *SealedSecret) decodeFields() (wrappedKey, keyNonce, nonce, ciphertext []byte, err error) {
	for _, field := range []struct {
		name string
		src  string
		dst  *[]byte
	}{
		{"wrapped_key", s.WrappedKey, &wrappedKey},
		{"key_nonce", s.KeyNonce, &keyNonce},
		{"nonce", s.Nonce, &nonce},
		{"ciphertext", s.Ciphertext, &ciphertext},
	} {
		*field.dst, err = hex.DecodeString(field.src)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("decode %s: %w", field.name, err)
		}
	}
	return wrappedKey, keyNonce, nonce, ciphertext, nil
}

func gcmSeal(key, plaintext, additionalData []byte) (ciphertext, nonce []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, err
	}
	return gcm.Seal(nil, nonce, plaintext, additionalData), nonce, nil
}

func gcmOpen(key, ciphertext, nonce, additionalData []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, errors.New("invalid nonce length")
	}
	return gcm.Open(nil, nonce, ciphertext, additionalData)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
