package custody

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// Address identifies an account on the underlying token ledger. Derived
// addresses are sub-accounts the service can authorize transfers from
// without ever holding a signing key for them.
type Address string

// Proof is a capability value proving entitlement to move funds out of a
// derived address. It is produced only by a Deriver and verified
// structurally by the payment dispatcher; it is never an ambient
// permission.
type Proof struct {
	Namespace []byte
	Owner     Address
	tag       []byte
}

// Deriver derives sub-account addresses and their authorization proofs
// from a service-held secret.
type Deriver struct {
	secret []byte
}

func NewDeriver(secret []byte) (*Deriver, error) {
	if len(secret) < 16 {
		return nil, errors.New("custody: derivation secret too short")
	}
	return &Deriver{secret: secret}, nil
}

// Derive returns the deterministic sub-account address for
// (namespace, owner) together with the proof that authorizes transfers
// from it. The same inputs always yield the same address.
func (d *Deriver) Derive(namespace []byte, owner Address) (Address, Proof) {
	addr := Address(hex.EncodeToString(d.mac("addr", namespace, owner)[:20]))
	return addr, Proof{
		Namespace: append([]byte(nil), namespace...),
		Owner:     owner,
		tag:       d.mac("proof", namespace, owner),
	}
}

// Verify reports whether p authorizes transfers from addr. Both the
// address binding and the proof tag must match the deriver's secret.
func (d *Deriver) Verify(p Proof, from Address) bool {
	derived, _ := d.Derive(p.Namespace, p.Owner)
	if derived != from {
		return false
	}
	return hmac.Equal(p.tag, d.mac("proof", p.Namespace, p.Owner))
}

func (d *Deriver) mac(domain string, namespace []byte, owner Address) []byte {
	h := hmac.New(sha256.New, d.secret)
	h.Write([]byte(domain))
	h.Write([]byte{0})
	h.Write(namespace)
	h.Write([]byte{0})
	h.Write([]byte(owner))
	return h.Sum(nil)
}
