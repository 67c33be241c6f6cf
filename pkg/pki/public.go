package pki

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"fmt"
	"io"

	"golang.org/x/crypto/ed25519"
)

var _ Keypair = (*publicOnly)(nil)

// publicOnly is a Keypair that only knows its public key.
type publicOnly struct {
	pub crypto.PublicKey
}

// PublicOnly wraps a public key as a Keypair, so it can be used where only the public half is needed.
// Signing with the result always fails with ErrNoPrivateKey.
func PublicOnly(pub crypto.PublicKey) (Keypair, error) {
	switch pub.(type) {
	case *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey:
		return &publicOnly{pub: pub}, nil
	default:
		return nil, NotSupported(fmt.Sprintf("unsupported public key type: %T", pub))
	}
}

func (p *publicOnly) Public() crypto.PublicKey {
	return p.pub
}

func (p *publicOnly) Sign(io.Reader, []byte, crypto.SignerOpts) ([]byte, error) {
	return nil, ErrNoPrivateKey
}
