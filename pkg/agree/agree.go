/*
Package agree bootstraps a locking factory.Factory from a key pair.

# How it works:

The locking side only needs the public key.
It runs a handshake that produces a Message and a shared secret, and the shared secret is expanded with HKDF into the security seeds of a new Factory.
The key pair holder replays the handshake with the private key and the Message, recovering the same Factory.

The handshake depends on the key family.
  - ED25519 keys are converted to X25519, and an ephemeral X25519 key agreement is used with HKDF-BLAKE2b-512.
  - ECDSA keys use an ephemeral ECDH agreement on the same curve, with HKDF over SHA-256, SHA-384, or SHA-512 to match the curve size.
  - RSA keys encapsulate a random secret with RSA-OAEP, with HKDF-SHA-256.

The seeds are salted with the personalization of the Factory running the handshake, so both sides must use the same one.
*/
package agree

import (
	"crypto"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"
	"io"

	"filippo.io/edwards25519"
	"github.com/saylorsolutions/keylock/pkg/factory"
	"github.com/saylorsolutions/keylock/pkg/pki"
	"github.com/saylorsolutions/keylock/pkg/secret"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/ed25519"
	"golang.org/x/crypto/hkdf"
)

const kemSecretLen = 32

var (
	ErrUnsupportedKey  = errors.New("unsupported key for agreement")
	ErrFamilyMismatch  = errors.New("key pair doesn't match agreement family")
	ErrHandshakeFailed = errors.New("agreement handshake failed")

	kdfLabel = []byte("keylock-agreement")
	kemLabel = []byte("keylock-kem")
)

// FamilyOf returns the handshake Family for a public key.
func FamilyOf(pub crypto.PublicKey) (Family, error) {
	switch pub := pub.(type) {
	case ed25519.PublicKey:
		return FamilyX25519, nil
	case *ecdsa.PublicKey:
		switch pub.Curve {
		case elliptic.P256():
			return FamilyP256, nil
		case elliptic.P384():
			return FamilyP384, nil
		case elliptic.P521():
			return FamilyP521, nil
		default:
			return 0, fmt.Errorf("%w: ECDSA curve %s", ErrUnsupportedKey, pub.Curve.Params().Name)
		}
	case *rsa.PublicKey:
		return FamilyRSA, nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrUnsupportedKey, pub)
	}
}

// MessageDataLen predicts the length of Message.Data for a handshake with the given public key.
func MessageDataLen(pub crypto.PublicKey) (int, error) {
	family, err := FamilyOf(pub)
	if err != nil {
		return 0, err
	}
	if family == FamilyRSA {
		return pub.(*rsa.PublicKey).Size(), nil
	}
	return family.dataLen(), nil
}

func (f Family) kdfHash() func() hash.Hash {
	switch f {
	case FamilyX25519:
		return func() hash.Hash {
			h, _ := blake2b.New512(nil)
			return h
		}
	case FamilyP384:
		return sha512.New384
	case FamilyP521:
		return sha512.New
	default:
		return sha256.New
	}
}

func (f Family) curve() ecdh.Curve {
	switch f {
	case FamilyP256:
		return ecdh.P256()
	case FamilyP384:
		return ecdh.P384()
	case FamilyP521:
		return ecdh.P521()
	default:
		return nil
	}
}

// Initiate runs the locking side of a handshake against pub, using the randomness and personalization of f.
// It returns the Message to embed in the lock, and the derived locking Factory.
func Initiate(f *factory.Factory, pub crypto.PublicKey) (Message, *factory.Factory, error) {
	family, err := FamilyOf(pub)
	if err != nil {
		return Message{}, nil, err
	}
	var (
		data   []byte
		shared *secret.Buffer
	)
	switch family {
	case FamilyX25519:
		data, shared, err = initiateX25519(f.Random(), pub.(ed25519.PublicKey))
	case FamilyP256, FamilyP384, FamilyP521:
		data, shared, err = initiateECDH(f.Random(), family, pub.(*ecdsa.PublicKey))
	case FamilyRSA:
		data, shared, err = initiateKEM(f.Random(), pub.(*rsa.PublicKey))
	}
	if err != nil {
		return Message{}, nil, err
	}
	defer shared.Destroy()
	msg := Message{Kind: family.Kind(), Family: family, Data: data}
	derived, err := deriveFactory(f, msg, shared.Bytes())
	if err != nil {
		return Message{}, nil, err
	}
	return msg, derived, nil
}

// Accept runs the key pair holder's side of a handshake, recovering the locking Factory that Initiate returned.
// A Keypair without a private key results in pki.ErrNoPrivateKey.
func Accept(f *factory.Factory, kp pki.Keypair, msg Message) (*factory.Factory, error) {
	priv, err := pki.PrivateKeyOf(kp)
	if err != nil {
		return nil, err
	}
	family, err := FamilyOf(kp.Public())
	if err != nil {
		return nil, err
	}
	if family != msg.Family {
		return nil, fmt.Errorf("%w: key is %s, message is %s", ErrFamilyMismatch, family, msg.Family)
	}
	var shared *secret.Buffer
	switch family {
	case FamilyX25519:
		shared, err = acceptX25519(priv.(ed25519.PrivateKey), msg.Data)
	case FamilyP256, FamilyP384, FamilyP521:
		shared, err = acceptECDH(family, priv.(*ecdsa.PrivateKey), msg.Data)
	case FamilyRSA:
		shared, err = acceptKEM(priv.(*rsa.PrivateKey), msg.Data)
	}
	if err != nil {
		return nil, err
	}
	defer shared.Destroy()
	return deriveFactory(f, msg, shared.Bytes())
}

func deriveFactory(f *factory.Factory, msg Message, shared []byte) (*factory.Factory, error) {
	info := make([]byte, 0, len(kdfLabel)+2+len(msg.Data))
	info = append(info, kdfLabel...)
	info = append(info, byte(msg.Kind), byte(msg.Family))
	info = append(info, msg.Data...)

	seeds := secret.New(2 * factory.SeedLen)
	defer seeds.Destroy()
	kdf := hkdf.New(msg.Family.kdfHash(), shared, f.Personalization(), info)
	if _, err := io.ReadFull(kdf, seeds.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to expand agreement secret: %w", err)
	}
	return factory.FromSeeds(seeds.Bytes()[:factory.SeedLen], seeds.Bytes()[factory.SeedLen:])
}

func initiateX25519(rng io.Reader, pub ed25519.PublicKey) ([]byte, *secret.Buffer, error) {
	point, err := new(edwards25519.Point).SetBytes(pub)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: invalid ED25519 public key: %w", ErrUnsupportedKey, err)
	}
	scalar := secret.New(curve25519.ScalarSize)
	defer scalar.Destroy()
	if _, err := io.ReadFull(rng, scalar.Bytes()); err != nil {
		return nil, nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}
	ephemeral, err := curve25519.X25519(scalar.Bytes(), curve25519.Basepoint)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}
	shared, err := curve25519.X25519(scalar.Bytes(), point.BytesMontgomery())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	return ephemeral, ownShared(shared), nil
}

func acceptX25519(priv ed25519.PrivateKey, ephemeral []byte) (*secret.Buffer, error) {
	digest := sha512.Sum512(priv.Seed())
	defer secret.Wipe(digest[:])
	digest[0] &= 248
	digest[31] &= 127
	digest[31] |= 64
	shared, err := curve25519.X25519(digest[:curve25519.ScalarSize], ephemeral)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	return ownShared(shared), nil
}

func initiateECDH(rng io.Reader, family Family, pub *ecdsa.PublicKey) ([]byte, *secret.Buffer, error) {
	remote, err := pub.ECDH()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrUnsupportedKey, err)
	}
	ephemeral, err := family.curve().GenerateKey(rng)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}
	shared, err := ephemeral.ECDH(remote)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	return ephemeral.PublicKey().Bytes(), ownShared(shared), nil
}

func acceptECDH(family Family, priv *ecdsa.PrivateKey, ephemeral []byte) (*secret.Buffer, error) {
	local, err := priv.ECDH()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedKey, err)
	}
	remote, err := family.curve().NewPublicKey(ephemeral)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	shared, err := local.ECDH(remote)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	return ownShared(shared), nil
}

func initiateKEM(rng io.Reader, pub *rsa.PublicKey) ([]byte, *secret.Buffer, error) {
	shared := secret.New(kemSecretLen)
	if _, err := io.ReadFull(rng, shared.Bytes()); err != nil {
		shared.Destroy()
		return nil, nil, fmt.Errorf("failed to generate KEM secret: %w", err)
	}
	encapsulated, err := rsa.EncryptOAEP(sha256.New(), rng, pub, shared.Bytes(), kemLabel)
	if err != nil {
		shared.Destroy()
		return nil, nil, fmt.Errorf("failed to encapsulate KEM secret: %w", err)
	}
	return encapsulated, shared, nil
}

func acceptKEM(priv *rsa.PrivateKey, encapsulated []byte) (*secret.Buffer, error) {
	if len(encapsulated) != priv.Size() {
		return nil, fmt.Errorf("%w: encapsulated secret is %d bytes, key expects %d", ErrHandshakeFailed, len(encapsulated), priv.Size())
	}
	shared, err := rsa.DecryptOAEP(sha256.New(), nil, priv, encapsulated, kemLabel)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	return ownShared(shared), nil
}

// ownShared moves a shared secret into a Buffer, wiping the original.
func ownShared(shared []byte) *secret.Buffer {
	buf := secret.From(shared)
	secret.Wipe(shared)
	return buf
}
