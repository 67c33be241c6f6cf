package factory

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/sha3"
)

// NotSupported is an error indicating that the requested primitive isn't available.
type NotSupported string

func (n NotSupported) Error() string {
	return string(n)
}

// MacSpec identifies a keyed MAC construction.
type MacSpec uint8

const (
	MacSHA256 MacSpec = iota + 1
	MacSHA3_256
	MacBLAKE2b256
	MacSHA512_256
)

func (m MacSpec) String() string {
	switch m {
	case MacSHA256:
		return "HMAC-SHA256"
	case MacSHA3_256:
		return "HMAC-SHA3-256"
	case MacBLAKE2b256:
		return "HMAC-BLAKE2b-256"
	case MacSHA512_256:
		return "HMAC-SHA512/256"
	default:
		return fmt.Sprintf("MacSpec(%d)", uint8(m))
	}
}

// DigestSpec identifies an unkeyed digest.
type DigestSpec uint8

const (
	DigestBLAKE2s256 DigestSpec = iota + 1
	DigestSHA3_256
	DigestSHA256
)

func (d DigestSpec) String() string {
	switch d {
	case DigestBLAKE2s256:
		return "BLAKE2s-256"
	case DigestSHA3_256:
		return "SHA3-256"
	case DigestSHA256:
		return "SHA256"
	default:
		return fmt.Sprintf("DigestSpec(%d)", uint8(d))
	}
}

// HashLen is the output length of every MAC and digest in the catalogue.
const HashLen = 32

func digestFunc(spec DigestSpec) (func() hash.Hash, error) {
	switch spec {
	case DigestBLAKE2s256:
		return func() hash.Hash {
			h, _ := blake2s.New256(nil)
			return h
		}, nil
	case DigestSHA3_256:
		return func() hash.Hash { return sha3.New256() }, nil
	case DigestSHA256:
		return sha256.New, nil
	default:
		return nil, NotSupported(fmt.Sprintf("unsupported digest: %s", spec))
	}
}

func macDigestFunc(spec MacSpec) (func() hash.Hash, error) {
	switch spec {
	case MacSHA256:
		return sha256.New, nil
	case MacSHA3_256:
		return func() hash.Hash { return sha3.New256() }, nil
	case MacBLAKE2b256:
		return func() hash.Hash {
			h, _ := blake2b.New256(nil)
			return h
		}, nil
	case MacSHA512_256:
		return sha512.New512_256, nil
	default:
		return nil, NotSupported(fmt.Sprintf("unsupported MAC: %s", spec))
	}
}

// NewMAC creates an HMAC of the given kind keyed with key.
func NewMAC(spec MacSpec, key []byte) (hash.Hash, error) {
	fn, err := macDigestFunc(spec)
	if err != nil {
		return nil, err
	}
	return hmac.New(fn, key), nil
}

// NewDigest creates an unkeyed digest of the given kind.
func NewDigest(spec DigestSpec) (hash.Hash, error) {
	fn, err := digestFunc(spec)
	if err != nil {
		return nil, err
	}
	return fn(), nil
}

// Catalogue provides the MAC and digest primitives on their own, for derivations that don't belong to a configured Factory.
type Catalogue struct{}

func (Catalogue) NewMAC(spec MacSpec, key []byte) (hash.Hash, error) {
	return NewMAC(spec, key)
}

func (Catalogue) NewDigest(spec DigestSpec) (hash.Hash, error) {
	return NewDigest(spec)
}

// NewMAC creates a MAC from this Factory's catalogue.
func (f *Factory) NewMAC(spec MacSpec, key []byte) (hash.Hash, error) {
	return NewMAC(spec, key)
}

// NewDigest creates a digest from this Factory's catalogue.
func (f *Factory) NewDigest(spec DigestSpec) (hash.Hash, error) {
	return NewDigest(spec)
}
