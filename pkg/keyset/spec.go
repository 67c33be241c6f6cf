package keyset

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	bin "github.com/saylorsolutions/binmap"
	"github.com/saylorsolutions/keylock/pkg/internal/der"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

const (
	KeyLength128 uint8 = 128 / 8
	KeyLength256 uint8 = 256 / 8
	MaxCiphers   uint8 = 3
)

var (
	ErrInvalidSpec  = errors.New("invalid key set spec")
	ErrMalformed    = errors.New("malformed key set encoding")
	ErrTrailingData = errors.New("unexpected trailing data")
)

// Spec describes the shape of a KeySet: the AES key length in bytes, and how many independently keyed ciphers are layered.
type Spec struct {
	KeyLength uint8
	Ciphers   uint8
}

// DefaultSpec is a KeySet with all three ciphers and 256-bit AES keys.
func DefaultSpec() Spec {
	return Spec{
		KeyLength: KeyLength256,
		Ciphers:   MaxCiphers,
	}
}

func (s Spec) Validate() error {
	if s.KeyLength != KeyLength128 && s.KeyLength != KeyLength256 {
		return fmt.Errorf("%w: key length must be %d or %d bytes, got %d", ErrInvalidSpec, KeyLength128, KeyLength256, s.KeyLength)
	}
	if s.Ciphers < 1 || s.Ciphers > MaxCiphers {
		return fmt.Errorf("%w: cipher count must be between 1 and %d, got %d", ErrInvalidSpec, MaxCiphers, s.Ciphers)
	}
	return nil
}

func (s Spec) String() string {
	return fmt.Sprintf("KeySet(%d-bit, %d ciphers)", int(s.KeyLength)*8, s.Ciphers)
}

func (s *Spec) mapper() bin.Mapper {
	return bin.MapSequence(
		bin.Byte(&s.KeyLength),
		bin.Byte(&s.Ciphers),
	)
}

// Identity returns the compact binary form of the Spec.
// It's used as derivation context, so two different shapes never share key material.
func (s Spec) Identity() []byte {
	var buf bytes.Buffer
	// Writing two bytes to a bytes.Buffer can't fail.
	_ = s.mapper().Write(&buf, binary.BigEndian)
	return buf.Bytes()
}

func (s Spec) cipherSuite() []cipherID {
	return suite[:s.Ciphers]
}

// Overhead is the number of bytes Encrypt adds to a plaintext for a KeySet of this shape.
func (s Spec) Overhead() int {
	total := 0
	for _, id := range s.cipherSuite() {
		total += id.nonceSize() + aeadTagSize
	}
	return total
}

// EncryptedLen returns the exact ciphertext length for a plaintext of the given length.
func (s Spec) EncryptedLen(plainLen int) int {
	return plainLen + s.Overhead()
}

// EncodedLen is the length of the Spec's DER encoding.
func (s Spec) EncodedLen() int {
	return der.Len(der.UintLen(uint64(s.KeyLength)) + der.UintLen(uint64(s.Ciphers)))
}

// MarshalledLen is the exact length of MarshalBinary output for a KeySet of this shape.
func (s Spec) MarshalledLen() int {
	keys := 0
	for _, id := range s.cipherSuite() {
		keys += der.Len(id.keyLen(s))
	}
	return der.Len(s.EncodedLen() + der.Len(keys))
}

// SealedLen is the exact length of a KeySet of shape target once sealed by a KeySet of this shape.
func (s Spec) SealedLen(target Spec) int {
	return s.EncryptedLen(target.MarshalledLen())
}

// AddASN1 appends the DER form of the Spec to b.
//
//	KeySetSpec ::= SEQUENCE { keyLength INTEGER, ciphers INTEGER }
func (s Spec) AddASN1(b *cryptobyte.Builder) {
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1Uint64(uint64(s.KeyLength))
		b.AddASN1Uint64(uint64(s.Ciphers))
	})
}

// ReadSpecASN1 reads a DER encoded Spec from in.
// Extra elements in the sequence produce ErrTrailingData, anything else that's structurally wrong produces ErrMalformed.
func ReadSpecASN1(in *cryptobyte.String) (Spec, error) {
	var (
		seq       cryptobyte.String
		keyLength uint64
		ciphers   uint64
	)
	if !in.ReadASN1(&seq, asn1.SEQUENCE) {
		return Spec{}, fmt.Errorf("%w: expected key set spec sequence", ErrMalformed)
	}
	if !seq.ReadASN1Integer(&keyLength) || !seq.ReadASN1Integer(&ciphers) {
		return Spec{}, fmt.Errorf("%w: invalid key set spec fields", ErrMalformed)
	}
	if !seq.Empty() {
		return Spec{}, fmt.Errorf("%w: in key set spec", ErrTrailingData)
	}
	if keyLength > 0xff || ciphers > 0xff {
		return Spec{}, fmt.Errorf("%w: key set spec field out of range", ErrMalformed)
	}
	spec := Spec{KeyLength: uint8(keyLength), Ciphers: uint8(ciphers)}
	if err := spec.Validate(); err != nil {
		return Spec{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return spec, nil
}
