package lock

import (
	"crypto"
	"fmt"

	"github.com/saylorsolutions/keylock/pkg/agree"
	"github.com/saylorsolutions/keylock/pkg/internal/der"
	"github.com/saylorsolutions/keylock/pkg/keyset"
	"github.com/saylorsolutions/keylock/pkg/verifier"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

const (
	InitVectorLen = verifier.InitVectorLen
	HashLen       = verifier.HashLen
	verifierLen   = InitVectorLen + HashLen
)

// ParsedLock is the structured form of a password lock.
//
//	PasswordLock ::= SEQUENCE {
//	    keySetSpec  KeySetSpec,
//	    iterations  INTEGER,
//	    verifier    OCTET STRING, -- initVector(16) || verifierHash(32)
//	    payload     OCTET STRING }
type ParsedLock struct {
	Spec       Spec
	InitVector [InitVectorLen]byte
	Hash       [HashLen]byte
	Payload    []byte
}

func (p *ParsedLock) addASN1(b *cryptobyte.Builder) {
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		p.Spec.KeySet.AddASN1(b)
		b.AddASN1Uint64(uint64(p.Spec.Iterations))
		b.AddASN1(asn1.OCTET_STRING, func(b *cryptobyte.Builder) {
			b.AddBytes(p.InitVector[:])
			b.AddBytes(p.Hash[:])
		})
		b.AddASN1OctetString(p.Payload)
	})
}

// Marshal encodes the ParsedLock to lock bytes.
func (p *ParsedLock) Marshal() ([]byte, error) {
	b := cryptobyte.NewBuilder(make([]byte, 0, KeySetLockLength(p.Spec, len(p.Payload))))
	p.addASN1(b)
	return b.Bytes()
}

// ParseLock decodes lock bytes without any password processing.
// The result doesn't alias data.
func ParseLock(data []byte) (*ParsedLock, error) {
	in := cryptobyte.String(data)
	parsed, err := readLockASN1(&in)
	if err != nil {
		return nil, err
	}
	if !in.Empty() {
		return nil, fmt.Errorf("%w: %d bytes after lock", ErrMalformedLock, len(in))
	}
	return parsed, nil
}

func readLockASN1(in *cryptobyte.String) (*ParsedLock, error) {
	var (
		seq        cryptobyte.String
		iterations uint64
		vdata      cryptobyte.String
		payload    cryptobyte.String
		parsed     ParsedLock
		err        error
	)
	if !in.ReadASN1(&seq, asn1.SEQUENCE) {
		return nil, fmt.Errorf("%w: expected lock sequence", ErrMalformedLock)
	}
	if parsed.Spec.KeySet, err = keyset.ReadSpecASN1(&seq); err != nil {
		return nil, structuralErr(err)
	}
	if !seq.ReadASN1Integer(&iterations) {
		return nil, fmt.Errorf("%w: expected iteration count", ErrMalformedLock)
	}
	if iterations < uint64(MinIterations) || iterations > uint64(MaxIterations) {
		return nil, fmt.Errorf("%w: iteration count %d out of range", ErrMalformedLock, iterations)
	}
	parsed.Spec.Iterations = uint32(iterations)
	if !seq.ReadASN1(&vdata, asn1.OCTET_STRING) || len(vdata) != verifierLen {
		return nil, fmt.Errorf("%w: expected %d byte verifier", ErrMalformedLock, verifierLen)
	}
	if !seq.ReadASN1(&payload, asn1.OCTET_STRING) {
		return nil, fmt.Errorf("%w: expected payload", ErrMalformedLock)
	}
	if !seq.Empty() {
		return nil, fmt.Errorf("%w: in lock sequence", ErrUnexpectedTrailingData)
	}
	if len(payload) <= parsed.Spec.KeySet.Overhead() {
		return nil, fmt.Errorf("%w: payload too short for %s", ErrMalformedLock, parsed.Spec.KeySet)
	}
	copy(parsed.InitVector[:], vdata[:InitVectorLen])
	copy(parsed.Hash[:], vdata[InitVectorLen:])
	parsed.Payload = append([]byte{}, payload...)
	return &parsed, nil
}

// ParsedKeyPairLock is the structured form of a KeyPairLock.
//
//	KeyPairLock ::= SEQUENCE {
//	    agreement  AgreementMessage,
//	    inner      OCTET STRING } -- PasswordLock bytes
type ParsedKeyPairLock struct {
	Agreement agree.Message
	Lock      *ParsedLock
}

// Marshal encodes the ParsedKeyPairLock to lock bytes.
func (p *ParsedKeyPairLock) Marshal() ([]byte, error) {
	inner, err := p.Lock.Marshal()
	if err != nil {
		return nil, err
	}
	return marshalKeyPairLock(p.Agreement, inner)
}

func marshalKeyPairLock(msg agree.Message, inner []byte) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		msg.AddASN1(b)
		b.AddASN1OctetString(inner)
	})
	return b.Bytes()
}

// ParseKeyPairLock decodes KeyPairLock bytes, including the nested password lock, without any key or password processing.
func ParseKeyPairLock(data []byte) (*ParsedKeyPairLock, error) {
	var (
		in    = cryptobyte.String(data)
		seq   cryptobyte.String
		inner cryptobyte.String
	)
	if !in.ReadASN1(&seq, asn1.SEQUENCE) {
		return nil, fmt.Errorf("%w: expected key pair lock sequence", ErrMalformedLock)
	}
	if !in.Empty() {
		return nil, fmt.Errorf("%w: %d bytes after lock", ErrMalformedLock, len(in))
	}
	msg, err := agree.ReadMessageASN1(&seq)
	if err != nil {
		return nil, structuralErr(err)
	}
	if !seq.ReadASN1(&inner, asn1.OCTET_STRING) {
		return nil, fmt.Errorf("%w: expected inner lock", ErrMalformedLock)
	}
	if !seq.Empty() {
		return nil, fmt.Errorf("%w: in key pair lock sequence", ErrUnexpectedTrailingData)
	}
	parsed, err := ParseLock(inner)
	if err != nil {
		return nil, err
	}
	return &ParsedKeyPairLock{Agreement: msg, Lock: parsed}, nil
}

// KeySetLockLength predicts the exact length of password lock bytes for the given Spec and payload length.
func KeySetLockLength(spec Spec, payloadLen int) int {
	return der.Len(
		spec.KeySet.EncodedLen() +
			der.UintLen(uint64(spec.Iterations)) +
			der.Len(verifierLen) +
			der.Len(payloadLen),
	)
}

// SealedKeySetLength predicts the payload length of a KeySetLock created with spec, that locks a KeySet of shape target.
func SealedKeySetLength(spec Spec, target keyset.Spec) int {
	return spec.KeySet.SealedLen(target)
}

// CreatedKeySetLength predicts the exact length of a KeySetLock created with spec, that locks a KeySet of shape target.
func CreatedKeySetLength(spec Spec, target keyset.Spec) int {
	return KeySetLockLength(spec, SealedKeySetLength(spec, target))
}

// KeyPairLockLength predicts the exact length of KeyPairLock bytes for the given Spec, public key, and inner payload length.
func KeyPairLockLength(spec Spec, pub crypto.PublicKey, payloadLen int) (int, error) {
	family, err := agree.FamilyOf(pub)
	if err != nil {
		return 0, err
	}
	dataLen, err := agree.MessageDataLen(pub)
	if err != nil {
		return 0, err
	}
	return der.Len(agree.EncodedLen(family, dataLen) + der.Len(KeySetLockLength(spec, payloadLen))), nil
}

// CreatedKeyPairLength predicts the exact length of a KeyPairLock created with spec against pub.
func CreatedKeyPairLength(spec Spec, pub crypto.PublicKey) (int, error) {
	return KeyPairLockLength(spec, pub, SealedKeySetLength(spec, spec.KeySet))
}
