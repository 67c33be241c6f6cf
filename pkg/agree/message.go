package agree

import (
	"errors"
	"fmt"

	"github.com/saylorsolutions/keylock/pkg/internal/der"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

var (
	ErrMalformed    = errors.New("malformed agreement message")
	ErrTrailingData = errors.New("unexpected trailing data")
)

// Kind is the style of handshake.
type Kind uint8

const (
	// Anonymous is an ephemeral-static Diffie-Hellman agreement.
	Anonymous Kind = iota + 1
	// KEM encapsulates a random secret to the public key.
	KEM
)

func (k Kind) String() string {
	switch k {
	case Anonymous:
		return "anonymous"
	case KEM:
		return "KEM"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Family is the key pair family that a handshake runs over.
type Family uint8

const (
	FamilyX25519 Family = iota + 1
	FamilyP256
	FamilyP384
	FamilyP521
	FamilyRSA
)

func (f Family) String() string {
	switch f {
	case FamilyX25519:
		return "X25519"
	case FamilyP256:
		return "P-256"
	case FamilyP384:
		return "P-384"
	case FamilyP521:
		return "P-521"
	case FamilyRSA:
		return "RSA"
	default:
		return fmt.Sprintf("Family(%d)", uint8(f))
	}
}

// Kind returns the handshake style used with this Family.
func (f Family) Kind() Kind {
	if f == FamilyRSA {
		return KEM
	}
	return Anonymous
}

// dataLen is the fixed message data length for the Family, or 0 when it depends on the key size.
func (f Family) dataLen() int {
	switch f {
	case FamilyX25519:
		return 32
	case FamilyP256:
		return 1 + 2*32
	case FamilyP384:
		return 1 + 2*48
	case FamilyP521:
		return 1 + 2*66
	default:
		return 0
	}
}

func (f Family) valid() bool {
	return f >= FamilyX25519 && f <= FamilyRSA
}

// Message is the public half of a handshake, sent from the locking side to the key pair holder.
// For an anonymous handshake Data is an ephemeral public key, for a KEM it's the encapsulated secret.
//
//	AgreementMessage ::= SEQUENCE { kind INTEGER, family INTEGER, data OCTET STRING }
type Message struct {
	Kind   Kind
	Family Family
	Data   []byte
}

// AddASN1 appends the DER form of the Message to b.
func (m Message) AddASN1(b *cryptobyte.Builder) {
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1Uint64(uint64(m.Kind))
		b.AddASN1Uint64(uint64(m.Family))
		b.AddASN1OctetString(m.Data)
	})
}

// EncodedLen is the exact length of the Message's DER form.
func (m Message) EncodedLen() int {
	return EncodedLen(m.Family, len(m.Data))
}

// EncodedLen predicts the DER length of a Message for the given family and data length.
func EncodedLen(family Family, dataLen int) int {
	return der.Len(der.UintLen(uint64(family.Kind())) + der.UintLen(uint64(family)) + der.Len(dataLen))
}

// ReadMessageASN1 reads a DER encoded Message from in.
// The data is copied, so in may be reused afterward.
func ReadMessageASN1(in *cryptobyte.String) (Message, error) {
	var (
		seq    cryptobyte.String
		kind   uint64
		family uint64
		data   cryptobyte.String
	)
	if !in.ReadASN1(&seq, asn1.SEQUENCE) {
		return Message{}, fmt.Errorf("%w: expected agreement sequence", ErrMalformed)
	}
	if !seq.ReadASN1Integer(&kind) || !seq.ReadASN1Integer(&family) || !seq.ReadASN1(&data, asn1.OCTET_STRING) {
		return Message{}, fmt.Errorf("%w: invalid agreement fields", ErrMalformed)
	}
	if !seq.Empty() {
		return Message{}, fmt.Errorf("%w: in agreement message", ErrTrailingData)
	}
	if family > 0xff || !Family(family).valid() {
		return Message{}, fmt.Errorf("%w: unknown family %d", ErrMalformed, family)
	}
	msg := Message{
		Kind:   Kind(kind),
		Family: Family(family),
		Data:   append([]byte{}, data...),
	}
	if kind > 0xff || msg.Kind != msg.Family.Kind() {
		return Message{}, fmt.Errorf("%w: kind %d doesn't match family %s", ErrMalformed, kind, msg.Family)
	}
	if n := msg.Family.dataLen(); n > 0 && len(msg.Data) != n {
		return Message{}, fmt.Errorf("%w: %s data must be %d bytes, got %d", ErrMalformed, msg.Family, n, len(msg.Data))
	}
	if len(msg.Data) == 0 {
		return Message{}, fmt.Errorf("%w: empty agreement data", ErrMalformed)
	}
	return msg, nil
}
