/*
Package lock protects a Factory or KeySet behind a password, producing a self-describing byte slice that can be resolved again with the same password.

# How it works:

There are three kinds of lock.
  - A FactoryLock masks a random Factory's seeds with secret material derived from the password, in a fixed 112 byte layout.
  - A KeySetLock derives a one-time KeySet from the password with a Recipe, and uses it to seal the target KeySet. The result is DER encoded along with the Spec and verifier hash.
  - A KeyPairLock first runs an agreement handshake against a public key to derive a locking Factory, then creates a KeySetLock with it. Resolving needs the private key as well as the password.

A wrong password, or a wrong key pair, results in ErrBadCredentials.
Lock bytes are checked for structural validity before any password processing, and invalid bytes result in ErrMalformedLock or ErrUnexpectedTrailingData.

# General guidelines:
  - Passwords are only read. The caller owns them and should wipe them when finished.
  - Use a nil locking Factory to use the default locking Factory, which is the same in every process.
  - Never Destroy the default locking Factory.
*/
package lock

import (
	"fmt"

	"github.com/saylorsolutions/keylock/pkg/factory"
	"github.com/saylorsolutions/keylock/pkg/keyset"
)

// Kind identifies the variant of a Lock.
type Kind uint8

const (
	KindFactory Kind = iota + 1
	KindKeySet
	KindKeyPair
)

func (k Kind) String() string {
	switch k {
	case KindFactory:
		return "factory"
	case KindKeySet:
		return "keyset"
	case KindKeyPair:
		return "keypair"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for _, k := range []Kind{KindFactory, KindKeySet, KindKeyPair} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown lock kind '%s'", ErrInvalidOperation, s)
}

// Lock is an immutable pairing of lock bytes with the object they lock.
type Lock[T any] struct {
	kind   Kind
	data   []byte
	locked T
}

type (
	FactoryLock = Lock[*factory.Factory]
	KeySetLock  = Lock[*keyset.KeySet]
	KeyPairLock = Lock[*keyset.KeySet]
)

func newLock[T any](kind Kind, data []byte, locked T) *Lock[T] {
	return &Lock[T]{
		kind:   kind,
		data:   data,
		locked: locked,
	}
}

func (l *Lock[T]) Kind() Kind {
	return l.kind
}

// Bytes returns a copy of the lock bytes.
func (l *Lock[T]) Bytes() []byte {
	return append([]byte{}, l.data...)
}

// Len is the length of the lock bytes.
func (l *Lock[T]) Len() int {
	return len(l.data)
}

// Locked returns the object protected by this Lock.
func (l *Lock[T]) Locked() T {
	return l.locked
}
