package lock

import (
	"errors"
	"fmt"

	"github.com/saylorsolutions/keylock/pkg/agree"
	"github.com/saylorsolutions/keylock/pkg/factory"
	"github.com/saylorsolutions/keylock/pkg/keyset"
	"github.com/saylorsolutions/keylock/pkg/pki"
)

// CreateKeyPairLock generates a new KeySet of shape spec.KeySet, and locks it so that resolving needs both the private key of kp and the password.
// Only the public key of kp is used, so kp may come from pki.PublicOnly.
// If lockingFactory is nil, the default locking Factory is used, and the same must be used to resolve.
func CreateKeyPairLock(lockingFactory *factory.Factory, spec Spec, kp pki.Keypair, password []byte) (*KeyPairLock, error) {
	if kp == nil {
		return nil, fmt.Errorf("%w: nil key pair", ErrInvalidOperation)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	f, err := lockingOrDefault(lockingFactory)
	if err != nil {
		return nil, err
	}
	msg, derived, err := agree.Initiate(f, kp.Public())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOperation, err)
	}
	defer derived.Destroy()

	target, err := keyset.Generate(spec.KeySet, derived.Random())
	if err != nil {
		return nil, err
	}
	inner, err := createKeySetLockBytes(derived, target, spec, password)
	if err != nil {
		target.Destroy()
		return nil, err
	}
	data, err := marshalKeyPairLock(msg, inner)
	if err != nil {
		target.Destroy()
		return nil, err
	}
	return newLock(KindKeyPair, data, target), nil
}

// ResolveKeyPairLock recovers the KeySet locked in data with the private key of kp and the password.
// A key pair without a private key results in ErrInvalidOperation, before the password is used.
// A key pair that doesn't match the lock results in ErrBadCredentials.
func ResolveKeyPairLock(lockingFactory *factory.Factory, data []byte, kp pki.Keypair, password []byte) (*KeyPairLock, error) {
	parsed, err := ParseKeyPairLock(data)
	if err != nil {
		return nil, err
	}
	if kp == nil || !pki.HasPrivateKey(kp) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOperation, pki.ErrNoPrivateKey)
	}
	f, err := lockingOrDefault(lockingFactory)
	if err != nil {
		return nil, err
	}
	derived, err := agree.Accept(f, kp, parsed.Agreement)
	if err != nil {
		return nil, handshakeErr(err)
	}
	defer derived.Destroy()

	target, err := resolveKeySetPayload(derived, parsed.Lock, password)
	if err != nil {
		return nil, err
	}
	return newLock(KindKeyPair, append([]byte{}, data...), target), nil
}

func handshakeErr(err error) error {
	switch {
	case errors.Is(err, agree.ErrFamilyMismatch), errors.Is(err, agree.ErrHandshakeFailed):
		return fmt.Errorf("%w: %w", ErrBadCredentials, err)
	default:
		return fmt.Errorf("%w: %w", ErrInvalidOperation, err)
	}
}
