package lock

import (
	"errors"
	"fmt"

	"github.com/saylorsolutions/keylock/pkg/factory"
	"github.com/saylorsolutions/keylock/pkg/keyset"
)

// CreateKeySetLock seals target with a KeySet derived from the password, and encodes the lock.
// If lockingFactory is nil, the default locking Factory is used, and the same must be used to resolve.
func CreateKeySetLock(lockingFactory *factory.Factory, target *keyset.KeySet, spec Spec, password []byte) (*KeySetLock, error) {
	if target == nil {
		return nil, fmt.Errorf("%w: nil key set", ErrInvalidOperation)
	}
	f, err := lockingOrDefault(lockingFactory)
	if err != nil {
		return nil, err
	}
	data, err := createKeySetLockBytes(f, target, spec, password)
	if err != nil {
		return nil, err
	}
	return newLock(KindKeySet, data, target), nil
}

func createKeySetLockBytes(f *factory.Factory, target *keyset.KeySet, spec Spec, password []byte) ([]byte, error) {
	recipe, err := ForLocking(f, spec)
	if err != nil {
		return nil, err
	}
	ks, err := recipe.DeriveKeySet(password)
	if err != nil {
		return nil, err
	}
	defer ks.Destroy()
	payload, err := ks.SecureKeySet(target)
	if err != nil {
		return nil, fmt.Errorf("failed to seal key set: %w", err)
	}
	return recipe.BuildLockBytes(len(password), payload)
}

// ResolveKeySetLock recovers the KeySet locked in data.
// If lockingFactory is nil, the default locking Factory is used.
func ResolveKeySetLock(lockingFactory *factory.Factory, data []byte, password []byte) (*KeySetLock, error) {
	parsed, err := ParseLock(data)
	if err != nil {
		return nil, err
	}
	f, err := lockingOrDefault(lockingFactory)
	if err != nil {
		return nil, err
	}
	target, err := resolveKeySetPayload(f, parsed, password)
	if err != nil {
		return nil, err
	}
	return newLock(KindKeySet, append([]byte{}, data...), target), nil
}

func resolveKeySetPayload(f *factory.Factory, parsed *ParsedLock, password []byte) (*keyset.KeySet, error) {
	recipe, err := ForUnlockingParsed(f, len(password), parsed)
	if err != nil {
		return nil, err
	}
	ks, err := recipe.DeriveKeySet(password)
	if err != nil {
		return nil, err
	}
	defer ks.Destroy()
	payload, err := recipe.Payload()
	if err != nil {
		return nil, err
	}
	target, err := ks.DeriveKeySet(payload)
	if err != nil {
		// The password was verified, so a payload that won't open has been altered.
		if errors.Is(err, keyset.ErrAuthFailed) {
			return nil, fmt.Errorf("%w: %w", ErrMalformedLock, err)
		}
		return nil, structuralErr(err)
	}
	return target, nil
}
