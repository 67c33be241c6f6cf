package passcache

import (
	"bytes"
	"errors"

	"github.com/saylorsolutions/keylock/pkg/factory"
	"github.com/saylorsolutions/keylock/pkg/keyset"
	"github.com/saylorsolutions/keylock/pkg/lock"
	"github.com/saylorsolutions/keylock/pkg/pki"
)

// ResolveFunc resolves something with a candidate password.
// The password is only valid for the duration of the call.
type ResolveFunc[T any] func(password []byte) (T, error)

// Attempt tries each cached password with resolve, in the order they were first cached.
// If identity already has an associated password, then that one is tried first.
// The first success is associated with identity and returned. Failures are discarded.
//
// Attempt returns false if no cached password succeeds, or if the Cache was destroyed.
func Attempt[T any](c *Cache, identity []byte, resolve ResolveFunc[T]) (T, bool) {
	var (
		result T
		found  []byte
	)
	if c == nil || c.destroyed {
		return result, false
	}
	candidates := c.passwords
	if linked, ok := c.entries[string(identity)]; ok {
		candidates = make([][]byte, 0, len(c.passwords))
		candidates = append(candidates, linked)
		for _, enc := range c.passwords {
			if !bytes.Equal(enc, linked) {
				candidates = append(candidates, enc)
			}
		}
	}
	for i, enc := range candidates {
		err := c.withPassword(enc, func(password []byte) error {
			var err error
			result, err = resolve(password)
			return err
		})
		if err == nil {
			found = enc
			c.log.WithField("attempts", i+1).Debug("Resolved with cached password")
			break
		}
	}
	if found == nil {
		c.log.WithField("attempts", len(candidates)).Debug("No cached password resolved")
		var zero T
		return zero, false
	}
	c.associate(identity, found)
	return result, true
}

// AttemptFactoryLock tries cached passwords against FactoryLock bytes.
func (c *Cache) AttemptFactoryLock(data []byte) (*lock.FactoryLock, bool) {
	return Attempt(c, data, func(password []byte) (*lock.FactoryLock, error) {
		return lock.ResolveFactoryLock(data, password)
	})
}

// AttemptKeySetLock tries cached passwords against KeySetLock bytes.
func (c *Cache) AttemptKeySetLock(lockingFactory *factory.Factory, data []byte) (*lock.KeySetLock, bool) {
	return Attempt(c, data, func(password []byte) (*lock.KeySetLock, error) {
		return lock.ResolveKeySetLock(lockingFactory, data, password)
	})
}

// AttemptKeyPairLock tries cached passwords against KeyPairLock bytes.
func (c *Cache) AttemptKeyPairLock(lockingFactory *factory.Factory, data []byte, kp pki.Keypair) (*lock.KeyPairLock, bool) {
	return Attempt(c, data, func(password []byte) (*lock.KeyPairLock, error) {
		return lock.ResolveKeyPairLock(lockingFactory, data, kp, password)
	})
}

// remember associates a successfully created or resolved lock with password.
func remember[T any](c *Cache, password []byte, l *lock.Lock[T], err error) (*lock.Lock[T], error) {
	if err != nil {
		return nil, err
	}
	if err := c.AddResolved(l.Bytes(), password); err != nil {
		return nil, err
	}
	return l, nil
}

// CreateFactoryLock creates a FactoryLock, and caches its password.
func (c *Cache) CreateFactoryLock(f *factory.Factory, password []byte) (*lock.FactoryLock, error) {
	l, err := lock.CreateFactoryLock(f, password)
	return remember(c, password, l, err)
}

// ResolveFactoryLock resolves a FactoryLock, and caches its password.
func (c *Cache) ResolveFactoryLock(data []byte, password []byte) (*lock.FactoryLock, error) {
	l, err := lock.ResolveFactoryLock(data, password)
	return remember(c, password, l, err)
}

// CreateKeySetLock creates a KeySetLock, and caches its password.
func (c *Cache) CreateKeySetLock(lockingFactory *factory.Factory, target *keyset.KeySet, spec lock.Spec, password []byte) (*lock.KeySetLock, error) {
	l, err := lock.CreateKeySetLock(lockingFactory, target, spec, password)
	return remember(c, password, l, err)
}

// ResolveKeySetLock resolves a KeySetLock, and caches its password.
func (c *Cache) ResolveKeySetLock(lockingFactory *factory.Factory, data []byte, password []byte) (*lock.KeySetLock, error) {
	l, err := lock.ResolveKeySetLock(lockingFactory, data, password)
	return remember(c, password, l, err)
}

// CreateKeyPairLock creates a KeyPairLock, and caches its password.
func (c *Cache) CreateKeyPairLock(lockingFactory *factory.Factory, spec lock.Spec, kp pki.Keypair, password []byte) (*lock.KeyPairLock, error) {
	l, err := lock.CreateKeyPairLock(lockingFactory, spec, kp, password)
	return remember(c, password, l, err)
}

// ResolveKeyPairLock resolves a KeyPairLock, and caches its password.
func (c *Cache) ResolveKeyPairLock(lockingFactory *factory.Factory, data []byte, kp pki.Keypair, password []byte) (*lock.KeyPairLock, error) {
	l, err := lock.ResolveKeyPairLock(lockingFactory, data, kp, password)
	return remember(c, password, l, err)
}

var errNotCached = errors.New("password isn't in this cache")

// similar creates a lock with the password behind encrypted, which must have come from Lookup.
func similar[T any](c *Cache, encrypted []byte, create func(password []byte) (*lock.Lock[T], error)) (*lock.Lock[T], error) {
	if c == nil || c.destroyed {
		return nil, ErrDestroyed
	}
	var l *lock.Lock[T]
	err := c.withPassword(encrypted, func(password []byte) error {
		var err error
		l, err = create(password)
		return err
	})
	if err != nil {
		if errors.Is(err, keyset.ErrAuthFailed) {
			return nil, errNotCached
		}
		return nil, err
	}
	c.associateSimilar(l.Bytes(), encrypted)
	return l, nil
}

// associateSimilar reuses the cached entry matching encrypted, so no duplicate password is stored.
func (c *Cache) associateSimilar(identity []byte, encrypted []byte) {
	for _, enc := range c.passwords {
		if string(enc) == string(encrypted) {
			c.associate(identity, enc)
			return
		}
	}
	c.passwords = append(c.passwords, append([]byte{}, encrypted...))
	c.associate(identity, c.passwords[len(c.passwords)-1])
}

// CreateSimilarFactoryLock creates a FactoryLock with the same password as a previously cached lock.
// The encrypted password is given by Lookup, and is never decrypted outside of the Cache.
func (c *Cache) CreateSimilarFactoryLock(encrypted []byte, f *factory.Factory) (*lock.FactoryLock, error) {
	return similar(c, encrypted, func(password []byte) (*lock.FactoryLock, error) {
		return lock.CreateFactoryLock(f, password)
	})
}

// CreateSimilarKeySetLock creates a KeySetLock with the same password as a previously cached lock.
func (c *Cache) CreateSimilarKeySetLock(encrypted []byte, lockingFactory *factory.Factory, target *keyset.KeySet, spec lock.Spec) (*lock.KeySetLock, error) {
	return similar(c, encrypted, func(password []byte) (*lock.KeySetLock, error) {
		return lock.CreateKeySetLock(lockingFactory, target, spec, password)
	})
}

// CreateSimilarKeyPairLock creates a KeyPairLock with the same password as a previously cached lock.
func (c *Cache) CreateSimilarKeyPairLock(encrypted []byte, lockingFactory *factory.Factory, spec lock.Spec, kp pki.Keypair) (*lock.KeyPairLock, error) {
	return similar(c, encrypted, func(password []byte) (*lock.KeyPairLock, error) {
		return lock.CreateKeyPairLock(lockingFactory, spec, kp, password)
	})
}
