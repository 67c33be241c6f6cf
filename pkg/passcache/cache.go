/*
Package passcache provides a session-scoped password Cache, which avoids prompting for a password that has already been used.

# How it works:

Every password given to the Cache is encrypted with a process-local KeySet, whose key material is held in a memguard.Enclave.
Encrypted passwords are kept in the order they were first seen, and each resolved lock is associated with the encrypted password that resolved it.

Attempt tries every known password against a new lock, decrypting each one only for the duration of its attempt.
The first password that resolves the lock is associated with it, and failures are expected and discarded.

# General guidelines:
  - A Cache belongs to a single session. Call Destroy when the session ends.
  - A Cache isn't safe for concurrent use. Guard it externally if it must be shared.
  - Nothing is ever evicted, so a Cache grows for as long as it's used.
*/
package passcache

import (
	"errors"
	"fmt"
	"io"

	"github.com/awnumar/memguard"
	"github.com/saylorsolutions/keylock/pkg/keyset"
	"github.com/saylorsolutions/keylock/pkg/secret"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotFound  = errors.New("no cached password for lock")
	ErrDestroyed = errors.New("password cache has been destroyed")
)

// Cache is a session-scoped memo of encrypted passwords, and the locks they resolve.
type Cache struct {
	log       logrus.FieldLogger
	spec      keyset.Spec
	key       *memguard.Enclave
	entries   map[string][]byte
	passwords [][]byte
	destroyed bool
}

type Opt = func(*Cache) error

// WithLogger sets the logger for debug messages.
// Only counts are logged, never passwords or lock bytes.
func WithLogger(log logrus.FieldLogger) Opt {
	return func(c *Cache) error {
		if log == nil {
			return errors.New("nil logger")
		}
		c.log = log
		return nil
	}
}

// WithKeySetSpec sets the shape of the KeySet that encrypts cached passwords.
func WithKeySetSpec(spec keyset.Spec) Opt {
	return func(c *Cache) error {
		if err := spec.Validate(); err != nil {
			return err
		}
		c.spec = spec
		return nil
	}
}

func discardLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// New creates an empty Cache with a fresh KeySet.
// By default, the KeySet uses keyset.DefaultSpec and nothing is logged.
func New(opts ...Opt) (*Cache, error) {
	c := &Cache{
		log:     discardLogger(),
		spec:    keyset.DefaultSpec(),
		entries: map[string][]byte{},
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	ks, err := keyset.Generate(c.spec, nil)
	if err != nil {
		return nil, err
	}
	defer ks.Destroy()
	data, err := ks.MarshalBinary()
	if err != nil {
		return nil, err
	}
	// NewEnclave wipes data.
	c.key = memguard.NewEnclave(data)
	c.log.WithField("spec", c.spec.String()).Debug("Created password cache")
	return c, nil
}

// withKeySet opens the session KeySet for the duration of fn.
func (c *Cache) withKeySet(fn func(ks *keyset.KeySet) error) error {
	if c.destroyed {
		return ErrDestroyed
	}
	buf, err := c.key.Open()
	if err != nil {
		return fmt.Errorf("failed to open cache key: %w", err)
	}
	defer buf.Destroy()
	ks, err := keyset.Unmarshal(buf.Bytes())
	if err != nil {
		return err
	}
	defer ks.Destroy()
	return fn(ks)
}

func (c *Cache) encrypt(password []byte) ([]byte, error) {
	var encrypted []byte
	err := c.withKeySet(func(ks *keyset.KeySet) error {
		var err error
		encrypted, err = ks.Encrypt(password)
		return err
	})
	return encrypted, err
}

// withPassword decrypts an encrypted password for the duration of fn, and wipes it afterward.
func (c *Cache) withPassword(encrypted []byte, fn func(password []byte) error) error {
	return c.withKeySet(func(ks *keyset.KeySet) error {
		plain, err := ks.Decrypt(encrypted)
		if err != nil {
			return err
		}
		defer secret.Wipe(plain)
		return secret.With(plain, fn)
	})
}

// known returns the encrypted form of password if it's already cached.
func (c *Cache) known(password []byte) ([]byte, bool) {
	for _, enc := range c.passwords {
		var match bool
		err := c.withPassword(enc, func(candidate []byte) error {
			match = secret.Equal(candidate, password)
			return nil
		})
		if err == nil && match {
			return enc, true
		}
	}
	return nil, false
}

func (c *Cache) associate(identity []byte, encrypted []byte) {
	c.entries[string(identity)] = encrypted
	c.log.WithField("entries", len(c.entries)).Debug("Associated lock with cached password")
}

// AddResolved records that password resolves the lock or hash with the given identity bytes.
// The password is copied and encrypted, so the caller may wipe it afterward.
func (c *Cache) AddResolved(identity []byte, password []byte) error {
	if c.destroyed {
		return ErrDestroyed
	}
	if len(password) == 0 {
		return errors.New("cannot cache an empty password")
	}
	enc, ok := c.known(password)
	if !ok {
		var err error
		if enc, err = c.encrypt(password); err != nil {
			return err
		}
		c.passwords = append(c.passwords, enc)
		c.log.WithField("passwords", len(c.passwords)).Debug("Cached new password")
	}
	c.associate(identity, enc)
	return nil
}

// Lookup returns the encrypted password associated with identity.
// The result can be given to the CreateSimilar functions.
func (c *Cache) Lookup(identity []byte) ([]byte, error) {
	if c.destroyed {
		return nil, ErrDestroyed
	}
	enc, ok := c.entries[string(identity)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte{}, enc...), nil
}

// Passwords is the number of distinct passwords in the Cache.
func (c *Cache) Passwords() int {
	return len(c.passwords)
}

// Entries is the number of locks with an associated password.
func (c *Cache) Entries() int {
	return len(c.entries)
}

// Destroy wipes every cached password, and ends the session.
// The Cache can't be used afterward.
func (c *Cache) Destroy() {
	if c == nil || c.destroyed {
		return
	}
	for _, enc := range c.passwords {
		secret.Wipe(enc)
	}
	c.passwords = nil
	c.entries = nil
	c.key = nil
	c.destroyed = true
	c.log.Debug("Destroyed password cache")
}
