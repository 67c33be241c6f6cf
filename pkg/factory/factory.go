// Package factory provides the Security Factory: a seed-configured capability provider for randomness and the MAC and digest primitives used by password derivation.
package factory

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/saylorsolutions/keylock/pkg/secret"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/scrypt"
)

const (
	// SeedLen is the length in bytes of each security seed.
	SeedLen = 32

	phraseIterations = 1 << 15
	phraseBlockSize  = 8
	phraseCpuCost    = 1
)

var (
	ErrNotRandom    = errors.New("factory is not random")
	ErrInvalidSeeds = errors.New("invalid security seeds")
	ErrEmptyPhrase  = errors.New("cannot use an empty phrase")
	ErrDestroyed    = errors.New("factory has been destroyed")

	phraseSalt    = []byte("keylock-factory-phrase")
	defaultPhrase = []byte("keylock-default-locking-factory")
	personalLabel = []byte("keylock-personalization")
)

// Seeds is the security seed pair that fully describes a Factory's configuration.
type Seeds struct {
	General []byte
	KeySet  []byte
}

// Wipe zero fills both seeds.
func (s Seeds) Wipe() {
	secret.Wipe(s.General, s.KeySet)
}

func (s Seeds) validate() error {
	if len(s.General) != SeedLen {
		return fmt.Errorf("%w: general seed must be %d bytes, got %d", ErrInvalidSeeds, SeedLen, len(s.General))
	}
	if len(s.KeySet) != SeedLen {
		return fmt.Errorf("%w: key set seed must be %d bytes, got %d", ErrInvalidSeeds, SeedLen, len(s.KeySet))
	}
	return nil
}

// Factory is a security capability provider.
// It's configured by a pair of security seeds, supplies randomness, and constructs the MAC and digest primitives used for password derivation.
//
// A random Factory was configured from secure random seeds, and may be locked with a password.
// A non-random Factory was derived from a fixed phrase, so its configuration is reproducible and locking it would be pointless.
type Factory struct {
	general   []byte
	keySet    []byte
	random    bool
	rng       io.Reader
	destroyed bool
}

// NewRandom creates a random Factory from freshly generated seeds.
func NewRandom() (*Factory, error) {
	seeds := Seeds{
		General: make([]byte, SeedLen),
		KeySet:  make([]byte, SeedLen),
	}
	defer seeds.Wipe()
	if _, err := io.ReadFull(rand.Reader, seeds.General); err != nil {
		return nil, fmt.Errorf("failed to generate general seed: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, seeds.KeySet); err != nil {
		return nil, fmt.Errorf("failed to generate key set seed: %w", err)
	}
	return newFactory(seeds, true), nil
}

// FromSeeds reconstructs a random Factory from a previously exported seed pair.
// The seeds are copied, so the caller may wipe them afterward.
func FromSeeds(general, keySet []byte) (*Factory, error) {
	seeds := Seeds{General: general, KeySet: keySet}
	if err := seeds.validate(); err != nil {
		return nil, err
	}
	return newFactory(seeds, true), nil
}

// FromPhrase deterministically derives a non-random Factory from the given phrase.
// This uses scrypt, so it's intentionally slow.
func FromPhrase(phrase []byte) (*Factory, error) {
	if len(phrase) == 0 {
		return nil, ErrEmptyPhrase
	}
	material, err := scrypt.Key(phrase, phraseSalt, phraseIterations, phraseBlockSize, phraseCpuCost, 2*SeedLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive factory seeds: %w", err)
	}
	defer secret.Wipe(material)
	return newFactory(Seeds{General: material[:SeedLen], KeySet: material[SeedLen:]}, false), nil
}

// NewDefault derives the well-known non-random Factory used when a caller doesn't supply one.
// Every process derives the same configuration.
func NewDefault() (*Factory, error) {
	return FromPhrase(defaultPhrase)
}

func newFactory(seeds Seeds, random bool) *Factory {
	f := &Factory{
		general: make([]byte, SeedLen),
		keySet:  make([]byte, SeedLen),
		random:  random,
		rng:     rand.Reader,
	}
	copy(f.general, seeds.General)
	copy(f.keySet, seeds.KeySet)
	return f
}

// IsRandom reports whether this Factory was configured from random seeds.
func (f *Factory) IsRandom() bool {
	return f.random
}

// Random returns the secure random source for this Factory.
func (f *Factory) Random() io.Reader {
	return f.rng
}

// Seeds returns a copy of the security seeds.
// The caller owns the copy and should Wipe it when it's no longer needed.
func (f *Factory) Seeds() (Seeds, error) {
	if f.destroyed {
		return Seeds{}, ErrDestroyed
	}
	seeds := Seeds{
		General: make([]byte, SeedLen),
		KeySet:  make([]byte, SeedLen),
	}
	copy(seeds.General, f.general)
	copy(seeds.KeySet, f.keySet)
	return seeds, nil
}

// Personalization returns a digest that identifies this Factory's configuration without revealing it.
// It's mixed into password derivation so that a lock only resolves under the Factory that created it.
func (f *Factory) Personalization() []byte {
	h, _ := blake2b.New256(nil)
	h.Write(personalLabel)
	h.Write(f.general)
	h.Write(f.keySet)
	return h.Sum(nil)
}

// Equal reports whether both factories share the same configuration.
func (f *Factory) Equal(other *Factory) bool {
	if f == nil || other == nil {
		return f == other
	}
	if f.random != other.random {
		return false
	}
	return secret.Equal(f.general, other.general) && secret.Equal(f.keySet, other.keySet)
}

// Destroy wipes the seeds held by this Factory.
func (f *Factory) Destroy() {
	if f == nil {
		return
	}
	secret.Wipe(f.general, f.keySet)
	f.destroyed = true
}
