/*
Package verifier provides the iterated multi-MAC password derivation used to verify a password, and to produce secret material for masking.

# How it works:

Four MACs are keyed with the password, each over a different hash algorithm.
Four chain buffers start out as the init vector, and on each iteration every MAC is fed the other chains rather than its own.
The secret MAC additionally sees its own chain.
Each new MAC output is folded into a running accumulator for its chain with a rotate-XOR mix, and the raw outputs become the next iteration's chains.

Once the iterations are complete, the prime, secondary, and tertiary accumulators are digested into the verifier hash.
The secret accumulator is kept separately as the derived secret, and is never stored.

# General guidelines:
  - Treat a Result as sensitive, and call Destroy as soon as the derived secret is no longer needed.
  - Compare hashes with Verify, never with bytes.Equal.
  - The iteration count and personalization must match between locking and unlocking.
  - The MACs keep their own padded copies of the password internally. Those can't be wiped, and live until they're garbage collected.
*/
package verifier

import (
	"errors"
	"fmt"
	"hash"
	"math/bits"

	"github.com/saylorsolutions/keylock/pkg/factory"
	"github.com/saylorsolutions/keylock/pkg/secret"
)

const (
	// InitVectorLen is the length of the random init vector (salt) that starts each derivation.
	InitVectorLen = 16
	// HashLen is the length of the verifier hash and of the derived secret.
	HashLen = factory.HashLen
	// DefaultIterations is the fixed iteration count of the legacy scheme.
	DefaultIterations = 4096
	MinIterations     = 1
)

var (
	ErrBadCredentials = errors.New("bad credentials")
	ErrEmptyPassword  = errors.New("cannot use an empty password")
	ErrInitVector     = errors.New("invalid init vector")
)

// Block is a single chain or accumulator value.
type Block = [HashLen]byte

// State is the complete working state of a derivation between iterations.
// Chains hold the previous iteration's MAC outputs, accumulators hold the folded history of every output.
type State struct {
	Prime, Secondary, Tertiary, Secret             Block
	AccPrime, AccSecondary, AccTertiary, AccSecret Block
}

// InitialState creates the starting State for an init vector.
// Each chain begins as the init vector, zero padded to HashLen, and the accumulators begin zeroed.
func InitialState(iv [InitVectorLen]byte) State {
	var st State
	copy(st.Prime[:], iv[:])
	copy(st.Secondary[:], iv[:])
	copy(st.Tertiary[:], iv[:])
	copy(st.Secret[:], iv[:])
	return st
}

func (s *State) wipe() {
	*s = State{}
}

// Primitives supplies the MAC and digest constructions a derivation runs on.
// Both *factory.Factory and factory.Catalogue satisfy it.
type Primitives interface {
	NewMAC(spec factory.MacSpec, key []byte) (hash.Hash, error)
	NewDigest(spec factory.DigestSpec) (hash.Hash, error)
}

// macs is the set of password-keyed MACs for one derivation.
type macs struct {
	prime, secondary, tertiary, secret hash.Hash
}

func newMACs(p Primitives, password []byte) (*macs, error) {
	var (
		m   macs
		err error
	)
	specs := []struct {
		spec factory.MacSpec
		dst  *hash.Hash
	}{
		{factory.MacSHA256, &m.prime},
		{factory.MacSHA3_256, &m.secondary},
		{factory.MacBLAKE2b256, &m.tertiary},
		{factory.MacSHA512_256, &m.secret},
	}
	for _, s := range specs {
		if *s.dst, err = p.NewMAC(s.spec, password); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", s.spec, err)
		}
	}
	return &m, nil
}

func sum(h hash.Hash, parts ...*Block) Block {
	var out Block
	h.Reset()
	for _, p := range parts {
		h.Write(p[:])
	}
	h.Sum(out[:0])
	return out
}

// fold mixes a new MAC output into its accumulator.
// Every byte is rotated left by its index modulo 8 and then XOR'd in, so the result doesn't depend on the order outputs arrive in.
func fold(acc, h Block) Block {
	for i := range acc {
		acc[i] ^= bits.RotateLeft8(h[i], i%8)
	}
	return acc
}

// step runs one iteration and returns the next State.
// The given State isn't modified.
func step(st State, m *macs) State {
	prime := sum(m.prime, &st.Secondary, &st.Tertiary)
	secondary := sum(m.secondary, &st.Prime, &st.Tertiary)
	tertiary := sum(m.tertiary, &st.Prime, &st.Secondary)
	sec := sum(m.secret, &st.Secret, &st.Prime, &st.Secondary, &st.Tertiary)

	return State{
		Prime:        prime,
		Secondary:    secondary,
		Tertiary:     tertiary,
		Secret:       sec,
		AccPrime:     fold(st.AccPrime, prime),
		AccSecondary: fold(st.AccSecondary, secondary),
		AccTertiary:  fold(st.AccTertiary, tertiary),
		AccSecret:    fold(st.AccSecret, sec),
	}
}

// Result is the output of a derivation.
type Result struct {
	InitVector [InitVectorLen]byte
	Hash       Block
	secret     *secret.Buffer
}

// Secret returns the derived secret.
// The returned slice aliases the Result and is wiped by Destroy.
func (r *Result) Secret() []byte {
	return r.secret.Bytes()
}

// Destroy wipes the derived secret.
func (r *Result) Destroy() {
	if r == nil {
		return
	}
	r.secret.Destroy()
}

// Engine runs password derivations with a fixed configuration.
// An Engine holds no mutable state, so it's safe for concurrent use.
type Engine struct {
	prims        Primitives
	iterations   int
	personalizer []byte
}

type EngineOpt = func(*Engine) error

// WithIterations overrides DefaultIterations.
func WithIterations(iterations int) EngineOpt {
	return func(e *Engine) error {
		if iterations < MinIterations {
			return fmt.Errorf("iterations must be at least %d", MinIterations)
		}
		e.iterations = iterations
		return nil
	}
}

// WithPersonalization mixes the given value into the verifier hash.
// Derivations with different personalization never produce the same hash.
func WithPersonalization(personal []byte) EngineOpt {
	return func(e *Engine) error {
		e.personalizer = append([]byte{}, personal...)
		return nil
	}
}

// NewEngine creates an Engine that gets its primitives from p.
// By default, it runs DefaultIterations with no personalization, which is the legacy scheme.
func NewEngine(p Primitives, opts ...EngineOpt) (*Engine, error) {
	if p == nil {
		return nil, errors.New("nil primitives")
	}
	e := &Engine{
		prims:      p,
		iterations: DefaultIterations,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Engine) Iterations() int {
	return e.iterations
}

// Derive runs the derivation for the given init vector and password.
// The password is only read, and the caller remains responsible for wiping it.
func (e *Engine) Derive(iv [InitVectorLen]byte, password []byte) (*Result, error) {
	if len(password) == 0 {
		return nil, ErrEmptyPassword
	}
	var result *Result
	err := secret.With(password, func(pass []byte) error {
		m, err := newMACs(e.prims, pass)
		if err != nil {
			return err
		}
		st := InitialState(iv)
		defer st.wipe()
		for i := 0; i < e.iterations; i++ {
			st = step(st, m)
		}

		digest, err := e.prims.NewDigest(factory.DigestBLAKE2s256)
		if err != nil {
			return err
		}
		digest.Write(e.personalizer)
		digest.Write(st.AccPrime[:])
		digest.Write(st.AccSecondary[:])
		digest.Write(st.AccTertiary[:])

		result = &Result{
			InitVector: iv,
			secret:     secret.From(st.AccSecret[:]),
		}
		digest.Sum(result.Hash[:0])
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Check derives with the given init vector and password, and verifies the result against the stored hash.
// On success, the caller owns the returned Result.
func (e *Engine) Check(iv [InitVectorLen]byte, stored []byte, password []byte) (*Result, error) {
	result, err := e.Derive(iv, password)
	if err != nil {
		return nil, err
	}
	if err := Verify(stored, result.Hash[:]); err != nil {
		result.Destroy()
		return nil, err
	}
	return result, nil
}

// Verify compares a stored verifier hash with a computed one.
// The comparison always examines every byte.
func Verify(stored, computed []byte) error {
	if !secret.Equal(stored, computed) {
		return ErrBadCredentials
	}
	return nil
}

// InitVectorFrom copies an init vector from a slice.
func InitVectorFrom(data []byte) ([InitVectorLen]byte, error) {
	var iv [InitVectorLen]byte
	if len(data) != InitVectorLen {
		return iv, fmt.Errorf("%w: must be %d bytes, got %d", ErrInitVector, InitVectorLen, len(data))
	}
	copy(iv[:], data)
	return iv, nil
}
