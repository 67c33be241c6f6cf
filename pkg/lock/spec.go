package lock

import (
	"errors"
	"fmt"

	"github.com/saylorsolutions/keylock/pkg/keyset"
	"github.com/saylorsolutions/keylock/pkg/verifier"
)

const (
	MinIterations     uint32 = 1 << 10
	MaxIterations     uint32 = 1 << 20
	DefaultIterations uint32 = verifier.DefaultIterations
)

var (
	ErrInvalidSpec = errors.New("invalid lock spec")
)

// Spec controls the cost and strength of a password lock.
// It's stored in the lock, so resolving never needs it up front.
type Spec struct {
	KeySet     keyset.Spec
	Iterations uint32
}

type SpecOpt = func(*Spec) error

// WithKeySetSpec sets the shape of the KeySet derived from the password.
func WithKeySetSpec(ks keyset.Spec) SpecOpt {
	return func(s *Spec) error {
		if err := ks.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSpec, err)
		}
		s.KeySet = ks
		return nil
	}
}

// WithIterations sets the iteration count of the password derivation.
// Only use this option if you know what you're doing.
func WithIterations(iterations uint32) SpecOpt {
	return func(s *Spec) error {
		if iterations < MinIterations || iterations > MaxIterations {
			return fmt.Errorf("%w: iterations must be between %d and %d", ErrInvalidSpec, MinIterations, MaxIterations)
		}
		s.Iterations = iterations
		return nil
	}
}

// NewSpec creates a Spec from zero or more SpecOpt.
// By default, the Spec uses keyset.DefaultSpec and DefaultIterations.
func NewSpec(opts ...SpecOpt) (Spec, error) {
	spec := DefaultSpec()
	for _, opt := range opts {
		if err := opt(&spec); err != nil {
			return Spec{}, err
		}
	}
	return spec, nil
}

func DefaultSpec() Spec {
	return Spec{
		KeySet:     keyset.DefaultSpec(),
		Iterations: DefaultIterations,
	}
}

func (s Spec) Validate() error {
	if err := s.KeySet.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSpec, err)
	}
	if s.Iterations < MinIterations || s.Iterations > MaxIterations {
		return fmt.Errorf("%w: iterations must be between %d and %d, got %d", ErrInvalidSpec, MinIterations, MaxIterations, s.Iterations)
	}
	return nil
}

func (s Spec) String() string {
	return fmt.Sprintf("%s, %d iterations", s.KeySet, s.Iterations)
}
