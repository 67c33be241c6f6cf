package lock

import (
	"errors"
	"fmt"

	"github.com/saylorsolutions/keylock/pkg/agree"
	"github.com/saylorsolutions/keylock/pkg/keyset"
	"github.com/saylorsolutions/keylock/pkg/verifier"
)

var (
	// ErrBadCredentials means the password, or the key pair for a KeyPairLock, didn't match.
	// It's safe to prompt again.
	ErrBadCredentials = verifier.ErrBadCredentials
	// ErrMalformedLock means the lock bytes are structurally invalid, corrupted, or have been tampered with.
	ErrMalformedLock = errors.New("malformed lock")
	// ErrInvalidOperation means the operation can't be performed with the given inputs.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrUnexpectedTrailingData means a sequence in the lock has more elements than expected.
	ErrUnexpectedTrailingData = errors.New("unexpected trailing data")
	ErrEmptyPassword          = verifier.ErrEmptyPassword
)

// structuralErr maps a decoding error from a lower layer to the lock's error kinds.
func structuralErr(err error) error {
	switch {
	case errors.Is(err, keyset.ErrTrailingData), errors.Is(err, agree.ErrTrailingData):
		return fmt.Errorf("%w: %w", ErrUnexpectedTrailingData, err)
	default:
		return fmt.Errorf("%w: %w", ErrMalformedLock, err)
	}
}
