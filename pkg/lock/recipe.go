package lock

import (
	"fmt"
	"io"

	"github.com/saylorsolutions/keylock/pkg/factory"
	"github.com/saylorsolutions/keylock/pkg/keyset"
	"github.com/saylorsolutions/keylock/pkg/verifier"
)

var keySetInfo = []byte("keylock-keyset")

// Recipe turns a password into a one-time KeySet, and manages the lock bytes that go with it.
// A Recipe is either for locking or for unlocking, and is used for a single lock.
type Recipe struct {
	factory     *factory.Factory
	spec        Spec
	initVector  [InitVectorLen]byte
	unlocking   bool
	passwordLen int

	// Set when unlocking.
	stored  [HashLen]byte
	payload []byte

	// Set once DeriveKeySet succeeds.
	derived bool
	hash    [HashLen]byte
}

// ForLocking creates a Recipe for a new lock, with a fresh init vector from f.
func ForLocking(f *factory.Factory, spec Spec) (*Recipe, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: nil factory", ErrInvalidOperation)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	r := &Recipe{
		factory: f,
		spec:    spec,
	}
	if _, err := io.ReadFull(f.Random(), r.initVector[:]); err != nil {
		return nil, fmt.Errorf("failed to generate init vector: %w", err)
	}
	return r, nil
}

// ForUnlocking creates a Recipe to unlock the given lock bytes with a password of passwordLen bytes.
// The lock bytes are fully parsed before returning, so structural problems are reported here.
func ForUnlocking(f *factory.Factory, passwordLen int, data []byte) (*Recipe, error) {
	parsed, err := ParseLock(data)
	if err != nil {
		return nil, err
	}
	return ForUnlockingParsed(f, passwordLen, parsed)
}

// ForUnlockingParsed is the same as ForUnlocking, but starts from an already parsed lock.
func ForUnlockingParsed(f *factory.Factory, passwordLen int, parsed *ParsedLock) (*Recipe, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: nil factory", ErrInvalidOperation)
	}
	if parsed == nil {
		return nil, fmt.Errorf("%w: nil lock", ErrInvalidOperation)
	}
	if passwordLen <= 0 {
		return nil, ErrEmptyPassword
	}
	return &Recipe{
		factory:     f,
		spec:        parsed.Spec,
		initVector:  parsed.InitVector,
		unlocking:   true,
		passwordLen: passwordLen,
		stored:      parsed.Hash,
		payload:     append([]byte{}, parsed.Payload...),
	}, nil
}

func (r *Recipe) Spec() Spec {
	return r.spec
}

func (r *Recipe) InitVector() [InitVectorLen]byte {
	return r.initVector
}

// DeriveKeySet derives the one-time KeySet for this Recipe from the password.
// The result depends only on the init vector, Spec, password, and Factory, so locking and unlocking produce the same KeySet.
// When unlocking, a password that doesn't match the stored verifier hash results in ErrBadCredentials.
//
// The caller owns the returned KeySet and should Destroy it when finished.
func (r *Recipe) DeriveKeySet(password []byte) (*keyset.KeySet, error) {
	if r.unlocking && len(password) != r.passwordLen {
		return nil, fmt.Errorf("%w: expected a %d byte password", ErrInvalidOperation, r.passwordLen)
	}
	engine, err := verifier.NewEngine(r.factory,
		verifier.WithIterations(int(r.spec.Iterations)),
		verifier.WithPersonalization(r.factory.Personalization()),
	)
	if err != nil {
		return nil, err
	}
	result, err := engine.Derive(r.initVector, password)
	if err != nil {
		return nil, err
	}
	defer result.Destroy()

	if r.unlocking {
		if err := verifier.Verify(r.stored[:], result.Hash[:]); err != nil {
			return nil, err
		}
	}
	info := make([]byte, 0, len(keySetInfo)+2)
	info = append(append(info, keySetInfo...), r.spec.KeySet.Identity()...)
	ks, err := keyset.Derive(r.spec.KeySet, result.Secret(), r.initVector[:], info)
	if err != nil {
		return nil, err
	}
	r.hash = result.Hash
	r.passwordLen = len(password)
	r.derived = true
	return ks, nil
}

// BuildLockASN1 assembles the structured lock for the given payload.
// This is only valid for a locking Recipe after DeriveKeySet, with the same password length.
// The payload must be sealed by the derived KeySet, so it's always longer than the KeySet overhead.
func (r *Recipe) BuildLockASN1(passwordLen int, payload []byte) (*ParsedLock, error) {
	if r.unlocking {
		return nil, fmt.Errorf("%w: can't build a lock from an unlocking recipe", ErrInvalidOperation)
	}
	if !r.derived {
		return nil, fmt.Errorf("%w: key set must be derived before building a lock", ErrInvalidOperation)
	}
	if passwordLen != r.passwordLen {
		return nil, fmt.Errorf("%w: password length doesn't match derivation", ErrInvalidOperation)
	}
	if len(payload) <= r.spec.KeySet.Overhead() {
		return nil, fmt.Errorf("%w: payload must be longer than the %d byte overhead of %s", ErrInvalidOperation, r.spec.KeySet.Overhead(), r.spec.KeySet)
	}
	return &ParsedLock{
		Spec:       r.spec,
		InitVector: r.initVector,
		Hash:       r.hash,
		Payload:    append([]byte{}, payload...),
	}, nil
}

// BuildLockBytes is the same as BuildLockASN1, but returns the encoded lock bytes.
func (r *Recipe) BuildLockBytes(passwordLen int, payload []byte) ([]byte, error) {
	parsed, err := r.BuildLockASN1(passwordLen, payload)
	if err != nil {
		return nil, err
	}
	return parsed.Marshal()
}

// Payload returns a copy of the payload parsed from the lock bytes.
// Only an unlocking Recipe has a payload.
func (r *Recipe) Payload() ([]byte, error) {
	if !r.unlocking {
		return nil, fmt.Errorf("%w: a locking recipe has no payload", ErrInvalidOperation)
	}
	return append([]byte{}, r.payload...), nil
}
