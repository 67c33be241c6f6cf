package main

import (
	"encoding/hex"
	"errors"
	"testing"

	"github.com/saylorsolutions/keylock/pkg/factory"
	"github.com/saylorsolutions/keylock/pkg/keyset"
	"github.com/saylorsolutions/keylock/pkg/lock"
	"github.com/saylorsolutions/keylock/pkg/passcache"
	"github.com/saylorsolutions/keylock/pkg/pki"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLocks struct {
	locking *factory.Factory
	keypair pki.Keypair
	factory []byte
	keySet  []byte
	keyPair []byte
}

func createLocks(t *testing.T, password []byte) *testLocks {
	t.Helper()
	locking, err := factory.NewRandom()
	require.NoError(t, err)
	spec, err := lock.NewSpec(lock.WithIterations(lock.MinIterations))
	require.NoError(t, err)
	kp, err := pki.Generate(pki.ED25519)
	require.NoError(t, err)

	toLock, err := factory.NewRandom()
	require.NoError(t, err)
	fl, err := lock.CreateFactoryLock(toLock, password)
	require.NoError(t, err)
	target, err := keyset.Generate(keyset.DefaultSpec(), nil)
	require.NoError(t, err)
	ksl, err := lock.CreateKeySetLock(locking, target, spec, password)
	require.NoError(t, err)
	kpl, err := lock.CreateKeyPairLock(locking, spec, kp, password)
	require.NoError(t, err)

	return &testLocks{
		locking: locking,
		keypair: kp,
		factory: fl.Bytes(),
		keySet:  ksl.Bytes(),
		keyPair: kpl.Bytes(),
	}
}

func hashOf(t *testing.T, kind lock.Kind, data []byte) []byte {
	t.Helper()
	switch kind {
	case lock.KindFactory:
		_, hash, err := lock.ParseFactoryLock(data)
		require.NoError(t, err)
		return hash[:]
	case lock.KindKeySet:
		parsed, err := lock.ParseLock(data)
		require.NoError(t, err)
		return parsed.Hash[:]
	default:
		parsed, err := lock.ParseKeyPairLock(data)
		require.NoError(t, err)
		return parsed.Lock.Hash[:]
	}
}

func TestDescribe(t *testing.T) {
	locks := createLocks(t, []byte("password"))
	tests := map[string]struct {
		data     []byte
		kind     lock.Kind
		contains []string
	}{
		"Factory lock": {
			data:     locks.factory,
			kind:     lock.KindFactory,
			contains: []string{"Kind:        factory", "Length:      112 bytes", "Hash:"},
		},
		"Key set lock": {
			data:     locks.keySet,
			kind:     lock.KindKeySet,
			contains: []string{"Kind:        keyset", "Iterations:  1024", "Payload:"},
		},
		"Key pair lock": {
			data:     locks.keyPair,
			kind:     lock.KindKeyPair,
			contains: []string{"Kind:        keypair", "Agreement:   X25519", "Inner lock:", "  Iterations:  1024"},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			kind, err := detectKind(tc.data)
			require.NoError(t, err)
			assert.Equal(t, tc.kind, kind)

			desc, err := describe(kind, tc.data)
			require.NoError(t, err)
			for _, s := range tc.contains {
				assert.Contains(t, desc, s)
			}
			assert.NotContains(t, desc, "password")
			assert.Contains(t, desc, "Hash:        32 bytes")
			assert.NotContains(t, desc, hex.EncodeToString(hashOf(t, kind, tc.data)), "verifier hashes must not be printed")
		})
	}

	_, err := detectKind([]byte("not a lock"))
	assert.ErrorIs(t, err, lock.ErrMalformedLock)
	_, err = describe(lock.KindKeySet, locks.factory)
	assert.ErrorIs(t, err, lock.ErrMalformedLock)
}

func TestResolver(t *testing.T) {
	password := []byte("shared password")
	locks := createLocks(t, password)
	cache, err := passcache.New()
	require.NoError(t, err)
	defer cache.Destroy()

	var prompts int
	res := &resolver{
		cache:   cache,
		locking: locks.locking,
		keypair: locks.keypair,
		prompt: func() ([]byte, error) {
			prompts++
			return append([]byte{}, password...), nil
		},
	}

	out, err := res.resolve(lock.KindFactory, locks.factory)
	require.NoError(t, err)
	assert.Contains(t, out, "random=true")
	out, err = res.resolve(lock.KindKeySet, locks.keySet)
	require.NoError(t, err)
	assert.Contains(t, out, "key set")
	_, err = res.resolve(lock.KindKeyPair, locks.keyPair)
	require.NoError(t, err)
	assert.Equal(t, 1, prompts, "later locks must be resolved with the cached password")

	res.keypair = nil
	_, err = res.resolve(lock.KindKeyPair, locks.keyPair)
	assert.ErrorIs(t, err, errNeedKeypair)
}

func TestResolver_Prompt(t *testing.T) {
	locks := createLocks(t, []byte("password"))
	cache, err := passcache.New()
	require.NoError(t, err)
	defer cache.Destroy()

	errNoInput := errors.New("no input")
	res := &resolver{
		cache: cache,
		prompt: func() ([]byte, error) {
			return nil, errNoInput
		},
	}
	_, err = res.resolve(lock.KindFactory, locks.factory)
	assert.ErrorIs(t, err, errNoInput)

	res.prompt = func() ([]byte, error) {
		return []byte("wrong"), nil
	}
	_, err = res.resolve(lock.KindFactory, locks.factory)
	assert.ErrorIs(t, err, lock.ErrBadCredentials)
	assert.Equal(t, 0, cache.Passwords())
}
