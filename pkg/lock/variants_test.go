package lock

import (
	"encoding/hex"
	"testing"

	"github.com/saylorsolutions/keylock/pkg/factory"
	"github.com/saylorsolutions/keylock/pkg/keyset"
	"github.com/saylorsolutions/keylock/pkg/pki"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecipe(t *testing.T) {
	f := randomFactory(t)
	spec := fastSpec(t)
	password := []byte("recipe password")

	locking, err := ForLocking(f, spec)
	require.NoError(t, err)
	_, err = locking.Payload()
	assert.ErrorIs(t, err, ErrInvalidOperation)
	_, err = locking.BuildLockBytes(len(password), []byte("payload"))
	assert.ErrorIs(t, err, ErrInvalidOperation, "must derive first")

	lockKS, err := locking.DeriveKeySet(password)
	require.NoError(t, err)
	payload, err := lockKS.Encrypt([]byte("the payload"))
	require.NoError(t, err)
	_, err = locking.BuildLockBytes(len(password)+1, payload)
	assert.ErrorIs(t, err, ErrInvalidOperation)
	for _, short := range [][]byte{nil, []byte("short opaque payload"), make([]byte, spec.KeySet.Overhead())} {
		_, err = locking.BuildLockBytes(len(password), short)
		assert.ErrorIs(t, err, ErrInvalidOperation, "a payload the parser would reject must not be built")
	}
	minimal, err := locking.BuildLockBytes(len(password), make([]byte, spec.KeySet.Overhead()+1))
	require.NoError(t, err)
	_, err = ForUnlocking(f, len(password), minimal)
	assert.NoError(t, err, "every built lock must parse")
	data, err := locking.BuildLockBytes(len(password), payload)
	require.NoError(t, err)
	assert.Len(t, data, KeySetLockLength(spec, len(payload)))

	unlocking, err := ForUnlocking(f, len(password), data)
	require.NoError(t, err)
	assert.Equal(t, spec, unlocking.Spec())
	assert.Equal(t, locking.InitVector(), unlocking.InitVector())
	unlockKS, err := unlocking.DeriveKeySet(password)
	require.NoError(t, err)
	assert.True(t, lockKS.Equal(unlockKS), "locking and unlocking must derive the same key set")

	got, err := unlocking.Payload()
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	_, err = unlocking.BuildLockBytes(len(password), payload)
	assert.ErrorIs(t, err, ErrInvalidOperation)

	wrong, err := ForUnlocking(f, len(password), data)
	require.NoError(t, err)
	_, err = wrong.DeriveKeySet([]byte("recipe passworD"))
	assert.ErrorIs(t, err, ErrBadCredentials)
	_, err = wrong.DeriveKeySet([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidOperation)

	_, err = ForUnlocking(f, 0, data)
	assert.ErrorIs(t, err, ErrEmptyPassword)
	_, err = ForLocking(nil, spec)
	assert.ErrorIs(t, err, ErrInvalidOperation)
	_, err = ForLocking(f, Spec{})
	assert.ErrorIs(t, err, ErrInvalidSpec)
}

func TestFactoryLock(t *testing.T) {
	f := randomFactory(t)
	password := []byte("factory password")

	l, err := CreateFactoryLock(f, password)
	require.NoError(t, err)
	assert.Equal(t, KindFactory, l.Kind())
	assert.Equal(t, FactoryLockLength, l.Len())
	assert.Equal(t, 16+3*factory.SeedLen, len(l.Bytes()))
	assert.Same(t, f, l.Locked())

	data := l.Bytes()
	orig := append([]byte{}, data...)
	for _, wrong := range []string{"factory passworD", "x", "factory password "} {
		_, err := ResolveFactoryLock(data, []byte(wrong))
		assert.ErrorIs(t, err, ErrBadCredentials)
	}
	assert.Equal(t, orig, data, "failed attempts must not modify the lock")

	resolved, err := ResolveFactoryLock(data, password)
	require.NoError(t, err)
	assert.True(t, f.Equal(resolved.Locked()))
	assert.True(t, resolved.Locked().IsRandom())
	assert.NotSame(t, f, resolved.Locked())

	iv, hash, err := ParseFactoryLock(data)
	require.NoError(t, err)
	assert.Equal(t, data[:InitVectorLen], iv[:])
	assert.Equal(t, data[InitVectorLen:InitVectorLen+HashLen], hash[:])

	again, err := CreateFactoryLock(f, password)
	require.NoError(t, err)
	assert.NotEqual(t, data, again.Bytes(), "each lock must use a fresh init vector")
}

// A FactoryLock written with init vector 00..0f, the password below, and seeds 40..5f and a0..bf.
const knownFactoryLock = "000102030405060708090a0b0c0d0e0f" +
	"4a74058369cdcb08fd3a5e14071a8f948a58a9891cd96fffd4cb83baf058bfdc" +
	"0f0e4b2e480eaca035b9153d299aed165bf90cfc9675697bfaa99caee6aaf577" +
	"7bf7affcbe91306a776229b6a123e6bf45c7106cde618cf2de9dacd0bf992f7b"

func TestFactoryLock_KnownAnswer(t *testing.T) {
	data, err := hex.DecodeString(knownFactoryLock)
	require.NoError(t, err)
	require.Len(t, data, FactoryLockLength)

	_, err = ResolveFactoryLock(data, []byte("correct horse battery stapler"))
	assert.ErrorIs(t, err, ErrBadCredentials)

	resolved, err := ResolveFactoryLock(data, []byte("correct horse battery staple"))
	require.NoError(t, err)
	seeds, err := resolved.Locked().Seeds()
	require.NoError(t, err)
	defer seeds.Wipe()

	general := make([]byte, factory.SeedLen)
	keySet := make([]byte, factory.SeedLen)
	for i := range general {
		general[i] = byte(0x40 + i)
		keySet[i] = byte(0xa0 + i)
	}
	assert.Equal(t, general, seeds.General)
	assert.Equal(t, keySet, seeds.KeySet)
	assert.True(t, resolved.Locked().IsRandom())
}

func TestFactoryLockLayout_Wipe(t *testing.T) {
	data, err := hex.DecodeString(knownFactoryLock)
	require.NoError(t, err)
	layout, err := readFactoryLock(data)
	require.NoError(t, err)
	assert.Equal(t, data[InitVectorLen+HashLen:InitVectorLen+HashLen+factory.SeedLen], layout.general[:], "reads must land in the layout arrays")
	assert.Equal(t, data[InitVectorLen+HashLen+factory.SeedLen:], layout.keySet[:])

	general, keySet := layout.general[:], layout.keySet[:]
	layout.wipe()
	assert.Equal(t, make([]byte, factory.SeedLen), general, "wiping the layout must clear what was read")
	assert.Equal(t, make([]byte, factory.SeedLen), keySet)
}

func TestFactoryLock_Rejects(t *testing.T) {
	f := randomFactory(t)
	l, err := CreateFactoryLock(f, []byte("password"))
	require.NoError(t, err)
	data := l.Bytes()

	tests := map[string]struct {
		data     []byte
		password []byte
	}{
		"Truncated":         {data: data[:len(data)-1], password: []byte("password")},
		"Extended":          {data: append(append([]byte{}, data...), 0), password: []byte("password")},
		"Truncated no pass": {data: data[:InitVectorLen], password: nil},
		"Empty":             {data: nil, password: []byte("password")},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ResolveFactoryLock(tc.data, tc.password)
			assert.ErrorIs(t, err, ErrMalformedLock)
		})
	}

	phrase, err := factory.FromPhrase([]byte("a phrase"))
	require.NoError(t, err)
	_, err = CreateFactoryLock(phrase, []byte("password"))
	assert.ErrorIs(t, err, ErrInvalidOperation)
	assert.ErrorIs(t, err, factory.ErrNotRandom)

	_, err = CreateFactoryLock(f, nil)
	assert.ErrorIs(t, err, ErrEmptyPassword)
}

func TestKeySetLock(t *testing.T) {
	tests := map[string]struct {
		spec   Spec
		target keyset.Spec
	}{
		"Default spec": {
			spec:   fastSpec(t),
			target: keyset.DefaultSpec(),
		},
		"Small spec, large target": {
			spec:   fastSpec(t, WithKeySetSpec(keyset.Spec{KeyLength: keyset.KeyLength128, Ciphers: 1})),
			target: keyset.DefaultSpec(),
		},
		"Large spec, small target": {
			spec:   fastSpec(t, WithIterations(MinIterations*2)),
			target: keyset.Spec{KeyLength: keyset.KeyLength128, Ciphers: 1},
		},
	}

	locking := randomFactory(t)
	password := []byte("key set password")
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			target := randomKeySet(t, tc.target)
			l, err := CreateKeySetLock(locking, target, tc.spec, password)
			require.NoError(t, err)
			assert.Equal(t, KindKeySet, l.Kind())
			assert.Same(t, target, l.Locked())
			assert.Equal(t, CreatedKeySetLength(tc.spec, tc.target), l.Len())

			data := l.Bytes()
			orig := append([]byte{}, data...)
			_, err = ResolveKeySetLock(locking, data, []byte("key set passworD"))
			assert.ErrorIs(t, err, ErrBadCredentials)
			assert.Equal(t, orig, data)

			resolved, err := ResolveKeySetLock(locking, data, password)
			require.NoError(t, err)
			assert.True(t, target.Equal(resolved.Locked()))

			parsed, err := ParseLock(data)
			require.NoError(t, err)
			assert.Equal(t, tc.spec, parsed.Spec)
		})
	}
}

func TestKeySetLock_Factories(t *testing.T) {
	spec := fastSpec(t)
	target := randomKeySet(t, keyset.DefaultSpec())
	password := []byte("password")

	l, err := CreateKeySetLock(nil, target, spec, password)
	require.NoError(t, err)
	def, err := DefaultLockingFactory()
	require.NoError(t, err)

	resolved, err := ResolveKeySetLock(def, l.Bytes(), password)
	require.NoError(t, err, "a nil locking factory must use the default")
	assert.True(t, target.Equal(resolved.Locked()))

	_, err = ResolveKeySetLock(randomFactory(t), l.Bytes(), password)
	assert.ErrorIs(t, err, ErrBadCredentials, "a different locking factory must not resolve")

	_, err = CreateKeySetLock(nil, nil, spec, password)
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func TestKeySetLock_Tampered(t *testing.T) {
	locking := randomFactory(t)
	password := []byte("password")
	l, err := CreateKeySetLock(locking, randomKeySet(t, keyset.DefaultSpec()), fastSpec(t), password)
	require.NoError(t, err)

	parsed, err := ParseLock(l.Bytes())
	require.NoError(t, err)
	parsed.Payload[len(parsed.Payload)-1] ^= 0x01
	tampered, err := parsed.Marshal()
	require.NoError(t, err)
	_, err = ResolveKeySetLock(locking, tampered, password)
	assert.ErrorIs(t, err, ErrMalformedLock)

	parsed, err = ParseLock(l.Bytes())
	require.NoError(t, err)
	parsed.Hash[0] ^= 0x01
	tampered, err = parsed.Marshal()
	require.NoError(t, err)
	_, err = ResolveKeySetLock(locking, tampered, password)
	assert.ErrorIs(t, err, ErrBadCredentials)

	_, err = ResolveKeySetLock(locking, l.Bytes()[1:], nil)
	assert.ErrorIs(t, err, ErrMalformedLock, "structure must be checked before the password")
}

var keyPairAlgs = map[string]pki.Algorithm{
	"ED25519":     pki.ED25519,
	"ECDSA P-256": pki.ECDSAP256,
	"ECDSA P-521": pki.ECDSAP521,
	"RSA":         pki.RSA,
}

func genKeypair(t *testing.T, alg pki.Algorithm) pki.Keypair {
	t.Helper()
	kp, err := pki.Generate(alg, pki.SetRSABits(pki.MinRSABits))
	require.NoError(t, err)
	return kp
}

func TestKeyPairLock(t *testing.T) {
	spec := fastSpec(t)
	locking := randomFactory(t)
	password := []byte("key pair password")

	for name, alg := range keyPairAlgs {
		t.Run(name, func(t *testing.T) {
			kp := genKeypair(t, alg)
			other := genKeypair(t, alg)
			pub, err := pki.PublicOnly(kp.Public())
			require.NoError(t, err)

			l, err := CreateKeyPairLock(locking, spec, pub, password)
			require.NoError(t, err)
			assert.Equal(t, KindKeyPair, l.Kind())
			expected, err := CreatedKeyPairLength(spec, kp.Public())
			require.NoError(t, err)
			assert.Equal(t, expected, l.Len())

			data := l.Bytes()
			orig := append([]byte{}, data...)

			_, err = ResolveKeyPairLock(locking, data, other, password)
			assert.ErrorIs(t, err, ErrBadCredentials, "wrong key pair")
			_, err = ResolveKeyPairLock(locking, data, kp, []byte("key pair passworD"))
			assert.ErrorIs(t, err, ErrBadCredentials, "wrong password")
			_, err = ResolveKeyPairLock(locking, data, pub, password)
			assert.ErrorIs(t, err, ErrInvalidOperation, "no private key")
			assert.Equal(t, orig, data)

			resolved, err := ResolveKeyPairLock(locking, data, kp, password)
			require.NoError(t, err)
			assert.True(t, l.Locked().Equal(resolved.Locked()))
			assert.Equal(t, spec.KeySet, resolved.Locked().Spec())
		})
	}
}

func TestKeyPairLock_Rejects(t *testing.T) {
	spec := fastSpec(t)
	kp := genKeypair(t, pki.ED25519)
	password := []byte("password")

	l, err := CreateKeyPairLock(nil, spec, kp, password)
	require.NoError(t, err)
	resolved, err := ResolveKeyPairLock(nil, l.Bytes(), kp, password)
	require.NoError(t, err)
	assert.True(t, l.Locked().Equal(resolved.Locked()))

	_, err = ResolveKeyPairLock(nil, l.Bytes(), genKeypair(t, pki.ECDSAP256), password)
	assert.ErrorIs(t, err, ErrBadCredentials, "a key pair of another family is the wrong key pair")

	_, err = ResolveKeyPairLock(nil, l.Bytes()[:l.Len()-1], kp, password)
	assert.ErrorIs(t, err, ErrMalformedLock)

	_, err = CreateKeyPairLock(nil, spec, nil, password)
	assert.ErrorIs(t, err, ErrInvalidOperation)
	_, err = CreateKeyPairLock(nil, Spec{}, kp, password)
	assert.ErrorIs(t, err, ErrInvalidSpec)
}
