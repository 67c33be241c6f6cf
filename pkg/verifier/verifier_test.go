package verifier

import (
	"testing"

	"github.com/saylorsolutions/keylock/pkg/factory"
	"github.com/saylorsolutions/keylock/pkg/secret"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testIV = [InitVectorLen]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}

func testEngine(t *testing.T, opts ...EngineOpt) *Engine {
	f, err := factory.NewRandom()
	require.NoError(t, err)
	e, err := NewEngine(f, opts...)
	require.NoError(t, err)
	return e
}

func TestNewEngine(t *testing.T) {
	e := testEngine(t)
	assert.Equal(t, DefaultIterations, e.Iterations())

	e = testEngine(t, WithIterations(16))
	assert.Equal(t, 16, e.Iterations())

	f, err := factory.NewRandom()
	require.NoError(t, err)
	_, err = NewEngine(f, WithIterations(0))
	assert.Error(t, err)
	_, err = NewEngine(nil)
	assert.Error(t, err)

	legacy, err := NewEngine(factory.Catalogue{})
	require.NoError(t, err)
	assert.Equal(t, DefaultIterations, legacy.Iterations())
}

func TestEngine_Derive_Deterministic(t *testing.T) {
	e := testEngine(t)
	a, err := e.Derive(testIV, []byte("correct horse"))
	require.NoError(t, err)
	defer a.Destroy()
	b, err := e.Derive(testIV, []byte("correct horse"))
	require.NoError(t, err)
	defer b.Destroy()

	assert.Equal(t, a.Hash, b.Hash)
	assert.Equal(t, a.Secret(), b.Secret())
	assert.Len(t, a.Secret(), HashLen)
	assert.NotEqual(t, a.Hash[:], a.Secret(), "hash and secret must be independent")
}

func TestEngine_Derive_Differs(t *testing.T) {
	base := testEngine(t, WithIterations(64))
	ref, err := base.Derive(testIV, []byte("password"))
	require.NoError(t, err)
	defer ref.Destroy()

	otherIV := testIV
	otherIV[15] ^= 1

	tests := map[string]struct {
		engine   *Engine
		iv       [InitVectorLen]byte
		password string
	}{
		"Password":        {engine: base, iv: testIV, password: "passworD"},
		"Init vector":     {engine: base, iv: otherIV, password: "password"},
		"Iterations":      {engine: testEngine(t, WithIterations(65)), iv: testIV, password: "password"},
		"Personalization": {engine: testEngine(t, WithIterations(64), WithPersonalization([]byte("p"))), iv: testIV, password: "password"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			res, err := tc.engine.Derive(tc.iv, []byte(tc.password))
			require.NoError(t, err)
			defer res.Destroy()
			assert.NotEqual(t, ref.Hash, res.Hash)
		})
	}
}

func TestEngine_Derive_EmptyPassword(t *testing.T) {
	e := testEngine(t)
	_, err := e.Derive(testIV, nil)
	assert.ErrorIs(t, err, ErrEmptyPassword)
}

func TestEngine_Check(t *testing.T) {
	e := testEngine(t, WithIterations(32))
	res, err := e.Derive(testIV, []byte("secret"))
	require.NoError(t, err)
	stored := res.Hash
	res.Destroy()

	ok, err := e.Check(testIV, stored[:], []byte("secret"))
	require.NoError(t, err)
	ok.Destroy()

	_, err = e.Check(testIV, stored[:], []byte("Secret"))
	assert.ErrorIs(t, err, ErrBadCredentials)
	_, err = e.Check(testIV, stored[:HashLen-1], []byte("secret"))
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestEngine_Derive_Wipes(t *testing.T) {
	e := testEngine(t, WithIterations(8))
	audit := secret.NewAuditor()
	defer audit.Close()

	res, err := e.Derive(testIV, []byte("secret"))
	require.NoError(t, err)
	assert.Equal(t, 1, audit.Live(), "only the derived secret should survive")
	res.Destroy()
	assert.Equal(t, 0, audit.Live())
	assert.Equal(t, 2, audit.Allocated())
}

func TestStep(t *testing.T) {
	f, err := factory.NewRandom()
	require.NoError(t, err)
	m, err := newMACs(f, []byte("password"))
	require.NoError(t, err)

	st := InitialState(testIV)
	assert.Equal(t, testIV[:], st.Prime[:InitVectorLen])
	assert.Equal(t, make([]byte, HashLen-InitVectorLen), st.Prime[InitVectorLen:])
	before := st

	next := step(st, m)
	assert.Equal(t, before, st, "step must not modify its input")
	assert.Equal(t, next, step(st, m), "step must be deterministic")

	// The first fold into a zero accumulator is the rotated output.
	assert.Equal(t, fold(Block{}, next.Prime), next.AccPrime)
	assert.Equal(t, fold(Block{}, next.Secret), next.AccSecret)
	assert.NotEqual(t, next.Prime, next.Secondary)
	assert.NotEqual(t, next.Secondary, next.Tertiary)
}

func TestFold(t *testing.T) {
	var a, b Block
	for i := range a {
		a[i] = byte(i * 7)
		b[i] = byte(255 - i)
	}
	assert.Equal(t, fold(fold(Block{}, a), b), fold(fold(Block{}, b), a), "fold must be order independent")

	var one Block
	one[1] = 0x01
	assert.Equal(t, byte(0x02), fold(Block{}, one)[1], "byte 1 rotates by one bit")
	assert.Equal(t, Block{}, fold(fold(Block{}, a), a), "folding twice cancels")
}

func TestMask(t *testing.T) {
	seed := []byte("a 32 byte seed for masking tests")
	key := []byte("another 32 byte key for masking!")

	masked, err := Mask(seed, key)
	require.NoError(t, err)
	assert.NotEqual(t, seed, masked)
	unmasked, err := Mask(masked, key)
	require.NoError(t, err)
	assert.Equal(t, seed, unmasked)

	short, err := Mask([]byte{1, 2, 3}, []byte{1})
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 3, 2}, short)

	_, err = Mask(seed, nil)
	assert.ErrorIs(t, err, ErrMaskKey)
}

func TestResult_Masks(t *testing.T) {
	e := testEngine(t, WithIterations(8))
	res, err := e.Derive(testIV, []byte("password"))
	require.NoError(t, err)

	first, second, err := res.Masks(e.prims)
	require.NoError(t, err)
	defer first.Destroy()
	defer second.Destroy()
	assert.Equal(t, res.Secret(), first.Bytes())
	assert.NotEqual(t, first.Bytes(), second.Bytes())
	assert.Len(t, second.Bytes(), HashLen)

	res.Destroy()
	_, _, err = res.Masks(e.prims)
	assert.ErrorIs(t, err, secret.ErrDestroyed)
}

func TestInitVectorFrom(t *testing.T) {
	iv, err := InitVectorFrom(testIV[:])
	require.NoError(t, err)
	assert.Equal(t, testIV, iv)
	_, err = InitVectorFrom(testIV[:15])
	assert.ErrorIs(t, err, ErrInitVector)
}
