package secret

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrom_CopiesSource(t *testing.T) {
	src := []byte("a test password")
	buf := From(src)
	assert.Equal(t, src, buf.Bytes())

	buf.Bytes()[0] = 'X'
	assert.Equal(t, byte('a'), src[0], "Source must not be aliased")

	buf.Destroy()
	assert.True(t, buf.Destroyed())
	assert.Equal(t, make([]byte, len(src)), buf.Bytes())
	assert.Equal(t, "a test password", string(src), "Destroy must not touch the source")
}

func TestBuffer_Copy(t *testing.T) {
	buf := From([]byte{1, 2, 3})
	out, err := buf.Copy()
	require.NoError(t, err)
	buf.Destroy()
	assert.Equal(t, []byte{1, 2, 3}, out)

	_, err = buf.Copy()
	assert.ErrorIs(t, err, ErrDestroyed)
}

func TestBuffer_NilSafe(t *testing.T) {
	var buf *Buffer
	assert.Nil(t, buf.Bytes())
	assert.Equal(t, 0, buf.Len())
	assert.True(t, buf.Destroyed())
	buf.Destroy()
}

func TestWipe(t *testing.T) {
	tests := map[string][]byte{
		"Empty":  {},
		"Nil":    nil,
		"Short":  {0x01, 0x02, 0x03},
		"32Byte": []byte("0123456789abcdef0123456789abcdef"),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			Wipe(data)
			for i, b := range data {
				assert.Equal(t, byte(0), b, "byte %d should be zero", i)
			}
		})
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal([]byte("abc"), []byte("abc")))
	assert.False(t, Equal([]byte("abc"), []byte("abd")))
	assert.False(t, Equal([]byte("abc"), []byte("abcd")))
}

func TestWith_WipesOnErrorAndPanic(t *testing.T) {
	a := NewAuditor()
	defer a.Close()

	expected := errors.New("expected")
	err := With([]byte("password"), func(buf []byte) error {
		assert.Equal(t, "password", string(buf))
		return expected
	})
	assert.ErrorIs(t, err, expected)

	assert.Panics(t, func() {
		_ = With([]byte("password"), func([]byte) error {
			panic("boom")
		})
	})

	assert.Equal(t, 2, a.Allocated())
	assert.Equal(t, 0, a.Live())
}

func TestAuditor_DetectsLiveBuffer(t *testing.T) {
	a := NewAuditor()
	defer a.Close()

	buf := From([]byte("still here"))
	assert.Equal(t, 1, a.Live())
	buf.Destroy()
	assert.Equal(t, 0, a.Live())

	a.Close()
	_ = From([]byte("not recorded"))
	assert.Equal(t, 1, a.Allocated())
}
