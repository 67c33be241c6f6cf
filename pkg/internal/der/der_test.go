package der

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

func TestUintLen(t *testing.T) {
	values := []uint64{0, 1, 0x7f, 0x80, 0xff, 0x100, 4096, 0x7fff, 0x8000, 1 << 20, 1<<32 - 1, 1 << 63}
	for _, v := range values {
		var b cryptobyte.Builder
		b.AddASN1Uint64(v)
		data, err := b.Bytes()
		require.NoError(t, err)
		assert.Equal(t, len(data), UintLen(v), "value %d", v)
	}
}

func TestLen(t *testing.T) {
	sizes := []int{0, 1, 0x7f, 0x80, 0xff, 0x100, 0xffff, 0x10000}
	for _, size := range sizes {
		var b cryptobyte.Builder
		b.AddASN1OctetString(make([]byte, size))
		data, err := b.Bytes()
		require.NoError(t, err)
		assert.Equal(t, len(data), Len(size), "content size %d", size)
	}

	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1OctetString(make([]byte, 200))
	})
	data, err := b.Bytes()
	require.NoError(t, err)
	assert.Equal(t, len(data), Len(Len(200)))
}
