package secret

import (
	"crypto/subtle"
	"errors"
	"runtime"

	"github.com/awnumar/memguard"
)

var (
	ErrDestroyed = errors.New("secret buffer has been destroyed")
)

// Buffer is an owned region of sensitive bytes that is zero filled by Destroy.
// The zero value is an empty, usable Buffer.
type Buffer struct {
	data      []byte
	destroyed bool
}

// New allocates a zero filled Buffer of the given size.
func New(size int) *Buffer {
	b := &Buffer{data: make([]byte, size)}
	track(b)
	return b
}

// From allocates a Buffer holding a private copy of src.
// The caller remains responsible for src.
func From(src []byte) *Buffer {
	b := New(len(src))
	copy(b.data, src)
	return b
}

// Bytes returns the live contents of the Buffer.
// The returned slice aliases the Buffer and is wiped along with it.
func (b *Buffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

// Copy returns a copy of the contents that the caller owns.
func (b *Buffer) Copy() ([]byte, error) {
	if b == nil || b.destroyed {
		return nil, ErrDestroyed
	}
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out, nil
}

func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Destroy wipes the contents. It's safe to call more than once, and on a nil Buffer.
func (b *Buffer) Destroy() {
	if b == nil || b.destroyed {
		return
	}
	Wipe(b.data)
	b.destroyed = true
}

func (b *Buffer) Destroyed() bool {
	return b == nil || b.destroyed
}

// Wipe overwrites each given slice with zeros.
func Wipe(bufs ...[]byte) {
	for _, buf := range bufs {
		if len(buf) == 0 {
			continue
		}
		memguard.WipeBytes(buf)
		runtime.KeepAlive(buf)
	}
}

// Equal reports whether a and b hold the same bytes.
// The time taken depends on the length of the inputs, not their contents.
func Equal(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// With copies src into a fresh Buffer, passes its contents to fn, and destroys the Buffer once fn returns or panics.
func With(src []byte, fn func(buf []byte) error) error {
	buf := From(src)
	defer buf.Destroy()
	return fn(buf.Bytes())
}
