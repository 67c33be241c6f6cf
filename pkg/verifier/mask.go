package verifier

import (
	"errors"
	"fmt"

	"github.com/saylorsolutions/keylock/pkg/factory"
	"github.com/saylorsolutions/keylock/pkg/secret"
)

var (
	ErrMaskKey = errors.New("cannot mask with an empty key")

	maskLabel = []byte("keylock-mask")
)

// screen applies a key to a byte stream with XOR, wrapping around to the start of the key when it runs out.
type screen struct {
	key []byte
	cur int
}

func newScreen(key []byte) (*screen, error) {
	if len(key) == 0 {
		return nil, ErrMaskKey
	}
	return &screen{key: key}, nil
}

func (s *screen) apply(dst, src []byte) {
	for i := range src {
		dst[i] = src[i] ^ s.key[s.cur]
		s.cur = (s.cur + 1) % len(s.key)
	}
}

// Mask XORs src with key into a new slice.
// Masking is symmetric, so the same call with the same key unmasks.
func Mask(src, key []byte) ([]byte, error) {
	scr, err := newScreen(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(src))
	scr.apply(out, src)
	return out, nil
}

// Masks returns the two seed masks for this Result.
// The first is the derived secret itself, the second is a digest of it, so that the two seeds never share a mask.
// Both masks are owned by the caller and should be destroyed after use.
func (r *Result) Masks(p Primitives) (first, second *secret.Buffer, err error) {
	if r.secret.Destroyed() {
		return nil, nil, fmt.Errorf("derived secret: %w", secret.ErrDestroyed)
	}
	digest, err := p.NewDigest(factory.DigestBLAKE2s256)
	if err != nil {
		return nil, nil, err
	}
	digest.Write(maskLabel)
	digest.Write(r.secret.Bytes())

	first = secret.From(r.secret.Bytes())
	second = secret.New(HashLen)
	digest.Sum(second.Bytes()[:0])
	return first, second, nil
}
