package keyset

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const aeadTagSize = 16

type cipherID uint8

const (
	cipherAESGCM cipherID = iota + 1
	cipherChaCha20Poly1305
	cipherXChaCha20Poly1305
)

// suite is the fixed layering order, innermost first.
var suite = []cipherID{cipherAESGCM, cipherChaCha20Poly1305, cipherXChaCha20Poly1305}

func (c cipherID) String() string {
	switch c {
	case cipherAESGCM:
		return "AES-GCM"
	case cipherChaCha20Poly1305:
		return "ChaCha20-Poly1305"
	case cipherXChaCha20Poly1305:
		return "XChaCha20-Poly1305"
	default:
		return fmt.Sprintf("cipher(%d)", uint8(c))
	}
}

func (c cipherID) keyLen(spec Spec) int {
	if c == cipherAESGCM {
		return int(spec.KeyLength)
	}
	return chacha20poly1305.KeySize
}

func (c cipherID) nonceSize() int {
	if c == cipherXChaCha20Poly1305 {
		return chacha20poly1305.NonceSizeX
	}
	return chacha20poly1305.NonceSize
}

func (c cipherID) newAEAD(key []byte) (cipher.AEAD, error) {
	switch c {
	case cipherAESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create AES cipher: %w", err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCM: %w", err)
		}
		return gcm, nil
	case cipherChaCha20Poly1305:
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create ChaCha20-Poly1305 cipher: %w", err)
		}
		return aead, nil
	case cipherXChaCha20Poly1305:
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create XChaCha20-Poly1305 cipher: %w", err)
		}
		return aead, nil
	default:
		return nil, fmt.Errorf("%w: unknown cipher %s", ErrInvalidSpec, c)
	}
}
