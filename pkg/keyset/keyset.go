/*
Package keyset provides the KeySet: a bundle of independently keyed AEAD ciphers that seal a payload in layers.

# How it works:

A KeySet is shaped by a Spec, which picks the AES key length and how many of the three ciphers (AES-GCM, ChaCha20-Poly1305, XChaCha20-Poly1305) are layered.
Encrypt seals the payload with each cipher in order, prefixing each layer with its own random nonce.
Decrypt peels the layers in reverse, and any authentication failure is reported as ErrAuthFailed.

A KeySet may be generated randomly, or derived deterministically from secret material with HKDF.
It can also seal another KeySet, or a factory.Factory's seeds, so that they can be recovered later by the same KeySet.
*/
package keyset

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/saylorsolutions/keylock/pkg/factory"
	"github.com/saylorsolutions/keylock/pkg/secret"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
	"golang.org/x/crypto/hkdf"
)

var (
	ErrAuthFailed = errors.New("authentication failed - data may be corrupted or tampered")
	ErrDestroyed  = errors.New("key set has been destroyed")
)

// KeySet is a set of independently keyed ciphers.
type KeySet struct {
	spec      Spec
	keys      [][]byte
	aeads     []cipher.AEAD
	destroyed bool
}

// Generate creates a KeySet with keys read from rng.
// If rng is nil, crypto/rand is used.
func Generate(spec Spec, rng io.Reader) (*KeySet, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.Reader
	}
	keys, err := readKeys(spec, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key set: %w", err)
	}
	return newKeySet(spec, keys)
}

// Derive deterministically creates a KeySet from secret material using HKDF-SHA256.
// The same (spec, material, salt, info) always produces the same KeySet.
func Derive(spec Spec, material, salt, info []byte) (*KeySet, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if len(material) == 0 {
		return nil, errors.New("cannot derive a key set from empty material")
	}
	context := append(append([]byte{}, info...), spec.Identity()...)
	keys, err := readKeys(spec, hkdf.New(sha256.New, material, salt, context))
	if err != nil {
		return nil, fmt.Errorf("failed to derive key set: %w", err)
	}
	return newKeySet(spec, keys)
}

func readKeys(spec Spec, source io.Reader) ([][]byte, error) {
	ids := spec.cipherSuite()
	keys := make([][]byte, len(ids))
	for i, id := range ids {
		keys[i] = make([]byte, id.keyLen(spec))
		if _, err := io.ReadFull(source, keys[i]); err != nil {
			wipeKeys(keys)
			return nil, err
		}
	}
	return keys, nil
}

// newKeySet takes ownership of keys.
func newKeySet(spec Spec, keys [][]byte) (*KeySet, error) {
	ids := spec.cipherSuite()
	if len(keys) != len(ids) {
		wipeKeys(keys)
		return nil, fmt.Errorf("%w: expected %d keys, got %d", ErrInvalidSpec, len(ids), len(keys))
	}
	ks := &KeySet{
		spec:  spec,
		keys:  keys,
		aeads: make([]cipher.AEAD, len(ids)),
	}
	for i, id := range ids {
		if len(keys[i]) != id.keyLen(spec) {
			ks.Destroy()
			return nil, fmt.Errorf("%w: %s key must be %d bytes, got %d", ErrInvalidSpec, id, id.keyLen(spec), len(keys[i]))
		}
		aead, err := id.newAEAD(keys[i])
		if err != nil {
			ks.Destroy()
			return nil, err
		}
		ks.aeads[i] = aead
	}
	return ks, nil
}

func wipeKeys(keys [][]byte) {
	for _, key := range keys {
		secret.Wipe(key)
	}
}

func (k *KeySet) Spec() Spec {
	return k.spec
}

func layerData(spec Spec, layer int) []byte {
	return append([]byte{byte(layer)}, spec.Identity()...)
}

// Encrypt seals plaintext with every cipher in the KeySet.
func (k *KeySet) Encrypt(plaintext []byte) ([]byte, error) {
	if k.destroyed {
		return nil, ErrDestroyed
	}
	data := plaintext
	for i, aead := range k.aeads {
		nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(data)+aead.Overhead())
		if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
			return nil, fmt.Errorf("failed to generate nonce: %w", err)
		}
		data = aead.Seal(nonce, nonce, data, layerData(k.spec, i))
	}
	return data, nil
}

// Decrypt opens a payload sealed by Encrypt with the same KeySet.
// The returned plaintext is owned by the caller.
func (k *KeySet) Decrypt(ciphertext []byte) ([]byte, error) {
	if k.destroyed {
		return nil, ErrDestroyed
	}
	if len(ciphertext) < k.spec.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrAuthFailed)
	}
	data := ciphertext
	for i := len(k.aeads) - 1; i >= 0; i-- {
		aead := k.aeads[i]
		nonce, sealed := data[:aead.NonceSize()], data[aead.NonceSize():]
		opened, err := aead.Open(nil, nonce, sealed, layerData(k.spec, i))
		if err != nil {
			if i < len(k.aeads)-1 {
				secret.Wipe(data)
			}
			return nil, ErrAuthFailed
		}
		if i < len(k.aeads)-1 {
			secret.Wipe(data)
		}
		data = opened
	}
	return data, nil
}

// Equal reports whether both KeySets have the same shape and keys.
func (k *KeySet) Equal(other *KeySet) bool {
	if k == nil || other == nil {
		return k == other
	}
	if k.spec != other.spec || len(k.keys) != len(other.keys) {
		return false
	}
	same := true
	for i := range k.keys {
		same = secret.Equal(k.keys[i], other.keys[i]) && same
	}
	return same
}

// Destroy wipes all key material. The KeySet can't be used afterward.
func (k *KeySet) Destroy() {
	if k == nil {
		return
	}
	wipeKeys(k.keys)
	k.aeads = nil
	k.destroyed = true
}

// MarshalBinary encodes the KeySet, including its raw keys.
// The result is sensitive and should be wiped by the caller.
//
//	KeySet ::= SEQUENCE { spec KeySetSpec, keys SEQUENCE OF OCTET STRING }
func (k *KeySet) MarshalBinary() ([]byte, error) {
	if k.destroyed {
		return nil, ErrDestroyed
	}
	b := cryptobyte.NewBuilder(make([]byte, 0, k.spec.MarshalledLen()))
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		k.spec.AddASN1(b)
		b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			for _, key := range k.keys {
				b.AddASN1OctetString(key)
			}
		})
	})
	return b.Bytes()
}

// Unmarshal decodes a KeySet produced by MarshalBinary.
// The data isn't retained, so the caller may wipe it afterward.
func Unmarshal(data []byte) (*KeySet, error) {
	var (
		in      = cryptobyte.String(data)
		seq     cryptobyte.String
		keySeq  cryptobyte.String
		spec    Spec
		keys    [][]byte
		readErr error
	)
	if !in.ReadASN1(&seq, asn1.SEQUENCE) || !in.Empty() {
		return nil, fmt.Errorf("%w: expected a single key set sequence", ErrMalformed)
	}
	spec, readErr = ReadSpecASN1(&seq)
	if readErr != nil {
		return nil, readErr
	}
	if !seq.ReadASN1(&keySeq, asn1.SEQUENCE) {
		return nil, fmt.Errorf("%w: expected key sequence", ErrMalformed)
	}
	if !seq.Empty() {
		return nil, fmt.Errorf("%w: in key set", ErrTrailingData)
	}
	for !keySeq.Empty() {
		var key cryptobyte.String
		if !keySeq.ReadASN1(&key, asn1.OCTET_STRING) {
			wipeKeys(keys)
			return nil, fmt.Errorf("%w: expected key octet string", ErrMalformed)
		}
		keys = append(keys, append([]byte{}, key...))
	}
	return newKeySet(spec, keys)
}

// SecureKeySet seals target with this KeySet.
func (k *KeySet) SecureKeySet(target *KeySet) ([]byte, error) {
	plain, err := target.MarshalBinary()
	if err != nil {
		return nil, err
	}
	defer secret.Wipe(plain)
	return k.Encrypt(plain)
}

// DeriveKeySet recovers a KeySet sealed with SecureKeySet.
func (k *KeySet) DeriveKeySet(sealed []byte) (*KeySet, error) {
	plain, err := k.Decrypt(sealed)
	if err != nil {
		return nil, err
	}
	defer secret.Wipe(plain)
	return Unmarshal(plain)
}

// SecureFactory seals the seeds of f with this KeySet.
//
//	Seeds ::= SEQUENCE { general OCTET STRING, keySet OCTET STRING }
func (k *KeySet) SecureFactory(f *factory.Factory) ([]byte, error) {
	seeds, err := f.Seeds()
	if err != nil {
		return nil, err
	}
	defer seeds.Wipe()
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1OctetString(seeds.General)
		b.AddASN1OctetString(seeds.KeySet)
	})
	plain, err := b.Bytes()
	if err != nil {
		return nil, err
	}
	defer secret.Wipe(plain)
	return k.Encrypt(plain)
}

// DeriveFactory recovers a random factory.Factory sealed with SecureFactory.
func (k *KeySet) DeriveFactory(sealed []byte) (*factory.Factory, error) {
	plain, err := k.Decrypt(sealed)
	if err != nil {
		return nil, err
	}
	defer secret.Wipe(plain)
	var (
		in      = cryptobyte.String(plain)
		seq     cryptobyte.String
		general cryptobyte.String
		keySet  cryptobyte.String
	)
	if !in.ReadASN1(&seq, asn1.SEQUENCE) || !in.Empty() {
		return nil, fmt.Errorf("%w: expected seed sequence", ErrMalformed)
	}
	if !seq.ReadASN1(&general, asn1.OCTET_STRING) || !seq.ReadASN1(&keySet, asn1.OCTET_STRING) {
		return nil, fmt.Errorf("%w: expected seed octet strings", ErrMalformed)
	}
	if !seq.Empty() {
		return nil, fmt.Errorf("%w: in seed sequence", ErrTrailingData)
	}
	return factory.FromSeeds(general, keySet)
}
