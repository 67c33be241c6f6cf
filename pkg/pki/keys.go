package pki

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/ed25519"
)

const (
	DefaultRSABits = 4096
	MinRSABits     = 2048
)

var (
	ErrNoPrivateKey = errors.New("key pair has no private key")
	errMismatch     = errors.New("private and public keys are not associated")
)

// NotSupported is an error indicating that the operation is not supported.
type NotSupported string

func (n NotSupported) Error() string {
	return string(n)
}

// Keypair is an abstraction for a public/private key pair.
// Both embedded interfaces expose a Public method that may be used to get the public key.
//
// A Keypair returned from PublicOnly carries no private key, and may only be used for operations that need the public half.
type Keypair interface {
	crypto.Signer
}

// Algorithm identifies the kind of key pair to generate.
type Algorithm int

const (
	RSA Algorithm = iota + 1
	ECDSAP256
	ECDSAP384
	ECDSAP521
	ED25519
)

func (a Algorithm) String() string {
	switch a {
	case RSA:
		return "RSA"
	case ECDSAP256:
		return "ECDSA P-256"
	case ECDSAP384:
		return "ECDSA P-384"
	case ECDSAP521:
		return "ECDSA P-521"
	case ED25519:
		return "ED25519"
	default:
		return fmt.Sprintf("Algorithm(%d)", int(a))
	}
}

type genConfig struct {
	rsaBits int
	rng     io.Reader
}

type GenerateOpt = func(*genConfig) error

// SetRSABits overrides DefaultRSABits when generating an RSA key pair.
func SetRSABits(bits int) GenerateOpt {
	return func(conf *genConfig) error {
		if bits < MinRSABits {
			return fmt.Errorf("RSA key size must be at least %d bits", MinRSABits)
		}
		conf.rsaBits = bits
		return nil
	}
}

// Generate will generate a key pair for the given algorithm.
// Every generated key pair is validated before it's returned.
func Generate(alg Algorithm, opts ...GenerateOpt) (Keypair, error) {
	conf := &genConfig{
		rsaBits: DefaultRSABits,
		rng:     rand.Reader,
	}
	for _, opt := range opts {
		if err := opt(conf); err != nil {
			return nil, err
		}
	}
	switch alg {
	case RSA:
		return generateRSA(conf)
	case ECDSAP256:
		return generateECDSA(conf, elliptic.P256())
	case ECDSAP384:
		return generateECDSA(conf, elliptic.P384())
	case ECDSAP521:
		return generateECDSA(conf, elliptic.P521())
	case ED25519:
		return generateED25519(conf)
	default:
		return nil, NotSupported(fmt.Sprintf("unsupported key pair algorithm: %s", alg))
	}
}

func generateRSA(conf *genConfig) (Keypair, error) {
	priv, err := rsa.GenerateKey(conf.rng, conf.rsaBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key pair: %w", err)
	}
	priv.Precompute()
	return validated(priv)
}

func generateECDSA(conf *genConfig, curve elliptic.Curve) (Keypair, error) {
	priv, err := ecdsa.GenerateKey(curve, conf.rng)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ECDSA key pair with curve '%s': %w", curve.Params().Name, err)
	}
	return validated(priv)
}

func generateED25519(conf *genConfig) (Keypair, error) {
	_, priv, err := ed25519.GenerateKey(conf.rng)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ED25519 key pair: %w", err)
	}
	return validated(priv)
}

func validated(kp Keypair) (Keypair, error) {
	if err := ValidateKeypair(kp); err != nil {
		return nil, err
	}
	return kp, nil
}

// ValidateKeypair is used to verify that the private and public keys are associated with each other.
// A test message is signed with the private key, and the signature is checked with the public key.
func ValidateKeypair(pair Keypair) error {
	if _, err := PrivateKeyOf(pair); err != nil {
		return err
	}
	msg := make([]byte, 64)
	if _, err := rand.Read(msg); err != nil {
		return fmt.Errorf("failed to generate random data for signature verification: %w", err)
	}
	digest := sha256.Sum256(msg)

	switch pub := pair.Public().(type) {
	case *rsa.PublicKey:
		sig, err := pair.Sign(rand.Reader, digest[:], crypto.SHA256)
		if err != nil {
			return fmt.Errorf("failed to sign data for verification: %w", err)
		}
		if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
			return fmt.Errorf("%w: %w", errMismatch, err)
		}
	case *ecdsa.PublicKey:
		sig, err := pair.Sign(rand.Reader, digest[:], crypto.SHA256)
		if err != nil {
			return fmt.Errorf("failed to sign data for verification: %w", err)
		}
		if !ecdsa.VerifyASN1(pub, digest[:], sig) {
			return errMismatch
		}
	case ed25519.PublicKey:
		// Ed25519 signs the message itself.
		sig, err := pair.Sign(rand.Reader, msg, crypto.Hash(0))
		if err != nil {
			return fmt.Errorf("failed to sign data for verification: %w", err)
		}
		if !ed25519.Verify(pub, msg, sig) {
			return errMismatch
		}
	default:
		return NotSupported(fmt.Sprintf("unsupported public key type: %T", pub))
	}
	return nil
}

// LoadKeypairFromFile will attempt to read the given data files as a private and public key pair.
// If they are PEM encoded, then they will be decoded from the block before attempting to load them.
//
// The private key must be PKCS #8, and the public key must be in the format written by PublicKeyAsBytes.
// Mismatched keys result in an error.
func LoadKeypairFromFile(priv, pub string) (Keypair, error) {
	privData, err := readKeyFile(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file '%s': %w", priv, err)
	}
	pubKey, err := LoadPublicKeyFromFile(pub)
	if err != nil {
		return nil, err
	}
	anyPriv, err := x509.ParsePKCS8PrivateKey(privData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse data as private key: %w", err)
	}
	kp, ok := anyPriv.(Keypair)
	if !ok {
		return nil, NotSupported(fmt.Sprintf("unsupported private key type: %T", anyPriv))
	}
	cmp, ok := kp.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !cmp.Equal(pubKey.Public()) {
		return nil, fmt.Errorf("%w: public key file '%s' doesn't match private key file '%s'", errMismatch, pub, priv)
	}
	return validated(kp)
}

// LoadPublicKeyFromFile reads a public key in the format written by PublicKeyAsBytes, and wraps it with PublicOnly.
func LoadPublicKeyFromFile(pub string) (Keypair, error) {
	pubData, err := readKeyFile(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file '%s': %w", pub, err)
	}
	if rsaPub, err := x509.ParsePKCS1PublicKey(pubData); err == nil {
		return PublicOnly(rsaPub)
	}
	anyPub, err := x509.ParsePKIXPublicKey(pubData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse data as a public key: %w", err)
	}
	return PublicOnly(anyPub)
}

func readKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path) //nolint:gosec // This is intended to allow arbitrary file reads.
	if err != nil {
		return nil, err
	}
	if block, _ := pem.Decode(data); block != nil {
		return block.Bytes, nil
	}
	return data, nil
}

// PrivateKeyAsBytes encodes the private key in a PKCS #8 format.
// Other formats result in a NotSupported error.
func PrivateKeyAsBytes(keys Keypair) ([]byte, error) {
	priv, err := PrivateKeyOf(keys)
	if err != nil {
		return nil, err
	}
	data, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key to bytes: %w", err)
	}
	return data, nil
}

// PublicKeyAsBytes encodes the public key in a format appropriate to the algorithm in use.
//
//   - PKCS #1 for RSA
//   - PKIX for ECDSA and ED25519
//
// Other formats result in a NotSupported error.
func PublicKeyAsBytes(keys Keypair) ([]byte, error) {
	switch pub := keys.Public().(type) {
	case *rsa.PublicKey:
		return x509.MarshalPKCS1PublicKey(pub), nil
	case *ecdsa.PublicKey, ed25519.PublicKey:
		data, err := x509.MarshalPKIXPublicKey(pub)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal public key to bytes: %w", err)
		}
		return data, nil
	default:
		return nil, NotSupported("unsupported public key format")
	}
}

// PrivateKeyOf unwraps the private key from a Keypair.
// The result is one of *rsa.PrivateKey, *ecdsa.PrivateKey, or ed25519.PrivateKey.
// A Keypair from PublicOnly results in ErrNoPrivateKey.
func PrivateKeyOf(keys Keypair) (crypto.PrivateKey, error) {
	switch priv := keys.(type) {
	case *rsa.PrivateKey, *ecdsa.PrivateKey, ed25519.PrivateKey:
		return priv, nil
	case *ed25519.PrivateKey:
		return *priv, nil
	case *publicOnly:
		return nil, ErrNoPrivateKey
	default:
		return nil, NotSupported(fmt.Sprintf("unsupported private key type: %T", keys))
	}
}

// HasPrivateKey reports whether the Keypair carries a usable private key.
func HasPrivateKey(keys Keypair) bool {
	_, err := PrivateKeyOf(keys)
	return err == nil
}
