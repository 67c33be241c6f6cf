package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/saylorsolutions/keylock/pkg/factory"
	"github.com/saylorsolutions/keylock/pkg/keyset"
	"github.com/saylorsolutions/keylock/pkg/lock"
	"github.com/saylorsolutions/keylock/pkg/passcache"
	"github.com/saylorsolutions/keylock/pkg/pki"
	"github.com/saylorsolutions/keylock/pkg/secret"
)

var errNeedKeypair = errors.New("a key pair lock needs a private key to resolve, see --priv")

// detectKind guesses the Kind of lock bytes from their structure.
func detectKind(data []byte) (lock.Kind, error) {
	if _, err := lock.ParseKeyPairLock(data); err == nil {
		return lock.KindKeyPair, nil
	}
	if _, err := lock.ParseLock(data); err == nil {
		return lock.KindKeySet, nil
	}
	if len(data) == lock.FactoryLockLength {
		return lock.KindFactory, nil
	}
	return 0, fmt.Errorf("%w: unrecognized lock of %d bytes", lock.ErrMalformedLock, len(data))
}

func describeParsed(sb *strings.Builder, indent string, parsed *lock.ParsedLock) {
	fmt.Fprintf(sb, "%sKey set:     %s\n", indent, parsed.Spec.KeySet)
	fmt.Fprintf(sb, "%sIterations:  %d\n", indent, parsed.Spec.Iterations)
	fmt.Fprintf(sb, "%sInit vector: %s\n", indent, hex.EncodeToString(parsed.InitVector[:]))
	fmt.Fprintf(sb, "%sHash:        %d bytes\n", indent, len(parsed.Hash))
	fmt.Fprintf(sb, "%sPayload:     %d bytes\n", indent, len(parsed.Payload))
}

// describe renders the non-secret structure of lock bytes.
// Verifier hashes are reported by length only.
func describe(kind lock.Kind, data []byte) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Kind:        %s\n", kind)
	fmt.Fprintf(&sb, "Length:      %d bytes\n", len(data))
	switch kind {
	case lock.KindFactory:
		iv, hash, err := lock.ParseFactoryLock(data)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, "Init vector: %s\n", hex.EncodeToString(iv[:]))
		fmt.Fprintf(&sb, "Hash:        %d bytes\n", len(hash))
	case lock.KindKeySet:
		parsed, err := lock.ParseLock(data)
		if err != nil {
			return "", err
		}
		describeParsed(&sb, "", parsed)
	case lock.KindKeyPair:
		parsed, err := lock.ParseKeyPairLock(data)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, "Agreement:   %s %s, %d bytes\n", parsed.Agreement.Family, parsed.Agreement.Kind, len(parsed.Agreement.Data))
		sb.WriteString("Inner lock:\n")
		describeParsed(&sb, "  ", parsed.Lock)
	default:
		return "", fmt.Errorf("%w: unknown lock kind %s", lock.ErrInvalidOperation, kind)
	}
	return sb.String(), nil
}

type prompter = func() ([]byte, error)

// resolver resolves lock bytes in a session, prompting for a password only when no cached password works.
type resolver struct {
	cache   *passcache.Cache
	locking *factory.Factory
	keypair pki.Keypair
	prompt  prompter
}

func describeKeySet(ks *keyset.KeySet) string {
	return fmt.Sprintf("Resolved:    key set %s\n", ks.Spec())
}

func (r *resolver) resolve(kind lock.Kind, data []byte) (string, error) {
	switch kind {
	case lock.KindFactory:
		l, ok := r.cache.AttemptFactoryLock(data)
		if !ok {
			password, err := r.prompt()
			if err != nil {
				return "", err
			}
			defer secret.Wipe(password)
			if l, err = r.cache.ResolveFactoryLock(data, password); err != nil {
				return "", err
			}
		}
		return fmt.Sprintf("Resolved:    factory, random=%t\n", l.Locked().IsRandom()), nil
	case lock.KindKeySet:
		l, ok := r.cache.AttemptKeySetLock(r.locking, data)
		if !ok {
			password, err := r.prompt()
			if err != nil {
				return "", err
			}
			defer secret.Wipe(password)
			if l, err = r.cache.ResolveKeySetLock(r.locking, data, password); err != nil {
				return "", err
			}
		}
		return describeKeySet(l.Locked()), nil
	case lock.KindKeyPair:
		if r.keypair == nil {
			return "", errNeedKeypair
		}
		l, ok := r.cache.AttemptKeyPairLock(r.locking, data, r.keypair)
		if !ok {
			password, err := r.prompt()
			if err != nil {
				return "", err
			}
			defer secret.Wipe(password)
			if l, err = r.cache.ResolveKeyPairLock(r.locking, data, r.keypair, password); err != nil {
				return "", err
			}
		}
		return describeKeySet(l.Locked()), nil
	default:
		return "", fmt.Errorf("%w: unknown lock kind %s", lock.ErrInvalidOperation, kind)
	}
}
