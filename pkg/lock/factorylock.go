package lock

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	bin "github.com/saylorsolutions/binmap"
	"github.com/saylorsolutions/keylock/pkg/factory"
	"github.com/saylorsolutions/keylock/pkg/secret"
	"github.com/saylorsolutions/keylock/pkg/verifier"
)

// FactoryLockLength is the fixed length of FactoryLock bytes.
const FactoryLockLength = InitVectorLen + 3*factory.SeedLen

var _ bin.Mapper = fixedBytes(nil)

// fixedBytes maps a byte slice of a known length.
// Reads fill the slice in place, so wiping the backing array clears what was read.
type fixedBytes []byte

func (f fixedBytes) Read(r io.Reader, _ binary.ByteOrder) error {
	_, err := io.ReadFull(r, f)
	return err
}

func (f fixedBytes) Write(w io.Writer, _ binary.ByteOrder) error {
	_, err := w.Write(f)
	return err
}

// factoryLockLayout is the fixed layout of a FactoryLock.
//
//	initVector(16) || verifierHash(32) || maskedGeneralSeed(32) || maskedKeySetSeed(32)
type factoryLockLayout struct {
	initVector [InitVectorLen]byte
	hash       [HashLen]byte
	general    [factory.SeedLen]byte
	keySet     [factory.SeedLen]byte
}

func (l *factoryLockLayout) mapper() bin.Mapper {
	return bin.MapSequence(
		fixedBytes(l.initVector[:]),
		fixedBytes(l.hash[:]),
		fixedBytes(l.general[:]),
		fixedBytes(l.keySet[:]),
	)
}

func (l *factoryLockLayout) wipe() {
	*l = factoryLockLayout{}
}

// ParseFactoryLock reads the fixed layout of FactoryLock bytes without any password processing.
// It returns the init vector and verifier hash.
func ParseFactoryLock(data []byte) (initVector [InitVectorLen]byte, hash [HashLen]byte, err error) {
	layout, err := readFactoryLock(data)
	if err != nil {
		return initVector, hash, err
	}
	return layout.initVector, layout.hash, nil
}

func readFactoryLock(data []byte) (*factoryLockLayout, error) {
	if len(data) != FactoryLockLength {
		return nil, fmt.Errorf("%w: factory lock must be %d bytes, got %d", ErrMalformedLock, FactoryLockLength, len(data))
	}
	var layout factoryLockLayout
	if err := layout.mapper().Read(bytes.NewReader(data), binary.BigEndian); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedLock, err)
	}
	return &layout, nil
}

func legacyEngine() (*verifier.Engine, error) {
	return verifier.NewEngine(factory.Catalogue{}, verifier.WithIterations(verifier.DefaultIterations))
}

// CreateFactoryLock locks the seeds of a random Factory behind a password.
// A non-random Factory results in ErrInvalidOperation, since its seeds can be reproduced without the lock.
func CreateFactoryLock(f *factory.Factory, password []byte) (*FactoryLock, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: nil factory", ErrInvalidOperation)
	}
	if !f.IsRandom() {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOperation, factory.ErrNotRandom)
	}
	var layout factoryLockLayout
	defer layout.wipe()
	if _, err := io.ReadFull(f.Random(), layout.initVector[:]); err != nil {
		return nil, fmt.Errorf("failed to generate init vector: %w", err)
	}
	engine, err := legacyEngine()
	if err != nil {
		return nil, err
	}
	result, err := engine.Derive(layout.initVector, password)
	if err != nil {
		return nil, err
	}
	defer result.Destroy()
	layout.hash = result.Hash

	seeds, err := f.Seeds()
	if err != nil {
		return nil, err
	}
	defer seeds.Wipe()
	if err := maskSeeds(result, &layout, seeds.General, seeds.KeySet); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(FactoryLockLength)
	if err := layout.mapper().Write(&buf, binary.BigEndian); err != nil {
		return nil, fmt.Errorf("failed to write factory lock: %w", err)
	}
	return newLock(KindFactory, buf.Bytes(), f), nil
}

// ResolveFactoryLock recovers the Factory locked in data.
// The result is a new Factory with the same configuration as the one originally locked.
func ResolveFactoryLock(data []byte, password []byte) (*FactoryLock, error) {
	layout, err := readFactoryLock(data)
	if err != nil {
		return nil, err
	}
	defer layout.wipe()
	engine, err := legacyEngine()
	if err != nil {
		return nil, err
	}
	result, err := engine.Check(layout.initVector, layout.hash[:], password)
	if err != nil {
		return nil, err
	}
	defer result.Destroy()

	var unmasked factoryLockLayout
	defer unmasked.wipe()
	if err := maskSeeds(result, &unmasked, layout.general[:], layout.keySet[:]); err != nil {
		return nil, err
	}
	f, err := factory.FromSeeds(unmasked.general[:], unmasked.keySet[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedLock, err)
	}
	return newLock(KindFactory, append([]byte{}, data...), f), nil
}

// maskSeeds XORs each seed with its mask from result, storing them in layout.
// The same call unmasks.
func maskSeeds(result *verifier.Result, layout *factoryLockLayout, general, keySet []byte) error {
	first, second, err := result.Masks(factory.Catalogue{})
	if err != nil {
		return err
	}
	defer first.Destroy()
	defer second.Destroy()
	for _, m := range []struct {
		dst  []byte
		seed []byte
		mask *secret.Buffer
	}{
		{layout.general[:], general, first},
		{layout.keySet[:], keySet, second},
	} {
		masked, err := verifier.Mask(m.seed, m.mask.Bytes())
		if err != nil {
			return err
		}
		copy(m.dst, masked)
		secret.Wipe(masked)
	}
	return nil
}
