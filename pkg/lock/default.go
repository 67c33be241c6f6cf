package lock

import (
	"sync"

	"github.com/saylorsolutions/keylock/pkg/factory"
)

// lazyFactory builds a Factory on first use.
// Concurrent first callers block until the single build completes, and all share its result.
type lazyFactory struct {
	get func() (*factory.Factory, error)
}

func newLazyFactory(build func() (*factory.Factory, error)) *lazyFactory {
	return &lazyFactory{get: sync.OnceValues(build)}
}

var defaultLocking = newLazyFactory(factory.NewDefault)

// DefaultLockingFactory returns the shared locking Factory used when none is given.
// It's expensive to build the first time, and the result is reused for the life of the process.
// The returned Factory must not be destroyed.
func DefaultLockingFactory() (*factory.Factory, error) {
	return defaultLocking.get()
}

func lockingOrDefault(f *factory.Factory) (*factory.Factory, error) {
	if f != nil {
		return f, nil
	}
	return DefaultLockingFactory()
}
