package secret

import (
	"sync"
)

var (
	auditMux sync.Mutex
	auditor  *Auditor
)

// Auditor records every Buffer allocated while it's active.
// It's intended for tests that need to show an operation leaves no live secret material behind.
type Auditor struct {
	mux     sync.Mutex
	buffers []*Buffer
}

// NewAuditor starts recording Buffer allocations.
// Only one Auditor may be active at a time, a second call replaces the first.
// Close must be called to stop recording.
func NewAuditor() *Auditor {
	a := new(Auditor)
	auditMux.Lock()
	auditor = a
	auditMux.Unlock()
	return a
}

// Close stops recording allocations.
func (a *Auditor) Close() {
	auditMux.Lock()
	if auditor == a {
		auditor = nil
	}
	auditMux.Unlock()
}

// Allocated returns the number of Buffers recorded.
func (a *Auditor) Allocated() int {
	a.mux.Lock()
	defer a.mux.Unlock()
	return len(a.buffers)
}

// Live returns the number of recorded Buffers that are either not destroyed, or that still contain non-zero bytes.
func (a *Auditor) Live() int {
	a.mux.Lock()
	defer a.mux.Unlock()
	live := 0
	for _, b := range a.buffers {
		if !b.destroyed || !allZero(b.data) {
			live++
		}
	}
	return live
}

func (a *Auditor) add(b *Buffer) {
	a.mux.Lock()
	a.buffers = append(a.buffers, b)
	a.mux.Unlock()
}

func track(b *Buffer) {
	auditMux.Lock()
	a := auditor
	auditMux.Unlock()
	if a != nil {
		a.add(b)
	}
}

func allZero(data []byte) bool {
	var acc byte
	for _, v := range data {
		acc |= v
	}
	return acc == 0
}
