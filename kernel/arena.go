package kernel

import (
	"sync"

	wasmosis "github.com/wippyai/wasmosis"
	"github.com/wippyai/wasmosis/errors"
)

// Arena is a fixed-size byte arena implementing wasmosis.Memory. Native
// (Go-implemented) modules use it as their address space.
type Arena struct {
	data []byte
	mu   sync.RWMutex
}

// NewArena allocates a zeroed arena of size bytes.
func NewArena(size uint32) *Arena {
	return &Arena{data: make([]byte, size)}
}

// Read returns a copy of length bytes at offset.
func (a *Arena) Read(offset, length uint32) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !wasmosis.InBounds(offset, length, uint32(len(a.data))) {
		return nil, errors.OutOfBounds(errors.PhaseBuffer, "arena read", offset, length, uint32(len(a.data)))
	}
	out := make([]byte, length)
	copy(out, a.data[offset:])
	return out, nil
}

// Write copies data into the arena at offset.
func (a *Arena) Write(offset uint32, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !wasmosis.InBounds(offset, uint32(len(data)), uint32(len(a.data))) {
		return errors.OutOfBounds(errors.PhaseBuffer, "arena write", offset, uint32(len(data)), uint32(len(a.data)))
	}
	copy(a.data[offset:], data)
	return nil
}

// Size returns the arena size in bytes.
func (a *Arena) Size() uint32 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return uint32(len(a.data))
}
