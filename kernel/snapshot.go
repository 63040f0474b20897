package kernel

import (
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Snapshot is a point-in-time listing of every attached module's table.
type Snapshot struct {
	Taken   time.Time        `cbor:"taken"`
	Kernel  string           `cbor:"kernel"`
	Modules []ModuleSnapshot `cbor:"modules"`
	Objects int              `cbor:"objects"`
	Refs    uint64           `cbor:"refs"`
}

// ModuleSnapshot lists one module's used slots.
type ModuleSnapshot struct {
	Name      string         `cbor:"name"`
	Slots     []SlotSnapshot `cbor:"slots"`
	ID        uint32         `cbor:"id"`
	CallDepth int            `cbor:"call_depth"`
}

// SlotSnapshot describes one used slot.
type SlotSnapshot struct {
	Kind     string `cbor:"kind"`
	Cap      uint32 `cbor:"cap"`
	Object   uint32 `cbor:"object"`
	Owner    uint32 `cbor:"owner"`
	Refs     uint32 `cbor:"refs"`
	Revoked  bool   `cbor:"revoked"`
	Borrowed bool   `cbor:"borrowed"`
}

// Snapshot captures the current tables. Each module is captured under its
// own table lock, so the result is consistent per module only.
func (k *Kernel) Snapshot() Snapshot {
	stats := k.registry.Stats()
	snap := Snapshot{
		Taken:   time.Now().UTC(),
		Kernel:  k.id.String(),
		Objects: stats.Objects,
		Refs:    stats.Refs,
	}
	for _, m := range k.Modules() {
		snap.Modules = append(snap.Modules, m.snapshot())
	}
	return snap
}

// Encode returns the snapshot as CBOR.
func (s Snapshot) Encode() ([]byte, error) {
	return cbor.Marshal(s)
}

// DecodeSnapshot parses a dump produced by Encode.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	err := cbor.Unmarshal(data, &s)
	return s, err
}

func (m *Module) snapshot() ModuleSnapshot {
	ms := ModuleSnapshot{Name: m.name, ID: m.id, CallDepth: m.CallDepth()}

	m.table.mu.Lock()
	defer m.table.mu.Unlock()
	m.table.eachLocked(func(c Cap, s slot) {
		ss := SlotSnapshot{Cap: uint32(c), Object: uint32(s.id), Borrowed: s.borrowed}
		if obj, ok := m.kernel.registry.Get(s.id); ok {
			ss.Kind = obj.Kind.String()
			ss.Owner = obj.Owner
			ss.Refs = obj.Refs
			ss.Revoked = obj.Revoked
		}
		ms.Slots = append(ms.Slots, ss)
	})
	return ms
}
