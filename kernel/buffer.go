package kernel

import (
	"sync"

	wasmosis "github.com/wippyai/wasmosis"
	"github.com/wippyai/wasmosis/errors"
	"github.com/wippyai/wasmosis/resource"
)

// bufferObject is a view of a region in its creator's memory. The cursor
// counts bytes already transferred; the view is exhausted when it reaches
// the region length.
type bufferObject struct {
	owner  *Module
	region Region
	cursor uint32
	mu     sync.Mutex
}

// transfer copies up to length bytes at the cursor. bound checks the
// clamped count against the peer's memory and move copies the bytes at the
// given absolute offset in the owner's memory. The cursor only advances
// once both succeed, and copies on one view are serialized.
func (b *bufferObject) transfer(length uint32, bound func(n uint32) error, move func(at, n uint32) error) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := min(length, b.region.Length-b.cursor)
	if n == 0 {
		return 0, nil
	}
	if err := bound(n); err != nil {
		return 0, err
	}
	if err := move(b.region.Base+b.cursor, n); err != nil {
		return 0, err
	}
	b.cursor += n
	return n, nil
}

// RecvBufCreate exposes [dest, dest+length) of m's memory as a view other
// modules can write into.
func (m *Module) RecvBufCreate(dest, length uint32) (Cap, error) {
	c, err := m.createBuffer("recvbuf_create", resource.KindRecvBuffer, dest, length)
	return c, m.record(err)
}

// SendBufCreate exposes [src, src+length) of m's memory as a view other
// modules can read from.
func (m *Module) SendBufCreate(src, length uint32) (Cap, error) {
	c, err := m.createBuffer("sendbuf_create", resource.KindSendBuffer, src, length)
	return c, m.record(err)
}

// RecvBufWrite copies up to length bytes from m's memory at src into the
// view behind buf, continuing where the previous write stopped. It returns
// the number of bytes copied; a full or revoked view yields 0.
func (m *Module) RecvBufWrite(buf Cap, src, length uint32) (uint32, error) {
	const op = "recvbuf_write"

	b, err := m.buffer(op, buf, resource.KindRecvBuffer)
	if err != nil {
		return 0, m.record(err)
	}
	if m.mem == nil {
		return 0, m.record(m.checkRange(op, src, 0))
	}

	n, err := b.transfer(length,
		func(n uint32) error { return m.checkRange(op, src, n) },
		func(at, n uint32) error {
			data, err := m.mem.Read(src, n)
			if err != nil {
				return errors.Wrap(errors.PhaseBuffer, errors.KindOutOfBounds, err, op)
			}
			if err := b.owner.mem.Write(at, data); err != nil {
				return errors.Wrap(errors.PhaseBuffer, errors.KindOutOfBounds, err, op)
			}
			return nil
		})
	return n, m.record(err)
}

// SendBufRead copies up to length bytes from the view behind buf into m's
// memory at dest, continuing where the previous read stopped.
func (m *Module) SendBufRead(buf Cap, dest, length uint32) (uint32, error) {
	const op = "sendbuf_read"

	b, err := m.buffer(op, buf, resource.KindSendBuffer)
	if err != nil {
		return 0, m.record(err)
	}
	if m.mem == nil {
		return 0, m.record(m.checkRange(op, dest, 0))
	}

	n, err := b.transfer(length,
		func(n uint32) error { return m.checkRange(op, dest, n) },
		func(at, n uint32) error {
			data, err := b.owner.mem.Read(at, n)
			if err != nil {
				return errors.Wrap(errors.PhaseBuffer, errors.KindOutOfBounds, err, op)
			}
			if err := m.mem.Write(dest, data); err != nil {
				return errors.Wrap(errors.PhaseBuffer, errors.KindOutOfBounds, err, op)
			}
			return nil
		})
	return n, m.record(err)
}

func (m *Module) createBuffer(op string, kind resource.Kind, base, length uint32) (Cap, error) {
	if err := m.checkOpen(errors.PhaseBuffer); err != nil {
		return Null, err
	}
	if err := m.checkRange(op, base, length); err != nil {
		return Null, err
	}
	b := &bufferObject{owner: m, region: Region{Base: base, Length: length}}
	return m.create(errors.PhaseBuffer, op, kind, b)
}

func (m *Module) buffer(op string, c Cap, want resource.Kind) (*bufferObject, error) {
	if err := m.checkOpen(errors.PhaseBuffer); err != nil {
		return nil, err
	}

	_, obj, err := m.object(errors.PhaseBuffer, op, c)
	if err != nil {
		return nil, err
	}
	if obj.Kind != want {
		return nil, errors.TypeMismatch(errors.PhaseBuffer, op, want.String(), obj.Kind.String())
	}
	if obj.Revoked {
		return nil, errors.Revoked(errors.PhaseBuffer, op, uint32(c))
	}
	return obj.Value.(*bufferObject), nil
}

// checkRange validates [offset, offset+length) against m's memory.
func (m *Module) checkRange(op string, offset, length uint32) error {
	if m.mem == nil {
		return errors.NotInitialized(errors.PhaseBuffer, "memory of module "+m.name)
	}
	if size := m.mem.Size(); !wasmosis.InBounds(offset, length, size) {
		return errors.OutOfBounds(errors.PhaseBuffer, op, offset, length, size)
	}
	return nil
}
