package device

import (
	"errors"
	"fmt"
	"sync"
)

// Usage is a buffer usage bitmask.
type Usage uint32

const (
	UsageUniform Usage = 1 << iota
	UsageStorage
	UsageCopyDst
	UsageMapRead
)

type mapState uint8

const (
	unmapped mapState = iota
	mapPending
	mapped
)

var errMapState = errors.New("buffer map state")

// Buffer is a device-owned byte range.
type Buffer struct {
	dev   *Device
	label string
	usage Usage

	// mu guards every field below.
	mu        sync.Mutex
	data      []byte
	state     mapState
	destroyed bool
}

// Label returns the debug label.
func (b *Buffer) Label() string { return b.label }

// Size returns the buffer size in bytes.
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Contents returns the bytes a stage binding sees. Only uniform and storage
// buffers may be bound.
func (b *Buffer) Contents() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return nil, fmt.Errorf("binding %q: %w", b.label, ErrDestroyed)
	}
	if b.usage&(UsageUniform|UsageStorage) == 0 {
		return nil, fmt.Errorf("binding %q: not a uniform or storage buffer: %w", b.label, ErrUsage)
	}
	return b.data, nil
}

// MappedRange returns the host-visible bytes of a mapped buffer. The slice
// is valid until Unmap.
func (b *Buffer) MappedRange() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != mapped {
		return nil, fmt.Errorf("reading %q: not mapped: %w", b.label, errMapState)
	}
	return b.data, nil
}

// Unmap returns host access to the device.
func (b *Buffer) Unmap() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == mapped {
		b.state = unmapped
	}
}

// Destroy frees the buffer. Pending maps on it fail.
func (b *Buffer) Destroy() {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return
	}
	b.destroyed = true
	b.data = nil
	b.state = unmapped
	b.mu.Unlock()

	if b.dev != nil {
		b.dev.release(b)
	}
}

// Destroyed reports whether Destroy has been called.
func (b *Buffer) Destroyed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.destroyed
}

// writable checks a write of n bytes at offset. Caller holds mu.
func (b *Buffer) writable(offset, n int) error {
	switch {
	case b.destroyed:
		return ErrDestroyed
	case b.usage&UsageCopyDst == 0:
		return fmt.Errorf("not a copy destination: %w", ErrUsage)
	case b.state != unmapped:
		return fmt.Errorf("buffer is mapped: %w", errMapState)
	case offset < 0 || offset+n > len(b.data):
		return fmt.Errorf("range [%d,%d) exceeds size %d: %w", offset, offset+n, len(b.data), ErrUsage)
	}
	return nil
}

// beginMap moves an unmapped MapRead buffer to pending. Caller holds mu.
func (b *Buffer) beginMap() error {
	switch {
	case b.destroyed:
		return ErrDestroyed
	case b.usage&UsageMapRead == 0:
		return fmt.Errorf("not a map-read buffer: %w", ErrUsage)
	case b.state != unmapped:
		return fmt.Errorf("already mapped or pending: %w", errMapState)
	}
	b.state = mapPending
	return nil
}

// finishMap resolves a pending map. Caller holds mu.
func (b *Buffer) finishMap(err error) {
	if b.state != mapPending {
		return
	}
	if err != nil || b.destroyed {
		b.state = unmapped
		return
	}
	b.state = mapped
}
