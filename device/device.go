// Package device is the software stand-in for the host compute/render
// device the engine is handed. It owns buffers, runs submitted command lists
// in order, services asynchronous buffer maps and carries the one-shot fatal
// device-loss signal.
package device

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrDeviceLost is wrapped by every error returned after Lose.
	ErrDeviceLost = errors.New("device lost")
	// ErrDestroyed is returned for operations on a destroyed device or buffer.
	ErrDestroyed = errors.New("device destroyed")
	// ErrUsage is returned when a buffer is used outside its usage mask.
	ErrUsage = errors.New("invalid buffer usage")
)

// DefaultRowAlignment is the bytes-per-row alignment required for
// image-to-buffer copies.
const DefaultRowAlignment = 256

// Options configures a Device.
type Options struct {
	Logger *slog.Logger

	// RowAlignment overrides DefaultRowAlignment when positive.
	RowAlignment int

	// ManualPoll disables the background map worker. Map requests then
	// complete only when Poll is called.
	ManualPoll bool
}

// Command is one encoded operation in a submission.
type Command func() error

// Device owns buffers and the asynchronous map queue.
type Device struct {
	logger       *slog.Logger
	rowAlignment int
	manualPoll   bool

	mu        sync.Mutex
	queue     []mapRequest
	buffers   map[*Buffer]struct{}
	failNext  error
	destroyed bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup

	lostOnce sync.Once
	lost     chan struct{}
	lostErr  error
}

type mapRequest struct {
	buf    *Buffer
	result chan error
}

// New creates a device and, unless ManualPoll is set, starts its map worker.
func New(opts Options) *Device {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	align := opts.RowAlignment
	if align <= 0 {
		align = DefaultRowAlignment
	}

	d := &Device{
		logger:       logger.With("component", "device"),
		rowAlignment: align,
		manualPoll:   opts.ManualPoll,
		buffers:      make(map[*Buffer]struct{}),
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
		lost:         make(chan struct{}),
	}

	if !d.manualPoll {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// RowAlignment returns the required bytes-per-row alignment for copies.
func (d *Device) RowAlignment() int { return d.rowAlignment }

// PaddedRowBytes rounds width*4 up to the row alignment.
func (d *Device) PaddedRowBytes(width int) int {
	unpadded := width * 4
	return (unpadded + d.rowAlignment - 1) / d.rowAlignment * d.rowAlignment
}

// CreateBuffer allocates a zeroed buffer.
func (d *Device) CreateBuffer(label string, size int, usage Usage) (*Buffer, error) {
	if err := d.check(); err != nil {
		return nil, fmt.Errorf("creating buffer %q: %w", label, err)
	}
	if size < 0 {
		return nil, fmt.Errorf("creating buffer %q: negative size %d: %w", label, size, ErrUsage)
	}
	if usage&UsageMapRead != 0 && usage&^(UsageMapRead|UsageCopyDst) != 0 {
		return nil, fmt.Errorf("creating buffer %q: map-read buffers may only be copy destinations: %w", label, ErrUsage)
	}

	b := &Buffer{dev: d, label: label, usage: usage, data: make([]byte, size)}

	d.mu.Lock()
	d.buffers[b] = struct{}{}
	d.mu.Unlock()
	return b, nil
}

// WriteBuffer performs a queue write into a CopyDst buffer.
func (d *Device) WriteBuffer(b *Buffer, offset int, data []byte) error {
	if err := d.check(); err != nil {
		return fmt.Errorf("writing buffer %q: %w", b.label, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.writable(offset, len(data)); err != nil {
		return fmt.Errorf("writing buffer %q: %w", b.label, err)
	}
	copy(b.data[offset:], data)
	return nil
}

// Submit runs cmds in order. The first failing command aborts the rest.
func (d *Device) Submit(cmds ...Command) error {
	if err := d.check(); err != nil {
		return fmt.Errorf("submitting: %w", err)
	}
	for i, cmd := range cmds {
		if err := cmd(); err != nil {
			return fmt.Errorf("submitting command %d: %w", i, err)
		}
	}
	return nil
}

// CopyImageToBuffer encodes a copy of a tightly packed RGBA8 image into dst
// with rows bytesPerRow apart. The source is read when the command runs.
func (d *Device) CopyImageToBuffer(src []byte, width, height int, dst *Buffer, bytesPerRow int) Command {
	return func() error {
		unpadded := width * 4
		switch {
		case bytesPerRow%d.rowAlignment != 0:
			return fmt.Errorf("copy: bytes per row %d not aligned to %d: %w", bytesPerRow, d.rowAlignment, ErrUsage)
		case bytesPerRow < unpadded:
			return fmt.Errorf("copy: bytes per row %d < row size %d: %w", bytesPerRow, unpadded, ErrUsage)
		case len(src) < unpadded*height:
			return fmt.Errorf("copy: source holds %d bytes, need %d: %w", len(src), unpadded*height, ErrUsage)
		}

		dst.mu.Lock()
		defer dst.mu.Unlock()
		if err := dst.writable(0, bytesPerRow*height); err != nil {
			return fmt.Errorf("copy into %q: %w", dst.label, err)
		}
		for y := 0; y < height; y++ {
			copy(dst.data[y*bytesPerRow:y*bytesPerRow+unpadded], src[y*unpadded:(y+1)*unpadded])
		}
		return nil
	}
}

// MapAsync requests host read access to a MapRead buffer. The returned
// channel receives exactly one value once the request is serviced.
func (d *Device) MapAsync(b *Buffer) <-chan error {
	result := make(chan error, 1)

	if err := d.check(); err != nil {
		result <- fmt.Errorf("mapping %q: %w", b.label, err)
		return result
	}

	b.mu.Lock()
	err := b.beginMap()
	b.mu.Unlock()
	if err != nil {
		result <- fmt.Errorf("mapping %q: %w", b.label, err)
		return result
	}

	d.mu.Lock()
	d.queue = append(d.queue, mapRequest{buf: b, result: result})
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return result
}

// Poll services every queued map request on the calling goroutine and
// returns how many completed.
func (d *Device) Poll() int {
	d.mu.Lock()
	reqs := d.queue
	d.queue = nil
	var failNext error
	if len(reqs) > 0 {
		failNext = d.failNext
		d.failNext = nil
	}
	d.mu.Unlock()

	for i, req := range reqs {
		var err error
		switch {
		case d.Err() != nil:
			err = d.Err()
		case i == 0 && failNext != nil:
			err = failNext
		}
		req.buf.mu.Lock()
		if err == nil && req.buf.destroyed {
			err = ErrDestroyed
		}
		req.buf.finishMap(err)
		req.buf.mu.Unlock()
		if err != nil {
			err = fmt.Errorf("mapping %q: %w", req.buf.label, err)
		}
		req.result <- err
	}
	return len(reqs)
}

// FailNextMap makes the next serviced map request fail with err.
func (d *Device) FailNextMap(err error) {
	d.mu.Lock()
	d.failNext = err
	d.mu.Unlock()
}

// Lose marks the device as lost. Only the first call has any effect; the
// Lost channel is closed exactly once.
func (d *Device) Lose(reason error) {
	d.lostOnce.Do(func() {
		d.mu.Lock()
		d.lostErr = fmt.Errorf("%w: %v", ErrDeviceLost, reason)
		d.mu.Unlock()
		d.logger.Error("device lost", "reason", reason)
		close(d.lost)

		select {
		case d.wake <- struct{}{}:
		default:
		}
	})
}

// Lost is closed once the device becomes unusable.
func (d *Device) Lost() <-chan struct{} { return d.lost }

// Err returns the loss reason, or nil while the device is healthy.
func (d *Device) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lostErr
}

// Destroy releases every buffer, rejects queued maps and stops the worker.
func (d *Device) Destroy() {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return
	}
	d.destroyed = true
	reqs := d.queue
	d.queue = nil
	bufs := d.buffers
	d.buffers = nil
	d.mu.Unlock()

	close(d.done)
	d.wg.Wait()

	for _, req := range reqs {
		req.buf.mu.Lock()
		req.buf.finishMap(ErrDestroyed)
		req.buf.mu.Unlock()
		req.result <- fmt.Errorf("mapping %q: %w", req.buf.label, ErrDestroyed)
	}
	for b := range bufs {
		b.Destroy()
	}
	d.logger.Debug("device destroyed", "buffers", len(bufs))
}

// release forgets a buffer destroyed by its owner.
func (d *Device) release(b *Buffer) {
	d.mu.Lock()
	if d.buffers != nil {
		delete(d.buffers, b)
	}
	d.mu.Unlock()
}

func (d *Device) check() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return ErrDestroyed
	}
	return d.lostErr
}

func (d *Device) worker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case <-d.wake:
			d.Poll()
		}
	}
}
