// Package capture reads presented frames back to the host through a
// padded staging buffer. At most one capture is outstanding at a time.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pthm-cable/inkswarm/device"
)

var (
	// ErrCaptureInProgress is returned by Request while another capture is
	// pending or in flight.
	ErrCaptureInProgress = errors.New("capture already in progress")
	// ErrClosed is returned once the pipeline has been closed.
	ErrClosed = errors.New("capture pipeline closed")
)

// State is the capture slot's lifecycle position.
type State int

const (
	Absent State = iota
	Pending
	InFlight
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Pending:
		return "pending"
	case InFlight:
		return "in-flight"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Image is a tightly packed RGBA8 frame.
type Image struct {
	Width, Height int
	Pix           []byte
}

// Future resolves once with a captured image or an error.
type Future struct {
	done chan struct{}
	once sync.Once
	img  *Image
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Done is closed when the future resolves.
func (f *Future) Done() <-chan struct{} { return f.done }

// Result returns the outcome. It must only be called after Done is closed;
// before that it reports ErrCaptureInProgress.
func (f *Future) Result() (*Image, error) {
	select {
	case <-f.done:
		return f.img, f.err
	default:
		return nil, ErrCaptureInProgress
	}
}

// Wait blocks until the future resolves or ctx ends.
func (f *Future) Wait(ctx context.Context) (*Image, error) {
	select {
	case <-f.done:
		return f.img, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Future) resolve(img *Image, err error) {
	f.once.Do(func() {
		f.img, f.err = img, err
		close(f.done)
	})
}

// Pipeline owns the single capture slot.
type Pipeline struct {
	dev    *device.Device
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	pending *Future
	flight  *flight
	closed  bool
	cause   error // rejection error once closed

	wg sync.WaitGroup
}

// flight is a capture whose copy has been encoded but not yet mapped.
type flight struct {
	future  *Future
	staging *device.Buffer
	width   int
	height  int
	stride  int
}

// New creates a pipeline reading back through dev.
func New(dev *device.Device, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{dev: dev, logger: logger.With("component", "capture")}
}

// State reports the slot's current state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Pending reports whether a request is waiting for the next frame.
func (p *Pipeline) Pending() bool { return p.State() == Pending }

// Request reserves the slot for the next presented frame. It fails
// immediately with ErrCaptureInProgress when the slot is taken.
func (p *Pipeline) Request() (*Future, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, p.cause
	}
	if p.state != Absent {
		return nil, ErrCaptureInProgress
	}
	p.state = Pending
	p.pending = newFuture()
	return p.pending, nil
}

// Encode returns the copy command that reads frame into a fresh padded
// staging buffer, moving a pending request in flight. It returns nil when
// nothing is pending. The command must be submitted with the frame and
// followed by Submitted.
func (p *Pipeline) Encode(frame []byte, width, height int) (device.Command, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Pending {
		return nil, nil
	}

	fut := p.pending
	stride := p.dev.PaddedRowBytes(width)
	staging, err := p.dev.CreateBuffer("capture-staging", stride*height, device.UsageCopyDst|device.UsageMapRead)
	if err != nil {
		p.release(fut, nil, fmt.Errorf("capture: %w", err))
		return nil, err
	}

	p.state = InFlight
	p.pending = nil
	p.flight = &flight{future: fut, staging: staging, width: width, height: height, stride: stride}
	return p.dev.CopyImageToBuffer(frame, width, height, staging, stride), nil
}

// Submitted starts the asynchronous readback of the in-flight capture once
// the frame's submission has returned. A non-nil submitErr rejects it.
func (p *Pipeline) Submitted(submitErr error) {
	p.mu.Lock()
	fl := p.flight
	p.flight = nil
	if fl == nil {
		p.mu.Unlock()
		return
	}
	if submitErr != nil {
		fl.staging.Destroy()
		p.release(fl.future, nil, fmt.Errorf("capture: %w", submitErr))
		p.mu.Unlock()
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	mapped := p.dev.MapAsync(fl.staging)
	go p.readback(fl, mapped)
}

func (p *Pipeline) readback(fl *flight, mapped <-chan error) {
	defer p.wg.Done()

	img, err := func() (*Image, error) {
		if err := <-mapped; err != nil {
			return nil, fmt.Errorf("capture: %w", err)
		}
		data, err := fl.staging.MappedRange()
		if err != nil {
			return nil, fmt.Errorf("capture: %w", err)
		}
		pix := Unpad(data, fl.width, fl.height, fl.stride)
		fl.staging.Unmap()
		return &Image{Width: fl.width, Height: fl.height, Pix: pix}, nil
	}()
	fl.staging.Destroy()

	if err != nil {
		p.logger.Warn("capture failed", "error", err)
	} else {
		p.logger.Info("capture complete", "width", fl.width, "height", fl.height)
	}

	p.mu.Lock()
	p.release(fl.future, img, err)
	p.mu.Unlock()
}

// release frees the slot and resolves fut. Callers hold p.mu.
func (p *Pipeline) release(fut *Future, img *Image, err error) {
	p.state = Absent
	p.pending = nil
	fut.resolve(img, err)
}

// Close rejects a pending request and refuses new ones. An in-flight
// readback still resolves through its map; Wait blocks until it has.
func (p *Pipeline) Close() { p.shutdown(ErrClosed) }

// Abort is Close with cause as the rejection error. Later requests fail
// with cause too.
func (p *Pipeline) Abort(cause error) { p.shutdown(cause) }

func (p *Pipeline) shutdown(cause error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.cause = cause
	if p.state == Pending {
		p.release(p.pending, nil, cause)
	}
	if fl := p.flight; fl != nil {
		p.flight = nil
		fl.staging.Destroy()
		p.release(fl.future, nil, cause)
	}
}

// Wait blocks until every started readback has resolved.
func (p *Pipeline) Wait() { p.wg.Wait() }

// Unpad copies a padded readback into a tightly packed RGBA8 slice.
func Unpad(data []byte, width, height, stride int) []byte {
	row := width * 4
	out := make([]byte, row*height)
	for y := 0; y < height; y++ {
		copy(out[y*row:(y+1)*row], data[y*stride:y*stride+row])
	}
	return out
}
