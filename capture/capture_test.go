package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pthm-cable/inkswarm/device"
)

func testFrame(w, h int) []byte {
	pix := make([]byte, w*h*4)
	for i := range pix {
		pix[i] = byte(i * 7)
	}
	return pix
}

func setup(t *testing.T, manual bool) (*device.Device, *Pipeline) {
	t.Helper()
	dev := device.New(device.Options{ManualPoll: manual})
	p := New(dev, nil)
	t.Cleanup(func() {
		p.Close()
		dev.Destroy()
		p.Wait()
	})
	return dev, p
}

// frame runs one capture-aware submission the way the engine does.
func frame(t *testing.T, dev *device.Device, p *Pipeline, pix []byte, w, h int) {
	t.Helper()
	cmd, err := p.Encode(pix, w, h)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var cmds []device.Command
	if cmd != nil {
		cmds = append(cmds, cmd)
	}
	p.Submitted(dev.Submit(cmds...))
}

func TestCaptureRoundTrip(t *testing.T) {
	dev, p := setup(t, false)
	const w, h = 5, 3
	pix := testFrame(w, h)

	fut, err := p.Request()
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	frame(t, dev, p, pix, w, h)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	img, err := fut.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if img.Width != w || img.Height != h {
		t.Fatalf("size = %dx%d, want %dx%d", img.Width, img.Height, w, h)
	}
	if len(img.Pix) != w*h*4 {
		t.Fatalf("len(Pix) = %d, want %d (padding not stripped)", len(img.Pix), w*h*4)
	}
	for i := range pix {
		if img.Pix[i] != pix[i] {
			t.Fatalf("Pix[%d] = %d, want %d", i, img.Pix[i], pix[i])
		}
	}
	if s := p.State(); s != Absent {
		t.Errorf("State after completion = %v, want absent", s)
	}
}

func TestSecondRequestRejected(t *testing.T) {
	dev, p := setup(t, true)

	first, err := p.Request()
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if _, err := p.Request(); !errors.Is(err, ErrCaptureInProgress) {
		t.Fatalf("second Request while pending: err = %v, want ErrCaptureInProgress", err)
	}

	frame(t, dev, p, testFrame(2, 2), 2, 2)
	if s := p.State(); s != InFlight {
		t.Fatalf("State = %v, want in-flight", s)
	}
	if _, err := p.Request(); !errors.Is(err, ErrCaptureInProgress) {
		t.Fatalf("Request while in flight: err = %v, want ErrCaptureInProgress", err)
	}
	if _, err := first.Result(); !errors.Is(err, ErrCaptureInProgress) {
		t.Errorf("Result before resolution: err = %v", err)
	}

	dev.Poll()
	<-first.Done()
	if _, err := first.Result(); err != nil {
		t.Fatalf("first capture: %v", err)
	}

	p.Wait()
	if _, err := p.Request(); err != nil {
		t.Errorf("Request after completion: %v", err)
	}
}

func TestMapFailureFreesSlot(t *testing.T) {
	dev, p := setup(t, true)
	boom := errors.New("map failed")
	dev.FailNextMap(boom)

	fut, _ := p.Request()
	frame(t, dev, p, testFrame(4, 4), 4, 4)
	dev.Poll()

	<-fut.Done()
	if _, err := fut.Result(); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want map failure", err)
	}
	p.Wait()
	if s := p.State(); s != Absent {
		t.Fatalf("State after failure = %v, want absent", s)
	}
	if _, err := p.Request(); err != nil {
		t.Errorf("Request after failure: %v", err)
	}
}

func TestEncodeWithoutRequest(t *testing.T) {
	_, p := setup(t, true)
	cmd, err := p.Encode(testFrame(2, 2), 2, 2)
	if err != nil || cmd != nil {
		t.Errorf("Encode with nothing pending = (%v, %v), want (nil, nil)", cmd != nil, err)
	}
}

func TestCloseRejectsPending(t *testing.T) {
	_, p := setup(t, true)
	fut, _ := p.Request()
	p.Close()

	<-fut.Done()
	if _, err := fut.Result(); !errors.Is(err, ErrClosed) {
		t.Errorf("pending err = %v, want ErrClosed", err)
	}
	if _, err := p.Request(); !errors.Is(err, ErrClosed) {
		t.Errorf("Request after Close err = %v, want ErrClosed", err)
	}
}

func TestAbortRejectsWithCause(t *testing.T) {
	_, p := setup(t, true)
	fut, _ := p.Request()
	cause := errors.New("engine: device lost")
	p.Abort(cause)

	<-fut.Done()
	if _, err := fut.Result(); !errors.Is(err, cause) {
		t.Errorf("pending err = %v, want %v", err, cause)
	}
	if _, err := p.Request(); !errors.Is(err, cause) {
		t.Errorf("Request after Abort err = %v, want %v", err, cause)
	}
	if s := p.State(); s != Absent {
		t.Errorf("state = %v, want absent", s)
	}

	// Close after Abort keeps the first cause.
	p.Close()
	if _, err := p.Request(); !errors.Is(err, cause) {
		t.Errorf("Request after Close err = %v, want %v", err, cause)
	}
}

func TestDeviceLossRejectsInFlight(t *testing.T) {
	dev, p := setup(t, true)
	fut, _ := p.Request()
	frame(t, dev, p, testFrame(2, 2), 2, 2)

	dev.Lose(errors.New("gpu reset"))
	dev.Poll()

	<-fut.Done()
	if _, err := fut.Result(); !errors.Is(err, device.ErrDeviceLost) {
		t.Errorf("err = %v, want ErrDeviceLost", err)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	_, p := setup(t, true)
	fut, _ := p.Request()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := fut.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestUnpad(t *testing.T) {
	const w, h, stride = 2, 3, 16
	data := make([]byte, stride*h)
	for y := 0; y < h; y++ {
		for i := 0; i < w*4; i++ {
			data[y*stride+i] = byte(10*y + i)
		}
		data[y*stride+w*4] = 0xFF
	}
	out := Unpad(data, w, h, stride)
	if len(out) != w*h*4 {
		t.Fatalf("len = %d, want %d", len(out), w*h*4)
	}
	for y := 0; y < h; y++ {
		for i := 0; i < w*4; i++ {
			if got, want := out[y*w*4+i], byte(10*y+i); got != want {
				t.Errorf("out[%d][%d] = %d, want %d", y, i, got, want)
			}
		}
	}
}

func TestWritePNG(t *testing.T) {
	img := &Image{Width: 2, Height: 2, Pix: testFrame(2, 2)}
	dir := t.TempDir()
	path, err := img.WritePNG(dir, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	if err != nil {
		t.Fatalf("WritePNG: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("written to %s, want dir %s", path, dir)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("stat: %v", err)
	}
}
