package audio

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pattinsonfuture/Podssistant/internal/domain"
	"github.com/pattinsonfuture/Podssistant/internal/ports"
)

type fakeDevice struct {
	format   domain.AudioFormat
	openErr  error
	startErr error

	frames chan []byte
	stopCh chan struct{}

	mu       sync.Mutex
	stopOnce sync.Once
	closed   bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		format: domain.AudioFormat{SampleRate: 16000, BitsPerSample: 16, Channels: 1},
		frames: make(chan []byte, 16),
		stopCh: make(chan struct{}),
	}
}

func (d *fakeDevice) Open() (domain.AudioFormat, error) {
	if d.openErr != nil {
		return domain.AudioFormat{}, d.openErr
	}
	return d.format, nil
}

func (d *fakeDevice) Start() error { return d.startErr }

func (d *fakeDevice) ReadFrame() ([]byte, error) {
	select {
	case buf, ok := <-d.frames:
		if !ok {
			return nil, errors.New("device gone")
		}
		return buf, nil
	case <-d.stopCh:
		return nil, errors.New("stream stopped")
	}
}

func (d *fakeDevice) Stop() error {
	d.stopOnce.Do(func() { close(d.stopCh) })
	return nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDevice) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

type recordingSink struct {
	mu     sync.Mutex
	err    error
	frames [][]byte
}

func (s *recordingSink) WriteFrame(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, pcm)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *recordingSink) frame(i int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames[i]
}

type captureEvents struct {
	mu      sync.Mutex
	failed  []error
	stopped int
}

func (e *captureEvents) callbacks() ports.CaptureCallbacks {
	return ports.CaptureCallbacks{
		OnFailed: func(err error) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.failed = append(e.failed, err)
		},
		OnStopped: func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.stopped++
		},
	}
}

func (e *captureEvents) stoppedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

func (e *captureEvents) failedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.failed)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewEngineOpenFailureReturnsNoEngine(t *testing.T) {
	t.Parallel()

	dev := newFakeDevice()
	dev.openErr = errors.New("no such device")

	engine, err := NewEngine(dev, ports.CaptureCallbacks{}, nil)
	if err == nil {
		t.Fatalf("expected open error")
	}
	if engine != nil {
		t.Fatalf("expected no engine on open failure")
	}
}

func TestEngineDeliversIndependentFrameCopies(t *testing.T) {
	t.Parallel()

	dev := newFakeDevice()
	events := &captureEvents{}
	engine, err := NewEngine(dev, events.callbacks(), nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	sink := &recordingSink{}
	if err := engine.Start(sink); err != nil {
		t.Fatalf("start: %v", err)
	}

	shared := []byte{1, 2, 3, 4}
	dev.frames <- shared
	waitFor(t, "frame delivery", func() bool { return sink.count() == 1 })

	// The device reuses its buffer; the sink's copy must not see it.
	shared[0] = 99
	if got := sink.frame(0); !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Fatalf("sink frame aliases the device buffer: %v", got)
	}

	engine.Stop()
}

func TestStartWhileCapturingIsRejected(t *testing.T) {
	t.Parallel()

	dev := newFakeDevice()
	engine, err := NewEngine(dev, ports.CaptureCallbacks{}, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := engine.Start(&recordingSink{}); err != nil {
		t.Fatalf("first start: %v", err)
	}

	if err := engine.Start(&recordingSink{}); !errors.Is(err, ErrAlreadyCapturing) {
		t.Fatalf("expected ErrAlreadyCapturing, got %v", err)
	}
	engine.Stop()
}

func TestStopIsIdempotentAndNotifiesOnce(t *testing.T) {
	t.Parallel()

	dev := newFakeDevice()
	events := &captureEvents{}
	engine, err := NewEngine(dev, events.callbacks(), nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := engine.Start(&recordingSink{}); err != nil {
		t.Fatalf("start: %v", err)
	}

	engine.Stop()
	engine.Stop()
	engine.Stop()

	if got := engine.State(); got != domain.CaptureStopped {
		t.Fatalf("expected stopped state, got %s", got)
	}
	if got := events.stoppedCount(); got != 1 {
		t.Fatalf("expected exactly one OnStopped, got %d", got)
	}
	if !dev.isClosed() {
		t.Fatalf("device not released")
	}
}

func TestStopWhenIdleIsSafe(t *testing.T) {
	t.Parallel()

	dev := newFakeDevice()
	events := &captureEvents{}
	engine, err := NewEngine(dev, events.callbacks(), nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	engine.Stop()

	if got := engine.State(); got != domain.CaptureStopped {
		t.Fatalf("expected stopped state, got %s", got)
	}
	if events.failedCount() != 0 {
		t.Fatalf("idle stop must not report a failure")
	}
}

func TestDeviceFailureIsTerminal(t *testing.T) {
	t.Parallel()

	dev := newFakeDevice()
	events := &captureEvents{}
	engine, err := NewEngine(dev, events.callbacks(), nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := engine.Start(&recordingSink{}); err != nil {
		t.Fatalf("start: %v", err)
	}

	close(dev.frames)

	waitFor(t, "failure callback", func() bool { return events.failedCount() == 1 })
	waitFor(t, "failed state", func() bool { return engine.State() == domain.CaptureFailed })

	if got := events.stoppedCount(); got != 1 {
		t.Fatalf("expected exactly one OnStopped after failure, got %d", got)
	}
	if err := engine.Start(&recordingSink{}); !errors.Is(err, ErrEngineFailed) {
		t.Fatalf("expected ErrEngineFailed on restart, got %v", err)
	}
	if !dev.isClosed() {
		t.Fatalf("device not released after failure")
	}
}

func TestSinkErrorFailsTheEngine(t *testing.T) {
	t.Parallel()

	dev := newFakeDevice()
	events := &captureEvents{}
	engine, err := NewEngine(dev, events.callbacks(), nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	sink := &recordingSink{err: errors.New("session closed")}
	if err := engine.Start(sink); err != nil {
		t.Fatalf("start: %v", err)
	}

	dev.frames <- []byte{1, 2}

	waitFor(t, "failure callback", func() bool { return events.failedCount() == 1 })
	if got := engine.State(); got != domain.CaptureFailed {
		t.Fatalf("expected failed state, got %s", got)
	}
}
