// Package audio captures system audio into PCM frames.
package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pattinsonfuture/Podssistant/internal/domain"
	"github.com/pattinsonfuture/Podssistant/internal/ports"
)

// ErrAlreadyCapturing is returned by Start while a capture loop is running.
// Callers treat it as a no-op, not a failure.
var ErrAlreadyCapturing = errors.New("capture already in progress")

// ErrEngineFailed is returned by Start after a device error; a failed engine
// cannot be restarted and must be recreated.
var ErrEngineFailed = errors.New("capture engine failed")

const stopTimeout = 2 * time.Second

// Engine owns one capture device handle and pushes copied PCM frames into a
// bound sink. The device is opened at construction; an engine whose device
// failed is terminal and must be recreated.
type Engine struct {
	dev    ports.CaptureDevice
	format domain.AudioFormat
	cb     ports.CaptureCallbacks
	log    *slog.Logger

	mu      sync.Mutex
	state   domain.CaptureState
	done    chan struct{}
	stopped sync.Once
}

// NewEngine opens the device and reads its native format. An open failure is
// fatal for the engine: no engine is returned and no default format is
// assumed.
func NewEngine(dev ports.CaptureDevice, cb ports.CaptureCallbacks, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}
	format, err := dev.Open()
	if err != nil {
		return nil, fmt.Errorf("open capture device: %w", err)
	}
	if !format.Valid() {
		_ = dev.Close()
		return nil, fmt.Errorf("capture device reported invalid format %+v", format)
	}
	return &Engine{
		dev:    dev,
		format: format,
		cb:     cb,
		log:    log.With("component", "capture"),
		state:  domain.CaptureIdle,
	}, nil
}

// Format returns the format the device was opened with.
func (e *Engine) Format() domain.AudioFormat {
	return e.format
}

// State returns the current capture state.
func (e *Engine) State() domain.CaptureState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start binds the sink and begins the capture loop. A second Start while
// capturing returns ErrAlreadyCapturing and changes nothing.
func (e *Engine) Start(sink ports.FrameSink) error {
	e.mu.Lock()
	switch e.state {
	case domain.CaptureCapturing, domain.CaptureStopping:
		e.mu.Unlock()
		return ErrAlreadyCapturing
	case domain.CaptureFailed:
		e.mu.Unlock()
		return ErrEngineFailed
	}

	if err := e.dev.Start(); err != nil {
		e.state = domain.CaptureFailed
		e.mu.Unlock()
		_ = e.dev.Close()
		return fmt.Errorf("start capture device: %w", err)
	}

	e.state = domain.CaptureCapturing
	e.done = make(chan struct{})
	e.stopped = sync.Once{}
	done := e.done
	e.mu.Unlock()

	e.log.Info("capture started",
		"sample_rate", e.format.SampleRate,
		"channels", e.format.Channels,
	)

	go e.captureLoop(sink, done)
	return nil
}

func (e *Engine) captureLoop(sink ports.FrameSink, done chan struct{}) {
	defer close(done)

	for {
		e.mu.Lock()
		capturing := e.state == domain.CaptureCapturing
		e.mu.Unlock()
		if !capturing {
			return
		}

		buf, err := e.dev.ReadFrame()
		if err != nil {
			e.fail(fmt.Errorf("read capture frame: %w", err))
			return
		}
		if len(buf) == 0 {
			continue
		}

		// The device reuses its buffer across reads; hand the sink an
		// independent copy.
		frame := make([]byte, len(buf))
		copy(frame, buf)

		if err := sink.WriteFrame(frame); err != nil {
			e.fail(fmt.Errorf("deliver capture frame: %w", err))
			return
		}
	}
}

func (e *Engine) fail(err error) {
	e.mu.Lock()
	if e.state == domain.CaptureStopping || e.state == domain.CaptureStopped {
		// A read error raced with an explicit Stop is a normal
		// shutdown, not a device failure; Stop finishes teardown.
		e.mu.Unlock()
		return
	}
	e.state = domain.CaptureFailed
	e.mu.Unlock()

	_ = e.dev.Stop()
	_ = e.dev.Close()

	e.log.Error("capture failed", "error", err)
	if e.cb.OnFailed != nil {
		e.cb.OnFailed(err)
	}
	e.notifyStopped()
}

// Stop halts capture and releases the device. Safe to call when idle or
// repeatedly; the sink stops receiving frames before Stop returns.
func (e *Engine) Stop() {
	e.mu.Lock()
	switch e.state {
	case domain.CaptureCapturing:
		e.state = domain.CaptureStopping
	case domain.CaptureIdle:
		e.state = domain.CaptureStopped
		e.mu.Unlock()
		_ = e.dev.Close()
		return
	default:
		e.mu.Unlock()
		return
	}
	done := e.done
	e.mu.Unlock()

	// Stopping the device unblocks a pending ReadFrame; only then wait
	// for the loop so no frame arrives after teardown.
	_ = e.dev.Stop()
	if done != nil {
		select {
		case <-done:
		case <-time.After(stopTimeout):
			e.log.Warn("capture loop did not stop in time")
		}
	}
	_ = e.dev.Close()

	e.mu.Lock()
	if e.state == domain.CaptureStopping {
		e.state = domain.CaptureStopped
	}
	e.mu.Unlock()

	e.log.Info("capture stopped")
	e.notifyStopped()
}

func (e *Engine) notifyStopped() {
	e.stopped.Do(func() {
		if e.cb.OnStopped != nil {
			e.cb.OnStopped()
		}
	})
}
