// Package wakeword runs the always-on keyword detection loop.
package wakeword

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pattinsonfuture/Podssistant/internal/domain"
	"github.com/pattinsonfuture/Podssistant/internal/ports"
)

// ErrFatal marks engine errors no retry can recover from, such as a freed
// model. The listener terminates on them instead of backing off.
var ErrFatal = errors.New("wake word engine failed fatally")

// ErrNotListening is returned by CaptureQuestion while the loop is down.
var ErrNotListening = errors.New("wake word listener is not running")

// Callbacks receive listener events from the loop goroutine.
type Callbacks struct {
	// OnDetected fires once per detection; the loop keeps running after it.
	OnDetected func(keyword string)
	// OnError fires on every failed attempt. For non-fatal errors the loop
	// retries after a backoff; an ErrFatal error terminates it.
	OnError func(err error)
}

// Backoff shapes the retry delays between failed detection attempts.
type Backoff struct {
	// Transient is the pause after an isolated failed attempt.
	Transient time.Duration
	// Failure is the pause once FailureThreshold attempts failed in a row.
	Failure time.Duration
	// FailureThreshold is the consecutive-failure count that switches the
	// loop from the transient pause to the failure pause.
	FailureThreshold int
}

func (b Backoff) withDefaults() Backoff {
	if b.Transient <= 0 {
		b.Transient = 50 * time.Millisecond
	}
	if b.Failure <= 0 {
		b.Failure = time.Second
	}
	if b.FailureThreshold <= 0 {
		b.FailureThreshold = 3
	}
	return b
}

// Listener owns the detection loop. It is independent of the recording
// session: starting, stopping or failing one never touches the other.
type Listener struct {
	factory ports.KeywordEngineFactory
	cb      Callbacks
	backoff Backoff
	log     *slog.Logger

	// engineMu serializes single-shot attempts with question capture; the
	// engine runs at most one recognition at a time.
	engineMu sync.Mutex

	mu     sync.Mutex
	state  domain.WakeWordState
	engine ports.KeywordEngine
	cancel context.CancelFunc
	done   chan struct{}
}

func NewListener(factory ports.KeywordEngineFactory, cb Callbacks, backoff Backoff, log *slog.Logger) *Listener {
	if log == nil {
		log = slog.Default()
	}
	return &Listener{
		factory: factory,
		cb:      cb,
		backoff: backoff.withDefaults(),
		log:     log.With("component", "wakeword"),
		state:   domain.WakeIdle,
	}
}

// State returns the current listener state.
func (l *Listener) State() domain.WakeWordState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Start acquires the engine and launches the loop. Starting an already
// running listener is a no-op.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case domain.WakeListening, domain.WakeDetecting:
		return nil
	}

	engine, err := l.factory()
	if err != nil {
		return fmt.Errorf("acquire wake word engine: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.engine = engine
	l.cancel = cancel
	l.done = make(chan struct{})
	l.state = domain.WakeListening

	l.log.Info("wake word listening started")
	go l.run(ctx, engine, l.done)
	return nil
}

func (l *Listener) run(ctx context.Context, engine ports.KeywordEngine, done chan struct{}) {
	defer close(done)

	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}

		l.setAttemptState(domain.WakeDetecting)
		l.engineMu.Lock()
		result, err := engine.Spot(ctx)
		l.engineMu.Unlock()
		l.setAttemptState(domain.WakeListening)

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, ErrFatal) {
				l.mu.Lock()
				l.state = domain.WakeError
				l.mu.Unlock()
				l.log.Error("wake word listener terminated", "error", err)
				if l.cb.OnError != nil {
					l.cb.OnError(err)
				}
				return
			}

			failures++
			delay := l.backoff.Transient
			if failures >= l.backoff.FailureThreshold {
				delay = l.backoff.Failure
			}
			l.log.Warn("wake word attempt failed",
				"error", err,
				"failures", failures,
				"retry_in", delay,
			)
			if l.cb.OnError != nil {
				l.cb.OnError(err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		failures = 0
		if result.Detected {
			l.log.Info("wake word detected", "keyword", result.Keyword)
			if l.cb.OnDetected != nil {
				l.cb.OnDetected(result.Keyword)
			}
		}
	}
}

// Stop cancels the loop and releases the engine. Safe to call when idle or
// repeatedly. A listener that already terminated fatally stays in Error.
func (l *Listener) Stop() {
	l.mu.Lock()
	switch l.state {
	case domain.WakeListening, domain.WakeDetecting, domain.WakeError:
	default:
		l.mu.Unlock()
		return
	}
	cancel := l.cancel
	engine := l.engine
	done := l.done
	l.cancel = nil
	l.engine = nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if engine != nil {
		// Closing the engine unblocks a pending recognition attempt.
		_ = engine.Close()
	}
	if done != nil {
		<-done
	}

	l.mu.Lock()
	if l.state != domain.WakeError {
		l.state = domain.WakeStopped
	}
	l.mu.Unlock()
	l.log.Info("wake word listening stopped")
}

// setAttemptState toggles Listening and Detecting around single-shot
// attempts without masking a terminal or stopped state.
func (l *Listener) setAttemptState(state domain.WakeWordState) {
	l.mu.Lock()
	if l.state == domain.WakeListening || l.state == domain.WakeDetecting {
		l.state = state
	}
	l.mu.Unlock()
}

// CaptureQuestion grabs one short spoken utterance right after a detection.
// It shares the engine with the loop, so it waits for the in-flight attempt
// to finish before recording.
func (l *Listener) CaptureQuestion(ctx context.Context) (string, error) {
	l.mu.Lock()
	engine := l.engine
	switch l.state {
	case domain.WakeListening, domain.WakeDetecting:
	default:
		engine = nil
	}
	l.mu.Unlock()
	if engine == nil {
		return "", ErrNotListening
	}

	l.engineMu.Lock()
	text, err := engine.RecognizeOnce(ctx)
	l.engineMu.Unlock()

	if err != nil {
		return "", fmt.Errorf("capture spoken question: %w", err)
	}
	return text, nil
}
