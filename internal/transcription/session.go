// Package transcription drives one streaming recognition session over a
// provider websocket, from credential checks through the final event.
package transcription

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

var (
	// ErrAlreadyConfigured is returned by a second Configure call; a session
	// is single-use and binds one audio format for its lifetime.
	ErrAlreadyConfigured = errors.New("session already configured")
	// ErrNotConfigured is returned by Start before a successful Configure.
	ErrNotConfigured = errors.New("session is not configured")
	// ErrSessionClosed is returned when audio arrives after the session
	// reached a terminal state.
	ErrSessionClosed = errors.New("transcription session closed")
)

const (
	// maxPendingFrames bounds audio buffered between Configure and Start.
	// On overflow the oldest frames are dropped so recent audio survives.
	maxPendingFrames = 512

	stopTimeout = 4 * time.Second
)

// Session is a single-use streaming recognition session. Audio written into
// its sink before Start is buffered and flushed once the wire session is up.
// Ended and Error are terminal; retrying means creating a new session.
type Session struct {
	provider ports.StreamingProvider
	language string
	interim  bool
	cb       ports.TranscriptionCallbacks
	log      *slog.Logger

	mu           sync.Mutex
	state        domain.TranscriptionState
	format       domain.AudioFormat
	pending      [][]byte
	wire         ports.StreamingSession
	cancel       context.CancelFunc
	consumerDone chan struct{}

	stopOnce sync.Once
}

func NewSession(provider ports.StreamingProvider, language string, interim bool, cb ports.TranscriptionCallbacks, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		provider: provider,
		language: language,
		interim:  interim,
		cb:       cb,
		log:      log.With("component", "transcription"),
		state:    domain.TranscriptionUnconfigured,
	}
}

// State returns the current session state.
func (s *Session) State() domain.TranscriptionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Configure checks credentials and the audio format without touching the
// network and returns the sink capture frames should be pushed into.
func (s *Session) Configure(format domain.AudioFormat) (ports.FrameSink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.TranscriptionUnconfigured {
		return nil, ErrAlreadyConfigured
	}
	if err := s.provider.Validate(); err != nil {
		return nil, fmt.Errorf("validate speech credentials: %w", err)
	}
	if !format.Valid() {
		return nil, fmt.Errorf("invalid audio format %+v", format)
	}

	s.format = format
	s.state = domain.TranscriptionConfigured
	return s, nil
}

// WriteFrame implements ports.FrameSink. Before Start frames are buffered;
// while recognizing they go straight to the wire session.
func (s *Session) WriteFrame(pcm []byte) error {
	s.mu.Lock()
	switch s.state {
	case domain.TranscriptionConfigured:
		if len(s.pending) >= maxPendingFrames {
			s.pending = s.pending[1:]
		}
		s.pending = append(s.pending, pcm)
		s.mu.Unlock()
		return nil
	case domain.TranscriptionRecognizing:
		wire := s.wire
		s.mu.Unlock()
		return wire.SendAudio(pcm)
	default:
		s.mu.Unlock()
		return ErrSessionClosed
	}
}

// Start dials the provider, flushes any buffered audio and begins consuming
// recognition events. A dial failure leaves the session in the Error state.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != domain.TranscriptionConfigured {
		s.mu.Unlock()
		return ErrNotConfigured
	}
	format := s.format
	s.mu.Unlock()

	wireCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	wire, err := s.provider.Dial(wireCtx, ports.StreamingConfig{
		SampleRate:     format.SampleRate,
		BitsPerSample:  format.BitsPerSample,
		Channels:       format.Channels,
		Language:       s.language,
		InterimResults: s.interim,
	})
	if err != nil {
		cancel()
		s.mu.Lock()
		s.state = domain.TranscriptionError
		s.pending = nil
		s.mu.Unlock()
		return fmt.Errorf("start recognition stream: %w", err)
	}

	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.wire = wire
	s.cancel = cancel
	s.consumerDone = make(chan struct{})
	s.state = domain.TranscriptionRecognizing
	done := s.consumerDone
	s.mu.Unlock()

	for _, frame := range pending {
		if err := wire.SendAudio(frame); err != nil {
			s.log.Warn("failed to flush buffered audio", "error", err)
			break
		}
	}

	s.log.Info("recognition started",
		"sample_rate", format.SampleRate,
		"channels", format.Channels,
		"language", s.language,
	)

	go s.consume(wire, done)
	return nil
}

// consume drains recognition events and settles the terminal state. It is the
// only goroutine that invokes the session callbacks.
func (s *Session) consume(wire ports.StreamingSession, done chan struct{}) {
	defer close(done)

	for event := range wire.Events() {
		switch event.Kind {
		case domain.TranscriptKindPartial:
			if event.Text != "" && s.cb.OnPartial != nil {
				s.cb.OnPartial(event.Text)
			}
		case domain.TranscriptKindFinal:
			if s.cb.OnFinal != nil {
				s.cb.OnFinal(event.Text)
			}
		case domain.TranscriptKindNoMatch:
			// Heard audio, recognized nothing. Not an error and not a
			// transcript update.
		}
	}

	err := wire.Wait()

	s.mu.Lock()
	if err != nil {
		s.state = domain.TranscriptionError
	} else {
		s.state = domain.TranscriptionEnded
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error("recognition session failed", "error", err)
		if s.cb.OnError != nil {
			s.cb.OnError(err.Error())
		}
		if s.cb.OnSessionEnded != nil {
			s.cb.OnSessionEnded("error")
		}
		return
	}

	s.log.Info("recognition session ended")
	if s.cb.OnSessionEnded != nil {
		s.cb.OnSessionEnded("completed")
	}
}

// Stop closes the audio input and waits for the session to settle. Safe to
// call in any state and more than once.
func (s *Session) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		switch s.state {
		case domain.TranscriptionRecognizing:
			wire := s.wire
			done := s.consumerDone
			s.mu.Unlock()

			_ = wire.CloseSend()
			select {
			case <-done:
			case <-time.After(stopTimeout):
				s.log.Warn("recognition session did not settle in time, forcing close")
				_ = wire.Close()
				<-done
			}
		default:
			// Never reached the wire; nothing to drain.
			if s.state == domain.TranscriptionUnconfigured || s.state == domain.TranscriptionConfigured {
				s.state = domain.TranscriptionEnded
			}
			s.pending = nil
			s.mu.Unlock()
		}
	})
	return nil
}

// Factory builds single-use sessions over a shared provider.
type Factory struct {
	provider ports.StreamingProvider
	language string
	interim  bool
	log      *slog.Logger
}

func NewFactory(provider ports.StreamingProvider, language string, interim bool, log *slog.Logger) *Factory {
	return &Factory{provider: provider, language: language, interim: interim, log: log}
}

func (f *Factory) New(cb ports.TranscriptionCallbacks) ports.TranscriptionSession {
	return NewSession(f.provider, f.language, f.interim, cb, f.log)
}
