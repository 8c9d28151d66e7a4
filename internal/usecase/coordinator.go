// Package usecase orchestrates capture, transcription, wake word detection
// and question answering into one assistant session.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pattinsonfuture/Podssistant/internal/domain"
	"github.com/pattinsonfuture/Podssistant/internal/ports"
	"github.com/pattinsonfuture/Podssistant/internal/transcript"
)

var (
	// ErrEmptyQuestion is returned by AskQuestion for a blank question.
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrNoTranscript is returned when there is no finalized transcript to
	// ground an answer on. The language model is never contacted in that
	// case.
	ErrNoTranscript = errors.New("no transcript captured yet")
)

// ContextWindowChars is how much trailing transcript grounds each answer.
const ContextWindowChars = 2000

// Config controls coordinator behavior.
type Config struct {
	// ContextWindow overrides ContextWindowChars when positive.
	ContextWindow int
	// QuestionTimeout bounds a spoken question capture plus its answer.
	QuestionTimeout time.Duration
	// AppName titles desktop notifications.
	AppName string
}

func (c Config) withDefaults() Config {
	if c.ContextWindow <= 0 {
		c.ContextWindow = ContextWindowChars
	}
	if c.QuestionTimeout <= 0 {
		c.QuestionTimeout = 30 * time.Second
	}
	if c.AppName == "" {
		c.AppName = "Podssistant"
	}
	return c
}

// recordingSession is one bound capture/transcription pair. Both halves are
// single-use; the coordinator builds a fresh pair per recording.
type recordingSession struct {
	id      string
	capture ports.CaptureEngine
	session ports.TranscriptionSession
}

// Coordinator owns at most one active recording session, the wake word
// listener and the shared transcript. Engine callbacks are marshalled into a
// single event goroutine, so transcript writes and EventSink calls never run
// concurrently.
type Coordinator struct {
	captures ports.CaptureFactory
	sessions ports.TranscriptionFactory
	wake     ports.WakeListener
	answerer ports.Answerer
	notifier ports.Notifier
	events   ports.EventSink
	log      *slog.Logger
	cfg      Config

	transcript *transcript.Transcript

	mu      sync.Mutex
	current *recordingSession

	emitMu   sync.Mutex
	emitting bool
	loopCh   chan func()
	loopDone chan struct{}
}

func NewCoordinator(
	captures ports.CaptureFactory,
	sessions ports.TranscriptionFactory,
	wake ports.WakeListener,
	answerer ports.Answerer,
	notifier ports.Notifier,
	events ports.EventSink,
	cfg Config,
	log *slog.Logger,
) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	c := &Coordinator{
		captures:   captures,
		sessions:   sessions,
		wake:       wake,
		answerer:   answerer,
		notifier:   notifier,
		events:     events,
		log:        log.With("component", "coordinator"),
		cfg:        cfg.withDefaults(),
		transcript: transcript.New(),
		emitting:   true,
		loopCh:     make(chan func(), 128),
		loopDone:   make(chan struct{}),
	}
	go c.run()
	return c
}

// run executes marshalled events one at a time. Handlers must stay quick;
// blocking teardown happens on separate goroutines.
func (c *Coordinator) run() {
	defer close(c.loopDone)
	for fn := range c.loopCh {
		fn()
	}
}

func (c *Coordinator) emit(fn func()) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	if !c.emitting {
		return
	}
	c.loopCh <- fn
}

// StartRecording builds and starts a capture/transcription pair. Calling it
// while a recording is active is a no-op returning the active session id. On
// a partial failure everything already started is rolled back, so no
// half-bound session is left behind.
func (c *Coordinator) StartRecording(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		return c.current.id, nil
	}

	rs := &recordingSession{id: uuid.NewString()}

	engine, format, err := c.captures.New(ports.CaptureCallbacks{
		OnFailed: func(err error) {
			c.emit(func() { c.events.RecordingFailed(domain.ErrorCodeDevice, err.Error()) })
			go c.teardownIfCurrent(rs, "capture failure")
		},
	})
	if err != nil {
		c.emit(func() { c.events.RecordingFailed(domain.ErrorCodeDevice, err.Error()) })
		return "", fmt.Errorf("open capture engine: %w", err)
	}

	sess := c.sessions.New(ports.TranscriptionCallbacks{
		OnPartial: func(text string) {
			c.emit(func() {
				c.transcript.ApplyPartial(text)
				c.events.PartialTranscript(text)
			})
		},
		OnFinal: func(text string) {
			c.emit(func() {
				c.transcript.ApplyFinal(text)
				c.events.FinalTranscript(text)
			})
		},
		OnError: func(message string) {
			c.emit(func() { c.events.TranscriptionError(message) })
		},
		OnSessionEnded: func(reason string) {
			c.emit(func() { c.events.TranscriptionEnded(reason) })
			go c.teardownIfCurrent(rs, reason)
		},
	})

	sink, err := sess.Configure(format)
	if err != nil {
		engine.Stop()
		c.emit(func() { c.events.RecordingFailed(domain.ErrorCodeConfiguration, err.Error()) })
		return "", fmt.Errorf("configure transcription: %w", err)
	}

	// Capture starts first so early audio lands in the session's pre-start
	// buffer instead of being lost while the websocket dials.
	if err := engine.Start(sink); err != nil {
		_ = sess.Stop()
		engine.Stop()
		c.emit(func() { c.events.RecordingFailed(domain.ErrorCodeDevice, err.Error()) })
		return "", fmt.Errorf("start capture: %w", err)
	}

	if err := sess.Start(ctx); err != nil {
		engine.Stop()
		_ = sess.Stop()
		c.emit(func() { c.events.RecordingFailed(domain.ErrorCodeTranscription, err.Error()) })
		return "", fmt.Errorf("start transcription: %w", err)
	}

	rs.capture = engine
	rs.session = sess
	c.transcript.Reset()
	c.current = rs

	c.log.Info("recording started", "session_id", rs.id)
	c.emit(func() { c.events.RecordingStarted(rs.id) })
	return rs.id, nil
}

// StopRecording stops the active pair, capture first so no frame arrives
// after the recognition stream closes. Stopping while idle is a no-op.
func (c *Coordinator) StopRecording() error {
	c.mu.Lock()
	rs := c.current
	c.current = nil
	c.mu.Unlock()

	if rs == nil {
		return nil
	}

	rs.capture.Stop()
	err := rs.session.Stop()

	c.log.Info("recording stopped", "session_id", rs.id)
	c.emit(func() { c.events.RecordingStopped("stopped") })
	return err
}

// teardownIfCurrent releases the pair after a mid-session failure or a
// session that ended on its own. It does nothing when an explicit stop or a
// newer recording already displaced the pair.
func (c *Coordinator) teardownIfCurrent(rs *recordingSession, reason string) {
	c.mu.Lock()
	if c.current != rs {
		c.mu.Unlock()
		return
	}
	c.current = nil
	c.mu.Unlock()

	rs.capture.Stop()
	_ = rs.session.Stop()

	c.log.Warn("recording session torn down", "session_id", rs.id, "reason", reason)
	c.emit(func() { c.events.RecordingStopped(reason) })
}

// AskQuestion answers a typed question grounded on the trailing transcript
// window. A failure from the language model is returned as the answer text,
// not as an error, so the caller can always display something.
func (c *Coordinator) AskQuestion(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}

	contextText := c.transcript.Tail(c.cfg.ContextWindow)
	if contextText == "" {
		return "", ErrNoTranscript
	}

	answer, err := c.answerer.Ask(ctx, question, contextText)
	if err != nil {
		c.log.Error("question answering failed", "error", err)
		return "Error: " + err.Error(), nil
	}
	return answer, nil
}

// StartWakeWord launches the detection loop. Independent of recording: it
// runs whether or not a session is active.
func (c *Coordinator) StartWakeWord() error {
	if err := c.wake.Start(); err != nil {
		c.emit(func() { c.events.RecordingFailed(domain.ErrorCodeWakeWord, err.Error()) })
		return err
	}
	return nil
}

// StopWakeWord halts the detection loop.
func (c *Coordinator) StopWakeWord() {
	c.wake.Stop()
}

// OnWakeDetected handles one keyword detection. The transcript context is
// snapshotted at detection time, before the question is even spoken, so the
// answer reflects what was playing when the user interrupted.
func (c *Coordinator) OnWakeDetected(keyword string) {
	snapshot := c.transcript.Tail(c.cfg.ContextWindow)
	c.emit(func() { c.events.WakeWordDetected(keyword) })

	if err := c.notifier.Notify(c.cfg.AppName, "Listening for your question..."); err != nil {
		c.log.Debug("notification failed", "error", err)
	}

	go c.answerSpokenQuestion(snapshot)
}

func (c *Coordinator) answerSpokenQuestion(snapshot string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.QuestionTimeout)
	defer cancel()

	question, err := c.wake.CaptureQuestion(ctx)
	if err != nil {
		c.log.Warn("spoken question capture failed", "error", err)
		return
	}
	question = strings.TrimSpace(question)
	if question == "" {
		c.log.Info("no spoken question heard after wake word")
		return
	}
	c.log.Info("spoken question captured", "question", question)

	if snapshot == "" {
		_ = c.notifier.Notify(c.cfg.AppName, "Nothing has been transcribed yet, so there is no context to answer from.")
		return
	}

	answer, err := c.answerer.Ask(ctx, question, snapshot)
	if err != nil {
		answer = "Error: " + err.Error()
	}
	if err := c.notifier.Notify(c.cfg.AppName, answer); err != nil {
		c.log.Warn("failed to deliver answer notification", "error", err)
	}
}

// OnWakeError surfaces a fatal listener error.
func (c *Coordinator) OnWakeError(err error) {
	c.emit(func() { c.events.WakeWordError(err.Error()) })
}

// Transcript returns the finalized transcript text.
func (c *Coordinator) Transcript() string {
	return c.transcript.FinalText()
}

// PartialTranscript returns the pending unfinalized segment.
func (c *Coordinator) PartialTranscript() string {
	return c.transcript.Partial()
}

// Status reports the runtime state of all moving parts.
func (c *Coordinator) Status() domain.Status {
	c.mu.Lock()
	rs := c.current
	c.mu.Unlock()

	status := domain.Status{
		Capture:       domain.CaptureIdle,
		Transcription: domain.TranscriptionUnconfigured,
		WakeWord:      c.wake.State(),
	}
	if rs != nil {
		status.SessionID = rs.id
		status.Recording = true
		status.Capture = rs.capture.State()
		status.Transcription = rs.session.State()
	}
	return status
}

// Close stops everything and drains the event loop.
func (c *Coordinator) Close() {
	_ = c.StopRecording()
	c.wake.Stop()

	c.emitMu.Lock()
	if c.emitting {
		c.emitting = false
		close(c.loopCh)
	}
	c.emitMu.Unlock()
	<-c.loopDone
}
