package ports

import (
	"context"

	"github.com/pattinsonfuture/Podssistant/internal/domain"
)

// FrameSink consumes raw PCM frames. Ownership of the slice transfers to the
// sink on WriteFrame; the producer must not reuse or mutate it afterwards.
type FrameSink interface {
	WriteFrame(pcm []byte) error
}

// CaptureDevice is a physical audio input. ReadFrame returns a buffer owned
// by the device that is only valid until the next ReadFrame call.
type CaptureDevice interface {
	Open() (domain.AudioFormat, error)
	Start() error
	ReadFrame() ([]byte, error)
	Stop() error
	Close() error
}

// CaptureCallbacks receive capture lifecycle events. Both may be invoked from
// the engine's capture goroutine.
type CaptureCallbacks struct {
	// OnFailed fires on an unrecoverable device error mid-capture.
	OnFailed func(err error)
	// OnStopped fires exactly once per Start/Stop cycle, whatever ended it.
	OnStopped func()
}

// CaptureEngine captures audio frames into a bound sink.
type CaptureEngine interface {
	Format() domain.AudioFormat
	Start(sink FrameSink) error
	// Stop halts capture and releases the device. Idempotent.
	Stop()
	State() domain.CaptureState
}

// CaptureFactory opens a fresh capture engine. A failed device is terminal
// for its engine instance, so the coordinator creates one per recording.
type CaptureFactory interface {
	New(cb CaptureCallbacks) (CaptureEngine, domain.AudioFormat, error)
}

// StreamingConfig describes provider-agnostic recognition stream settings.
type StreamingConfig struct {
	SampleRate     int
	BitsPerSample  int
	Channels       int
	Language       string
	InterimResults bool
}

// StreamingSession is an active recognition wire session.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// StreamingProvider dials recognition wire sessions.
type StreamingProvider interface {
	// Validate checks credentials without touching the network.
	Validate() error
	Dial(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// TranscriptionCallbacks receive recognition session events. They are invoked
// from the session's event goroutine.
type TranscriptionCallbacks struct {
	OnPartial      func(text string)
	OnFinal        func(text string)
	OnError        func(message string)
	OnSessionEnded func(reason string)
}

// TranscriptionSession converts a pushed audio stream into text events.
type TranscriptionSession interface {
	// Configure validates credentials and the audio format and returns the
	// sink capture should push into. Frames written before Start are
	// buffered, not dropped.
	Configure(format domain.AudioFormat) (FrameSink, error)
	Start(ctx context.Context) error
	// Stop closes the input sink before awaiting session termination. Safe
	// to call even if Start never succeeded. Idempotent.
	Stop() error
	State() domain.TranscriptionState
}

// TranscriptionFactory creates recognition sessions. Ended/errored sessions
// are terminal, so the coordinator creates one per recording.
type TranscriptionFactory interface {
	New(cb TranscriptionCallbacks) TranscriptionSession
}

// SpotResult is the outcome of one single-shot keyword recognition attempt.
type SpotResult struct {
	Detected bool
	Keyword  string
}

// KeywordEngine runs single-shot keyword recognition attempts against a
// local model. Close releases the audio input and the model handles.
type KeywordEngine interface {
	Spot(ctx context.Context) (SpotResult, error)
	// RecognizeOnce captures and transcribes a single short utterance,
	// used to pick up a spoken question right after a detection.
	RecognizeOnce(ctx context.Context) (string, error)
	Close() error
}

// KeywordEngineFactory acquires the keyword engine's resources. Called on
// listener Start so that a missing model fails before the loop begins.
type KeywordEngineFactory func() (KeywordEngine, error)

// WakeListener runs the always-on keyword detection loop.
type WakeListener interface {
	Start() error
	Stop()
	State() domain.WakeWordState
	CaptureQuestion(ctx context.Context) (string, error)
}

// Answerer asks the language model a question grounded on transcript context.
type Answerer interface {
	// Validate checks credentials without touching the network.
	Validate() error
	Ask(ctx context.Context, question, contextText string) (string, error)
}

// Notifier raises a desktop notification.
type Notifier interface {
	Notify(title, message string) error
}

// EventSink surfaces backend events to the presentation layer. All methods
// are invoked from the coordinator's event loop, never concurrently.
type EventSink interface {
	RecordingStarted(sessionID string)
	RecordingStopped(reason string)
	RecordingFailed(code domain.ErrorCode, detail string)
	PartialTranscript(text string)
	FinalTranscript(text string)
	TranscriptionError(message string)
	TranscriptionEnded(reason string)
	WakeWordDetected(keyword string)
	WakeWordError(message string)
}
