package domain

// AudioFormat describes the PCM format a capture device was opened with.
// It is fixed once the device is open and must match the transcription
// session's stream configuration exactly.
type AudioFormat struct {
	SampleRate    int
	BitsPerSample int
	Channels      int
}

// Valid reports whether the format can drive a recognition stream.
func (f AudioFormat) Valid() bool {
	return f.SampleRate > 0 && f.BitsPerSample > 0 && f.Channels > 0
}

// CaptureState models the capture engine lifecycle.
type CaptureState string

const (
	CaptureIdle      CaptureState = "idle"
	CaptureCapturing CaptureState = "capturing"
	CaptureStopping  CaptureState = "stopping"
	CaptureStopped   CaptureState = "stopped"
	CaptureFailed    CaptureState = "failed"
)

// TranscriptionState models a single streaming recognition session.
// Ended and Error are terminal; a new session object is required to retry.
type TranscriptionState string

const (
	TranscriptionUnconfigured TranscriptionState = "unconfigured"
	TranscriptionConfigured   TranscriptionState = "configured"
	TranscriptionRecognizing  TranscriptionState = "recognizing"
	TranscriptionEnded        TranscriptionState = "ended"
	TranscriptionError        TranscriptionState = "error"
)

// WakeWordState models the keyword listener loop.
type WakeWordState string

const (
	WakeIdle      WakeWordState = "idle"
	WakeListening WakeWordState = "listening"
	WakeDetecting WakeWordState = "detecting"
	WakeStopped   WakeWordState = "stopped"
	WakeError     WakeWordState = "error"
)

// TranscriptKind identifies what a recognition stream event carries.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
	// TranscriptKindNoMatch is emitted when the recognizer heard audio but
	// produced no speech. It carries no content and is swallowed upstream.
	TranscriptKindNoMatch TranscriptKind = "no_match"
)

// TranscriptEvent represents incremental recognition output.
type TranscriptEvent struct {
	Kind TranscriptKind
	Text string
}

// ErrorCode identifies the error class surfaced to the presentation layer.
type ErrorCode string

const (
	ErrorCodeConfiguration ErrorCode = "configuration"
	ErrorCodeDevice        ErrorCode = "device"
	ErrorCodeTranscription ErrorCode = "transcription"
	ErrorCodeWakeWord      ErrorCode = "wake_word"
	ErrorCodeLLM           ErrorCode = "llm"
)

// Status summarizes the runtime state for the frontend.
type Status struct {
	SessionID     string             `json:"sessionId,omitempty"`
	Recording     bool               `json:"recording"`
	Capture       CaptureState       `json:"capture"`
	Transcription TranscriptionState `json:"transcription"`
	WakeWord      WakeWordState      `json:"wakeWord"`
}

// InputDevice describes a capture device visible to the audio backend.
type InputDevice struct {
	Index    int
	Name     string
	Channels int
	// Loopback marks monitor/stereo-mix style devices that carry the
	// system's output signal rather than a microphone.
	Loopback bool
}
