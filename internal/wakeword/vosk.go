package wakeword

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	vosk "github.com/alphacep/vosk-api/go"

	"github.com/pattinsonfuture/Podssistant/internal/audio"
	"github.com/pattinsonfuture/Podssistant/internal/ports"
)

// VoskConfig configures the offline keyword engine.
type VoskConfig struct {
	// ModelPath points at an unpacked Vosk model directory.
	ModelPath string
	// Keyword is the phrase that wakes the assistant, e.g. "hi pod".
	Keyword string
	// DeviceQuery selects the microphone by name substring; empty uses the
	// default input device.
	DeviceQuery string
	// AttemptWindow bounds one detection attempt.
	AttemptWindow time.Duration
	// QuestionWindow bounds one spoken-question capture.
	QuestionWindow time.Duration
}

func (c VoskConfig) withDefaults() VoskConfig {
	if c.Keyword == "" {
		c.Keyword = "hi pod"
	}
	if c.AttemptWindow <= 0 {
		c.AttemptWindow = 2 * time.Second
	}
	if c.QuestionWindow <= 0 {
		c.QuestionWindow = 8 * time.Second
	}
	return c
}

// VoskEngine detects a keyword in microphone audio with a local Vosk model.
// Detection runs against a grammar-restricted recognizer so everything that
// is not the keyword maps to [unk]; question capture uses the full model.
type VoskEngine struct {
	cfg    VoskConfig
	dev    *audio.Device
	closed chan struct{}

	mu         sync.Mutex
	model      *vosk.VoskModel
	spotter    *vosk.VoskRecognizer
	recognizer *vosk.VoskRecognizer
}

// NewVoskEngine loads the model and opens the microphone. Both are held until
// Close; a missing model fails here, before any loop starts.
func NewVoskEngine(cfg VoskConfig) (*VoskEngine, error) {
	cfg = cfg.withDefaults()

	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("wake word model not found at %q: %w", cfg.ModelPath, err)
	}
	model, err := vosk.NewModel(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load wake word model: %w", err)
	}

	dev := audio.NewDevice(audio.DeviceConfig{
		Query:    cfg.DeviceQuery,
		Channels: 1,
	})
	format, err := dev.Open()
	if err != nil {
		model.Free()
		return nil, fmt.Errorf("open wake word microphone: %w", err)
	}

	grammar, err := json.Marshal([]string{cfg.Keyword, "[unk]"})
	if err != nil {
		model.Free()
		_ = dev.Close()
		return nil, err
	}
	spotter, err := vosk.NewRecognizerGrm(model, float64(format.SampleRate), string(grammar))
	if err != nil {
		model.Free()
		_ = dev.Close()
		return nil, fmt.Errorf("create keyword recognizer: %w", err)
	}
	recognizer, err := vosk.NewRecognizer(model, float64(format.SampleRate))
	if err != nil {
		spotter.Free()
		model.Free()
		_ = dev.Close()
		return nil, fmt.Errorf("create question recognizer: %w", err)
	}

	if err := dev.Start(); err != nil {
		recognizer.Free()
		spotter.Free()
		model.Free()
		_ = dev.Close()
		return nil, fmt.Errorf("start wake word microphone: %w", err)
	}

	return &VoskEngine{
		cfg:        cfg,
		dev:        dev,
		closed:     make(chan struct{}),
		model:      model,
		spotter:    spotter,
		recognizer: recognizer,
	}, nil
}

// Spot runs one bounded detection attempt. A result with Detected false and a
// nil error simply means the keyword was not heard this time.
func (e *VoskEngine) Spot(ctx context.Context) (ports.SpotResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.spotter == nil {
		return ports.SpotResult{}, fmt.Errorf("%w: engine closed", ErrFatal)
	}

	deadline := time.Now().Add(e.cfg.AttemptWindow)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return ports.SpotResult{}, err
		}
		buf, err := e.dev.ReadFrame()
		if err != nil {
			if e.isClosed() {
				return ports.SpotResult{}, ctx.Err()
			}
			return ports.SpotResult{}, fmt.Errorf("read wake word audio: %w", err)
		}
		if e.spotter.AcceptWaveform(buf) != 0 {
			text := resultText(e.spotter.Result())
			e.spotter.Reset()
			return e.matchKeyword(text), nil
		}
	}

	text := resultText(e.spotter.FinalResult())
	e.spotter.Reset()
	return e.matchKeyword(text), nil
}

func (e *VoskEngine) matchKeyword(text string) ports.SpotResult {
	if strings.Contains(strings.ToLower(text), strings.ToLower(e.cfg.Keyword)) {
		return ports.SpotResult{Detected: true, Keyword: e.cfg.Keyword}
	}
	return ports.SpotResult{}
}

// RecognizeOnce transcribes one short utterance with the full model. It
// returns early on the recognizer's first end-of-utterance.
func (e *VoskEngine) RecognizeOnce(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.recognizer == nil {
		return "", fmt.Errorf("%w: engine closed", ErrFatal)
	}

	deadline := time.Now().Add(e.cfg.QuestionWindow)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		buf, err := e.dev.ReadFrame()
		if err != nil {
			return "", fmt.Errorf("read question audio: %w", err)
		}
		if e.recognizer.AcceptWaveform(buf) != 0 {
			text := resultText(e.recognizer.Result())
			e.recognizer.Reset()
			if text != "" {
				return text, nil
			}
		}
	}

	text := resultText(e.recognizer.FinalResult())
	e.recognizer.Reset()
	return text, nil
}

// Close stops the microphone and frees the model. The device is stopped
// before the recognizers are freed so a blocked read returns first.
func (e *VoskEngine) Close() error {
	select {
	case <-e.closed:
		return nil
	default:
		close(e.closed)
	}
	_ = e.dev.Stop()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.spotter != nil {
		e.spotter.Free()
		e.spotter = nil
	}
	if e.recognizer != nil {
		e.recognizer.Free()
		e.recognizer = nil
	}
	if e.model != nil {
		e.model.Free()
		e.model = nil
	}
	return e.dev.Close()
}

func (e *VoskEngine) isClosed() bool {
	select {
	case <-e.closed:
		return true
	default:
		return false
	}
}

type voskResult struct {
	Text string `json:"text"`
}

func resultText(payload string) string {
	var result voskResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return ""
	}
	text := strings.TrimSpace(result.Text)
	if text == "[unk]" {
		return ""
	}
	return text
}
