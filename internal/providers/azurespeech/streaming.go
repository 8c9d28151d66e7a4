// Package azurespeech streams PCM audio to the Azure Speech service over a
// websocket and turns its messages into transcript events.
package azurespeech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/pattinsonfuture/Podssistant/internal/domain"
	"github.com/pattinsonfuture/Podssistant/internal/ports"
)

// placeholderPrefix marks credentials copied verbatim from a config template.
const placeholderPrefix = "YOUR_"

// ErrCredentialsMissing is returned by Validate when the subscription key or
// region is absent or still a template placeholder.
var ErrCredentialsMissing = errors.New("speech credentials are not configured")

// Config controls Azure Speech websocket settings.
type Config struct {
	// Key is the Speech resource subscription key.
	Key string
	// Region is the Azure region of the resource, e.g. "westeurope".
	Region string
	// Endpoint overrides the region-derived websocket base URL.
	Endpoint string
	Language string
}

// Provider implements ports.StreamingProvider for Azure Speech.
type Provider struct {
	cfg Config
}

func NewProvider(cfg Config) *Provider {
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	return &Provider{cfg: cfg}
}

// Validate checks credentials locally; it never opens a connection.
func (p *Provider) Validate() error {
	if isPlaceholder(p.cfg.Key) {
		return fmt.Errorf("%w: subscription key", ErrCredentialsMissing)
	}
	if isPlaceholder(p.cfg.Region) && strings.TrimSpace(p.cfg.Endpoint) == "" {
		return fmt.Errorf("%w: region", ErrCredentialsMissing)
	}
	return nil
}

func isPlaceholder(value string) bool {
	trimmed := strings.TrimSpace(value)
	return trimmed == "" || strings.HasPrefix(trimmed, placeholderPrefix)
}

func (p *Provider) Dial(ctx context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	wsURL, err := buildRecognizeURL(p.cfg, cfg)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Ocp-Apim-Subscription-Key", p.cfg.Key)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to speech websocket: %w", err)
	}

	session := &streamingSession{
		conn:   conn,
		events: make(chan domain.TranscriptEvent, 64),
		audio:  make(chan []byte, 32),
		done:   make(chan struct{}),
	}

	session.wg.Add(2)
	go session.readLoop()
	go session.writeLoop()
	go func() {
		session.wg.Wait()
		close(session.events)
		close(session.done)
		_ = conn.Close()
	}()

	go func() {
		<-ctx.Done()
		_ = session.Close()
	}()

	return session, nil
}

type streamingSession struct {
	conn *websocket.Conn

	events chan domain.TranscriptEvent
	audio  chan []byte
	done   chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeSendOnce sync.Once
	closeOnce     sync.Once
	sendMu        sync.RWMutex
	sendClosed    bool
}

func (s *streamingSession) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.sendMu.RLock()
	closed := s.sendClosed
	s.sendMu.RUnlock()
	if closed {
		return errors.New("audio stream is already closed")
	}

	copied := append([]byte(nil), chunk...)
	select {
	case s.audio <- copied:
		return nil
	case <-s.done:
		if err := s.waitErr(); err != nil {
			return err
		}
		return errors.New("session closed")
	}
}

func (s *streamingSession) CloseSend() error {
	s.closeSendOnce.Do(func() {
		s.sendMu.Lock()
		s.sendClosed = true
		close(s.audio)
		s.sendMu.Unlock()
	})
	return nil
}

func (s *streamingSession) Events() <-chan domain.TranscriptEvent {
	return s.events
}

func (s *streamingSession) Wait() error {
	<-s.done
	return s.waitErr()
}

func (s *streamingSession) Close() error {
	s.closeOnce.Do(func() {
		_ = s.CloseSend()
		_ = s.conn.Close()
	})
	<-s.done
	return s.waitErr()
}

func (s *streamingSession) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *streamingSession) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *streamingSession) writeLoop() {
	defer s.wg.Done()

	for chunk := range s.audio {
		if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			s.setErr(fmt.Errorf("failed to send audio: %w", err))
			return
		}
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"EndOfStream"}`)); err != nil {
		s.setErr(fmt.Errorf("failed to close stream: %w", err))
	}
}

func (s *streamingSession) readLoop() {
	defer s.wg.Done()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("failed to read provider event: %w", err))
			return
		}

		event, terminal, ok := parseMessage(payload)
		if !ok {
			continue
		}
		if terminal {
			if event.Kind == domain.TranscriptKindNoMatch && event.Text != "" {
				s.setErr(errors.New(event.Text))
			}
			return
		}
		s.emit(event)
	}
}

func (s *streamingSession) emit(event domain.TranscriptEvent) {
	select {
	case s.events <- event:
	case <-s.done:
	default:
	}
}

// speechMessage is the JSON envelope of a recognition message.
type speechMessage struct {
	Type              string `json:"type"`
	RecognitionStatus string `json:"recognitionStatus"`
	Text              string `json:"text"`
	DisplayText       string `json:"displayText"`
	Message           string `json:"message"`
}

// parseMessage maps a provider message onto a transcript event. terminal
// reports that the stream is over; ok reports that the payload was usable.
// A terminal event with no-match kind and non-empty text carries an error.
func parseMessage(payload []byte) (event domain.TranscriptEvent, terminal bool, ok bool) {
	var msg speechMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return domain.TranscriptEvent{}, false, false
	}

	text := strings.TrimSpace(msg.DisplayText)
	if text == "" {
		text = strings.TrimSpace(msg.Text)
	}

	switch strings.ToLower(strings.TrimSpace(msg.Type)) {
	case "speech.hypothesis", "partial":
		return domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: text}, false, true
	case "speech.phrase", "final":
		if strings.EqualFold(msg.RecognitionStatus, "NoMatch") || text == "" {
			return domain.TranscriptEvent{Kind: domain.TranscriptKindNoMatch}, false, true
		}
		return domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: text}, false, true
	case "speech.endofstream", "end":
		return domain.TranscriptEvent{}, true, true
	case "error":
		message := strings.TrimSpace(msg.Message)
		if message == "" {
			message = "speech service returned an unknown error"
		}
		return domain.TranscriptEvent{Kind: domain.TranscriptKindNoMatch, Text: message}, true, true
	default:
		return domain.TranscriptEvent{}, false, false
	}
}

func buildRecognizeURL(providerCfg Config, streamCfg ports.StreamingConfig) (string, error) {
	base := strings.TrimSpace(providerCfg.Endpoint)
	if base == "" {
		base = fmt.Sprintf("wss://%s.stt.speech.microsoft.com/speech/recognition/conversation/cognitiveservices/v1", providerCfg.Region)
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	recognizeURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid speech endpoint: %w", err)
	}

	if streamCfg.SampleRate <= 0 {
		streamCfg.SampleRate = 16000
	}
	if streamCfg.BitsPerSample <= 0 {
		streamCfg.BitsPerSample = 16
	}
	if streamCfg.Channels <= 0 {
		streamCfg.Channels = 1
	}

	language := streamCfg.Language
	if language == "" {
		language = providerCfg.Language
	}

	query := recognizeURL.Query()
	query.Set("language", language)
	query.Set("format", "simple")
	query.Set("sampleRate", fmt.Sprintf("%d", streamCfg.SampleRate))
	query.Set("bitsPerSample", fmt.Sprintf("%d", streamCfg.BitsPerSample))
	query.Set("channels", fmt.Sprintf("%d", streamCfg.Channels))
	query.Set("interimResults", fmt.Sprintf("%t", streamCfg.InterimResults))
	recognizeURL.RawQuery = query.Encode()
	return recognizeURL.String(), nil
}
