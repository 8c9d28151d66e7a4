// Package bootstrap assembles the application from configuration.
package bootstrap

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pattinsonfuture/Podssistant/internal/audio"
	"github.com/pattinsonfuture/Podssistant/internal/config"
	"github.com/pattinsonfuture/Podssistant/internal/llm"
	"github.com/pattinsonfuture/Podssistant/internal/notify"
	"github.com/pattinsonfuture/Podssistant/internal/ports"
	"github.com/pattinsonfuture/Podssistant/internal/providers/azurespeech"
	"github.com/pattinsonfuture/Podssistant/internal/transcription"
	"github.com/pattinsonfuture/Podssistant/internal/usecase"
	"github.com/pattinsonfuture/Podssistant/internal/wakeword"
)

// Services holds the wired application graph.
type Services struct {
	Coordinator *usecase.Coordinator
	Wake        *wakeword.Listener
	Config      config.Config
	Log         *slog.Logger
}

// NewLogger builds the process logger at the configured level.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// Build wires providers, factories and the coordinator. The wake word
// listener's callbacks close over the coordinator, which exists only after
// the listener, so they bind it late; the listener fires nothing before
// Start.
func Build(cfg config.Config, events ports.EventSink, log *slog.Logger) *Services {
	if log == nil {
		log = slog.Default()
	}

	provider := azurespeech.NewProvider(azurespeech.Config{
		Key:      cfg.Speech.Key,
		Region:   cfg.Speech.Region,
		Endpoint: cfg.Speech.Endpoint,
		Language: cfg.Speech.Language,
	})

	captures := audio.NewFactory(audio.DeviceConfig{
		Query:           cfg.Audio.DeviceQuery,
		PreferLoopback:  true,
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
	}, log)

	sessions := transcription.NewFactory(provider, cfg.Speech.Language, cfg.Speech.Interim(), log)

	answerer := llm.NewClient(llm.Config{
		Endpoint:   cfg.LLM.Endpoint,
		Key:        cfg.LLM.Key,
		Deployment: cfg.LLM.Deployment,
		APIVersion: cfg.LLM.APIVersion,
		Timeout:    time.Duration(cfg.LLM.Timeout),
	}, log)

	engineFactory := func() (ports.KeywordEngine, error) {
		return wakeword.NewVoskEngine(wakeword.VoskConfig{
			ModelPath:   cfg.WakeWord.ModelPath,
			Keyword:     cfg.WakeWord.Keyword,
			DeviceQuery: cfg.WakeWord.MicQuery,
		})
	}

	var coordinator *usecase.Coordinator
	listener := wakeword.NewListener(engineFactory, wakeword.Callbacks{
		OnDetected: func(keyword string) { coordinator.OnWakeDetected(keyword) },
		OnError:    func(err error) { coordinator.OnWakeError(err) },
	}, wakeword.Backoff{}, log)

	coordinator = usecase.NewCoordinator(
		captures,
		sessions,
		listener,
		answerer,
		notify.NewDesktop(),
		events,
		usecase.Config{},
		log,
	)

	return &Services{
		Coordinator: coordinator,
		Wake:        listener,
		Config:      cfg,
		Log:         log,
	}
}
