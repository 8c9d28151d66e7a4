// Command podssistant listens to system audio, transcribes it live and
// answers questions about what was said.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/pattinsonfuture/Podssistant/internal/audio"
	"github.com/pattinsonfuture/Podssistant/internal/bootstrap"
	"github.com/pattinsonfuture/Podssistant/internal/config"
	"github.com/pattinsonfuture/Podssistant/internal/domain"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "podssistant.yaml", "path to the YAML config file")
	flag.Parse()

	// Optional; credentials usually live in .env during development.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log := bootstrap.NewLogger(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services := bootstrap.Build(cfg, &consoleSink{}, log)
	defer services.Coordinator.Close()

	if cfg.WakeWord.Enabled {
		if err := services.Coordinator.StartWakeWord(); err != nil {
			log.Warn("wake word listener unavailable", "error", err)
		}
	}

	fmt.Println("podssistant ready. Commands: start, stop, ask <question>, transcript, status, devices, quit")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := dispatch(ctx, services, line); quit {
				return nil
			}
		}
	}
}

func dispatch(ctx context.Context, services *bootstrap.Services, line string) (quit bool) {
	command, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	coordinator := services.Coordinator

	switch strings.ToLower(command) {
	case "":
	case "start":
		id, err := coordinator.StartRecording(ctx)
		if err != nil {
			fmt.Println("could not start recording:", err)
			break
		}
		fmt.Println("recording, session", id)
	case "stop":
		if err := coordinator.StopRecording(); err != nil {
			fmt.Println("recording stopped with error:", err)
		}
	case "ask":
		answer, err := coordinator.AskQuestion(ctx, rest)
		if err != nil {
			fmt.Println("cannot answer:", err)
			break
		}
		fmt.Println(answer)
	case "transcript":
		fmt.Println(coordinator.Transcript())
		if partial := coordinator.PartialTranscript(); partial != "" {
			fmt.Println("...", partial)
		}
	case "status":
		printStatus(coordinator.Status())
	case "devices":
		printDevices()
	case "quit", "exit":
		return true
	default:
		fmt.Println("unknown command:", command)
	}
	return false
}

func printStatus(status domain.Status) {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		fmt.Println("status unavailable:", err)
		return
	}
	fmt.Println(string(data))
}

func printDevices() {
	devices, err := audio.ListInputDevices()
	if err != nil {
		fmt.Println("could not list devices:", err)
		return
	}
	for _, dev := range devices {
		marker := " "
		if dev.Loopback {
			marker = "*"
		}
		fmt.Printf("%s [%d] %s (%d ch)\n", marker, dev.Index, dev.Name, dev.Channels)
	}
	fmt.Println("* = loopback/monitor device carrying system audio")
}

// consoleSink prints backend events to stdout. Partials rewrite one line in
// place; finals are kept.
type consoleSink struct{}

func (consoleSink) RecordingStarted(sessionID string) {
	fmt.Println("\n[recording started]", sessionID)
}

func (consoleSink) RecordingStopped(reason string) {
	fmt.Println("\n[recording stopped]", reason)
}

func (consoleSink) RecordingFailed(code domain.ErrorCode, detail string) {
	fmt.Printf("\n[recording failed] %s: %s\n", code, detail)
}

func (consoleSink) PartialTranscript(text string) {
	fmt.Printf("\r... %s", text)
}

func (consoleSink) FinalTranscript(text string) {
	fmt.Printf("\r%s\n", text)
}

func (consoleSink) TranscriptionError(message string) {
	fmt.Println("\n[transcription error]", message)
}

func (consoleSink) TranscriptionEnded(reason string) {
	fmt.Println("\n[transcription ended]", reason)
}

func (consoleSink) WakeWordDetected(keyword string) {
	fmt.Printf("\n[wake word] %q detected, listening for a question\n", keyword)
}

func (consoleSink) WakeWordError(message string) {
	fmt.Println("\n[wake word error]", message)
}
