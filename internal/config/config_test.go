package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "podssistant.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromYAML(t *testing.T) {
	path := writeConfig(t, `
speech:
  key: abc123
  region: westeurope
  language: en-GB
llm:
  endpoint: https://example.openai.azure.com
  key: def456
  deployment: gpt-4o
wake_word:
  enabled: true
  model_path: /models/vosk-small
  keyword: hey pod
audio:
  device_query: monitor
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Speech.Key != "abc123" || cfg.Speech.Region != "westeurope" {
		t.Fatalf("speech config not read: %+v", cfg.Speech)
	}
	if cfg.Speech.Language != "en-GB" {
		t.Fatalf("language not read: %q", cfg.Speech.Language)
	}
	if cfg.LLM.Deployment != "gpt-4o" {
		t.Fatalf("llm config not read: %+v", cfg.LLM)
	}
	if !cfg.WakeWord.Enabled || cfg.WakeWord.Keyword != "hey pod" {
		t.Fatalf("wake word config not read: %+v", cfg.WakeWord)
	}
	if cfg.Audio.DeviceQuery != "monitor" {
		t.Fatalf("audio config not read: %+v", cfg.Audio)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, `
speech:
  key: from-file
  region: westeurope
`)
	t.Setenv("SPEECH_KEY", "from-env")
	t.Setenv("WAKE_WORD_KEYWORD", "hi pod friend")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Speech.Key != "from-env" {
		t.Fatalf("environment did not win: %q", cfg.Speech.Key)
	}
	if cfg.Speech.Region != "westeurope" {
		t.Fatalf("file value lost: %q", cfg.Speech.Region)
	}
	if cfg.WakeWord.Keyword != "hi pod friend" {
		t.Fatalf("env-only value not applied: %q", cfg.WakeWord.Keyword)
	}
}

func TestMissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}
	if cfg.Speech.Language != "en-US" {
		t.Fatalf("defaults not applied: %+v", cfg.Speech)
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.WakeWord.Keyword != "hi pod" {
		t.Fatalf("unexpected default keyword: %q", cfg.WakeWord.Keyword)
	}
	if cfg.LLM.Timeout != Duration(60*time.Second) {
		t.Fatalf("unexpected default timeout: %s", time.Duration(cfg.LLM.Timeout))
	}
	if cfg.Audio.FramesPerBuffer != 1024 {
		t.Fatalf("unexpected default frames per buffer: %d", cfg.Audio.FramesPerBuffer)
	}
	if !cfg.Speech.Interim() {
		t.Fatalf("interim results should default to on")
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("unexpected default log level: %q", cfg.Log.Level)
	}
}

func TestInterimResultsCanBeDisabled(t *testing.T) {
	path := writeConfig(t, `
speech:
  interim_results: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Speech.Interim() {
		t.Fatalf("interim results not disabled")
	}
}

func TestTimeoutDecodesDurationStrings(t *testing.T) {
	path := writeConfig(t, `
llm:
  timeout: 90s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLM.Timeout != Duration(90*time.Second) {
		t.Fatalf("unexpected timeout: %s", time.Duration(cfg.LLM.Timeout))
	}
}

func TestTimeoutRejectsUnitlessValues(t *testing.T) {
	path := writeConfig(t, `
llm:
  timeout: 90
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected an invalid duration error")
	}
}

func TestMalformedYAMLFails(t *testing.T) {
	path := writeConfig(t, "speech: [not a mapping")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestIsPlaceholder(t *testing.T) {
	for _, value := range []string{"", "   ", "YOUR_SPEECH_KEY_HERE", "YOUR_REGION"} {
		if !IsPlaceholder(value) {
			t.Fatalf("expected %q to be a placeholder", value)
		}
	}
	for _, value := range []string{"abc123", "westeurope"} {
		if IsPlaceholder(value) {
			t.Fatalf("did not expect %q to be a placeholder", value)
		}
	}
}
