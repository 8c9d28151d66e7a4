// Package config resolves runtime configuration from a YAML file and
// environment variables, environment winning.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// placeholderPrefix marks values copied verbatim from a config template.
const placeholderPrefix = "YOUR_"

// Duration decodes YAML scalars like "60s" or "2m" through
// time.ParseDuration; yaml.v3 cannot fill a time.Duration from a string on
// its own.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config stores runtime configuration for the assistant.
type Config struct {
	Speech   SpeechConfig   `yaml:"speech"`
	LLM      LLMConfig      `yaml:"llm"`
	Audio    AudioConfig    `yaml:"audio"`
	WakeWord WakeWordConfig `yaml:"wake_word"`
	Log      LogConfig      `yaml:"log"`
}

type SpeechConfig struct {
	Key      string `yaml:"key"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
	Language string `yaml:"language"`
	// InterimResults defaults to on; partials drive the live display.
	InterimResults *bool `yaml:"interim_results"`
}

// Interim reports whether partial results are requested.
func (s SpeechConfig) Interim() bool {
	return s.InterimResults == nil || *s.InterimResults
}

type LLMConfig struct {
	Endpoint   string   `yaml:"endpoint"`
	Key        string   `yaml:"key"`
	Deployment string   `yaml:"deployment"`
	APIVersion string   `yaml:"api_version"`
	Timeout    Duration `yaml:"timeout"`
}

type AudioConfig struct {
	// DeviceQuery selects the loopback device by name substring.
	DeviceQuery     string `yaml:"device_query"`
	FramesPerBuffer int    `yaml:"frames_per_buffer"`
}

type WakeWordConfig struct {
	Enabled   bool   `yaml:"enabled"`
	ModelPath string `yaml:"model_path"`
	Keyword   string `yaml:"keyword"`
	// MicQuery selects the microphone by name substring; empty uses the
	// default input device.
	MicQuery string `yaml:"mic_query"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// IsPlaceholder reports whether a credential value is unset or still a
// template placeholder like "YOUR_SPEECH_KEY_HERE".
func IsPlaceholder(value string) bool {
	trimmed := strings.TrimSpace(value)
	return trimmed == "" || strings.HasPrefix(trimmed, placeholderPrefix)
}

// Load reads the YAML file at path when it exists, then applies environment
// overrides and defaults. A missing file is not an error; all settings can
// come from the environment.
func Load(path string) (Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	overrideString(&cfg.Speech.Key, "SPEECH_KEY")
	overrideString(&cfg.Speech.Region, "SPEECH_REGION")
	overrideString(&cfg.Speech.Endpoint, "SPEECH_ENDPOINT")
	overrideString(&cfg.Speech.Language, "SPEECH_LANGUAGE")
	if value := strings.TrimSpace(os.Getenv("SPEECH_INTERIM_RESULTS")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			cfg.Speech.InterimResults = &parsed
		}
	}

	overrideString(&cfg.LLM.Endpoint, "LLM_ENDPOINT")
	overrideString(&cfg.LLM.Key, "LLM_KEY")
	overrideString(&cfg.LLM.Deployment, "LLM_DEPLOYMENT")
	overrideString(&cfg.LLM.APIVersion, "LLM_API_VERSION")

	overrideString(&cfg.Audio.DeviceQuery, "AUDIO_DEVICE_QUERY")
	overrideInt(&cfg.Audio.FramesPerBuffer, "AUDIO_FRAMES_PER_BUFFER")

	overrideBool(&cfg.WakeWord.Enabled, "WAKE_WORD_ENABLED")
	overrideString(&cfg.WakeWord.ModelPath, "WAKE_WORD_MODEL_PATH")
	overrideString(&cfg.WakeWord.Keyword, "WAKE_WORD_KEYWORD")
	overrideString(&cfg.WakeWord.MicQuery, "WAKE_WORD_MIC_QUERY")

	overrideString(&cfg.Log.Level, "LOG_LEVEL")
}

func applyDefaults(cfg *Config) {
	if cfg.Speech.Language == "" {
		cfg.Speech.Language = "en-US"
	}
	if cfg.LLM.APIVersion == "" {
		cfg.LLM.APIVersion = "2024-06-01"
	}
	if cfg.LLM.Timeout <= 0 {
		cfg.LLM.Timeout = Duration(60 * time.Second)
	}
	if cfg.Audio.FramesPerBuffer <= 0 {
		cfg.Audio.FramesPerBuffer = 1024
	}
	if cfg.WakeWord.Keyword == "" {
		cfg.WakeWord.Keyword = "hi pod"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func overrideString(target *string, key string) {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		*target = value
	}
}

func overrideBool(target *bool, key string) {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideInt(target *int, key string) {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}
