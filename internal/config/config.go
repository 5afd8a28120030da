// Package config provides the configuration schema, loader, and provider
// registry for the speech-to-text gateway.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the gateway.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Transcribe TranscribeConfig `yaml:"transcribe"`
}

// ServerConfig holds network and logging settings for the gateway process.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is accepted in the config file but not used: /metrics,
	// /healthz, and /readyz are always served on ListenAddr, on the same mux
	// as /transcribe.
	MetricsAddr string `yaml:"metrics_addr"`

	// ShutdownTimeout bounds the whole graceful shutdown sequence (HTTP
	// server shutdown, then the application's closers). Upgraded websocket
	// sessions are not waited on. A zero value means 15s.
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// Duration wraps time.Duration so it can be unmarshalled from a YAML scalar
// like "15s" rather than a raw integer of nanoseconds, matching how the
// value is written throughout this package's example configs.
type Duration time.Duration

// UnmarshalYAML parses a duration string using [time.ParseDuration].
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration using its canonical string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// LogLevel selects slog verbosity. The zero value means "unset"; callers
// should treat it the same as [LogInfo].
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is empty or one of the recognised levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case "", LogDebug, LogInfo, LogWarn, LogError:
		return true
	default:
		return false
	}
}

// EngineBackend selects which EngineAdapter implementation transcribes
// audio payloads.
type EngineBackend string

const (
	// EngineWhisperNative runs whisper.cpp in-process via CGO bindings.
	EngineWhisperNative EngineBackend = "whisper-native"

	// EngineWhisperHTTP sends payloads to a separately-running whisper.cpp
	// server over HTTP multipart upload.
	EngineWhisperHTTP EngineBackend = "whisper-http"
)

// IsValid reports whether b is empty or one of the recognised backends.
func (b EngineBackend) IsValid() bool {
	switch b {
	case "", EngineWhisperNative, EngineWhisperHTTP:
		return true
	default:
		return false
	}
}

// TranscribeConfig configures the transcription pipeline: the shared engine,
// the process-wide concurrency limiter, and per-session defaults.
type TranscribeConfig struct {
	// Backend selects the EngineAdapter implementation. Defaults to
	// EngineWhisperNative.
	Backend EngineBackend `yaml:"backend"`

	// ModelPath is the whisper.cpp model file path, used when Backend is
	// EngineWhisperNative.
	ModelPath string `yaml:"model_path"`

	// ServerURL is the whisper.cpp HTTP server base URL, used when Backend
	// is EngineWhisperHTTP (e.g. "http://localhost:8080").
	ServerURL string `yaml:"server_url"`

	// MaxConcurrent bounds the number of engine invocations in flight across
	// the whole process, regardless of how many sessions are connected.
	// Must be >= 1. Defaults to 4.
	MaxConcurrent int `yaml:"max_concurrent"`

	// DefaultLanguage is the BCP-47 language each session starts with and
	// keeps until a control message sets a non-empty one. Defaults to "auto".
	DefaultLanguage string `yaml:"default_language"`

	// QueueCapacity bounds the number of reassembled audio payloads a single
	// session may buffer ahead of the transcription worker. Must be >= 1.
	// Defaults to 4.
	QueueCapacity int `yaml:"queue_capacity"`
}

// defaults applies zero-value fallbacks. Called by [LoadFromReader] (and so
// by [Load]) before [Validate]; hand-built Config literals that bypass the
// loader do not get these fallbacks.
func (t *TranscribeConfig) defaults() {
	if t.Backend == "" {
		t.Backend = EngineWhisperNative
	}
	if t.MaxConcurrent == 0 {
		t.MaxConcurrent = 4
	}
	if t.DefaultLanguage == "" {
		t.DefaultLanguage = "auto"
	}
	if t.QueueCapacity == 0 {
		t.QueueCapacity = 4
	}
}
