package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// maxQueueCapacity is the hard ceiling on TranscribeConfig.QueueCapacity:
// large enough to pipeline one in-flight transcription with a few buffered
// uploads, small enough to exert backpressure on the client well before
// engine latency dominates memory.
const maxQueueCapacity = 4

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.Transcribe.defaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if !cfg.Transcribe.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("transcribe.backend %q is invalid; valid values: whisper-native, whisper-http", cfg.Transcribe.Backend))
	}
	if cfg.Transcribe.Backend == EngineWhisperNative && cfg.Transcribe.ModelPath == "" {
		errs = append(errs, errors.New("transcribe.model_path is required when backend is whisper-native"))
	}
	if cfg.Transcribe.Backend == EngineWhisperHTTP && cfg.Transcribe.ServerURL == "" {
		errs = append(errs, errors.New("transcribe.server_url is required when backend is whisper-http"))
	}
	if cfg.Transcribe.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("transcribe.max_concurrent must be >= 1, got %d", cfg.Transcribe.MaxConcurrent))
	}
	if cfg.Transcribe.QueueCapacity < 1 {
		errs = append(errs, fmt.Errorf("transcribe.queue_capacity must be >= 1, got %d", cfg.Transcribe.QueueCapacity))
	}
	if cfg.Transcribe.QueueCapacity > maxQueueCapacity {
		errs = append(errs, fmt.Errorf("transcribe.queue_capacity must be <= %d, got %d", maxQueueCapacity, cfg.Transcribe.QueueCapacity))
	}

	return errors.Join(errs...)
}
