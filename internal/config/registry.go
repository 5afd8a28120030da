package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/brevity-audio/sttgateway/internal/engine/transcribe"
)

// ErrBackendNotRegistered is returned by CreateEngine when no factory has
// been registered under the requested backend name.
var ErrBackendNotRegistered = errors.New("config: engine backend not registered")

// EngineFactory builds a [transcribe.Engine] from a [TranscribeConfig].
type EngineFactory func(TranscribeConfig) (transcribe.Engine, error)

// Registry maps engine backend names to their constructor functions. It is
// safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	backends map[EngineBackend]EngineFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{backends: make(map[EngineBackend]EngineFactory)}
}

// RegisterEngine registers an engine factory under backend. Subsequent
// calls with the same backend overwrite the previous registration.
func (r *Registry) RegisterEngine(backend EngineBackend, factory EngineFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[backend] = factory
}

// CreateEngine instantiates a [transcribe.Engine] using the factory
// registered under cfg.Backend. Returns [ErrBackendNotRegistered] if no
// factory has been registered for that backend.
func (r *Registry) CreateEngine(cfg TranscribeConfig) (transcribe.Engine, error) {
	r.mu.RLock()
	factory, ok := r.backends[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotRegistered, cfg.Backend)
	}
	return factory(cfg)
}
