// Package app wires the gateway's subsystems into a running application.
//
// App owns the full lifecycle: New creates and connects the transcription
// engine, the concurrency limiter, the HTTP server, and observability, Run
// blocks serving traffic until its context is cancelled, and Shutdown tears
// everything down in order.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/brevity-audio/sttgateway/internal/config"
	"github.com/brevity-audio/sttgateway/internal/engine/transcribe"
	"github.com/brevity-audio/sttgateway/internal/gateway"
	"github.com/brevity-audio/sttgateway/internal/health"
	"github.com/brevity-audio/sttgateway/internal/observe"
)

// App owns all subsystem lifetimes and orchestrates the gateway.
type App struct {
	cfg     *config.Config
	engine  transcribe.Engine
	server  *http.Server
	metrics *observe.Metrics
	limiter *gateway.ConcurrencyLimiter
	watcher *config.Watcher

	otelShutdown func(context.Context) error

	// closers are called in order during Shutdown, after the HTTP server
	// has stopped accepting new connections.
	closers []func() error

	stopOnce sync.Once
}

// New builds an App from cfg using reg to construct the configured
// transcription engine. It registers the /transcribe upgrade endpoint plus
// /healthz, /readyz, and /metrics on the same listener.
//
// When configPath is non-empty, New also starts a [config.Watcher] polling
// that file so that cfg.Transcribe.MaxConcurrent and DefaultLanguage can be
// hot-reloaded without restarting the process; an empty configPath (as used
// by tests building Config literals in memory) skips watching.
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, configPath string) (*App, error) {
	a := &App{cfg: cfg}

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "sttgateway",
	})
	if err != nil {
		return nil, fmt.Errorf("app: init telemetry: %w", err)
	}
	a.otelShutdown = otelShutdown

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return nil, fmt.Errorf("app: init metrics: %w", err)
	}
	a.metrics = metrics

	eng, err := reg.CreateEngine(cfg.Transcribe)
	if err != nil {
		return nil, fmt.Errorf("app: create transcription engine: %w", err)
	}
	a.engine = eng
	a.closers = append(a.closers, eng.Close)

	limiter := gateway.NewConcurrencyLimiter(cfg.Transcribe.MaxConcurrent, metrics)
	a.limiter = limiter
	adapter := gateway.NewEngineAdapter(eng, limiter, string(cfg.Transcribe.Backend), metrics, slog.Default())
	acceptor := gateway.NewAcceptor(adapter, cfg.Transcribe.QueueCapacity, cfg.Transcribe.DefaultLanguage, metrics, slog.Default())

	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, a.onConfigChange(acceptor))
		if err != nil {
			return nil, fmt.Errorf("app: start config watcher: %w", err)
		}
		a.watcher = watcher
		a.closers = append(a.closers, func() error { watcher.Stop(); return nil })
	}

	healthHandler := health.New(health.Checker{
		Name: "engine",
		Check: func(context.Context) error {
			if a.engine == nil {
				return errors.New("transcription engine not initialised")
			}
			return nil
		},
	})

	mux := http.NewServeMux()
	mux.Handle("/transcribe", observe.Middleware(metrics)(acceptor))
	mux.Handle("/metrics", promhttp.Handler())
	healthHandler.Register(mux)

	a.server = &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: mux,
	}

	return a, nil
}

// onConfigChange returns a [config.Watcher] callback that hot-swaps the
// limiter's admission cap and the acceptor's default language whenever they
// change between reloads. Other fields (listen address, backend, queue
// capacity) require a restart to take effect since they are baked into
// already-constructed subsystems.
func (a *App) onConfigChange(acceptor *gateway.Acceptor) func(old, new *config.Config) {
	return func(old, new *config.Config) {
		if new.Transcribe.MaxConcurrent != old.Transcribe.MaxConcurrent {
			a.limiter.SetMaxConcurrent(new.Transcribe.MaxConcurrent)
			slog.Info("config reload: max_concurrent updated", "value", new.Transcribe.MaxConcurrent)
		}
		if new.Transcribe.DefaultLanguage != old.Transcribe.DefaultLanguage {
			acceptor.SetDefaultLanguage(new.Transcribe.DefaultLanguage)
			slog.Info("config reload: default_language updated", "value", new.Transcribe.DefaultLanguage)
		}
	}
}

// MaxConcurrent reports the concurrency limiter's current admission cap,
// reflecting any config hot-reload applied since New.
func (a *App) MaxConcurrent() int {
	return a.limiter.MaxConcurrent()
}

// Run starts the HTTP server and blocks until ctx is cancelled or the server
// stops with an error other than [http.ErrServerClosed].
func (a *App) Run(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("sttgateway listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-serveErr:
		return err
	}
}

// Shutdown stops the HTTP server gracefully, then runs closers (including
// the transcription engine's Close) and flushes telemetry. It respects
// ctx's deadline: remaining closers are skipped and ctx.Err() is returned if
// the deadline is reached first. Idempotent.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		if a.otelShutdown != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.otelShutdown(shutdownCtx); err != nil {
				slog.Warn("telemetry shutdown error", "err", err)
			}
		}
	})
	return shutdownErr
}
