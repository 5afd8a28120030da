package gateway

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/brevity-audio/sttgateway/internal/engine/transcribe"
	"github.com/brevity-audio/sttgateway/internal/observe"
)

// EngineAdapter wraps a [transcribe.Engine] with process-wide admission
// control. A single EngineAdapter is shared by every session; it carries no
// per-session state.
type EngineAdapter struct {
	engine  transcribe.Engine
	limiter *ConcurrencyLimiter
	backend string
	metrics *observe.Metrics
	logger  *slog.Logger
}

// Backend reports the engine implementation name used for metric attribution.
func (a *EngineAdapter) Backend() string { return a.backend }

// NewEngineAdapter builds an adapter around engine, gated by limiter.
// backend names the engine implementation for metric attribution (e.g.
// "whisper-native"). logger may be nil, in which case slog.Default is used.
func NewEngineAdapter(engine transcribe.Engine, limiter *ConcurrencyLimiter, backend string, metrics *observe.Metrics, logger *slog.Logger) *EngineAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &EngineAdapter{engine: engine, limiter: limiter, backend: backend, metrics: metrics, logger: logger}
}

// Transcribe acquires a lease, runs the engine over payload with language as
// a hint (substituting "auto" when empty or whitespace), and returns the
// trimmed transcript text.
//
// Cancellation propagates from ctx: if the lease wait is cancelled, Transcribe
// returns [ErrCancelled] immediately and consumes no lease. Any other engine
// failure is logged here and sanitized to an empty, non-error result, so one
// bad payload can never terminate a session. failed reports whether that
// sanitization happened, so a caller that wants to notify the client of the
// failure (optional, per the worker's error-handling policy) can still tell
// it apart from an engine that legitimately produced no text.
func (a *EngineAdapter) Transcribe(ctx context.Context, payload []byte, language string) (text string, failed bool, err error) {
	lease, err := a.limiter.Acquire(ctx)
	if err != nil {
		return "", false, err
	}
	defer lease.Release(ctx)

	lang := strings.TrimSpace(language)
	if lang == "" {
		lang = "auto"
	}

	start := time.Now()
	out, err := a.engine.Transcribe(ctx, payload, lang)
	if a.metrics != nil {
		a.metrics.TranscribeDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("backend", a.backend)))
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", false, ErrCancelled
		}
		if a.metrics != nil {
			a.metrics.RecordEngineError(ctx, a.backend, "transcribe")
		}
		a.logger.Warn("engine transcription failed", "backend", a.backend, "error", err)
		return "", true, nil
	}

	return strings.TrimSpace(out), false, nil
}
