package gateway

import (
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/coder/websocket"

	"github.com/brevity-audio/sttgateway/internal/observe"
)

// Acceptor upgrades inbound HTTP requests to the duplex streaming protocol
// and spawns one Session per connection, bound to a shared EngineAdapter.
type Acceptor struct {
	adapter       *EngineAdapter
	queueCapacity int
	defaultLang   atomic.Pointer[string]
	metrics       *observe.Metrics
	logger        *slog.Logger
}

// NewAcceptor builds an Acceptor. logger may be nil, in which case
// slog.Default is used.
func NewAcceptor(adapter *EngineAdapter, queueCapacity int, defaultLanguage string, metrics *observe.Metrics, logger *slog.Logger) *Acceptor {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Acceptor{
		adapter:       adapter,
		queueCapacity: queueCapacity,
		metrics:       metrics,
		logger:        logger,
	}
	a.defaultLang.Store(&defaultLanguage)
	return a
}

// SetDefaultLanguage updates the language substituted for sessions that
// never set one. Safe to call concurrently with ServeHTTP; takes effect for
// sessions accepted after the call.
func (a *Acceptor) SetDefaultLanguage(lang string) {
	a.defaultLang.Store(&lang)
}

func (a *Acceptor) defaultLanguage() string {
	return *a.defaultLang.Load()
}

// ServeHTTP implements http.Handler (C6). Non-upgrade requests receive a 400.
// Successful upgrades run their Session to completion before returning;
// ServeHTTP blocks for the lifetime of the connection, matching the
// semantics of a streaming handler under net/http's one-goroutine-per-request
// model.
func (a *Acceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		http.Error(w, "expected a websocket upgrade request", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		// Accept has already written the error response to w.
		return
	}

	sess := NewSession(conn, a.adapter, a.queueCapacity, a.defaultLanguage(), a.metrics, a.logger)
	defer sess.Dispose()

	if err := sess.Run(r.Context()); err != nil {
		a.logger.Debug("session run ended", "session_id", sess.ID(), "error", err)
	}
}
