package gateway

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/brevity-audio/sttgateway/internal/observe"
)

// State is a Session's position in its Running → Draining → Terminated
// lifecycle.
type State int32

const (
	StateRunning State = iota
	StateDraining
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// wsConn is the subset of *websocket.Conn a Session depends on, narrowed so
// tests can supply a fake duplex channel without a real network connection.
type wsConn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, data []byte) error
	Close(code websocket.StatusCode, reason string) error
	CloseNow() error
}

// mailboxCapacity bounds the session's best-effort error-send mailbox. It is
// small on purpose: error frames beyond it are dropped rather than queued as
// an unbounded backlog.
const mailboxCapacity = 2

// Session coordinates one connection's ingress loop, audio queue, worker
// loop, and egress onto the underlying duplex channel. All outbound frames
// are written from the worker loop; the ingress loop never writes to conn,
// so the channel never sees two concurrent senders.
type Session struct {
	id      string
	conn    wsConn
	adapter *EngineAdapter
	queue   *AudioQueue
	mailbox chan []byte
	logger  *slog.Logger
	metrics *observe.Metrics

	language atomic.Pointer[string]
	state    atomic.Int32

	disposeOnce sync.Once
}

// NewSession constructs a Session bound to conn, ready to run. defaultLanguage
// seeds the language field (substituting "auto" when empty).
func NewSession(conn wsConn, adapter *EngineAdapter, queueCapacity int, defaultLanguage string, metrics *observe.Metrics, logger *slog.Logger) *Session {
	if strings.TrimSpace(defaultLanguage) == "" {
		defaultLanguage = "auto"
	}
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	s := &Session{
		id:      id,
		conn:    conn,
		adapter: adapter,
		queue:   NewAudioQueue(queueCapacity),
		mailbox: make(chan []byte, mailboxCapacity),
		logger:  logger.With("session_id", id),
		metrics: metrics,
	}
	s.language.Store(&defaultLanguage)
	if metrics != nil {
		metrics.ActiveSessions.Add(context.Background(), 1)
	}
	return s
}

// ID returns the session's correlation identifier.
func (s *Session) ID() string { return s.id }

// State reports the session's current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// Run drives the session to completion: it starts the ingress and worker
// loops concurrently, waits for both to finish, then performs the shutdown
// handshake. Run returns once the session has fully terminated; the caller
// is responsible for calling Dispose afterward (ConnectionAcceptor does
// this unconditionally via defer).
func (s *Session) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.runIngress(gctx)
	})
	g.Go(func() error {
		return s.runWorker(gctx)
	})

	err := g.Wait()
	s.setState(StateTerminated)
	s.closeGracefully(ctx)
	return err
}

// runIngress implements the single logical reader described for C5: it
// reads frames, reassembles binary messages (already done for us one level
// down by the websocket library's frame-fragmentation handling), applies
// control messages, and hands complete audio payloads to the queue.
func (s *Session) runIngress(ctx context.Context) error {
	defer s.queue.Close()

	for {
		if ctx.Err() != nil {
			s.setState(StateDraining)
			return nil
		}

		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				s.setState(StateDraining)
				return nil
			}
			if isNormalClosure(err) {
				s.setState(StateDraining)
				return nil
			}
			s.logger.Error("transport read failed", "error", err)
			s.setState(StateDraining)
			return nil
		}

		switch typ {
		case websocket.MessageText:
			ctrl := DecodeControl(data)
			if !ctrl.Valid {
				continue
			}
			if ctrl.Language != "" {
				lang := ctrl.Language
				s.language.Store(&lang)
			}
			if ctrl.EndRequested {
				s.setState(StateDraining)
				return nil
			}
		case websocket.MessageBinary:
			if err := s.queue.Write(ctx, data); err != nil {
				if errors.Is(err, ErrCancelled) {
					s.setState(StateDraining)
					return nil
				}
				// ErrQueueClosed: worker already gave up, nothing left to do.
				s.setState(StateDraining)
				return nil
			}
		}
	}
}

// runWorker implements the single logical consumer: it drains payloads from
// the queue through the EngineAdapter and emits transcripts, and it is also
// the sole writer onto conn, relaying best-effort error frames posted to the
// mailbox by handlePayload.
func (s *Session) runWorker(ctx context.Context) error {
	for {
		select {
		case payload := <-s.queue.Payloads():
			s.handlePayload(ctx, payload)
			continue
		case raw := <-s.mailbox:
			s.sendFrame(ctx, raw)
			continue
		default:
		}

		select {
		case payload := <-s.queue.Payloads():
			s.handlePayload(ctx, payload)
		case raw := <-s.mailbox:
			s.sendFrame(ctx, raw)
		case <-s.queue.Done():
			if len(s.queue.Payloads()) == 0 {
				return nil
			}
		case <-ctx.Done():
			s.disposeQueued()
			return nil
		}
	}
}

// handlePayload transcribes one payload under a scoped lease and emits a
// transcript frame, disposing the payload on every exit path.
func (s *Session) handlePayload(ctx context.Context, payload []byte) {
	lang := *s.language.Load()
	text, failed, err := s.adapter.Transcribe(ctx, payload, lang)
	// payload is disposed here implicitly: this is its last reference.
	if err != nil {
		// Only ErrCancelled reaches here; the adapter sanitizes every other
		// engine failure itself (logs it, reports failed=true instead).
		return
	}
	if failed {
		s.postMailbox(EncodeError("transcription failed"))
		return
	}

	if strings.TrimSpace(text) == "" {
		return
	}

	s.sendFrame(ctx, EncodeTranscript(text))
	if s.metrics != nil {
		s.metrics.RecordTranscriptEmitted(ctx, s.adapter.Backend())
	}
}

// disposeQueued drains and discards anything left in the queue when the
// session is torn down by cancellation rather than a clean end-of-stream.
func (s *Session) disposeQueued() {
	s.queue.Dispose()
}

// postMailbox attempts a non-blocking best-effort send; if the mailbox is
// full the message is dropped rather than blocking the worker loop, which is
// also the mailbox's only reader.
func (s *Session) postMailbox(raw []byte) {
	select {
	case s.mailbox <- raw:
	default:
	}
}

// sendFrame writes raw as a text frame. Failures are logged, never
// propagated, since the worker loop must keep draining the queue regardless
// of egress health.
func (s *Session) sendFrame(ctx context.Context, raw []byte) {
	if err := s.conn.Write(ctx, websocket.MessageText, raw); err != nil {
		s.logger.Warn("egress write failed", "error", err)
	}
}

// closeGracefully attempts a Normal-Closure handshake. conn.Close takes no
// context, so the caller's (possibly already-cancelled) ctx is unused and
// cannot suppress the close frame.
func (s *Session) closeGracefully(ctx context.Context) {
	_ = ctx
	_ = s.conn.Close(websocket.StatusNormalClosure, "session end")
}

// Dispose releases the session's resources: it marks the session disposed,
// closes and drains the queue, and closes the underlying channel. Safe to
// call more than once and safe to call concurrently with Run.
func (s *Session) Dispose() {
	s.disposeOnce.Do(func() {
		s.queue.Dispose()
		_ = s.conn.CloseNow()
		if s.metrics != nil {
			s.metrics.ActiveSessions.Add(context.Background(), -1)
		}
	})
}

// isNormalClosure reports whether err represents an expected websocket
// closure (Normal or Going Away) rather than a transport failure worth
// logging at error level.
func isNormalClosure(err error) bool {
	code := websocket.CloseStatus(err)
	return code == websocket.StatusNormalClosure || code == websocket.StatusGoingAway
}
