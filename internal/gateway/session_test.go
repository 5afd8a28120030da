package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/brevity-audio/sttgateway/internal/engine/transcribe/faketest"
)

// fakeConn is a scripted wsConn standing in for a real duplex connection.
// Reads are served in order from frames; once exhausted it blocks until the
// test closes done, then returns a normal-closure-shaped error.
type fakeConn struct {
	mu      sync.Mutex
	frames  []fakeFrame
	idx     int
	written [][]byte
	closed  bool
	closeCh chan struct{}
}

type fakeFrame struct {
	typ  websocket.MessageType
	data []byte
}

func newFakeConn(frames ...fakeFrame) *fakeConn {
	return &fakeConn{frames: frames, closeCh: make(chan struct{})}
}

func (c *fakeConn) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	c.mu.Lock()
	if c.idx < len(c.frames) {
		f := c.frames[c.idx]
		c.idx++
		c.mu.Unlock()
		return f.typ, f.data, nil
	}
	c.mu.Unlock()

	select {
	case <-c.closeCh:
		return 0, nil, errors.New("fakeConn: closed")
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

func (c *fakeConn) Write(ctx context.Context, typ websocket.MessageType, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	c.written = append(c.written, cp)
	return nil
}

func (c *fakeConn) Close(code websocket.StatusCode, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.closeCh)
	}
	return nil
}

func (c *fakeConn) CloseNow() error {
	return c.Close(websocket.StatusNormalClosure, "")
}

func (c *fakeConn) writtenMessages() []map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]string, 0, len(c.written))
	for _, raw := range c.written {
		var m map[string]string
		_ = json.Unmarshal(raw, &m)
		out = append(out, m)
	}
	return out
}

func newTestAdapter(engine *faketest.Engine) *EngineAdapter {
	limiter := NewConcurrencyLimiter(4, nil)
	return NewEngineAdapter(engine, limiter, "faketest", nil, nil)
}

func textFrame(v string) fakeFrame {
	return fakeFrame{typ: websocket.MessageText, data: []byte(v)}
}

func binaryFrame(v string) fakeFrame {
	return fakeFrame{typ: websocket.MessageBinary, data: []byte(v)}
}

func runSession(t *testing.T, conn *fakeConn, engine *faketest.Engine) *Session {
	t.Helper()
	sess := NewSession(conn, newTestAdapter(engine), 4, "auto", nil, nil)

	done := make(chan struct{})
	go func() {
		_ = sess.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate in time")
	}
	return sess
}

func TestSession_LanguageSetThenEnd_NoTranscripts(t *testing.T) {
	conn := newFakeConn(
		textFrame(`{"language":"en"}`),
		textFrame(`{"type":"end"}`),
	)
	engine := &faketest.Engine{Text: "should not be called"}

	runSession(t, conn, engine)

	if got := engine.CallCount(); got != 0 {
		t.Errorf("engine called %d times, want 0", got)
	}
	if msgs := conn.writtenMessages(); len(msgs) != 0 {
		t.Errorf("expected no outbound messages, got %v", msgs)
	}
}

func TestSession_SingleWAV_EmitsOneTranscript(t *testing.T) {
	conn := newFakeConn(
		binaryFrame("RIFFfakewav"),
		textFrame(`{"type":"end"}`),
	)
	engine := &faketest.Engine{Text: "  hello world  "}

	runSession(t, conn, engine)

	msgs := conn.writtenMessages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 outbound message, got %d: %v", len(msgs), msgs)
	}
	if msgs[0]["type"] != "transcript" || msgs[0]["text"] != "hello world" {
		t.Errorf("got %v, want type=transcript text=%q", msgs[0], "hello world")
	}
}

func TestSession_EmptyTranscription_SkipsEmission(t *testing.T) {
	conn := newFakeConn(
		binaryFrame("silence"),
		textFrame(`{"type":"end"}`),
	)
	engine := &faketest.Engine{Text: "   "}

	runSession(t, conn, engine)

	if msgs := conn.writtenMessages(); len(msgs) != 0 {
		t.Errorf("expected no transcript for empty engine output, got %v", msgs)
	}
}

func TestSession_EngineFailureMidStream_ContinuesProcessing(t *testing.T) {
	conn := newFakeConn(
		binaryFrame("one"),
		binaryFrame("boom"),
		binaryFrame("two"),
		textFrame(`{"type":"end"}`),
	)
	call := 0
	engine := &faketest.Engine{
		TextFunc: func(payload []byte, language string) (string, error) {
			call++
			if string(payload) == "boom" {
				return "", errors.New("engine exploded")
			}
			return string(payload), nil
		},
	}

	runSession(t, conn, engine)

	msgs := conn.writtenMessages()
	var transcripts []string
	var sawError bool
	for _, m := range msgs {
		switch m["type"] {
		case "transcript":
			transcripts = append(transcripts, m["text"])
		case "error":
			sawError = true
		}
	}
	if len(transcripts) != 2 || transcripts[0] != "one" || transcripts[1] != "two" {
		t.Errorf("transcripts = %v, want [one two]", transcripts)
	}
	if !sawError {
		t.Error("expected an error message for the failing payload")
	}
}

func TestSession_MalformedControlJSON_SessionContinues(t *testing.T) {
	conn := newFakeConn(
		textFrame(`not json`),
		binaryFrame("hello"),
		textFrame(`{"type":"end"}`),
	)
	engine := &faketest.Engine{Text: "hello"}

	runSession(t, conn, engine)

	msgs := conn.writtenMessages()
	if len(msgs) != 1 || msgs[0]["type"] != "transcript" {
		t.Errorf("expected malformed control frame to be ignored, got %v", msgs)
	}
}

func TestSession_Dispose_IsIdempotent(t *testing.T) {
	conn := newFakeConn(textFrame(`{"type":"end"}`))
	sess := NewSession(conn, newTestAdapter(&faketest.Engine{}), 4, "auto", nil, nil)
	sess.Dispose()
	sess.Dispose() // must not panic
}

func TestSession_OrderingAcrossMultiplePayloads(t *testing.T) {
	conn := newFakeConn(
		binaryFrame("a"),
		binaryFrame("b"),
		binaryFrame("c"),
		textFrame(`{"type":"end"}`),
	)
	engine := &faketest.Engine{
		TextFunc: func(payload []byte, language string) (string, error) {
			return string(payload), nil
		},
	}

	runSession(t, conn, engine)

	msgs := conn.writtenMessages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 transcripts, got %d", len(msgs))
	}
	for i, want := range []string{"a", "b", "c"} {
		if msgs[i]["text"] != want {
			t.Errorf("transcript %d = %q, want %q", i, msgs[i]["text"], want)
		}
	}
}
