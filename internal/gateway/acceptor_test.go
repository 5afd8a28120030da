package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/brevity-audio/sttgateway/internal/engine/transcribe/faketest"
	"github.com/brevity-audio/sttgateway/internal/gateway"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/transcribe"
}

func newTestAcceptor(engine *faketest.Engine) *httptest.Server {
	limiter := gateway.NewConcurrencyLimiter(4, nil)
	adapter := gateway.NewEngineAdapter(engine, limiter, "faketest", nil, nil)
	acceptor := gateway.NewAcceptor(adapter, 4, "auto", nil, nil)

	mux := http.NewServeMux()
	mux.Handle("/transcribe", acceptor)
	return httptest.NewServer(mux)
}

func TestAcceptor_NonUpgradeRequest_Returns400(t *testing.T) {
	srv := newTestAcceptor(&faketest.Engine{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/transcribe")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestAcceptor_UpgradesAndEmitsTranscript(t *testing.T) {
	srv := newTestAcceptor(&faketest.Engine{Text: "hello world"})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	if err := conn.Write(ctx, websocket.MessageBinary, []byte("RIFFfakewav")); err != nil {
		t.Fatalf("Write binary: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"end"}`)); err != nil {
		t.Fatalf("Write end: %v", err)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	var msg map[string]string
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if msg["type"] != "transcript" || msg["text"] != "hello world" {
		t.Errorf("got %v, want type=transcript text=%q", msg, "hello world")
	}
}
