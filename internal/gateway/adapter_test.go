package gateway_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brevity-audio/sttgateway/internal/engine/transcribe/faketest"
	"github.com/brevity-audio/sttgateway/internal/gateway"
)

func TestEngineAdapter_Transcribe_TrimsAndDefaultsLanguage(t *testing.T) {
	engine := &faketest.Engine{Text: "  hello world  "}
	limiter := gateway.NewConcurrencyLimiter(1, nil)
	adapter := gateway.NewEngineAdapter(engine, limiter, "faketest", nil, nil)

	text, failed, err := adapter.Transcribe(context.Background(), []byte("wav"), "  ")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if failed {
		t.Fatal("failed = true, want false")
	}
	if text != "hello world" {
		t.Errorf("text = %q, want %q", text, "hello world")
	}
	if got := engine.Calls[0].Language; got != "auto" {
		t.Errorf("language passed to engine = %q, want auto", got)
	}
}

func TestEngineAdapter_Transcribe_EngineFailure_SanitizedNotError(t *testing.T) {
	engine := &faketest.Engine{Err: errors.New("boom")}
	limiter := gateway.NewConcurrencyLimiter(1, nil)
	adapter := gateway.NewEngineAdapter(engine, limiter, "faketest", nil, nil)

	text, failed, err := adapter.Transcribe(context.Background(), []byte("wav"), "en")
	if err != nil {
		t.Errorf("Transcribe returned non-nil error %v for a sanitized engine failure, want nil", err)
	}
	if !failed {
		t.Error("failed = false, want true")
	}
	if text != "" {
		t.Errorf("text = %q, want empty", text)
	}
}

func TestEngineAdapter_Transcribe_CancelledDuringLeaseWait(t *testing.T) {
	engine := &faketest.Engine{Text: "unused"}
	limiter := gateway.NewConcurrencyLimiter(1, nil)
	adapter := gateway.NewEngineAdapter(engine, limiter, "faketest", nil, nil)

	held, err := limiter.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer held.Release(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err = adapter.Transcribe(ctx, []byte("wav"), "en")
	if err != gateway.ErrCancelled {
		t.Errorf("Transcribe while lease exhausted = %v, want ErrCancelled", err)
	}
	if engine.CallCount() != 0 {
		t.Errorf("engine called %d times, want 0 (never reached past the lease wait)", engine.CallCount())
	}
}

func TestEngineAdapter_Transcribe_RespectsAdmissionCap(t *testing.T) {
	const maxConcurrent = 2
	unblock := make(chan struct{})
	inFlight := make(chan struct{}, maxConcurrent+1)

	engine := &faketest.Engine{
		TextFunc: func(payload []byte, language string) (string, error) {
			inFlight <- struct{}{}
			<-unblock
			return string(payload), nil
		},
	}
	limiter := gateway.NewConcurrencyLimiter(maxConcurrent, nil)
	adapter := gateway.NewEngineAdapter(engine, limiter, "faketest", nil, nil)

	results := make(chan error, maxConcurrent+1)
	for i := 0; i < maxConcurrent+1; i++ {
		go func(i int) {
			_, _, err := adapter.Transcribe(context.Background(), []byte("p"), "en")
			results <- err
		}(i)
	}

	// Exactly maxConcurrent calls should reach the engine body before any
	// release; the (N+1)th stays blocked on the limiter.
	for i := 0; i < maxConcurrent; i++ {
		select {
		case <-inFlight:
		case <-time.After(time.Second):
			t.Fatalf("only %d calls reached the engine, want %d", i, maxConcurrent)
		}
	}
	select {
	case <-inFlight:
		t.Fatal("a call beyond the admission cap reached the engine before a release")
	case <-time.After(50 * time.Millisecond):
	}

	close(unblock)
	for i := 0; i <= maxConcurrent; i++ {
		if err := <-results; err != nil {
			t.Errorf("Transcribe[%d] = %v, want nil", i, err)
		}
	}
}
