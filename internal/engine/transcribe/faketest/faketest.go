// Package faketest provides a test double for transcribe.Engine so tests
// never need a whisper.cpp model file or a running whisper.cpp server.
package faketest

import (
	"context"
	"sync"
)

// TranscribeCall records a single invocation of Engine.Transcribe.
type TranscribeCall struct {
	// Payload is a copy of the bytes passed to Transcribe.
	Payload []byte
	// Language is the language hint passed to Transcribe.
	Language string
}

// Engine is a test double implementing transcribe.Engine.
type Engine struct {
	mu sync.Mutex

	// Text is returned by every Transcribe call unless TextFunc is set.
	Text string

	// TextFunc, if non-nil, overrides Text and is called once per
	// Transcribe invocation to compute the result.
	TextFunc func(payload []byte, language string) (string, error)

	// Err, if non-nil, is returned by every Transcribe call.
	Err error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// Calls records every invocation of Transcribe in order.
	Calls []TranscribeCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Transcribe records the call and returns Text/Err, or the result of
// TextFunc when set.
func (e *Engine) Transcribe(_ context.Context, payload []byte, language string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp := make([]byte, len(payload))
	copy(cp, payload)
	e.Calls = append(e.Calls, TranscribeCall{Payload: cp, Language: language})

	if e.TextFunc != nil {
		return e.TextFunc(cp, language)
	}
	return e.Text, e.Err
}

// Close records the call and returns CloseErr.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CloseCallCount++
	return e.CloseErr
}

// CallCount returns the number of Transcribe calls made so far. Thread-safe.
func (e *Engine) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = nil
	e.CloseCallCount = 0
}
