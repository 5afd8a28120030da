// Package transcribe wraps a black-box speech recognition engine behind a
// single-payload transcription contract: a complete, self-contained WAV
// byte sequence in, transcript text out. Two backends are provided: Native
// (in-process whisper.cpp via CGO bindings) and HTTP (a remote whisper.cpp
// server over multipart upload).
//
// Engine implementations do not apply concurrency limiting themselves; that
// is the caller's responsibility (see the gateway package's EngineAdapter,
// which wraps an Engine with a ConcurrencyLimiter lease).
package transcribe

import "context"

// Engine transcribes one complete WAV payload at a time. Implementations
// must be safe for concurrent use; multiple goroutines may call Transcribe
// simultaneously.
type Engine interface {
	// Transcribe recognizes speech in payload, a complete self-contained WAV
	// file, using language as a BCP-47 hint ("auto" lets the engine detect
	// the language itself). It returns the recognized text with leading and
	// trailing whitespace trimmed.
	//
	// Transcribe respects ctx cancellation at points the underlying backend
	// allows; a cancellation that arrives mid-inference for an engine with
	// no preemption hook is observed only when the call returns.
	Transcribe(ctx context.Context, payload []byte, language string) (string, error)

	// Close releases resources held by the engine (a loaded model, an HTTP
	// client's idle connections). Must be called when the engine is no
	// longer needed.
	Close() error
}
