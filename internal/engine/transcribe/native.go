// This file contains the NativeEngine implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

var _ Engine = (*NativeEngine)(nil)

// NativeEngine implements Engine using whisper.cpp Go bindings (CGO),
// eliminating HTTP overhead entirely. The model is loaded once at startup
// and shared across all concurrent Transcribe calls; each call creates its
// own whisper.cpp context, which is not itself thread-safe.
type NativeEngine struct {
	mu    sync.Mutex
	model whisperlib.Model
}

// NewNativeEngine loads the whisper.cpp model from modelPath. The model is
// loaded once and shared across all concurrent Transcribe calls. The caller
// must call Close when the engine is no longer needed.
func NewNativeEngine(modelPath string) (*NativeEngine, error) {
	if modelPath == "" {
		return nil, errors.New("transcribe: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("transcribe: load model %q: %w", modelPath, err)
	}
	return &NativeEngine{model: model}, nil
}

// Close releases the whisper model.
func (e *NativeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model != nil {
		err := e.model.Close()
		e.model = nil
		return err
	}
	return nil
}

// Transcribe decodes payload as a WAV container, converts its PCM samples
// to mono float32, and runs a single whisper.cpp inference pass. Segment
// texts are concatenated in order and the result is trimmed of surrounding
// whitespace.
//
// whisper.cpp's Process call exposes no cancellation hook, so ctx is only
// observed before the call begins; a cancellation arriving mid-inference is
// seen by the caller only once Transcribe returns.
func (e *NativeEngine) Transcribe(ctx context.Context, payload []byte, language string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	pcm, format, err := decodeWAV(payload)
	if err != nil {
		return "", err
	}
	samples := pcmToFloat32Mono(pcm, format.channels)

	e.mu.Lock()
	model := e.model
	e.mu.Unlock()
	if model == nil {
		return "", errors.New("transcribe: engine is closed")
	}

	wctx, err := model.NewContext()
	if err != nil {
		return "", fmt.Errorf("transcribe: create context: %w", err)
	}

	lang := language
	if strings.TrimSpace(lang) == "" {
		lang = "auto"
	}
	if err := wctx.SetLanguage(lang); err != nil {
		return "", fmt.Errorf("transcribe: set language %q: %w", lang, err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("transcribe: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("transcribe: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.TrimSpace(strings.Join(parts, " ")), nil
}
