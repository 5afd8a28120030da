package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

var _ Engine = (*HTTPEngine)(nil)

// HTTPEngine implements Engine by forwarding payloads to a running
// whisper.cpp server's POST /inference endpoint as multipart/form-data.
// Unlike NativeEngine it holds no model state; any number of Transcribe
// calls may run concurrently, bounded only by the caller's own concurrency
// limiter.
type HTTPEngine struct {
	serverURL  string
	httpClient *http.Client
}

// NewHTTPEngine creates an HTTPEngine that forwards requests to the
// whisper.cpp server at serverURL (e.g. "http://localhost:8080").
func NewHTTPEngine(serverURL string) (*HTTPEngine, error) {
	if serverURL == "" {
		return nil, errors.New("transcribe: serverURL must not be empty")
	}
	return &HTTPEngine{
		serverURL:  strings.TrimSuffix(serverURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Close releases idle connections held by the underlying HTTP client.
func (e *HTTPEngine) Close() error {
	e.httpClient.CloseIdleConnections()
	return nil
}

// Transcribe POSTs payload, already a complete WAV file, to the
// whisper.cpp server's inference endpoint and returns the recognized text.
func (e *HTTPEngine) Transcribe(ctx context.Context, payload []byte, language string) (string, error) {
	lang := language
	if strings.TrimSpace(lang) == "" {
		lang = "auto"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("transcribe: create form file: %w", err)
	}
	if _, err := fw.Write(payload); err != nil {
		return "", fmt.Errorf("transcribe: write wav data: %w", err)
	}
	if err := mw.WriteField("language", lang); err != nil {
		return "", fmt.Errorf("transcribe: write language field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("transcribe: close multipart writer: %w", err)
	}

	endpoint := e.serverURL + "/inference"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("transcribe: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcribe: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("transcribe: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("transcribe: parse JSON response: %w", err)
	}

	return strings.TrimSpace(result.Text), nil
}
