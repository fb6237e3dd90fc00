// Package whisper provides a batch STT transcriber backed by a whisper-server
// HTTP endpoint (whisper.cpp's server example or any API-compatible clone).
// It implements the stt.BatchTranscriber interface.
//
// The server is expected to accept multipart/form-data POSTs on /inference
// with a "file" part containing a WAV clip and to answer with a JSON body of
// the form {"text": "..."}.
package whisper

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

	"github.com/hearsay-live/hearsay/pkg/provider/stt"
)

const (
	defaultLanguage = "en"

	// defaultTimeout bounds one inference round-trip when the caller's
	// context carries no deadline of its own.
	defaultTimeout = 30 * time.Second
)

// Option is a functional option for configuring the whisper Transcriber.
type Option func(*Transcriber)

// WithModel sets the model hint sent with each request. Servers that load a
// single model at startup ignore it.
func WithModel(model string) Option {
	return func(t *Transcriber) {
		t.model = model
	}
}

// WithLanguage sets the language used when a call does not carry one
// (e.g., "en", "de"). Use "auto" for server-side language detection.
func WithLanguage(language string) Option {
	return func(t *Transcriber) {
		t.language = language
	}
}

// WithHTTPClient replaces the default HTTP client, e.g. to adjust timeouts
// or inject a test transport.
func WithHTTPClient(client *http.Client) Option {
	return func(t *Transcriber) {
		t.httpClient = client
	}
}

// Transcriber implements stt.BatchTranscriber against a whisper-server
// /inference endpoint.
type Transcriber struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a new whisper Transcriber. serverURL must be non-empty and
// should carry the scheme and host (e.g., "http://localhost:8080").
func New(serverURL string, opts ...Option) (*Transcriber, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	t := &Transcriber{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Transcribe POSTs the WAV clip to the server's /inference endpoint as
// multipart/form-data and returns the transcribed text with surrounding
// whitespace trimmed. An empty language falls back to the configured default.
func (t *Transcriber) Transcribe(ctx context.Context, wav []byte, language string) (string, error) {
	if len(wav) == 0 {
		return "", errors.New("whisper: empty audio")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}

	lang := language
	if lang == "" {
		lang = t.language
	}
	if lang != "" {
		if err := mw.WriteField("language", lang); err != nil {
			return "", fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if t.model != "" {
		if err := mw.WriteField("model", t.model); err != nil {
			return "", fmt.Errorf("whisper: write model field: %w", err)
		}
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("whisper: write response_format field: %w", err)
	}

	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	endpoint := t.serverURL + "/inference"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	return strings.TrimSpace(result.Text), nil
}

// Ensure Transcriber implements stt.BatchTranscriber at compile time.
var _ stt.BatchTranscriber = (*Transcriber)(nil)
