// Package openai provides a batch STT transcriber backed by the OpenAI audio
// transcription API (whisper-1 and the gpt-4o transcribe family). It
// implements the stt.BatchTranscriber interface.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/hearsay-live/hearsay/pkg/provider/stt"
)

// Transcriber implements stt.BatchTranscriber using the OpenAI API.
type Transcriber struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the transcriber.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Transcriber.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL (for proxies or
// API-compatible gateways).
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI Transcriber.
func New(apiKey string, model string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Transcriber{client: client, model: model}, nil
}

// Transcribe implements stt.BatchTranscriber. The WAV clip is uploaded as a
// multipart form by the SDK; Whisper accepts PCM WAV directly.
func (t *Transcriber) Transcribe(ctx context.Context, wav []byte, language string) (string, error) {
	if len(wav) == 0 {
		return "", fmt.Errorf("openai: empty audio")
	}

	params := oai.AudioTranscriptionNewParams{
		Model: oai.AudioModel(t.model),
		File:  oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
	}
	if language != "" {
		params.Language = param.NewOpt(language)
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// Ensure Transcriber implements stt.BatchTranscriber at compile time.
var _ stt.BatchTranscriber = (*Transcriber)(nil)
