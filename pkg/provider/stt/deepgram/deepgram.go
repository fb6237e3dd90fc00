// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// streaming WebSocket API. It implements the stt.Provider interface.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/hearsay-live/hearsay/pkg/provider/stt"
	"github.com/hearsay-live/hearsay/pkg/types"
)

const (
	defaultBaseURL    = "wss://api.deepgram.com"
	defaultModel      = "nova-2"
	defaultLanguage   = "en"
	defaultSampleRate = 16000

	// fluxPrefix marks the low-latency model family served from /v2/listen.
	// All other models go through /v1/listen.
	fluxPrefix = "flux"

	// closeGrace is how long Close waits after CloseStream for Deepgram to
	// flush its last buffered results before tearing the socket down.
	closeGrace = 500 * time.Millisecond
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-2", "flux-general-en").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code used when the stream config does
// not carry one (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithBaseURL overrides the Deepgram API host (for testing or proxies). The
// value must carry the ws:// or wss:// scheme and no path.
func WithBaseURL(base string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(base, "/")
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey   string
	baseURL  string
	model    string
	language string
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		baseURL:  defaultBaseURL,
		model:    defaultModel,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a streaming transcription session with Deepgram. It
// respects cfg.SampleRate, cfg.Language, and cfg.Diarize.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	sess := &session{
		conn:    conn,
		results: make(chan types.TranscriptEvent, 64),
		audio:   make(chan []byte, 256),
		done:    make(chan struct{}),
	}

	sess.wg.Add(2)
	go sess.readLoop(ctx)
	go sess.writeLoop(ctx)

	return sess, nil
}

// buildURL constructs the streaming endpoint URL for the given config. Models
// in the "flux" family are served from /v2/listen, everything else from
// /v1/listen.
func (p *Provider) buildURL(cfg stt.StreamConfig) (string, error) {
	path := "/v1/listen"
	if strings.HasPrefix(p.model, fluxPrefix) {
		path = "/v2/listen"
	}

	u, err := url.Parse(p.baseURL + path)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = defaultSampleRate
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sr))
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}
	if cfg.Diarize {
		q.Set("diarize", "true")
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- session ----

// deepgramResponse is the JSON structure returned by Deepgram for a Results
// event. Other event types (Metadata, SpeechStarted, UtteranceEnd) share the
// Type field and are skipped during parsing.
type deepgramResponse struct {
	Type     string  `json:"type"`
	IsFinal  bool    `json:"is_final"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Channel  struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word       string  `json:"word"`
				Start      float64 `json:"start"`
				End        float64 `json:"end"`
				Confidence float64 `json:"confidence"`
				Speaker    *int    `json:"speaker"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// session is a live Deepgram streaming session. It implements
// stt.SessionHandle.
type session struct {
	conn    *websocket.Conn
	results chan types.TranscriptEvent
	audio   chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// SendAudio queues a PCM audio chunk for delivery to Deepgram.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("deepgram: session is closed")
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errors.New("deepgram: session is closed")
	}
}

// SendKeepAlive sends a KeepAlive control message so Deepgram does not time
// the session out while the client is paused. Writes are serialized by the
// underlying connection, so this is safe alongside the audio write loop.
func (s *session) SendKeepAlive() error {
	select {
	case <-s.done:
		return errors.New("deepgram: session is closed")
	default:
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.conn.Write(ctx, websocket.MessageText, []byte(`{"type":"KeepAlive"}`)); err != nil {
		return fmt.Errorf("deepgram: keepalive: %w", err)
	}
	return nil
}

// Results returns the channel of interim and final transcript events.
func (s *session) Results() <-chan types.TranscriptEvent { return s.results }

// Close terminates the session cleanly. It tells Deepgram to flush buffered
// audio with a CloseStream message, waits briefly so the trailing results can
// arrive through the read loop, then closes the socket and joins both loops.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		time.Sleep(closeGrace)
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
		s.wg.Wait()
	})
	return nil
}

// writeLoop reads from the audio channel and sends binary messages to
// Deepgram.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				return
			}
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-s.done:
			// Drain the audio channel before exiting so buffered frames make
			// it upstream ahead of CloseStream's flush.
			for {
				select {
				case chunk, ok := <-s.audio:
					if !ok {
						return
					}
					_ = s.conn.Write(ctx, websocket.MessageBinary, chunk)
				default:
					return
				}
			}
		}
	}
}

// readLoop receives JSON messages from Deepgram and forwards Results events
// to the results channel in arrival order.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.results)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			// Normal close or context cancellation, exit gracefully.
			return
		}

		ev, ok := parseResponse(msg)
		if !ok {
			continue
		}

		select {
		case s.results <- ev:
		case <-s.done:
		}
	}
}

// parseResponse parses a raw Deepgram WebSocket message into a
// TranscriptEvent. Returns (event, true) for Results messages carrying a
// non-empty transcript, or (zero, false) for messages that should be ignored
// (Metadata, SpeechStarted, UtteranceEnd, empty interim ticks).
func parseResponse(data []byte) (types.TranscriptEvent, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return types.TranscriptEvent{}, false
	}
	if resp.Type != "Results" {
		return types.TranscriptEvent{}, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return types.TranscriptEvent{}, false
	}

	alt := resp.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return types.TranscriptEvent{}, false
	}

	ev := types.TranscriptEvent{
		Text:       alt.Transcript,
		IsFinal:    resp.IsFinal,
		Confidence: alt.Confidence,
		Start:      resp.Start,
		End:        resp.Start + resp.Duration,
	}
	if len(alt.Words) > 0 && alt.Words[0].Speaker != nil {
		ev.Speaker = fmt.Sprintf("Speaker %d", *alt.Words[0].Speaker)
	}
	return ev, true
}

// Ensure the implementations satisfy the interfaces at compile time.
var (
	_ stt.Provider      = (*Provider)(nil)
	_ stt.SessionHandle = (*session)(nil)
)
