// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to verify that the caller starts sessions with the expected
// StreamConfig. Use Session to feed controlled TranscriptEvent values and
// inspect which audio chunks were delivered. Use Transcriber to script
// responses for the batch path.
//
// Example:
//
//	sess := &mock.Session{
//	    ResultsCh: make(chan types.TranscriptEvent, 1),
//	}
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.StartStream(ctx, cfg)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/hearsay-live/hearsay/pkg/provider/stt"
	"github.com/hearsay-live/hearsay/pkg/types"
)

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	// Ctx is the context passed to StartStream.
	Ctx context.Context
	// Cfg is the StreamConfig passed to StartStream.
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by StartStream. If nil,
	// StartStream returns a new default Session with a buffered channel.
	Session stt.SessionHandle

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall
}

// StartStream records the call and returns Session, StartStreamErr.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return &Session{
		ResultsCh: make(chan types.TranscriptEvent, 16),
	}, nil
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// SendAudioCall records a single invocation of Session.SendAudio.
type SendAudioCall struct {
	// Chunk is a copy of the audio bytes that were passed to SendAudio.
	Chunk []byte
}

// Session is a mock implementation of stt.SessionHandle.
// Callers should pre-populate ResultsCh with the TranscriptEvent values they
// want the consumer to receive, then close it when done. If CloseResultsOnClose
// is set, Close closes ResultsCh instead.
type Session struct {
	mu sync.Mutex

	// ResultsCh is the channel returned by Results(). Callers own this
	// channel and are responsible for sending to and closing it in tests.
	ResultsCh chan types.TranscriptEvent

	// CloseResultsOnClose makes Close close ResultsCh, mimicking a real
	// session whose read loop ends on teardown.
	CloseResultsOnClose bool

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// KeepAliveErr, if non-nil, is returned by every SendKeepAlive call.
	KeepAliveErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// SendAudioCalls records every call to SendAudio in order.
	SendAudioCalls []SendAudioCall

	// KeepAliveCallCount is the number of times SendKeepAlive was called.
	KeepAliveCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// SendAudio records the call and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SendAudioCalls = append(s.SendAudioCalls, SendAudioCall{Chunk: cp})
	return s.SendAudioErr
}

// SendKeepAlive records the call and returns KeepAliveErr.
func (s *Session) SendKeepAlive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.KeepAliveCallCount++
	return s.KeepAliveErr
}

// Results returns ResultsCh. The caller must have initialised ResultsCh
// before calling this method.
func (s *Session) Results() <-chan types.TranscriptEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ResultsCh
}

// SendAudioCallCount returns the number of SendAudio calls. Thread-safe.
func (s *Session) SendAudioCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SendAudioCalls)
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	if s.CloseResultsOnClose && s.CloseCallCount == 1 && s.ResultsCh != nil {
		close(s.ResultsCh)
	}
	return s.CloseErr
}

// ResetCalls clears all recorded calls. Thread-safe.
func (s *Session) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendAudioCalls = nil
	s.KeepAliveCallCount = 0
	s.CloseCallCount = 0
}

// Ensure Session implements stt.SessionHandle at compile time.
var _ stt.SessionHandle = (*Session)(nil)

// TranscribeCall records a single invocation of Transcriber.Transcribe.
type TranscribeCall struct {
	// WAV is a copy of the clip passed to Transcribe.
	WAV []byte
	// Language is the language hint passed to Transcribe.
	Language string
}

// Transcriber is a mock implementation of stt.BatchTranscriber.
type Transcriber struct {
	mu sync.Mutex

	// Text is returned by Transcribe when Texts is exhausted.
	Text string

	// Texts, if non-empty, is consumed one entry per Transcribe call.
	Texts []string

	// TranscribeErr, if non-nil, is returned by every Transcribe call.
	TranscribeErr error

	// Delay, if positive, makes Transcribe sleep before answering, honoring
	// ctx cancellation. Useful for timeout tests.
	Delay time.Duration

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call, applies Delay, and returns the scripted text.
func (m *Transcriber) Transcribe(ctx context.Context, wav []byte, language string) (string, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(wav))
	copy(cp, wav)
	m.TranscribeCalls = append(m.TranscribeCalls, TranscribeCall{WAV: cp, Language: language})
	if m.TranscribeErr != nil {
		return "", m.TranscribeErr
	}
	if len(m.Texts) > 0 {
		text := m.Texts[0]
		m.Texts = m.Texts[1:]
		return text, nil
	}
	return m.Text, nil
}

// TranscribeCallCount returns the number of Transcribe calls. Thread-safe.
func (m *Transcriber) TranscribeCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.TranscribeCalls)
}

// Ensure Transcriber implements stt.BatchTranscriber at compile time.
var _ stt.BatchTranscriber = (*Transcriber)(nil)
