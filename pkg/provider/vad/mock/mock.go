// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to feed controlled extraction results and verify ExtractSpeech
// arguments. Use Session to inject speech probabilities and inspect the
// buffers submitted for scoring.
//
// Example:
//
//	sess := &mock.Session{Probability: 0.9}
//	eng := &mock.Engine{Session: sess}
//	handle, _ := eng.NewSession()
package mock

import (
	"sync"

	"github.com/hearsay-live/hearsay/pkg/provider/vad"
)

// ExtractSpeechCall records a single invocation of Engine.ExtractSpeech.
type ExtractSpeechCall struct {
	// PCM is a copy of the audio passed to ExtractSpeech.
	PCM []byte
	// Threshold is the probability cutoff passed to ExtractSpeech.
	Threshold float64
	// MinSpeechMs is the minimum speech span length passed to ExtractSpeech.
	MinSpeechMs int
	// MinSilenceMs is the minimum span-splitting silence passed to ExtractSpeech.
	MinSilenceMs int
}

// Engine is a mock implementation of vad.Engine.
// Zero values make ExtractSpeech report no speech and NewSession return a
// fresh default Session.
type Engine struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Session is the SessionHandle returned by NewSession. If nil, NewSession
	// returns a new default Session.
	Session vad.SessionHandle

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// SpeechPCM is returned by ExtractSpeech.
	SpeechPCM []byte

	// SpeechSeconds is returned by ExtractSpeech.
	SpeechSeconds float64

	// ExtractSpeechErr, if non-nil, is returned as the error from ExtractSpeech.
	ExtractSpeechErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records (read after test) ---

	// NewSessionCallCount is the number of times NewSession was called.
	NewSessionCallCount int

	// ExtractSpeechCalls records every call to ExtractSpeech in order.
	ExtractSpeechCalls []ExtractSpeechCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession() (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCallCount++
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// ExtractSpeech records the call and returns SpeechPCM, SpeechSeconds,
// ExtractSpeechErr.
func (e *Engine) ExtractSpeech(pcm []byte, threshold float64, minSpeechMs, minSilenceMs int) ([]byte, float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	e.ExtractSpeechCalls = append(e.ExtractSpeechCalls, ExtractSpeechCall{
		PCM:          cp,
		Threshold:    threshold,
		MinSpeechMs:  minSpeechMs,
		MinSilenceMs: minSilenceMs,
	})
	if e.ExtractSpeechErr != nil {
		return nil, 0, e.ExtractSpeechErr
	}
	return e.SpeechPCM, e.SpeechSeconds, nil
}

// Close records the call and returns CloseErr.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CloseCallCount++
	return e.CloseErr
}

// ResetCalls clears all recorded call history. Thread-safe.
func (e *Engine) ResetCalls() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCallCount = 0
	e.ExtractSpeechCalls = nil
	e.CloseCallCount = 0
}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

// SpeechProbabilityCall records a single invocation of Session.SpeechProbability.
type SpeechProbabilityCall struct {
	// PCM is a copy of the audio passed to SpeechProbability.
	PCM []byte
}

// Session is a mock implementation of vad.SessionHandle.
type Session struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Probability is returned by every SpeechProbability call when
	// Probabilities is empty.
	Probability float64

	// Probabilities, if non-empty, is consumed one entry per call. Once
	// exhausted, SpeechProbability falls back to Probability.
	Probabilities []float64

	// SpeechProbabilityErr, if non-nil, is returned by every call.
	SpeechProbabilityErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records (read after test) ---

	// SpeechProbabilityCalls records every call to SpeechProbability in order.
	SpeechProbabilityCalls []SpeechProbabilityCall

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// SpeechProbability records the call and returns the configured probability.
func (s *Session) SpeechProbability(pcm []byte) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	s.SpeechProbabilityCalls = append(s.SpeechProbabilityCalls, SpeechProbabilityCall{PCM: cp})
	if s.SpeechProbabilityErr != nil {
		return 0, s.SpeechProbabilityErr
	}
	prob := s.Probability
	if len(s.Probabilities) > 0 {
		prob = s.Probabilities[0]
		s.Probabilities = s.Probabilities[1:]
	}
	return prob, nil
}

// Reset records the call by incrementing ResetCallCount.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCallCount++
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// ResetCalls clears all recorded call history. Thread-safe.
func (s *Session) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SpeechProbabilityCalls = nil
	s.ResetCallCount = 0
	s.CloseCallCount = 0
}

// Ensure Session implements vad.SessionHandle at compile time.
var _ vad.SessionHandle = (*Session)(nil)
