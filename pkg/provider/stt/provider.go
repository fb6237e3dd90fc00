// Package stt defines the provider interfaces for speech-to-text backends.
//
// Two kinds of backend exist. A streaming Provider (e.g. Deepgram) holds a
// live connection that accepts raw PCM frames and pushes interim and final
// results back over a single channel in upstream arrival order. A
// BatchTranscriber (whisper-server, OpenAI) takes one complete WAV clip per
// call and returns its text. The ingress processors choose one or the other
// based on the model registry; the rest of the pipeline only ever sees
// types.TranscriptEvent values.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"

	"github.com/hearsay-live/hearsay/pkg/types"
)

// StreamConfig describes the audio format and recognition hints for a new
// streaming session. All fields must be compatible with what the underlying
// provider supports; see each provider's documentation for valid ranges.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. The pipeline normalizes
	// ingress audio to 16000 Hz mono PCM before it reaches a provider.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono (required by most
	// STT providers).
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en",
	// "zh-CN"). An empty string lets the provider auto-detect the language,
	// if supported.
	Language string

	// Diarize asks the provider to tag words with speaker numbers. Emitted
	// events then carry a "Speaker N" label derived from the first word of
	// each result.
	Diarize bool
}

// SessionHandle represents an open streaming transcription session. It is an
// interface so that test code can provide mock implementations without
// requiring a live provider connection.
//
// Callers must call Close when the session is no longer needed. Failing to do
// so may leak goroutines and network connections inside the provider
// implementation. All methods must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM audio bytes to the provider for
	// transcription. The chunk should match the SampleRate, Channels, and
	// bit-depth agreed in StreamConfig. Calling SendAudio after Close returns
	// an error.
	SendAudio(chunk []byte) error

	// SendKeepAlive tells the provider the client is paused so the upstream
	// does not time the session out. Callers invoke it periodically while no
	// audio flows; providers without a keepalive concept may make it a no-op.
	SendKeepAlive() error

	// Results returns a read-only channel that emits interim and final
	// TranscriptEvent values in the order the provider produced them. Interim
	// events (IsFinal false) are best-effort previews and may be revised;
	// final events are authoritative and never retracted. The channel is
	// closed when the session ends.
	Results() <-chan types.TranscriptEvent

	// Close flushes any pending audio, waits briefly for trailing results,
	// and releases all associated resources. After Close returns, the Results
	// channel will be closed. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Provider is the abstraction over any streaming STT backend.
//
// Implementations must be safe for concurrent use. Multiple sessions may be
// open simultaneously (one per connected client).
type Provider interface {
	// StartStream opens a new streaming transcription session with the given
	// audio format and recognition configuration. The returned SessionHandle
	// is ready to accept audio immediately.
	//
	// Returns an error if the provider cannot establish the session (e.g.,
	// authentication failure, unsupported configuration, or ctx already
	// cancelled). The caller owns the SessionHandle and must call Close when
	// done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}

// BatchTranscriber is the abstraction over request/response STT backends
// that transcribe one complete clip per call. The buffered ingress processor
// cuts the stream into windows, wraps each window as WAV, and calls
// Transcribe once per flush.
type BatchTranscriber interface {
	// Transcribe sends a WAV-encoded clip and returns the transcribed text.
	// The language hint may be empty to let the backend auto-detect. Callers
	// bound the call with a context deadline.
	Transcribe(ctx context.Context, wav []byte, language string) (string, error)
}
