// Package vad defines the interfaces for voice activity detection backends.
//
// A VAD engine wraps a frame-level speech detector (e.g., Silero VAD) and
// surfaces two capabilities: a stateful per-stream probability session used
// to gate buffered audio, and a stateless batch extractor that cuts the
// speech-only portion out of a recorded buffer.
//
// The engine is a process-wide singleton: implementations must be safe for
// concurrent use across sessions. A single SessionHandle carries recurrent
// model state for exactly one audio stream and should not be shared between
// goroutines unless the implementation documents otherwise.
package vad

// SessionHandle is a stateful detector for a single audio stream. The
// recurrent state accumulated by SpeechProbability makes successive calls
// continuous: the detector behaves as if the stream had never been split
// into separate buffers.
type SessionHandle interface {
	// SpeechProbability analyses 16 kHz mono PCM16 audio and returns the
	// highest speech probability across its 32ms windows, in [0, 1].
	// Buffers shorter than one window yield 0 without touching state.
	SpeechProbability(pcm []byte) (float64, error)

	// Reset clears the recurrent state and context buffer so the next call
	// starts from a cold detector. Use at stream boundaries.
	Reset()

	// Close releases the session. Calling Close more than once is safe.
	Close() error
}

// Engine is the factory and batch surface of a VAD backend.
type Engine interface {
	// NewSession creates an independent detection session with fresh state.
	NewSession() (SessionHandle, error)

	// ExtractSpeech detects speech spans in 16 kHz mono PCM16 audio using a
	// fresh detector state and returns the original samples covering those
	// spans, concatenated, plus their total duration in seconds.
	//
	// threshold is the per-window speech probability cutoff in [0, 1].
	// Spans shorter than minSpeechMs are dropped; gaps shorter than
	// minSilenceMs do not split a span. Returns (nil, 0, nil) when no
	// speech is found.
	ExtractSpeech(pcm []byte, threshold float64, minSpeechMs, minSilenceMs int) ([]byte, float64, error)

	// Close releases the model. Sessions created from this engine fail on
	// their next call. Calling Close more than once is safe.
	Close() error
}
