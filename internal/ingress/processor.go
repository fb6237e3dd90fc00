// Package ingress turns raw client audio frames into transcript events.
//
// Two processors implement the same contract. StreamProcessor forwards
// frames to a live streaming ASR session and relays its interim and final
// results as they arrive. BatchProcessor accumulates frames into an elastic
// window, gates the window on voice activity, and submits each flush to a
// batch transcriber. The session picks one through the model-strategy
// registry and never inspects provider names itself.
//
// Both processors archive every received frame in a FrameBuffer; Stop hands
// the accumulated bytes back so the caller can persist the recording.
package ingress

import (
	"context"
	"errors"
)

// Processor consumes raw audio frames from one client connection and emits
// transcript events through the OnEvent callback supplied at construction.
//
// Lifecycle is idle → active → stopping → idle. ProcessAudio outside the
// active state logs a warning and drops the frame. Stop returns the
// distinguished header frame and the full payload received while active.
type Processor interface {
	// Start transitions the processor to active. For streaming strategies
	// this dials the upstream ASR; ctx bounds that dial.
	Start(ctx context.Context) error

	// ProcessAudio ingests one audio frame in the session's wire codec.
	ProcessAudio(frame []byte) error

	// Stop flushes pending audio, waits for in-flight work within the
	// processor's drain bound, and returns the header frame plus every byte
	// received since Start.
	Stop() (header, payload []byte, err error)
}

// Pauser is implemented by processors that can suspend upstream traffic
// without tearing the session down. The session forwards pause/resume
// commands only when the active processor implements it.
type Pauser interface {
	Pause() error
	Resume() error
}

// Auto-stop reasons surfaced through the OnAutoStop callback. The text is
// client-visible: it becomes the error frame's message.
var (
	// ErrLongSilence fires when a live stream runs five minutes without a
	// single frame above the speech floor.
	ErrLongSilence = errors.New("long silence")

	// ErrPausedTooLong fires when a pause exceeds ten minutes.
	ErrPausedTooLong = errors.New("paused too long")
)

// ErrNotActive is returned by operations that require an active processor.
var ErrNotActive = errors.New("ingress: processor not active")

type procState int

const (
	stateIdle procState = iota
	stateActive
	stateStopping
)

func (s procState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateActive:
		return "active"
	case stateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}
