package session

import (
	"encoding/json"
	"fmt"

	"github.com/hearsay-live/hearsay/pkg/types"
)

// Client actions accepted on the control channel.
const (
	ActionStart  = "start"
	ActionStop   = "stop"
	ActionPing   = "ping"
	ActionPause  = "pause"
	ActionResume = "resume"
)

// Command is one client control message, sent as a JSON text frame.
// Pointer fields distinguish "absent" from an explicit zero so a client can
// force silence_threshold: 0.
type Command struct {
	Action           string `json:"action"`
	RecordingID      string `json:"recording_id,omitempty"`
	SourceLang       string `json:"source_lang,omitempty"`
	TargetLang       string `json:"target_lang,omitempty"`
	SilenceThreshold *int   `json:"silence_threshold,omitempty"`
	Diarization      *bool  `json:"diarization,omitempty"`
	Codec            string `json:"codec,omitempty"`
}

// ParseCommand decodes one control message. Unknown fields are tolerated so
// older servers keep working against newer clients.
func ParseCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("session: parse command: %w", err)
	}
	if cmd.Action == "" {
		return Command{}, fmt.Errorf("session: command has no action")
	}
	return cmd, nil
}

// Server frame types. Every outbound frame is a JSON object with a "type"
// discriminator; the remaining fields are frame-specific.

// StatusFrame is an informational message for the client UI.
type StatusFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorFrame reports a recoverable session error. The socket stays open.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// PongFrame answers a ping command.
type PongFrame struct {
	Type string `json:"type"`
}

// TranscriptFrame carries one transcript event, interim or final.
type TranscriptFrame struct {
	Type         string  `json:"type"`
	Text         string  `json:"text"`
	IsFinal      bool    `json:"is_final"`
	Speaker      string  `json:"speaker,omitempty"`
	StartTime    float64 `json:"start_time"`
	EndTime      float64 `json:"end_time"`
	TranscriptID string  `json:"transcript_id,omitempty"`
	SegmentID    string  `json:"segment_id,omitempty"`
}

// TranslationFrame carries a whole-blob translation on the buffered path.
type TranslationFrame struct {
	Type         string `json:"type"`
	Text         string `json:"text"`
	IsFinal      bool   `json:"is_final"`
	TranscriptID string `json:"transcript_id,omitempty"`
}

// TranslationV2Frame carries one ordered sentence translation on the
// streaming path.
type TranslationV2Frame struct {
	Type          string `json:"type"`
	Text          string `json:"text"`
	SegmentID     string `json:"segment_id"`
	SentenceIndex int    `json:"sentence_index"`
	IsFinal       bool   `json:"is_final"`
	Error         bool   `json:"error,omitempty"`
}

// SegmentCompleteFrame announces that a segment card closed.
type SegmentCompleteFrame struct {
	Type      string  `json:"type"`
	SegmentID string  `json:"segment_id"`
	Text      string  `json:"text"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
}

// AudioSavedFrame confirms the recording artifact was persisted.
type AudioSavedFrame struct {
	Type        string `json:"type"`
	RecordingID string `json:"recording_id"`
	AudioSize   int64  `json:"audio_size"`
}

func statusFrame(message string) StatusFrame {
	return StatusFrame{Type: "status", Message: message}
}

func errorFrame(message string) ErrorFrame {
	return ErrorFrame{Type: "error", Message: message}
}

func pongFrame() PongFrame {
	return PongFrame{Type: "pong"}
}

func transcriptFrame(ev types.TranscriptEvent, segmentID string) TranscriptFrame {
	return TranscriptFrame{
		Type:         "transcript",
		Text:         ev.Text,
		IsFinal:      ev.IsFinal,
		Speaker:      ev.Speaker,
		StartTime:    ev.Start,
		EndTime:      ev.End,
		TranscriptID: ev.TranscriptID,
		SegmentID:    segmentID,
	}
}

func translationFrame(r types.TranslationResult, transcriptID string) TranslationFrame {
	return TranslationFrame{
		Type:         "translation",
		Text:         r.Text,
		IsFinal:      r.IsFinal,
		TranscriptID: transcriptID,
	}
}

func translationV2Frame(r types.TranslationResult) TranslationV2Frame {
	return TranslationV2Frame{
		Type:          "translation_v2",
		Text:          r.Text,
		SegmentID:     r.SegmentID,
		SentenceIndex: r.Index,
		IsFinal:       r.IsFinal,
		Error:         r.Err,
	}
}

func segmentCompleteFrame(ev types.SegmentEvent) SegmentCompleteFrame {
	return SegmentCompleteFrame{
		Type:      "segment_complete",
		SegmentID: ev.SegmentID,
		Text:      ev.Text,
		Start:     ev.Start,
		End:       ev.End,
	}
}

func audioSavedFrame(recordingID string, size int64) AudioSavedFrame {
	return AudioSavedFrame{
		Type:        "audio_saved",
		RecordingID: recordingID,
		AudioSize:   size,
	}
}
