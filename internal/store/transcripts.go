package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TranscriptSegment is one finalized transcript fragment as persisted in the
// transcripts.segments JSONB list.
type TranscriptSegment struct {
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	IsFinal bool    `json:"is_final"`
	Speaker string  `json:"speaker,omitempty"`
}

// Transcript is one row of the transcripts table. Each recording has at most
// one transcript; segments accumulate in arrival order.
type Transcript struct {
	ID          uuid.UUID
	RecordingID uuid.UUID
	Segments    []TranscriptSegment
	FullText    string
	Language    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AppendTranscript locates or creates the transcript row for recordingID and
// appends seg: the segment descriptor joins the JSONB list and seg.Text is
// space-joined onto full_text. The transcript's language is copied from the
// recording's source_lang when the row is first created.
//
// The whole operation is a single upsert, so concurrent appends for the same
// recording serialize on the row without an explicit lock.
func (s *Store) AppendTranscript(ctx context.Context, recordingID uuid.UUID, seg TranscriptSegment) error {
	segJSON, err := json.Marshal([]TranscriptSegment{seg})
	if err != nil {
		return fmt.Errorf("store: marshal transcript segment: %w", err)
	}

	const q = `
		INSERT INTO transcripts (id, recording_id, segments, full_text, language)
		VALUES ($1, $2, $3::jsonb, $4,
		        COALESCE((SELECT source_lang FROM recordings WHERE id = $2), ''))
		ON CONFLICT (recording_id) DO UPDATE
		SET segments   = transcripts.segments || EXCLUDED.segments,
		    full_text  = CASE WHEN transcripts.full_text = '' THEN EXCLUDED.full_text
		                      ELSE transcripts.full_text || ' ' || EXCLUDED.full_text END,
		    updated_at = now()`

	if _, err := s.pool.Exec(ctx, q, uuid.New(), recordingID, segJSON, seg.Text); err != nil {
		return fmt.Errorf("store: append transcript: %w", err)
	}
	return nil
}

// GetTranscript returns the transcript for recordingID, or nil when the
// recording has no transcript yet.
func (s *Store) GetTranscript(ctx context.Context, recordingID uuid.UUID) (*Transcript, error) {
	const q = `
		SELECT id, recording_id, segments, full_text, language, created_at, updated_at
		FROM   transcripts
		WHERE  recording_id = $1`

	var (
		tr  Transcript
		raw []byte
	)
	err := s.pool.QueryRow(ctx, q, recordingID).Scan(
		&tr.ID,
		&tr.RecordingID,
		&raw,
		&tr.FullText,
		&tr.Language,
		&tr.CreatedAt,
		&tr.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get transcript: %w", err)
	}

	if err := json.Unmarshal(raw, &tr.Segments); err != nil {
		return nil, fmt.Errorf("store: decode transcript segments: %w", err)
	}
	return &tr, nil
}
