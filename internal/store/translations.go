package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hearsay-live/hearsay/pkg/types"
)

// TranslationSegment is one translated card as persisted in the
// translations.segments JSONB list.
//
// SegmentID is empty for a phantom placeholder: a segment created by a UI
// sync before any translated sentence arrived for it. LastIndex records the
// highest sentence index merged into the segment and guards re-delivery.
type TranslationSegment struct {
	SegmentID string  `json:"segment_id,omitempty"`
	Text      string  `json:"text"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	IsFinal   bool    `json:"is_final"`
	LastIndex *int    `json:"last_index,omitempty"`
}

// Translation is one row of the translations table: the evolving translated
// document for one (recording, target language) pair.
type Translation struct {
	ID          uuid.UUID
	RecordingID uuid.UUID
	TargetLang  string
	Segments    []TranslationSegment
	FullText    string
	LLMModel    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UpdateTranslation merges one translated sentence into the translation
// document for (recordingID, targetLang), creating the row when absent.
//
// Merge rules, applied under a row lock:
//   - A segment matching result.SegmentID gets the text space-joined on and
//     is_final updated. Results whose index is at or below the segment's
//     last_index were already merged and are skipped, so re-delivery of the
//     same sentence is idempotent.
//   - Otherwise, when the trailing segment is a phantom placeholder (no
//     segment_id), it is adopted: text joined on, id and is_final set,
//     missing timestamps left at zero.
//   - Otherwise a new segment is appended.
//
// full_text is recomputed as the space-join of all segment texts.
//
// The call always runs in its own transaction: translations arrive from
// background workers and outlive the websocket message loop that spawned
// them.
func (s *Store) UpdateTranslation(ctx context.Context, recordingID uuid.UUID, targetLang string, result types.TranslationResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: update translation: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// Ensure the row exists so the FOR UPDATE below always locks one, even
	// when two sentences for a brand-new recording race.
	const ensure = `
		INSERT INTO translations (id, recording_id, target_lang)
		VALUES ($1, $2, $3)
		ON CONFLICT (recording_id, target_lang) DO NOTHING`

	if _, err := tx.Exec(ctx, ensure, uuid.New(), recordingID, targetLang); err != nil {
		return fmt.Errorf("store: update translation: ensure row: %w", err)
	}

	const lock = `
		SELECT id, segments
		FROM   translations
		WHERE  recording_id = $1 AND target_lang = $2
		FOR UPDATE`

	var (
		id  uuid.UUID
		raw []byte
	)
	if err := tx.QueryRow(ctx, lock, recordingID, targetLang).Scan(&id, &raw); err != nil {
		return fmt.Errorf("store: update translation: lock row: %w", err)
	}

	var segs []TranslationSegment
	if err := json.Unmarshal(raw, &segs); err != nil {
		return fmt.Errorf("store: decode translation segments: %w", err)
	}

	segs, changed := mergeTranslationResult(segs, result)
	if !changed {
		return tx.Commit(ctx)
	}

	segJSON, err := json.Marshal(segs)
	if err != nil {
		return fmt.Errorf("store: marshal translation segments: %w", err)
	}

	const update = `
		UPDATE translations
		SET    segments = $2::jsonb, full_text = $3, updated_at = now()
		WHERE  id = $1`

	if _, err := tx.Exec(ctx, update, id, segJSON, joinSegmentTexts(segs)); err != nil {
		return fmt.Errorf("store: update translation: write: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: update translation: commit: %w", err)
	}
	return nil
}

// GetTranslation returns the translation document for (recordingID,
// targetLang), or nil when none exists yet.
func (s *Store) GetTranslation(ctx context.Context, recordingID uuid.UUID, targetLang string) (*Translation, error) {
	const q = `
		SELECT id, recording_id, target_lang, segments, full_text, llm_model, created_at, updated_at
		FROM   translations
		WHERE  recording_id = $1 AND target_lang = $2`

	var (
		tr  Translation
		raw []byte
	)
	err := s.pool.QueryRow(ctx, q, recordingID, targetLang).Scan(
		&tr.ID,
		&tr.RecordingID,
		&tr.TargetLang,
		&raw,
		&tr.FullText,
		&tr.LLMModel,
		&tr.CreatedAt,
		&tr.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get translation: %w", err)
	}

	if err := json.Unmarshal(raw, &tr.Segments); err != nil {
		return nil, fmt.Errorf("store: decode translation segments: %w", err)
	}
	return &tr, nil
}

// mergeTranslationResult applies one translated sentence to the segment list
// and reports whether anything changed.
func mergeTranslationResult(segs []TranslationSegment, r types.TranslationResult) ([]TranslationSegment, bool) {
	if r.SegmentID != "" {
		for i := range segs {
			if segs[i].SegmentID != r.SegmentID {
				continue
			}
			if li := segs[i].LastIndex; li != nil && r.Index <= *li {
				return segs, false
			}
			segs[i].Text = joinText(segs[i].Text, r.Text)
			segs[i].IsFinal = r.IsFinal
			segs[i].LastIndex = &r.Index
			return segs, true
		}
	}

	// Adopt a trailing phantom placeholder left by a UI sync.
	if n := len(segs); n > 0 && segs[n-1].SegmentID == "" {
		last := &segs[n-1]
		last.Text = joinText(last.Text, r.Text)
		last.SegmentID = r.SegmentID
		last.IsFinal = r.IsFinal
		last.LastIndex = &r.Index
		return segs, true
	}

	return append(segs, TranslationSegment{
		SegmentID: r.SegmentID,
		Text:      r.Text,
		IsFinal:   r.IsFinal,
		LastIndex: &r.Index,
	}), true
}

// joinText appends next onto text with a single separating space.
func joinText(text, next string) string {
	if text == "" {
		return next
	}
	return text + " " + next
}

// joinSegmentTexts space-joins the non-empty segment texts into full_text.
func joinSegmentTexts(segs []TranslationSegment) string {
	parts := make([]string, 0, len(segs))
	for _, seg := range segs {
		if seg.Text != "" {
			parts = append(parts, seg.Text)
		}
	}
	return strings.Join(parts, " ")
}
