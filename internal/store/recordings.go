package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RecordingStatus is the lifecycle state of a recording row.
type RecordingStatus string

const (
	// StatusRecording marks a live session still streaming audio.
	StatusRecording RecordingStatus = "recording"

	// StatusCompleted marks a recording whose audio was saved durably.
	StatusCompleted RecordingStatus = "completed"

	// StatusFailed marks a recording whose audio save failed. The transcript
	// and translation rows written during the session remain valid.
	StatusFailed RecordingStatus = "failed"
)

// Recording is one row of the recordings table.
type Recording struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	FolderID    *uuid.UUID
	Title       string
	S3Key       string
	Duration    float64
	SourceLang  string
	TargetLang  string
	Status      RecordingStatus
	SourceType  string
	Audio       AudioRef
	AudioSize   int64
	AudioFormat string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateRecording inserts a fresh recording row for a live session. The title
// is derived from the current time, the status starts as "recording", and the
// source type is "live".
func (s *Store) CreateRecording(ctx context.Context, userID uuid.UUID, sourceLang, targetLang string) (*Recording, error) {
	rec := &Recording{
		ID:         uuid.New(),
		UserID:     userID,
		Title:      "Recording " + time.Now().Format("2006-01-02 15:04"),
		SourceLang: sourceLang,
		TargetLang: targetLang,
		Status:     StatusRecording,
		SourceType: "live",
	}

	const q = `
		INSERT INTO recordings (id, user_id, title, source_lang, target_lang, status, source_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, q,
		rec.ID,
		rec.UserID,
		rec.Title,
		rec.SourceLang,
		rec.TargetLang,
		string(rec.Status),
		rec.SourceType,
	)
	if err != nil {
		return nil, fmt.Errorf("store: create recording: %w", err)
	}
	return rec, nil
}

// GetRecording returns the recording with the given id, or
// [ErrRecordingNotFound].
func (s *Store) GetRecording(ctx context.Context, id uuid.UUID) (*Recording, error) {
	const q = `
		SELECT id, user_id, folder_id, title, s3_key, duration_seconds,
		       source_lang, target_lang, status, source_type,
		       audio_oid, audio_blob_id, audio_size, audio_format,
		       created_at, updated_at
		FROM   recordings
		WHERE  id = $1`

	var (
		rec    Recording
		status string
	)
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&rec.ID,
		&rec.UserID,
		&rec.FolderID,
		&rec.Title,
		&rec.S3Key,
		&rec.Duration,
		&rec.SourceLang,
		&rec.TargetLang,
		&status,
		&rec.SourceType,
		&rec.Audio.OID,
		&rec.Audio.BlobID,
		&rec.AudioSize,
		&rec.AudioFormat,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("store: recording %s: %w", id, ErrRecordingNotFound)
		}
		return nil, fmt.Errorf("store: get recording: %w", err)
	}
	rec.Status = RecordingStatus(status)
	return &rec, nil
}

// CompleteRecording records a successful audio save: it attaches the audio
// ref, size, and format, sets duration_seconds when duration is positive, and
// moves the status to "completed".
func (s *Store) CompleteRecording(ctx context.Context, id uuid.UUID, ref AudioRef, size int64, format string, duration float64) error {
	const q = `
		UPDATE recordings
		SET    audio_oid        = $2,
		       audio_blob_id    = $3,
		       audio_size       = $4,
		       audio_format     = $5,
		       duration_seconds = CASE WHEN $6::float8 > 0 THEN $6::float8 ELSE duration_seconds END,
		       status           = 'completed',
		       updated_at       = now()
		WHERE  id = $1`

	tag, err := s.pool.Exec(ctx, q, id, ref.OID, ref.BlobID, size, format, duration)
	if err != nil {
		return fmt.Errorf("store: complete recording: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: complete recording %s: %w", id, ErrRecordingNotFound)
	}
	return nil
}

// FailRecording moves the recording to the "failed" status after an audio
// save error. Transcript and translation rows are left untouched.
func (s *Store) FailRecording(ctx context.Context, id uuid.UUID) error {
	const q = `
		UPDATE recordings
		SET    status = 'failed', updated_at = now()
		WHERE  id = $1`

	tag, err := s.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("store: fail recording: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: fail recording %s: %w", id, ErrRecordingNotFound)
	}
	return nil
}

// SetRecordingS3Key stores the object key of the S3 mirror copy.
func (s *Store) SetRecordingS3Key(ctx context.Context, id uuid.UUID, key string) error {
	const q = `
		UPDATE recordings
		SET    s3_key = $2, updated_at = now()
		WHERE  id = $1`

	tag, err := s.pool.Exec(ctx, q, id, key)
	if err != nil {
		return fmt.Errorf("store: set recording s3 key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: set recording s3 key %s: %w", id, ErrRecordingNotFound)
	}
	return nil
}
