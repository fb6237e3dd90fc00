// Package store provides the PostgreSQL-backed persistence layer for Hearsay
// recordings: audio payloads, transcripts, per-language translations, and
// per-user settings.
//
// All tables share a single [pgxpool.Pool] connection pool. Audio bytes live
// either in the PostgreSQL large-object facility (integer OID) or in a bytea
// row (UUID), selected by configuration at save time; an [AudioRef] remembers
// which backend holds a given recording so reads keep working after the
// configured backend changes.
//
// Usage:
//
//	st, err := store.New(ctx, cfg.Storage)
//	if err != nil { … }
//
//	rec, _ := st.CreateRecording(ctx, userID, "en", "de")
//	ref, _ := st.SaveAudio(ctx, mp3Bytes)
//	_ = st.CompleteRecording(ctx, rec.ID, ref, int64(len(mp3Bytes)), "mp3", 12.4)
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ─────────────────────────────────────────────────────────────────────────────
// DDL — recordings and their derived documents
// ─────────────────────────────────────────────────────────────────────────────

const ddlRecordings = `
CREATE TABLE IF NOT EXISTS recordings (
    id               UUID             PRIMARY KEY,
    user_id          UUID             NOT NULL,
    folder_id        UUID,
    title            TEXT             NOT NULL DEFAULT '',
    s3_key           TEXT             NOT NULL DEFAULT '',
    duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
    source_lang      TEXT             NOT NULL DEFAULT '',
    target_lang      TEXT             NOT NULL DEFAULT '',
    status           TEXT             NOT NULL DEFAULT 'recording',
    source_type      TEXT             NOT NULL DEFAULT 'live',
    audio_oid        OID,
    audio_blob_id    UUID,
    audio_size       BIGINT           NOT NULL DEFAULT 0,
    audio_format     TEXT             NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ      NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ      NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_recordings_user_id
    ON recordings (user_id);

CREATE INDEX IF NOT EXISTS idx_recordings_status
    ON recordings (status);
`

const ddlTranscripts = `
CREATE TABLE IF NOT EXISTS transcripts (
    id           UUID        PRIMARY KEY,
    recording_id UUID        NOT NULL UNIQUE,
    segments     JSONB       NOT NULL DEFAULT '[]',
    full_text    TEXT        NOT NULL DEFAULT '',
    language     TEXT        NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const ddlTranslations = `
CREATE TABLE IF NOT EXISTS translations (
    id           UUID        PRIMARY KEY,
    recording_id UUID        NOT NULL,
    target_lang  TEXT        NOT NULL,
    segments     JSONB       NOT NULL DEFAULT '[]',
    full_text    TEXT        NOT NULL DEFAULT '',
    llm_model    TEXT        NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (recording_id, target_lang)
);

CREATE INDEX IF NOT EXISTS idx_translations_recording_id
    ON translations (recording_id);
`

// ─────────────────────────────────────────────────────────────────────────────
// DDL — audio blobs and user settings
// ─────────────────────────────────────────────────────────────────────────────

const ddlAudioBlobs = `
CREATE TABLE IF NOT EXISTS audio_blobs (
    id   UUID  PRIMARY KEY,
    data BYTEA NOT NULL
);
`

const ddlUserSettings = `
CREATE TABLE IF NOT EXISTS user_settings (
    user_id        UUID        PRIMARY KEY,
    settings       JSONB       NOT NULL DEFAULT '{}',
    use_admin_keys BOOLEAN     NOT NULL DEFAULT false,
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate creates or ensures all required database tables exist. It is
// idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS) and
// safe to call on every application start.
//
// Large objects need no DDL; the PostgreSQL LO facility manages its own
// catalog tables.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		ddlRecordings,
		ddlTranscripts,
		ddlTranslations,
		ddlAudioBlobs,
		ddlUserSettings,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store migrate: %w", err)
		}
	}
	return nil
}
