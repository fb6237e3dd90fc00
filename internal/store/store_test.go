package store_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hearsay-live/hearsay/internal/config"
	"github.com/hearsay-live/hearsay/internal/store"
	"github.com/hearsay-live/hearsay/pkg/types"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if HEARSAY_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("HEARSAY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("HEARSAY_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [store.Store] on a clean schema using the
// given audio backend. It calls t.Cleanup to close the store when the test
// finishes.
func newTestStore(t *testing.T, backend config.AudioBackend) *store.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	// Use a bare pool to drop the schema before the store re-migrates it.
	cleanPool := mustPool(t, ctx, dsn)
	t.Cleanup(cleanPool.Close)
	dropSchema(t, ctx, cleanPool)

	st, err := store.New(ctx, config.StorageConfig{PostgresDSN: dsn, AudioBackend: backend})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(st.Close)
	return st
}

func mustPool(t *testing.T, ctx context.Context, dsn string) *pgxpool.Pool {
	t.Helper()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	return pool
}

// dropSchema removes all tables created by Migrate.
func dropSchema(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS user_settings CASCADE",
		"DROP TABLE IF EXISTS audio_blobs CASCADE",
		"DROP TABLE IF EXISTS translations CASCADE",
		"DROP TABLE IF EXISTS transcripts CASCADE",
		"DROP TABLE IF EXISTS recordings CASCADE",
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("dropSchema %q: %v", stmt, err)
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Recordings
// ─────────────────────────────────────────────────────────────────────────────

func TestRecordingLifecycle(t *testing.T) {
	st := newTestStore(t, config.AudioBackendLargeObject)
	ctx := context.Background()
	userID := uuid.New()

	rec, err := st.CreateRecording(ctx, userID, "en", "de")
	if err != nil {
		t.Fatalf("CreateRecording: %v", err)
	}
	if rec.Status != store.StatusRecording {
		t.Errorf("status: want %q, got %q", store.StatusRecording, rec.Status)
	}
	if rec.SourceType != "live" {
		t.Errorf("source type: want %q, got %q", "live", rec.SourceType)
	}
	if !strings.HasPrefix(rec.Title, "Recording ") {
		t.Errorf("title: want timestamp title, got %q", rec.Title)
	}

	got, err := st.GetRecording(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetRecording: %v", err)
	}
	if got.UserID != userID || got.SourceLang != "en" || got.TargetLang != "de" {
		t.Errorf("round-trip mismatch: %+v", got)
	}
	if !got.Audio.IsZero() {
		t.Errorf("fresh recording should have no audio ref, got %+v", got.Audio)
	}

	// Completing attaches the audio and flips the status.
	ref, err := st.SaveAudio(ctx, []byte("fake mp3 payload"))
	if err != nil {
		t.Fatalf("SaveAudio: %v", err)
	}
	if err := st.CompleteRecording(ctx, rec.ID, ref, 16, "mp3", 12.5); err != nil {
		t.Fatalf("CompleteRecording: %v", err)
	}

	got, err = st.GetRecording(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetRecording after complete: %v", err)
	}
	if got.Status != store.StatusCompleted {
		t.Errorf("status: want %q, got %q", store.StatusCompleted, got.Status)
	}
	if got.Audio.OID == nil || got.Audio.BlobID != nil {
		t.Errorf("audio ref: want OID only, got %+v", got.Audio)
	}
	if got.AudioSize != 16 || got.AudioFormat != "mp3" {
		t.Errorf("audio meta: got size=%d format=%q", got.AudioSize, got.AudioFormat)
	}
	if got.Duration != 12.5 {
		t.Errorf("duration: want 12.5, got %v", got.Duration)
	}

	// A non-positive duration keeps the previous value.
	if err := st.CompleteRecording(ctx, rec.ID, ref, 16, "mp3", 0); err != nil {
		t.Fatalf("CompleteRecording again: %v", err)
	}
	got, _ = st.GetRecording(ctx, rec.ID)
	if got.Duration != 12.5 {
		t.Errorf("duration after zero update: want 12.5, got %v", got.Duration)
	}
}

func TestFailRecording(t *testing.T) {
	st := newTestStore(t, config.AudioBackendLargeObject)
	ctx := context.Background()

	rec, err := st.CreateRecording(ctx, uuid.New(), "en", "de")
	if err != nil {
		t.Fatalf("CreateRecording: %v", err)
	}
	if err := st.FailRecording(ctx, rec.ID); err != nil {
		t.Fatalf("FailRecording: %v", err)
	}

	got, err := st.GetRecording(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetRecording: %v", err)
	}
	if got.Status != store.StatusFailed {
		t.Errorf("status: want %q, got %q", store.StatusFailed, got.Status)
	}
}

func TestGetRecording_NotFound(t *testing.T) {
	st := newTestStore(t, config.AudioBackendLargeObject)

	_, err := st.GetRecording(context.Background(), uuid.New())
	if !errors.Is(err, store.ErrRecordingNotFound) {
		t.Errorf("want ErrRecordingNotFound, got %v", err)
	}
}

func TestSetRecordingS3Key(t *testing.T) {
	st := newTestStore(t, config.AudioBackendLargeObject)
	ctx := context.Background()

	rec, err := st.CreateRecording(ctx, uuid.New(), "en", "de")
	if err != nil {
		t.Fatalf("CreateRecording: %v", err)
	}
	key := "prod/" + rec.ID.String() + ".mp3"
	if err := st.SetRecordingS3Key(ctx, rec.ID, key); err != nil {
		t.Fatalf("SetRecordingS3Key: %v", err)
	}

	got, _ := st.GetRecording(ctx, rec.ID)
	if got.S3Key != key {
		t.Errorf("s3 key: want %q, got %q", key, got.S3Key)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Transcripts
// ─────────────────────────────────────────────────────────────────────────────

func TestAppendTranscript(t *testing.T) {
	st := newTestStore(t, config.AudioBackendLargeObject)
	ctx := context.Background()

	rec, err := st.CreateRecording(ctx, uuid.New(), "en", "de")
	if err != nil {
		t.Fatalf("CreateRecording: %v", err)
	}

	// No transcript yet.
	tr, err := st.GetTranscript(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetTranscript: %v", err)
	}
	if tr != nil {
		t.Fatalf("want nil transcript before first append, got %+v", tr)
	}

	// First append creates the row and copies the recording's source lang.
	first := store.TranscriptSegment{Text: "Hello there.", Start: 0, End: 1.5, IsFinal: true}
	if err := st.AppendTranscript(ctx, rec.ID, first); err != nil {
		t.Fatalf("AppendTranscript: %v", err)
	}

	tr, err = st.GetTranscript(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetTranscript: %v", err)
	}
	if tr == nil {
		t.Fatal("want transcript after first append")
	}
	if tr.Language != "en" {
		t.Errorf("language: want %q, got %q", "en", tr.Language)
	}
	if tr.FullText != "Hello there." {
		t.Errorf("full text: got %q", tr.FullText)
	}
	if len(tr.Segments) != 1 || tr.Segments[0] != first {
		t.Errorf("segments: got %+v", tr.Segments)
	}

	// Second append accumulates.
	second := store.TranscriptSegment{Text: "General Kenobi.", Start: 1.5, End: 3.1, IsFinal: true, Speaker: "Speaker 0"}
	if err := st.AppendTranscript(ctx, rec.ID, second); err != nil {
		t.Fatalf("AppendTranscript second: %v", err)
	}

	tr, err = st.GetTranscript(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetTranscript: %v", err)
	}
	if want := "Hello there. General Kenobi."; tr.FullText != want {
		t.Errorf("full text: want %q, got %q", want, tr.FullText)
	}
	if len(tr.Segments) != 2 {
		t.Fatalf("segments: want 2, got %d", len(tr.Segments))
	}
	if tr.Segments[1] != second {
		t.Errorf("second segment: want %+v, got %+v", second, tr.Segments[1])
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Translations
// ─────────────────────────────────────────────────────────────────────────────

func TestUpdateTranslation_MergesBySegmentID(t *testing.T) {
	st := newTestStore(t, config.AudioBackendLargeObject)
	ctx := context.Background()

	rec, err := st.CreateRecording(ctx, uuid.New(), "en", "de")
	if err != nil {
		t.Fatalf("CreateRecording: %v", err)
	}

	sentences := []types.TranslationResult{
		{SegmentID: "seg-1", Index: 0, Text: "Hallo da.", IsFinal: false},
		{SegmentID: "seg-1", Index: 1, Text: "General Kenobi!", IsFinal: true},
	}
	for _, r := range sentences {
		if err := st.UpdateTranslation(ctx, rec.ID, "de", r); err != nil {
			t.Fatalf("UpdateTranslation(%d): %v", r.Index, err)
		}
	}

	tr, err := st.GetTranslation(ctx, rec.ID, "de")
	if err != nil {
		t.Fatalf("GetTranslation: %v", err)
	}
	if tr == nil {
		t.Fatal("want translation row")
	}
	if len(tr.Segments) != 1 {
		t.Fatalf("segments: want 1, got %d", len(tr.Segments))
	}
	seg := tr.Segments[0]
	if want := "Hallo da. General Kenobi!"; seg.Text != want {
		t.Errorf("segment text: want %q, got %q", want, seg.Text)
	}
	if !seg.IsFinal {
		t.Error("segment should be final after the final sentence")
	}
	if tr.FullText != seg.Text {
		t.Errorf("full text: want %q, got %q", seg.Text, tr.FullText)
	}
}

func TestUpdateTranslation_IdempotentOnRedelivery(t *testing.T) {
	st := newTestStore(t, config.AudioBackendLargeObject)
	ctx := context.Background()

	rec, err := st.CreateRecording(ctx, uuid.New(), "en", "de")
	if err != nil {
		t.Fatalf("CreateRecording: %v", err)
	}

	r := types.TranslationResult{SegmentID: "seg-1", Index: 0, Text: "Hallo da.", IsFinal: true}
	for range 3 {
		if err := st.UpdateTranslation(ctx, rec.ID, "de", r); err != nil {
			t.Fatalf("UpdateTranslation: %v", err)
		}
	}

	tr, err := st.GetTranslation(ctx, rec.ID, "de")
	if err != nil {
		t.Fatalf("GetTranslation: %v", err)
	}
	if want := "Hallo da."; tr.FullText != want {
		t.Errorf("redelivery must not duplicate text: want %q, got %q", want, tr.FullText)
	}

	// A stale lower index is ignored too.
	later := types.TranslationResult{SegmentID: "seg-1", Index: 1, Text: "Zweiter Satz.", IsFinal: true}
	if err := st.UpdateTranslation(ctx, rec.ID, "de", later); err != nil {
		t.Fatalf("UpdateTranslation later: %v", err)
	}
	if err := st.UpdateTranslation(ctx, rec.ID, "de", r); err != nil {
		t.Fatalf("UpdateTranslation stale: %v", err)
	}

	tr, _ = st.GetTranslation(ctx, rec.ID, "de")
	if want := "Hallo da. Zweiter Satz."; tr.FullText != want {
		t.Errorf("stale redelivery applied: want %q, got %q", want, tr.FullText)
	}
}

func TestUpdateTranslation_AppendsNewSegments(t *testing.T) {
	st := newTestStore(t, config.AudioBackendLargeObject)
	ctx := context.Background()

	rec, err := st.CreateRecording(ctx, uuid.New(), "en", "de")
	if err != nil {
		t.Fatalf("CreateRecording: %v", err)
	}

	for _, r := range []types.TranslationResult{
		{SegmentID: "seg-1", Index: 0, Text: "Erster.", IsFinal: true},
		{SegmentID: "seg-2", Index: 0, Text: "Zweiter.", IsFinal: false},
	} {
		if err := st.UpdateTranslation(ctx, rec.ID, "de", r); err != nil {
			t.Fatalf("UpdateTranslation: %v", err)
		}
	}

	tr, err := st.GetTranslation(ctx, rec.ID, "de")
	if err != nil {
		t.Fatalf("GetTranslation: %v", err)
	}
	if len(tr.Segments) != 2 {
		t.Fatalf("segments: want 2, got %d", len(tr.Segments))
	}
	if tr.Segments[0].SegmentID != "seg-1" || tr.Segments[1].SegmentID != "seg-2" {
		t.Errorf("segment order: got %+v", tr.Segments)
	}
	if want := "Erster. Zweiter."; tr.FullText != want {
		t.Errorf("full text: want %q, got %q", want, tr.FullText)
	}
}

func TestUpdateTranslation_AdoptsPhantomSegment(t *testing.T) {
	st := newTestStore(t, config.AudioBackendLargeObject)
	ctx := context.Background()
	dsn := testDSN(t)

	rec, err := st.CreateRecording(ctx, uuid.New(), "en", "de")
	if err != nil {
		t.Fatalf("CreateRecording: %v", err)
	}

	// Inject a phantom placeholder the way a UI sync would: a trailing
	// segment with no segment_id.
	pool := mustPool(t, ctx, dsn)
	defer pool.Close()
	const inject = `
		INSERT INTO translations (id, recording_id, target_lang, segments, full_text)
		VALUES ($1, $2, 'de', '[{"text":"Vorläufig","is_final":false}]'::jsonb, 'Vorläufig')`
	if _, err := pool.Exec(ctx, inject, uuid.New(), rec.ID); err != nil {
		t.Fatalf("inject phantom: %v", err)
	}

	r := types.TranslationResult{SegmentID: "seg-7", Index: 0, Text: "Jetzt echt.", IsFinal: true}
	if err := st.UpdateTranslation(ctx, rec.ID, "de", r); err != nil {
		t.Fatalf("UpdateTranslation: %v", err)
	}

	tr, err := st.GetTranslation(ctx, rec.ID, "de")
	if err != nil {
		t.Fatalf("GetTranslation: %v", err)
	}
	if len(tr.Segments) != 1 {
		t.Fatalf("phantom should be adopted, not appended to: got %d segments", len(tr.Segments))
	}
	seg := tr.Segments[0]
	if seg.SegmentID != "seg-7" {
		t.Errorf("segment id: want %q, got %q", "seg-7", seg.SegmentID)
	}
	if want := "Vorläufig Jetzt echt."; seg.Text != want {
		t.Errorf("segment text: want %q, got %q", want, seg.Text)
	}
	if !seg.IsFinal {
		t.Error("adopted segment should be final")
	}
	if seg.Start != 0 || seg.End != 0 {
		t.Errorf("missing timestamps should stay zero, got start=%v end=%v", seg.Start, seg.End)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Audio backends
// ─────────────────────────────────────────────────────────────────────────────

// audioTestPayload builds a payload large enough to span several stream
// chunks and exercise ranged reads.
func audioTestPayload() []byte {
	data := make([]byte, 200_000)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func exerciseAudioStore(t *testing.T, st *store.Store, wantOID bool) {
	t.Helper()
	ctx := context.Background()
	data := audioTestPayload()

	ref, err := st.SaveAudio(ctx, data)
	if err != nil {
		t.Fatalf("SaveAudio: %v", err)
	}
	if wantOID && (ref.OID == nil || ref.BlobID != nil) {
		t.Fatalf("want large-object ref, got %+v", ref)
	}
	if !wantOID && (ref.BlobID == nil || ref.OID != nil) {
		t.Fatalf("want blob ref, got %+v", ref)
	}

	size, err := st.AudioSize(ctx, ref)
	if err != nil {
		t.Fatalf("AudioSize: %v", err)
	}
	if size != int64(len(data)) {
		t.Errorf("size: want %d, got %d", len(data), size)
	}

	full, err := st.ReadAudio(ctx, ref, 0, 0)
	if err != nil {
		t.Fatalf("ReadAudio full: %v", err)
	}
	if !bytes.Equal(full, data) {
		t.Error("full read differs from saved payload")
	}

	ranged, err := st.ReadAudio(ctx, ref, 100, 50)
	if err != nil {
		t.Fatalf("ReadAudio ranged: %v", err)
	}
	if !bytes.Equal(ranged, data[100:150]) {
		t.Error("ranged read differs from payload slice")
	}

	// Reading past the end returns only what exists.
	tail, err := st.ReadAudio(ctx, ref, int64(len(data))-10, 100)
	if err != nil {
		t.Fatalf("ReadAudio tail: %v", err)
	}
	if !bytes.Equal(tail, data[len(data)-10:]) {
		t.Errorf("tail read: want 10 bytes, got %d", len(tail))
	}

	var streamed []byte
	for chunk, err := range st.StreamAudio(ctx, ref, 64*1024) {
		if err != nil {
			t.Fatalf("StreamAudio: %v", err)
		}
		if len(chunk) > 64*1024 {
			t.Fatalf("chunk exceeds chunk size: %d", len(chunk))
		}
		streamed = append(streamed, chunk...)
	}
	if !bytes.Equal(streamed, data) {
		t.Error("streamed bytes differ from saved payload")
	}

	deleted, err := st.DeleteAudio(ctx, ref)
	if err != nil {
		t.Fatalf("DeleteAudio: %v", err)
	}
	if !deleted {
		t.Error("first delete should report true")
	}
	deleted, err = st.DeleteAudio(ctx, ref)
	if err != nil {
		t.Fatalf("DeleteAudio second: %v", err)
	}
	if deleted {
		t.Error("second delete should report false")
	}

	if _, err := st.ReadAudio(ctx, ref, 0, 0); !errors.Is(err, store.ErrAudioNotFound) {
		t.Errorf("read after delete: want ErrAudioNotFound, got %v", err)
	}
	if _, err := st.AudioSize(ctx, ref); !errors.Is(err, store.ErrAudioNotFound) {
		t.Errorf("size after delete: want ErrAudioNotFound, got %v", err)
	}
}

func TestAudioStore_LargeObject(t *testing.T) {
	st := newTestStore(t, config.AudioBackendLargeObject)
	exerciseAudioStore(t, st, true)
}

func TestAudioStore_Blob(t *testing.T) {
	st := newTestStore(t, config.AudioBackendBlob)
	exerciseAudioStore(t, st, false)
}

func TestAudio_DispatchesOnRef(t *testing.T) {
	// Store configured for large objects must still read blob-backed audio:
	// the ref identifies the backend, not the configuration.
	st := newTestStore(t, config.AudioBackendBlob)
	ctx := context.Background()

	ref, err := st.SaveAudio(ctx, []byte("blob bytes"))
	if err != nil {
		t.Fatalf("SaveAudio: %v", err)
	}

	loStore, err := store.New(ctx, config.StorageConfig{
		PostgresDSN:  testDSN(t),
		AudioBackend: config.AudioBackendLargeObject,
	})
	if err != nil {
		t.Fatalf("New lo store: %v", err)
	}
	defer loStore.Close()

	data, err := loStore.ReadAudio(ctx, ref, 0, 0)
	if err != nil {
		t.Fatalf("ReadAudio via lo-configured store: %v", err)
	}
	if string(data) != "blob bytes" {
		t.Errorf("read: got %q", data)
	}
}

func TestAudio_EmptyRef(t *testing.T) {
	st := newTestStore(t, config.AudioBackendLargeObject)
	ctx := context.Background()

	if _, err := st.ReadAudio(ctx, store.AudioRef{}, 0, 0); !errors.Is(err, store.ErrEmptyAudioRef) {
		t.Errorf("ReadAudio: want ErrEmptyAudioRef, got %v", err)
	}
	if _, err := st.AudioSize(ctx, store.AudioRef{}); !errors.Is(err, store.ErrEmptyAudioRef) {
		t.Errorf("AudioSize: want ErrEmptyAudioRef, got %v", err)
	}
	for _, err := range st.StreamAudio(ctx, store.AudioRef{}, 0) {
		if !errors.Is(err, store.ErrEmptyAudioRef) {
			t.Errorf("StreamAudio: want ErrEmptyAudioRef, got %v", err)
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// User settings
// ─────────────────────────────────────────────────────────────────────────────

func TestUserSettings(t *testing.T) {
	st := newTestStore(t, config.AudioBackendLargeObject)
	ctx := context.Background()
	userID := uuid.New()

	// Missing row reads as no overrides.
	raw, useAdmin, err := st.UserSettings(ctx, userID)
	if err != nil {
		t.Fatalf("UserSettings: %v", err)
	}
	if raw != nil || useAdmin {
		t.Errorf("want (nil, false) for missing row, got (%q, %v)", raw, useAdmin)
	}

	doc := []byte(`{"stt": {"provider": "whisper"}}`)
	if err := st.SaveUserSettings(ctx, userID, doc, true); err != nil {
		t.Fatalf("SaveUserSettings: %v", err)
	}

	raw, useAdmin, err = st.UserSettings(ctx, userID)
	if err != nil {
		t.Fatalf("UserSettings: %v", err)
	}
	if !useAdmin {
		t.Error("use_admin_keys: want true")
	}
	if !strings.Contains(string(raw), `"whisper"`) {
		t.Errorf("settings document: got %s", raw)
	}

	// Upsert replaces the document and the flag.
	if err := st.SaveUserSettings(ctx, userID, nil, false); err != nil {
		t.Fatalf("SaveUserSettings update: %v", err)
	}
	raw, useAdmin, err = st.UserSettings(ctx, userID)
	if err != nil {
		t.Fatalf("UserSettings: %v", err)
	}
	if useAdmin {
		t.Error("use_admin_keys: want false after update")
	}
	if string(raw) != "{}" {
		t.Errorf("settings document: want {}, got %s", raw)
	}
}
