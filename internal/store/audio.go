package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hearsay-live/hearsay/internal/config"
)

// defaultAudioChunkSize is used by StreamAudio when the caller passes a
// non-positive chunk size.
const defaultAudioChunkSize = 64 * 1024

// AudioRef locates a recording's stored audio bytes. Exactly one field is
// set: OID for the large-object backend, BlobID for the bytea backend. The
// two fields map onto the recordings columns audio_oid and audio_blob_id.
type AudioRef struct {
	OID    *uint32
	BlobID *uuid.UUID
}

// IsZero reports whether the ref points at no audio at all.
func (r AudioRef) IsZero() bool { return r.OID == nil && r.BlobID == nil }

// LargeObjectRef builds an AudioRef for a large object.
func LargeObjectRef(oid uint32) AudioRef { return AudioRef{OID: &oid} }

// BlobRef builds an AudioRef for an audio_blobs row.
func BlobRef(id uuid.UUID) AudioRef { return AudioRef{BlobID: &id} }

// AudioStore is the storage abstraction for recorded audio bytes.
//
// ReadAudio returns length bytes starting at offset; a non-positive length
// reads to the end, and a range past the end returns the bytes that exist.
// StreamAudio yields chunks of at most chunkSize bytes until the audio is
// exhausted or the consumer stops; errors are yielded as the final element.
// DeleteAudio reports whether anything was deleted; deleting missing audio
// is not an error.
type AudioStore interface {
	SaveAudio(ctx context.Context, data []byte) (AudioRef, error)
	ReadAudio(ctx context.Context, ref AudioRef, offset, length int64) ([]byte, error)
	StreamAudio(ctx context.Context, ref AudioRef, chunkSize int) iter.Seq2[[]byte, error]
	AudioSize(ctx context.Context, ref AudioRef) (int64, error)
	DeleteAudio(ctx context.Context, ref AudioRef) (bool, error)
}

// SaveAudio implements [AudioStore]. It writes data through the backend
// selected by storage.audio_backend and returns the ref identifying it.
func (s *Store) SaveAudio(ctx context.Context, data []byte) (AudioRef, error) {
	if s.backend == config.AudioBackendBlob {
		return s.blob.SaveAudio(ctx, data)
	}
	return s.lo.SaveAudio(ctx, data)
}

// ReadAudio implements [AudioStore], dispatching on the ref's backend.
func (s *Store) ReadAudio(ctx context.Context, ref AudioRef, offset, length int64) ([]byte, error) {
	backend, err := s.audioFor(ref)
	if err != nil {
		return nil, err
	}
	return backend.ReadAudio(ctx, ref, offset, length)
}

// StreamAudio implements [AudioStore], dispatching on the ref's backend.
func (s *Store) StreamAudio(ctx context.Context, ref AudioRef, chunkSize int) iter.Seq2[[]byte, error] {
	backend, err := s.audioFor(ref)
	if err != nil {
		return func(yield func([]byte, error) bool) { yield(nil, err) }
	}
	return backend.StreamAudio(ctx, ref, chunkSize)
}

// AudioSize implements [AudioStore], dispatching on the ref's backend.
func (s *Store) AudioSize(ctx context.Context, ref AudioRef) (int64, error) {
	backend, err := s.audioFor(ref)
	if err != nil {
		return 0, err
	}
	return backend.AudioSize(ctx, ref)
}

// DeleteAudio implements [AudioStore], dispatching on the ref's backend.
func (s *Store) DeleteAudio(ctx context.Context, ref AudioRef) (bool, error) {
	backend, err := s.audioFor(ref)
	if err != nil {
		return false, err
	}
	return backend.DeleteAudio(ctx, ref)
}

// audioFor picks the backend that stored the referenced audio.
func (s *Store) audioFor(ref AudioRef) (AudioStore, error) {
	switch {
	case ref.OID != nil:
		return s.lo, nil
	case ref.BlobID != nil:
		return s.blob, nil
	default:
		return nil, ErrEmptyAudioRef
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Large-object backend
// ─────────────────────────────────────────────────────────────────────────────

// largeObjectStore stores audio through the PostgreSQL large-object facility.
// All LO operations must run inside a transaction, so every method opens one.
type largeObjectStore struct {
	pool *pgxpool.Pool
}

func (l *largeObjectStore) SaveAudio(ctx context.Context, data []byte) (AudioRef, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return AudioRef{}, fmt.Errorf("audio lo: begin save: %w", err)
	}
	defer tx.Rollback(ctx)

	lo := tx.LargeObjects()
	oid, err := lo.Create(ctx, 0)
	if err != nil {
		return AudioRef{}, fmt.Errorf("audio lo: create: %w", err)
	}

	obj, err := lo.Open(ctx, oid, pgx.LargeObjectModeWrite)
	if err != nil {
		return AudioRef{}, fmt.Errorf("audio lo: open for write: %w", err)
	}
	if _, err := obj.Write(data); err != nil {
		obj.Close()
		return AudioRef{}, fmt.Errorf("audio lo: write: %w", err)
	}
	if err := obj.Close(); err != nil {
		return AudioRef{}, fmt.Errorf("audio lo: close: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return AudioRef{}, fmt.Errorf("audio lo: commit save: %w", err)
	}
	return LargeObjectRef(oid), nil
}

func (l *largeObjectStore) ReadAudio(ctx context.Context, ref AudioRef, offset, length int64) ([]byte, error) {
	if ref.OID == nil {
		return nil, ErrEmptyAudioRef
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("audio lo: begin read: %w", err)
	}
	defer tx.Rollback(ctx)

	lo := tx.LargeObjects()
	obj, err := lo.Open(ctx, *ref.OID, pgx.LargeObjectModeRead)
	if err != nil {
		if loNotFound(err) {
			return nil, fmt.Errorf("audio lo: oid %d: %w", *ref.OID, ErrAudioNotFound)
		}
		return nil, fmt.Errorf("audio lo: open for read: %w", err)
	}
	defer obj.Close()

	if offset > 0 {
		if _, err := obj.Seek(offset, io.SeekStart); err != nil {
			return nil, fmt.Errorf("audio lo: seek: %w", err)
		}
	}

	if length <= 0 {
		data, err := io.ReadAll(obj)
		if err != nil {
			return nil, fmt.Errorf("audio lo: read: %w", err)
		}
		return data, nil
	}

	buf := make([]byte, length)
	n, err := io.ReadFull(obj, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("audio lo: read: %w", err)
	}
	return buf[:n], nil
}

func (l *largeObjectStore) StreamAudio(ctx context.Context, ref AudioRef, chunkSize int) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if ref.OID == nil {
			yield(nil, ErrEmptyAudioRef)
			return
		}
		if chunkSize <= 0 {
			chunkSize = defaultAudioChunkSize
		}

		tx, err := l.pool.Begin(ctx)
		if err != nil {
			yield(nil, fmt.Errorf("audio lo: begin stream: %w", err))
			return
		}
		defer tx.Rollback(ctx)

		lo := tx.LargeObjects()
		obj, err := lo.Open(ctx, *ref.OID, pgx.LargeObjectModeRead)
		if err != nil {
			if loNotFound(err) {
				yield(nil, fmt.Errorf("audio lo: oid %d: %w", *ref.OID, ErrAudioNotFound))
			} else {
				yield(nil, fmt.Errorf("audio lo: open for stream: %w", err))
			}
			return
		}
		defer obj.Close()

		for {
			buf := make([]byte, chunkSize)
			n, err := obj.Read(buf)
			if n > 0 && !yield(buf[:n], nil) {
				return
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield(nil, fmt.Errorf("audio lo: stream read: %w", err))
				}
				return
			}
		}
	}
}

func (l *largeObjectStore) AudioSize(ctx context.Context, ref AudioRef) (int64, error) {
	if ref.OID == nil {
		return 0, ErrEmptyAudioRef
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("audio lo: begin size: %w", err)
	}
	defer tx.Rollback(ctx)

	lo := tx.LargeObjects()
	obj, err := lo.Open(ctx, *ref.OID, pgx.LargeObjectModeRead)
	if err != nil {
		if loNotFound(err) {
			return 0, fmt.Errorf("audio lo: oid %d: %w", *ref.OID, ErrAudioNotFound)
		}
		return 0, fmt.Errorf("audio lo: open for size: %w", err)
	}
	defer obj.Close()

	size, err := obj.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("audio lo: seek end: %w", err)
	}
	return size, nil
}

func (l *largeObjectStore) DeleteAudio(ctx context.Context, ref AudioRef) (bool, error) {
	if ref.OID == nil {
		return false, ErrEmptyAudioRef
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("audio lo: begin delete: %w", err)
	}
	defer tx.Rollback(ctx)

	lo := tx.LargeObjects()
	if err := lo.Unlink(ctx, *ref.OID); err != nil {
		if loNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("audio lo: unlink: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("audio lo: commit delete: %w", err)
	}
	return true, nil
}

// loNotFound reports whether err is PostgreSQL's "large object does not
// exist" error (SQLSTATE 42704, undefined_object).
func loNotFound(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42704"
}

// ─────────────────────────────────────────────────────────────────────────────
// Blob backend
// ─────────────────────────────────────────────────────────────────────────────

// blobStore stores each audio payload as a single bytea row in audio_blobs.
// Ranged reads use substring on the server so large payloads are never pulled
// whole for a partial read.
type blobStore struct {
	pool *pgxpool.Pool
}

func (b *blobStore) SaveAudio(ctx context.Context, data []byte) (AudioRef, error) {
	id := uuid.New()

	const q = `INSERT INTO audio_blobs (id, data) VALUES ($1, $2)`
	if _, err := b.pool.Exec(ctx, q, id, data); err != nil {
		return AudioRef{}, fmt.Errorf("audio blob: insert: %w", err)
	}
	return BlobRef(id), nil
}

func (b *blobStore) ReadAudio(ctx context.Context, ref AudioRef, offset, length int64) ([]byte, error) {
	if ref.BlobID == nil {
		return nil, ErrEmptyAudioRef
	}

	// bytea substring offsets are 1-based int4; bytea itself caps at 1 GB so
	// the int casts cannot truncate a valid range.
	var (
		q    string
		args []any
	)
	if length <= 0 {
		q = `SELECT substring(data FROM $2::int + 1) FROM audio_blobs WHERE id = $1`
		args = []any{*ref.BlobID, offset}
	} else {
		q = `SELECT substring(data FROM $2::int + 1 FOR $3::int) FROM audio_blobs WHERE id = $1`
		args = []any{*ref.BlobID, offset, length}
	}

	var data []byte
	if err := b.pool.QueryRow(ctx, q, args...).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("audio blob: %s: %w", ref.BlobID, ErrAudioNotFound)
		}
		return nil, fmt.Errorf("audio blob: read: %w", err)
	}
	return data, nil
}

func (b *blobStore) StreamAudio(ctx context.Context, ref AudioRef, chunkSize int) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if ref.BlobID == nil {
			yield(nil, ErrEmptyAudioRef)
			return
		}
		if chunkSize <= 0 {
			chunkSize = defaultAudioChunkSize
		}

		var offset int64
		for {
			chunk, err := b.ReadAudio(ctx, ref, offset, int64(chunkSize))
			if err != nil {
				yield(nil, err)
				return
			}
			if len(chunk) > 0 && !yield(chunk, nil) {
				return
			}
			if len(chunk) < chunkSize {
				return
			}
			offset += int64(len(chunk))
		}
	}
}

func (b *blobStore) AudioSize(ctx context.Context, ref AudioRef) (int64, error) {
	if ref.BlobID == nil {
		return 0, ErrEmptyAudioRef
	}

	const q = `SELECT octet_length(data) FROM audio_blobs WHERE id = $1`

	var size int64
	if err := b.pool.QueryRow(ctx, q, *ref.BlobID).Scan(&size); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("audio blob: %s: %w", ref.BlobID, ErrAudioNotFound)
		}
		return 0, fmt.Errorf("audio blob: size: %w", err)
	}
	return size, nil
}

func (b *blobStore) DeleteAudio(ctx context.Context, ref AudioRef) (bool, error) {
	if ref.BlobID == nil {
		return false, ErrEmptyAudioRef
	}

	const q = `DELETE FROM audio_blobs WHERE id = $1`

	tag, err := b.pool.Exec(ctx, q, *ref.BlobID)
	if err != nil {
		return false, fmt.Errorf("audio blob: delete: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
