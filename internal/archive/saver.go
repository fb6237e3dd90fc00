// Package archive turns a stopped session's accumulated audio into a durable
// recording artifact: transcode to MP3 when possible, persist through the
// audio store, and mirror to object storage when configured.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hearsay-live/hearsay/internal/store"
	"github.com/hearsay-live/hearsay/pkg/audio"
)

// ErrNoAudio reports a save attempt with zero recorded bytes.
var ErrNoAudio = errors.New("archive: no audio data")

const (
	// stageTimeout bounds each transcode stage so a wedged codec cannot
	// hang the session stop path.
	stageTimeout = 60 * time.Second

	// mp3Bitrate is the archival bitrate in kbps. Voice survives 48 kbps
	// mono fine and recordings run long.
	mp3Bitrate = 48

	failTimeout = 10 * time.Second
)

// Recorder is the slice of the store the saver writes through.
type Recorder interface {
	SaveAudio(ctx context.Context, data []byte) (store.AudioRef, error)
	CompleteRecording(ctx context.Context, id uuid.UUID, ref store.AudioRef, size int64, format string, duration float64) error
	FailRecording(ctx context.Context, id uuid.UUID) error
	SetRecordingS3Key(ctx context.Context, id uuid.UUID, key string) error
}

// Mirror uploads a copy of the artifact to object storage and returns the
// object key.
type Mirror interface {
	Upload(ctx context.Context, recordingID uuid.UUID, ext string, data []byte) (string, error)
}

// Result describes the artifact a Save produced.
type Result struct {
	// Ref locates the audio in the store.
	Ref store.AudioRef

	// Size is the stored byte count.
	Size int64

	// Format is the stored format tag: "mp3" after a successful transcode,
	// otherwise the session's wire codec.
	Format string

	// Duration is the decoded length in seconds, or zero when the payload
	// could not be decoded.
	Duration float64

	// S3Key is the mirror object key, empty when mirroring was off or failed.
	S3Key string
}

// Saver persists session audio. The zero value is not usable; construct with
// NewSaver.
type Saver struct {
	store  Recorder
	mirror Mirror
	log    *slog.Logger
}

// NewSaver returns a Saver writing through rec. mirror may be nil to disable
// object-storage mirroring.
func NewSaver(rec Recorder, mirror Mirror, log *slog.Logger) *Saver {
	if log == nil {
		log = slog.Default()
	}
	return &Saver{
		store:  rec,
		mirror: mirror,
		log:    log.With("component", "archive"),
	}
}

// Save produces the durable artifact for one recording from the session's
// header frame and accumulated payload.
//
// The payload is decoded to canonical PCM and re-encoded as MP3; if either
// stage fails or times out, the raw payload is stored verbatim under its wire
// codec tag instead. Store write and mirror upload run concurrently; a mirror
// failure is logged and never fails the save. A store failure marks the
// recording failed and reports the error.
func (s *Saver) Save(ctx context.Context, recordingID uuid.UUID, header, payload []byte, codec audio.Codec) (Result, error) {
	if len(header) == 0 && len(payload) == 0 {
		return Result{}, ErrNoAudio
	}
	if len(header) > 0 && !bytes.HasPrefix(payload, header) {
		joined := make([]byte, 0, len(header)+len(payload))
		joined = append(joined, header...)
		payload = append(joined, payload...)
	}

	data, format, duration := s.transcode(ctx, payload, codec)

	var (
		ref   store.AudioRef
		s3Key string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ref, err = s.store.SaveAudio(gctx, data)
		if err != nil {
			return fmt.Errorf("archive: save audio: %w", err)
		}
		return nil
	})
	if s.mirror != nil {
		g.Go(func() error {
			key, err := s.mirror.Upload(gctx, recordingID, audio.Codec(format).Ext(), data)
			switch {
			case store.IsBucketMissing(err):
				s.log.Error("mirror bucket does not exist, check storage.s3.bucket",
					"recording_id", recordingID, "error", err)
				return nil
			case err != nil:
				s.log.Warn("mirror upload failed",
					"recording_id", recordingID, "error", err)
				return nil
			}
			s3Key = key
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.markFailed(recordingID)
		return Result{}, err
	}

	size := int64(len(data))
	if err := s.store.CompleteRecording(ctx, recordingID, ref, size, format, duration); err != nil {
		return Result{}, fmt.Errorf("archive: complete recording: %w", err)
	}
	if s3Key != "" {
		if err := s.store.SetRecordingS3Key(ctx, recordingID, s3Key); err != nil {
			s.log.Warn("set s3 key failed", "recording_id", recordingID, "error", err)
		}
	}

	s.log.Info("recording archived",
		"recording_id", recordingID,
		"format", format,
		"size_bytes", size,
		"duration_seconds", duration,
		"mirrored", s3Key != "")
	return Result{Ref: ref, Size: size, Format: format, Duration: duration, S3Key: s3Key}, nil
}

// transcode converts the session payload to archival MP3. On decode failure
// the raw payload comes back tagged with its wire codec and zero duration; on
// encode failure the raw payload comes back with the decoded duration.
func (s *Saver) transcode(ctx context.Context, payload []byte, codec audio.Codec) (data []byte, format string, duration float64) {
	pcm, err := runStage(ctx, "decode", func() ([]byte, error) {
		return audio.ToCanonical(payload, codec)
	})
	if err != nil {
		s.log.Warn("decode failed, storing raw payload", "codec", string(codec), "error", err)
		return payload, string(codec), 0
	}
	duration = audio.Duration(pcm, audio.Canonical())

	mp3, err := runStage(ctx, "encode", func() ([]byte, error) {
		return audio.EncodeMP3(pcm, audio.Canonical(), mp3Bitrate)
	})
	if err != nil {
		s.log.Warn("mp3 encode failed, storing raw payload", "error", err)
		return payload, string(codec), duration
	}
	return mp3, "mp3", duration
}

// runStage runs one transcode stage in its own goroutine under the stage
// timeout. On timeout the goroutine is abandoned; its buffered result is
// dropped when it eventually finishes.
func runStage(ctx context.Context, name string, fn func() ([]byte, error)) ([]byte, error) {
	sctx, cancel := context.WithTimeout(ctx, stageTimeout)
	defer cancel()

	type outcome struct {
		data []byte
		err  error
	}
	ch := make(chan outcome, 1)
	go func() {
		data, err := fn()
		ch <- outcome{data: data, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			return nil, fmt.Errorf("archive: %s: %w", name, out.err)
		}
		return out.data, nil
	case <-sctx.Done():
		return nil, fmt.Errorf("archive: %s: %w", name, sctx.Err())
	}
}

func (s *Saver) markFailed(recordingID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), failTimeout)
	defer cancel()
	if err := s.store.FailRecording(ctx, recordingID); err != nil {
		s.log.Warn("mark recording failed", "recording_id", recordingID, "error", err)
	}
}
