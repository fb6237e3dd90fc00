// Package session drives one websocket connection through the transcription
// and translation pipeline: control commands and audio frames in, transcript
// and translation frames out.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hearsay-live/hearsay/internal/archive"
	"github.com/hearsay-live/hearsay/internal/config"
	"github.com/hearsay-live/hearsay/internal/ingress"
	"github.com/hearsay-live/hearsay/internal/observe"
	"github.com/hearsay-live/hearsay/internal/segment"
	"github.com/hearsay-live/hearsay/internal/store"
	"github.com/hearsay-live/hearsay/internal/translate"
	"github.com/hearsay-live/hearsay/pkg/audio"
	"github.com/hearsay-live/hearsay/pkg/provider/vad"
	"github.com/hearsay-live/hearsay/pkg/types"
)

const (
	// persistTimeout bounds one store write issued from the event path.
	persistTimeout = 10 * time.Second

	// translationDrain bounds the wait for in-flight translations at stop.
	// Every dispatched sentence resolves within the dispatcher's own 15s
	// budget once it holds a token, so only bucket starvation can trip this.
	translationDrain = 60 * time.Second

	// archiveTimeout bounds the artifact save: two 60s transcode stages
	// plus the store and mirror writes.
	archiveTimeout = 3 * time.Minute
)

// Client is the session's window to the connected websocket peer. Send
// marshals the frame to JSON and writes it as one text message; it must be
// safe for concurrent use. Send errors mean the peer is gone — the session
// keeps running and persistence proceeds regardless.
type Client interface {
	Send(frame any) error
}

// Recorder is the slice of the store the session persists through.
type Recorder interface {
	CreateRecording(ctx context.Context, userID uuid.UUID, sourceLang, targetLang string) (*store.Recording, error)
	GetRecording(ctx context.Context, id uuid.UUID) (*store.Recording, error)
	AppendTranscript(ctx context.Context, recordingID uuid.UUID, seg store.TranscriptSegment) error
	UpdateTranslation(ctx context.Context, recordingID uuid.UUID, targetLang string, result types.TranslationResult) error
	UserSettings(ctx context.Context, userID uuid.UUID) ([]byte, bool, error)
}

// Archiver persists the accumulated session audio at stop.
type Archiver interface {
	Save(ctx context.Context, recordingID uuid.UUID, header, payload []byte, codec audio.Codec) (archive.Result, error)
}

// Deps carries the process-wide collaborators sessions are built from.
type Deps struct {
	// Config is the server configuration; per-user settings overlay it at
	// session start. Required.
	Config *config.Config

	// Registry creates ASR and translation providers from resolved
	// settings. Required.
	Registry *config.Registry

	// Store persists recordings, transcripts, translations, and serves
	// user settings. Required.
	Store Recorder

	// Archive saves the audio artifact at stop. Required.
	Archive Archiver

	// VAD gates the buffered ingress path. Required.
	VAD vad.Engine

	// Logger for session diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

func (d Deps) validate() error {
	var errs []error
	if d.Config == nil {
		errs = append(errs, errors.New("session: deps need a config"))
	}
	if d.Registry == nil {
		errs = append(errs, errors.New("session: deps need a provider registry"))
	}
	if d.Store == nil {
		errs = append(errs, errors.New("session: deps need a store"))
	}
	if d.Archive == nil {
		errs = append(errs, errors.New("session: deps need an archiver"))
	}
	if d.VAD == nil {
		errs = append(errs, errors.New("session: deps need a vad engine"))
	}
	return errors.Join(errs...)
}

// blobKey addresses one buffered-path transcription blob within its segment.
type blobKey struct {
	segmentID string
	index     int
}

// Session is the per-connection pipeline coordinator. One session serves one
// websocket for its whole life and may run several start/stop cycles.
//
// The websocket read loop calls HandleText and HandleBinary sequentially;
// transcript events arrive concurrently from processor goroutines and are
// serialized under the session mutex, which fixes the wire order of
// transcript and segment_complete frames. Translation results flow through
// per-segment ordered senders and never take the session mutex.
type Session struct {
	deps    Deps
	userID  uuid.UUID
	client  Client
	log     *slog.Logger
	metrics *observe.Metrics

	// runCtx outlives individual commands and bounds translation
	// goroutines; it is cancelled once, when the connection goes away.
	runCtx    context.Context
	cancelRun context.CancelFunc

	mu         sync.Mutex
	active     bool
	stopping   bool
	proc       ingress.Processor
	strategy   config.Strategy
	codec      audio.Codec
	recording  *store.Recording
	targetLang string
	builder    *segment.SentenceBuilder
	supervisor *segment.Supervisor
	dispatcher *translate.Dispatcher
	senders    map[string]*translate.OrderedSender

	// blobMu guards the buffered-path blob bookkeeping. Separate from mu
	// because delivery callbacks read it while mu may be held elsewhere.
	blobMu          sync.Mutex
	blobSeq         map[string]int
	blobTranscripts map[blobKey]string

	translations sync.WaitGroup
}

func newSession(deps Deps, userID uuid.UUID, client Client) *Session {
	runCtx, cancel := context.WithCancel(context.Background())
	return &Session{
		deps:      deps,
		userID:    userID,
		client:    client,
		log:       deps.Logger.With("component", "session", "user_id", userID.String()),
		metrics:   observe.DefaultMetrics(),
		runCtx:    runCtx,
		cancelRun: cancel,
	}
}

// HandleText processes one JSON control message from the client. Invalid or
// unknown commands produce an error frame; the socket stays open.
func (s *Session) HandleText(ctx context.Context, data []byte) {
	cmd, err := ParseCommand(data)
	if err != nil {
		s.log.Warn("bad control message", "error", err)
		s.send(errorFrame("Invalid message format"))
		return
	}

	switch cmd.Action {
	case ActionStart:
		s.handleStart(ctx, cmd)
	case ActionStop:
		if !s.stop(ctx) {
			s.send(errorFrame("No active recording"))
		}
	case ActionPing:
		s.send(pongFrame())
	case ActionPause:
		s.handlePause()
	case ActionResume:
		s.handleResume()
	default:
		s.send(errorFrame("Unknown action: " + cmd.Action))
	}
}

// HandleBinary feeds one audio frame to the active processor. Frames that
// arrive outside a recording are dropped.
func (s *Session) HandleBinary(frame []byte) {
	s.mu.Lock()
	proc := s.proc
	active := s.active
	s.mu.Unlock()
	if !active || proc == nil {
		return
	}
	if err := proc.ProcessAudio(frame); err != nil && !errors.Is(err, ingress.ErrNotActive) {
		s.log.Warn("process audio frame", "error", err)
	}
}

// Shutdown stops any active recording and releases the session for good.
// Called when the websocket closes or the server drains; safe to call more
// than once.
func (s *Session) Shutdown(ctx context.Context) {
	s.stop(ctx)
	s.cancelRun()
}

func (s *Session) handleStart(ctx context.Context, cmd Command) {
	s.mu.Lock()
	busy := s.active || s.stopping
	s.mu.Unlock()
	if busy {
		s.send(errorFrame("Recording already in progress"))
		return
	}

	if cmd.SourceLang == "" || cmd.TargetLang == "" {
		s.send(errorFrame("source_lang and target_lang are required"))
		return
	}
	codec := audio.Codec(cmd.Codec)
	if codec == "" {
		codec = audio.CodecPCM16
	}
	if !codec.IsValid() {
		s.send(errorFrame("Unsupported codec: " + cmd.Codec))
		return
	}

	settings := s.resolveSettings(ctx, cmd)
	strategy, ok := config.StrategyFor(settings.STT.Provider, settings.STT.Model)
	if !ok {
		s.send(errorFrame("Unknown speech provider: " + settings.STT.Provider))
		return
	}

	rec, err := s.obtainRecording(ctx, cmd)
	if err != nil {
		s.log.Error("obtain recording", "error", err)
		s.send(errorFrame("Failed to create recording"))
		return
	}

	llmProvider, err := s.deps.Registry.CreateLLM(settings.LLM.Entry())
	if err != nil {
		s.log.Error("create llm provider", "provider", settings.LLM.Provider, "error", err)
		s.send(errorFrame("Translation provider unavailable: " + settings.LLM.Provider))
		return
	}
	dispatcher := translate.NewDispatcher(
		llmProvider,
		translate.NewTokenBucket(settings.Recording.RPM()),
		cmd.SourceLang,
		cmd.TargetLang,
	)

	proc, err := s.buildProcessor(strategy, settings, cmd.SourceLang, codec)
	if err != nil {
		s.log.Error("build processor", "provider", settings.STT.Provider, "error", err)
		s.send(errorFrame("Speech provider unavailable: " + settings.STT.Provider))
		return
	}
	if err := proc.Start(ctx); err != nil {
		s.log.Error("start processor", "provider", settings.STT.Provider, "error", err)
		s.send(errorFrame("Failed to start recording"))
		return
	}

	s.mu.Lock()
	s.active = true
	s.proc = proc
	s.strategy = strategy
	s.codec = codec
	s.recording = rec
	s.targetLang = cmd.TargetLang
	s.builder = segment.NewSentenceBuilder()
	s.supervisor = segment.NewSupervisor(
		settings.Recording.SoftThreshold(),
		settings.Recording.HardThreshold(),
	)
	s.dispatcher = dispatcher
	s.senders = make(map[string]*translate.OrderedSender)
	s.mu.Unlock()

	s.blobMu.Lock()
	s.blobSeq = make(map[string]int)
	s.blobTranscripts = make(map[blobKey]string)
	s.blobMu.Unlock()

	s.metrics.ActiveSessions.Add(s.runCtx, 1)
	s.log.Info("recording started",
		"recording_id", rec.ID,
		"provider", settings.STT.Provider,
		"model", settings.STT.Model,
		"strategy", string(strategy),
		"codec", string(codec),
		"source_lang", cmd.SourceLang,
		"target_lang", cmd.TargetLang)
	s.send(statusFrame(fmt.Sprintf("Recording started (%s)", settings.STT.Provider)))
}

// resolveSettings overlays the user's stored settings onto the server
// defaults and applies the per-command overrides. Settings load failures
// degrade to server defaults rather than refusing the session.
func (s *Session) resolveSettings(ctx context.Context, cmd Command) config.Settings {
	var user *config.UserSettings
	raw, useAdminKeys, err := s.deps.Store.UserSettings(ctx, s.userID)
	if err != nil {
		s.log.Warn("load user settings, using defaults", "error", err)
	} else if user, err = config.ParseUserSettings(raw); err != nil {
		s.log.Warn("parse user settings, using defaults", "error", err)
		user = nil
	}
	settings := config.Resolve(s.deps.Config, user, useAdminKeys)

	if cmd.SilenceThreshold != nil {
		settings.STT.SilenceThreshold = *cmd.SilenceThreshold
	}
	if cmd.Diarization != nil {
		settings.STT.Diarization = *cmd.Diarization
	}
	return settings
}

// obtainRecording adopts the client-supplied recording row or creates a
// fresh one. An adopted recording must exist and belong to the session user.
func (s *Session) obtainRecording(ctx context.Context, cmd Command) (*store.Recording, error) {
	if cmd.RecordingID == "" {
		return s.deps.Store.CreateRecording(ctx, s.userID, cmd.SourceLang, cmd.TargetLang)
	}
	id, err := uuid.Parse(cmd.RecordingID)
	if err != nil {
		return nil, fmt.Errorf("parse recording_id %q: %w", cmd.RecordingID, err)
	}
	rec, err := s.deps.Store.GetRecording(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.UserID != s.userID {
		return nil, fmt.Errorf("recording %s does not belong to user %s", id, s.userID)
	}
	return rec, nil
}

func (s *Session) buildProcessor(strategy config.Strategy, settings config.Settings, sourceLang string, codec audio.Codec) (ingress.Processor, error) {
	switch strategy {
	case config.StrategyStreaming:
		provider, err := s.deps.Registry.CreateSTT(settings.STT.Entry())
		if err != nil {
			return nil, err
		}
		return ingress.NewStreamProcessor(ingress.StreamConfig{
			Provider:     provider,
			ProviderName: settings.STT.Provider,
			Codec:        codec,
			Language:     sourceLang,
			Diarize:      settings.STT.Diarization,
			OnEvent:      s.onTranscript,
			OnAutoStop:   s.onAutoStop,
			Logger:       s.log,
		})
	case config.StrategyBuffered:
		transcriber, err := s.deps.Registry.CreateBatchSTT(settings.STT.Entry())
		if err != nil {
			return nil, err
		}
		return ingress.NewBatchProcessor(ingress.BatchConfig{
			Transcriber:      transcriber,
			VAD:              s.deps.VAD,
			Codec:            codec,
			Language:         sourceLang,
			ProviderName:     settings.STT.Provider,
			BufferDuration:   settings.Recording.AudioBufferDuration,
			SilenceThreshold: settings.STT.SilenceThreshold,
			OnEvent:          s.onTranscript,
			OnError:          s.onProcessorError,
			Logger:           s.log,
		})
	default:
		return nil, fmt.Errorf("session: no processor for strategy %q", strategy)
	}
}

// stop winds one recording down: drain the processor, flush sentence and
// segment state, wait for in-flight translations, then archive the audio.
// It reports false when no recording was active.
//
// The processor is stopped outside the session mutex: buffered-path flush
// goroutines deliver their last events through onTranscript, which needs it.
func (s *Session) stop(ctx context.Context) bool {
	s.mu.Lock()
	if !s.active || s.stopping {
		s.mu.Unlock()
		return false
	}
	s.active = false
	s.stopping = true
	proc := s.proc
	s.mu.Unlock()

	header, payload, stopErr := proc.Stop()
	if stopErr != nil {
		s.log.Warn("stop processor", "error", stopErr)
	}

	s.mu.Lock()
	if s.strategy == config.StrategyStreaming {
		for _, sent := range s.builder.Flush() {
			s.dispatchLocked(sent)
		}
		for _, ev := range s.supervisor.ForceClose() {
			s.metrics.RecordSegmentClosed(s.runCtx)
			s.send(segmentCompleteFrame(ev))
		}
	}
	rec := s.recording
	codec := s.codec
	senders := make([]*translate.OrderedSender, 0, len(s.senders))
	for _, snd := range s.senders {
		senders = append(senders, snd)
	}
	s.proc = nil
	s.builder = nil
	s.supervisor = nil
	s.dispatcher = nil
	s.senders = nil
	s.recording = nil
	s.mu.Unlock()

	s.awaitTranslations(ctx)
	for _, snd := range senders {
		snd.FlushAll()
	}

	s.archiveAudio(rec, header, payload, codec)

	s.mu.Lock()
	s.stopping = false
	s.mu.Unlock()

	s.metrics.ActiveSessions.Add(s.runCtx, -1)
	s.log.Info("recording stopped", "recording_id", rec.ID, "payload_bytes", len(payload))
	return true
}

// awaitTranslations blocks until every dispatched translation has delivered,
// bounded by the drain budget and the caller's context. Results that land
// after the bound still deliver through their ordered sender; they are just
// no longer waited for.
func (s *Session) awaitTranslations(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.translations.Wait()
		close(done)
	}()

	timer := time.NewTimer(translationDrain)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		s.log.Warn("translation drain timed out", "after", translationDrain)
	case <-ctx.Done():
		s.log.Warn("translation drain cancelled", "error", ctx.Err())
	}
}

func (s *Session) archiveAudio(rec *store.Recording, header, payload []byte, codec audio.Codec) {
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	res, err := s.deps.Archive.Save(ctx, rec.ID, header, payload, codec)
	switch {
	case errors.Is(err, archive.ErrNoAudio):
		s.send(errorFrame("No audio data"))
	case err != nil:
		s.log.Error("archive recording", "recording_id", rec.ID, "error", err)
		s.send(errorFrame("Failed to save audio"))
	default:
		s.send(audioSavedFrame(rec.ID.String(), res.Size))
	}
}

// onAutoStop runs on its own goroutine when an ingress watchdog fires. The
// client learns the reason, then the normal stop path runs.
func (s *Session) onAutoStop(reason error) {
	s.log.Warn("automatic stop", "reason", reason)
	s.send(statusFrame(fmt.Sprintf("Recording stopped: %s", reason)))
	s.stop(context.Background())
}

// onProcessorError surfaces a transcription failure without ending the
// recording; the next window may well succeed.
func (s *Session) onProcessorError(err error) {
	s.log.Warn("transcription failed", "error", err)
	s.send(errorFrame(fmt.Sprintf("Transcription error: %v", err)))
}

func (s *Session) handlePause() {
	s.mu.Lock()
	pauser, ok := s.proc.(ingress.Pauser)
	s.mu.Unlock()
	if !ok {
		s.send(errorFrame("Pause is not supported for this session"))
		return
	}
	if err := pauser.Pause(); err != nil {
		if errors.Is(err, ingress.ErrNotActive) {
			s.send(errorFrame("No active recording"))
		} else {
			s.log.Warn("pause", "error", err)
			s.send(errorFrame("Failed to pause"))
		}
		return
	}
	s.send(statusFrame("Recording paused"))
}

func (s *Session) handleResume() {
	s.mu.Lock()
	pauser, ok := s.proc.(ingress.Pauser)
	s.mu.Unlock()
	if !ok {
		s.send(errorFrame("Pause is not supported for this session"))
		return
	}
	if err := pauser.Resume(); err != nil {
		if errors.Is(err, ingress.ErrNotActive) {
			s.send(errorFrame("No active recording"))
		} else {
			s.log.Warn("resume", "error", err)
			s.send(errorFrame("Failed to resume"))
		}
		return
	}
	s.send(statusFrame("Recording resumed"))
}

// onTranscript receives every transcript event from the processor. Events
// are serialized under the session mutex: the segment id is sampled before
// the supervisor ingests the text, so the transcript frame is attributed to
// the card that was open when the words were spoken.
func (s *Session) onTranscript(ev types.TranscriptEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.supervisor == nil {
		// A straggler delivered after stop finished tearing down.
		return
	}
	segmentID := s.supervisor.CurrentSegmentID()
	ev.SegmentID = segmentID
	s.send(transcriptFrame(ev, segmentID))

	if !ev.IsFinal {
		return
	}
	s.persistTranscript(ev)

	switch s.strategy {
	case config.StrategyStreaming:
		for _, sent := range s.builder.AddFinal(ev.Text, segmentID) {
			s.dispatchLocked(sent)
		}
		for _, segEv := range s.supervisor.AddTranscript(ev.Text, ev.Start, ev.End) {
			if segEv.Kind != types.SegmentClosed {
				continue
			}
			for _, sent := range s.builder.ResetForNewSegment(s.supervisor.CurrentSegmentID()) {
				s.dispatchLocked(sent)
			}
			s.metrics.RecordSegmentClosed(s.runCtx)
			s.send(segmentCompleteFrame(segEv))
		}
	case config.StrategyBuffered:
		s.dispatchBlobLocked(ev, segmentID)
	}
}

// persistTranscript appends one final fragment to the recording's transcript
// document. Failures are logged; the live stream continues.
func (s *Session) persistTranscript(ev types.TranscriptEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	err := s.deps.Store.AppendTranscript(ctx, s.recording.ID, store.TranscriptSegment{
		Text:    ev.Text,
		Start:   ev.Start,
		End:     ev.End,
		IsFinal: ev.IsFinal,
		Speaker: ev.Speaker,
	})
	if err != nil {
		s.log.Warn("persist transcript", "recording_id", s.recording.ID, "error", err)
	}
}

// dispatchBlobLocked translates one buffered-path blob as a single sentence.
// Blobs share their segment's ordered sender so concurrent translations still
// deliver and persist in transcription order.
func (s *Session) dispatchBlobLocked(ev types.TranscriptEvent, segmentID string) {
	s.blobMu.Lock()
	index := s.blobSeq[segmentID]
	s.blobSeq[segmentID] = index + 1
	s.blobTranscripts[blobKey{segmentID: segmentID, index: index}] = ev.TranscriptID
	s.blobMu.Unlock()

	s.dispatchLocked(types.Sentence{Text: ev.Text, SegmentID: segmentID, Index: index})
}

// dispatchLocked hands one sentence to the dispatcher on a fresh goroutine.
// Caller holds s.mu.
func (s *Session) dispatchLocked(sent types.Sentence) {
	sender := s.senderLocked(sent.SegmentID)
	dispatcher := s.dispatcher
	s.translations.Add(1)
	go func() {
		defer s.translations.Done()
		dispatcher.TranslateSentence(s.runCtx, sent, sender.OnComplete)
	}()
}

// senderLocked returns the segment's ordered sender, creating it on first
// use. The delivery callback captures the recording and strategy of the run
// that created it, so results landing after a stop still route correctly.
func (s *Session) senderLocked(segmentID string) *translate.OrderedSender {
	if sender, ok := s.senders[segmentID]; ok {
		return sender
	}
	strategy := s.strategy
	rec := s.recording
	targetLang := s.targetLang
	sender := translate.NewOrderedSender(func(res types.TranslationResult) {
		s.deliverTranslation(strategy, rec, targetLang, res)
	})
	s.senders[segmentID] = sender
	return sender
}

// deliverTranslation emits one ordered translation result to the client and
// persists it. Runs under the ordered sender's lock, never under s.mu.
func (s *Session) deliverTranslation(strategy config.Strategy, rec *store.Recording, targetLang string, res types.TranslationResult) {
	if strategy == config.StrategyBuffered {
		s.blobMu.Lock()
		transcriptID := s.blobTranscripts[blobKey{segmentID: res.SegmentID, index: res.Index}]
		s.blobMu.Unlock()
		s.send(translationFrame(res, transcriptID))
	} else {
		s.send(translationV2Frame(res))
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.deps.Store.UpdateTranslation(ctx, rec.ID, targetLang, res); err != nil {
		s.log.Warn("persist translation",
			"recording_id", rec.ID,
			"segment_id", res.SegmentID,
			"index", res.Index,
			"error", err)
	}
}

// send writes one frame to the client. Send failures mean the peer is gone;
// the pipeline does not care.
func (s *Session) send(frame any) {
	if err := s.client.Send(frame); err != nil {
		s.log.Debug("send frame", "error", err)
	}
}
