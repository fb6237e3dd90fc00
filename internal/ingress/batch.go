package ingress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hearsay-live/hearsay/internal/observe"
	"github.com/hearsay-live/hearsay/pkg/audio"
	"github.com/hearsay-live/hearsay/pkg/provider/stt"
	"github.com/hearsay-live/hearsay/pkg/provider/vad"
	"github.com/hearsay-live/hearsay/pkg/types"
)

const (
	// minBufferDuration is the smallest effective accumulation window in
	// seconds; configured values below it are raised.
	minBufferDuration = 3.0

	// defaultSilenceThreshold is the flush gate used when the session did
	// not configure one, on the 0..100 wire scale.
	defaultSilenceThreshold = 50

	// gateTailBytes is how much trailing canonical PCM the silence gate
	// inspects per decision: one second.
	gateTailBytes = audio.CanonicalRate * 2

	// minSpeechSeconds drops flushed windows whose extracted speech is too
	// short to transcribe; batch models hallucinate on sub-word clips.
	minSpeechSeconds = 0.3

	// Speech-extraction hysteresis handed to the VAD engine.
	extractMinSpeechMs  = 250
	extractMinSilenceMs = 100

	// batchASRTimeout bounds one Transcribe round trip.
	batchASRTimeout = 30 * time.Second

	// stopDrainTimeout bounds the wait for in-flight flushes during Stop.
	stopDrainTimeout = 30 * time.Second
)

// BatchConfig configures a BatchProcessor.
type BatchConfig struct {
	// Transcriber performs one WAV-clip transcription per flush. Required.
	Transcriber stt.BatchTranscriber

	// VAD gates flushes and extracts speech from flushed windows. Required.
	VAD vad.Engine

	// Codec is the wire format of incoming frames. Empty selects pcm16.
	Codec audio.Codec

	// Language is the recognition hint forwarded to the transcriber.
	Language string

	// ProviderName labels ASR latency metrics.
	ProviderName string

	// BufferDuration is the accumulation window in seconds. Values below 3,
	// including zero, select the 3-second minimum.
	BufferDuration float64

	// SilenceThreshold is the flush gate on a 0..100 scale: once the window
	// holds enough frames, a trailing second scoring below threshold/100
	// flushes it early. Zero selects the default of 50.
	SilenceThreshold int

	// OnEvent receives every transcript event. Called from flush goroutines,
	// so it must be safe for concurrent use. Required.
	OnEvent func(types.TranscriptEvent)

	// OnError receives transcription failures. Optional.
	OnError func(error)

	// Logger for processor diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// BatchProcessor accumulates decoded audio into an elastic window and
// transcribes each window with a batch ASR backend.
//
// The window is measured in frames. From the effective buffer duration d,
// minChunks = max(4, ceil(2d)) and maxChunks = 2*minChunks. Below minChunks
// the processor only buffers; between the two bounds it flushes as soon as
// the trailing second of audio scores below the silence gate; at maxChunks
// it flushes unconditionally. Each flush advances the cursor immediately and
// transcribes in its own goroutine, so a slow backend never blocks ingest.
type BatchProcessor struct {
	cfg     BatchConfig
	log     *slog.Logger
	metrics *observe.Metrics

	minChunks     int
	maxChunks     int
	gateThreshold float64

	mu            sync.Mutex
	state         procState
	raw           *FrameBuffer
	dec           *StreamDecoder
	gate          vad.SessionHandle
	pcmFrames     [][]byte
	lastSentIndex int
	startedAt     time.Time

	flushes sync.WaitGroup
}

var _ Processor = (*BatchProcessor)(nil)

// NewBatchProcessor validates cfg and returns an idle processor.
func NewBatchProcessor(cfg BatchConfig) (*BatchProcessor, error) {
	if cfg.Transcriber == nil {
		return nil, errors.New("ingress: batch processor needs a transcriber")
	}
	if cfg.VAD == nil {
		return nil, errors.New("ingress: batch processor needs a vad engine")
	}
	if cfg.OnEvent == nil {
		return nil, errors.New("ingress: batch processor needs an event callback")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	window := cfg.BufferDuration
	if window < minBufferDuration {
		window = minBufferDuration
	}
	minChunks := int(math.Ceil(window * 2))
	if minChunks < 4 {
		minChunks = 4
	}
	threshold := cfg.SilenceThreshold
	if threshold <= 0 {
		threshold = defaultSilenceThreshold
	}

	return &BatchProcessor{
		cfg:           cfg,
		log:           log.With("component", "batch_processor"),
		metrics:       observe.DefaultMetrics(),
		minChunks:     minChunks,
		maxChunks:     2 * minChunks,
		gateThreshold: float64(threshold) / 100,
	}, nil
}

// Start creates the gate VAD session and transitions to active.
func (p *BatchProcessor) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("ingress: start batch processor: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != stateIdle {
		return fmt.Errorf("ingress: batch processor is %s, not idle", p.state)
	}

	gate, err := p.cfg.VAD.NewSession()
	if err != nil {
		return fmt.Errorf("ingress: vad session: %w", err)
	}
	gate.Reset()
	dec, err := NewStreamDecoder(p.cfg.Codec)
	if err != nil {
		gate.Close()
		return err
	}

	p.gate = gate
	p.dec = dec
	p.raw = NewFrameBuffer()
	p.pcmFrames = nil
	p.lastSentIndex = 0
	p.startedAt = time.Now()
	p.state = stateActive
	p.log.Info("batch processor started",
		"min_chunks", p.minChunks,
		"max_chunks", p.maxChunks,
		"gate_threshold", p.gateThreshold,
	)
	return nil
}

// ProcessAudio archives the frame, decodes it, and applies the window
// policy. Frames arriving outside the active state are dropped.
func (p *BatchProcessor) ProcessAudio(frame []byte) error {
	p.mu.Lock()
	if p.state != stateActive {
		st := p.state
		p.mu.Unlock()
		p.log.Warn("audio frame ignored", "state", st.String())
		return nil
	}
	if len(frame) == 0 {
		p.mu.Unlock()
		return nil
	}

	p.raw.Append(frame)
	p.metrics.RecordAudioFrame(context.Background(), string(p.dec.codec))

	pcm, err := p.dec.Decode(frame)
	if err != nil {
		p.mu.Unlock()
		p.log.Warn("frame decode failed, frame archived but not transcribed", "error", err)
		return nil
	}
	if len(pcm) > 0 {
		cp := make([]byte, len(pcm))
		copy(cp, pcm)
		p.pcmFrames = append(p.pcmFrames, cp)
	}

	pending := len(p.pcmFrames) - p.lastSentIndex
	switch {
	case pending >= p.maxChunks:
		p.flushLocked("window full")
	case pending >= p.minChunks:
		if p.tailIsSilentLocked() {
			p.flushLocked("silence")
		}
	}
	p.mu.Unlock()
	return nil
}

// Stop flushes the remaining window, waits for in-flight transcriptions up
// to the drain bound, and returns the archived audio.
func (p *BatchProcessor) Stop() ([]byte, []byte, error) {
	p.mu.Lock()
	if p.state != stateActive {
		st := p.state
		p.mu.Unlock()
		return nil, nil, fmt.Errorf("ingress: stop batch processor in state %s: %w", st, ErrNotActive)
	}
	p.state = stateStopping
	p.flushLocked("stop")
	raw, gate := p.raw, p.gate
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.flushes.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopDrainTimeout):
		p.log.Warn("stop drain timed out, transcriptions abandoned", "timeout", stopDrainTimeout)
	}

	if err := gate.Close(); err != nil {
		p.log.Warn("vad session close failed", "error", err)
	}

	p.mu.Lock()
	p.state = stateIdle
	p.mu.Unlock()
	return raw.Header(), raw.FullPayload(), nil
}

// tailIsSilentLocked scores the trailing second of pending audio against the
// gate threshold. Gate errors count as speech so audio is never dropped on a
// broken detector.
func (p *BatchProcessor) tailIsSilentLocked() bool {
	tail := p.pendingTailLocked(gateTailBytes)
	if len(tail) == 0 {
		return false
	}
	prob, err := p.gate.SpeechProbability(tail)
	if err != nil {
		p.log.Warn("vad gate failed", "error", err)
		return false
	}
	return prob < p.gateThreshold
}

// pendingTailLocked returns up to maxBytes of the newest pending audio.
func (p *BatchProcessor) pendingTailLocked(maxBytes int) []byte {
	total := 0
	start := len(p.pcmFrames)
	for start > p.lastSentIndex && total < maxBytes {
		start--
		total += len(p.pcmFrames[start])
	}
	tail := make([]byte, 0, total)
	for _, f := range p.pcmFrames[start:] {
		tail = append(tail, f...)
	}
	if len(tail) > maxBytes {
		tail = tail[len(tail)-maxBytes:]
	}
	return tail
}

// flushLocked snapshots the pending window, advances the cursor, and hands
// the window to a transcription goroutine. Caller holds p.mu.
func (p *BatchProcessor) flushLocked(reason string) {
	pending := p.pcmFrames[p.lastSentIndex:]
	size := 0
	for _, f := range pending {
		size += len(f)
	}
	if size == 0 {
		return
	}
	window := make([]byte, 0, size)
	for _, f := range pending {
		window = append(window, f...)
	}
	p.lastSentIndex = len(p.pcmFrames)

	elapsed := time.Since(p.startedAt).Seconds()
	p.log.Debug("flushing window", "reason", reason, "bytes", size, "elapsed", elapsed)

	p.flushes.Add(1)
	go p.transcribeWindow(window, elapsed)
}

// transcribeWindow extracts speech from one flushed window and emits a final
// transcript event for it. Runs in its own goroutine; the window slice is
// owned by this call.
func (p *BatchProcessor) transcribeWindow(window []byte, elapsed float64) {
	defer p.flushes.Done()

	speech, speechSeconds, err := p.cfg.VAD.ExtractSpeech(window, p.gateThreshold, extractMinSpeechMs, extractMinSilenceMs)
	if err != nil {
		p.log.Warn("speech extraction failed, transcribing full window", "error", err)
		speech = window
		speechSeconds = audio.Duration(window, audio.Canonical())
	}
	if speechSeconds <= minSpeechSeconds {
		p.log.Debug("window dropped, not enough speech", "speech_seconds", speechSeconds)
		return
	}

	wav := audio.EncodeWAV(speech, audio.CanonicalRate, 1)

	ctx, cancel := context.WithTimeout(context.Background(), batchASRTimeout)
	defer cancel()
	asrStart := time.Now()
	text, err := p.cfg.Transcriber.Transcribe(ctx, wav, p.cfg.Language)
	p.metrics.RecordASRLatency(ctx, p.cfg.ProviderName, time.Since(asrStart))
	if err != nil {
		p.log.Error("batch transcription failed", "error", err)
		if p.cfg.OnError != nil {
			p.cfg.OnError(err)
		}
		return
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if isHallucination(text) {
		p.log.Debug("hallucinated text dropped", "text", text)
		return
	}

	p.cfg.OnEvent(types.TranscriptEvent{
		Text:         text,
		IsFinal:      true,
		Start:        elapsed,
		End:          elapsed + speechSeconds,
		TranscriptID: uuid.NewString(),
	})
}

// terminalPunct is the sentence-terminal punctuation class shared with the
// segmentation stage.
const terminalPunct = ".!?。！？"

// hallucinatedPhrases are stock fillers batch models emit on silence or
// noise, matched case-insensitively with or without trailing punctuation.
var hallucinatedPhrases = map[string]struct{}{
	"thank you": {},
	"thanks":    {},
	"so":        {},
	"you":       {},
	"yeah":      {},
	"okay":      {},
	"ok":        {},
	"bye":       {},
	"谢谢":        {},
	"好的":        {},
	"嗯":         {},
}

// isHallucination reports whether transcribed text looks like an ASR
// artefact rather than speech: very short output, bare punctuation, or a
// known filler phrase.
func isHallucination(text string) bool {
	t := strings.TrimSpace(text)
	if utf8.RuneCountInString(t) <= 3 {
		return true
	}
	if strings.Trim(t, terminalPunct) == "" {
		return true
	}
	lower := strings.ToLower(t)
	if _, hit := hallucinatedPhrases[lower]; hit {
		return true
	}
	bare := strings.TrimSpace(strings.TrimRight(lower, terminalPunct))
	_, hit := hallucinatedPhrases[bare]
	return hit
}
