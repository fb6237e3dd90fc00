package ingress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hearsay-live/hearsay/internal/observe"
	"github.com/hearsay-live/hearsay/pkg/audio"
	"github.com/hearsay-live/hearsay/pkg/provider/stt"
	"github.com/hearsay-live/hearsay/pkg/types"
)

const (
	// rmsSilenceFloor is the PCM16 RMS level below which a frame is gated.
	// Full-scale speech sits in the thousands; 300 is near-silence.
	rmsSilenceFloor = 300.0

	// silentForwardEvery forwards one out of this many gated frames so the
	// upstream session keeps seeing traffic through silence.
	silentForwardEvery = 10

	// keepAliveInterval is the KeepAlive cadence while paused.
	keepAliveInterval = 5 * time.Second

	// silenceLimit auto-stops a stream with no speech frame for this long.
	silenceLimit = 5 * time.Minute

	// pauseLimit auto-stops a stream paused for this long.
	pauseLimit = 10 * time.Minute

	// watchdogTick is how often the silence and pause limits are checked.
	watchdogTick = 15 * time.Second
)

// StreamConfig configures a StreamProcessor.
type StreamConfig struct {
	// Provider is the streaming ASR backend. Required.
	Provider stt.Provider

	// ProviderName labels ASR latency metrics.
	ProviderName string

	// Codec is the wire format of incoming frames. Empty selects pcm16.
	Codec audio.Codec

	// Language is the recognition hint for the upstream session.
	Language string

	// Diarize requests speaker labels from the upstream session.
	Diarize bool

	// OnEvent receives every transcript event the upstream produces. Called
	// from the forwarding goroutine. Required.
	OnEvent func(types.TranscriptEvent)

	// OnAutoStop is invoked from its own goroutine when a watchdog fires,
	// with ErrLongSilence or ErrPausedTooLong. The callee is expected to
	// stop the session; calling Stop from the callback is safe. Optional.
	OnAutoStop func(error)

	// Logger for processor diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// StreamProcessor forwards client audio to a live streaming ASR session and
// relays its interim and final results.
//
// Frames below the RMS speech floor are gated to save upstream bandwidth,
// except that every Nth gated frame still goes through so the upstream does
// not time the session out. While paused, a keepalive loop pings the
// upstream instead. Two watchdogs bound degenerate sessions: five minutes
// without speech, or ten minutes paused.
type StreamProcessor struct {
	cfg     StreamConfig
	log     *slog.Logger
	metrics *observe.Metrics

	// Watchdog and keepalive cadence, overridable in tests.
	keepAliveEvery time.Duration
	silenceAfter   time.Duration
	pauseAfter     time.Duration
	tickEvery      time.Duration

	mu         sync.Mutex
	state      procState
	raw        *FrameBuffer
	dec        *StreamDecoder
	session    stt.SessionHandle
	skipped    int
	paused     bool
	pausedAt   time.Time
	lastSpeech time.Time
	pauseDone  chan struct{}
	cancel     context.CancelFunc

	wg sync.WaitGroup
}

var (
	_ Processor = (*StreamProcessor)(nil)
	_ Pauser    = (*StreamProcessor)(nil)
)

// NewStreamProcessor validates cfg and returns an idle processor.
func NewStreamProcessor(cfg StreamConfig) (*StreamProcessor, error) {
	if cfg.Provider == nil {
		return nil, errors.New("ingress: stream processor needs a provider")
	}
	if cfg.OnEvent == nil {
		return nil, errors.New("ingress: stream processor needs an event callback")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &StreamProcessor{
		cfg:            cfg,
		log:            log.With("component", "stream_processor"),
		metrics:        observe.DefaultMetrics(),
		keepAliveEvery: keepAliveInterval,
		silenceAfter:   silenceLimit,
		pauseAfter:     pauseLimit,
		tickEvery:      watchdogTick,
	}, nil
}

// Start dials the upstream ASR and transitions to active. ctx bounds the
// dial only; the running session is torn down by Stop.
func (p *StreamProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != stateIdle {
		return fmt.Errorf("ingress: stream processor is %s, not idle", p.state)
	}

	dec, err := NewStreamDecoder(p.cfg.Codec)
	if err != nil {
		return err
	}

	dialStart := time.Now()
	session, err := p.cfg.Provider.StartStream(ctx, stt.StreamConfig{
		SampleRate: audio.CanonicalRate,
		Channels:   1,
		Language:   p.cfg.Language,
		Diarize:    p.cfg.Diarize,
	})
	if err != nil {
		return fmt.Errorf("ingress: start stream: %w", err)
	}
	p.metrics.RecordASRLatency(ctx, p.cfg.ProviderName, time.Since(dialStart))

	runCtx, cancel := context.WithCancel(context.Background())
	p.session = session
	p.dec = dec
	p.raw = NewFrameBuffer()
	p.skipped = 0
	p.paused = false
	p.lastSpeech = time.Now()
	p.cancel = cancel
	p.state = stateActive

	p.wg.Add(2)
	go p.forwardResults(session)
	go p.watchdog(runCtx)

	p.log.Info("stream processor started", "provider", p.cfg.ProviderName, "language", p.cfg.Language)
	return nil
}

// ProcessAudio archives the frame, decodes it, and forwards it upstream
// unless the RMS gate holds it back. Frames arriving outside the active
// state, or while paused, are dropped.
func (p *StreamProcessor) ProcessAudio(frame []byte) error {
	p.mu.Lock()
	if p.state != stateActive {
		st := p.state
		p.mu.Unlock()
		p.log.Warn("audio frame ignored", "state", st.String())
		return nil
	}
	if p.paused {
		p.mu.Unlock()
		p.log.Debug("audio frame ignored while paused")
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
		p.log.Warn("frame decode failed, frame archived but not forwarded", "error", err)
		return nil
	}
	if len(pcm) == 0 {
		p.mu.Unlock()
		return nil
	}

	forward := true
	if audio.RMS(pcm) < rmsSilenceFloor {
		p.skipped++
		forward = p.skipped%silentForwardEvery == 0
	} else {
		p.skipped = 0
		p.lastSpeech = time.Now()
	}
	session := p.session
	p.mu.Unlock()

	if !forward {
		return nil
	}
	if err := session.SendAudio(pcm); err != nil {
		return fmt.Errorf("ingress: send audio: %w", err)
	}
	return nil
}

// Pause suspends forwarding and starts the keepalive loop.
func (p *StreamProcessor) Pause() error {
	p.mu.Lock()
	if p.state != stateActive {
		p.mu.Unlock()
		return ErrNotActive
	}
	if p.paused {
		p.mu.Unlock()
		return nil
	}
	p.paused = true
	p.pausedAt = time.Now()
	done := make(chan struct{})
	p.pauseDone = done
	session := p.session
	p.mu.Unlock()

	p.wg.Add(1)
	go p.keepAlive(session, done)
	p.log.Info("stream paused")
	return nil
}

// Resume ends the pause and restarts the silence clock.
func (p *StreamProcessor) Resume() error {
	p.mu.Lock()
	if p.state != stateActive {
		p.mu.Unlock()
		return ErrNotActive
	}
	if !p.paused {
		p.mu.Unlock()
		return nil
	}
	p.paused = false
	p.lastSpeech = time.Now()
	if p.pauseDone != nil {
		close(p.pauseDone)
		p.pauseDone = nil
	}
	p.mu.Unlock()
	p.log.Info("stream resumed")
	return nil
}

// Stop closes the upstream session, waits for trailing results to drain
// through OnEvent, and returns the archived audio.
func (p *StreamProcessor) Stop() ([]byte, []byte, error) {
	p.mu.Lock()
	if p.state != stateActive {
		st := p.state
		p.mu.Unlock()
		return nil, nil, fmt.Errorf("ingress: stop stream processor in state %s: %w", st, ErrNotActive)
	}
	p.state = stateStopping
	if p.pauseDone != nil {
		close(p.pauseDone)
		p.pauseDone = nil
	}
	session, raw, cancel := p.session, p.raw, p.cancel
	p.mu.Unlock()

	cancel()
	if err := session.Close(); err != nil {
		p.log.Warn("upstream close failed", "error", err)
	}
	p.wg.Wait()

	p.mu.Lock()
	p.state = stateIdle
	p.mu.Unlock()
	return raw.Header(), raw.FullPayload(), nil
}

// forwardResults relays upstream transcript events until the results channel
// closes on session teardown.
func (p *StreamProcessor) forwardResults(session stt.SessionHandle) {
	defer p.wg.Done()
	for ev := range session.Results() {
		p.cfg.OnEvent(ev)
	}
}

// watchdog fires OnAutoStop once when the silence or pause limit is hit.
func (p *StreamProcessor) watchdog(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.tickEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		p.mu.Lock()
		if p.state != stateActive {
			p.mu.Unlock()
			return
		}
		var reason error
		if p.paused {
			if time.Since(p.pausedAt) > p.pauseAfter {
				reason = ErrPausedTooLong
			}
		} else if time.Since(p.lastSpeech) > p.silenceAfter {
			reason = ErrLongSilence
		}
		p.mu.Unlock()

		if reason != nil {
			p.log.Warn("watchdog stopping session", "reason", reason)
			if p.cfg.OnAutoStop != nil {
				go p.cfg.OnAutoStop(reason)
			}
			return
		}
	}
}

// keepAlive pings the upstream every keepAliveEvery until the pause ends.
func (p *StreamProcessor) keepAlive(session stt.SessionHandle, done <-chan struct{}) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.keepAliveEvery)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := session.SendKeepAlive(); err != nil {
				p.log.Warn("keepalive failed", "error", err)
				return
			}
		}
	}
}
