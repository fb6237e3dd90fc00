package translate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hearsay-live/hearsay/internal/observe"
	"github.com/hearsay-live/hearsay/pkg/provider/llm"
	"github.com/hearsay-live/hearsay/pkg/types"
)

// defaultTranslateTimeout bounds a single LLM round trip. A sentence that
// misses it is delivered as an error placeholder so the index sequence stays
// gapless.
const defaultTranslateTimeout = 15 * time.Second

// Placeholder texts delivered in place of a translation. The client renders
// them verbatim.
const (
	timeoutText = "[translation timeout]"
	failedText  = "[translation failed]"
)

// Dispatcher runs sentence translations against an LLM provider, one call
// per sentence, throttled by a [TokenBucket]. It keeps the previous
// successfully translated source sentence and passes it along as context so
// the model can resolve pronouns and keep terminology stable.
//
// TranslateSentence is safe for concurrent use; the session runs one
// goroutine per sentence.
type Dispatcher struct {
	llm        llm.Provider
	bucket     *TokenBucket
	metrics    *observe.Metrics
	sourceLang string
	targetLang string
	timeout    time.Duration

	mu          sync.Mutex
	lastContext string
}

// DispatcherOption configures a [Dispatcher].
type DispatcherOption func(*Dispatcher)

// WithTimeout overrides the per-sentence LLM timeout. Tests use this to
// trigger the timeout path without waiting out the default.
func WithTimeout(d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) { dp.timeout = d }
}

// NewDispatcher returns a Dispatcher translating from sourceLang to
// targetLang through provider, throttled by bucket.
func NewDispatcher(provider llm.Provider, bucket *TokenBucket, sourceLang, targetLang string, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		llm:        provider,
		bucket:     bucket,
		metrics:    observe.DefaultMetrics(),
		sourceLang: sourceLang,
		targetLang: targetLang,
		timeout:    defaultTranslateTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// TranslateSentence translates one sentence and hands the result to
// onComplete. It always produces exactly one result: timeouts and provider
// errors yield a placeholder with Err set instead of dropping the index.
// The call blocks while waiting for a rate-limit token and for the LLM, so
// callers run it on its own goroutine. A panic in onComplete is recovered
// and logged; it must not take down sibling translations.
func (d *Dispatcher) TranslateSentence(ctx context.Context, sentence types.Sentence, onComplete func(types.TranslationResult)) {
	result := d.translate(ctx, sentence)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("translate: completion callback panicked",
				"panic", r,
				"segment_id", sentence.SegmentID,
				"sentence_index", sentence.Index)
		}
	}()
	onComplete(result)
}

func (d *Dispatcher) translate(ctx context.Context, sentence types.Sentence) types.TranslationResult {
	result := types.TranslationResult{
		SegmentID: sentence.SegmentID,
		Index:     sentence.Index,
		IsFinal:   true,
	}

	if err := d.bucket.Acquire(ctx); err != nil {
		result.Text = failedText
		result.Err = true
		return result
	}

	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	d.mu.Lock()
	last := d.lastContext
	d.mu.Unlock()

	start := time.Now()
	text, err := d.llm.Translate(cctx, llm.Request{
		Text:       sentence.Text,
		SourceLang: d.sourceLang,
		TargetLang: d.targetLang,
		Context:    last,
	})
	d.metrics.RecordTranslation(ctx, time.Since(start), err != nil)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			result.Text = timeoutText
		} else {
			result.Text = failedText
		}
		result.Err = true
		slog.Warn("translate: sentence translation failed",
			"err", err,
			"segment_id", sentence.SegmentID,
			"sentence_index", sentence.Index)
		return result
	}

	// Context moves forward only on success.
	d.mu.Lock()
	d.lastContext = sentence.Text
	d.mu.Unlock()

	result.Text = text
	return result
}
