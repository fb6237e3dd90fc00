// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the translation pipeline sends
// correct Requests and to feed controlled translations without a live LLM
// backend. All fields are safe to set before calling any method; mutating
// them during a concurrent call is the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{Text: "你好世界。"}
//	out, err := p.Translate(ctx, req)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/hearsay-live/hearsay/pkg/provider/llm"
)

// TranslateCall records a single invocation of Translate.
type TranslateCall struct {
	// Ctx is the context passed to Translate.
	Ctx context.Context
	// Req is the Request passed to Translate.
	Req llm.Request
}

// Provider is a mock implementation of llm.Provider.
// Zero values for response fields cause Translate to return "" and nil error.
// Set TranslateErr to inject errors.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Text is returned by every Translate call when Texts is empty.
	Text string

	// Texts, if non-empty, is consumed one entry per Translate call. Once
	// exhausted, Translate falls back to Text.
	Texts []string

	// TranslateErr, if non-nil, is returned as the error from Translate.
	TranslateErr error

	// Delay, if positive, makes Translate sleep before returning. The sleep
	// honors ctx cancellation, returning ctx.Err() early.
	Delay time.Duration

	// TranslateFn, if set, overrides all other response fields: Translate
	// records the call and delegates to it. Useful for per-call behavior
	// in concurrency tests.
	TranslateFn func(ctx context.Context, req llm.Request) (string, error)

	// --- Call records (read after test) ---

	// TranslateCalls records every invocation of Translate in order.
	TranslateCalls []TranslateCall
}

// Translate records the call and returns the configured translation.
func (p *Provider) Translate(ctx context.Context, req llm.Request) (string, error) {
	p.mu.Lock()
	p.TranslateCalls = append(p.TranslateCalls, TranslateCall{Ctx: ctx, Req: req})
	fn := p.TranslateFn
	text := p.Text
	if len(p.Texts) > 0 {
		text = p.Texts[0]
		p.Texts = p.Texts[1:]
	}
	err := p.TranslateErr
	delay := p.Delay
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

// TranslateCallCount returns the number of recorded Translate calls. Thread-safe.
func (p *Provider) TranslateCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranslateCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranslateCalls = nil
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
