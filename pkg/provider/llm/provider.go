// Package llm defines the Provider interface for translation backends.
//
// A provider wraps a chat-completion API (OpenAI directly, or Anthropic,
// Gemini, Ollama and friends via any-llm-go) and exposes a single operation:
// translate one sentence. Prompt construction is shared across
// implementations (see prompt.go) so switching backends never changes
// translation behavior.
//
// Implementations must be safe for concurrent use; the translation
// dispatcher runs one goroutine per in-flight sentence.
package llm

import "context"

// Request carries one sentence and its translation directive.
type Request struct {
	// Text is the source-language sentence to translate.
	Text string

	// SourceLang and TargetLang are language codes or names as configured
	// for the session (e.g., "en", "zh", "Spanish").
	SourceLang string
	TargetLang string

	// Context is the previous successfully translated source sentence. It is
	// woven into the prompt for continuity across sentence boundaries and is
	// never translated itself. May be empty.
	Context string
}

// Provider is the abstraction over any translation-capable LLM backend.
//
// Implementations must propagate context cancellation promptly: the
// dispatcher bounds every call with a deadline and treats overruns as a
// timeout result.
type Provider interface {
	// Translate renders req into a prompt, performs one completion, and
	// returns the bare translated text with surrounding whitespace trimmed.
	Translate(ctx context.Context, req Request) (string, error)
}
