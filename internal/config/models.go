package config

// Strategy selects how a session feeds audio to its ASR backend.
type Strategy string

const (
	// StrategyStreaming forwards audio continuously to a streaming ASR and
	// consumes interim and final transcripts as they arrive.
	StrategyStreaming Strategy = "streaming"

	// StrategyBuffered accumulates audio locally and sends VAD-gated batches
	// to a batch transcriber, yielding final-only transcripts.
	StrategyBuffered Strategy = "buffered"
)

// modelStrategies pins specific models to a strategy. Models absent here fall
// back to their provider's default.
var modelStrategies = map[string]map[string]Strategy{
	"openai": {
		"whisper-1":              StrategyBuffered,
		"gpt-4o-transcribe":      StrategyBuffered,
		"gpt-4o-mini-transcribe": StrategyBuffered,
	},
}

// providerDefaults is the per-provider fallback strategy.
var providerDefaults = map[string]Strategy{
	"deepgram": StrategyStreaming,
	"whisper":  StrategyBuffered,
	"openai":   StrategyBuffered,
}

// StrategyFor returns the processing strategy for an ASR provider/model pair.
// This table is the sole source of truth for the streaming-vs-buffered
// choice; sessions must not branch on provider names themselves. ok is false
// when the provider is unknown.
func StrategyFor(provider, model string) (Strategy, bool) {
	if models, ok := modelStrategies[provider]; ok {
		if s, ok := models[model]; ok {
			return s, true
		}
	}
	s, ok := providerDefaults[provider]
	return s, ok
}
