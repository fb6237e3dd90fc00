package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hearsay-live/hearsay/pkg/provider/llm"
	"github.com/hearsay-live/hearsay/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. ASR and LLM clients are per-session, so factories are
// invoked with the session's resolved [ProviderEntry] rather than the raw
// server config. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	stt   map[string]func(ProviderEntry) (stt.Provider, error)
	batch map[string]func(ProviderEntry) (stt.BatchTranscriber, error)
	llm   map[string]func(ProviderEntry) (llm.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:   make(map[string]func(ProviderEntry) (stt.Provider, error)),
		batch: make(map[string]func(ProviderEntry) (stt.BatchTranscriber, error)),
		llm:   make(map[string]func(ProviderEntry) (llm.Provider, error)),
	}
}

// RegisterSTT registers a streaming ASR provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterBatchSTT registers a batch transcriber factory under name.
func (r *Registry) RegisterBatchSTT(name string, factory func(ProviderEntry) (stt.BatchTranscriber, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batch[name] = factory
}

// RegisterLLM registers a translation provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// CreateSTT instantiates a streaming ASR provider using the factory
// registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateBatchSTT instantiates a batch transcriber using the factory
// registered under entry.Name.
func (r *Registry) CreateBatchSTT(entry ProviderEntry) (stt.BatchTranscriber, error) {
	r.mu.RLock()
	factory, ok := r.batch[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt-batch/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateLLM instantiates a translation provider using the factory registered
// under entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
