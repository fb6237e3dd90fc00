package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/hearsay-live/hearsay/internal/config"
)

// Manager tracks the live sessions so the server can drain them on shutdown.
type Manager struct {
	deps Deps
	log  *slog.Logger

	mu       sync.Mutex
	sessions map[*Session]struct{}
}

// NewManager validates deps and returns a Manager that builds sessions from
// them.
func NewManager(deps Deps) (*Manager, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Manager{
		deps:     deps,
		log:      deps.Logger.With("component", "session_manager"),
		sessions: make(map[*Session]struct{}),
	}, nil
}

// Open creates the session for one authenticated connection and registers it.
func (m *Manager) Open(userID uuid.UUID, client Client) *Session {
	m.mu.Lock()
	s := newSession(m.deps, userID, client)
	m.sessions[s] = struct{}{}
	m.mu.Unlock()
	return s
}

// SetConfig swaps the defaults handed to sessions opened from now on. Running
// sessions keep the settings they resolved at start.
func (m *Manager) SetConfig(cfg *config.Config) {
	m.mu.Lock()
	m.deps.Config = cfg
	m.mu.Unlock()
}

// Release shuts the session down and drops it from the registry. Called when
// the connection's read loop exits.
func (m *Manager) Release(ctx context.Context, s *Session) {
	s.Shutdown(ctx)
	m.mu.Lock()
	delete(m.sessions, s)
	m.mu.Unlock()
}

// Len reports the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown drains every open session concurrently, bounded by ctx. Sessions
// still draining when ctx expires are abandoned; their stores finish their
// own timeouts.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	open := make([]*Session, 0, len(m.sessions))
	for s := range m.sessions {
		open = append(open, s)
	}
	m.sessions = make(map[*Session]struct{})
	m.mu.Unlock()

	if len(open) == 0 {
		return
	}
	m.log.Info("draining sessions", "count", len(open))

	var wg sync.WaitGroup
	for _, s := range open {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Shutdown(ctx)
		}(s)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.log.Info("all sessions drained")
	case <-ctx.Done():
		m.log.Warn("session drain cut short", "error", ctx.Err())
	}
}
