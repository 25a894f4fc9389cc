package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ToughForge/EspoMCP/internal/store"
)

const (
	DefaultIdleTimeout   = 30 * time.Minute
	DefaultSweepInterval = 5 * time.Minute
)

// Config controls idle eviction.
type Config struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	return c
}

// Option configures a Manager or CredentialCache.
type Option func(*options)

type options struct {
	now func() time.Time
	log *zap.SugaredLogger
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, log: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Manager is the session table.
type Manager struct {
	sessions store.Store[*Session]
	builder  Builder
	cfg      Config
	now      func() time.Time
	log      *zap.SugaredLogger
}

// NewManager creates a manager storing sessions in table. A nil table
// means an in-process store.Sharded.
func NewManager(builder Builder, table store.Store[*Session], cfg Config, opts ...Option) *Manager {
	o := buildOptions(opts)
	if table == nil {
		table = store.NewSharded[*Session]()
	}
	return &Manager{
		sessions: table,
		builder:  builder,
		cfg:      cfg.withDefaults(),
		now:      o.now,
		log:      o.log,
	}
}

// Initialize creates a session and builds its toolset synchronously.
// The session is stored only once active.
func (m *Manager) Initialize(ctx context.Context, apiKey string) (*Session, error) {
	s := newSession(uuid.NewString(), m.now())
	s.setState(StateInitializing)

	ts, err := m.builder.Build(ctx, apiKey)
	if err != nil {
		s.setState(StateTerminated)
		return nil, fmt.Errorf("initialize session: %w", err)
	}
	s.activate(ts)
	m.sessions.Put(s.ID, s)

	m.log.Infow("session initialized", "session", s.ID, "operations", len(ts.Operations))
	return s, nil
}

// Get returns an active session and records activity on it.
func (m *Manager) Get(id string) (*Session, error) {
	s, ok := m.sessions.Get(id)
	if !ok || s.State() != StateActive {
		return nil, ErrNotFound
	}
	s.Touch(m.now())
	if s.State() != StateActive {
		return nil, ErrNotFound
	}
	return s, nil
}

// Terminate removes a session and closes its push streams.
func (m *Manager) Terminate(id string) error {
	s, ok := m.sessions.Delete(id)
	if !ok {
		return ErrNotFound
	}
	s.terminate()
	m.log.Infow("session terminated", "session", id)
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	return m.sessions.Len()
}

// Sweep evicts sessions idle longer than the timeout and returns how
// many were removed.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.cfg.IdleTimeout)
	removed := 0
	m.sessions.Range(func(id string, s *Session) bool {
		if !s.LastActivity().Before(cutoff) {
			return true
		}
		if evicted, ok := m.sessions.DeleteIf(id, func(s *Session) bool { return s.expire(cutoff) }); ok {
			evicted.terminate()
			removed++
		}
		return true
	})
	if removed > 0 {
		m.log.Infow("idle sessions evicted", "count", removed, "remaining", m.sessions.Len())
	}
	return removed
}

// Run sweeps on every interval until ctx ends.
func (m *Manager) Run(ctx context.Context) {
	runSweeper(ctx, m.cfg.SweepInterval, m.Sweep)
}

func runSweeper(ctx context.Context, interval time.Duration, sweep func() int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
