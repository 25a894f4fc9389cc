package session

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ToughForge/EspoMCP/internal/store"
)

// Digest returns the hex blake3 digest of a credential. Raw keys are
// never used as table keys or logged.
func Digest(apiKey string) string {
	sum := blake3.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

// CredentialEntry is a toolset cached for one credential.
type CredentialEntry struct {
	Key     string
	Toolset *Toolset

	mu       sync.Mutex
	lastUsed time.Time
}

func (e *CredentialEntry) touch(now time.Time) {
	e.mu.Lock()
	if now.After(e.lastUsed) {
		e.lastUsed = now
	}
	e.mu.Unlock()
}

// LastUsed returns the time of the last request with this credential.
func (e *CredentialEntry) LastUsed() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastUsed
}

// CredentialCache serves the stateless deployment: every request
// carries its credential and toolsets are shared per credential.
type CredentialCache struct {
	entries store.Store[*CredentialEntry]
	builder Builder
	cfg     Config
	now     func() time.Time
	log     *zap.SugaredLogger
	group   singleflight.Group
}

// NewCredentialCache creates a cache. A nil table means an in-process
// store.Sharded.
func NewCredentialCache(builder Builder, table store.Store[*CredentialEntry], cfg Config, opts ...Option) *CredentialCache {
	o := buildOptions(opts)
	if table == nil {
		table = store.NewSharded[*CredentialEntry]()
	}
	return &CredentialCache{
		entries: table,
		builder: builder,
		cfg:     cfg.withDefaults(),
		now:     o.now,
		log:     o.log,
	}
}

// Acquire returns the cached toolset for apiKey, building it on first
// use. Concurrent first uses of one credential share a single build.
func (c *CredentialCache) Acquire(ctx context.Context, apiKey string) (*CredentialEntry, error) {
	key := Digest(apiKey)
	if e, ok := c.entries.Get(key); ok {
		e.touch(c.now())
		return e, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if e, ok := c.entries.Get(key); ok {
			return e, nil
		}
		ts, err := c.builder.Build(ctx, apiKey)
		if err != nil {
			return nil, err
		}
		e := &CredentialEntry{Key: key, Toolset: ts, lastUsed: c.now()}
		c.entries.Put(key, e)
		c.log.Infow("credential toolset cached", "credential", key[:12])
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("acquire toolset: %w", err)
	}
	e := v.(*CredentialEntry)
	e.touch(c.now())
	return e, nil
}

// Len returns the number of cached credentials.
func (c *CredentialCache) Len() int {
	return c.entries.Len()
}

// Sweep evicts entries unused for longer than the idle timeout.
func (c *CredentialCache) Sweep() int {
	cutoff := c.now().Add(-c.cfg.IdleTimeout)
	idle := func(e *CredentialEntry) bool { return e.LastUsed().Before(cutoff) }
	removed := 0
	c.entries.Range(func(key string, e *CredentialEntry) bool {
		if !idle(e) {
			return true
		}
		if _, ok := c.entries.DeleteIf(key, idle); ok {
			removed++
		}
		return true
	})
	if removed > 0 {
		c.log.Infow("idle credentials evicted", "count", removed, "remaining", c.entries.Len())
	}
	return removed
}

// Run sweeps on every interval until ctx ends.
func (c *CredentialCache) Run(ctx context.Context) {
	runSweeper(ctx, c.cfg.SweepInterval, c.Sweep)
}
