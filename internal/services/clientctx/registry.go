package clientctx

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultIdleTTL is how long an unused client context is kept.
const DefaultIdleTTL = 2 * time.Hour

// DefaultMaxContexts bounds the number of live client contexts.
const DefaultMaxContexts = 10000

// Registry maps client context IDs to their contexts.
type Registry struct {
	deps        *Dependencies
	idleTTL     time.Duration
	maxContexts int
	now         func() time.Time

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu       sync.Mutex
	contexts map[string]*Context
	closed   bool
}

// NewRegistry creates a registry that builds contexts from deps.
func NewRegistry(deps *Dependencies) (*Registry, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	idleTTL := deps.Session.ContextIdleTTL
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	maxContexts := deps.Session.MaxContexts
	if maxContexts <= 0 {
		maxContexts = DefaultMaxContexts
	}
	now := deps.NowFunc
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		deps:        deps,
		idleTTL:     idleTTL,
		maxContexts: maxContexts,
		now:         now,
		baseCtx:    ctx,
		baseCancel: cancel,
		contexts:   make(map[string]*Context),
	}, nil
}

// Resolve returns the context for id, creating it when unknown. An empty or
// malformed id gets a fresh one; created reports that case so the caller can
// hand the new id to the browser. When the registry is full the least recently
// seen context is evicted.
func (r *Registry) Resolve(id string) (cc *Context, created bool, err error) {
	if _, parseErr := uuid.Parse(id); parseErr != nil {
		id = ""
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, false, context.Canceled
	}
	if id != "" {
		if cc, ok := r.contexts[id]; ok {
			r.mu.Unlock()
			cc.Touch()
			return cc, false, nil
		}
	}

	fresh := id == ""
	if fresh {
		id = uuid.NewString()
	}
	cc, err = newContext(r.baseCtx, id, r.deps)
	if err != nil {
		r.mu.Unlock()
		return nil, false, err
	}
	var evicted *Context
	if len(r.contexts) >= r.maxContexts {
		evicted = r.oldestLocked()
		delete(r.contexts, evicted.ID)
	}
	r.contexts[id] = cc
	r.mu.Unlock()

	if evicted != nil {
		evicted.Close()
		log.Warn().Str("sid", evicted.ID).Int("max", r.maxContexts).Msg("Client context limit reached, evicted least recently seen")
	}
	log.Debug().Str("sid", id).Bool("fresh", fresh).Msg("Client context created")
	return cc, fresh, nil
}

func (r *Registry) oldestLocked() *Context {
	var oldest *Context
	var oldestSeen time.Time
	for _, cc := range r.contexts {
		seen := cc.LastSeen()
		if oldest == nil || seen.Before(oldestSeen) {
			oldest, oldestSeen = cc, seen
		}
	}
	return oldest
}

// Get returns the context for id without creating one.
func (r *Registry) Get(id string) (*Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cc, ok := r.contexts[id]
	return cc, ok
}

// Len returns the number of live contexts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.contexts)
}

// Sweep closes contexts idle for longer than the idle TTL and returns how many
// were removed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	var stale []*Context
	for id, cc := range r.contexts {
		if cc.LastSeen().Before(cutoff) {
			stale = append(stale, cc)
			delete(r.contexts, id)
		}
	}
	r.mu.Unlock()

	for _, cc := range stale {
		cc.Close()
	}
	if len(stale) > 0 {
		log.Info().Int("swept", len(stale)).Msg("Swept idle client contexts")
	}
	return len(stale)
}

// Run sweeps periodically until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	interval := r.idleTTL / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Close closes every context. Resolve fails afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	contexts := r.contexts
	r.contexts = make(map[string]*Context)
	r.mu.Unlock()

	for _, cc := range contexts {
		cc.Close()
	}
	r.baseCancel()
}
