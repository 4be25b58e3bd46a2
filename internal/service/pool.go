package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ragmesh/ragmesh/internal/adapter/otel"
	"github.com/ragmesh/ragmesh/internal/config"
	"github.com/ragmesh/ragmesh/internal/domain"
	"github.com/ragmesh/ragmesh/internal/domain/provider"
	"github.com/ragmesh/ragmesh/internal/domain/scope"
	"github.com/ragmesh/ragmesh/internal/port/engine"
	"github.com/ragmesh/ragmesh/internal/port/messagequeue"
)

// poolEntry is one resident instance with its bookkeeping.
type poolEntry struct {
	instance   engine.Instance
	refs       int       // leases currently pinning the entry
	lastAccess time.Time // updated on every acquire
	doomed     bool      // evicted while pinned; torn down on last release
}

// PoolService keeps at most MaxInstances live engine instances, one per scope
// key. Construction is deduplicated: concurrent acquires of a missing key
// produce exactly one build, and everyone shares its result. Entries idle past
// the TTL are swept; entries over capacity are evicted least-recently-used,
// but never while a lease pins them.
type PoolService struct {
	factory engine.Factory
	cfg     config.Pool
	queue   messagequeue.Queue // may be nil
	metrics *otel.Metrics      // may be nil
	log     *slog.Logger

	mu      sync.Mutex
	entries map[scope.Key]*poolEntry
	group   singleflight.Group
	closed  bool
}

// NewPoolService creates an instance pool. queue and metrics may be nil.
func NewPoolService(factory engine.Factory, cfg config.Pool, queue messagequeue.Queue, metrics *otel.Metrics, log *slog.Logger) *PoolService {
	return &PoolService{
		factory: factory,
		cfg:     cfg,
		queue:   queue,
		metrics: metrics,
		log:     log,
		entries: make(map[scope.Key]*poolEntry),
	}
}

// Lease is a pinned reference to an instance. The instance cannot be evicted
// or expired while any lease on it is outstanding. Release exactly once.
type Lease struct {
	pool     *PoolService
	key      scope.Key
	instance engine.Instance
	once     sync.Once
}

// Instance returns the leased engine instance.
func (l *Lease) Instance() engine.Instance {
	return l.instance
}

// Release unpins the instance. If the entry was doomed while pinned, the last
// release tears it down.
func (l *Lease) Release(ctx context.Context) {
	l.once.Do(func() {
		l.pool.release(ctx, l.key)
	})
}

// Acquire returns a lease on the instance for key, constructing it if absent.
// providerCfg is the engine configuration used only when a build happens; the
// caller resolves it before acquiring. Returns ErrPoolExhausted when the pool
// is full of pinned entries.
func (p *PoolService) Acquire(ctx context.Context, key scope.Key, providerCfg providerConfigFn) (*Lease, error) {
	key.MustValid()
	start := time.Now()

	ctx, span := otel.StartAcquireSpan(ctx, key.TenantID, key.ProjectID)
	defer span.End()

	// Fast path: instance already resident.
	if lease := p.tryPin(key); lease != nil {
		p.observeAcquire(ctx, start)
		return lease, nil
	}

	// Slow path: build under singleflight so concurrent acquires for the same
	// key share one construction.
	_, err, _ := p.group.Do(key.String(), func() (any, error) {
		// Re-check under the group: another caller may have built it between
		// our fast path and entering the group.
		p.mu.Lock()
		_, exists := p.entries[key]
		closed := p.closed
		p.mu.Unlock()
		if closed {
			return nil, fmt.Errorf("pool is shut down: %w", domain.ErrPoolExhausted)
		}
		if exists {
			return nil, nil
		}

		if err := p.makeRoom(ctx); err != nil {
			return nil, err
		}

		cfg, err := providerCfg(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve provider config: %w", err)
		}
		inst, err := p.factory.Build(ctx, key, cfg)
		if err != nil {
			return nil, fmt.Errorf("build instance %s: %w", key, err)
		}

		// Builds of distinct keys run in parallel, so the pre-build room check
		// can be stale by the time the instance exists. Capacity is enforced
		// again here: evict to make room, or discard the fresh build when
		// every resident entry is pinned.
		p.mu.Lock()
		var victimKeys []scope.Key
		var victims []*poolEntry
		for len(p.entries) >= p.cfg.MaxInstances {
			vk, v := p.lruVictimLocked()
			if v == nil {
				p.mu.Unlock()
				p.closeInstance(ctx, inst, key)
				return nil, domain.ErrPoolExhausted
			}
			delete(p.entries, vk)
			victimKeys = append(victimKeys, vk)
			victims = append(victims, v)
		}
		p.entries[key] = &poolEntry{instance: inst, lastAccess: time.Now()}
		active := len(p.entries)
		p.mu.Unlock()

		for i, vk := range victimKeys {
			p.evictionTeardown(ctx, victims[i].instance, vk, active)
		}

		if p.metrics != nil {
			p.metrics.InstancesBuilt.Add(ctx, 1)
			p.metrics.InstancesActive.Add(ctx, 1)
		}
		p.publishPoolEvent(ctx, messagequeue.SubjectPoolCreated, key, active)
		p.log.Info("instance built", "scope", key.String(), "active", active)
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	lease := p.tryPin(key)
	if lease == nil {
		// Built by us or a peer, then swept before we could pin. Rare; the
		// caller retries.
		return nil, fmt.Errorf("instance evicted during acquire: %w", domain.ErrPoolExhausted)
	}
	p.observeAcquire(ctx, start)
	return lease, nil
}

// providerConfigFn lazily resolves the engine configuration for a build.
type providerConfigFn = func(ctx context.Context) (*provider.Config, error)

// tryPin pins key's entry and returns a lease, or nil when absent or doomed.
func (p *PoolService) tryPin(key scope.Key) *Lease {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[key]
	if !ok || e.doomed {
		return nil
	}
	e.refs++
	e.lastAccess = time.Now()
	return &Lease{pool: p, key: key, instance: e.instance}
}

// release unpins an entry and tears it down if it was doomed meanwhile.
func (p *PoolService) release(ctx context.Context, key scope.Key) {
	p.mu.Lock()
	e, ok := p.entries[key]
	if !ok {
		p.mu.Unlock()
		return
	}
	e.refs--
	teardown := e.doomed && e.refs == 0
	if teardown {
		delete(p.entries, key)
	}
	active := len(p.entries)
	p.mu.Unlock()

	if teardown {
		p.evictionTeardown(ctx, e.instance, key, active)
	}
}

// makeRoom evicts the least-recently-used unpinned entry when at capacity.
// All-pinned means the pool is genuinely exhausted. A best-effort pre-build
// check; the insert after the build enforces capacity authoritatively.
func (p *PoolService) makeRoom(ctx context.Context) error {
	p.mu.Lock()
	if len(p.entries) < p.cfg.MaxInstances {
		p.mu.Unlock()
		return nil
	}

	victimKey, victim := p.lruVictimLocked()
	if victim == nil {
		p.mu.Unlock()
		return domain.ErrPoolExhausted
	}
	delete(p.entries, victimKey)
	active := len(p.entries)
	p.mu.Unlock()

	p.evictionTeardown(ctx, victim.instance, victimKey, active)
	return nil
}

// lruVictimLocked picks the least-recently-used unpinned entry. Caller holds
// p.mu. Returns a nil entry when everything is pinned or doomed.
func (p *PoolService) lruVictimLocked() (scope.Key, *poolEntry) {
	var victimKey scope.Key
	var victim *poolEntry
	for k, e := range p.entries {
		if e.refs > 0 || e.doomed {
			continue
		}
		if victim == nil || e.lastAccess.Before(victim.lastAccess) {
			victimKey, victim = k, e
		}
	}
	return victimKey, victim
}

// evictionTeardown closes an evicted instance and records the eviction in
// metrics, events, and the log.
func (p *PoolService) evictionTeardown(ctx context.Context, inst engine.Instance, key scope.Key, active int) {
	p.closeInstance(ctx, inst, key)
	if p.metrics != nil {
		p.metrics.InstancesEvicted.Add(ctx, 1)
		p.metrics.InstancesActive.Add(ctx, -1)
	}
	p.publishPoolEvent(ctx, messagequeue.SubjectPoolEvicted, key, active)
	p.log.Info("instance evicted", "scope", key.String(), "active", active)
}

// Evict removes key's instance. A pinned entry is doomed instead: new
// acquires miss it, and the last lease release tears it down.
func (p *PoolService) Evict(ctx context.Context, key scope.Key) {
	p.mu.Lock()
	e, ok := p.entries[key]
	if !ok {
		p.mu.Unlock()
		return
	}
	if e.refs > 0 {
		e.doomed = true
		p.mu.Unlock()
		p.log.Info("instance doomed, teardown deferred", "scope", key.String(), "refs", e.refs)
		return
	}
	delete(p.entries, key)
	active := len(p.entries)
	p.mu.Unlock()

	p.evictionTeardown(ctx, e.instance, key, active)
}

// StartSweeper expires idle instances on an interval until ctx is cancelled.
func (p *PoolService) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(p.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.sweep(ctx)
			}
		}
	}()
}

// sweep removes unpinned entries idle past the TTL.
func (p *PoolService) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-p.cfg.TTL)

	p.mu.Lock()
	var expired []scope.Key
	var victims []*poolEntry
	for k, e := range p.entries {
		if e.refs == 0 && !e.doomed && e.lastAccess.Before(cutoff) {
			expired = append(expired, k)
			victims = append(victims, e)
			delete(p.entries, k)
		}
	}
	active := len(p.entries)
	p.mu.Unlock()

	for i, k := range expired {
		p.closeInstance(ctx, victims[i].instance, k)
		if p.metrics != nil {
			p.metrics.InstancesExpired.Add(ctx, 1)
			p.metrics.InstancesActive.Add(ctx, -1)
		}
		p.publishPoolEvent(ctx, messagequeue.SubjectPoolExpired, k, active)
		p.log.Info("instance expired", "scope", k.String())
	}
}

// Stats is a point-in-time pool summary.
type Stats struct {
	Active   int `json:"active"`
	Pinned   int `json:"pinned"`
	Capacity int `json:"capacity"`
}

// Stats returns current pool occupancy.
func (p *PoolService) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	pinned := 0
	for _, e := range p.entries {
		if e.refs > 0 {
			pinned++
		}
	}
	return Stats{Active: len(p.entries), Pinned: pinned, Capacity: p.cfg.MaxInstances}
}

// Shutdown closes every instance and refuses further acquires. Pinned entries
// are closed too: shutdown outranks leases.
func (p *PoolService) Shutdown(ctx context.Context) {
	p.mu.Lock()
	p.closed = true
	entries := p.entries
	p.entries = make(map[scope.Key]*poolEntry)
	p.mu.Unlock()

	for k, e := range entries {
		p.closeInstance(ctx, e.instance, k)
	}
	p.log.Info("pool shut down", "closed", len(entries))
}

func (p *PoolService) closeInstance(ctx context.Context, inst engine.Instance, key scope.Key) {
	if err := inst.Close(ctx); err != nil {
		p.log.Warn("instance close failed", "scope", key.String(), "error", err)
	}
}

func (p *PoolService) observeAcquire(ctx context.Context, start time.Time) {
	if p.metrics != nil {
		p.metrics.AcquireDuration.Record(ctx, time.Since(start).Seconds())
	}
}

func (p *PoolService) publishPoolEvent(ctx context.Context, subject string, key scope.Key, active int) {
	if p.queue == nil {
		return
	}
	data, err := json.Marshal(messagequeue.PoolEvent{
		TenantID:  key.TenantID,
		ProjectID: key.ProjectID,
		Active:    active,
		Capacity:  p.cfg.MaxInstances,
		At:        time.Now().UTC(),
	})
	if err != nil {
		return
	}
	if err := p.queue.Publish(ctx, subject, data); err != nil {
		p.log.Warn("failed to publish pool event", "subject", subject, "error", err)
	}
}
