// Package ethereum mirrors the oracles of live Uniswap V3 pools into host
// pools and publishes the result as engine states.
package ethereum

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/defistate/defistate-oracle-go/engine"
	"github.com/defistate/defistate-oracle-go/pool"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const DefaultPollInterval = 12 * time.Second

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// PoolReader reads pools at a pinned block. *Reader implements it.
type PoolReader interface {
	Head(ctx context.Context) (engine.BlockSummary, error)
	ReadPool(ctx context.Context, meta engine.PoolMeta, block engine.BlockSummary) (engine.PoolState, error)
}

// Publisher receives every synced state, typically the RPC broadcaster.
type Publisher interface {
	Publish(state *engine.State) error
}

type MirrorConfig struct {
	ChainID   uint64
	Reader    PoolReader
	Pools     []*pool.Pool
	Publisher Publisher
	Interval  time.Duration
	Registry  prometheus.Registerer
	Logger    Logger
}

func (c *MirrorConfig) validate() error {
	if c.Reader == nil {
		return errors.New("config: Reader cannot be nil")
	}
	if len(c.Pools) == 0 {
		return errors.New("config: at least one pool is required")
	}
	if c.Publisher == nil {
		return errors.New("config: Publisher cannot be nil")
	}
	if c.Interval < 0 {
		return errors.New("config: Interval cannot be negative")
	}
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// Mirror polls the chain head and, for every new block, reloads each host
// pool from the chain and publishes the combined state.
type Mirror struct {
	chainID   uint64
	reader    PoolReader
	pools     []*pool.Pool
	publisher Publisher
	interval  time.Duration
	metrics   *mirrorMetrics
	logger    Logger

	// mu serializes Sync.
	mu        sync.Mutex
	lastBlock uint64
	synced    bool
}

func NewMirror(cfg *MirrorConfig) (*Mirror, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = DefaultPollInterval
	}
	return &Mirror{
		chainID:   cfg.ChainID,
		reader:    cfg.Reader,
		pools:     cfg.Pools,
		publisher: cfg.Publisher,
		interval:  interval,
		metrics:   newMirrorMetrics(cfg.Registry),
		logger:    cfg.Logger,
	}, nil
}

// Run syncs immediately and then on every tick until ctx is done. Sync
// failures are logged and retried on the next tick.
func (m *Mirror) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if _, err := m.Sync(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Error("mirror sync failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sync reads every pool at the current head and publishes the result. It
// returns a nil state when the head has not moved since the last sync.
//
// A pool that fails to read keeps its previous values and carries the
// failure in its Error field; the other pools are still published.
func (m *Mirror) Sync(ctx context.Context) (*engine.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	block, err := m.reader.Head(ctx)
	if err != nil {
		m.metrics.syncs.WithLabelValues("error").Inc()
		return nil, err
	}
	number := uint64(0)
	if block.Number != nil {
		number = block.Number.Uint64()
	}
	if m.synced && number == m.lastBlock {
		m.metrics.syncs.WithLabelValues("skipped").Inc()
		m.logger.Debug("no new block", "block", number)
		return nil, nil
	}

	states := make([]engine.PoolState, len(m.pools))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range m.pools {
		g.Go(func() error {
			states[i] = m.syncPool(gctx, p, block)
			return nil
		})
	}
	// syncPool never fails the group; only cancellation ends it early.
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	state := &engine.State{
		ChainID:   m.chainID,
		Timestamp: uint64(time.Now().UnixNano()),
		Block:     block,
		Pools:     make(map[engine.PoolID]engine.PoolState, len(m.pools)),
	}
	for i, p := range m.pools {
		state.Pools[p.ID()] = states[i]
	}

	if err := m.publisher.Publish(state); err != nil {
		m.metrics.syncs.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("mirror: failed to publish block %d: %w", number, err)
	}

	m.lastBlock = number
	m.synced = true
	m.metrics.syncs.WithLabelValues("ok").Inc()
	m.metrics.lastBlock.Set(float64(number))
	m.metrics.syncDuration.Observe(time.Since(start).Seconds())
	m.logger.Info("block synced",
		"block", number,
		"pools", len(state.Pools),
		"has_errors", state.HasErrors(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return state, nil
}

func (m *Mirror) syncPool(ctx context.Context, p *pool.Pool, block engine.BlockSummary) engine.PoolState {
	fail := func(err error) engine.PoolState {
		m.metrics.readErrors.WithLabelValues(string(p.ID())).Inc()
		m.logger.Warn("pool sync failed", "pool", p.ID(), "error", err)
		stale := p.State()
		stale.Error = err.Error()
		return stale
	}

	next, err := m.reader.ReadPool(ctx, p.Meta(), block)
	if err != nil {
		return fail(err)
	}
	if err := p.Load(next); err != nil {
		return fail(err)
	}

	m.logger.Debug("pool synced",
		"pool", p.ID(),
		"tick", next.Tick,
		"index", next.Oracle.Index,
		"cardinality", next.Oracle.Cardinality,
	)
	return p.State()
}
