// Package pool hosts an oracle the way a concentrated-liquidity pool does: it
// owns the current time, tick and in-range liquidity, and records an
// observation whenever those values are about to change.
package pool

import (
	"errors"
	"sync"

	"github.com/defistate/defistate-oracle-go/engine"
	"github.com/defistate/defistate-oracle-go/protocols/uniswapv3/oracle"
	"github.com/holiman/uint256"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type Config struct {
	ID   engine.PoolID
	Meta engine.PoolMeta
	// Capacity bounds the ring. Zero means oracle.MaxCardinality.
	Capacity uint16
	Metrics  *Metrics
	Logger   Logger
}

func (c *Config) validate() error {
	if c.ID == "" {
		return errors.New("config: ID cannot be empty")
	}
	if c.Metrics == nil {
		return errors.New("config: Metrics cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// Pool is safe for concurrent use.
type Pool struct {
	id       engine.PoolID
	meta     engine.PoolMeta
	capacity uint16

	mu        sync.RWMutex
	time      uint32
	tick      int32
	liquidity *uint256.Int
	synced    *uint64
	oracle    *oracle.State

	metrics *Metrics
	logger  Logger
}

func New(cfg Config) (*Pool, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	state := oracle.NewState(cfg.Capacity)
	return &Pool{
		id:        cfg.ID,
		meta:      cfg.Meta,
		capacity:  state.Capacity(),
		liquidity: new(uint256.Int),
		oracle:    state,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}, nil
}

func (p *Pool) ID() engine.PoolID { return p.id }

func (p *Pool) Meta() engine.PoolMeta { return p.meta }

// Initialize sets the host values and writes the first observation.
func (p *Pool) Initialize(time uint32, tick int32, liquidity *uint256.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.oracle.Initialize(time, tick, liquidity); err != nil {
		return err
	}
	p.time = time
	p.tick = tick
	p.liquidity = new(uint256.Int).Set(liquidity)
	p.metrics.cardinality.WithLabelValues(string(p.id)).Set(1)

	p.logger.Info("oracle initialized", "pool", p.id, "time", time, "tick", tick)
	return nil
}

// Update advances the host clock by advanceBy, records an observation of the
// tick and liquidity that held during that interval, and then adopts the new
// values.
func (p *Pool) Update(advanceBy uint32, tick int32, liquidity *uint256.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if liquidity == nil || liquidity.BitLen() > 128 {
		return oracle.ErrLiquidityOutOfRange
	}

	now := p.time + advanceBy
	written, err := p.oracle.Write(now, p.tick, p.liquidity)
	if err != nil {
		return err
	}

	label := string(p.id)
	if written {
		p.metrics.writes.WithLabelValues(label).Inc()
		p.metrics.cardinality.WithLabelValues(label).Set(float64(p.oracle.Cardinality()))
	} else {
		p.metrics.noopWrites.WithLabelValues(label).Inc()
	}

	p.time = now
	p.tick = tick
	p.liquidity = new(uint256.Int).Set(liquidity)
	return nil
}

// AdvanceTime moves the host clock without recording anything.
func (p *Pool) AdvanceTime(by uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.time += by
}

// IncreaseObservationCardinalityNext asks the ring to grow to next slots once
// its write position wraps.
func (p *Pool) IncreaseObservationCardinalityNext(next uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	old := p.oracle.CardinalityNext()
	if err := p.oracle.Grow(next); err != nil {
		return err
	}
	if updated := p.oracle.CardinalityNext(); updated != old {
		p.logger.Info("observation cardinality next increased", "pool", p.id, "old", old, "new", updated)
	}
	return nil
}

// Observe returns the cumulants as of each of secondsAgos relative to the
// host clock.
func (p *Pool) Observe(secondsAgos []uint32) ([]int64, []uint256.Int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	label := string(p.id)
	p.metrics.observes.WithLabelValues(label).Inc()

	tickCumulatives, secondsPerLiquidities, err := p.oracle.Observe(p.time, secondsAgos, p.tick, p.liquidity)
	if errors.Is(err, oracle.ErrOld) {
		p.metrics.oldFailures.WithLabelValues(label).Inc()
	}
	return tickCumulatives, secondsPerLiquidities, err
}

// Time, Tick and Liquidity return the host values.
func (p *Pool) Time() uint32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.time
}

func (p *Pool) Tick() int32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tick
}

func (p *Pool) Liquidity() *uint256.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return new(uint256.Int).Set(p.liquidity)
}

// State captures the pool for broadcasting or persistence.
func (p *Pool) State() engine.PoolState {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return engine.PoolState{
		Meta:              p.meta,
		SyncedBlockNumber: p.synced,
		Time:              p.time,
		Tick:              p.tick,
		Liquidity:         new(uint256.Int).Set(p.liquidity),
		Oracle:            p.oracle.Snapshot(),
	}
}

// Load replaces the pool's host values and oracle with state.
func (p *Pool) Load(state engine.PoolState) error {
	liquidity := state.Liquidity
	if liquidity == nil {
		liquidity = new(uint256.Int)
	}
	if liquidity.BitLen() > 128 {
		return oracle.ErrLiquidityOutOfRange
	}

	restored := oracle.NewState(p.capacity)
	if err := restored.Restore(state.Oracle); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.oracle = restored
	p.time = state.Time
	p.tick = state.Tick
	p.liquidity = new(uint256.Int).Set(liquidity)
	p.synced = state.SyncedBlockNumber
	p.metrics.cardinality.WithLabelValues(string(p.id)).Set(float64(restored.Cardinality()))

	p.logger.Debug("oracle loaded", "pool", p.id, "index", restored.Index(), "cardinality", restored.Cardinality(), "time", state.Time)
	return nil
}
