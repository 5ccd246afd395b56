package differ

import (
	"errors"
	"reflect"
	"slices"
	"time"

	"github.com/defistate/defistate-oracle-go/engine"
	"github.com/defistate/defistate-oracle-go/protocols/uniswapv3/oracle"
	"github.com/prometheus/client_golang/prometheus"
)

var ErrStateHasErrors = errors.New("differ: state carries pool errors")

// StateDifferConfig holds the differ's dependencies.
type StateDifferConfig struct {
	Registry prometheus.Registerer
	Logger   Logger
}

// validate checks if the configuration is valid, ensuring required dependencies are present.
func (c *StateDifferConfig) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// StateDiffer computes StateDiffs between consecutive engine states.
type StateDiffer struct {
	metrics *Metrics
	logger  Logger
}

// NewStateDiffer constructs a new differ from a configuration, returning an error if the config is invalid.
func NewStateDiffer(cfg *StateDifferConfig) (*StateDiffer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &StateDiffer{
		metrics: NewMetrics(cfg.Registry),
		logger:  cfg.Logger,
	}, nil
}

// Diff returns the changes from old to new. Only pools whose host values or
// oracle changed are carried. Both states must be free of pool errors.
func (d *StateDiffer) Diff(old, new *engine.State) (*StateDiff, error) {
	totalTimer := prometheus.NewTimer(d.metrics.diffDuration.WithLabelValues())
	defer totalTimer.ObserveDuration()

	if old.HasErrors() || new.HasErrors() {
		return nil, ErrStateHasErrors
	}

	pools := make(map[engine.PoolID]PoolDiff)
	for id, newPool := range new.Pools {
		oldPool, existed := old.Pools[id]

		oracleDiff := oracle.Differ(oldPool.Oracle, newPool.Oracle)
		if existed && !oracleDiff.Touches() && samePool(oldPool, newPool) {
			continue
		}

		pools[id] = PoolDiff{
			Meta:              newPool.Meta,
			SyncedBlockNumber: newPool.SyncedBlockNumber,
			Time:              newPool.Time,
			Tick:              newPool.Tick,
			Liquidity:         newPool.Liquidity,
			Oracle:            oracleDiff,
		}
		d.metrics.slotsChanged.Add(float64(len(oracleDiff.Updates) + len(oracleDiff.Deletions)))
	}
	d.metrics.poolsChanged.Add(float64(len(pools)))

	var removed []engine.PoolID
	for id := range old.Pools {
		if _, ok := new.Pools[id]; !ok {
			removed = append(removed, id)
		}
	}
	slices.Sort(removed)

	if len(removed) > 0 {
		d.logger.Debug("pools removed from state", "count", len(removed), "toBlock", new.BlockNumber())
	}

	return &StateDiff{
		Timestamp: uint64(time.Now().UnixNano()),
		FromBlock: old.BlockNumber(),
		ToBlock:   new.Block,
		Pools:     pools,
		Removed:   removed,
	}, nil
}

// samePool reports whether everything but the oracle slots is unchanged.
func samePool(a, b engine.PoolState) bool {
	if a.Time != b.Time || a.Tick != b.Tick {
		return false
	}
	if a.Oracle.Index != b.Oracle.Index || a.Oracle.Cardinality != b.Oracle.Cardinality || a.Oracle.CardinalityNext != b.Oracle.CardinalityNext {
		return false
	}
	switch {
	case a.Liquidity == nil || b.Liquidity == nil:
		if a.Liquidity != b.Liquidity {
			return false
		}
	case !a.Liquidity.Eq(b.Liquidity):
		return false
	}
	if (a.SyncedBlockNumber == nil) != (b.SyncedBlockNumber == nil) ||
		(a.SyncedBlockNumber != nil && *a.SyncedBlockNumber != *b.SyncedBlockNumber) {
		return false
	}
	return reflect.DeepEqual(a.Meta, b.Meta)
}
