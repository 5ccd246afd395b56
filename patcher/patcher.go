package patcher

import (
	"errors"
	"fmt"

	"github.com/defistate/defistate-oracle-go/differ"
	"github.com/defistate/defistate-oracle-go/engine"
	"github.com/defistate/defistate-oracle-go/protocols/uniswapv3/oracle"
)

var ErrBlockMismatch = errors.New("patcher: diff does not start at the state's block")

// OraclePatcher applies an oracle diff to a previous snapshot. It must not
// mutate prev.
type OraclePatcher func(prev oracle.Snapshot, diff oracle.Diff) (oracle.Snapshot, error)

type StatePatcherConfig struct {
	// Oracle defaults to oracle.Patcher.
	Oracle OraclePatcher
}

// StatePatcher applies StateDiffs to engine states.
type StatePatcher struct {
	oracle OraclePatcher
}

// NewStatePatcher constructs a new patcher from a configuration.
func NewStatePatcher(cfg *StatePatcherConfig) *StatePatcher {
	p := &StatePatcher{oracle: oracle.Patcher}
	if cfg != nil && cfg.Oracle != nil {
		p.oracle = cfg.Oracle
	}
	return p
}

// Patch creates a new State by applying the diff to oldState. Pools the diff
// does not mention are shared with oldState.
func (p *StatePatcher) Patch(oldState *engine.State, diff *differ.StateDiff) (*engine.State, error) {
	if oldState.BlockNumber() != diff.FromBlock {
		return nil, fmt.Errorf("%w (state=%d, diff=%d)", ErrBlockMismatch, oldState.BlockNumber(), diff.FromBlock)
	}

	pools := make(map[engine.PoolID]engine.PoolState, len(oldState.Pools)+len(diff.Pools))
	for id, pool := range oldState.Pools {
		pools[id] = pool
	}
	for _, id := range diff.Removed {
		delete(pools, id)
	}

	for id, poolDiff := range diff.Pools {
		// a pool missing from oldState is patched from the empty snapshot
		prev := pools[id].Oracle
		snap, err := p.oracle(prev, poolDiff.Oracle)
		if err != nil {
			return nil, fmt.Errorf("patcher: failed to patch pool %s: %w", id, err)
		}

		pools[id] = engine.PoolState{
			Meta:              poolDiff.Meta,
			SyncedBlockNumber: poolDiff.SyncedBlockNumber,
			Time:              poolDiff.Time,
			Tick:              poolDiff.Tick,
			Liquidity:         poolDiff.Liquidity,
			Oracle:            snap,
			Error:             poolDiff.Error,
		}
	}

	return &engine.State{
		ChainID:   oldState.ChainID,
		Timestamp: diff.Timestamp,
		Block:     diff.ToBlock,
		Pools:     pools,
	}, nil
}
