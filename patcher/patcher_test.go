package patcher

import (
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/defistate/defistate-oracle-go/differ"
	"github.com/defistate/defistate-oracle-go/engine"
	"github.com/defistate/defistate-oracle-go/protocols/uniswapv3/oracle"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pool(t *testing.T, tick int32, writes ...uint32) engine.PoolState {
	t.Helper()
	s := &oracle.State{}
	require.NoError(t, s.Initialize(500, tick, uint256.NewInt(9)))
	require.NoError(t, s.Grow(4))
	for _, ts := range writes {
		_, err := s.Write(ts, tick, uint256.NewInt(9))
		require.NoError(t, err)
	}
	return engine.PoolState{
		Meta:      engine.PoolMeta{Name: "p"},
		Time:      600,
		Tick:      tick,
		Liquidity: uint256.NewInt(9),
		Oracle:    s.Snapshot(),
	}
}

func state(block int64, pools map[engine.PoolID]engine.PoolState) *engine.State {
	return &engine.State{ChainID: 1, Block: engine.BlockSummary{Number: big.NewInt(block)}, Pools: pools}
}

func TestStatePatcher_RoundTrip(t *testing.T) {
	d, err := differ.NewStateDiffer(&differ.StateDifferConfig{
		Registry: prometheus.NewRegistry(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	p := NewStatePatcher(nil)

	steps := []*engine.State{
		state(1, map[engine.PoolID]engine.PoolState{"a": pool(t, 1), "b": pool(t, -4)}),
		state(2, map[engine.PoolID]engine.PoolState{"a": pool(t, 1, 510, 520), "b": pool(t, -4)}),
		// ring wraps for a, b is removed and c is added
		state(3, map[engine.PoolID]engine.PoolState{"a": pool(t, 1, 510, 520, 530, 540, 550), "c": pool(t, 7, 505)}),
	}

	current := steps[0]
	for _, next := range steps[1:] {
		diff, err := d.Diff(current, next)
		require.NoError(t, err)

		patched, err := p.Patch(current, diff)
		require.NoError(t, err)
		assert.Equal(t, next.Block, patched.Block)
		assert.Equal(t, next.Pools, patched.Pools)
		current = patched
	}
}

func TestStatePatcher_BlockMismatch(t *testing.T) {
	p := NewStatePatcher(&StatePatcherConfig{})
	_, err := p.Patch(state(5, nil), &differ.StateDiff{FromBlock: 4})
	assert.ErrorIs(t, err, ErrBlockMismatch)
}

func TestStatePatcher_DoesNotMutateOldState(t *testing.T) {
	p := NewStatePatcher(nil)
	old := state(1, map[engine.PoolID]engine.PoolState{"a": pool(t, 1), "b": pool(t, 2)})
	before := pool(t, 1)

	_, err := p.Patch(old, &differ.StateDiff{
		FromBlock: 1,
		ToBlock:   engine.BlockSummary{Number: big.NewInt(2)},
		Pools: map[engine.PoolID]differ.PoolDiff{
			"a": {Time: 700, Tick: 1, Liquidity: uint256.NewInt(9), Oracle: oracle.Diff{Index: 0, Cardinality: 1, CardinalityNext: 4}},
		},
		Removed: []engine.PoolID{"b"},
	})
	require.NoError(t, err)
	assert.Equal(t, before, old.Pools["a"])
	assert.Contains(t, old.Pools, engine.PoolID("b"))
}

func TestStatePatcher_OracleError(t *testing.T) {
	boom := errors.New("boom")
	p := NewStatePatcher(&StatePatcherConfig{
		Oracle: func(oracle.Snapshot, oracle.Diff) (oracle.Snapshot, error) { return oracle.Snapshot{}, boom },
	})
	_, err := p.Patch(state(1, nil), &differ.StateDiff{
		FromBlock: 1,
		Pools:     map[engine.PoolID]differ.PoolDiff{"a": {}},
	})
	assert.ErrorIs(t, err, boom)
}
