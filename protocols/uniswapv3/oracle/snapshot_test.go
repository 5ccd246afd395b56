package oracle

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRestore(t *testing.T) {
	t.Run("uninitialized state", func(t *testing.T) {
		s := &State{}
		snap := s.Snapshot()
		assert.Equal(t, Snapshot{}, snap)

		restored := &State{}
		require.NoError(t, restored.Restore(snap))
		assert.False(t, restored.Initialized())
	})

	t.Run("round trip preserves observe results", func(t *testing.T) {
		o := fiveObservations(t, 5)
		snap := o.Snapshot()
		assert.Len(t, snap.Slots, 5)

		restored := &testOracle{State: &State{}, time: o.time, tick: o.tick, liquidity: o.liquidity}
		require.NoError(t, restored.Restore(snap))
		assert.Equal(t, snap, restored.Snapshot())

		restored.advanceTime(6)
		o.advanceTime(6)
		secondsAgos := []uint32{20, 17, 13, 10, 5, 1, 0}
		wantTicks, wantSeconds, err := o.observe(secondsAgos...)
		require.NoError(t, err)
		gotTicks, gotSeconds, err := restored.observe(secondsAgos...)
		require.NoError(t, err)
		assert.Equal(t, wantTicks, gotTicks)
		assert.Equal(t, wantSeconds, gotSeconds)
	})

	t.Run("pending growth is carried", func(t *testing.T) {
		o := initializedTestOracle(t, 10, 1, liq(3))
		require.NoError(t, o.Grow(6))
		o.update(t, 2, 1, liq(3))
		o.update(t, 2, 1, liq(3))
		snap := o.Snapshot()
		assert.Equal(t, uint16(2), snap.Index)
		assert.Equal(t, uint16(6), snap.Cardinality)
		assert.Equal(t, uint16(6), snap.CardinalityNext)
		assert.Len(t, snap.Slots, 3)

		restored := &State{}
		require.NoError(t, restored.Restore(snap))
		written, err := restored.Write(20, 1, liq(3))
		require.NoError(t, err)
		assert.True(t, written)
		assert.Equal(t, uint16(3), restored.Index())
	})

	t.Run("restore honors capacity", func(t *testing.T) {
		o := initializedTestOracle(t, 10, 1, liq(3))
		require.NoError(t, o.Grow(20))

		small := NewState(10)
		err := small.Restore(o.Snapshot())
		assert.ErrorIs(t, err, ErrCapacityExceeded)
		assert.False(t, small.Initialized())
	})

	t.Run("json uses packed words", func(t *testing.T) {
		o := initializedTestOracle(t, 10, 1, liq(3))
		data, err := json.Marshal(o.Snapshot())
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"index": 0,
			"cardinality": 1,
			"cardinalityNext": 1,
			"slots": [{"i": 0, "word": "0x010000000000000000000000000000000000000000000000000000000000000a"}]
		}`, string(data))

		var decoded Snapshot
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, o.Snapshot(), decoded)
	})
}

func TestSnapshotValidate(t *testing.T) {
	word := func(ts uint32) common.Hash {
		return Observation{Timestamp: ts, Initialized: true}.Word()
	}

	cases := []struct {
		name    string
		snap    Snapshot
		wantErr error
	}{
		{
			name: "valid",
			snap: Snapshot{Index: 1, Cardinality: 3, CardinalityNext: 4, Slots: []Slot{{0, word(1)}, {1, word(2)}}},
		},
		{
			name:    "uninitialized with data",
			snap:    Snapshot{Slots: []Slot{{0, word(1)}}},
			wantErr: ErrInvalidSnapshot,
		},
		{
			name:    "index beyond cardinality",
			snap:    Snapshot{Index: 3, Cardinality: 3, CardinalityNext: 3, Slots: []Slot{{0, word(1)}}},
			wantErr: ErrInvalidSnapshot,
		},
		{
			name:    "cardinality next below cardinality",
			snap:    Snapshot{Index: 0, Cardinality: 3, CardinalityNext: 2, Slots: []Slot{{0, word(1)}}},
			wantErr: ErrInvalidSnapshot,
		},
		{
			name:    "slot beyond cardinality",
			snap:    Snapshot{Index: 0, Cardinality: 2, CardinalityNext: 2, Slots: []Slot{{0, word(1)}, {2, word(2)}}},
			wantErr: ErrInvalidSnapshot,
		},
		{
			name:    "unordered slots",
			snap:    Snapshot{Index: 0, Cardinality: 3, CardinalityNext: 3, Slots: []Slot{{0, word(1)}, {2, word(3)}, {1, word(2)}}},
			wantErr: ErrInvalidSnapshot,
		},
		{
			name:    "uninitialized slot",
			snap:    Snapshot{Index: 0, Cardinality: 2, CardinalityNext: 2, Slots: []Slot{{0, word(1)}, {1, Observation{Timestamp: 2}.Word()}}},
			wantErr: ErrInvalidSnapshot,
		},
		{
			name:    "missing head",
			snap:    Snapshot{Index: 1, Cardinality: 2, CardinalityNext: 2, Slots: []Slot{{0, word(1)}}},
			wantErr: ErrInvalidSnapshot,
		},
		{
			name:    "missing slot zero",
			snap:    Snapshot{Index: 1, Cardinality: 2, CardinalityNext: 2, Slots: []Slot{{1, word(1)}}},
			wantErr: ErrInvalidSnapshot,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.snap.Validate(0)
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestDifferPatcher(t *testing.T) {
	t.Run("no change", func(t *testing.T) {
		o := fiveObservations(t, 5)
		snap := o.Snapshot()
		diff := Differ(snap, snap)
		assert.False(t, diff.Touches())

		patched, err := Patcher(snap, diff)
		require.NoError(t, err)
		assert.Equal(t, snap, patched)
	})

	t.Run("writes show up as updates", func(t *testing.T) {
		o := initializedTestOracle(t, 0, 1, liq(1))
		require.NoError(t, o.Grow(4))
		before := o.Snapshot()

		o.update(t, 5, 2, liq(1))
		o.update(t, 5, 3, liq(1))
		after := o.Snapshot()

		diff := Differ(before, after)
		assert.True(t, diff.Touches())
		assert.Equal(t, uint16(2), diff.Index)
		assert.Equal(t, uint16(4), diff.Cardinality)
		require.Len(t, diff.Updates, 2)
		assert.Equal(t, uint16(1), diff.Updates[0].Index)
		assert.Equal(t, uint16(2), diff.Updates[1].Index)
		assert.Empty(t, diff.Deletions)

		patched, err := Patcher(before, diff)
		require.NoError(t, err)
		assert.Equal(t, after, patched)
	})

	t.Run("wrap overwrites an existing slot", func(t *testing.T) {
		o := fiveObservations(t, 5)
		before := o.Snapshot()
		o.update(t, 2, 0, liq(3))
		after := o.Snapshot()

		diff := Differ(before, after)
		require.Len(t, diff.Updates, 1)
		assert.Equal(t, uint16(2), diff.Updates[0].Index)

		patched, err := Patcher(before, diff)
		require.NoError(t, err)
		assert.Equal(t, after, patched)
	})

	t.Run("deletions are applied", func(t *testing.T) {
		o := initializedTestOracle(t, 0, 1, liq(1))
		require.NoError(t, o.Grow(3))
		o.update(t, 5, 2, liq(1))
		o.update(t, 5, 3, liq(1))
		full := o.Snapshot()

		fresh := initializedTestOracle(t, 100, 1, liq(1))
		diff := Differ(full, fresh.Snapshot())
		assert.ElementsMatch(t, []uint16{1, 2}, diff.Deletions)

		patched, err := Patcher(full, diff)
		require.NoError(t, err)
		assert.Equal(t, fresh.Snapshot(), patched)
	})

	t.Run("patcher rejects an inconsistent result", func(t *testing.T) {
		o := initializedTestOracle(t, 0, 1, liq(1))
		snap := o.Snapshot()
		_, err := Patcher(snap, Diff{Index: 3, Cardinality: 1, CardinalityNext: 1})
		assert.ErrorIs(t, err, ErrInvalidSnapshot)
	})

	t.Run("patcher does not modify its input", func(t *testing.T) {
		o := fiveObservations(t, 5)
		before := o.Snapshot()
		copied := before
		copied.Slots = append([]Slot(nil), before.Slots...)

		o.update(t, 2, 0, liq(3))
		_, err := Patcher(before, Differ(before, o.Snapshot()))
		require.NoError(t, err)
		assert.Equal(t, copied, before)
	})
}
