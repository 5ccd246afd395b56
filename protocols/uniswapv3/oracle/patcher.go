package oracle

import (
	"fmt"
	"sort"
)

// Patcher applies diff to prev and returns the resulting Snapshot. prev is not
// modified. The result is validated against MaxCardinality.
func Patcher(prev Snapshot, diff Diff) (Snapshot, error) {
	slots := make(map[uint16]Slot, len(prev.Slots)+len(diff.Updates))
	for _, slot := range prev.Slots {
		slots[slot.Index] = slot
	}
	for _, index := range diff.Deletions {
		delete(slots, index)
	}
	for _, slot := range diff.Updates {
		slots[slot.Index] = slot
	}

	next := Snapshot{
		Index:           diff.Index,
		Cardinality:     diff.Cardinality,
		CardinalityNext: diff.CardinalityNext,
	}
	if len(slots) > 0 {
		next.Slots = make([]Slot, 0, len(slots))
		for _, slot := range slots {
			next.Slots = append(next.Slots, slot)
		}
		sort.Slice(next.Slots, func(i, j int) bool {
			return next.Slots[i].Index < next.Slots[j].Index
		})
	}

	if err := next.Validate(MaxCardinality); err != nil {
		return Snapshot{}, fmt.Errorf("patch: %w", err)
	}
	return next, nil
}
