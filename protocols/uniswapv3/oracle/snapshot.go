package oracle

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var ErrInvalidSnapshot = errors.New("oracle: invalid snapshot")

// Slot is one populated ring slot in its packed storage form.
type Slot struct {
	Index uint16      `json:"i"`
	Word  common.Hash `json:"word"`
}

// Observation decodes the slot's word.
func (s Slot) Observation() Observation {
	return ObservationFromWord(s.Word)
}

// Snapshot is the persisted layout of a State: the three control integers and
// every initialized slot, ordered by slot index.
type Snapshot struct {
	Index           uint16 `json:"index"`
	Cardinality     uint16 `json:"cardinality"`
	CardinalityNext uint16 `json:"cardinalityNext"`
	Slots           []Slot `json:"slots,omitempty"`
}

// Snapshot captures the state. Uninitialized slots are omitted.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		Index:           s.index,
		Cardinality:     s.cardinality,
		CardinalityNext: s.cardinalityNext,
	}
	for i := 0; i < int(s.cardinality); i++ {
		o := s.observations[i]
		if !o.Initialized {
			continue
		}
		snap.Slots = append(snap.Slots, Slot{Index: uint16(i), Word: o.Word()})
	}
	return snap
}

// Restore replaces the state with snap after checking it against the
// invariants of a live oracle. The capacity of the State is kept and must
// accommodate snap.CardinalityNext.
func (s *State) Restore(snap Snapshot) error {
	if err := snap.Validate(s.Capacity()); err != nil {
		return err
	}

	observations := make([]Observation, snap.Cardinality)
	for _, slot := range snap.Slots {
		observations[slot.Index] = slot.Observation()
	}

	s.observations = observations
	s.index = snap.Index
	s.cardinality = snap.Cardinality
	s.cardinalityNext = snap.CardinalityNext
	return nil
}

// Validate checks the snapshot's control integers and slots. capacity bounds
// CardinalityNext; zero means MaxCardinality.
func (snap Snapshot) Validate(capacity uint16) error {
	if capacity == 0 {
		capacity = MaxCardinality
	}

	if snap.Cardinality == 0 {
		if snap.Index != 0 || snap.CardinalityNext != 0 || len(snap.Slots) != 0 {
			return fmt.Errorf("%w: uninitialized snapshot carries data", ErrInvalidSnapshot)
		}
		return nil
	}

	if snap.Index >= snap.Cardinality {
		return fmt.Errorf("%w: index %d not below cardinality %d", ErrInvalidSnapshot, snap.Index, snap.Cardinality)
	}
	if snap.CardinalityNext < snap.Cardinality {
		return fmt.Errorf("%w: cardinalityNext %d below cardinality %d", ErrInvalidSnapshot, snap.CardinalityNext, snap.Cardinality)
	}
	if snap.CardinalityNext > capacity {
		return fmt.Errorf("%w: cardinalityNext %d, maximum is %d", ErrCapacityExceeded, snap.CardinalityNext, capacity)
	}

	var hasHead, hasFirst bool
	for i, slot := range snap.Slots {
		if slot.Index >= snap.Cardinality {
			return fmt.Errorf("%w: slot %d beyond cardinality %d", ErrInvalidSnapshot, slot.Index, snap.Cardinality)
		}
		if i > 0 && slot.Index <= snap.Slots[i-1].Index {
			return fmt.Errorf("%w: slots not strictly ordered at %d", ErrInvalidSnapshot, slot.Index)
		}
		if !slot.Observation().Initialized {
			return fmt.Errorf("%w: slot %d is not initialized", ErrInvalidSnapshot, slot.Index)
		}
		hasHead = hasHead || slot.Index == snap.Index
		hasFirst = hasFirst || slot.Index == 0
	}
	if !hasHead || !hasFirst {
		return fmt.Errorf("%w: slots 0 and %d must both be populated", ErrInvalidSnapshot, snap.Index)
	}
	return nil
}
