// Package oracle implements a time-weighted oracle over a fixed-capacity ring
// of cumulative observations, in the manner of the Uniswap V3 Oracle library.
//
// The host writes one observation per timestamp with the tick and in-range
// liquidity that held since the previous write. Readers ask for the cumulants
// as of some number of seconds ago; values between two stored observations are
// linearly interpolated, and values after the latest one are extrapolated from
// the host's current tick and liquidity without mutating the log.
package oracle

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// MaxCardinality is the largest number of observations a State can retain.
const MaxCardinality = 65535

var (
	ErrUninitialized       = errors.New("oracle: not initialized")
	ErrAlreadyInitialized  = errors.New("oracle: already initialized")
	ErrOld                 = errors.New("OLD: target is older than the oldest observation")
	ErrCapacityExceeded    = errors.New("oracle: capacity exceeded")
	ErrLiquidityOutOfRange = errors.New("oracle: liquidity must be a non-nil uint128")

	maxUint128 = new(uint256.Int).Sub(new(uint256.Int).Lsh(one, 128), one)
)

// State is the oracle's ring buffer and its control indices.
//
// The zero value is an uninitialized oracle with the full MaxCardinality
// capacity. State is not safe for concurrent use; the owning host serializes
// access.
type State struct {
	// observations holds at least cardinality slots; anything beyond its length
	// is capacity that has not been realized yet.
	observations []Observation

	index           uint16
	cardinality     uint16
	cardinalityNext uint16

	// capacity bounds cardinalityNext. Zero means MaxCardinality.
	capacity uint16
}

// NewState returns an uninitialized State whose ring may never grow past
// capacity slots. A capacity of zero means MaxCardinality.
func NewState(capacity uint16) *State {
	return &State{capacity: capacity}
}

// Capacity is the largest cardinality this State accepts.
func (s *State) Capacity() uint16 {
	if s.capacity == 0 {
		return MaxCardinality
	}
	return s.capacity
}

// Index is the slot of the most recent observation.
func (s *State) Index() uint16 { return s.index }

// Cardinality is the number of populated, queryable slots.
func (s *State) Cardinality() uint16 { return s.cardinality }

// CardinalityNext is the cardinality the ring will adopt once the write
// position wraps past the current cardinality.
func (s *State) CardinalityNext() uint16 { return s.cardinalityNext }

// Initialized reports whether Initialize has been called.
func (s *State) Initialized() bool { return s.cardinality > 0 }

// ObservationAt returns slot i. Slots that were never written, including slots
// beyond the current cardinality, read as the zero Observation.
func (s *State) ObservationAt(i uint16) Observation {
	if int(i) >= len(s.observations) {
		return Observation{}
	}
	return s.observations[i]
}

// Initialize writes the first observation. tick and liquidity are accepted for
// symmetry with Write; the first observation always carries zero cumulants.
func (s *State) Initialize(time uint32, tick int32, liquidity *uint256.Int) error {
	if s.cardinality != 0 {
		return ErrAlreadyInitialized
	}
	if err := checkLiquidity(liquidity); err != nil {
		return err
	}

	s.observations = make([]Observation, 1)
	s.observations[0] = Observation{Timestamp: time, Initialized: true}
	s.index = 0
	s.cardinality = 1
	s.cardinalityNext = 1
	return nil
}

// Grow raises the capacity ceiling to next. It is a no-op when next does not
// exceed the current ceiling. The new slots only become part of the ring when
// a later Write wraps past the current cardinality.
func (s *State) Grow(next uint16) error {
	if s.cardinality == 0 {
		return ErrUninitialized
	}
	if next <= s.cardinalityNext {
		return nil
	}
	if next > s.Capacity() {
		return fmt.Errorf("%w: requested %d, maximum is %d", ErrCapacityExceeded, next, s.Capacity())
	}
	s.cardinalityNext = next
	return nil
}

// Write appends an observation at time, accumulating tick and liquidity over
// the seconds elapsed since the latest observation. It reports whether a slot
// was written: a second write within the same timestamp does nothing.
func (s *State) Write(time uint32, tick int32, liquidity *uint256.Int) (bool, error) {
	if s.cardinality == 0 {
		return false, ErrUninitialized
	}
	if err := checkLiquidity(liquidity); err != nil {
		return false, err
	}

	last := s.observations[s.index]
	if last.Timestamp == time {
		return false, nil
	}

	// growth is only realized once the write position reaches the end of the ring
	if s.cardinalityNext > s.cardinality && s.index == s.cardinality-1 {
		s.cardinality = s.cardinalityNext
		s.realize()
	}

	s.index = uint16((int(s.index) + 1) % int(s.cardinality))
	s.observations[s.index] = transform(last, time, tick, liquidity)
	return true, nil
}

// realize extends the backing slice to hold cardinality slots.
func (s *State) realize() {
	if n := int(s.cardinality); len(s.observations) < n {
		s.observations = append(s.observations, make([]Observation, n-len(s.observations))...)
	}
}

func checkLiquidity(liquidity *uint256.Int) error {
	if liquidity == nil || liquidity.Gt(maxUint128) {
		return ErrLiquidityOutOfRange
	}
	return nil
}
