package oracle

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Observe returns the cumulants as of each secondsAgos[i] seconds before now.
// tick and liquidity are the host's current values, used when a target falls
// after the latest observation. Observe never modifies the State.
func (s *State) Observe(now uint32, secondsAgos []uint32, tick int32, liquidity *uint256.Int) ([]int64, []uint256.Int, error) {
	if s.cardinality == 0 {
		return nil, nil, ErrUninitialized
	}
	if err := checkLiquidity(liquidity); err != nil {
		return nil, nil, err
	}

	tickCumulatives := make([]int64, len(secondsAgos))
	secondsPerLiquidityCumulativeX128s := make([]uint256.Int, len(secondsAgos))
	for i, secondsAgo := range secondsAgos {
		o, err := s.observeSingle(now, secondsAgo, tick, liquidity)
		if err != nil {
			return nil, nil, fmt.Errorf("secondsAgos[%d]=%d: %w", i, secondsAgo, err)
		}
		tickCumulatives[i] = o.TickCumulative
		secondsPerLiquidityCumulativeX128s[i] = o.SecondsPerLiquidityCumulativeX128
	}
	return tickCumulatives, secondsPerLiquidityCumulativeX128s, nil
}

// ObserveSingle returns the cumulants as of secondsAgo seconds before now.
func (s *State) ObserveSingle(now, secondsAgo uint32, tick int32, liquidity *uint256.Int) (int64, uint256.Int, error) {
	if s.cardinality == 0 {
		return 0, uint256.Int{}, ErrUninitialized
	}
	if err := checkLiquidity(liquidity); err != nil {
		return 0, uint256.Int{}, err
	}

	o, err := s.observeSingle(now, secondsAgo, tick, liquidity)
	if err != nil {
		return 0, uint256.Int{}, err
	}
	return o.TickCumulative, o.SecondsPerLiquidityCumulativeX128, nil
}

func (s *State) observeSingle(now, secondsAgo uint32, tick int32, liquidity *uint256.Int) (Observation, error) {
	if secondsAgo == 0 {
		if last := s.observations[s.index]; last.Timestamp == now {
			return last, nil
		}
	}

	target := now - secondsAgo
	beforeOrAt, atOrAfter, err := s.surroundingObservations(now, target, tick, liquidity)
	if err != nil {
		return Observation{}, err
	}

	switch target {
	case beforeOrAt.Timestamp:
		return beforeOrAt, nil
	case atOrAfter.Timestamp:
		return atOrAfter, nil
	default:
		return interpolate(beforeOrAt, atOrAfter, target), nil
	}
}

// surroundingObservations returns the pair of observations bracketing target.
// When target is at or after the latest observation, the upper bound is a
// counterfactual observation built from the current tick and liquidity.
func (s *State) surroundingObservations(now, target uint32, tick int32, liquidity *uint256.Int) (beforeOrAt, atOrAfter Observation, err error) {
	head := s.observations[s.index]
	if Lte(now, head.Timestamp, target) {
		if head.Timestamp == target {
			return head, head, nil
		}
		return head, transform(head, target, tick, liquidity), nil
	}

	// the slot after the head is the oldest one, unless the ring has grown and
	// has not been written that far yet, in which case slot 0 is the oldest
	oldest := s.observations[(int(s.index)+1)%int(s.cardinality)]
	if !oldest.Initialized {
		oldest = s.observations[0]
	}
	if !Lte(now, oldest.Timestamp, target) {
		return Observation{}, Observation{}, ErrOld
	}

	return s.binarySearch(now, target)
}

// binarySearch finds the tightest pair of observations with
// beforeOrAt <= target <= atOrAfter. The caller guarantees that target lies
// within [oldest, newest].
func (s *State) binarySearch(now, target uint32) (beforeOrAt, atOrAfter Observation, err error) {
	cardinality := int(s.cardinality)

	// l and r walk the ring unrolled from the oldest slot to the newest.
	l := (int(s.index) + 1) % cardinality
	r := l + cardinality - 1

	for l <= r {
		i := (l + r) / 2

		beforeOrAt = s.observations[i%cardinality]
		if !beforeOrAt.Initialized {
			// grown but never written; real observations are further ahead
			l = i + 1
			continue
		}

		atOrAfter = s.observations[(i+1)%cardinality]

		targetAtOrAfter := Lte(now, beforeOrAt.Timestamp, target)
		if targetAtOrAfter && Lte(now, target, atOrAfter.Timestamp) {
			return beforeOrAt, atOrAfter, nil
		}

		if !targetAtOrAfter {
			r = i - 1
		} else {
			l = i + 1
		}
	}

	return Observation{}, Observation{}, ErrOld
}
