package oracle

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	one = uint256.NewInt(1)

	// mask160 keeps the low 160 bits of a cumulant (2^160 - 1).
	mask160 = new(uint256.Int).Sub(new(uint256.Int).Lsh(one, 160), one)
	// mask56 keeps the low 56 bits of a tick cumulant when packing it into a word.
	mask56 = uint64(1)<<56 - 1
)

// Observation is a single slot of the oracle's ring buffer.
//
// TickCumulative behaves like a signed 56-bit integer and
// SecondsPerLiquidityCumulativeX128 like an unsigned 160-bit Q128.128 value;
// both wrap silently on overflow.
type Observation struct {
	Timestamp                         uint32
	TickCumulative                    int64
	SecondsPerLiquidityCumulativeX128 uint256.Int
	Initialized                       bool
}

// wrapInt56 sign-extends the low 56 bits of v, reducing it modulo 2^56 into the
// int56 range.
func wrapInt56(v int64) int64 {
	return v << 8 >> 8
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// transform returns the observation that follows last after the pool held tick
// and liquidity until timestamp. Zero liquidity is treated as one.
func transform(last Observation, timestamp uint32, tick int32, liquidity *uint256.Int) Observation {
	delta := timestamp - last.Timestamp

	next := Observation{
		Timestamp:      timestamp,
		TickCumulative: wrapInt56(last.TickCumulative + int64(tick)*int64(delta)),
		Initialized:    true,
	}

	divisor := liquidity
	if divisor.IsZero() {
		divisor = one
	}

	var step uint256.Int
	step.SetUint64(uint64(delta))
	step.Lsh(&step, 128)
	step.Div(&step, divisor)

	next.SecondsPerLiquidityCumulativeX128.Add(&last.SecondsPerLiquidityCumulativeX128, &step)
	next.SecondsPerLiquidityCumulativeX128.And(&next.SecondsPerLiquidityCumulativeX128, mask160)
	return next
}

// interpolate computes the cumulants at target, which lies strictly between
// before and after.
func interpolate(before, after Observation, target uint32) Observation {
	observationDelta := after.Timestamp - before.Timestamp
	targetDelta := target - before.Timestamp

	tickDelta := wrapInt56(after.TickCumulative - before.TickCumulative)
	perSecond := floorDiv(tickDelta, int64(observationDelta))

	out := Observation{
		Timestamp:      target,
		TickCumulative: wrapInt56(before.TickCumulative + perSecond*int64(targetDelta)),
		Initialized:    true,
	}

	// (after - before) < 2^160 and targetDelta < 2^32, so the product fits in 256 bits.
	var growth, scratch uint256.Int
	growth.Sub(&after.SecondsPerLiquidityCumulativeX128, &before.SecondsPerLiquidityCumulativeX128)
	growth.And(&growth, mask160)
	growth.Mul(&growth, scratch.SetUint64(uint64(targetDelta)))
	growth.Div(&growth, scratch.SetUint64(uint64(observationDelta)))

	out.SecondsPerLiquidityCumulativeX128.Add(&before.SecondsPerLiquidityCumulativeX128, &growth)
	out.SecondsPerLiquidityCumulativeX128.And(&out.SecondsPerLiquidityCumulativeX128, mask160)
	return out
}

// Word packs the observation into a single 32-byte storage word:
//
//	bits   0..31   timestamp
//	bits  32..87   tickCumulative (two's complement int56)
//	bits  88..247  secondsPerLiquidityCumulativeX128
//	bit   248      initialized
func (o Observation) Word() common.Hash {
	var word, field uint256.Int
	word.SetUint64(uint64(o.Timestamp))

	field.SetUint64(uint64(o.TickCumulative) & mask56)
	field.Lsh(&field, 32)
	word.Or(&word, &field)

	field.And(&o.SecondsPerLiquidityCumulativeX128, mask160)
	field.Lsh(&field, 88)
	word.Or(&word, &field)

	if o.Initialized {
		field.SetOne()
		field.Lsh(&field, 248)
		word.Or(&word, &field)
	}
	return common.Hash(word.Bytes32())
}

// ObservationFromWord is the inverse of Observation.Word.
func ObservationFromWord(h common.Hash) Observation {
	var word, field uint256.Int
	word.SetBytes32(h[:])

	o := Observation{Timestamp: uint32(word.Uint64())}

	field.Rsh(&word, 32)
	o.TickCumulative = wrapInt56(int64(field.Uint64()))

	field.Rsh(&word, 88)
	o.SecondsPerLiquidityCumulativeX128.And(&field, mask160)

	field.Rsh(&word, 248)
	o.Initialized = field.Uint64()&1 == 1
	return o
}
