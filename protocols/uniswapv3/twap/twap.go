// Package twap derives time-weighted averages from an oracle's cumulants.
package twap

import (
	"errors"
	"fmt"

	"github.com/defistate/defistate-oracle-go/protocols/uniswapv3/tickmath"
	"github.com/holiman/uint256"
)

var (
	ErrZeroPeriod      = errors.New("twap: period must be greater than zero")
	ErrNoLiquidityData = errors.New("twap: seconds per liquidity did not advance over the period")
	ErrMeanTickRange   = errors.New("twap: mean tick out of range")

	// maxUint160 = 2^160 - 1
	maxUint160 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 160), uint256.NewInt(1))
)

// Observer is anything that can report cumulants as of some seconds ago
// relative to its own current time.
type Observer interface {
	Observe(secondsAgos []uint32) ([]int64, []uint256.Int, error)
}

// Result holds the averages over a period.
type Result struct {
	// ArithmeticMeanTick is rounded toward negative infinity.
	ArithmeticMeanTick int32
	// HarmonicMeanLiquidity is the harmonic mean of in-range liquidity.
	HarmonicMeanLiquidity *uint256.Int
}

// Consult returns the averages over the last secondsAgo seconds.
func Consult(observer Observer, secondsAgo uint32) (Result, error) {
	if secondsAgo == 0 {
		return Result{}, ErrZeroPeriod
	}

	tickCumulatives, secondsPerLiquidities, err := observer.Observe([]uint32{secondsAgo, 0})
	if err != nil {
		return Result{}, fmt.Errorf("twap: observe: %w", err)
	}
	if len(tickCumulatives) != 2 || len(secondsPerLiquidities) != 2 {
		return Result{}, fmt.Errorf("twap: observer returned %d/%d values, want 2", len(tickCumulatives), len(secondsPerLiquidities))
	}

	return fromCumulatives(
		tickCumulatives[0], tickCumulatives[1],
		&secondsPerLiquidities[0], &secondsPerLiquidities[1],
		secondsAgo,
	)
}

func fromCumulatives(tickStart, tickEnd int64, splStart, splEnd *uint256.Int, secondsAgo uint32) (Result, error) {
	period := int64(secondsAgo)

	// the cumulants are int56, so the difference must wrap the same way
	delta := (tickEnd - tickStart) << 8 >> 8
	mean := delta / period
	if delta < 0 && delta%period != 0 {
		mean--
	}
	if mean < int64(tickmath.MinTick) || mean > int64(tickmath.MaxTick) {
		return Result{}, fmt.Errorf("%w: %d", ErrMeanTickRange, mean)
	}

	var splDelta uint256.Int
	splDelta.Sub(splEnd, splStart)
	splDelta.And(&splDelta, maxUint160)
	if splDelta.IsZero() {
		return Result{}, ErrNoLiquidityData
	}

	// secondsAgo * (2^160 - 1) / (splDelta << 32)
	var numerator uint256.Int
	numerator.Mul(uint256.NewInt(uint64(secondsAgo)), maxUint160)
	splDelta.Lsh(&splDelta, 32)
	liquidity := new(uint256.Int).Div(&numerator, &splDelta)

	return Result{
		ArithmeticMeanTick:    int32(mean),
		HarmonicMeanLiquidity: liquidity,
	}, nil
}

// MeanSqrtPriceX96 returns the Q64.96 square root price at the result's mean
// tick.
func (r Result) MeanSqrtPriceX96() (*uint256.Int, error) {
	return tickmath.SqrtRatioAtTick(r.ArithmeticMeanTick)
}
