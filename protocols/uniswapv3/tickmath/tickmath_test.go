package tickmath

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodePriceSqrt returns sqrt(reserve1/reserve0) * 2^96.
func encodePriceSqrt(reserve1, reserve0 *big.Int) *uint256.Int {
	num := new(big.Int).Lsh(reserve1, 192)
	ratio := new(big.Int).Div(num, reserve0)
	return uint256.MustFromBig(new(big.Int).Sqrt(ratio))
}

func pow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

func TestSqrtRatioAtTick(t *testing.T) {
	t.Run("throws for too low", func(t *testing.T) {
		_, err := SqrtRatioAtTick(MinTick - 1)
		assert.ErrorIs(t, err, ErrTickOutOfBounds)
	})

	t.Run("throws for too high", func(t *testing.T) {
		_, err := SqrtRatioAtTick(MaxTick + 1)
		assert.ErrorIs(t, err, ErrTickOutOfBounds)
	})

	known := []struct {
		tick int32
		want string
	}{
		{MinTick, "4295128739"},
		{-100000, "533968626430936354154228408"},
		{-10000, "48055510970269007215549348797"},
		{-50, "79030349367926598376800521322"},
		{-1, "79224201403219477170569942574"},
		{0, "79228162514264337593543950336"},
		{1, "79232123823359799118286999568"},
		{50, "79426470787362580746886972461"},
		{10000, "130621891405341611593710811006"},
		{100000, "11755562826496067164730007768450"},
		{MaxTick, "1461446703485210103287273052203988822378723970342"},
	}
	for _, tc := range known {
		ratio, err := SqrtRatioAtTick(tc.tick)
		require.NoError(t, err)
		assert.Equal(t, tc.want, ratio.Dec(), "tick %d", tc.tick)
	}
}

func TestTickAtSqrtRatio(t *testing.T) {
	t.Run("throws for too low", func(t *testing.T) {
		_, err := TickAtSqrtRatio(new(uint256.Int).Sub(MinSqrtRatio, one))
		assert.ErrorIs(t, err, ErrSqrtPriceOutOfBounds)
	})

	t.Run("throws for too high", func(t *testing.T) {
		_, err := TickAtSqrtRatio(MaxSqrtRatio)
		assert.ErrorIs(t, err, ErrSqrtPriceOutOfBounds)
	})

	t.Run("ratio of min tick", func(t *testing.T) {
		tick, err := TickAtSqrtRatio(MinSqrtRatio)
		require.NoError(t, err)
		assert.Equal(t, MinTick, tick)
	})

	t.Run("ratio closest to max tick", func(t *testing.T) {
		tick, err := TickAtSqrtRatio(new(uint256.Int).Sub(MaxSqrtRatio, one))
		require.NoError(t, err)
		assert.Equal(t, MaxTick-1, tick)
	})

	ratios := []struct {
		name  string
		ratio *uint256.Int
	}{
		{"1e12:1", encodePriceSqrt(pow10(12), big.NewInt(1))},
		{"1e6:1", encodePriceSqrt(pow10(6), big.NewInt(1))},
		{"1:64", encodePriceSqrt(big.NewInt(1), big.NewInt(64))},
		{"1:2", encodePriceSqrt(big.NewInt(1), big.NewInt(2))},
		{"1:1", encodePriceSqrt(big.NewInt(1), big.NewInt(1))},
		{"8:1", encodePriceSqrt(big.NewInt(8), big.NewInt(1))},
		{"1:1e6", encodePriceSqrt(big.NewInt(1), pow10(6))},
		{"1:1e12", encodePriceSqrt(big.NewInt(1), pow10(12))},
	}
	for _, tc := range ratios {
		t.Run(tc.name, func(t *testing.T) {
			tick, err := TickAtSqrtRatio(tc.ratio)
			require.NoError(t, err)
			atTick, err := SqrtRatioAtTick(tick)
			require.NoError(t, err)
			atNext, err := SqrtRatioAtTick(tick + 1)
			require.NoError(t, err)

			assert.False(t, tc.ratio.Lt(atTick))
			assert.True(t, tc.ratio.Lt(atNext))
		})
	}
}

func TestInverse(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		tick := MinTick + int32(rng.Int63n(int64(MaxTick)-int64(MinTick)))
		ratio, err := SqrtRatioAtTick(tick)
		require.NoError(t, err)

		got, err := TickAtSqrtRatio(ratio)
		require.NoError(t, err)
		assert.Equal(t, tick, got, "tick %d -> %s", tick, ratio.Dec())
	}
}
