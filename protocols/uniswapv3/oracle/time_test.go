package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLte(t *testing.T) {
	cases := []struct {
		name string
		now  uint32
		a, b uint32
		want bool
	}{
		{"plain order", 100, 10, 20, true},
		{"plain reverse order", 100, 20, 10, false},
		{"equal", 100, 50, 50, true},
		{"a before the wrap, b after", 5, 1<<32 - 10, 3, true},
		{"b before the wrap, a after", 5, 3, 1<<32 - 10, false},
		{"both before the wrap", 5, 1<<32 - 10, 1<<32 - 1, true},
		{"now equals b", 7, 1<<32 - 3, 7, true},
		{"span wider than 2^31", 1<<32 - 6, 0, 1<<32 - 6, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Lte(tc.now, tc.a, tc.b))
		})
	}
}
