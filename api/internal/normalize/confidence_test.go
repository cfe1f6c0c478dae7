package normalize

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampConfidence(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
		ok   bool
	}{
		{"percent", 85, 0.85, true},
		{"fraction", 0.5, 0.5, true},
		{"upper bound of percent range", 100, 1, true},
		{"exactly one", 1, 1, true},
		{"above percent range", 150, 1, true},
		{"negative", -5, 0, true},
		{"zero", 0, 0, true},
		{"nan", math.NaN(), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ClampConfidence(tt.in)
			require.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestToConfidence_LooseInputs(t *testing.T) {
	got, ok := ToConfidence("92.5%")
	require.True(t, ok)
	assert.InDelta(t, 0.925, got, 1e-9)

	_, ok = ToConfidence(nil)
	assert.False(t, ok)

	_, ok = ToConfidence("high")
	assert.False(t, ok)

	_, ok = ToConfidence("")
	assert.False(t, ok)

	var missing *float64
	_, ok = ToConfidence(missing)
	assert.False(t, ok)
}

func TestFormatPercent(t *testing.T) {
	s, ok := FormatPercent(0.876)
	require.True(t, ok)
	assert.Equal(t, "88%", s)

	s, ok = FormatPercent(42.0)
	require.True(t, ok)
	assert.Equal(t, "42%", s)

	_, ok = FormatPercent("n/a")
	assert.False(t, ok)

	assert.Equal(t, Dash, PercentOrDash(nil))
	assert.Equal(t, "100%", PercentOrDash(250.0))
}
