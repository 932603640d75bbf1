package domain

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInterval(t *testing.T) {
	tests := []struct {
		spec string
		want Interval
	}{
		{"P1D", Interval{Days: 1}},
		{"PT1H", Interval{Clock: time.Hour}},
		{"P2W", Interval{Days: 14}},
		{"P1Y2M3DT4H5M6S", Interval{Years: 1, Months: 2, Days: 3, Clock: 4*time.Hour + 5*time.Minute + 6*time.Second}},
		{"PT90M", Interval{Clock: 90 * time.Minute}},
		{"PT1.5S", Interval{Clock: 1500 * time.Millisecond}},
		{"PT0S", Interval{}},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := ParseInterval(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseInterval_Invalid(t *testing.T) {
	for _, spec := range []string{"", "   ", "1D", "-P1D", "P1.5D", "P0.5M", "every day", "P1X"} {
		t.Run(spec, func(t *testing.T) {
			_, err := ParseInterval(spec)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidIntervalSpec), "got %v", err)
		})
	}
}

func TestParseInterval_OutOfRange(t *testing.T) {
	for _, spec := range []string{"PT3000000H", "PT99999999999999999999S", "P99999999999999999999Y", "P2000000M", "P200000W", "P1000001D"} {
		t.Run(spec, func(t *testing.T) {
			_, err := ParseInterval(spec)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidIntervalSpec), "got %v", err)
			assert.Contains(t, err.Error(), "out of range")
		})
	}

	iv, err := ParseInterval("PT2500000H")
	require.NoError(t, err)
	assert.Equal(t, 2500000*time.Hour, iv.Clock)
}

func TestInterval_RoundTrip(t *testing.T) {
	for _, spec := range []string{"P1Y", "P3M", "P10D", "PT12H", "PT45M", "PT30S", "P1Y2M3DT4H5M6S", "PT1.25S"} {
		t.Run(spec, func(t *testing.T) {
			iv, err := ParseInterval(spec)
			require.NoError(t, err)
			assert.Equal(t, spec, iv.String())

			again, err := ParseInterval(iv.String())
			require.NoError(t, err)
			assert.Equal(t, iv, again)
		})
	}
}

func TestInterval_StringNormalizes(t *testing.T) {
	iv, err := ParseInterval("PT90M")
	require.NoError(t, err)
	assert.Equal(t, "PT1H30M", iv.String())

	iv, err = ParseInterval("P1W")
	require.NoError(t, err)
	assert.Equal(t, "P7D", iv.String())

	assert.Equal(t, "PT0S", Interval{}.String())
}

func TestInterval_AddTo(t *testing.T) {
	base := time.Date(2023, time.January, 31, 10, 0, 0, 0, time.UTC)

	iv, err := ParseInterval("P1M")
	require.NoError(t, err)
	// Month overflow normalizes the same way time.AddDate does.
	assert.Equal(t, time.Date(2023, time.March, 3, 10, 0, 0, 0, time.UTC), iv.AddTo(base))

	iv, err = ParseInterval("P1DT2H")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, time.February, 1, 12, 0, 0, 0, time.UTC), iv.AddTo(base))
}
