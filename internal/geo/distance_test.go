package geo

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/alertwatch-mcp/pkg/types"
)

var (
	sydney    = types.Coordinate{Latitude: -33.8688, Longitude: 151.2093}
	melbourne = types.Coordinate{Latitude: -37.8136, Longitude: 144.9631}
	london    = types.Coordinate{Latitude: 51.5074, Longitude: -0.1278}
	paris     = types.Coordinate{Latitude: 48.8566, Longitude: 2.3522}
)

func TestDistanceKnownPairs(t *testing.T) {
	tests := []struct {
		name  string
		a, b  types.Coordinate
		want  float64
		delta float64
	}{
		{"sydney to melbourne", sydney, melbourne, 713.4, 5},
		{"london to paris", london, paris, 343.5, 2},
		{"quarter meridian", types.Coordinate{}, types.Coordinate{Latitude: 90}, math.Pi / 2 * EarthRadiusKm, 1e-6},
		{"antipodes", types.Coordinate{}, types.Coordinate{Longitude: 180}, math.Pi * EarthRadiusKm, 1e-6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Distance(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, tt.delta)
		})
	}
}

func TestDistanceIdentical(t *testing.T) {
	d, err := Distance(sydney, sydney)
	require.NoError(t, err)
	assert.Equal(t, 0.0, d)
}

func TestDistanceSymmetric(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 1000; i++ {
		a := types.Coordinate{Latitude: rng.Float64()*180 - 90, Longitude: rng.Float64()*360 - 180}
		b := types.Coordinate{Latitude: rng.Float64()*180 - 90, Longitude: rng.Float64()*360 - 180}

		ab, err := Distance(a, b)
		require.NoError(t, err)
		ba, err := Distance(b, a)
		require.NoError(t, err)

		require.Equal(t, ab, ba, "distance(%v,%v) not symmetric", a, b)
		require.GreaterOrEqual(t, ab, 0.0)

		aa, err := Distance(a, a)
		require.NoError(t, err)
		require.Equal(t, 0.0, aa)
	}
}

func TestDistanceInvalidCoordinate(t *testing.T) {
	tests := []struct {
		name string
		a, b types.Coordinate
	}{
		{"nan latitude", types.Coordinate{Latitude: math.NaN()}, sydney},
		{"infinite longitude", sydney, types.Coordinate{Longitude: math.Inf(-1)}},
		{"out of range", types.Coordinate{Latitude: 91}, sydney},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Distance(tt.a, tt.b)
			assert.ErrorIs(t, err, types.ErrInvalidCoordinate)
		})
	}
}

func TestWithinRadius(t *testing.T) {
	near := types.Coordinate{Latitude: -33.87, Longitude: 151.21}
	mid := types.Coordinate{Latitude: -33.80, Longitude: 151.18}
	alerts := []types.Alert{
		{ID: "far", Position: &melbourne},
		{ID: "mid", Position: &mid},
		{ID: "nopos"},
		{ID: "near", Position: &near},
	}

	got, err := WithinRadius(alerts, sydney, 20)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "near", got[0].Alert.ID)
	assert.Equal(t, "mid", got[1].Alert.ID)
	assert.Less(t, got[0].DistanceKm, got[1].DistanceKm)

	_, err = WithinRadius(alerts, types.Coordinate{Latitude: 100}, 10)
	assert.ErrorIs(t, err, types.ErrInvalidCoordinate)
}

func TestWithinRadiusDefault(t *testing.T) {
	tenAway := types.Coordinate{Latitude: sydney.Latitude + 0.2, Longitude: sydney.Longitude}
	got, err := WithinRadius([]types.Alert{{ID: "x", Position: &tenAway}}, sydney, 0)
	require.NoError(t, err)
	assert.Empty(t, got, "22km is outside the default 10km radius")
}
