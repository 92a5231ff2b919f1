package geo

import (
	"fmt"
	"math"
	"sort"

	"github.com/dshills/alertwatch-mcp/pkg/types"
)

// EarthRadiusKm is the mean Earth radius used by the spherical model
const EarthRadiusKm = 6371.0

// DefaultRadiusKm is the default search radius for nearby queries
const DefaultRadiusKm = 10.0

// Distance returns the great-circle distance in kilometres between a and b
// using the haversine formula. It returns an error wrapping
// types.ErrInvalidCoordinate when either point is not a valid coordinate.
func Distance(a, b types.Coordinate) (float64, error) {
	if !a.Valid() {
		return 0, fmt.Errorf("%w: %v", types.ErrInvalidCoordinate, a)
	}
	if !b.Valid() {
		return 0, fmt.Errorf("%w: %v", types.ErrInvalidCoordinate, b)
	}

	// Absolute deltas keep the result bit-for-bit symmetric
	dLat := toRad(math.Abs(b.Latitude - a.Latitude))
	dLon := toRad(math.Abs(b.Longitude - a.Longitude))

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(toRad(a.Latitude))*math.Cos(toRad(b.Latitude))*sinLon*sinLon
	if h > 1 {
		h = 1
	}

	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h)), nil
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// Nearby is an alert paired with its distance from a reference point
type Nearby struct {
	Alert      types.Alert
	DistanceKm float64
}

// WithinRadius returns the alerts with a usable position no further than
// radiusKm from center, nearest first. Ties keep the input order.
func WithinRadius(alerts []types.Alert, center types.Coordinate, radiusKm float64) ([]Nearby, error) {
	if !center.Valid() {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidCoordinate, center)
	}
	if radiusKm <= 0 {
		radiusKm = DefaultRadiusKm
	}

	out := make([]Nearby, 0, len(alerts))
	for _, a := range alerts {
		if !a.HasPosition() {
			continue
		}
		d, err := Distance(center, *a.Position)
		if err != nil || d > radiusKm {
			continue
		}
		out = append(out, Nearby{Alert: a, DistanceKm: d})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DistanceKm < out[j].DistanceKm
	})
	return out, nil
}
