// internal/geo/geo.go
//
// Pure geographic scoring helpers.
// Responsibilities:
//   - Great-circle (haversine) distance between two coordinates.
//   - Map a guess distance to a bounded, decaying point value.
//
// Notes:
//   - Everything here is deterministic and side-effect free; both the solo
//     and multiplayer services score guesses through this package.
//   - MaxScore and the decay constant define the curve; Score(0) == MaxScore
//     and Score clamps to 0 for arbitrarily large distances.

package geo

import "math"

// Point is a latitude/longitude pair in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

const (
	// earthRadiusKm is the mean Earth radius used by the haversine formula.
	earthRadiusKm = 6371.0

	// MaxScore is awarded for a perfect (zero distance) guess.
	MaxScore = 5000

	// decayKm controls how fast points fall off with distance. With 1492 km
	// a guess ~2000 km off is still worth roughly a quarter of MaxScore.
	decayKm = 1492.0

	// distancePrecision is the number of decimals Distance rounds to.
	distancePrecision = 2
)

// Distance returns the great-circle distance between a and b in kilometers,
// rounded to two decimals. Identical points yield exactly 0.
func Distance(a, b Point) float64 {
	if a == b {
		return 0
	}
	la1 := toRadians(a.Lat)
	la2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(la1)*math.Cos(la2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return round(earthRadiusKm*c, distancePrecision)
}

// Score maps a distance in kilometers to points on an exponential decay
// curve. Monotonically non-increasing: closer guesses never score less.
// Negative distances are treated as zero.
func Score(distanceKm float64) int {
	if distanceKm <= 0 {
		return MaxScore
	}
	pts := int(math.Round(MaxScore * math.Exp(-distanceKm/decayKm)))
	if pts < 0 {
		return 0
	}
	if pts > MaxScore {
		return MaxScore
	}
	return pts
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

// round rounds v to the given number of decimals.
func round(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}
