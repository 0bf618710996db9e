package geo

import (
	"math"
)

const (
	earthRadiusKm    = 6371.0
	earthRadiusMiles = 3958.8

	DefaultRadiusMiles = 25
	MinRadiusMiles     = 1
	MaxRadiusMiles     = 500
)

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether p is finite and within latitude/longitude bounds.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// HaversineKm returns the great-circle distance in kilometres.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	return haversine(lat1, lng1, lat2, lng2) * earthRadiusKm
}

// DistanceMiles returns the great-circle distance between a and b in miles.
func DistanceMiles(a, b Point) float64 {
	return haversine(a.Lat, a.Lng, b.Lat, b.Lng) * earthRadiusMiles
}

// haversine returns the central angle in radians.
func haversine(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	s := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	if s > 1 {
		s = 1
	}
	return 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// SanitizeRadius normalizes a stored radius preference. nil, zero, negative
// and non-finite values fall back to the default; everything else is rounded
// and clamped to [MinRadiusMiles, MaxRadiusMiles].
func SanitizeRadius(radius *float64) int {
	if radius == nil {
		return DefaultRadiusMiles
	}
	r := *radius
	if math.IsNaN(r) || math.IsInf(r, 0) || r <= 0 {
		return DefaultRadiusMiles
	}
	rounded := int(math.Round(math.Min(r, MaxRadiusMiles)))
	if rounded < MinRadiusMiles {
		return MinRadiusMiles
	}
	return rounded
}

// IsEligible reports whether a recipient at recipient is within radiusMiles of
// the ride. A recipient without a saved point is never eligible.
func IsEligible(recipient *Point, ride Point, radiusMiles *float64) bool {
	if recipient == nil || !recipient.Valid() || !ride.Valid() {
		return false
	}
	return DistanceMiles(*recipient, ride) <= float64(SanitizeRadius(radiusMiles))
}
