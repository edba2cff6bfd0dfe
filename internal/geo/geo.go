package geo

import "math"

// earthRadiusM is the spherical Earth radius used by the haversine formula.
const earthRadiusM = 6371000.0

// Point is a position in floating point degrees.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ProximityCheck is the derived result of comparing a device position
// against a target position. It is never persisted.
type ProximityCheck struct {
	DistanceMeters  float64 `json:"distance_meters"`
	ThresholdMeters float64 `json:"threshold_meters"`
	WithinRange     bool    `json:"within_range"`
}

// Distance returns the great-circle distance between two points in meters,
// computed with the haversine formula.
func Distance(a, b Point) float64 {
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := radians(b.Latitude - a.Latitude)
	dLon := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Asin(math.Sqrt(h))

	return earthRadiusM * c
}

// CheckProximity computes the distance between the target and the current
// position and compares it to the threshold. Pure, no side effects.
func CheckProximity(target, current Point, thresholdMeters float64) ProximityCheck {
	d := Distance(target, current)
	return ProximityCheck{
		DistanceMeters:  d,
		ThresholdMeters: thresholdMeters,
		WithinRange:     d <= thresholdMeters,
	}
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
