package geo

import (
	"errors"
	"math"
	"time"
)

// Point is a latitude/longitude pair in decimal degrees.
type Point struct {
	Latitude  float64
	Longitude float64
}

var (
	ErrInvalidLatitude  = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude = errors.New("longitude must be between -180 and 180")
)

// NewPoint constructs a validated Point.
func NewPoint(latitude, longitude float64) (Point, error) {
	point := Point{Latitude: latitude, Longitude: longitude}
	if err := point.Validate(); err != nil {
		return Point{}, err
	}
	return point, nil
}

// Validate checks coordinate ranges and rejects NaN values.
func (point Point) Validate() error {
	if point.Latitude < -90 || point.Latitude > 90 || math.IsNaN(point.Latitude) {
		return ErrInvalidLatitude
	}
	if point.Longitude < -180 || point.Longitude > 180 || math.IsNaN(point.Longitude) {
		return ErrInvalidLongitude
	}
	return nil
}

// Location is a point with the moment it was observed.
type Location struct {
	Point
	UpdatedAt time.Time
}

// HaversineKM returns the great-circle distance between two points in kilometers.
func HaversineKM(from, to Point) float64 {
	const earthRadiusKM = 6371.0

	lat1 := from.Latitude * math.Pi / 180
	lat2 := to.Latitude * math.Pi / 180
	dLat := (to.Latitude - from.Latitude) * math.Pi / 180
	dLon := (to.Longitude - from.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKM * c
}
