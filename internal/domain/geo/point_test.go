package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPoint(t *testing.T) {
	p, err := NewPoint(55.75, 37.61)
	require.NoError(t, err)
	assert.Equal(t, 55.75, p.Latitude)
	assert.Equal(t, 37.61, p.Longitude)

	// boundary values are valid
	_, err = NewPoint(90, 180)
	assert.NoError(t, err)
	_, err = NewPoint(-90, -180)
	assert.NoError(t, err)

	_, err = NewPoint(90.0001, 0)
	assert.ErrorIs(t, err, ErrInvalidLatitude)
	_, err = NewPoint(0, -180.5)
	assert.ErrorIs(t, err, ErrInvalidLongitude)
	_, err = NewPoint(math.NaN(), 0)
	assert.ErrorIs(t, err, ErrInvalidLatitude)
	_, err = NewPoint(0, math.NaN())
	assert.ErrorIs(t, err, ErrInvalidLongitude)
}

func TestHaversineKM(t *testing.T) {
	moscow := Point{Latitude: 55.7558, Longitude: 37.6173}

	assert.Zero(t, HaversineKM(moscow, moscow))

	// one degree of latitude is about 111.2 km anywhere on the globe
	north := Point{Latitude: moscow.Latitude + 1, Longitude: moscow.Longitude}
	assert.InDelta(t, 111.19, HaversineKM(moscow, north), 0.2)

	// symmetric
	assert.Equal(t, HaversineKM(moscow, north), HaversineKM(north, moscow))

	// Moscow -> Saint Petersburg, roughly 635 km
	spb := Point{Latitude: 59.9343, Longitude: 30.3351}
	assert.InDelta(t, 635, HaversineKM(moscow, spb), 5)
}
