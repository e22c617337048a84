package grid

import (
	"fmt"
	"math"
)

// Tenths is an angle in tenths of a degree, the canonical unit for indexing.
type Tenths int

const (
	MaxLat Tenths = 900
	MaxLon Tenths = 1800
)

// FromDegrees converts degrees to tenths, flooring toward negative infinity
// so a point just south of a grid line stays in the cell below it.
func FromDegrees(deg float64) Tenths {
	return Tenths(math.Floor(deg * 10))
}

func (t Tenths) Degrees() float64 { return float64(t) / 10 }

// Coordinate is a clamped (lat, lon) pair in tenths of a degree.
type Coordinate struct {
	Lat Tenths
	Lon Tenths
}

func NewCoordinate(lat, lon Tenths) Coordinate {
	return Coordinate{Lat: clampTenths(lat, MaxLat), Lon: clampTenths(lon, MaxLon)}
}

// CoordinateFromDegrees clamps to [-90,90]x[-180,180] before converting.
func CoordinateFromDegrees(lat, lon float64) Coordinate {
	lat = math.Max(-90, math.Min(90, lat))
	lon = math.Max(-180, math.Min(180, lon))
	return NewCoordinate(FromDegrees(lat), FromDegrees(lon))
}

// LatLon is a coordinate in floating point degrees.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (c Coordinate) Degrees() LatLon {
	return LatLon{Lat: c.Lat.Degrees(), Lon: c.Lon.Degrees()}
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(lat %d, lon %d)", c.Lat, c.Lon)
}

func clampTenths(v, limit Tenths) Tenths {
	if v < -limit {
		return -limit
	}
	if v > limit {
		return limit
	}
	return v
}
