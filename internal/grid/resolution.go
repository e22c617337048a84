// Package grid maps geographic coordinates onto the row-major equirectangular
// raster used by the datasets, and resolves bounding boxes into index ranges.
package grid

import "fmt"

// Resolution is the number of grid points per degree along one axis.
type Resolution int

const (
	Res1  Resolution = 1
	Res2  Resolution = 2
	Res4  Resolution = 4
	Res10 Resolution = 10
)

var supported = []Resolution{Res1, Res2, Res4, Res10}

// Resolutions returns the supported resolutions, coarsest first.
func Resolutions() []Resolution {
	out := make([]Resolution, len(supported))
	copy(out, supported)
	return out
}

func ParseResolution(n int) (Resolution, error) {
	r := Resolution(n)
	if !r.Valid() {
		return 0, fmt.Errorf("unsupported resolution %d (must be one of 1,2,4,10)", n)
	}
	return r, nil
}

func (r Resolution) Valid() bool {
	switch r {
	case Res1, Res2, Res4, Res10:
		return true
	}
	return false
}

// PointsPerRow is the number of columns in one latitude band.
func (r Resolution) PointsPerRow() int { return 360 * int(r) }

// Rows is the number of latitude bands.
func (r Resolution) Rows() int { return 180 * int(r) }

// FullSetSize is the exact length of a dataset at this resolution.
func (r Resolution) FullSetSize() int { return 360 * 180 * int(r) * int(r) }

// Increment is the angular size of one cell in degrees.
func (r Resolution) Increment() float64 { return 1 / float64(r) }

func (r Resolution) String() string { return fmt.Sprintf("%dppd", int(r)) }

// FullSetSize is the package-level form of Resolution.FullSetSize.
func FullSetSize(r Resolution) int { return r.FullSetSize() }
