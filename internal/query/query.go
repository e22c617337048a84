// Package query slices resident datasets by bounding box and derives the
// rectangle and statistics views of a slice.
package query

import (
	"fmt"
	"strings"

	"github.com/mohammed-shakir/gridslice/internal/dataset"
	"github.com/mohammed-shakir/gridslice/internal/grid"
)

// Query is a validated request. Bounds are in tenths of a degree.
type Query struct {
	Year  int
	Month int
	Res   grid.Resolution
	North grid.Tenths
	South grid.Tenths
	West  grid.Tenths
	East  grid.Tenths
}

func (q Query) Key() dataset.Key {
	return dataset.Key{Year: q.Year, Month: q.Month, Res: q.Res}
}

// Box resolves the bounds at r, which may differ from q.Res when a lower
// resolution stands in.
func (q Query) Box(r grid.Resolution) grid.BoundingBox {
	return grid.NewBoundingBox(q.North, q.South, q.West, q.East, r)
}

func (q Query) String() string {
	return fmt.Sprintf("%s n=%d s=%d w=%d e=%d", q.Key(), q.North, q.South, q.West, q.East)
}

// IndexOutOfRangeError is a computed index beyond the dataset. It means the
// dataset and the grid disagree and is fatal for the query.
type IndexOutOfRangeError struct {
	Key   dataset.Key
	Index int
	Len   int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("dataset %s: index %d out of range [0, %d)", e.Key, e.Index, e.Len)
}

// Result is one slice: equal-length symbol rows, south row first.
type Result struct {
	SWCorner     grid.LatLon     `json:"swCorner"`
	PointsPerRow int             `json:"pointsPerRow"`
	Res          grid.Resolution `json:"pointsPerDegree"`
	RequestedRes grid.Resolution `json:"requestedPointsPerDegree"`
	Rows         []string        `json:"-"`
}

// Base64 joins the rows in order.
func (r Result) Base64() string { return strings.Join(r.Rows, "") }

func (r Result) Cells() int { return len(r.Rows) * r.PointsPerRow }

// Slice borrows row substrings of ds for every range of box.
func Slice(ds *dataset.Dataset, box grid.BoundingBox) (Result, error) {
	res := box.Low.Res
	ranges := box.Ranges()
	if box.FullWrap() && len(ranges) == 1 {
		ranges = splitRows(ranges[0], res.PointsPerRow())
	}

	out := Result{Res: res, RequestedRes: res}
	if len(ranges) == 0 {
		return out, nil
	}
	n := ds.Len()
	out.Rows = make([]string, 0, len(ranges))
	for _, r := range ranges {
		if r.First < 0 {
			return Result{}, &IndexOutOfRangeError{Key: ds.Key, Index: r.First, Len: n}
		}
		if r.Last >= n {
			return Result{}, &IndexOutOfRangeError{Key: ds.Key, Index: r.Last, Len: n}
		}
		out.Rows = append(out.Rows, ds.Symbols[r.First:r.Last+1])
	}
	out.PointsPerRow = ranges[0].Len()
	out.SWCorner = grid.CoordinateForIndex(ranges[0].First, res).Degrees()
	return out, nil
}

// splitRows cuts a whole-row range into rows of p cells. A leading partial
// row, left when the flat index was clamped at zero, is dropped.
func splitRows(r grid.Range, p int) []grid.Range {
	first := r.First + r.Len()%p
	var out []grid.Range
	for s := first; s+p-1 <= r.Last; s += p {
		out = append(out, grid.Range{First: s, Last: s + p - 1})
	}
	return out
}
