package grid

import "fmt"

// Range is a run of flat dataset offsets, closed on both ends.
type Range struct {
	First int `json:"firstIndex"`
	Last  int `json:"lastIndex"`
}

func (r Range) Len() int { return r.Last - r.First + 1 }

// BoundingBox holds the south-west (Low) and north-east (High) corners of a
// query. When the box crosses the date line Low.Col is complemented and is
// negative.
type BoundingBox struct {
	Low     GridIndex
	High    GridIndex
	Crosses bool
}

// NewBoundingBox builds a box from its four bounds in tenths. North and
// south are swapped if given in the wrong order; west/east are not, since
// west > east is how a date-line crossing is expressed.
func NewBoundingBox(north, south, west, east Tenths, r Resolution) BoundingBox {
	if south > north {
		north, south = south, north
	}
	return NewBoundingBoxFromCorners(NewCoordinate(south, west), NewCoordinate(north, east), r)
}

func NewBoundingBoxFromCorners(low, high Coordinate, r Resolution) BoundingBox {
	b := BoundingBox{Low: IndexOf(low, r), High: IndexOf(high, r)}
	if b.High.Col < b.Low.Col {
		b.Low = b.Low.Complement()
		b.Crosses = true
	}
	return b
}

// Span is the number of columns covered in each row.
func (b BoundingBox) Span() int { return b.High.Col - b.Low.Col + 1 }

// FullWrap reports whether the box covers every longitude, in which case
// its ranges collapse into one contiguous run.
func (b BoundingBox) FullWrap() bool { return b.Span() >= b.Low.PointsPerRow() }

// Ranges returns one range per row, south to north, or a single range for a
// full-wrap box. A first row whose start is negative (pole row of a box
// crossing the date line) is dropped rather than clamped: clamping would
// pull in cells from the wrong row.
func (b BoundingBox) Ranges() []Range {
	if b.FullWrap() {
		return []Range{{First: b.Low.Flat(), Last: b.High.Flat()}}
	}
	ppr := b.Low.PointsPerRow()
	span := b.Span()
	out := make([]Range, 0, b.High.Row-b.Low.Row+1)
	for row := b.Low.Row; row <= b.High.Row; row++ {
		first := row*ppr + b.Low.Col
		if row == b.Low.Row && first < 0 {
			continue
		}
		out = append(out, Range{First: first, Last: first + span - 1})
	}
	return out
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("(sw: %s, ne: %s)", b.Low, b.High)
}

// Resolve is the functional entry point: corners in, ordered ranges out.
func Resolve(low, high Coordinate, r Resolution) []Range {
	return NewBoundingBoxFromCorners(low, high, r).Ranges()
}
