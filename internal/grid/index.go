package grid

import "fmt"

// GridIndex addresses one cell. Row 0 is the band touching the south pole and
// rows grow northward; column 0 starts at the date line and columns grow east.
type GridIndex struct {
	Row int
	Col int
	Res Resolution
}

// IndexOf is total: any coordinate maps to a clamped, valid index.
func IndexOf(c Coordinate, r Resolution) GridIndex {
	c = NewCoordinate(c.Lat, c.Lon)
	oc := OffsetsFor(r)
	row := axisIndex(int(c.Lat+MaxLat), oc)
	col := axisIndex(int(c.Lon+MaxLon), oc)
	return GridIndex{
		Row: clampInt(row, 0, r.Rows()-1),
		Col: clampInt(col, 0, r.PointsPerRow()-1),
		Res: r,
	}
}

// axisIndex splits a non-negative tenths value into whole degrees and a
// sub-degree offset and combines them through the offset table.
func axisIndex(shifted int, oc *OffsetComputer) int {
	degree := floorDiv(shifted, 10)
	offset := floorMod(shifted, 10)
	return degree*int(oc.res) + oc.IndexOffset(offset)
}

func (g GridIndex) PointsPerRow() int { return g.Res.PointsPerRow() }

// Flat is the offset into the row-major dataset. The zero guard only matters
// when a complemented (negative) column sits on row 0.
func (g GridIndex) Flat() int {
	return max(g.Row*g.PointsPerRow()+g.Col, 0)
}

// Complement re-expresses the column as a negative offset west of the date
// line, so a box crossing it is still one run of row-major arithmetic.
func (g GridIndex) Complement() GridIndex {
	g.Col -= g.PointsPerRow()
	return g
}

func (g GridIndex) String() string {
	return fmt.Sprintf("(row: %d, col: %d, res: %d)", g.Row, g.Col, int(g.Res))
}

// CoordinateForIndex returns the position of the cell at flat offset i.
// Offsets from complemented columns wrap into the previous row's columns.
func CoordinateForIndex(i int, r Resolution) Coordinate {
	ppr := r.PointsPerRow()
	row := floorDiv(i, ppr)
	col := i - row*ppr
	oc := OffsetsFor(r)
	return Coordinate{
		Lat: oc.tenthsFromIndex(row, -MaxLat),
		Lon: oc.tenthsFromIndex(col, -MaxLon),
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
