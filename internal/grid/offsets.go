package grid

// OffsetComputer maps a sub-degree offset (0..9 tenths) to the index of the
// grid point inside that degree. Resolutions other than 10 do not divide a
// degree into whole tenths, so each one carries its own sorted table.
type OffsetComputer struct {
	res     Resolution
	offsets []int
}

var offsetComputers = map[Resolution]*OffsetComputer{
	Res1:  {res: Res1, offsets: []int{9}},
	Res2:  {res: Res2, offsets: []int{0, 5}},
	Res4:  {res: Res4, offsets: []int{0, 2, 5, 7}},
	Res10: {res: Res10, offsets: []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}},
}

// OffsetsFor returns the table for r; r must be a supported resolution.
func OffsetsFor(r Resolution) *OffsetComputer {
	oc, ok := offsetComputers[r]
	if !ok {
		panic("grid: no offset table for resolution " + r.String())
	}
	return oc
}

func (oc *OffsetComputer) Resolution() Resolution { return oc.res }

// IndexOffset returns the sub-cell holding offset. Exact matches belong to
// their own entry; anything else floors to the highest entry <= offset. An
// offset below the first entry returns -1, the last sub-cell of the previous
// degree, which the indexer absorbs through its degree arithmetic.
func (oc *OffsetComputer) IndexOffset(offset int) int {
	idx := -1
	for i, o := range oc.offsets {
		if o > offset {
			break
		}
		idx = i
	}
	return idx
}

// Offset returns the tenths offset of sub-cell i.
func (oc *OffsetComputer) Offset(i int) int { return oc.offsets[i] }

// tenthsFromIndex is the inverse of the per-axis indexing: the tenths value
// (measured from base) at which row or column idx sits.
func (oc *OffsetComputer) tenthsFromIndex(idx int, base Tenths) Tenths {
	r := int(oc.res)
	deg := floorDiv(idx, r)
	sub := idx - deg*r
	return base + Tenths(10*deg+oc.offsets[sub])
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int) int {
	return a - floorDiv(a, b)*b
}
