package grid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func totalCells(rs []Range) int {
	n := 0
	for _, r := range rs {
		n += r.Len()
	}
	return n
}

func TestRanges_DateLineCrossingMatchesEquivalentBox(t *testing.T) {
	// north=1, south=0, west=179, east=-179 at res 1. Whole-degree bounds
	// sit at offset 0, which the res 1 table maps to the previous degree's
	// cell, so each row holds 3 columns: those starting at 178E, 179E, 180W.
	cross := NewBoundingBox(FromDegrees(1), FromDegrees(0), FromDegrees(179), FromDegrees(-179), Res1)
	require.True(t, cross.Crosses)
	require.Equal(t, -2, cross.Low.Col)
	require.Equal(t, 0, cross.High.Col)
	require.Equal(t, 3, cross.Span())

	// a box of the same width away from the date line
	plain := NewBoundingBox(10, 0, 90, 110, Res1)
	require.False(t, plain.Crosses)
	require.Equal(t, plain.Span(), cross.Span())

	got := cross.Ranges()
	require.Equal(t, []Range{
		{First: 89*360 - 2, Last: 89*360 + 0},
		{First: 90*360 - 2, Last: 90*360 + 0},
	}, got)
	for _, r := range got {
		require.Equal(t, 3, r.Len())
	}
	require.Equal(t, totalCells(plain.Ranges()), totalCells(got))
}

func TestRanges_FullGlobeIsOneRange(t *testing.T) {
	b := NewBoundingBox(900, -900, -1800, 1800, Res1)
	require.True(t, b.FullWrap())
	got := b.Ranges()
	require.Equal(t, []Range{{First: 0, Last: FullSetSize(Res1) - 1}}, got)
	require.Equal(t, FullSetSize(Res1), totalCells(got))
}

func TestRanges_FullWrapAcrossDateLineIsContiguous(t *testing.T) {
	// west just east of east: the whole ring, starting at 1 degree east
	b := NewBoundingBox(10, 0, 10, 0, Res1)
	require.True(t, b.Crosses)
	require.True(t, b.FullWrap())
	got := b.Ranges()
	require.Len(t, got, 1)
	require.Equal(t, Range{First: 89*360 - 180, Last: 90*360 + 179}, got[0])
	require.Equal(t, 2*360, got[0].Len())
}

func TestRanges_SinglePoint(t *testing.T) {
	b := NewBoundingBox(100, 100, 200, 200, Res10)
	got := b.Ranges()
	flat := 1000*3600 + 2000
	require.Equal(t, []Range{{First: flat, Last: flat}}, got)
	require.Equal(t, 1, got[0].Len())
}

func TestRanges_SingleRowAndSingleColumn(t *testing.T) {
	row := NewBoundingBox(100, 100, 0, 50, Res10)
	require.Len(t, row.Ranges(), 1)
	require.Equal(t, 51, row.Ranges()[0].Len())

	col := NewBoundingBox(150, 100, 200, 200, Res10)
	rs := col.Ranges()
	require.Len(t, rs, 51)
	for _, r := range rs {
		require.Equal(t, 1, r.Len())
	}
}

func TestRanges_PoleRowDroppedWhenCrossing(t *testing.T) {
	b := NewBoundingBox(-880, -900, 1790, -1790, Res1)
	require.True(t, b.Crosses)
	require.Equal(t, 0, b.Low.Row)
	got := b.Ranges()
	require.Equal(t, []Range{{First: 360 - 2, Last: 360}}, got)
}

func TestRanges_OrderedSouthToNorth(t *testing.T) {
	for _, r := range Resolutions() {
		b := NewBoundingBox(300, -200, -500, 700, r)
		rs := b.Ranges()
		require.NotEmpty(t, rs)
		for i := 1; i < len(rs); i++ {
			require.Less(t, rs[i-1].Last, rs[i].First)
			require.Equal(t, r.PointsPerRow(), rs[i].First-rs[i-1].First)
			require.Equal(t, rs[0].Len(), rs[i].Len())
		}
		require.Less(t, rs[len(rs)-1].Last, r.FullSetSize())
	}
}

func TestNewBoundingBox_SwapsNorthSouth(t *testing.T) {
	a := NewBoundingBox(300, -200, -500, 700, Res2)
	b := NewBoundingBox(-200, 300, -500, 700, Res2)
	require.Equal(t, a, b)
}

func TestResolve_EqualsBoxRanges(t *testing.T) {
	low := NewCoordinate(-100, 1700)
	high := NewCoordinate(100, -1700)
	want := NewBoundingBox(100, -100, 1700, -1700, Res4).Ranges()
	require.Equal(t, want, Resolve(low, high, Res4))
}
