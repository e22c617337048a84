package query

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/gridslice/internal/codec"
	"github.com/mohammed-shakir/gridslice/internal/dataset"
	"github.com/mohammed-shakir/gridslice/internal/grid"
	"github.com/mohammed-shakir/gridslice/internal/rects"
)

// patterned gives every cell a symbol derived from its offset so slices can
// be checked against the source string.
func patterned(t *testing.T, r grid.Resolution) *dataset.Dataset {
	t.Helper()
	b := make([]byte, r.FullSetSize())
	for i := range b {
		b[i] = codec.Alphabet[i%64]
	}
	ds, err := dataset.New(dataset.Key{Year: 2010, Month: 6, Res: r}, b)
	require.NoError(t, err)
	return ds
}

func sparse(t *testing.T, r grid.Resolution, set map[int]byte) *dataset.Dataset {
	t.Helper()
	b := []byte(strings.Repeat("A", r.FullSetSize()))
	for i, c := range set {
		b[i] = c
	}
	ds, err := dataset.New(dataset.Key{Year: 2010, Month: 6, Res: r}, b)
	require.NoError(t, err)
	return ds
}

type stubGetter struct {
	ds  *dataset.Dataset
	err error
}

func (g stubGetter) Get(dataset.Key) (*dataset.Dataset, error) { return g.ds, g.err }

func TestSlice_RowsMatchRanges(t *testing.T) {
	for _, r := range grid.Resolutions() {
		t.Run(r.String(), func(t *testing.T) {
			ds := patterned(t, r)
			box := grid.NewBoundingBox(105, -32, 1201, 1377, r)
			res, err := Slice(ds, box)
			require.NoError(t, err)

			ranges := box.Ranges()
			require.Len(t, res.Rows, len(ranges))
			require.Equal(t, box.Span(), res.PointsPerRow)
			for i, rg := range ranges {
				require.Equal(t, ds.Symbols[rg.First:rg.Last+1], res.Rows[i])
			}
			require.Equal(t, grid.CoordinateForIndex(ranges[0].First, r).Degrees(), res.SWCorner)
			require.Equal(t, res.Cells(), len(res.Base64()))
		})
	}
}

func TestSlice_DateLineUsesContiguousRuns(t *testing.T) {
	ds := patterned(t, grid.Res1)
	box := grid.NewBoundingBox(10, 0, 1790, -1790, grid.Res1)
	require.True(t, box.Crosses)

	res, err := Slice(ds, box)
	require.NoError(t, err)
	for i, rg := range box.Ranges() {
		require.Equal(t, ds.Symbols[rg.First:rg.Last+1], res.Rows[i])
	}
}

func TestSlice_FullGlobeSplitsIntoRows(t *testing.T) {
	ds := patterned(t, grid.Res2)
	res, err := Slice(ds, grid.NewBoundingBox(900, -900, -1800, 1800, grid.Res2))
	require.NoError(t, err)
	require.Len(t, res.Rows, grid.Res2.Rows())
	require.Equal(t, grid.Res2.PointsPerRow(), res.PointsPerRow)
	require.Equal(t, ds.Symbols, res.Base64())
}

func TestSplitRows_DropsLeadingPartialRow(t *testing.T) {
	got := splitRows(grid.Range{First: 0, Last: 360 + 100}, 360)
	require.Equal(t, []grid.Range{{First: 101, Last: 460}}, got)

	got = splitRows(grid.Range{First: 720, Last: 1439}, 360)
	require.Equal(t, []grid.Range{{First: 720, Last: 1079}, {First: 1080, Last: 1439}}, got)
}

func TestSlice_IndexOutOfRange(t *testing.T) {
	short := &dataset.Dataset{Key: dataset.Key{Year: 2000, Month: 1, Res: grid.Res1}, Symbols: "AAAA"}
	_, err := Slice(short, grid.NewBoundingBox(100, 0, 0, 100, grid.Res1))

	var oor *IndexOutOfRangeError
	require.ErrorAs(t, err, &oor)
	require.Equal(t, 4, oor.Len)
	require.Equal(t, short.Key, oor.Key)
	require.GreaterOrEqual(t, oor.Index, 4)
}

func TestEngine_SearchReportsServedResolution(t *testing.T) {
	ds := patterned(t, grid.Res4)
	e := NewEngine(stubGetter{ds: ds}, nil, nil)

	q := Query{Year: 2010, Month: 6, Res: grid.Res10, North: 100, South: 50, West: -20, East: 30}
	res, err := e.Search(context.Background(), q)
	require.NoError(t, err)
	require.Equal(t, grid.Res4, res.Res)
	require.Equal(t, grid.Res10, res.RequestedRes)

	want, err := Slice(ds, q.Box(grid.Res4))
	require.NoError(t, err)
	require.Equal(t, want.Rows, res.Rows)

	b, err := json.Marshal(res)
	require.NoError(t, err)
	require.Contains(t, string(b), `"pointsPerDegree":4`)
	require.Contains(t, string(b), `"requestedPointsPerDegree":10`)
}

func TestEngine_PropagatesStoreErrors(t *testing.T) {
	e := NewEngine(stubGetter{err: fmt.Errorf("%w: x", dataset.ErrNotResident)}, nil, nil)
	_, err := e.Search(context.Background(), Query{Year: 2010, Month: 6, Res: grid.Res1})
	require.ErrorIs(t, err, dataset.ErrNotResident)
	_, err = e.Stats(context.Background(), Query{Year: 2010, Month: 6, Res: grid.Res1})
	require.ErrorIs(t, err, dataset.ErrNotResident)
}

func TestEngine_RectanglesAndStats(t *testing.T) {
	p := grid.Res1.PointsPerRow()
	ds := sparse(t, grid.Res1, map[int]byte{
		89*p + 179: 'B',
		89*p + 180: 'B',
		89*p + 181: 'B',
		90*p + 179: '/',
	})
	e := NewEngine(stubGetter{ds: ds}, codec.NewExponentialTable(), nil)
	world := Query{Year: 2010, Month: 6, Res: grid.Res1, North: 900, South: -900, West: -1800, East: 1800}

	rr, err := e.Rectangles(context.Background(), world, rects.Indices)
	require.NoError(t, err)
	require.Equal(t, []rects.Rectangle{
		{Value: 1, Row: 89, Start: 179, End: 181},
		{Value: 63, Row: 90, Start: 179, End: 179},
	}, rr.Rectangles)

	st, err := e.Stats(context.Background(), world)
	require.NoError(t, err)
	require.Equal(t, grid.Res1.FullSetSize(), st.Points)
	require.Equal(t, 4, st.NonZero)
	require.Equal(t, 2, st.Rectangles)
	require.Equal(t, len("[(1,89,179,181),(63,90,179,179)]"), st.RectangleBytesIndices)
	require.Greater(t, st.RectangleBytesLatLon, 2)
	require.Equal(t, "exponential", st.Policy)
	require.NotNil(t, st.Magnitude)
	require.InDelta(t, 256.0/60, st.Magnitude.Min, 1e-9)
	require.Nil(t, st.Magnitude.Max)

	b, err := json.Marshal(st)
	require.NoError(t, err)
	require.Contains(t, string(b), `"max":null`)
}

func TestEngine_StatsEmptySliceHasNoMagnitude(t *testing.T) {
	ds := sparse(t, grid.Res1, nil)
	e := NewEngine(stubGetter{ds: ds}, nil, nil)
	st, err := e.Stats(context.Background(), Query{Year: 2010, Month: 6, Res: grid.Res1, North: 10, South: 0, West: 0, East: 10})
	require.NoError(t, err)
	require.Zero(t, st.NonZero)
	require.Zero(t, st.Rectangles)
	require.Nil(t, st.Magnitude)
}
