// Package rects run-length compresses query rows into same-symbol rectangles.
package rects

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/gridslice/internal/codec"
	"github.com/mohammed-shakir/gridslice/internal/grid"
)

// Mode selects the units written into a Rectangle.
type Mode int

const (
	// Geographic writes latitude and longitudes in degrees.
	Geographic Mode = iota
	// Indices writes the row number within the result and column offsets within the row.
	Indices
)

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "latlon", "geographic":
		return Geographic, nil
	case "indices", "index":
		return Indices, nil
	}
	return 0, fmt.Errorf("unknown rectangle mode %q", s)
}

func (m Mode) String() string {
	if m == Indices {
		return "indices"
	}
	return "latlon"
}

// Rectangle is one run of equal nonzero symbols inside a row. Start and End
// are both inclusive.
type Rectangle struct {
	Value codec.Symbol
	Row   float64
	Start float64
	End   float64
}

func (r Rectangle) String() string {
	var b strings.Builder
	r.appendTo(&b)
	return b.String()
}

func (r Rectangle) appendTo(b *strings.Builder) {
	b.WriteByte('(')
	b.WriteString(strconv.Itoa(int(r.Value)))
	b.WriteByte(',')
	b.WriteString(strconv.FormatFloat(r.Row, 'g', -1, 64))
	b.WriteByte(',')
	b.WriteString(strconv.FormatFloat(r.Start, 'g', -1, 64))
	b.WriteByte(',')
	b.WriteString(strconv.FormatFloat(r.End, 'g', -1, 64))
	b.WriteByte(')')
}

// Strings renders every rectangle.
func Strings(rs []Rectangle) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.String()
	}
	return out
}

// EncodedSize is the byte length of the bracketed, comma separated listing
// of rs, the form rectangles take on the wire.
func EncodedSize(rs []Rectangle) int {
	var b strings.Builder
	b.WriteByte('[')
	for i, r := range rs {
		if i > 0 {
			b.WriteByte(',')
		}
		r.appendTo(&b)
	}
	b.WriteByte(']')
	return b.Len()
}

// Extract scans every row once. origin is the south-west corner of the first
// cell of rows[0]; rows go north by increment and cells go east by increment.
func Extract(rows []string, origin grid.LatLon, increment float64, mode Mode) []Rectangle {
	var out []Rectangle
	for r, row := range rows {
		if len(row) == 0 {
			continue
		}
		conv := converter(mode, r, origin, increment)
		start := 0
		cur := row[0]
		for i := 1; i < len(row); i++ {
			if row[i] == cur {
				continue
			}
			out = emit(out, cur, start, i-1, conv)
			cur = row[i]
			start = i
		}
		out = emit(out, cur, start, len(row)-1, conv)
	}
	return out
}

type convertFn func(first, last int) (row, start, end float64)

func converter(mode Mode, r int, origin grid.LatLon, increment float64) convertFn {
	if mode == Indices {
		row := float64(r)
		return func(first, last int) (float64, float64, float64) {
			return row, float64(first), float64(last)
		}
	}
	lat := roundMicro(origin.Lat + float64(r)*increment)
	return func(first, last int) (float64, float64, float64) {
		return lat,
			normalizeLon(origin.Lon + float64(first)*increment),
			normalizeLon(origin.Lon + float64(last)*increment)
	}
}

func emit(out []Rectangle, c byte, first, last int, conv convertFn) []Rectangle {
	v := codec.MustSymbolOf(c)
	if v == codec.NoData {
		return out
	}
	row, start, end := conv(first, last)
	return append(out, Rectangle{Value: v, Row: row, Start: start, End: end})
}

// normalizeLon folds a longitude into [-180, 180), rounding off float drift
// at a millionth of a degree.
func normalizeLon(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	lon = roundMicro(lon - 180)
	if lon >= 180 {
		lon -= 360
	}
	return lon
}

func roundMicro(v float64) float64 { return math.Round(v*1e6) / 1e6 }
