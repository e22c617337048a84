// Package builder turns a CSV of concentration samples into an encoded
// dataset.
//
// Two layouts are accepted. With a header naming lat, lon and value columns,
// coordinates are read in degrees. Without one, rows are the five column
// export layout (id, id, lat tenths, lon tenths, value).
package builder

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/gridslice/internal/codec"
	"github.com/mohammed-shakir/gridslice/internal/dataset"
	"github.com/mohammed-shakir/gridslice/internal/grid"
)

type Options struct {
	Res       grid.Resolution
	Quantizer codec.Quantizer
}

// Fault is one skipped record.
type Fault struct {
	Line   int    `json:"line"`
	Index  int    `json:"index,omitempty"`
	Reason string `json:"reason"`
}

type Report struct {
	Records int     `json:"records"`
	Written int     `json:"written"`
	Faults  []Fault `json:"faults,omitempty"`
}

type layout struct {
	lat, lon, val int
	scale         float64
}

// exportLayout is the headerless-name monthly average export:
// id, date, lon, lat, value with coordinates in hundredths of a degree.
var exportLayout = layout{lat: 3, lon: 2, val: 4, scale: 100}

// Build reads every record and returns a FullSetSize(res) symbol string with
// unset cells left at the no-data symbol.
func Build(r io.Reader, opts Options) ([]byte, Report, error) {
	var rep Report
	if !opts.Res.Valid() {
		return nil, rep, fmt.Errorf("unsupported resolution %d", int(opts.Res))
	}
	if opts.Quantizer == nil {
		opts.Quantizer = codec.NewExponentialTable()
	}

	out := make([]byte, opts.Res.FullSetSize())
	for i := range out {
		out[i] = codec.NoData.Char()
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	first, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return out, rep, nil
	}
	if err != nil {
		return nil, rep, fmt.Errorf("read csv: %w", err)
	}
	lay, isHeader := headerLayout(first)
	line, _ := cr.FieldPos(0)
	if !isHeader && numeric(first, lay) {
		rep.Records++
		apply(first, line, lay, opts, out, &rep)
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				rep.Records++
				rep.Faults = append(rep.Faults, Fault{Line: pe.Line, Reason: pe.Err.Error()})
				continue
			}
			return nil, rep, fmt.Errorf("read csv: %w", err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		line, _ = cr.FieldPos(0)
		rep.Records++
		apply(rec, line, lay, opts, out, &rep)
	}
	return out, rep, nil
}

func headerLayout(rec []string) (layout, bool) {
	lay := layout{lat: -1, lon: -1, val: -1, scale: 1}
	for i, f := range rec {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "lat", "latitude":
			lay.lat = i
		case "lon", "lng", "longitude":
			lay.lon = i
		case "value", "pm25", "pm2.5":
			lay.val = i
		}
	}
	if lay.lat < 0 || lay.lon < 0 || lay.val < 0 {
		return exportLayout, false
	}
	return lay, true
}

func apply(rec []string, line int, lay layout, opts Options, out []byte, rep *Report) {
	fault := func(idx int, format string, args ...any) {
		rep.Faults = append(rep.Faults, Fault{Line: line, Index: idx, Reason: fmt.Sprintf(format, args...)})
	}
	need := max(lay.lat, lay.lon, lay.val)
	if len(rec) <= need {
		fault(0, "expected at least %d fields, got %d", need+1, len(rec))
		return
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(rec[lay.lat]), 64)
	lon, err2 := strconv.ParseFloat(strings.TrimSpace(rec[lay.lon]), 64)
	val, err3 := strconv.ParseFloat(strings.TrimSpace(rec[lay.val]), 64)
	if err := errors.Join(err1, err2, err3); err != nil {
		fault(0, "parse: %v", err)
		return
	}
	if !finite(lat, lon, val) {
		fault(0, "non-finite value in (%g, %g, %g)", lat, lon, val)
		return
	}
	lat, lon = lat/lay.scale, lon/lay.scale
	if math.Abs(lat) > 90 || math.Abs(lon) > 180 {
		fault(0, "coordinate (%g, %g) out of range", lat, lon)
		return
	}

	idx := grid.IndexOf(grid.CoordinateFromDegrees(lat, lon), opts.Res).Flat()
	if idx < 0 || idx >= len(out) {
		fault(idx, "index out of range [0, %d)", len(out))
		return
	}
	out[idx] = opts.Quantizer.Encode(val).Char()
	rep.Written++
}

// numeric reports whether rec has a parsable value field; an export file
// starts with a column-name row that does not.
func numeric(rec []string, lay layout) bool {
	if len(rec) <= lay.val {
		return true
	}
	_, err := strconv.ParseFloat(strings.TrimSpace(rec[lay.val]), 64)
	return err == nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// WriteFile writes symbols to path, compressed according to its extension.
func WriteFile(path string, symbols []byte) error {
	enc, err := dataset.Compress(dataset.CompressionFor(path), symbols)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, enc, 0o644); err != nil {
		return fmt.Errorf("write dataset: %w", err)
	}
	return nil
}
