package query

import (
	"context"
	"log/slog"
	"time"

	"github.com/mohammed-shakir/gridslice/internal/codec"
	"github.com/mohammed-shakir/gridslice/internal/core/observability"
	"github.com/mohammed-shakir/gridslice/internal/dataset"
	"github.com/mohammed-shakir/gridslice/internal/rects"
)

// Getter hands out resident datasets, possibly at a lower resolution than
// asked for.
type Getter interface {
	Get(k dataset.Key) (*dataset.Dataset, error)
}

type Engine struct {
	store     Getter
	quantizer codec.Quantizer
	logger    *slog.Logger
}

func NewEngine(store Getter, q codec.Quantizer, logger *slog.Logger) *Engine {
	if q == nil {
		q = codec.NewExponentialTable()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, quantizer: q, logger: logger}
}

func (e *Engine) Quantizer() codec.Quantizer { return e.quantizer }

// Search slices the best available dataset for q.
func (e *Engine) Search(ctx context.Context, q Query) (Result, error) {
	ds, err := e.store.Get(q.Key())
	if err != nil {
		return Result{}, err
	}
	start := time.Now()
	res, err := Slice(ds, q.Box(ds.Key.Res))
	if err != nil {
		e.logger.ErrorContext(ctx, "slice failed", "query", q.String(), "err", err)
		return Result{}, err
	}
	res.RequestedRes = q.Res
	observability.ObserveQueryStage("slice", int(res.Res), time.Since(start).Seconds())
	observability.ObserveQueryCells(int(res.Res), res.Cells())
	if res.Res != q.Res {
		e.logger.DebugContext(ctx, "served lower resolution",
			"dataset", q.Key().String(), "served_res", int(res.Res))
	}
	return res, nil
}

// RectResult is a slice rendered as rectangles.
type RectResult struct {
	Result
	Mode       rects.Mode
	Rectangles []rects.Rectangle
}

func (e *Engine) Rectangles(ctx context.Context, q Query, mode rects.Mode) (RectResult, error) {
	res, err := e.Search(ctx, q)
	if err != nil {
		return RectResult{}, err
	}
	start := time.Now()
	rs := rects.Extract(res.Rows, res.SWCorner, res.Res.Increment(), mode)
	observability.ObserveQueryStage("rectangles", int(res.Res), time.Since(start).Seconds())
	return RectResult{Result: res, Mode: mode, Rectangles: rs}, nil
}

// Magnitude is the value range covered by the symbols of a slice. Max is nil
// when the top symbol is present.
type Magnitude struct {
	Min float64  `json:"min"`
	Max *float64 `json:"max"`
}

type Stats struct {
	Points                int        `json:"pts"`
	NonZero               int        `json:"nonzero"`
	Rectangles            int        `json:"rectangles"`
	RectangleBytesLatLon  int        `json:"rectangleBytesLatLon"`
	RectangleBytesIndices int        `json:"rectangleBytesIndices"`
	SearchMs              float64    `json:"searchMs"`
	ConvertLatLonMs       float64    `json:"convertLatLonMs"`
	ConvertIndicesMs      float64    `json:"convertIndicesMs"`
	Res                   int        `json:"pointsPerDegree"`
	RequestedRes          int        `json:"requestedPointsPerDegree"`
	Policy                string     `json:"policy"`
	Magnitude             *Magnitude `json:"magnitude"`
}

// Stats runs one search and both rectangle conversions, timing each.
func (e *Engine) Stats(ctx context.Context, q Query) (Stats, error) {
	start := time.Now()
	res, err := e.Search(ctx, q)
	if err != nil {
		return Stats{}, err
	}
	searchDur := time.Since(start)
	symbols := res.Base64()

	s1 := time.Now()
	geo := rects.Extract(res.Rows, res.SWCorner, res.Res.Increment(), rects.Geographic)
	geoBytes := rects.EncodedSize(geo)
	geoDur := time.Since(s1)

	s2 := time.Now()
	idx := rects.Extract(res.Rows, res.SWCorner, res.Res.Increment(), rects.Indices)
	idxBytes := rects.EncodedSize(idx)
	idxDur := time.Since(s2)

	st := Stats{
		Points:                len(symbols),
		NonZero:               codec.CountNonZero(symbols),
		Rectangles:            len(idx),
		RectangleBytesLatLon:  geoBytes,
		RectangleBytesIndices: idxBytes,
		SearchMs:              ms(searchDur),
		ConvertLatLonMs:       ms(geoDur),
		ConvertIndicesMs:      ms(idxDur),
		Res:                   int(res.Res),
		RequestedRes:          int(res.RequestedRes),
		Policy:                e.quantizer.Name(),
	}
	if br, ok := codec.Span(e.quantizer, symbols); ok {
		st.Magnitude = &Magnitude{Min: br.Min}
		if !br.Unbounded() {
			mx := br.Max
			st.Magnitude.Max = &mx
		}
	}
	return st, nil
}

func ms(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }
