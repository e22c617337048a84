// Package router binds the query engine and the dataset store to HTTP.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/gridslice/internal/core/observability"
	"github.com/mohammed-shakir/gridslice/internal/dataset"
	"github.com/mohammed-shakir/gridslice/internal/grid"
	"github.com/mohammed-shakir/gridslice/internal/hotness"
	"github.com/mohammed-shakir/gridslice/internal/query"
	"github.com/mohammed-shakir/gridslice/internal/rects"
)

// Engine answers validated queries.
type Engine interface {
	Search(ctx context.Context, q query.Query) (query.Result, error)
	Rectangles(ctx context.Context, q query.Query, mode rects.Mode) (query.RectResult, error)
	Stats(ctx context.Context, q query.Query) (query.Stats, error)
}

// Catalog reports what can be served.
type Catalog interface {
	Manifest() *dataset.Manifest
	Inventory(ctx context.Context) []dataset.InventoryItem
	ResidentKeys() []dataset.Key
	Hottest(n int) []hotness.Entry[dataset.Key]
	TotalResidentBytes() int64
}

type Handlers struct {
	engine  Engine
	catalog Catalog
	logger  *slog.Logger
}

func New(engine Engine, catalog Catalog, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{engine: engine, catalog: catalog, logger: logger}
}

// Mount registers the query routes on r.
func (h *Handlers) Mount(r chi.Router) {
	r.Get("/data", h.observe("/data", h.data))
	r.Get("/rectangles", h.observe("/rectangles", h.rectangles))
	r.Get("/stats", h.observe("/stats", h.stats))
	r.Get("/inventory", h.observe("/inventory", h.inventory))
}

func (h *Handlers) observe(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next(sw, r)
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

type dataResponse struct {
	SWCorner     grid.LatLon `json:"swCorner"`
	PointsPerRow int         `json:"pointsPerRow"`
	Res          int         `json:"pointsPerDegree"`
	RequestedRes int         `json:"requestedPointsPerDegree"`
	Base64       string      `json:"base64String"`
}

func (h *Handlers) data(w http.ResponseWriter, r *http.Request) {
	q, err := ParseQuery(r.URL.Query(), h.catalog.Manifest())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.engine.Search(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{
		SWCorner:     res.SWCorner,
		PointsPerRow: res.PointsPerRow,
		Res:          int(res.Res),
		RequestedRes: int(res.RequestedRes),
		Base64:       res.Base64(),
	})
}

type rectanglesResponse struct {
	SWCorner     grid.LatLon `json:"swCorner"`
	Res          int         `json:"pointsPerDegree"`
	RequestedRes int         `json:"requestedPointsPerDegree"`
	Mode         string      `json:"mode"`
	Rectangles   []string    `json:"rectangles"`
}

func (h *Handlers) rectangles(w http.ResponseWriter, r *http.Request) {
	vals := r.URL.Query()
	q, err := ParseQuery(vals, h.catalog.Manifest())
	mode, merr := rects.ParseMode(vals.Get("mode"))
	if merr != nil {
		ve, _ := err.(*ValidationError)
		if ve == nil {
			ve = &ValidationError{}
		}
		ve.Fields = append(ve.Fields, FieldError{Field: "mode", Value: vals.Get("mode"), Reason: "must be latlon or indices"})
		err = ve
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.engine.Rectangles(r.Context(), q, mode)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rectanglesResponse{
		SWCorner:     res.SWCorner,
		Res:          int(res.Res),
		RequestedRes: int(res.RequestedRes),
		Mode:         res.Mode.String(),
		Rectangles:   rects.Strings(res.Rectangles),
	})
}

func (h *Handlers) stats(w http.ResponseWriter, r *http.Request) {
	q, err := ParseQuery(r.URL.Query(), h.catalog.Manifest())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	st, err := h.engine.Stats(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type yearSpan struct {
	First int `json:"first"`
	Last  int `json:"last"`
}

type calendarMonth struct {
	Month       int   `json:"month"`
	Resolutions []int `json:"resolutions"`
}

type calendarYear struct {
	Year   int             `json:"year"`
	Months []calendarMonth `json:"months"`
}

type inventoryResponse struct {
	Years         *yearSpan                    `json:"years"`
	Calendar      []calendarYear               `json:"calendar"`
	ResidentBytes int64                        `json:"residentBytes"`
	Resident      []string                     `json:"resident"`
	Datasets      []dataset.InventoryItem      `json:"datasets"`
	Hottest       []hotness.Entry[dataset.Key] `json:"hottest"`
}

func (h *Handlers) inventory(w http.ResponseWriter, r *http.Request) {
	m := h.catalog.Manifest()
	out := inventoryResponse{
		Calendar:      []calendarYear{},
		ResidentBytes: h.catalog.TotalResidentBytes(),
		Resident:      []string{},
		Datasets:      h.catalog.Inventory(r.Context()),
		Hottest:       h.catalog.Hottest(10),
	}
	if first, last, ok := m.YearRange(); ok {
		out.Years = &yearSpan{First: first, Last: last}
		for y := first; y <= last; y++ {
			months := m.Months(y)
			if len(months) == 0 {
				continue
			}
			cy := calendarYear{Year: y}
			for _, mo := range months {
				cm := calendarMonth{Month: mo}
				for _, res := range m.Resolutions(y, mo) {
					cm.Resolutions = append(cm.Resolutions, int(res))
				}
				cy.Months = append(cy.Months, cm)
			}
			out.Calendar = append(out.Calendar, cy)
		}
	}
	for _, k := range h.catalog.ResidentKeys() {
		out.Resident = append(out.Resident, k.String())
	}
	if out.Hottest == nil {
		out.Hottest = []hotness.Entry[dataset.Key]{}
	}
	writeJSON(w, http.StatusOK, out)
}

type errorResponse struct {
	Error  string       `json:"error"`
	Fields []FieldError `json:"fields,omitempty"`
}

// StatusFor maps a query error to its HTTP status.
func StatusFor(err error) int {
	var (
		ve *ValidationError
		ie *query.IndexOutOfRangeError
		se *dataset.SizeError
		ye *dataset.SymbolError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, dataset.ErrNotLoadable):
		return http.StatusNotFound
	case errors.Is(err, dataset.ErrNotResident):
		return http.StatusServiceUnavailable
	case errors.As(err, &ie), errors.As(err, &se), errors.As(err, &ye):
		return http.StatusInternalServerError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusFor(err)
	out := errorResponse{Error: err.Error()}
	var ve *ValidationError
	if errors.As(err, &ve) {
		out.Error = "invalid request"
		out.Fields = ve.Fields
	}
	switch {
	case code == http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
		h.logger.DebugContext(r.Context(), "dataset not resident", "path", r.URL.Path, "err", err)
	case code >= 500:
		h.logger.ErrorContext(r.Context(), "query failed", "path", r.URL.Path, "err", err)
	default:
		h.logger.DebugContext(r.Context(), "query rejected", "path", r.URL.Path, "status", code, "err", err)
	}
	writeJSON(w, code, out)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
