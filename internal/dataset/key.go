// Package dataset owns the encoded rasters: where they live (Manifest), how
// their bytes are fetched (Source, BlobCache) and which of them are resident
// in memory (Store).
package dataset

import (
	"errors"
	"fmt"

	"github.com/mohammed-shakir/gridslice/internal/grid"
)

// Key identifies one dataset.
type Key struct {
	Year  int             `json:"year"`
	Month int             `json:"month"`
	Res   grid.Resolution `json:"res"`
}

func (k Key) String() string {
	return fmt.Sprintf("year=%d month=%d res=%d", k.Year, k.Month, int(k.Res))
}

// Less orders keys by year, month, then resolution.
func (k Key) Less(o Key) bool {
	if k.Year != o.Year {
		return k.Year < o.Year
	}
	if k.Month != o.Month {
		return k.Month < o.Month
	}
	return k.Res < o.Res
}

var (
	// ErrNotLoadable means the key is not in the manifest.
	ErrNotLoadable = errors.New("dataset not loadable")
	// ErrNotResident means the key is loadable but neither it nor any other
	// resolution for its year and month is in memory yet. Retry later.
	ErrNotResident = errors.New("dataset not resident")
)

// SizeError reports a dataset whose length is not FullSetSize(res).
type SizeError struct {
	Key      Key
	Expected int
	Actual   int
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("dataset %s: expected %d symbols, got %d", e.Key, e.Expected, e.Actual)
}

// SymbolError reports a byte outside the alphabet.
type SymbolError struct {
	Key    Key
	Offset int
	Char   byte
}

func (e *SymbolError) Error() string {
	return fmt.Sprintf("dataset %s: invalid symbol %q at offset %d", e.Key, e.Char, e.Offset)
}
