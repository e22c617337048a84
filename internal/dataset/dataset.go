package dataset

import (
	"time"

	"github.com/mohammed-shakir/gridslice/internal/codec"
)

// Dataset is an immutable row-major symbol string for one key. Queries
// borrow it without copying; it stays valid after the store drops it.
type Dataset struct {
	Key      Key
	Symbols  string
	LoadedAt time.Time
}

// New validates raw and wraps it.
func New(key Key, raw []byte) (*Dataset, error) {
	if err := Validate(key, raw); err != nil {
		return nil, err
	}
	return &Dataset{Key: key, Symbols: string(raw), LoadedAt: time.Now()}, nil
}

// Validate checks length and alphabet.
func Validate(key Key, raw []byte) error {
	if want := key.Res.FullSetSize(); len(raw) != want {
		return &SizeError{Key: key, Expected: want, Actual: len(raw)}
	}
	if i := codec.FirstInvalid(string(raw)); i >= 0 {
		return &SymbolError{Key: key, Offset: i, Char: raw[i]}
	}
	return nil
}

func (d *Dataset) Len() int { return len(d.Symbols) }
