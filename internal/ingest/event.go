// Package ingest applies dataset-published events: a new or rebuilt file for
// one (year, month, resolution) replaces the manifest entry and, when the
// dataset is resident, reloads it. A withdrawn event removes the entry.
package ingest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mohammed-shakir/gridslice/internal/dataset"
	"github.com/mohammed-shakir/gridslice/internal/grid"
)

type Event struct {
	Version   int       `json:"version"`
	Year      int       `json:"year"`
	Month     int       `json:"month"`
	Res       int       `json:"res"`
	File      string    `json:"file"`
	Revision  uint64    `json:"revision,omitempty"`
	TS        time.Time `json:"ts"`
	Withdrawn bool      `json:"withdrawn,omitempty"` // no file
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return errors.New("version must be 1")
	}
	if e.Year <= 0 {
		return errors.New("year is required")
	}
	if e.Month < 1 || e.Month > 12 {
		return fmt.Errorf("month %d out of range", e.Month)
	}
	if _, err := grid.ParseResolution(e.Res); err != nil {
		return err
	}
	if !e.Withdrawn && strings.TrimSpace(e.File) == "" {
		return errors.New("file is required")
	}
	if e.TS.IsZero() {
		return errors.New("ts is required")
	}
	return nil
}

func (e Event) Key() dataset.Key {
	return dataset.Key{Year: e.Year, Month: e.Month, Res: grid.Resolution(e.Res)}
}

func (e Event) Entry() dataset.Entry {
	return dataset.Entry{Year: e.Year, Month: e.Month, Res: e.Res, File: e.File}
}
