package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/mohammed-shakir/gridslice/internal/grid"
)

// Entry is one manifest record as stored in manifest.json or the
// dataset_manifest table.
type Entry struct {
	Year  int    `json:"year" db:"year"`
	Month int    `json:"month" db:"month"`
	Res   int    `json:"res" db:"res"`
	File  string `json:"file" db:"file"`
}

func (e Entry) Key() Key {
	return Key{Year: e.Year, Month: e.Month, Res: grid.Resolution(e.Res)}
}

func (e Entry) validate() error {
	if e.Month < 1 || e.Month > 12 {
		return fmt.Errorf("month %d out of range", e.Month)
	}
	if !grid.Resolution(e.Res).Valid() {
		return fmt.Errorf("unsupported resolution %d", e.Res)
	}
	if e.File == "" {
		return errors.New("empty file")
	}
	return nil
}

// Manifest maps keys to storage locations. Safe for concurrent use; entries
// are only added after startup.
type Manifest struct {
	mu  sync.RWMutex
	loc map[Key]string
}

func NewManifest(entries ...Entry) (*Manifest, error) {
	m := &Manifest{loc: make(map[Key]string, len(entries))}
	for i, e := range entries {
		if err := e.validate(); err != nil {
			return nil, fmt.Errorf("manifest entry %d (%s): %w", i, e.Key(), err)
		}
		m.loc[e.Key()] = e.File
	}
	return m, nil
}

// LoadManifestFile reads a JSON array of entries.
func LoadManifestFile(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	return NewManifest(entries...)
}

// OpenPostgres connects to the manifest database.
func OpenPostgres(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect manifest db: %w", err)
	}
	return db, nil
}

// LoadManifestPostgres reads every row of dataset_manifest.
func LoadManifestPostgres(ctx context.Context, db *sqlx.DB) (*Manifest, error) {
	const query = `
		SELECT year, month, res, file
		FROM dataset_manifest
		ORDER BY year, month, res`

	var entries []Entry
	if err := db.SelectContext(ctx, &entries, query); err != nil {
		return nil, fmt.Errorf("failed to query dataset manifest: %w", err)
	}
	return NewManifest(entries...)
}

// UpsertPostgres records e in dataset_manifest.
func UpsertPostgres(ctx context.Context, db *sqlx.DB, e Entry) error {
	if err := e.validate(); err != nil {
		return fmt.Errorf("manifest entry %s: %w", e.Key(), err)
	}
	const stmt = `
		INSERT INTO dataset_manifest (year, month, res, file)
		VALUES (:year, :month, :res, :file)
		ON CONFLICT (year, month, res) DO UPDATE SET file = EXCLUDED.file`

	if _, err := db.NamedExecContext(ctx, stmt, e); err != nil {
		return fmt.Errorf("failed to upsert manifest entry %s: %w", e.Key(), err)
	}
	return nil
}

// DeletePostgres removes k from dataset_manifest. Deleting a missing row is
// not an error.
func DeletePostgres(ctx context.Context, db *sqlx.DB, k Key) error {
	const stmt = `DELETE FROM dataset_manifest WHERE year = $1 AND month = $2 AND res = $3`

	if _, err := db.ExecContext(ctx, stmt, k.Year, k.Month, int(k.Res)); err != nil {
		return fmt.Errorf("failed to delete manifest entry %s: %w", k, err)
	}
	return nil
}

// SaveFile writes the manifest as a JSON array sorted by key.
func (m *Manifest) SaveFile(path string) error {
	b, err := json.MarshalIndent(m.Entries(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func (m *Manifest) Location(k Key) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.loc[k]
	return l, ok
}

func (m *Manifest) Loadable(k Key) bool {
	_, ok := m.Location(k)
	return ok
}

// Add registers or replaces a location. It returns the previous location,
// if any.
func (m *Manifest) Add(k Key, location string) (prev string, replaced bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, replaced = m.loc[k]
	m.loc[k] = location
	return prev, replaced
}

// Remove drops k and returns the location it had.
func (m *Manifest) Remove(k Key) (prev string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok = m.loc[k]
	delete(m.loc, k)
	return prev, ok
}

func (m *Manifest) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.loc)
}

// Keys returns every loadable key in order.
func (m *Manifest) Keys() []Key {
	m.mu.RLock()
	out := make([]Key, 0, len(m.loc))
	for k := range m.loc {
		out = append(out, k)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func (m *Manifest) Entries() []Entry {
	keys := m.Keys()
	out := make([]Entry, 0, len(keys))
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, k := range keys {
		out = append(out, Entry{Year: k.Year, Month: k.Month, Res: int(k.Res), File: m.loc[k]})
	}
	return out
}

// Months lists the months with at least one resolution in year.
func (m *Manifest) Months(year int) []int {
	seen := map[int]bool{}
	var out []int
	for _, k := range m.Keys() {
		if k.Year == year && !seen[k.Month] {
			seen[k.Month] = true
			out = append(out, k.Month)
		}
	}
	return out
}

func (m *Manifest) Resolutions(year, month int) []grid.Resolution {
	var out []grid.Resolution
	for _, k := range m.Keys() {
		if k.Year == year && k.Month == month {
			out = append(out, k.Res)
		}
	}
	return out
}

// YearRange returns the first and last year present; ok is false for an
// empty manifest.
func (m *Manifest) YearRange() (first, last int, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for k := range m.loc {
		if !ok || k.Year < first {
			first = k.Year
		}
		if !ok || k.Year > last {
			last = k.Year
		}
		ok = true
	}
	return first, last, ok
}
