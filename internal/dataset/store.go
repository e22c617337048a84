package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/gridslice/internal/core/observability"
	"github.com/mohammed-shakir/gridslice/internal/grid"
	"github.com/mohammed-shakir/gridslice/internal/hotness"
	"github.com/mohammed-shakir/gridslice/internal/hotness/expdecay"
)

// LoadInfo describes one completed load.
type LoadInfo struct {
	Key      Key
	Bytes    int
	Duration time.Duration
	Reload   bool
}

// LoadListener is told about every dataset that becomes resident.
type LoadListener interface {
	DatasetLoaded(LoadInfo)
}

// Invalidator is implemented by sources that keep their own copy of a
// location (BlobCache).
type Invalidator interface {
	Invalidate(ctx context.Context, location string) error
}

type Options struct {
	// Eager resolutions are loaded by Preload and never evicted.
	Eager       []grid.Resolution
	MaxLazy     int
	Workers     int
	QueueSize   int
	LoadTimeout time.Duration
	HalfLife    time.Duration
	// Demand scores requests per key; nil uses an exponential decay
	// tracker with HalfLife, sharded by month.
	Demand      hotness.Interface[Key]
	Logger      *slog.Logger
	Listener    LoadListener
}

func (o *Options) defaults() {
	if o.Eager == nil {
		o.Eager = []grid.Resolution{grid.Res1, grid.Res2, grid.Res4}
	}
	if o.MaxLazy <= 0 {
		o.MaxLazy = 8
	}
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.LoadTimeout <= 0 {
		o.LoadTimeout = 2 * time.Minute
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Demand == nil {
		o.Demand = expdecay.New(expdecay.Config[Key]{
			HalfLife: o.HalfLife,
			Shards:   12,
			ShardOf:  func(k Key) int { return k.Month - 1 },
			Less:     Key.Less,
		})
	}
}

// Store is the resident dataset cache. Get never blocks on I/O: a miss
// schedules one background load per key and answers with the best resident
// resolution for the same year and month.
type Store struct {
	manifest *Manifest
	src      Source
	opts     Options
	eager    map[grid.Resolution]bool
	logger   *slog.Logger
	demand   hotness.Interface[Key]

	mu       sync.RWMutex
	pinned   map[Key]*Dataset
	inflight map[Key]bool
	lazy     *lru.Cache[Key, *Dataset]

	bytes atomic.Int64
	ready atomic.Bool

	jobs   chan job
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type job struct {
	key    Key
	reload bool
}

func NewStore(m *Manifest, src Source, opts Options) (*Store, error) {
	opts.defaults()
	s := &Store{
		manifest: m,
		src:      src,
		opts:     opts,
		eager:    make(map[grid.Resolution]bool, len(opts.Eager)),
		logger:   opts.Logger,
		demand:   opts.Demand,
		pinned:   make(map[Key]*Dataset),
		inflight: make(map[Key]bool),
		jobs:     make(chan job, opts.QueueSize),
	}
	for _, r := range opts.Eager {
		s.eager[r] = true
	}
	lazy, err := lru.NewWithEvict(opts.MaxLazy, func(k Key, d *Dataset) {
		s.bytes.Add(-int64(d.Len()))
		observability.IncDatasetEviction()
		s.logger.Info("dataset evicted", "dataset", k.String(), "bytes", d.Len())
	})
	if err != nil {
		return nil, fmt.Errorf("lazy dataset cache: %w", err)
	}
	s.lazy = lazy
	return s, nil
}

func (s *Store) Manifest() *Manifest { return s.manifest }

// Start runs the background load workers until ctx is done or Close is
// called.
func (s *Store) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(s.opts.Workers)
	for range s.opts.Workers {
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case j := <-s.jobs:
					_ = s.load(ctx, j.key, j.reload)
				}
			}
		}()
	}
}

func (s *Store) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Preload synchronously loads every manifest key at an eager resolution.
// Keys already resident or claimed by a background load are skipped.
// Failures are logged and returned joined; the store is usable either way.
func (s *Store) Preload(ctx context.Context) error {
	var keys []Key
	for _, k := range s.manifest.Keys() {
		if s.eager[k.Res] && s.claim(k, false) {
			keys = append(keys, k)
		}
	}

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	sem := make(chan struct{}, s.opts.Workers)
	for _, k := range keys {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer func() { <-sem; wg.Done() }()
			if err := s.load(ctx, k, false); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.ready.Store(true)
	s.logger.Info("eager datasets loaded",
		"sets", len(keys)-len(errs), "failed", len(errs), "bytes", s.TotalResidentBytes())
	return errors.Join(errs...)
}

// Ready reports whether Preload has finished.
func (s *Store) Ready() bool { return s.ready.Load() }

// Readiness is Ready plus the resident count, for the readiness probe.
func (s *Store) Readiness() (bool, int) {
	s.mu.RLock()
	n := len(s.pinned)
	s.mu.RUnlock()
	return s.Ready(), n + s.lazy.Len()
}

func (s *Store) Loadable(k Key) bool { return s.manifest.Loadable(k) }

// Has reports whether k is resident.
func (s *Store) Has(k Key) bool {
	_, ok := s.resident(k, false)
	return ok
}

func (s *Store) resident(k Key, touch bool) (*Dataset, bool) {
	s.mu.RLock()
	d, ok := s.pinned[k]
	s.mu.RUnlock()
	if ok {
		return d, true
	}
	if touch {
		return s.lazy.Get(k)
	}
	return s.lazy.Peek(k)
}

// BestAvailable returns the highest resident resolution for year and month.
func (s *Store) BestAvailable(year, month int) (grid.Resolution, bool) {
	res := grid.Resolutions()
	for i := len(res) - 1; i >= 0; i-- {
		if s.Has(Key{Year: year, Month: month, Res: res[i]}) {
			return res[i], true
		}
	}
	return 0, false
}

// Get returns the dataset for k, or the best resident stand-in for the same
// year and month while k loads in the background. The returned dataset's
// Key says which resolution was served.
func (s *Store) Get(k Key) (*Dataset, error) {
	if !s.manifest.Loadable(k) {
		observability.IncDatasetRequest("not_loadable")
		return nil, fmt.Errorf("%w: %s", ErrNotLoadable, k)
	}
	s.demand.Inc(k)

	if d, ok := s.resident(k, true); ok {
		observability.IncDatasetRequest("exact")
		return d, nil
	}
	s.enqueue(k, false)

	if r, ok := s.BestAvailable(k.Year, k.Month); ok {
		if d, ok := s.resident(Key{Year: k.Year, Month: k.Month, Res: r}, true); ok {
			observability.IncDatasetRequest("fallback")
			return d, nil
		}
	}
	observability.IncDatasetRequest("not_resident")
	return nil, fmt.Errorf("%w: %s", ErrNotResident, k)
}

// Prefetch schedules a load of k if it is loadable and not resident.
func (s *Store) Prefetch(k Key) bool {
	if !s.manifest.Loadable(k) {
		return false
	}
	return s.enqueue(k, false)
}

// PrefetchLatest queues every loadable key of the n most recent year-month
// pairs in the manifest and returns how many loads were queued.
func (s *Store) PrefetchLatest(n int) int {
	if n <= 0 {
		return 0
	}
	keys := s.manifest.Keys()
	seen := make(map[[2]int]bool, n)
	queued := 0
	for i := len(keys) - 1; i >= 0; i-- {
		k := keys[i]
		ym := [2]int{k.Year, k.Month}
		if !seen[ym] {
			if len(seen) == n {
				break
			}
			seen[ym] = true
		}
		if s.Prefetch(k) {
			queued++
		}
	}
	return queued
}

// Replace points k at a new location. A resident copy keeps serving until
// the reload lands; eager keys are loaded even when not yet resident.
func (s *Store) Replace(ctx context.Context, k Key, location string) bool {
	prev, replaced := s.manifest.Add(k, location)
	if inv, ok := s.src.(Invalidator); ok && replaced {
		if err := inv.Invalidate(ctx, prev); err != nil {
			s.logger.WarnContext(ctx, "invalidate previous location", "dataset", k.String(), "err", err)
		}
	}
	if s.Has(k) {
		return s.enqueue(k, true)
	}
	if s.eager[k.Res] {
		return s.enqueue(k, false)
	}
	return false
}

// Withdraw removes k from the manifest, drops any resident copy and its
// blob, and forgets its demand. It reports whether k was loadable. A load
// already in flight may still install k; Get never serves it once k is
// not loadable.
func (s *Store) Withdraw(ctx context.Context, k Key) bool {
	prev, ok := s.manifest.Remove(k)
	if !ok {
		return false
	}
	if inv, isInv := s.src.(Invalidator); isInv {
		if err := inv.Invalidate(ctx, prev); err != nil {
			s.logger.WarnContext(ctx, "invalidate withdrawn location", "dataset", k.String(), "err", err)
		}
	}
	s.Evict(k)
	s.demand.Reset(k)
	return true
}

// Evict drops k from memory. Borrowed copies stay valid.
func (s *Store) Evict(k Key) bool {
	s.mu.Lock()
	d, ok := s.pinned[k]
	if ok {
		delete(s.pinned, k)
		s.bytes.Add(-int64(d.Len()))
	}
	s.mu.Unlock()
	if !ok {
		ok = s.lazy.Remove(k)
	}
	s.publishGauges()
	return ok
}

func (s *Store) TotalResidentBytes() int64 { return s.bytes.Load() }

// enqueue never blocks. It returns false when k is already loading, already
// resident (unless reload), or the queue is full.
func (s *Store) enqueue(k Key, reload bool) bool {
	if !s.claim(k, reload) {
		return false
	}
	select {
	case s.jobs <- job{key: k, reload: reload}:
		s.logger.Debug("dataset load queued", "dataset", k.String(), "reload", reload)
		return true
	default:
		s.mu.Lock()
		delete(s.inflight, k)
		s.mu.Unlock()
		observability.IncLoadQueueDropped()
		s.logger.Warn("dataset load queue full", "dataset", k.String())
		return false
	}
}

// claim marks k in flight. It fails when k is already loading or, unless
// reload, already resident. Every successful claim is released by load.
func (s *Store) claim(k Key, reload bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[k] {
		return false
	}
	if !reload {
		if _, ok := s.pinned[k]; ok || s.lazy.Contains(k) {
			return false
		}
	}
	s.inflight[k] = true
	return true
}

func (s *Store) load(ctx context.Context, k Key, reload bool) error {
	defer func() {
		s.mu.Lock()
		delete(s.inflight, k)
		s.mu.Unlock()
	}()

	loc, ok := s.manifest.Location(k)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotLoadable, k)
	}
	lctx, cancel := context.WithTimeout(ctx, s.opts.LoadTimeout)
	defer cancel()

	start := time.Now()
	raw, err := s.src.Fetch(lctx, loc)
	var d *Dataset
	if err == nil {
		d, err = New(k, raw)
	}
	dur := time.Since(start)
	observability.ObserveDatasetLoad(int(k.Res), sourceLabel(s.src), err, dur.Seconds())
	if err != nil {
		err = fmt.Errorf("load %s from %s: %w", k, loc, err)
		s.logger.Error("dataset load failed", "dataset", k.String(), "location", loc, "err", err)
		return err
	}

	s.install(d)
	s.logger.Info("dataset loaded",
		"dataset", k.String(), "bytes", d.Len(), "dur", dur.String(), "reload", reload)
	if s.opts.Listener != nil {
		s.opts.Listener.DatasetLoaded(LoadInfo{Key: k, Bytes: d.Len(), Duration: dur, Reload: reload})
	}
	return nil
}

func (s *Store) install(d *Dataset) {
	k := d.Key
	s.mu.Lock()
	if s.eager[k.Res] {
		if old, ok := s.pinned[k]; ok {
			s.bytes.Add(-int64(old.Len()))
		}
		s.pinned[k] = d
		s.bytes.Add(int64(d.Len()))
	} else {
		if old, ok := s.lazy.Peek(k); ok {
			s.bytes.Add(-int64(old.Len()))
		}
		s.bytes.Add(int64(d.Len()))
		s.lazy.Add(k, d)
	}
	s.mu.Unlock()
	s.publishGauges()
}

func (s *Store) publishGauges() {
	s.mu.RLock()
	pinned := len(s.pinned)
	s.mu.RUnlock()
	observability.SetResident(s.bytes.Load(), pinned, s.lazy.Len())
}

func sourceLabel(src Source) string {
	switch src.(type) {
	case *BlobCache:
		return "redis"
	case FileSource, *FileSource:
		return "file"
	}
	return "other"
}

// InventoryItem describes one loadable key.
type InventoryItem struct {
	Key      Key    `json:"key"`
	Location string `json:"location"`
	Resident bool   `json:"resident"`
	Tier     string `json:"tier"`
	Bytes    int    `json:"bytes"`
	Loading  bool   `json:"loading"`
	// BlobCached is set when the source keeps its own copy of Location.
	BlobCached bool    `json:"blobCached"`
	Demand     float64 `json:"demand"`
}

// BlobReporter is implemented by sources that can tell which locations
// they hold a copy of (BlobCache).
type BlobReporter interface {
	Cached(ctx context.Context, locations []string) (map[string]bool, error)
}

// Inventory lists every loadable key with its residency state. A failing
// blob lookup leaves BlobCached false.
func (s *Store) Inventory(ctx context.Context) []InventoryItem {
	keys := s.manifest.Keys()
	out := make([]InventoryItem, 0, len(keys))
	cached := s.blobCached(ctx, keys)
	for _, k := range keys {
		loc, _ := s.manifest.Location(k)
		it := InventoryItem{
			Key:        k,
			Location:   loc,
			Tier:       "lazy",
			BlobCached: cached[loc],
			Demand:     s.demand.Score(k),
		}
		if s.eager[k.Res] {
			it.Tier = "pinned"
		}
		if d, ok := s.resident(k, false); ok {
			it.Resident = true
			it.Bytes = d.Len()
		}
		s.mu.RLock()
		it.Loading = s.inflight[k]
		s.mu.RUnlock()
		out = append(out, it)
	}
	return out
}

func (s *Store) blobCached(ctx context.Context, keys []Key) map[string]bool {
	br, ok := s.src.(BlobReporter)
	if !ok || len(keys) == 0 {
		return nil
	}
	locs := make([]string, 0, len(keys))
	for _, k := range keys {
		loc, _ := s.manifest.Location(k)
		locs = append(locs, loc)
	}
	cached, err := br.Cached(ctx, locs)
	if err != nil {
		s.logger.WarnContext(ctx, "blob cache lookup failed", "err", err)
		return nil
	}
	return cached
}

// Hottest returns up to n keys by decayed demand.
func (s *Store) Hottest(n int) []hotness.Entry[Key] {
	return s.demand.Top(n)
}

// ResidentKeys lists resident keys in order.
func (s *Store) ResidentKeys() []Key {
	s.mu.RLock()
	out := make([]Key, 0, len(s.pinned)+s.lazy.Len())
	for k := range s.pinned {
		out = append(out, k)
	}
	s.mu.RUnlock()
	out = append(out, s.lazy.Keys()...)
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
