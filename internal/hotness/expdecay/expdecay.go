// Package expdecay scores demand with exponential decay: every hit adds one
// and the total halves each half-life.
package expdecay

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/mohammed-shakir/gridslice/internal/hotness"
)

const defaultHalfLife = 10 * time.Minute

// Config shapes a Tracker. ShardOf may return any int; it is reduced
// modulo Shards. Less breaks score ties in Top.
type Config[K comparable] struct {
	HalfLife time.Duration
	Shards   int
	ShardOf  func(K) int
	Less     func(a, b K) bool
}

// Tracker is safe for concurrent use.
type Tracker[K comparable] struct {
	cfg    Config[K]
	now    func() time.Time
	shards []shard[K]
}

type shard[K comparable] struct {
	mu   sync.Mutex
	hits map[K]hit
}

// hit is a score as of at.
type hit struct {
	score float64
	at    time.Time
}

var _ hotness.Interface[int] = (*Tracker[int])(nil)

func New[K comparable](cfg Config[K]) *Tracker[K] {
	if cfg.HalfLife <= 0 {
		cfg.HalfLife = defaultHalfLife
	}
	if cfg.Shards <= 0 || cfg.ShardOf == nil {
		cfg.Shards, cfg.ShardOf = 1, func(K) int { return 0 }
	}
	t := &Tracker[K]{cfg: cfg, now: time.Now, shards: make([]shard[K], cfg.Shards)}
	for i := range t.shards {
		t.shards[i].hits = make(map[K]hit)
	}
	return t
}

func (t *Tracker[K]) Inc(key K) {
	s := t.shard(key)
	now := t.now()
	s.mu.Lock()
	h := s.hits[key]
	s.hits[key] = hit{score: t.at(h, now) + 1, at: now}
	s.mu.Unlock()
}

func (t *Tracker[K]) Score(key K) float64 {
	s := t.shard(key)
	s.mu.Lock()
	h, ok := s.hits[key]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	return t.at(h, t.now())
}

// Reset forgets keys, for datasets that are no longer served.
func (t *Tracker[K]) Reset(keys ...K) {
	for _, k := range keys {
		s := t.shard(k)
		s.mu.Lock()
		delete(s.hits, k)
		s.mu.Unlock()
	}
}

// Top returns up to n keys by descending score; n <= 0 returns all of them.
func (t *Tracker[K]) Top(n int) []hotness.Entry[K] {
	now := t.now()
	var out []hotness.Entry[K]
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		for k, h := range s.hits {
			out = append(out, hotness.Entry[K]{Key: k, Score: t.at(h, now)})
		}
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score || t.cfg.Less == nil {
			return out[i].Score > out[j].Score
		}
		return t.cfg.Less(out[i].Key, out[j].Key)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func (t *Tracker[K]) size() int {
	total := 0
	for i := range t.shards {
		t.shards[i].mu.Lock()
		total += len(t.shards[i].hits)
		t.shards[i].mu.Unlock()
	}
	return total
}

// at decays h to now. Clock steps backwards leave the score unchanged.
func (t *Tracker[K]) at(h hit, now time.Time) float64 {
	dt := now.Sub(h.at)
	if h.score == 0 || dt <= 0 {
		return h.score
	}
	return h.score * math.Exp2(-dt.Seconds()/t.cfg.HalfLife.Seconds())
}

func (t *Tracker[K]) shard(key K) *shard[K] {
	i := t.cfg.ShardOf(key) % len(t.shards)
	if i < 0 {
		i += len(t.shards)
	}
	return &t.shards[i]
}
