// Package hotness tracks how often each dataset is asked for.
package hotness

// Entry is one key and its score at the time of the call.
type Entry[K comparable] struct {
	Key   K       `json:"key"`
	Score float64 `json:"score"`
}

// Interface scores demand per key.
type Interface[K comparable] interface {
	Inc(key K)
	Score(key K) float64
	Reset(keys ...K)
	// Top returns up to n keys by descending score; n <= 0 returns all.
	Top(n int) []Entry[K]
}
