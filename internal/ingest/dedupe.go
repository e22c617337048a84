package ingest

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

type revisionDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, uint64]
}

func newRevisionDedupe(size int) *revisionDedupe {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, uint64](size)
	return &revisionDedupe{lru: c}
}

// returns true if v is greater than the last revision seen for key
func (d *revisionDedupe) shouldApply(key string, v uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(key); ok && v <= last {
		return false
	}
	d.lru.Add(key, v)
	return true
}

func (d *revisionDedupe) forget(key string) {
	d.mu.Lock()
	d.lru.Remove(key)
	d.mu.Unlock()
}
