package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/gridslice/internal/cache/redisstore"
	"github.com/mohammed-shakir/gridslice/internal/core/observability"
)

// BlobCache keeps s2-compressed copies of decoded datasets in Redis so that
// replicas and restarts skip the disk and decompression path. Redis failures
// degrade to the inner source. A hit restarts the entry's TTL.
type BlobCache struct {
	rc     *redisstore.Client
	inner  Source
	ttl    time.Duration
	logger *slog.Logger
}

var (
	_ Source       = (*BlobCache)(nil)
	_ BlobReporter = (*BlobCache)(nil)
)

func NewBlobCache(rc *redisstore.Client, inner Source, ttl time.Duration, logger *slog.Logger) *BlobCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &BlobCache{rc: rc, inner: inner, ttl: ttl, logger: logger}
}

// BlobKey is the Redis key for a location.
func BlobKey(location string) string {
	return fmt.Sprintf("dataset:%016x", xxhash.Sum64String(location))
}

func (b *BlobCache) Fetch(ctx context.Context, location string) ([]byte, error) {
	key := BlobKey(location)
	val, ok, err := b.rc.Get(ctx, key)
	switch {
	case err != nil:
		b.logger.WarnContext(ctx, "blob cache get failed", "location", location, "err", err)
	case ok:
		out, derr := Decompress(S2, val)
		if derr == nil {
			observability.IncBlobCache(true)
			if b.ttl > 0 {
				if _, err := b.rc.Expire(ctx, key, b.ttl); err != nil {
					b.logger.DebugContext(ctx, "blob cache ttl refresh failed", "location", location, "err", err)
				}
			}
			return out, nil
		}
		b.logger.WarnContext(ctx, "blob cache entry corrupt", "location", location, "err", derr)
	}
	observability.IncBlobCache(false)

	out, err := b.inner.Fetch(ctx, location)
	if err != nil {
		return nil, err
	}
	enc, err := Compress(S2, out)
	if err == nil {
		err = b.rc.Set(ctx, key, enc, b.ttl)
	}
	if err != nil {
		b.logger.WarnContext(ctx, "blob cache set failed", "location", location, "err", err)
	}
	return out, nil
}

// Invalidate drops the cached copy of location.
func (b *BlobCache) Invalidate(ctx context.Context, location string) error {
	return b.rc.Del(ctx, BlobKey(location))
}

// Cached reports which locations have a blob in Redis.
func (b *BlobCache) Cached(ctx context.Context, locations []string) (map[string]bool, error) {
	keys := make([]string, len(locations))
	for i, l := range locations {
		keys[i] = BlobKey(l)
	}
	ex, err := b.rc.Exists(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(locations))
	for i, l := range locations {
		out[l] = ex[keys[i]]
	}
	return out, nil
}
