package dataset

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/gridslice/internal/cache/redisstore"
	"github.com/mohammed-shakir/gridslice/internal/grid"
)

func TestCompressionFor(t *testing.T) {
	require.Equal(t, Zstd, CompressionFor("a/b/2001.b64.zst"))
	require.Equal(t, S2, CompressionFor("x.S2"))
	require.Equal(t, LZ4, CompressionFor("x.lz4"))
	require.Equal(t, None, CompressionFor("x.b64"))
}

func TestFileSource_DecompressesByExtension(t *testing.T) {
	dir := t.TempDir()
	want := []byte(strings.Repeat("AAAAB/+9", 4000))

	for _, name := range []string{"plain.b64", "set.b64.zst", "set.b64.s2", "set.b64.lz4"} {
		enc, err := Compress(CompressionFor(name), want)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), enc, 0o644))

		got, err := FileSource{Dir: dir}.Fetch(context.Background(), name)
		require.NoError(t, err, name)
		require.Equal(t, want, got, name)
	}

	_, err := FileSource{Dir: dir}.Fetch(context.Background(), "missing.b64")
	require.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.zst"), []byte("not zstd"), 0o644))
	_, err = FileSource{Dir: dir}.Fetch(context.Background(), "junk.zst")
	require.Error(t, err)
}

func TestFileSource_AbsolutePath(t *testing.T) {
	p := filepath.Join(t.TempDir(), "abs.b64")
	require.NoError(t, os.WriteFile(p, []byte("AB"), 0o644))
	require.Equal(t, p, FileSource{Dir: "/elsewhere"}.Path(p))
	got, err := FileSource{Dir: "/elsewhere"}.Fetch(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, "AB", string(got))
}

func TestBlobCache_MissThenHitThenInvalidate(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rc, err := redisstore.New(ctx, mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	inner := newFakeSource()
	inner.put("r1.b64", filled(grid.Res1, 'Q'))
	bc := NewBlobCache(rc, inner, time.Hour, nil)

	got, err := bc.Fetch(ctx, "r1.b64")
	require.NoError(t, err)
	require.Equal(t, filled(grid.Res1, 'Q'), got)
	require.True(t, mr.Exists(BlobKey("r1.b64")))

	got, err = bc.Fetch(ctx, "r1.b64")
	require.NoError(t, err)
	require.Equal(t, filled(grid.Res1, 'Q'), got)
	require.Equal(t, 1, inner.count("r1.b64"))

	cached, err := bc.Cached(ctx, []string{"r1.b64", "other"})
	require.NoError(t, err)
	require.Equal(t, map[string]bool{"r1.b64": true, "other": false}, cached)

	require.NoError(t, bc.Invalidate(ctx, "r1.b64"))
	_, err = bc.Fetch(ctx, "r1.b64")
	require.NoError(t, err)
	require.Equal(t, 2, inner.count("r1.b64"))

	_, err = bc.Fetch(ctx, "missing")
	require.Error(t, err)
}

func TestBlobCache_HitRefreshesTTL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	ctx := context.Background()
	rc, err := redisstore.New(ctx, mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	inner := newFakeSource()
	inner.put("r2.b64", []byte("ABCD"))
	bc := NewBlobCache(rc, inner, time.Hour, nil)

	_, err = bc.Fetch(ctx, "r2.b64")
	require.NoError(t, err)
	mr.FastForward(40 * time.Minute)
	_, err = bc.Fetch(ctx, "r2.b64")
	require.NoError(t, err)
	mr.FastForward(40 * time.Minute)

	require.True(t, mr.Exists(BlobKey("r2.b64")))
	require.Equal(t, 1, inner.count("r2.b64"))
}

func TestBlobCache_CorruptEntryFallsThrough(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	ctx := context.Background()
	rc, err := redisstore.New(ctx, mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	require.NoError(t, mr.Set(BlobKey("x"), "\xff\xff garbage"))
	inner := newFakeSource()
	inner.put("x", []byte("ABCD"))

	got, err := NewBlobCache(rc, inner, 0, nil).Fetch(ctx, "x")
	require.NoError(t, err)
	require.Equal(t, "ABCD", string(got))
	require.Equal(t, 1, inner.count("x"))
}

func TestValidate(t *testing.T) {
	key := Key{Year: 2000, Month: 1, Res: grid.Res1}
	require.NoError(t, Validate(key, filled(grid.Res1, 'A')))

	d, err := New(key, filled(grid.Res1, '/'))
	require.NoError(t, err)
	require.Equal(t, grid.Res1.FullSetSize(), d.Len())
	require.Equal(t, "year=2000 month=1 res=1", d.Key.String())
}
