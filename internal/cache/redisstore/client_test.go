package redisstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/gridslice/internal/core/observability"
	"github.com/mohammed-shakir/gridslice/internal/metrics"
)

// newMini connects a client to a throwaway miniredis.
func newMini(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	rc, err := New(ctx, mr.Addr(), WithPoolSize(4), WithReadTimeout(time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestNew_RequiresAddr(t *testing.T) {
	if _, err := New(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty address")
	}
}

func TestNew_UnreachableFailsPing(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := New(ctx, addr, WithDialTimeout(100*time.Millisecond)); err == nil {
		t.Fatalf("expected ping failure for closed server")
	}
}

func TestBinaryBlob_RoundTripAndExists(t *testing.T) {
	rc, _ := newMini(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	blob := []byte{0x00, 0xff, 'A', 0x1f, 0x00}
	if err := rc.Set(ctx, "dataset:00000000000000aa", blob, 5*time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := rc.Get(ctx, "dataset:00000000000000aa")
	if err != nil || !ok || string(got) != string(blob) {
		t.Fatalf("Get = %v ok=%v err=%v", got, ok, err)
	}
	if _, ok, err := rc.Get(ctx, "dataset:missing"); err != nil || ok {
		t.Fatalf("Get missing ok=%v err=%v", ok, err)
	}

	ex, err := rc.Exists(ctx, []string{"dataset:00000000000000aa", "dataset:missing"})
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !ex["dataset:00000000000000aa"] || ex["dataset:missing"] {
		t.Fatalf("unexpected exists map: %+v", ex)
	}
	if ex, err := rc.Exists(ctx, nil); err != nil || len(ex) != 0 {
		t.Fatalf("Exists(nil) = %v, %v", ex, err)
	}

	if err := rc.Del(ctx, "dataset:00000000000000aa"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, ok, _ := rc.Get(ctx, "dataset:00000000000000aa"); ok {
		t.Fatalf("blob still present after Del")
	}
	if err := rc.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestCanceledContext_FailsEveryOp(t *testing.T) {
	rc, _ := newMini(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := rc.Set(ctx, "k", []byte("v"), time.Second); err == nil {
		t.Fatalf("expected error on Set with canceled context")
	}
	if _, _, err := rc.Get(ctx, "k"); err == nil {
		t.Fatalf("expected error on Get with canceled context")
	}
	if _, err := rc.Expire(ctx, "k", time.Second); err == nil {
		t.Fatalf("expected error on Expire with canceled context")
	}
	if err := rc.Del(ctx, "k"); err == nil {
		t.Fatalf("expected error on Del with canceled context")
	}
}

func TestMetrics_RecordOps(t *testing.T) {
	p := metrics.Init(metrics.Config{})
	observability.Init(p.Registerer(), true)

	rc, _ := newMini(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_ = rc.Set(ctx, "m1", []byte("x"), time.Minute)
	_, _, _ = rc.Get(ctx, "m1")
	_, _ = rc.Expire(ctx, "m1", time.Minute)
	_ = rc.Del(ctx, "m1")

	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, op := range []string{"set", "get", "expire", "del"} {
		if !strings.Contains(body, `cache_op_total{op="`+op+`"`) {
			t.Fatalf("missing cache_op_total for %s; got:\n%s", op, body)
		}
	}
	if !strings.Contains(body, `redis_operation_duration_seconds_bucket{op="set"`) {
		t.Fatalf("missing redis_operation_duration_seconds histogram; got:\n%s", body)
	}
}
