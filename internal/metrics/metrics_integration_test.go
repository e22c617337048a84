package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mohammed-shakir/gridslice/internal/core/observability"
)

func assertHasMetricLine(t *testing.T, body, metric string, wantLabels ...string) {
	t.Helper()
	for ln := range strings.SplitSeq(body, "\n") {
		if !strings.HasPrefix(ln, metric+"{") {
			continue
		}
		ok := true
		for _, s := range wantLabels {
			if !strings.Contains(ln, s) {
				ok = false
				break
			}
		}
		if ok && (len(ln) > 0 && ln[len(ln)-1] >= '0' && ln[len(ln)-1] <= '9') {
			return
		}
	}
	t.Fatalf("expected a %s line with labels %v; got:\n%s", metric, wantLabels, body)
}

func Test_AppMetrics_CustomRegistry_Smoke(t *testing.T) {
	p := Init(Config{Build: BuildInfo{Version: "test"}})
	observability.Init(p.Registerer(), true)
	observability.ExposeBuildInfo("test")

	observability.ObserveHTTP(http.MethodGet, "/data", http.StatusOK, 0.004)
	observability.IncDatasetRequest("exact")
	observability.IncDatasetRequest("fallback")
	observability.ObserveDatasetLoad(10, "file", nil, 0.25)
	observability.ObserveDatasetLoad(10, "file", errors.New("boom"), 0.01)
	observability.SetResident(4096, 3, 1)
	observability.ObserveQueryStage("slice", 4, 0.001)
	observability.ObserveCacheOp("get", nil, 0.002)
	observability.IncKafkaConsumerError("decode")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	mustContain := []string{
		`dataset_load_duration_seconds_bucket`,
		`redis_operation_duration_seconds_count`,
		`dataset_requests_total{outcome="exact"} `,
		`dataset_resident_bytes 4096`,
		`dataset_resident_sets{tier="pinned"} 3`,
		`kafka_consumer_errors_total{kind="decode"} `,
	}
	for _, s := range mustContain {
		if !strings.Contains(body, s) {
			t.Fatalf("expected metrics to contain %q;\n---\n%s", s, body)
		}
	}

	assertHasMetricLine(t, body, "dataset_loads_total", `res="10"`, `result="ok"`, `source="file"`)
	assertHasMetricLine(t, body, "dataset_loads_total", `res="10"`, `result="error"`)
	assertHasMetricLine(t, body, "http_requests_total", `route="/data"`, `status="200"`)
	assertHasMetricLine(t, body, "query_stage_duration_seconds_count", `stage="slice"`)
	assertHasMetricLine(t, body, "app_build_info", `version="test"`)
}
