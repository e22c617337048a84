package config

import (
	"reflect"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"ADDR", "DATA_DIR", "MANIFEST_PATH", "EAGER_RESOLUTIONS", "CODEC", "KAFKA_BROKERS", "REQUEST_TIMEOUT", "METRICS_PATH", "PREFETCH_LATEST"} {
		t.Setenv(k, "")
	}
	c := FromEnv()
	if c.Addr != ":8888" {
		t.Fatalf("Addr=%q", c.Addr)
	}
	if c.RequestTimeout != 30*time.Second || c.MetricsPath != "/metrics" {
		t.Fatalf("RequestTimeout=%v MetricsPath=%q", c.RequestTimeout, c.MetricsPath)
	}
	if c.ManifestPath != "./data/manifest.json" {
		t.Fatalf("ManifestPath=%q", c.ManifestPath)
	}
	if !reflect.DeepEqual(c.EagerResolutions, []int{1, 2, 4}) {
		t.Fatalf("EagerResolutions=%v", c.EagerResolutions)
	}
	if c.Codec != "exponential" || c.LoadTimeout != 2*time.Minute || c.PrefetchLatest != 0 {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if got := c.Kafka.BrokerList(); !reflect.DeepEqual(got, []string{"localhost:9092"}) {
		t.Fatalf("BrokerList=%v", got)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("DATA_DIR", "/srv/pm25")
	t.Setenv("EAGER_RESOLUTIONS", "none")
	t.Setenv("CACHE_MAX_LAZY", "3")
	t.Setenv("PREFETCH_LATEST", "2")
	t.Setenv("LOAD_TIMEOUT", "15s")
	t.Setenv("INGEST_ENABLED", "yes")
	t.Setenv("CODEC_MAX_X", "not-a-number")
	t.Setenv("KAFKA_BROKERS", " a:9092, ,b:9092 ")

	c := FromEnv()
	if c.ManifestPath != "/srv/pm25/manifest.json" {
		t.Fatalf("ManifestPath=%q", c.ManifestPath)
	}
	if len(c.EagerResolutions) != 0 {
		t.Fatalf("EagerResolutions=%v want empty", c.EagerResolutions)
	}
	if c.CacheMaxLazy != 3 || c.PrefetchLatest != 2 || c.LoadTimeout != 15*time.Second || !c.Kafka.IngestEnabled {
		t.Fatalf("overrides not applied: %+v", c)
	}
	if c.CodecMaxX != 256 {
		t.Fatalf("bad float should fall back to default, got %v", c.CodecMaxX)
	}
	if got := c.Kafka.BrokerList(); !reflect.DeepEqual(got, []string{"a:9092", "b:9092"}) {
		t.Fatalf("BrokerList=%v", got)
	}
}

func TestParseIntList(t *testing.T) {
	if got := parseIntList("1, x ,10"); !reflect.DeepEqual(got, []int{1, 10}) {
		t.Fatalf("got %v", got)
	}
	if got := parseIntList(""); len(got) != 0 {
		t.Fatalf("got %v", got)
	}
}
