package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type KafkaCfg struct {
	Brokers string
	// dataset-loaded events
	LoadEventsEnabled bool
	LoadEventsTopic   string
	// dataset-published ingestion
	IngestEnabled bool
	IngestTopic   string
	IngestGroupID string
}

type Config struct {
	Addr           string
	RequestTimeout time.Duration
	MetricsAddr    string
	MetricsPath    string
	LogLevel       string
	LogConsole     bool
	LogSampleN     int

	DataDir      string
	ManifestPath string
	ManifestDSN  string

	RedisAddr    string
	RedisBlobTTL time.Duration

	EagerResolutions []int
	CacheMaxLazy     int
	PrefetchLatest   int
	LoadWorkers      int
	LoadQueue        int
	LoadTimeout      time.Duration
	HotHalfLife      time.Duration

	Codec     string
	CodecMaxX float64
	CodecMaxY int

	Kafka KafkaCfg
}

// BrokerList splits the comma separated broker list.
func (k KafkaCfg) BrokerList() []string {
	var out []string
	for b := range strings.SplitSeq(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func FromEnv() Config {
	dataDir := getenv("DATA_DIR", "./data")
	return Config{
		Addr:           getenv("ADDR", ":8888"),
		RequestTimeout: getduration("REQUEST_TIMEOUT", 30*time.Second),
		MetricsAddr:    getenv("METRICS_ADDR", ""),
		MetricsPath:    getenv("METRICS_PATH", "/metrics"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogConsole:     getbool("LOG_CONSOLE", false),
		LogSampleN:     getint("LOG_SAMPLE_N", 0),

		DataDir:      dataDir,
		ManifestPath: getenv("MANIFEST_PATH", dataDir+"/manifest.json"),
		ManifestDSN:  getenv("MANIFEST_DSN", ""),

		RedisAddr:    getenv("REDIS_ADDR", ""),
		RedisBlobTTL: getduration("REDIS_BLOB_TTL", 24*time.Hour),

		EagerResolutions: parseIntList(getenv("EAGER_RESOLUTIONS", "1,2,4")),
		CacheMaxLazy:     getint("CACHE_MAX_LAZY", 8),
		PrefetchLatest:   getint("PREFETCH_LATEST", 0),
		LoadWorkers:      getint("LOAD_WORKERS", 2),
		LoadQueue:        getint("LOAD_QUEUE", 64),
		LoadTimeout:      getduration("LOAD_TIMEOUT", 2*time.Minute),
		HotHalfLife:      getduration("HOT_HALF_LIFE", 10*time.Minute),

		Codec:     getenv("CODEC", "exponential"),
		CodecMaxX: getfloat("CODEC_MAX_X", 256),
		CodecMaxY: getint("CODEC_MAX_Y", 60),

		Kafka: KafkaCfg{
			Brokers:           getenv("KAFKA_BROKERS", "localhost:9092"),
			LoadEventsEnabled: getbool("LOAD_EVENTS_ENABLED", false),
			LoadEventsTopic:   getenv("LOAD_EVENTS_TOPIC", "dataset-loads"),
			IngestEnabled:     getbool("INGEST_ENABLED", false),
			IngestTopic:       getenv("INGEST_TOPIC", "dataset-published"),
			IngestGroupID:     getenv("INGEST_GROUP_ID", "gridslice-ingest"),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parse "1,2,4"; unparsable items are skipped, "none" yields an empty list
func parseIntList(s string) []int {
	out := []int{}
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "none") {
		return out
	}
	for p := range strings.SplitSeq(s, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(p)); err == nil {
			out = append(out, n)
		}
	}
	return out
}
