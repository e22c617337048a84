// Package observability holds the service's Prometheus collectors and the
// helpers the rest of the code records through.
package observability

import (
	"errors"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var enabled atomic.Bool

func init() {
	enabled.Store(true)
}

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		},
		[]string{"method", "route", "status"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gridslice_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)

	datasetRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataset_requests_total",
			Help: "Dataset lookups by outcome (exact, fallback, not_resident, not_loadable).",
		},
		[]string{"outcome"},
	)

	datasetLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataset_loads_total",
			Help: "Dataset loads by resolution, source tier and result.",
		},
		[]string{"res", "source", "result"},
	)

	datasetLoadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dataset_load_duration_seconds",
			Help:    "Time to fetch, decode and validate one dataset.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"res"},
	)

	loadQueueDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dataset_load_queue_dropped_total",
			Help: "Background load requests dropped because the queue was full.",
		},
	)

	datasetEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dataset_evictions_total",
			Help: "Lazily loaded datasets evicted from memory.",
		},
	)

	residentBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dataset_resident_bytes",
			Help: "Bytes held by resident datasets.",
		},
	)

	residentSets = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dataset_resident_sets",
			Help: "Resident datasets by tier (pinned, lazy).",
		},
		[]string{"tier"},
	)

	queryStageSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "query_stage_duration_seconds",
			Help:    "Time spent per query stage (slice, rectangles).",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		},
		[]string{"stage", "res"},
	)

	queryCells = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "query_cells",
			Help:    "Cells returned per query.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 12),
		},
		[]string{"res"},
	)

	redisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Duration of Redis operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)

	cacheOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_op_total",
			Help: "Redis operations by result.",
		},
		[]string{"op", "result"},
	)

	blobCacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataset_blob_cache_results_total",
			Help: "Redis dataset blob lookups by outcome.",
		},
		[]string{"outcome"},
	)

	kafkaPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_publish_total",
			Help: "Kafka messages handed to the producer by topic and result.",
		},
		[]string{"topic", "result"},
	)

	kafkaConsumerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_consumer_errors_total",
			Help: "Kafka consumer errors by kind.",
		},
		[]string{"kind"},
	)

	ingestEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_events_total",
			Help: "Dataset published events by outcome (applied, duplicate, invalid).",
		},
		[]string{"outcome"},
	)
)

func collectorsList() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds, buildInfo,
		datasetRequests, datasetLoads, datasetLoadDuration, loadQueueDropped,
		datasetEvictions, residentBytes, residentSets,
		queryStageSeconds, queryCells,
		redisOpDuration, cacheOps, blobCacheResults,
		kafkaPublished, kafkaConsumerErrors, ingestEvents,
	}
}

// Init registers every collector on reg (in addition to the default
// registry) and toggles recording.
func Init(reg prometheus.Registerer, on bool) {
	enabled.Store(on)
	if reg == nil {
		return
	}
	for _, c := range collectorsList() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

func Enabled() bool { return enabled.Load() }

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}

func IncDatasetRequest(outcome string) {
	if !enabled.Load() {
		return
	}
	datasetRequests.WithLabelValues(outcome).Inc()
}

func ObserveDatasetLoad(res int, source string, err error, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	r := strconv.Itoa(res)
	datasetLoads.WithLabelValues(r, source, result(err)).Inc()
	if err == nil {
		datasetLoadDuration.WithLabelValues(r).Observe(durationSeconds)
	}
}

func IncLoadQueueDropped() {
	if !enabled.Load() {
		return
	}
	loadQueueDropped.Inc()
}

func IncDatasetEviction() {
	if !enabled.Load() {
		return
	}
	datasetEvictions.Inc()
}

func SetResident(bytes int64, pinned, lazy int) {
	if !enabled.Load() {
		return
	}
	residentBytes.Set(float64(bytes))
	residentSets.WithLabelValues("pinned").Set(float64(pinned))
	residentSets.WithLabelValues("lazy").Set(float64(lazy))
}

func ObserveQueryStage(stage string, res int, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	queryStageSeconds.WithLabelValues(stage, strconv.Itoa(res)).Observe(durationSeconds)
}

func ObserveQueryCells(res, cells int) {
	if !enabled.Load() {
		return
	}
	queryCells.WithLabelValues(strconv.Itoa(res)).Observe(float64(cells))
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	redisOpDuration.WithLabelValues(op).Observe(durationSeconds)
	cacheOps.WithLabelValues(op, result(err)).Inc()
}

func IncBlobCache(hit bool) {
	if !enabled.Load() {
		return
	}
	if hit {
		blobCacheResults.WithLabelValues("hit").Inc()
		return
	}
	blobCacheResults.WithLabelValues("miss").Inc()
}

func IncKafkaPublish(topic string, err error) {
	if !enabled.Load() {
		return
	}
	kafkaPublished.WithLabelValues(topic, result(err)).Inc()
}

func IncKafkaConsumerError(kind string) {
	if !enabled.Load() {
		return
	}
	kafkaConsumerErrors.WithLabelValues(kind).Inc()
}

func IncIngestEvent(outcome string) {
	if !enabled.Load() {
		return
	}
	ingestEvents.WithLabelValues(outcome).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
