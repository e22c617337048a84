package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"

	"github.com/mohammed-shakir/gridslice/internal/cache/redisstore"
	"github.com/mohammed-shakir/gridslice/internal/codec"
	"github.com/mohammed-shakir/gridslice/internal/core/config"
	"github.com/mohammed-shakir/gridslice/internal/core/observability"
	"github.com/mohammed-shakir/gridslice/internal/core/router"
	"github.com/mohammed-shakir/gridslice/internal/core/server"
	"github.com/mohammed-shakir/gridslice/internal/dataset"
	"github.com/mohammed-shakir/gridslice/internal/grid"
	"github.com/mohammed-shakir/gridslice/internal/ingest"
	"github.com/mohammed-shakir/gridslice/internal/ingest/kafkaconsumer"
	"github.com/mohammed-shakir/gridslice/internal/loadevents"
	"github.com/mohammed-shakir/gridslice/internal/logger"
	"github.com/mohammed-shakir/gridslice/internal/metrics"
	"github.com/mohammed-shakir/gridslice/internal/query"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Service:   "gridslice",
		Component: "gridserver",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	p := metrics.Init(metrics.Config{
		Addr: cfg.MetricsAddr,
		Path: cfg.MetricsPath,
		Build: metrics.BuildInfo{
			Version:   Version,
			Revision:  os.Getenv("BUILD_REVISION"),
			Branch:    os.Getenv("BUILD_BRANCH"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	})
	observability.Init(p.Registerer(), true)
	observability.ExposeBuildInfo(Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appLog.Info("starting gridserver", "addr", cfg.Addr, "version", Version, "data_dir", cfg.DataDir)

	manifest, db, err := openManifest(ctx, cfg)
	if err != nil {
		appLog.Error("manifest", "err", err)
		return 1
	}
	if db != nil {
		defer func() { _ = db.Close() }()
	}
	appLog.Info("manifest loaded", "entries", manifest.Len())

	src, closeSrc, err := openSource(ctx, cfg, appLog)
	if err != nil {
		appLog.Error("dataset source", "err", err)
		return 1
	}
	defer closeSrc()

	quantizer, err := codec.New(cfg.Codec, codec.Params{MaxX: cfg.CodecMaxX, MaxY: cfg.CodecMaxY})
	if err != nil {
		appLog.Error("codec", "err", err, "known", codec.Names())
		return 1
	}

	eager, err := eagerResolutions(cfg.EagerResolutions)
	if err != nil {
		appLog.Error("EAGER_RESOLUTIONS", "err", err)
		return 1
	}

	opts := dataset.Options{
		Eager:       eager,
		MaxLazy:     cfg.CacheMaxLazy,
		Workers:     cfg.LoadWorkers,
		QueueSize:   cfg.LoadQueue,
		LoadTimeout: cfg.LoadTimeout,
		HalfLife:    cfg.HotHalfLife,
		Logger:      appLog,
	}
	if cfg.Kafka.LoadEventsEnabled {
		pub, err := loadevents.NewPublisher(cfg.Kafka.BrokerList(), cfg.Kafka.LoadEventsTopic, 1024, appLog)
		if err != nil {
			appLog.Error("load events publisher", "err", err)
			return 1
		}
		defer func() {
			if err := pub.Close(); err != nil {
				appLog.Warn("load events close", "err", err)
			}
		}()
		opts.Listener = pub
	}

	store, err := dataset.NewStore(manifest, src, opts)
	if err != nil {
		appLog.Error("dataset store", "err", err)
		return 1
	}
	store.Start(ctx)
	defer store.Close()

	go func() {
		if err := store.Preload(ctx); err != nil {
			appLog.Error("preload incomplete", "err", err)
		} else {
			appLog.Info("preload complete", "resident_bytes", store.TotalResidentBytes())
		}
		if n := store.PrefetchLatest(cfg.PrefetchLatest); n > 0 {
			appLog.Info("latest months queued", "months", cfg.PrefetchLatest, "loads", n)
		}
	}()

	if cfg.Kafka.IngestEnabled {
		var persister ingest.Persister = ingest.FilePersister{Manifest: manifest, Path: cfg.ManifestPath}
		if db != nil {
			persister = ingest.PostgresPersister{DB: db}
		}
		c := kafkaconsumer.New(kafkaconsumer.FromConfig(cfg.Kafka), appLog,
			ingest.NewApplier(store, persister, 0, appLog))
		go func() {
			if err := c.Start(ctx); err != nil {
				appLog.Error("ingest consumer", "err", err)
			}
		}()
	}

	go func() {
		if err := p.Serve(ctx, appLog); err != nil {
			appLog.Error("metrics server", "err", err)
		}
	}()

	engine := query.NewEngine(store, quantizer, appLog)
	deps := server.Deps{
		Handlers:    router.New(engine, store, appLog),
		Readiness:   store,
		Metrics:     p.Handler(),
		MetricsPath: p.Path(),
	}
	if err := server.Run(ctx, cfg, appLog, deps); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

// openManifest prefers Postgres when a DSN is configured.
func openManifest(ctx context.Context, cfg config.Config) (*dataset.Manifest, *sqlx.DB, error) {
	if cfg.ManifestDSN != "" {
		db, err := dataset.OpenPostgres(ctx, cfg.ManifestDSN)
		if err != nil {
			return nil, nil, err
		}
		m, err := dataset.LoadManifestPostgres(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return m, db, nil
	}
	m, err := dataset.LoadManifestFile(cfg.ManifestPath)
	return m, nil, err
}

// openSource wraps the data directory with the Redis blob cache when
// REDIS_ADDR is set.
func openSource(ctx context.Context, cfg config.Config, l *slog.Logger) (dataset.Source, func(), error) {
	var src dataset.Source = dataset.FileSource{Dir: cfg.DataDir}
	if cfg.RedisAddr == "" {
		return src, func() {}, nil
	}
	rc, err := redisstore.New(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return dataset.NewBlobCache(rc, src, cfg.RedisBlobTTL, l), func() { closeQuietly(rc) }, nil
}

func closeQuietly(c io.Closer) { _ = c.Close() }

func eagerResolutions(in []int) ([]grid.Resolution, error) {
	out := make([]grid.Resolution, 0, len(in))
	for _, n := range in {
		r, err := grid.ParseResolution(n)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
