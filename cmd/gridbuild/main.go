// Command gridbuild encodes a CSV of gridded values into a dataset file,
// records it in the manifest and optionally announces it on Kafka.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/gridslice/internal/codec"
	"github.com/mohammed-shakir/gridslice/internal/dataset"
	"github.com/mohammed-shakir/gridslice/internal/dataset/builder"
	"github.com/mohammed-shakir/gridslice/internal/grid"
	"github.com/mohammed-shakir/gridslice/internal/ingest"
	"github.com/mohammed-shakir/gridslice/internal/logger"
)

type options struct {
	In       string
	DataDir  string
	Out      string
	Year     int
	Month    int
	Res      int
	Codec    string
	MaxX     float64
	MaxY     int
	Manifest string
	DSN      string
	Brokers  string
	Topic    string
	Revision uint64
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("gridbuild", flag.ContinueOnError)
	fs.StringVar(&o.In, "in", "", "input CSV (lat,lon,value header or the tenths export layout)")
	fs.StringVar(&o.DataDir, "data-dir", "./data", "dataset directory")
	fs.StringVar(&o.Out, "out", "", "output file relative to data-dir (default YYYY-MM-rN.b64.zst)")
	fs.IntVar(&o.Year, "year", 0, "dataset year")
	fs.IntVar(&o.Month, "month", 0, "dataset month (1-12)")
	fs.IntVar(&o.Res, "res", 1, "points per degree (1, 2, 4, 10)")
	fs.StringVar(&o.Codec, "codec", "exponential", "quantizer: "+strings.Join(codec.Names(), "|"))
	fs.Float64Var(&o.MaxX, "max-x", 256, "hybrid codec linear range")
	fs.IntVar(&o.MaxY, "max-y", 60, "hybrid codec linear symbols")
	fs.StringVar(&o.Manifest, "manifest", "", "manifest JSON to update (default data-dir/manifest.json)")
	fs.StringVar(&o.DSN, "dsn", "", "Postgres DSN; upserts the manifest row instead of the JSON file")
	fs.StringVar(&o.Brokers, "brokers", "", "Kafka brokers; publishes a dataset-published event when set")
	fs.StringVar(&o.Topic, "topic", "dataset-published", "Kafka topic for dataset-published events")
	fs.Uint64Var(&o.Revision, "revision", 0, "event revision (default unix seconds)")
	if err := fs.Parse(args); err != nil {
		return o, err
	}

	if o.In == "" {
		return o, errors.New("-in is required")
	}
	if o.Year <= 0 || o.Month < 1 || o.Month > 12 {
		return o, fmt.Errorf("invalid -year/-month %d/%d", o.Year, o.Month)
	}
	if _, err := grid.ParseResolution(o.Res); err != nil {
		return o, err
	}
	if o.Out == "" {
		o.Out = fmt.Sprintf("%04d-%02d-r%d.b64.zst", o.Year, o.Month, o.Res)
	}
	if o.Manifest == "" {
		o.Manifest = filepath.Join(o.DataDir, "manifest.json")
	}
	return o, nil
}

func main() {
	zl := logger.Build(logger.Config{Level: os.Getenv("LOG_LEVEL"), Console: true, Component: "gridbuild"}, os.Stderr)
	l := logger.NewSlog(&zl)

	o, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		l.Error("flags", "err", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if err := run(ctx, o, os.Stdout, l); err != nil {
		l.Error("gridbuild failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, stdout io.Writer, l *slog.Logger) error {
	q, err := codec.New(o.Codec, codec.Params{MaxX: o.MaxX, MaxY: o.MaxY})
	if err != nil {
		return err
	}
	f, err := os.Open(filepath.Clean(o.In))
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer func() { _ = f.Close() }()

	symbols, rep, err := builder.Build(f, builder.Options{Res: grid.Resolution(o.Res), Quantizer: q})
	if err != nil {
		return err
	}
	entry := dataset.Entry{Year: o.Year, Month: o.Month, Res: o.Res, File: o.Out}
	for _, flt := range rep.Faults {
		l.Warn("record skipped",
			"dataset", entry.Key().String(), "line", flt.Line, "index", flt.Index, "reason", flt.Reason)
	}

	if err := os.MkdirAll(o.DataDir, 0o750); err != nil {
		return fmt.Errorf("mkdir data dir: %w", err)
	}
	if err := builder.WriteFile(filepath.Join(o.DataDir, o.Out), symbols); err != nil {
		return err
	}

	if err := recordEntry(ctx, o, entry); err != nil {
		return err
	}
	if o.Brokers != "" {
		if err := publish(o, entry); err != nil {
			return err
		}
		l.Info("dataset announced", "topic", o.Topic)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Entry  dataset.Entry  `json:"entry"`
		Codec  string         `json:"codec"`
		Report builder.Report `json:"report"`
	}{entry, q.Name(), rep})
}

func recordEntry(ctx context.Context, o options, e dataset.Entry) error {
	if o.DSN != "" {
		db, err := dataset.OpenPostgres(ctx, o.DSN)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		return dataset.UpsertPostgres(ctx, db, e)
	}

	m, err := dataset.LoadManifestFile(o.Manifest)
	switch {
	case errors.Is(err, os.ErrNotExist):
		m, err = dataset.NewManifest()
		if err != nil {
			return err
		}
	case err != nil:
		return err
	}
	m.Add(e.Key(), e.File)
	return m.SaveFile(o.Manifest)
}

func publish(o options, e dataset.Entry) error {
	rev := o.Revision
	now := time.Now().UTC()
	if rev == 0 {
		rev = uint64(now.Unix())
	}
	ev := ingest.Event{Version: 1, Year: e.Year, Month: e.Month, Res: e.Res, File: e.File, Revision: rev, TS: now}
	if err := ev.Validate(); err != nil {
		return err
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Version = sarama.V2_5_0_0
	prod, err := sarama.NewSyncProducer(strings.Split(o.Brokers, ","), cfg)
	if err != nil {
		return fmt.Errorf("producer create: %w", err)
	}
	defer func() { _ = prod.Close() }()

	_, _, err = prod.SendMessage(&sarama.ProducerMessage{
		Topic: o.Topic,
		Key:   sarama.StringEncoder(e.Key().String()),
		Value: sarama.ByteEncoder(b),
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}
