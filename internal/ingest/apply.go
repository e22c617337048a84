package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/mohammed-shakir/gridslice/internal/core/observability"
	"github.com/mohammed-shakir/gridslice/internal/dataset"
	mylog "github.com/mohammed-shakir/gridslice/internal/logger"
)

// Replacer is the part of *dataset.Store an Applier drives.
type Replacer interface {
	Replace(ctx context.Context, k dataset.Key, location string) bool
	Withdraw(ctx context.Context, k dataset.Key) bool
}

// Persister records applied events outside the process.
type Persister interface {
	Persist(ctx context.Context, e dataset.Entry) error
	Remove(ctx context.Context, k dataset.Key) error
}

// PostgresPersister writes to the dataset_manifest table.
type PostgresPersister struct{ DB *sqlx.DB }

func (p PostgresPersister) Persist(ctx context.Context, e dataset.Entry) error {
	return dataset.UpsertPostgres(ctx, p.DB, e)
}

func (p PostgresPersister) Remove(ctx context.Context, k dataset.Key) error {
	return dataset.DeletePostgres(ctx, p.DB, k)
}

// FilePersister rewrites the manifest file from the live manifest.
type FilePersister struct {
	Manifest *dataset.Manifest
	Path     string
}

func (p FilePersister) Persist(_ context.Context, _ dataset.Entry) error {
	return p.Manifest.SaveFile(p.Path)
}

func (p FilePersister) Remove(_ context.Context, _ dataset.Key) error {
	return p.Manifest.SaveFile(p.Path)
}

type Outcome string

const (
	Applied   Outcome = "applied"
	Reloading Outcome = "reloading"
	Withdrawn Outcome = "withdrawn"
	Duplicate Outcome = "duplicate"
	Invalid   Outcome = "invalid"
)

type Applier struct {
	store     Replacer
	persister Persister
	dedupe    *revisionDedupe
	logger    *slog.Logger
}

func NewApplier(store Replacer, persister Persister, dedupeSize int, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{
		store:     store,
		persister: persister,
		dedupe:    newRevisionDedupe(dedupeSize),
		logger:    logger,
	}
}

// Apply validates ev and points its key at the new file. Events without a
// revision are always applied; otherwise revisions at or below the last one
// seen for the key are skipped.
func (a *Applier) Apply(ctx context.Context, ev Event) (Outcome, error) {
	if err := ev.Validate(); err != nil {
		observability.IncIngestEvent(string(Invalid))
		return Invalid, fmt.Errorf("invalid event: %w", err)
	}
	k := ev.Key()
	ctx = mylog.WithDataset(ctx, k.String())

	if ev.Revision > 0 && !a.dedupe.shouldApply(k.String(), ev.Revision) {
		observability.IncIngestEvent(string(Duplicate))
		a.logger.DebugContext(ctx, "stale revision skipped", "revision", ev.Revision)
		return Duplicate, nil
	}

	if ev.Withdrawn {
		return a.withdraw(ctx, k, ev.Revision)
	}

	reloading := a.store.Replace(ctx, k, ev.File)
	if a.persister != nil {
		if err := a.persister.Persist(ctx, ev.Entry()); err != nil {
			// let a redelivery retry the write
			a.dedupe.forget(k.String())
			observability.IncIngestEvent("persist_error")
			return Applied, fmt.Errorf("persist manifest entry: %w", err)
		}
	}

	out := Applied
	if reloading {
		out = Reloading
	}
	observability.IncIngestEvent(string(out))
	a.logger.InfoContext(ctx, "dataset published", "file", ev.File, "revision", ev.Revision, "outcome", string(out))
	return out, nil
}

func (a *Applier) withdraw(ctx context.Context, k dataset.Key, rev uint64) (Outcome, error) {
	present := a.store.Withdraw(ctx, k)
	if a.persister != nil {
		if err := a.persister.Remove(ctx, k); err != nil {
			a.dedupe.forget(k.String())
			observability.IncIngestEvent("persist_error")
			return Withdrawn, fmt.Errorf("remove manifest entry: %w", err)
		}
	}
	observability.IncIngestEvent(string(Withdrawn))
	a.logger.InfoContext(ctx, "dataset withdrawn", "revision", rev, "present", present)
	return Withdrawn, nil
}
