// Package staleness selects releases whose documentation was built against an
// outdated toolchain snapshot and feeds them to the rebuild queue.
package staleness

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/docregistry/internal/catalog"
	"git.home.luguber.info/inful/docregistry/internal/foundation/errors"
	"git.home.luguber.info/inful/docregistry/internal/logfields"
	"git.home.luguber.info/inful/docregistry/internal/metrics"
)

// Detector produces ordered, size-bounded batches of releases due for rebuild.
// It is a pure reader: concurrent invocations take lockless snapshots and may
// offer the same release twice; the tracker tolerates the duplicate claims.
type Detector struct {
	store catalog.Store
	rec   metrics.Recorder
}

// NewDetector creates a Detector. A nil recorder disables metrics.
func NewDetector(store catalog.Store, rec metrics.Recorder) *Detector {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Detector{store: store, rec: rec}
}

// FindStale returns up to limit latest releases with a prior successful doc
// build whose most recent nightly-dated build predates cutoff, oldest attempt
// first. On store unavailability it surfaces a transient error for the caller
// to retry with backoff, never a partial batch.
//
// Releases whose builds all lack a nightly identifier are excluded: staleness
// cannot be judged without a reference date. Whether such releases should
// instead count as maximally stale is an open question; current behavior is
// preserved deliberately.
func (d *Detector) FindStale(ctx context.Context, cutoff time.Time, limit int) ([]catalog.StaleRelease, error) {
	if limit <= 0 {
		return nil, errors.ValidationError("stale batch limit must be positive").
			WithContext("limit", limit).Build()
	}

	start := time.Now()
	batch, err := d.store.FindStale(ctx, cutoff, limit)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryScheduler, "stale release scan").Retryable().Build()
	}

	d.rec.ObserveScanDuration(time.Since(start))
	d.rec.SetStaleBatchSize(len(batch))
	slog.Debug("Stale scan completed",
		logfields.Cutoff(catalog.FormatNightlyDate(cutoff)),
		logfields.Limit(limit),
		logfields.BatchSize(len(batch)),
		logfields.DurationMS(float64(time.Since(start).Milliseconds())))
	return batch, nil
}
