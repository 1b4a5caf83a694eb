// Package ingest implements idempotent ingestion of externally discovered
// release metadata into the catalog store.
package ingest

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Masterminds/semver/v3"

	"git.home.luguber.info/inful/docregistry/internal/catalog"
	"git.home.luguber.info/inful/docregistry/internal/foundation/errors"
	"git.home.luguber.info/inful/docregistry/internal/logfields"
	"git.home.luguber.info/inful/docregistry/internal/metrics"
)

// Ingestor upserts release metadata and maintains each package's latest
// pointer. Safe for concurrent use; atomicity of the upsert itself is the
// store's contract.
type Ingestor struct {
	store catalog.Store
	rec   metrics.Recorder
}

// New creates an Ingestor. A nil recorder disables metrics.
func New(store catalog.Store, rec metrics.Recorder) *Ingestor {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Ingestor{store: store, rec: rec}
}

// Ingest atomically inserts or refreshes the release record and returns its
// durable id. Re-ingesting identical metadata is a no-op beyond refreshed
// values. When the ingested release is newer by the version ordering policy
// than the package's current latest pointer, the pointer advances.
func (i *Ingestor) Ingest(ctx context.Context, meta catalog.ReleaseMetadata) (int64, error) {
	if err := validate(meta); err != nil {
		i.rec.IncIngestResult(metrics.ResultInvalid)
		return 0, err
	}

	releaseID, err := i.store.UpsertRelease(ctx, meta)
	if err != nil {
		i.rec.IncIngestResult(metrics.ResultError)
		return 0, errors.WrapError(err, errors.CategoryIngest, "upsert release").
			WithContext("package", meta.Package).
			WithContext("version", meta.Version).Build()
	}

	if err := i.advanceLatest(ctx, meta.Package); err != nil {
		i.rec.IncIngestResult(metrics.ResultError)
		return 0, err
	}

	i.rec.IncIngestResult(metrics.ResultSuccess)
	slog.Debug("Release ingested",
		logfields.Package(meta.Package),
		logfields.Version(meta.Version),
		logfields.ReleaseID(releaseID))
	return releaseID, nil
}

// advanceLatest recomputes the package's latest pointer against the version
// ordering policy. Recomputing over all stored versions, rather than only
// comparing against the incoming one, keeps the pointer correct under
// out-of-order ingestion.
func (i *Ingestor) advanceLatest(ctx context.Context, pkg string) error {
	versions, err := i.store.ReleaseVersions(ctx, pkg)
	if err != nil {
		return errors.WrapError(err, errors.CategoryIngest, "list versions for latest pointer").
			WithContext("package", pkg).Build()
	}

	var (
		bestID  int64
		bestVer *semver.Version
	)
	for _, rv := range versions {
		v, err := semver.NewVersion(rv.Version)
		if err != nil {
			// A version outside the ordering policy never advances the pointer.
			continue
		}
		if bestVer == nil || v.GreaterThan(bestVer) {
			bestID, bestVer = rv.ID, v
		}
	}
	if bestVer == nil {
		return nil
	}

	current, err := i.store.LatestRelease(ctx, pkg)
	switch {
	case err == nil && current.ID == bestID:
		return nil
	case err != nil && !errors.HasCategory(err, errors.CategoryNotFound):
		return errors.WrapError(err, errors.CategoryIngest, "read latest pointer").
			WithContext("package", pkg).Build()
	}

	if err := i.store.SetLatestRelease(ctx, pkg, bestID); err != nil {
		return errors.WrapError(err, errors.CategoryIngest, "advance latest pointer").
			WithContext("package", pkg).Build()
	}
	i.rec.IncLatestAdvance()
	slog.Debug("Latest pointer advanced",
		logfields.Package(pkg),
		logfields.Version(bestVer.Original()),
		logfields.ReleaseID(bestID))
	return nil
}

// validate rejects malformed metadata synchronously; such records are never
// retried.
func validate(meta catalog.ReleaseMetadata) error {
	if strings.TrimSpace(meta.Package) == "" {
		return errors.ValidationError("package name is required").Build()
	}
	if strings.ContainsAny(meta.Package, " \t\n/") {
		return errors.ValidationError("package name contains invalid characters").
			WithContext("package", meta.Package).Build()
	}
	if strings.TrimSpace(meta.Version) == "" {
		return errors.ValidationError("version is required").
			WithContext("package", meta.Package).Build()
	}
	return nil
}
