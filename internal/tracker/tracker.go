// Package tracker records the lifecycle of documentation build attempts.
//
// Every attempt is a fresh row: claim creates it in_progress, complete applies
// the single terminal mutation. The store never overwrites history; the most
// recently completed build is authoritative for a release's effective status.
package tracker

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/docregistry/internal/catalog"
	"git.home.luguber.info/inful/docregistry/internal/foundation/errors"
	"git.home.luguber.info/inful/docregistry/internal/logfields"
	"git.home.luguber.info/inful/docregistry/internal/metrics"
)

// Tracker exposes the build state machine to external workers.
type Tracker struct {
	store catalog.Store
	rec   metrics.Recorder
}

// New creates a Tracker. A nil recorder disables metrics.
func New(store catalog.Store, rec metrics.Recorder) *Tracker {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Tracker{store: store, rec: rec}
}

// Claim registers a new in_progress build attempt for the release and returns
// its id. Duplicate concurrent claims for one release are tolerated by design;
// the scheduling discipline, not the store, keeps them rare.
func (t *Tracker) Claim(ctx context.Context, releaseID int64, rustcVersion, toolVersion string) (int64, error) {
	buildID, err := t.store.ClaimBuild(ctx, releaseID, rustcVersion, toolVersion)
	if err != nil {
		if errors.HasCategory(err, errors.CategoryNotFound) {
			return 0, err
		}
		return 0, errors.WrapError(err, errors.CategoryTracker, "claim build").
			WithContext("release_id", releaseID).Build()
	}

	t.rec.IncBuildClaim()
	slog.Info("Build claimed",
		logfields.ReleaseID(releaseID),
		logfields.BuildID(buildID),
		slog.String("rustc_version", rustcVersion))
	return buildID, nil
}

// Complete records the terminal outcome of a build attempt. A failure is data,
// not a fault: it refreshes the release's last-attempt time and leaves it
// eligible again under the staleness rule. Single delivery is the caller's
// responsibility; a repeated completion surfaces ErrBuildAlreadyCompleted.
func (t *Tracker) Complete(ctx context.Context, buildID int64, status catalog.BuildStatus, errorText string) error {
	if err := t.store.CompleteBuild(ctx, buildID, status, errorText); err != nil {
		if errors.HasCategory(err, errors.CategoryNotFound) ||
			errors.HasCategory(err, errors.CategoryValidation) ||
			errors.HasCategory(err, errors.CategoryTracker) {
			return err
		}
		return errors.WrapError(err, errors.CategoryTracker, "complete build").
			WithContext("build_id", buildID).Build()
	}

	t.rec.IncBuildCompletion(status.String())
	slog.Info("Build completed",
		logfields.BuildID(buildID),
		logfields.BuildStatus(status.String()))
	return nil
}

// List returns the full build history for (package, version), most recent
// first, each row annotated with its resolved build time.
func (t *Tracker) List(ctx context.Context, pkg, version string) ([]catalog.Build, error) {
	builds, err := t.store.ListBuilds(ctx, pkg, version)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryTracker, "list builds").
			WithContext("package", pkg).
			WithContext("version", version).Build()
	}
	return builds, nil
}
