package catalog

import (
	"context"
	"time"
)

// Store defines the durable catalog of packages, releases and builds.
type Store interface {
	// UpsertRelease atomically inserts a release or refreshes all mutable
	// fields if the (package, version) row already exists, returning the
	// release's durable id. The package row is created on demand.
	UpsertRelease(ctx context.Context, meta ReleaseMetadata) (int64, error)

	// ReleaseVersions returns all (id, version) pairs of a package.
	ReleaseVersions(ctx context.Context, pkg string) ([]ReleaseVersion, error)

	// SetLatestRelease points the package's latest pointer at the given
	// release. The release must belong to the package.
	SetLatestRelease(ctx context.Context, pkg string, releaseID int64) error

	// LatestRelease returns the release the package's latest pointer
	// references, or ErrReleaseNotFound when the pointer is unset.
	LatestRelease(ctx context.Context, pkg string) (*Release, error)

	// GetRelease returns the full release row for (package, version).
	GetRelease(ctx context.Context, pkg, version string) (*Release, error)

	// ClaimBuild appends a new in_progress build row for the release and
	// returns its id. This is the only row-creating build write.
	ClaimBuild(ctx context.Context, releaseID int64, rustcVersion, toolVersion string) (int64, error)

	// CompleteBuild sets the terminal status, finish timestamp and optional
	// error text on a build. It is the only mutating build write and applies
	// at most once per id.
	CompleteBuild(ctx context.Context, buildID int64, status BuildStatus, errorText string) error

	// ListBuilds returns all build rows for (package, version), most recent
	// first by id.
	ListBuilds(ctx context.Context, pkg, version string) ([]Build, error)

	// FindStale returns up to limit latest releases whose most recent
	// nightly-dated build predates the cutoff, ordered by last attempt time
	// ascending. Pure read; never returns a partial batch on error.
	FindStale(ctx context.Context, cutoff time.Time, limit int) ([]StaleRelease, error)

	// IncrementDownloads bumps the download counter of a release.
	IncrementDownloads(ctx context.Context, pkg, version string) error

	// SetYanked flips the withdrawal flag of a release without touching
	// provenance fields.
	SetYanked(ctx context.Context, pkg, version string, yanked bool) error

	// Close releases the store and its resources.
	Close() error
}
