package catalog

// Sentinel errors for catalog store operations. These enable consistent
// classification: not-found conditions are never retried, while plain store
// failures carry the retryable catalog category.

import (
	"git.home.luguber.info/inful/docregistry/internal/foundation/errors"
)

var (
	// ErrStoreOpenFailed indicates the SQLite database could not be opened.
	ErrStoreOpenFailed = errors.CatalogError("could not open catalog database").Build()

	// ErrSchemaInitFailed indicates the database schema could not be initialized.
	ErrSchemaInitFailed = errors.CatalogError("failed to initialize catalog schema").Build()

	// ErrPackageNotFound indicates a lookup for an unknown package name.
	ErrPackageNotFound = errors.NotFoundError("package not found").Build()

	// ErrReleaseNotFound indicates a lookup for an unknown (package, version).
	ErrReleaseNotFound = errors.NotFoundError("release not found").Build()

	// ErrBuildNotFound indicates a completion or lookup for an unknown build id.
	ErrBuildNotFound = errors.NotFoundError("build not found").Build()

	// ErrBuildAlreadyCompleted indicates a completion against a build that
	// already reached a terminal status. Terminal states have no outbound
	// transitions.
	ErrBuildAlreadyCompleted = errors.TrackerError("build already completed").Build()
)
