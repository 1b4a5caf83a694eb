// Package resolver answers artifact-pointer lookups: given a package and
// version, enough state to judge whether usable documentation exists and
// where it came from. It never locates or streams rendered bytes; artifact
// storage is an external collaborator addressed via the archive-storage flag
// and file manifest.
package resolver

import (
	"context"

	"git.home.luguber.info/inful/docregistry/internal/catalog"
	"git.home.luguber.info/inful/docregistry/internal/foundation/errors"
)

// DocCoverage reports a release's documentation state and build provenance.
type DocCoverage struct {
	Package string
	Version string

	RustdocStatus  bool
	TestStatus     bool
	Yanked         bool
	ArchiveStorage bool
	DefaultTarget  string
	DocTargets     []string
	Files          []string

	// EffectiveStatus is the status of the most recent build attempt, or
	// empty when no build exists yet.
	EffectiveStatus catalog.BuildStatus

	// Builds is the full attempt history, most recent first.
	Builds []catalog.Build
}

// LatestUsable returns the most recent successful build, the one whose
// artifact the latest-documentation pointer resolves to. Nil when no attempt
// has succeeded.
func (c *DocCoverage) LatestUsable() *catalog.Build {
	for i := range c.Builds {
		if c.Builds[i].Status.IsSuccess() {
			return &c.Builds[i]
		}
	}
	return nil
}

// Attempts returns the number of recorded build attempts.
func (c *DocCoverage) Attempts() int { return len(c.Builds) }

// Resolver serves doc-coverage lookups from the catalog store.
type Resolver struct {
	store catalog.Store
}

// New creates a Resolver.
func New(store catalog.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the coverage report for (package, version).
func (r *Resolver) Resolve(ctx context.Context, pkg, version string) (*DocCoverage, error) {
	rel, err := r.store.GetRelease(ctx, pkg, version)
	if err != nil {
		if errors.HasCategory(err, errors.CategoryNotFound) {
			return nil, err
		}
		return nil, errors.WrapError(err, errors.CategoryCatalog, "resolve release").
			WithContext("package", pkg).
			WithContext("version", version).Build()
	}

	builds, err := r.store.ListBuilds(ctx, pkg, version)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryCatalog, "resolve build history").
			WithContext("package", pkg).
			WithContext("version", version).Build()
	}

	cov := &DocCoverage{
		Package:        rel.Package,
		Version:        rel.Version,
		RustdocStatus:  rel.RustdocStatus,
		TestStatus:     rel.TestStatus,
		Yanked:         rel.Yanked,
		ArchiveStorage: rel.ArchiveStorage,
		DefaultTarget:  rel.DefaultTarget,
		DocTargets:     rel.DocTargets,
		Files:          rel.Files,
		Builds:         builds,
	}
	if len(builds) > 0 {
		cov.EffectiveStatus = builds[0].Status
	}
	return cov, nil
}
