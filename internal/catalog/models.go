package catalog

import (
	"time"
)

// Feature is one entry of a release's feature set. Subfeatures are ordered
// and scoped to their parent feature, so the set is a list of tagged records
// rather than a flat map.
type Feature struct {
	Name        string   `json:"name"`
	Subfeatures []string `json:"subfeatures"`
}

// Dependency describes one declared dependency of a release.
type Dependency struct {
	Name     string `json:"name"`
	Req      string `json:"req"`
	Kind     string `json:"kind,omitempty"`
	Optional bool   `json:"optional,omitempty"`
}

// ReleaseMetadata is the complete metadata record handed to the ingestor for
// one (package, version). Provenance fields are written on first ingest and
// refreshed on re-ingest; the download counter is owned by the store and
// never touched by ingestion.
type ReleaseMetadata struct {
	Package string `json:"package"`
	Version string `json:"version"`

	ReleaseTime      time.Time    `json:"release_time"`
	Dependencies     []Dependency `json:"dependencies"`
	TargetName       string       `json:"target_name"`
	Yanked           bool         `json:"yanked"`
	RustdocStatus    bool         `json:"rustdoc_status"`
	TestStatus       bool         `json:"test_status"`
	License          string       `json:"license"`
	RepositoryURL    string       `json:"repository_url"`
	HomepageURL      string       `json:"homepage_url"`
	Description      string       `json:"description"`
	DescriptionLong  string       `json:"description_long"`
	Readme           string       `json:"readme"`
	Keywords         []string     `json:"keywords"`
	HaveExamples     bool         `json:"have_examples"`
	Files            []string     `json:"files"`
	DocTargets       []string     `json:"doc_targets"`
	IsLibrary        bool         `json:"is_library"`
	DocumentationURL string       `json:"documentation_url"`
	DefaultTarget    string       `json:"default_target"`
	Features         []Feature    `json:"features"`
	RepositoryID     *int64       `json:"repository_id,omitempty"`
	ArchiveStorage   bool         `json:"archive_storage"`
	SourceSize       int64        `json:"source_size"`
}

// Release is a stored release row.
type Release struct {
	ID        int64
	PackageID int64
	Package   string
	Version   string

	ReleaseTime      time.Time
	Dependencies     []Dependency
	TargetName       string
	Yanked           bool
	RustdocStatus    bool
	TestStatus       bool
	License          string
	RepositoryURL    string
	HomepageURL      string
	Description      string
	DescriptionLong  string
	Readme           string
	Keywords         []string
	HaveExamples     bool
	Downloads        int64
	Files            []string
	DocTargets       []string
	IsLibrary        bool
	DocumentationURL string
	DefaultTarget    string
	Features         []Feature
	RepositoryID     *int64
	ArchiveStorage   bool
	SourceSize       int64
}

// ReleaseVersion pairs a release id with its version string, used when
// recomputing a package's latest pointer.
type ReleaseVersion struct {
	ID      int64
	Version string
}

// Build is one documentation build attempt for a release. Rows are append
// only: a new attempt is always a new row, and a row is mutated exactly once
// when the attempt reaches a terminal status.
type Build struct {
	ID           int64
	ReleaseID    int64
	RustcVersion string
	ToolVersion  string
	Status       BuildStatus
	NightlyDate  *time.Time // derived from RustcVersion at claim; nil when unparseable
	Started      time.Time
	Finished     *time.Time // nil while in progress
	Errors       string     // present on failure or unfinished in_progress
}

// BuildTime resolves the annotated build time: finish time if present,
// else start time.
func (b Build) BuildTime() time.Time {
	if b.Finished != nil {
		return *b.Finished
	}
	return b.Started
}

// StaleRelease is one row of a staleness batch: the latest release of a
// package whose most recent nightly-dated build predates the cutoff.
type StaleRelease struct {
	Package     string
	Version     string
	NightlyDate time.Time // nightly date of the most recent dated build
	LastAttempt time.Time // finish (else start) time of the most recent build
}
