package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"git.home.luguber.info/inful/docregistry/internal/foundation/errors"
)

// schema contains the DDL executed on first open. Using IF NOT EXISTS makes
// it safe to run on every startup.
//
// Timestamps are stored as integer Unix nanoseconds; rustc_nightly_date is
// stored as YYYY-MM-DD text so lexicographic comparison equals chronological
// comparison inside the staleness query.
const schema = `
CREATE TABLE IF NOT EXISTS packages (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    name              TEXT NOT NULL UNIQUE,
    latest_release_id INTEGER REFERENCES releases(id)
);

CREATE TABLE IF NOT EXISTS releases (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    package_id        INTEGER NOT NULL REFERENCES packages(id),
    version           TEXT NOT NULL,
    release_time      INTEGER,
    dependencies      TEXT NOT NULL DEFAULT '[]',
    target_name       TEXT NOT NULL DEFAULT '',
    yanked            INTEGER NOT NULL DEFAULT 0,
    rustdoc_status    INTEGER NOT NULL DEFAULT 0,
    test_status       INTEGER NOT NULL DEFAULT 0,
    license           TEXT NOT NULL DEFAULT '',
    repository_url    TEXT NOT NULL DEFAULT '',
    homepage_url      TEXT NOT NULL DEFAULT '',
    description       TEXT NOT NULL DEFAULT '',
    description_long  TEXT NOT NULL DEFAULT '',
    readme            TEXT NOT NULL DEFAULT '',
    keywords          TEXT NOT NULL DEFAULT '[]',
    have_examples     INTEGER NOT NULL DEFAULT 0,
    downloads         INTEGER NOT NULL DEFAULT 0,
    files             TEXT NOT NULL DEFAULT '[]',
    doc_targets       TEXT NOT NULL DEFAULT '[]',
    is_library        INTEGER NOT NULL DEFAULT 1,
    documentation_url TEXT NOT NULL DEFAULT '',
    default_target    TEXT NOT NULL DEFAULT '',
    features          TEXT NOT NULL DEFAULT '[]',
    repository_id     INTEGER,
    archive_storage   INTEGER NOT NULL DEFAULT 0,
    source_size       INTEGER NOT NULL DEFAULT 0,
    UNIQUE(package_id, version)
);

CREATE TABLE IF NOT EXISTS builds (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    release_id         INTEGER NOT NULL REFERENCES releases(id),
    rustc_version      TEXT,
    tool_version       TEXT,
    build_status       TEXT NOT NULL CHECK (build_status IN ('in_progress','success','failure')),
    rustc_nightly_date TEXT,
    build_started      INTEGER NOT NULL,
    build_finished     INTEGER,
    errors             TEXT
);

CREATE INDEX IF NOT EXISTS idx_builds_release ON builds(release_id);
CREATE INDEX IF NOT EXISTS idx_releases_package ON releases(package_id);

-- Optional strengthening, not enabled by default: the scheduling discipline,
-- not the store, keeps one in_progress build per release. Operators wanting a
-- hard guarantee can add:
--   CREATE UNIQUE INDEX idx_one_in_progress ON builds(release_id)
--     WHERE build_status = 'in_progress';
`

// SQLiteStore implements Store using a local SQLite database in WAL mode.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, enables WAL
// mode and foreign keys, and creates the schema tables if they do not exist.
// Use ":memory:" for an in-memory database.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	// Failures below wrap the cause under the sentinel's category and
	// message, so callers can match ErrStoreOpenFailed / ErrSchemaInitFailed
	// with errors.Is.
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryCatalog, "could not open catalog database").Retryable().Build()
	}

	// Limit to one connection. SQLite only supports a single writer; using
	// one connection avoids SQLITE_BUSY contention between pooled connections
	// that each need their own PRAGMA setup.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		// The first pragma also establishes the connection, so a bad path
		// surfaces here.
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, errors.WrapError(err, errors.CategoryCatalog, "could not open catalog database").
				WithContext("pragma", pragma).Retryable().Build()
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, errors.WrapError(err, errors.CategoryCatalog, "failed to initialize catalog schema").Retryable().Build()
	}

	return &SQLiteStore{db: db}, nil
}

// UpsertRelease performs the atomic insert-or-merge for one release record.
// The conflict target is the (package_id, version) uniqueness constraint, so
// two racing ingestors for the same release end with exactly one row holding
// one of the two value sets; the losing writer simply overwrites. The
// download counter is store-owned and never refreshed here.
func (s *SQLiteStore) UpsertRelease(ctx context.Context, meta ReleaseMetadata) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("catalog: begin upsert tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO packages (name) VALUES (?) ON CONFLICT(name) DO NOTHING`,
		meta.Package,
	); err != nil {
		return 0, fmt.Errorf("catalog: ensure package %q: %w", meta.Package, err)
	}

	var packageID int64
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM packages WHERE name = ?`, meta.Package,
	).Scan(&packageID); err != nil {
		return 0, fmt.Errorf("catalog: package id for %q: %w", meta.Package, err)
	}

	deps, err := marshalJSON(meta.Dependencies)
	if err != nil {
		return 0, err
	}
	keywords, err := marshalJSON(meta.Keywords)
	if err != nil {
		return 0, err
	}
	files, err := marshalJSON(meta.Files)
	if err != nil {
		return 0, err
	}
	docTargets, err := marshalJSON(meta.DocTargets)
	if err != nil {
		return 0, err
	}
	features, err := marshalJSON(meta.Features)
	if err != nil {
		return 0, err
	}

	const q = `
		INSERT INTO releases (
			package_id, version, release_time, dependencies, target_name,
			yanked, rustdoc_status, test_status, license, repository_url,
			homepage_url, description, description_long, readme, keywords,
			have_examples, files, doc_targets, is_library, documentation_url,
			default_target, features, repository_id, archive_storage, source_size
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(package_id, version) DO UPDATE SET
			release_time      = excluded.release_time,
			dependencies      = excluded.dependencies,
			target_name       = excluded.target_name,
			yanked            = excluded.yanked,
			rustdoc_status    = excluded.rustdoc_status,
			test_status       = excluded.test_status,
			license           = excluded.license,
			repository_url    = excluded.repository_url,
			homepage_url      = excluded.homepage_url,
			description       = excluded.description,
			description_long  = excluded.description_long,
			readme            = excluded.readme,
			keywords          = excluded.keywords,
			have_examples     = excluded.have_examples,
			files             = excluded.files,
			doc_targets       = excluded.doc_targets,
			is_library        = excluded.is_library,
			documentation_url = excluded.documentation_url,
			default_target    = excluded.default_target,
			features          = excluded.features,
			repository_id     = excluded.repository_id,
			archive_storage   = excluded.archive_storage,
			source_size       = excluded.source_size
		RETURNING id`

	var releaseID int64
	if err := tx.QueryRowContext(ctx, q,
		packageID, meta.Version, nullableUnixNano(meta.ReleaseTime), deps, meta.TargetName,
		boolToInt(meta.Yanked), boolToInt(meta.RustdocStatus), boolToInt(meta.TestStatus),
		meta.License, meta.RepositoryURL,
		meta.HomepageURL, meta.Description, meta.DescriptionLong, meta.Readme, keywords,
		boolToInt(meta.HaveExamples), files, docTargets, boolToInt(meta.IsLibrary), meta.DocumentationURL,
		meta.DefaultTarget, features, meta.RepositoryID, boolToInt(meta.ArchiveStorage), meta.SourceSize,
	).Scan(&releaseID); err != nil {
		return 0, fmt.Errorf("catalog: upsert release %s/%s: %w", meta.Package, meta.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("catalog: commit upsert: %w", err)
	}
	return releaseID, nil
}

// ReleaseVersions returns all (id, version) pairs for a package.
func (s *SQLiteStore) ReleaseVersions(ctx context.Context, pkg string) ([]ReleaseVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.version FROM releases r
		 JOIN packages p ON p.id = r.package_id
		 WHERE p.name = ? ORDER BY r.id`, pkg)
	if err != nil {
		return nil, fmt.Errorf("catalog: query versions for %q: %w", pkg, err)
	}
	defer rows.Close()

	var out []ReleaseVersion
	for rows.Next() {
		var rv ReleaseVersion
		if err := rows.Scan(&rv.ID, &rv.Version); err != nil {
			return nil, fmt.Errorf("catalog: scan version: %w", err)
		}
		out = append(out, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate versions: %w", err)
	}
	return out, nil
}

// SetLatestRelease points the package's latest pointer at releaseID. The
// subquery guard keeps the invariant that the pointer always references a
// release of that package.
func (s *SQLiteStore) SetLatestRelease(ctx context.Context, pkg string, releaseID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE packages SET latest_release_id = ?
		 WHERE name = ?
		   AND EXISTS (SELECT 1 FROM releases WHERE id = ? AND package_id = packages.id)`,
		releaseID, pkg, releaseID)
	if err != nil {
		return fmt.Errorf("catalog: set latest release for %q: %w", pkg, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("catalog: set latest rows affected: %w", err)
	}
	if n == 0 {
		var packageID int64
		err := s.db.QueryRowContext(ctx, `SELECT id FROM packages WHERE name = ?`, pkg).Scan(&packageID)
		if err == sql.ErrNoRows {
			return ErrPackageNotFound.WithContext("package", pkg)
		}
		if err != nil {
			return fmt.Errorf("catalog: verify package %q: %w", pkg, err)
		}
		return ErrReleaseNotFound.WithContext("package", pkg).WithContext("release_id", releaseID)
	}
	return nil
}

// LatestRelease returns the release referenced by the package's latest pointer.
func (s *SQLiteStore) LatestRelease(ctx context.Context, pkg string) (*Release, error) {
	return s.queryRelease(ctx,
		releaseColumns+`
		 FROM releases r
		 JOIN packages p ON p.id = r.package_id
		 WHERE p.name = ? AND p.latest_release_id = r.id`, pkg)
}

// GetRelease returns the full release row for (package, version).
func (s *SQLiteStore) GetRelease(ctx context.Context, pkg, version string) (*Release, error) {
	return s.queryRelease(ctx,
		releaseColumns+`
		 FROM releases r
		 JOIN packages p ON p.id = r.package_id
		 WHERE p.name = ? AND r.version = ?`, pkg, version)
}

// ClaimBuild appends a fresh in_progress row. The nightly date is derived
// once here from the toolchain version string; builds without a parseable
// date store NULL and never qualify for staleness comparison.
func (s *SQLiteStore) ClaimBuild(ctx context.Context, releaseID int64, rustcVersion, toolVersion string) (int64, error) {
	var nightly any
	if d, ok := ParseNightlyDate(rustcVersion); ok {
		nightly = FormatNightlyDate(d)
	}

	var buildID int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO builds (release_id, rustc_version, tool_version, build_status, rustc_nightly_date, build_started)
		 SELECT id, ?, ?, ?, ?, ? FROM releases WHERE id = ?
		 RETURNING id`,
		rustcVersion, toolVersion, string(StatusInProgress), nightly,
		time.Now().UTC().UnixNano(), releaseID,
	).Scan(&buildID)
	if err == sql.ErrNoRows {
		return 0, ErrReleaseNotFound.WithContext("release_id", releaseID)
	}
	if err != nil {
		return 0, fmt.Errorf("catalog: claim build for release %d: %w", releaseID, err)
	}
	return buildID, nil
}

// CompleteBuild applies the single terminal mutation of a build row. A second
// completion against the same id fails with ErrBuildAlreadyCompleted.
func (s *SQLiteStore) CompleteBuild(ctx context.Context, buildID int64, status BuildStatus, errorText string) error {
	if !status.IsTerminal() {
		return errors.ValidationError("complete requires a terminal status").
			WithContext("status", string(status)).Build()
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE builds SET build_status = ?, build_finished = ?, errors = NULLIF(?, '')
		 WHERE id = ? AND build_status = ?`,
		string(status), time.Now().UTC().UnixNano(), errorText, buildID, string(StatusInProgress))
	if err != nil {
		return fmt.Errorf("catalog: complete build %d: %w", buildID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("catalog: complete rows affected: %w", err)
	}
	if n == 0 {
		var existing string
		err := s.db.QueryRowContext(ctx, `SELECT build_status FROM builds WHERE id = ?`, buildID).Scan(&existing)
		if err == sql.ErrNoRows {
			return ErrBuildNotFound.WithContext("build_id", buildID)
		}
		if err != nil {
			return fmt.Errorf("catalog: verify build %d: %w", buildID, err)
		}
		return ErrBuildAlreadyCompleted.WithContext("build_id", buildID).WithContext("status", existing)
	}
	return nil
}

// ListBuilds returns every build row for (package, version), most recent
// first. Ordering by the monotonically assigned id is equivalent to insertion
// order.
func (s *SQLiteStore) ListBuilds(ctx context.Context, pkg, version string) ([]Build, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT b.id, b.release_id, COALESCE(b.rustc_version, ''), COALESCE(b.tool_version, ''),
		        b.build_status, b.rustc_nightly_date, b.build_started, b.build_finished,
		        COALESCE(b.errors, '')
		 FROM builds b
		 JOIN releases r ON r.id = b.release_id
		 JOIN packages p ON p.id = r.package_id
		 WHERE p.name = ? AND r.version = ?
		 ORDER BY b.id DESC`, pkg, version)
	if err != nil {
		return nil, fmt.Errorf("catalog: query builds for %s/%s: %w", pkg, version, err)
	}
	defer rows.Close()

	var builds []Build
	for rows.Next() {
		var (
			b        Build
			status   string
			nightly  sql.NullString
			started  int64
			finished sql.NullInt64
		)
		if err := rows.Scan(&b.ID, &b.ReleaseID, &b.RustcVersion, &b.ToolVersion,
			&status, &nightly, &started, &finished, &b.Errors); err != nil {
			return nil, fmt.Errorf("catalog: scan build: %w", err)
		}
		b.Status = BuildStatus(status)
		b.Started = time.Unix(0, started).UTC()
		if finished.Valid {
			t := time.Unix(0, finished.Int64).UTC()
			b.Finished = &t
		}
		if nightly.Valid {
			if d, err := time.ParseInLocation(nightlyDateLayout, nightly.String, time.UTC); err == nil {
				b.NightlyDate = &d
			}
		}
		builds = append(builds, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate builds: %w", err)
	}
	return builds, nil
}

// FindStale selects, oldest attempt first, latest releases due for a rebuild.
//
// Eligibility: the release is its package's latest, has some prior successful
// documentation build (rustdoc_status), and its most recent nightly-dated
// build predates the cutoff. Releases with no nightly-dated build at all drop
// out of the join: staleness cannot be judged without a reference date.
// Ordering by last attempt time keeps the batch starvation free.
func (s *SQLiteStore) FindStale(ctx context.Context, cutoff time.Time, limit int) ([]StaleRelease, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.name, r.version, d.rustc_nightly_date,
		        COALESCE(l.build_finished, l.build_started) AS last_attempt
		 FROM packages p
		 JOIN releases r ON r.id = p.latest_release_id
		 JOIN builds l ON l.id = (SELECT MAX(id) FROM builds WHERE release_id = r.id)
		 JOIN builds d ON d.id = (SELECT MAX(id) FROM builds
		                          WHERE release_id = r.id AND rustc_nightly_date IS NOT NULL)
		 WHERE r.rustdoc_status = 1
		   AND d.rustc_nightly_date < ?
		 ORDER BY last_attempt ASC
		 LIMIT ?`,
		FormatNightlyDate(cutoff), limit)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryCatalog, "query stale releases").Retryable().Build()
	}
	defer rows.Close()

	var out []StaleRelease
	for rows.Next() {
		var (
			sr          StaleRelease
			nightly     string
			lastAttempt int64
		)
		if err := rows.Scan(&sr.Package, &sr.Version, &nightly, &lastAttempt); err != nil {
			return nil, errors.WrapError(err, errors.CategoryCatalog, "scan stale release").Retryable().Build()
		}
		d, err := time.ParseInLocation(nightlyDateLayout, nightly, time.UTC)
		if err != nil {
			return nil, errors.WrapError(err, errors.CategoryCatalog, "parse nightly date").Build()
		}
		sr.NightlyDate = d
		sr.LastAttempt = time.Unix(0, lastAttempt).UTC()
		out = append(out, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapError(err, errors.CategoryCatalog, "iterate stale releases").Retryable().Build()
	}
	return out, nil
}

// IncrementDownloads bumps the per-release download counter.
func (s *SQLiteStore) IncrementDownloads(ctx context.Context, pkg, version string) error {
	return s.updateRelease(ctx, pkg, version,
		`UPDATE releases SET downloads = downloads + 1`)
}

// SetYanked flips the withdrawal flag of a release.
func (s *SQLiteStore) SetYanked(ctx context.Context, pkg, version string, yanked bool) error {
	return s.updateRelease(ctx, pkg, version,
		`UPDATE releases SET yanked = ?`, boolToInt(yanked))
}

// updateRelease runs a release-scoped UPDATE whose WHERE clause is appended
// here; args bind the statement's own placeholders, which precede it.
func (s *SQLiteStore) updateRelease(ctx context.Context, pkg, version, stmt string, args ...any) error {
	args = append(args, pkg, version)
	res, err := s.db.ExecContext(ctx,
		stmt+` WHERE id = (SELECT r.id FROM releases r
		                   JOIN packages p ON p.id = r.package_id
		                   WHERE p.name = ? AND r.version = ?)`,
		args...)
	if err != nil {
		return fmt.Errorf("catalog: update release %s/%s: %w", pkg, version, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("catalog: update rows affected: %w", err)
	}
	if n == 0 {
		return ErrReleaseNotFound.WithContext("package", pkg).WithContext("version", version)
	}
	return nil
}

// releaseColumns is the shared SELECT list for full release rows.
const releaseColumns = `
		SELECT r.id, r.package_id, p.name, r.version, r.release_time, r.dependencies,
		       r.target_name, r.yanked, r.rustdoc_status, r.test_status, r.license,
		       r.repository_url, r.homepage_url, r.description, r.description_long,
		       r.readme, r.keywords, r.have_examples, r.downloads, r.files,
		       r.doc_targets, r.is_library, r.documentation_url, r.default_target,
		       r.features, r.repository_id, r.archive_storage, r.source_size`

func (s *SQLiteStore) queryRelease(ctx context.Context, query string, args ...any) (*Release, error) {
	var (
		r           Release
		releaseTime sql.NullInt64
		deps        string
		keywords    string
		files       string
		docTargets  string
		features    string
		repoID      sql.NullInt64
		yanked      int
		rustdoc     int
		test        int
		examples    int
		isLibrary   int
		archive     int
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&r.ID, &r.PackageID, &r.Package, &r.Version, &releaseTime, &deps,
		&r.TargetName, &yanked, &rustdoc, &test, &r.License,
		&r.RepositoryURL, &r.HomepageURL, &r.Description, &r.DescriptionLong,
		&r.Readme, &keywords, &examples, &r.Downloads, &files,
		&docTargets, &isLibrary, &r.DocumentationURL, &r.DefaultTarget,
		&features, &repoID, &archive, &r.SourceSize,
	)
	if err == sql.ErrNoRows {
		return nil, ErrReleaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: query release: %w", err)
	}

	if releaseTime.Valid {
		r.ReleaseTime = time.Unix(0, releaseTime.Int64).UTC()
	}
	if repoID.Valid {
		id := repoID.Int64
		r.RepositoryID = &id
	}
	r.Yanked = yanked != 0
	r.RustdocStatus = rustdoc != 0
	r.TestStatus = test != 0
	r.HaveExamples = examples != 0
	r.IsLibrary = isLibrary != 0
	r.ArchiveStorage = archive != 0

	for _, field := range []struct {
		raw  string
		dest any
	}{
		{deps, &r.Dependencies},
		{keywords, &r.Keywords},
		{files, &r.Files},
		{docTargets, &r.DocTargets},
		{features, &r.Features},
	} {
		if err := json.Unmarshal([]byte(field.raw), field.dest); err != nil {
			return nil, fmt.Errorf("catalog: unmarshal release field: %w", err)
		}
	}
	return &r, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func marshalJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("catalog: marshal field: %w", err)
	}
	// Normalize nil slices so stored JSON is always a list.
	if string(data) == "null" {
		return "[]", nil
	}
	return string(data), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableUnixNano(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().UnixNano()
}
