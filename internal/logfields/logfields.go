package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyPackage     = "package"
	KeyVersion     = "version"
	KeyReleaseID   = "release_id"
	KeyBuildID     = "build_id"
	KeyBuildStatus = "build_status"
	KeyCutoff      = "cutoff"
	KeyBatchSize   = "batch_size"
	KeyLimit       = "limit"
	KeySubject     = "subject"
	KeyDurationMS  = "duration_ms"
	KeyError       = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Package(name string) slog.Attr   { return slog.String(KeyPackage, name) }
func Version(v string) slog.Attr      { return slog.String(KeyVersion, v) }
func ReleaseID(id int64) slog.Attr    { return slog.Int64(KeyReleaseID, id) }
func BuildID(id int64) slog.Attr      { return slog.Int64(KeyBuildID, id) }
func BuildStatus(s string) slog.Attr  { return slog.String(KeyBuildStatus, s) }
func Cutoff(c string) slog.Attr       { return slog.String(KeyCutoff, c) }
func BatchSize(n int) slog.Attr       { return slog.Int(KeyBatchSize, n) }
func Limit(n int) slog.Attr           { return slog.Int(KeyLimit, n) }
func Subject(s string) slog.Attr      { return slog.String(KeySubject, s) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
