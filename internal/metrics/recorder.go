package metrics

import "time"

// ResultLabel enumerates operation result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultError   ResultLabel = "error"
	ResultInvalid ResultLabel = "invalid"
)

// Recorder defines observability hooks for registry operations. Implementations
// may forward to Prometheus, OpenTelemetry, etc. All methods must be safe on the
// NoopRecorder (allowing optional injection).
type Recorder interface {
	IncIngestResult(result ResultLabel)
	IncLatestAdvance()
	IncBuildClaim()
	IncBuildCompletion(status string)
	ObserveScanDuration(d time.Duration)
	SetStaleBatchSize(n int)
	IncQueuePublish(result ResultLabel)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncIngestResult(ResultLabel)       {}
func (NoopRecorder) IncLatestAdvance()                 {}
func (NoopRecorder) IncBuildClaim()                    {}
func (NoopRecorder) IncBuildCompletion(string)         {}
func (NoopRecorder) ObserveScanDuration(time.Duration) {}
func (NoopRecorder) SetStaleBatchSize(int)             {}
func (NoopRecorder) IncQueuePublish(ResultLabel)       {}
