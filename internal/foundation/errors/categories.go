package errors

// ErrorCategory represents the broad category of an error for classification and routing.
type ErrorCategory string

const (
	// CategoryConfig represents user-facing configuration and input errors.
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"
	CategoryNotFound   ErrorCategory = "not_found"

	// CategoryCatalog represents durable store errors.
	CategoryCatalog ErrorCategory = "catalog"

	// CategoryIngest, CategoryTracker and CategoryScheduler represent
	// component-level processing errors.
	CategoryIngest    ErrorCategory = "ingest"
	CategoryTracker   ErrorCategory = "tracker"
	CategoryScheduler ErrorCategory = "scheduler"

	// CategoryQueue represents job transport errors.
	CategoryQueue ErrorCategory = "queue"

	// CategoryInternal represents runtime and infrastructure errors.
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates the impact level of an error.
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution completely
	SeverityError   ErrorSeverity = "error"   // Fails the current operation
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
)

// RetryStrategy describes how a failed operation should be retried, if at all.
type RetryStrategy string

const (
	RetryNever      RetryStrategy = "never"
	RetryImmediate  RetryStrategy = "immediate"
	RetryBackoff    RetryStrategy = "backoff"
	RetryUserAction RetryStrategy = "user_action"
)

// ErrorContext carries structured key-value context on a classified error.
type ErrorContext map[string]any

// Set returns a copy of the context with the key set.
func (c ErrorContext) Set(key string, value any) ErrorContext {
	out := make(ErrorContext, len(c)+1)
	for k, v := range c {
		out[k] = v
	}
	out[key] = value
	return out
}
