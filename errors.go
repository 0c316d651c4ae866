package requery

import (
	"errors"
	"fmt"
	"time"
)

// Error type tags carried by QueryError.
const (
	ErrorTypeFetch         = "Fetch"
	ErrorTypeCancelled     = "Cancelled"
	ErrorTypeConfiguration = "Configuration"
	ErrorTypeClosed        = "Closed"
)

// Sentinel errors for common failure scenarios
var (
	// ErrClosed is returned when operating on a closed client.
	ErrClosed = errors.New("requery: client closed")

	// ErrEntryRemoved is returned to waiters when the entry a fetch was
	// started for no longer exists.
	ErrEntryRemoved = errors.New("requery: entry removed")

	// ErrFetchInProgress is returned by TryRefetch when a fetch for the key
	// is already running.
	ErrFetchInProgress = errors.New("requery: fetch already in progress")

	// ErrRetriesExhausted wraps the final fetch error once the retry policy
	// gives up.
	ErrRetriesExhausted = errors.New("requery: retries exhausted")
)

// QueryError is the structured error surfaced by the client.
type QueryError struct {
	Type       string
	Message    string
	Key        Key
	Attempt    int
	MaxRetries int
	Timestamp  time.Time
	Duration   time.Duration
	Cause      error
}

// Error implements error interface.
func (e *QueryError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if !e.Key.IsZero() {
		msg = fmt.Sprintf("[%s] %s", e.Key, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxRetries)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *QueryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *QueryError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*QueryError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *QueryError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Type: %s\n", e.Type)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if !e.Key.IsZero() {
		info += fmt.Sprintf("Key: %s\n", e.Key)
	}
	if e.Attempt > 0 {
		info += fmt.Sprintf("Attempt: %d/%d\n", e.Attempt, e.MaxRetries)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}

// IsTransient determines if an error represents a transient failure that
// might succeed on refetch. Fetch errors are transient; cancellation and
// configuration errors are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var queryErr *QueryError
	if errors.As(err, &queryErr) {
		return queryErr.Type == ErrorTypeFetch
	}
	return false
}

// IsCancelled reports whether the error stems from an entry being removed or
// superseded before its fetch completed.
func IsCancelled(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrEntryRemoved) {
		return true
	}
	var queryErr *QueryError
	if errors.As(err, &queryErr) {
		return queryErr.Type == ErrorTypeCancelled
	}
	return false
}

func newConfigurationError(message string, cause error) *QueryError {
	return &QueryError{
		Type:      ErrorTypeConfiguration,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}
