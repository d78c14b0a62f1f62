// Package triage classifies errors by how a service should react to them.
//
// Every error produced by the runtime, and every error returned by an
// application handler, maps to one of three severities:
//
//   - Transient: the operation may succeed if retried
//   - Permanent: retrying is pointless, surface the error and drop the work
//   - Fatal: continuing is unsafe, the process should terminate
//
// Error types declare their own severity by implementing [Triager]. A type
// either returns a fixed severity or defers to the error it wraps:
//
//	type LookupError struct {
//	    Key   string
//	    Cause error
//	}
//
//	func (e *LookupError) Severity() triage.Severity { return triage.Of(e.Cause) }
//
// Errors that do not implement [Triager] are classified by [Of] using a table
// of known standard library, network and broker error types.
package triage

import "fmt"

// Severity describes how an error should be handled
type Severity int

const (
	// Transient errors are recoverable and the operation should be retried
	Transient Severity = iota + 1
	// Permanent errors are unrecoverable, the operation should not be retried
	Permanent
	// Fatal errors are unrecoverable and the process should terminate
	Fatal
)

// String returns the lowercase name of the severity
func (s Severity) String() string {
	switch s {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Triager is an error that knows its own severity
type Triager interface {
	error
	Severity() Severity
}

// classified attaches a fixed severity to an error
type classified struct {
	err      error
	severity Severity
}

func (c *classified) Error() string      { return c.err.Error() }
func (c *classified) Unwrap() error      { return c.err }
func (c *classified) Severity() Severity { return c.severity }

// WithSeverity returns err annotated with a fixed severity.
// A nil err returns nil.
func WithSeverity(err error, s Severity) error {
	if err == nil {
		return nil
	}
	return &classified{err: err, severity: s}
}

// AsTransient marks err as retryable
func AsTransient(err error) error { return WithSeverity(err, Transient) }

// AsPermanent marks err as not retryable
func AsPermanent(err error) error { return WithSeverity(err, Permanent) }

// AsFatal marks err as requiring process termination
func AsFatal(err error) error { return WithSeverity(err, Fatal) }

// Errorf formats an error with a fixed severity. The format supports %w.
func Errorf(s Severity, format string, args ...interface{}) error {
	return WithSeverity(fmt.Errorf(format, args...), s)
}

// IsTransient reports whether err classifies as Transient
func IsTransient(err error) bool { return Of(err) == Transient }

// IsPermanent reports whether err classifies as Permanent
func IsPermanent(err error) bool { return Of(err) == Permanent }

// IsFatal reports whether err classifies as Fatal
func IsFatal(err error) bool { return Of(err) == Fatal }
