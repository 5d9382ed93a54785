package core

import (
	"errors"
	"fmt"
)

// Category classifies a failure for exit-code mapping.
type Category int

// Error categories.
const (
	CategoryInput Category = iota + 1
	CategoryOrchestration
	CategoryIO
	CategoryComputation
	CategoryInternal
)

// Exit codes shared by every entrypoint.
const (
	ExitSuccess        = 0
	ExitRegressionFail = 1
	ExitUsage          = 2
	ExitIO             = 3
	ExitComputation    = 4
	ExitInternal       = 5
)

// String returns the category name used in debug logging.
func (c Category) String() string {
	switch c {
	case CategoryInput:
		return "input"
	case CategoryOrchestration:
		return "orchestration"
	case CategoryIO:
		return "io"
	case CategoryComputation:
		return "computation"
	case CategoryInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// ExitCode maps the category onto the process exit code.
func (c Category) ExitCode() int {
	switch c {
	case CategoryInput, CategoryOrchestration:
		return ExitUsage
	case CategoryIO:
		return ExitIO
	case CategoryComputation:
		return ExitComputation
	default:
		return ExitInternal
	}
}

// Error is a classified failure carrying a dotted placeholder such as
// IO.COMPTON_INPUT_READ.
type Error struct {
	Category    Category
	Placeholder string
	Message     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Placeholder, e.Message)
}

// ExitCode returns the process exit code for the error.
func (e *Error) ExitCode() int {
	return e.Category.ExitCode()
}

// DiagnosticLine renders the first stderr line for a fatal failure.
func (e *Error) DiagnosticLine() string {
	return fmt.Sprintf("ERROR: [%s] %s", e.Placeholder, e.Message)
}

// FatalExitLine renders the trailing stderr summary line.
func (e *Error) FatalExitLine() string {
	return fmt.Sprintf("FATAL EXIT CODE: %d", e.ExitCode())
}

// WarningLine renders a non-fatal diagnostic with the same placeholder style.
func WarningLine(placeholder, message string) string {
	return fmt.Sprintf("WARNING: [%s] %s", placeholder, message)
}

// InputError reports a caller contract violation.
func InputError(placeholder, format string, args ...any) *Error {
	return newError(CategoryInput, placeholder, format, args...)
}

// OrchestrationError reports a runtime orchestration failure such as a failed
// capture subprocess.
func OrchestrationError(placeholder, format string, args ...any) *Error {
	return newError(CategoryOrchestration, placeholder, format, args...)
}

// IOError reports a filesystem failure.
func IOError(placeholder, format string, args ...any) *Error {
	return newError(CategoryIO, placeholder, format, args...)
}

// ComputeError reports a module parsing or computation failure.
func ComputeError(placeholder, format string, args ...any) *Error {
	return newError(CategoryComputation, placeholder, format, args...)
}

// InternalError reports a violated internal invariant.
func InternalError(placeholder, format string, args ...any) *Error {
	return newError(CategoryInternal, placeholder, format, args...)
}

func newError(category Category, placeholder, format string, args ...any) *Error {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &Error{Category: category, Placeholder: placeholder, Message: msg}
}

// AsError extracts a classified error from err. Unclassified errors are
// wrapped as internal failures under fallback.
func AsError(err error, fallback string) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return InternalError(fallback, "%s", err.Error())
}

// HasPlaceholder reports whether err is a classified error with placeholder.
func HasPlaceholder(err error, placeholder string) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Placeholder == placeholder
}
