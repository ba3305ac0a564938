// Package cerrors defines the typed error kinds Configmaton surfaces
// across the build and load phases: BuildRejected, RegexInvalid,
// OutOfBudget, ImageCorrupt. Runtime operations on a loaded image are
// infallible by construction and never return one of these.
package cerrors

import "fmt"

// Kind identifies which of the four error categories a Error belongs to.
type Kind string

const (
	// BuildRejected means the rule input violated the surface schema:
	// missing "when", mixing "when" and "goto", an unknown field, a
	// non-string regex, or a reference to an unknown label.
	BuildRejected Kind = "BUILD_REJECTED"

	// RegexInvalid means a regex could not be lowered to the supported
	// subset (literals, dot, alternation, concatenation, repetition,
	// non-negated character classes). Anchors, flags and negated classes
	// are rejected.
	RegexInvalid Kind = "REGEX_INVALID"

	// OutOfBudget means determinization produced more character-NFA
	// states than the configured stop_size. Determinization halts early;
	// semantics are preserved but match cost may increase.
	OutOfBudget Kind = "OUT_OF_BUDGET"

	// ImageCorrupt means the fixup phase found an offset outside
	// [0, len) or a misaligned pointer while loading a blob.
	ImageCorrupt Kind = "IMAGE_CORRUPT"
)

// Error is a structured error carrying a Kind, a human message, an
// optional wrapped cause, and free-form context for diagnostics.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an Error of the given kind with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Context: make(map[string]any)}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap creates an Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause, Context: make(map[string]any)}
}

// With attaches a context key/value and returns the receiver for chaining.
func (e *Error) With(key string, value any) *Error {
	e.Context[key] = value
	return e
}

// Is reports whether err is a *Error of the given kind, unwrapping as needed.
func Is(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Kind == kind {
				return true
			}
			err = e.Cause
			continue
		}
		break
	}
	return false
}
