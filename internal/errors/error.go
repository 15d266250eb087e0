// Package errors provides the structured error type shared by every stage of
// the signal engine.
//
// Each error carries a Kind so callers can tell recoverable per-symbol
// conditions apart without string matching:
//
//	series, rec, err := st.Load(ctx, "ABC")
//	if errors.HasKind(err, errors.KindNotFound) {
//		// first pull: empty series, zero snapshot
//	}
//
// Symbol and Stage are attached as the error travels up the pipeline so a
// report can render a placeholder naming where a symbol failed.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindFetch
	KindInsufficientHistory
	KindOutOfRange
	KindEmptyWindow
	KindInvalidConfig
	KindNonMonotonic
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindFetch:
		return "fetch"
	case KindInsufficientHistory:
		return "insufficient_history"
	case KindOutOfRange:
		return "out_of_range"
	case KindEmptyWindow:
		return "empty_window"
	case KindInvalidConfig:
		return "invalid_config"
	case KindNonMonotonic:
		return "non_monotonic"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Error is a classified error with optional symbol/stage context.
type Error struct {
	Kind    Kind
	Symbol  string
	Stage   string
	Message string
	Cause   error
}

// Sentinels usable with errors.Is; matching is by Kind only.
var (
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrFetch               = &Error{Kind: KindFetch}
	ErrInsufficientHistory = &Error{Kind: KindInsufficientHistory}
	ErrOutOfRange          = &Error{Kind: KindOutOfRange}
	ErrEmptyWindow         = &Error{Kind: KindEmptyWindow}
	ErrInvalidConfig       = &Error{Kind: KindInvalidConfig}
	ErrNonMonotonic        = &Error{Kind: KindNonMonotonic}
)

// New creates an Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps cause into an Error of the given kind.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Wrapf wraps cause with a formatted message.
func Wrapf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Error implements the error interface. Format: "[stage] symbol: message: cause".
func (e *Error) Error() string {
	var b strings.Builder
	if e.Stage != "" {
		b.WriteString("[" + e.Stage + "] ")
	}
	if e.Symbol != "" {
		b.WriteString(e.Symbol + ": ")
	}
	switch {
	case e.Message != "" && e.Cause != nil:
		b.WriteString(e.Message + ": " + e.Cause.Error())
	case e.Message != "":
		b.WriteString(e.Message)
	case e.Cause != nil:
		b.WriteString(e.Cause.Error())
	default:
		b.WriteString(e.Kind.String())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error of the same Kind, so the package sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// WithSymbol returns err annotated with symbol. Non-*Error values are wrapped as KindUnknown.
func WithSymbol(err error, symbol string) error {
	if err == nil {
		return nil
	}
	e := annotate(err)
	e.Symbol = symbol
	return e
}

// WithStage returns err annotated with the pipeline stage.
func WithStage(err error, stage string) error {
	if err == nil {
		return nil
	}
	e := annotate(err)
	e.Stage = stage
	return e
}

// annotate returns a shallow copy of the outermost *Error, or wraps err.
func annotate(err error) *Error {
	var e *Error
	if errors.As(err, &e) && e == err {
		cp := *e
		return &cp
	}
	return &Error{Kind: KindOf(err), Cause: err, Message: "", Symbol: symbolOf(err), Stage: stageOf(err)}
}

// KindOf extracts the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// HasKind reports whether err's chain holds an *Error of kind.
func HasKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, &Error{Kind: kind})
}

// Is is a convenience wrapper around the standard errors.Is.
func Is(err, target error) bool { return errors.Is(err, target) }

// As is a convenience wrapper around the standard errors.As.
func As(err error, target any) bool { return errors.As(err, target) }

func symbolOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Symbol
	}
	return ""
}

func stageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}
