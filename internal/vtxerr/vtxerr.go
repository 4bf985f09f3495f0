// Package vtxerr defines the closed set of error kinds surfaced at the
// namespace API boundary. Every package in this module funnels its
// sentinel errors through New/Wrap so a caller can always recover a Kind
// via errors.As, while errors.Is against package-level sentinels still
// works because Error wraps the original error.
package vtxerr

import "fmt"

// Kind is a closed enumeration of the error conditions the namespace API
// can surface. It is never extended at runtime.
type Kind int

const (
	// OutOfBounds indicates indexed access beyond a structure's length.
	OutOfBounds Kind = iota
	// DimMismatch indicates a vector's dimensionality did not match the
	// namespace's configured width.
	DimMismatch
	// LengthMismatch indicates batched input arrays of differing lengths.
	LengthMismatch
	// BadMetadata indicates malformed metadata JSON.
	BadMetadata
	// BadFilter indicates malformed filter JSON.
	BadFilter
	// Corruption indicates a snapshot framing or structural invariant
	// violation discovered during load, split, or calibrate.
	Corruption
)

func (k Kind) String() string {
	switch k {
	case OutOfBounds:
		return "OutOfBounds"
	case DimMismatch:
		return "DimMismatch"
	case LengthMismatch:
		return "LengthMismatch"
	case BadMetadata:
		return "BadMetadata"
	case BadFilter:
		return "BadFilter"
	case Corruption:
		return "Corruption"
	default:
		return "Unknown"
	}
}

// Error is the single tagged value every error surfaces as at the API
// boundary. It wraps an underlying error so errors.Is/errors.As against
// package sentinels continues to work.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error of the given kind from a message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf("%s", msg)}
}

// Wrap tags an existing error with a Kind. Wrapping a nil error returns nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// Is reports whether err (or any error it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
