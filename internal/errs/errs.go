package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies where an error originated.
type Kind int

// Error kinds.
const (
	KindUnknown Kind = iota
	KindValidation
	KindModel
	KindTool
	KindStorage
	KindLimit
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindModel:
		return "model"
	case KindTool:
		return "tool"
	case KindStorage:
		return "storage"
	case KindLimit:
		return "limit"
	default:
		return "unknown"
	}
}

// UserErrorf is a user-facing error.
// This helper exists mostly to avoid linters complaining about errors starting
// with a capitalized letter.
func UserErrorf(format string, a ...any) error {
	return fmt.Errorf(format, a...)
}

// Error wraps an underlying error with a user-facing reason.
//
// Reason is meant to be short and actionable; Err may contain technical details.
// When Err is nil, Error() falls back to Reason.
type Error struct {
	Kind   Kind
	Err    error
	Reason string
}

// Wrap creates an Error with the given underlying error and user-facing reason.
func Wrap(err error, reason string) Error {
	return Error{Err: err, Reason: reason}
}

// Wrapf creates an Error with the given underlying error and a formatted reason.
func Wrapf(err error, format string, a ...any) Error {
	return Error{Err: err, Reason: fmt.Sprintf(format, a...)}
}

// New creates a classified Error.
func New(kind Kind, err error, reason string) Error {
	return Error{Kind: kind, Err: err, Reason: reason}
}

// Validation reports invalid caller input.
func Validation(reason string) Error {
	return Error{Kind: KindValidation, Reason: reason}
}

func (e Error) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Reason
}

func (e Error) Unwrap() error {
	return e.Err
}

// ReasonText returns the user-facing reason for the error.
func (e Error) ReasonText() string {
	return e.Reason
}

// Message is the reason followed by the technical detail when both exist.
func (e Error) Message() string {
	switch {
	case e.Reason != "" && e.Err != nil:
		return strings.TrimSuffix(e.Reason, ".") + ": " + e.Err.Error()
	case e.Reason != "":
		return e.Reason
	case e.Err != nil:
		return e.Err.Error()
	default:
		return "unknown error"
	}
}

// KindOf returns the first classified Kind in err's chain.
func KindOf(err error) Kind {
	for err != nil {
		var e Error
		if !errors.As(err, &e) {
			return KindUnknown
		}
		if e.Kind != KindUnknown {
			return e.Kind
		}
		err = e.Err
	}
	return KindUnknown
}

// MessageOf renders err for a caller. The outermost Error wins.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var e Error
	if errors.As(err, &e) {
		return e.Message()
	}
	return err.Error()
}
