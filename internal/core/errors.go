package core

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrNetwork    = errors.New("network error")
	ErrUpstream   = errors.New("upstream error")
)

var (
	ErrZeroDate           = errors.New("date cannot be zero")
	ErrNonFiniteAmount    = errors.New("amount must be a finite number")
	ErrDescriptionTooLong = errors.New("description too long (max 500 characters)")
	ErrEmptyID            = errors.New("empty transaction id")
	ErrEmptyMessage       = errors.New("empty message")
)

// Error tags an underlying error with one of the kinds above and the
// operation that produced it.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	default:
		return e.Kind.Error()
	}
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(op string, err error) error { return &Error{Kind: ErrValidation, Op: op, Err: err} }

func NotFound(op string, err error) error { return &Error{Kind: ErrNotFound, Op: op, Err: err} }

func Network(op string, err error) error { return &Error{Kind: ErrNetwork, Op: op, Err: err} }

func Upstream(op string, err error) error { return &Error{Kind: ErrUpstream, Op: op, Err: err} }

// KindOf returns the kind of err, or nil when err is untagged.
func KindOf(err error) error {
	for _, k := range []error{ErrValidation, ErrNotFound, ErrNetwork, ErrUpstream} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
