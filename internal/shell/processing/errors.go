package processing

import (
	"errors"
	"fmt"
)

// Kind classifies processing failures for the HTTP boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is a processing failure with a client-facing message.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func invalid(op, msg string, err error) *Error {
	return &Error{Kind: KindInvalidInput, Op: op, Message: msg, Err: err}
}

func notFound(op, msg string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: msg}
}

func internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Op: op, Message: err.Error(), Err: err}
}

// KindOf returns the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// MessageOf returns the client-facing message of err.
func MessageOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Message
	}
	return err.Error()
}
