// Package apperr carries stable public error codes from the domain services to the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindGone
	KindLimited
)

// Error is returned by domain services. Code is the value clients see in {"error": code}.
type Error struct {
	kind Kind
	code string
	err  error
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) Code() string {
	return e.code
}

func (e *Error) Kind() Kind {
	return e.kind
}

func New(kind Kind, code string) error {
	return &Error{kind: kind, code: code}
}

func Wrap(kind Kind, code string, cause error) error {
	return &Error{kind: kind, code: code, err: cause}
}

func Validation(code string) error {
	return New(KindValidation, code)
}

func NotFound(code string) error {
	return New(KindNotFound, code)
}

func Gone(code string) error {
	return New(KindGone, code)
}

func Limited(code string) error {
	return New(KindLimited, code)
}

func Internal(code string, cause error) error {
	return Wrap(KindInternal, code, cause)
}

// As extracts the *Error from err, if any.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf returns the public code of err, or fallback when err is not an *Error.
func CodeOf(err error, fallback string) string {
	if target, ok := As(err); ok {
		return target.code
	}
	return fallback
}
