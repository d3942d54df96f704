package rpcquery

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes adapter errors.
type ErrorCode string

const (
	// CodeNotAFunction indicates an unknown procedure or utility method.
	CodeNotAFunction ErrorCode = "NOT_A_FUNCTION"

	// CodeUnavailable indicates an accessor used in the wrong execution mode.
	CodeUnavailable ErrorCode = "UNAVAILABLE"

	// CodeInvalidArguments indicates a malformed argument list.
	CodeInvalidArguments ErrorCode = "INVALID_ARGUMENTS"
)

// Sentinels matched by errors.Is against any *Error with the same code.
var (
	ErrNotAFunction     = errors.New("not a function")
	ErrUnavailable      = errors.New("unavailable")
	ErrInvalidArguments = errors.New("invalid arguments")
)

// Error is returned for dispatch, availability and argument-shape failures.
// Upstream failures (transport, cache) are never converted into an Error.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Path is the procedure path the call was made on.
	Path []string

	// Method is the method or accessor name.
	Method string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel of e's code.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotAFunction:
		return e.Code == CodeNotAFunction
	case ErrUnavailable:
		return e.Code == CodeUnavailable
	case ErrInvalidArguments:
		return e.Code == CodeInvalidArguments
	}
	return false
}

// Target returns the dotted path.method the error refers to.
func (e *Error) Target() string {
	return qualified(e.Path, e.Method)
}

func qualified(path []string, method string) string {
	if len(path) == 0 {
		return method
	}
	if method == "" {
		return strings.Join(path, ".")
	}
	return strings.Join(path, ".") + "." + method
}

func notAFunction(path []string, method string) *Error {
	return &Error{
		Code:    CodeNotAFunction,
		Path:    path,
		Method:  method,
		Message: qualified(path, method) + " is not a function",
	}
}

func unavailable(path []string, method, message string) *Error {
	return &Error{
		Code:    CodeUnavailable,
		Path:    path,
		Method:  method,
		Message: qualified(path, method) + " " + message,
	}
}

func invalidArguments(path []string, method string, cause error) *Error {
	return &Error{
		Code:    CodeInvalidArguments,
		Path:    path,
		Method:  method,
		Message: "invalid arguments for " + qualified(path, method),
		Err:     cause,
	}
}
