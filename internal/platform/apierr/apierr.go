// Package apierr carries an HTTP status and a machine-readable code from the
// service layer to the boundary, so handlers map failures without inspecting
// error strings.
package apierr

import (
	"fmt"
	"net/http"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// BadRequest covers input validation and unmet request preconditions.
func BadRequest(code string, err error) *Error {
	return New(http.StatusBadRequest, code, err)
}

// NotFound covers missing rows and ownership mismatches, which read the same
// to the caller.
func NotFound(code string, err error) *Error {
	return New(http.StatusNotFound, code, err)
}

// Conflict covers lifecycle-state preconditions: the operation exists but the
// recording is not in a state that accepts it.
func Conflict(code string, err error) *Error {
	return New(http.StatusConflict, code, err)
}
