package client

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthenticated is returned when no valid session token is available.
var ErrUnauthenticated = errors.New("unauthenticated")

// APIError is a non-2xx reply from the backend.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: HTTP %d", e.Status)
	}
	return fmt.Sprintf("api: HTTP %d: %s", e.Status, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	if errors.Is(err, ErrUnauthenticated) {
		return http.StatusUnauthorized
	}
	return 0
}

type FailureKind int

const (
	LoadFailure FailureKind = iota + 1
	AuthFailure
	SubmitFailure
)

func (k FailureKind) String() string {
	switch k {
	case LoadFailure:
		return "load"
	case AuthFailure:
		return "auth"
	case SubmitFailure:
		return "submit"
	default:
		return "unknown"
	}
}

// Failure is an operation failure converted for display. Err keeps the cause.
type Failure struct {
	Kind FailureKind
	Msg  string
	Err  error
}

func NewFailure(kind FailureKind, msg string, err error) *Failure {
	return &Failure{Kind: kind, Msg: msg, Err: err}
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Kind.String() + " failure: " + f.Msg
	}
	return f.Kind.String() + " failure: " + f.Msg + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error { return f.Err }

// Message is the text shown to the user.
func (f *Failure) Message() string {
	if f == nil {
		return ""
	}
	return f.Msg
}

// AsFailure extracts a *Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
