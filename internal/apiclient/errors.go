package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Base error types. An *Error matches these with errors.Is.
var (
	ErrNetwork      = errors.New("backend unreachable")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrServer       = errors.New("backend error")
	ErrDecode       = errors.New("unexpected response")
)

// Kind is the category of a failed backend call.
type Kind string

const (
	KindNetwork Kind = "network"
	KindAuth    Kind = "auth"
	KindServer  Kind = "server"
	KindClient  Kind = "client"
	KindDecode  Kind = "decode"
)

// Error describes a failed backend call.
type Error struct {
	Kind       Kind
	Op         string // operation that failed, e.g. "list_runs"
	StatusCode int    // HTTP status, 0 when no response was received
	Message    string // server supplied detail, if any
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for the base error types.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrUnauthorized:
		return e.Kind == KindAuth
	case ErrServer:
		return e.Kind == KindServer
	case ErrDecode:
		return e.Kind == KindDecode
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsUnauthorized reports whether err is a 401 from the backend.
// A 403 is an auth failure too but retrying without credentials cannot help it.
func IsUnauthorized(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.StatusCode == http.StatusUnauthorized
}

// kindForStatus maps a non-2xx status onto an error kind.
func kindForStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code >= 500:
		return KindServer
	default:
		return KindClient
	}
}
