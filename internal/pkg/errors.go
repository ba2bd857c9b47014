package pkg

import (
	"errors"
	"net/http"
)

// Failure taxonomy shared by every operation. Services wrap these sentinels
// with context; handlers map them to HTTP status codes.
var (
	ErrInput     = errors.New("invalid input")
	ErrAuth      = errors.New("unauthorized")
	ErrNotFound  = errors.New("not found")
	ErrTransport = errors.New("transport failure")
	ErrStore     = errors.New("storage failure")
)

// HTTPStatus maps a failure to its response code. Unknown errors are
// treated as internal.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
