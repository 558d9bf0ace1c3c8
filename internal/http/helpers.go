package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"rentbill/internal/billstore"
	"rentbill/internal/core"
	"rentbill/internal/view"
)

// isHTMX reports whether the request came from htmx and expects a partial.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// parseIndex reads a non-negative list position, -1 when absent or invalid.
func parseIndex(s string) int {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || i < 0 {
		return -1
	}
	return i
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, view.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, view.ErrNoSelection),
		errors.Is(err, view.ErrNotConfirmed),
		errors.Is(err, view.ErrUnknownSource):
		return http.StatusBadRequest
	case errors.Is(err, billstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrUnknownField),
		errors.Is(err, core.ErrInvalidFloor),
		errors.Is(err, core.ErrInvalidMonth),
		errors.Is(err, core.ErrInvalidYear),
		errors.Is(err, core.ErrInvalidDate):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// userMessage is the text shown for err. Server-side failures get a generic
// message; the details go to the log.
func userMessage(err error, fallback string) string {
	if statusFor(err) == http.StatusInternalServerError {
		return fallback
	}
	return err.Error()
}
