// Package handler implements the HTTP handlers of the gateway API. Error
// responses carry a {"detail": ...} body; the status code is derived from
// the domain error taxonomy.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/opipolix/webgate/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"detail":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeDetail sends a {"detail": msg} error response.
func writeDetail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// writeError maps err onto the error taxonomy and sends the corresponding
// {"detail"} response.
func writeError(w http.ResponseWriter, err error) {
	writeDetail(w, errorStatus(err), errorDetail(err))
}

// errorStatus maps a domain error to its HTTP status.
func errorStatus(err error) int {
	var upstream *domain.UpstreamError
	if errors.As(err, &upstream) {
		return upstream.StatusCode
	}

	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrAuthInvalid),
		errors.Is(err, domain.ErrOrderSignature),
		errors.Is(err, domain.ErrCredentialDerivation),
		errors.Is(err, domain.ErrCredentialPayload),
		errors.Is(err, domain.ErrSignerUnavailable):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// errorDetail renders the client-facing message. Internal errors are not
// echoed verbatim.
func errorDetail(err error) string {
	if errorStatus(err) == http.StatusInternalServerError {
		return "Internal server error"
	}
	var upstream *domain.UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Message
	}
	return trimPackagePrefix(err.Error())
}

// trimPackagePrefix drops the leading "pkg: " wrap chain from an error
// string so clients see "validation failed: salt out of range" rather than
// internal package names.
func trimPackagePrefix(msg string) string {
	for _, prefix := range []string{"auth: ", "orders: ", "tp: ", "crypto: ", "resolver: "} {
		msg = strings.ReplaceAll(msg, prefix, "")
	}
	return msg
}

// decodeJSON decodes the request body into dst, rejecting unknown syntax
// with a validation error.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return domain.ErrValidation
	}
	return nil
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
