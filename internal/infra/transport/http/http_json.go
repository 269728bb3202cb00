package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"

	"github.com/mkrupp/library/internal/domain"
	"github.com/mkrupp/library/internal/infra/logging"
)

// MaxBodySize caps JSON request bodies.
const MaxBodySize = 1 << 20

//nolint:gochecknoglobals
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is the body of requests that only acknowledge success.
type MessageResponse struct {
	Message string `json:"message"`
}

// HandlerFunc is an HTTP handler that reports failures as errors. Handle
// turns it into an http.HandlerFunc with uniform error responses.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Handle adapts fn, writing any returned error with WriteError.
func Handle(log logging.Logger, fn HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			WriteError(w, r, err, log)
		}
	}
}

// StatusFor maps an error's kind to its HTTP status code.
func StatusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation, domain.KindConflict:
		return http.StatusBadRequest
	case domain.KindUnauthenticated:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInternal:
		fallthrough
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as {"error": "..."} with the status of its kind.
// Internal errors are logged in full and reach the client as a generic
// message only.
func WriteError(w http.ResponseWriter, r *http.Request, err error, log logging.Logger) {
	status := StatusFor(err)

	if status >= http.StatusInternalServerError {
		log.ErrorContext(r.Context(), "request failed", "error", err)
	} else {
		log.DebugContext(r.Context(), "request rejected", "status", status, "error", err)
	}

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="library"`)
	}

	_ = WriteJSON(w, status, ErrorResponse{Error: domain.PublicMessage(err)})
}

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if _, err := w.Write(append(body, '\n')); err != nil {
		return fmt.Errorf("write response: %w", err)
	}

	return nil
}

// DecodeJSON decodes the request body into dst. Malformed or oversized
// bodies are validation errors.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return domain.Validationf("request body exceeds %d bytes", maxErr.Limit)
		}

		return fmt.Errorf("read body: %w", err)
	}

	if len(body) == 0 {
		return domain.Validationf("request body is required")
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return errors.Join(domain.Validationf("invalid JSON body"), err)
	}

	return nil
}

// PathID parses the int64 URL parameter name.
func PathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Validationf("invalid %s %q", name, raw)
	}

	return id, nil
}

// QueryInt parses the integer query parameter name, returning def when it is
// absent.
func QueryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.Validationf("invalid %s %q", name, raw)
	}

	return value, nil
}
