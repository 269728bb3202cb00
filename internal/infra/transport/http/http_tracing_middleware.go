package http

import (
	"net/http"

	"github.com/google/uuid"

	context_ "github.com/mkrupp/library/internal/infra/context"
)

const (
	TraceIDHeader = "X-Request-ID"

	maxTraceIDLength = 128
)

// TracingMiddleware creates middleware that adds request tracing.
// It keeps a well-formed inbound X-Request-ID, otherwise generates a UUIDv7,
// stores it in the request context and echoes it in the response.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := getTraceID(r)
		w.Header().Set(TraceIDHeader, traceID)

		next.ServeHTTP(w, r.WithContext(context_.WithTraceID(r.Context(), traceID)))
	})
}

func getTraceID(r *http.Request) string {
	if traceID := r.Header.Get(TraceIDHeader); traceID != "" && len(traceID) <= maxTraceIDLength {
		return traceID
	}

	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}
