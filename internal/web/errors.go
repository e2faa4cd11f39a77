package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vitos/cheeseball/internal/domain"
	"go.uber.org/zap"
)

type errorResponse struct {
	Detail          string `json:"detail"`
	UpstreamStatus  *int   `json:"upstream_status,omitempty"`
	UpstreamMessage string `json:"upstream_message,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err onto a status code and a {"detail": ...} body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorResponse{Detail: http.StatusText(status)}

	var upErr *domain.UpstreamError
	var domErr *domain.Error
	switch {
	case errors.As(err, &upErr):
		body.Detail = "Upstream market-data service unavailable"
		if upErr.Status != 0 {
			code := upErr.Status
			body.UpstreamStatus = &code
		}
		body.UpstreamMessage = upErr.Message
		if body.UpstreamMessage == "" && upErr.Err != nil {
			body.UpstreamMessage = upErr.Err.Error()
		}
	case errors.As(err, &domErr):
		body.Detail = domErr.Detail
	case status == http.StatusInternalServerError:
		body.Detail = "Internal server error"
	default:
		body.Detail = err.Error()
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeJSON(w, status, body)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// writeJSON encodes v before committing the status, so a value that cannot
// be encoded yields a 500 instead of a truncated 200.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		status = http.StatusInternalServerError
		buf.Reset()
		buf.WriteString(`{"detail":"Internal server error"}` + "\n")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// writeRawJSON sends an already-encoded JSON document unchanged.
func writeRawJSON(w http.ResponseWriter, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}
