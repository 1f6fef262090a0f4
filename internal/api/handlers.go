package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/vaidashi/gallery-api/internal/repository"
	apperrors "github.com/vaidashi/gallery-api/pkg/errors"
)

const maxJSONBody = 1 << 20

type ApiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// PageResponse wraps one page of a listing
type PageResponse struct {
	Items      interface{} `json:"items"`
	TotalCount int         `json:"totalCount"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
}

// Health represents the health check response
type Health struct {
	Status    string                   `json:"status"`
	Version   string                   `json:"version"`
	Timestamp string                   `json:"timestamp"`
	Database  string                   `json:"database"`
	Breakers  []map[string]interface{} `json:"breakers,omitempty"`
}

// Version is reported by the health endpoint
var Version = "0.1.0"

// healthCheckHandler handles the health check endpoint
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	health := Health{
		Status:    "ok",
		Version:   Version,
		Timestamp: time.Now().Format(time.RFC3339),
		Database:  "up",
		Breakers:  s.breakerReport(),
	}

	for _, b := range health.Breakers {
		if b["state"] != "closed" {
			health.Status = "degraded"
		}
	}

	code := http.StatusOK
	if s.deps.Database != nil {
		if err := s.deps.Database.Ping(r.Context()); err != nil {
			s.logger.Error("Health check database ping failed", "error", err)
			health.Status = "unavailable"
			health.Database = "down"
			code = http.StatusServiceUnavailable
		}
	}

	s.respondWithJSON(w, code, ApiResponse{
		Success: code == http.StatusOK,
		Data:    health,
	})
}

// decodeJSON reads a JSON body. Unknown fields are ignored so client-computed
// extras such as prices never cause a rejection.
func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()

	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(dst); err != nil {
		return apperrors.NewValidationError("Invalid request payload")
	}
	return nil
}

// pagination reads page and limit query parameters; the repositories clamp them
func pagination(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return page, limit
}

// boundedPagination is pagination clamped to at most 100 per page
func boundedPagination(r *http.Request, defaultLimit int) (int, int) {
	page, limit := pagination(r)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = defaultLimit
	}
	return page, limit
}

// respondWithAppError maps a service error onto the response envelope.
// Anything that is not an AppError is reported as a bare 500.
func (s *Server) respondWithAppError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		s.respondWithError(w, http.StatusNotFound, "resource not found")
		return
	}

	appErr, ok := apperrors.As(err)
	if !ok {
		s.logger.Error("Request failed", "error", err, "method", r.Method, "path", r.URL.Path)
		s.respondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if appErr.StatusCode >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "error", appErr.Err, "message", appErr.Message, "path", r.URL.Path)
	}

	if appErr.Retryable {
		w.Header().Set("Retry-After", "1")
	}

	s.respondWithError(w, appErr.StatusCode, appErr.Error())
}

// respondWithError sends a JSON response with an error message
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, ApiResponse{
		Success: false,
		Error:   message,
	})
}

// respondWithJSON sends a JSON response
func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)

	if err != nil {
		s.logger.Error("Failed to marshal response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
