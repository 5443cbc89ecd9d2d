package api

import (
	"encoding/json"
	"net/http"

	"github.com/game-stats/internal/errors"
	"github.com/game-stats/internal/logging"
)

// SuccessResponse wraps every successful payload
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message,omitempty"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Success bool                   `json:"success"`
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Common error codes
const (
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeRateLimited        = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondData sends a 200 response with the success envelope.
func respondData(w http.ResponseWriter, data interface{}) {
	respondJSON(w, http.StatusOK, SuccessResponse{Success: true, Data: data})
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	respondJSON(w, statusCode, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

// respondServiceError maps a service error onto its HTTP status. Server-side
// failures are logged and their detail is not exposed.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	catErr := errors.Categorize(err)
	logger := logging.FromContext(r.Context()).WithError(err)

	switch catErr.Category {
	case errors.CategoryUserInput, errors.CategoryNotFound, errors.CategoryRateLimit:
		respondError(w, catErr.StatusCode, catErr.Code, catErr.Message, catErr.Details)
	case errors.CategoryUnavailable:
		logger.Warn("No statistics available to serve")
		respondError(w, catErr.StatusCode, catErr.Code, catErr.Message, nil)
	default:
		logger.Error("Request failed")
		respondError(w, catErr.StatusCode, catErr.Code, "An internal error occurred", nil)
	}
}
