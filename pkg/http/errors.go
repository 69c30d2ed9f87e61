package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// ErrorResponse is the standard API error envelope
type ErrorResponse struct {
	Error      string   `json:"error"`                    // Machine-readable error code
	Message    string   `json:"message"`                  // Human-readable message
	Violations []string `json:"violations,omitempty"`     // Policy rule identifiers, all at once
	RetryAfter int64    `json:"retry_after_ms,omitempty"` // Lockout remainder in milliseconds
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: errorCode, Message: message})
}

func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

// WriteValidationError reports every violated policy rule in one response
func WriteValidationError(w http.ResponseWriter, message string, violations []string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:      "validation_failed",
		Message:    message,
		Violations: violations,
	})
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, "forbidden", message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message)
}

func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, "conflict", message)
}

// WriteTooManyRequests reports a rate-limit rejection with a machine-usable
// retry delay, both as a Retry-After header and in the body
func WriteTooManyRequests(w http.ResponseWriter, message string, retryAfter time.Duration) {
	w.Header().Set("Content-Type", "application/json")
	if retryAfter > 0 {
		seconds := int64(retryAfter.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
	}
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:      "rate_limit_exceeded",
		Message:    message,
		RetryAfter: retryAfter.Milliseconds(),
	})
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message)
}

// WriteJSON writes a JSON success response
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
