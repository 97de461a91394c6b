package utils

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// ErrorResponse represents a structured error response
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return nil
	}

	return json.NewEncoder(w).Encode(data)
}

// WriteOK writes a 200 OK response with the given body
func WriteOK(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteBadRequest writes a 400 Bad Request response with error details
func WriteBadRequest(w http.ResponseWriter, message string, details map[string]interface{}) error {
	return WriteJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   "bad_request",
		Message: message,
		Details: details,
	})
}

// WriteUnauthorized writes a 401 Unauthorized response
func WriteUnauthorized(w http.ResponseWriter, message string) error {
	if message == "" {
		message = "Authentication required"
	}
	return WriteJSON(w, http.StatusUnauthorized, ErrorResponse{
		Error:   "unauthorized",
		Message: message,
	})
}

// WriteForbidden writes a 403 Forbidden response. Tier denials pass their
// current/required tier and upgrade pointer through details so the caller
// can act on the rejection.
func WriteForbidden(w http.ResponseWriter, message string, details map[string]interface{}) error {
	if message == "" {
		message = "Access forbidden"
	}
	return WriteJSON(w, http.StatusForbidden, ErrorResponse{
		Error:   "forbidden",
		Message: message,
		Details: details,
	})
}

// WriteNotFound writes a 404 Not Found response
func WriteNotFound(w http.ResponseWriter, message string) error {
	if message == "" {
		message = "Resource not found"
	}
	return WriteJSON(w, http.StatusNotFound, ErrorResponse{
		Error:   "not_found",
		Message: message,
	})
}

// WriteTooManyRequests writes a 429 Too Many Requests response with a
// Retry-After hint in seconds
func WriteTooManyRequests(w http.ResponseWriter, message string, retryAfterSeconds int) error {
	if message == "" {
		message = "Too many requests, retry later"
	}
	if retryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	return WriteJSON(w, http.StatusTooManyRequests, ErrorResponse{
		Error:   "backpressure",
		Message: message,
	})
}

// WriteBadGateway writes a 502 Bad Gateway response
func WriteBadGateway(w http.ResponseWriter, message string) error {
	if message == "" {
		message = "Upstream unavailable"
	}
	return WriteJSON(w, http.StatusBadGateway, ErrorResponse{
		Error:   "bad_gateway",
		Message: message,
	})
}

// WriteInternalServerError writes a 500 Internal Server Error response
func WriteInternalServerError(w http.ResponseWriter, message string) error {
	if message == "" {
		message = "Internal server error"
	}
	return WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: message,
	})
}
