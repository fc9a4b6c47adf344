package api

import (
	"encoding/json"
	"net/http"

	"github.com/stashd/stashd/internal/logger"
	"github.com/stashd/stashd/pkg/metadata"
)

// Machine-readable error codes carried in the response envelope.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeInvalidOperation = "INVALID_OPERATION"
	CodeNotEmpty         = "DIRECTORY_NOT_EMPTY"
	CodeStorageMismatch  = "STORAGE_MISMATCH"
	CodeRateLimited      = "RATE_LIMITED"
	CodeUnavailable      = "BACKEND_UNAVAILABLE"
	CodeInternal         = "INTERNAL_ERROR"
)

// errorBody is the JSON error envelope: {"error": {"code": ..., "message": ...}}.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes an error response in the standard envelope.
func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{Code: code, Message: message},
	})
}

// writeStoreError translates a domain error into an HTTP response.
//
// Mapping:
//   - validation        -> 400
//   - not-found         -> 404
//   - conflict          -> 409
//   - not-empty         -> 409
//   - invalid-operation -> 422
//   - storage-mismatch  -> 502
//   - transient         -> 503
//
// Anything that is not a StoreError is an unexpected internal failure; it is
// logged and reported as 500 without leaking detail to the client.
func writeStoreError(w http.ResponseWriter, err error) {
	code, ok := metadata.CodeOf(err)
	if !ok {
		logger.Error("unexpected error reached the HTTP layer: %v", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
		return
	}

	switch code {
	case metadata.ErrValidation:
		writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
	case metadata.ErrNotFound:
		writeError(w, http.StatusNotFound, CodeNotFound, err.Error())
	case metadata.ErrConflict:
		writeError(w, http.StatusConflict, CodeConflict, err.Error())
	case metadata.ErrNotEmpty:
		writeError(w, http.StatusConflict, CodeNotEmpty, err.Error())
	case metadata.ErrInvalidOperation:
		writeError(w, http.StatusUnprocessableEntity, CodeInvalidOperation, err.Error())
	case metadata.ErrStorageMismatch:
		writeError(w, http.StatusBadGateway, CodeStorageMismatch, err.Error())
	case metadata.ErrTransient:
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, err.Error())
	default:
		logger.Error("unmapped store error code %d: %v", code, err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}

// writeJSON writes a success response body.
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response body: %v", err)
	}
}
