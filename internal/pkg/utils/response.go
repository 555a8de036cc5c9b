package utils

import (
	"encoding/json"
	"net/http"

	"github.com/simplyinspect/permwatch/internal/pkg/errors"
)

// SuccessResponse is the envelope for 2xx responses.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// ErrorResponse is the envelope for 4xx/5xx responses.
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

// ErrorDetail carries the machine-readable code alongside the message.
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// WriteJSON encodes payload as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}

// WriteSuccess wraps data in the success envelope.
func WriteSuccess(w http.ResponseWriter, status int, data interface{}) error {
	return WriteJSON(w, status, SuccessResponse{Success: true, Data: data})
}

// WriteSuccessWithMessage wraps data in the success envelope with a
// human-readable message.
func WriteSuccessWithMessage(w http.ResponseWriter, status int, message string, data interface{}) error {
	return WriteJSON(w, status, SuccessResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// WriteError renders err in the error envelope. Anything that is not an
// AppError is reported as a generic internal error so internals never
// leak to callers.
func WriteError(w http.ResponseWriter, err error) error {
	appErr, ok := errors.IsAppError(err)
	if !ok {
		appErr = errors.InternalError("Internal server error", err)
	}
	return WriteJSON(w, appErr.StatusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		},
	})
}

// WriteErrorMessage renders a one-off error without building an AppError.
func WriteErrorMessage(w http.ResponseWriter, status int, code, message string) error {
	return WriteJSON(w, status, ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message},
	})
}
