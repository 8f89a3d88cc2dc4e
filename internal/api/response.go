package api

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"investtracker/pkg/tracker"
)

// Response represents a successful API response with unified format.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse represents an error API response with structured information.
type ErrorResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	ErrorCode string `json:"error_code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	// Data carries the stale snapshot when a refresh failed.
	Data interface{} `json:"data,omitempty"`
}

// writeSuccess writes a successful response with data.
func writeSuccess(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, Response{
		Code: 0,
		Data: data,
	})
}

// writeSuccessWithMessage writes a successful response with data and message.
func writeSuccessWithMessage(w http.ResponseWriter, message string, data interface{}) {
	writeJSON(w, http.StatusOK, Response{
		Code:    0,
		Message: message,
		Data:    data,
	})
}

// writeErrorResponse writes err with the HTTP status of its error code.
// Errors without a code are internal errors.
func writeErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	writeErrorResponseWithData(w, r, err, nil)
}

func writeErrorResponseWithData(w http.ResponseWriter, r *http.Request, err error, data interface{}) {
	status := http.StatusInternalServerError
	response := ErrorResponse{Message: err.Error(), Data: data}

	if code := tracker.CodeOf(err); code != "" {
		response.ErrorCode = string(code)
		status = mapErrorCodeToHTTPStatus(code)
	}
	response.Code = status
	if r != nil {
		response.RequestID = middleware.GetReqID(r.Context())
	}
	if lw, ok := w.(interface{ SetErrorMessage(string) }); ok {
		lw.SetErrorMessage(err.Error())
	}

	writeJSON(w, status, response)
}

// writeError writes an error envelope with an explicit status and no error code.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	response := ErrorResponse{Code: status, Message: message}
	if r != nil {
		response.RequestID = middleware.GetReqID(r.Context())
	}
	if lw, ok := w.(interface{ SetErrorMessage(string) }); ok {
		lw.SetErrorMessage(message)
	}
	writeJSON(w, status, response)
}

// mapErrorCodeToHTTPStatus maps business error codes to HTTP status codes.
func mapErrorCodeToHTTPStatus(code tracker.ErrorCode) int {
	switch code {
	case tracker.ErrCodeInvalidInput, tracker.ErrCodeValidation:
		return http.StatusBadRequest
	case tracker.ErrCodeNotFound:
		return http.StatusNotFound
	case tracker.ErrCodeUnsupported:
		return http.StatusNotImplemented
	case tracker.ErrCodeCanceled:
		return http.StatusServiceUnavailable
	case tracker.ErrCodeDatabase, tracker.ErrCodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
