// Package response writes the JSON envelope shared by every endpoint:
// {"success": bool, "data": ..., "message": ..., "error": ..., "errors": [...]}.
package response

import (
	"encoding/json"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ayesh156/roxeleye-crud/internal/apperror"
)

const internalErrorMessage = "Internal server error"

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Envelope struct {
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Message string       `json:"message,omitempty"`
	Error   string       `json:"error,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.WarnContext(r.Context(), "write response failed", "error", err, "request_id", chimiddleware.GetReqID(r.Context()))
	}
}

func OK(w http.ResponseWriter, r *http.Request, data any) {
	JSON(w, r, http.StatusOK, Envelope{Success: true, Data: data})
}

func Created(w http.ResponseWriter, r *http.Request, data any) {
	JSON(w, r, http.StatusCreated, Envelope{Success: true, Data: data})
}

// Message writes a successful response that carries only a message, or data
// together with a message when data is non-nil.
func Message(w http.ResponseWriter, r *http.Request, data any, message string) {
	JSON(w, r, http.StatusOK, Envelope{Success: true, Data: data, Message: message})
}

func Error(w http.ResponseWriter, r *http.Request, status int, message string) {
	JSON(w, r, status, Envelope{Success: false, Error: message})
}

func ValidationFailed(w http.ResponseWriter, r *http.Request, fields []FieldError) {
	JSON(w, r, http.StatusBadRequest, Envelope{Success: false, Error: "Validation failed", Errors: fields})
}

// Fail maps err to a status from its kind. Messages of internal failures are
// never sent to the client.
func Fail(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperror.As(err)
	if !ok || appErr.Kind == apperror.KindInternal {
		slog.ErrorContext(r.Context(), "request failed",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
		Error(w, r, http.StatusInternalServerError, internalErrorMessage)
		return
	}
	Error(w, r, StatusFor(appErr.Kind), appErr.Message)
}

func StatusFor(kind apperror.Kind) int {
	switch kind {
	case apperror.KindValidation, apperror.KindConflict, apperror.KindUpload:
		return http.StatusBadRequest
	case apperror.KindAuthentication:
		return http.StatusUnauthorized
	case apperror.KindAuthorization:
		return http.StatusForbidden
	case apperror.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
