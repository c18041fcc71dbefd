package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

const internalErrorMessage = "the server encountered a problem and could not process your request"

// apiError is the body of every failed API response. Field names the form
// field at fault, when there is one.
type apiError struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type BaseHandler struct {
	Logger *slog.Logger
}

func (h *BaseHandler) logError(r *http.Request, err error) {
	h.Logger.Error(err.Error(), "method", r.Method, "uri", r.URL.RequestURI())
}

// writeJSON encodes data with status. Headers must be set beforehand.
func (h *BaseHandler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logError(r, err)
	}
}

func (h *BaseHandler) errorResponse(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.writeJSON(w, r, status, apiError{Error: message})
}

// fieldErrorResponse rejects the form because of one field.
func (h *BaseHandler) fieldErrorResponse(w http.ResponseWriter, r *http.Request, field, message string) {
	h.writeJSON(w, r, http.StatusUnprocessableEntity, apiError{Error: message, Field: field})
}

func (h *BaseHandler) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	h.logError(r, err)
	h.errorResponse(w, r, http.StatusInternalServerError, internalErrorMessage)
}

func (h *BaseHandler) notFoundResponse(w http.ResponseWriter, r *http.Request) {
	h.errorResponse(w, r, http.StatusNotFound, "the requested resource could not be found")
}
