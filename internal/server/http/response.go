package internalhttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/Fuchsoria/revenue-admin/internal/app"
	"github.com/Fuchsoria/revenue-admin/internal/parser"
	"github.com/go-chi/chi/v5"
)

type errorResponse struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Line    int    `json:"line,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message})
}

func writeError(w http.ResponseWriter, logger Logger, err error) {
	var (
		validationErr *app.ValidationError
		parseErr      *parser.ParseError
	)

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: validationErr.Message, Field: validationErr.Field})
	case errors.As(err, &parseErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Message: err.Error(), Line: parseErr.Line})
	case errors.Is(err, app.ErrNotFound):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrForbidden):
		writeMessage(w, http.StatusForbidden, err.Error())
	default:
		logger.Error("request failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &app.ValidationError{Field: "body", Message: "Invalid JSON body."}
	}

	return nil
}

func idParam(r *http.Request, name string) (int64, error) {
	return parseID(name, chi.URLParam(r, name))
}

func parseID(field string, value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, &app.ValidationError{Field: field, Message: "Must be a positive integer."}
	}

	return id, nil
}
