package app

import (
	"errors"
	"fmt"

	"github.com/Fuchsoria/revenue-admin/internal/storage"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
)

// ValidationError rejects user input before anything is written.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field string, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func notFound(what string, id int64, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s %d %w", what, id, ErrNotFound)
	}

	return fmt.Errorf("cannot get %s %d, %w", what, id, err)
}
