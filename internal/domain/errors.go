package domain

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrStorageCorrupt    = errors.New("stored record is corrupt")
	ErrEmptyCart         = errors.New("cart is empty, nothing to checkout")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("illegal transition of order status")
	ErrConflict          = errors.New("record was modified concurrently")
	ErrValidation        = errors.New("validation failed")

	ErrAlreadyRegistered  = errors.New("email is already registered")
	ErrNotRegistered      = errors.New("email is not registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// ValidationError collects one message per offending field.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: map[string]string{}}
}

func (e *ValidationError) Add(field, message string) {
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
