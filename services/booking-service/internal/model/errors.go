package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrSlotConflict      = errors.New("this time slot is already booked")
	ErrInvalidTransition = errors.New("invalid booking transition")
	ErrValidation        = errors.New("validation failed")
	ErrPaymentProvider   = errors.New("payment provider error")
)

// ValidationError carries per-field messages for malformed input.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// TransitionError names the rejected lifecycle change.
type TransitionError struct {
	From    Status
	Payment PaymentStatus
	Event   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s booking in status %s/%s", e.Event, e.From, e.Payment)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }
