package domain

import (
	"fmt"
	"strings"
)

// FieldError represents a single field's validation error.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"message"`
}

func (e FieldError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Msg) }

// ValidationError carries every failed field. errors.Is(err, ErrValidation) holds.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, fe := range e.Fields {
		parts = append(parts, fe.Error())
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ByField groups messages by field name for the HTTP error body.
func (e *ValidationError) ByField() map[string][]string {
	out := make(map[string][]string, len(e.Fields))
	for _, fe := range e.Fields {
		out[fe.Field] = append(out[fe.Field], fe.Msg)
	}
	return out
}

// AsError returns nil for an empty list so callers can `if err := ...; err != nil`.
func AsError(errs []FieldError) error {
	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Fields: errs}
}

// ValidateEvent checks the caller supplied fields of an event.
func ValidateEvent(ev *Event) []FieldError {
	var errs []FieldError
	errs = requireField(errs, "variant", string(ev.Variant), MaxVariantLen)
	errs = requireField(errs, "courseId", ev.CourseID, MaxCourseIDLen)
	errs = requireField(errs, "type", ev.Kind, MaxKindLen)

	if len(ev.SessionID) > MaxSessionIDLen {
		errs = append(errs, FieldError{"sessionId", fmt.Sprintf("max length %d", MaxSessionIDLen)})
	}
	if len(ev.Extra) > MaxExtraBytes {
		errs = append(errs, FieldError{"extra", fmt.Sprintf("max size %d bytes", MaxExtraBytes)})
	}
	return errs
}

// ValidateEnrollment checks the caller supplied fields of an enrollment.
func ValidateEnrollment(en *Enrollment) []FieldError {
	var errs []FieldError
	errs = requireField(errs, "variant", string(en.Variant), MaxVariantLen)
	errs = requireField(errs, "courseId", en.CourseID, MaxCourseIDLen)
	return errs
}

func requireField(errs []FieldError, field, value string, maxLen int) []FieldError {
	if strings.TrimSpace(value) == "" {
		return append(errs, FieldError{field, "required"})
	}
	if len(value) > maxLen {
		return append(errs, FieldError{field, fmt.Sprintf("max length %d", maxLen)})
	}
	return errs
}
