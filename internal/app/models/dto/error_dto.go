package dto

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrorCode represents standardized error codes
type ErrorCode string

// Standard error codes for the application
const (
	// Authentication errors
	ErrorCodeInvalidCredentials ErrorCode = "AUTH_001"
	ErrorCodeTokenRequired      ErrorCode = "AUTH_002"
	ErrorCodeInvalidToken       ErrorCode = "AUTH_003"
	ErrorCodeExpiredToken       ErrorCode = "AUTH_004"
	ErrorCodeEmailNotConfirmed  ErrorCode = "AUTH_005"
	ErrorCodeAccountSuspended   ErrorCode = "AUTH_006"
	ErrorCodeNotApproved        ErrorCode = "AUTH_007"
	ErrorCodeForbidden          ErrorCode = "AUTH_008"

	// Resource errors
	ErrorCodeResourceNotFound      ErrorCode = "RES_001"
	ErrorCodeResourceAlreadyExists ErrorCode = "RES_002"

	// Validation errors
	ErrorCodeValidationFailed ErrorCode = "VAL_001"
	ErrorCodeFileUploadFailed ErrorCode = "VAL_002"

	// Rate limiting
	ErrorCodeRateLimited ErrorCode = "RATE_001"

	// Server errors
	ErrorCodeInternalServer ErrorCode = "SRV_001"
)

// FieldError describes a single invalid request field
type FieldError struct {
	Field   string `json:"field" example:"email"`
	Message string `json:"message" example:"email must be a valid email address"`
}

// ErrorDetail represents detailed error information
type ErrorDetail struct {
	Code      ErrorCode    `json:"code" example:"AUTH_001"`
	Message   string       `json:"message" example:"Invalid credentials"`
	Field     string       `json:"field,omitempty" example:"email"`
	Errors    []FieldError `json:"errors,omitempty"`
	DebugInfo string       `json:"debugInfo,omitempty"`
}

// NewErrorDetail creates a new error detail
func NewErrorDetail(code ErrorCode, message string) *ErrorDetail {
	return &ErrorDetail{
		Code:    code,
		Message: message,
	}
}

// WithField adds a field name to the error detail
func (e *ErrorDetail) WithField(field string) *ErrorDetail {
	e.Field = field
	return e
}

// WithFieldErrors attaches a field-level error list
func (e *ErrorDetail) WithFieldErrors(errs []FieldError) *ErrorDetail {
	e.Errors = errs
	return e
}

// WithDebugInfo adds debug information (for non-production configuration only)
func (e *ErrorDetail) WithDebugInfo(format string, args ...interface{}) *ErrorDetail {
	e.DebugInfo = fmt.Sprintf(format, args...)
	return e
}

// HandleValidationError translates a binding/validation failure into an
// ErrorDetail with one entry per invalid field.
func HandleValidationError(err error) *ErrorDetail {
	detail := NewErrorDetail(ErrorCodeValidationFailed, "Validation failed")

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		fieldErrs := make([]FieldError, 0, len(validationErrs))
		for _, fe := range validationErrs {
			fieldErrs = append(fieldErrs, FieldError{
				Field:   fe.Field(),
				Message: formatFieldError(fe),
			})
		}
		return detail.WithFieldErrors(fieldErrs)
	}

	detail.Message = "Invalid request format"
	return detail
}

// formatFieldError creates a human-readable validation error message
func formatFieldError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "min":
		return e.Field() + " must be at least " + e.Param()
	case "max":
		return e.Field() + " must be at most " + e.Param()
	case "email":
		return e.Field() + " must be a valid email address"
	case "oneof":
		return e.Field() + " must be one of: " + e.Param()
	case "eqfield":
		return e.Field() + " must match " + e.Param()
	case "len":
		return e.Field() + " must be exactly " + e.Param() + " characters"
	case "numeric":
		return e.Field() + " must be numeric"
	default:
		return e.Field() + " validation failed: " + e.Tag()
	}
}
