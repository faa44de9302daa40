package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/okasha/maarif/internal/app/models/dto"
	"github.com/okasha/maarif/internal/pkg/apperrors"
	"github.com/okasha/maarif/internal/pkg/logger"
)

// debugMode controls whether responses carry debug detail for unknown
// errors. Never enabled in production.
var debugMode bool

// SetDebugMode toggles debug detail on error responses
func SetDebugMode(enabled bool) {
	debugMode = enabled
}

// HandleAPIError maps service errors onto the response envelope
func HandleAPIError(c *gin.Context, err error) {
	var customErr *apperrors.CustomError
	if errors.As(err, &customErr) && errors.Is(err, apperrors.ErrValidationFailed) {
		detail := dto.NewErrorDetail(dto.ErrorCodeValidationFailed, customErr.Message)
		if customErr.Field != "" {
			detail = detail.WithField(customErr.Field)
		}
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(detail))
		return
	}

	switch {
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		respond(c, http.StatusUnauthorized, dto.ErrorCodeInvalidCredentials, "Invalid email or password")
	case errors.Is(err, apperrors.ErrTokenRequired):
		respond(c, http.StatusUnauthorized, dto.ErrorCodeTokenRequired, "Authentication token required")
	case errors.Is(err, apperrors.ErrTokenExpired):
		respond(c, http.StatusUnauthorized, dto.ErrorCodeExpiredToken, "Token expired")
	case errors.Is(err, apperrors.ErrTokenInvalid):
		respond(c, http.StatusUnauthorized, dto.ErrorCodeInvalidToken, "Invalid token")
	case errors.Is(err, apperrors.ErrEmailNotConfirmed):
		respond(c, http.StatusForbidden, dto.ErrorCodeEmailNotConfirmed, "Email address not confirmed")
	case errors.Is(err, apperrors.ErrInstructorPending):
		respond(c, http.StatusForbidden, dto.ErrorCodeNotApproved, "Instructor account awaiting approval")
	case errors.Is(err, apperrors.ErrInstructorRejected):
		respond(c, http.StatusForbidden, dto.ErrorCodeNotApproved, "Instructor account was not approved")
	case errors.Is(err, apperrors.ErrAccountLocked):
		respond(c, http.StatusForbidden, dto.ErrorCodeAccountSuspended, "Account temporarily locked after repeated failed logins")
	case errors.Is(err, apperrors.ErrPermissionDenied):
		respond(c, http.StatusForbidden, dto.ErrorCodeForbidden, "Permission denied")
	case errors.Is(err, apperrors.ErrInvalidConfirmToken):
		respond(c, http.StatusBadRequest, dto.ErrorCodeValidationFailed, "Invalid or expired confirmation link")
	case errors.Is(err, apperrors.ErrEmailAlreadyConfirmed):
		respond(c, http.StatusBadRequest, dto.ErrorCodeValidationFailed, "Email address already confirmed")
	case errors.Is(err, apperrors.ErrInvalidResetCode):
		respond(c, http.StatusBadRequest, dto.ErrorCodeValidationFailed, "Invalid reset code")
	case errors.Is(err, apperrors.ErrFileRequired):
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(
			dto.NewErrorDetail(dto.ErrorCodeValidationFailed, "A file attachment is required").WithField("document")))
	case errors.Is(err, apperrors.ErrUploadFailed):
		respond(c, http.StatusBadRequest, dto.ErrorCodeFileUploadFailed, "File upload failed")
	case errors.Is(err, apperrors.ErrBadRequest), errors.Is(err, apperrors.ErrValidationFailed):
		respondMessage(c, http.StatusBadRequest, dto.ErrorCodeValidationFailed, err, "Invalid request")
	case errors.Is(err, apperrors.ErrUserNotFound):
		respond(c, http.StatusNotFound, dto.ErrorCodeResourceNotFound, "User not found")
	case errors.Is(err, apperrors.ErrResourceNotFound):
		respond(c, http.StatusNotFound, dto.ErrorCodeResourceNotFound, "Resource not found")
	case errors.Is(err, apperrors.ErrEmailAlreadyExists):
		respond(c, http.StatusConflict, dto.ErrorCodeResourceAlreadyExists, "Email already registered")
	case errors.Is(err, apperrors.ErrConflict):
		respond(c, http.StatusConflict, dto.ErrorCodeResourceAlreadyExists, "Resource already exists")
	case errors.Is(err, apperrors.ErrRateLimited):
		respond(c, http.StatusTooManyRequests, dto.ErrorCodeRateLimited, "Too many requests, try again later")
	default:
		logger.Error().Err(err).Str("path", c.FullPath()).Msg("Unhandled API error")
		detail := dto.NewErrorDetail(dto.ErrorCodeInternalServer, "Internal server error")
		if debugMode {
			detail = detail.WithDebugInfo("%v", err)
		}
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(detail))
	}
}

// HandleValidationError maps a request binding failure onto a 400 with
// per-field messages.
func HandleValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.HandleValidationError(err)))
}

func respond(c *gin.Context, status int, code dto.ErrorCode, message string) {
	c.JSON(status, dto.NewErrorResponse(dto.NewErrorDetail(code, message)))
}

// respondMessage prefers the wrapped error's own message when it is a
// CustomError, falling back to the generic one.
func respondMessage(c *gin.Context, status int, code dto.ErrorCode, err error, fallback string) {
	message := fallback
	var customErr *apperrors.CustomError
	if errors.As(err, &customErr) && customErr.Message != "" {
		message = customErr.Message
	}
	c.JSON(status, dto.NewErrorResponse(dto.NewErrorDetail(code, message)))
}
