// Package controllers handles HTTP request handling
package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/okasha/maarif/internal/app/models/dto"
	"github.com/okasha/maarif/internal/app/services"
	"github.com/okasha/maarif/internal/middleware"
	"github.com/okasha/maarif/internal/pkg/apperrors"
)

// AuthController handles authentication related operations
type AuthController struct {
	authService *services.AuthService
	logger      zerolog.Logger
}

// NewAuthController creates a new AuthController
func NewAuthController(authService *services.AuthService, logger zerolog.Logger) *AuthController {
	return &AuthController{
		authService: authService,
		logger:      logger,
	}
}

// Register handles user registration
// @Summary Register a new user
// @Description Creates a new student or instructor account. Instructors must attach a qualification document. A confirmation email is sent.
// @Tags auth
// @Accept multipart/form-data
// @Produce json
// @Success 201 {object} dto.APIResponse{data=dto.RegisterResponse} "Registration accepted, confirmation email sent"
// @Failure 400 {object} dto.APIResponse "Invalid request"
// @Failure 409 {object} dto.APIResponse "Email already registered"
// @Router /auth/register [post]
func (c *AuthController) Register(ctx *gin.Context) {
	var req dto.RegisterRequest
	if err := ctx.ShouldBind(&req); err != nil {
		c.logger.Warn().Err(err).Msg("Invalid registration request payload")
		middleware.HandleValidationError(ctx, err)
		return
	}

	// Absent document is allowed here; the service enforces it for
	// instructors.
	document, err := ctx.FormFile("document")
	if err != nil && err != http.ErrMissingFile {
		c.logger.Warn().Err(err).Msg("Failed to read document upload")
		middleware.HandleValidationError(ctx, err)
		return
	}

	response, err := c.authService.Register(ctx.Request.Context(), &req, document)
	if err != nil {
		c.logger.Warn().Err(err).Str("email", req.Email).Msg("Registration failed")
		middleware.HandleAPIError(ctx, err)
		return
	}

	c.logger.Info().Int64("userID", response.UserID).Str("role", response.Role).Msg("User registered")
	ctx.JSON(http.StatusCreated, dto.NewSuccessResponse(response, "Registration successful. Check your email to confirm your account."))
}

// ConfirmEmail handles the emailed confirmation link
// @Summary Confirm email address
// @Description Validates the confirmation token from the registration email and activates the account.
// @Tags auth
// @Produce json
// @Param token path string true "Confirmation token"
// @Success 200 {object} dto.APIResponse "Email confirmed"
// @Failure 400 {object} dto.APIResponse "Invalid or expired confirmation link"
// @Router /auth/confirm-email/{token} [get]
func (c *AuthController) ConfirmEmail(ctx *gin.Context) {
	token := ctx.Param("token")

	if err := c.authService.ConfirmEmail(ctx.Request.Context(), token); err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(nil, "Email confirmed. You can now log in."))
}

// Login handles user login
// @Summary Log in
// @Description Verifies credentials and issues a session token bound to the calling device.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.LoginRequest true "Login credentials"
// @Success 200 {object} dto.APIResponse{data=dto.TokenResponse} "Session token issued"
// @Failure 401 {object} dto.APIResponse "Invalid credentials"
// @Failure 403 {object} dto.APIResponse "Unconfirmed, unapproved or locked account"
// @Router /auth/login [post]
func (c *AuthController) Login(ctx *gin.Context) {
	var req dto.LoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(ctx, err)
		return
	}

	client := services.ClientInfo{
		Agent:     ctx.GetHeader("User-Agent"),
		IPAddress: ctx.ClientIP(),
	}
	response, err := c.authService.Login(ctx.Request.Context(), &req, client)
	if err != nil {
		c.logger.Warn().Err(err).Str("email", req.Email).Str("ip", client.IPAddress).Msg("Login rejected")
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(response, "Login successful"))
}

// Logout invalidates the presented session token
// @Summary Log out
// @Description Invalidates the session token used for this request. Other devices stay logged in.
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse "Session ended"
// @Failure 401 {object} dto.APIResponse "Missing or invalid token"
// @Router /auth/logout [post]
func (c *AuthController) Logout(ctx *gin.Context) {
	token, ok := middleware.GetCurrentToken(ctx)
	if !ok {
		middleware.HandleAPIError(ctx, apperrors.ErrTokenRequired)
		return
	}

	if err := c.authService.Logout(ctx.Request.Context(), token); err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(nil, "Logged out"))
}

// LogoutAll invalidates every session of the caller
// @Summary Log out everywhere
// @Description Invalidates every active session of the caller, including this one.
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse "All sessions ended"
// @Router /auth/logout-all [post]
func (c *AuthController) LogoutAll(ctx *gin.Context) {
	user, ok := middleware.GetCurrentUser(ctx)
	if !ok {
		middleware.HandleAPIError(ctx, apperrors.ErrTokenRequired)
		return
	}

	count, err := c.authService.LogoutAll(ctx.Request.Context(), user.ID)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(gin.H{"invalidatedSessions": count}, "All sessions ended"))
}

// LogoutOthers invalidates every session of the caller except this one
// @Summary Log out other devices
// @Description Invalidates every active session of the caller except the one making this request.
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse "Other sessions ended"
// @Router /auth/logout-others [post]
func (c *AuthController) LogoutOthers(ctx *gin.Context) {
	user, okUser := middleware.GetCurrentUser(ctx)
	token, okToken := middleware.GetCurrentToken(ctx)
	if !okUser || !okToken {
		middleware.HandleAPIError(ctx, apperrors.ErrTokenRequired)
		return
	}

	count, err := c.authService.LogoutOthers(ctx.Request.Context(), user.ID, token)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(gin.H{"invalidatedSessions": count}, "Other sessions ended"))
}

// ListSessions lists the caller's active sessions
// @Summary List active sessions
// @Description Returns the caller's active sessions with device and usage information, flagging the current one.
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.SessionListResponse} "Active sessions"
// @Router /auth/sessions [get]
func (c *AuthController) ListSessions(ctx *gin.Context) {
	user, okUser := middleware.GetCurrentUser(ctx)
	token, okToken := middleware.GetCurrentToken(ctx)
	if !okUser || !okToken {
		middleware.HandleAPIError(ctx, apperrors.ErrTokenRequired)
		return
	}

	response, err := c.authService.ListSessions(ctx.Request.Context(), user.ID, token)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(response, "Active sessions"))
}

// ForgotPassword emails a password reset code
// @Summary Request a password reset code
// @Description Generates a 5-digit reset code and emails it to the account.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.ForgotPasswordRequest true "Account email"
// @Success 200 {object} dto.APIResponse "Reset code sent"
// @Failure 404 {object} dto.APIResponse "No account with that email"
// @Router /auth/forgot-password [post]
func (c *AuthController) ForgotPassword(ctx *gin.Context) {
	var req dto.ForgotPasswordRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(ctx, err)
		return
	}

	if err := c.authService.ForgotPassword(ctx.Request.Context(), req.Email); err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(nil, "Reset code sent. Check your email."))
}

// ResetPassword redeems a reset code for a new password
// @Summary Reset password with an emailed code
// @Description Sets a new password when the emailed reset code matches. Every session of the account is ended.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.ResetPasswordRequest true "Reset code and new password"
// @Success 200 {object} dto.APIResponse "Password reset"
// @Failure 400 {object} dto.APIResponse "Invalid reset code"
// @Router /auth/reset-password [post]
func (c *AuthController) ResetPassword(ctx *gin.Context) {
	var req dto.ResetPasswordRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(ctx, err)
		return
	}

	if err := c.authService.ResetPassword(ctx.Request.Context(), &req); err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(nil, "Password reset. Log in with your new password."))
}
