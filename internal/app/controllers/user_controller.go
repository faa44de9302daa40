package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/okasha/maarif/internal/app/models"
	"github.com/okasha/maarif/internal/app/models/dto"
	"github.com/okasha/maarif/internal/app/services"
	"github.com/okasha/maarif/internal/middleware"
	"github.com/okasha/maarif/internal/pkg/apperrors"
)

// UserController handles profile and administrative user operations
type UserController struct {
	userService *services.UserService
	logger      zerolog.Logger
}

// NewUserController creates a new UserController
func NewUserController(userService *services.UserService, logger zerolog.Logger) *UserController {
	return &UserController{
		userService: userService,
		logger:      logger,
	}
}

// GetProfile returns the caller's own profile
// @Summary Get own profile
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.UserProfile} "Profile"
// @Router /users/profile [get]
func (c *UserController) GetProfile(ctx *gin.Context) {
	user, ok := middleware.GetCurrentUser(ctx)
	if !ok {
		middleware.HandleAPIError(ctx, apperrors.ErrTokenRequired)
		return
	}

	profile, err := c.userService.GetProfile(ctx.Request.Context(), user.ID)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(profile, "Profile"))
}

// UpdateProfile updates the caller's own profile
// @Summary Update own profile
// @Description Applies the provided fields. Grade level applies to students only, subject to instructors only.
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.UpdateProfileRequest true "Profile fields"
// @Success 200 {object} dto.APIResponse{data=dto.UserProfile} "Updated profile"
// @Router /users/profile [patch]
func (c *UserController) UpdateProfile(ctx *gin.Context) {
	user, ok := middleware.GetCurrentUser(ctx)
	if !ok {
		middleware.HandleAPIError(ctx, apperrors.ErrTokenRequired)
		return
	}

	var req dto.UpdateProfileRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(ctx, err)
		return
	}

	profile, err := c.userService.UpdateProfile(ctx.Request.Context(), user.ID, &req)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(profile, "Profile updated"))
}

// ChangePassword changes the caller's password
// @Summary Change password
// @Description Replaces the password after verifying the current one. Every other session is ended; this one stays alive.
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.ChangePasswordRequest true "Current and new password"
// @Success 200 {object} dto.APIResponse "Password changed"
// @Failure 401 {object} dto.APIResponse "Wrong current password"
// @Router /users/change-password [patch]
func (c *UserController) ChangePassword(ctx *gin.Context) {
	user, okUser := middleware.GetCurrentUser(ctx)
	token, okToken := middleware.GetCurrentToken(ctx)
	if !okUser || !okToken {
		middleware.HandleAPIError(ctx, apperrors.ErrTokenRequired)
		return
	}

	var req dto.ChangePasswordRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(ctx, err)
		return
	}

	if err := c.userService.ChangePassword(ctx.Request.Context(), user.ID, token, &req); err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(nil, "Password changed"))
}

// ListUsers lists users (admin)
// @Summary List users
// @Description Returns a page of users, optionally filtered by role and governorate.
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Page size" default(10)
// @Param role query string false "Filter by role"
// @Param governorate query string false "Filter by governorate"
// @Success 200 {object} dto.APIResponse{data=dto.UserListResponse} "Users"
// @Failure 403 {object} dto.APIResponse "Admins only"
// @Router /users [get]
func (c *UserController) ListUsers(ctx *gin.Context) {
	var query dto.ListUsersQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		middleware.HandleValidationError(ctx, err)
		return
	}

	response, err := c.userService.ListUsers(ctx.Request.Context(), query)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(response, "Users"))
}

// GetUser returns one user (admin)
// @Summary Get a user
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {object} dto.APIResponse{data=dto.UserProfile} "User"
// @Failure 404 {object} dto.APIResponse "User not found"
// @Router /users/{id} [get]
func (c *UserController) GetUser(ctx *gin.Context) {
	userID, err := parseIDParam(ctx)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	profile, err := c.userService.GetUser(ctx.Request.Context(), userID)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(profile, "User"))
}

// SearchUsers searches users by name or email (admin)
// @Summary Search users
// @Description Case-insensitive search over names and email, with optional role and governorate filters
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param query query string true "Search term (min 2 characters)"
// @Param role query string false "Filter by role" Enums(STUDENT, INSTRUCTOR, ADMIN)
// @Param governorate query string false "Filter by governorate"
// @Param limit query int false "Maximum results" default(10)
// @Success 200 {object} dto.APIResponse{data=[]dto.UserProfile} "Matching users"
// @Failure 400 {object} dto.APIResponse "Search term too short"
// @Router /users/search [get]
func (c *UserController) SearchUsers(ctx *gin.Context) {
	var query dto.SearchUsersQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		middleware.HandleValidationError(ctx, err)
		return
	}

	users, err := c.userService.SearchUsers(ctx.Request.Context(), query)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(users, "Search results"))
}

// GetUserStats returns aggregate account statistics (admin)
// @Summary User statistics
// @Description Account counts by role, instructor approval status, and governorate
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.UserStats} "Statistics"
// @Router /users/stats [get]
func (c *UserController) GetUserStats(ctx *gin.Context) {
	stats, err := c.userService.GetUserStats(ctx.Request.Context())
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(stats, "User statistics"))
}

// ListPendingInstructors lists instructors awaiting review (admin)
// @Summary List pending instructors
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=[]dto.UserProfile} "Pending instructors"
// @Router /users/pending-instructors [get]
func (c *UserController) ListPendingInstructors(ctx *gin.Context) {
	pending, err := c.userService.ListPendingInstructors(ctx.Request.Context())
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(pending, "Pending instructors"))
}

// UpdateStatus records an instructor review decision (admin)
// @Summary Approve or reject an instructor
// @Description Sets the instructor's approval status and notifies them by email. Rejection ends their sessions.
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Param request body dto.UpdateStatusRequest true "Review decision"
// @Success 200 {object} dto.APIResponse "Status updated"
// @Failure 400 {object} dto.APIResponse "Not an instructor account"
// @Failure 404 {object} dto.APIResponse "User not found"
// @Router /users/{id}/status [patch]
func (c *UserController) UpdateStatus(ctx *gin.Context) {
	userID, err := parseIDParam(ctx)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	var req dto.UpdateStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(ctx, err)
		return
	}

	status := models.ApprovalStatus(req.Status)
	if err := c.userService.UpdateApprovalStatus(ctx.Request.Context(), userID, status); err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	c.logger.Info().Int64("userID", userID).Str("status", req.Status).Msg("Instructor review recorded")
	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(nil, "Status updated"))
}

// DeleteUser removes a user account (admin)
// @Summary Delete a user
// @Description Removes the account, its sessions and any stored qualification document.
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {object} dto.APIResponse "User deleted"
// @Failure 404 {object} dto.APIResponse "User not found"
// @Router /users/{id} [delete]
func (c *UserController) DeleteUser(ctx *gin.Context) {
	userID, err := parseIDParam(ctx)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	// An admin removing their own account would orphan the session
	// making the call.
	if caller, ok := middleware.GetCurrentUser(ctx); ok && caller.ID == userID {
		middleware.HandleAPIError(ctx, apperrors.NewBadRequestError("cannot delete your own account"))
		return
	}

	if err := c.userService.DeleteUser(ctx.Request.Context(), userID); err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(nil, "User deleted"))
}

func parseIDParam(ctx *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("id", "id must be a positive integer")
	}
	return id, nil
}
