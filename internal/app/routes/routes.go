package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/okasha/maarif/internal/app/controllers"
	"github.com/okasha/maarif/internal/app/models"
	"github.com/okasha/maarif/internal/middleware"
	"github.com/okasha/maarif/internal/pkg/ratelimit"
)

// SetupRouter configures all application routes
func SetupRouter(
	router *gin.Engine,
	authController *controllers.AuthController,
	userController *controllers.UserController,
	authMiddleware *middleware.AuthMiddleware,
	rateLimit *middleware.RateLimitMiddleware,
) {
	// API version group, everything behind the general ceiling
	v1 := router.Group("/api/v1")
	v1.Use(rateLimit.Limit(ratelimit.ClassGeneral))

	// --- Public auth routes, each behind its own limit class ---
	auth := v1.Group("/auth")
	{
		auth.POST("/register", rateLimit.Limit(ratelimit.ClassRegistration), authController.Register)
		auth.GET("/confirm-email/:token", rateLimit.Limit(ratelimit.ClassEmailConfirmation), authController.ConfirmEmail)
		auth.POST("/login", rateLimit.Limit(ratelimit.ClassLogin), authController.Login)
		auth.POST("/forgot-password", rateLimit.Limit(ratelimit.ClassForgotPassword), authController.ForgotPassword)
		auth.POST("/reset-password", rateLimit.Limit(ratelimit.ClassResetPassword), authController.ResetPassword)
	}

	// --- Authenticated session routes ---
	authSessions := v1.Group("/auth")
	authSessions.Use(authMiddleware.Authenticate())
	{
		authSessions.POST("/logout", authController.Logout)
		authSessions.POST("/logout-all", authController.LogoutAll)
		authSessions.POST("/logout-others", authController.LogoutOthers)
		authSessions.GET("/sessions", authController.ListSessions)
	}

	// --- Profile routes ---
	users := v1.Group("/users")
	users.Use(authMiddleware.Authenticate())
	{
		users.GET("/profile", userController.GetProfile)
		users.PATCH("/profile", rateLimit.Limit(ratelimit.ClassProfileUpdate), userController.UpdateProfile)
		users.PATCH("/change-password", rateLimit.Limit(ratelimit.ClassProfileUpdate), userController.ChangePassword)

		// Admin-only user management. The limiter runs after the role
		// guard, so it sees the authenticated user and keys per account.
		admin := users.Group("")
		admin.Use(authMiddleware.RequireRoles(models.RoleAdmin), rateLimit.Limit(ratelimit.ClassAdminOperations))
		{
			admin.GET("", userController.ListUsers)
			admin.GET("/search", rateLimit.Limit(ratelimit.ClassSearch), userController.SearchUsers)
			admin.GET("/stats", userController.GetUserStats)
			admin.GET("/pending-instructors", userController.ListPendingInstructors)
			admin.GET("/:id", userController.GetUser)
			admin.PATCH("/:id/status", userController.UpdateStatus)
			admin.DELETE("/:id", userController.DeleteUser)
		}
	}
}
