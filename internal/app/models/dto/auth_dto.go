package dto

import "github.com/okasha/maarif/internal/app/models"

// RegisterRequest represents a user registration request. Register is a
// multipart form because instructors attach a qualification document.
type RegisterRequest struct {
	FirstName       string `form:"firstName" binding:"required,min=2,max=20"`
	LastName        string `form:"lastName" binding:"required,min=2,max=20"`
	Email           string `form:"email" binding:"required,email"`
	Password        string `form:"password" binding:"required,min=8"`
	ConfirmPassword string `form:"confirmPassword" binding:"required,eqfield=Password"`
	Role            string `form:"role" binding:"required,oneof=STUDENT INSTRUCTOR"`
	Phone           string `form:"phone" binding:"omitempty"`
	Governorate     string `form:"governorate" binding:"required"`
	GradeLevel      string `form:"gradeLevel" binding:"omitempty"`
	Subject         string `form:"subject" binding:"omitempty"`
}

// LoginRequest represents login credentials
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse represents session token information
type TokenResponse struct {
	Token     string            `json:"token"`
	TokenType string            `json:"tokenType" example:"Bearer"`
	ExpiresIn int64             `json:"expiresIn" example:"604800"`
	User      AuthenticatedUser `json:"user"`
}

// ForgotPasswordRequest asks for a password-reset code by email
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ResetPasswordRequest consumes an emailed 5-digit reset code
type ResetPasswordRequest struct {
	Email           string `json:"email" binding:"required,email"`
	ResetCode       string `json:"resetCode" binding:"required,len=5,numeric"`
	Password        string `json:"password" binding:"required,min=8"`
	ConfirmPassword string `json:"confirmPassword" binding:"required,eqfield=Password"`
}

// RegisterResponse confirms that registration was accepted
type RegisterResponse struct {
	UserID int64  `json:"userId" example:"1"`
	Email  string `json:"email" example:"ahmed.mohamed@example.com"`
	Role   string `json:"role" example:"STUDENT"`
}

// AuthenticatedUser is the projection of a user attached to an
// authenticated request context.
type AuthenticatedUser struct {
	ID    int64           `json:"id"`
	Email string          `json:"email"`
	Role  models.RoleType `json:"role"`
}
