package dto

import (
	"time"

	"github.com/okasha/maarif/internal/app/models"
)

// UserProfile represents a user's own profile view. The password and
// reset code never appear here.
type UserProfile struct {
	ID          int64      `json:"id" example:"1"`
	FirstName   string     `json:"firstName" example:"Ahmed"`
	LastName    string     `json:"lastName" example:"Mohamed"`
	Email       string     `json:"email" example:"ahmed.mohamed@example.com"`
	Phone       *string    `json:"phone,omitempty"`
	Role        string     `json:"role" example:"STUDENT"`
	Status      string     `json:"status" example:"APPROVED"`
	IsConfirmed bool       `json:"isConfirmed" example:"true"`
	Governorate string     `json:"governorate" example:"Cairo"`
	GradeLevel  *string    `json:"gradeLevel,omitempty"`
	Subject     *string    `json:"subject,omitempty"`
	DocumentURL *string    `json:"documentUrl,omitempty"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// NewUserProfile projects a user model onto the profile view
func NewUserProfile(user *models.User) *UserProfile {
	if user == nil {
		return nil
	}
	return &UserProfile{
		ID:          user.ID,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Email:       user.Email,
		Phone:       user.Phone,
		Role:        string(user.Role),
		Status:      string(user.Status),
		IsConfirmed: user.IsConfirmed,
		Governorate: user.Governorate,
		GradeLevel:  user.GradeLevel,
		Subject:     user.Subject,
		DocumentURL: user.DocumentURL,
		LastLoginAt: user.LastLoginAt,
		CreatedAt:   user.CreatedAt,
	}
}

// UpdateProfileRequest represents profile update data. Role-conditional
// fields are applied only when they match the caller's role.
type UpdateProfileRequest struct {
	FirstName   string `json:"firstName" binding:"omitempty,min=2,max=20"`
	LastName    string `json:"lastName" binding:"omitempty,min=2,max=20"`
	Phone       string `json:"phone" binding:"omitempty"`
	Governorate string `json:"governorate" binding:"omitempty"`
	GradeLevel  string `json:"gradeLevel" binding:"omitempty"`
	Subject     string `json:"subject" binding:"omitempty"`
}

// ChangePasswordRequest represents a password change for a logged-in user
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=8"`
	ConfirmPassword string `json:"confirmPassword" binding:"required,eqfield=NewPassword"`
}

// UpdateStatusRequest sets an instructor's approval status (admin only)
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=APPROVED REJECTED"`
}

// ListUsersQuery carries pagination and filters for the admin user list
type ListUsersQuery struct {
	Page        int    `form:"page,default=1" binding:"omitempty,min=1"`
	Limit       int    `form:"limit,default=10" binding:"omitempty,min=1,max=100"`
	Role        string `form:"role" binding:"omitempty,oneof=STUDENT INSTRUCTOR ADMIN"`
	Governorate string `form:"governorate" binding:"omitempty"`
}

// UserListResponse is a paginated user listing
type UserListResponse struct {
	Users []*UserProfile `json:"users"`
	Total int64          `json:"total" example:"42"`
	Page  int            `json:"page" example:"1"`
	Limit int            `json:"limit" example:"10"`
}

// SearchUsersQuery carries the admin search term and optional filters
type SearchUsersQuery struct {
	Query       string `form:"query" binding:"required,min=2"`
	Role        string `form:"role" binding:"omitempty,oneof=STUDENT INSTRUCTOR ADMIN"`
	Governorate string `form:"governorate" binding:"omitempty"`
	Limit       int    `form:"limit,default=10" binding:"omitempty,min=1,max=100"`
}

// RoleStats aggregates accounts for one role. Active counts accounts
// holding at least one usable session token.
type RoleStats struct {
	Role      string `json:"role" example:"STUDENT"`
	Count     int64  `json:"count" example:"120"`
	Confirmed int64  `json:"confirmed" example:"95"`
	Active    int64  `json:"active" example:"40"`
}

// StatusStats aggregates instructor accounts by approval status
type StatusStats struct {
	Status string `json:"status" example:"PENDING"`
	Count  int64  `json:"count" example:"7"`
}

// GovernorateStats aggregates accounts by governorate
type GovernorateStats struct {
	Governorate string `json:"governorate" example:"Cairo"`
	Count       int64  `json:"count" example:"30"`
}

// UserStats is the admin statistics overview
type UserStats struct {
	Roles              []RoleStats        `json:"roles"`
	InstructorStatuses []StatusStats      `json:"instructorStatuses"`
	Governorates       []GovernorateStats `json:"governorates"`
}
