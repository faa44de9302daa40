package models

import (
	"time"
)

// User defines the user model based on the 'users' table
type User struct {
	ID             int64          `json:"id" db:"id" example:"1"`                                       // Unique identifier for the user
	FirstName      string         `json:"firstName" db:"first_name" example:"Ahmed"`                    // User's first name
	LastName       string         `json:"lastName" db:"last_name" example:"Mohamed"`                    // User's last name
	Email          string         `json:"email" db:"email" example:"ahmed.mohamed@example.com"`         // User's email address (unique, stored lowercase)
	Password       string         `json:"-" db:"password"`                                              // User's hashed password (excluded from JSON)
	Phone          *string        `json:"phone,omitempty" db:"phone_number" example:"01234567890"`      // Optional phone number
	Role           RoleType       `json:"role" db:"role" example:"STUDENT"`                             // User's role (STUDENT, INSTRUCTOR or ADMIN)
	Status         ApprovalStatus `json:"status" db:"approval_status" example:"APPROVED"`               // Approval state, gates instructor login
	IsConfirmed    bool           `json:"isConfirmed" db:"is_confirmed" example:"true"`                 // Whether the email address is confirmed
	Governorate    string         `json:"governorate" db:"governorate" example:"Cairo"`                 // Governorate of residence
	GradeLevel     *string        `json:"gradeLevel,omitempty" db:"grade_level"`                        // Grade level (students only)
	Subject        *string        `json:"subject,omitempty" db:"subject"`                               // Taught subject (instructors only)
	DocumentURL    *string        `json:"documentUrl,omitempty" db:"document_url"`                      // Qualification document URL (instructors only)
	DocumentID     *string        `json:"-" db:"document_id"`                                           // Storage identifier of the qualification document
	ResetCode      *string        `json:"-" db:"reset_code"`                                            // Pending password-reset code (excluded from JSON)
	LoginAttempts  int            `json:"-" db:"login_attempts"`                                        // Consecutive failed login attempts
	LockUntil      *time.Time     `json:"-" db:"lock_until"`                                            // Account locked until this time (nullable)
	LastLoginAt    *time.Time     `json:"lastLoginAt,omitempty" db:"last_login_at"`                     // Timestamp of the last login (nullable)
	LastActivityAt *time.Time     `json:"lastActivityAt,omitempty" db:"last_activity_at"`               // Timestamp of the last authenticated request (nullable)
	CreatedAt      time.Time      `json:"createdAt" db:"created_at" example:"2024-01-01T10:00:00Z"`     // Timestamp when the user was created
	UpdatedAt      time.Time      `json:"updatedAt" db:"updated_at" example:"2024-01-02T15:30:00Z"`     // Timestamp when the user was last updated
}

// IsLocked reports whether the account lockout is still in effect.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockUntil != nil && u.LockUntil.After(now)
}

// CanAuthenticate checks the account-state gates that apply after a
// successful password check: confirmed email for everyone, approval for
// instructors.
func (u *User) CanAuthenticate() bool {
	if !u.IsConfirmed {
		return false
	}
	if u.Role == RoleInstructor && u.Status != StatusApproved {
		return false
	}
	return true
}
