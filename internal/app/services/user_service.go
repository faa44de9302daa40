package services

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/okasha/maarif/internal/app/models"
	"github.com/okasha/maarif/internal/app/models/dto"
	"github.com/okasha/maarif/internal/app/repositories"
	"github.com/okasha/maarif/internal/pkg/apperrors"
	"github.com/okasha/maarif/internal/pkg/auth"
	"github.com/okasha/maarif/internal/pkg/email"
	"github.com/okasha/maarif/internal/pkg/filestorage"
)

// UserService handles profile management and administrative user
// operations.
type UserService struct {
	userRepo     repositories.IUserRepository
	tokenRepo    repositories.ITokenRepository
	emailService email.EmailService
	fileStorage  filestorage.FileStorage
	logger       zerolog.Logger
	bcryptCost   int
}

// NewUserService creates a new UserService
func NewUserService(
	userRepo repositories.IUserRepository,
	tokenRepo repositories.ITokenRepository,
	emailService email.EmailService,
	fileStorage filestorage.FileStorage,
	logger zerolog.Logger,
	bcryptCost int,
) *UserService {
	return &UserService{
		userRepo:     userRepo,
		tokenRepo:    tokenRepo,
		emailService: emailService,
		fileStorage:  fileStorage,
		logger:       logger,
		bcryptCost:   bcryptCost,
	}
}

// GetProfile returns the user's own profile view
func (s *UserService) GetProfile(ctx context.Context, userID int64) (*dto.UserProfile, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return dto.NewUserProfile(user), nil
}

// UpdateProfile applies the provided profile fields. Role-conditional
// fields (grade level, subject) are applied only for the matching role
// and silently ignored otherwise.
func (s *UserService) UpdateProfile(ctx context.Context, userID int64, req *dto.UpdateProfileRequest) (*dto.UserProfile, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if req.FirstName != "" {
		updates["first_name"] = req.FirstName
	}
	if req.LastName != "" {
		updates["last_name"] = req.LastName
	}
	if req.Phone != "" {
		updates["phone_number"] = req.Phone
	}
	if req.Governorate != "" {
		updates["governorate"] = req.Governorate
	}
	if req.GradeLevel != "" && user.Role == models.RoleStudent {
		updates["grade_level"] = req.GradeLevel
	}
	if req.Subject != "" && user.Role == models.RoleInstructor {
		updates["subject"] = req.Subject
	}

	if err := s.userRepo.UpdateProfile(ctx, userID, updates); err != nil {
		return nil, err
	}

	updated, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return dto.NewUserProfile(updated), nil
}

// ChangePassword replaces the password of a logged-in user after
// verifying the current one. Other sessions are invalidated; the
// session making the change stays alive.
func (s *UserService) ChangePassword(ctx context.Context, userID int64, currentToken string, req *dto.ChangePasswordRequest) error {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	if !auth.CheckPassword(user.Password, req.CurrentPassword) {
		return apperrors.ErrInvalidCredentials
	}

	hashedPassword, err := auth.HashPassword(req.NewPassword, s.bcryptCost)
	if err != nil {
		return err
	}

	if err := s.userRepo.UpdatePassword(ctx, userID, hashedPassword); err != nil {
		return err
	}

	if _, err := s.tokenRepo.InvalidateOtherUserTokens(ctx, userID, currentToken); err != nil {
		return err
	}

	s.logger.Info().Int64("userID", userID).Msg("Password changed")
	return nil
}

// ListUsers returns a page of users for the admin listing
func (s *UserService) ListUsers(ctx context.Context, query dto.ListUsersQuery) (*dto.UserListResponse, error) {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.Limit < 1 {
		query.Limit = 10
	}

	users, total, err := s.userRepo.ListUsers(ctx, query)
	if err != nil {
		return nil, err
	}

	profiles := make([]*dto.UserProfile, 0, len(users))
	for _, user := range users {
		profiles = append(profiles, dto.NewUserProfile(user))
	}
	return &dto.UserListResponse{
		Users: profiles,
		Total: total,
		Page:  query.Page,
		Limit: query.Limit,
	}, nil
}

// SearchUsers finds users by name or email for the admin console
func (s *UserService) SearchUsers(ctx context.Context, query dto.SearchUsersQuery) ([]*dto.UserProfile, error) {
	if len(strings.TrimSpace(query.Query)) < 2 {
		return nil, apperrors.NewValidationError("query", "search term must be at least 2 characters")
	}
	if query.Limit < 1 {
		query.Limit = 10
	}

	users, err := s.userRepo.SearchUsers(ctx, query)
	if err != nil {
		return nil, err
	}

	profiles := make([]*dto.UserProfile, 0, len(users))
	for _, user := range users {
		profiles = append(profiles, dto.NewUserProfile(user))
	}
	return profiles, nil
}

// GetUserStats returns the aggregate account statistics for admins
func (s *UserService) GetUserStats(ctx context.Context) (*dto.UserStats, error) {
	return s.userRepo.GetUserStats(ctx)
}

// GetUser returns any user's profile (admin view)
func (s *UserService) GetUser(ctx context.Context, userID int64) (*dto.UserProfile, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return dto.NewUserProfile(user), nil
}

// ListPendingInstructors returns instructors awaiting review
func (s *UserService) ListPendingInstructors(ctx context.Context) ([]*dto.UserProfile, error) {
	users, err := s.userRepo.ListPendingInstructors(ctx)
	if err != nil {
		return nil, err
	}

	profiles := make([]*dto.UserProfile, 0, len(users))
	for _, user := range users {
		profiles = append(profiles, dto.NewUserProfile(user))
	}
	return profiles, nil
}

// UpdateApprovalStatus records the review decision for an instructor
// and notifies them by email. A rejection also ends any sessions the
// instructor may hold.
func (s *UserService) UpdateApprovalStatus(ctx context.Context, userID int64, status models.ApprovalStatus) error {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.Role != models.RoleInstructor {
		return apperrors.NewBadRequestError("only instructor accounts have an approval status")
	}

	if err := s.userRepo.UpdateApprovalStatus(ctx, userID, status); err != nil {
		return err
	}

	if status == models.StatusRejected {
		if _, err := s.tokenRepo.InvalidateAllUserTokens(ctx, userID); err != nil {
			s.logger.Error().Err(err).Int64("userID", userID).Msg("Failed to invalidate sessions after rejection")
		}
	}

	if err := s.emailService.SendApprovalEmail(user.Email, user.FirstName, status == models.StatusApproved); err != nil {
		s.logger.Warn().Err(err).Int64("userID", userID).Msg("Failed to send approval email")
	}

	s.logger.Info().Int64("userID", userID).Str("status", string(status)).Msg("Instructor approval status updated")
	return nil
}

// DeleteUser removes a user account together with its sessions and any
// stored qualification document.
func (s *UserService) DeleteUser(ctx context.Context, userID int64) error {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	if _, err := s.tokenRepo.InvalidateAllUserTokens(ctx, userID); err != nil {
		return err
	}

	if err := s.userRepo.DeleteUser(ctx, userID); err != nil {
		return err
	}

	if user.DocumentID != nil {
		if err := s.fileStorage.DeleteFile(documentSubPath, *user.DocumentID); err != nil {
			s.logger.Warn().Err(err).Int64("userID", userID).Msg("Failed to delete qualification document")
		}
	}

	s.logger.Info().Int64("userID", userID).Msg("User deleted")
	return nil
}

// TouchActivity stamps the user's last activity time. Errors are logged
// only; activity tracking must never fail a request.
func (s *UserService) TouchActivity(ctx context.Context, userID int64) {
	if err := s.userRepo.TouchActivity(ctx, userID); err != nil {
		s.logger.Debug().Err(err).Int64("userID", userID).Msg("Failed to update last activity")
	}
}
