package services

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/okasha/maarif/internal/app/models"
	"github.com/okasha/maarif/internal/app/models/dto"
	"github.com/okasha/maarif/internal/app/repositories"
	"github.com/okasha/maarif/internal/pkg/apperrors"
	"github.com/okasha/maarif/internal/pkg/auth"
	"github.com/okasha/maarif/internal/pkg/email"
	"github.com/okasha/maarif/internal/pkg/filestorage"
)

// documentSubPath is the storage subdirectory for instructor
// qualification documents.
const documentSubPath = "documents"

// AuthService handles registration, login and the session token
// lifecycle.
type AuthService struct {
	userRepo         repositories.IUserRepository
	tokenRepo        repositories.ITokenRepository
	jwtService       *auth.JWTService
	emailService     email.EmailService
	fileStorage      filestorage.FileStorage
	logger           zerolog.Logger
	bcryptCost       int
	maxLoginAttempts int
	lockoutDuration  time.Duration
}

// NewAuthService creates a new AuthService
func NewAuthService(
	userRepo repositories.IUserRepository,
	tokenRepo repositories.ITokenRepository,
	jwtService *auth.JWTService,
	emailService email.EmailService,
	fileStorage filestorage.FileStorage,
	logger zerolog.Logger,
	bcryptCost int,
	maxLoginAttempts int,
	lockoutDuration time.Duration,
) *AuthService {
	return &AuthService{
		userRepo:         userRepo,
		tokenRepo:        tokenRepo,
		jwtService:       jwtService,
		emailService:     emailService,
		fileStorage:      fileStorage,
		logger:           logger,
		bcryptCost:       bcryptCost,
		maxLoginAttempts: maxLoginAttempts,
		lockoutDuration:  lockoutDuration,
	}
}

// Register creates a new account and sends the confirmation email.
// Students are approved immediately; instructors start PENDING and must
// attach a qualification document.
func (s *AuthService) Register(ctx context.Context, req *dto.RegisterRequest, document *multipart.FileHeader) (*dto.RegisterResponse, error) {
	role := models.RoleType(strings.ToUpper(req.Role))
	if role != models.RoleStudent && role != models.RoleInstructor {
		return nil, apperrors.NewValidationError("role", "role must be STUDENT or INSTRUCTOR")
	}

	user := &models.User{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		Role:        role,
		Status:      models.StatusApproved,
		Governorate: req.Governorate,
	}
	if req.Phone != "" {
		user.Phone = &req.Phone
	}

	switch role {
	case models.RoleStudent:
		if req.GradeLevel == "" {
			return nil, apperrors.NewValidationError("gradeLevel", "grade level is required for students")
		}
		user.GradeLevel = &req.GradeLevel
	case models.RoleInstructor:
		if req.Subject == "" {
			return nil, apperrors.NewValidationError("subject", "subject is required for instructors")
		}
		if document == nil {
			return nil, apperrors.ErrFileRequired
		}
		user.Subject = &req.Subject
		user.Status = models.StatusPending
	}

	hashedPassword, err := auth.HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}
	user.Password = hashedPassword

	if document != nil {
		url, storageID, err := s.fileStorage.SaveFile(document, documentSubPath)
		if err != nil {
			s.logger.Error().Err(err).Str("email", req.Email).Msg("Failed to store qualification document")
			return nil, apperrors.ErrUploadFailed
		}
		user.DocumentURL = &url
		user.DocumentID = &storageID
	}

	userID, err := s.userRepo.CreateUser(ctx, user)
	if err != nil {
		// The orphaned document would otherwise linger on disk
		if user.DocumentID != nil {
			if delErr := s.fileStorage.DeleteFile(documentSubPath, *user.DocumentID); delErr != nil {
				s.logger.Warn().Err(delErr).Msg("Failed to remove document after registration failure")
			}
		}
		return nil, err
	}
	user.ID = userID

	s.sendConfirmationEmail(user)

	s.logger.Info().Int64("userID", userID).Str("role", string(role)).Msg("User registered")
	return &dto.RegisterResponse{
		UserID: userID,
		Email:  strings.ToLower(req.Email),
		Role:   string(role),
	}, nil
}

// ConfirmEmail validates a confirmation token and marks the account's
// email address as confirmed.
func (s *AuthService) ConfirmEmail(ctx context.Context, token string) error {
	userID, err := s.jwtService.ValidateConfirmationToken(token)
	if err != nil {
		return err
	}

	if err := s.userRepo.ConfirmEmail(ctx, userID); err != nil {
		// A token for a since-deleted user reveals nothing more than an
		// invalid one would.
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return apperrors.ErrInvalidConfirmToken
		}
		return err
	}

	s.logger.Info().Int64("userID", userID).Msg("Email confirmed")
	return nil
}

// Login verifies credentials and account state, then issues a session
// token recorded against the calling device.
func (s *AuthService) Login(ctx context.Context, req *dto.LoginRequest, client ClientInfo) (*dto.TokenResponse, error) {
	user, err := s.userRepo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, err
	}

	now := time.Now()
	if user.IsLocked(now) {
		return nil, apperrors.ErrAccountLocked
	}

	if !auth.CheckPassword(user.Password, req.Password) {
		if err := s.userRepo.RecordFailedLogin(ctx, user.ID, s.maxLoginAttempts, s.lockoutDuration); err != nil {
			s.logger.Error().Err(err).Int64("userID", user.ID).Msg("Failed to record login attempt")
		}
		return nil, apperrors.ErrInvalidCredentials
	}

	// Account-state gates apply only after the password check, so they
	// never leak state for a wrong password.
	if !user.CanAuthenticate() {
		if !user.IsConfirmed {
			return nil, apperrors.ErrEmailNotConfirmed
		}
		if user.Status == models.StatusRejected {
			return nil, apperrors.ErrInstructorRejected
		}
		return nil, apperrors.ErrInstructorPending
	}

	if err := s.userRepo.RecordLogin(ctx, user.ID); err != nil {
		s.logger.Error().Err(err).Int64("userID", user.ID).Msg("Failed to record login")
	}

	return s.issueSession(ctx, user, client)
}

// Logout invalidates the presented session token
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if err := s.tokenRepo.InvalidateToken(ctx, token); err != nil {
		return err
	}
	s.logger.Debug().Msg("Session token invalidated")
	return nil
}

// LogoutAll invalidates every active session of the user, including the
// one making the call.
func (s *AuthService) LogoutAll(ctx context.Context, userID int64) (int64, error) {
	count, err := s.tokenRepo.InvalidateAllUserTokens(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.logger.Info().Int64("userID", userID).Int64("count", count).Msg("All sessions invalidated")
	return count, nil
}

// LogoutOthers invalidates every active session of the user except the
// one making the call.
func (s *AuthService) LogoutOthers(ctx context.Context, userID int64, currentToken string) (int64, error) {
	count, err := s.tokenRepo.InvalidateOtherUserTokens(ctx, userID, currentToken)
	if err != nil {
		return 0, err
	}
	s.logger.Info().Int64("userID", userID).Int64("count", count).Msg("Other sessions invalidated")
	return count, nil
}

// ListSessions returns the user's active sessions, flagging the one the
// call was made with.
func (s *AuthService) ListSessions(ctx context.Context, userID int64, currentToken string) (*dto.SessionListResponse, error) {
	tokens, err := s.tokenRepo.ListActiveUserTokens(ctx, userID)
	if err != nil {
		return nil, err
	}

	sessions := make([]dto.SessionInfo, 0, len(tokens))
	for _, token := range tokens {
		sessions = append(sessions, dto.NewSessionInfo(token, currentToken))
	}
	return &dto.SessionListResponse{Sessions: sessions}, nil
}

// ForgotPassword generates a reset code for the account and emails it.
// An unknown email is reported to the caller; the registration endpoint
// reveals address existence anyway.
func (s *AuthService) ForgotPassword(ctx context.Context, emailAddr string) error {
	user, err := s.userRepo.GetUserByEmail(ctx, emailAddr)
	if err != nil {
		return err
	}

	code, err := email.GenerateResetCode()
	if err != nil {
		return err
	}

	if err := s.userRepo.SetResetCode(ctx, user.ID, code); err != nil {
		return err
	}

	if err := s.emailService.SendResetCodeEmail(user.Email, user.FirstName, code); err != nil {
		s.logger.Error().Err(err).Int64("userID", user.ID).Msg("Failed to send reset code email")
		return fmt.Errorf("failed to send reset email: %w", err)
	}

	s.logger.Info().Int64("userID", user.ID).Msg("Password reset code issued")
	return nil
}

// ResetPassword redeems an emailed reset code for a new password. Every
// session of the user is invalidated: a reset usually means the old
// password is considered compromised.
func (s *AuthService) ResetPassword(ctx context.Context, req *dto.ResetPasswordRequest) error {
	user, err := s.userRepo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return apperrors.ErrInvalidResetCode
		}
		return err
	}

	if user.ResetCode == nil || *user.ResetCode != req.ResetCode {
		return apperrors.ErrInvalidResetCode
	}

	hashedPassword, err := auth.HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		return fmt.Errorf("error hashing password: %w", err)
	}

	// UpdatePassword clears the reset code, making the code single-use
	if err := s.userRepo.UpdatePassword(ctx, user.ID, hashedPassword); err != nil {
		return err
	}

	if _, err := s.tokenRepo.InvalidateAllUserTokens(ctx, user.ID); err != nil {
		return err
	}

	s.logger.Info().Int64("userID", user.ID).Msg("Password reset completed")
	return nil
}

// issueSession signs a session token and records it for the device
func (s *AuthService) issueSession(ctx context.Context, user *models.User, client ClientInfo) (*dto.TokenResponse, error) {
	signed, expiresAt, err := s.jwtService.GenerateSessionToken(user)
	if err != nil {
		return nil, err
	}

	record := &models.SessionToken{
		Token:     signed,
		UserID:    user.ID,
		Kind:      models.TokenKindAccess,
		Agent:     client.Agent,
		IPAddress: client.IPAddress,
		ExpiresAt: expiresAt,
	}
	if err := s.tokenRepo.CreateToken(ctx, record); err != nil {
		return nil, err
	}

	return &dto.TokenResponse{
		Token:     signed,
		TokenType: "Bearer",
		ExpiresIn: int64(time.Until(expiresAt).Seconds()),
		User: dto.AuthenticatedUser{
			ID:    user.ID,
			Email: user.Email,
			Role:  user.Role,
		},
	}, nil
}

func (s *AuthService) sendConfirmationEmail(user *models.User) {
	token, err := s.jwtService.GenerateConfirmationToken(user.ID)
	if err != nil {
		s.logger.Error().Err(err).Int64("userID", user.ID).Msg("Failed to generate confirmation token")
		return
	}
	if err := s.emailService.SendConfirmationEmail(user.Email, user.FirstName, token); err != nil {
		s.logger.Error().Err(err).Int64("userID", user.ID).Msg("Failed to send confirmation email")
	}
}
