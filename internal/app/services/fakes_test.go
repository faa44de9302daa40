package services

import (
	"context"
	"mime/multipart"
	"strings"
	"sync"
	"time"

	"github.com/okasha/maarif/internal/app/models"
	"github.com/okasha/maarif/internal/app/models/dto"
	"github.com/okasha/maarif/internal/pkg/apperrors"
)

// In-memory repository fakes so service behavior can be tested without
// a database.

type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[int64]*models.User
	nextID int64
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int64]*models.User)}
}

func (r *fakeUserRepo) CreateUser(_ context.Context, user *models.User) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(user.Email)
	for _, existing := range r.users {
		if existing.Email == email {
			return 0, apperrors.ErrEmailAlreadyExists
		}
	}

	r.nextID++
	stored := *user
	stored.ID = r.nextID
	stored.Email = email
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = time.Now()
	r.users[stored.ID] = &stored
	return stored.ID, nil
}

func (r *fakeUserRepo) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == strings.ToLower(email) {
			copied := *user
			return &copied, nil
		}
	}
	return nil, apperrors.ErrUserNotFound
}

func (r *fakeUserRepo) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *fakeUserRepo) ConfirmEmail(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return apperrors.ErrUserNotFound
	}
	if user.IsConfirmed {
		return apperrors.ErrEmailAlreadyConfirmed
	}
	user.IsConfirmed = true
	return nil
}

func (r *fakeUserRepo) RecordFailedLogin(_ context.Context, userID int64, maxAttempts int, lockout time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return apperrors.ErrUserNotFound
	}
	user.LoginAttempts++
	if user.LoginAttempts >= maxAttempts {
		until := time.Now().Add(lockout)
		user.LockUntil = &until
	}
	return nil
}

func (r *fakeUserRepo) RecordLogin(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return apperrors.ErrUserNotFound
	}
	now := time.Now()
	user.LoginAttempts = 0
	user.LockUntil = nil
	user.LastLoginAt = &now
	user.LastActivityAt = &now
	return nil
}

func (r *fakeUserRepo) TouchActivity(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return apperrors.ErrUserNotFound
	}
	now := time.Now()
	user.LastActivityAt = &now
	return nil
}

func (r *fakeUserRepo) SetResetCode(_ context.Context, userID int64, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return apperrors.ErrUserNotFound
	}
	user.ResetCode = &code
	return nil
}

func (r *fakeUserRepo) UpdatePassword(_ context.Context, userID int64, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return apperrors.ErrUserNotFound
	}
	user.Password = passwordHash
	user.ResetCode = nil
	return nil
}

func (r *fakeUserRepo) UpdateProfile(_ context.Context, userID int64, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return apperrors.ErrUserNotFound
	}
	for column, value := range updates {
		text, _ := value.(string)
		switch column {
		case "first_name":
			user.FirstName = text
		case "last_name":
			user.LastName = text
		case "phone_number":
			user.Phone = &text
		case "governorate":
			user.Governorate = text
		case "grade_level":
			user.GradeLevel = &text
		case "subject":
			user.Subject = &text
		}
	}
	return nil
}

func (r *fakeUserRepo) UpdateApprovalStatus(_ context.Context, userID int64, status models.ApprovalStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return apperrors.ErrUserNotFound
	}
	user.Status = status
	return nil
}

func (r *fakeUserRepo) DeleteUser(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[userID]; !ok {
		return apperrors.ErrUserNotFound
	}
	delete(r.users, userID)
	return nil
}

func (r *fakeUserRepo) ListUsers(_ context.Context, query dto.ListUsersQuery) ([]*models.User, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*models.User
	for _, user := range r.users {
		if query.Role != "" && string(user.Role) != query.Role {
			continue
		}
		if query.Governorate != "" && user.Governorate != query.Governorate {
			continue
		}
		copied := *user
		matched = append(matched, &copied)
	}
	return matched, int64(len(matched)), nil
}

func (r *fakeUserRepo) ListPendingInstructors(_ context.Context) ([]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*models.User
	for _, user := range r.users {
		if user.Role == models.RoleInstructor && user.Status == models.StatusPending {
			copied := *user
			matched = append(matched, &copied)
		}
	}
	return matched, nil
}

func (r *fakeUserRepo) SearchUsers(_ context.Context, query dto.SearchUsersQuery) ([]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	term := strings.ToLower(query.Query)
	var matched []*models.User
	for _, user := range r.users {
		if query.Role != "" && string(user.Role) != query.Role {
			continue
		}
		if query.Governorate != "" && user.Governorate != query.Governorate {
			continue
		}
		if !strings.Contains(strings.ToLower(user.FirstName), term) &&
			!strings.Contains(strings.ToLower(user.LastName), term) &&
			!strings.Contains(user.Email, term) {
			continue
		}
		copied := *user
		matched = append(matched, &copied)
		if query.Limit > 0 && len(matched) == query.Limit {
			break
		}
	}
	return matched, nil
}

func (r *fakeUserRepo) GetUserStats(_ context.Context) (*dto.UserStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byRole := make(map[string]*dto.RoleStats)
	byStatus := make(map[string]int64)
	byGovernorate := make(map[string]int64)
	for _, user := range r.users {
		role := string(user.Role)
		entry, ok := byRole[role]
		if !ok {
			entry = &dto.RoleStats{Role: role}
			byRole[role] = entry
		}
		entry.Count++
		if user.IsConfirmed {
			entry.Confirmed++
		}
		if user.Role == models.RoleInstructor {
			byStatus[string(user.Status)]++
		}
		byGovernorate[user.Governorate]++
	}

	stats := &dto.UserStats{}
	for _, entry := range byRole {
		stats.Roles = append(stats.Roles, *entry)
	}
	for status, count := range byStatus {
		stats.InstructorStatuses = append(stats.InstructorStatuses, dto.StatusStats{Status: status, Count: count})
	}
	for governorate, count := range byGovernorate {
		stats.Governorates = append(stats.Governorates, dto.GovernorateStats{Governorate: governorate, Count: count})
	}
	return stats, nil
}

type fakeTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*models.SessionToken
	nextID int64
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{tokens: make(map[string]*models.SessionToken)}
}

func (r *fakeTokenRepo) CreateToken(_ context.Context, token *models.SessionToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[token.Token]; ok {
		return apperrors.ErrTokenInvalid
	}
	r.nextID++
	token.ID = r.nextID
	token.IsValid = true
	token.CreatedAt = time.Now()
	stored := *token
	r.tokens[token.Token] = &stored
	return nil
}

func (r *fakeTokenRepo) GetTokenByValue(_ context.Context, token string) (*models.SessionToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.tokens[token]
	if !ok {
		return nil, apperrors.ErrTokenInvalid
	}
	copied := *record
	return &copied, nil
}

func (r *fakeTokenRepo) InvalidateToken(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if record, ok := r.tokens[token]; ok {
		record.IsValid = false
	}
	return nil
}

func (r *fakeTokenRepo) InvalidateAllUserTokens(_ context.Context, userID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, record := range r.tokens {
		if record.UserID == userID && record.IsValid {
			record.IsValid = false
			count++
		}
	}
	return count, nil
}

func (r *fakeTokenRepo) InvalidateOtherUserTokens(_ context.Context, userID int64, keepToken string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for value, record := range r.tokens {
		if record.UserID == userID && record.IsValid && value != keepToken {
			record.IsValid = false
			count++
		}
	}
	return count, nil
}

func (r *fakeTokenRepo) TouchToken(_ context.Context, token string, newExpiry time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.tokens[token]
	if !ok || !record.IsValid {
		return nil
	}
	now := time.Now()
	record.LastUsedAt = &now
	if !newExpiry.IsZero() {
		record.ExpiresAt = newExpiry
	}
	return nil
}

func (r *fakeTokenRepo) ListActiveUserTokens(_ context.Context, userID int64) ([]*models.SessionToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var active []*models.SessionToken
	now := time.Now()
	for _, record := range r.tokens {
		if record.UserID == userID && record.Usable(now) {
			copied := *record
			active = append(active, &copied)
		}
	}
	return active, nil
}

func (r *fakeTokenRepo) CleanupExpiredTokens(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	now := time.Now()
	for value, record := range r.tokens {
		if !now.Before(record.ExpiresAt) || !record.IsValid {
			delete(r.tokens, value)
			count++
		}
	}
	return count, nil
}

type fakeFileStorage struct {
	mu      sync.Mutex
	saved   int
	deleted []string
}

func (s *fakeFileStorage) SaveFile(_ *multipart.FileHeader, _ string) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved++
	return "uploads/documents/stored.pdf", "stored.pdf", nil
}

func (s *fakeFileStorage) DeleteFile(_, storageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, storageID)
	return nil
}

type sentEmail struct {
	kind string
	to   string
	body string // token or code, depending on kind
}

type fakeEmailService struct {
	mu   sync.Mutex
	sent []sentEmail
}

func (s *fakeEmailService) SendConfirmationEmail(toEmail, _, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentEmail{kind: "confirmation", to: toEmail, body: token})
	return nil
}

func (s *fakeEmailService) SendResetCodeEmail(toEmail, _, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentEmail{kind: "reset", to: toEmail, body: code})
	return nil
}

func (s *fakeEmailService) SendApprovalEmail(toEmail, _ string, approved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kind := "rejected"
	if approved {
		kind = "approved"
	}
	s.sent = append(s.sent, sentEmail{kind: kind, to: toEmail})
	return nil
}

func (s *fakeEmailService) last() (sentEmail, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return sentEmail{}, false
	}
	return s.sent[len(s.sent)-1], true
}
