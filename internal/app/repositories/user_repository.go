package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okasha/maarif/internal/app/models"
	"github.com/okasha/maarif/internal/app/models/dto"
	"github.com/okasha/maarif/internal/pkg/apperrors"
	"github.com/okasha/maarif/internal/pkg/dberrors"
)

const userColumns = `id, first_name, last_name, email, password, phone_number, role, approval_status,
	is_confirmed, governorate, grade_level, subject, document_url, document_id, reset_code,
	login_attempts, lock_until, last_login_at, last_activity_at, created_at, updated_at`

// IUserRepository defines the interface for user-related database operations
type IUserRepository interface {
	CreateUser(ctx context.Context, user *models.User) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	ConfirmEmail(ctx context.Context, userID int64) error
	RecordFailedLogin(ctx context.Context, userID int64, maxAttempts int, lockout time.Duration) error
	RecordLogin(ctx context.Context, userID int64) error
	TouchActivity(ctx context.Context, userID int64) error
	SetResetCode(ctx context.Context, userID int64, code string) error
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
	UpdateProfile(ctx context.Context, userID int64, updates map[string]interface{}) error
	UpdateApprovalStatus(ctx context.Context, userID int64, status models.ApprovalStatus) error
	DeleteUser(ctx context.Context, userID int64) error
	ListUsers(ctx context.Context, query dto.ListUsersQuery) ([]*models.User, int64, error)
	ListPendingInstructors(ctx context.Context) ([]*models.User, error)
	SearchUsers(ctx context.Context, query dto.SearchUsersQuery) ([]*models.User, error)
	GetUserStats(ctx context.Context) (*dto.UserStats, error)
}

// UserRepository handles database operations for users
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// CreateUser inserts a new user and returns its generated ID.
// The email is stored lowercased so the unique index catches
// case-variant duplicates.
func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) (int64, error) {
	query := `
		INSERT INTO users (first_name, last_name, email, password, phone_number, role,
			approval_status, governorate, grade_level, subject, document_url, document_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`

	var id int64
	err := r.db.QueryRow(ctx, query,
		user.FirstName,
		user.LastName,
		strings.ToLower(user.Email),
		user.Password,
		user.Phone,
		user.Role,
		user.Status,
		user.Governorate,
		user.GradeLevel,
		user.Subject,
		user.DocumentURL,
		user.DocumentID,
	).Scan(&id)
	if err != nil {
		if dberrors.IsUniqueViolation(err) {
			return 0, apperrors.ErrEmailAlreadyExists
		}
		return 0, fmt.Errorf("failed to create user: %w", err)
	}
	return id, nil
}

// GetUserByEmail retrieves a user by email (case-insensitive)
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email = $1`, userColumns)
	return r.scanUser(r.db.QueryRow(ctx, query, strings.ToLower(email)))
}

// GetUserByID retrieves a user by ID
func (r *UserRepository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	return r.scanUser(r.db.QueryRow(ctx, query, id))
}

// ConfirmEmail marks the user's email address as confirmed.
// Returns ErrEmailAlreadyConfirmed when the flag was already set.
func (r *UserRepository) ConfirmEmail(ctx context.Context, userID int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET is_confirmed = TRUE, updated_at = NOW() WHERE id = $1 AND is_confirmed = FALSE`,
		userID)
	if err != nil {
		return fmt.Errorf("failed to confirm email: %w", err)
	}
	if tag.RowsAffected() == 0 {
		exists, err := r.userExists(ctx, userID)
		if err != nil {
			return err
		}
		if !exists {
			return apperrors.ErrUserNotFound
		}
		return apperrors.ErrEmailAlreadyConfirmed
	}
	return nil
}

// RecordFailedLogin atomically increments the failed-attempt counter and
// applies a lock once the threshold is crossed. The increment and the lock
// decision happen in a single statement so concurrent failures cannot race
// past the threshold.
func (r *UserRepository) RecordFailedLogin(ctx context.Context, userID int64, maxAttempts int, lockout time.Duration) error {
	query := `
		UPDATE users
		SET login_attempts = login_attempts + 1,
		    lock_until = CASE
		        WHEN login_attempts + 1 >= $2 THEN NOW() + $3
		        ELSE lock_until
		    END,
		    updated_at = NOW()
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, userID, maxAttempts, lockout)
	if err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}
	return nil
}

// RecordLogin resets the lockout state and stamps the login time
func (r *UserRepository) RecordLogin(ctx context.Context, userID int64) error {
	query := `
		UPDATE users
		SET login_attempts = 0,
		    lock_until = NULL,
		    last_login_at = NOW(),
		    last_activity_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return nil
}

// TouchActivity updates the user's last activity timestamp
func (r *UserRepository) TouchActivity(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE users SET last_activity_at = NOW() WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to update last activity: %w", err)
	}
	return nil
}

// SetResetCode stores the password reset code on the user row
func (r *UserRepository) SetResetCode(ctx context.Context, userID int64, code string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE users SET reset_code = $2, updated_at = NOW() WHERE id = $1`,
		userID, code)
	if err != nil {
		return fmt.Errorf("failed to set reset code: %w", err)
	}
	return nil
}

// UpdatePassword replaces the password hash and clears any pending
// reset code so a code can only redeem once.
func (r *UserRepository) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET password = $2, reset_code = NULL, updated_at = NOW() WHERE id = $1`,
		userID, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

// UpdateProfile applies a partial update to the user's editable fields
func (r *UserRepository) UpdateProfile(ctx context.Context, userID int64, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}

	builder := squirrel.Update("users").
		PlaceholderFormat(squirrel.Dollar).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": userID})
	for column, value := range updates {
		builder = builder.Set(column, value)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

// UpdateApprovalStatus sets an instructor's approval status
func (r *UserRepository) UpdateApprovalStatus(ctx context.Context, userID int64, status models.ApprovalStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET approval_status = $2, updated_at = NOW() WHERE id = $1`,
		userID, status)
	if err != nil {
		return fmt.Errorf("failed to update approval status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

// DeleteUser removes a user row
func (r *UserRepository) DeleteUser(ctx context.Context, userID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

// ListUsers returns a page of users matching the optional filters,
// together with the total match count for pagination.
func (r *UserRepository) ListUsers(ctx context.Context, query dto.ListUsersQuery) ([]*models.User, int64, error) {
	conditions := squirrel.And{}
	if query.Role != "" {
		conditions = append(conditions, squirrel.Eq{"role": query.Role})
	}
	if query.Governorate != "" {
		conditions = append(conditions, squirrel.Eq{"governorate": query.Governorate})
	}

	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	countBuilder := psql.Select("COUNT(*)").From("users")
	if len(conditions) > 0 {
		countBuilder = countBuilder.Where(conditions)
	}
	countSQL, countArgs, err := countBuilder.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build count query: %w", err)
	}

	var total int64
	if err := r.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	offset := (query.Page - 1) * query.Limit
	listBuilder := psql.Select(userColumns).From("users").
		OrderBy("created_at DESC").
		Limit(uint64(query.Limit)).
		Offset(uint64(offset))
	if len(conditions) > 0 {
		listBuilder = listBuilder.Where(conditions)
	}
	listSQL, listArgs, err := listBuilder.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build list query: %w", err)
	}

	rows, err := r.db.Query(ctx, listSQL, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users, err := r.collectUsers(rows)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// ListPendingInstructors returns instructors awaiting approval, oldest first
func (r *UserRepository) ListPendingInstructors(ctx context.Context) ([]*models.User, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM users
		WHERE role = $1 AND approval_status = $2
		ORDER BY created_at ASC`, userColumns)

	rows, err := r.db.Query(ctx, query, models.RoleInstructor, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending instructors: %w", err)
	}
	defer rows.Close()

	return r.collectUsers(rows)
}

// SearchUsers finds users whose name or email matches the term,
// case-insensitively, with optional role and governorate filters.
func (r *UserRepository) SearchUsers(ctx context.Context, query dto.SearchUsersQuery) ([]*models.User, error) {
	pattern := "%" + query.Query + "%"
	conditions := squirrel.And{
		squirrel.Or{
			squirrel.ILike{"first_name": pattern},
			squirrel.ILike{"last_name": pattern},
			squirrel.ILike{"email": pattern},
		},
	}
	if query.Role != "" {
		conditions = append(conditions, squirrel.Eq{"role": query.Role})
	}
	if query.Governorate != "" {
		conditions = append(conditions, squirrel.Eq{"governorate": query.Governorate})
	}

	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	searchSQL, args, err := psql.Select(userColumns).From("users").
		Where(conditions).
		OrderBy("created_at DESC").
		Limit(uint64(query.Limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build search query: %w", err)
	}

	rows, err := r.db.Query(ctx, searchSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	return r.collectUsers(rows)
}

// GetUserStats aggregates account counts by role, instructor approval
// status, and governorate. An account counts as active when it holds at
// least one usable session token.
func (r *UserRepository) GetUserStats(ctx context.Context) (*dto.UserStats, error) {
	stats := &dto.UserStats{}

	roleRows, err := r.db.Query(ctx, `
		SELECT u.role,
			COUNT(DISTINCT u.id),
			COUNT(DISTINCT u.id) FILTER (WHERE u.is_confirmed),
			COUNT(DISTINCT s.user_id)
		FROM users u
		LEFT JOIN session_tokens s
			ON s.user_id = u.id AND s.is_valid AND s.expires_at > NOW()
		GROUP BY u.role`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate users by role: %w", err)
	}
	for roleRows.Next() {
		var entry dto.RoleStats
		if err := roleRows.Scan(&entry.Role, &entry.Count, &entry.Confirmed, &entry.Active); err != nil {
			roleRows.Close()
			return nil, fmt.Errorf("error scanning role stats: %w", err)
		}
		stats.Roles = append(stats.Roles, entry)
	}
	roleRows.Close()
	if err := roleRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating role stats: %w", err)
	}

	statusRows, err := r.db.Query(ctx, `
		SELECT approval_status, COUNT(*)
		FROM users
		WHERE role = $1
		GROUP BY approval_status`, models.RoleInstructor)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate instructor statuses: %w", err)
	}
	for statusRows.Next() {
		var entry dto.StatusStats
		if err := statusRows.Scan(&entry.Status, &entry.Count); err != nil {
			statusRows.Close()
			return nil, fmt.Errorf("error scanning status stats: %w", err)
		}
		stats.InstructorStatuses = append(stats.InstructorStatuses, entry)
	}
	statusRows.Close()
	if err := statusRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status stats: %w", err)
	}

	governorateRows, err := r.db.Query(ctx, `
		SELECT governorate, COUNT(*)
		FROM users
		GROUP BY governorate
		ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate governorates: %w", err)
	}
	for governorateRows.Next() {
		var entry dto.GovernorateStats
		if err := governorateRows.Scan(&entry.Governorate, &entry.Count); err != nil {
			governorateRows.Close()
			return nil, fmt.Errorf("error scanning governorate stats: %w", err)
		}
		stats.Governorates = append(stats.Governorates, entry)
	}
	governorateRows.Close()
	if err := governorateRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating governorate stats: %w", err)
	}

	return stats, nil
}

func (r *UserRepository) userExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}

func (r *UserRepository) collectUsers(rows pgx.Rows) ([]*models.User, error) {
	var users []*models.User
	for rows.Next() {
		user, err := r.scanUserFromRows(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

func (r *UserRepository) scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.FirstName,
		&user.LastName,
		&user.Email,
		&user.Password,
		&user.Phone,
		&user.Role,
		&user.Status,
		&user.IsConfirmed,
		&user.Governorate,
		&user.GradeLevel,
		&user.Subject,
		&user.DocumentURL,
		&user.DocumentID,
		&user.ResetCode,
		&user.LoginAttempts,
		&user.LockUntil,
		&user.LastLoginAt,
		&user.LastActivityAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) scanUserFromRows(rows pgx.Rows) (*models.User, error) {
	var user models.User
	err := rows.Scan(
		&user.ID,
		&user.FirstName,
		&user.LastName,
		&user.Email,
		&user.Password,
		&user.Phone,
		&user.Role,
		&user.Status,
		&user.IsConfirmed,
		&user.Governorate,
		&user.GradeLevel,
		&user.Subject,
		&user.DocumentURL,
		&user.DocumentID,
		&user.ResetCode,
		&user.LoginAttempts,
		&user.LockUntil,
		&user.LastLoginAt,
		&user.LastActivityAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &user, nil
}
