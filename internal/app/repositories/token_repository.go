package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okasha/maarif/internal/app/models"
	"github.com/okasha/maarif/internal/pkg/apperrors"
	"github.com/okasha/maarif/internal/pkg/dberrors"
	"github.com/okasha/maarif/internal/pkg/logger"
)

const tokenColumns = "id, token, user_id, kind, agent, ip_address, is_valid, expires_at, last_used_at, created_at"

// ITokenRepository defines the interface for session token database operations
type ITokenRepository interface {
	CreateToken(ctx context.Context, token *models.SessionToken) error
	GetTokenByValue(ctx context.Context, token string) (*models.SessionToken, error)
	InvalidateToken(ctx context.Context, token string) error
	InvalidateAllUserTokens(ctx context.Context, userID int64) (int64, error)
	InvalidateOtherUserTokens(ctx context.Context, userID int64, keepToken string) (int64, error)
	TouchToken(ctx context.Context, token string, newExpiry time.Time) error
	ListActiveUserTokens(ctx context.Context, userID int64) ([]*models.SessionToken, error)
	CleanupExpiredTokens(ctx context.Context) (int64, error)
}

// TokenRepository handles session token database operations
type TokenRepository struct {
	db *pgxpool.Pool
	sb squirrel.StatementBuilderType
}

// NewTokenRepository creates a new TokenRepository
func NewTokenRepository(db *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{
		db: db,
		sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// CreateToken stores a newly issued session token
func (r *TokenRepository) CreateToken(ctx context.Context, token *models.SessionToken) error {
	sql, args, err := r.sb.Insert("session_tokens").
		Columns("token", "user_id", "kind", "agent", "ip_address", "is_valid", "expires_at").
		Values(token.Token, token.UserID, token.Kind, token.Agent, token.IPAddress, true, token.ExpiresAt).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build create token query: %w", err)
	}

	err = r.db.QueryRow(ctx, sql, args...).Scan(&token.ID, &token.CreatedAt)
	if err != nil {
		// Signed tokens carry a random jti, so a collision means the same
		// token string was stored twice.
		if dberrors.IsDuplicateConstraintError(err, "session_tokens_token_key") {
			logger.Warn().Int64("userID", token.UserID).Msg("Attempted to store duplicate session token")
			return apperrors.ErrTokenInvalid
		}
		return fmt.Errorf("error creating session token: %w", err)
	}
	token.IsValid = true

	return nil
}

// GetTokenByValue retrieves a session token row by its signed value.
// It returns the row regardless of validity or expiry; callers decide
// how an unusable token maps to an error.
func (r *TokenRepository) GetTokenByValue(ctx context.Context, token string) (*models.SessionToken, error) {
	sql, args, err := r.sb.Select(tokenColumns).
		From("session_tokens").
		Where(squirrel.Eq{"token": token}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build get token query: %w", err)
	}

	record, err := r.scanToken(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrTokenInvalid
		}
		return nil, fmt.Errorf("error retrieving session token: %w", err)
	}
	return record, nil
}

// InvalidateToken marks a single session token as no longer usable.
// Invalidating an already-invalid token is a no-op.
func (r *TokenRepository) InvalidateToken(ctx context.Context, token string) error {
	sql, args, err := r.sb.Update("session_tokens").
		Set("is_valid", false).
		Where(squirrel.Eq{"token": token}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build invalidate token query: %w", err)
	}

	_, err = r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("error invalidating session token: %w", err)
	}
	return nil
}

// InvalidateAllUserTokens marks every active token of a user as invalid.
// A user with no active tokens is not an error.
func (r *TokenRepository) InvalidateAllUserTokens(ctx context.Context, userID int64) (int64, error) {
	sql, args, err := r.sb.Update("session_tokens").
		Set("is_valid", false).
		Where(squirrel.Eq{"user_id": userID, "is_valid": true}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build invalidate user tokens query: %w", err)
	}

	cmdTag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("error invalidating user tokens: %w", err)
	}
	return cmdTag.RowsAffected(), nil
}

// InvalidateOtherUserTokens marks every active token of a user as
// invalid except the given one. Used by logout-others and password
// change, which keep the current session alive.
func (r *TokenRepository) InvalidateOtherUserTokens(ctx context.Context, userID int64, keepToken string) (int64, error) {
	sql, args, err := r.sb.Update("session_tokens").
		Set("is_valid", false).
		Where(squirrel.And{
			squirrel.Eq{"user_id": userID, "is_valid": true},
			squirrel.NotEq{"token": keepToken},
		}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build invalidate other tokens query: %w", err)
	}

	cmdTag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("error invalidating other user tokens: %w", err)
	}
	return cmdTag.RowsAffected(), nil
}

// TouchToken stamps the token's last use and optionally extends its
// expiry. A zero newExpiry leaves the expiry untouched.
func (r *TokenRepository) TouchToken(ctx context.Context, token string, newExpiry time.Time) error {
	builder := r.sb.Update("session_tokens").
		Set("last_used_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"token": token, "is_valid": true})
	if !newExpiry.IsZero() {
		builder = builder.Set("expires_at", newExpiry)
	}

	sql, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build touch token query: %w", err)
	}

	_, err = r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("error touching session token: %w", err)
	}
	return nil
}

// ListActiveUserTokens returns the user's usable tokens, newest first
func (r *TokenRepository) ListActiveUserTokens(ctx context.Context, userID int64) ([]*models.SessionToken, error) {
	sql, args, err := r.sb.Select(tokenColumns).
		From("session_tokens").
		Where(squirrel.And{
			squirrel.Eq{"user_id": userID, "is_valid": true},
			squirrel.Gt{"expires_at": time.Now()},
		}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build list tokens query: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing user tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*models.SessionToken
	for rows.Next() {
		record, err := r.scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning session token: %w", err)
		}
		tokens = append(tokens, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session tokens: %w", err)
	}
	return tokens, nil
}

// staleTokenCondition matches rows that can never authenticate again:
// past their expiry, or already invalidated.
func staleTokenCondition(now time.Time) squirrel.Or {
	return squirrel.Or{
		squirrel.LtOrEq{"expires_at": now},
		squirrel.Eq{"is_valid": false},
	}
}

// CleanupExpiredTokens bulk-deletes tokens that can never authenticate
// again: expired rows and invalidated rows.
func (r *TokenRepository) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	sql, args, err := r.sb.Delete("session_tokens").
		Where(staleTokenCondition(time.Now())).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build cleanup tokens query: %w", err)
	}

	cmdTag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("error cleaning up tokens: %w", err)
	}

	deletedCount := cmdTag.RowsAffected()
	if deletedCount > 0 {
		logger.Info().Int64("deletedCount", deletedCount).Msg("Cleaned up expired session tokens")
	}
	return deletedCount, nil
}

func (r *TokenRepository) scanToken(row pgx.Row) (*models.SessionToken, error) {
	var record models.SessionToken
	err := row.Scan(
		&record.ID,
		&record.Token,
		&record.UserID,
		&record.Kind,
		&record.Agent,
		&record.IPAddress,
		&record.IsValid,
		&record.ExpiresAt,
		&record.LastUsedAt,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &record, nil
}
