package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/okasha/maarif/internal/app/models"
	"github.com/okasha/maarif/internal/app/repositories"
	"github.com/okasha/maarif/internal/pkg/apperrors"
	"github.com/okasha/maarif/internal/pkg/auth"
)

// Context keys for authenticated request state
const (
	ContextUserKey        = "currentUser"
	ContextTokenKey       = "sessionToken"
	ContextTokenRecordKey = "sessionTokenRecord"
)

// refreshWindow is the remaining-TTL threshold under which a session's
// expiry is extended on use (sliding sessions).
const refreshWindow = 24 * time.Hour

// AuthMiddleware guards routes behind session token validation
type AuthMiddleware struct {
	jwtService *auth.JWTService
	tokenRepo  repositories.ITokenRepository
	userRepo   repositories.IUserRepository
	logger     zerolog.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(
	jwtService *auth.JWTService,
	tokenRepo repositories.ITokenRepository,
	userRepo repositories.IUserRepository,
	logger zerolog.Logger,
) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService: jwtService,
		tokenRepo:  tokenRepo,
		userRepo:   userRepo,
		logger:     logger,
	}
}

// Authenticate validates the session token and attaches the user and
// token record to the request context. Rejections abort the request.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, token, record, err := m.validate(c)
		if err != nil {
			HandleAPIError(c, err)
			c.Abort()
			return
		}

		m.attach(c, user, token, record)
		c.Next()
	}
}

// OptionalAuthenticate runs the same validation pipeline but proceeds
// unauthenticated on any rejection instead of failing the request.
func (m *AuthMiddleware) OptionalAuthenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, token, record, err := m.validate(c)
		if err == nil {
			m.attach(c, user, token, record)
		}
		c.Next()
	}
}

// RequireRoles allows only the given roles past. Must run after
// Authenticate.
func (m *AuthMiddleware) RequireRoles(roles ...models.RoleType) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := GetCurrentUser(c)
		if !ok {
			HandleAPIError(c, apperrors.ErrTokenRequired)
			c.Abort()
			return
		}
		for _, role := range roles {
			if user.Role == role {
				c.Next()
				return
			}
		}
		HandleAPIError(c, apperrors.ErrPermissionDenied)
		c.Abort()
	}
}

// validate runs the ordered validation pipeline. Signature checks come
// before the store lookup so garbage input never costs a round-trip;
// user existence is checked before the account-state gates so a missing
// user surfaces as not-found rather than an auth failure.
func (m *AuthMiddleware) validate(c *gin.Context) (*models.User, string, *models.SessionToken, error) {
	token, err := auth.ExtractBearerToken(c.GetHeader("Authorization"))
	if err != nil {
		return nil, "", nil, err
	}

	claims, err := m.jwtService.ValidateSessionToken(token)
	if err != nil {
		return nil, "", nil, err
	}

	record, err := m.tokenRepo.GetTokenByValue(c.Request.Context(), token)
	if err != nil {
		return nil, "", nil, err
	}
	now := time.Now()
	if !record.Usable(now) {
		// An invalidated token and an expired one look the same to the
		// caller; neither reveals whether the session once existed.
		if !now.Before(record.ExpiresAt) {
			return nil, "", nil, apperrors.ErrTokenExpired
		}
		return nil, "", nil, apperrors.ErrTokenInvalid
	}

	user, err := m.userRepo.GetUserByID(c.Request.Context(), claims.UserID)
	if err != nil {
		return nil, "", nil, err
	}

	if !user.IsConfirmed {
		return nil, "", nil, apperrors.ErrEmailNotConfirmed
	}
	if user.IsLocked(now) {
		return nil, "", nil, apperrors.ErrAccountLocked
	}

	m.touch(c, user, record)
	return user, token, record, nil
}

// touch stamps activity and applies the sliding-expiry extension.
// Failures here never fail the request.
func (m *AuthMiddleware) touch(c *gin.Context, user *models.User, record *models.SessionToken) {
	now := time.Now()

	var newExpiry time.Time
	if record.ExpiresAt.Sub(now) < refreshWindow {
		newExpiry = now.Add(record.Kind.DefaultTTL())
		record.ExpiresAt = newExpiry
	}
	if err := m.tokenRepo.TouchToken(c.Request.Context(), record.Token, newExpiry); err != nil {
		m.logger.Debug().Err(err).Msg("Failed to touch session token")
	}

	if err := m.userRepo.TouchActivity(c.Request.Context(), user.ID); err != nil {
		m.logger.Debug().Err(err).Int64("userID", user.ID).Msg("Failed to update last activity")
	}
}

func (m *AuthMiddleware) attach(c *gin.Context, user *models.User, token string, record *models.SessionToken) {
	c.Set(ContextUserKey, user)
	c.Set(ContextTokenKey, token)
	c.Set(ContextTokenRecordKey, record)
}

// GetCurrentUser returns the authenticated user from the context
func GetCurrentUser(c *gin.Context) (*models.User, bool) {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	user, ok := value.(*models.User)
	return user, ok
}

// GetCurrentToken returns the presented session token string
func GetCurrentToken(c *gin.Context) (string, bool) {
	value, exists := c.Get(ContextTokenKey)
	if !exists {
		return "", false
	}
	token, ok := value.(string)
	return token, ok
}
