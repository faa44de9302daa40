package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/okasha/maarif/internal/app/models"
	"github.com/okasha/maarif/internal/pkg/apperrors"
)

// JWTConfig defines JWT configuration settings
type JWTConfig struct {
	SecretKey          string
	ConfirmationSecret string
	SessionTokenExp    time.Duration
	ConfirmTokenExp    time.Duration
	TokenIssuer        string
}

// JWTService handles JWT operations
type JWTService struct {
	config JWTConfig
}

// NewJWTService creates a new JWT service
func NewJWTService(config JWTConfig) *JWTService {
	return &JWTService{
		config: config,
	}
}

// Claims defines session token content
type Claims struct {
	UserID int64  `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// ConfirmClaims defines confirmation token content. Confirmation tokens
// are signed with a dedicated secret and are never stored server-side.
type ConfirmClaims struct {
	UserID int64 `json:"userId"`
	jwt.RegisteredClaims
}

// GenerateSessionToken creates a signed session token for the user
func (s *JWTService) GenerateSessionToken(user *models.User) (string, time.Time, error) {
	expiresAt := time.Now().Add(s.config.SessionTokenExp)

	claims := &Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    s.config.TokenIssuer,
			Subject:   fmt.Sprintf("%d", user.ID),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.SecretKey))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to create session token: %w", err)
	}

	return signed, expiresAt, nil
}

// GenerateConfirmationToken creates a short-lived email confirmation token
func (s *JWTService) GenerateConfirmationToken(userID int64) (string, error) {
	claims := &ConfirmClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.config.ConfirmTokenExp)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.config.TokenIssuer,
			Subject:   fmt.Sprintf("%d", userID),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.ConfirmationSecret))
	if err != nil {
		return "", fmt.Errorf("failed to create confirmation token: %w", err)
	}

	return signed, nil
}

// ValidateSessionToken verifies the signature and expiry of a session
// token and returns its claims. The session store is consulted separately.
func (s *JWTService) ValidateSessionToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, apperrors.ErrTokenInvalid
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.SecretKey), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.ErrTokenExpired
		}
		return nil, apperrors.ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID <= 0 || claims.Email == "" {
		return nil, apperrors.ErrTokenInvalid
	}

	return claims, nil
}

// ValidateConfirmationToken verifies an email confirmation token and
// returns the user ID it was issued for.
func (s *JWTService) ValidateConfirmationToken(tokenString string) (int64, error) {
	if tokenString == "" {
		return 0, apperrors.ErrInvalidConfirmToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &ConfirmClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.ConfirmationSecret), nil
	})

	if err != nil {
		return 0, apperrors.ErrInvalidConfirmToken
	}

	claims, ok := token.Claims.(*ConfirmClaims)
	if !ok || !token.Valid || claims.UserID <= 0 {
		return 0, apperrors.ErrInvalidConfirmToken
	}

	return claims.UserID, nil
}

// ExtractBearerToken extracts the token from the Authorization header.
// The "Bearer " prefix is mandatory.
func ExtractBearerToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", apperrors.ErrTokenRequired
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", apperrors.ErrTokenRequired
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", apperrors.ErrTokenRequired
	}

	return token, nil
}
