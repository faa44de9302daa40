package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/okasha/maarif/internal/app/models"
	"github.com/okasha/maarif/internal/app/models/dto"
	"github.com/okasha/maarif/internal/pkg/ratelimit"
)

func limitedRouter(class ratelimit.Class, asRole models.RoleType) *gin.Engine {
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore())
	m := NewRateLimitMiddleware(limiter)

	r := gin.New()
	if asRole != "" {
		// Simulate an already-authenticated request
		r.Use(func(c *gin.Context) {
			c.Set(ContextUserKey, &models.User{ID: 1, Role: asRole})
			c.Next()
		})
	}
	r.POST("/limited", m.Limit(class), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{})
	})
	return r
}

func TestRateLimitRejectsOverCeiling(t *testing.T) {
	class := ratelimit.Class{Name: "login", Window: 15 * time.Minute, Limit: 3}
	r := limitedRouter(class, "")

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/limited", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d should pass, got %d", i+1, w.Code)
		}
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/limited", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 over the ceiling, got %d", w.Code)
	}

	var resp dto.APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != dto.ErrorCodeRateLimited {
		t.Fatalf("expected %s, got %+v", dto.ErrorCodeRateLimited, resp.Error)
	}
}

func TestRateLimitRunsBeforeHandler(t *testing.T) {
	class := ratelimit.Class{Name: "login", Window: 15 * time.Minute, Limit: 1}
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore())
	m := NewRateLimitMiddleware(limiter)

	handlerCalls := 0
	r := gin.New()
	r.POST("/limited", m.Limit(class), func(c *gin.Context) {
		handlerCalls++
		c.JSON(http.StatusOK, gin.H{})
	})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/limited", nil))
	}
	if handlerCalls != 1 {
		t.Fatalf("handler must not run for limited requests, ran %d times", handlerCalls)
	}
}

func TestRateLimitExemptsAdmins(t *testing.T) {
	class := ratelimit.Class{Name: "general", Window: time.Minute, Limit: 1}
	r := limitedRouter(class, models.RoleAdmin)

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/limited", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("admins are exempt, request %d got %d", i+1, w.Code)
		}
	}
}

// issueTokenFor signs and stores a session token for any user, so tests
// can authenticate accounts beyond the fixture's default one.
func issueTokenFor(t *testing.T, f *middlewareFixture, user *models.User, expiresAt time.Time) string {
	t.Helper()
	signed, _, err := f.jwt.GenerateSessionToken(user)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	f.tokenRepo.records[signed] = &models.SessionToken{
		ID:        int64(len(f.tokenRepo.records) + 1),
		Token:     signed,
		UserID:    user.ID,
		Kind:      models.TokenKindAccess,
		IsValid:   true,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	return signed
}

func TestRateLimitAfterAuthenticationKeysPerAccount(t *testing.T) {
	f := newMiddlewareFixture(t)
	class := ratelimit.Class{Name: "profile_update", Window: time.Hour, Limit: 1}
	m := NewRateLimitMiddleware(ratelimit.NewLimiter(ratelimit.NewMemoryStore()))

	r := gin.New()
	r.GET("/profile", f.middleware.Authenticate(), m.Limit(class), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{})
	})

	second := &models.User{ID: 2, FirstName: "Sara", Email: "sara@example.com", Role: models.RoleStudent, Status: models.StatusApproved, IsConfirmed: true}
	f.userRepo.users[second.ID] = second

	far := time.Now().Add(72 * time.Hour)
	firstToken := f.issueToken(t, far, true)
	secondToken := issueTokenFor(t, f, second, far)

	if w := doRequest(r, "/profile", "Bearer "+firstToken); w.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", w.Code)
	}
	if w := doRequest(r, "/profile", "Bearer "+firstToken); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 over the per-account ceiling, got %d", w.Code)
	}

	// Same client IP, different account: its own counter
	if w := doRequest(r, "/profile", "Bearer "+secondToken); w.Code != http.StatusOK {
		t.Fatalf("second account should have its own counter, got %d", w.Code)
	}
}

func TestRateLimitAfterAuthenticationExemptsAdmins(t *testing.T) {
	f := newMiddlewareFixture(t)
	class := ratelimit.Class{Name: "admin_operations", Window: time.Hour, Limit: 1}
	m := NewRateLimitMiddleware(ratelimit.NewLimiter(ratelimit.NewMemoryStore()))

	r := gin.New()
	r.GET("/admin", f.middleware.Authenticate(), f.middleware.RequireRoles(models.RoleAdmin), m.Limit(class), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{})
	})

	admin := &models.User{ID: 3, FirstName: "Root", Email: "root@example.com", Role: models.RoleAdmin, Status: models.StatusApproved, IsConfirmed: true}
	f.userRepo.users[admin.ID] = admin
	adminToken := issueTokenFor(t, f, admin, time.Now().Add(72*time.Hour))

	for i := 0; i < 5; i++ {
		if w := doRequest(r, "/admin", "Bearer "+adminToken); w.Code != http.StatusOK {
			t.Fatalf("admins are exempt, request %d got %d", i+1, w.Code)
		}
	}
}

func TestRateLimitKeysIncludeUserID(t *testing.T) {
	class := ratelimit.Class{Name: "general", Window: time.Minute, Limit: 1}
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore())
	m := NewRateLimitMiddleware(limiter)

	userID := int64(1)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(ContextUserKey, &models.User{ID: userID, Role: models.RoleStudent})
		c.Next()
	})
	r.POST("/limited", m.Limit(class), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/limited", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("first user should pass, got %d", w.Code)
	}

	// Same IP, different user: separate counter
	userID = 2
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/limited", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("second user should have its own counter, got %d", w.Code)
	}
}
