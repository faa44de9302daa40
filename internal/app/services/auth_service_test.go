package services

import (
	"context"
	"errors"
	"mime/multipart"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/okasha/maarif/internal/app/models"
	"github.com/okasha/maarif/internal/app/models/dto"
	"github.com/okasha/maarif/internal/pkg/apperrors"
	"github.com/okasha/maarif/internal/pkg/auth"
)

type authFixture struct {
	service   *AuthService
	userRepo  *fakeUserRepo
	tokenRepo *fakeTokenRepo
	email     *fakeEmailService
	storage   *fakeFileStorage
	jwt       *auth.JWTService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	jwtService := auth.NewJWTService(auth.JWTConfig{
		SecretKey:          "test-session-secret",
		ConfirmationSecret: "test-confirm-secret",
		SessionTokenExp:    7 * 24 * time.Hour,
		ConfirmTokenExp:    time.Hour,
		TokenIssuer:        "maarif.test",
	})

	userRepo := newFakeUserRepo()
	tokenRepo := newFakeTokenRepo()
	emailService := &fakeEmailService{}
	storage := &fakeFileStorage{}

	service := NewAuthService(
		userRepo, tokenRepo, jwtService, emailService, storage,
		zerolog.Nop(), bcrypt.MinCost, 5, 15*time.Minute,
	)
	return &authFixture{
		service:   service,
		userRepo:  userRepo,
		tokenRepo: tokenRepo,
		email:     emailService,
		storage:   storage,
		jwt:       jwtService,
	}
}

func studentRequest() *dto.RegisterRequest {
	return &dto.RegisterRequest{
		FirstName:       "Ahmed",
		LastName:        "Mohamed",
		Email:           "Ahmed.Mohamed@Example.com",
		Password:        "secret-pass-1",
		ConfirmPassword: "secret-pass-1",
		Role:            "STUDENT",
		Governorate:     "Cairo",
		GradeLevel:      "10",
	}
}

func (f *authFixture) registerConfirmedStudent(t *testing.T) *models.User {
	t.Helper()
	resp, err := f.service.Register(context.Background(), studentRequest(), nil)
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := f.userRepo.ConfirmEmail(context.Background(), resp.UserID); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	user, err := f.userRepo.GetUserByID(context.Background(), resp.UserID)
	if err != nil {
		t.Fatalf("load user failed: %v", err)
	}
	return user
}

func (f *authFixture) login(t *testing.T) *dto.TokenResponse {
	t.Helper()
	resp, err := f.service.Login(context.Background(), &dto.LoginRequest{
		Email:    "ahmed.mohamed@example.com",
		Password: "secret-pass-1",
	}, ClientInfo{Agent: "test-agent", IPAddress: "203.0.113.7"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	return resp
}

func TestRegisterStudentHashesPasswordAndSendsConfirmation(t *testing.T) {
	f := newAuthFixture(t)

	resp, err := f.service.Register(context.Background(), studentRequest(), nil)
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if resp.Email != "ahmed.mohamed@example.com" {
		t.Fatalf("email should be lowercased, got %q", resp.Email)
	}

	user, err := f.userRepo.GetUserByID(context.Background(), resp.UserID)
	if err != nil {
		t.Fatalf("load user failed: %v", err)
	}
	if user.Password == "secret-pass-1" {
		t.Fatal("password must not be stored in plaintext")
	}
	if !auth.CheckPassword(user.Password, "secret-pass-1") {
		t.Fatal("stored hash should verify against the original password")
	}
	if user.Status != models.StatusApproved {
		t.Fatalf("students should be approved on registration, got %s", user.Status)
	}
	if user.IsConfirmed {
		t.Fatal("email must start unconfirmed")
	}

	mail, ok := f.email.last()
	if !ok || mail.kind != "confirmation" {
		t.Fatalf("expected a confirmation email, got %+v", mail)
	}
	if err := f.service.ConfirmEmail(context.Background(), mail.body); err != nil {
		t.Fatalf("emailed token should confirm the account: %v", err)
	}
	user, _ = f.userRepo.GetUserByID(context.Background(), resp.UserID)
	if !user.IsConfirmed {
		t.Fatal("account should be confirmed")
	}
}

func TestRegisterInstructorStartsPendingWithDocument(t *testing.T) {
	f := newAuthFixture(t)

	req := studentRequest()
	req.Role = "INSTRUCTOR"
	req.GradeLevel = ""
	req.Subject = "Mathematics"

	if _, err := f.service.Register(context.Background(), req, nil); !errors.Is(err, apperrors.ErrFileRequired) {
		t.Fatalf("instructor without document should fail with ErrFileRequired, got %v", err)
	}

	resp, err := f.service.Register(context.Background(), req, &multipart.FileHeader{Filename: "diploma.pdf"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	user, _ := f.userRepo.GetUserByID(context.Background(), resp.UserID)
	if user.Status != models.StatusPending {
		t.Fatalf("instructors should start pending, got %s", user.Status)
	}
	if user.DocumentURL == nil || user.DocumentID == nil {
		t.Fatal("document location should be recorded")
	}
	if f.storage.saved != 1 {
		t.Fatalf("expected one stored document, got %d", f.storage.saved)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newAuthFixture(t)

	if _, err := f.service.Register(context.Background(), studentRequest(), nil); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	_, err := f.service.Register(context.Background(), studentRequest(), nil)
	if !errors.Is(err, apperrors.ErrEmailAlreadyExists) {
		t.Fatalf("expected ErrEmailAlreadyExists, got %v", err)
	}

	// Case variants collide too
	variant := studentRequest()
	variant.Email = "AHMED.MOHAMED@example.COM"
	_, err = f.service.Register(context.Background(), variant, nil)
	if !errors.Is(err, apperrors.ErrEmailAlreadyExists) {
		t.Fatalf("expected case-variant duplicate to conflict, got %v", err)
	}
}

func TestConfirmEmailRejectsGarbageAndRepeats(t *testing.T) {
	f := newAuthFixture(t)

	if err := f.service.ConfirmEmail(context.Background(), "not-a-token"); !errors.Is(err, apperrors.ErrInvalidConfirmToken) {
		t.Fatalf("expected ErrInvalidConfirmToken, got %v", err)
	}

	if _, err := f.service.Register(context.Background(), studentRequest(), nil); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	mail, _ := f.email.last()
	if err := f.service.ConfirmEmail(context.Background(), mail.body); err != nil {
		t.Fatalf("first confirmation failed: %v", err)
	}
	if err := f.service.ConfirmEmail(context.Background(), mail.body); !errors.Is(err, apperrors.ErrEmailAlreadyConfirmed) {
		t.Fatalf("expected ErrEmailAlreadyConfirmed, got %v", err)
	}
}

func TestLoginRequiresConfirmedEmail(t *testing.T) {
	f := newAuthFixture(t)

	if _, err := f.service.Register(context.Background(), studentRequest(), nil); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	_, err := f.service.Login(context.Background(), &dto.LoginRequest{
		Email:    "ahmed.mohamed@example.com",
		Password: "secret-pass-1",
	}, ClientInfo{})
	if !errors.Is(err, apperrors.ErrEmailNotConfirmed) {
		t.Fatalf("expected ErrEmailNotConfirmed, got %v", err)
	}
	if len(f.tokenRepo.tokens) != 0 {
		t.Fatal("no session token may be issued for an unconfirmed account")
	}
}

func TestLoginUnknownEmailAndWrongPassword(t *testing.T) {
	f := newAuthFixture(t)
	f.registerConfirmedStudent(t)

	_, err := f.service.Login(context.Background(), &dto.LoginRequest{
		Email:    "nobody@example.com",
		Password: "whatever",
	}, ClientInfo{})
	if !errors.Is(err, apperrors.ErrInvalidCredentials) {
		t.Fatalf("unknown email should map to ErrInvalidCredentials, got %v", err)
	}

	_, err = f.service.Login(context.Background(), &dto.LoginRequest{
		Email:    "ahmed.mohamed@example.com",
		Password: "wrong-password",
	}, ClientInfo{})
	if !errors.Is(err, apperrors.ErrInvalidCredentials) {
		t.Fatalf("wrong password should map to ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginLocksAfterRepeatedFailures(t *testing.T) {
	f := newAuthFixture(t)
	f.registerConfirmedStudent(t)

	wrong := &dto.LoginRequest{Email: "ahmed.mohamed@example.com", Password: "wrong-password"}
	for i := 0; i < 5; i++ {
		if _, err := f.service.Login(context.Background(), wrong, ClientInfo{}); !errors.Is(err, apperrors.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	// Even the correct password is refused while the lock is in effect
	_, err := f.service.Login(context.Background(), &dto.LoginRequest{
		Email:    "ahmed.mohamed@example.com",
		Password: "secret-pass-1",
	}, ClientInfo{})
	if !errors.Is(err, apperrors.ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
}

func TestLoginIssuesStoredSessionToken(t *testing.T) {
	f := newAuthFixture(t)
	user := f.registerConfirmedStudent(t)

	resp := f.login(t)
	if resp.TokenType != "Bearer" {
		t.Fatalf("expected Bearer token type, got %q", resp.TokenType)
	}

	claims, err := f.jwt.ValidateSessionToken(resp.Token)
	if err != nil {
		t.Fatalf("issued token should validate: %v", err)
	}
	if claims.UserID != user.ID || claims.Role != string(models.RoleStudent) {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	record, err := f.tokenRepo.GetTokenByValue(context.Background(), resp.Token)
	if err != nil {
		t.Fatalf("issued token should be stored: %v", err)
	}
	if !record.Usable(time.Now()) {
		t.Fatal("stored token should be usable")
	}
	if record.Agent != "test-agent" || record.IPAddress != "203.0.113.7" {
		t.Fatalf("device info not recorded: %+v", record)
	}
	if resp.User.ID != user.ID || resp.User.Email != user.Email || resp.User.Role != models.RoleStudent {
		t.Fatalf("response should carry the authenticated user, got %+v", resp.User)
	}
}

func TestConcurrentSessionsAreIndependent(t *testing.T) {
	f := newAuthFixture(t)
	user := f.registerConfirmedStudent(t)

	first := f.login(t)
	second := f.login(t)

	if err := f.service.Logout(context.Background(), first.Token); err != nil {
		t.Fatalf("logout failed: %v", err)
	}

	firstRecord, _ := f.tokenRepo.GetTokenByValue(context.Background(), first.Token)
	if firstRecord.Usable(time.Now()) {
		t.Fatal("logged-out token must be unusable")
	}
	secondRecord, _ := f.tokenRepo.GetTokenByValue(context.Background(), second.Token)
	if !secondRecord.Usable(time.Now()) {
		t.Fatal("other device's session must survive a logout")
	}

	sessions, err := f.service.ListSessions(context.Background(), user.ID, second.Token)
	if err != nil {
		t.Fatalf("list sessions failed: %v", err)
	}
	if len(sessions.Sessions) != 1 {
		t.Fatalf("expected the surviving session only, got %d", len(sessions.Sessions))
	}
	if !sessions.Sessions[0].Current {
		t.Fatal("the presented token should be flagged current")
	}
}

func TestLogoutOthersKeepsCurrentSession(t *testing.T) {
	f := newAuthFixture(t)
	user := f.registerConfirmedStudent(t)

	first := f.login(t)
	second := f.login(t)
	third := f.login(t)

	count, err := f.service.LogoutOthers(context.Background(), user.ID, second.Token)
	if err != nil {
		t.Fatalf("logout others failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 invalidated sessions, got %d", count)
	}

	now := time.Now()
	for _, resp := range []*dto.TokenResponse{first, third} {
		record, _ := f.tokenRepo.GetTokenByValue(context.Background(), resp.Token)
		if record.Usable(now) {
			t.Fatal("other sessions should be invalidated")
		}
	}
	current, _ := f.tokenRepo.GetTokenByValue(context.Background(), second.Token)
	if !current.Usable(now) {
		t.Fatal("current session should stay alive")
	}
}

func TestLogoutAllIsIdempotent(t *testing.T) {
	f := newAuthFixture(t)
	user := f.registerConfirmedStudent(t)

	f.login(t)
	f.login(t)

	count, err := f.service.LogoutAll(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("logout all failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 invalidated sessions, got %d", count)
	}

	count, err = f.service.LogoutAll(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("repeated logout all failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("repeat should find nothing to invalidate, got %d", count)
	}
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	f := newAuthFixture(t)

	err := f.service.ForgotPassword(context.Background(), "nobody@example.com")
	if !errors.Is(err, apperrors.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestResetPasswordEndsEverySession(t *testing.T) {
	f := newAuthFixture(t)
	f.registerConfirmedStudent(t)

	first := f.login(t)
	second := f.login(t)

	if err := f.service.ForgotPassword(context.Background(), "ahmed.mohamed@example.com"); err != nil {
		t.Fatalf("forgot password failed: %v", err)
	}
	mail, ok := f.email.last()
	if !ok || mail.kind != "reset" {
		t.Fatalf("expected a reset email, got %+v", mail)
	}
	if len(mail.body) != 5 {
		t.Fatalf("reset code should be 5 digits, got %q", mail.body)
	}

	req := &dto.ResetPasswordRequest{
		Email:           "ahmed.mohamed@example.com",
		ResetCode:       mail.body,
		Password:        "brand-new-pass-2",
		ConfirmPassword: "brand-new-pass-2",
	}
	if err := f.service.ResetPassword(context.Background(), req); err != nil {
		t.Fatalf("reset password failed: %v", err)
	}

	now := time.Now()
	for _, resp := range []*dto.TokenResponse{first, second} {
		record, _ := f.tokenRepo.GetTokenByValue(context.Background(), resp.Token)
		if record.Usable(now) {
			t.Fatal("password reset must invalidate every session")
		}
	}

	// Old password is gone, new one works
	_, err := f.service.Login(context.Background(), &dto.LoginRequest{
		Email:    "ahmed.mohamed@example.com",
		Password: "secret-pass-1",
	}, ClientInfo{})
	if !errors.Is(err, apperrors.ErrInvalidCredentials) {
		t.Fatalf("old password should be rejected, got %v", err)
	}
	if _, err := f.service.Login(context.Background(), &dto.LoginRequest{
		Email:    "ahmed.mohamed@example.com",
		Password: "brand-new-pass-2",
	}, ClientInfo{}); err != nil {
		t.Fatalf("new password should work: %v", err)
	}

	// The code redeemed once and is gone
	if err := f.service.ResetPassword(context.Background(), req); !errors.Is(err, apperrors.ErrInvalidResetCode) {
		t.Fatalf("reset code must be single-use, got %v", err)
	}
}

func TestResetPasswordWrongCode(t *testing.T) {
	f := newAuthFixture(t)
	user := f.registerConfirmedStudent(t)
	session := f.login(t)

	if err := f.userRepo.SetResetCode(context.Background(), user.ID, "12345"); err != nil {
		t.Fatalf("set reset code failed: %v", err)
	}

	err := f.service.ResetPassword(context.Background(), &dto.ResetPasswordRequest{
		Email:           "ahmed.mohamed@example.com",
		ResetCode:       "54321",
		Password:        "brand-new-pass-2",
		ConfirmPassword: "brand-new-pass-2",
	})
	if !errors.Is(err, apperrors.ErrInvalidResetCode) {
		t.Fatalf("expected ErrInvalidResetCode, got %v", err)
	}

	// A failed attempt does not consume the pending code
	stored, _ := f.userRepo.GetUserByID(context.Background(), user.ID)
	if stored.ResetCode == nil {
		t.Fatal("pending code should survive a wrong attempt")
	}

	// Nothing else changes: the session stays usable and the old
	// password still works
	record, err := f.tokenRepo.GetTokenByValue(context.Background(), session.Token)
	if err != nil {
		t.Fatalf("session lookup failed: %v", err)
	}
	if !record.Usable(time.Now()) {
		t.Fatal("existing session must survive a failed reset")
	}
	f.login(t)
}
