package auth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/projecthub/internal/credential"
	"github.com/hitoshi/projecthub/internal/metrics"
	"github.com/hitoshi/projecthub/internal/model"
	"github.com/hitoshi/projecthub/internal/repository"
	"github.com/hitoshi/projecthub/internal/security"
)

// memUsers はemailをキーにユーザーを保持するmockUserRepoを返す。
func memUsers(store map[string]*model.User) *mockUserRepo {
	return &mockUserRepo{
		findByEmailFn: func(_ context.Context, email string) (*model.User, error) {
			u, ok := store[email]
			if !ok {
				return nil, nil
			}
			cp := *u
			return &cp, nil
		},
		createFn: func(_ context.Context, u *model.User) error {
			if _, ok := store[u.Email]; ok {
				return repository.ErrDuplicate
			}
			cp := *u
			store[u.Email] = &cp
			return nil
		},
	}
}

func newTestService(users *mockUserRepo, sessions SessionManager, oauth OAuthExchanger, m *mockMetrics) *Service {
	var collector metrics.MetricsCollector
	if m != nil {
		collector = m
	}
	return NewService(users, sessions, credential.NewStore(bcrypt.MinCost), oauth, security.NewNameSanitizer(), collector)
}

func TestRegisterManual_StoresHashedPassword(t *testing.T) {
	store := map[string]*model.User{}
	svc := newTestService(memUsers(store), &mockSessionManager{}, &mockExchanger{}, nil)

	user, err := svc.RegisterManual(context.Background(), "pmo-admin", "s3cret", "PMO Admin")
	if err != nil {
		t.Fatalf("RegisterManual() error = %v", err)
	}
	if user.AuthType != model.AuthTypeManual {
		t.Errorf("AuthType = %q, want manual", user.AuthType)
	}
	saved := store["pmo-admin"]
	if saved == nil || !saved.HasPassword() {
		t.Fatal("expected user with password hash to be stored")
	}
	if *saved.PasswordHash == "s3cret" {
		t.Error("password must not be stored in plaintext")
	}
	if !strings.HasPrefix(*saved.PasswordHash, "$2") {
		t.Errorf("expected bcrypt hash, got %q", *saved.PasswordHash)
	}
}

func TestRegisterManual_DuplicateUsername(t *testing.T) {
	store := map[string]*model.User{}
	svc := newTestService(memUsers(store), &mockSessionManager{}, &mockExchanger{}, nil)

	if _, err := svc.RegisterManual(context.Background(), "dup", "pw", "A"); err != nil {
		t.Fatalf("first RegisterManual() error = %v", err)
	}
	_, err := svc.RegisterManual(context.Background(), "dup", "pw2", "B")
	if !model.HasCode(err, model.ErrCodeConflict) {
		t.Fatalf("second RegisterManual() error = %v, want CONFLICT", err)
	}
}

func TestRegisterManual_RaceOnCreateIsConflict(t *testing.T) {
	users := &mockUserRepo{
		createFn: func(_ context.Context, _ *model.User) error { return repository.ErrDuplicate },
	}
	svc := newTestService(users, &mockSessionManager{}, &mockExchanger{}, nil)

	_, err := svc.RegisterManual(context.Background(), "racer", "pw", "R")
	if !model.HasCode(err, model.ErrCodeConflict) {
		t.Fatalf("RegisterManual() error = %v, want CONFLICT", err)
	}
}

func TestRegisterManual_PasswordTooLong(t *testing.T) {
	svc := newTestService(memUsers(map[string]*model.User{}), &mockSessionManager{}, &mockExchanger{}, nil)

	_, err := svc.RegisterManual(context.Background(), "long", strings.Repeat("x", credential.MaxPasswordBytes+1), "L")
	if !model.HasCode(err, model.ErrCodeInvalidRequest) {
		t.Fatalf("RegisterManual() error = %v, want INVALID_REQUEST", err)
	}
}

func TestLoginManual_RoundTrip(t *testing.T) {
	store := map[string]*model.User{}
	mm := newMockMetrics()
	svc := newTestService(memUsers(store), &mockSessionManager{}, &mockExchanger{}, mm)

	if _, err := svc.RegisterManual(context.Background(), "alice", "correct horse", "Alice"); err != nil {
		t.Fatalf("RegisterManual() error = %v", err)
	}

	user, session, err := svc.LoginManual(context.Background(), "alice", "correct horse")
	if err != nil {
		t.Fatalf("LoginManual() error = %v", err)
	}
	if session == nil || session.SubjectID != user.ID {
		t.Fatalf("session = %+v, want bound to %s", session, user.ID)
	}
	if user.LastLoginAt == nil {
		t.Error("expected LastLoginAt to be set")
	}

	_, _, err = svc.LoginManual(context.Background(), "alice", "wrong")
	if !model.HasCode(err, model.ErrCodeUnauthenticated) {
		t.Fatalf("LoginManual(wrong) error = %v, want UNAUTHENTICATED", err)
	}

	if mm.logins["manual/success"] != 1 || mm.logins["manual/rejected"] != 1 {
		t.Errorf("login metrics = %v", mm.logins)
	}
}

func TestLoginManual_UniformFailureMessage(t *testing.T) {
	store := map[string]*model.User{
		"oauth-only@example.com": {ID: "o1", Email: "oauth-only@example.com", AuthType: model.AuthTypeOAuth},
	}
	svc := newTestService(memUsers(store), &mockSessionManager{}, &mockExchanger{}, nil)
	if _, err := svc.RegisterManual(context.Background(), "bob", "pw", "Bob"); err != nil {
		t.Fatalf("RegisterManual() error = %v", err)
	}

	var messages []string
	for _, c := range []struct{ user, pass string }{
		{"nouser", "pw"},
		{"oauth-only@example.com", "anything"},
		{"bob", "not-pw"},
	} {
		_, _, err := svc.LoginManual(context.Background(), c.user, c.pass)
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUnauthenticated {
			t.Fatalf("LoginManual(%q) error = %v, want UNAUTHENTICATED", c.user, err)
		}
		messages = append(messages, apiErr.Message)
	}
	for _, m := range messages[1:] {
		if m != messages[0] {
			t.Errorf("failure messages differ: %q vs %q", messages[0], m)
		}
	}
}

func TestLoginManual_RepositoryErrorIsNotUnauthenticated(t *testing.T) {
	repoErr := errors.New("db down")
	users := &mockUserRepo{
		findByEmailFn: func(_ context.Context, _ string) (*model.User, error) { return nil, repoErr },
	}
	svc := newTestService(users, &mockSessionManager{}, &mockExchanger{}, nil)

	_, _, err := svc.LoginManual(context.Background(), "x", "y")
	if !errors.Is(err, repoErr) {
		t.Fatalf("LoginManual() error = %v, want wrapped repository error", err)
	}
}

func TestLoginOAuth_RecordsResult(t *testing.T) {
	mm := newMockMetrics()
	exchanger := &mockExchanger{
		exchangeFn: func(_ context.Context, sid string) (*model.User, *model.Session, error) {
			if sid == "bad" {
				return nil, nil, model.NewUpstreamUnavailableError()
			}
			return &model.User{ID: "u"}, &model.Session{Token: "t"}, nil
		},
	}
	svc := newTestService(&mockUserRepo{}, &mockSessionManager{}, exchanger, mm)

	if _, _, err := svc.LoginOAuth(context.Background(), "good"); err != nil {
		t.Fatalf("LoginOAuth(good) error = %v", err)
	}
	if _, _, err := svc.LoginOAuth(context.Background(), "bad"); !model.HasCode(err, model.ErrCodeUpstreamUnavailable) {
		t.Fatalf("LoginOAuth(bad) error = %v, want UPSTREAM_UNAVAILABLE", err)
	}
	if mm.logins["oauth/success"] != 1 || mm.logins["oauth/rejected"] != 1 {
		t.Errorf("login metrics = %v", mm.logins)
	}
}

func TestWhoAmI_DelegatesToSessionManager(t *testing.T) {
	sessions := &mockSessionManager{
		resolveStaffFn: func(_ context.Context, token string) (*model.User, error) {
			if token == "valid" {
				return &model.User{ID: "u1"}, nil
			}
			return nil, model.NewUnauthenticatedError()
		},
	}
	svc := newTestService(&mockUserRepo{}, sessions, &mockExchanger{}, nil)

	user, err := svc.WhoAmI(context.Background(), "valid")
	if err != nil || user.ID != "u1" {
		t.Fatalf("WhoAmI(valid) = %v, %v", user, err)
	}
	if _, err := svc.WhoAmI(context.Background(), "garbage"); !model.HasCode(err, model.ErrCodeUnauthenticated) {
		t.Fatalf("WhoAmI(garbage) error = %v, want UNAUTHENTICATED", err)
	}
}

func TestLogout_SwallowsErrors(t *testing.T) {
	called := false
	sessions := &mockSessionManager{
		revokeFn: func(_ context.Context, _ string) error {
			called = true
			return errors.New("db down")
		},
	}
	svc := newTestService(&mockUserRepo{}, sessions, &mockExchanger{}, nil)

	svc.Logout(context.Background(), "tok")
	if !called {
		t.Error("expected Revoke to be called")
	}
}
