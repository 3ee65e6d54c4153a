package auth

import (
	"context"
	"time"

	"github.com/hitoshi/projecthub/internal/model"
	"github.com/hitoshi/projecthub/internal/repository"
	"github.com/hitoshi/projecthub/internal/security"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn       func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn    func(ctx context.Context, email string) (*model.User, error)
	createFn         func(ctx context.Context, user *model.User) error
	touchLastLoginFn func(ctx context.Context, id string, at time.Time) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	if m.touchLastLoginFn != nil {
		return m.touchLastLoginFn(ctx, id, at)
	}
	return nil
}

type mockSessionManager struct {
	issueStaffFn          func(ctx context.Context, userID string) (*model.Session, error)
	issueStaffWithTokenFn func(ctx context.Context, userID, token string) (*model.Session, error)
	resolveStaffFn        func(ctx context.Context, token string) (*model.User, error)
	revokeFn              func(ctx context.Context, token string) error
}

func (m *mockSessionManager) IssueStaff(ctx context.Context, userID string) (*model.Session, error) {
	if m.issueStaffFn != nil {
		return m.issueStaffFn(ctx, userID)
	}
	return &model.Session{Token: "local-token", SubjectID: userID, Kind: model.SessionKindStaff}, nil
}

func (m *mockSessionManager) IssueStaffWithToken(ctx context.Context, userID, token string) (*model.Session, error) {
	if m.issueStaffWithTokenFn != nil {
		return m.issueStaffWithTokenFn(ctx, userID, token)
	}
	return &model.Session{Token: token, SubjectID: userID, Kind: model.SessionKindStaff}, nil
}

func (m *mockSessionManager) ResolveStaff(ctx context.Context, token string) (*model.User, error) {
	if m.resolveStaffFn != nil {
		return m.resolveStaffFn(ctx, token)
	}
	return nil, model.NewUnauthenticatedError()
}

func (m *mockSessionManager) Revoke(ctx context.Context, token string) error {
	if m.revokeFn != nil {
		return m.revokeFn(ctx, token)
	}
	return nil
}

type mockIdentityProvider struct {
	fetchFn func(ctx context.Context, externalSessionID string) (*SessionData, error)
}

func (m *mockIdentityProvider) FetchSessionData(ctx context.Context, externalSessionID string) (*SessionData, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, externalSessionID)
	}
	return nil, nil
}

type mockExchanger struct {
	exchangeFn func(ctx context.Context, externalSessionID string) (*model.User, *model.Session, error)
}

func (m *mockExchanger) Exchange(ctx context.Context, externalSessionID string) (*model.User, *model.Session, error) {
	if m.exchangeFn != nil {
		return m.exchangeFn(ctx, externalSessionID)
	}
	return nil, nil, nil
}

type mockMetrics struct {
	logins map[string]int
}

func newMockMetrics() *mockMetrics { return &mockMetrics{logins: map[string]int{}} }

func (m *mockMetrics) RecordLoginAttempt(method, result string) { m.logins[method+"/"+result]++ }
func (m *mockMetrics) RecordSessionIssued(_ string) {}
func (m *mockMetrics) RecordSessionsReaped(_ int64) {}
func (m *mockMetrics) RecordHTTPStatus(_ int) {}
func (m *mockMetrics) RecordIdPLatency(_ time.Duration) {}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ SessionManager = (*mockSessionManager)(nil)
var _ IdentityProvider = (*mockIdentityProvider)(nil)
var _ OAuthExchanger = (*mockExchanger)(nil)

// newTestBridge はテスト用の依存でBridgeを生成する。
func newTestBridge(provider IdentityProvider, users *mockUserRepo, sessions SessionIssuer, config BridgeConfig) *Bridge {
	return NewBridge(provider, users, sessions, security.NewURLGuard(), security.NewNameSanitizer(), config)
}
