package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hitoshi/projecthub/internal/content"
	"github.com/hitoshi/projecthub/internal/learner"
	"github.com/hitoshi/projecthub/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	registerManualFn func(ctx context.Context, username, password, name string) (*model.User, error)
	loginManualFn    func(ctx context.Context, username, password string) (*model.User, *model.Session, error)
	loginOAuthFn     func(ctx context.Context, externalSessionID string) (*model.User, *model.Session, error)
	whoAmIFn         func(ctx context.Context, token string) (*model.User, error)

	loggedOut []string
}

func (m *mockAuthService) RegisterManual(ctx context.Context, username, password, name string) (*model.User, error) {
	if m.registerManualFn != nil {
		return m.registerManualFn(ctx, username, password, name)
	}
	return &model.User{ID: "user-new", Email: username, AuthType: model.AuthTypeManual}, nil
}

func (m *mockAuthService) LoginManual(ctx context.Context, username, password string) (*model.User, *model.Session, error) {
	if m.loginManualFn != nil {
		return m.loginManualFn(ctx, username, password)
	}
	return nil, nil, model.NewInvalidCredentialsError()
}

func (m *mockAuthService) LoginOAuth(ctx context.Context, externalSessionID string) (*model.User, *model.Session, error) {
	if m.loginOAuthFn != nil {
		return m.loginOAuthFn(ctx, externalSessionID)
	}
	return nil, nil, model.NewUpstreamUnavailableError()
}

func (m *mockAuthService) WhoAmI(ctx context.Context, token string) (*model.User, error) {
	if m.whoAmIFn != nil {
		return m.whoAmIFn(ctx, token)
	}
	return nil, model.NewUnauthenticatedError()
}

func (m *mockAuthService) Logout(_ context.Context, token string) {
	m.loggedOut = append(m.loggedOut, token)
}

type mockLearnerService struct {
	registerFn         func(ctx context.Context, in learner.RegisterInput) (*model.Learner, *model.Session, error)
	loginFn            func(ctx context.Context, email string) (*model.Learner, *model.Session, error)
	getDashboardFn     func(ctx context.Context, learnerID string) (*learner.Dashboard, error)
	getModuleContentFn func(ctx context.Context, moduleID string) (*model.Module, error)
	updateProgressFn   func(ctx context.Context, learnerID, moduleID string, completedLessons int) (*learner.Dashboard, error)

	loggedOut []string
}

func (m *mockLearnerService) Register(ctx context.Context, in learner.RegisterInput) (*model.Learner, *model.Session, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in)
	}
	return nil, nil, errors.New("not implemented")
}

func (m *mockLearnerService) Login(ctx context.Context, email string) (*model.Learner, *model.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email)
	}
	return nil, nil, model.NewNotFoundError("ラーナー", email)
}

func (m *mockLearnerService) Logout(_ context.Context, token string) {
	m.loggedOut = append(m.loggedOut, token)
}

func (m *mockLearnerService) GetDashboard(ctx context.Context, learnerID string) (*learner.Dashboard, error) {
	if m.getDashboardFn != nil {
		return m.getDashboardFn(ctx, learnerID)
	}
	return nil, model.NewNotFoundError("ラーナー", learnerID)
}

func (m *mockLearnerService) GetModuleContent(ctx context.Context, moduleID string) (*model.Module, error) {
	if m.getModuleContentFn != nil {
		return m.getModuleContentFn(ctx, moduleID)
	}
	return nil, model.NewNotFoundError("モジュール", moduleID)
}

func (m *mockLearnerService) UpdateModuleProgress(ctx context.Context, learnerID, moduleID string, completedLessons int) (*learner.Dashboard, error) {
	if m.updateProgressFn != nil {
		return m.updateProgressFn(ctx, learnerID, moduleID, completedLessons)
	}
	return nil, errors.New("not implemented")
}

type mockStaffResolver struct {
	tokens map[string]*model.User
}

func (m *mockStaffResolver) ResolveStaff(_ context.Context, token string) (*model.User, error) {
	if u, ok := m.tokens[token]; ok {
		return u, nil
	}
	return nil, model.NewUnauthenticatedError()
}

type mockLearnerResolver struct {
	tokens map[string]*model.Learner
}

func (m *mockLearnerResolver) ResolveLearner(_ context.Context, token string) (*model.Learner, error) {
	if l, ok := m.tokens[token]; ok {
		return l, nil
	}
	return nil, model.NewUnauthenticatedError()
}

type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(context.Context) error { return m.err }

// --- テスト用ルーター ---

type testEnv struct {
	auth    *mockAuthService
	learner *mockLearnerService
	db      *mockPinger
	handler http.Handler
}

func newTestEnv() *testEnv {
	env := &testEnv{
		auth:    &mockAuthService{},
		learner: &mockLearnerService{},
		db:      &mockPinger{},
	}
	env.handler = NewRouter(&RouterDeps{
		StaffResolver: &mockStaffResolver{tokens: map[string]*model.User{
			"staff-token": {ID: "user-1", Email: "pmo@example.com", Name: "PMO", AuthType: model.AuthTypeOAuth},
		}},
		LearnerResolver: &mockLearnerResolver{tokens: map[string]*model.Learner{
			"learner-token": {ID: "l-1"},
		}},
		CORSAllowedOrigins: []string{"http://localhost:3000"},
		DB:                 env.db,
		AuthService:        env.auth,
		AuthConfig: AuthHandlerConfig{
			CookieSecure:  true,
			SessionMaxAge: int((7 * 24 * time.Hour).Seconds()),
		},
		LearnerService: env.learner,
		Content:        content.MustLoad(),
	})
	return env
}

func strPtr(s string) *string { return &s }

func sampleLearner() *model.Learner {
	return &model.Learner{
		ID:               "l-1",
		Name:             "A",
		Email:            "a@x.com",
		Cohort:           model.CohortVET,
		ClassType:        model.ClassTypeDigital,
		EnrolledModules:  []string{"m1", "m2", "m3"},
		CompletedModules: []string{},
		CurrentModule:    strPtr("m1"),
		RegisteredAt:     time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
	}
}
