// Package auth はスタッフユーザーの登録・ログイン・ログアウトと、
// 外部IdPとのセッション交換を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/projecthub/internal/credential"
	"github.com/hitoshi/projecthub/internal/metrics"
	"github.com/hitoshi/projecthub/internal/model"
	"github.com/hitoshi/projecthub/internal/repository"
	"github.com/hitoshi/projecthub/internal/security"
)

// SessionManager はスタッフセッションの発行・解決・失効を行うインターフェース。
type SessionManager interface {
	SessionIssuer
	ResolveStaff(ctx context.Context, token string) (*model.User, error)
	Revoke(ctx context.Context, token string) error
}

// PasswordHasher はパスワードのハッシュ化と照合のインターフェース。
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// OAuthExchanger は外部セッションIDをユーザーとセッションに交換するインターフェース。
type OAuthExchanger interface {
	Exchange(ctx context.Context, externalSessionID string) (*model.User, *model.Session, error)
}

// Service はスタッフ認証に関するビジネスロジックを提供する。
type Service struct {
	users       repository.UserRepository
	sessions    SessionManager
	credentials PasswordHasher
	oauth       OAuthExchanger
	sanitizer   security.NameSanitizer
	metrics     metrics.MetricsCollector
	now         func() time.Time
}

// NewService はServiceを生成する。metricsはnilでもよい。
func NewService(
	users repository.UserRepository,
	sessions SessionManager,
	credentials PasswordHasher,
	oauth OAuthExchanger,
	sanitizer security.NameSanitizer,
	m metrics.MetricsCollector,
) *Service {
	return &Service{
		users:       users,
		sessions:    sessions,
		credentials: credentials,
		oauth:       oauth,
		sanitizer:   sanitizer,
		metrics:     m,
		now:         time.Now,
	}
}

// RegisterManual はユーザー名/パスワードのスタッフユーザーを登録する。
// ユーザー名が既に使われている場合はCONFLICTを返す。
func (s *Service) RegisterManual(ctx context.Context, username, password, name string) (*model.User, error) {
	existing, err := s.users.FindByEmail(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if existing != nil {
		return nil, model.NewConflictError("ユーザー名")
	}

	hash, err := s.credentials.Hash(password)
	if errors.Is(err, credential.ErrEmptyPassword) || errors.Is(err, credential.ErrPasswordTooLong) {
		return nil, model.NewInvalidRequestError(err.Error())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	displayName := s.sanitizer.SanitizeName(name)
	if displayName == "" {
		displayName = username
	}
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        username,
		Name:         displayName,
		PasswordHash: &hash,
		AuthType:     model.AuthTypeManual,
		CreatedAt:    s.now(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewConflictError("ユーザー名")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("スタッフユーザーを登録しました", slog.String("user_id", user.ID))
	return user, nil
}

// LoginManual はユーザー名/パスワードで認証し、スタッフセッションを発行する。
// ユーザー不在、パスワード未設定、照合失敗のいずれも同じ未認証エラーを返す。
func (s *Service) LoginManual(ctx context.Context, username, password string) (*model.User, *model.Session, error) {
	user, err := s.users.FindByEmail(ctx, username)
	if err != nil {
		s.recordLogin(metrics.LoginMethodManual, metrics.LoginResultError)
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !user.HasPassword() || !s.credentials.Verify(password, *user.PasswordHash) {
		s.recordLogin(metrics.LoginMethodManual, metrics.LoginResultRejected)
		return nil, nil, model.NewInvalidCredentialsError()
	}

	session, err := s.sessions.IssueStaff(ctx, user.ID)
	if err != nil {
		s.recordLogin(metrics.LoginMethodManual, metrics.LoginResultError)
		return nil, nil, err
	}

	now := s.now()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		slog.Warn("last_login_atの更新に失敗しました",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	} else {
		user.LastLoginAt = &now
	}

	s.recordLogin(metrics.LoginMethodManual, metrics.LoginResultSuccess)
	slog.Info("スタッフユーザーがログインしました", slog.String("user_id", user.ID))
	return user, session, nil
}

// LoginOAuth は外部IdPのセッションIDでログインする。
func (s *Service) LoginOAuth(ctx context.Context, externalSessionID string) (*model.User, *model.Session, error) {
	user, session, err := s.oauth.Exchange(ctx, externalSessionID)
	switch {
	case err == nil:
		s.recordLogin(metrics.LoginMethodOAuth, metrics.LoginResultSuccess)
	case model.HasCode(err, model.ErrCodeUpstreamUnavailable), model.HasCode(err, model.ErrCodeUnauthenticated):
		s.recordLogin(metrics.LoginMethodOAuth, metrics.LoginResultRejected)
	default:
		s.recordLogin(metrics.LoginMethodOAuth, metrics.LoginResultError)
	}
	return user, session, err
}

// WhoAmI はセッショントークンの持ち主を返す。
func (s *Service) WhoAmI(ctx context.Context, token string) (*model.User, error) {
	return s.sessions.ResolveStaff(ctx, token)
}

// Logout はセッションを失効させる。失効に失敗してもログに残すのみでエラーは返さない。
func (s *Service) Logout(ctx context.Context, token string) {
	if err := s.sessions.Revoke(ctx, token); err != nil {
		slog.Error("セッションの失効に失敗しました", slog.String("error", err.Error()))
	}
}

func (s *Service) recordLogin(method, result string) {
	if s.metrics != nil {
		s.metrics.RecordLoginAttempt(method, result)
	}
}
