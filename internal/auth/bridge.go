package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/projecthub/internal/model"
	"github.com/hitoshi/projecthub/internal/repository"
	"github.com/hitoshi/projecthub/internal/security"
)

// SessionIssuer はスタッフセッションを発行するインターフェース。
type SessionIssuer interface {
	IssueStaff(ctx context.Context, userID string) (*model.Session, error)
	IssueStaffWithToken(ctx context.Context, userID, token string) (*model.Session, error)
}

// BridgeConfig はOAuthブリッジの設定。
type BridgeConfig struct {
	// MintLocalToken がtrueの場合、IdPのsession_tokenを再利用せずローカルでトークンを発行する。
	MintLocalToken bool
}

// Bridge は外部IdPのセッションIDをローカルのユーザーとスタッフセッションに交換する。
type Bridge struct {
	provider  IdentityProvider
	users     repository.UserRepository
	sessions  SessionIssuer
	guard     security.URLGuard
	sanitizer security.NameSanitizer
	config    BridgeConfig
	now       func() time.Time
}

// NewBridge はBridgeを生成する。
func NewBridge(
	provider IdentityProvider,
	users repository.UserRepository,
	sessions SessionIssuer,
	guard security.URLGuard,
	sanitizer security.NameSanitizer,
	config BridgeConfig,
) *Bridge {
	return &Bridge{
		provider:  provider,
		users:     users,
		sessions:  sessions,
		guard:     guard,
		sanitizer: sanitizer,
		config:    config,
		now:       time.Now,
	}
}

// Exchange は外部セッションIDを交換し、ユーザーとセッションを返す。
//
// IdPが拒否した場合や本人情報が欠けている場合はUPSTREAM_UNAVAILABLEを返し、
// ユーザーもセッションも作成しない。ユーザーはメールアドレスで同定し、
// 未登録の場合はIdPのIDをローカルIDとして作成する。
func (b *Bridge) Exchange(ctx context.Context, externalSessionID string) (*model.User, *model.Session, error) {
	if externalSessionID == "" {
		return nil, nil, model.NewUpstreamUnavailableError()
	}

	data, err := b.provider.FetchSessionData(ctx, externalSessionID)
	if err != nil {
		slog.Warn("IdPセッション照会に失敗しました", slog.String("error", err.Error()))
		return nil, nil, model.NewUpstreamUnavailableError()
	}
	if data.ID == "" || data.Email == "" || data.SessionToken == "" {
		slog.Warn("IdPの応答に必須項目がありません",
			slog.Bool("has_id", data.ID != ""),
			slog.Bool("has_email", data.Email != ""),
			slog.Bool("has_session_token", data.SessionToken != ""),
		)
		return nil, nil, model.NewUpstreamUnavailableError()
	}

	user, err := b.findOrCreateUser(ctx, data)
	if err != nil {
		return nil, nil, err
	}

	var session *model.Session
	if b.config.MintLocalToken {
		session, err = b.sessions.IssueStaff(ctx, user.ID)
	} else {
		session, err = b.sessions.IssueStaffWithToken(ctx, user.ID, data.SessionToken)
	}
	if err != nil {
		return nil, nil, err
	}

	now := b.now()
	if err := b.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		slog.Warn("last_login_atの更新に失敗しました",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	} else {
		user.LastLoginAt = &now
	}

	return user, session, nil
}

func (b *Bridge) findOrCreateUser(ctx context.Context, data *SessionData) (*model.User, error) {
	user, err := b.users.FindByEmail(ctx, data.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user != nil {
		slog.Info("既存ユーザーがOAuthでログインしました", slog.String("user_id", user.ID))
		return user, nil
	}

	name := b.sanitizer.SanitizeName(data.Name)
	if name == "" {
		name = data.Email
	}
	newUser := &model.User{
		ID:        data.ID,
		Email:     data.Email,
		Name:      name,
		AuthType:  model.AuthTypeOAuth,
		CreatedAt: b.now(),
	}
	if data.Picture != "" {
		if err := b.guard.ValidateURL(data.Picture); err == nil {
			picture := data.Picture
			newUser.Picture = &picture
		} else {
			slog.Warn("プロフィール画像URLを破棄しました", slog.String("error", err.Error()))
		}
	}

	err = b.users.Create(ctx, newUser)
	if errors.Is(err, repository.ErrDuplicate) {
		// 同じメールアドレスでの並行ログインが先に作成した
		existing, findErr := b.users.FindByEmail(ctx, data.Email)
		if findErr != nil {
			return nil, fmt.Errorf("failed to reload user by email: %w", findErr)
		}
		if existing == nil {
			return nil, fmt.Errorf("user id %s already taken by another email: %w", data.ID, err)
		}
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("OAuthユーザーを作成しました", slog.String("user_id", newUser.ID))
	return newUser, nil
}
