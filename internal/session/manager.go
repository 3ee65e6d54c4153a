// Package session はスタッフ・ラーナーのセッション発行と検証を提供する。
//
// セッションは不透明トークンを主キーとして永続化され、有効期限は作成時に固定される。
// 有効性は読み取り時に now < expires_at で判定し、期限切れ行の物理削除は
// worker/cleanup の SessionReaper に任せる。
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/projecthub/internal/metrics"
	"github.com/hitoshi/projecthub/internal/model"
	"github.com/hitoshi/projecthub/internal/repository"
)

const (
	// DefaultStaffTTL はスタッフセッションの既定有効期間。
	DefaultStaffTTL = 7 * 24 * time.Hour
	// DefaultLearnerTTL はラーナーセッションの既定有効期間。
	DefaultLearnerTTL = 30 * 24 * time.Hour

	tokenBytes = 32
)

// Config はセッション管理の設定。
type Config struct {
	StaffTTL   time.Duration
	LearnerTTL time.Duration
}

// Manager はセッションの発行、解決、失効を行う。
type Manager struct {
	sessions repository.SessionRepository
	users    repository.UserRepository
	learners repository.LearnerRepository
	config   Config
	metrics  metrics.MetricsCollector

	now      func() time.Time
	newToken func() (string, error)
}

// Option はManagerの任意設定。
type Option func(*Manager)

// WithMetrics はメトリクスコレクターを設定する。
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(mgr *Manager) { mgr.now = now }
}

// WithTokenGenerator はトークン生成関数を差し替える。
func WithTokenGenerator(fn func() (string, error)) Option {
	return func(mgr *Manager) { mgr.newToken = fn }
}

// NewManager はManagerを生成する。TTLが0以下の場合は既定値を使用する。
func NewManager(
	sessions repository.SessionRepository,
	users repository.UserRepository,
	learners repository.LearnerRepository,
	config Config,
	opts ...Option,
) *Manager {
	if config.StaffTTL <= 0 {
		config.StaffTTL = DefaultStaffTTL
	}
	if config.LearnerTTL <= 0 {
		config.LearnerTTL = DefaultLearnerTTL
	}
	m := &Manager{
		sessions: sessions,
		users:    users,
		learners: learners,
		config:   config,
		now:      time.Now,
		newToken: GenerateToken,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IssueStaff はスタッフユーザーの新しいセッションを発行する。
func (m *Manager) IssueStaff(ctx context.Context, userID string) (*model.Session, error) {
	if err := m.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	return m.issue(ctx, userID, model.SessionKindStaff, m.config.StaffTTL)
}

// IssueLearner はラーナーの新しいセッションを発行する。
func (m *Manager) IssueLearner(ctx context.Context, learnerID string) (*model.Session, error) {
	learner, err := m.learners.FindByID(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to find learner: %w", err)
	}
	if learner == nil {
		return nil, model.NewNotFoundError("ラーナー", learnerID)
	}
	return m.issue(ctx, learnerID, model.SessionKindLearner, m.config.LearnerTTL)
}

// IssueStaffWithToken は外部IdPが払い出したトークンをそのままスタッフセッションとして登録する。
//
// 同じトークンが同じユーザーのスタッフセッションとして既に存在する場合は、
// 既存の行（作成時の有効期限のまま）を返す。期限切れの行は作り直す。
// 別の主体または種別に紐付いている場合は未認証エラーを返す。
func (m *Manager) IssueStaffWithToken(ctx context.Context, userID, token string) (*model.Session, error) {
	if token == "" {
		return nil, model.NewUnauthenticatedError()
	}
	if err := m.requireUser(ctx, userID); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		existing, err := m.sessions.FindByToken(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("failed to find session: %w", err)
		}
		if existing != nil {
			if existing.Kind != model.SessionKindStaff || existing.SubjectID != userID {
				slog.Warn("外部トークンが別の主体に紐付いています",
					slog.String("user_id", userID),
					slog.String("kind", string(existing.Kind)),
				)
				return nil, model.NewUnauthenticatedError()
			}
			if existing.ValidAt(m.now()) {
				return existing, nil
			}
			if err := m.sessions.DeleteByToken(ctx, token); err != nil {
				return nil, fmt.Errorf("failed to delete expired session: %w", err)
			}
		}

		session, err := m.persist(ctx, token, userID, model.SessionKindStaff, m.config.StaffTTL)
		if errors.Is(err, repository.ErrDuplicate) {
			// 並行リクエストが同じトークンを先に登録した
			continue
		}
		if err != nil {
			return nil, err
		}
		return session, nil
	}
	return nil, fmt.Errorf("failed to register session token: %w", repository.ErrDuplicate)
}

// ResolveStaff はトークンからスタッフユーザーを解決する。
// トークンが空・未知・種別違い・期限切れ、またはユーザーが存在しない場合は未認証エラーを返す。
func (m *Manager) ResolveStaff(ctx context.Context, token string) (*model.User, error) {
	session, err := m.lookup(ctx, token, model.SessionKindStaff)
	if err != nil {
		return nil, err
	}
	user, err := m.users.FindByID(ctx, session.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUnauthenticatedError()
	}
	return user, nil
}

// ResolveLearner はトークンからラーナーを解決する。
func (m *Manager) ResolveLearner(ctx context.Context, token string) (*model.Learner, error) {
	session, err := m.lookup(ctx, token, model.SessionKindLearner)
	if err != nil {
		return nil, err
	}
	learner, err := m.learners.FindByID(ctx, session.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to find learner: %w", err)
	}
	if learner == nil {
		return nil, model.NewUnauthenticatedError()
	}
	return learner, nil
}

// Revoke はセッションを削除する。空または未知のトークンは何もしない。
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.sessions.DeleteByToken(ctx, token); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

func (m *Manager) lookup(ctx context.Context, token string, kind model.SessionKind) (*model.Session, error) {
	if token == "" {
		return nil, model.NewUnauthenticatedError()
	}
	session, err := m.sessions.FindByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil || session.Kind != kind || !session.ValidAt(m.now()) {
		return nil, model.NewUnauthenticatedError()
	}
	return session, nil
}

func (m *Manager) requireUser(ctx context.Context, userID string) error {
	user, err := m.users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return model.NewNotFoundError("ユーザー", userID)
	}
	return nil
}

func (m *Manager) issue(ctx context.Context, subjectID string, kind model.SessionKind, ttl time.Duration) (*model.Session, error) {
	token, err := m.newToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}
	return m.persist(ctx, token, subjectID, kind, ttl)
}

func (m *Manager) persist(ctx context.Context, token, subjectID string, kind model.SessionKind, ttl time.Duration) (*model.Session, error) {
	now := m.now()
	session := &model.Session{
		Token:     token,
		SubjectID: subjectID,
		Kind:      kind,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := m.sessions.Create(ctx, session); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	if m.metrics != nil {
		m.metrics.RecordSessionIssued(string(kind))
	}
	return session, nil
}

// GenerateToken は256ビットの暗号論的乱数から16進トークンを生成する。
func GenerateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
