// Package learner はラーナーの登録、ログイン、モジュール進捗の管理を提供する。
package learner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/projecthub/internal/content"
	"github.com/hitoshi/projecthub/internal/metrics"
	"github.com/hitoshi/projecthub/internal/model"
	"github.com/hitoshi/projecthub/internal/repository"
	"github.com/hitoshi/projecthub/internal/security"
)

// SessionIssuer はラーナーセッションの発行と失効を行うインターフェース。
type SessionIssuer interface {
	IssueLearner(ctx context.Context, learnerID string) (*model.Session, error)
	Revoke(ctx context.Context, token string) error
}

// RegisterInput はラーナー登録の入力。
type RegisterInput struct {
	Name      string
	Email     string
	Cohort    model.Cohort
	Phone     *string
	ClassType model.ClassType
}

// Service はラーナーのライフサイクルを扱う。
type Service struct {
	learners  repository.LearnerRepository
	sessions  SessionIssuer
	catalog   content.Provider
	sanitizer security.NameSanitizer
	metrics   metrics.MetricsCollector
	now       func() time.Time
}

// Option はServiceの任意設定。
type Option func(*Service)

// WithMetrics はメトリクスコレクターを設定する。
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService はServiceを生成する。
func NewService(
	learners repository.LearnerRepository,
	sessions SessionIssuer,
	catalog content.Provider,
	sanitizer security.NameSanitizer,
	opts ...Option,
) *Service {
	s := &Service{
		learners:  learners,
		sessions:  sessions,
		catalog:   catalog,
		sanitizer: sanitizer,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register はラーナーを登録し、カタログの全モジュールに登録してセッションを発行する。
// メールアドレスが登録済みの場合はCONFLICTを返す。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.Learner, *model.Session, error) {
	name := s.sanitizer.SanitizeName(in.Name)
	email := strings.TrimSpace(in.Email)
	switch {
	case name == "":
		return nil, nil, model.NewInvalidRequestError("name is required")
	case email == "":
		return nil, nil, model.NewInvalidRequestError("email is required")
	case !in.Cohort.Valid():
		return nil, nil, model.NewInvalidRequestError("unknown cohort")
	}
	classType := in.ClassType
	if classType == "" {
		classType = model.DefaultClassType
	}
	if !classType.Valid() {
		return nil, nil, model.NewInvalidRequestError("unknown class_type")
	}

	existing, err := s.learners.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find learner: %w", err)
	}
	if existing != nil {
		return nil, nil, model.NewConflictError("メールアドレス")
	}

	enrolled := content.ModuleIDs(s.catalog)
	l := &model.Learner{
		ID:                 uuid.New().String(),
		Name:               name,
		Email:              email,
		Cohort:             in.Cohort,
		Phone:              in.Phone,
		ClassType:          classType,
		EnrolledModules:    enrolled,
		CompletedModules:   []string{},
		CurrentModule:      &enrolled[0],
		ProgressPercentage: 0,
		RegisteredAt:       s.now(),
	}
	if err := s.learners.Create(ctx, l); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, nil, model.NewConflictError("メールアドレス")
		}
		return nil, nil, fmt.Errorf("failed to create learner: %w", err)
	}

	session, err := s.sessions.IssueLearner(ctx, l.ID)
	if err != nil {
		return nil, nil, err
	}

	slog.Info("ラーナーを登録しました",
		slog.String("learner_id", l.ID),
		slog.String("cohort", string(l.Cohort)),
	)
	return l, session, nil
}

// Login はメールアドレスのみでラーナーを認証し、新しいセッションを発行する。
func (s *Service) Login(ctx context.Context, email string) (*model.Learner, *model.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		s.recordLogin(metrics.LoginResultRejected)
		return nil, nil, model.NewInvalidRequestError("email is required")
	}

	l, err := s.learners.FindByEmail(ctx, email)
	if err != nil {
		s.recordLogin(metrics.LoginResultError)
		return nil, nil, fmt.Errorf("failed to find learner: %w", err)
	}
	if l == nil {
		s.recordLogin(metrics.LoginResultRejected)
		return nil, nil, model.NewNotFoundError("ラーナー", email)
	}

	session, err := s.sessions.IssueLearner(ctx, l.ID)
	if err != nil {
		s.recordLogin(metrics.LoginResultError)
		return nil, nil, err
	}

	now := s.now()
	if err := s.learners.Update(ctx, l.ID, model.LearnerPatch{LastLoginAt: &now}); err != nil {
		slog.Warn("last_login_atの更新に失敗しました",
			slog.String("learner_id", l.ID),
			slog.String("error", err.Error()),
		)
	} else {
		l.LastLoginAt = &now
	}

	s.recordLogin(metrics.LoginResultSuccess)
	return l, session, nil
}

// Logout はラーナーセッションを失効させる。失敗してもログに残すのみ。
func (s *Service) Logout(ctx context.Context, token string) {
	if err := s.sessions.Revoke(ctx, token); err != nil {
		slog.Error("ラーナーセッションの失効に失敗しました", slog.String("error", err.Error()))
	}
}

// GetDashboard はラーナーのモジュール状態と進捗の集計を返す。
func (s *Service) GetDashboard(ctx context.Context, learnerID string) (*Dashboard, error) {
	l, progress, err := s.load(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	return buildDashboard(l, progress, s.catalog), nil
}

// GetModuleContent はモジュールのレッスンと資料を返す。
func (s *Service) GetModuleContent(_ context.Context, moduleID string) (*model.Module, error) {
	m, ok := s.catalog.Module(moduleID)
	if !ok {
		return nil, model.NewNotFoundError("モジュール", moduleID)
	}
	return m, nil
}

// UpdateModuleProgress はモジュールの完了レッスン数を記録する。
//
// lockedまたは未登録のモジュールはMODULE_LOCKED、範囲外のレッスン数はINVALID_REQUESTを返す。
// レッスン数に達したモジュールは修了扱いとなり、current_moduleは次の未修了モジュールへ進む。
// 修了済みモジュールは修了のまま維持される。
func (s *Service) UpdateModuleProgress(ctx context.Context, learnerID, moduleID string, lessons int) (*Dashboard, error) {
	l, progress, err := s.load(ctx, learnerID)
	if err != nil {
		return nil, err
	}

	m, ok := s.catalog.Module(moduleID)
	if !ok {
		return nil, model.NewNotFoundError("モジュール", moduleID)
	}
	if !l.IsEnrolled(moduleID) || statusOf(l, moduleID) == model.ModuleStatusLocked {
		return nil, model.NewModuleLockedError(moduleID)
	}
	total := m.LessonCount()
	if lessons < 0 || lessons > total {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("completed_lessons must be between 0 and %d", total))
	}
	if l.HasCompleted(moduleID) {
		lessons = total
	}

	now := s.now()
	mp := model.ModuleProgress{
		LearnerID:        l.ID,
		ModuleID:         moduleID,
		CompletedLessons: lessons,
		Completed:        lessons == total,
		LastAccessedAt:   now,
	}

	updated := *l
	if mp.Completed && !l.HasCompleted(moduleID) {
		updated.CompletedModules = append(slices.Clone(l.CompletedModules), moduleID)
		updated.CurrentModule = nextIncomplete(&updated)
	} else if !mp.Completed && lessons > 0 {
		updated.CurrentModule = &mp.ModuleID
	}
	progress = replaceProgress(progress, mp)
	dashboard := buildDashboard(&updated, progress, s.catalog)
	updated.ProgressPercentage = dashboard.OverallProgress

	patch := model.LearnerPatch{
		CompletedModules:   updated.CompletedModules,
		CurrentModule:      &updated.CurrentModule,
		ProgressPercentage: &updated.ProgressPercentage,
	}
	if err := s.learners.ApplyProgress(ctx, &mp, patch); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewNotFoundError("ラーナー", learnerID)
		}
		return nil, fmt.Errorf("failed to apply progress: %w", err)
	}

	slog.Info("モジュール進捗を更新しました",
		slog.String("learner_id", l.ID),
		slog.String("module_id", moduleID),
		slog.Int("completed_lessons", lessons),
		slog.Int("progress_percentage", updated.ProgressPercentage),
	)
	return dashboard, nil
}

func (s *Service) load(ctx context.Context, learnerID string) (*model.Learner, []model.ModuleProgress, error) {
	l, err := s.learners.FindByID(ctx, learnerID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find learner: %w", err)
	}
	if l == nil {
		return nil, nil, model.NewNotFoundError("ラーナー", learnerID)
	}
	progress, err := s.learners.ListModuleProgress(ctx, learnerID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list module progress: %w", err)
	}
	return l, progress, nil
}

func (s *Service) recordLogin(result string) {
	if s.metrics != nil {
		s.metrics.RecordLoginAttempt(metrics.LoginMethodLearner, result)
	}
}

// nextIncomplete は登録順で最初の未修了モジュールを返す。全て修了済みならnil。
func nextIncomplete(l *model.Learner) *string {
	for _, id := range l.EnrolledModules {
		if !l.HasCompleted(id) {
			return &id
		}
	}
	return nil
}

func replaceProgress(list []model.ModuleProgress, p model.ModuleProgress) []model.ModuleProgress {
	out := make([]model.ModuleProgress, 0, len(list)+1)
	for _, existing := range list {
		if existing.ModuleID != p.ModuleID {
			out = append(out, existing)
		}
	}
	return append(out, p)
}
