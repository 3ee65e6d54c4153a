package learner

import (
	"context"
	"slices"
	"time"

	"github.com/hitoshi/projecthub/internal/model"
	"github.com/hitoshi/projecthub/internal/repository"
)

// --- モック定義 ---

// memLearners はLearnerRepositoryのインメモリ実装。*Errフィールドでエラーを注入できる。
type memLearners struct {
	byID     map[string]*model.Learner
	progress map[string][]model.ModuleProgress

	findByEmailErr error
	createErr      error
	updateErr      error
	applyErr       error

	applied []model.LearnerPatch
}

func newMemLearners(seed ...*model.Learner) *memLearners {
	m := &memLearners{
		byID:     map[string]*model.Learner{},
		progress: map[string][]model.ModuleProgress{},
	}
	for _, l := range seed {
		cp := *l
		m.byID[l.ID] = &cp
	}
	return m
}

func (m *memLearners) FindByID(_ context.Context, id string) (*model.Learner, error) {
	l, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	cp.EnrolledModules = slices.Clone(l.EnrolledModules)
	cp.CompletedModules = slices.Clone(l.CompletedModules)
	return &cp, nil
}

func (m *memLearners) FindByEmail(ctx context.Context, email string) (*model.Learner, error) {
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	for id, l := range m.byID {
		if l.Email == email {
			return m.FindByID(ctx, id)
		}
	}
	return nil, nil
}

func (m *memLearners) Create(_ context.Context, l *model.Learner) error {
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.byID {
		if existing.Email == l.Email {
			return repository.ErrDuplicate
		}
	}
	cp := *l
	m.byID[l.ID] = &cp
	return nil
}

func (m *memLearners) Update(_ context.Context, id string, patch model.LearnerPatch) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	l, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	applyPatch(l, patch)
	return nil
}

func (m *memLearners) ListModuleProgress(_ context.Context, learnerID string) ([]model.ModuleProgress, error) {
	return slices.Clone(m.progress[learnerID]), nil
}

func (m *memLearners) upsertProgress(p *model.ModuleProgress) {
	list := m.progress[p.LearnerID]
	for i := range list {
		if list[i].ModuleID == p.ModuleID {
			list[i] = *p
			return
		}
	}
	m.progress[p.LearnerID] = append(list, *p)
}

func (m *memLearners) ApplyProgress(_ context.Context, p *model.ModuleProgress, patch model.LearnerPatch) error {
	if m.applyErr != nil {
		return m.applyErr
	}
	l, ok := m.byID[p.LearnerID]
	if !ok {
		return repository.ErrNotFound
	}
	m.applied = append(m.applied, patch)
	applyPatch(l, patch)
	m.upsertProgress(p)
	return nil
}

func applyPatch(l *model.Learner, patch model.LearnerPatch) {
	if patch.CompletedModules != nil {
		l.CompletedModules = slices.Clone(patch.CompletedModules)
	}
	if patch.CurrentModule != nil {
		l.CurrentModule = *patch.CurrentModule
	}
	if patch.ProgressPercentage != nil {
		l.ProgressPercentage = *patch.ProgressPercentage
	}
	if patch.LastLoginAt != nil {
		t := *patch.LastLoginAt
		l.LastLoginAt = &t
	}
}

var _ repository.LearnerRepository = (*memLearners)(nil)

type mockSessions struct {
	issueLearnerFn func(ctx context.Context, learnerID string) (*model.Session, error)
	revokeFn       func(ctx context.Context, token string) error
}

func (m *mockSessions) IssueLearner(ctx context.Context, learnerID string) (*model.Session, error) {
	if m.issueLearnerFn != nil {
		return m.issueLearnerFn(ctx, learnerID)
	}
	return &model.Session{
		Token:     "learner-token",
		SubjectID: learnerID,
		Kind:      model.SessionKindLearner,
		ExpiresAt: time.Now().Add(30 * 24 * time.Hour),
	}, nil
}

func (m *mockSessions) Revoke(ctx context.Context, token string) error {
	if m.revokeFn != nil {
		return m.revokeFn(ctx, token)
	}
	return nil
}

type mockMetrics struct {
	logins map[string]int
}

func (m *mockMetrics) RecordLoginAttempt(method, result string) {
	if m.logins == nil {
		m.logins = map[string]int{}
	}
	m.logins[method+"/"+result]++
}
func (m *mockMetrics) RecordSessionIssued(string) {}
func (m *mockMetrics) RecordSessionsReaped(int64) {}
func (m *mockMetrics) RecordHTTPStatus(int) {}
func (m *mockMetrics) RecordIdPLatency(time.Duration) {}
