package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/projecthub/internal/learner"
	"github.com/hitoshi/projecthub/internal/middleware"
	"github.com/hitoshi/projecthub/internal/model"
)

// LearnerServiceInterface はラーナーハンドラーが必要とするサービスインターフェース。
type LearnerServiceInterface interface {
	Register(ctx context.Context, in learner.RegisterInput) (*model.Learner, *model.Session, error)
	Login(ctx context.Context, email string) (*model.Learner, *model.Session, error)
	Logout(ctx context.Context, token string)
	GetDashboard(ctx context.Context, learnerID string) (*learner.Dashboard, error)
	GetModuleContent(ctx context.Context, moduleID string) (*model.Module, error)
	UpdateModuleProgress(ctx context.Context, learnerID, moduleID string, completedLessons int) (*learner.Dashboard, error)
}

// LearnerHandler はラーナー向けのHTTPハンドラー。
type LearnerHandler struct {
	service LearnerServiceInterface
}

// NewLearnerHandler はLearnerHandlerを生成する。
func NewLearnerHandler(service LearnerServiceInterface) *LearnerHandler {
	return &LearnerHandler{service: service}
}

type learnerRegisterRequest struct {
	Name      string  `json:"name" validate:"required,max=200"`
	Email     string  `json:"email" validate:"required,email,max=254"`
	Cohort    string  `json:"cohort" validate:"required,cohort"`
	Phone     *string `json:"phone" validate:"omitempty,max=32"`
	ClassType string  `json:"class_type" validate:"class_type"`
}

type progressRequest struct {
	CompletedLessons *int `json:"completed_lessons" validate:"required,min=0"`
}

// learnerResponse はラーナーのAPIレスポンス。
type learnerResponse struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Email              string     `json:"email"`
	Cohort             string     `json:"cohort"`
	Phone              *string    `json:"phone,omitempty"`
	ClassType          string     `json:"class_type"`
	EnrolledModules    []string   `json:"enrolled_modules"`
	CompletedModules   []string   `json:"completed_modules"`
	CurrentModule      *string    `json:"current_module"`
	ProgressPercentage int        `json:"progress_percentage"`
	RegisteredAt       time.Time  `json:"registered_at"`
	LastLoginAt        *time.Time `json:"last_login_at,omitempty"`
}

func toLearnerResponse(l *model.Learner) learnerResponse {
	return learnerResponse{
		ID:                 l.ID,
		Name:               l.Name,
		Email:              l.Email,
		Cohort:             string(l.Cohort),
		Phone:              l.Phone,
		ClassType:          string(l.ClassType),
		EnrolledModules:    nonNil(l.EnrolledModules),
		CompletedModules:   nonNil(l.CompletedModules),
		CurrentModule:      l.CurrentModule,
		ProgressPercentage: l.ProgressPercentage,
		RegisteredAt:       l.RegisteredAt,
		LastLoginAt:        l.LastLoginAt,
	}
}

// dashboardModuleResponse はダッシュボードの1モジュール分の表示内容。
type dashboardModuleResponse struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Description      string `json:"description"`
	Duration         string `json:"duration"`
	Difficulty       string `json:"difficulty"`
	Lessons          int    `json:"lessons"`
	CompletedLessons int    `json:"completed_lessons"`
	Progress         int    `json:"progress"`
	Status           string `json:"status"`
}

type dashboardResponse struct {
	Learner          learnerResponse           `json:"learner"`
	OverallProgress  int                       `json:"overall_progress"`
	CompletedModules int                       `json:"completed_modules"`
	TotalModules     int                       `json:"total_modules"`
	TotalTimeSpent   string                    `json:"total_time_spent"`
	TimeSpentMinutes int                       `json:"total_time_spent_minutes"`
	Modules          []dashboardModuleResponse `json:"modules"`
}

func toDashboardResponse(d *learner.Dashboard) dashboardResponse {
	modules := make([]dashboardModuleResponse, len(d.Modules))
	for i, m := range d.Modules {
		modules[i] = dashboardModuleResponse{
			ID:               m.Module.ID,
			Title:            m.Module.Title,
			Description:      m.Module.Description,
			Duration:         m.Module.Duration,
			Difficulty:       m.Module.Difficulty,
			Lessons:          m.Module.LessonCount(),
			CompletedLessons: m.CompletedLessons,
			Progress:         m.Progress,
			Status:           string(m.Status),
		}
	}
	return dashboardResponse{
		Learner:          toLearnerResponse(d.Learner),
		OverallProgress:  d.OverallProgress,
		CompletedModules: d.CompletedModules,
		TotalModules:     d.TotalModules,
		TotalTimeSpent:   learner.FormatDuration(d.TimeSpentMinutes),
		TimeSpentMinutes: d.TimeSpentMinutes,
		Modules:          modules,
	}
}

// Register はラーナーを登録する。
// POST /api/learners/register
func (h *LearnerHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req learnerRegisterRequest
	if err := decodeAndValidate(r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	l, session, err := h.service.Register(r.Context(), learner.RegisterInput{
		Name:      req.Name,
		Email:     req.Email,
		Cohort:    model.Cohort(req.Cohort),
		Phone:     req.Phone,
		ClassType: model.ClassType(req.ClassType),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"learner_id":    l.ID,
		"session_token": session.Token,
		"message":       "Registration successful! Welcome to the program.",
	})
}

// Login はメールアドレスでラーナーを認証する。
// POST /api/learners/login?email=xxx
func (h *LearnerHandler) Login(w http.ResponseWriter, r *http.Request) {
	l, session, err := h.service.Login(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"learner":       toLearnerResponse(l),
		"session_token": session.Token,
	})
}

// Logout はラーナーセッションを破棄する。トークンの有無にかかわらず成功を返す。
// POST /api/learners/logout
func (h *LearnerHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.BearerToken(r); token != "" {
		h.service.Logout(r.Context(), token)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Dashboard はラーナーのダッシュボード集計を返す。
// GET /api/learners/dashboard/{id}
func (h *LearnerHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.GetDashboard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDashboardResponse(d))
}

// Module はモジュールのレッスンと資料を返す。
// GET /api/learners/module/{id}
func (h *LearnerHandler) Module(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.GetModuleContent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// UpdateProgress はモジュールの完了レッスン数を更新する。
// ラーナー本人のセッション（Bearer）でのみ更新できる。
// PUT /api/learners/{id}/modules/{moduleId}/progress
func (h *LearnerHandler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	self, ok := middleware.LearnerFromContext(r.Context())
	learnerID := chi.URLParam(r, "id")
	if !ok || self.ID != learnerID {
		middleware.WriteUnauthenticated(w)
		return
	}

	var req progressRequest
	if err := decodeAndValidate(r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	d, err := h.service.UpdateModuleProgress(r.Context(), learnerID, chi.URLParam(r, "moduleId"), *req.CompletedLessons)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDashboardResponse(d))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
