package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/projecthub/internal/content"
	"github.com/hitoshi/projecthub/internal/middleware"
	"github.com/hitoshi/projecthub/internal/model"
)

// DashboardHandler はスタッフ向けダッシュボードのHTTPハンドラー。
// ペイロードはコンテンツプロバイダーから供給される。
type DashboardHandler struct {
	content content.Provider
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(provider content.Provider) *DashboardHandler {
	return &DashboardHandler{content: provider}
}

// Overview はプロジェクト概要を返す。
// GET /api/dashboard/overview
func (h *DashboardHandler) Overview(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireStaff(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.content.Overview())
}

// Cohort はコホート別の分析を返す。未知のIDは既定のコホートになる。
// GET /api/dashboard/cohort/{id}
func (h *DashboardHandler) Cohort(w http.ResponseWriter, r *http.Request) {
	user, ok := requireStaff(w, r)
	if !ok {
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, model.NewInvalidRequestError("cohort id must be an integer"))
		return
	}
	slog.Info("コホート分析を参照しました",
		slog.String("user_id", user.ID),
		slog.Int("cohort_id", id),
	)
	writeJSON(w, http.StatusOK, h.content.Cohort(id))
}

// WeeklyHuddle は週次ハドルの資料を返す。
// GET /api/dashboard/weekly-huddle
func (h *DashboardHandler) WeeklyHuddle(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireStaff(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.content.WeeklyHuddle())
}

// requireStaff はセッションミドルウェアが注入したスタッフユーザーを取り出す。
// 存在しない場合は401を書き込みfalseを返す。
func requireStaff(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		handleServiceError(w, model.NewUnauthenticatedError())
		return nil, false
	}
	return user, true
}
