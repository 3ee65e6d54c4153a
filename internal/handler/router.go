package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/projecthub/internal/content"
	"github.com/hitoshi/projecthub/internal/metrics"
	"github.com/hitoshi/projecthub/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	StaffResolver      middleware.StaffResolver
	LearnerResolver    middleware.LearnerResolver
	CORSAllowedOrigins []string
	RateLimiter        *middleware.RateLimiter // nilの場合はレート制限なし
	Logger             *slog.Logger            // nilの場合はslog.Default()
	Metrics            metrics.MetricsCollector
	MetricsHandler     http.Handler
	DB                 Pinger

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ラーナー
	LearnerService LearnerServiceInterface

	// ダッシュボード
	Content content.Provider
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Recovery → Logging → Metrics → SecurityHeaders → CORS
//
// スタッフ向けダッシュボードはさらにSessionミドルウェアを通過する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}
	// Recoveryはログとメトリクスの内側に置く
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	learnerHandler := NewLearnerHandler(deps.LearnerService)
	dashboardHandler := NewDashboardHandler(deps.Content)

	limited := func(r chi.Router) chi.Router {
		if deps.RateLimiter == nil {
			return r
		}
		return r.With(deps.RateLimiter.AuthMiddleware())
	}

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.DB))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		// スタッフ認証（認証系はIPごとのレート制限）
		r.Route("/auth", func(r chi.Router) {
			limited(r).Post("/register", authHandler.Register)
			limited(r).Post("/login", authHandler.Login)
			limited(r).Post("/session", authHandler.Session)
			r.Get("/me", authHandler.Me)
			r.Post("/logout", authHandler.Logout)
		})

		// ラーナー
		r.Route("/learners", func(r chi.Router) {
			limited(r).Post("/register", learnerHandler.Register)
			limited(r).Post("/login", learnerHandler.Login)
			r.Post("/logout", learnerHandler.Logout)
			r.Get("/dashboard/{id}", learnerHandler.Dashboard)
			r.Get("/module/{id}", learnerHandler.Module)

			// ラーナー本人のセッションが必要なルート
			r.With(middleware.NewLearnerSessionMiddleware(deps.LearnerResolver)).
				Put("/{id}/modules/{moduleId}/progress", learnerHandler.UpdateProgress)
		})

		// --- スタッフセッションが必要なルート ---
		r.Route("/dashboard", func(r chi.Router) {
			r.Use(middleware.NewSessionMiddleware(deps.StaffResolver))
			r.Get("/overview", dashboardHandler.Overview)
			r.Get("/cohort/{id}", dashboardHandler.Cohort)
			r.Get("/weekly-huddle", dashboardHandler.WeeklyHuddle)
		})
	})

	return r
}
