// Package app はプロセスの起動とサブコマンドごとの依存関係のワイヤリングを行う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/projecthub/internal/auth"
	"github.com/hitoshi/projecthub/internal/config"
	"github.com/hitoshi/projecthub/internal/content"
	"github.com/hitoshi/projecthub/internal/credential"
	"github.com/hitoshi/projecthub/internal/database"
	"github.com/hitoshi/projecthub/internal/handler"
	"github.com/hitoshi/projecthub/internal/learner"
	"github.com/hitoshi/projecthub/internal/logger"
	"github.com/hitoshi/projecthub/internal/metrics"
	"github.com/hitoshi/projecthub/internal/middleware"
	"github.com/hitoshi/projecthub/internal/repository"
	"github.com/hitoshi/projecthub/internal/security"
	"github.com/hitoshi/projecthub/internal/session"
	"github.com/hitoshi/projecthub/internal/worker/cleanup"
)

const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから環境変数の設定を読み込み、
// LOG_LEVELに従ってログレベルを再設定する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger.SetupDefault(w, level)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("log_level", cfg.LogLevel),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	dsn, err := database.ResolveURL(cfg.DatabaseURL, cfg.DBName)
	if err != nil {
		return nil, err
	}
	db, err := database.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	router, cleanupRouter := buildRouter(cfg, db, prometheus.NewRegistry())
	defer cleanupRouter()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// buildRouter はリポジトリ、サービス、ミドルウェアを組み立ててルーターを返す。
// 戻り値の関数はレートリミッターのクリーンアップを停止する。
func buildRouter(cfg *config.Config, db *sql.DB, reg *prometheus.Registry) (http.Handler, func()) {
	// 1. メトリクス
	collector := metrics.NewCollector(reg)

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	learnerRepo := repository.NewPostgresLearnerRepo(db)

	// 3. コンテンツ
	catalog := content.MustLoad()

	// 4. セッション・資格情報・セキュリティ
	sessions := session.NewManager(sessionRepo, userRepo, learnerRepo, session.Config{
		StaffTTL:   cfg.StaffSessionTTL,
		LearnerTTL: cfg.LearnerSessionTTL,
	}, session.WithMetrics(collector))
	credentials := credential.NewStore(cfg.BcryptCost)
	guard := security.NewURLGuard()
	sanitizer := security.NewNameSanitizer()

	// 5. 外部IdPとOAuthブリッジ
	var idpClient *http.Client
	if cfg.IdPSafeDial {
		idpClient = guard.NewSafeClient(cfg.IdPTimeout)
	}
	provider := auth.NewHTTPIdentityProvider(auth.HTTPProviderConfig{
		SessionURL: cfg.IdPSessionURL,
		Client:     idpClient,
		Timeout:    cfg.IdPTimeout,
		Metrics:    collector,
	})
	bridge := auth.NewBridge(provider, userRepo, sessions, guard, sanitizer, auth.BridgeConfig{
		MintLocalToken: cfg.MintLocalToken,
	})

	// 6. ドメインサービス
	authService := auth.NewService(userRepo, sessions, credentials, bridge, sanitizer, collector)
	learnerService := learner.NewService(learnerRepo, sessions, catalog, sanitizer, learner.WithMetrics(collector))

	// 7. ルーター
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(cfg.RateLimitAuth))

	router := handler.NewRouter(&handler.RouterDeps{
		StaffResolver:      sessions,
		LearnerResolver:    sessions,
		CORSAllowedOrigins: cfg.CORSOrigins,
		RateLimiter:        rateLimiter,
		Logger:             slog.Default(),
		Metrics:            collector,
		MetricsHandler:     metrics.Handler(reg),
		DB:                 db,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: int(cfg.StaffSessionTTL.Seconds()),
		},

		LearnerService: learnerService,
		Content:        catalog,
	})

	return router, rateLimiter.Stop
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、期限切れセッションの削除ジョブをシグナル受信まで実行する。
// 削除件数のメトリクスとヘルスチェックはSERVER_PORTで公開する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	reg := prometheus.NewRegistry()
	reaper := cleanup.NewSessionReaper(
		repository.NewPostgresSessionRepo(db),
		slog.Default(),
		cleanup.WithMetrics(metrics.NewCollector(reg)),
	)

	r := chi.NewRouter()
	r.Get("/health", handler.NewHealthHandler(db))
	r.Method(http.MethodGet, "/metrics", metrics.Handler(reg))
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker metrics server error", slog.String("error", err.Error()))
		}
	}()

	reaper.Start(ctx, cfg.SessionReapInterval)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("worker metrics server shutdown failed", slog.String("error", err.Error()))
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	dsn, err := database.ResolveURL(cfg.DatabaseURL, cfg.DBName)
	if err != nil {
		return err
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(dsn)),
	)

	if err := database.RunMigrations(dsn); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
