// Package cleanup は期限切れセッションの自動削除ジョブを提供する。
// 有効期限（expires_at）を過ぎたセッション行を一定間隔のバッチで削除する。
// 検証時点で期限切れのセッションは既に無効なため、削除の遅延は認証結果に影響しない。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterval はセッション削除ジョブの既定の実行間隔。
const DefaultInterval = 15 * time.Minute

// ExpiredSessionDeleter は期限切れセッションを削除するインターフェース。
// repository.SessionRepositoryが満たす。
type ExpiredSessionDeleter interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// ReapRecorder は削除件数を記録するインターフェース。
type ReapRecorder interface {
	RecordSessionsReaped(count int64)
}

// SessionReaper は期限切れセッションの削除ジョブ。
// 冪等: 削除対象がない場合でもエラーにならない。
type SessionReaper struct {
	sessions ExpiredSessionDeleter
	metrics  ReapRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// Option はSessionReaperの設定オプション。
type Option func(*SessionReaper)

// WithMetrics は削除件数の記録先を設定する。
func WithMetrics(m ReapRecorder) Option {
	return func(r *SessionReaper) { r.metrics = m }
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(r *SessionReaper) { r.now = now }
}

// NewSessionReaper は新しいSessionReaperを生成する。
func NewSessionReaper(sessions ExpiredSessionDeleter, logger *slog.Logger, opts ...Option) *SessionReaper {
	if logger == nil {
		logger = slog.Default()
	}
	r := &SessionReaper{
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start は指定間隔のティッカーで削除ジョブを実行する。
// 起動直後に1回実行し、コンテキストがキャンセルされるまで継続する。
func (r *SessionReaper) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("セッション削除ジョブを開始しました", slog.Duration("interval", interval))

	r.runAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("セッション削除ジョブを停止しました")
			return
		case <-ticker.C:
			r.runAndLog(ctx)
		}
	}
}

func (r *SessionReaper) runAndLog(ctx context.Context) {
	if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("セッション削除ジョブの実行に失敗しました", slog.String("error", err.Error()))
	}
}

// RunOnce は現在時刻までに期限切れとなったセッションを削除し、削除件数を返す。
func (r *SessionReaper) RunOnce(ctx context.Context) (int64, error) {
	start := time.Now()

	deleted, err := r.sessions.DeleteExpired(ctx, r.now())
	if err != nil {
		return 0, fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
	}

	if r.metrics != nil {
		r.metrics.RecordSessionsReaped(deleted)
	}
	r.logger.Info("セッション削除ジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return deleted, nil
}
