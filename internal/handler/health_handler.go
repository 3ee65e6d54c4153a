package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger はデータストアの疎通確認を行うインターフェース。*sql.DBが満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

const healthCheckTimeout = 2 * time.Second

// NewHealthHandler はデータストアに到達できれば200、できなければ503を返すハンドラーを生成する。
// GET /health
func NewHealthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				slog.Warn("ヘルスチェックでデータベースに接続できません", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
