// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/projecthub/internal/model"
)

// SessionCookieName はスタッフセッショントークンを格納するCookie名。
const SessionCookieName = "session_token"

// StaffResolver はセッショントークンからスタッフユーザーを解決するインターフェース。
type StaffResolver interface {
	ResolveStaff(ctx context.Context, token string) (*model.User, error)
}

// LearnerResolver はセッショントークンからラーナーを解決するインターフェース。
type LearnerResolver interface {
	ResolveLearner(ctx context.Context, token string) (*model.Learner, error)
}

// NewSessionMiddleware はHTTP Only Cookieのセッショントークンからスタッフユーザーを解決し、
// リクエストコンテキストに注入するミドルウェアを返す。
// 未認証リクエストには401を返す。
func NewSessionMiddleware(resolver StaffResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				WriteUnauthenticated(w)
				return
			}

			user, err := resolver.ResolveStaff(r.Context(), cookie.Value)
			if err != nil {
				writeResolveError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
		})
	}
}

// NewLearnerSessionMiddleware は Authorization: Bearer ヘッダーのトークンからラーナーを解決し、
// リクエストコンテキストに注入するミドルウェアを返す。
func NewLearnerSessionMiddleware(resolver LearnerResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				WriteUnauthenticated(w)
				return
			}

			learner, err := resolver.ResolveLearner(r.Context(), token)
			if err != nil {
				writeResolveError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithLearner(r.Context(), learner)))
		})
	}
}

// BearerToken は Authorization ヘッダーからBearerトークンを取り出す。なければ空文字を返す。
func BearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeResolveError(w http.ResponseWriter, err error) {
	if model.HasCode(err, model.ErrCodeUnauthenticated) {
		WriteUnauthenticated(w)
		return
	}
	slog.Error("セッションの解決に失敗しました", slog.String("error", err.Error()))
	WriteInternalServerError(w)
}
