package middleware

import (
	"context"

	"github.com/hitoshi/projecthub/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	userContextKey    = contextKey("user")
	learnerContextKey = contextKey("learner")
	requestContextKey = contextKey("request_info")
)

// requestInfo はロギングミドルウェアが用意し、内側のミドルウェアが埋めるリクエスト単位の情報。
type requestInfo struct {
	subjectID string
}

func withRequestInfo(ctx context.Context) (context.Context, *requestInfo) {
	info := &requestInfo{}
	return context.WithValue(ctx, requestContextKey, info), info
}

// setSubject は認証済み主体のIDをアクセスログ用に記録する。
func setSubject(ctx context.Context, id string) {
	if info, ok := ctx.Value(requestContextKey).(*requestInfo); ok {
		info.subjectID = id
	}
}

// UserFromContext はセッションミドルウェアが注入したスタッフユーザーを返す。
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userContextKey).(*model.User)
	return u, ok && u != nil
}

// ContextWithUser はコンテキストにスタッフユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUser(ctx context.Context, u *model.User) context.Context {
	setSubject(ctx, u.ID)
	return context.WithValue(ctx, userContextKey, u)
}

// LearnerFromContext はラーナーセッションミドルウェアが注入したラーナーを返す。
func LearnerFromContext(ctx context.Context) (*model.Learner, bool) {
	l, ok := ctx.Value(learnerContextKey).(*model.Learner)
	return l, ok && l != nil
}

// ContextWithLearner はコンテキストにラーナーを注入する。
func ContextWithLearner(ctx context.Context, l *model.Learner) context.Context {
	setSubject(ctx, l.ID)
	return context.WithValue(ctx, learnerContextKey, l)
}
