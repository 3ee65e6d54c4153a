// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/projecthub/internal/model"
)

var (
	// ErrDuplicate は一意制約違反（email、id、token）を表す。
	ErrDuplicate = errors.New("duplicate key")
	// ErrNotFound は更新対象の行が存在しないことを表す。
	ErrNotFound = errors.New("record not found")
)

// UserRepository はスタッフユーザーの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレス（manualユーザーではユーザー名）で検索する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。emailまたはidが重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// TouchLastLogin はlast_login_atを更新する。
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// SessionRepository はセッションデータの永続化インターフェース。
// 有効期限の判定は呼び出し側で行う。
type SessionRepository interface {
	// Create はセッションを作成する。トークンが既に存在する場合はErrDuplicateを返す。
	Create(ctx context.Context, session *model.Session) error

	// FindByToken は指定トークンのセッションを取得する。期限切れも含めて返す。
	// 見つからない場合はnilを返す。
	FindByToken(ctx context.Context, token string) (*model.Session, error)

	// DeleteByToken は指定トークンのセッションを削除する。存在しなくてもエラーにしない。
	DeleteByToken(ctx context.Context, token string) error

	// DeleteExpired はexpires_at <= before のセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// LearnerRepository はラーナーと進捗の永続化インターフェース。
type LearnerRepository interface {
	// FindByID は指定IDのラーナーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Learner, error)

	// FindByEmail はメールアドレスでラーナーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Learner, error)

	// Create はラーナーを作成する。emailが重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, learner *model.Learner) error

	// Update はパッチのnilでないフィールドのみ更新する。
	// 対象が存在しない場合はErrNotFoundを返す。
	Update(ctx context.Context, id string, patch model.LearnerPatch) error

	// ListModuleProgress はラーナーのモジュール別進捗を返す。
	ListModuleProgress(ctx context.Context, learnerID string) ([]model.ModuleProgress, error)

	// ApplyProgress はモジュール別進捗の保存とラーナーの更新を同一トランザクションで行う。
	ApplyProgress(ctx context.Context, progress *model.ModuleProgress, patch model.LearnerPatch) error
}
