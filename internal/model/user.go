// Package model はドメインモデルを定義する。
package model

import "time"

// AuthType はスタッフユーザーの認証方式を表す。
type AuthType string

const (
	// AuthTypeOAuth は外部IdP経由で作成されたユーザー。
	AuthTypeOAuth AuthType = "oauth"
	// AuthTypeManual はユーザー名/パスワードで登録されたユーザー。
	AuthTypeManual AuthType = "manual"
)

// User はダッシュボードを利用するスタッフ（PMO）ユーザーを表す。
// manualユーザーは必ずPasswordHashを持つ。oauthユーザーは持たない場合がある。
type User struct {
	ID           string
	Email        string // manualユーザーではユーザー名として扱う
	Name         string
	Picture      *string
	PasswordHash *string
	AuthType     AuthType
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}

// HasPassword はパスワードハッシュが設定されているかを返す。
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// SessionKind はセッションの種別を表す。
// スタッフとラーナーのトークン空間はこの種別で区別される。
type SessionKind string

const (
	// SessionKindStaff はスタッフユーザーのセッション。
	SessionKindStaff SessionKind = "staff"
	// SessionKindLearner はラーナーのセッション。
	SessionKindLearner SessionKind = "learner"
)

// Session は不透明トークンと主体IDを紐付けるログインセッションを表す。
// ExpiresAtは作成後に変更されない。
type Session struct {
	Token     string
	SubjectID string
	Kind      SessionKind
	ExpiresAt time.Time
	CreatedAt time.Time
}

// ValidAt は指定時刻においてセッションが有効かを返す。
// ExpiresAtちょうどの時刻は無効として扱う。
func (s *Session) ValidAt(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}
