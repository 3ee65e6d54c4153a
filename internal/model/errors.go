package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, learner, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeConflict            = "CONFLICT"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeUnauthenticated     = "UNAUTHENTICATED"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeModuleLocked        = "MODULE_LOCKED"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// HasCode はerrのチェーンに指定コードのAPIErrorが含まれるかを返す。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// NewConflictError は一意キー重複エラーを生成する。
func NewConflictError(what string) *APIError {
	return &APIError{
		Code:     ErrCodeConflict,
		Message:  fmt.Sprintf("%sは既に登録されています。", what),
		Category: "validation",
		Action:   "別の値で登録するか、ログインしてください。",
	}
}

// NewInvalidRequestError はリクエスト検証エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUnauthenticatedError は未認証エラーを生成する。
// セッション不正・期限切れ・資格情報不一致のいずれでも同じメッセージを返す。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// ユーザーの存在有無を推測されないよう、原因にかかわらず同一メッセージとする。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "ユーザー名またはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewUpstreamUnavailableError は外部IdPとの連携失敗エラーを生成する。
func NewUpstreamUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamUnavailable,
		Message:  "外部認証サービスでセッションを確認できませんでした。",
		Category: "auth",
		Action:   "もう一度ログインをやり直してください。",
	}
}

// NewNotFoundError はエンティティ未検出エラーを生成する。
func NewNotFoundError(what, id string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("指定された%sが見つかりません: %s", what, id),
		Category: "learner",
		Action:   "IDまたはメールアドレスを確認してください。",
	}
}

// NewModuleLockedError は未解放モジュールへの進捗更新エラーを生成する。
func NewModuleLockedError(moduleID string) *APIError {
	return &APIError{
		Code:     ErrCodeModuleLocked,
		Message:  fmt.Sprintf("モジュール %s はまだ利用できません。", moduleID),
		Category: "learner",
		Action:   "前のモジュールを修了してから再度お試しください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
