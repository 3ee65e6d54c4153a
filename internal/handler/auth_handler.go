// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/projecthub/internal/middleware"
	"github.com/hitoshi/projecthub/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	RegisterManual(ctx context.Context, username, password, name string) (*model.User, error)
	LoginManual(ctx context.Context, username, password string) (*model.User, *model.Session, error)
	LoginOAuth(ctx context.Context, externalSessionID string) (*model.User, *model.Session, error)
	WhoAmI(ctx context.Context, token string) (*model.User, error)
	Logout(ctx context.Context, token string)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はスタッフ認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
	now     func() time.Time
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
		now:     time.Now,
	}
}

// userResponse はスタッフユーザーのAPIレスポンス。パスワードハッシュは含めない。
type userResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Picture     *string    `json:"picture,omitempty"`
	AuthType    string     `json:"auth_type"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Picture:     u.Picture,
		AuthType:    string(u.AuthType),
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}

type registerRequest struct {
	Username string `json:"username" validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=72"`
	Name     string `json:"name" validate:"max=200"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Register はユーザー名/パスワードでスタッフユーザーを登録する。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeAndValidate(r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	if _, err := h.service.RegisterManual(r.Context(), req.Username, req.Password, req.Name); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "User registered successfully",
	})
}

// Login はユーザー名/パスワードで認証し、セッションCookieを設定する。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeAndValidate(r, &req); err != nil {
		// 入力の欠落もログイン失敗と同じ応答にする
		handleServiceError(w, model.NewInvalidCredentialsError())
		return
	}

	user, session, err := h.service.LoginManual(r.Context(), req.Username, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, session)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    toUserResponse(user),
	})
}

// Session は外部IdPのセッションIDをローカルセッションに交換する。
// POST /api/auth/session?session_id=xxx
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		handleServiceError(w, model.NewInvalidRequestError("session_id is required"))
		return
	}

	user, session, err := h.service.LoginOAuth(r.Context(), sessionID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, session)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user_id": user.ID,
	})
}

// Me は現在のログインユーザー情報を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err != nil || cookie.Value == "" {
		middleware.WriteUnauthenticated(w)
		return
	}

	user, err := h.service.WhoAmI(r.Context(), cookie.Value)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// Logout はセッションを破棄する。Cookieの有無にかかわらず成功を返す。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil && cookie.Value != "" {
		h.service.Logout(r.Context(), cookie.Value)
	}

	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, session *model.Session) {
	http.SetCookie(w, h.sessionCookie(session.Token, h.cookieMaxAge(session)))
}

// cookieMaxAge はセッションの残り有効期間からCookieのMax-Ageを求める。
// 再利用された既存セッションでもCookieがセッションより長生きしないようにする。
// 有効期限が未設定の場合は設定値を使う。
func (h *AuthHandler) cookieMaxAge(session *model.Session) int {
	if session.ExpiresAt.IsZero() {
		return h.config.SessionMaxAge
	}
	remaining := session.ExpiresAt.Sub(h.now())
	if remaining <= 0 {
		return -1
	}
	secs := int(remaining / time.Second)
	if secs < 1 {
		secs = 1
	}
	if h.config.SessionMaxAge > 0 && secs > h.config.SessionMaxAge {
		secs = h.config.SessionMaxAge
	}
	return secs
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, h.sessionCookie("", -1))
}

// sessionCookie はクロスサイトのフロントエンドから送信されるセッションCookieを生成する。
// SameSite=NoneはSecure属性が必須のため、非Secure環境ではLaxにする。
func (h *AuthHandler) sessionCookie(value string, maxAge int) *http.Cookie {
	sameSite := http.SameSiteNoneMode
	if !h.config.CookieSecure {
		sameSite = http.SameSiteLaxMode
	}
	return &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: sameSite,
	}
}
