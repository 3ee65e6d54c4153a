package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/projecthub/internal/middleware"
	"github.com/hitoshi/projecthub/internal/model"
)

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body
}

func findSessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			return c
		}
	}
	return nil
}

func TestAuthHandler_Register(t *testing.T) {
	env := newTestEnv()
	var gotName string
	env.auth.registerManualFn = func(_ context.Context, username, password, name string) (*model.User, error) {
		gotName = name
		return &model.User{ID: "user-2", Email: username, Name: name, AuthType: model.AuthTypeManual}, nil
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register",
		strings.NewReader(`{"username":"pmo","password":"s3cret","name":"PMO Lead"}`))
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := decodeBody(t, w)
	if body["success"] != true || body["message"] != "User registered successfully" {
		t.Errorf("body = %v", body)
	}
	if gotName != "PMO Lead" {
		t.Errorf("name = %q", gotName)
	}
	if findSessionCookie(w) != nil {
		t.Error("register must not set a session cookie")
	}
}

func TestAuthHandler_Register_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		serviceErr error
		wantStatus int
		wantCode   string
	}{
		{"ユーザー名なし", `{"password":"x"}`, nil, http.StatusBadRequest, model.ErrCodeInvalidRequest},
		{"パスワードなし", `{"username":"pmo"}`, nil, http.StatusBadRequest, model.ErrCodeInvalidRequest},
		{"不正なJSON", `{`, nil, http.StatusBadRequest, model.ErrCodeInvalidRequest},
		{"重複", `{"username":"pmo","password":"x"}`, model.NewConflictError("ユーザー名"), http.StatusBadRequest, model.ErrCodeConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			env.auth.registerManualFn = func(context.Context, string, string, string) (*model.User, error) {
				if tt.serviceErr != nil {
					return nil, tt.serviceErr
				}
				return &model.User{ID: "user-2"}, nil
			}

			w := httptest.NewRecorder()
			env.handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(tt.body)))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if body := decodeBody(t, w); body["code"] != tt.wantCode {
				t.Errorf("code = %v, want %s", body["code"], tt.wantCode)
			}
		})
	}
}

func TestAuthHandler_Login_SetsSessionCookie(t *testing.T) {
	env := newTestEnv()
	env.auth.loginManualFn = func(_ context.Context, username, password string) (*model.User, *model.Session, error) {
		if username != "pmo" || password != "s3cret" {
			return nil, nil, model.NewInvalidCredentialsError()
		}
		hash := "$2a$10$hash"
		return &model.User{ID: "user-2", Email: "pmo", PasswordHash: &hash, AuthType: model.AuthTypeManual},
			&model.Session{Token: "tok-123", SubjectID: "user-2", Kind: model.SessionKindStaff}, nil
	}

	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"username":"pmo","password":"s3cret"}`)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	c := findSessionCookie(w)
	if c == nil {
		t.Fatal("session cookie not set")
	}
	if c.Value != "tok-123" || !c.HttpOnly || !c.Secure || c.Path != "/" || c.SameSite != http.SameSiteNoneMode {
		t.Errorf("cookie = %+v", c)
	}
	if c.MaxAge != int((7 * 24 * time.Hour).Seconds()) {
		t.Errorf("MaxAge = %d", c.MaxAge)
	}

	body := decodeBody(t, w)
	user, ok := body["user"].(map[string]any)
	if !ok {
		t.Fatalf("user missing: %v", body)
	}
	if _, leaked := user["password_hash"]; leaked {
		t.Error("password hash must not be exposed")
	}
	if user["id"] != "user-2" {
		t.Errorf("user.id = %v", user["id"])
	}
}

func TestAuthHandler_Login_FailuresAreUniform(t *testing.T) {
	bodies := []string{
		`{"username":"pmo","password":"wrong"}`,
		`{"username":"nobody","password":"x"}`,
		`{"username":"pmo"}`,
		`not json`,
	}

	var first string
	for i, b := range bodies {
		env := newTestEnv()
		w := httptest.NewRecorder()
		env.handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(b)))

		if w.Code != http.StatusUnauthorized {
			t.Errorf("body %d: status = %d, want 401", i, w.Code)
		}
		if findSessionCookie(w) != nil {
			t.Errorf("body %d: cookie must not be set on failure", i)
		}
		msg := decodeBody(t, w)["message"].(string)
		if i == 0 {
			first = msg
		} else if msg != first {
			t.Errorf("body %d: message %q differs from %q", i, msg, first)
		}
	}
}

func TestAuthHandler_Session(t *testing.T) {
	t.Run("session_idなしは400", func(t *testing.T) {
		env := newTestEnv()
		w := httptest.NewRecorder()
		env.handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/session", nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("IdP失敗は401", func(t *testing.T) {
		env := newTestEnv()
		w := httptest.NewRecorder()
		env.handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/session?session_id=bad", nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
		if body := decodeBody(t, w); body["code"] != model.ErrCodeUpstreamUnavailable {
			t.Errorf("code = %v", body["code"])
		}
	})

	t.Run("成功時はCookieを設定", func(t *testing.T) {
		env := newTestEnv()
		var gotID string
		env.auth.loginOAuthFn = func(_ context.Context, externalSessionID string) (*model.User, *model.Session, error) {
			gotID = externalSessionID
			return &model.User{ID: "user-9", AuthType: model.AuthTypeOAuth},
				&model.Session{Token: "idp-tok", SubjectID: "user-9", Kind: model.SessionKindStaff}, nil
		}

		w := httptest.NewRecorder()
		env.handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/session?session_id=ext-1", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if gotID != "ext-1" {
			t.Errorf("external session id = %q", gotID)
		}
		if c := findSessionCookie(w); c == nil || c.Value != "idp-tok" {
			t.Errorf("cookie = %+v", c)
		}
		body := decodeBody(t, w)
		if body["success"] != true || body["user_id"] != "user-9" {
			t.Errorf("body = %v", body)
		}
	})
}

func TestAuthHandler_Me(t *testing.T) {
	env := newTestEnv()
	env.auth.whoAmIFn = func(_ context.Context, token string) (*model.User, error) {
		if token == "tok-1" {
			return &model.User{ID: "user-1", Email: "pmo@example.com", AuthType: model.AuthTypeOAuth}, nil
		}
		return nil, model.NewUnauthenticatedError()
	}

	tests := []struct {
		name       string
		cookie     string
		wantStatus int
	}{
		{"Cookieなし", "", http.StatusUnauthorized},
		{"無効なトークン", "bogus", http.StatusUnauthorized},
		{"有効なトークン", "tok-1", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			env.handler.ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestAuthHandler_Logout_AlwaysSucceeds(t *testing.T) {
	env := newTestEnv()

	for _, cookie := range []string{"", "tok-1", "unknown"} {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
		if cookie != "" {
			req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: cookie})
		}
		w := httptest.NewRecorder()
		env.handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("cookie %q: status = %d", cookie, w.Code)
		}
		c := findSessionCookie(w)
		if c == nil || c.MaxAge >= 0 || c.Value != "" {
			t.Errorf("cookie %q: expected clearing cookie, got %+v", cookie, c)
		}
	}

	if len(env.auth.loggedOut) != 2 || env.auth.loggedOut[0] != "tok-1" || env.auth.loggedOut[1] != "unknown" {
		t.Errorf("loggedOut = %v", env.auth.loggedOut)
	}
}

func TestAuthHandler_SessionCookie_LaxWhenInsecure(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, AuthHandlerConfig{CookieSecure: false, CookieDomain: "example.com", SessionMaxAge: 60})
	c := h.sessionCookie("tok", 60)
	if c.Secure {
		t.Error("Secure should be false")
	}
	if c.SameSite != http.SameSiteLaxMode {
		t.Errorf("SameSite = %v, want Lax", c.SameSite)
	}
	if c.Domain != "example.com" {
		t.Errorf("Domain = %q", c.Domain)
	}
}

func TestAuthHandler_Session_CookieFollowsSessionExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	week := int((7 * 24 * time.Hour).Seconds())

	tests := []struct {
		name      string
		expiresAt time.Time
		want      int
	}{
		{"reused session with two hours left", now.Add(2 * time.Hour), int((2 * time.Hour).Seconds())},
		{"fresh session", now.Add(7 * 24 * time.Hour), week},
		{"expiry beyond configured max age is capped", now.Add(30 * 24 * time.Hour), week},
		{"no expiry falls back to configured max age", time.Time{}, week},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				loginOAuthFn: func(_ context.Context, _ string) (*model.User, *model.Session, error) {
					return &model.User{ID: "ext-1"},
						&model.Session{Token: "upstream-tok", SubjectID: "ext-1", Kind: model.SessionKindStaff, ExpiresAt: tt.expiresAt}, nil
				},
			}
			h := NewAuthHandler(svc, AuthHandlerConfig{CookieSecure: true, SessionMaxAge: week})
			h.now = func() time.Time { return now }

			w := httptest.NewRecorder()
			h.Session(w, httptest.NewRequest(http.MethodPost, "/api/auth/session?session_id=abc", nil))

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			c := findSessionCookie(w)
			if c == nil {
				t.Fatal("session cookie not set")
			}
			if c.MaxAge != tt.want {
				t.Errorf("MaxAge = %d, want %d", c.MaxAge, tt.want)
			}
		})
	}
}
