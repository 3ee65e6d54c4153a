package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hitoshi/projecthub/internal/metrics"
)

// DefaultSessionURL は外部IdPのセッション照会エンドポイント。
const DefaultSessionURL = "https://demobackend.emergentagent.com/auth/v1/env/oauth/session-data"

// maxSessionDataBytes はIdPレスポンスとして読み込む最大バイト数。
const maxSessionDataBytes = 64 * 1024

// SessionData は外部IdPがセッションIDに対して返す本人情報。
type SessionData struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Picture      string `json:"picture"`
	SessionToken string `json:"session_token"`
}

// IdentityProvider は外部IdPのセッションIDを本人情報に交換するインターフェース。
type IdentityProvider interface {
	// FetchSessionData は外部セッションIDに対応する本人情報を取得する。
	// 非200応答、通信エラー、タイムアウト、デコード失敗はいずれもエラーとなる。
	FetchSessionData(ctx context.Context, externalSessionID string) (*SessionData, error)
}

// HTTPProviderConfig はHTTPIdentityProviderの設定。
type HTTPProviderConfig struct {
	SessionURL string
	// Client はIdPとの通信に使うHTTPクライアント。nilの場合はTimeoutのみ設定したクライアントを使う。
	Client  *http.Client
	Timeout time.Duration
	Metrics metrics.MetricsCollector
}

// HTTPIdentityProvider はHTTP経由で外部IdPに問い合わせる。
type HTTPIdentityProvider struct {
	sessionURL string
	client     *http.Client
	metrics    metrics.MetricsCollector
}

// NewHTTPIdentityProvider はHTTPIdentityProviderを生成する。
func NewHTTPIdentityProvider(config HTTPProviderConfig) *HTTPIdentityProvider {
	if config.SessionURL == "" {
		config.SessionURL = DefaultSessionURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	client := config.Client
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	return &HTTPIdentityProvider{
		sessionURL: config.SessionURL,
		client:     client,
		metrics:    config.Metrics,
	}
}

// FetchSessionData はX-Session-IDヘッダーを付けてIdPに問い合わせる。
func (p *HTTPIdentityProvider) FetchSessionData(ctx context.Context, externalSessionID string) (*SessionData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.sessionURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create session-data request: %w", err)
	}
	req.Header.Set("X-Session-ID", externalSessionID)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := p.client.Do(req)
	if p.metrics != nil {
		p.metrics.RecordIdPLatency(time.Since(start))
	}
	if err != nil {
		return nil, fmt.Errorf("session-data request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSessionDataBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read session-data response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("session-data request failed with status %d", resp.StatusCode)
	}

	var data SessionData
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to parse session-data response: %w", err)
	}

	return &data, nil
}

// compile-time interface check
var _ IdentityProvider = (*HTTPIdentityProvider)(nil)
