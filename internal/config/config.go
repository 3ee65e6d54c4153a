// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	DBName      string `env:"DB_NAME"`

	// Server
	ServerPort  string   `env:"SERVER_PORT" envDefault:"8080"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	// Cookie
	CookieSecure bool   `env:"COOKIE_SECURE" envDefault:"true"`
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// Session
	StaffSessionTTL     time.Duration `env:"STAFF_SESSION_TTL" envDefault:"168h"`
	LearnerSessionTTL   time.Duration `env:"LEARNER_SESSION_TTL" envDefault:"720h"`
	SessionReapInterval time.Duration `env:"SESSION_REAP_INTERVAL" envDefault:"15m"`

	// Identity provider
	IdPSessionURL  string        `env:"IDP_SESSION_URL" envDefault:"https://demobackend.emergentagent.com/auth/v1/env/oauth/session-data"`
	IdPTimeout     time.Duration `env:"IDP_TIMEOUT" envDefault:"10s"`
	IdPSafeDial    bool          `env:"IDP_SAFE_DIAL" envDefault:"true"`
	MintLocalToken bool          `env:"OAUTH_MINT_LOCAL_TOKEN" envDefault:"false"`

	// Credential
	BcryptCost int `env:"BCRYPT_COST" envDefault:"10"`

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitAuth int `env:"RATE_LIMIT_AUTH" envDefault:"10"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// bcryptの許容コスト範囲（golang.org/x/crypto/bcryptのMinCost/MaxCost）
const (
	minBcryptCost = 4
	maxBcryptCost = 31
)

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定、または値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("環境変数の読み込みに失敗: %w", err)
	}
	cfg.CORSOrigins = trimAll(cfg.CORSOrigins)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.StaffSessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("STAFF_SESSION_TTL must be positive: %s", c.StaffSessionTTL))
	}
	if c.LearnerSessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("LEARNER_SESSION_TTL must be positive: %s", c.LearnerSessionTTL))
	}
	if c.IdPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("IDP_TIMEOUT must be positive: %s", c.IdPTimeout))
	}
	if c.SessionReapInterval <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_REAP_INTERVAL must be positive: %s", c.SessionReapInterval))
	}
	if c.BcryptCost < minBcryptCost || c.BcryptCost > maxBcryptCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between %d and %d: %d", minBcryptCost, maxBcryptCost, c.BcryptCost))
	}
	if c.RateLimitAuth <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_AUTH must be positive: %d", c.RateLimitAuth))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseLogLevel はLOG_LEVELの値をslog.Levelに変換する。
// debug, info, warn, errorを大文字小文字を区別せず受け付ける。
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL is invalid: %q", s)
	}
	return level, nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
