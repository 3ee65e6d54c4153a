// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// URLGuard は外部URLへのアクセスと外部由来URLの保存に関する安全性検証を行う。
type URLGuard interface {
	// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
	// プライベートIP、ループバック、リンクローカル、メタデータIPへの接続は
	// DNS解決後のダイヤル時点で拒否される。
	NewSafeClient(timeout time.Duration) *http.Client

	// ValidateURL はURLを静的に検証する。
	// http/https以外のスキーム、空ホスト、ブロック対象のIPやホスト名はエラーとする。
	ValidateURL(rawURL string) error
}

var allowedSchemes = []string{"http", "https"}

// blockedPrefixes は内部ネットワークとみなすアドレス範囲。
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"), // クラウドメタデータ 169.254.169.254 を含む
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("fc00::/7"),
}

var blockedHostnames = []string{"localhost"}

type urlGuard struct{}

// NewURLGuard はURLGuardを生成する。
func NewURLGuard() URLGuard {
	return urlGuard{}
}

// NewSafeClient はsafeurlでラップしたHTTPクライアントを返す。
// IdPとの通信に用いるため、httpsの443番ポートのみ許可する。
func (urlGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("https").
		SetAllowedPorts(443).
		Build()

	return safeurl.Client(config).Client
}

// ValidateURL はDNS解決を伴わない静的検証を行う。
// DNS再バインディングはNewSafeClient側のダイヤル時検証で防ぐ。
func (urlGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !slices.Contains(allowedSchemes, scheme) {
		return fmt.Errorf("disallowed scheme: %q", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		for _, p := range blockedPrefixes {
			if p.Contains(addr) {
				return fmt.Errorf("blocked IP address: %s", addr)
			}
		}
		return nil
	}

	if slices.Contains(blockedHostnames, strings.ToLower(host)) {
		return fmt.Errorf("blocked host: %s", host)
	}
	return nil
}
