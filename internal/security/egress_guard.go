// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// blockedNetworks は外部API呼び出しで拒否するネットワーク範囲。
var blockedNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16", // クラウドメタデータ (169.254.169.254) を含む
	"0.0.0.0/8",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	networks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		networks = append(networks, network)
	}
	return networks
}

// EgressGuard は外部API（為替レート）への送信を安全な宛先に限定する。
// 設定されたエンドポイントの静的検証と、DNS解決後のIPを検証するHTTPクライアントを提供する。
type EgressGuard struct {
	schemes []string
	ports   []int
}

// NewEgressGuard はhttpsの443番ポートのみを許可するEgressGuardを生成する。
func NewEgressGuard() *EgressGuard {
	return &EgressGuard{
		schemes: []string{"https"},
		ports:   []int{443},
	}
}

// NewClient は送信先IPを検証するHTTPクライアントを生成する。
// プライベート・ループバック・リンクローカル宛ての接続はDialerの段階で拒否される。
func (g *EgressGuard) NewClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(g.schemes...).
		SetAllowedPorts(g.ports...).
		Build()

	return safeurl.Client(config).Client
}

// ValidateEndpoint は設定されたエンドポイントURLを起動時に検証する。
// DNS解決を伴わない静的な検証で、実際の宛先IPはNewClientのクライアントが検証する。
func (g *EgressGuard) ValidateEndpoint(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !g.allowsScheme(scheme) {
		return fmt.Errorf("disallowed scheme: %s (allowed: %v)", scheme, g.schemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		for _, network := range blockedNetworks {
			if network.Contains(ip) {
				return fmt.Errorf("blocked IP address: %s", ip)
			}
		}
		return nil
	}

	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}

	return nil
}

func (g *EgressGuard) allowsScheme(scheme string) bool {
	for _, allowed := range g.schemes {
		if scheme == allowed {
			return true
		}
	}
	return false
}
