package egress

import (
	"errors"
	"net"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/lelandsequel/metalledger/internal/domain"
)

// DefaultAllowlist is used when no allowlist is configured.
var DefaultAllowlist = []string{
	"iscrapapp.com",
	"scrapregister.com",
	"api.fastmarkets.com",
	"recyclingtoday.com",
	"metals-api.com",
	"api.lbma.org.uk",
}

type allowlist struct {
	domains []string
}

// Gate checks outbound targets against a process-wide allowlist. The list
// is swapped atomically; only the approval-gated source config path calls
// Replace.
type Gate struct {
	current atomic.Pointer[allowlist]
}

func NewGate(domains []string) *Gate {
	g := &Gate{}
	g.current.Store(&allowlist{domains: NormalizeAll(domains)})
	return g
}

// CheckEgress accepts a bare domain, host:port or full URL.
func (g *Gate) CheckEgress(target string) error {
	host := Normalize(target)
	if host == "" {
		return &domain.EgressViolation{Domain: target}
	}
	for _, d := range g.current.Load().domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return nil
		}
	}
	return &domain.EgressViolation{Domain: host}
}

// Replace swaps the allowlist.
func (g *Gate) Replace(domains []string) error {
	normalized := NormalizeAll(domains)
	if len(normalized) == 0 {
		return errors.New("egress allowlist must contain at least one domain")
	}
	g.current.Store(&allowlist{domains: normalized})
	return nil
}

// Domains returns a copy of the current allowlist.
func (g *Gate) Domains() []string {
	cur := g.current.Load().domains
	out := make([]string, len(cur))
	copy(out, cur)
	return out
}

// Normalize reduces a target to a lower-case host with any scheme, port,
// path and leading "www." removed.
func Normalize(target string) string {
	s := strings.ToLower(strings.TrimSpace(target))
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = u.Hostname()
	} else {
		if i := strings.IndexAny(s, "/?#"); i >= 0 {
			s = s[:i]
		}
		if h, _, err := net.SplitHostPort(s); err == nil {
			s = h
		}
	}
	s = strings.TrimSuffix(s, ".")
	s = strings.TrimPrefix(s, "www.")
	return s
}

// NormalizeAll normalizes domains, dropping empties and duplicates.
func NormalizeAll(domains []string) []string {
	seen := make(map[string]struct{}, len(domains))
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		n := Normalize(d)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
