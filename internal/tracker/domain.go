package tracker

import (
	"net"
	"strings"
)

// secondLevelTLDs is the closed list of second-level TLDs spec.md §4.A
// names ("co.uk, com.cn, com.au, co.jp, etc."). This is deliberately a small
// hand-maintained set, not the full Public Suffix List — the two-hop suffix
// extraction below needs a materially different, smaller algorithm than
// eTLD+1 over the full PSL.
var secondLevelTLDs = map[string]bool{
	"co.uk": true, "org.uk": true, "me.uk": true, "ac.uk": true,
	"com.cn": true, "net.cn": true, "org.cn": true,
	"com.au": true, "net.au": true, "org.au": true,
	"co.jp": true, "ne.jp": true, "or.jp": true,
	"co.kr": true, "co.in": true, "co.nz": true, "co.za": true,
	"com.br": true, "com.mx": true, "com.ar": true,
	"com.tw": true, "com.hk": true, "com.sg": true,
	"com.my": true, "com.tr": true, "com.ru": true,
}

// RootDomain extracts the registrable root domain from a host, URL, or
// host:port string per spec.md §4.A: closed-list second-level TLDs plus a
// last-two-labels fallback; IP literals returned as-is; "www." stripped.
func RootDomain(target string) string {
	host := normalizeHost(target)
	if host == "" {
		return ""
	}
	if net.ParseIP(host) != nil {
		return host
	}

	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return host
	}

	last2 := strings.Join(labels[len(labels)-2:], ".")
	if len(labels) >= 3 && secondLevelTLDs[last2] {
		return strings.Join(labels[len(labels)-3:], ".")
	}
	return last2
}

// SameRootDomain reports whether a and b share a root domain, per
// RootDomain's extraction rules.
func SameRootDomain(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return RootDomain(a) == RootDomain(b)
}

// normalizeHost strips scheme, path, port, brackets, and a leading "www.",
// lowercasing the result. Grounded on the teacher's netutil.ExtractDomain
// parsing steps (scheme strip, SplitHostPort, bracketed-IPv6 handling),
// adapted here to feed the closed-list algorithm instead of publicsuffix.
func normalizeHost(target string) string {
	target = strings.TrimSpace(target)
	if target == "" {
		return ""
	}

	if idx := strings.Index(target, "://"); idx >= 0 {
		target = target[idx+3:]
	} else if strings.HasPrefix(target, "//") {
		target = target[2:]
	}
	if idx := strings.IndexAny(target, "/?#"); idx >= 0 {
		target = target[:idx]
	}

	host := target
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	} else if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = host[1 : len(host)-1]
	}

	host = strings.ToLower(host)
	host = strings.TrimPrefix(host, "www.")
	return host
}
