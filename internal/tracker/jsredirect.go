package tracker

import "regexp"

// jsRedirectPattern is one named heuristic for detecting a client-side
// redirect inside an HTML/JS body. Group is the 1-based regexp capture
// group holding the candidate URL. This is data, not code (spec.md §9):
// the list is meant to be easy to extend without touching the scan loop.
type jsRedirectPattern struct {
	Name  string
	RE    *regexp.Regexp
	Group int
}

// jsRedirectPatterns is the fixed ~25-entry library spec.md §4.A step 6
// describes: location.replace/.assign, window.location.href assignment,
// setTimeout-wrapped forms, window.open(url, "_self"), and named-variable
// indirection.
var jsRedirectPatterns = []jsRedirectPattern{
	{"location.replace-dq", regexp.MustCompile(`location\.replace\(\s*"([^"]+)"\s*\)`), 1},
	{"location.replace-sq", regexp.MustCompile(`location\.replace\(\s*'([^']+)'\s*\)`), 1},
	{"location.assign-dq", regexp.MustCompile(`location\.assign\(\s*"([^"]+)"\s*\)`), 1},
	{"location.assign-sq", regexp.MustCompile(`location\.assign\(\s*'([^']+)'\s*\)`), 1},
	{"window.location.replace-dq", regexp.MustCompile(`window\.location\.replace\(\s*"([^"]+)"\s*\)`), 1},
	{"window.location.replace-sq", regexp.MustCompile(`window\.location\.replace\(\s*'([^']+)'\s*\)`), 1},
	{"window.location.href-eq-dq", regexp.MustCompile(`window\.location\.href\s*=\s*"([^"]+)"`), 1},
	{"window.location.href-eq-sq", regexp.MustCompile(`window\.location\.href\s*=\s*'([^']+)'`), 1},
	{"location.href-eq-dq", regexp.MustCompile(`(?:^|[^.\w])location\.href\s*=\s*"([^"]+)"`), 1},
	{"location.href-eq-sq", regexp.MustCompile(`(?:^|[^.\w])location\.href\s*=\s*'([^']+)'`), 1},
	{"window.location-eq-dq", regexp.MustCompile(`window\.location\s*=\s*"([^"]+)"`), 1},
	{"window.location-eq-sq", regexp.MustCompile(`window\.location\s*=\s*'([^']+)'`), 1},
	{"top.location.href-dq", regexp.MustCompile(`top\.location\.href\s*=\s*"([^"]+)"`), 1},
	{"top.location.href-sq", regexp.MustCompile(`top\.location\.href\s*=\s*'([^']+)'`), 1},
	{"self.location-dq", regexp.MustCompile(`self\.location\s*=\s*"([^"]+)"`), 1},
	{"self.location-sq", regexp.MustCompile(`self\.location\s*=\s*'([^']+)'`), 1},
	{"settimeout-location.href-dq", regexp.MustCompile(`setTimeout\([^,]*location\.href\s*=\s*"([^"]+)"`), 1},
	{"settimeout-location.href-sq", regexp.MustCompile(`setTimeout\([^,]*location\.href\s*=\s*'([^']+)'`), 1},
	{"settimeout-location.replace-dq", regexp.MustCompile(`setTimeout\([^,]*location\.replace\(\s*"([^"]+)"`), 1},
	{"settimeout-location.replace-sq", regexp.MustCompile(`setTimeout\([^,]*location\.replace\(\s*'([^']+)'`), 1},
	{"window.open-self-dq", regexp.MustCompile(`window\.open\(\s*"([^"]+)"\s*,\s*["']_self["']\s*\)`), 1},
	{"window.open-self-sq", regexp.MustCompile(`window\.open\(\s*'([^']+)'\s*,\s*["']_self["']\s*\)`), 1},
	{"meta-js-redirect-url-var-dq", regexp.MustCompile(`var\s+\w+\s*=\s*"([^"]+)"\s*;\s*(?:window\.)?location`), 1},
	{"meta-js-redirect-url-var-sq", regexp.MustCompile(`var\s+\w+\s*=\s*'([^']+)'\s*;\s*(?:window\.)?location`), 1},
	{"document.location-dq", regexp.MustCompile(`document\.location\s*=\s*"([^"]+)"`), 1},
	{"document.location-sq", regexp.MustCompile(`document\.location\s*=\s*'([^']+)'`), 1},
}

// metaRefreshPattern matches <meta http-equiv="refresh" content="N;url=...">,
// tolerant of attribute order and quote style.
var metaRefreshPattern = regexp.MustCompile(`(?is)<meta[^>]+http-equiv\s*=\s*["']refresh["'][^>]+content\s*=\s*["']\s*\d+\s*;\s*url\s*=\s*([^"']+)["']`)

// findJSRedirect scans body with the pattern library in order and returns
// the first non-rejected candidate URL found, or "" if none match.
func findJSRedirect(body string) string {
	for _, p := range jsRedirectPatterns {
		m := p.RE.FindStringSubmatch(body)
		if m == nil || len(m) <= p.Group {
			continue
		}
		candidate := m[p.Group]
		if acceptableRedirectTarget(candidate) {
			return candidate
		}
	}
	return ""
}

func findMetaRefresh(body string) string {
	m := metaRefreshPattern.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	candidate := m[1]
	if acceptableRedirectTarget(candidate) {
		return candidate
	}
	return ""
}

// acceptableRedirectTarget filters out non-navigable schemes and self-loops
// per spec.md §4.A step 6 ("Filter out javascript:, mailto:, tel:, data:, #,
// and self-loops" — the self-loop check happens at the call site, which
// knows the current URL).
func acceptableRedirectTarget(candidate string) bool {
	if candidate == "" || candidate == "#" {
		return false
	}
	switch {
	case hasScheme(candidate, "javascript:"),
		hasScheme(candidate, "mailto:"),
		hasScheme(candidate, "tel:"),
		hasScheme(candidate, "data:"):
		return false
	}
	return true
}

func hasScheme(s, scheme string) bool {
	if len(s) < len(scheme) {
		return false
	}
	for i := 0; i < len(scheme); i++ {
		a, b := s[i], scheme[i]
		if 'A' <= a && a <= 'Z' {
			a += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}
