package proxyselect

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
)

const (
	randomAlphaNum = "abcdefghijklmnopqrstuvwxyz0123456789"
	sessionDigits  = "0123456789"
)

var (
	randomPattern  = regexp.MustCompile(`\{random:(\d+)\}`)
	sessionPattern = regexp.MustCompile(`\{session:(\d+)\}`)
)

// RenderUsername substitutes a proxy provider's username template:
// {COUNTRY} (uppercase code) first, then {country} (lowercase code), then
// {random:N}, then {session:N}. Both country passes are exact,
// case-sensitive matches; other casings such as {Country} are left as is.
func RenderUsername(template, countryCode string) string {
	out := template
	out = strings.ReplaceAll(out, "{COUNTRY}", strings.ToUpper(countryCode))
	out = strings.ReplaceAll(out, "{country}", strings.ToLower(countryCode))
	out = randomPattern.ReplaceAllStringFunc(out, func(match string) string {
		n := captureInt(randomPattern, match)
		return randomString(randomAlphaNum, n)
	})
	out = sessionPattern.ReplaceAllStringFunc(out, func(match string) string {
		n := captureInt(sessionPattern, match)
		return randomString(sessionDigits, n)
	})
	return out
}

func captureInt(re *regexp.Regexp, match string) int {
	groups := re.FindStringSubmatch(match)
	if len(groups) < 2 {
		return 0
	}
	n := 0
	for _, c := range groups[1] {
		n = n*10 + int(c-'0')
	}
	return n
}

func randomString(alphabet string, n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			b[i] = alphabet[0]
			continue
		}
		b[i] = alphabet[idx.Int64()]
	}
	return string(b)
}
