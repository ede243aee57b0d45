package config

import zxcvbn "github.com/ccojocar/zxcvbn-go"

const weakTokenScoreThreshold = 3

// IsWeakToken scores an operator-supplied Bearer admin token or cron
// shared secret and reports whether it falls below the strength floor.
// Empty tokens close the corresponding access path (no presented value
// matches them) and are not scored as weak.
func IsWeakToken(token string) bool {
	if token == "" {
		return false
	}
	result := zxcvbn.PasswordStrength(token, nil)
	return result.Score < weakTokenScoreThreshold
}
