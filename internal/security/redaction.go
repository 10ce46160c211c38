package security

import (
	"regexp"
	"strings"
)

const mask = "[REDACTED]"

var (
	secretKeyExpr      = `(?:password|passwd|secret|api[_-]?key|[a-z0-9._-]*token[a-z0-9._-]*)`
	kvSecretPattern    = regexp.MustCompile(`(?i)(` + secretKeyExpr + `)\s*[:=]\s*[^\s"']+`)
	bearerTokenPattern = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=-]+`)
	pemBlockPattern    = regexp.MustCompile(`(?s)-----BEGIN [^-]+ PRIVATE KEY-----.*?-----END [^-]+ PRIVATE KEY-----`)
	secretSelectorExpr = regexp.MustCompile(`(?i)(password|passwd|secret|token|api[_-]?key|otp|pin)`)
)

// MaskInput redacts text typed into a recorded input action before it is
// persisted. Text entered into a secret-shaped field is masked entirely;
// otherwise only secret-shaped substrings are masked so ordinary form input
// replays verbatim.
func MaskInput(selector, text string) string {
	if text == "" {
		return ""
	}
	if SensitiveSelector(selector) {
		return mask
	}
	return RedactText(text)
}

// SensitiveSelector reports whether an element locator names a credential
// field (e.g. "#password", "input[type=password]", "[name=api_key]").
func SensitiveSelector(selector string) bool {
	return secretSelectorExpr.MatchString(selector) ||
		strings.Contains(strings.ToLower(selector), "type=password")
}

// RedactText masks secret-shaped substrings (key=value credentials, bearer
// tokens, PEM private keys) in free text, leaving the rest intact.
func RedactText(input string) string {
	if input == "" {
		return ""
	}
	out := pemBlockPattern.ReplaceAllString(input, mask)
	out = bearerTokenPattern.ReplaceAllString(out, "Bearer "+mask)
	out = kvSecretPattern.ReplaceAllStringFunc(out, func(match string) string {
		idx := strings.IndexAny(match, ":=")
		if idx < 0 {
			return mask
		}
		return match[:idx+1] + mask
	})
	return out
}

// RedactBag applies RedactText to every value of an open key/value bag and
// fully masks values whose key is secret-shaped. The input map is not
// modified.
func RedactBag(bag map[string]string) map[string]string {
	if len(bag) == 0 {
		return bag
	}
	out := make(map[string]string, len(bag))
	for k, v := range bag {
		if secretSelectorExpr.MatchString(k) {
			out[k] = mask
			continue
		}
		out[k] = RedactText(v)
	}
	return out
}
