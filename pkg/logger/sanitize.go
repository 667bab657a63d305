package logger

import (
	"strings"
)

// SanitizedEmail masks an identifier for logging (e.g., "u***@*******.com").
// Identifiers are typed by users and never validated, so anything that is
// not shaped like an address is masked whole.
func SanitizedEmail(email string) string {
	if email == "" {
		return "[empty]"
	}

	at := strings.LastIndex(email, "@")
	if at < 0 {
		return maskRunes(email, 1)
	}

	username := maskRunes(email[:at], 1)
	domain := email[at+1:]

	// keep the TLD
	domainParts := strings.Split(domain, ".")
	if len(domainParts) > 1 {
		for i := 0; i < len(domainParts)-1; i++ {
			domainParts[i] = strings.Repeat("*", len([]rune(domainParts[i])))
		}
		domain = strings.Join(domainParts, ".")
	} else {
		domain = strings.Repeat("*", len([]rune(domain)))
	}

	return username + "@" + domain
}

func maskRunes(s string, keep int) string {
	r := []rune(s)
	if len(r) <= keep {
		return s
	}
	return string(r[:keep]) + strings.Repeat("*", len(r)-keep)
}

// SensitiveQuery reports whether a query string carries parameters that must
// not reach the request log.
func SensitiveQuery(rawQuery string) bool {
	query := strings.ToLower(rawQuery)
	for _, param := range []string{"password", "token", "secret", "code", "email", "auth"} {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
