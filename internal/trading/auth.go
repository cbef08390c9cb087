package trading

import (
	"crypto/subtle"
	"strings"
)

// Credentials are the three channels a scheduler may use to present the
// shared secret.
type Credentials struct {
	// Authorization is the raw Authorization header.
	Authorization string
	// Header is the X-Cron-Secret header.
	Header string
	// Query is the "key" query parameter.
	Query string
}

// Authorized reports whether any channel carries secret. An empty secret
// authorizes nobody.
func (c Credentials) Authorized(secret string) bool {
	if secret == "" {
		return false
	}
	candidates := []string{c.Header, c.Query}
	if token, ok := strings.CutPrefix(c.Authorization, "Bearer "); ok {
		candidates = append(candidates, strings.TrimSpace(token))
	}

	ok := 0
	for _, cand := range candidates {
		ok |= subtle.ConstantTimeCompare([]byte(cand), []byte(secret))
	}
	return ok == 1
}
