package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/capability-router/internal/platform/secrets"
	"github.com/nulzo/capability-router/pkg/api"
)

const ContextKeyCaller = "caller"

// keySet holds plaintext keys and bcrypt hashes. Entries starting with "$2"
// are treated as bcrypt hashes.
type keySet struct {
	plain  []string
	hashed []string
}

func newKeySet(keys []string) keySet {
	var ks keySet
	for _, k := range keys {
		k = strings.TrimSpace(k)
		switch {
		case k == "":
		case strings.HasPrefix(k, "$2"):
			ks.hashed = append(ks.hashed, k)
		default:
			ks.plain = append(ks.plain, k)
		}
	}
	return ks
}

func (ks keySet) empty() bool {
	return len(ks.plain) == 0 && len(ks.hashed) == 0
}

func (ks keySet) match(token string) bool {
	for _, k := range ks.plain {
		if subtle.ConstantTimeCompare([]byte(k), []byte(token)) == 1 {
			return true
		}
	}
	for _, h := range ks.hashed {
		if secrets.VerifyToken(h, token) {
			return true
		}
	}
	return false
}

// Auth checks for a valid Bearer token. An empty key list leaves the group open.
func Auth(keys []string) gin.HandlerFunc {
	ks := newKeySet(keys)

	return func(c *gin.Context) {
		if ks.empty() {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			_ = c.Error(api.UnauthorizedError("Missing Authorization header"))
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			_ = c.Error(api.UnauthorizedError("Invalid Authorization header format"))
			c.Abort()
			return
		}

		token := parts[1]
		if !ks.match(token) {
			_ = c.Error(api.UnauthorizedError("Invalid API Key"))
			c.Abort()
			return
		}

		c.Set(ContextKeyCaller, "key_"+token[:min(len(token), 6)])
		c.Next()
	}
}
