package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// userContextKey is the gin context key holding the authenticated username.
const userContextKey = "bosun.user"

// BasicAuth returns a middleware enforcing HTTP basic auth against the
// configured admin credentials. The configured password may be a bcrypt hash
// or, for development setups, plaintext.
func BasicAuth(username, password string, logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "auth").Logger()

	return func(c *gin.Context) {
		user, pass, ok := c.Request.BasicAuth()
		if !ok || !credentialsMatch(username, password, user, pass) {
			log.Warn().Str("client_ip", c.ClientIP()).Msg("rejected unauthenticated request")
			c.Header("WWW-Authenticate", `Basic realm="bosun"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(userContextKey, user)
		c.Next()
	}
}

// Username returns the authenticated username for the request, or empty.
func Username(c *gin.Context) string {
	if v, ok := c.Get(userContextKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func credentialsMatch(wantUser, wantPass, gotUser, gotPass string) bool {
	if subtle.ConstantTimeCompare([]byte(wantUser), []byte(gotUser)) != 1 {
		return false
	}
	if strings.HasPrefix(wantPass, "$2a$") || strings.HasPrefix(wantPass, "$2b$") || strings.HasPrefix(wantPass, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(wantPass), []byte(gotPass)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(wantPass), []byte(gotPass)) == 1
}
