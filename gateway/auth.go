package gateway

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var errUnauthorized = errors.New("unauthorized")

// Authenticator checks the bearer credential of chat requests. With neither
// a key nor a secret configured every request is accepted.
type Authenticator struct {
	apiKey    []byte
	jwtSecret []byte
}

func NewAuthenticator(apiKey, jwtSecret string) *Authenticator {
	a := &Authenticator{}
	if apiKey != "" {
		a.apiKey = []byte(apiKey)
	}
	if jwtSecret != "" {
		a.jwtSecret = []byte(jwtSecret)
	}
	return a
}

func (a *Authenticator) Enabled() bool {
	return a.apiKey != nil || a.jwtSecret != nil
}

// Verify checks an Authorization header value.
func (a *Authenticator) Verify(header string) error {
	if !a.Enabled() {
		return nil
	}

	token, ok := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return errUnauthorized
	}

	if a.apiKey != nil {
		if subtle.ConstantTimeCompare([]byte(token), a.apiKey) != 1 {
			return errUnauthorized
		}
		return nil
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return a.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return errUnauthorized
	}
	return nil
}

// Middleware aborts with 401 when Verify fails.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := a.Verify(c.GetHeader("Authorization")); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}
