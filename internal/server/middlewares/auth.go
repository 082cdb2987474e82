package middlewares

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	bearerPrefix = "Bearer "
	// ClaimsKey is the context key the validated claims are stored under.
	ClaimsKey = "claims"
)

// Claims are the claims accepted in API tokens.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Authenticator rejects requests without a valid HS256 bearer token signed
// with secret. Tokens must carry an expiry.
func Authenticator(secret []byte) gin.HandlerFunc {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims := &Claims{}
		_, err := parser.ParseWithClaims(strings.TrimPrefix(header, bearerPrefix), claims, func(*jwt.Token) (any, error) {
			return secret, nil
		})
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "token expired"
			}
			zap.S().Named("auth").Debugw("rejected token", "error", err, "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// GenerateToken signs a token for username valid until the given claims
// expire.
func GenerateToken(secret []byte, username string, claims jwt.RegisteredClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Username: username, RegisteredClaims: claims})
	return token.SignedString(secret)
}
