package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	userIDKey   = "userID"
	userRoleKey = "userRole"
)

// Claims issued by the identity provider. Only user_id and role are trusted.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Auth verifies an HS256 bearer token and puts userID and userRole on the context.
func Auth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		token, found := strings.CutPrefix(raw, "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			abortAuth(c, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := ParseToken(strings.TrimSpace(token), secret)
		if err != nil {
			abortAuth(c, http.StatusUnauthorized, "invalid token")
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Set(userRoleKey, strings.ToLower(claims.Role))
		c.Next()
	}
}

// ParseToken validates signature, algorithm and expiry and returns the claims.
func ParseToken(token string, secret []byte) (*Claims, error) {
	if len(secret) == 0 {
		return nil, errors.New("no signing secret configured")
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("token not valid")
	}
	if strings.TrimSpace(claims.UserID) == "" || strings.TrimSpace(claims.Role) == "" {
		return nil, fmt.Errorf("token without user_id or role")
	}
	return claims, nil
}

// UserID returns the authenticated user, or "".
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// UserRole returns the authenticated role, or "".
func UserRole(c *gin.Context) string {
	return c.GetString(userRoleKey)
}

func abortAuth(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":      msg,
		"code":       "unauthorized",
		"request_id": GetRequestID(c),
	})
}
