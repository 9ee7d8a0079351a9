package api

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/victornm/raindrop/internal/domain"
	"github.com/victornm/raindrop/internal/errors"
)

const claimsKey = "claims"

// Claims identify the caller. Subject is the student id.
type Claims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// NewToken signs an HS256 bearer token for a user.
func NewToken(secret []byte, userID string, role domain.Role, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Authenticate resolves the caller from the Authorization header.
func Authenticate(secret []byte) gin.HandlerFunc {
	keyFunc := func(*jwt.Token) (any, error) { return secret, nil }

	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || raw == "" {
			renderError(c, unauthenticated("missing bearer token"))
			return
		}

		var claims Claims
		if _, err := jwt.ParseWithClaims(raw, &claims, keyFunc,
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		); err != nil {
			renderError(c, unauthenticated("invalid token: %v", err))
			return
		}
		if claims.Subject == "" {
			renderError(c, unauthenticated("token has no subject"))
			return
		}

		c.Set(claimsKey, &claims)
		c.Next()
	}
}

// RequireStudent rejects callers whose role is not student.
func RequireStudent() gin.HandlerFunc {
	return func(c *gin.Context) {
		if claimsOf(c).Role != domain.RoleStudent {
			renderError(c, errors.New(errors.CodePermissionDenied,
				errors.WithKind(errors.KindForbidden),
				errors.WithMessagef("only students can battle"),
			))
			return
		}
		c.Next()
	}
}

func claimsOf(c *gin.Context) *Claims {
	if v, ok := c.Get(claimsKey); ok {
		return v.(*Claims)
	}
	return &Claims{}
}

func callerID(c *gin.Context) string {
	return claimsOf(c).Subject
}

func unauthenticated(format string, args ...any) error {
	return errors.New(errors.CodeUnauthenticated, errors.WithMessagef(format, args...))
}
