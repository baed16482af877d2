package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/aluoptimize/aluoptimize/internal/models"
	"github.com/aluoptimize/aluoptimize/internal/services/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const claimsKey = "claims"

// TokenParser verifies bearer tokens
type TokenParser interface {
	Parse(tokenString, wantType string) (*auth.Claims, error)
}

// ActiveChecker reports whether an account may still use its tokens
type ActiveChecker interface {
	IsActive(ctx context.Context, userID uuid.UUID) (bool, error)
}

// Auth middleware validates JWT access tokens. When active is non-nil the
// account behind the token must still be active.
func Auth(tokens TokenParser, active ActiveChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			return
		}

		claims, err := tokens.Parse(tokenString, auth.AccessToken)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		if active != nil {
			ok, err := active.IsActive(c.Request.Context(), claims.UserID)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
				return
			}
			if !ok {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account disabled"})
				return
			}
		}

		c.Set(claimsKey, claims)
		c.Set("user_id", claims.UserID)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// GetClaims returns the verified claims of the request, or nil
func GetClaims(c *gin.Context) *auth.Claims {
	v, exists := c.Get(claimsKey)
	if !exists {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}

// GetUserID extracts user ID from context
func GetUserID(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get("user_id")
	if !exists {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// IsStaff reports whether the caller is staff or admin
func IsStaff(c *gin.Context) bool {
	claims := GetClaims(c)
	return claims != nil && (claims.Role == models.RoleStaff || claims.Role == models.RoleAdmin)
}

// RequireRole middleware checks user role
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, exists := c.Get("role")
		if !exists {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}

		role, _ := v.(models.Role)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
	}
}
