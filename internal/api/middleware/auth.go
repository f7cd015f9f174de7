package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"greendrake/marketdesk/internal/auth"
	"greendrake/marketdesk/internal/models"
)

const (
	// ContextKeyIdentity holds the *models.Identity in Gin context.
	ContextKeyIdentity = "identity"

	// HeaderThreadKey carries the capability handed to anonymous inquirers.
	HeaderThreadKey = "X-Thread-Key"
)

// GetIdentity returns the caller resolved by OptionalAuth or RequireAuth. It
// is nil for anonymous callers.
func GetIdentity(c *gin.Context) *models.Identity {
	v, ok := c.Get(ContextKeyIdentity)
	if !ok {
		return nil
	}
	identity, _ := v.(*models.Identity)
	return identity
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if token := c.Query("token"); token != "" {
			return token, true
		}
		return "", true
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", false
	}
	return parts[1], true
}

func threadKey(c *gin.Context) string {
	if key := c.GetHeader(HeaderThreadKey); key != "" {
		return key
	}
	return c.Query("thread_key")
}

// resolveIdentity builds the caller from a Bearer token (header or ?token=)
// and a thread key (header or ?thread_key=). It returns nil when neither is
// presented and a non-empty errMsg when a token is presented but invalid.
func resolveIdentity(c *gin.Context, jwtSecret string) (identity *models.Identity, errMsg string) {
	token, wellFormed := bearerToken(c)
	if !wellFormed {
		return nil, "Authorization header format must be Bearer {token}"
	}
	if token != "" {
		claims, err := auth.ValidateJWT(token, jwtSecret)
		if err != nil {
			return nil, "Invalid or expired token"
		}
		identity, err = claims.Identity()
		if err != nil {
			return nil, "Invalid token subject"
		}
	}
	if key := threadKey(c); key != "" {
		if identity == nil {
			identity = &models.Identity{}
		}
		identity.ThreadKey = key
	}
	return identity, ""
}

// OptionalAuth resolves the caller when credentials are presented and lets
// anonymous requests through. Invalid credentials are still rejected.
func OptionalAuth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, errMsg := resolveIdentity(c, jwtSecret)
		if errMsg != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errMsg})
			return
		}
		if identity != nil {
			c.Set(ContextKeyIdentity, identity)
		}
		c.Next()
	}
}

// RequireAuth demands a valid Bearer token.
func RequireAuth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, errMsg := resolveIdentity(c, jwtSecret)
		if errMsg != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errMsg})
			return
		}
		if !identity.Authenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}
		c.Set(ContextKeyIdentity, identity)
		c.Next()
	}
}

// AdminMiddleware checks for admin privileges. RequireAuth must run first.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !GetIdentity(c).IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Administrator privileges required"})
			return
		}
		c.Next()
	}
}
