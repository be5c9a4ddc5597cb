// Package auth provides Gin middleware for enforcing session JWT auth.
package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// MiddlewareConfig controls auth enforcement behavior.
type MiddlewareConfig struct {
	// Optional resolves claims when a valid token is present but lets the
	// request through without them otherwise. Read paths use this so a
	// transient verifier failure degrades to anonymous instead of a 401.
	Optional bool
	// OnAuthenticated runs after successful verification, before the handler.
	OnAuthenticated func(c *gin.Context, claims *Claims) error
}

// Middleware enforces bearer token auth and injects claims into the request context.
func Middleware(verifier *Verifier, cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if AuthDisabled() {
			claims := &Claims{
				Subject: "local-dev",
				Issuer:  "local",
				Raw:     map[string]any{"sub": "local-dev"},
			}
			ctx := WithClaims(c.Request.Context(), claims)
			c.Request = c.Request.WithContext(ctx)
			c.Next()
			return
		}

		if verifier == nil {
			if cfg.Optional {
				c.Next()
				return
			}
			respondUnauthorized(c, "auth verifier not configured")
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			if cfg.Optional {
				c.Next()
				return
			}
			log.Warn().Str("path", c.Request.URL.Path).Msg("auth failure: missing Authorization header")
			respondUnauthorized(c, "missing authorization header")
			return
		}

		token, ok := extractBearerToken(authHeader)
		if !ok {
			if cfg.Optional {
				c.Next()
				return
			}
			log.Warn().Str("path", c.Request.URL.Path).Msg("auth failure: malformed Authorization header")
			respondUnauthorized(c, "invalid authorization header")
			return
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			if cfg.Optional {
				log.Debug().Str("path", c.Request.URL.Path).Err(err).Msg("optional auth: token rejected, continuing anonymous")
				c.Next()
				return
			}
			log.Warn().Str("path", c.Request.URL.Path).Err(err).Msg("auth failure: token invalid")
			respondUnauthorized(c, "invalid token")
			return
		}

		if cfg.OnAuthenticated != nil {
			if err := cfg.OnAuthenticated(c, claims); err != nil {
				log.Error().Str("sub", claims.Subject).Err(err).Msg("auth post-verify hook failed")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "failed to prepare user",
				})
				return
			}
		}

		ctx := WithClaims(c.Request.Context(), claims)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func extractBearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

func respondUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": message,
	})
}
