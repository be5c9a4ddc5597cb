package app

import (
	"context"

	"github.com/night131rd/referensiku.ai-sub000/app/models"
	"github.com/night131rd/referensiku.ai-sub000/auth"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Header carrying the client-persisted anonymous token. The client stores it
// indefinitely; the server echoes a freshly minted one back in the response.
const anonymousIDHeader = "X-Anonymous-ID"

// ResolveIdentity attributes the request to exactly one identity. A verified
// session always wins over any anonymous token also present. Without either,
// a new anonymous token is minted, its guest quota record is created before
// the token is handed out, and the token is returned via the response header.
func ResolveIdentity(c *gin.Context) models.Identity {
	if claims, ok := auth.ClaimsFromContext(c.Request.Context()); ok && claims.Subject != "" {
		return models.Authenticated(claims.Subject)
	}

	if token := c.GetHeader(anonymousIDHeader); token != "" {
		return models.Anonymous(token)
	}

	token := "anon_" + uuid.NewString()
	id := models.Anonymous(token)

	// Create the record before the token leaves the server, so a quota check
	// racing the first search never observes a missing row.
	if store != nil {
		if _, err := store.GetQuota(c.Request.Context(), id); err != nil {
			log.Error().Str("anonymous_id", token).Err(err).Msg("failed to seed anonymous quota record")
		}
	}

	c.Header(anonymousIDHeader, token)
	return id
}

// EnsureProfile creates the profile quota row for a verified session if it
// does not already exist. Runs on every authenticated mutation path so
// payment completion can rely on the row being there.
func EnsureProfile(ctx context.Context, claims *auth.Claims) error {
	if store == nil || claims == nil || claims.Subject == "" {
		return nil
	}
	_, err := store.GetQuota(ctx, models.Authenticated(claims.Subject))
	return err
}
