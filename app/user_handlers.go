package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// UserInfo returns role + quota for the resolved identity. This is the
// reconciliation endpoint the client cache refreshes from; it reads the
// authoritative record and never mutates it.
func UserInfo(c *gin.Context) {
	id := ResolveIdentity(c)

	rec, err := store.GetQuota(c.Request.Context(), id)
	if err != nil {
		log.Error().Str("identity", id.Key).Err(err).Msg("quota lookup failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "quota store unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"kind":      id.Kind,
		"role":      rec.Role,
		"remaining": rec.Remaining,
		"total":     rec.Total,
	})
}
