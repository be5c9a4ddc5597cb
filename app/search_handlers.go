package app

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/night131rd/referensiku.ai-sub000/app/config"
	"github.com/night131rd/referensiku.ai-sub000/app/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// No overall timeout: the stream proxy holds the connection open for the
// lifetime of a search task. Per-request deadlines come from the request ctx.
var httpc = &http.Client{}

const (
	rateLimitLimitHeader     = "X-RateLimit-Limit-Daily"
	rateLimitRemainingHeader = "X-RateLimit-Remaining-Daily"
)

// SubmitSearch spends one quota unit and forwards the query to the search
// backend. The decrement is authoritative and happens before the backend is
// called; exhaustion means the backend is never contacted.
func SubmitSearch(c *gin.Context) {
	id := ResolveIdentity(c)

	var req models.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query"})
		return
	}
	if req.Year == "" {
		req.Year = "-"
	}
	if req.Mode == "" {
		req.Mode = "quick"
	}

	rec, err := store.Decrement(c.Request.Context(), id)
	if IsQuotaExhausted(err) {
		qe := err.(*QuotaExhaustedError)
		c.Header(rateLimitLimitHeader, strconv.Itoa(qe.Total))
		c.Header(rateLimitRemainingHeader, "0")
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error": "search quota exhausted",
			"role":  qe.Role,
		})
		return
	}
	if err != nil {
		log.Error().Str("identity", id.Key).Err(err).Msg("quota decrement failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "quota store unavailable"})
		return
	}

	// The client cache reconciles from these on every submission response.
	c.Header(rateLimitLimitHeader, strconv.Itoa(rec.Total))
	c.Header(rateLimitRemainingHeader, strconv.Itoa(rec.Remaining))

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Error().Err(err).Msg("LoadConfig failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load config"})
		return
	}

	ctx, cancel := contextWithTimeout(c, 25*time.Second)
	defer cancel()

	// Body was consumed by binding; re-marshal the normalized request.
	proxyReq, err := backendJSONRequest(ctx, http.MethodPost, cfg.Search.BackendURL+"/search", req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build backend request"})
		return
	}
	attachIdentity(proxyReq, c, id)

	resp, err := httpc.Do(proxyReq)
	if err != nil {
		log.Warn().Str("identity", id.Key).Err(err).Msg("search backend unreachable")
		c.JSON(http.StatusBadGateway, gin.H{"error": "search backend unavailable", "fallback": true})
		return
	}
	defer resp.Body.Close()

	relayJSON(c, resp)
}

// SearchStatus proxies a single status snapshot for a task.
func SearchStatus(c *gin.Context) {
	proxyBackendGET(c, "/search/status/"+c.Param("taskId"))
}

// SearchAnswer proxies the final answer for a completed task.
func SearchAnswer(c *gin.Context) {
	proxyBackendGET(c, "/answer/"+c.Param("taskId"))
}

// SearchBibliography proxies the bibliography for a completed task.
func SearchBibliography(c *gin.Context) {
	proxyBackendGET(c, "/bibliography/"+c.Param("taskId"))
}

// SearchStream proxies the backend's server-push status stream, flushing each
// chunk as it arrives. Client disconnect cancels the request context, which
// tears down the backend connection.
func SearchStream(c *gin.Context) {
	cfg, err := config.LoadConfig()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load config"})
		return
	}

	url := cfg.Search.BackendURL + "/search/stream/" + c.Param("taskId")
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, url, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build backend request"})
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	attachIdentity(req, c, ResolveIdentity(c))

	resp, err := httpc.Do(req)
	if err != nil {
		log.Warn().Str("task_id", c.Param("taskId")).Err(err).Msg("stream proxy connect failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to connect to backend stream"})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		relayJSON(c, resp)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := c.Writer.Write(buf[:n]); werr != nil {
				return
			}
			c.Writer.Flush()
		}
		if err != nil {
			if err != io.EOF {
				log.Debug().Str("task_id", c.Param("taskId")).Err(err).Msg("stream proxy ended")
			}
			return
		}
	}
}

func proxyBackendGET(c *gin.Context, path string) {
	cfg, err := config.LoadConfig()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load config"})
		return
	}

	ctx, cancel := contextWithTimeout(c, 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.Search.BackendURL+path, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build backend request"})
		return
	}
	attachIdentity(req, c, ResolveIdentity(c))

	resp, err := httpc.Do(req)
	if err != nil {
		log.Warn().Str("path", path).Err(err).Msg("backend request failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "search backend unavailable", "fallback": true})
		return
	}
	defer resp.Body.Close()

	relayJSON(c, resp)
}

// attachIdentity carries the resolved identity's auth context to the backend:
// the bearer token for authenticated callers, the anonymous header otherwise.
func attachIdentity(req *http.Request, c *gin.Context, id models.Identity) {
	if id.IsAuthenticated() {
		if h := c.GetHeader("Authorization"); h != "" {
			req.Header.Set("Authorization", h)
		}
		return
	}
	req.Header.Set(anonymousIDHeader, id.Key)
}

func relayJSON(c *gin.Context, resp *http.Response) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to read backend response"})
		return
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(resp.StatusCode, contentType, body)
}
