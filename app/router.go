// Package app wires shared HTTP routes for the service.
package app

import (
	"time"

	"github.com/night131rd/referensiku.ai-sub000/app/config"
	"github.com/night131rd/referensiku.ai-sub000/auth"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the shared HTTP router.
//
// Search and user-info routes resolve identity optimistically: a valid
// session wins, anything else degrades to the anonymous token. Payment intent
// creation requires a verified session; the webhook authenticates itself via
// its signature and stays outside the middleware entirely.
func NewRouter() (*gin.Engine, error) {
	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Anonymous-ID"},
		ExposeHeaders: []string{"X-Anonymous-ID", "X-RateLimit-Limit-Daily", "X-RateLimit-Remaining-Daily"},
		MaxAge:        12 * time.Hour,
	}))

	router.GET("/health", Health)
	router.POST("/api/payment/notification", PaymentWebhook)

	verifier, err := auth.NewVerifierFromEnv()
	if err != nil && !auth.AuthDisabled() {
		return nil, err
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	limiter := NewRateLimiter(cfg.Search.RatePerSecond, cfg.Search.RateBurst)

	public := router.Group("/")
	public.Use(auth.Middleware(verifier, auth.MiddlewareConfig{Optional: true}))
	public.GET("/user/info", UserInfo)
	public.POST("/search", limiter.Handler(), SubmitSearch)
	public.GET("/search/status/:taskId", SearchStatus)
	public.GET("/search/stream/:taskId", SearchStream)
	public.GET("/answer/:taskId", SearchAnswer)
	public.GET("/bibliography/:taskId", SearchBibliography)

	protected := router.Group("/")
	protected.Use(auth.Middleware(verifier, auth.MiddlewareConfig{
		OnAuthenticated: func(c *gin.Context, claims *auth.Claims) error {
			return EnsureProfile(c.Request.Context(), claims)
		},
	}))
	protected.POST("/api/payment/create", CreatePayment)

	return router, nil
}
