package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"greendrake/marketdesk/internal/api/handlers"
	"greendrake/marketdesk/internal/api/middleware"
	"greendrake/marketdesk/internal/captcha"
	"greendrake/marketdesk/internal/config"
	"greendrake/marketdesk/internal/email"
	"greendrake/marketdesk/internal/presence"
	"greendrake/marketdesk/internal/services"
	"greendrake/marketdesk/internal/storage"
)

// Services bundles what the public API depends on.
type Services struct {
	Listings      services.IListingService
	Moderation    services.IModerationService
	Inquiries     services.IInquiryService
	Notifications services.INotificationService
	Objects       storage.IObjectStorage
	Presence      presence.Room
	Captcha       captcha.ITurnstileVerifier
}

func corsConfig(cfg *config.Config) cors.Config {
	c := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Content-Length", "Accept", "Authorization",
			middleware.HeaderThreadKey, "X-BFP", "X-SPA", "X-C-V", "X-C-T",
		},
		ExposeHeaders: []string{"X-C-T"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.CorsAllowedOrigins) == 0 || (len(cfg.CorsAllowedOrigins) == 1 && cfg.CorsAllowedOrigins[0] == "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.CorsAllowedOrigins
		c.AllowCredentials = true
	}
	return c
}

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, svc Services, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log.Named("http")))
	r.Use(cors.New(corsConfig(cfg)))

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg, log.Named("ratelimit"))
	captchaCheck := middleware.CaptchaMiddleware(cfg, svc.Captcha, log.Named("captcha"))
	optionalAuth := middleware.OptionalAuth(cfg.JwtSecret)
	requireAuth := middleware.RequireAuth(cfg.JwtSecret)

	inquiryHandler := handlers.NewRestInquiryHandler(svc.Inquiries, svc.Objects, log)
	listingHandler := handlers.NewRestListingHandler(svc.Listings, svc.Moderation, svc.Objects, log)
	notificationHandler := handlers.NewRestNotificationHandler(svc.Notifications, log)
	wsHandler := handlers.NewWsHandler(cfg, svc.Presence, svc.Inquiries, log)

	v1 := r.Group("/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		// Public submissions are rate limited; a passed captcha lifts the soft limit.
		limited := v1.Group("/", captchaCheck, rateLimiter.Limit(), optionalAuth)
		{
			limited.POST("/inquiry", inquiryHandler.SubmitInquiry)
			limited.POST("/listing", listingHandler.CreateListing)
		}

		public := v1.Group("/", optionalAuth)
		{
			public.GET("/listing", listingHandler.ListListings)
			public.GET("/listing/:id", listingHandler.GetListingByID)

			public.GET("/thread/:id", inquiryHandler.GetThread)
			public.GET("/thread/:id/messages", inquiryHandler.ListMessages)
			public.POST("/thread/:id/messages", inquiryHandler.PostMessage)
			public.PATCH("/thread/:id/read", inquiryHandler.MarkThreadRead)
			public.POST("/thread/:id/attachment", inquiryHandler.PresignAttachment)
			public.PATCH("/message/:id/read", inquiryHandler.MarkMessageRead)
			public.PATCH("/message/:id/delete", inquiryHandler.DeleteMessage)

			public.GET("/ws", wsHandler.Handle)
		}

		authRequired := v1.Group("/", requireAuth)
		{
			authRequired.POST("/listing/:id/image", listingHandler.PresignImage)
			authRequired.GET("/inbox", inquiryHandler.ListInbox)
			authRequired.GET("/notifications", notificationHandler.List)
			authRequired.PATCH("/notifications/:id/dismiss", notificationHandler.Dismiss)
		}

		adminRequired := v1.Group("/", requireAuth, middleware.AdminMiddleware())
		{
			adminRequired.POST("/listing/:id/approve", listingHandler.Approve)
			adminRequired.POST("/listing/:id/reject", listingHandler.Reject)
			adminRequired.DELETE("/listing/:id", listingHandler.Delete)
			adminRequired.GET("/admin/listings", listingHandler.AdminListings)
			adminRequired.GET("/admin/stats", listingHandler.AdminStats)
		}
	}

	return r
}

// SetupServiceRouter configures the internal service API. getTestEmail reads
// the messages RedisSender stores in mock mode.
func SetupServiceRouter(rdb *redis.Client, shutdownChan chan<- struct{}, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log.Named("service")))

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			log.Info("Received shutdown command via service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
			default:
				log.Warn("Shutdown channel already signaled")
			}
		case "getTestEmail":
			var args []string
			if err := json.Unmarshal(req.Arguments, &args); err != nil || len(args) != 2 {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [kind, email]"})
				return
			}
			redisKey := email.MockEmailKey(args[1], args[0])

			ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
			defer cancel()

			var (
				emailJSON string
				err       error
			)
			for i := 0; i < 10; i++ {
				emailJSON, err = rdb.GetDel(ctx, redisKey).Result()
				if !errors.Is(err, redis.Nil) {
					break
				}
				time.Sleep(200 * time.Millisecond)
			}
			if errors.Is(err, redis.Nil) {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Test email not found for key %s", redisKey)})
				return
			}
			if err != nil {
				log.Error("Service API: failed to read test email", zap.String("key", redisKey), zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Redis error"})
				return
			}

			var emailData map[string]interface{}
			if err := json.Unmarshal([]byte(emailJSON), &emailData); err != nil {
				log.Error("Service API: stored test email is not JSON", zap.String("key", redisKey), zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to parse stored email data"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "data": emailData})

		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}
