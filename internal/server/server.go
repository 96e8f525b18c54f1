package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fisk-sga/campus-feedback/backend/internal/access"
	"github.com/fisk-sga/campus-feedback/backend/internal/config"
	"github.com/fisk-sga/campus-feedback/backend/internal/handlers"
	"github.com/fisk-sga/campus-feedback/backend/internal/middleware"
)

// HealthChecker reports database health for /health.
type HealthChecker interface {
	Health() map[string]string
}

type Server struct {
	cfg      *config.Config
	db       HealthChecker
	handler  *handlers.Handler
	resolver *access.Resolver
	votes    *middleware.RateLimiter
	comments *middleware.RateLimiter
	log      *slog.Logger
}

func New(cfg *config.Config, db HealthChecker, handler *handlers.Handler, resolver *access.Resolver, clock clockwork.Clock, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		db:       db,
		handler:  handler,
		resolver: resolver,
		votes:    middleware.NewRateLimiter(cfg.VotesPerMinute, clock),
		comments: middleware.NewRateLimiter(cfg.CommentsPerMinute, clock),
		log:      log,
	}
}

// HTTPServer wraps the router in an *http.Server bound to PORT.
func (s *Server) HTTPServer() *http.Server {
	if s.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("0.0.0.0:%s", s.cfg.Port),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.log.Info("server configured", "addr", srv.Addr, "env", s.cfg.AppEnv)
	return srv
}

// RegisterRoutes sets up all application routes
func (s *Server) RegisterRoutes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(s.log), middleware.Metrics())

	origins := s.cfg.AllowedOrigins()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: len(origins) != 1 || origins[0] != "*",
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		stats := s.db.Health()
		status := http.StatusOK
		if stats["status"] != "up" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, stats)
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(middleware.Auth(s.resolver))
	{
		// Public routes; a valid token personalises has_upvoted.
		api.POST("/auth/magic-link", s.handler.Auth.RequestMagicLink)
		api.POST("/auth/verify", s.handler.Auth.Verify)

		api.GET("/posts", s.handler.Post.GetPosts)
		api.GET("/posts/:postId", s.handler.Post.GetPost)
		api.GET("/posts/:postId/comments", s.handler.Comment.GetComments)

		protected := api.Group("")
		protected.Use(middleware.RequireAuth())
		{
			protected.GET("/auth/me", s.handler.Auth.GetMe)
			protected.GET("/users/me/posts", s.handler.User.GetMyPosts)

			protected.POST("/posts", s.handler.Post.CreatePost)

			voteLimit := s.votes.Middleware()
			protected.POST("/posts/:postId/vote", voteLimit, s.handler.Vote.VotePost)
			protected.DELETE("/posts/:postId/vote", voteLimit, s.handler.Vote.UnvotePost)
			protected.POST("/comments/:commentId/vote", voteLimit, s.handler.Vote.VoteComment)
			protected.DELETE("/comments/:commentId/vote", voteLimit, s.handler.Vote.UnvoteComment)

			protected.POST("/posts/:postId/comments", s.comments.Middleware(), s.handler.Comment.CreateComment)

			protected.GET("/notifications", s.handler.Notification.GetNotifications)
			protected.GET("/notifications/unread-count", s.handler.Notification.GetUnreadCount)
			protected.PATCH("/notifications/:id/read", s.handler.Notification.MarkRead)
			protected.POST("/notifications/mark-all-read", s.handler.Notification.MarkAllRead)

			admin := protected.Group("")
			admin.Use(middleware.RequireAdmin())
			{
				admin.PATCH("/posts/:postId/status", s.handler.Post.UpdateStatus)
				admin.POST("/admin/posts/:postId/reconcile", s.handler.Post.Reconcile)
			}
		}
	}

	return r
}
