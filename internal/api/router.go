// Package api serves the attendance backend over HTTP: rosters, section
// day listings, record/status writes and dashboard summaries.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/httpmiddleware"
	"qrattend/internal/summary"
)

type Config struct {
	JWTIssuer       string
	JWTSigningKey   string
	AdminKey        string
	AccessTTL       time.Duration
	RateLimitPerMin int
}

// Deps are the collaborators the handlers call. Checks are reported by
// /healthz; any failing check turns the response into a 503.
type Deps struct {
	Service   *attendance.Service
	Summaries summary.Store
	Checks    map[string]func(context.Context) bool
	Logger    *slog.Logger
}

type server struct {
	cfg  Config
	svc  *attendance.Service
	sums summary.Store
	deps Deps
	log  *slog.Logger
}

// NewRouter builds the gin engine with every route and middleware.
func NewRouter(cfg Config, deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sums := deps.Summaries
	if sums == nil {
		sums = summary.NewMemoryStore()
	}
	s := &server{cfg: cfg, svc: deps.Service, sums: sums, deps: deps, log: logger}

	limiter := httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	limiter.KeyFunc = func(c *gin.Context) string {
		if claims, ok := auth.ClaimsFrom(c); ok {
			return "sub:" + claims.Subject
		}
		return ""
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.health)

	admin := r.Group("/v1", limiter.GinMiddleware(), s.requireAdmin)
	admin.POST("/instructors/token", s.issueToken)
	admin.POST("/sections/roster", s.importRoster)

	data := r.Group("/", auth.Bearer(cfg.JWTSigningKey, cfg.JWTIssuer, auth.RoleInstructor, auth.RoleScanner), limiter.GinMiddleware())
	data.GET("/sections/:id/students", s.roster)
	data.GET("/sections/:id/summary", s.summary)
	data.GET("/attendance/section/:id", s.sectionAttendance)
	data.POST("/attendance/record", s.record)
	data.POST("/attendance/status", s.setStatus)

	return r
}

func (s *server) health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range s.deps.Checks {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// requireAdmin guards provisioning routes with the static admin key. With
// no key configured the routes are disabled.
func (s *server) requireAdmin(c *gin.Context) {
	if s.cfg.AdminKey == "" || c.GetHeader("X-Admin-Key") != s.cfg.AdminKey {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin key required"})
		return
	}
	c.Next()
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key"},
		MaxAge:          24 * time.Hour,
	})
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		// HSTS only in release builds.
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
