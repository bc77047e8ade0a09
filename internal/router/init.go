package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/oksasatya/pixsearch-identity/internal/container"
	handlers "github.com/oksasatya/pixsearch-identity/internal/interface/http"
	"github.com/oksasatya/pixsearch-identity/internal/interface/middleware"
	"github.com/oksasatya/pixsearch-identity/internal/router/modules"
	"github.com/oksasatya/pixsearch-identity/pkg/helpers"
)

// NewEngine builds the gin engine with global middleware and every module mounted.
func NewEngine(c *container.Container) *gin.Engine {
	cfg := c.Config

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxyList()); err != nil {
		helpers.LogWarn(c.Logger, "invalid TRUSTED_PROXIES, trusting none", err, nil)
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID(), middleware.RealIP())
	if cfg.MetricsEnabled {
		r.Use(c.Metrics.Middleware())
	}
	if cfg.HTTPLogEnabled {
		r.Use(middleware.AccessLog(c.Logger))
	}
	if origins := cfg.CORSOrigins(); len(origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
			ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	reg := NewRegistry(r)
	InitModules(reg, c)
	reg.RegisterAll()
	return r
}

// InitModules builds the handlers from the container and registers their modules.
func InitModules(r *Registry, c *container.Container) {
	cfg := c.Config

	authHandler := handlers.NewAuthHandler(c.Auth, c.Logger, cfg.CookieDomain, cfg.CookieSecure)
	userHandler := handlers.NewUserHandler(c.Users, c.Logger)

	r.Add(modules.NewAuthModule(authHandler))
	r.Add(modules.NewUserModule(userHandler, c.Auth))

	var gatherer prometheus.Gatherer
	if cfg.MetricsEnabled {
		gatherer = c.Registry
	}
	r.AddRoot(modules.NewOpsModule(c.Ping, gatherer))
}
