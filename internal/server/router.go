package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"fitsbook-server/internal/config"
	"fitsbook-server/internal/handler"
	"fitsbook-server/internal/metrics"
	"fitsbook-server/internal/middleware"
	"fitsbook-server/internal/socketio"
	"fitsbook-server/internal/store"
)

type Deps struct {
	Store    *store.Store
	Config   config.Config
	Socket   *socketio.Server
	Metrics  *metrics.Metrics
	Deployer handler.Deployer
	Version  string
}

// NewRouter wires every route. The returned func releases the background
// work the router owns and must be called once the router is retired.
func NewRouter(deps Deps) (*gin.Engine, func()) {
	cfg := deps.Config
	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}
	socket := deps.Socket
	if socket == nil {
		socket = socketio.NewServer(socketio.Deps{Metrics: m})
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(m.Middleware())
	r.Use(corsMiddleware(cfg.CORSOrigins))

	r.GET("/health", handler.Health)
	r.GET("/metrics", gin.WrapH(m.Handler()))
	r.GET("/socket.io/", gin.WrapH(socket))

	api := r.Group("/api")
	api.GET("/ping", handler.Ping)

	versionHandler := &handler.VersionHandler{
		Version:       deps.Version,
		TargetSchema:  store.SchemaVersion,
		StoredVersion: func() (int, error) { return store.ReadVersionFile(cfg.SchemaVersionFile) },
	}
	api.GET("/version", versionHandler.Check)

	tokenLimiter := middleware.NewRateLimiter(10, time.Minute)
	onReject := func(route string) { m.RateLimited.WithLabelValues(route).Inc() }
	tokenHandler := handler.NewTokenHandler(deps.Store.Auth, m)
	api.POST("/token", middleware.RateLimitMiddleware(tokenLimiter, onReject), tokenHandler.Issue)

	requireToken := middleware.Optional(cfg.AuthRequired, middleware.RequireToken(deps.Store.Auth))
	models := handler.NewModelHandler(deps.Store.Models, socket, m)

	api.GET("/models", models.List)
	api.GET("/model/:id", models.Get)
	api.POST("/model", requireToken, models.Create)
	api.DELETE("/model/:id", requireToken, models.Delete)
	api.PATCH("/model/:id", requireToken, models.Patch)

	api.GET("/training/:id/stop", models.StopFlag)
	api.POST("/training/:id/end", requireToken, models.EndTraining)
	api.POST("/training/:id/stop", requireToken, models.StopTraining)

	api.GET("/history/:id", models.History)
	api.POST("/history/:id", requireToken, models.AppendHistory)

	webhook := handler.NewWebhookHandler(cfg.GithubSecret, deps.Deployer, m)
	r.POST("/git", webhook.Handle)

	if cfg.StaticDir != "" {
		r.NoRoute(gin.WrapH(http.FileServer(http.Dir(cfg.StaticDir))))
	}

	return r, tokenLimiter.Close
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middleware.UserIDHeader},
		ExposeHeaders: []string{"Content-Length", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || contains(origins, "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return cors.New(c)
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
