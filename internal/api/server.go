// Package api exposes the gateway's HTTP surface: the OpenAI-compatible
// completion endpoints, the model catalog, and the administrative channel
// for managing the credential pool.
package api

import (
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gagmm/claude-code-to-openai/internal/config"
	"github.com/gagmm/claude-code-to-openai/internal/credential"
	"github.com/gagmm/claude-code-to-openai/internal/logging"
	"github.com/gagmm/claude-code-to-openai/internal/refresh"
	"github.com/gagmm/claude-code-to-openai/internal/upstream"
)

// Version identifies the gateway build in /debug/version.
const Version = "3.0"

// Server wires the handlers to their collaborators. The config pointer is
// swapped atomically on hot reload; handlers read it per request.
type Server struct {
	cfg       atomic.Pointer[config.Config]
	manager   *credential.Manager
	refresher *refresh.Refresher
	sweeper   *refresh.Sweeper
	client    *upstream.Client
}

// NewServer builds the server.
func NewServer(cfg *config.Config, manager *credential.Manager, refresher *refresh.Refresher, sweeper *refresh.Sweeper, client *upstream.Client) *Server {
	s := &Server{
		manager:   manager,
		refresher: refresher,
		sweeper:   sweeper,
		client:    client,
	}
	s.cfg.Store(cfg)
	return s
}

// Config returns the current configuration snapshot.
func (s *Server) Config() *config.Config { return s.cfg.Load() }

// UpdateConfig swaps the configuration; in-flight requests keep their
// snapshot.
func (s *Server) UpdateConfig(cfg *config.Config) { s.cfg.Store(cfg) }

// Engine builds the Gin engine with all routes and middleware attached.
func (s *Server) Engine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(logging.GinLogrusRecovery())
	engine.Use(logging.GinLogrusLogger())
	engine.Use(corsMiddleware())

	v1 := engine.Group("/v1", s.requireAPIKey())
	v1.POST("/chat/completions", s.handleChatCompletions)
	v1.GET("/models", s.handleModels)

	admin := engine.Group("/admin", s.requireAdminKey())
	admin.GET("/status", s.handleAdminStatus)
	admin.GET("/stats", s.handleAdminStats)
	admin.POST("/refresh-all", s.handleAdminRefreshAll)
	admin.POST("/keys", s.handleAdminAddKey)
	admin.DELETE("/keys/:label", s.handleAdminRemoveKey)
	admin.POST("/keys/:label/enable", s.handleAdminToggleKey(true))
	admin.POST("/keys/:label/disable", s.handleAdminToggleKey(false))
	admin.POST("/keys/:label/refresh", s.handleAdminRefreshKey)
	admin.POST("/keys/:label/rename", s.handleAdminRenameKey)

	engine.GET("/debug/version", s.handleVersion)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return engine
}
