package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aixtiv/sallyport/internal/common/config"
	"github.com/aixtiv/sallyport/internal/identity"
	"github.com/aixtiv/sallyport/internal/mcp"
	"github.com/aixtiv/sallyport/internal/oauth"
	"github.com/aixtiv/sallyport/internal/tenant"
	"github.com/aixtiv/sallyport/pkg/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server is the HTTP surface of the gateway: tenant/user provisioning, the
// OAuth2 endpoints, and the MCP deployment API.
type Server struct {
	cfg          *config.GatewayConfig
	logger       *zap.Logger
	router       *gin.Engine
	httpServer   *http.Server
	metrics      *metrics.Metrics
	tenants      *tenant.Registry
	users        *identity.Provisioner
	oauth        *oauth.Engine
	orchestrator *mcp.Orchestrator
}

func NewServer(
	cfg *config.GatewayConfig,
	logger *zap.Logger,
	m *metrics.Metrics,
	tenants *tenant.Registry,
	users *identity.Provisioner,
	engine *oauth.Engine,
	orchestrator *mcp.Orchestrator,
) *Server {
	s := &Server{
		cfg:          cfg,
		logger:       logger.Named("server"),
		router:       gin.New(),
		metrics:      m,
		tenants:      tenants,
		users:        users,
		oauth:        engine,
		orchestrator: orchestrator,
	}
	s.registerMiddleware()
	s.registerRoutes()
	return s
}

func (s *Server) registerMiddleware() {
	s.router.Use(
		s.recoveryMiddleware(),
		s.loggerMiddleware(),
		s.corsMiddleware(),
		s.metrics.GinMiddleware(),
		s.tenantMiddleware(),
	)
}

func (s *Server) registerRoutes() {
	s.router.POST("/setup-tenant", s.handleTenantSetup)
	s.router.POST("/setup-user", s.handleUserSetup)
	s.router.POST("/setup-mcp-client", s.handleMCPClientSetup)

	s.router.GET("/oauth/authorize", s.handleAuthorize)
	s.router.POST("/oauth/token", s.handleToken)
	s.router.GET("/oauth/callback", s.handleCallback)
	s.router.GET("/oauth/userinfo", s.handleUserInfo)

	s.router.POST("/mcp/deploy", s.handleMCPDeploy)
	s.router.GET("/mcp/status", s.handleMCPStatus)

	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", s.metrics.Handler())
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	s.logger.Info("starting HTTP server", zap.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
