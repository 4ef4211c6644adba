package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/aixtiv/sallyport/internal/common/errorx"
	"github.com/aixtiv/sallyport/internal/identity"
	"github.com/aixtiv/sallyport/internal/mcp"
	"github.com/aixtiv/sallyport/internal/tenant"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// apiError renders an error on the provisioning surface. Unknown errors are
// logged and reported as system_error.
func (s *Server) apiError(c *gin.Context, err error) {
	apiErr := errorx.AsAPIError(err)
	if apiErr == errorx.ErrSystem {
		s.logger.Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.String("tenant", tenantFrom(c)),
			zap.Error(err))
	}
	c.JSON(apiErr.HTTPStatus, apiErr)
}

func (s *Server) handleTenantSetup(c *gin.Context) {
	var in tenant.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.apiError(c, errorx.ErrValidation.WithMessage("invalid request body: %s", err.Error()))
		return
	}

	result, err := s.tenants.Create(c.Request.Context(), &in)
	if err != nil {
		s.apiError(c, err)
		return
	}

	var mcpEndpoint string
	if result.Tenant.MCPEnabled {
		mcpEndpoint = fmt.Sprintf("https://%s.mcp.%s", result.Tenant.ID, s.cfg.Server.PlatformDomain)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"tenant":  result.Tenant,
		"adminUser": gin.H{
			"user": result.AdminUser,
			"oauth": gin.H{
				"clientId":     result.AdminClientID,
				"clientSecret": result.AdminClientSecret,
			},
		},
		"mcpEndpoint":    mcpEndpoint,
		"setupCompleted": time.Now().UTC(),
	})
}

func (s *Server) handleUserSetup(c *gin.Context) {
	var in identity.CreateUserInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.apiError(c, errorx.ErrValidation.WithMessage("invalid request body: %s", err.Error()))
		return
	}

	result, err := s.users.CreateUser(c.Request.Context(), tenantFrom(c), &in)
	if err != nil {
		s.apiError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"tenant":         tenantFrom(c),
		"user":           result,
		"setupCompleted": time.Now().UTC(),
	})
}

func (s *Server) handleMCPClientSetup(c *gin.Context) {
	var in mcp.ProvisionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.apiError(c, errorx.ErrValidation.WithMessage("invalid request body: %s", err.Error()))
		return
	}

	result, err := s.orchestrator.ProvisionServer(c.Request.Context(), tenantFrom(c), &in)
	if err != nil {
		s.apiError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"deployment": result.Deployment,
		"endpoints":  result.Endpoints,
	})
}

func (s *Server) handleMCPDeploy(c *gin.Context) {
	var in mcp.DeployInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.apiError(c, errorx.ErrValidation.WithMessage("invalid request body: %s", err.Error()))
		return
	}

	deployment, err := s.orchestrator.Deploy(c.Request.Context(), tenantFrom(c), &in)
	if err != nil {
		s.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, deployment)
}

func (s *Server) handleMCPStatus(c *gin.Context) {
	result, err := s.orchestrator.Status(c.Request.Context(), tenantFrom(c))
	if err != nil {
		s.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"tenant":    tenantFrom(c),
		"timestamp": time.Now().UTC(),
	})
}
