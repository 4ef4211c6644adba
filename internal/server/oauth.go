package server

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/aixtiv/sallyport/internal/common/errorx"
	"github.com/aixtiv/sallyport/internal/oauth"

	"github.com/gin-gonic/gin"
)

// oauthError renders an RFC 6749 error response.
func (s *Server) oauthError(c *gin.Context, err error) {
	oauthErr := errorx.AsOAuth2Error(err)
	c.JSON(oauthErr.HTTPStatus, oauthErr)
}

func (s *Server) handleAuthorize(c *gin.Context) {
	req := &oauth.AuthorizeRequest{
		ClientID:     c.Query("client_id"),
		ResponseType: c.Query("response_type"),
		Scope:        c.Query("scope"),
		RedirectURI:  c.Query("redirect_uri"),
		State:        c.Query("state"),
	}

	redirect, err := s.oauth.Authorize(c.Request.Context(), tenantFrom(c), req)
	if err != nil {
		s.oauthError(c, err)
		return
	}
	c.Redirect(http.StatusFound, redirect)
}

func (s *Server) handleToken(c *gin.Context) {
	req := &oauth.TokenRequest{
		GrantType:    c.PostForm("grant_type"),
		Code:         c.PostForm("code"),
		ClientID:     c.PostForm("client_id"),
		ClientSecret: c.PostForm("client_secret"),
	}

	resp, err := s.oauth.Token(c.Request.Context(), tenantFrom(c), req)
	if err != nil {
		s.oauthError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleUserInfo(c *gin.Context) {
	auth := c.GetHeader("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		s.oauthError(c, errorx.ErrInvalidToken.WithDescription("missing bearer token"))
		return
	}

	claims, err := s.oauth.UserInfo(c.Request.Context(), tenantFrom(c), strings.TrimPrefix(auth, "Bearer "))
	if err != nil {
		s.oauthError(c, err)
		return
	}
	c.JSON(http.StatusOK, claims)
}

var callbackTemplate = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head>
  <title>{{.TenantName}} - Sally Port Authentication Success</title>
  <style>
    body { font-family: Arial, sans-serif; max-width: 600px; margin: 50px auto; padding: 20px; }
    .success { color: #28a745; }
    .tenant { color: #6c757d; font-size: 0.9em; }
  </style>
</head>
<body>
  <div class="tenant">Tenant: {{.TenantName}} ({{.TenantID}})</div>
  <h1 class="success">Authentication Successful</h1>
  <p>You have successfully authenticated with Sally Port for {{.TenantName}}.</p>
  <p>Authorization Code: <code>{{.Code}}</code></p>
  <p>You can now access MCP resources and tenant-specific services.</p>
</body>
</html>
`))

// handleCallback renders the human-readable success page with tenant
// branding. It does not consume the code.
func (s *Server) handleCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.String(http.StatusBadRequest, "Authorization failed")
		return
	}

	tenantID := tenantFrom(c)
	tenantName := tenantID
	if t, err := s.tenants.Get(c.Request.Context(), tenantID); err == nil {
		tenantName = t.Name
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	_ = callbackTemplate.Execute(c.Writer, gin.H{
		"TenantName": tenantName,
		"TenantID":   tenantID,
		"Code":       code,
	})
}
