package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/aixtiv/sallyport/internal/common/errorx"
	"github.com/aixtiv/sallyport/internal/storage"
	"github.com/aixtiv/sallyport/pkg/metrics"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	codeTTL         = 10 * time.Minute
	accessTokenTTL  = time.Hour
	refreshTokenTTL = 30 * 24 * time.Hour
)

// Engine implements the authorization-code grant with tenant isolation.
// Clients, codes and tokens minted under one tenant are invisible to every
// other tenant.
type Engine struct {
	store   storage.Store
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewEngine(store storage.Store, m *metrics.Metrics, logger *zap.Logger) *Engine {
	return &Engine{
		store:   store,
		metrics: m,
		logger:  logger.Named("oauth"),
	}
}

// AuthorizeRequest is the parsed /oauth/authorize query.
type AuthorizeRequest struct {
	ClientID     string
	ResponseType string
	Scope        string
	RedirectURI  string
	State        string
}

// Authorize validates the request and issues a single-use authorization code
// bound to the client's user. Consent is auto-approved. Returns the redirect
// URL carrying the code.
func (e *Engine) Authorize(ctx context.Context, tenantID string, req *AuthorizeRequest) (string, error) {
	if req.ClientID == "" || req.ResponseType != "code" {
		return "", errorx.ErrInvalidRequest.WithDescription("client_id and response_type=code are required")
	}

	client, err := e.store.GetClient(ctx, tenantID, req.ClientID)
	if err != nil {
		// 401 invalid_client is reserved for failed authentication on the
		// token endpoint; an unknown client_id here is a malformed request.
		if errors.Is(err, errorx.ErrInvalidClient) {
			return "", errorx.ErrInvalidRequest.WithDescription("unknown client for tenant")
		}
		return "", err
	}
	if req.RedirectURI == "" || !isValidRedirectURI(req.RedirectURI, client.RedirectURIs) {
		return "", errorx.ErrInvalidRedirectURI
	}

	code, err := newOpaqueToken()
	if err != nil {
		return "", err
	}
	authCode := &storage.AuthorizationCode{
		Code:        code,
		ClientID:    client.ID,
		UserUUID:    client.UserUUID,
		TenantID:    tenantID,
		RedirectURI: req.RedirectURI,
		Scope:       req.Scope,
		ExpiresAt:   time.Now().Add(codeTTL),
	}
	if err := e.store.SaveAuthorizationCode(ctx, authCode); err != nil {
		return "", err
	}

	redirect, err := url.Parse(req.RedirectURI)
	if err != nil {
		return "", errorx.ErrInvalidRedirectURI
	}
	q := redirect.Query()
	q.Set("code", code)
	if req.State != "" {
		q.Set("state", req.State)
	}
	redirect.RawQuery = q.Encode()

	e.logger.Debug("authorization code issued",
		zap.String("tenant", tenantID),
		zap.String("client", client.ID))
	return redirect.String(), nil
}

// TokenRequest is the parsed /oauth/token form body.
type TokenRequest struct {
	GrantType    string
	Code         string
	ClientID     string
	ClientSecret string
}

// TokenResponse is the RFC 6749 token payload, extended with the tenant id.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	Tenant       string `json:"tenant"`
}

// Token exchanges an authorization code for an access/refresh token pair.
// The code is consumed atomically, so replaying it fails with invalid_grant
// even under concurrent exchange.
func (e *Engine) Token(ctx context.Context, tenantID string, req *TokenRequest) (*TokenResponse, error) {
	if req.GrantType != "authorization_code" {
		if req.GrantType == "" {
			return nil, errorx.ErrInvalidRequest.WithDescription("grant_type is required")
		}
		return nil, errorx.ErrUnsupportedGrantType
	}
	if req.Code == "" || req.ClientID == "" || req.ClientSecret == "" {
		return nil, errorx.ErrInvalidRequest.WithDescription("code, client_id and client_secret are required")
	}

	client, err := e.store.GetClient(ctx, tenantID, req.ClientID)
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(req.ClientSecret)) != nil {
		return nil, errorx.ErrInvalidClient
	}

	authCode, err := e.store.ConsumeAuthorizationCode(ctx, tenantID, req.Code)
	if err != nil {
		return nil, err
	}
	if authCode.ClientID != client.ID {
		return nil, errorx.ErrInvalidGrant
	}

	user, err := e.store.GetUser(ctx, tenantID, authCode.UserUUID)
	if err != nil {
		return nil, errorx.ErrInvalidGrant
	}

	accessToken, err := newOpaqueToken()
	if err != nil {
		return nil, err
	}
	refreshToken, err := newOpaqueToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	access := &storage.AccessToken{
		Token:     accessToken,
		UserUUID:  user.UUID,
		ClientID:  client.ID,
		TenantID:  tenantID,
		Scope:     authCode.Scope,
		ExpiresAt: now.Add(accessTokenTTL),
	}
	refresh := &storage.RefreshToken{
		Token:     refreshToken,
		UserUUID:  user.UUID,
		ClientID:  client.ID,
		TenantID:  tenantID,
		ExpiresAt: now.Add(refreshTokenTTL),
	}
	if err := e.store.SaveTokens(ctx, access, refresh); err != nil {
		return nil, err
	}
	e.metrics.TokenIssued(tenantID)
	e.logger.Info("tokens issued",
		zap.String("tenant", tenantID),
		zap.String("client", client.ID),
		zap.String("user", user.UUID))

	return &TokenResponse{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(accessTokenTTL.Seconds()),
		RefreshToken: refreshToken,
		Scope:        authCode.Scope,
		Tenant:       tenantID,
	}, nil
}

// UserInfoClaims is the OIDC userinfo payload.
type UserInfoClaims struct {
	Sub        string   `json:"sub"`
	Email      string   `json:"email"`
	GivenName  string   `json:"given_name,omitempty"`
	FamilyName string   `json:"family_name,omitempty"`
	Department string   `json:"department,omitempty"`
	Roles      []string `json:"roles"`
	Tenant     string   `json:"tenant"`
	Status     string   `json:"status"`
	IssuedAt   int64    `json:"iat"`
}

// UserInfo resolves a bearer token to its owning user's claims. Token expiry
// is enforced by the store lookup.
func (e *Engine) UserInfo(ctx context.Context, tenantID, bearer string) (*UserInfoClaims, error) {
	token, err := e.store.GetAccessToken(ctx, tenantID, bearer)
	if err != nil {
		return nil, err
	}

	user, err := e.store.GetUser(ctx, tenantID, token.UserUUID)
	if err != nil {
		return nil, errorx.ErrInvalidToken
	}

	return &UserInfoClaims{
		Sub:        user.UUID,
		Email:      user.Email,
		GivenName:  user.FirstName,
		FamilyName: user.LastName,
		Department: user.Department,
		Roles:      []string{user.Role},
		Tenant:     user.TenantID,
		Status:     user.Status,
		IssuedAt:   user.CreatedAt.Unix(),
	}, nil
}

// isValidRedirectURI reports whether uri matches one of the registered URIs
// by prefix.
func isValidRedirectURI(uri string, registered []string) bool {
	for _, r := range registered {
		if strings.HasPrefix(uri, r) {
			return true
		}
	}
	return false
}

// newOpaqueToken returns 32 random bytes, base64url encoded. Used for codes,
// access tokens and refresh tokens alike.
func newOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
