package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aixtiv/sallyport/internal/common/errorx"
	"github.com/aixtiv/sallyport/internal/storage"
	"github.com/aixtiv/sallyport/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// MCPAutoProvisioner deploys a standard MCP server for a newly created user.
// Implemented by the mcp orchestrator.
type MCPAutoProvisioner interface {
	AutoProvision(ctx context.Context, t *storage.Tenant, user *storage.User, oauthClientID string) (*storage.Deployment, error)
}

// Provisioner creates tenant-scoped users together with their OAuth client
// credentials.
type Provisioner struct {
	store          storage.Store
	mcp            MCPAutoProvisioner
	metrics        *metrics.Metrics
	logger         *zap.Logger
	platformDomain string
}

func NewProvisioner(store storage.Store, mcp MCPAutoProvisioner, m *metrics.Metrics, logger *zap.Logger, platformDomain string) *Provisioner {
	return &Provisioner{
		store:          store,
		mcp:            mcp,
		metrics:        m,
		logger:         logger.Named("identity"),
		platformDomain: platformDomain,
	}
}

// CreateUserInput is the user setup request.
type CreateUserInput struct {
	Email        string   `json:"email"`
	Role         string   `json:"role"`
	FirstName    string   `json:"firstName"`
	LastName     string   `json:"lastName"`
	Department   string   `json:"department"`
	MCPAccess    bool     `json:"mcpAccess"`
	CustomScopes []string `json:"customScopes"`
}

// OAuthCredentials is the one-time credential block returned on creation.
// The plaintext secret is not retrievable afterwards.
type OAuthCredentials struct {
	ClientID         string `json:"clientId"`
	ClientSecret     string `json:"clientSecret"`
	AuthorizationURL string `json:"authorizationUrl"`
	TokenURL         string `json:"tokenUrl"`
}

// MCPClient describes the MCP server auto-provisioned for a user.
type MCPClient struct {
	ClientID string `json:"clientId"`
	Endpoint string `json:"endpoint"`
	Status   string `json:"status"`
}

// CreateUserResult is the user setup response payload.
type CreateUserResult struct {
	User      *storage.User    `json:"user"`
	Tier      string           `json:"tier"`
	OAuth     OAuthCredentials `json:"oauth"`
	MCPClient *MCPClient       `json:"mcpClient"`
}

// CreateUser validates the request against the tenant's tier, derives the
// user's permission and scope sets, and persists the user with its OAuth
// client. The quota check happens inside the store's atomic insert. MCP
// auto-provisioning is best effort: its failure nulls the mcpClient field
// without failing the whole request.
func (p *Provisioner) CreateUser(ctx context.Context, tenantID string, in *CreateUserInput) (*CreateUserResult, error) {
	if in.Email == "" {
		return nil, errorx.ErrValidation.WithMessage("email is required")
	}

	t, err := p.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if t.Status != storage.TenantStatusActive {
		return nil, errorx.ErrTenantNotFound
	}

	role := in.Role
	if role == "" {
		role = DefaultRole
	}

	mcpAllowed := in.MCPAccess && t.MCPEnabled
	user := &storage.User{
		UUID:        uuid.NewString(),
		TenantID:    t.ID,
		Email:       in.Email,
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Department:  in.Department,
		Role:        role,
		Status:      storage.UserStatusActive,
		Scopes:      ScopesFor(t.Tier, in.CustomScopes, mcpAllowed),
		Permissions: PermissionsFor(role, t.Tier),
		MCPAccess:   in.MCPAccess,
		CreatedAt:   time.Now(),
	}

	client, secret, err := p.newClient(user, fmt.Sprintf("sallyport-%s-%s", t.ID, hex32()))
	if err != nil {
		return nil, err
	}

	if err := p.store.CreateUser(ctx, user, client, t.Limits.MaxUsers); err != nil {
		return nil, err
	}
	p.metrics.UserProvisioned(t.ID)
	p.logger.Info("user provisioned",
		zap.String("tenant", t.ID),
		zap.String("user", user.UUID),
		zap.String("role", role),
		zap.Bool("mcp_access", in.MCPAccess))

	result := &CreateUserResult{
		User: user,
		Tier: t.Tier,
		OAuth: OAuthCredentials{
			ClientID:         client.ID,
			ClientSecret:     secret,
			AuthorizationURL: p.authorizationURL(t.ID, client),
			TokenURL:         fmt.Sprintf("https://%s.%s/oauth/token", t.ID, p.platformDomain),
		},
	}

	if mcpAllowed {
		deployment, err := p.mcp.AutoProvision(ctx, t, user, client.ID)
		if err != nil {
			p.logger.Warn("mcp auto-provisioning failed",
				zap.String("tenant", t.ID),
				zap.String("user", user.UUID),
				zap.Error(err))
		} else {
			result.MCPClient = &MCPClient{
				ClientID: fmt.Sprintf("mcp-%s-%s", t.ID, user.UUID),
				Endpoint: deployment.Endpoint,
				Status:   deployment.Status,
			}
		}
	}

	return result, nil
}

// NewAdminIdentity builds the Diamond-role admin user and OAuth client for a
// new tenant. The records are not persisted here; the tenant registry stores
// them atomically with the tenant itself.
func (p *Provisioner) NewAdminIdentity(t *storage.Tenant) (*storage.User, *storage.Client, string, error) {
	admin := &storage.User{
		UUID:        uuid.NewString(),
		TenantID:    t.ID,
		Email:       t.AdminEmail,
		FirstName:   "Admin",
		LastName:    "User",
		Role:        RoleDiamond,
		Status:      storage.UserStatusActive,
		Scopes:      ScopesFor(t.Tier, nil, t.MCPEnabled),
		Permissions: PermissionsFor(RoleDiamond, t.Tier),
		MCPAccess:   t.MCPEnabled,
		CreatedAt:   time.Now(),
	}

	client, secret, err := p.newClient(admin, fmt.Sprintf("sallyport-%s-admin-%s", t.ID, hex32()))
	if err != nil {
		return nil, nil, "", err
	}
	return admin, client, secret, nil
}

func (p *Provisioner) newClient(user *storage.User, clientID string) (*storage.Client, string, error) {
	secret, err := newClientSecret()
	if err != nil {
		return nil, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}

	client := &storage.Client{
		ID:         clientID,
		SecretHash: string(hash),
		UserUUID:   user.UUID,
		TenantID:   user.TenantID,
		RedirectURIs: []string{
			fmt.Sprintf("https://%s.%s/oauth/callback", user.TenantID, p.platformDomain),
			fmt.Sprintf("https://%s/oauth/callback", p.platformDomain),
		},
		Scopes:    user.Scopes,
		CreatedAt: time.Now(),
	}
	return client, secret, nil
}

func (p *Provisioner) authorizationURL(tenantID string, client *storage.Client) string {
	q := url.Values{}
	q.Set("client_id", client.ID)
	q.Set("response_type", "code")
	q.Set("scope", strings.Join(client.Scopes, " "))
	q.Set("redirect_uri", client.RedirectURIs[0])
	return fmt.Sprintf("https://%s.%s/oauth/authorize?%s", tenantID, p.platformDomain, q.Encode())
}

// newClientSecret returns 32 random bytes, base64url encoded.
func newClientSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// hex32 returns a 32 character hex string for client id suffixes.
func hex32() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
