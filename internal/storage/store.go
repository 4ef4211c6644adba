package storage

import (
	"context"
	"time"
)

// Store defines the credential store shared by all request handlers. Every
// lookup is scoped by tenant id; a record written under one tenant is
// unreachable from any other.
type Store interface {
	// CreateTenant persists a tenant together with its admin user and the
	// admin's OAuth client in a single atomic operation.
	CreateTenant(ctx context.Context, tenant *Tenant, admin *User, adminClient *Client) error
	GetTenant(ctx context.Context, tenantID string) (*Tenant, error)

	// CreateUser persists a user and its OAuth client. The active-user count
	// check against maxUsers happens inside the same atomic operation so two
	// concurrent signups cannot both pass a stale count. maxUsers < 0 means
	// unlimited.
	CreateUser(ctx context.Context, user *User, client *Client, maxUsers int) error
	GetUser(ctx context.Context, tenantID, userID string) (*User, error)
	GetUserByEmail(ctx context.Context, tenantID, email string) (*User, error)
	CountActiveUsers(ctx context.Context, tenantID string) (int, error)

	GetClient(ctx context.Context, tenantID, clientID string) (*Client, error)
	ListClientsByUser(ctx context.Context, tenantID, userUUID string) ([]*Client, error)

	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error
	// ConsumeAuthorizationCode returns the code and deletes it in one atomic
	// step; a second consume of the same code fails with invalid_grant.
	ConsumeAuthorizationCode(ctx context.Context, tenantID, code string) (*AuthorizationCode, error)

	// SaveTokens persists an access/refresh token pair atomically.
	SaveTokens(ctx context.Context, access *AccessToken, refresh *RefreshToken) error
	GetAccessToken(ctx context.Context, tenantID, token string) (*AccessToken, error)

	// SaveDeployment upserts on (tenantID, name); a redeploy supersedes the
	// prior record.
	SaveDeployment(ctx context.Context, deployment *Deployment) error
	UpdateDeploymentStatus(ctx context.Context, tenantID, deploymentID, status, reason string) error
	ListDeployments(ctx context.Context, tenantID string) ([]*Deployment, error)
	// ListStaleDeployments returns deployments across all tenants still in
	// pending/deploying created before the cutoff.
	ListStaleDeployments(ctx context.Context, cutoff time.Time) ([]*Deployment, error)
	CountDeployments(ctx context.Context, tenantID string) (int, error)

	Close() error
}

// TierLimits is the effective quota set computed from a tenant's tier.
type TierLimits struct {
	MaxUsers          int      `json:"maxUsers"`
	MaxMCPServers     int      `json:"maxMCPServers"`
	MaxRequestsPerDay int      `json:"maxRequestsPerDay"`
	Features          []string `json:"features" gorm:"serializer:json"`
}

// Tenant statuses
const (
	TenantStatusActive    = "active"
	TenantStatusSuspended = "suspended"
)

// Tenant represents an isolated organizational namespace
type Tenant struct {
	ID         string     `json:"tenantId" gorm:"column:tenant_id;primaryKey"`
	UUID       string     `json:"uuid" gorm:"uniqueIndex"`
	Name       string     `json:"name"`
	Tier       string     `json:"tier"`
	Domain     string     `json:"domain,omitempty"`
	AdminEmail string     `json:"adminEmail"`
	MCPEnabled bool       `json:"mcpEnabled"`
	Status     string     `json:"status"`
	Limits     TierLimits `json:"limits" gorm:"serializer:json"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// User statuses
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// Permissions are derived from (role, tier) at creation time and never set
// independently.
type Permissions struct {
	SecretsAllowed       bool `json:"secretsAllowed"`
	OAuthAllowed         bool `json:"oauthAllowed"`
	ConfigAllowed        bool `json:"configAllowed"`
	AdminAccess          bool `json:"adminAccess"`
	ExperimentalFeatures bool `json:"experimentalFeatures"`
}

// User represents a tenant-scoped identity. Email is unique within a tenant,
// not globally.
type User struct {
	UUID        string      `json:"uuid" gorm:"primaryKey"`
	TenantID    string      `json:"tenantId" gorm:"uniqueIndex:idx_users_tenant_email"`
	Email       string      `json:"email" gorm:"uniqueIndex:idx_users_tenant_email"`
	FirstName   string      `json:"firstName,omitempty"`
	LastName    string      `json:"lastName,omitempty"`
	Department  string      `json:"department,omitempty"`
	Role        string      `json:"role"`
	Status      string      `json:"status"`
	Scopes      []string    `json:"scopes" gorm:"serializer:json"`
	Permissions Permissions `json:"permissions" gorm:"serializer:json"`
	MCPAccess   bool        `json:"mcpAccess"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// Client is a user's OAuth2 identity. The secret is stored as a bcrypt hash;
// the plaintext is returned exactly once at creation. Client records never
// appear in API responses directly, so the hash may be serialized.
type Client struct {
	ID           string    `json:"clientId" gorm:"column:client_id;primaryKey"`
	SecretHash   string    `json:"secretHash"`
	UserUUID     string    `json:"userUuid"`
	TenantID     string    `json:"tenantId" gorm:"index"`
	RedirectURIs []string  `json:"redirectUris" gorm:"serializer:json"`
	Scopes       []string  `json:"scopes" gorm:"serializer:json"`
	CreatedAt    time.Time `json:"createdAt"`
}

// AuthorizationCode is a short-lived single-use credential
type AuthorizationCode struct {
	Code        string    `json:"code" gorm:"primaryKey"`
	ClientID    string    `json:"clientId"`
	UserUUID    string    `json:"userUuid"`
	TenantID    string    `json:"tenantId" gorm:"index"`
	RedirectURI string    `json:"redirectUri"`
	Scope       string    `json:"scope"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// AccessToken is an opaque bearer token with a 1 hour lifetime
type AccessToken struct {
	Token     string    `json:"token" gorm:"primaryKey"`
	UserUUID  string    `json:"userUuid"`
	ClientID  string    `json:"clientId"`
	TenantID  string    `json:"tenantId" gorm:"index"`
	Scope     string    `json:"scope"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// RefreshToken is an opaque token with a 30 day lifetime
type RefreshToken struct {
	Token     string    `json:"token" gorm:"primaryKey"`
	UserUUID  string    `json:"userUuid"`
	ClientID  string    `json:"clientId"`
	TenantID  string    `json:"tenantId" gorm:"index"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Deployment statuses
const (
	DeploymentStatusPending   = "pending"
	DeploymentStatusDeploying = "deploying"
	DeploymentStatusActive    = "active"
	DeploymentStatusFailed    = "failed"
)

// Deployment tracks one MCP server instance provisioned for a tenant/user pair
type Deployment struct {
	ID        string    `json:"deploymentId" gorm:"primaryKey"`
	TenantID  string    `json:"tenantId" gorm:"uniqueIndex:idx_deployments_tenant_name"`
	UserUUID  string    `json:"userUuid"`
	Name      string    `json:"serverName" gorm:"uniqueIndex:idx_deployments_tenant_name"`
	Config    string    `json:"config"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	Endpoint  string    `json:"endpoint"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (d *Deployment) inFlight() bool {
	return d.Status == DeploymentStatusPending || d.Status == DeploymentStatusDeploying
}
