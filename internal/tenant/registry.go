package tenant

import (
	"context"
	"time"

	"github.com/aixtiv/sallyport/internal/common/errorx"
	"github.com/aixtiv/sallyport/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AdminIdentityFactory builds the admin user and its OAuth client for a new
// tenant. Implemented by the identity provisioner; declared here so the
// registry does not depend on it.
type AdminIdentityFactory interface {
	// NewAdminIdentity returns the admin user, its client record and the
	// plaintext client secret.
	NewAdminIdentity(t *storage.Tenant) (*storage.User, *storage.Client, string, error)
}

// Registry manages tenant records and their tier-derived quotas.
type Registry struct {
	store  storage.Store
	admins AdminIdentityFactory
	logger *zap.Logger
}

func NewRegistry(store storage.Store, admins AdminIdentityFactory, logger *zap.Logger) *Registry {
	return &Registry{
		store:  store,
		admins: admins,
		logger: logger.Named("tenant"),
	}
}

// CreateInput is the tenant setup request.
type CreateInput struct {
	TenantID   string `json:"tenantId"`
	TenantName string `json:"tenantName"`
	Tier       string `json:"tier"`
	Domain     string `json:"domain"`
	AdminEmail string `json:"adminEmail"`
	MCPEnabled *bool  `json:"mcpEnabled"`
}

// CreateResult bundles the persisted tenant with its admin credentials. The
// admin client secret appears here and nowhere else.
type CreateResult struct {
	Tenant            *storage.Tenant `json:"tenant"`
	AdminUser         *storage.User   `json:"adminUser"`
	AdminClientID     string          `json:"adminClientId"`
	AdminClientSecret string          `json:"adminClientSecret"`
	MCPEndpoint       string          `json:"mcpEndpoint,omitempty"`
}

// Create validates the input, derives tier limits, and persists the tenant
// together with its Diamond-role admin user and the admin's OAuth client in
// one atomic store call.
func (r *Registry) Create(ctx context.Context, in *CreateInput) (*CreateResult, error) {
	if in.TenantID == "" || in.TenantName == "" || in.AdminEmail == "" {
		return nil, errorx.ErrValidation.WithMessage("tenantId, tenantName, and adminEmail are required")
	}

	tier := in.Tier
	if tier == "" {
		tier = DefaultTier
	}
	if !Valid(tier) {
		return nil, errorx.ErrValidation.WithMessage("unknown tier: %s", tier)
	}

	mcpEnabled := true
	if in.MCPEnabled != nil {
		mcpEnabled = *in.MCPEnabled
	}

	t := &storage.Tenant{
		ID:         in.TenantID,
		UUID:       uuid.NewString(),
		Name:       in.TenantName,
		Tier:       tier,
		Domain:     in.Domain,
		AdminEmail: in.AdminEmail,
		MCPEnabled: mcpEnabled,
		Status:     storage.TenantStatusActive,
		Limits:     Limits(tier),
		CreatedAt:  time.Now(),
	}

	admin, adminClient, adminSecret, err := r.admins.NewAdminIdentity(t)
	if err != nil {
		return nil, err
	}

	if err := r.store.CreateTenant(ctx, t, admin, adminClient); err != nil {
		return nil, err
	}

	r.logger.Info("tenant created",
		zap.String("tenant", t.ID),
		zap.String("tier", t.Tier),
		zap.Bool("mcp_enabled", t.MCPEnabled))

	return &CreateResult{
		Tenant:            t,
		AdminUser:         admin,
		AdminClientID:     adminClient.ID,
		AdminClientSecret: adminSecret,
	}, nil
}

// Get returns the stored tenant record. Limits are persisted at creation and
// returned verbatim, never recomputed.
func (r *Registry) Get(ctx context.Context, tenantID string) (*storage.Tenant, error) {
	return r.store.GetTenant(ctx, tenantID)
}

// GetActive returns the tenant only if its status is active.
func (r *Registry) GetActive(ctx context.Context, tenantID string) (*storage.Tenant, error) {
	t, err := r.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if t.Status != storage.TenantStatusActive {
		return nil, errorx.ErrTenantNotFound
	}
	return t, nil
}
