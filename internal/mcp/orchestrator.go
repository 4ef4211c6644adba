package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aixtiv/sallyport/internal/common/errorx"
	"github.com/aixtiv/sallyport/internal/storage"
	"github.com/aixtiv/sallyport/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Orchestrator provisions MCP servers for tenant users: it enforces the
// tenant's server quota, records the deployment, and submits the descriptor
// to the deployer.
type Orchestrator struct {
	store          storage.Store
	deployer       Deployer
	metrics        *metrics.Metrics
	logger         *zap.Logger
	platformDomain string
}

func NewOrchestrator(store storage.Store, deployer Deployer, m *metrics.Metrics, logger *zap.Logger, platformDomain string) *Orchestrator {
	return &Orchestrator{
		store:          store,
		deployer:       deployer,
		metrics:        m,
		logger:         logger.Named("mcp"),
		platformDomain: platformDomain,
	}
}

// ProvisionInput is the MCP client setup request.
type ProvisionInput struct {
	UserEmail  string            `json:"userEmail"`
	ServerName string            `json:"mcpServerName"`
	ServerType string            `json:"serverType"`
	CustomEnv  map[string]string `json:"customEnvironment"`
}

// ProvisionResult bundles the deployment record with the tenant-scoped
// endpoints derived from it.
type ProvisionResult struct {
	Deployment *storage.Deployment `json:"deployment"`
	Endpoints  Endpoints           `json:"endpoints"`
}

type Endpoints struct {
	MCP     string `json:"mcp"`
	Health  string `json:"health"`
	Metrics string `json:"metrics"`
}

// ProvisionServer provisions a named MCP server for a user identified by
// email. The user must exist in the tenant and have MCP access. Redeploying
// an existing name supersedes the prior record without consuming quota.
// A synchronous deployer failure is persisted as status failed; the record is
// still returned so the caller sees what happened.
func (o *Orchestrator) ProvisionServer(ctx context.Context, tenantID string, in *ProvisionInput) (*ProvisionResult, error) {
	if in.UserEmail == "" || in.ServerName == "" {
		return nil, errorx.ErrValidation.WithMessage("userEmail and mcpServerName are required")
	}

	user, err := o.store.GetUserByEmail(ctx, tenantID, in.UserEmail)
	if err != nil {
		return nil, err
	}
	if !user.MCPAccess {
		return nil, errorx.ErrUserNotFound
	}

	t, err := o.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	client, err := o.clientForUser(ctx, t.ID, user.UUID)
	if err != nil {
		return nil, err
	}

	serverType := in.ServerType
	if serverType == "" {
		serverType = ServerTypeStandard
	}

	deployment, err := o.deploy(ctx, t, user, client.ID, in.ServerName, serverType, in.CustomEnv)
	if err != nil {
		return nil, err
	}

	return &ProvisionResult{
		Deployment: deployment,
		Endpoints:  o.endpoints(t.ID, in.ServerName),
	}, nil
}

// AutoProvision deploys the default standard server for a newly created
// user. Called by the identity provisioner during user setup.
func (o *Orchestrator) AutoProvision(ctx context.Context, t *storage.Tenant, user *storage.User, oauthClientID string) (*storage.Deployment, error) {
	name := fmt.Sprintf("user-%s", user.UUID)
	return o.deploy(ctx, t, user, oauthClientID, name, ServerTypeStandard, nil)
}

// DeployInput is the direct deployment request. Unlike /setup-mcp-client it
// carries a raw config blob and is not tied to a user identity.
type DeployInput struct {
	ServerName string         `json:"serverName"`
	ServerType string         `json:"serverType"`
	Config     map[string]any `json:"config"`
}

// Deploy records and submits a deployment directly for the tenant.
func (o *Orchestrator) Deploy(ctx context.Context, tenantID string, in *DeployInput) (*storage.Deployment, error) {
	if in.ServerName == "" {
		return nil, errorx.ErrValidation.WithMessage("serverName is required")
	}

	t, err := o.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := o.checkQuota(ctx, t, in.ServerName); err != nil {
		return nil, err
	}

	serverType := in.ServerType
	if serverType == "" {
		serverType = ServerTypeStandard
	}

	configJSON, err := json.Marshal(in.Config)
	if err != nil {
		return nil, err
	}

	deployment := &storage.Deployment{
		ID:        uuid.NewString(),
		TenantID:  t.ID,
		Name:      in.ServerName,
		Config:    string(configJSON),
		Status:    storage.DeploymentStatusDeploying,
		Endpoint:  fmt.Sprintf("https://%s-%s.mcp.%s", t.ID, in.ServerName, o.platformDomain),
		CreatedAt: time.Now(),
	}
	if err := o.store.SaveDeployment(ctx, deployment); err != nil {
		return nil, err
	}
	o.metrics.DeploymentRecorded(t.ID, deployment.Status)

	resources, scaling := sizingFor(serverType)
	descriptor := &Descriptor{
		Name:        in.ServerName,
		Tenant:      t.ID,
		Type:        serverType,
		Environment: map[string]string{"TENANT_ID": t.ID},
		Resources:   resources,
		Scaling:     scaling,
	}
	if err := o.deployer.Deploy(ctx, descriptor); err != nil {
		o.logger.Error("deployment submission failed",
			zap.String("tenant", t.ID),
			zap.String("name", in.ServerName),
			zap.Error(err))
		deployment.Status = storage.DeploymentStatusFailed
		deployment.Reason = err.Error()
		if updErr := o.store.UpdateDeploymentStatus(ctx, t.ID, deployment.ID, deployment.Status, deployment.Reason); updErr != nil {
			o.logger.Error("failed to record deployment failure", zap.Error(updErr))
		}
		o.metrics.DeploymentRecorded(t.ID, deployment.Status)
	}

	return deployment, nil
}

// StatusResult is the /mcp/status response payload.
type StatusResult struct {
	Tenant      string                `json:"tenant"`
	Deployments []*storage.Deployment `json:"deployments"`
	Count       int                   `json:"count"`
	ActiveUsers int                   `json:"activeUsers"`
	Limits      storage.TierLimits    `json:"limits"`
}

// Status reports a tenant's deployments together with its quota usage.
func (o *Orchestrator) Status(ctx context.Context, tenantID string) (*StatusResult, error) {
	t, err := o.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	deployments, err := o.store.ListDeployments(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	count, err := o.store.CountDeployments(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	activeUsers, err := o.store.CountActiveUsers(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return &StatusResult{
		Tenant:      tenantID,
		Deployments: deployments,
		Count:       count,
		ActiveUsers: activeUsers,
		Limits:      t.Limits,
	}, nil
}

func (o *Orchestrator) deploy(ctx context.Context, t *storage.Tenant, user *storage.User, oauthClientID, name, serverType string, customEnv map[string]string) (*storage.Deployment, error) {
	if err := o.checkQuota(ctx, t, name); err != nil {
		return nil, err
	}

	descriptor := NewDescriptor(t, user, oauthClientID, name, serverType, o.platformDomain, customEnv)
	configJSON, err := json.Marshal(descriptor)
	if err != nil {
		return nil, err
	}

	deployment := &storage.Deployment{
		ID:        uuid.NewString(),
		TenantID:  t.ID,
		UserUUID:  user.UUID,
		Name:      name,
		Config:    string(configJSON),
		Status:    storage.DeploymentStatusDeploying,
		Endpoint:  fmt.Sprintf("https://%s-%s.mcp.%s", t.ID, name, o.platformDomain),
		CreatedAt: time.Now(),
	}
	if err := o.store.SaveDeployment(ctx, deployment); err != nil {
		return nil, err
	}
	o.metrics.DeploymentRecorded(t.ID, deployment.Status)
	o.logger.Info("deployment recorded",
		zap.String("tenant", t.ID),
		zap.String("name", name),
		zap.String("type", serverType))

	if err := o.deployer.Deploy(ctx, descriptor); err != nil {
		o.logger.Error("deployment submission failed",
			zap.String("tenant", t.ID),
			zap.String("name", name),
			zap.Error(err))
		deployment.Status = storage.DeploymentStatusFailed
		deployment.Reason = err.Error()
		if updErr := o.store.UpdateDeploymentStatus(ctx, t.ID, deployment.ID, deployment.Status, deployment.Reason); updErr != nil {
			o.logger.Error("failed to record deployment failure", zap.Error(updErr))
		}
		o.metrics.DeploymentRecorded(t.ID, deployment.Status)
	}

	return deployment, nil
}

// checkQuota enforces maxMCPServers. A redeploy of an existing name is free;
// it supersedes the prior record rather than adding one.
func (o *Orchestrator) checkQuota(ctx context.Context, t *storage.Tenant, name string) error {
	if t.Limits.MaxMCPServers < 0 {
		return nil
	}
	deployments, err := o.store.ListDeployments(ctx, t.ID)
	if err != nil {
		return err
	}
	for _, d := range deployments {
		if d.Name == name {
			return nil
		}
	}
	if len(deployments) >= t.Limits.MaxMCPServers {
		return errorx.ErrQuotaExceeded.WithMessage("tenant MCP server limit exceeded, limit %d", t.Limits.MaxMCPServers)
	}
	return nil
}

// clientForUser resolves the OAuth client referenced in the descriptor
// environment for the /setup-mcp-client path, where only the email is known.
func (o *Orchestrator) clientForUser(ctx context.Context, tenantID, userUUID string) (*storage.Client, error) {
	clients, err := o.store.ListClientsByUser(ctx, tenantID, userUUID)
	if err != nil {
		return nil, err
	}
	if len(clients) == 0 {
		return nil, errorx.ErrUserNotFound
	}
	return clients[0], nil
}

func (o *Orchestrator) endpoints(tenantID, name string) Endpoints {
	base := fmt.Sprintf("https://%s-%s.mcp.%s", tenantID, name, o.platformDomain)
	return Endpoints{
		MCP:     base,
		Health:  base + "/health",
		Metrics: base + "/metrics",
	}
}
