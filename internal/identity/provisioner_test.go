package identity

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aixtiv/sallyport/internal/common/config"
	"github.com/aixtiv/sallyport/internal/common/errorx"
	"github.com/aixtiv/sallyport/internal/storage"
	"github.com/aixtiv/sallyport/internal/tenant"
	"github.com/aixtiv/sallyport/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type fakeMCP struct {
	fail   bool
	called bool
}

func (f *fakeMCP) AutoProvision(ctx context.Context, t *storage.Tenant, user *storage.User, oauthClientID string) (*storage.Deployment, error) {
	f.called = true
	if f.fail {
		return nil, errors.New("deployment API unreachable")
	}
	return &storage.Deployment{
		ID:       "dep-1",
		TenantID: t.ID,
		UserUUID: user.UUID,
		Status:   storage.DeploymentStatusDeploying,
		Endpoint: "https://" + t.ID + "-user-" + user.UUID + ".mcp.sallyport.test",
	}, nil
}

func newTestProvisioner(mcp MCPAutoProvisioner) (*Provisioner, storage.Store) {
	store := storage.NewMemoryStore()
	m := metrics.New(config.MetricsConfig{Namespace: "test"})
	return NewProvisioner(store, mcp, m, zap.NewNop(), "sallyport.test"), store
}

func seedTenant(t *testing.T, p *Provisioner, store storage.Store, tenantID, tier string, mcpEnabled bool) *storage.Tenant {
	t.Helper()
	record := &storage.Tenant{
		ID:         tenantID,
		UUID:       "uuid-" + tenantID,
		Name:       strings.ToUpper(tenantID),
		Tier:       tier,
		AdminEmail: "admin@" + tenantID + ".io",
		MCPEnabled: mcpEnabled,
		Status:     storage.TenantStatusActive,
		Limits:     tenant.Limits(tier),
		CreatedAt:  time.Now(),
	}
	admin, client, _, err := p.NewAdminIdentity(record)
	require.NoError(t, err)
	require.NoError(t, store.CreateTenant(context.Background(), record, admin, client))
	return record
}

func TestCreateUser(t *testing.T) {
	p, store := newTestProvisioner(&fakeMCP{})
	seedTenant(t, p, store, "acme", tenant.TierProfessional, true)

	result, err := p.CreateUser(context.Background(), "acme", &CreateUserInput{
		Email:     "alice@acme.io",
		Role:      RoleSapphire,
		FirstName: "Alice",
		LastName:  "Smith",
	})
	require.NoError(t, err)

	assert.Equal(t, "alice@acme.io", result.User.Email)
	assert.Equal(t, RoleSapphire, result.User.Role)
	assert.Equal(t, tenant.TierProfessional, result.Tier)
	assert.True(t, result.User.Permissions.OAuthAllowed)
	assert.False(t, result.User.Permissions.SecretsAllowed)

	assert.True(t, strings.HasPrefix(result.OAuth.ClientID, "sallyport-acme-"))
	assert.NotEmpty(t, result.OAuth.ClientSecret)
	assert.Contains(t, result.OAuth.AuthorizationURL, "client_id="+result.OAuth.ClientID)
	assert.Equal(t, "https://acme.sallyport.test/oauth/token", result.OAuth.TokenURL)

	client, err := store.GetClient(context.Background(), "acme", result.OAuth.ClientID)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(result.OAuth.ClientSecret)))
	assert.Equal(t, []string{
		"https://acme.sallyport.test/oauth/callback",
		"https://sallyport.test/oauth/callback",
	}, client.RedirectURIs)
}

func TestCreateUserMCPScope(t *testing.T) {
	p, store := newTestProvisioner(&fakeMCP{})
	seedTenant(t, p, store, "acme", tenant.TierProfessional, true)

	result, err := p.CreateUser(context.Background(), "acme", &CreateUserInput{
		Email:     "bob@acme.io",
		MCPAccess: true,
	})
	require.NoError(t, err)
	assert.Contains(t, result.User.Scopes, ScopeMCPFull)
	require.NotNil(t, result.MCPClient)
	assert.Equal(t, "mcp-acme-"+result.User.UUID, result.MCPClient.ClientID)
}

func TestCreateUserMCPDisabledTenant(t *testing.T) {
	fake := &fakeMCP{}
	p, store := newTestProvisioner(fake)
	seedTenant(t, p, store, "acme", tenant.TierProfessional, false)

	result, err := p.CreateUser(context.Background(), "acme", &CreateUserInput{
		Email:     "bob@acme.io",
		MCPAccess: true,
	})
	require.NoError(t, err)
	assert.NotContains(t, result.User.Scopes, ScopeMCPFull)
	assert.Nil(t, result.MCPClient)
	assert.False(t, fake.called)
}

func TestCreateUserMCPFailureIsPartialSuccess(t *testing.T) {
	p, store := newTestProvisioner(&fakeMCP{fail: true})
	seedTenant(t, p, store, "acme", tenant.TierProfessional, true)

	result, err := p.CreateUser(context.Background(), "acme", &CreateUserInput{
		Email:     "carol@acme.io",
		MCPAccess: true,
	})
	require.NoError(t, err)
	assert.Nil(t, result.MCPClient)
	assert.NotEmpty(t, result.OAuth.ClientSecret)
}

func TestCreateUserQuota(t *testing.T) {
	p, store := newTestProvisioner(&fakeMCP{})
	seedTenant(t, p, store, "tiny", tenant.TierStarter, false)

	// Starter allows 5 active users and the admin already occupies one slot.
	for i := 0; i < 4; i++ {
		_, err := p.CreateUser(context.Background(), "tiny", &CreateUserInput{
			Email: "user" + string(rune('a'+i)) + "@tiny.io",
		})
		require.NoError(t, err)
	}

	_, err := p.CreateUser(context.Background(), "tiny", &CreateUserInput{Email: "overflow@tiny.io"})
	require.Error(t, err)
	assert.Equal(t, errorx.ErrQuotaExceeded.Code, errorx.AsAPIError(err).Code)
}

func TestCreateUserUnlimitedTier(t *testing.T) {
	p, store := newTestProvisioner(&fakeMCP{})
	seedTenant(t, p, store, "mega", tenant.TierDiamond, true)

	for i := 0; i < 20; i++ {
		_, err := p.CreateUser(context.Background(), "mega", &CreateUserInput{
			Email: "user" + string(rune('a'+i)) + "@mega.io",
		})
		require.NoError(t, err)
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	p, store := newTestProvisioner(&fakeMCP{})
	seedTenant(t, p, store, "acme", tenant.TierProfessional, true)

	_, err := p.CreateUser(context.Background(), "acme", &CreateUserInput{Email: "dup@acme.io"})
	require.NoError(t, err)

	_, err = p.CreateUser(context.Background(), "acme", &CreateUserInput{Email: "dup@acme.io"})
	assert.Equal(t, errorx.ErrUserExists.Code, errorx.AsAPIError(err).Code)
}

func TestCreateUserValidation(t *testing.T) {
	p, store := newTestProvisioner(&fakeMCP{})
	seedTenant(t, p, store, "acme", tenant.TierProfessional, true)

	_, err := p.CreateUser(context.Background(), "acme", &CreateUserInput{})
	assert.Equal(t, errorx.ErrValidation.Code, errorx.AsAPIError(err).Code)

	_, err = p.CreateUser(context.Background(), "ghost", &CreateUserInput{Email: "a@b.io"})
	assert.Equal(t, errorx.ErrTenantNotFound.Code, errorx.AsAPIError(err).Code)
}

func TestNewAdminIdentity(t *testing.T) {
	p, _ := newTestProvisioner(&fakeMCP{})
	record := &storage.Tenant{
		ID:         "acme",
		Tier:       tenant.TierProfessional,
		AdminEmail: "admin@acme.io",
		MCPEnabled: true,
		Limits:     tenant.Limits(tenant.TierProfessional),
	}

	admin, client, secret, err := p.NewAdminIdentity(record)
	require.NoError(t, err)

	assert.Equal(t, RoleDiamond, admin.Role)
	assert.Equal(t, "admin@acme.io", admin.Email)
	assert.Equal(t, "Admin", admin.FirstName)
	assert.True(t, admin.MCPAccess)
	assert.Contains(t, admin.Scopes, ScopeMCPFull)

	assert.True(t, strings.HasPrefix(client.ID, "sallyport-acme-admin-"))
	assert.NotEmpty(t, secret)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(secret)))
}
