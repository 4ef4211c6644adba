package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/aixtiv/sallyport/internal/common/errorx"
	"github.com/aixtiv/sallyport/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubAdminFactory struct{}

func (stubAdminFactory) NewAdminIdentity(t *storage.Tenant) (*storage.User, *storage.Client, string, error) {
	admin := &storage.User{
		UUID:      "admin-" + t.ID,
		TenantID:  t.ID,
		Email:     t.AdminEmail,
		Role:      "Diamond_SAO_Group",
		Status:    storage.UserStatusActive,
		CreatedAt: time.Now(),
	}
	client := &storage.Client{
		ID:         "sallyport-" + t.ID + "-admin-test",
		SecretHash: "hash",
		UserUUID:   admin.UUID,
		TenantID:   t.ID,
	}
	return admin, client, "plaintext-secret", nil
}

func newTestRegistry() (*Registry, storage.Store) {
	store := storage.NewMemoryStore()
	return NewRegistry(store, stubAdminFactory{}, zap.NewNop()), store
}

func TestCreate(t *testing.T) {
	r, store := newTestRegistry()

	result, err := r.Create(context.Background(), &CreateInput{
		TenantID:   "acme",
		TenantName: "ACME Corp",
		Tier:       TierProfessional,
		AdminEmail: "admin@acme.io",
	})
	require.NoError(t, err)

	assert.Equal(t, "acme", result.Tenant.ID)
	assert.Equal(t, 50, result.Tenant.Limits.MaxUsers)
	assert.Equal(t, storage.TenantStatusActive, result.Tenant.Status)
	assert.True(t, result.Tenant.MCPEnabled)
	assert.NotEmpty(t, result.Tenant.UUID)
	assert.Equal(t, "plaintext-secret", result.AdminClientSecret)

	admin, err := store.GetUserByEmail(context.Background(), "acme", "admin@acme.io")
	require.NoError(t, err)
	assert.Equal(t, "Diamond_SAO_Group", admin.Role)
}

func TestCreateDefaults(t *testing.T) {
	r, _ := newTestRegistry()

	result, err := r.Create(context.Background(), &CreateInput{
		TenantID:   "acme",
		TenantName: "ACME Corp",
		AdminEmail: "admin@acme.io",
	})
	require.NoError(t, err)
	assert.Equal(t, TierProfessional, result.Tenant.Tier)
	assert.True(t, result.Tenant.MCPEnabled)
}

func TestCreateMCPDisabled(t *testing.T) {
	r, _ := newTestRegistry()

	disabled := false
	result, err := r.Create(context.Background(), &CreateInput{
		TenantID:   "acme",
		TenantName: "ACME Corp",
		AdminEmail: "admin@acme.io",
		MCPEnabled: &disabled,
	})
	require.NoError(t, err)
	assert.False(t, result.Tenant.MCPEnabled)
}

func TestCreateValidation(t *testing.T) {
	r, _ := newTestRegistry()

	_, err := r.Create(context.Background(), &CreateInput{TenantID: "acme"})
	assert.Equal(t, errorx.ErrValidation.Code, errorx.AsAPIError(err).Code)

	_, err = r.Create(context.Background(), &CreateInput{
		TenantID:   "acme",
		TenantName: "ACME Corp",
		AdminEmail: "admin@acme.io",
		Tier:       "platinum",
	})
	assert.Equal(t, errorx.ErrValidation.Code, errorx.AsAPIError(err).Code)
}

func TestCreateDuplicate(t *testing.T) {
	r, _ := newTestRegistry()

	in := &CreateInput{TenantID: "acme", TenantName: "ACME Corp", AdminEmail: "admin@acme.io"}
	_, err := r.Create(context.Background(), in)
	require.NoError(t, err)

	_, err = r.Create(context.Background(), in)
	assert.Equal(t, errorx.ErrTenantExists.Code, errorx.AsAPIError(err).Code)
}

func TestGetLimitsAreStable(t *testing.T) {
	r, _ := newTestRegistry()

	_, err := r.Create(context.Background(), &CreateInput{
		TenantID:   "acme",
		TenantName: "ACME Corp",
		AdminEmail: "admin@acme.io",
	})
	require.NoError(t, err)

	first, err := r.Get(context.Background(), "acme")
	require.NoError(t, err)
	second, err := r.Get(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, first.Limits, second.Limits)
}

func TestGetActive(t *testing.T) {
	r, store := newTestRegistry()

	_, err := r.Create(context.Background(), &CreateInput{
		TenantID:   "acme",
		TenantName: "ACME Corp",
		AdminEmail: "admin@acme.io",
	})
	require.NoError(t, err)

	_, err = r.GetActive(context.Background(), "acme")
	assert.NoError(t, err)

	record, err := store.GetTenant(context.Background(), "acme")
	require.NoError(t, err)
	record.Status = storage.TenantStatusSuspended

	_, err = r.GetActive(context.Background(), "acme")
	assert.Equal(t, errorx.ErrTenantNotFound.Code, errorx.AsAPIError(err).Code)
}
