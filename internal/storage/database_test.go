package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aixtiv/sallyport/internal/common/config"
	"github.com/aixtiv/sallyport/internal/common/errorx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDatabaseStore(t *testing.T) *DatabaseStore {
	t.Helper()
	s, err := NewDatabaseStore(&config.DatabaseConfig{
		Type:   "sqlite",
		DBName: filepath.Join(t.TempDir(), "sallyport.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func seedDatabaseTenant(t *testing.T, s *DatabaseStore, tenantID string) {
	t.Helper()
	tenant := &Tenant{
		ID:     tenantID,
		UUID:   "uuid-" + tenantID,
		Status: TenantStatusActive,
		Limits: TierLimits{MaxUsers: 5, MaxMCPServers: 1, Features: []string{"basic_auth"}},
	}
	admin := &User{
		UUID:     "admin-" + tenantID,
		TenantID: tenantID,
		Email:    "admin@" + tenantID + ".io",
		Status:   UserStatusActive,
		Scopes:   []string{"openid"},
	}
	client := &Client{
		ID:           "client-admin-" + tenantID,
		UserUUID:     admin.UUID,
		TenantID:     tenantID,
		RedirectURIs: []string{"https://" + tenantID + ".sallyport.test/oauth/callback"},
	}
	require.NoError(t, s.CreateTenant(context.Background(), tenant, admin, client))
}

func TestDatabaseCreateTenant(t *testing.T) {
	s := newTestDatabaseStore(t)
	seedDatabaseTenant(t, s, "acme")

	tenant, err := s.GetTenant(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 5, tenant.Limits.MaxUsers)
	assert.Equal(t, []string{"basic_auth"}, tenant.Limits.Features)

	admin, err := s.GetUserByEmail(context.Background(), "acme", "admin@acme.io")
	require.NoError(t, err)
	assert.Equal(t, []string{"openid"}, admin.Scopes)

	err = s.CreateTenant(context.Background(),
		&Tenant{ID: "acme", UUID: "other"},
		&User{UUID: "u", TenantID: "acme", Email: "x@acme.io"},
		&Client{ID: "c", TenantID: "acme"})
	assert.ErrorIs(t, err, errorx.ErrTenantExists)

	_, err = s.GetTenant(context.Background(), "ghost")
	assert.ErrorIs(t, err, errorx.ErrTenantNotFound)
}

func TestDatabaseCreateUserQuota(t *testing.T) {
	s := newTestDatabaseStore(t)
	seedDatabaseTenant(t, s, "acme")

	for i := 0; i < 4; i++ {
		user := &User{
			UUID:     fmt.Sprintf("u%d", i),
			TenantID: "acme",
			Email:    fmt.Sprintf("u%d@acme.io", i),
			Status:   UserStatusActive,
		}
		client := &Client{ID: fmt.Sprintf("c%d", i), UserUUID: user.UUID, TenantID: "acme"}
		require.NoError(t, s.CreateUser(context.Background(), user, client, 5))
	}

	overflow := &User{UUID: "u9", TenantID: "acme", Email: "u9@acme.io", Status: UserStatusActive}
	err := s.CreateUser(context.Background(), overflow, &Client{ID: "c9", TenantID: "acme"}, 5)
	assert.ErrorIs(t, err, errorx.ErrQuotaExceeded)

	// Same email in a different tenant is fine.
	seedDatabaseTenant(t, s, "globex")
	other := &User{UUID: "g1", TenantID: "globex", Email: "u0@acme.io", Status: UserStatusActive}
	assert.NoError(t, s.CreateUser(context.Background(), other, &Client{ID: "gc1", TenantID: "globex"}, 5))
}

func TestDatabaseCreateUserQuotaUnderConcurrency(t *testing.T) {
	s := newTestDatabaseStore(t)
	seedDatabaseTenant(t, s, "acme")

	// Admin occupies one slot. Whatever mix of successes and serialization
	// failures the concurrent signups produce, the active count must never
	// exceed the quota.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := &User{
				UUID:     fmt.Sprintf("u%d", i),
				TenantID: "acme",
				Email:    fmt.Sprintf("u%d@acme.io", i),
				Status:   UserStatusActive,
			}
			client := &Client{ID: fmt.Sprintf("c%d", i), UserUUID: user.UUID, TenantID: "acme"}
			_ = s.CreateUser(context.Background(), user, client, 5)
		}(i)
	}
	wg.Wait()

	count, err := s.CountActiveUsers(context.Background(), "acme")
	require.NoError(t, err)
	assert.LessOrEqual(t, count, 5)
}

func TestDatabaseCreateUserDuplicateEmail(t *testing.T) {
	s := newTestDatabaseStore(t)
	seedDatabaseTenant(t, s, "acme")

	dup := &User{UUID: "u1", TenantID: "acme", Email: "admin@acme.io", Status: UserStatusActive}
	err := s.CreateUser(context.Background(), dup, &Client{ID: "c1", TenantID: "acme"}, 5)
	assert.ErrorIs(t, err, errorx.ErrUserExists)
}

func TestDatabaseConsumeAuthorizationCode(t *testing.T) {
	s := newTestDatabaseStore(t)

	code := &AuthorizationCode{
		Code:      "abc",
		TenantID:  "acme",
		ClientID:  "c1",
		ExpiresAt: time.Now().Add(time.Minute),
	}
	require.NoError(t, s.SaveAuthorizationCode(context.Background(), code))

	got, err := s.ConsumeAuthorizationCode(context.Background(), "acme", "abc")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ClientID)

	_, err = s.ConsumeAuthorizationCode(context.Background(), "acme", "abc")
	assert.ErrorIs(t, err, errorx.ErrInvalidGrant)
}

func TestDatabaseTokens(t *testing.T) {
	s := newTestDatabaseStore(t)

	access := &AccessToken{Token: "tok", UserUUID: "u1", TenantID: "acme", ExpiresAt: time.Now().Add(time.Hour)}
	refresh := &RefreshToken{Token: "ref", UserUUID: "u1", TenantID: "acme", ExpiresAt: time.Now().Add(24 * time.Hour)}
	require.NoError(t, s.SaveTokens(context.Background(), access, refresh))

	got, err := s.GetAccessToken(context.Background(), "acme", "tok")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserUUID)

	_, err = s.GetAccessToken(context.Background(), "globex", "tok")
	assert.ErrorIs(t, err, errorx.ErrInvalidToken)

	expired := &AccessToken{Token: "old", UserUUID: "u1", TenantID: "acme", ExpiresAt: time.Now().Add(-time.Minute)}
	require.NoError(t, s.SaveTokens(context.Background(), expired, nil))
	_, err = s.GetAccessToken(context.Background(), "acme", "old")
	assert.ErrorIs(t, err, errorx.ErrTokenExpired)
}

func TestDatabaseDeployments(t *testing.T) {
	s := newTestDatabaseStore(t)

	first := &Deployment{ID: "d1", TenantID: "acme", Name: "srv", Status: DeploymentStatusDeploying, CreatedAt: time.Now()}
	require.NoError(t, s.SaveDeployment(context.Background(), first))

	second := &Deployment{ID: "d2", TenantID: "acme", Name: "srv", Status: DeploymentStatusDeploying, CreatedAt: time.Now()}
	require.NoError(t, s.SaveDeployment(context.Background(), second))

	deployments, err := s.ListDeployments(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, deployments, 1)

	count, err := s.CountDeployments(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, s.UpdateDeploymentStatus(context.Background(), "acme", deployments[0].ID, DeploymentStatusFailed, "timed out"))
	deployments, err = s.ListDeployments(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, DeploymentStatusFailed, deployments[0].Status)

	stale, err := s.ListStaleDeployments(context.Background(), time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, stale)
}
