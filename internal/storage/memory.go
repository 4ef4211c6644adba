package storage

import (
	"context"
	"sync"
	"time"

	"github.com/aixtiv/sallyport/internal/common/errorx"
)

// MemoryStore implements the Store interface using in-memory maps. It is the
// default backend for development and tests. All maps are keyed by tenant id
// first so cross-tenant reads are impossible by construction.
type MemoryStore struct {
	mu sync.RWMutex

	tenants     map[string]*Tenant
	users       map[string]map[string]*User   // tenant -> uuid -> user
	usersByMail map[string]map[string]string  // tenant -> email -> uuid
	clients     map[string]map[string]*Client // tenant -> client_id -> client
	codes       map[string]map[string]*AuthorizationCode
	tokens      map[string]map[string]*AccessToken
	refresh     map[string]map[string]*RefreshToken
	deployments map[string]map[string]*Deployment // tenant -> name -> deployment
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new memory store instance
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:     make(map[string]*Tenant),
		users:       make(map[string]map[string]*User),
		usersByMail: make(map[string]map[string]string),
		clients:     make(map[string]map[string]*Client),
		codes:       make(map[string]map[string]*AuthorizationCode),
		tokens:      make(map[string]map[string]*AccessToken),
		refresh:     make(map[string]map[string]*RefreshToken),
		deployments: make(map[string]map[string]*Deployment),
	}
}

func (s *MemoryStore) CreateTenant(ctx context.Context, tenant *Tenant, admin *User, adminClient *Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tenants[tenant.ID]; exists {
		return errorx.ErrTenantExists
	}

	s.tenants[tenant.ID] = tenant
	s.putUserLocked(admin)
	s.putClientLocked(adminClient)
	return nil
}

func (s *MemoryStore) GetTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if tenant, ok := s.tenants[tenantID]; ok {
		return tenant, nil
	}
	return nil, errorx.ErrTenantNotFound
}

func (s *MemoryStore) CreateUser(ctx context.Context, user *User, client *Client, maxUsers int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByMail[user.TenantID][user.Email]; exists {
		return errorx.ErrUserExists
	}
	if maxUsers >= 0 && s.countActiveUsersLocked(user.TenantID) >= maxUsers {
		return errorx.ErrQuotaExceeded
	}

	s.putUserLocked(user)
	s.putClientLocked(client)
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, tenantID, userID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if user, ok := s.users[tenantID][userID]; ok {
		return user, nil
	}
	return nil, errorx.ErrUserNotFound
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, tenantID, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if uuid, ok := s.usersByMail[tenantID][email]; ok {
		if user, ok := s.users[tenantID][uuid]; ok {
			return user, nil
		}
	}
	return nil, errorx.ErrUserNotFound
}

func (s *MemoryStore) CountActiveUsers(ctx context.Context, tenantID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.countActiveUsersLocked(tenantID), nil
}

func (s *MemoryStore) GetClient(ctx context.Context, tenantID, clientID string) (*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if client, ok := s.clients[tenantID][clientID]; ok {
		return client, nil
	}
	return nil, errorx.ErrInvalidClient
}

func (s *MemoryStore) ListClientsByUser(ctx context.Context, tenantID, userUUID string) ([]*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var clients []*Client
	for _, c := range s.clients[tenantID] {
		if c.UserUUID == userUUID {
			clients = append(clients, c)
		}
	}
	return clients, nil
}

func (s *MemoryStore) SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.codes[code.TenantID] == nil {
		s.codes[code.TenantID] = make(map[string]*AuthorizationCode)
	}
	s.codes[code.TenantID][code.Code] = code
	return nil
}

func (s *MemoryStore) ConsumeAuthorizationCode(ctx context.Context, tenantID, code string) (*AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	authCode, ok := s.codes[tenantID][code]
	if !ok {
		return nil, errorx.ErrInvalidGrant
	}
	delete(s.codes[tenantID], code)
	if authCode.ExpiresAt.Before(time.Now()) {
		return nil, errorx.ErrInvalidGrant
	}
	return authCode, nil
}

func (s *MemoryStore) SaveTokens(ctx context.Context, access *AccessToken, refresh *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tokens[access.TenantID] == nil {
		s.tokens[access.TenantID] = make(map[string]*AccessToken)
	}
	s.tokens[access.TenantID][access.Token] = access

	if refresh != nil {
		if s.refresh[refresh.TenantID] == nil {
			s.refresh[refresh.TenantID] = make(map[string]*RefreshToken)
		}
		s.refresh[refresh.TenantID][refresh.Token] = refresh
	}
	return nil
}

func (s *MemoryStore) GetAccessToken(ctx context.Context, tenantID, token string) (*AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accessToken, ok := s.tokens[tenantID][token]
	if !ok {
		return nil, errorx.ErrInvalidToken
	}
	if accessToken.ExpiresAt.Before(time.Now()) {
		delete(s.tokens[tenantID], token)
		return nil, errorx.ErrTokenExpired
	}
	return accessToken, nil
}

func (s *MemoryStore) SaveDeployment(ctx context.Context, deployment *Deployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deployments[deployment.TenantID] == nil {
		s.deployments[deployment.TenantID] = make(map[string]*Deployment)
	}
	deployment.UpdatedAt = time.Now()
	s.deployments[deployment.TenantID][deployment.Name] = deployment
	return nil
}

func (s *MemoryStore) UpdateDeploymentStatus(ctx context.Context, tenantID, deploymentID, status, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.deployments[tenantID] {
		if d.ID == deploymentID {
			d.Status = status
			d.Reason = reason
			d.UpdatedAt = time.Now()
			return nil
		}
	}
	return errorx.ErrDeploymentNotFound.WithMessage("deployment %s not found", deploymentID)
}

func (s *MemoryStore) ListDeployments(ctx context.Context, tenantID string) ([]*Deployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	deployments := make([]*Deployment, 0, len(s.deployments[tenantID]))
	for _, d := range s.deployments[tenantID] {
		deployments = append(deployments, d)
	}
	return deployments, nil
}

func (s *MemoryStore) ListStaleDeployments(ctx context.Context, cutoff time.Time) ([]*Deployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stale []*Deployment
	for _, byName := range s.deployments {
		for _, d := range byName {
			if d.inFlight() && d.UpdatedAt.Before(cutoff) {
				stale = append(stale, d)
			}
		}
	}
	return stale, nil
}

func (s *MemoryStore) CountDeployments(ctx context.Context, tenantID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.deployments[tenantID]), nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) putUserLocked(user *User) {
	if s.users[user.TenantID] == nil {
		s.users[user.TenantID] = make(map[string]*User)
		s.usersByMail[user.TenantID] = make(map[string]string)
	}
	s.users[user.TenantID][user.UUID] = user
	s.usersByMail[user.TenantID][user.Email] = user.UUID
}

func (s *MemoryStore) putClientLocked(client *Client) {
	if s.clients[client.TenantID] == nil {
		s.clients[client.TenantID] = make(map[string]*Client)
	}
	s.clients[client.TenantID][client.ID] = client
}

func (s *MemoryStore) countActiveUsersLocked(tenantID string) int {
	count := 0
	for _, user := range s.users[tenantID] {
		if user.Status == UserStatusActive {
			count++
		}
	}
	return count
}
