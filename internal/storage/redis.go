package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aixtiv/sallyport/internal/common/config"
	"github.com/aixtiv/sallyport/internal/common/errorx"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements the Store interface using Redis. Every key embeds the
// tenant id, so a token minted under one tenant can never resolve under
// another even with an identical opaque value.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a new Redis store instance
func NewRedisStore(cfg *config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "sallyport"
	}

	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) tenantKey(tenantID string) string {
	return fmt.Sprintf("%s:tenant:%s", s.prefix, tenantID)
}

func (s *RedisStore) userKey(tenantID, uuid string) string {
	return fmt.Sprintf("%s:user:%s:%s", s.prefix, tenantID, uuid)
}

func (s *RedisStore) emailKey(tenantID, email string) string {
	return fmt.Sprintf("%s:useremail:%s:%s", s.prefix, tenantID, email)
}

func (s *RedisStore) userCountKey(tenantID string) string {
	return fmt.Sprintf("%s:usercount:%s", s.prefix, tenantID)
}

func (s *RedisStore) clientKey(tenantID, clientID string) string {
	return fmt.Sprintf("%s:client:%s:%s", s.prefix, tenantID, clientID)
}

func (s *RedisStore) codeKey(tenantID, code string) string {
	return fmt.Sprintf("%s:code:%s:%s", s.prefix, tenantID, code)
}

func (s *RedisStore) tokenKey(tenantID, token string) string {
	return fmt.Sprintf("%s:token:%s:%s", s.prefix, tenantID, token)
}

func (s *RedisStore) refreshKey(tenantID, token string) string {
	return fmt.Sprintf("%s:refresh:%s:%s", s.prefix, tenantID, token)
}

func (s *RedisStore) deployKey(tenantID, name string) string {
	return fmt.Sprintf("%s:deploy:%s:%s", s.prefix, tenantID, name)
}

func (s *RedisStore) CreateTenant(ctx context.Context, tenant *Tenant, admin *User, adminClient *Client) error {
	key := s.tenantKey(tenant.ID)
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists == 1 {
			return errorx.ErrTenantExists
		}

		tenantData, err := json.Marshal(tenant)
		if err != nil {
			return err
		}
		adminData, err := json.Marshal(admin)
		if err != nil {
			return err
		}
		clientData, err := json.Marshal(adminClient)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, tenantData, 0)
			pipe.Set(ctx, s.userKey(admin.TenantID, admin.UUID), adminData, 0)
			pipe.Set(ctx, s.emailKey(admin.TenantID, admin.Email), admin.UUID, 0)
			pipe.Incr(ctx, s.userCountKey(admin.TenantID))
			pipe.Set(ctx, s.clientKey(adminClient.TenantID, adminClient.ID), clientData, 0)
			return nil
		})
		return err
	}, key)
}

func (s *RedisStore) GetTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	data, err := s.client.Get(ctx, s.tenantKey(tenantID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, errorx.ErrTenantNotFound
		}
		return nil, err
	}

	var tenant Tenant
	if err := json.Unmarshal(data, &tenant); err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (s *RedisStore) CreateUser(ctx context.Context, user *User, client *Client, maxUsers int) error {
	countKey := s.userCountKey(user.TenantID)
	emailKey := s.emailKey(user.TenantID, user.Email)

	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, emailKey).Result()
		if err != nil {
			return err
		}
		if exists == 1 {
			return errorx.ErrUserExists
		}

		if maxUsers >= 0 {
			count, err := tx.Get(ctx, countKey).Int()
			if err != nil && err != redis.Nil {
				return err
			}
			if count >= maxUsers {
				return errorx.ErrQuotaExceeded
			}
		}

		userData, err := json.Marshal(user)
		if err != nil {
			return err
		}
		clientData, err := json.Marshal(client)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.userKey(user.TenantID, user.UUID), userData, 0)
			pipe.Set(ctx, emailKey, user.UUID, 0)
			pipe.Incr(ctx, countKey)
			pipe.Set(ctx, s.clientKey(client.TenantID, client.ID), clientData, 0)
			return nil
		})
		return err
	}, countKey, emailKey)
}

func (s *RedisStore) GetUser(ctx context.Context, tenantID, userID string) (*User, error) {
	data, err := s.client.Get(ctx, s.userKey(tenantID, userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, errorx.ErrUserNotFound
		}
		return nil, err
	}

	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *RedisStore) GetUserByEmail(ctx context.Context, tenantID, email string) (*User, error) {
	uuid, err := s.client.Get(ctx, s.emailKey(tenantID, email)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, errorx.ErrUserNotFound
		}
		return nil, err
	}
	return s.GetUser(ctx, tenantID, uuid)
}

func (s *RedisStore) CountActiveUsers(ctx context.Context, tenantID string) (int, error) {
	count, err := s.client.Get(ctx, s.userCountKey(tenantID)).Int()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}
	return count, nil
}

func (s *RedisStore) GetClient(ctx context.Context, tenantID, clientID string) (*Client, error) {
	data, err := s.client.Get(ctx, s.clientKey(tenantID, clientID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, errorx.ErrInvalidClient
		}
		return nil, err
	}

	var client Client
	if err := json.Unmarshal(data, &client); err != nil {
		return nil, err
	}
	return &client, nil
}

func (s *RedisStore) ListClientsByUser(ctx context.Context, tenantID, userUUID string) ([]*Client, error) {
	var clients []*Client
	iter := s.client.Scan(ctx, 0, fmt.Sprintf("%s:client:%s:*", s.prefix, tenantID), 0).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var c Client
		if err := json.Unmarshal(data, &c); err != nil {
			continue
		}
		if c.UserUUID == userUUID {
			clients = append(clients, &c)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return clients, nil
}

func (s *RedisStore) SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error {
	data, err := json.Marshal(code)
	if err != nil {
		return err
	}

	ttl := time.Until(code.ExpiresAt)
	if ttl <= 0 {
		return errorx.ErrInvalidGrant
	}
	return s.client.Set(ctx, s.codeKey(code.TenantID, code.Code), data, ttl).Err()
}

func (s *RedisStore) ConsumeAuthorizationCode(ctx context.Context, tenantID, code string) (*AuthorizationCode, error) {
	// GETDEL makes the read-and-invalidate a single step; a concurrent
	// consumer of the same code observes nil.
	data, err := s.client.GetDel(ctx, s.codeKey(tenantID, code)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, errorx.ErrInvalidGrant
		}
		return nil, err
	}

	var authCode AuthorizationCode
	if err := json.Unmarshal(data, &authCode); err != nil {
		return nil, err
	}
	if authCode.ExpiresAt.Before(time.Now()) {
		return nil, errorx.ErrInvalidGrant
	}
	return &authCode, nil
}

func (s *RedisStore) SaveTokens(ctx context.Context, access *AccessToken, refresh *RefreshToken) error {
	accessData, err := json.Marshal(access)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.tokenKey(access.TenantID, access.Token), accessData, time.Until(access.ExpiresAt))
		if refresh != nil {
			refreshData, err := json.Marshal(refresh)
			if err != nil {
				return err
			}
			pipe.Set(ctx, s.refreshKey(refresh.TenantID, refresh.Token), refreshData, time.Until(refresh.ExpiresAt))
		}
		return nil
	})
	return err
}

func (s *RedisStore) GetAccessToken(ctx context.Context, tenantID, token string) (*AccessToken, error) {
	data, err := s.client.Get(ctx, s.tokenKey(tenantID, token)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, errorx.ErrInvalidToken
		}
		return nil, err
	}

	var accessToken AccessToken
	if err := json.Unmarshal(data, &accessToken); err != nil {
		return nil, err
	}
	if accessToken.ExpiresAt.Before(time.Now()) {
		s.client.Del(ctx, s.tokenKey(tenantID, token))
		return nil, errorx.ErrTokenExpired
	}
	return &accessToken, nil
}

func (s *RedisStore) SaveDeployment(ctx context.Context, deployment *Deployment) error {
	deployment.UpdatedAt = time.Now()
	data, err := json.Marshal(deployment)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.deployKey(deployment.TenantID, deployment.Name), data, 0).Err()
}

func (s *RedisStore) UpdateDeploymentStatus(ctx context.Context, tenantID, deploymentID, status, reason string) error {
	deployments, err := s.ListDeployments(ctx, tenantID)
	if err != nil {
		return err
	}
	for _, d := range deployments {
		if d.ID == deploymentID {
			d.Status = status
			d.Reason = reason
			return s.SaveDeployment(ctx, d)
		}
	}
	return errorx.ErrDeploymentNotFound.WithMessage("deployment %s not found", deploymentID)
}

func (s *RedisStore) ListDeployments(ctx context.Context, tenantID string) ([]*Deployment, error) {
	return s.scanDeployments(ctx, fmt.Sprintf("%s:deploy:%s:*", s.prefix, tenantID), nil)
}

func (s *RedisStore) ListStaleDeployments(ctx context.Context, cutoff time.Time) ([]*Deployment, error) {
	return s.scanDeployments(ctx, fmt.Sprintf("%s:deploy:*", s.prefix), func(d *Deployment) bool {
		return d.inFlight() && d.UpdatedAt.Before(cutoff)
	})
}

func (s *RedisStore) CountDeployments(ctx context.Context, tenantID string) (int, error) {
	deployments, err := s.ListDeployments(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	return len(deployments), nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) scanDeployments(ctx context.Context, pattern string, keep func(*Deployment) bool) ([]*Deployment, error) {
	var deployments []*Deployment
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var d Deployment
		if err := json.Unmarshal(data, &d); err != nil {
			continue
		}
		if keep == nil || keep(&d) {
			deployments = append(deployments, &d)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return deployments, nil
}
