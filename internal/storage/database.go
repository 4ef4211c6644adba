package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aixtiv/sallyport/internal/common/errorx"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DatabaseStore implements the Store interface on top of gorm. The three
// atomic operation groups (tenant bootstrap, quota-checked user insert, code
// consumption + token issuance) each run in a single transaction.
type DatabaseStore struct {
	db *gorm.DB
}

var _ Store = (*DatabaseStore)(nil)

func newDatabaseStore(db *gorm.DB) (*DatabaseStore, error) {
	if err := db.AutoMigrate(
		&Tenant{},
		&User{},
		&Client{},
		&AuthorizationCode{},
		&AccessToken{},
		&RefreshToken{},
		&Deployment{},
	); err != nil {
		return nil, err
	}
	return &DatabaseStore{db: db}, nil
}

func (s *DatabaseStore) CreateTenant(ctx context.Context, tenant *Tenant, admin *User, adminClient *Client) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(tenant).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errorx.ErrTenantExists
			}
			return err
		}
		if err := tx.Create(admin).Error; err != nil {
			return err
		}
		return tx.Create(adminClient).Error
	})
}

func (s *DatabaseStore) GetTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	var tenant Tenant
	err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorx.ErrTenantNotFound
		}
		return nil, err
	}
	return &tenant, nil
}

func (s *DatabaseStore) CreateUser(ctx context.Context, user *User, client *Client, maxUsers int) error {
	// Serializable, not the driver default: under READ COMMITTED two
	// concurrent signups can both read a stale count and overshoot maxUsers.
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if maxUsers >= 0 {
			var count int64
			if err := tx.Model(&User{}).
				Where("tenant_id = ? AND status = ?", user.TenantID, UserStatusActive).
				Count(&count).Error; err != nil {
				return err
			}
			if count >= int64(maxUsers) {
				return errorx.ErrQuotaExceeded
			}
		}
		if err := tx.Create(user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errorx.ErrUserExists
			}
			return err
		}
		return tx.Create(client).Error
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
}

func (s *DatabaseStore) GetUser(ctx context.Context, tenantID, userID string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND uuid = ?", tenantID, userID).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorx.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *DatabaseStore) GetUserByEmail(ctx context.Context, tenantID, email string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND email = ?", tenantID, email).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorx.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *DatabaseStore) CountActiveUsers(ctx context.Context, tenantID string) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&User{}).
		Where("tenant_id = ? AND status = ?", tenantID, UserStatusActive).
		Count(&count).Error
	return int(count), err
}

func (s *DatabaseStore) GetClient(ctx context.Context, tenantID, clientID string) (*Client, error) {
	var client Client
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND client_id = ?", tenantID, clientID).
		First(&client).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorx.ErrInvalidClient
		}
		return nil, err
	}
	return &client, nil
}

func (s *DatabaseStore) ListClientsByUser(ctx context.Context, tenantID, userUUID string) ([]*Client, error) {
	var clients []*Client
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND user_uuid = ?", tenantID, userUUID).
		Order("created_at asc").
		Find(&clients).Error
	return clients, err
}

func (s *DatabaseStore) SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error {
	return s.db.WithContext(ctx).Create(code).Error
}

func (s *DatabaseStore) ConsumeAuthorizationCode(ctx context.Context, tenantID, code string) (*AuthorizationCode, error) {
	var authCode AuthorizationCode
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tenant_id = ? AND code = ?", tenantID, code).
			First(&authCode).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errorx.ErrInvalidGrant
			}
			return err
		}

		// The delete's row count decides the race: of two concurrent
		// exchanges only one observes RowsAffected == 1.
		res := tx.Where("tenant_id = ? AND code = ?", tenantID, code).
			Delete(&AuthorizationCode{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errorx.ErrInvalidGrant
		}

		if authCode.ExpiresAt.Before(time.Now()) {
			return errorx.ErrInvalidGrant
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &authCode, nil
}

func (s *DatabaseStore) SaveTokens(ctx context.Context, access *AccessToken, refresh *RefreshToken) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(access).Error; err != nil {
			return err
		}
		if refresh != nil {
			return tx.Create(refresh).Error
		}
		return nil
	})
}

func (s *DatabaseStore) GetAccessToken(ctx context.Context, tenantID, token string) (*AccessToken, error) {
	var accessToken AccessToken
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND token = ?", tenantID, token).
		First(&accessToken).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorx.ErrInvalidToken
		}
		return nil, err
	}
	if accessToken.ExpiresAt.Before(time.Now()) {
		s.db.WithContext(ctx).
			Where("tenant_id = ? AND token = ?", tenantID, token).
			Delete(&AccessToken{})
		return nil, errorx.ErrTokenExpired
	}
	return &accessToken, nil
}

func (s *DatabaseStore) SaveDeployment(ctx context.Context, deployment *Deployment) error {
	deployment.UpdatedAt = time.Now()
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "name"}},
			UpdateAll: true,
		}).
		Create(deployment).Error
}

func (s *DatabaseStore) UpdateDeploymentStatus(ctx context.Context, tenantID, deploymentID, status, reason string) error {
	res := s.db.WithContext(ctx).Model(&Deployment{}).
		Where("tenant_id = ? AND id = ?", tenantID, deploymentID).
		Updates(map[string]any{"status": status, "reason": reason, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errorx.ErrDeploymentNotFound.WithMessage("deployment %s not found", deploymentID)
	}
	return nil
}

func (s *DatabaseStore) ListDeployments(ctx context.Context, tenantID string) ([]*Deployment, error) {
	var deployments []*Deployment
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at asc").
		Find(&deployments).Error
	return deployments, err
}

func (s *DatabaseStore) ListStaleDeployments(ctx context.Context, cutoff time.Time) ([]*Deployment, error) {
	var deployments []*Deployment
	err := s.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []string{DeploymentStatusPending, DeploymentStatusDeploying}, cutoff).
		Find(&deployments).Error
	return deployments, err
}

func (s *DatabaseStore) CountDeployments(ctx context.Context, tenantID string) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Deployment{}).
		Where("tenant_id = ?", tenantID).
		Count(&count).Error
	return int(count), err
}

func (s *DatabaseStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
