// Package storage implements every domain repository contract against
// gorm.io/gorm, following the teacher's workspace_gorm.go conventions: one
// persistence model per aggregate, explicit TableName, and plain to/from
// mapper functions between the model and the domain type.
package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wa-platform/core/domain/tenant"
	"github.com/wa-platform/core/pkg/crypto"
)

type tenantModel struct {
	ID              string `gorm:"primaryKey;column:id"`
	Name            string `gorm:"column:name;not null"`
	AccessToken     string `gorm:"column:access_token"`
	BusinessAccount string `gorm:"column:business_account"`
	PhoneNumberID   string `gorm:"column:phone_number_id;uniqueIndex"`
	DisplayNumber   string `gorm:"column:display_number"`
	VerifySecret    string `gorm:"column:verify_secret"`
	ExternalWebURL  string `gorm:"column:external_web_url"`
	ExternalSecret  string `gorm:"column:external_secret"`
	APIKey          string `gorm:"column:api_key;uniqueIndex"`
	State           string `gorm:"column:state;not null;default:'active'"`
}

func (tenantModel) TableName() string { return "tenants" }

// TenantRepository implements tenant.Repository.
type TenantRepository struct {
	db *gorm.DB
}

func NewTenantRepository(db *gorm.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&tenantModel{})
}

func (r *TenantRepository) Create(ctx context.Context, req tenant.CreateRequest) (*tenant.Tenant, error) {
	accessToken, err := crypto.Encrypt(req.AccessToken)
	if err != nil {
		return nil, err
	}
	verifySecret, err := crypto.Encrypt(req.VerifySecret)
	if err != nil {
		return nil, err
	}

	m := tenantModel{
		ID:              uuid.NewString(),
		Name:            req.Name,
		AccessToken:     accessToken,
		BusinessAccount: req.BusinessAccount,
		PhoneNumberID:   req.PhoneNumberID,
		DisplayNumber:   req.DisplayNumber,
		VerifySecret:    verifySecret,
		APIKey:          uuid.NewString(),
		State:           string(tenant.StateActive),
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, err
	}
	return fromTenantModel(m)
}

func (r *TenantRepository) Get(ctx context.Context, id string) (*tenant.Tenant, error) {
	var m tenantModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return fromTenantModel(m)
}

func (r *TenantRepository) GetByPhoneNumberID(ctx context.Context, phoneNumberID string) (*tenant.Tenant, error) {
	var m tenantModel
	err := r.db.WithContext(ctx).
		Where("phone_number_id = ? AND state = ?", phoneNumberID, string(tenant.StateActive)).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return fromTenantModel(m)
}

func (r *TenantRepository) GetByAPIKey(ctx context.Context, apiKey string) (*tenant.Tenant, error) {
	var m tenantModel
	if err := r.db.WithContext(ctx).Where("api_key = ?", apiKey).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return fromTenantModel(m)
}

func (r *TenantRepository) List(ctx context.Context) ([]*tenant.Tenant, error) {
	var models []tenantModel
	if err := r.db.WithContext(ctx).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*tenant.Tenant, len(models))
	for i, m := range models {
		t, err := fromTenantModel(m)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

func (r *TenantRepository) UpdateState(ctx context.Context, id string, state tenant.State) error {
	return r.db.WithContext(ctx).Model(&tenantModel{}).Where("id = ?", id).Update("state", string(state)).Error
}

// fromTenantModel decrypts the at-rest secrets before handing the domain
// type back, mirroring the encryption Create applies on the way in.
func fromTenantModel(m tenantModel) (*tenant.Tenant, error) {
	accessToken, err := crypto.Decrypt(m.AccessToken)
	if err != nil {
		return nil, err
	}
	verifySecret, err := crypto.Decrypt(m.VerifySecret)
	if err != nil {
		return nil, err
	}
	externalSecret, err := crypto.Decrypt(m.ExternalSecret)
	if err != nil {
		return nil, err
	}
	return &tenant.Tenant{
		ID:              m.ID,
		Name:            m.Name,
		AccessToken:     accessToken,
		BusinessAccount: m.BusinessAccount,
		PhoneNumberID:   m.PhoneNumberID,
		DisplayNumber:   m.DisplayNumber,
		VerifySecret:    verifySecret,
		ExternalWebURL:  m.ExternalWebURL,
		ExternalSecret:  externalSecret,
		APIKey:          m.APIKey,
		State:           tenant.State(m.State),
	}, nil
}
