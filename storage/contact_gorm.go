package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wa-platform/core/domain/contact"
)

type contactModel struct {
	ID          string    `gorm:"primaryKey;column:id"`
	TenantID    string    `gorm:"column:tenant_id;not null;uniqueIndex:idx_contact_tenant_provider"`
	ProviderID  string    `gorm:"column:provider_id;not null;uniqueIndex:idx_contact_tenant_provider"`
	Phone       string    `gorm:"column:phone"`
	DisplayName string    `gorm:"column:display_name"`
	ProfileName string    `gorm:"column:profile_name"`
	Labels      string    `gorm:"column:labels"` // comma-joined; contacts carry at most a handful
	Email       string    `gorm:"column:email"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null"`
}

func (contactModel) TableName() string { return "contacts" }

// ContactRepository implements contact.Repository.
type ContactRepository struct {
	db *gorm.DB
}

func NewContactRepository(db *gorm.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

func (r *ContactRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&contactModel{})
}

func (r *ContactRepository) GetOrCreate(ctx context.Context, tenantID, providerID, profileName string) (*contact.Contact, error) {
	var m contactModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND provider_id = ?", tenantID, providerID).
		First(&m).Error
	if err == nil {
		c := fromContactModel(m)
		return &c, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	m = contactModel{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		ProviderID:  providerID,
		Phone:       providerID,
		ProfileName: profileName,
		DisplayName: profileName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		// Lost a race to another goroutine inserting the same (tenant,
		// provider id) concurrently; re-read the winner.
		var existing contactModel
		if lookupErr := r.db.WithContext(ctx).
			Where("tenant_id = ? AND provider_id = ?", tenantID, providerID).
			First(&existing).Error; lookupErr == nil {
			c := fromContactModel(existing)
			return &c, nil
		}
		return nil, err
	}
	c := fromContactModel(m)
	return &c, nil
}

func (r *ContactRepository) Get(ctx context.Context, tenantID, id string) (*contact.Contact, error) {
	var m contactModel
	err := r.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c := fromContactModel(m)
	return &c, nil
}

func (r *ContactRepository) Update(ctx context.Context, tenantID, id string, req contact.UpdateRequest) (*contact.Contact, error) {
	var m contactModel
	if err := r.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if req.DisplayName != nil {
		m.DisplayName = *req.DisplayName
	}
	if req.Email != nil {
		m.Email = *req.Email
	}
	if len(req.AddLabels) > 0 {
		labels := splitLabels(m.Labels)
		for _, l := range req.AddLabels {
			if !containsLabel(labels, l) {
				labels = append(labels, l)
			}
		}
		m.Labels = strings.Join(labels, ",")
	}
	m.UpdatedAt = time.Now().UTC()

	if err := r.db.WithContext(ctx).Save(&m).Error; err != nil {
		return nil, err
	}
	c := fromContactModel(m)
	return &c, nil
}

func splitLabels(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func containsLabel(labels []string, l string) bool {
	for _, existing := range labels {
		if existing == l {
			return true
		}
	}
	return false
}

func fromContactModel(m contactModel) contact.Contact {
	return contact.Contact{
		ID:          m.ID,
		TenantID:    m.TenantID,
		ProviderID:  m.ProviderID,
		Phone:       m.Phone,
		DisplayName: m.DisplayName,
		ProfileName: m.ProfileName,
		Labels:      splitLabels(m.Labels),
		Email:       m.Email,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}
