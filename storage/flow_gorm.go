package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wa-platform/core/domain/flow"
)

// flowModel stores a Definition's node graph as a JSON blob: Node.Config is
// a polymorphic union (see flow.Node's custom UnmarshalJSON), which has no
// natural normalized column shape, and the graph is always read/written
// whole rather than queried node-by-node.
type flowModel struct {
	ID                    string    `gorm:"primaryKey;column:id"`
	TenantID              string    `gorm:"column:tenant_id;not null;index"`
	Name                  string    `gorm:"column:name;not null"`
	Graph                 string    `gorm:"column:graph;type:text"` // JSON-encoded nodes+edges
	IsDefault             bool      `gorm:"column:is_default;default:false"`
	WorkingHours          string    `gorm:"column:working_hours;type:text"` // JSON, empty if unset
	SessionTimeoutSeconds int       `gorm:"column:session_timeout_seconds;default:0"`
	Enabled               bool      `gorm:"column:enabled"`
	CreatedAt             time.Time `gorm:"column:created_at;not null"`
	UpdatedAt             time.Time `gorm:"column:updated_at;not null"`
}

func (flowModel) TableName() string { return "flows" }

type flowGraph struct {
	Nodes []flow.Node `json:"nodes"`
	Edges []flow.Edge `json:"edges"`
}

// FlowRepository implements flow.Repository.
type FlowRepository struct {
	db *gorm.DB
}

func NewFlowRepository(db *gorm.DB) *FlowRepository {
	return &FlowRepository{db: db}
}

func (r *FlowRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&flowModel{})
}

func (r *FlowRepository) Create(ctx context.Context, def *flow.Definition) (*flow.Definition, error) {
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	m, err := toFlowModel(*def)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, err
	}
	return fromFlowModel(m)
}

func (r *FlowRepository) Get(ctx context.Context, tenantID, id string) (*flow.Definition, error) {
	var m flowModel
	err := r.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return fromFlowModel(m)
}

func (r *FlowRepository) List(ctx context.Context, tenantID string) ([]*flow.Definition, error) {
	var models []flowModel
	if err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*flow.Definition, 0, len(models))
	for _, m := range models {
		def, err := fromFlowModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}

func (r *FlowRepository) Update(ctx context.Context, def *flow.Definition) (*flow.Definition, error) {
	var existing flowModel
	if err := r.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", def.TenantID, def.ID).First(&existing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	m, err := toFlowModel(*def)
	if err != nil {
		return nil, err
	}
	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = time.Now().UTC()
	if err := r.db.WithContext(ctx).Save(&m).Error; err != nil {
		return nil, err
	}
	return fromFlowModel(m)
}

func (r *FlowRepository) Delete(ctx context.Context, tenantID, id string) error {
	return r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&flowModel{}).Error
}

func (r *FlowRepository) ListEnabledTriggers(ctx context.Context, tenantID string) ([]*flow.Definition, error) {
	var models []flowModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND enabled = ?", tenantID, true).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]*flow.Definition, 0, len(models))
	for _, m := range models {
		def, err := fromFlowModel(m)
		if err != nil {
			return nil, err
		}
		if _, ok := def.StartNode(); ok {
			out = append(out, def)
		}
	}
	return out, nil
}

func toFlowModel(def flow.Definition) (flowModel, error) {
	graphJSON, err := json.Marshal(flowGraph{Nodes: def.Nodes, Edges: def.Edges})
	if err != nil {
		return flowModel{}, err
	}
	var whJSON string
	if def.WorkingHours != nil {
		b, err := json.Marshal(def.WorkingHours)
		if err != nil {
			return flowModel{}, err
		}
		whJSON = string(b)
	}
	return flowModel{
		ID:                    def.ID,
		TenantID:              def.TenantID,
		Name:                  def.Name,
		Graph:                 string(graphJSON),
		IsDefault:             def.IsDefault,
		WorkingHours:          whJSON,
		SessionTimeoutSeconds: def.SessionTimeoutSeconds,
		Enabled:               def.Enabled,
	}, nil
}

func fromFlowModel(m flowModel) (*flow.Definition, error) {
	var graph flowGraph
	if m.Graph != "" {
		if err := json.Unmarshal([]byte(m.Graph), &graph); err != nil {
			return nil, err
		}
	}
	var wh *flow.WorkingHours
	if m.WorkingHours != "" {
		wh = &flow.WorkingHours{}
		if err := json.Unmarshal([]byte(m.WorkingHours), wh); err != nil {
			return nil, err
		}
	}
	return &flow.Definition{
		ID:                    m.ID,
		TenantID:              m.TenantID,
		Name:                  m.Name,
		Nodes:                 graph.Nodes,
		Edges:                 graph.Edges,
		IsDefault:             m.IsDefault,
		WorkingHours:          wh,
		SessionTimeoutSeconds: m.SessionTimeoutSeconds,
		Enabled:               m.Enabled,
	}, nil
}
