// Package tenant models an organization: one isolated customer of the
// platform with its own WhatsApp Cloud API credentials.
package tenant

import "context"

// State is the tenant's subscription lifecycle.
type State string

const (
	StateActive  State = "active"
	StateClosed  State = "closed"
	StateExpired State = "expired"
)

// Tenant is the root of every tenant-scoped query in the system.
type Tenant struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Cloud API credentials
	AccessToken     string `json:"-"`
	BusinessAccount string `json:"business_account_id"`
	PhoneNumberID   string `json:"phone_number_id"`
	DisplayNumber   string `json:"display_phone_number"`

	// Webhook configuration
	VerifySecret   string `json:"-"`
	ExternalWebURL string `json:"external_webhook_url,omitempty"`
	ExternalSecret string `json:"-"`

	// APIKey authenticates the external send surface (§6 "External send
	// surface (API-key authenticated)"), distinct from the JWT bearer
	// tokens issued to dashboard operators.
	APIKey string `json:"-"`

	State State `json:"state"`
}

// Active reports whether inbound traffic should be accepted for this tenant.
func (t *Tenant) Active() bool { return t.State == StateActive }

// CreateRequest is the shape accepted to provision a tenant.
type CreateRequest struct {
	Name            string
	AccessToken     string
	BusinessAccount string
	PhoneNumberID   string
	DisplayNumber   string
	VerifySecret    string
}

// Repository persists and resolves tenants. Every other store in the system
// is keyed (directly or transitively) off a Tenant.ID returned from here.
type Repository interface {
	Create(ctx context.Context, req CreateRequest) (*Tenant, error)
	Get(ctx context.Context, id string) (*Tenant, error)
	// GetByPhoneNumberID resolves the tenant whose Cloud API phone-number id
	// matches an inbound webhook envelope. Only active tenants are matched.
	GetByPhoneNumberID(ctx context.Context, phoneNumberID string) (*Tenant, error)
	// GetByAPIKey resolves the tenant whose APIKey matches, for the
	// external send surface (§6).
	GetByAPIKey(ctx context.Context, apiKey string) (*Tenant, error)
	List(ctx context.Context) ([]*Tenant, error)
	UpdateState(ctx context.Context, id string, state State) error
}
