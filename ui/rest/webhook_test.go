package rest

import (
	"bytes"
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wa-platform/core/domain/tenant"
	"github.com/wa-platform/core/ingest"
)

type fakeTenantsRest struct {
	byID map[string]*tenant.Tenant
}

func (f *fakeTenantsRest) Create(ctx context.Context, req tenant.CreateRequest) (*tenant.Tenant, error) {
	return nil, assert.AnError
}
func (f *fakeTenantsRest) Get(ctx context.Context, id string) (*tenant.Tenant, error) {
	t, ok := f.byID[id]
	if !ok {
		return nil, assert.AnError
	}
	return t, nil
}
func (f *fakeTenantsRest) GetByPhoneNumberID(ctx context.Context, phoneNumberID string) (*tenant.Tenant, error) {
	return nil, assert.AnError
}
func (f *fakeTenantsRest) GetByAPIKey(ctx context.Context, apiKey string) (*tenant.Tenant, error) {
	return nil, assert.AnError
}
func (f *fakeTenantsRest) List(ctx context.Context) ([]*tenant.Tenant, error) { return nil, nil }
func (f *fakeTenantsRest) UpdateState(ctx context.Context, id string, state tenant.State) error {
	return nil
}

func TestVerifyWebhook_EchoesChallengeOnMatchingToken(t *testing.T) {
	i := &ingest.Ingester{Tenants: &fakeTenantsRest{byID: map[string]*tenant.Tenant{
		"t1": {ID: "t1", VerifySecret: "secret"},
	}}}
	h := &Handlers{Ingester: i}
	app := newHandlerTestApp()
	app.Get("/webhook/:tenant", h.VerifyWebhook)

	req, err := http.NewRequest(http.MethodGet, "/webhook/t1?hub.mode=subscribe&hub.verify_token=secret&hub.challenge=chal1", nil)
	require.NoError(t, err)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestVerifyWebhook_RejectsWrongTokenWithForbidden(t *testing.T) {
	i := &ingest.Ingester{Tenants: &fakeTenantsRest{byID: map[string]*tenant.Tenant{
		"t1": {ID: "t1", VerifySecret: "secret"},
	}}}
	h := &Handlers{Ingester: i}
	app := newHandlerTestApp()
	app.Get("/webhook/:tenant", h.VerifyWebhook)

	req, err := http.NewRequest(http.MethodGet, "/webhook/t1?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=chal1", nil)
	require.NoError(t, err)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestReceiveWebhook_AlwaysAnswersOKEvenOnProcessingFailure(t *testing.T) {
	i := &ingest.Ingester{
		Tenants: &fakeTenantsRest{byID: map[string]*tenant.Tenant{}},
		Now:     func() time.Time { return time.Unix(0, 0) },
	}
	h := &Handlers{Ingester: i}
	app := newHandlerTestApp()
	app.Post("/webhook/:tenant", h.ReceiveWebhook)

	req, err := http.NewRequest(http.MethodPost, "/webhook/t1", bytes.NewReader([]byte(`not even json`)))
	require.NoError(t, err)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "a webhook POST must always answer 200 to the provider regardless of internal outcome")
}
