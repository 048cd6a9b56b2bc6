package rest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wa-platform/core/domain/broadcast"
	"github.com/wa-platform/core/pkg/apperror"
)

func TestCreateBroadcastRequest_ValidatePanicsOnMissingFields(t *testing.T) {
	req := &createBroadcastRequest{}
	require.Panics(t, func() { req.validate(context.Background()) })
}

func TestCreateBroadcastRequest_ValidateRejectsEmptyTemplateName(t *testing.T) {
	req := &createBroadcastRequest{
		Name:       "promo",
		Template:   broadcast.TemplateRef{Language: "en_US"},
		Recipients: []createBroadcastRecipient{{ContactID: "c1"}},
	}
	require.Panics(t, func() { req.validate(context.Background()) })
}

func TestCreateBroadcastRequest_ValidateAcceptsCompleteRequest(t *testing.T) {
	req := &createBroadcastRequest{
		Name:       "promo",
		Template:   broadcast.TemplateRef{Name: "promo_template", Language: "en_US"},
		Recipients: []createBroadcastRecipient{{ContactID: "c1"}},
	}
	assert.NotPanics(t, func() { req.validate(context.Background()) })
}

func TestCreateBroadcastRequest_ValidateRejectsRecipientWithoutContactIDOrPhone(t *testing.T) {
	req := &createBroadcastRequest{
		Name:       "promo",
		Template:   broadcast.TemplateRef{Name: "promo_template", Language: "en_US"},
		Recipients: []createBroadcastRecipient{{Variables: map[string]string{"1": "Ana"}}},
	}
	require.Panics(t, func() { req.validate(context.Background()) })
}

func TestSendRequest_ValidatePanicsOnMissingFields(t *testing.T) {
	require.Panics(t, func() { (&sendRequest{}).validate(context.Background()) })
	require.Panics(t, func() { (&sendRequest{ContactID: "c1"}).validate(context.Background()) })
	assert.NotPanics(t, func() { (&sendRequest{ContactID: "c1", Text: "hi"}).validate(context.Background()) })
}

func TestSendTemplateRequest_ValidatePanicsOnMissingFields(t *testing.T) {
	require.Panics(t, func() { (&sendTemplateRequest{}).validate(context.Background()) })
	assert.NotPanics(t, func() {
		(&sendTemplateRequest{ContactID: "c1", Name: "promo", Language: "en_US"}).validate(context.Background())
	})
}

func TestValidateStruct_WrapsOzzoErrorAsValidationKind(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(*apperror.Error)
		require.True(t, ok)
		assert.Equal(t, apperror.KindValidation, err.Kind)
	}()
	(&sendRequest{}).validate(context.Background())
}
