// Package messaging bridges the flow interpreter and broadcast dispatcher
// to the WhatsApp Cloud API client, resolving tenant credentials and
// persisting every outbound send as a conversation message.
package messaging

import (
	"context"
	"image"
	"time"

	"github.com/wa-platform/core/domain/contact"
	"github.com/wa-platform/core/domain/conversation"
	"github.com/wa-platform/core/domain/flow"
	"github.com/wa-platform/core/domain/tenant"
	"github.com/wa-platform/core/pkg/apperror"
	"github.com/wa-platform/core/provider"
	"github.com/wa-platform/core/provider/cloudapi"
)

// Sender implements interpreter.Sender against the Cloud API, recording
// every send in the conversation's message log.
type Sender struct {
	Provider      *cloudapi.Client
	Tenants       tenant.Repository
	Contacts      contact.Repository
	Conversations conversation.ConversationRepository
	Messages      conversation.MessageRepository

	// AppID scopes resumable template-header uploads (UploadHeaderImage);
	// empty disables the endpoint, since the Cloud API requires it in the
	// upload session URL.
	AppID string
}

func (s *Sender) credentials(ctx context.Context, tenantID string) (cloudapi.Credentials, *tenant.Tenant, error) {
	t, err := s.Tenants.Get(ctx, tenantID)
	if err != nil {
		return cloudapi.Credentials{}, nil, err
	}
	if !t.Active() {
		return cloudapi.Credentials{}, nil, apperror.TenantClosed("tenant is not active")
	}
	return cloudapi.Credentials{AccessToken: t.AccessToken, PhoneNumberID: t.PhoneNumberID}, t, nil
}

func (s *Sender) recordOutbound(ctx context.Context, tenantID, contactID, providerID string, msg *conversation.Message) error {
	conv, err := s.Conversations.GetOrOpen(ctx, tenantID, contactID)
	if err != nil {
		return err
	}
	msg.TenantID = tenantID
	msg.ConversationID = conv.ID
	msg.Direction = conversation.DirectionOut
	msg.Status = conversation.StatusPending
	msg.Timestamp = time.Now()
	if _, err := s.Messages.Create(ctx, msg); err != nil {
		return err
	}
	preview := msg.Body
	if preview == "" {
		preview = msg.Caption
	}
	return s.Conversations.TouchOutgoing(ctx, tenantID, conv.ID, preview, msg.Timestamp)
}

func (s *Sender) SendText(ctx context.Context, tenantID, contactID, text string) (string, error) {
	c, err := s.Contacts.Get(ctx, tenantID, contactID)
	if err != nil {
		return "", err
	}
	creds, _, err := s.credentials(ctx, tenantID)
	if err != nil {
		return "", err
	}
	id, err := s.Provider.SendText(ctx, creds, c.ProviderID, text)
	if err != nil {
		return "", err
	}
	err = s.recordOutbound(ctx, tenantID, contactID, id, &conversation.Message{
		Type: conversation.TypeText, Body: text, ProviderMessageID: id,
	})
	return id, err
}

func (s *Sender) SendMedia(ctx context.Context, tenantID, contactID string, kind flow.NodeType, url, caption string) (string, error) {
	c, err := s.Contacts.Get(ctx, tenantID, contactID)
	if err != nil {
		return "", err
	}
	creds, _, err := s.credentials(ctx, tenantID)
	if err != nil {
		return "", err
	}
	mediaKind := nodeTypeToMediaKind(kind)
	id, err := s.Provider.SendMedia(ctx, creds, c.ProviderID, mediaKind, url, caption)
	if err != nil {
		return "", err
	}
	err = s.recordOutbound(ctx, tenantID, contactID, id, &conversation.Message{
		Type: mediaMessageType(kind), MediaURL: url, Caption: caption, ProviderMessageID: id,
	})
	return id, err
}

func nodeTypeToMediaKind(t flow.NodeType) cloudapi.MediaKind {
	switch t {
	case flow.NodeVideo:
		return cloudapi.MediaVideo
	case flow.NodeDocument:
		return cloudapi.MediaDocument
	default:
		return cloudapi.MediaImage
	}
}

func mediaMessageType(t flow.NodeType) conversation.MessageType {
	switch t {
	case flow.NodeVideo:
		return conversation.TypeVideo
	case flow.NodeDocument:
		return conversation.TypeDocument
	default:
		return conversation.TypeImage
	}
}

func (s *Sender) SendButtons(ctx context.Context, tenantID, contactID string, cfg *flow.ButtonConfig) (string, error) {
	c, err := s.Contacts.Get(ctx, tenantID, contactID)
	if err != nil {
		return "", err
	}
	creds, _, err := s.credentials(ctx, tenantID)
	if err != nil {
		return "", err
	}
	options := make([]cloudapi.ButtonOption, 0, len(cfg.Buttons))
	for _, b := range cfg.Buttons {
		options = append(options, cloudapi.ButtonOption{ID: b.ID, Title: b.Title})
	}
	id, err := s.Provider.SendButtons(ctx, creds, c.ProviderID, cfg.Text, options)
	if err != nil {
		return "", err
	}
	err = s.recordOutbound(ctx, tenantID, contactID, id, &conversation.Message{
		Type: conversation.TypeButton, Body: cfg.Text, ProviderMessageID: id,
	})
	return id, err
}

func (s *Sender) SendList(ctx context.Context, tenantID, contactID string, cfg *flow.ListConfig) (string, error) {
	c, err := s.Contacts.Get(ctx, tenantID, contactID)
	if err != nil {
		return "", err
	}
	creds, _, err := s.credentials(ctx, tenantID)
	if err != nil {
		return "", err
	}
	sections := make([]cloudapi.ListSection, 0, len(cfg.Sections))
	for _, sec := range cfg.Sections {
		rows := make([]cloudapi.ButtonOptionWithDescription, 0, len(sec.Rows))
		for _, r := range sec.Rows {
			rows = append(rows, cloudapi.ButtonOptionWithDescription{ID: r.ID, Title: r.Title, Description: r.Description})
		}
		sections = append(sections, cloudapi.ListSection{Title: sec.Title, Rows: rows})
	}
	id, err := s.Provider.SendList(ctx, creds, c.ProviderID, cfg.Text, cfg.ButtonText, sections)
	if err != nil {
		return "", err
	}
	err = s.recordOutbound(ctx, tenantID, contactID, id, &conversation.Message{
		Type: conversation.TypeList, Body: cfg.Text, ProviderMessageID: id,
	})
	return id, err
}

func (s *Sender) SendFlow(ctx context.Context, tenantID, contactID string, cfg *flow.FlowConfig) (string, error) {
	c, err := s.Contacts.Get(ctx, tenantID, contactID)
	if err != nil {
		return "", err
	}
	creds, _, err := s.credentials(ctx, tenantID)
	if err != nil {
		return "", err
	}
	id, err := s.Provider.SendFlow(ctx, creds, c.ProviderID, cloudapi.FlowSend{
		FlowID:        cfg.FlowMetaID,
		CTA:           cfg.CTA,
		Text:          cfg.Text,
		Mode:          cfg.Mode,
		ScreenID:      cfg.ScreenID,
		ActionPayload: cfg.ActionPayload,
	})
	if err != nil {
		return "", err
	}
	err = s.recordOutbound(ctx, tenantID, contactID, id, &conversation.Message{
		Type: conversation.TypeFlow, Body: cfg.Text, ProviderMessageID: id,
	})
	return id, err
}

func (s *Sender) SendCatalogue(ctx context.Context, tenantID, contactID string, cfg *flow.CatalogueConfig) (string, error) {
	c, err := s.Contacts.Get(ctx, tenantID, contactID)
	if err != nil {
		return "", err
	}
	creds, _, err := s.credentials(ctx, tenantID)
	if err != nil {
		return "", err
	}
	id, err := s.Provider.SendCatalogue(ctx, creds, c.ProviderID, cfg.CatalogID, cfg.Text)
	if err != nil {
		return "", err
	}
	err = s.recordOutbound(ctx, tenantID, contactID, id, &conversation.Message{
		Type: conversation.TypeCatalog, Body: cfg.Text, ProviderMessageID: id,
	})
	return id, err
}

// SendMediaGroup sends a sequence of images; the Cloud API has no batched
// album primitive, so each url is sent as a consecutive image message and
// the first provider id is returned (§4.3 "group_images").
func (s *Sender) SendMediaGroup(ctx context.Context, tenantID, contactID string, urls []string, caption string) (string, error) {
	var first string
	for i, u := range urls {
		c := caption
		if i > 0 {
			c = "" // caption only on the first image, matching common chat UX
		}
		id, err := s.SendMedia(ctx, tenantID, contactID, flow.NodeImage, u, c)
		if err != nil {
			return first, err
		}
		if first == "" {
			first = id
		}
	}
	return first, nil
}

// SendTemplate sends an approved template, used by the broadcast
// dispatcher and scheduled notifications rather than the interpreter.
func (s *Sender) SendTemplate(ctx context.Context, tenantID, contactID string, ts cloudapi.TemplateSend) (string, error) {
	c, err := s.Contacts.Get(ctx, tenantID, contactID)
	if err != nil {
		return "", err
	}
	creds, _, err := s.credentials(ctx, tenantID)
	if err != nil {
		return "", err
	}
	id, err := s.Provider.SendTemplate(ctx, creds, c.ProviderID, ts)
	if err != nil {
		return "", err
	}
	err = s.recordOutbound(ctx, tenantID, contactID, id, &conversation.Message{
		Type: conversation.TypeTemplate, Body: ts.Name, ProviderMessageID: id,
	})
	return id, err
}

// UploadHeaderImage normalizes img and uploads it through the tenant's
// Cloud API credentials, returning the upload's file handle.
// SendTemplate/cloudapi.TemplateSend take a header URL, not a handle.
func (s *Sender) UploadHeaderImage(ctx context.Context, tenantID, fileName string, img image.Image) (string, error) {
	if s.AppID == "" {
		return "", apperror.Validation("header image upload is not configured (CLOUDAPI_APP_ID is unset)")
	}
	creds, _, err := s.credentials(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return provider.UploadHeaderImage(ctx, s.Provider, s.AppID, creds.AccessToken, fileName, img)
}
