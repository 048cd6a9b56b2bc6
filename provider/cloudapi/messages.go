package cloudapi

import (
	"context"

	"github.com/google/uuid"
)

type textMessage struct {
	MessagingProduct string      `json:"messaging_product"`
	RecipientType    string      `json:"recipient_type"`
	To               string      `json:"to"`
	Type             string      `json:"type"`
	Text             textBody    `json:"text"`
}

type textBody struct {
	Body string `json:"body"`
}

func (c *Client) SendText(ctx context.Context, creds Credentials, to, body string) (string, error) {
	return c.do(ctx, creds, textMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: body},
	})
}

type mediaMessage struct {
	MessagingProduct string    `json:"messaging_product"`
	RecipientType    string    `json:"recipient_type"`
	To               string    `json:"to"`
	Type             string    `json:"type"`
	Image            *mediaRef `json:"image,omitempty"`
	Video            *mediaRef `json:"video,omitempty"`
	Document         *mediaRef `json:"document,omitempty"`
	Audio            *mediaRef `json:"audio,omitempty"`
	Sticker          *mediaRef `json:"sticker,omitempty"`
}

type mediaRef struct {
	Link     string `json:"link,omitempty"`
	ID       string `json:"id,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// MediaKind selects which Cloud API message-type field a media send uses.
type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
	MediaAudio    MediaKind = "audio"
	MediaSticker  MediaKind = "sticker"
)

func (c *Client) SendMedia(ctx context.Context, creds Credentials, to string, kind MediaKind, urlOrID, caption string) (string, error) {
	ref := &mediaRef{Caption: caption}
	if isMediaID(urlOrID) {
		ref.ID = urlOrID
	} else {
		ref.Link = urlOrID
	}

	msg := mediaMessage{MessagingProduct: "whatsapp", RecipientType: "individual", To: to, Type: string(kind)}
	switch kind {
	case MediaImage:
		msg.Image = ref
	case MediaVideo:
		msg.Video = ref
	case MediaDocument:
		msg.Document = ref
	case MediaAudio:
		msg.Audio = ref
	case MediaSticker:
		msg.Sticker = ref
	}
	return c.do(ctx, creds, msg)
}

// isMediaID is a heuristic: Cloud API media ids are numeric, URLs start
// with a scheme.
func isMediaID(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

type interactiveMessage struct {
	MessagingProduct string      `json:"messaging_product"`
	RecipientType    string      `json:"recipient_type"`
	To               string      `json:"to"`
	Type             string      `json:"type"`
	Interactive      interactive `json:"interactive"`
}

type interactive struct {
	Type   string          `json:"type"`
	Body   interactiveBody `json:"body"`
	Action interactiveAction `json:"action"`
}

type interactiveBody struct {
	Text string `json:"text"`
}

type interactiveAction struct {
	Buttons  []interactiveButton `json:"buttons,omitempty"`
	Button   string              `json:"button,omitempty"`
	Sections []interactiveSection `json:"sections,omitempty"`
}

type interactiveButton struct {
	Type  string            `json:"type"`
	Reply interactiveButtonReply `json:"reply"`
}

type interactiveButtonReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type interactiveSection struct {
	Title string          `json:"title,omitempty"`
	Rows  []interactiveRow `json:"rows"`
}

type interactiveRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// ButtonOption is one reply-button choice.
type ButtonOption struct {
	ID    string
	Title string
}

func (c *Client) SendButtons(ctx context.Context, creds Credentials, to, text string, options []ButtonOption) (string, error) {
	buttons := make([]interactiveButton, 0, len(options))
	for _, o := range options {
		buttons = append(buttons, interactiveButton{Type: "reply", Reply: interactiveButtonReply{ID: o.ID, Title: o.Title}})
	}
	return c.do(ctx, creds, interactiveMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "interactive",
		Interactive: interactive{
			Type:   "button",
			Body:   interactiveBody{Text: text},
			Action: interactiveAction{Buttons: buttons},
		},
	})
}

// ListSection mirrors flow.ListSection for the provider layer.
type ListSection struct {
	Title string
	Rows  []ButtonOptionWithDescription
}

type ButtonOptionWithDescription struct {
	ID          string
	Title       string
	Description string
}

func (c *Client) SendList(ctx context.Context, creds Credentials, to, text, buttonText string, sections []ListSection) (string, error) {
	apiSections := make([]interactiveSection, 0, len(sections))
	for _, s := range sections {
		rows := make([]interactiveRow, 0, len(s.Rows))
		for _, r := range s.Rows {
			rows = append(rows, interactiveRow{ID: r.ID, Title: r.Title, Description: r.Description})
		}
		apiSections = append(apiSections, interactiveSection{Title: s.Title, Rows: rows})
	}
	return c.do(ctx, creds, interactiveMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "interactive",
		Interactive: interactive{
			Type:   "list",
			Body:   interactiveBody{Text: text},
			Action: interactiveAction{Button: buttonText, Sections: apiSections},
		},
	})
}

type flowMessage struct {
	MessagingProduct string          `json:"messaging_product"`
	RecipientType    string          `json:"recipient_type"`
	To               string          `json:"to"`
	Type             string          `json:"type"`
	Interactive      flowInteractive `json:"interactive"`
}

type flowInteractive struct {
	Type   string              `json:"type"`
	Body   interactiveBody     `json:"body"`
	Action flowInteractiveAction `json:"action"`
}

type flowInteractiveAction struct {
	Name       string              `json:"name"`
	Parameters flowActionParameters `json:"parameters"`
}

type flowActionParameters struct {
	FlowMessageVersion string            `json:"flow_message_version"`
	FlowToken          string            `json:"flow_token"`
	FlowID             string            `json:"flow_id"`
	FlowCTA            string            `json:"flow_cta"`
	Mode               string            `json:"mode,omitempty"` // "draft" previews an unpublished flow
	FlowAction         string            `json:"flow_action"`
	FlowActionPayload  flowActionPayload `json:"flow_action_payload,omitempty"`
}

type flowActionPayload struct {
	Screen string         `json:"screen,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
}

// FlowSend carries the Meta Flow (hosted multi-screen form) parameters for
// SendFlow.
type FlowSend struct {
	FlowID        string
	CTA           string
	Text          string
	Mode          string // "draft" previews an unpublished flow; screen and data are sent as given in either mode
	ScreenID      string
	ActionPayload map[string]any
}

// SendFlow sends a Meta Flow CTA, the hosted-form interactive message that
// WhatsApp renders as a multi-screen form inside the chat (§4.3 "flow").
// FlowToken is a fresh random token per send, the correlation id Meta
// echoes back in the nfm_reply webhook.
func (c *Client) SendFlow(ctx context.Context, creds Credentials, to string, fs FlowSend) (string, error) {
	return c.do(ctx, creds, flowMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "interactive",
		Interactive: flowInteractive{
			Type: "flow",
			Body: interactiveBody{Text: fs.Text},
			Action: flowInteractiveAction{
				Name: "flow",
				Parameters: flowActionParameters{
					FlowMessageVersion: "3",
					FlowToken:          uuid.NewString(),
					FlowID:             fs.FlowID,
					FlowCTA:            fs.CTA,
					Mode:               fs.Mode,
					FlowAction:         "navigate",
					FlowActionPayload:  flowActionPayload{Screen: fs.ScreenID, Data: fs.ActionPayload},
				},
			},
		},
	})
}

type catalogMessage struct {
	MessagingProduct string            `json:"messaging_product"`
	RecipientType    string            `json:"recipient_type"`
	To               string            `json:"to"`
	Type             string            `json:"type"`
	Interactive      catalogInteractive `json:"interactive"`
}

type catalogInteractive struct {
	Type   string          `json:"type"`
	Body   interactiveBody `json:"body"`
	Action catalogAction   `json:"action"`
}

type catalogAction struct {
	Name            string `json:"name"`
	CatalogID       string `json:"catalog_id,omitempty"`
}

func (c *Client) SendCatalogue(ctx context.Context, creds Credentials, to, catalogID, text string) (string, error) {
	return c.do(ctx, creds, catalogMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "interactive",
		Interactive: catalogInteractive{
			Type:   "catalog_message",
			Body:   interactiveBody{Text: text},
			Action: catalogAction{Name: "catalog_message", CatalogID: catalogID},
		},
	})
}

// MarkRead sends a read receipt for an inbound message id.
type markReadRequest struct {
	MessagingProduct string `json:"messaging_product"`
	Status           string `json:"status"`
	MessageID        string `json:"message_id"`
}

func (c *Client) MarkRead(ctx context.Context, creds Credentials, providerMessageID string) error {
	_, err := c.post(ctx, creds, markReadRequest{MessagingProduct: "whatsapp", Status: "read", MessageID: providerMessageID})
	return err
}
