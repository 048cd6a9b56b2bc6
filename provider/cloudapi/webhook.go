package cloudapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// VerifySignature checks the X-Hub-Signature-256 header ("sha256=<hex>")
// against an HMAC-SHA256 of the raw request body keyed by the tenant's app
// secret (§4.2 "webhook signature verification"). Constant-time compare
// defeats timing attacks on the digest.
func VerifySignature(appSecret string, body []byte, header string) bool {
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	want, err := hex.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	got := mac.Sum(nil)

	return hmac.Equal(want, got)
}

// VerifyHandshake implements the GET verification handshake: the platform
// confirms hub.verify_token matches the tenant's configured secret and
// echoes hub.challenge back (§4.2).
func VerifyHandshake(mode, token, challenge, expectedToken string) (string, bool) {
	if mode != "subscribe" {
		return "", false
	}
	if token != expectedToken {
		return "", false
	}
	return challenge, true
}

// Envelope is the top-level Cloud API webhook payload shape.
type Envelope struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

type ChangeValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Metadata         Metadata         `json:"metadata"`
	Contacts         []WebhookContact `json:"contacts,omitempty"`
	Messages         []InboundMessage `json:"messages,omitempty"`
	Statuses         []StatusUpdate   `json:"statuses,omitempty"`
}

type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type WebhookContact struct {
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
	WaID string `json:"wa_id"`
}

type InboundMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`

	Text      *struct{ Body string `json:"body"` } `json:"text,omitempty"`
	Image     *InboundMedia `json:"image,omitempty"`
	Video     *InboundMedia `json:"video,omitempty"`
	Audio     *InboundMedia `json:"audio,omitempty"`
	Document  *InboundMedia `json:"document,omitempty"`
	Sticker   *InboundMedia `json:"sticker,omitempty"`
	Location  *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location,omitempty"`
	Button *struct {
		Text    string `json:"text"`
		Payload string `json:"payload"`
	} `json:"button,omitempty"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply,omitempty"`
		ListReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"list_reply,omitempty"`
		NFMReply *struct {
			Name         string `json:"name"`
			Body         string `json:"body"`
			ResponseJSON string `json:"response_json"`
		} `json:"nfm_reply,omitempty"`
	} `json:"interactive,omitempty"`
	Context *struct {
		ID string `json:"id"` // replied-to message id, for broadcast attribution
	} `json:"context,omitempty"`
}

type InboundMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
	Caption  string `json:"caption,omitempty"`
}

// StatusUpdate is one delivery-status event (sent/delivered/read/failed).
type StatusUpdate struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Timestamp    string `json:"timestamp"`
	RecipientID  string `json:"recipient_id"`
	Conversation *struct {
		ID     string `json:"id"`
		Origin struct {
			Type string `json:"type"`
		} `json:"origin"`
	} `json:"conversation,omitempty"`
	Errors []struct {
		Code    int    `json:"code"`
		Title   string `json:"title"`
		Message string `json:"message"`
	} `json:"errors,omitempty"`
}

// ParseEnvelope decodes a raw webhook POST body.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// ReplyText extracts the user-visible text/selection from an inbound
// message regardless of its concrete type, and the interactive reply id
// when present (button/list selection).
func (m InboundMessage) ReplyText() (text string, buttonID string) {
	switch {
	case m.Text != nil:
		return m.Text.Body, ""
	case m.Button != nil:
		return m.Button.Text, m.Button.Payload
	case m.Interactive != nil && m.Interactive.ButtonReply != nil:
		return m.Interactive.ButtonReply.Title, m.Interactive.ButtonReply.ID
	case m.Interactive != nil && m.Interactive.ListReply != nil:
		return m.Interactive.ListReply.Title, m.Interactive.ListReply.ID
	case m.Interactive != nil && m.Interactive.NFMReply != nil:
		return m.Interactive.NFMReply.Body, ""
	default:
		return "", ""
	}
}

// FormFields decodes a Meta Flow form submission's response_json into a
// field map, for the flow node's resume (§4.3 "flow"). Returns nil, false
// when this inbound isn't an nfm_reply.
func (m InboundMessage) FormFields() (map[string]any, bool) {
	if m.Interactive == nil || m.Interactive.NFMReply == nil {
		return nil, false
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(m.Interactive.NFMReply.ResponseJSON), &fields); err != nil {
		return nil, false
	}
	return fields, true
}
