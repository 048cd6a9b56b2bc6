package cloudapi

import "context"

type templateMessage struct {
	MessagingProduct string          `json:"messaging_product"`
	RecipientType    string          `json:"recipient_type"`
	To               string          `json:"to"`
	Type             string          `json:"type"`
	Template         templatePayload `json:"template"`
}

type templatePayload struct {
	Name       string              `json:"name"`
	Language   templateLanguage    `json:"language"`
	Components []templateComponent `json:"components,omitempty"`
}

type templateLanguage struct {
	Code string `json:"code"`
}

type templateComponent struct {
	Type       string              `json:"type"` // header, body, button
	SubType    string              `json:"sub_type,omitempty"`
	Index      string              `json:"index,omitempty"`
	Parameters []templateParameter `json:"parameters,omitempty"`
}

type templateParameter struct {
	Type  string    `json:"type"` // text, image, video, document, currency, date_time
	Text  string    `json:"text,omitempty"`
	Image *mediaRef `json:"image,omitempty"`
	Video *mediaRef `json:"video,omitempty"`
}

// TemplateSend is everything needed to render one approved-template send.
type TemplateSend struct {
	Name           string
	Language       string
	HeaderMediaURL string
	BodyParams     []string // positional {{1}}, {{2}}, ... body placeholders
}

// buildComponents assembles the Cloud API component list from a
// TemplateSend: an optional image header followed by ordered body text
// parameters. Sanitized to drop empty components rather than send an
// API-rejecting payload (§4.4 "template component sanitizer").
func buildComponents(ts TemplateSend) []templateComponent {
	var components []templateComponent

	if ts.HeaderMediaURL != "" {
		components = append(components, templateComponent{
			Type:       "header",
			Parameters: []templateParameter{{Type: "image", Image: &mediaRef{Link: ts.HeaderMediaURL}}},
		})
	}

	if len(ts.BodyParams) > 0 {
		params := make([]templateParameter, 0, len(ts.BodyParams))
		for _, p := range ts.BodyParams {
			params = append(params, templateParameter{Type: "text", Text: p})
		}
		components = append(components, templateComponent{Type: "body", Parameters: params})
	}

	return components
}

func (c *Client) SendTemplate(ctx context.Context, creds Credentials, to string, ts TemplateSend) (string, error) {
	return c.do(ctx, creds, templateMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "template",
		Template: templatePayload{
			Name:       ts.Name,
			Language:   templateLanguage{Code: ts.Language},
			Components: buildComponents(ts),
		},
	})
}
