package interpreter

import (
	"context"
	"fmt"

	"github.com/nyaruka/phonenumbers"

	"github.com/wa-platform/core/domain/conversation"
	"github.com/wa-platform/core/domain/flow"
)

func handlePhoneParser(ctx context.Context, e *Engine, def *flow.Definition, sess *flow.Session, node *flow.Node) (stepResult, error) {
	cfg := node.Config.(*flow.PhoneParserConfig)
	raw, _ := sess.Variables.GetString(cfg.Source)

	region := cfg.DefaultRegion
	if region == "" {
		region = "US"
	}
	num, err := phonenumbers.Parse(raw, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return stepResult{Handle: "error"}, nil
	}

	formatted := phonenumbers.Format(num, phonenumbers.E164)
	if cfg.SaveAs != "" {
		sess.Variables.Set(cfg.SaveAs, formatted)
	}
	return stepResult{Handle: "ok"}, nil
}

func handleAPI(ctx context.Context, e *Engine, def *flow.Definition, sess *flow.Session, node *flow.Node) (stepResult, error) {
	cfg := node.Config.(*flow.APIConfig)
	if e.HTTP == nil {
		return stepResult{}, fmt.Errorf("interpreter: api node requires an HTTP client")
	}
	url := flow.Interpolate(cfg.URL, sess.Variables)
	body := flow.Interpolate(cfg.Body, sess.Variables)
	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = flow.Interpolate(v, sess.Variables)
	}

	_, respBody, err := e.HTTP.Do(ctx, cfg.Method, url, headers, body)
	if err != nil {
		return stepResult{}, err
	}
	if cfg.SaveAs != "" {
		sess.Variables.Set(cfg.SaveAs, respBody)
	}
	return stepResult{}, nil
}

func handleSQL(ctx context.Context, e *Engine, def *flow.Definition, sess *flow.Session, node *flow.Node) (stepResult, error) {
	cfg := node.Config.(*flow.SQLConfig)
	if e.SQL == nil {
		return stepResult{}, fmt.Errorf("interpreter: sql node requires a SQLExecutor")
	}
	params := make([]any, len(cfg.Params))
	for i, p := range cfg.Params {
		params[i] = flow.Interpolate(p, sess.Variables)
	}
	rows, err := e.SQL.Query(ctx, sess.TenantID, cfg.Query, params)
	if err != nil {
		return stepResult{}, err
	}
	if cfg.SaveAs != "" {
		out := make([]any, len(rows))
		for i, r := range rows {
			out[i] = r
		}
		sess.Variables.Set(cfg.SaveAs, out)
	}
	return stepResult{}, nil
}

func handleGoogleSheet(ctx context.Context, e *Engine, def *flow.Definition, sess *flow.Session, node *flow.Node) (stepResult, error) {
	cfg := node.Config.(*flow.GoogleSheetConfig)
	if e.Sheets == nil {
		return stepResult{}, fmt.Errorf("interpreter: google_sheet node requires a SheetsClient")
	}
	row := make([]string, len(cfg.Row))
	for i, v := range cfg.Row {
		row[i] = flow.Interpolate(v, sess.Variables)
	}
	return stepResult{}, e.Sheets.AppendRow(ctx, cfg.SpreadsheetID, cfg.Sheet, row)
}

func handleGoogleSheetQuery(ctx context.Context, e *Engine, def *flow.Definition, sess *flow.Session, node *flow.Node) (stepResult, error) {
	cfg := node.Config.(*flow.GoogleSheetQueryConfig)
	if e.Sheets == nil {
		return stepResult{}, fmt.Errorf("interpreter: google_sheet_query node requires a SheetsClient")
	}
	value := flow.Interpolate(cfg.Value, sess.Variables)
	row, found, err := e.Sheets.FindRow(ctx, cfg.SpreadsheetID, cfg.Sheet, cfg.Column, value)
	if err != nil {
		return stepResult{}, err
	}
	if !found {
		return stepResult{Handle: "not_found"}, nil
	}
	if cfg.SaveAs != "" {
		out := make(map[string]any, len(row))
		for k, v := range row {
			out[k] = v
		}
		sess.Variables.Set(cfg.SaveAs, out)
	}
	return stepResult{Handle: "found"}, nil
}

func handleDriveImageLookup(ctx context.Context, e *Engine, def *flow.Definition, sess *flow.Session, node *flow.Node) (stepResult, error) {
	cfg := node.Config.(*flow.DriveImageLookupConfig)
	if e.Drive == nil {
		return stepResult{}, fmt.Errorf("interpreter: drive_image_lookup node requires a DriveClient")
	}
	fileName := flow.Interpolate(cfg.FileName, sess.Variables)
	url, found, err := e.Drive.FindImageURL(ctx, cfg.FolderID, fileName)
	if err != nil {
		return stepResult{}, err
	}
	if !found {
		return stepResult{Handle: "not_found"}, nil
	}
	if cfg.SaveAs != "" {
		sess.Variables.Set(cfg.SaveAs, url)
	}
	return stepResult{Handle: "found"}, nil
}

func handleMediaForward(ctx context.Context, e *Engine, def *flow.Definition, sess *flow.Session, node *flow.Node) (stepResult, error) {
	cfg := node.Config.(*flow.MediaForwardConfig)
	source, _ := sess.Variables.GetString(cfg.MediaSource)
	caption := flow.Interpolate(cfg.Caption, sess.Variables)
	_, err := e.Sender.SendMedia(ctx, sess.TenantID, sess.ContactID, flow.NodeImage, source, caption)
	return stepResult{}, err
}

func handlePayment(ctx context.Context, e *Engine, def *flow.Definition, sess *flow.Session, node *flow.Node) (stepResult, error) {
	cfg := node.Config.(*flow.PaymentConfig)
	if e.Payments == nil {
		return stepResult{}, fmt.Errorf("interpreter: payment node requires a PaymentClient")
	}
	amount := flow.Interpolate(cfg.Amount, sess.Variables)
	result, err := e.Payments.CreateCharge(ctx, cfg.Provider, amount, cfg.Currency, sess.ContactID)
	if err != nil {
		return stepResult{}, err
	}
	if cfg.SaveAs != "" {
		sess.Variables.Set(cfg.SaveAs, result)
	}
	return stepResult{}, nil
}

func handleShopify(ctx context.Context, e *Engine, def *flow.Definition, sess *flow.Session, node *flow.Node) (stepResult, error) {
	cfg := node.Config.(*flow.ShopifyConfig)
	return runCommerceLookup(ctx, e, sess, "shopify", cfg.Operation, cfg.Query, cfg.SaveAs)
}

func handleWooCommerce(ctx context.Context, e *Engine, def *flow.Definition, sess *flow.Session, node *flow.Node) (stepResult, error) {
	cfg := node.Config.(*flow.WooCommerceConfig)
	return runCommerceLookup(ctx, e, sess, "woocommerce", cfg.Operation, cfg.Query, cfg.SaveAs)
}

func runCommerceLookup(ctx context.Context, e *Engine, sess *flow.Session, platform, operation, query, saveAs string) (stepResult, error) {
	if e.Commerce == nil {
		return stepResult{}, fmt.Errorf("interpreter: %s node requires a CommerceClient", platform)
	}
	resolved := flow.Interpolate(query, sess.Variables)
	result, err := e.Commerce.Lookup(ctx, platform, operation, resolved)
	if err != nil {
		return stepResult{}, err
	}
	if result == nil {
		return stepResult{Handle: "not_found"}, nil
	}
	if saveAs != "" {
		sess.Variables.Set(saveAs, result)
	}
	return stepResult{Handle: "found"}, nil
}

func handleSendExternal(ctx context.Context, e *Engine, def *flow.Definition, sess *flow.Session, node *flow.Node) (stepResult, error) {
	cfg := node.Config.(*flow.SendExternalConfig)
	if e.HTTP == nil {
		return stepResult{}, fmt.Errorf("interpreter: send_external node requires an HTTP client")
	}
	url := flow.Interpolate(cfg.URL, sess.Variables)
	body := flow.Interpolate(cfg.Body, sess.Variables)
	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = flow.Interpolate(v, sess.Variables)
	}
	_, _, err := e.HTTP.Do(ctx, "POST", url, headers, body)
	return stepResult{}, err
}

func handleCatalogue(ctx context.Context, e *Engine, def *flow.Definition, sess *flow.Session, node *flow.Node) (stepResult, error) {
	cfg := node.Config.(*flow.CatalogueConfig)
	interpolated := &flow.CatalogueConfig{
		CatalogID: cfg.CatalogID,
		Text:      flow.Interpolate(cfg.Text, sess.Variables),
	}
	_, err := e.Sender.SendCatalogue(ctx, sess.TenantID, sess.ContactID, interpolated)
	return stepResult{}, err
}

func handleGroupImages(ctx context.Context, e *Engine, def *flow.Definition, sess *flow.Session, node *flow.Node) (stepResult, error) {
	cfg := node.Config.(*flow.GroupImagesConfig)
	_, err := e.Sender.SendMediaGroup(ctx, sess.TenantID, sess.ContactID, cfg.URLs, flow.Interpolate(cfg.Caption, sess.Variables))
	return stepResult{}, err
}

// handleAgent hands a conversation off to a human and ends the flow: it
// sends the configured handoff message, flips the conversation to
// human-handled, and terminates the session outright rather than
// suspending for a resume that will never come (§4.3 "agent": "Terminal").
func handleAgent(ctx context.Context, e *Engine, def *flow.Definition, sess *flow.Session, node *flow.Node) (stepResult, error) {
	cfg := node.Config.(*flow.AgentConfig)

	if cfg.HandoffMessage != "" {
		msg := flow.Interpolate(cfg.HandoffMessage, sess.Variables)
		if _, err := e.Sender.SendText(ctx, sess.TenantID, sess.ContactID, msg); err != nil {
			return stepResult{}, err
		}
	}

	if e.Conversations != nil {
		conv, err := e.Conversations.GetOrOpen(ctx, sess.TenantID, sess.ContactID)
		if err != nil {
			return stepResult{}, err
		}
		if err := e.Conversations.SetStatus(ctx, sess.TenantID, conv.ID, conversation.StatusPending); err != nil {
			return stepResult{}, err
		}
	}

	e.publish(ctx, sess.TenantID, "flow.agent_handoff", map[string]any{
		"contact_id": sess.ContactID,
		"flow_id":    sess.FlowID,
		"prompt":     flow.Interpolate(cfg.Prompt, sess.Variables),
	})
	return stepResult{Terminate: true}, nil
}
