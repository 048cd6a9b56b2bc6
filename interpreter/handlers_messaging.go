package interpreter

import (
	"context"
	"fmt"
	"strings"

	"github.com/wa-platform/core/domain/flow"
)

const (
	listNextID = "__next"
	listPrevID = "__prev"

	listRowsBagKey = "__list_rows"
	listPageBagKey = "__list_page"
)

// handleStartTrigger records which keyword (if any) the inbound text
// matched and branches accordingly: "kw_<i>" for the i'th configured
// keyword, or "default" when nothing matched (including a catch-all/any
// entry) (§4.3 "start_trigger").
func handleStartTrigger(ctx context.Context, e *Engine, def *flow.Definition, sess *flow.Session, node *flow.Node) (stepResult, error) {
	cfg, _ := node.Config.(*flow.StartTriggerConfig)
	text, _ := sess.Variables.GetString("last_reply")

	if idx, ok := matchedKeywordIndex(cfg, text); ok {
		sess.Variables.Set("matched_keyword", cfg.Keywords[idx])
		return stepResult{Handle: fmt.Sprintf("kw_%d", idx)}, nil
	}
	return stepResult{Handle: "default"}, nil
}

// matchedKeywordIndex returns the index of the first keyword in cfg that
// matches text, honoring PartialMatch; "*" entries never match here (they
// only affect flow-level entry resolution, see Engine.resolveEntry).
func matchedKeywordIndex(cfg *flow.StartTriggerConfig, text string) (int, bool) {
	if cfg == nil {
		return 0, false
	}
	norm := strings.TrimSpace(strings.ToLower(text))
	for i, kw := range cfg.Keywords {
		if kw == "*" {
			continue
		}
		k := strings.TrimSpace(strings.ToLower(kw))
		if k == "" {
			continue
		}
		if cfg.PartialMatch {
			if strings.Contains(norm, k) {
				return i, true
			}
		} else if norm == k {
			return i, true
		}
	}
	return 0, false
}

func handleMessage(ctx context.Context, e *Engine, def *flow.Definition, sess *flow.Session, node *flow.Node) (stepResult, error) {
	cfg := node.Config.(*flow.MessageConfig)
	text := flow.Interpolate(cfg.Text, sess.Variables)
	_, err := e.Sender.SendText(ctx, sess.TenantID, sess.ContactID, text)
	return stepResult{}, err
}

func handleMedia(ctx context.Context, e *Engine, def *flow.Definition, sess *flow.Session, node *flow.Node) (stepResult, error) {
	cfg := node.Config.(*flow.MediaConfig)
	url := flow.Interpolate(cfg.URL, sess.Variables)
	caption := flow.Interpolate(cfg.Caption, sess.Variables)
	_, err := e.Sender.SendMedia(ctx, sess.TenantID, sess.ContactID, node.Type, url, caption)
	return stepResult{}, err
}

func handleButton(ctx context.Context, e *Engine, def *flow.Definition, sess *flow.Session, node *flow.Node) (stepResult, error) {
	cfg := node.Config.(*flow.ButtonConfig)
	interpolated := &flow.ButtonConfig{
		Text:    flow.Interpolate(cfg.Text, sess.Variables),
		Buttons: cfg.Buttons,
	}
	_, err := e.Sender.SendButtons(ctx, sess.TenantID, sess.ContactID, interpolated)
	if err != nil {
		return stepResult{}, err
	}
	// A button node always suspends: the next inbound event is the user's
	// button choice, routed by its button id as the outgoing handle.
	return stepResult{Suspend: true}, nil
}

// handleList resolves this node's rows (inline, array-sourced, or
// Sheets-sourced), caches the full set in the bag for pagination, and sends
// the first page (§4.3 "list").
func handleList(ctx context.Context, e *Engine, def *flow.Definition, sess *flow.Session, node *flow.Node) (stepResult, error) {
	cfg := node.Config.(*flow.ListConfig)
	rows, err := resolveListRows(ctx, e, sess, cfg)
	if err != nil {
		return stepResult{}, err
	}
	cacheListRows(sess, rows)
	sess.Variables.Set(listPageBagKey, 0)
	return sendListPage(ctx, e, sess, cfg, rows, 0)
}

// resolveListRows materializes a list node's rows, tried in priority
// order: SourceVar (an array bag variable), a Google Sheet range, then the
// node's inline Sections.
func resolveListRows(ctx context.Context, e *Engine, sess *flow.Session, cfg *flow.ListConfig) ([]flow.ListItem, error) {
	if cfg.SourceVar != "" {
		arr, ok := flow.Resolve(sess.Variables, cfg.SourceVar)
		if !ok {
			return nil, nil
		}
		elems, ok := arr.([]any)
		if !ok {
			return nil, nil
		}
		rows := make([]flow.ListItem, 0, len(elems))
		for i, elem := range elems {
			scoped := sess.Variables.Clone()
			scoped.Set("item", elem)
			scoped.Set("index", i)
			rows = append(rows, flow.ListItem{
				ID:          flow.Interpolate(cfg.RowIDTemplate, scoped),
				Title:       flow.Interpolate(cfg.RowTitleTemplate, scoped),
				Description: flow.Interpolate(cfg.RowDescTemplate, scoped),
			})
		}
		return rows, nil
	}

	if cfg.SheetSpreadsheetID != "" {
		sheetRows, err := e.Sheets.ReadRows(ctx, cfg.SheetSpreadsheetID, cfg.SheetSheet)
		if err != nil {
			return nil, err
		}
		rows := make([]flow.ListItem, 0, len(sheetRows))
		for _, r := range sheetRows {
			rows = append(rows, flow.ListItem{
				ID:          r[cfg.SheetIDColumn],
				Title:       r[cfg.SheetTitleColumn],
				Description: r[cfg.SheetDescColumn],
			})
		}
		return rows, nil
	}

	var rows []flow.ListItem
	for _, section := range cfg.Sections {
		for _, row := range section.Rows {
			rows = append(rows, flow.ListItem{
				ID:          row.ID,
				Title:       flow.Interpolate(row.Title, sess.Variables),
				Description: flow.Interpolate(row.Description, sess.Variables),
			})
		}
	}
	return rows, nil
}

func cacheListRows(sess *flow.Session, rows []flow.ListItem) {
	cached := make([]any, len(rows))
	for i, r := range rows {
		cached[i] = r.ToMap()
	}
	sess.Variables.Set(listRowsBagKey, cached)
}

func cachedListRows(sess *flow.Session) []flow.ListItem {
	raw, ok := sess.Variables[listRowsBagKey]
	if !ok {
		return nil
	}
	arr, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]flow.ListItem, 0, len(arr))
	for _, v := range arr {
		if item, ok := flow.ListItemFromAny(v); ok {
			out = append(out, item)
		}
	}
	return out
}

func bagInt(sess *flow.Session, key string) int {
	switch v := sess.Variables[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

// sendListPage slices rows to the requested page (flow.ListPageSize per
// page), appends synthetic "__prev"/"__next" rows where applicable, sends
// the interactive list, and suspends.
func sendListPage(ctx context.Context, e *Engine, sess *flow.Session, cfg *flow.ListConfig, rows []flow.ListItem, page int) (stepResult, error) {
	start := page * flow.ListPageSize
	if start > len(rows) {
		start = len(rows)
	}
	end := start + flow.ListPageSize
	if end > len(rows) {
		end = len(rows)
	}
	pageRows := append([]flow.ListItem{}, rows[start:end]...)

	if page > 0 {
		pageRows = append([]flow.ListItem{{ID: listPrevID, Title: "Previous"}}, pageRows...)
	}
	if end < len(rows) {
		pageRows = append(pageRows, flow.ListItem{ID: listNextID, Title: "Next"})
	}

	toSend := &flow.ListConfig{
		Text:       flow.Interpolate(cfg.Text, sess.Variables),
		ButtonText: cfg.ButtonText,
		Sections:   []flow.ListSection{{Rows: pageRows}},
	}
	if _, err := e.Sender.SendList(ctx, sess.TenantID, sess.ContactID, toSend); err != nil {
		return stepResult{}, err
	}
	sess.Variables.Set(listPageBagKey, page)
	return stepResult{Suspend: true}, nil
}

// bindListReply resolves a resumed list node: "__next"/"__prev" page
// through the cached rows, otherwise match the selection (preferring
// ev.ButtonID, falling back to title text) against the full row set and
// branch by its id (§4.3 "list").
func (e *Engine) bindListReply(ctx context.Context, sess *flow.Session, cfg *flow.ListConfig, ev InboundEvent) (stepResult, error) {
	rows := cachedListRows(sess)
	page := bagInt(sess, listPageBagKey)

	selected := ev.ButtonID
	if selected == "" {
		text := strings.TrimSpace(strings.ToLower(ev.Text))
		for _, r := range rows {
			if strings.ToLower(r.Title) == text {
				selected = r.ID
				break
			}
		}
	}

	switch selected {
	case listNextID:
		return sendListPage(ctx, e, sess, cfg, rows, page+1)
	case listPrevID:
		if page > 0 {
			page--
		}
		return sendListPage(ctx, e, sess, cfg, rows, page)
	}

	for _, r := range rows {
		if r.ID == selected {
			return stepResult{Handle: r.ID}, nil
		}
	}

	if cfg.RetryOnInvalid {
		return sendListPage(ctx, e, sess, cfg, rows, page)
	}
	return stepResult{Handle: "default"}, nil
}

// handleFlowRef sends a Meta Flow form CTA and suspends until the user
// submits it (§4.3 "flow").
func handleFlowRef(ctx context.Context, e *Engine, def *flow.Definition, sess *flow.Session, node *flow.Node) (stepResult, error) {
	cfg := node.Config.(*flow.FlowConfig)
	interpolated := &flow.FlowConfig{
		FlowMetaID:    cfg.FlowMetaID,
		CTA:           flow.Interpolate(cfg.CTA, sess.Variables),
		Text:          flow.Interpolate(cfg.Text, sess.Variables),
		Mode:          cfg.Mode,
		ScreenID:      cfg.ScreenID,
		ActionPayload: cfg.ActionPayload,
	}
	if _, err := e.Sender.SendFlow(ctx, sess.TenantID, sess.ContactID, interpolated); err != nil {
		return stepResult{}, err
	}
	return stepResult{Suspend: true}, nil
}

func handleWait(ctx context.Context, e *Engine, def *flow.Definition, sess *flow.Session, node *flow.Node) (stepResult, error) {
	return stepResult{Suspend: true}, nil
}

func handleDelay(ctx context.Context, e *Engine, def *flow.Definition, sess *flow.Session, node *flow.Node) (stepResult, error) {
	// A delay node does not wait: it passes straight through to its
	// outgoing edge, and no other layer schedules a later resume, so
	// DelayConfig.Seconds has no effect.
	return stepResult{}, nil
}

func handleSessionConfig(ctx context.Context, e *Engine, def *flow.Definition, sess *flow.Session, node *flow.Node) (stepResult, error) {
	cfg := node.Config.(*flow.SessionConfigConfig)
	if cfg.SessionTimeoutSeconds > 0 {
		sess.SessionTimeoutSeconds = cfg.SessionTimeoutSeconds
	}
	return stepResult{}, nil
}
