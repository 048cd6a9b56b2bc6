package interpreter

import (
	"context"
	"strings"

	"github.com/wa-platform/core/domain/contact"
	"github.com/wa-platform/core/domain/flow"
)

func handleVariable(ctx context.Context, e *Engine, def *flow.Definition, sess *flow.Session, node *flow.Node) (stepResult, error) {
	cfg := node.Config.(*flow.VariableConfig)
	sess.Variables.Set(cfg.Name, flow.Interpolate(cfg.Value, sess.Variables))
	return stepResult{}, nil
}

func handleListVariable(ctx context.Context, e *Engine, def *flow.Definition, sess *flow.Session, node *flow.Node) (stepResult, error) {
	cfg := node.Config.(*flow.ListVariableConfig)
	resolved := flow.Interpolate(cfg.Value, sess.Variables)
	sess.Variables.Set(cfg.Name, flow.SplitNewlines(resolved))
	return stepResult{}, nil
}

func handleUpdateContact(ctx context.Context, e *Engine, def *flow.Definition, sess *flow.Session, node *flow.Node) (stepResult, error) {
	cfg := node.Config.(*flow.UpdateContactConfig)
	req := contact.UpdateRequest{AddLabels: cfg.AddLabels}
	if cfg.DisplayName != "" {
		name := flow.Interpolate(cfg.DisplayName, sess.Variables)
		req.DisplayName = &name
	}
	if cfg.Email != "" {
		email := flow.Interpolate(cfg.Email, sess.Variables)
		req.Email = &email
	}
	_, err := e.Contacts.Update(ctx, sess.TenantID, sess.ContactID, req)
	return stepResult{}, err
}

// handleMap renders cfg.Template once per element of the Source array
// (bound to "item"/"index"), joins the rendered pieces with Separator, and
// stores the result under SaveAs (§4.3 "map").
func handleMap(ctx context.Context, e *Engine, def *flow.Definition, sess *flow.Session, node *flow.Node) (stepResult, error) {
	cfg := node.Config.(*flow.MapConfig)
	arr, ok := flow.Resolve(sess.Variables, cfg.Source)
	if !ok {
		return stepResult{}, nil
	}
	elems, ok := arr.([]any)
	if !ok {
		return stepResult{}, nil
	}

	parts := make([]string, 0, len(elems))
	for i, elem := range elems {
		scoped := sess.Variables.Clone()
		scoped.Set("item", elem)
		scoped.Set("index", i)
		parts = append(parts, flow.Interpolate(cfg.Template, scoped))
	}

	sess.Variables.Set(cfg.SaveAs, strings.Join(parts, cfg.Separator))
	return stepResult{}, nil
}
