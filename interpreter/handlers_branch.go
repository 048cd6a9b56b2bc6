package interpreter

import (
	"context"
	"net/mail"
	"strconv"
	"strings"

	"github.com/wa-platform/core/domain/flow"
)

func evalOperator(left, operator, right string) bool {
	switch operator {
	case "eq":
		return left == right
	case "neq":
		return left != right
	case "contains":
		return strings.Contains(left, right)
	case "exists":
		return left != ""
	case "gt", "gte", "lt", "lte":
		lf, lerr := strconv.ParseFloat(left, 64)
		rf, rerr := strconv.ParseFloat(right, 64)
		if lerr != nil || rerr != nil {
			return false
		}
		switch operator {
		case "gt":
			return lf > rf
		case "gte":
			return lf >= rf
		case "lt":
			return lf < rf
		case "lte":
			return lf <= rf
		}
	}
	return false
}

func handleCondition(ctx context.Context, e *Engine, def *flow.Definition, sess *flow.Session, node *flow.Node) (stepResult, error) {
	cfg := node.Config.(*flow.ConditionConfig)
	left := flow.Interpolate(cfg.Left, sess.Variables)
	right := flow.Interpolate(cfg.Right, sess.Variables)
	if evalOperator(left, cfg.Operator, right) {
		return stepResult{Handle: "yes"}, nil
	}
	return stepResult{Handle: "no"}, nil
}

func handleRouter(ctx context.Context, e *Engine, def *flow.Definition, sess *flow.Session, node *flow.Node) (stepResult, error) {
	cfg := node.Config.(*flow.RouterConfig)
	for _, c := range cfg.Cases {
		left := flow.Interpolate(c.Left, sess.Variables)
		right := flow.Interpolate(c.Right, sess.Variables)
		if evalOperator(left, c.Operator, right) {
			return stepResult{Handle: c.Handle}, nil
		}
	}
	return stepResult{Handle: "default"}, nil
}

func handleKeywordMatch(ctx context.Context, e *Engine, def *flow.Definition, sess *flow.Session, node *flow.Node) (stepResult, error) {
	cfg := node.Config.(*flow.KeywordMatchConfig)
	source, _ := sess.Variables.GetString(cfg.Source)
	source = strings.ToLower(strings.TrimSpace(source))

	for _, g := range cfg.Groups {
		for _, kw := range g.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if g.ExactMatch {
				if source == kw {
					return stepResult{Handle: g.Handle}, nil
				}
			} else if strings.Contains(source, kw) {
				return stepResult{Handle: g.Handle}, nil
			}
		}
	}
	return stepResult{Handle: "default"}, nil
}

func handleValidator(ctx context.Context, e *Engine, def *flow.Definition, sess *flow.Session, node *flow.Node) (stepResult, error) {
	cfg := node.Config.(*flow.ValidatorConfig)
	value, _ := sess.Variables.GetString(cfg.Source)

	valid := false
	switch cfg.Format {
	case "email":
		_, err := mail.ParseAddress(value)
		valid = err == nil
	case "number":
		_, err := strconv.ParseFloat(value, 64)
		valid = err == nil
	case "not_empty":
		valid = strings.TrimSpace(value) != ""
	case "phone":
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, value)
		valid = len(digits) >= 8
	default:
		valid = value != ""
	}

	if valid {
		return stepResult{Handle: "valid"}, nil
	}
	return stepResult{Handle: "invalid"}, nil
}

func handleBusinessHours(ctx context.Context, e *Engine, def *flow.Definition, sess *flow.Session, node *flow.Node) (stepResult, error) {
	if def.WithinWorkingHours(e.now()) {
		return stepResult{Handle: "open"}, nil
	}
	return stepResult{Handle: "closed"}, nil
}
