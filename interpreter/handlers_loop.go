package interpreter

import (
	"context"

	"github.com/wa-platform/core/domain/flow"
)

// defaultLoopCap bounds iteration when a loop node's config doesn't set
// one, independent of the interpreter's overall step cap (§4.3 "loop cap").
const defaultLoopCap = 50

func loopIndexKey(nodeID string) string { return "__loop_index_" + nodeID }

// handleLoop iterates a bag array by re-entering this same node once per
// body pass: the flow author wires the body subgraph's last node back to
// this node's id. Each visit advances the hidden index counter and exits
// via "body" with ItemVar/IndexVar bound, until the array (or MaxIters) is
// exhausted, at which point it exits via "done" and clears the counter.
func handleLoop(ctx context.Context, e *Engine, def *flow.Definition, sess *flow.Session, node *flow.Node) (stepResult, error) {
	cfg := node.Config.(*flow.LoopConfig)

	items, _ := flow.Resolve(sess.Variables, cfg.Source)
	arr, _ := items.([]any)

	cap := cfg.MaxIters
	if cap <= 0 || cap > defaultLoopCap {
		cap = defaultLoopCap
	}

	idxKey := loopIndexKey(node.ID)
	idx := 0
	if raw, ok := sess.Variables[idxKey]; ok {
		if f, ok := raw.(float64); ok {
			idx = int(f)
		} else if i, ok := raw.(int); ok {
			idx = i
		}
	}

	if idx >= len(arr) || idx >= cap {
		delete(sess.Variables, idxKey)
		return stepResult{Handle: "done"}, nil
	}

	sess.Variables.Set(cfg.ItemVar, arr[idx])
	if cfg.IndexVar != "" {
		sess.Variables.Set(cfg.IndexVar, idx)
	}
	sess.Variables.Set(idxKey, idx+1)
	return stepResult{Handle: "body"}, nil
}
