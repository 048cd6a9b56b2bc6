package broadcast

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_TerminalReportsOnlyEndStates(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusFailed, StatusCancelled}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "%s should be terminal", s)
	}

	nonTerminal := []Status{StatusPending, StatusScheduled, StatusProcessing}
	for _, s := range nonTerminal {
		assert.False(t, s.Terminal(), "%s should not be terminal", s)
	}
}

func TestErrDuplicate_HasAStableMessage(t *testing.T) {
	assert.Equal(t, "notification: duplicate external id for tenant", ErrDuplicate.Error())
}
