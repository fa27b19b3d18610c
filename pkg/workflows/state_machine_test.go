package workflows

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testMachine() *StateMachine {
	return NewStateMachine(map[string][]string{
		"draft":     {"submitted", "cancelled"},
		"submitted": {"approved", "rejected"},
		"approved":  {},
		"rejected":  {"draft"},
	})
}

func TestCanTransition(t *testing.T) {
	sm := testMachine()

	assert.True(t, sm.CanTransition("draft", "submitted"))
	assert.True(t, sm.CanTransition("rejected", "draft"))
	assert.False(t, sm.CanTransition("draft", "approved"))
	assert.False(t, sm.CanTransition("approved", "draft"))
	assert.False(t, sm.CanTransition("unknown", "draft"))
}

func TestGetAllowedTransitions(t *testing.T) {
	sm := testMachine()

	assert.ElementsMatch(t, []string{"submitted", "cancelled"}, sm.GetAllowedTransitions("draft"))
	assert.Empty(t, sm.GetAllowedTransitions("approved"))
	assert.Empty(t, sm.GetAllowedTransitions("unknown"))
}

func TestIsTerminal(t *testing.T) {
	sm := testMachine()

	assert.True(t, sm.IsTerminal("approved"))
	assert.False(t, sm.IsTerminal("draft"))
	assert.True(t, sm.IsTerminal("unknown"))
}
