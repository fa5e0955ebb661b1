package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agenttree/core"
)

func TestRender(t *testing.T) {
	out, err := Render("plain text", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)

	out, err = Render(`{{upper .name}} {{default "x" .missing}}`, map[string]any{"name": "lead"})
	require.NoError(t, err)
	assert.Equal(t, "LEAD x", out)

	_, err = Render("{{.broken", nil)
	assert.Error(t, err)
}

func TestRetry(t *testing.T) {
	c := core.Commitment{
		Description: "tests pass",
		Assertion:   core.Assertion{Runner: "cmd", Expr: "go test ./..."},
		Attempts:    []core.Attempt{{Number: 1, Status: core.CommitmentFailed, Output: "FAIL pkg\nexit status 1"}},
	}

	out := Retry([]core.Commitment{c})
	assert.Contains(t, out, "1 of your commitments")
	assert.Contains(t, out, "- tests pass (cmd:go test ./...)")
	assert.Contains(t, out, "    FAIL pkg\n    exit status 1")
}

func TestAnswer(t *testing.T) {
	assert.Equal(t, "Answer from the operator to your question \"which db?\":\npostgres",
		Answer("which db?", core.OperatorHandlerID, "postgres"))
	assert.Contains(t, Answer("q", "lead", "a"), "from lead")
}

func TestFailure(t *testing.T) {
	assert.Equal(t, "Agent w1 failed after budget_exhausted: no reason given", Failure("w1", core.EventBudgetExhausted, ""))
	assert.Equal(t, "Agent w1 failed after error: boom", Failure("w1", core.EventError, "boom"))
}
