package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agenttree/core"
)

func TestParseReply(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want core.Reply
	}{
		{
			name: "plain text continues",
			in:   "still thinking\n",
			want: core.Reply{Text: "still thinking"},
		},
		{
			name: "complete",
			in:   "all done\n::complete",
			want: core.Reply{Text: "all done", Directive: core.DirectiveComplete},
		},
		{
			name: "ask with classification",
			in:   "hmm\n::ask urgent Prod is down, roll back?",
			want: core.Reply{Text: "hmm", Directive: core.DirectiveAsk, Classification: core.ClassificationUrgent, Question: "Prod is down, roll back?"},
		},
		{
			name: "ask without classification",
			in:   "::ask Which schema should I use?",
			want: core.Reply{Directive: core.DirectiveAsk, Classification: core.ClassificationRoutine, Question: "Which schema should I use?"},
		},
		{
			name: "fail",
			in:   "::fail cannot reach repository",
			want: core.Reply{Directive: core.DirectiveFail, Reason: "cannot reach repository"},
		},
		{
			name: "first terminal directive wins",
			in:   "::complete\n::fail nope",
			want: core.Reply{Directive: core.DirectiveComplete},
		},
		{
			name: "commitments accumulate",
			in:   "plan\n::commit cmd:go test ./... | tests pass\n::commit func:lint\n::complete",
			want: core.Reply{
				Text:      "plan",
				Directive: core.DirectiveComplete,
				Commitments: []core.CommitmentSpec{
					{Description: "tests pass", Assertion: core.Assertion{Runner: "cmd", Expr: "go test ./..."}},
					{Description: "lint", Assertion: core.Assertion{Runner: "func", Expr: "lint"}},
				},
			},
		},
		{
			name: "unknown directive is text",
			in:   "::shrug",
			want: core.Reply{Text: "::shrug"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReply(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseReply_Malformed(t *testing.T) {
	_, err := ParseReply("::commit no-colon")
	assert.ErrorIs(t, err, ErrMalformedDirective)

	_, err = ParseReply("::ask")
	assert.ErrorIs(t, err, ErrMalformedDirective)
}

func TestMockModel_Streaming(t *testing.T) {
	m := NewMockModel("mock")
	m.AddResponse("hi", "hello")

	resp, err := Collect(context.Background(), m, Request{Messages: []core.Message{{Role: core.RoleUser, Text: "hi"}}, Stream: true})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
	assert.Equal(t, int64(5), resp.Usage.TotalTokens)
}

func TestCollect_Error(t *testing.T) {
	_, err := Collect(context.Background(), NewMockModel("mock"), Request{})
	assert.Error(t, err)
}

func TestBackend_Send(t *testing.T) {
	m := NewMockModel("mock")
	text := "working on it\n::commit cmd:make test | tests\n::complete"
	m.Enqueue(text)
	b := NewBackend(m, func(o *BackendOptions) {
		o.System = "Be brief."
		o.TokensPerUnit = 10
	})

	failed := core.NewCommitment(core.CommitmentSpec{Description: "lint", Assertion: core.Assertion{Runner: "cmd", Expr: "make lint"}}, timeZero)
	sc := core.SessionContext{
		AgentID:           "a-1",
		Name:              "alpha",
		Mode:              core.ModeInteractive,
		History:           []core.Message{{Role: core.RoleUser, Text: "earlier"}},
		FailedCommitments: []core.Commitment{failed},
		RemainingBudget:   42,
	}

	reply, err := b.Send(context.Background(), "a-1", "go", sc)
	require.NoError(t, err)
	assert.Equal(t, core.DirectiveComplete, reply.Directive)
	assert.Equal(t, "working on it", reply.Text)
	require.Len(t, reply.Commitments, 1)
	assert.Equal(t, (int64(len(text))+9)/10, reply.Cost)

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	assert.Len(t, reqs[0].Messages, 2)
	assert.Equal(t, "go", reqs[0].Messages[1].Text)
	assert.Contains(t, reqs[0].System, "Be brief.")
	assert.Contains(t, reqs[0].System, `"alpha"`)
	assert.Contains(t, reqs[0].System, "42 budget units")
	assert.Contains(t, reqs[0].System, "cmd:make lint")
}

func TestBackend_MalformedDirectiveFallsBackToText(t *testing.T) {
	m := NewMockModel("mock")
	m.Enqueue("::commit broken")

	reply, err := NewBackend(m).Send(context.Background(), "a", "go", core.SessionContext{Name: "a"})
	require.NoError(t, err)
	assert.Equal(t, core.DirectiveContinue, reply.Directive)
	assert.Equal(t, "::commit broken", reply.Text)
	assert.Zero(t, reply.Cost)
}

var timeZero = time.Time{}

type failingModel struct{}

func (failingModel) Generate(context.Context, Request) (<-chan Response, <-chan error) {
	out := make(chan Response)
	errCh := make(chan error, 1)
	errCh <- errors.New("rate limited")
	close(out)
	close(errCh)
	return out, errCh
}

func (failingModel) Info() Info { return Info{Name: "f", Provider: "fake"} }

func TestBackend_ModelError(t *testing.T) {
	_, err := NewBackend(failingModel{}).Send(context.Background(), "a", "go", core.SessionContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}
