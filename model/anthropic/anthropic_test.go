package anthropic

import (
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agenttree/core"
	"github.com/hupe1980/agenttree/model"
)

var _ model.Model = (*Model)(nil)

func TestBuildMessages_MergesRolesAndSkipsSystem(t *testing.T) {
	msgs := buildMessages([]core.Message{
		{Role: core.RoleSystem, Text: "sys"},
		{Role: core.RoleUser, Text: "a"},
		{Role: core.RoleUser, Text: "b"},
		{Role: core.RoleAssistant, Text: "c"},
		{Role: core.RoleUser, Text: ""},
		{Role: "tool", Text: "d"},
	})

	require.Len(t, msgs, 3)
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[0].Role)
	assert.Len(t, msgs[0].Content, 2)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, msgs[1].Role)
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[2].Role)
}

func TestBuildParams_System(t *testing.T) {
	m := NewModel(func(o *Options) {
		o.APIKey = "test"
		o.MaxTokens = 128
	})

	params := m.buildParams(model.Request{
		System:   "protocol",
		Messages: []core.Message{{Role: core.RoleSystem, Text: "extra"}, {Role: core.RoleUser, Text: "hi"}},
	})

	require.Len(t, params.System, 2)
	assert.Equal(t, "protocol", params.System[0].Text)
	assert.Equal(t, "extra", params.System[1].Text)
	assert.Equal(t, int64(128), params.MaxTokens)
	assert.Len(t, params.Messages, 1)
}

func TestInfo(t *testing.T) {
	m := NewModel(func(o *Options) { o.APIKey = "test" })
	assert.Equal(t, "anthropic", m.Info().Provider)
}
