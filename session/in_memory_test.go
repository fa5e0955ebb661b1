package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agenttree/core"
)

// Interface compliance (compile-time assertion)
var _ Store = (*InMemoryStore)(nil)

func msg(text string) core.Message {
	return core.Message{Role: core.RoleUser, Text: text, Time: time.Now()}
}

func TestInMemoryStore_AppendAndHistory(t *testing.T) {
	s := NewInMemoryStore(0)

	require.NoError(t, s.Append("a", msg("one"), msg("two")))
	require.NoError(t, s.Append("a", msg("three")))
	require.NoError(t, s.Append("b", msg("other")))

	all, err := s.History("a", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "one", all[0].Text)

	tail, err := s.History("a", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"two", "three"}, []string{tail[0].Text, tail[1].Text})

	tail[0].Text = "mutated"
	again, _ := s.History("a", 2)
	assert.Equal(t, "two", again[0].Text)

	empty, err := s.History("missing", 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestInMemoryStore_MaxLen(t *testing.T) {
	s := NewInMemoryStore(2)
	require.NoError(t, s.Append("a", msg("1"), msg("2"), msg("3")))

	all, _ := s.History("a", 0)
	require.Len(t, all, 2)
	assert.Equal(t, "2", all[0].Text)
}

func TestInMemoryStore_Delete(t *testing.T) {
	s := NewInMemoryStore(0)
	require.NoError(t, s.Append("a", msg("1")))
	require.NoError(t, s.Delete("a"))

	all, _ := s.History("a", 0)
	assert.Empty(t, all)
}
