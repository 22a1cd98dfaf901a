package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSession_PendingToolUse(t *testing.T) {
	t.Run("no messages", func(t *testing.T) {
		s := &Session{}
		assert.Empty(t, s.PendingToolUse())
	})

	t.Run("last message not assistant", func(t *testing.T) {
		s := &Session{Messages: []Message{
			{Role: RoleUser, Content: []ContentBlock{{Type: ContentText, Text: "hi"}}},
		}}
		assert.Empty(t, s.PendingToolUse())
	})

	t.Run("unresolved tool use after assistant turn", func(t *testing.T) {
		s := &Session{Messages: []Message{
			{Role: RoleAssistant, Content: []ContentBlock{
				{Type: ContentToolUse, ToolUse: &ToolUse{ID: "1", Name: "read"}},
				{Type: ContentToolUse, ToolUse: &ToolUse{ID: "2", Name: "write"}},
			}},
		}}
		pending := s.PendingToolUse()
		assert.Len(t, pending, 2)
	})

	t.Run("resolved tool uses excluded", func(t *testing.T) {
		s := &Session{Messages: []Message{
			{Role: RoleAssistant, Content: []ContentBlock{
				{Type: ContentToolUse, ToolUse: &ToolUse{ID: "1", Name: "read"}},
			}},
			{Role: RoleUser, Content: []ContentBlock{
				{Type: ContentToolResult, ToolResult: &ToolResultContent{ToolUseID: "1", Output: "ok"}},
			}},
		}}
		// last message is not assistant, so nothing pending regardless
		assert.Empty(t, s.PendingToolUse())
	})
}

func TestUsage_Add(t *testing.T) {
	u := Usage{InputTokens: 10, OutputTokens: 5}
	u.Add(Usage{InputTokens: 1, OutputTokens: 2, CacheReadInputTokens: 3, CacheWriteInputTokens: 4})
	assert.Equal(t, Usage{InputTokens: 11, OutputTokens: 7, CacheReadInputTokens: 3, CacheWriteInputTokens: 4}, u)
}
