package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessage_Text(t *testing.T) {
	tests := []struct {
		name     string
		content  []ContentBlock
		expected string
	}{
		{"empty", nil, ""},
		{"single text block", []ContentBlock{{Type: ContentText, Text: "hello"}}, "hello"},
		{
			"multiple text blocks concatenate",
			[]ContentBlock{{Type: ContentText, Text: "a "}, {Type: ContentText, Text: "b"}},
			"a b",
		},
		{
			"non-text blocks ignored",
			[]ContentBlock{
				{Type: ContentText, Text: "start "},
				{Type: ContentToolUse, ToolUse: &ToolUse{ID: "1", Name: "read"}},
				{Type: ContentText, Text: "end"},
			},
			"start end",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := Message{Content: tt.content}
			assert.Equal(t, tt.expected, msg.Text())
		})
	}
}

func TestMessage_ToolUseBlocks(t *testing.T) {
	msg := Message{Content: []ContentBlock{
		{Type: ContentText, Text: "thinking"},
		{Type: ContentToolUse, ToolUse: &ToolUse{ID: "1", Name: "read"}},
		{Type: ContentToolUse, ToolUse: &ToolUse{ID: "2", Name: "write"}},
	}}
	got := msg.ToolUseBlocks()
	assert.Equal(t, []ToolUse{{ID: "1", Name: "read"}, {ID: "2", Name: "write"}}, got)
}

func TestMessage_ToolResultBlocks(t *testing.T) {
	msg := Message{Content: []ContentBlock{
		{Type: ContentToolResult, ToolResult: &ToolResultContent{ToolUseID: "1", Output: "ok"}},
	}}
	got := msg.ToolResultBlocks()
	assert.Equal(t, []ToolResultContent{{ToolUseID: "1", Output: "ok"}}, got)
}
