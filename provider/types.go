// Package provider implements the wire parser and provider client of
// spec.md §4.1–4.2: it normalizes four wire formats (Anthropic-messages,
// OpenAI chat/completions, OpenAI-responses, Google-generateContent) into
// a single StreamPart vocabulary, grounded on llm2/*_provider.go in the
// teacher (sidedotdev-sidekick), which performs the analogous
// SDK-event-to-Event normalization for its own provider-agnostic type.
package provider

import "github.com/sidecore/agentcore/domain"

// PartType enumerates the normalized stream part variants of spec.md §4.1.
type PartType string

const (
	PartTextDelta            PartType = "text_delta"
	PartTextDeltaCitations   PartType = "text_delta_with_citations"
	PartThinkingDelta        PartType = "thinking_delta"
	PartThinkingComplete     PartType = "thinking_complete"
	PartToolCallStart        PartType = "tool_call_start"
	PartToolCallComplete     PartType = "tool_call_complete"
	PartUsage                PartType = "usage"
	PartWebSearchResults     PartType = "web_search_results"
	PartWebFetchResult       PartType = "web_fetch_result"
	PartServerToolError      PartType = "server_tool_error"
	PartError                PartType = "error"
)

// StreamPart is a single low-level, provider-agnostic event emitted by a
// format-specific parser. Only the payload fields that belong to Type are
// populated (ToolCallStart, for one, sets both ToolCallID and ToolName).
type StreamPart struct {
	Type       PartType
	Delta      string
	Citations  []string
	ToolCallID string
	ToolName   string
	ToolCall   *domain.ToolUse
	Thinking   string
	Signature  []byte
	Usage      *domain.Usage
	Results    []WebSearchResult
	FetchURL   string
	FetchBody  string
	Message    string
}

type WebSearchResult struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Text  string `json:"text,omitempty"`
}

// FinalMessage is the accumulated output of one streamed turn: the
// normalized assistant Message plus stop metadata and usage, mirroring
// llm2.MessageResponse.
type FinalMessage struct {
	ID           string
	Model        string
	Provider     string
	Output       domain.Message
	StopReason   string
	StopSequence string
	Usage        domain.Usage
}
