package domain

// EventType enumerates every LoopEvent variant from spec.md §3.
type EventType string

const (
	EventTextDelta              EventType = "text_delta"
	EventTextDeltaCitations     EventType = "text_delta_with_citations"
	EventThinkingDelta          EventType = "thinking_delta"
	EventThinkingComplete       EventType = "thinking_complete"
	EventToolCallStart          EventType = "tool_call_start"
	EventToolCallComplete       EventType = "tool_call_complete"
	EventToolExecuting          EventType = "tool_executing"
	EventToolOutputDelta        EventType = "tool_output_delta"
	EventToolResult             EventType = "tool_result"
	EventAwaitingInput          EventType = "awaiting_input"
	EventToolApprovalRequired   EventType = "tool_approval_required"
	EventToolApproved           EventType = "tool_approved"
	EventToolDenied             EventType = "tool_denied"
	EventServerToolStart        EventType = "server_tool_start"
	EventServerToolComplete     EventType = "server_tool_complete"
	EventServerToolError        EventType = "server_tool_error"
	EventWebSearchResults       EventType = "web_search_results"
	EventWebFetchResult         EventType = "web_fetch_result"
	EventModeChange             EventType = "mode_change"
	EventPlanUpdate             EventType = "plan_update"
	EventPlanComplete           EventType = "plan_complete"
	EventTurnComplete           EventType = "turn_complete"
	EventUsage                  EventType = "usage"
	EventTitleGenerated         EventType = "title_generated"
	EventFinished               EventType = "finished"
	EventError                  EventType = "error"
)

// LoopEvent is the orchestrator's output variant, fanned out over the
// event bus to front-ends. Beyond Type/SessionID, only the fields that
// belong to a variant are populated (e.g. ToolCallID and ToolName
// together); the JSON tags match the SSE frame shape
// described in spec.md §6.
type LoopEvent struct {
	Type          EventType   `json:"type"`
	SessionID     string      `json:"sessionId"`
	Delta         string      `json:"delta,omitempty"`
	Citations     []string    `json:"citations,omitempty"`
	ToolCallID    string      `json:"toolCallId,omitempty"`
	ToolName      string      `json:"toolName,omitempty"`
	ToolArguments string      `json:"toolArguments,omitempty"`
	ToolResult    *ToolResult `json:"toolResult,omitempty"`
	Signature     []byte      `json:"signature,omitempty"`
	Usage         *Usage      `json:"usage,omitempty"`
	Mode          WorkMode    `json:"mode,omitempty"`
	Plan          *Plan       `json:"plan,omitempty"`
	Title         string      `json:"title,omitempty"`
	HasMore       bool        `json:"hasMore,omitempty"`
	Message       string      `json:"message,omitempty"`
}

// LoopInputType enumerates the consumer-to-orchestrator variants.
type LoopInputType string

const (
	InputToolApproval LoopInputType = "tool_approval"
	InputUserResponse LoopInputType = "user_response"
	InputCancel       LoopInputType = "cancel"
)

// LoopInput is delivered over the unbounded input channel (spec.md §4.5):
// approvals and cancellation must never be throttled by event-bus backpressure.
type LoopInput struct {
	Type       LoopInputType `json:"type"`
	ToolCallID string        `json:"toolCallId,omitempty"`
	Approved   bool          `json:"approved,omitempty"`
	Response   string        `json:"response,omitempty"`
}
