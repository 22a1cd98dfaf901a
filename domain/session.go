package domain

import "time"

// WorkMode controls whether the session's tools are allowed to mutate
// state. See spec.md §4.3 for the plan-mode enforcement this gates.
type WorkMode string

const (
	WorkModeBuild WorkMode = "build"
	WorkModePlan  WorkMode = "plan"
)

// Usage accumulates provider-reported token counts across a session.
type Usage struct {
	InputTokens           int `json:"inputTokens"`
	OutputTokens          int `json:"outputTokens"`
	CacheReadInputTokens  int `json:"cacheReadInputTokens"`
	CacheWriteInputTokens int `json:"cacheWriteInputTokens"`
}

func (u *Usage) Add(o Usage) {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	u.CacheReadInputTokens += o.CacheReadInputTokens
	u.CacheWriteInputTokens += o.CacheWriteInputTokens
}

// Session is a stable, persisted conversation.
type Session struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	WorkingDir string    `json:"workingDir"`
	WorkMode   WorkMode  `json:"workMode"`
	Model      string    `json:"model"`
	Provider   string    `json:"provider"`
	Usage      Usage     `json:"usage"`
	Messages   []Message `json:"messages"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// PendingToolUse returns every tool_use id in the last assistant message
// that has no corresponding tool_result yet. Used to synthesize
// "cancelled" results when a turn is interrupted (spec.md §4.4, §7).
func (s *Session) PendingToolUse() []ToolUse {
	if len(s.Messages) == 0 {
		return nil
	}
	last := s.Messages[len(s.Messages)-1]
	if last.Role != RoleAssistant {
		return nil
	}
	resolved := map[string]bool{}
	for _, m := range s.Messages {
		for _, tr := range m.ToolResultBlocks() {
			resolved[tr.ToolUseID] = true
		}
	}
	var pending []ToolUse
	for _, tu := range last.ToolUseBlocks() {
		if !resolved[tu.ID] {
			pending = append(pending, tu)
		}
	}
	return pending
}
