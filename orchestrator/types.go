// Package orchestrator implements the turn-based state machine of
// spec.md §4.4: it drives a session's calls to a provider's streaming
// API, dispatches tool calls through the registry, honours plan-mode
// and approval gates, and writes results back into session history
// until the model stops requesting tools. Re-architected per
// SPEC_FULL.md from the teacher's Temporal-workflow loop
// (dev/llm_loop.go, dev/handle_tool_call.go): the same turn shape, minus
// the replay engine, expressed as a goroutine-per-session state machine
// over channels (spec.md §5: "the orchestrator itself is a single task
// per session; its state is never shared between threads").
package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sidecore/agentcore/domain"
	"github.com/sidecore/agentcore/eventbus"
	"github.com/sidecore/agentcore/provider"
	"github.com/sidecore/agentcore/secretmanager"
)

// Store is the persistence surface the orchestrator needs, satisfied by
// *store/sqlite.Storage. Kept as an interface (rather than a direct
// dependency) so a turn can be driven against a fake store in tests
// without a real database, matching the dependency-injection posture
// spec.md §9 calls for ("everything else flows through the
// context/dependency-injection parameter").
type Store interface {
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	AppendMessages(ctx context.Context, sessionID string, msgs []domain.Message) error
	UpdateUsage(ctx context.Context, sessionID string, u domain.Usage) error
	SetTitle(ctx context.Context, sessionID, title string) error
	SetWorkMode(ctx context.Context, sessionID string, mode domain.WorkMode) error
	GetPlanForSession(ctx context.Context, sessionID string) (*domain.Plan, error)
	UpsertPlan(ctx context.Context, plan *domain.Plan) error
	UpdateTaskStatus(ctx context.Context, sessionID, taskID string, status domain.TaskStatus) error
	AbandonPlan(ctx context.Context, sessionID string) error
}

// Config holds the orchestrator's tunables, grounded on spec.md §4.2/§4.4/§5.
type Config struct {
	MaxTokens         int
	ReasoningEffort   provider.ReasoningEffort
	InactivityTimeout time.Duration // spec.md §5: 120s
	ToolParallelism   int           // spec.md §5: default 1
	MutatingTools     map[string]bool
	ApprovalRequired  map[string]bool
	MaxStuckTurns     int // spec.md §4.4: 3 consecutive empty turns
	MaxIterations     int // safety backstop distinct from stuck detection
	TitleMaxChars     int
}

// DefaultConfig returns spec.md's literal defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:         8192,
		InactivityTimeout: 120 * time.Second,
		ToolParallelism:   1,
		MutatingTools: map[string]bool{
			"write": true, "edit": true, "multiedit": true,
			"bash": true, "apply_patch": true, "build": true,
		},
		ApprovalRequired: map[string]bool{"bash": true, "apply_patch": true},
		MaxStuckTurns:    3,
		MaxIterations:    50,
		TitleMaxChars:    60,
	}
}

// Orchestrator drives turns for sessions against a registry of provider
// clients (looked up by each session's provider format) and one tool
// registry. A single instance is shared across sessions; all per-session
// mutable state lives in the Session record itself and in the local
// variables of the goroutine running RunUserMessage/runTurns, never here.
type Orchestrator struct {
	Store     Store
	Providers *provider.Registry
	Tools     domain.ToolRegistry
	Secrets   secretmanager.SecretManager
	Config    Config
	Log       zerolog.Logger

	// TitleClient, if set, is used for the fire-and-forget title
	// generation call (spec.md §4.4); nil disables title generation.
	TitleClient provider.Client
}

// turnAccumulator is the `{text, thinking, tool_calls}` spec.md §4.4
// describes PostStream producing, plus enough bookkeeping to build the
// assistant message and detect an empty/stuck turn.
type turnAccumulator struct {
	text       string
	citations  []string
	thinking   string
	signature  []byte
	redacted   []domain.RedactedThinking
	toolCalls  []domain.ToolUse
	usage      domain.Usage
}

func (t *turnAccumulator) empty() bool {
	return t.text == "" && t.thinking == "" && len(t.toolCalls) == 0
}
