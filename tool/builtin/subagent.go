package builtin

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/sidecore/agentcore/domain"
)

// explore/build spawn a sub-agent: a mini orchestrator turn loop scoped
// to a narrower tool subset, grounded on dev/dev_agent.go's pattern of
// kicking off a nested workflow with its own chat history. Here that's
// a synchronous call through ToolContext.SubAgent rather than a new
// Temporal workflow, since the core no longer has a workflow engine
// (see DESIGN.md's dropped-teacher-modules note on temporal/).

type subAgentParams struct {
	Task string `json:"task" jsonschema:"required,description=Description of the task for the sub-agent to carry out."`
}

// ExploreTool runs a read-only sub-agent (read, grep, glob, list) to
// investigate a question without risking any mutation.
type ExploreTool struct{}

func (ExploreTool) Name() string                  { return "explore" }
func (ExploreTool) SideEffect() domain.SideEffect { return domain.EffectRead }
func (ExploreTool) Description() string {
	return "Spawn a read-only sub-agent to investigate the codebase and report back; it cannot modify anything."
}
func (ExploreTool) ParametersSchema() *jsonschema.Schema {
	return jsonschema.Reflect(&subAgentParams{})
}

func (ExploreTool) Execute(ctx context.Context, params json.RawMessage, tc *domain.ToolContext) (*domain.ToolResult, error) {
	return runSubAgent(ctx, "explore", params, tc)
}

// BuildTool runs a sub-agent with the full mutating tool set, for
// delegating a well-scoped implementation task.
type BuildTool struct{}

func (BuildTool) Name() string                  { return "build" }
func (BuildTool) SideEffect() domain.SideEffect { return domain.EffectWrite }
func (BuildTool) Description() string {
	return "Spawn a sub-agent with full tool access to implement a well-scoped task and report back."
}
func (BuildTool) ParametersSchema() *jsonschema.Schema {
	return jsonschema.Reflect(&subAgentParams{})
}

func (BuildTool) Execute(ctx context.Context, params json.RawMessage, tc *domain.ToolContext) (*domain.ToolResult, error) {
	return runSubAgent(ctx, "build", params, tc)
}

func runSubAgent(ctx context.Context, kind string, params json.RawMessage, tc *domain.ToolContext) (*domain.ToolResult, error) {
	if tc.SubAgent == nil {
		return domain.ErrorResult(kind + " tool requires a sub-agent runner, none configured"), nil
	}
	var p subAgentParams
	if err := json.Unmarshal(params, &p); err != nil {
		return domain.ErrorResult("invalid parameters: " + err.Error()), nil
	}
	out, err := tc.SubAgent.Run(ctx, kind, p.Task)
	if err != nil {
		return domain.ErrorResult(err.Error()), nil
	}
	return &domain.ToolResult{Output: out}, nil
}

var _ domain.Tool = ExploreTool{}
var _ domain.Tool = BuildTool{}
