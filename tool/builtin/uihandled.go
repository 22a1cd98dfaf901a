package builtin

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/sidecore/agentcore/domain"
)

// UI-handled tools are never run through the registry's normal dispatch
// path: the orchestrator recognizes them by name before execution,
// emits the corresponding LoopEvent, parks for a LoopInput, and
// synthesizes the tool-result itself (spec.md §4.3/§4.4). Their Execute
// methods exist only so Name/Description/ParametersSchema can be
// advertised to the provider like any other tool; if one is ever called
// directly it means the orchestrator's interception is missing, so it
// returns a loud error rather than silently doing nothing. Grounded on
// the ask-for-help pattern in dev/get_help_or_input.go and the
// pause/resume signal shape in dev/pause.go.

type askUserParams struct {
	Question string `json:"question" jsonschema:"required,description=The question to put to the human operator."`
}

type AskUserTool struct{}

func (AskUserTool) Name() string                  { return "ask_user" }
func (AskUserTool) SideEffect() domain.SideEffect { return domain.EffectPure }
func (AskUserTool) Description() string {
	return "Ask the human operator a question and wait for their reply."
}
func (AskUserTool) ParametersSchema() *jsonschema.Schema {
	return jsonschema.Reflect(&askUserParams{})
}
func (AskUserTool) UIHandled() {}
func (AskUserTool) Execute(context.Context, json.RawMessage, *domain.ToolContext) (*domain.ToolResult, error) {
	return domain.ErrorResult("ask_user must be intercepted by the orchestrator, not executed directly"), nil
}

type enterPlanModeParams struct {
	Reason string `json:"reason,omitempty" jsonschema:"description=Why planning is needed before making changes."`
}

type EnterPlanModeTool struct{}

func (EnterPlanModeTool) Name() string                  { return "enter_plan_mode" }
func (EnterPlanModeTool) SideEffect() domain.SideEffect { return domain.EffectPure }
func (EnterPlanModeTool) Description() string {
	return "Switch the session into plan mode: mutating tools are disabled until a plan is confirmed."
}
func (EnterPlanModeTool) ParametersSchema() *jsonschema.Schema {
	return jsonschema.Reflect(&enterPlanModeParams{})
}
func (EnterPlanModeTool) UIHandled() {}
func (EnterPlanModeTool) Execute(context.Context, json.RawMessage, *domain.ToolContext) (*domain.ToolResult, error) {
	return domain.ErrorResult("enter_plan_mode must be intercepted by the orchestrator, not executed directly"), nil
}

type setWorkModeParams struct {
	Mode string `json:"mode" jsonschema:"required,enum=build,enum=plan,description=The work mode to switch to."`
}

type SetWorkModeTool struct{}

func (SetWorkModeTool) Name() string                  { return "set_work_mode" }
func (SetWorkModeTool) SideEffect() domain.SideEffect { return domain.EffectPure }
func (SetWorkModeTool) Description() string {
	return "Change the session's work mode between build (mutating tools allowed) and plan (read-only)."
}
func (SetWorkModeTool) ParametersSchema() *jsonschema.Schema {
	return jsonschema.Reflect(&setWorkModeParams{})
}
func (SetWorkModeTool) UIHandled() {}
func (SetWorkModeTool) Execute(context.Context, json.RawMessage, *domain.ToolContext) (*domain.ToolResult, error) {
	return domain.ErrorResult("set_work_mode must be intercepted by the orchestrator, not executed directly"), nil
}

type taskUpdateParams struct {
	TaskID string `json:"task_id" jsonschema:"required,description=Id of the plan task to update."`
	Status string `json:"status" jsonschema:"required,enum=pending,enum=in_progress,enum=completed,description=New status for the task."`
}

// TaskUpdateTool backs every task_* tool name (task_update, task_add,
// task_complete, ...); the orchestrator dispatches on ToolUse.Name
// directly rather than needing one Go type per verb.
type TaskUpdateTool struct{ name string }

func NewTaskUpdateTool(name string) TaskUpdateTool { return TaskUpdateTool{name: name} }

func (t TaskUpdateTool) Name() string                  { return t.name }
func (TaskUpdateTool) SideEffect() domain.SideEffect { return domain.EffectPure }
func (TaskUpdateTool) Description() string {
	return "Update the structured plan's task list attached to this session."
}
func (TaskUpdateTool) ParametersSchema() *jsonschema.Schema {
	return jsonschema.Reflect(&taskUpdateParams{})
}
func (TaskUpdateTool) UIHandled() {}
func (TaskUpdateTool) Execute(context.Context, json.RawMessage, *domain.ToolContext) (*domain.ToolResult, error) {
	return domain.ErrorResult("task_* tools must be intercepted by the orchestrator, not executed directly"), nil
}

var _ domain.UIHandledTool = AskUserTool{}
var _ domain.UIHandledTool = EnterPlanModeTool{}
var _ domain.UIHandledTool = SetWorkModeTool{}
var _ domain.UIHandledTool = TaskUpdateTool{}
