package domain

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// ToolChoiceType selects how the provider should pick among available
// tools, grounded on common.ToolChoice in the teacher.
type ToolChoiceType string

const (
	ToolChoiceAuto     ToolChoiceType = "auto"
	ToolChoiceRequired ToolChoiceType = "required"
	ToolChoiceTool     ToolChoiceType = "tool"
)

type ToolChoice struct {
	Type ToolChoiceType `json:"type"`
	Name string         `json:"name,omitempty"`
}

// ToolDefinition is the provider-facing shape of a registered Tool: name,
// description and a JSON schema for its parameters. Grounded on
// common.Tool (llm_types.go) in the teacher.
type ToolDefinition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

// SideEffect classifies a tool's blast radius. The orchestrator's
// plan-mode gate (spec.md §4.3) blocks Write and Exec tools.
type SideEffect int

const (
	EffectPure SideEffect = iota
	EffectRead
	EffectWrite
	EffectExec
	EffectNetwork
)

// Tool is the capability set every tool implements: name, schema,
// description, async execute. Spec.md §4.3.
type Tool interface {
	Name() string
	Description() string
	ParametersSchema() *jsonschema.Schema
	SideEffect() SideEffect
	Execute(ctx context.Context, params json.RawMessage, tc *ToolContext) (*ToolResult, error)
}

// UIHandledTool is implemented by tools the orchestrator must intercept
// before execution rather than run through the registry directly
// (ask_user, enter_plan_mode, set_work_mode, task_*). See spec.md §4.3/§4.4.
type UIHandledTool interface {
	Tool
	UIHandled()
}

// ToolContext conveys everything a tool execution needs, per spec.md §4.3.
type ToolContext struct {
	Context      context.Context
	WorkingDir   string
	SandboxRoot  string
	UserID       string
	PlanMode     bool
	OutputChan   chan<- string // streaming stdout, e.g. for bash
	CancelSignal <-chan struct{}
	Registry     ToolRegistry
	SubAgent     SubAgentRunner
}

// SubAgentRunner lets the explore/build tools spawn a scoped mini
// orchestrator without an import cycle between domain, tool, and
// orchestrator. Kind selects the scoped tool subset ("explore" is
// read-only, "build" also allows mutation).
type SubAgentRunner interface {
	Run(ctx context.Context, kind string, task string) (string, error)
}

// ToolRegistry is the minimal surface orchestrator and sub-agent tools
// need from the registry, kept here to avoid an import cycle between
// domain and tool.
type ToolRegistry interface {
	Definitions() []ToolDefinition
	Lookup(name string) (Tool, bool)
}

// ToolResult is what execute() returns. Output is by convention a JSON
// document for structured tools (see the envelope shape in spec.md §6).
type ToolResult struct {
	Output   string   `json:"output"`
	IsError  bool     `json:"isError"`
	Warnings []string `json:"warnings,omitempty"`
	Diff     string   `json:"diff,omitempty"`
	Files    []string `json:"files,omitempty"`
}

// ErrorResult is a convenience constructor for the common "synthetic
// error tool-result" path (sandbox violation, plan-mode block, unknown
// tool, denied approval, cancellation — spec.md §7).
func ErrorResult(msg string) *ToolResult {
	return &ToolResult{Output: msg, IsError: true}
}
