package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/sidecore/agentcore/domain"
)

type MultiEditTool struct{}

func (MultiEditTool) Name() string                 { return "multiedit" }
func (MultiEditTool) SideEffect() domain.SideEffect { return domain.EffectWrite }
func (MultiEditTool) Description() string {
	return "Apply a sequence of edits to a single file against the evolving buffer. One write; partial success reports per-edit warnings."
}

type singleEdit struct {
	OldString  string `json:"old_string" jsonschema:"required"`
	NewString  string `json:"new_string" jsonschema:"required"`
	ReplaceAll bool   `json:"replace_all,omitempty"`
}

type multiEditParams struct {
	Path  string       `json:"path" jsonschema:"required,description=File path to edit."`
	Edits []singleEdit `json:"edits" jsonschema:"required,description=Edits to apply in order."`
}

func (MultiEditTool) ParametersSchema() *jsonschema.Schema {
	return jsonschema.Reflect(&multiEditParams{})
}

func (MultiEditTool) Execute(ctx context.Context, params json.RawMessage, tc *domain.ToolContext) (*domain.ToolResult, error) {
	var p multiEditParams
	if err := json.Unmarshal(params, &p); err != nil {
		return domain.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if len(p.Edits) == 0 {
		return domain.ErrorResult("edits must not be empty"), nil
	}

	resolved, err := ResolvePath(tc, p.Path)
	if err != nil {
		return domain.ErrorResult(err.Error()), nil
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return domain.ErrorResult(fmt.Sprintf("failed to read file: %v", err)), nil
	}
	before := string(data)
	buf := before

	var warnings []string
	appliedAny := false
	for i, e := range p.Edits {
		next, w, err := applyEdit(buf, e.OldString, e.NewString, e.ReplaceAll)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("edit %d skipped: %v", i, err))
			continue
		}
		buf = next
		appliedAny = true
		warnings = append(warnings, w...)
	}

	if !appliedAny {
		return domain.ErrorResult(fmt.Sprintf("no edits could be applied; %d edit(s) failed", len(p.Edits))), nil
	}

	diff, err := unifiedDiff(p.Path, before, buf)
	if err != nil {
		return domain.ErrorResult(fmt.Sprintf("failed to compute diff: %v", err)), nil
	}
	if err := os.WriteFile(resolved, []byte(buf), 0o644); err != nil {
		return domain.ErrorResult(fmt.Sprintf("failed to write file: %v", err)), nil
	}

	out := map[string]any{"path": p.Path, "edits_applied": len(p.Edits) - countFailures(warnings)}
	b, _ := json.Marshal(out)
	return &domain.ToolResult{Output: string(b), Diff: diff, Warnings: warnings, Files: []string{p.Path}}, nil
}

func countFailures(warnings []string) int {
	n := 0
	for _, w := range warnings {
		if strings.Contains(w, "skipped:") {
			n++
		}
	}
	return n
}
