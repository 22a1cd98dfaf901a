package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"
	"github.com/sidecore/agentcore/domain"
)

const maxWriteBytes = 10 * 1024 * 1024

type WriteTool struct{}

func (WriteTool) Name() string                 { return "write" }
func (WriteTool) SideEffect() domain.SideEffect { return domain.EffectWrite }
func (WriteTool) Description() string {
	return "Write content to a file, creating parent directories as needed. Overwriting an existing file returns a unified diff against the prior content."
}

type writeParams struct {
	Path    string `json:"path" jsonschema:"required,description=File path to write."`
	Content string `json:"content" jsonschema:"required,description=New file content."`
}

func (WriteTool) ParametersSchema() *jsonschema.Schema {
	return jsonschema.Reflect(&writeParams{})
}

func (WriteTool) Execute(ctx context.Context, params json.RawMessage, tc *domain.ToolContext) (*domain.ToolResult, error) {
	var p writeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return domain.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if len(p.Content) > maxWriteBytes {
		return domain.ErrorResult(fmt.Sprintf("content exceeds the %d byte write limit", maxWriteBytes)), nil
	}

	resolved, err := ResolvePath(tc, p.Path)
	if err != nil {
		return domain.ErrorResult(err.Error()), nil
	}

	var diff string
	existing, readErr := os.ReadFile(resolved)
	overwriting := readErr == nil
	if overwriting {
		diff, err = unifiedDiff(p.Path, string(existing), p.Content)
		if err != nil {
			return domain.ErrorResult(fmt.Sprintf("failed to compute diff: %v", err)), nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return domain.ErrorResult(fmt.Sprintf("failed to create parent directories: %v", err)), nil
	}
	if err := os.WriteFile(resolved, []byte(p.Content), 0o644); err != nil {
		return domain.ErrorResult(fmt.Sprintf("failed to write file: %v", err)), nil
	}

	out := map[string]any{"path": p.Path, "bytes_written": len(p.Content), "overwritten": overwriting}
	b, _ := json.Marshal(out)
	return &domain.ToolResult{Output: string(b), Diff: diff, Files: []string{p.Path}}, nil
}
