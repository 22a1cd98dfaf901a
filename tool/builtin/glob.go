package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/invopop/jsonschema"
	"github.com/sidecore/agentcore/domain"
)

type GlobTool struct{}

func (GlobTool) Name() string                 { return "glob" }
func (GlobTool) SideEffect() domain.SideEffect { return domain.EffectRead }
func (GlobTool) Description() string {
	return "Return file paths matching a doublestar glob pattern, respecting the sandbox root and ignore files."
}

type globParams struct {
	Pattern string `json:"pattern" jsonschema:"required,description=Glob pattern, e.g. **/*.go."`
}

func (GlobTool) ParametersSchema() *jsonschema.Schema {
	return jsonschema.Reflect(&globParams{})
}

func (GlobTool) Execute(ctx context.Context, params json.RawMessage, tc *domain.ToolContext) (*domain.ToolResult, error) {
	var p globParams
	if err := json.Unmarshal(params, &p); err != nil {
		return domain.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if !doublestar.ValidatePattern(p.Pattern) {
		return domain.ErrorResult(fmt.Sprintf("invalid glob pattern: %s", p.Pattern)), nil
	}

	root := tc.WorkingDir
	if tc.SandboxRoot != "" {
		root = tc.SandboxRoot
	}
	if root == "" {
		root = "."
	}

	ign := newIgnoreManager(root)
	fsys := os.DirFS(root)

	matches, err := doublestar.Glob(fsys, p.Pattern)
	if err != nil {
		return domain.ErrorResult(fmt.Sprintf("glob failed: %v", err)), nil
	}

	var paths []string
	for _, m := range matches {
		full := filepath.Join(root, m)
		info, err := os.Stat(full)
		isDir := err == nil && info.IsDir()
		if ign.isIgnored(full, isDir) {
			continue
		}
		paths = append(paths, m)
	}
	sort.Strings(paths)

	out := map[string]any{"paths": paths}
	b, _ := json.Marshal(out)
	return &domain.ToolResult{Output: string(b)}, nil
}
