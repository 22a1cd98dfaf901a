package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/sidecore/agentcore/domain"
)

const (
	defaultListDepth = 2
	defaultListLimit = 200
	maxListLimit     = 10000
)

type ListTool struct{}

func (ListTool) Name() string                 { return "list" }
func (ListTool) SideEffect() domain.SideEffect { return domain.EffectRead }
func (ListTool) Description() string {
	return "List a directory tree, skipping dotfiles and ignored paths, up to a depth and entry limit."
}

type listParams struct {
	Path  string `json:"path" jsonschema:"required,description=Directory to list."`
	Depth int    `json:"depth,omitempty" jsonschema:"description=Maximum recursion depth (default 2)."`
	Limit int    `json:"limit,omitempty" jsonschema:"description=Maximum entries returned (default 200, max 10000)."`
}

func (ListTool) ParametersSchema() *jsonschema.Schema {
	return jsonschema.Reflect(&listParams{})
}

type treeEntry struct {
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
}

func (ListTool) Execute(ctx context.Context, params json.RawMessage, tc *domain.ToolContext) (*domain.ToolResult, error) {
	var p listParams
	if err := json.Unmarshal(params, &p); err != nil {
		return domain.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.Depth <= 0 {
		p.Depth = defaultListDepth
	}
	if p.Limit <= 0 {
		p.Limit = defaultListLimit
	}
	if p.Limit > maxListLimit {
		p.Limit = maxListLimit
	}

	resolved, err := ResolvePath(tc, p.Path)
	if err != nil {
		return domain.ErrorResult(err.Error()), nil
	}
	info, err := os.Stat(resolved)
	if err != nil || !info.IsDir() {
		return domain.ErrorResult(fmt.Sprintf("not a directory: %s", p.Path)), nil
	}

	ign := newIgnoreManager(resolved)

	var entries []treeEntry
	truncated := false

	var walk func(dir string, rel string, depth int) bool
	walk = func(dir string, rel string, depth int) bool {
		items, err := os.ReadDir(dir)
		if err != nil {
			return true
		}
		sort.Slice(items, func(i, j int) bool { return items[i].Name() < items[j].Name() })
		for _, item := range items {
			if strings.HasPrefix(item.Name(), ".") {
				continue
			}
			full := filepath.Join(dir, item.Name())
			relPath := item.Name()
			if rel != "" {
				relPath = filepath.Join(rel, item.Name())
			}
			if ign.isIgnored(full, item.IsDir()) {
				continue
			}
			if len(entries) >= p.Limit {
				truncated = true
				return false
			}
			entries = append(entries, treeEntry{Path: relPath, IsDir: item.IsDir()})
			if item.IsDir() && depth < p.Depth {
				if !walk(full, relPath, depth+1) {
					return false
				}
			}
		}
		return true
	}
	walk(resolved, "", 1)

	out := map[string]any{"entries": entries, "truncated": truncated}
	b, _ := json.Marshal(out)
	return &domain.ToolResult{Output: string(b)}, nil
}
