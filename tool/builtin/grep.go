package builtin

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/invopop/jsonschema"
	"github.com/sidecore/agentcore/domain"
)

const grepMaxMatches = 500

type GrepTool struct{}

func (GrepTool) Name() string                 { return "grep" }
func (GrepTool) SideEffect() domain.SideEffect { return domain.EffectRead }
func (GrepTool) Description() string {
	return "Search file contents with a regular expression, optionally restricted to a glob, ripgrep-style."
}

type grepParams struct {
	Pattern      string `json:"pattern" jsonschema:"required,description=Regular expression to search for."`
	PathGlob     string `json:"path_glob,omitempty" jsonschema:"description=Restrict the search to files matching this glob (default **/*)."`
	ContextLines int    `json:"context_lines,omitempty" jsonschema:"description=Lines of context around each match."`
}

func (GrepTool) ParametersSchema() *jsonschema.Schema {
	return jsonschema.Reflect(&grepParams{})
}

type grepMatch struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Text    string `json:"text"`
	Context string `json:"context,omitempty"`
}

func (GrepTool) Execute(ctx context.Context, params json.RawMessage, tc *domain.ToolContext) (*domain.ToolResult, error) {
	var p grepParams
	if err := json.Unmarshal(params, &p); err != nil {
		return domain.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	re, err := regexp.Compile(p.Pattern)
	if err != nil {
		return domain.ErrorResult(fmt.Sprintf("invalid regular expression: %v", err)), nil
	}
	pathGlob := p.PathGlob
	if pathGlob == "" {
		pathGlob = "**/*"
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
	candidates, err := doublestar.Glob(fsys, pathGlob)
	if err != nil {
		return domain.ErrorResult(fmt.Sprintf("invalid path_glob: %v", err)), nil
	}

	var matches []grepMatch
	truncated := false
	for _, rel := range candidates {
		if len(matches) >= grepMaxMatches {
			truncated = true
			break
		}
		full := filepath.Join(root, rel)
		info, err := os.Stat(full)
		if err != nil || info.IsDir() || ign.isIgnored(full, false) {
			continue
		}
		if more := grepFile(full, rel, re, p.ContextLines, grepMaxMatches-len(matches)); len(more) > 0 {
			matches = append(matches, more...)
		}
	}

	out := map[string]any{"matches": matches, "truncated": truncated}
	b, _ := json.Marshal(out)
	return &domain.ToolResult{Output: string(b)}, nil
}

func grepFile(fullPath, relPath string, re *regexp.Regexp, contextLines, limit int) []grepMatch {
	f, err := os.Open(fullPath)
	if err != nil {
		return nil
	}
	defer f.Close()

	data := make([]byte, 8192)
	n, _ := f.Read(data)
	if IsBinary(data[:n]) {
		return nil
	}
	f.Seek(0, 0)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	var out []grepMatch
	for i, line := range lines {
		if len(out) >= limit {
			break
		}
		if !re.MatchString(line) {
			continue
		}
		ctxStr := ""
		if contextLines > 0 {
			start := max(0, i-contextLines)
			end := min(len(lines), i+contextLines+1)
			ctxStr = joinLines(lines[start:end])
		}
		out = append(out, grepMatch{Path: relPath, Line: i + 1, Text: line, Context: ctxStr})
	}
	return out
}
