package builtin

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/invopop/jsonschema"
	"github.com/sidecore/agentcore/domain"
	"github.com/sidecore/agentcore/tool"
)

const maxReadBytes = 10 * 1024 * 1024

type ReadTool struct{}

func (ReadTool) Name() string        { return "read" }
func (ReadTool) SideEffect() domain.SideEffect { return domain.EffectRead }
func (ReadTool) Description() string {
	return "Read a file's content, optionally windowed to a [offset,limit] range of lines."
}

func (ReadTool) ParametersSchema() *jsonschema.Schema {
	return jsonschema.Reflect(&readParams{})
}

type readParams struct {
	Path   string `json:"path" jsonschema:"required,description=File path to read."`
	Offset int    `json:"offset,omitempty" jsonschema:"description=1-indexed line to start at (default 1)."`
	Limit  int    `json:"limit,omitempty" jsonschema:"description=Maximum number of lines to return (default: whole file)."`
}

type readOutput struct {
	Content       string `json:"content"`
	TotalLines    int    `json:"total_lines"`
	LinesReturned int    `json:"lines_returned"`
	StartLine     int    `json:"start_line"`
}

func (ReadTool) Execute(ctx context.Context, params json.RawMessage, tc *domain.ToolContext) (*domain.ToolResult, error) {
	var p readParams
	if err := json.Unmarshal(params, &p); err != nil {
		return domain.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.Offset <= 0 {
		p.Offset = 1
	}

	resolved, err := ResolvePath(tc, p.Path)
	if err != nil {
		return domain.ErrorResult(err.Error()), nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			suggestions := suggestSimilarFiles(tc, p.Path, 5)
			msg := fmt.Sprintf("no file exists at the given path: %s", p.Path)
			if len(suggestions) > 0 {
				msg += fmt.Sprintf("; did you mean one of: %v?", suggestions)
			}
			return domain.ErrorResult(msg), nil
		}
		return domain.ErrorResult(fmt.Sprintf("failed to open file: %v", err)), nil
	}
	if len(data) > maxReadBytes {
		return domain.ErrorResult(fmt.Sprintf("file exceeds the %d byte read limit", maxReadBytes)), nil
	}
	if IsBinary(data) {
		return domain.ErrorResult("refusing to read binary file"), nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	var allLines []string
	for scanner.Scan() {
		allLines = append(allLines, scanner.Text())
	}

	total := len(allLines)
	start := p.Offset
	if start < 1 {
		start = 1
	}
	if start > total {
		start = total + 1
	}
	end := total
	if p.Limit > 0 && start-1+p.Limit < total {
		end = start - 1 + p.Limit
	}

	var selected []string
	if start <= end {
		selected = allLines[start-1 : end]
	}

	out := readOutput{
		Content:       joinLines(selected),
		TotalLines:    total,
		LinesReturned: len(selected),
		StartLine:     start,
	}
	b, _ := json.Marshal(out)
	return &domain.ToolResult{Output: string(b)}, nil
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}

func suggestSimilarFiles(tc *domain.ToolContext, target string, limit int) []string {
	root := tc.SandboxRoot
	if root == "" {
		root = tc.WorkingDir
	}
	if root == "" {
		return nil
	}
	targetBase := filepath.Base(target)
	type scored struct {
		path  string
		score float64
	}
	var candidates []scored
	_ = filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		score := tool.StringSimilarity(targetBase, filepath.Base(p))
		if score > 0.4 {
			candidates = append(candidates, scored{rel, score})
		}
		return nil
	})
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	var out []string
	for i := 0; i < len(candidates) && i < limit; i++ {
		out = append(out, candidates[i].path)
	}
	return out
}
