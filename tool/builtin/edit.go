package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/sidecore/agentcore/domain"
	"github.com/sidecore/agentcore/tool"
)

type EditTool struct{}

func (EditTool) Name() string                 { return "edit" }
func (EditTool) SideEffect() domain.SideEffect { return domain.EffectWrite }
func (EditTool) Description() string {
	return "Replace a single occurrence of old_string with new_string in a file. Must match exactly once, or fuzzy-match (whitespace/unicode-tolerant) uniquely."
}

type editParams struct {
	Path       string `json:"path" jsonschema:"required,description=File path to edit."`
	OldString  string `json:"old_string" jsonschema:"required,description=Exact text to replace."`
	NewString  string `json:"new_string" jsonschema:"required,description=Replacement text."`
	ReplaceAll bool   `json:"replace_all,omitempty" jsonschema:"description=Replace every occurrence instead of requiring exactly one."`
}

func (EditTool) ParametersSchema() *jsonschema.Schema {
	return jsonschema.Reflect(&editParams{})
}

func (EditTool) Execute(ctx context.Context, params json.RawMessage, tc *domain.ToolContext) (*domain.ToolResult, error) {
	var p editParams
	if err := json.Unmarshal(params, &p); err != nil {
		return domain.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
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

	after, warnings, err := applyEdit(before, p.OldString, p.NewString, p.ReplaceAll)
	if err != nil {
		return domain.ErrorResult(err.Error()), nil
	}

	diff, err := unifiedDiff(p.Path, before, after)
	if err != nil {
		return domain.ErrorResult(fmt.Sprintf("failed to compute diff: %v", err)), nil
	}
	if err := os.WriteFile(resolved, []byte(after), 0o644); err != nil {
		return domain.ErrorResult(fmt.Sprintf("failed to write file: %v", err)), nil
	}

	out := map[string]any{"path": p.Path}
	b, _ := json.Marshal(out)
	return &domain.ToolResult{Output: string(b), Diff: diff, Warnings: warnings, Files: []string{p.Path}}, nil
}

// applyEdit resolves old_string against content: first by exact
// occurrence count, then — when there's no exact match — by finding a
// uniquely-best fuzzy match among equal-length line windows, using the
// same whitespace-tolerant similarity scoring the teacher's edit-block
// matcher uses (dev/apply_edit_blocks.go's FindAcceptableMatch /
// FindClosestMatch, via utils.StringSimilarity), simplified to a single
// resolution pass rather than the teacher's multi-stage expand/narrow
// pipeline.
func applyEdit(content, oldString, newString string, replaceAll bool) (string, []string, error) {
	count := strings.Count(content, oldString)
	if count == 1 || (replaceAll && count > 0) {
		n := 1
		if replaceAll {
			n = -1
		}
		return strings.Replace(content, oldString, newString, n), nil, nil
	}
	if count > 1 {
		return "", nil, fmt.Errorf("old_string matches %d times; expected exactly 1 (pass replace_all to replace them all)", count)
	}

	match, warnings, err := fuzzyFindUniqueMatch(content, oldString)
	if err != nil {
		return "", nil, err
	}
	return content[:match.start] + newString + content[match.end:], warnings, nil
}

type fuzzyMatch struct {
	start, end int
	score      float64
}

func fuzzyFindUniqueMatch(content, oldString string) (fuzzyMatch, []string, error) {
	oldLines := strings.Split(oldString, "\n")
	contentLines := strings.Split(content, "\n")
	windowLen := len(oldLines)
	if windowLen == 0 || windowLen > len(contentLines) {
		return fuzzyMatch{}, nil, fmt.Errorf("old_string not found in file (0 matches)")
	}

	const threshold = 0.85
	var best, secondBest fuzzyMatch
	best.score = -1
	secondBest.score = -1

	lineOffsets := make([]int, len(contentLines)+1)
	offset := 0
	for i, l := range contentLines {
		lineOffsets[i] = offset
		offset += len(l) + 1
	}
	lineOffsets[len(contentLines)] = offset

	for i := 0; i+windowLen <= len(contentLines); i++ {
		candidate := strings.Join(contentLines[i:i+windowLen], "\n")
		score := tool.StringSimilarity(oldString, candidate)
		if score > best.score {
			secondBest = best
			best = fuzzyMatch{start: lineOffsets[i], end: lineOffsets[i+windowLen] - 1, score: score}
		} else if score > secondBest.score {
			secondBest = fuzzyMatch{start: lineOffsets[i], end: lineOffsets[i+windowLen] - 1, score: score}
		}
	}

	if best.score < threshold {
		return fuzzyMatch{}, nil, fmt.Errorf("old_string not found in file (0 matches)")
	}
	if secondBest.score >= threshold && secondBest.score >= best.score-0.02 {
		return fuzzyMatch{}, nil, fmt.Errorf("old_string fuzzy-matches multiple locations ambiguously; expected exactly 1")
	}

	return best, []string{fmt.Sprintf("old_string matched fuzzily (similarity %.2f), not exactly", best.score)}, nil
}
