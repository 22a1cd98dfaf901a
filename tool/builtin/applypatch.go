package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/sidecore/agentcore/domain"
)

type ApplyPatchTool struct{}

func (ApplyPatchTool) Name() string                 { return "apply_patch" }
func (ApplyPatchTool) SideEffect() domain.SideEffect { return domain.EffectWrite }
func (ApplyPatchTool) Description() string {
	return "Apply a unified diff spanning one or more files atomically: either every file's hunks apply cleanly and all are written, or none are."
}

type applyPatchParams struct {
	Patch string `json:"patch" jsonschema:"required,description=Unified diff text, as produced by diff -u or git diff."`
}

func (ApplyPatchTool) ParametersSchema() *jsonschema.Schema {
	return jsonschema.Reflect(&applyPatchParams{})
}

type patchFileResult struct {
	Path    string `json:"path"`
	Created bool   `json:"created"`
	Deleted bool   `json:"deleted"`
	Diff    string `json:"diff,omitempty"`
}

// Execute parses the patch into per-file hunks, stages every resulting write
// in memory, and only touches disk once every file's hunks have applied
// cleanly against its current content — matching apply_patch's all-or-
// nothing contract. Hunk application is adapted from the reverse-patch walk
// in coding/diffanalysis/patch.go, run forward (old lines -> new lines)
// instead of backward.
func (ApplyPatchTool) Execute(ctx context.Context, params json.RawMessage, tc *domain.ToolContext) (*domain.ToolResult, error) {
	var p applyPatchParams
	if err := json.Unmarshal(params, &p); err != nil {
		return domain.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(p.Patch) == "" {
		return domain.ErrorResult("patch must not be empty"), nil
	}

	files := parseUnifiedPatch(p.Patch)
	if len(files) == 0 {
		return domain.ErrorResult("no file hunks found in patch"), nil
	}

	type staged struct {
		resolved string
		rel      string
		content  string
		delete   bool
		create   bool
	}
	var plan []staged
	var results []patchFileResult

	for _, fd := range files {
		if fd.IsBinary {
			return domain.ErrorResult("cannot apply patch to binary file"), nil
		}
		rel := fd.NewPath
		if fd.IsDeleted {
			rel = fd.OldPath
		}
		if rel == "" || rel == "/dev/null" {
			return domain.ErrorResult("patch is missing a target path"), nil
		}

		resolved, err := ResolvePath(tc, rel)
		if err != nil {
			return domain.ErrorResult(err.Error()), nil
		}

		var before string
		if fd.IsNewFile {
			before = ""
		} else {
			data, err := os.ReadFile(resolved)
			if err != nil {
				return domain.ErrorResult(fmt.Sprintf("cannot read %s: %v", rel, err)), nil
			}
			before = string(data)
		}

		if fd.IsDeleted {
			plan = append(plan, staged{resolved: resolved, rel: rel, delete: true})
			results = append(results, patchFileResult{Path: rel, Deleted: true})
			continue
		}

		after, err := applyPatchHunks(before, fd.Hunks)
		if err != nil {
			return domain.ErrorResult(fmt.Sprintf("patch does not apply to %s: %v", rel, err)), nil
		}
		diff, _ := unifiedDiff(rel, before, after)
		plan = append(plan, staged{resolved: resolved, rel: rel, content: after, create: fd.IsNewFile})
		results = append(results, patchFileResult{Path: rel, Created: fd.IsNewFile, Diff: diff})
	}

	for _, s := range plan {
		if s.delete {
			if err := os.Remove(s.resolved); err != nil {
				return domain.ErrorResult(fmt.Sprintf("failed to delete %s: %v", s.rel, err)), nil
			}
			continue
		}
		if s.create {
			if err := os.MkdirAll(filepath.Dir(s.resolved), 0o755); err != nil {
				return domain.ErrorResult(fmt.Sprintf("failed to create directories for %s: %v", s.rel, err)), nil
			}
		}
		if err := os.WriteFile(s.resolved, []byte(s.content), 0o644); err != nil {
			return domain.ErrorResult(fmt.Sprintf("failed to write %s: %v", s.rel, err)), nil
		}
	}

	out := map[string]any{"files": results}
	b, _ := json.Marshal(out)
	return &domain.ToolResult{Output: string(b)}, nil
}

func applyPatchHunks(original string, hunks []patchHunk) (string, error) {
	oldLines := splitPatchLines(original)
	var newLines []string
	oldIdx := 0

	for _, hunk := range hunks {
		hunkStart := hunk.OldStart - 1
		if hunk.OldStart == 0 {
			hunkStart = 0
		}
		if hunkStart > len(oldLines) || hunkStart < oldIdx {
			return "", fmt.Errorf("hunk at old line %d does not align with file content", hunk.OldStart)
		}
		for oldIdx < hunkStart {
			newLines = append(newLines, oldLines[oldIdx])
			oldIdx++
		}
		for _, line := range hunk.Lines {
			switch line.Type {
			case patchLineContext:
				if oldIdx >= len(oldLines) || oldLines[oldIdx] != line.Content {
					return "", fmt.Errorf("context mismatch near line %d", oldIdx+1)
				}
				newLines = append(newLines, oldLines[oldIdx])
				oldIdx++
			case patchLineRemoved:
				if oldIdx >= len(oldLines) || oldLines[oldIdx] != line.Content {
					return "", fmt.Errorf("removed-line mismatch near line %d", oldIdx+1)
				}
				oldIdx++
			case patchLineAdded:
				newLines = append(newLines, line.Content)
			}
		}
	}
	for oldIdx < len(oldLines) {
		newLines = append(newLines, oldLines[oldIdx])
		oldIdx++
	}
	return joinPatchLines(newLines), nil
}

func splitPatchLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func joinPatchLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
