package builtin

import (
	"regexp"
	"strings"
)

// patchFileDiff, patchHunk and patchLine mirror the shape coding's diff
// analyzer uses to represent a parsed unified diff, adapted here to parse
// a patch supplied by the model rather than one generated from a VCS.
type patchFileDiff struct {
	OldPath   string
	NewPath   string
	IsNewFile bool
	IsDeleted bool
	IsBinary  bool
	Hunks     []patchHunk
}

type patchHunk struct {
	OldStart int
	NewStart int
	Lines    []patchLine
}

type patchLineType int

const (
	patchLineContext patchLineType = iota
	patchLineAdded
	patchLineRemoved
)

type patchLine struct {
	Type    patchLineType
	Content string
}

var (
	patchDiffHeaderRegex = regexp.MustCompile(`^diff --git a/(.+) b/(.+)$`)
	patchOldFileRegex    = regexp.MustCompile(`^--- (?:a/)?(.+)$`)
	patchNewFileRegex    = regexp.MustCompile(`^\+\+\+ (?:b/)?(.+)$`)
	patchHunkHeaderRegex = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)
)

// parseUnifiedPatch splits a unified diff into per-file hunks, adapted from
// coding/diffanalysis's ParseUnifiedDiff: same header/hunk grammar, but
// tolerant of a patch that targets a single file with no "diff --git" line,
// since models often emit a bare ---/+++ pair for one-file edits.
func parseUnifiedPatch(diff string) []patchFileDiff {
	lines := strings.Split(diff, "\n")
	var files []patchFileDiff
	var current *patchFileDiff
	var hunk *patchHunk

	flush := func() {
		if current == nil {
			return
		}
		if hunk != nil {
			current.Hunks = append(current.Hunks, *hunk)
			hunk = nil
		}
		files = append(files, *current)
		current = nil
	}

	for _, line := range lines {
		if m := patchDiffHeaderRegex.FindStringSubmatch(line); m != nil {
			flush()
			current = &patchFileDiff{OldPath: m[1], NewPath: m[2]}
			continue
		}
		if m := patchOldFileRegex.FindStringSubmatch(line); m != nil {
			if current == nil {
				current = &patchFileDiff{}
			}
			if m[1] == "/dev/null" {
				current.IsNewFile = true
			} else {
				current.OldPath = m[1]
			}
			continue
		}
		if m := patchNewFileRegex.FindStringSubmatch(line); m != nil {
			if current == nil {
				current = &patchFileDiff{}
			}
			if m[1] == "/dev/null" {
				current.IsDeleted = true
			} else {
				current.NewPath = m[1]
			}
			continue
		}
		if strings.HasPrefix(line, "Binary files") {
			if current != nil {
				current.IsBinary = true
			}
			continue
		}
		if m := patchHunkHeaderRegex.FindStringSubmatch(line); m != nil {
			if current == nil {
				continue
			}
			if hunk != nil {
				current.Hunks = append(current.Hunks, *hunk)
			}
			hunk = &patchHunk{OldStart: patchAtoi(m[1]), NewStart: patchAtoi(m[3])}
			continue
		}
		if hunk != nil && len(line) > 0 {
			switch line[0] {
			case ' ':
				hunk.Lines = append(hunk.Lines, patchLine{Type: patchLineContext, Content: line[1:]})
			case '+':
				hunk.Lines = append(hunk.Lines, patchLine{Type: patchLineAdded, Content: line[1:]})
			case '-':
				hunk.Lines = append(hunk.Lines, patchLine{Type: patchLineRemoved, Content: line[1:]})
			case '\\':
				// "\ No newline at end of file"
			}
		} else if hunk != nil {
			// blank line inside a hunk is a context line with empty content
			hunk.Lines = append(hunk.Lines, patchLine{Type: patchLineContext, Content: ""})
		}
	}
	flush()
	return files
}

func patchAtoi(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	return n
}
