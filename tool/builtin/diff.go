package builtin

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// unifiedDiff renders a unified diff the way the write tool appends it
// when overwriting a file. Grounded on the teacher's git-diff-shaped
// reports (coding/git/git_diff.go); go-difflib is used directly instead
// of shelling to git, since the write tool operates on in-memory content
// that may not yet be on disk as a git blob.
func unifiedDiff(path, before, after string) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: path,
		ToFile:   path,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(text, "\n"), nil
}
