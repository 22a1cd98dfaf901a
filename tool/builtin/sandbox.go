// Package builtin implements the closed set of built-in tools from
// spec.md §4.3, grounded on the teacher's dev/*.go tool implementations.
package builtin

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sidecore/agentcore/domain"
)

// ResolvePath canonicalizes an input path relative to the context's
// working directory and, when a sandbox root is set, rejects any path
// that escapes it. Grounded on spec.md §4.3's path-resolution-helper
// requirement; the teacher enforces the analogous constraint inline in
// each dev/*.go tool rather than as a shared helper, which is why this
// one function is new rather than lifted wholesale.
func ResolvePath(tc *domain.ToolContext, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path must not be empty")
	}
	base := tc.WorkingDir
	if base == "" {
		base = "."
	}
	var abs string
	if filepath.IsAbs(path) {
		abs = filepath.Clean(path)
	} else {
		abs = filepath.Clean(filepath.Join(base, path))
	}

	if tc.SandboxRoot != "" {
		root := filepath.Clean(tc.SandboxRoot)
		if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
			return "", fmt.Errorf("path %q escapes sandbox root %q", path, tc.SandboxRoot)
		}
	}
	return abs, nil
}

// IsBinary scans up to the first 8 KiB of data for a NUL byte, the same
// heuristic the read tool applies.
func IsBinary(data []byte) bool {
	n := len(data)
	if n > 8192 {
		n = 8192
	}
	for i := 0; i < n; i++ {
		if data[i] == 0 {
			return true
		}
	}
	return false
}

func dirExistsOrEmpty(dir string) bool {
	if dir == "" || dir == "." {
		return true
	}
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}
