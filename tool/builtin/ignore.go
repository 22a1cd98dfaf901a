package builtin

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/denormal/go-gitignore"
)

// ignoreFile is a single .gitignore/.ignore found between a base
// directory and its repo root.
type ignoreFile struct {
	dir       string
	rank      int
	gitIgnore gitignore.GitIgnore
}

// ignoreManager evaluates a path against every ignore file between the
// walk root and its git root, deepest and most-specific first. Grounded
// on common/walk_directory.go's IgnoreManager; trimmed to .gitignore and
// .ignore (the teacher's third tier, .sideignore, is a product-specific
// convention this core has no equivalent for).
type ignoreManager struct {
	files []ignoreFile
}

func newIgnoreManager(baseDir string) *ignoreManager {
	root := findGitRoot(baseDir)
	var files []ignoreFile
	dir := baseDir
	for {
		for rank, name := range []string{".ignore", ".gitignore"} {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				if gi, err := gitignore.NewRepositoryWithFile(dir, name); err == nil {
					files = append(files, ignoreFile{dir: dir, rank: rank, gitIgnore: gi})
				}
			}
		}
		if dir == root {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	sort.Slice(files, func(i, j int) bool {
		di := len(strings.Split(files[i].dir, string(filepath.Separator)))
		dj := len(strings.Split(files[j].dir, string(filepath.Separator)))
		if di != dj {
			return di > dj
		}
		return files[i].rank > files[j].rank
	})
	return &ignoreManager{files: files}
}

func findGitRoot(start string) string {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}
		dir = parent
	}
}

func (m *ignoreManager) isIgnored(path string, isDir bool) bool {
	for _, f := range m.files {
		if match := f.gitIgnore.Absolute(path, isDir); match != nil {
			return match.Ignore()
		}
	}
	return false
}
