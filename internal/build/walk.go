package build

import (
	"iter"
	"os"
	"path/filepath"
)

// Walk yields every file under root, depth first, in directory listing
// order. Directories themselves are not yielded, so empty directories leave
// no trace. Symlinks are followed: a link to a file is yielded under the
// link's name, and a link to a directory is descended into with paths kept
// under the link. A link back to a directory already being walked is
// skipped. The sequence stops at the first error, which is yielded with an
// empty path.
func Walk(root string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		w := &walker{yield: yield, active: make(map[string]bool)}
		w.walkDir(root)
	}
}

type walker struct {
	yield func(string, error) bool
	// active holds the resolved paths of the directories on the current
	// descent, so a link cycle is cut where it closes.
	active map[string]bool
}

func (w *walker) walkDir(dir string) bool {
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		w.yield("", err)
		return false
	}
	if w.active[resolved] {
		return true
	}
	w.active[resolved] = true
	defer delete(w.active, resolved)

	entries, err := os.ReadDir(dir)
	if err != nil {
		w.yield("", err)
		return false
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		switch {
		case entry.IsDir():
			if !w.walkDir(path) {
				return false
			}
		case entry.Type().IsRegular():
			if !w.yield(path, nil) {
				return false
			}
		case entry.Type()&os.ModeSymlink != 0:
			info, err := os.Stat(path)
			if err != nil {
				// Dangling link.
				continue
			}
			switch {
			case info.IsDir():
				if !w.walkDir(path) {
					return false
				}
			case info.Mode().IsRegular():
				if !w.yield(path, nil) {
					return false
				}
			}
		}
	}
	return true
}
