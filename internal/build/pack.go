package build

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Pack writes every file under root into a new zip archive at dest, named by
// its slash-separated path relative to root. It returns the number of entries.
func Pack(root, dest string) (int, error) {
	out, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	count := 0
	for path, err := range Walk(root) {
		if err != nil {
			return count, fmt.Errorf("failed to walk %s: %w", root, err)
		}
		if err := addFile(zw, root, path); err != nil {
			return count, err
		}
		count++
	}

	if err := zw.Close(); err != nil {
		return count, fmt.Errorf("failed to finish archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return count, fmt.Errorf("failed to close %s: %w", dest, err)
	}
	return count, nil
}

func addFile(zw *zip.Writer, root, path string) error {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return fmt.Errorf("failed to relativize %s: %w", path, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", rel, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", rel, err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to build header for %s: %w", rel, err)
	}
	header.Name = filepath.ToSlash(rel)
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", rel, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}
	return nil
}
