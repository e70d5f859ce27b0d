package build

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/moby/go-archive"
)

var zipMagic = [][]byte{
	[]byte("PK\x03\x04"),
	[]byte("PK\x05\x06"), // empty archive
}

// Extract unpacks the archive at src into dest. Zip archives are detected by
// their signature; anything else is handed to the tar reader, which
// understands plain, gzip, bzip2, xz and zstd streams.
func Extract(src, dest string) error {
	isZip, err := sniffZip(src)
	if err != nil {
		return err
	}
	if isZip {
		return extractZip(src, dest)
	}
	return extractTar(src, dest)
}

func sniffZip(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	head := make([]byte, 4)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	for _, magic := range zipMagic {
		if bytes.Equal(head[:n], magic) {
			return true, nil
		}
	}
	return false, nil
}

func extractZip(src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return fmt.Errorf("failed to open zip %s: %w", src, err)
	}
	defer r.Close()

	realDest, err := filepath.EvalSymlinks(dest)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dest, err)
	}

	for _, f := range r.File {
		if err := extractZipEntry(f, dest, realDest); err != nil {
			return err
		}
	}
	return nil
}

// extractZipEntry writes one entry under dest. realDest is dest with
// symlinks resolved; every path written to must resolve inside it, so a
// symlink from an earlier entry cannot redirect a later one.
func extractZipEntry(f *zip.File, dest, realDest string) error {
	name := filepath.FromSlash(f.Name)
	if !filepath.IsLocal(name) {
		return fmt.Errorf("zip entry %q escapes the build directory", f.Name)
	}
	target := filepath.Join(dest, name)
	if !resolvesWithin(realDest, target) {
		return fmt.Errorf("zip entry %q escapes the build directory through a symlink", f.Name)
	}
	mode := f.Mode()

	if mode.IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", f.Name, err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open zip entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	if mode&os.ModeSymlink != 0 {
		link, err := io.ReadAll(rc)
		if err != nil {
			return fmt.Errorf("failed to read link %s: %w", f.Name, err)
		}
		if filepath.IsAbs(string(link)) || !within(dest, filepath.Join(filepath.Dir(target), string(link))) {
			return fmt.Errorf("zip entry %q links outside the build directory", f.Name)
		}
		return os.Symlink(string(link), target)
	}

	perm := mode.Perm()
	if perm == 0 {
		// Archives written on Windows carry no unix mode.
		perm = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", f.Name, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("failed to write %s: %w", f.Name, err)
	}
	return out.Close()
}

// resolvesWithin reports whether path, with the symlinks of its existing
// leading components resolved, stays inside root. Missing components are
// created under the deepest existing one, so only that one is resolved.
func resolvesWithin(root, path string) bool {
	existing := path
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return false
		}
		existing = parent
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		// Dangling link.
		return false
	}
	return within(root, resolved)
}

// within reports whether path is root or lexically below it.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && filepath.IsLocal(rel)
}

func extractTar(src, dest string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer f.Close()

	// Lambda does not run as root, so ownership from the archive cannot be applied.
	if err := archive.Untar(f, dest, &archive.TarOptions{NoLchown: true}); err != nil {
		return fmt.Errorf("failed to untar %s: %w", src, err)
	}
	return nil
}
