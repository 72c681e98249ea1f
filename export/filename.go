package export

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// maxCollisionSuffix bounds the search for a free name.
const maxCollisionSuffix = 10000

// sanitizeFilename strips any directory components from hint and replaces
// every character outside [A-Za-z0-9._-] with an underscore.
func sanitizeFilename(hint string) (string, error) {
	hint = strings.TrimSpace(strings.ReplaceAll(hint, `\`, "/"))
	name := unsafeFilenameChars.ReplaceAllString(path.Base(hint), "_")

	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	switch {
	case name == "" || name == "." || name == "/" || base == "":
		return "", fmt.Errorf("%w: %q has no base name", ErrInvalidFilename, hint)
	case len(ext) < 2:
		return "", fmt.Errorf("%w: %q has no extension", ErrInvalidFilename, hint)
	}
	return name, nil
}

// defaultFilename builds <host>_scan_<timestamp>.<ext>.
func defaultFilename(host string, at time.Time, f Format) string {
	host = unsafeFilenameChars.ReplaceAllString(host, "_")
	return fmt.Sprintf("%s_scan_%s.%s", host, at.Format("20060102_150405"), f.Extension())
}

// ensureWritableDir creates dir if needed and verifies files can be created in it.
func ensureWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create directory %s: %w", ErrExportIO, dir, err)
	}
	probe, err := os.CreateTemp(dir, ".writable-*")
	if err != nil {
		return fmt.Errorf("%w: directory %s is not writable: %w", ErrExportIO, dir, err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return nil
}

// writeExclusive writes data to dir/name, or to name.1, name.2, ... when the
// path is taken. Existing files are never overwritten. On failure the partial
// file is removed.
func writeExclusive(dir, name string, data []byte) (string, error) {
	for n := 0; n <= maxCollisionSuffix; n++ {
		candidate := name
		if n > 0 {
			candidate = name + "." + strconv.Itoa(n)
		}
		p := filepath.Join(dir, candidate)

		f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("%w: create %s: %w", ErrExportIO, p, err)
		}

		cleanup := func() {
			_ = f.Close()
			_ = os.Remove(p)
		}
		if _, err := f.Write(data); err != nil {
			cleanup()
			return "", fmt.Errorf("%w: write %s: %w", ErrExportIO, p, err)
		}
		if err := f.Sync(); err != nil {
			cleanup()
			return "", fmt.Errorf("%w: sync %s: %w", ErrExportIO, p, err)
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(p)
			return "", fmt.Errorf("%w: close %s: %w", ErrExportIO, p, err)
		}
		return p, nil
	}
	return "", fmt.Errorf("%w: no free file name for %s", ErrExportIO, name)
}
