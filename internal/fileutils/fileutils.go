// Package fileutils provides helpers to read and replace line oriented files.
package fileutils

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ubuntu/decorate"
)

// AtomicWrite replaces the content of path with data, with permissions perm.
// Readers see either the previous content or the new one, never a partial write.
// Not atomic on Windows.
func AtomicWrite(path string, data []byte, perm os.FileMode) (err error) {
	defer decorate.OnError(&err, "could not replace %s", path)

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("could not create temporary file: %v", err)
	}
	defer func() {
		_ = tmp.Close()
		if err := os.Remove(tmp.Name()); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to remove temporary file", "file", tmp.Name(), "error", err)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("could not write to temporary file: %v", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("could not set permissions of temporary file: %v", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("could not flush temporary file: %v", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not close temporary file: %v", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("could not rename temporary file: %v", err)
	}
	return nil
}

// WriteLines atomically replaces the content of path with lines, each one newline terminated.
func WriteLines(path string, lines []string, perm os.FileMode) error {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return AtomicWrite(path, []byte(b.String()), perm)
}

// ReadLines returns the non blank lines of path, without their line terminator.
func ReadLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var lines []string
	for l := range strings.SplitSeq(string(data), "\n") {
		l = strings.TrimSuffix(l, "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, l)
	}
	return lines, nil
}
