package testutils

import (
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// DirContents returns the regular files under dir, keyed by their slash separated relative path.
func DirContents(t *testing.T, dir string) map[string]string {
	t.Helper()

	files := make(map[string]string)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = string(content)
		return nil
	})
	require.NoError(t, err, "failed to read directory contents")
	return files
}

// ModuleRoot returns the root directory of the module.
func ModuleRoot() string {
	// p is {MODULE_ROOT}/internal/testutils/files.go
	_, p, _, _ := runtime.Caller(0)
	for range 3 {
		p = filepath.Dir(p)
	}
	return p
}
