package constants

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServiceDataDir(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		baseDir func() (string, error)

		want string
	}{
		"Base directory is used":       {baseDir: func() (string, error) { return "abc/def", nil }, want: filepath.Join("abc/def", DefaultServiceFolder)},
		"Error falls back to relative": {baseDir: func() (string, error) { return "abc", errors.New("error") }, want: DefaultServiceFolder},
		"Empty falls back to relative": {baseDir: func() (string, error) { return "", nil }, want: DefaultServiceFolder},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got := serviceDataDir(tc.baseDir)
			require.Equal(t, tc.want, got, "serviceDataDir should return the expected directory")
		})
	}
}
