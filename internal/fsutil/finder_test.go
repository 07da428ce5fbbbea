package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"b.hcl", "a.hcl", "notes.txt", "sub/c.hcl"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, nil, 0o644))
	}

	t.Run("walks directories and de-duplicates", func(t *testing.T) {
		got, err := FindFiles([]string{dir, filepath.Join(dir, "a.hcl")}, ".hcl")
		require.NoError(t, err)
		assert.Equal(t, []string{
			filepath.Join(dir, "a.hcl"),
			filepath.Join(dir, "b.hcl"),
			filepath.Join(dir, "sub", "c.hcl"),
		}, got)
	})

	t.Run("plain file with another extension is skipped", func(t *testing.T) {
		got, err := FindFiles([]string{filepath.Join(dir, "notes.txt")}, ".hcl")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := FindFiles([]string{filepath.Join(dir, "nope")}, ".hcl")
		assert.ErrorContains(t, err, "error accessing path")
	})

	t.Run("empty extension panics", func(t *testing.T) {
		assert.Panics(t, func() { _, _ = FindFiles(nil, "") })
	})
}
