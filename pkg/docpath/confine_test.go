package docpath

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInDir(t *testing.T) {
	dir := t.TempDir()
	uploads := filepath.Join(dir, "uploads")
	require.NoError(t, os.MkdirAll(uploads, 0o755))
	essay := filepath.Join(uploads, "essay.pdf")
	require.NoError(t, os.WriteFile(essay, []byte("%PDF"), 0o644))
	secret := filepath.Join(dir, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("key"), 0o600))

	realEssay, err := filepath.EvalSymlinks(essay)
	require.NoError(t, err)

	tests := []struct {
		name string
		path string
		ok   bool
	}{
		{name: "absolute inside", path: essay, ok: true},
		{name: "relative inside", path: "essay.pdf", ok: true},
		{name: "absolute outside", path: secret, ok: false},
		{name: "dot-dot escape", path: "../secret.txt", ok: false},
		{name: "dir itself", path: uploads, ok: false},
		{name: "empty", path: "", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := InDir(uploads, tt.path)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, realEssay, got)
			}
		})
	}
}

func TestInDir_RejectsSymlinkEscape(t *testing.T) {
	dir := t.TempDir()
	uploads := filepath.Join(dir, "uploads")
	require.NoError(t, os.MkdirAll(uploads, 0o755))
	secret := filepath.Join(dir, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("key"), 0o600))
	link := filepath.Join(uploads, "notes.txt")
	if err := os.Symlink(secret, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, ok := InDir(uploads, link)
	assert.False(t, ok)
}

func TestInDir_EmptyDir(t *testing.T) {
	_, ok := InDir("", "/etc/hosts")
	assert.False(t, ok)
}
