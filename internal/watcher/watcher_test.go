package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupported(t *testing.T) {
	assert.True(t, Supported("/uploads/doc.pdf"))
	assert.True(t, Supported("scan.JPEG"))
	assert.True(t, Supported("notes.md"))
	assert.False(t, Supported("archive.zip"))
	assert.False(t, Supported(".doc.pdf.swp"))
	assert.False(t, Supported(".hidden.pdf"))
}

func TestWatcher_HandsOffNewDocumentsOnce(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.pdf"), []byte("old"), 0o644))

	handled := make(chan string, 4)
	w := New(dir, func(_ context.Context, path string) error {
		handled <- path
		return nil
	})
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)

	doc := filepath.Join(dir, "assignment.pdf")
	require.NoError(t, os.WriteFile(doc, []byte("part 1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.zip"), []byte("zip"), 0o644))

	select {
	case got := <-handled:
		assert.Equal(t, doc, got)
	case <-time.After(5 * time.Second):
		t.Fatal("document was not handed off")
	}

	// Rewriting an already handled document is not a new upload.
	require.NoError(t, os.WriteFile(doc, []byte("part 2"), 0o644))
	select {
	case got := <-handled:
		t.Fatalf("unexpected second hand-off of %s", got)
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_RewriteDuringSlowHandler(t *testing.T) {
	dir := t.TempDir()

	handled := make(chan string, 8)
	release := make(chan struct{})
	w := New(dir, func(ctx context.Context, path string) error {
		handled <- path
		if filepath.Base(path) == "first.pdf" {
			select {
			case <-release:
			case <-ctx.Done():
			}
		}
		return nil
	})
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	first := filepath.Join(dir, "first.pdf")
	require.NoError(t, os.WriteFile(first, []byte("first"), 0o644))
	select {
	case got := <-handled:
		require.Equal(t, first, got)
	case <-time.After(5 * time.Second):
		t.Fatal("first document was not handed off")
	}

	// The handler is busy, so this timer fires and waits to be received.
	second := filepath.Join(dir, "second.pdf")
	require.NoError(t, os.WriteFile(second, []byte("v1"), 0o644))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(second, []byte("v2"), 0o644))
	time.Sleep(100 * time.Millisecond)
	close(release)

	select {
	case got := <-handled:
		assert.Equal(t, second, got)
	case <-time.After(5 * time.Second):
		t.Fatal("second document was not handed off")
	}
	select {
	case got := <-handled:
		t.Fatalf("unexpected second hand-off of %s", got)
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
