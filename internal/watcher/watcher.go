package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DebounceInterval is how long a file must stay quiet before it is handed off.
const DebounceInterval = 500 * time.Millisecond

var supportedExtensions = map[string]bool{
	".pdf":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".txt":  true,
	".md":   true,
	".docx": true,
}

// Supported reports whether path looks like a document we can ingest.
func Supported(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return supportedExtensions[strings.ToLower(filepath.Ext(base))]
}

type Handler func(ctx context.Context, path string) error

// Watcher hands every new document in a directory to a handler, once.
// Handlers run sequentially on the watcher goroutine.
type Watcher struct {
	dir      string
	handler  Handler
	debounce time.Duration
	seen     map[string]struct{}
}

func New(dir string, handler Handler) *Watcher {
	return &Watcher{
		dir:      dir,
		handler:  handler,
		debounce: DebounceInterval,
		seen:     make(map[string]struct{}),
	}
}

// Run watches until ctx is cancelled. Files already present when Run starts
// are ignored.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create uploads directory: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", w.dir, err)
	}
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", w.dir, err)
	}
	for _, e := range entries {
		w.seen[filepath.Join(w.dir, e.Name())] = struct{}{}
	}
	slog.InfoContext(ctx, "watching uploads directory", "dir", w.dir)

	ready := make(chan string)
	pending := make(map[string]*time.Timer)
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if !Supported(event.Name) {
				continue
			}
			if _, ok := w.seen[event.Name]; ok {
				continue
			}
			if t, ok := pending[event.Name]; ok {
				// A timer that already fired is delivering on ready.
				if t.Stop() {
					t.Reset(w.debounce)
				}
				continue
			}
			name := event.Name
			pending[name] = time.AfterFunc(w.debounce, func() {
				select {
				case ready <- name:
				case <-ctx.Done():
				}
			})
		case name := <-ready:
			delete(pending, name)
			if _, ok := w.seen[name]; ok {
				continue
			}
			if _, err := os.Stat(name); err != nil {
				// Renamed away or deleted before it settled.
				continue
			}
			w.seen[name] = struct{}{}
			slog.InfoContext(ctx, "new document detected", "path", name)
			if err := w.handler(ctx, name); err != nil {
				slog.ErrorContext(ctx, "failed to handle document", "path", name, "error", err)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "fsnotify error", "error", err)
		}
	}
}
