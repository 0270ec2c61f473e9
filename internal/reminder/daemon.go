package reminder

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kazz187/studyguild/internal/task"
)

type Notice struct {
	Task *task.Task
	// Remaining is the time left until the deadline; negative when overdue.
	Remaining time.Duration
}

type Notifier func(ctx context.Context, n Notice)

// Daemon periodically announces active tasks whose deadline is near. Each
// task is announced once per Daemon.
type Daemon struct {
	tasks    task.Repository
	interval time.Duration
	window   time.Duration
	notify   Notifier
	now      func() time.Time

	paused atomic.Bool

	// announced is only touched by the goroutine running Check.
	announced map[int64]struct{}
}

func New(tasks task.Repository, interval, window time.Duration, notify Notifier) *Daemon {
	return &Daemon{
		tasks:     tasks,
		interval:  interval,
		window:    window,
		notify:    notify,
		now:       time.Now,
		announced: make(map[int64]struct{}),
	}
}

// Pause suspends checks until Resume.
func (d *Daemon) Pause() {
	d.paused.Store(true)
}

func (d *Daemon) Resume() {
	d.paused.Store(false)
}

func (d *Daemon) Paused() bool {
	return d.paused.Load()
}

// Run checks on every tick until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "reminder daemon started", "interval", d.interval, "window", d.window)
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "reminder daemon stopped")
			return nil
		case <-ticker.C:
			if _, err := d.Check(ctx); err != nil {
				slog.ErrorContext(ctx, "reminder check failed", "error", err)
			}
		}
	}
}

// Check runs one pass and returns the number of notices sent. It does
// nothing while paused. Check must not run concurrently with itself.
func (d *Daemon) Check(ctx context.Context) (int, error) {
	if d.Paused() {
		slog.DebugContext(ctx, "reminder check skipped while paused")
		return 0, nil
	}
	active, err := d.tasks.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	now := d.now()
	sent := 0
	for _, t := range active {
		remaining := t.Deadline.Sub(now)
		if remaining > d.window {
			// Active tasks are ordered by deadline.
			break
		}
		if _, ok := d.announced[t.ID]; ok {
			continue
		}
		d.announced[t.ID] = struct{}{}
		d.notify(ctx, Notice{Task: t, Remaining: remaining})
		sent++
	}
	return sent, nil
}
