package eventbus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kazz187/studyguild/pkg/cerr"
	"github.com/kazz187/studyguild/pkg/storage"
)

const (
	journalDir    = "events"
	journalPrefix = "events_"
	journalSuffix = ".ndjson"
)

type journalEntry struct {
	*Event
	LoggedAt time.Time `json:"logged_at"`
}

// Journal keeps one NDJSON file of events per day.
type Journal struct {
	store storage.Storage
	now   func() time.Time
	mu    sync.Mutex
}

func NewJournal(store storage.Storage) *Journal {
	return &Journal{store: store, now: time.Now}
}

// Run appends every event published on bus until ctx is cancelled.
func (j *Journal) Run(ctx context.Context, bus *Bus) error {
	id, ch := bus.Subscribe(64)
	defer bus.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			if err := j.Append(ctx, e); err != nil {
				slog.ErrorContext(ctx, "failed to journal event", "event_id", e.ID, "type", e.Type, "error", err)
			}
		}
	}
}

func (j *Journal) Append(ctx context.Context, e *Event) error {
	line, err := json.Marshal(journalEntry{Event: e, LoggedAt: j.now()})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	path := JournalPath(e.CreatedAt)
	data, err := j.store.Read(ctx, path)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return cerr.WrapStorageReadError("event journal", err)
	}
	data = append(data, line...)
	data = append(data, '\n')
	if err := j.store.Write(ctx, path, data); err != nil {
		return cerr.WrapStorageWriteError("event journal", err)
	}
	return nil
}

// Read returns the events journaled for date's day in write order.
func (j *Journal) Read(ctx context.Context, date time.Time) ([]*Event, error) {
	data, err := j.store.Read(ctx, JournalPath(date))
	if errors.Is(err, storage.ErrNotFound) {
		return []*Event{}, nil
	}
	if err != nil {
		return nil, cerr.WrapStorageReadError("event journal", err)
	}

	events := []*Event{}
	for line := range bytes.Lines(data) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var entry journalEntry
		if err := json.Unmarshal(line, &entry); err != nil || entry.Event == nil {
			slog.WarnContext(ctx, "skipping malformed journal line", "error", err)
			continue
		}
		events = append(events, entry.Event)
	}
	return events, nil
}

func (j *Journal) ReadByType(ctx context.Context, date time.Time, eventType EventType) ([]*Event, error) {
	all, err := j.Read(ctx, date)
	if err != nil {
		return nil, err
	}
	filtered := []*Event{}
	for _, e := range all {
		if e.Type == eventType {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

// Days lists the days that have a journal, oldest first.
func (j *Journal) Days(ctx context.Context) ([]time.Time, error) {
	paths, err := j.store.List(ctx, journalDir)
	if err != nil {
		return nil, cerr.WrapStorageReadError("event journal", err)
	}
	days := make([]time.Time, 0, len(paths))
	for _, p := range paths {
		if day, ok := journalDay(p); ok {
			days = append(days, day)
		}
	}
	slices.SortFunc(days, time.Time.Compare)
	return days, nil
}

// Prune deletes the journals of every day before the day of cutoff and
// returns how many were removed.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	days, err := j.Days(ctx)
	if err != nil {
		return 0, err
	}
	keepFrom := cutoff.Format(time.DateOnly)

	j.mu.Lock()
	defer j.mu.Unlock()

	removed := 0
	for _, day := range days {
		if day.Format(time.DateOnly) >= keepFrom {
			break
		}
		if err := j.store.Delete(ctx, JournalPath(day)); err != nil {
			return removed, cerr.WrapStorageDeleteError("event journal", err)
		}
		removed++
	}
	return removed, nil
}

func JournalPath(date time.Time) string {
	return fmt.Sprintf("%s/%s%s%s", journalDir, journalPrefix, date.Format(time.DateOnly), journalSuffix)
}

func journalDay(p string) (time.Time, bool) {
	name := path.Base(p)
	if !strings.HasPrefix(name, journalPrefix) || !strings.HasSuffix(name, journalSuffix) {
		return time.Time{}, false
	}
	date := strings.TrimSuffix(strings.TrimPrefix(name, journalPrefix), journalSuffix)
	day, err := time.ParseInLocation(time.DateOnly, date, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}
