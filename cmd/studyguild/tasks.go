package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/studyguild/internal/assistant"
	"github.com/kazz187/studyguild/internal/eventbus"
	"github.com/kazz187/studyguild/internal/task"
	"github.com/kazz187/studyguild/internal/tool"
)

const (
	formatText = "text"
	formatYAML = "yaml"
	formatJSON = "json"
)

func listTasks(ctx context.Context, a *assistant.Assistant, out io.Writer, format string) error {
	tasks, err := a.Tasks.ListActive(ctx)
	if err != nil {
		return err
	}
	switch format {
	case formatYAML:
		return yaml.NewEncoder(out).Encode(tasks)
	case formatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(tasks)
	}
	if len(tasks) == 0 {
		fmt.Fprintln(out, "No active tasks.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSUBJECT\tTYPE\tPRIORITY\tDEADLINE")
	for _, t := range tasks {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", t.ID, t.Subject, t.TaskType, t.Priority, t.Deadline.Format(time.DateTime))
	}
	return w.Flush()
}

func showTask(ctx context.Context, a *assistant.Assistant, out io.Writer, id int64) error {
	t, err := a.Tasks.Get(ctx, id)
	if err != nil {
		return err
	}
	printTask(out, t)
	return nil
}

func printTask(out io.Writer, t *task.Task) {
	status := "active"
	if t.Completed {
		status = "completed"
	}
	fmt.Fprintf(out, "Task %d: %s\n", t.ID, t.Subject)
	fmt.Fprintf(out, "  Type:     %s\n", t.TaskType)
	fmt.Fprintf(out, "  Priority: %s\n", t.Priority)
	fmt.Fprintf(out, "  Deadline: %s\n", t.Deadline.Format(time.DateTime))
	fmt.Fprintf(out, "  Status:   %s\n", status)
	if t.LengthDescriptor != "" {
		fmt.Fprintf(out, "  Length:   %s\n", t.LengthDescriptor)
	}
	if t.DescriptionSnippet != "" {
		fmt.Fprintf(out, "\n%s\n", t.DescriptionSnippet)
	}
}

func completeTask(ctx context.Context, a *assistant.Assistant, out io.Writer, id int64) error {
	msg, err := tool.Complete(ctx, a.Tasks, a.Bus, id)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, msg)
	return nil
}

func showSchedule(ctx context.Context, a *assistant.Assistant, out io.Writer, id int64) error {
	s, err := a.Schedules.Latest(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Schedule for Task %d (generated %s)\n\n%s\n", s.TaskID, s.GeneratedAt.Format(time.DateTime), s.Text)
	return nil
}

func scheduleHistory(ctx context.Context, a *assistant.Assistant, out io.Writer, id int64) error {
	if _, err := a.Tasks.Get(ctx, id); err != nil {
		return err
	}
	schedules, err := a.Schedules.ListByTask(ctx, id)
	if err != nil {
		return err
	}
	if len(schedules) == 0 {
		fmt.Fprintf(out, "No schedules for Task %d.\n", id)
		return nil
	}
	for i, s := range schedules {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "#%d generated %s\n%s\n", i+1, s.GeneratedAt.Format(time.DateTime), s.Text)
	}
	return nil
}

func listEventDays(ctx context.Context, a *assistant.Assistant, out io.Writer) error {
	days, err := a.Journal.Days(ctx)
	if err != nil {
		return err
	}
	if len(days) == 0 {
		fmt.Fprintln(out, "No journaled events.")
		return nil
	}
	for _, d := range days {
		fmt.Fprintln(out, d.Format(time.DateOnly))
	}
	return nil
}

func pruneEvents(ctx context.Context, a *assistant.Assistant, out io.Writer, before string) error {
	cutoff, err := time.ParseInLocation(time.DateOnly, before, time.Local)
	if err != nil {
		return fmt.Errorf("invalid --prune-before %q: %w", before, err)
	}
	n, err := a.Journal.Prune(ctx, cutoff)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Removed %d journal(s) before %s.\n", n, before)
	return nil
}

func showEvents(ctx context.Context, a *assistant.Assistant, out io.Writer, date, eventType string) error {
	day := time.Now()
	if date != "" {
		var err error
		day, err = time.ParseInLocation(time.DateOnly, date, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --date %q: %w", date, err)
		}
	}

	var (
		events []*eventbus.Event
		err    error
	)
	if eventType == "" {
		events, err = a.Journal.Read(ctx, day)
	} else {
		events, err = a.Journal.ReadByType(ctx, day, eventbus.EventType(eventType))
	}
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintf(out, "No events on %s.\n", day.Format(time.DateOnly))
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tTYPE\tRESOURCE")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.CreatedAt.Local().Format(time.TimeOnly), e.Type, e.ResourceID)
	}
	return w.Flush()
}
