package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/kazz187/studyguild/internal/eventbus"
	"github.com/kazz187/studyguild/internal/llm"
	"github.com/kazz187/studyguild/internal/schedule"
	"github.com/kazz187/studyguild/internal/task"
	"github.com/kazz187/studyguild/pkg/cerr"
)

// SummaryLength is the number of characters of the generated schedule echoed
// back to the caller.
const SummaryLength = 300

type Scheduler struct {
	client    llm.Client
	model     string
	tasks     task.Repository
	schedules schedule.Repository
	bus       *eventbus.Bus
	now       func() time.Time
}

func New(client llm.Client, model string, tasks task.Repository, schedules schedule.Repository, bus *eventbus.Bus) *Scheduler {
	return &Scheduler{
		client:    client,
		model:     model,
		tasks:     tasks,
		schedules: schedules,
		bus:       bus,
		now:       time.Now,
	}
}

// Schedule generates and stores a study plan for the task. The stored task
// record is authoritative; details supplied by the caller are only logged.
func (s *Scheduler) Schedule(ctx context.Context, taskID int64, details string) (string, error) {
	if details != "" {
		slog.DebugContext(ctx, "ignoring caller supplied task details", "task_id", taskID, "details", details)
	}

	target, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return "", err
	}
	active, err := s.tasks.ListActive(ctx)
	if err != nil {
		return "", err
	}
	conflicts := make([]*task.Task, 0, len(active))
	for _, t := range active {
		if t.ID == target.ID {
			continue
		}
		conflicts = append(conflicts, t)
	}

	prompt, err := buildPrompt(target, conflicts)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Generate(ctx, &llm.Request{
		Model:    s.model,
		Contents: []llm.Content{llm.UserText(prompt)},
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate schedule: %w", err)
	}
	text := resp.Text()

	sch := &schedule.Schedule{
		TaskID:      target.ID,
		Text:        text,
		GeneratedAt: s.now(),
	}
	if err := s.schedules.Create(ctx, sch); err != nil {
		return "", err
	}
	s.bus.PublishNew(eventbus.EventScheduleCreated, strconv.FormatInt(sch.ID, 10), map[string]string{
		"task_id": strconv.FormatInt(target.ID, 10),
	})
	slog.InfoContext(ctx, "schedule saved", "task_id", target.ID, "schedule_id", sch.ID, "conflicts", len(conflicts))

	return fmt.Sprintf(
		"Schedule generated and saved successfully for Task ID %d (Subject: %s).\n\n"+
			"Summary of new schedule:\n%s...\n\n"+
			"The schedule was designed to avoid conflicts with your existing tasks.",
		target.ID, target.Subject, Truncate(text, SummaryLength),
	), nil
}

func buildPrompt(target *task.Task, conflicts []*task.Task) (string, error) {
	details, err := json.MarshalIndent(target, "", "  ")
	if err != nil {
		return "", cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal task: %w", err))
	}
	others, err := json.MarshalIndent(conflicts, "", "  ")
	if err != nil {
		return "", cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal conflicts: %w", err))
	}

	var sb strings.Builder
	sb.WriteString("You are an expert academic scheduler. Your goal is to create a detailed, 5-day work schedule ")
	sb.WriteString("to complete the following task, ensuring the work finishes 1 day before the deadline. ")
	sb.WriteString("Include daily steps, estimated time, and a final review step. ")
	sb.WriteString("Format the schedule using Markdown tables for clarity.")
	sb.WriteString("\n\n--- TARGET TASK DETAILS ---\n")
	sb.Write(details)
	sb.WriteString("\n\n--- EXISTING SCHEDULED CONFLICTS (Prioritize these deadlines) ---\n")
	sb.Write(others)
	sb.WriteString("\n\nIMPORTANT: Note any potential time conflicts based on existing tasks ")
	sb.WriteString("and suggest adjustments in the final schedule table.")
	return sb.String(), nil
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
