package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kazz187/studyguild/internal/llm"
	"github.com/kazz187/studyguild/internal/task"
	"github.com/kazz187/studyguild/pkg/cerr"
)

const (
	defaultMaxAttempts = 5

	extractionPrompt = "Analyze the provided document (which may be a PDF, image, or text) " +
		"and extract the required assignment details into a perfect JSON object. " +
		"Infer any missing information (like priority) based on the context."
)

// Data is the raw extraction result as returned by the model.
type Data struct {
	Deadline           string `json:"deadline"`
	TaskType           string `json:"task_type"`
	Subject            string `json:"subject"`
	Priority           string `json:"priority"`
	WordCountOrLength  string `json:"word_count_or_length"`
	DescriptionSnippet string `json:"description_snippet"`
}

var Schema = &llm.Schema{
	Type: llm.TypeObject,
	Properties: map[string]*llm.Schema{
		"deadline": {
			Type:        llm.TypeString,
			Description: "The date and time the assignment is due, in YYYY-MM-DD HH:MM format.",
		},
		"task_type": {
			Type:        llm.TypeString,
			Description: "e.g., 'Essay', 'Presentation', 'Problem Set', 'Lab Report', 'Reading'",
		},
		"subject": {
			Type:        llm.TypeString,
			Description: "The course or topic the assignment belongs to, e.g., 'Calculus', 'Microeconomics'",
		},
		"priority": {
			Type:        llm.TypeString,
			Description: "One of: 'High', 'Medium', 'Low'. Based on deadline and difficulty.",
			Enum:        []string{"High", "Medium", "Low"},
		},
		"word_count_or_length": {
			Type:        llm.TypeString,
			Description: "Required length, e.g., '2000 words', '10 slides', 'Chapter 5'",
		},
		"description_snippet": {
			Type:        llm.TypeString,
			Description: "A very short (5-10 word) summary of the task.",
		},
	},
	Required: []string{"deadline", "task_type", "subject", "priority"},
}

type Extractor struct {
	client      llm.Client
	model       string
	maxAttempts int
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

type Option func(*Extractor)

// WithClock replaces time.Now, used for the default deadline.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		e.now = now
	}
}

// WithSleep replaces the backoff sleep.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Extractor) {
		e.sleep = sleep
	}
}

func New(client llm.Client, model string, opts ...Option) *Extractor {
	e := &Extractor{
		client:      client,
		model:       model,
		maxAttempts: defaultMaxAttempts,
		now:         time.Now,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract reads the document at path and returns a normalised, unsaved task.
// The returned task always has a deadline.
func (e *Extractor) Extract(ctx context.Context, path string) (*task.Task, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, cerr.NewError(cerr.NotFound, fmt.Sprintf("File not found at: %s", path), err)
	}

	slog.InfoContext(ctx, "uploading document for extraction", "path", path)
	file, err := e.client.UploadFile(ctx, path)
	if err != nil {
		return nil, cerr.NewError(cerr.CodeOf(err), "failed to upload file", err)
	}
	defer func() {
		if err := e.client.DeleteFile(context.WithoutCancel(ctx), file.Name); err != nil {
			slog.WarnContext(ctx, "failed to delete uploaded document", "file", file.Name, "error", err)
		}
	}()

	data, err := e.generate(ctx, file)
	if err != nil {
		return nil, err
	}
	return e.normalise(ctx, data), nil
}

func (e *Extractor) generate(ctx context.Context, file *llm.File) (*Data, error) {
	req := &llm.Request{
		Model:          e.model,
		Contents:       []llm.Content{llm.UserFile(file, extractionPrompt)},
		ResponseSchema: Schema,
	}

	var lastErr error
	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		resp, err := e.client.Generate(ctx, req)
		if err == nil {
			return parse(resp.Text())
		}
		if !cerr.IsCode(err, cerr.ResourceExhausted) {
			return nil, fmt.Errorf("extraction failed on attempt %d: %w", attempt+1, err)
		}
		lastErr = err
		if attempt == e.maxAttempts-1 {
			break
		}
		wait := time.Duration(1<<attempt) * time.Second
		slog.WarnContext(ctx, "rate limited during extraction, backing off",
			"wait", wait, "attempt", attempt+1, "max_attempts", e.maxAttempts)
		if err := e.sleep(ctx, wait); err != nil {
			return nil, cerr.NewError(cerr.Canceled, "extraction canceled", err)
		}
	}
	return nil, cerr.NewError(cerr.ResourceExhausted,
		fmt.Sprintf("rate limit persisted after %d attempts", e.maxAttempts), lastErr)
}

func parse(text string) (*Data, error) {
	var data Data
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &data); err != nil {
		return nil, cerr.NewError(cerr.Internal, "malformed extraction output", err)
	}
	return &data, nil
}

func (e *Extractor) normalise(ctx context.Context, data *Data) *task.Task {
	now := e.now()
	deadline, ok := ParseDeadline(data.Deadline)
	if !ok {
		deadline = task.DefaultDeadline(now)
		slog.WarnContext(ctx, "deadline missing or unreadable, using default",
			"raw", data.Deadline, "deadline", deadline.Format(time.DateTime))
	}
	return &task.Task{
		Subject:            strings.TrimSpace(data.Subject),
		TaskType:           strings.TrimSpace(data.TaskType),
		DescriptionSnippet: strings.TrimSpace(data.DescriptionSnippet),
		Deadline:           deadline,
		Priority:           task.ParsePriority(data.Priority),
		LengthDescriptor:   strings.TrimSpace(data.WordCountOrLength),
	}
}

var emptyDeadlines = map[string]struct{}{
	"":        {},
	"none":    {},
	"null":    {},
	"n/a":     {},
	"missing": {},
}

var deadlineLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	time.RFC3339,
	time.DateOnly,
}

// ParseDeadline reads a model-provided deadline. It reports false for the
// empty sentinels and for text no supported layout accepts.
func ParseDeadline(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if _, ok := emptyDeadlines[strings.ToLower(s)]; ok {
		return time.Time{}, false
	}
	for _, layout := range deadlineLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
