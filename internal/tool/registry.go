package tool

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/kazz187/studyguild/internal/eventbus"
	"github.com/kazz187/studyguild/internal/llm"
	"github.com/kazz187/studyguild/internal/task"
	"github.com/kazz187/studyguild/internal/worksheet"
)

const (
	SummarizeDocument = "summarize_document_tool"
	ExtractAssignment = "extract_assignment_data_tool"
	RetrieveActive    = "retrieve_active_tasks"
	ScheduleTask      = "schedule_task_tool"
	ProgressReport    = "get_progress_report_tool"
	CompleteTask      = "complete_task_tool"
	PracticeWorksheet = worksheet.ToolName
)

type Summarizer interface {
	Summarize(ctx context.Context, path string) (string, error)
}

type Extractor interface {
	Extract(ctx context.Context, path string) (*task.Task, error)
}

type Scheduler interface {
	Schedule(ctx context.Context, taskID int64, details string) (string, error)
}

type Reporter interface {
	Report(ctx context.Context, taskID int64) (string, error)
}

type WorksheetGenerator interface {
	Generate(ctx context.Context, topic string, numProblems int) (string, error)
}

type Deps struct {
	Summarizer Summarizer
	Extractor  Extractor
	Tasks      task.Repository
	Scheduler  Scheduler
	Reporter   Reporter
	Worksheets WorksheetGenerator
	Bus        *eventbus.Bus
}

// Extracted is the value of a successful extract_assignment_data_tool call.
type Extracted struct {
	TaskID int64      `json:"task_id"`
	Task   *task.Task `json:"task"`
}

type Registry struct {
	tools map[string]Tool
	order []string
}

func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if _, ok := r.tools[t.Name()]; ok {
			return nil, fmt.Errorf("duplicate tool %s", t.Name())
		}
		r.tools[t.Name()] = t
		r.order = append(r.order, t.Name())
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks every declaration against the name it is registered under
// and against its argument struct.
func (r *Registry) Validate() error {
	var errs []error
	for _, name := range r.order {
		t := r.tools[name]
		if d := t.Declaration(); d.Name != name {
			errs = append(errs, fmt.Errorf("tool %s: declared as %s", name, d.Name))
			continue
		}
		if err := t.check(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

func (r *Registry) Declarations() []llm.FunctionDeclaration {
	decls := make([]llm.FunctionDeclaration, 0, len(r.order))
	for _, name := range r.order {
		decls = append(decls, r.tools[name].Declaration())
	}
	return decls
}

type filePathArgs struct {
	FilePath string `json:"file_path" validate:"required"`
}

type noArgs struct{}

type scheduleArgs struct {
	TaskID      TaskID  `json:"task_id" validate:"required"`
	TaskDetails Details `json:"task_details"`
}

type progressArgs struct {
	TaskID TaskID `json:"task_id"`
}

type completeArgs struct {
	TaskID TaskID `json:"task_id" validate:"required"`
}

type worksheetArgs struct {
	Topic       string `json:"topic" validate:"required"`
	NumProblems int    `json:"num_problems"`
}

func filePathSchema() *llm.Schema {
	return &llm.Schema{
		Type: llm.TypeObject,
		Properties: map[string]*llm.Schema{
			"file_path": {Type: llm.TypeString, Description: "Path to the uploaded document."},
		},
		Required: []string{"file_path"},
	}
}

func taskIDSchema(description string, required bool) *llm.Schema {
	s := &llm.Schema{
		Type: llm.TypeObject,
		Properties: map[string]*llm.Schema{
			"task_id": {Type: llm.TypeInteger, Description: description},
		},
	}
	if required {
		s.Required = []string{"task_id"}
	}
	return s
}

// NewDefault builds the registry offered to the orchestrator.
func NewDefault(d Deps) (*Registry, error) {
	return NewRegistry(
		newTool(llm.FunctionDeclaration{
			Name: SummarizeDocument,
			Description: "Summarizes a document (PDF, etc.). Use this when the user asks for a summary " +
				"or reading comprehension. Returns the summary text.",
			Parameters: filePathSchema(),
		}, func(ctx context.Context, a filePathArgs) (any, error) {
			return d.Summarizer.Summarize(ctx, a.FilePath)
		}),

		newTool(llm.FunctionDeclaration{
			Name: ExtractAssignment,
			Description: "Extracts structured assignment data from a document and SAVES it to the database. " +
				"Returns the new task_id.",
			Parameters: filePathSchema(),
		}, func(ctx context.Context, a filePathArgs) (any, error) {
			t, err := d.Extractor.Extract(ctx, a.FilePath)
			if err != nil {
				return nil, err
			}
			if err := d.Tasks.Create(ctx, t); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrTaskNotSaved, err)
			}
			d.Bus.PublishNew(eventbus.EventTaskCreated, strconv.FormatInt(t.ID, 10), map[string]string{
				"subject": t.Subject,
			})
			return &Extracted{TaskID: t.ID, Task: t}, nil
		}),

		newTool(llm.FunctionDeclaration{
			Name: RetrieveActive,
			Description: "Retrieves the list of all currently active (not completed) assignments " +
				"from the database, ordered by deadline. Use this before planning a new schedule.",
		}, func(ctx context.Context, _ noArgs) (any, error) {
			return d.Tasks.ListActive(ctx)
		}),

		newTool(llm.FunctionDeclaration{
			Name: ScheduleTask,
			Description: "Creates a detailed study schedule for a specific task and saves the schedule. " +
				"Use this when the user asks to 'schedule', 'plan', or 'create a study plan'. " +
				"Returns a success message and schedule summary.",
			Parameters: &llm.Schema{
				Type: llm.TypeObject,
				Properties: map[string]*llm.Schema{
					"task_id":      {Type: llm.TypeInteger, Description: "The task_id returned by extract_assignment_data_tool."},
					"task_details": {Type: llm.TypeString, Description: "Optional JSON text with the task details."},
				},
				Required: []string{"task_id"},
			},
		}, func(ctx context.Context, a scheduleArgs) (any, error) {
			return d.Scheduler.Schedule(ctx, int64(a.TaskID), string(a.TaskDetails))
		}),

		newTool(llm.FunctionDeclaration{
			Name: ProgressReport,
			Description: "Generates a reminder and progress report. If task_id is provided, " +
				"the report focuses on that specific task's schedule and deadline. " +
				"Use this when the user asks for a 'reminder', 'update', or 'progress report'.",
			Parameters: taskIDSchema("Optional task to focus on.", false),
		}, func(ctx context.Context, a progressArgs) (any, error) {
			return d.Reporter.Report(ctx, int64(a.TaskID))
		}),

		newTool(llm.FunctionDeclaration{
			Name: CompleteTask,
			Description: "Marks a specific task as completed in the database. " +
				"Use this when the user says 'I finished', 'mark as done', or 'complete task ID X'.",
			Parameters: taskIDSchema("The task to mark as completed.", true),
		}, func(ctx context.Context, a completeArgs) (any, error) {
			return Complete(ctx, d.Tasks, d.Bus, int64(a.TaskID))
		}),

		newTool(worksheet.Declaration, func(ctx context.Context, a worksheetArgs) (any, error) {
			return d.Worksheets.Generate(ctx, a.Topic, a.NumProblems)
		}),
	)
}

// Complete marks a task done and returns the message shown to the user.
func Complete(ctx context.Context, tasks task.Repository, bus *eventbus.Bus, id int64) (string, error) {
	ok, err := tasks.Complete(ctx, id)
	if err != nil {
		return "", err
	}
	if !ok {
		return fmt.Sprintf("ERROR: Could not find or mark Task ID %d as complete.", id), nil
	}
	bus.PublishNew(eventbus.EventTaskCompleted, strconv.FormatInt(id, 10), nil)
	return fmt.Sprintf("SUCCESS: Task ID %d has been marked as complete and moved to history.", id), nil
}
