package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/kazz187/studyguild/internal/config"
	"github.com/kazz187/studyguild/internal/eventbus"
	"github.com/kazz187/studyguild/internal/extractor"
	"github.com/kazz187/studyguild/internal/llm"
	"github.com/kazz187/studyguild/internal/orchestrator"
	"github.com/kazz187/studyguild/internal/progress"
	"github.com/kazz187/studyguild/internal/reminder"
	"github.com/kazz187/studyguild/internal/schedule"
	schedulerepo "github.com/kazz187/studyguild/internal/schedule/repositoryimpl"
	"github.com/kazz187/studyguild/internal/scheduler"
	"github.com/kazz187/studyguild/internal/summarizer"
	"github.com/kazz187/studyguild/internal/task"
	taskrepo "github.com/kazz187/studyguild/internal/task/repositoryimpl"
	"github.com/kazz187/studyguild/internal/tool"
	"github.com/kazz187/studyguild/internal/worksheet"
	"github.com/kazz187/studyguild/pkg/clog"
	"github.com/kazz187/studyguild/pkg/database"
	"github.com/kazz187/studyguild/pkg/storage"
)

// IngestPrompt is the request issued for documents that arrive without one.
const IngestPrompt = "Extract the assignment details from the uploaded file, save them, and create a study schedule for it."

// Assistant owns every long-lived dependency. Build it once with New and
// release it with Close.
type Assistant struct {
	Env          *config.Env
	DB           *gorm.DB
	Storage      storage.Storage
	LLM          llm.Client
	Bus          *eventbus.Bus
	Journal      *eventbus.Journal
	Tasks        task.Repository
	Schedules    schedule.Repository
	Registry     *tool.Registry
	Orchestrator *orchestrator.Orchestrator
	Reminders    *reminder.Daemon
}

type options struct {
	client   llm.Client
	db       *gorm.DB
	notifier reminder.Notifier
}

type Option func(*options)

// WithLLM replaces the Gemini client.
func WithLLM(c llm.Client) Option {
	return func(o *options) {
		o.client = c
	}
}

// WithDB uses an already opened database instead of the configured one.
func WithDB(db *gorm.DB) Option {
	return func(o *options) {
		o.db = db
	}
}

func WithReminderNotifier(n reminder.Notifier) Option {
	return func(o *options) {
		o.notifier = n
	}
}

func New(ctx context.Context, env *config.Env, opts ...Option) (*Assistant, error) {
	o := &options{notifier: logReminder}
	for _, opt := range opts {
		opt(o)
	}

	db := o.db
	if db == nil {
		var err error
		db, err = database.Open(database.Config{Driver: env.Driver, DSN: env.DSN, Debug: env.Debug})
		if err != nil {
			return nil, err
		}
	}
	if err := taskrepo.Migrate(ctx, db); err != nil {
		return nil, err
	}
	if err := schedulerepo.Migrate(ctx, db); err != nil {
		return nil, err
	}

	store, err := newStorage(ctx, &env.StorageEnv)
	if err != nil {
		return nil, err
	}

	client := o.client
	if client == nil {
		client, err = llm.NewGeminiClient(ctx, env.GeminiAPIKey, env.Timeout)
		if err != nil {
			return nil, err
		}
	}

	bus := eventbus.New()
	tasks := taskrepo.NewGormRepository(db)
	schedules := schedulerepo.NewGormRepository(db)
	worksheets := worksheet.New(client, env.ProgressModel, store, bus)

	registry, err := tool.NewDefault(tool.Deps{
		Summarizer: summarizer.New(client, env.ExtractorModel),
		Extractor:  extractor.New(client, env.ExtractorModel),
		Tasks:      tasks,
		Scheduler:  scheduler.New(client, env.SchedulerModel, tasks, schedules, bus),
		Reporter:   progress.New(client, env.ProgressModel, tasks, schedules, worksheets),
		Worksheets: worksheets,
		Bus:        bus,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid tool registry: %w", err)
	}

	orch := orchestrator.New(client, env.OrchestratorModel, registry,
		orchestrator.WithMaxSteps(env.MaxSteps),
		orchestrator.WithUploadsDir(env.UploadsDir),
	)

	return &Assistant{
		Env:          env,
		DB:           db,
		Storage:      store,
		LLM:          client,
		Bus:          bus,
		Journal:      eventbus.NewJournal(store),
		Tasks:        tasks,
		Schedules:    schedules,
		Registry:     registry,
		Orchestrator: orch,
		Reminders:    reminder.New(tasks, env.ReminderInterval, env.ReminderWindow, o.notifier),
	}, nil
}

func newStorage(ctx context.Context, env *config.StorageEnv) (storage.Storage, error) {
	switch env.Type {
	case "s3":
		return storage.NewS3Storage(ctx, env.S3Bucket, env.S3Prefix, env.S3Region)
	case "local", "":
		return storage.NewLocalStorage(env.BaseDir)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", env.Type)
	}
}

// Ask runs one orchestrated request under its own request id.
func (a *Assistant) Ask(ctx context.Context, prompt, filePath string) (*orchestrator.Answer, error) {
	ctx, requestID := clog.ContextWithRequest(ctx)
	start := time.Now()
	ans, err := a.Orchestrator.Run(ctx, orchestrator.Request{Prompt: prompt, FilePath: filePath})
	if err != nil {
		slog.ErrorContext(ctx, "request failed", "error", err)
		return nil, err
	}
	slog.InfoContext(ctx, "request finished",
		"request_id", requestID, "outcome", ans.Outcome, "steps", ans.Steps, "duration", time.Since(start))
	return ans, nil
}

// Ingest extracts, saves and schedules a newly uploaded document.
func (a *Assistant) Ingest(ctx context.Context, path string) error {
	ans, err := a.Ask(ctx, IngestPrompt, path)
	if err != nil {
		return err
	}
	if ans.Outcome != orchestrator.OutcomeCompleted {
		return errors.New(ans.Text)
	}
	slog.InfoContext(ctx, "document ingested", "path", path, "answer", ans.Text)
	return nil
}

func (a *Assistant) Close() error {
	if a.DB == nil {
		return nil
	}
	return database.Close(a.DB)
}

func logReminder(ctx context.Context, n reminder.Notice) {
	slog.InfoContext(ctx, "deadline approaching",
		"task_id", n.Task.ID,
		"subject", n.Task.Subject,
		"deadline", n.Task.Deadline.Format(time.DateTime),
		"remaining", n.Remaining.Round(time.Minute),
	)
}
