package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/studyguild/internal/extractor"
	"github.com/kazz187/studyguild/internal/llm"
	"github.com/kazz187/studyguild/internal/llm/llmtest"
	"github.com/kazz187/studyguild/internal/progress"
	"github.com/kazz187/studyguild/internal/scheduler"
	"github.com/kazz187/studyguild/internal/summarizer"
	"github.com/kazz187/studyguild/internal/testutil"
	"github.com/kazz187/studyguild/internal/tool"
	"github.com/kazz187/studyguild/internal/worksheet"
	"github.com/kazz187/studyguild/pkg/cerr"
	"github.com/kazz187/studyguild/pkg/storage"
)

type harness struct {
	store *testutil.Store
	model *llmtest.Client // drives the orchestrator
	tools *llmtest.Client // serves the tools' own LLM calls
	orch  *Orchestrator
}

func newHarness(t *testing.T, model *llmtest.Client, tools *llmtest.Client, opts ...Option) *harness {
	t.Helper()
	store := testutil.NewStore(t)
	blobs, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	ws := worksheet.New(tools, "tool-model", blobs, nil)
	registry, err := tool.NewDefault(tool.Deps{
		Summarizer: summarizer.New(tools, "tool-model"),
		Extractor: extractor.New(tools, "tool-model",
			extractor.WithSleep(func(context.Context, time.Duration) error { return nil })),
		Tasks:      store.Tasks,
		Scheduler:  scheduler.New(tools, "tool-model", store.Tasks, store.Schedules, nil),
		Reporter:   progress.New(tools, "tool-model", store.Tasks, store.Schedules, ws),
		Worksheets: ws,
	})
	require.NoError(t, err)

	return &harness{
		store: store,
		model: model,
		tools: tools,
		orch:  New(model, "orchestrator-model", registry, opts...),
	}
}

func writeDoc(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF assignment"), 0o644))
	return path
}

// lastToolResult returns the payload of the most recent tool turn.
func lastToolResult(req *llm.Request) map[string]any {
	for i := len(req.Contents) - 1; i >= 0; i-- {
		c := req.Contents[i]
		if c.Role != llm.RoleTool {
			continue
		}
		return c.Parts[0].FunctionResponse.Response
	}
	return nil
}

const extraction = `{"deadline": "2030-05-01 23:59", "task_type": "Essay", "subject": "History", "priority": "High"}`

func TestRun_ExtractThenSchedule(t *testing.T) {
	ctx := context.Background()
	doc := writeDoc(t)
	model := llmtest.NewClient(
		llmtest.Call(tool.ExtractAssignment, map[string]any{"file_path": doc}),
		// The model hallucinates a different id; the extracted one must win.
		llmtest.Call(tool.ScheduleTask, map[string]any{"task_id": float64(99), "task_details": "{}"}),
	)
	model.Fallback = func(req *llm.Request) (*llm.Response, error) {
		return llmtest.Text(fmt.Sprint(lastToolResult(req)["result"])).Response, nil
	}
	tools := llmtest.NewClient(llmtest.Text(extraction), llmtest.Text("| Day | Step |\n| 1 | Outline |"))
	h := newHarness(t, model, tools)

	ans, err := h.orch.Run(ctx, Request{Prompt: "Extract details from doc.pdf and schedule it", FilePath: doc})
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, ans.Outcome)
	assert.Equal(t, 3, ans.Steps)
	assert.Contains(t, ans.Text, "Task ID 1")
	assert.Contains(t, ans.Text, "Schedule generated and saved successfully")

	sch, err := h.store.Schedules.Latest(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sch.TaskID)
	_, err = h.store.Schedules.Latest(ctx, 99)
	assert.True(t, cerr.IsCode(err, cerr.NotFound))

	reqs := model.Requests()
	require.Len(t, reqs, 3)

	// The model only ever sees the directive, not the raw extraction.
	directive := lastToolResult(reqs[1])
	assert.Equal(t, map[string]any{
		"task_id": int64(1),
		"status":  "Task successfully saved to database. Proceed to scheduling.",
	}, directive)

	// History records the call as executed.
	scheduleCall := reqs[2].Contents[3].Parts[0].FunctionCall
	require.NotNil(t, scheduleCall)
	assert.Equal(t, int64(1), scheduleCall.Args["task_id"])

	assert.Contains(t, reqs[0].SystemInstruction, doc)
	assert.Len(t, reqs[0].Tools, 7)
}

func TestRun_ListOnlyMakesNoSpeculativeCalls(t *testing.T) {
	ctx := context.Background()
	model := llmtest.NewClient(
		llmtest.Call(tool.RetrieveActive, nil),
		llmtest.Text("You have one active task: Math."),
	)
	tools := llmtest.NewClient()
	h := newHarness(t, model, tools)
	h.store.AddTask(t, "Math", 24*time.Hour)

	ans, err := h.orch.Run(ctx, Request{Prompt: "List my tasks"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, ans.Outcome)
	assert.Equal(t, "You have one active task: Math.", ans.Text)

	assert.Zero(t, tools.Calls())
	assert.Empty(t, tools.Uploaded())
	active, err := h.store.Tasks.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
	_, err = h.store.Schedules.Latest(ctx, 1)
	assert.True(t, cerr.IsCode(err, cerr.NotFound))

	listed := lastToolResult(model.Requests()[1])["result"].([]any)
	require.Len(t, listed, 1)
	assert.Equal(t, "Math", listed[0].(map[string]any)["subject"])
}

func TestRun_StepBoundTerminatesRunawayModel(t *testing.T) {
	for _, maxSteps := range []int{DefaultMaxSteps, 2} {
		t.Run(fmt.Sprint(maxSteps), func(t *testing.T) {
			model := llmtest.NewClient()
			model.Fallback = func(*llm.Request) (*llm.Response, error) {
				return llmtest.Call(tool.RetrieveActive, nil).Response, nil
			}
			h := newHarness(t, model, llmtest.NewClient(), WithMaxSteps(maxSteps))

			ans, err := h.orch.Run(context.Background(), Request{Prompt: "loop forever"})
			require.NoError(t, err)
			assert.Equal(t, OutcomeStepLimit, ans.Outcome)
			assert.Equal(t, "Orchestrator reached maximum steps without completing the task.", ans.Text)
			assert.Equal(t, maxSteps, model.Calls())
		})
	}
}

func TestRun_UnknownTool(t *testing.T) {
	model := llmtest.NewClient(llmtest.Call("drop_database", nil))
	h := newHarness(t, model, llmtest.NewClient())

	ans, err := h.orch.Run(context.Background(), Request{Prompt: "do it"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknownTool, ans.Outcome)
	assert.Equal(t, "Error: Tool 'drop_database' not found.", ans.Text)
	assert.Equal(t, 1, model.Calls())
}

func TestRun_NoOutput(t *testing.T) {
	tests := []struct {
		reply llmtest.Reply
		want  string
	}{
		{llmtest.Empty(llm.FinishReasonSafety), "The response was blocked due to safety settings."},
		{llmtest.Empty(llm.FinishReasonRecitation), "The response was blocked due to potential data recitation."},
		{llmtest.Empty(llm.FinishReasonMaxTokens), "Orchestrator failed to produce an output or call a tool. Finish reason: MAX_TOKENS"},
		{llmtest.Reply{Response: &llm.Response{BlockReason: "SAFETY"}}, "The response was blocked due to safety settings."},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			model := llmtest.NewClient(tt.reply)
			h := newHarness(t, model, llmtest.NewClient())

			ans, err := h.orch.Run(context.Background(), Request{Prompt: "hello"})
			require.NoError(t, err)
			assert.Equal(t, OutcomeBlocked, ans.Outcome)
			assert.Equal(t, tt.want, ans.Text)
		})
	}
}

func TestRun_ExtractionFailureIsFatal(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.pdf")
	model := llmtest.NewClient(llmtest.Call(tool.ExtractAssignment, map[string]any{"file_path": missing}))
	tools := llmtest.NewClient()
	h := newHarness(t, model, tools)

	ans, err := h.orch.Run(context.Background(), Request{Prompt: "extract", FilePath: missing})
	require.NoError(t, err)
	assert.Equal(t, OutcomeExtractionFailed, ans.Outcome)
	assert.True(t, strings.HasPrefix(ans.Text, "ERROR: Assignment data extraction failed: File not found at: "+missing))
	assert.Equal(t, 1, model.Calls())
	assert.Zero(t, tools.Calls())
}

func TestRun_PersistenceFailureIsFatal(t *testing.T) {
	doc := writeDoc(t)
	model := llmtest.NewClient(llmtest.Call(tool.ExtractAssignment, map[string]any{"file_path": doc}))
	tools := llmtest.NewClient(llmtest.Text(`{"deadline": "none", "task_type": "Essay", "subject": "", "priority": "Low"}`))
	h := newHarness(t, model, tools)

	ans, err := h.orch.Run(context.Background(), Request{Prompt: "extract", FilePath: doc})
	require.NoError(t, err)
	assert.Equal(t, OutcomePersistenceFailed, ans.Outcome)
	assert.Equal(t, "ERROR: Failed to save task data to the database due to missing required fields (e.g., deadline). Check database constraints.", ans.Text)
}

func TestRun_ToolErrorsAreFedBack(t *testing.T) {
	model := llmtest.NewClient(
		llmtest.Call(tool.CompleteTask, map[string]any{}),
		llmtest.Call(tool.CompleteTask, map[string]any{"task_id": float64(5)}),
		llmtest.Text("Task 5 does not exist."),
	)
	h := newHarness(t, model, llmtest.NewClient())

	ans, err := h.orch.Run(context.Background(), Request{Prompt: "complete task 5"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, ans.Outcome)

	reqs := model.Requests()
	require.Len(t, reqs, 3)
	assert.Contains(t, lastToolResult(reqs[1])["error"], "invalid arguments for complete_task_tool")
	assert.Equal(t, "ERROR: Could not find or mark Task ID 5 as complete.", lastToolResult(reqs[2])["result"])

	// user, model call, tool result, model call, tool result
	roles := make([]llm.Role, 0, len(reqs[2].Contents))
	for _, c := range reqs[2].Contents {
		roles = append(roles, c.Role)
	}
	assert.Equal(t, []llm.Role{llm.RoleUser, llm.RoleModel, llm.RoleTool, llm.RoleModel, llm.RoleTool}, roles)
}

func TestRun_ModelUnavailable(t *testing.T) {
	model := llmtest.NewClient(llmtest.Error(fmt.Errorf("connection refused")))
	h := newHarness(t, model, llmtest.NewClient())

	ans, err := h.orch.Run(context.Background(), Request{Prompt: "hello"})
	require.Error(t, err)
	assert.Nil(t, ans)
	assert.True(t, cerr.IsCode(err, cerr.Unavailable))
}

func TestRun_ProgressWithoutTasks(t *testing.T) {
	model := llmtest.NewClient(llmtest.Call(tool.ProgressReport, nil))
	model.Fallback = func(req *llm.Request) (*llm.Response, error) {
		return llmtest.Text(fmt.Sprint(lastToolResult(req)["result"])).Response, nil
	}
	tools := llmtest.NewClient()
	h := newHarness(t, model, tools)

	ans, err := h.orch.Run(context.Background(), Request{Prompt: "remind me"})
	require.NoError(t, err)
	assert.Equal(t, "You have no active assignments. Enjoy your free time!", ans.Text)
	assert.Zero(t, tools.Calls())
}

func TestRun_FileToolsUseTheRequestFile(t *testing.T) {
	doc := writeDoc(t)
	secret := filepath.Join(t.TempDir(), "id_rsa")
	require.NoError(t, os.WriteFile(secret, []byte("private"), 0o600))

	model := llmtest.NewClient(
		llmtest.Call(tool.SummarizeDocument, map[string]any{"file_path": secret}),
		llmtest.Text("Here is the summary."),
	)
	tools := llmtest.NewClient(llmtest.Text("A history essay brief."))
	h := newHarness(t, model, tools)

	ans, err := h.orch.Run(context.Background(), Request{Prompt: "summarize my upload", FilePath: doc})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, ans.Outcome)

	assert.Equal(t, []string{doc}, tools.Uploaded())
	reqs := model.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, doc, reqs[1].Contents[1].Parts[0].FunctionCall.Args["file_path"])
}

func TestRun_FileToolsStayInsideUploads(t *testing.T) {
	uploads := t.TempDir()
	inside := filepath.Join(uploads, "notes.txt")
	require.NoError(t, os.WriteFile(inside, []byte("notes"), 0o644))
	secret := filepath.Join(t.TempDir(), "id_rsa")
	require.NoError(t, os.WriteFile(secret, []byte("private"), 0o600))

	t.Run("outside is refused", func(t *testing.T) {
		model := llmtest.NewClient(
			llmtest.Call(tool.SummarizeDocument, map[string]any{"file_path": secret}),
			llmtest.Text("I cannot read that file."),
		)
		tools := llmtest.NewClient()
		h := newHarness(t, model, tools, WithUploadsDir(uploads))

		ans, err := h.orch.Run(context.Background(), Request{Prompt: "summarize " + secret})
		require.NoError(t, err)
		assert.Equal(t, OutcomeCompleted, ans.Outcome)
		assert.Empty(t, tools.Uploaded())
		assert.Zero(t, tools.Calls())
		assert.Contains(t, lastToolResult(model.Requests()[1])["error"], "outside the uploads directory")
	})

	t.Run("outside extraction ends the turn", func(t *testing.T) {
		model := llmtest.NewClient(llmtest.Call(tool.ExtractAssignment, map[string]any{"file_path": secret}))
		tools := llmtest.NewClient()
		h := newHarness(t, model, tools, WithUploadsDir(uploads))

		ans, err := h.orch.Run(context.Background(), Request{Prompt: "extract " + secret})
		require.NoError(t, err)
		assert.Equal(t, OutcomeExtractionFailed, ans.Outcome)
		assert.Contains(t, ans.Text, "outside the uploads directory")
		assert.Empty(t, tools.Uploaded())
	})

	t.Run("relative upload is resolved", func(t *testing.T) {
		model := llmtest.NewClient(
			llmtest.Call(tool.SummarizeDocument, map[string]any{"file_path": "notes.txt"}),
			llmtest.Text("done"),
		)
		tools := llmtest.NewClient(llmtest.Text("Some notes."))
		h := newHarness(t, model, tools, WithUploadsDir(uploads))

		ans, err := h.orch.Run(context.Background(), Request{Prompt: "summarize notes.txt"})
		require.NoError(t, err)
		assert.Equal(t, OutcomeCompleted, ans.Outcome)
		want, err := filepath.EvalSymlinks(inside)
		require.NoError(t, err)
		assert.Equal(t, []string{want}, tools.Uploaded())
	})

	t.Run("no uploads dir refuses everything", func(t *testing.T) {
		model := llmtest.NewClient(
			llmtest.Call(tool.SummarizeDocument, map[string]any{"file_path": inside}),
			llmtest.Text("done"),
		)
		tools := llmtest.NewClient()
		h := newHarness(t, model, tools)

		_, err := h.orch.Run(context.Background(), Request{Prompt: "summarize"})
		require.NoError(t, err)
		assert.Empty(t, tools.Uploaded())
	})
}

func TestRun_NilResponseIsBlocked(t *testing.T) {
	model := llmtest.NewClient(llmtest.Reply{})
	h := newHarness(t, model, llmtest.NewClient())

	ans, err := h.orch.Run(context.Background(), Request{Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeBlocked, ans.Outcome)
	assert.True(t, strings.HasPrefix(ans.Text, "Orchestrator failed to produce an output"))
}
