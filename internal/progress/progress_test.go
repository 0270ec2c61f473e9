package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/studyguild/internal/llm"
	"github.com/kazz187/studyguild/internal/llm/llmtest"
	"github.com/kazz187/studyguild/internal/testutil"
	"github.com/kazz187/studyguild/internal/worksheet"
	"github.com/kazz187/studyguild/pkg/cerr"
)

type fakeWorksheets struct {
	topic string
	n     int
	calls int
	err   error
}

func (f *fakeWorksheets) Generate(_ context.Context, topic string, n int) (string, error) {
	f.calls++
	f.topic = topic
	f.n = n
	if f.err != nil {
		return "", f.err
	}
	return "SUCCESS: worksheet on " + topic, nil
}

func TestReport_NoActiveTasks(t *testing.T) {
	store := testutil.NewStore(t)
	client := llmtest.NewClient()

	got, err := New(client, "test-model", store.Tasks, store.Schedules, &fakeWorksheets{}).Report(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "You have no active assignments. Enjoy your free time!", got)
	assert.Zero(t, client.Calls())
}

func TestReport_PlainText(t *testing.T) {
	store := testutil.NewStore(t)
	store.AddTask(t, "History", 48*time.Hour)
	client := llmtest.NewClient(llmtest.Text("You are on track."))
	ws := &fakeWorksheets{}

	got, err := New(client, "test-model", store.Tasks, store.Schedules, ws).Report(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "You are on track.", got)
	assert.Zero(t, ws.calls)

	reqs := client.Requests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, worksheet.ToolName, reqs[0].Tools[0].Name)
	assert.Contains(t, reqs[0].SystemInstruction, "suggesting 3 problems by default")
	assert.Contains(t, reqs[0].Contents[0].Parts[0].Text, `"subject": "History"`)
}

func TestReport_IncludesLatestSchedule(t *testing.T) {
	store := testutil.NewStore(t)
	tk := store.AddTask(t, "Math", 48*time.Hour)
	store.AddSchedule(t, tk.ID, "old plan")
	store.AddSchedule(t, tk.ID, "Day 1: read chapter 3")
	client := llmtest.NewClient(llmtest.Text("report"))

	_, err := New(client, "test-model", store.Tasks, store.Schedules, &fakeWorksheets{}).Report(context.Background(), tk.ID)
	require.NoError(t, err)

	prompt := client.Requests()[0].Contents[0].Parts[0].Text
	assert.Contains(t, prompt, "--- SPECIFIC SCHEDULE FOR TASK ID 1 ---\nDay 1: read chapter 3")
}

func TestReport_MissingScheduleIsSkipped(t *testing.T) {
	store := testutil.NewStore(t)
	tk := store.AddTask(t, "Math", 48*time.Hour)
	client := llmtest.NewClient(llmtest.Text("report"))

	got, err := New(client, "test-model", store.Tasks, store.Schedules, &fakeWorksheets{}).Report(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "report", got)
	assert.NotContains(t, client.Requests()[0].Contents[0].Parts[0].Text, "SPECIFIC SCHEDULE")
}

func TestReport_WorksheetSubCall(t *testing.T) {
	store := testutil.NewStore(t)
	store.AddTask(t, "Operating Systems", 24*time.Hour)
	client := llmtest.NewClient(
		llmtest.Call(worksheet.ToolName, map[string]any{"topic": "SJF Scheduling", "num_problems": float64(3)}),
		llmtest.Text("Report with worksheet."),
	)
	ws := &fakeWorksheets{}

	got, err := New(client, "test-model", store.Tasks, store.Schedules, ws).Report(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "Report with worksheet.", got)
	assert.Equal(t, 1, ws.calls)
	assert.Equal(t, "SJF Scheduling", ws.topic)
	assert.Equal(t, 3, ws.n)

	reqs := client.Requests()
	require.Len(t, reqs, 2)
	assert.Empty(t, reqs[1].Tools, "the follow-up call must not offer tools")
	require.Len(t, reqs[1].Contents, 3)
	result := reqs[1].Contents[2].Parts[0].FunctionResponse
	require.NotNil(t, result)
	assert.Equal(t, "SUCCESS: worksheet on SJF Scheduling", result.Response["content"])
}

func TestReport_WorksheetFailureIsReported(t *testing.T) {
	store := testutil.NewStore(t)
	store.AddTask(t, "Networks", 24*time.Hour)
	client := llmtest.NewClient(
		llmtest.Call(worksheet.ToolName, map[string]any{"topic": "IP Subnetting", "num_problems": float64(2)}),
		llmtest.Text("Report without worksheet."),
	)
	ws := &fakeWorksheets{err: errors.New("disk full")}

	got, err := New(client, "test-model", store.Tasks, store.Schedules, ws).Report(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "Report without worksheet.", got)

	result := client.Requests()[1].Contents[2].Parts[0].FunctionResponse
	assert.Equal(t, "disk full", result.Response["error"])
}

func TestReport_UnknownSubToolIsIgnored(t *testing.T) {
	store := testutil.NewStore(t)
	store.AddTask(t, "Networks", 24*time.Hour)
	client := llmtest.NewClient(llmtest.Call("delete_everything", nil))

	_, err := New(client, "test-model", store.Tasks, store.Schedules, &fakeWorksheets{}).Report(context.Background(), 0)
	require.Error(t, err)
	assert.Equal(t, 1, client.Calls())
}

func TestReport_EmptyResponses(t *testing.T) {
	tests := []struct {
		name  string
		reply llmtest.Reply
	}{
		{name: "nil response", reply: llmtest.Reply{}},
		{name: "no content", reply: llmtest.Empty(llm.FinishReasonMaxTokens)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewStore(t)
			store.AddTask(t, "Networks", 24*time.Hour)
			client := llmtest.NewClient(tt.reply)

			_, err := New(client, "test-model", store.Tasks, store.Schedules, &fakeWorksheets{}).Report(context.Background(), 0)
			require.Error(t, err)
			assert.True(t, cerr.IsCode(err, cerr.Internal))
			assert.ErrorContains(t, err, "progress report was empty")
		})
	}
}
