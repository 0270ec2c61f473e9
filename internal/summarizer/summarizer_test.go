package summarizer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/studyguild/internal/llm"
	"github.com/kazz187/studyguild/internal/llm/llmtest"
	"github.com/kazz187/studyguild/pkg/cerr"
)

func TestSummarize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reading.pdf")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))
	client := llmtest.NewClient(llmtest.Text("The paper concludes that sleep helps memory."))

	got, err := New(client, "test-model").Summarize(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "The paper concludes that sleep helps memory.", got)
	assert.Equal(t, []string{"files/1"}, client.Deleted())

	reqs := client.Requests()
	require.Len(t, reqs, 1)
	parts := reqs[0].Contents[0].Parts
	require.Len(t, parts, 2)
	assert.NotNil(t, parts[0].File)
	assert.Equal(t, summaryPrompt, parts[1].Text)
}

func TestSummarize_MissingFile(t *testing.T) {
	client := llmtest.NewClient()

	_, err := New(client, "test-model").Summarize(context.Background(), "/nonexistent/reading.pdf")
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
	assert.Zero(t, client.Calls())
}

func TestSummarize_EmptyResponse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reading.pdf")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))
	client := llmtest.NewClient(llmtest.Empty(llm.FinishReasonSafety))

	_, err := New(client, "test-model").Summarize(context.Background(), path)
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.Internal))
	assert.Equal(t, []string{"files/1"}, client.Deleted())
}
