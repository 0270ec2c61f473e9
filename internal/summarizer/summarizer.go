package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/kazz187/studyguild/internal/llm"
	"github.com/kazz187/studyguild/pkg/cerr"
)

const summaryPrompt = "Summarize this document and tell me the main conclusion."

type Summarizer struct {
	client llm.Client
	model  string
}

func New(client llm.Client, model string) *Summarizer {
	return &Summarizer{client: client, model: model}
}

func (s *Summarizer) Summarize(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", cerr.NewError(cerr.NotFound, fmt.Sprintf("File not found at: %s", path), err)
	}

	file, err := s.client.UploadFile(ctx, path)
	if err != nil {
		return "", cerr.NewError(cerr.CodeOf(err), "failed to upload file", err)
	}
	slog.DebugContext(ctx, "document uploaded", "file", file.Name)
	defer func() {
		if err := s.client.DeleteFile(context.WithoutCancel(ctx), file.Name); err != nil {
			slog.WarnContext(ctx, "failed to delete uploaded document", "file", file.Name, "error", err)
		}
	}()

	resp, err := s.client.Generate(ctx, &llm.Request{
		Model:    s.model,
		Contents: []llm.Content{llm.UserFile(file, summaryPrompt)},
	})
	if err != nil {
		return "", fmt.Errorf("failed to summarize document: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", cerr.NewError(cerr.Internal, "empty summary", fmt.Errorf("finish reason: %s", resp.FinishReason))
	}
	return text, nil
}
