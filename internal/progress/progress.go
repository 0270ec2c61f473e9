package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kazz187/studyguild/internal/llm"
	"github.com/kazz187/studyguild/internal/schedule"
	"github.com/kazz187/studyguild/internal/task"
	"github.com/kazz187/studyguild/internal/worksheet"
	"github.com/kazz187/studyguild/pkg/cerr"
)

const NoActiveTasks = "You have no active assignments. Enjoy your free time!"

type WorksheetGenerator interface {
	Generate(ctx context.Context, topic string, numProblems int) (string, error)
}

type Reporter struct {
	client     llm.Client
	model      string
	tasks      task.Repository
	schedules  schedule.Repository
	worksheets WorksheetGenerator
	now        func() time.Time
}

func New(client llm.Client, model string, tasks task.Repository, schedules schedule.Repository, worksheets WorksheetGenerator) *Reporter {
	return &Reporter{
		client:     client,
		model:      model,
		tasks:      tasks,
		schedules:  schedules,
		worksheets: worksheets,
		now:        time.Now,
	}
}

// Report produces a progress report over the active tasks. A positive taskID
// adds that task's latest schedule to the context. The model may request one
// worksheet; its result is folded into a second call made without tools.
func (r *Reporter) Report(ctx context.Context, taskID int64) (string, error) {
	active, err := r.tasks.ListActive(ctx)
	if err != nil {
		return "", err
	}
	if len(active) == 0 {
		return NoActiveTasks, nil
	}

	prompt, err := r.userPrompt(ctx, active, taskID)
	if err != nil {
		return "", err
	}
	instruction := r.systemInstruction()
	contents := []llm.Content{llm.UserText(prompt)}

	resp, err := r.client.Generate(ctx, &llm.Request{
		Model:             r.model,
		SystemInstruction: instruction,
		Contents:          contents,
		Tools:             []llm.FunctionDeclaration{worksheet.Declaration},
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate progress report: %w", err)
	}

	calls := resp.FunctionCalls()
	if len(calls) == 0 || calls[0].Name != worksheet.ToolName {
		if len(calls) > 0 {
			slog.WarnContext(ctx, "progress report requested an unavailable tool", "tool", calls[0].Name)
		}
		return nonEmpty(resp)
	}

	call := calls[0]
	contents = append(contents, llm.ModelCall(call), llm.ToolResult(call, r.runWorksheet(ctx, call)))
	final, err := r.client.Generate(ctx, &llm.Request{
		Model: r.model,
		SystemInstruction: instruction + " The worksheet tool has already been run; " +
			"no further tools are available. Write the final report now.",
		Contents: contents,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate progress report: %w", err)
	}
	return nonEmpty(final)
}

func (r *Reporter) runWorksheet(ctx context.Context, call llm.FunctionCall) map[string]any {
	var args worksheet.Args
	raw, err := json.Marshal(call.Args)
	if err == nil {
		err = json.Unmarshal(raw, &args)
	}
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("invalid worksheet arguments: %v", err)}
	}
	slog.InfoContext(ctx, "progress report generating worksheet", "topic", args.Topic, "num_problems", args.NumProblems)
	out, err := r.worksheets.Generate(ctx, args.Topic, args.NumProblems)
	if err != nil {
		slog.WarnContext(ctx, "worksheet generation failed", "error", err)
		return map[string]any{"error": cerr.Message(err)}
	}
	return map[string]any{"content": out}
}

func (r *Reporter) userPrompt(ctx context.Context, active []*task.Task, taskID int64) (string, error) {
	tasksJSON, err := json.MarshalIndent(active, "", "  ")
	if err != nil {
		return "", cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal tasks: %w", err))
	}

	var sb strings.Builder
	sb.WriteString("Analyze the following data and generate the report and/or call the necessary tool. ")
	sb.WriteString("\n\n--- ALL ACTIVE TASKS ---\n")
	sb.Write(tasksJSON)

	if taskID > 0 {
		sch, err := r.schedules.Latest(ctx, taskID)
		switch {
		case err == nil:
			fmt.Fprintf(&sb, "\n\n--- SPECIFIC SCHEDULE FOR TASK ID %d ---\n%s", taskID, sch.Text)
		case cerr.IsCode(err, cerr.NotFound):
			slog.DebugContext(ctx, "no schedule for task", "task_id", taskID)
		default:
			return "", err
		}
	}
	return sb.String(), nil
}

func (r *Reporter) systemInstruction() string {
	current := r.now().Format("Monday, January 02, 2006, 15:04:05")
	return fmt.Sprintf("You are the Progress and Resource Agent. The current date and time is %s. "+
		"Your goal is to provide a comprehensive, motivational report. "+
		"Analyze the user's active tasks and schedules. "+
		"CRITICAL PROACTIVE RULE: If your analysis shows the **highest-priority next step** "+
		"is a numerical problem, a calculation, or a concept that requires immediate practice "+
		"(e.g., 'SJF Non-Preemptive Scheduling', 'IP Subnetting'), "+
		"you MUST proactively generate a resource. In this scenario, you MUST call the "+
		"'%s' tool immediately, suggesting %d problems by default. "+
		"If you call the tool, you must incorporate its result into the final report. "+
		"If you do NOT call a tool, your final output must be a clean, motivational text report.",
		current, worksheet.ToolName, worksheet.DefaultProblems)
}

func nonEmpty(resp *llm.Response) (string, error) {
	if resp == nil {
		return "", cerr.NewError(cerr.Internal, "progress report was empty", nil)
	}
	if text := resp.Text(); text != "" {
		return text, nil
	}
	return "", cerr.NewError(cerr.Internal, "progress report was empty",
		fmt.Errorf("finish reason: %s", resp.FinishReason))
}
