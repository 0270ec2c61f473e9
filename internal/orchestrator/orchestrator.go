package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/kazz187/studyguild/internal/llm"
	"github.com/kazz187/studyguild/internal/tool"
	"github.com/kazz187/studyguild/pkg/cerr"
	"github.com/kazz187/studyguild/pkg/clog"
	"github.com/kazz187/studyguild/pkg/docpath"
)

const DefaultMaxSteps = 5

type Outcome string

const (
	OutcomeCompleted         Outcome = "completed"
	OutcomeExtractionFailed  Outcome = "extraction_failed"
	OutcomePersistenceFailed Outcome = "persistence_failed"
	OutcomeUnknownTool       Outcome = "unknown_tool"
	OutcomeBlocked           Outcome = "blocked"
	OutcomeStepLimit         Outcome = "step_limit"
)

const (
	msgPersistenceFailed = "ERROR: Failed to save task data to the database due to missing required fields (e.g., deadline). Check database constraints."
	msgStepLimit         = "Orchestrator reached maximum steps without completing the task."
	msgSafety            = "The response was blocked due to safety settings."
	msgRecitation        = "The response was blocked due to potential data recitation."
	statusProceed        = "Task successfully saved to database. Proceed to scheduling."
)

type Request struct {
	Prompt   string
	FilePath string
}

// Answer is the terminal result of a run. Every outcome other than
// OutcomeCompleted carries a user-facing failure text.
type Answer struct {
	Text    string  `json:"text"`
	Outcome Outcome `json:"outcome"`
	Steps   int     `json:"steps"`
}

type Orchestrator struct {
	client     llm.Client
	model      string
	registry   *tool.Registry
	maxSteps   int
	uploadsDir string
}

type Option func(*Orchestrator)

func WithMaxSteps(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxSteps = n
		}
	}
}

// WithUploadsDir confines document paths chosen by the model to dir when the
// request itself names no file.
func WithUploadsDir(dir string) Option {
	return func(o *Orchestrator) {
		o.uploadsDir = dir
	}
}

func New(client llm.Client, model string, registry *tool.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:   client,
		model:    model,
		registry: registry,
		maxSteps: DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run drives the model through at most maxSteps tool calls. Only a failure
// to reach the LLM is returned as an error; every other ending is an Answer.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Answer, error) {
	history := []llm.Content{llm.UserText(req.Prompt)}
	instruction := systemInstruction(req.FilePath)
	decls := o.registry.Declarations()

	// Set once extraction succeeds; later scheduling calls are pinned to it.
	var extractedID int64

	for step := 1; step <= o.maxSteps; step++ {
		clog.AddAttribute(ctx, "step", step)
		slog.DebugContext(ctx, "asking model for next action", "step", step)

		resp, err := o.client.Generate(ctx, &llm.Request{
			Model:             o.model,
			SystemInstruction: instruction,
			Contents:          history,
			Tools:             decls,
		})
		if err != nil {
			return nil, cerr.NewError(cerr.Unavailable, "orchestrator could not reach the model", err)
		}

		calls := resp.FunctionCalls()
		if len(calls) == 0 {
			if text := resp.Text(); text != "" {
				slog.InfoContext(ctx, "orchestrator finished", "step", step)
				return &Answer{Text: text, Outcome: OutcomeCompleted, Steps: step}, nil
			}
			return &Answer{Text: noOutputMessage(resp), Outcome: OutcomeBlocked, Steps: step}, nil
		}

		call := calls[0]
		t, ok := o.registry.Lookup(call.Name)
		if !ok {
			slog.WarnContext(ctx, "model requested unknown tool", "tool", call.Name)
			return &Answer{
				Text:    fmt.Sprintf("Error: Tool '%s' not found.", call.Name),
				Outcome: OutcomeUnknownTool,
				Steps:   step,
			}, nil
		}

		if call.Name == tool.ScheduleTask && extractedID != 0 {
			call = pinTaskID(ctx, call, extractedID)
		}

		var res tool.Result
		if confined, err := o.confineFilePath(ctx, call, req.FilePath); err != nil {
			slog.WarnContext(ctx, "refusing document path", "tool", call.Name, "error", err)
			res = tool.Result{Err: err}
		} else {
			call = confined
			slog.InfoContext(ctx, "delegating to tool", "step", step, "tool", call.Name)
			res = t.Invoke(ctx, call.Args)
		}

		var payload map[string]any
		if call.Name == tool.ExtractAssignment {
			if res.Failed() {
				slog.WarnContext(ctx, "extraction failed", "tool", call.Name, "error", res.Err)
				if errors.Is(res.Err, tool.ErrTaskNotSaved) {
					return &Answer{Text: msgPersistenceFailed, Outcome: OutcomePersistenceFailed, Steps: step}, nil
				}
				return &Answer{
					Text:    fmt.Sprintf("ERROR: Assignment data extraction failed: %s", cerr.Message(res.Err)),
					Outcome: OutcomeExtractionFailed,
					Steps:   step,
				}, nil
			}
			extracted, ok := res.Value.(*tool.Extracted)
			if !ok {
				return nil, cerr.NewError(cerr.Internal, "server error",
					fmt.Errorf("unexpected extraction result %T", res.Value))
			}
			extractedID = extracted.TaskID
			payload = map[string]any{"task_id": extractedID, "status": statusProceed}
		} else {
			payload = toPayload(ctx, call.Name, res)
		}

		history = append(history, llm.ModelCall(call), llm.ToolResult(call, payload))
	}

	slog.WarnContext(ctx, "orchestrator hit the step limit", "max_steps", o.maxSteps)
	return &Answer{Text: msgStepLimit, Outcome: OutcomeStepLimit, Steps: o.maxSteps}, nil
}

func pinTaskID(ctx context.Context, call llm.FunctionCall, id int64) llm.FunctionCall {
	args := maps.Clone(call.Args)
	if args == nil {
		args = map[string]any{}
	}
	if got, ok := args["task_id"]; ok && fmt.Sprint(got) != fmt.Sprint(id) {
		slog.WarnContext(ctx, "overriding task_id in scheduling call", "requested", got, "task_id", id)
	}
	args["task_id"] = id
	call.Args = args
	return call
}

// confineFilePath pins the document of file-reading tools to the request's
// file. Without one, the model's path must lie inside the uploads directory.
func (o *Orchestrator) confineFilePath(ctx context.Context, call llm.FunctionCall, requestFile string) (llm.FunctionCall, error) {
	if call.Name != tool.SummarizeDocument && call.Name != tool.ExtractAssignment {
		return call, nil
	}
	args := maps.Clone(call.Args)
	if args == nil {
		args = map[string]any{}
	}
	requested, _ := args["file_path"].(string)

	if requestFile != "" {
		if requested != requestFile {
			slog.WarnContext(ctx, "overriding file_path in tool call", "requested", requested, "file_path", requestFile)
		}
		args["file_path"] = requestFile
		call.Args = args
		return call, nil
	}

	path, ok := docpath.InDir(o.uploadsDir, requested)
	if !ok {
		return call, cerr.NewError(cerr.PermissionDenied,
			fmt.Sprintf("file %q is outside the uploads directory", requested), nil)
	}
	args["file_path"] = path
	call.Args = args
	return call, nil
}

func toPayload(ctx context.Context, name string, res tool.Result) map[string]any {
	if res.Failed() {
		slog.WarnContext(ctx, "tool failed", "tool", name, "error", res.Err)
		return map[string]any{"error": cerr.Message(res.Err)}
	}
	return map[string]any{"result": jsonValue(res.Value)}
}

// jsonValue converts v into plain maps, slices and scalars.
func jsonValue(v any) any {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return string(data)
	}
	return out
}

func noOutputMessage(resp *llm.Response) string {
	if resp == nil {
		return "Orchestrator failed to produce an output or call a tool. Finish reason: "
	}
	reason := resp.FinishReason
	if reason == "" && resp.BlockReason != "" {
		reason = llm.FinishReason(resp.BlockReason)
	}
	switch reason {
	case llm.FinishReasonSafety:
		return msgSafety
	case llm.FinishReasonRecitation:
		return msgRecitation
	default:
		return fmt.Sprintf("Orchestrator failed to produce an output or call a tool. Finish reason: %s", reason)
	}
}

func systemInstruction(filePath string) string {
	file := filePath
	if file == "" {
		file = "(no file provided)"
	}
	return "You are the Orchestrator Agent. Your task is to analyze the user's request " +
		"and determine the exact sequence of tool calls needed to fulfill it. " +
		fmt.Sprintf("The file involved is located at: '%s'. Always use this file path in your tool calls. ", file) +
		"You MUST first call any necessary tools, and then provide a final summary answer. " +
		"Only call the tools the request actually needs. " +
		fmt.Sprintf("CRITICAL RULE: When '%s' is called, its result will contain the 'task_id'. ", tool.ExtractAssignment) +
		fmt.Sprintf("You MUST use this 'task_id' as the argument for the '%s' in the subsequent step.", tool.ScheduleTask)
}
