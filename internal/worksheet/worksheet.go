package worksheet

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gosimple/slug"

	"github.com/kazz187/studyguild/internal/eventbus"
	"github.com/kazz187/studyguild/internal/llm"
	"github.com/kazz187/studyguild/pkg/cerr"
	"github.com/kazz187/studyguild/pkg/storage"
)

const (
	DefaultProblems = 3
	maxProblems     = 20
	worksheetsDir   = "worksheets"
)

type Generator struct {
	client  llm.Client
	model   string
	storage storage.Storage
	bus     *eventbus.Bus
}

func New(client llm.Client, model string, s storage.Storage, bus *eventbus.Bus) *Generator {
	return &Generator{client: client, model: model, storage: s, bus: bus}
}

// Generate asks for numProblems practice problems on topic, stores the text
// and returns a message quoting the stored location and the content.
func (g *Generator) Generate(ctx context.Context, topic string, numProblems int) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", cerr.NewError(cerr.InvalidArgument, "worksheet topic is required", nil)
	}
	if numProblems <= 0 {
		numProblems = DefaultProblems
	}
	if numProblems > maxProblems {
		numProblems = maxProblems
	}

	prompt := fmt.Sprintf(
		"You are an expert academic tutor. Generate a practice worksheet consisting of %d distinct "+
			"and challenging problems on the topic of '%s'. Where the topic is numerical, give every "+
			"input value the student needs. Do NOT provide the solution. "+
			"Format the output clearly with headings for each problem.",
		numProblems, topic,
	)
	resp, err := g.client.Generate(ctx, &llm.Request{
		Model:    g.model,
		Contents: []llm.Content{llm.UserText(prompt)},
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate worksheet: %w", err)
	}
	content := resp.Text()

	path := Path(topic)
	if err := g.storage.Write(ctx, path, []byte(content)); err != nil {
		return "", cerr.WrapStorageWriteError("worksheet", err)
	}
	location := g.storage.Location(path)
	g.bus.PublishNew(eventbus.EventWorksheetGenerated, path, map[string]string{
		"topic":    topic,
		"location": location,
	})
	slog.InfoContext(ctx, "worksheet saved", "topic", topic, "problems", numProblems, "location", location)

	return fmt.Sprintf(
		"SUCCESS: A practice worksheet with %d problems on '%s' has been generated and is ready for download. "+
			"File Path: %s\n\n"+
			"--- GENERATED CONTENT START ---\n%s\n--- GENERATED CONTENT END ---",
		numProblems, topic, location, content,
	), nil
}

// Path returns the storage path of the worksheet for topic.
func Path(topic string) string {
	return fmt.Sprintf("%s/%s_worksheet.txt", worksheetsDir, Slug(topic))
}

// Slug turns a topic into a file-name-safe token.
func Slug(topic string) string {
	if s := slug.Make(topic); s != "" {
		return s
	}
	return "worksheet"
}

const ToolName = "generate_practice_worksheet"

type Args struct {
	Topic       string `json:"topic"`
	NumProblems int    `json:"num_problems"`
}

var Declaration = llm.FunctionDeclaration{
	Name: ToolName,
	Description: "Generates a specified number of practice problems for a given technical topic " +
		"and saves them as a downloadable text file. Returns a success message with the file path and the generated content.",
	Parameters: &llm.Schema{
		Type: llm.TypeObject,
		Properties: map[string]*llm.Schema{
			"topic": {
				Type:        llm.TypeString,
				Description: "The specific technical subject for the worksheet (e.g., 'SJF Non-Preemptive Scheduling').",
			},
			"num_problems": {
				Type:        llm.TypeInteger,
				Description: "The number of practice problems to generate (e.g., 3).",
			},
		},
		Required: []string{"topic", "num_problems"},
	},
}
