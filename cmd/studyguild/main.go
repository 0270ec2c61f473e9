package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"

	"github.com/kazz187/studyguild/internal/assistant"
	"github.com/kazz187/studyguild/internal/config"
	"github.com/kazz187/studyguild/pkg/clog"
)

var (
	app = kingpin.New("studyguild", "Study assistant that extracts, schedules and tracks assignments")

	askCmd    = app.Command("ask", "Send one request to the assistant")
	askPrompt = askCmd.Arg("prompt", "Request text").Required().String()
	askFile   = askCmd.Flag("file", "Document to attach to the request").Short('f').ExistingFile()

	chatCmd = app.Command("chat", "Start an interactive session")

	serveCmd = app.Command("serve", "Run the HTTP API, reminders and the uploads watcher")

	watchCmd = app.Command("watch", "Ingest documents dropped into the uploads directory")

	tasksCmd = app.Command("tasks", "Task commands")

	tasksListCmd    = tasksCmd.Command("list", "List active tasks ordered by deadline")
	tasksListFormat = tasksListCmd.Flag("format", "Output format").Default(formatText).Enum(formatText, formatYAML, formatJSON)

	tasksShowCmd = tasksCmd.Command("show", "Show task details")
	tasksShowID  = tasksShowCmd.Arg("id", "Task ID").Required().Int64()

	tasksCompleteCmd = tasksCmd.Command("complete", "Mark a task as complete")
	tasksCompleteID  = tasksCompleteCmd.Arg("id", "Task ID").Required().Int64()

	scheduleCmd = app.Command("schedule", "Schedule commands")

	scheduleShowCmd = scheduleCmd.Command("show", "Show the latest study schedule of a task")
	scheduleShowID  = scheduleShowCmd.Arg("id", "Task ID").Required().Int64()

	scheduleHistoryCmd = scheduleCmd.Command("history", "Show every study schedule generated for a task")
	scheduleHistoryID  = scheduleHistoryCmd.Arg("id", "Task ID").Required().Int64()

	eventsCmd   = app.Command("events", "Show the event journal of one day")
	eventsDate  = eventsCmd.Flag("date", "Day to show (YYYY-MM-DD), today by default").String()
	eventsType  = eventsCmd.Flag("type", "Only show events of this type").String()
	eventsList  = eventsCmd.Flag("list", "List the days that have a journal").Bool()
	eventsPrune = eventsCmd.Flag("prune-before", "Delete the journals of days before this date (YYYY-MM-DD)").String()
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	env, err := config.LoadEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	setupLogger(env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := assistant.New(ctx, env)
	if err != nil {
		slog.Error("failed to set up assistant", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	switch command {
	case askCmd.FullCommand():
		err = runAsk(ctx, a, *askPrompt, *askFile)
	case chatCmd.FullCommand():
		err = runChat(ctx, a, os.Stdin, os.Stdout)
	case serveCmd.FullCommand():
		err = runServe(ctx, a)
	case watchCmd.FullCommand():
		err = runWatch(ctx, a)
	case tasksListCmd.FullCommand():
		err = listTasks(ctx, a, os.Stdout, *tasksListFormat)
	case tasksShowCmd.FullCommand():
		err = showTask(ctx, a, os.Stdout, *tasksShowID)
	case tasksCompleteCmd.FullCommand():
		err = completeTask(ctx, a, os.Stdout, *tasksCompleteID)
	case scheduleShowCmd.FullCommand():
		err = showSchedule(ctx, a, os.Stdout, *scheduleShowID)
	case scheduleHistoryCmd.FullCommand():
		err = scheduleHistory(ctx, a, os.Stdout, *scheduleHistoryID)
	case eventsCmd.FullCommand():
		switch {
		case *eventsList:
			err = listEventDays(ctx, a, os.Stdout)
		case *eventsPrune != "":
			err = pruneEvents(ctx, a, os.Stdout, *eventsPrune)
		default:
			err = showEvents(ctx, a, os.Stdout, *eventsDate, *eventsType)
		}
	}
	if err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		a.Close()
		os.Exit(1)
	}
}

func setupLogger(env *config.Env) {
	level := env.SlogLevel()
	var handler slog.Handler
	if env.IsLocal() {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level), clog.WithColor(true))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))
}
