package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/kazz187/studyguild/internal/assistant"
	"github.com/kazz187/studyguild/internal/orchestrator"
	"github.com/kazz187/studyguild/pkg/docpath"
)

var (
	promptColor    = color.New(color.FgCyan, color.Bold)
	assistantColor = color.New(color.FgGreen)
	warnColor      = color.New(color.FgYellow)
)

func runAsk(ctx context.Context, a *assistant.Assistant, prompt, file string) error {
	if file == "" {
		file = resolveFile(a, prompt)
	}
	ans, err := a.Ask(ctx, prompt, file)
	if err != nil {
		return err
	}
	printAnswer(color.Output, ans)
	return nil
}

// runChat reads one request per line until EOF or "exit". Reminders stay
// quiet while a request is being answered.
func runChat(ctx context.Context, a *assistant.Assistant, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = a.Reminders.Run(ctx) }()

	fmt.Fprintln(out, "Study assistant ready. Mention an uploaded file by name to attach it. Type 'exit' to quit.")
	scanner := bufio.NewScanner(in)
	for {
		promptColor.Fprint(out, "you> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		file := resolveFile(a, line)
		if file != "" {
			fmt.Fprintf(out, "(attaching %s)\n", file)
		}

		a.Reminders.Pause()
		ans, err := a.Ask(ctx, line, file)
		a.Reminders.Resume()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			warnColor.Fprintf(out, "request failed: %v\n", err)
			continue
		}
		printAnswer(out, ans)
	}
}

func resolveFile(a *assistant.Assistant, text string) string {
	if !docpath.Mentioned(text) {
		return ""
	}
	path, _ := docpath.NewFinder(a.Env.UploadsDir).Find(text)
	return path
}

func printAnswer(out io.Writer, ans *orchestrator.Answer) {
	if ans.Outcome != orchestrator.OutcomeCompleted {
		warnColor.Fprintln(out, ans.Text)
		return
	}
	assistantColor.Fprintln(out, ans.Text)
}
