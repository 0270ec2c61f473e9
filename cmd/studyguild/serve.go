package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/pool"

	server "github.com/kazz187/studyguild/internal"
	"github.com/kazz187/studyguild/internal/assistant"
	"github.com/kazz187/studyguild/internal/watcher"
)

func runServe(ctx context.Context, a *assistant.Assistant) error {
	srv := server.NewServer(&a.Env.BaseEnv, a)

	p := pool.New().WithErrors().WithContext(ctx).WithCancelOnError()
	p.Go(srv.ListenAndServe)
	p.Go(a.Reminders.Run)
	p.Go(func(ctx context.Context) error { return a.Journal.Run(ctx, a.Bus) })
	p.Go(watcher.New(a.Env.UploadsDir, a.Ingest).Run)
	p.Go(func(ctx context.Context) error {
		<-ctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return ignoreCanceled(p.Wait())
}

func runWatch(ctx context.Context, a *assistant.Assistant) error {
	p := pool.New().WithErrors().WithContext(ctx).WithCancelOnError()
	p.Go(func(ctx context.Context) error { return a.Journal.Run(ctx, a.Bus) })
	p.Go(watcher.New(a.Env.UploadsDir, a.Ingest).Run)
	return ignoreCanceled(p.Wait())
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
