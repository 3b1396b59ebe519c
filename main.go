package main

import (
	"context"
	"log/slog"
	"os"
)

func main() {
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := shutdownContext(context.Background(), bootLogger)

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		exitOnError(err, exitCode(ctx))
	}
}
