package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

// interruptedError is the cancellation cause recorded when a signal arrives.
type interruptedError struct {
	sig os.Signal
}

func (e *interruptedError) Error() string {
	return "interrupted by " + e.sig.String()
}

// inFlight holds the path of the command currently running, e.g.
// "gdrive-go put". Empty before the root pre-run.
var inFlight atomic.Pointer[string]

func markInFlight(command string) {
	inFlight.Store(&command)
}

func inFlightCommand() string {
	if p := inFlight.Load(); p != nil {
		return *p
	}

	return ""
}

// shutdownContext returns a context canceled with an *interruptedError on the
// first SIGINT or SIGTERM. The running request is aborted and a partial
// download removes its temp file. A second signal exits at once.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancelCause(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		var sig os.Signal

		select {
		case sig = <-sigCh:
		case <-ctx.Done():
			return
		}

		logger.Warn("interrupted, aborting request",
			slog.String("signal", sig.String()),
			slog.String("command", inFlightCommand()),
		)
		cancel(&interruptedError{sig: sig})

		select {
		case sig = <-sigCh:
			logger.Warn("second signal, exiting without cleanup",
				slog.String("signal", sig.String()),
				slog.String("command", inFlightCommand()),
			)
			os.Exit(signalExitCode(sig))
		case <-parent.Done():
		}
	}()

	return ctx
}

// exitCode maps the outcome of a run to a process exit status: 128+signal
// when a signal canceled ctx, 1 otherwise.
func exitCode(ctx context.Context) int {
	var ie *interruptedError
	if errors.As(context.Cause(ctx), &ie) {
		return signalExitCode(ie.sig)
	}

	return 1
}

func signalExitCode(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return 128 + int(s)
	}

	return 1
}
