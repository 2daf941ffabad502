package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vk/workgraph/internal/cli"
)

// main is the entrypoint for the workgraph command.
func main() {
	// Used only until the configured logger takes over.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(exitCode(err, os.Stderr))
}

func run(ctx context.Context, args []string, outW, errW io.Writer) error {
	return cli.Execute(ctx, args, outW, errW)
}

// exitCode prints err, if any, and maps it to a process exit code.
func exitCode(err error, errW io.Writer) int {
	if err == nil {
		return 0
	}
	var exitErr *cli.ExitError
	if errors.As(err, &exitErr) {
		fmt.Fprintln(errW, exitErr.Message)
		return exitErr.Code
	}
	fmt.Fprintln(errW, err)
	return 1
}
