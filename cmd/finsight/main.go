// Command finsight is the terminal client for the finsight API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"finsight/internal/cli"
	"finsight/internal/config"
	"finsight/internal/log"
)

func main() {
	// Load .env file for local development
	cli.LoadEnvFile()

	cfg := config.LoadClient()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// stdout belongs to the rendered output
	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Format:    "text",
		Component: log.ComponentClient,
		Output:    os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, cfg, logger, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, cfg *config.ClientConfig, logger *log.Logger, args []string, in io.Reader, out, errOut io.Writer) int {
	a, err := newApp(ctx, cfg, logger, nil, in, out, errOut)
	if err != nil {
		fmt.Fprintln(errOut, expenseStyle.Render(err.Error()))
		return 1
	}
	if err := a.run(ctx, args); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(errOut, err)
			fmt.Fprintln(errOut, "Run `finsight help` for usage.")
			return 2
		}
		fmt.Fprintln(errOut, expenseStyle.Render(userMessage(err)))
		return 1
	}
	return 0
}
