// Command aule-worker is the entrypoint of inference container images:
//
//	aule-worker -timeout 2m -- llama-cli -m /models/{model}.gguf -n {max_tokens}
//
// The prompt is piped to the command and its stdout is relayed as the
// completion. Logs go to stderr.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/manthysbr/aule-router/pkg/worker"
)

func main() {
	timeout := flag.Duration("timeout", 5*time.Minute, "maximum run time of the inference command")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	if flag.NArg() == 0 {
		logger.Error("no inference command given")
		os.Exit(2)
	}

	req, err := worker.RequestFromEnv(os.Getenv)
	if err != nil {
		logger.Error("invalid invocation", "error", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	res, err := worker.Run(ctx, logger, worker.Config{
		Command: flag.Arg(0),
		Args:    flag.Args()[1:],
		Timeout: *timeout,
	}, req)
	if err != nil {
		logger.Error("inference failed", "model", req.Model, "error", err)
		os.Exit(1)
	}

	fmt.Fprint(os.Stdout, res.Output)
	if res.ExitCode != 0 {
		fmt.Fprint(os.Stderr, res.Stderr)
		os.Exit(res.ExitCode)
	}
}
