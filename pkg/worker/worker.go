// Package worker is the entrypoint logic of inference containers started by the
// container backend. The invocation arrives through the environment, the
// configured inference command receives the prompt on stdin, and whatever it
// prints becomes the completion.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/manthysbr/aule-router/internal/core/domain"
)

// Environment contract between the container backend and the worker.
const (
	EnvModel  = "AULE_MODEL"
	EnvPrompt = "AULE_PROMPT"
	EnvSystem = "AULE_SYSTEM"
	EnvParams = "AULE_PARAMS"

	EnvTemperature = "AULE_TEMPERATURE"
	EnvMaxTokens   = "AULE_MAX_TOKENS"
	EnvTopP        = "AULE_TOP_P"
)

// Request is one invocation as seen from inside the container.
type Request struct {
	Model  string
	Prompt string
	System string
	Params domain.ExecutionParameters
}

// RequestFromEnv reads the invocation written by the container backend.
func RequestFromEnv(getenv func(string) string) (Request, error) {
	req := Request{
		Model:  getenv(EnvModel),
		Prompt: getenv(EnvPrompt),
		System: getenv(EnvSystem),
	}
	if req.Model == "" {
		return Request{}, fmt.Errorf("%s is not set", EnvModel)
	}
	if raw := getenv(EnvParams); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Params); err != nil {
			return Request{}, fmt.Errorf("invalid %s: %w", EnvParams, err)
		}
	}
	return req, nil
}

// Config names the inference command. Args may contain the placeholders
// {model}, {max_tokens}, {temperature} and {top_p}.
type Config struct {
	Command string
	Args    []string
	Timeout time.Duration
}

type Result struct {
	ExitCode int
	Output   string
	Stderr   string
}

// Run executes the inference command for req. A non-zero exit is reported in
// the Result, not as an error; errors mean the command could not run at all.
func Run(ctx context.Context, logger *slog.Logger, cfg Config, req Request) (Result, error) {
	if cfg.Command == "" {
		return Result{}, errors.New("command is required")
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, cfg.Command, expandArgs(cfg.Args, req)...)
	cmd.Env = append(os.Environ(),
		EnvTemperature+"="+formatFloat(req.Params.Temperature),
		EnvMaxTokens+"="+strconv.Itoa(req.Params.MaxTokens),
		EnvTopP+"="+formatFloat(req.Params.TopP),
	)
	cmd.Stdin = strings.NewReader(stdinFor(req))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{Output: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case ctx.Err() != nil:
		return res, fmt.Errorf("inference command: %w", ctx.Err())
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		logger.Error("inference command failed", "model", req.Model, "exit_code", res.ExitCode, "stderr", strings.TrimSpace(res.Stderr))
		return res, nil
	case err != nil:
		return res, fmt.Errorf("run inference command: %w", err)
	}

	logger.Info("inference command finished",
		"model", req.Model,
		"duration_ms", time.Since(start).Milliseconds(),
		"output_bytes", len(res.Output),
	)
	return res, nil
}

func stdinFor(req Request) string {
	if req.System == "" {
		return req.Prompt
	}
	return req.System + "\n\n" + req.Prompt
}

func expandArgs(args []string, req Request) []string {
	r := strings.NewReplacer(
		"{model}", req.Model,
		"{max_tokens}", strconv.Itoa(req.Params.MaxTokens),
		"{temperature}", formatFloat(req.Params.Temperature),
		"{top_p}", formatFloat(req.Params.TopP),
	)
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = r.Replace(a)
	}
	return out
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
