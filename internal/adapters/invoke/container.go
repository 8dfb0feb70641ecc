package invoke

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"

	"github.com/manthysbr/aule-router/internal/core/domain"
	"github.com/manthysbr/aule-router/pkg/worker"
)

const (
	containerNamePrefix = "aule-infer-"
	managedLabel        = "aule.managed"
	gib                 = 1 << 30
)

// runSpec is one single-shot inference container.
type runSpec struct {
	Name     string
	Image    string
	Env      []string
	Memory   int64 // bytes, 0 = unlimited
	NanoCPUs int64 // 0 = unlimited
	Labels   map[string]string
}

type runResult struct {
	Stdout   string
	Stderr   string
	ExitCode int64
}

// containerRuntime runs a spec to completion.
type containerRuntime interface {
	Run(ctx context.Context, spec runSpec) (runResult, error)
	// RemoveManaged force-removes every container carrying the managed label.
	RemoveManaged(ctx context.Context) (int, error)
}

// Container runs each invocation in a fresh, network-less container. The
// prompt is passed through the environment and stdout is the completion.
// The image is the model's Endpoint, or the provider default when empty.
type Container struct {
	logger       *slog.Logger
	runtime      containerRuntime
	defaultImage string
}

// NewContainer connects to the Docker daemon from the environment.
func NewContainer(logger *slog.Logger, defaultImage string) (*Container, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Container{
		logger:       logger,
		runtime:      &dockerRuntime{cli: cli},
		defaultImage: defaultImage,
	}, nil
}

func (c *Container) Invoke(ctx context.Context, inv domain.Invocation) (domain.Completion, error) {
	img := inv.Model.Endpoint
	if img == "" {
		img = c.defaultImage
	}
	if img == "" {
		return domain.Completion{}, fmt.Errorf("no container image for model %s", inv.Model.ID)
	}

	spec, err := buildRunSpec(inv, img)
	if err != nil {
		return domain.Completion{}, err
	}

	res, err := c.runtime.Run(ctx, spec)
	if err != nil {
		return domain.Completion{}, err
	}
	if res.Stderr != "" {
		c.logger.Debug("inference container stderr", "model", inv.Model.ID, "stderr", res.Stderr)
	}
	if res.ExitCode != 0 {
		return domain.Completion{}, fmt.Errorf("container for %s exited with code %d: %s",
			inv.Model.ID, res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	return domain.Completion{Text: strings.TrimSpace(res.Stdout)}, nil
}

// Reap removes inference containers left behind by a previous process, e.g.
// after a crash between create and remove.
func (c *Container) Reap(ctx context.Context) (int, error) {
	n, err := c.runtime.RemoveManaged(ctx)
	if err != nil {
		return n, fmt.Errorf("reap inference containers: %w", err)
	}
	if n > 0 {
		c.logger.Info("reaped stale inference containers", "count", n)
	}
	return n, nil
}

func buildRunSpec(inv domain.Invocation, img string) (runSpec, error) {
	params, err := json.Marshal(inv.Params)
	if err != nil {
		return runSpec{}, fmt.Errorf("marshal parameters: %w", err)
	}

	return runSpec{
		Name:  containerNamePrefix + uuid.New().String(),
		Image: img,
		Env: []string{
			worker.EnvModel + "=" + inv.Model.ID,
			worker.EnvPrompt + "=" + inv.Prompt,
			worker.EnvSystem + "=" + inv.System,
			worker.EnvParams + "=" + string(params),
		},
		Memory:   int64(inv.Model.Resources.Memory * gib),
		NanoCPUs: int64(inv.Model.Resources.Compute * 1e9),
		Labels: map[string]string{
			managedLabel: "true",
			"aule.model": inv.Model.ID,
		},
	}, nil
}

type dockerRuntime struct {
	cli *client.Client
}

func (d *dockerRuntime) Run(ctx context.Context, spec runSpec) (runResult, error) {
	cfg := &container.Config{
		Image:  spec.Image,
		Env:    spec.Env,
		Labels: spec.Labels,
	}
	hostCfg := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:   spec.Memory,
			NanoCPUs: spec.NanoCPUs,
		},
		ReadonlyRootfs: true,
		Tmpfs: map[string]string{
			"/tmp": "rw,noexec,nosuid,size=64m",
		},
	}

	resp, err := d.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, spec.Name)
	if client.IsErrNotFound(err) {
		reader, pullErr := d.cli.ImagePull(ctx, spec.Image, image.PullOptions{})
		if pullErr != nil {
			return runResult{}, fmt.Errorf("failed to pull image %s: %w", spec.Image, pullErr)
		}
		_, _ = io.Copy(io.Discard, reader)
		reader.Close()
		resp, err = d.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, spec.Name)
	}
	if err != nil {
		return runResult{}, fmt.Errorf("failed to create container: %w", err)
	}
	defer func() {
		_ = d.cli.ContainerRemove(context.WithoutCancel(ctx), resp.ID, container.RemoveOptions{Force: true})
	}()

	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return runResult{}, fmt.Errorf("failed to start container: %w", err)
	}

	var exitCode int64
	statusCh, errCh := d.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return runResult{}, fmt.Errorf("wait for container: %w", err)
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	}

	logs, err := d.cli.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return runResult{}, fmt.Errorf("read container logs: %w", err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return runResult{}, fmt.Errorf("demux container logs: %w", err)
	}

	return runResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitCode}, nil
}

func (d *dockerRuntime) RemoveManaged(ctx context.Context) (int, error) {
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", managedLabel+"=true")),
	})
	if err != nil {
		return 0, fmt.Errorf("list containers: %w", err)
	}

	removed := 0
	for _, c := range containers {
		err := d.cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true})
		if err != nil && !client.IsErrNotFound(err) {
			return removed, fmt.Errorf("remove container %s: %w", c.ID, err)
		}
		removed++
	}
	return removed, nil
}
