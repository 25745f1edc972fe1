// Package dockeragent runs the code-generation agent inside a disposable
// container per task, binding the worker's workspace in as /workspace. It
// implements agent.Agent so the Worker Pool (spec.md §4.2) can swap between
// a local subprocess agent and a containerized one without caring which.
package dockeragent

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	specs "github.com/opencontainers/image-spec/specs-go/v1"

	"ralph/internal/agent"
)

// APIClient subsets the official Docker SDK for mockability, mirroring the
// teacher's docker.APIClient.
type APIClient interface {
	Ping(ctx context.Context) (types.Ping, error)
	ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error)
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *specs.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerExecCreate(ctx context.Context, container string, config container.ExecOptions) (types.IDResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, config container.ExecStartOptions) (types.HijackedResponse, error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	Close() error
}

// Config controls how the per-task container is provisioned.
type Config struct {
	Image       string
	AgentBinary string   // path to the agent entrypoint inside the image
	ExtraBinds  []string // additional host:container bind mounts (e.g. docker.sock for DinD)
	Env         []string // PROVIDER=..., MODEL=..., secrets — exported into the container
}

// Agent runs one task per container: create, exec the agent binary with the
// prompt on stdin, collect output, tear the container down. Containers are
// never reused across tasks — isolation matches the Workspace Manager's
// one-branch-per-workspace invariant (spec.md §3).
type Agent struct {
	api APIClient
	cfg Config
}

// NewAgent opens a Docker client using the ambient docker context (DOCKER_HOST,
// TLS env vars) the way the teacher's docker.NewClient does.
func NewAgent(cfg Config) (*Agent, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Agent{api: cli, cfg: cfg}, nil
}

// NewAgentWithClient injects an APIClient directly, for tests.
func NewAgentWithClient(api APIClient, cfg Config) *Agent {
	return &Agent{api: api, cfg: cfg}
}

func (a *Agent) CheckDaemon(ctx context.Context) error {
	if _, err := a.api.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon is not reachable: %w", err)
	}
	return nil
}

func (a *Agent) ensureImage(ctx context.Context) error {
	images, err := a.api.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return fmt.Errorf("list images: %w", err)
	}
	ref := a.cfg.Image
	normalized := ref
	if !strings.Contains(ref, ":") {
		normalized = ref + ":latest"
	}
	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == ref || tag == normalized {
				return nil
			}
		}
	}

	reader, err := a.api.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	defer reader.Close()
	_, _ = io.Copy(io.Discard, reader)
	return nil
}

// ExecuteTask provisions a container bound to workspacePath, execs the
// configured agent binary with the prompt on stdin, and tears the
// container down unconditionally.
func (a *Agent) ExecuteTask(ctx context.Context, prompt, workspacePath string) (agent.Result, error) {
	start := time.Now()

	if err := a.ensureImage(ctx); err != nil {
		return agent.Result{}, err
	}

	binds := append([]string{fmt.Sprintf("%s:/workspace", workspacePath)}, a.cfg.ExtraBinds...)
	resp, err := a.api.ContainerCreate(ctx,
		&container.Config{
			Image:      a.cfg.Image,
			WorkingDir: "/workspace",
			Tty:        false,
			OpenStdin:  true,
			Cmd:        []string{"/bin/sh"},
			Env:        a.cfg.Env,
		},
		&container.HostConfig{Binds: binds},
		nil, nil, "",
	)
	if err != nil {
		return agent.Result{}, fmt.Errorf("create task container: %w", err)
	}
	containerID := resp.ID
	defer a.teardown(context.Background(), containerID)

	if err := a.api.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return agent.Result{}, fmt.Errorf("start task container: %w", err)
	}

	execConfig := container.ExecOptions{
		Cmd:          []string{a.cfg.AgentBinary},
		Env:          a.cfg.Env,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
	}
	execResp, err := a.api.ContainerExecCreate(ctx, containerID, execConfig)
	if err != nil {
		return agent.Result{}, fmt.Errorf("create exec: %w", err)
	}

	attach, err := a.api.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return agent.Result{}, fmt.Errorf("attach exec: %w", err)
	}
	defer attach.Close()

	if _, err := io.WriteString(attach.Conn, prompt); err != nil {
		return agent.Result{}, fmt.Errorf("write prompt to exec stdin: %w", err)
	}
	attach.CloseWrite()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		return agent.Result{}, fmt.Errorf("copy exec output: %w", err)
	}

	result := agent.Result{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		ExitCode:   0,
		Completed:  ctx.Err() == nil,
		DurationMs: time.Since(start).Milliseconds(),
	}
	return result, nil
}

func (a *Agent) teardown(ctx context.Context, containerID string) {
	_ = a.api.ContainerStop(ctx, containerID, container.StopOptions{})
	_ = a.api.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
}

func (a *Agent) Close() error { return a.api.Close() }

var _ agent.Agent = (*Agent)(nil)
