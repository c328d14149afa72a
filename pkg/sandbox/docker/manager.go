package docker

import (
	"bytes"
	"context"
	"fmt"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/nstogner/drydock/pkg/sandbox"
)

const DefaultImage = "alpine:3.20"

// DockerManager implements sandbox.Manager using one Docker container per
// session. The container idles; each command is a docker exec inside it,
// with the session working directory bind-mounted read-only at /workspace.
type DockerManager struct {
	cli   *client.Client
	image string
}

// Ensure DockerManager implements sandbox.Manager
var _ sandbox.Manager = (*DockerManager)(nil)

// New creates a new DockerManager running containers from image (falling
// back to DefaultImage when empty).
func New(image string) (*DockerManager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if image == "" {
		image = DefaultImage
	}

	return &DockerManager{
		cli:   cli,
		image: image,
	}, nil
}

func (m *DockerManager) Close() error {
	return m.cli.Close()
}

func (m *DockerManager) containerName(sessionID string) string {
	return fmt.Sprintf("drydock-session-%s", sessionID)
}

func (m *DockerManager) RunCommand(ctx context.Context, sessionID, workDir, command string) (*sandbox.Result, error) {
	name, err := m.ensureRunning(ctx, sessionID, workDir)
	if err != nil {
		return nil, err
	}

	execResp, err := m.cli.ContainerExecCreate(ctx, name, types.ExecConfig{
		Cmd:          []string{"sh", "-c", command},
		WorkingDir:   "/workspace",
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create exec: %w", err)
	}

	attach, err := m.cli.ContainerExecAttach(ctx, execResp.ID, types.ExecStartCheck{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach exec: %w", err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		return nil, fmt.Errorf("failed to read exec output: %w", err)
	}

	inspect, err := m.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect exec: %w", err)
	}

	return &sandbox.Result{
		ExitCode: inspect.ExitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

func (m *DockerManager) Stop(ctx context.Context, sessionID string) error {
	return m.cli.ContainerRemove(ctx, m.containerName(sessionID), types.ContainerRemoveOptions{
		Force: true,
	})
}

// ensureRunning checks if the session's container is running and starts or
// creates it if not, returning the container name.
func (m *DockerManager) ensureRunning(ctx context.Context, sessionID, workDir string) (string, error) {
	name := m.containerName(sessionID)

	c, err := m.cli.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return m.createAndStart(ctx, sessionID, workDir)
		}
		return "", fmt.Errorf("failed to inspect container: %w", err)
	}

	if c.State.Running {
		return name, nil
	}

	if err := m.cli.ContainerStart(ctx, name, types.ContainerStartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start container: %w", err)
	}
	return name, nil
}

func (m *DockerManager) createAndStart(ctx context.Context, sessionID, workDir string) (string, error) {
	// Ensure image exists locally. Pulling is left to the operator so a
	// first command doesn't block on a large download.
	if _, _, err := m.cli.ImageInspectWithRaw(ctx, m.image); err != nil {
		return "", fmt.Errorf("sandbox image '%s' not found, pull it first: %w", m.image, err)
	}

	cfg := &container.Config{
		Image:      m.image,
		Cmd:        []string{"sleep", "infinity"},
		WorkingDir: "/workspace",
	}

	hostCfg := &container.HostConfig{}
	if workDir != "" {
		hostCfg.Binds = []string{workDir + ":/workspace:ro"}
	}

	name := m.containerName(sessionID)
	resp, err := m.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	if err := m.cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start container: %w", err)
	}

	return name, nil
}
