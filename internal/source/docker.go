package source

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types/container"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/galeone/bacup/internal/dump"
)

// ContainerExec is the ContainerExec source variant: it runs a configured
// command inside a running container and captures its stdout to a local
// dump file. Grounded on galeone/bacup's services/docker.rs, re-targeted
// from shelling out to the `docker` CLI onto github.com/docker/docker/client
// — the teacher's own dependency, already used for volume discovery in
// agent/internal/docker/discovery.go.
type ContainerExec struct {
	name          string
	containerName string
	command       []string
	docker        *dockerclient.Client
}

// NewContainerExec pings the Docker daemon and confirms the target
// container exists (it does not check that it is running) before
// returning — construction is fatal for the
// referencing backup if Docker is unreachable or the container is absent,
// per spec.md §4.4.
func NewContainerExec(ctx context.Context, name, containerName, command string) (*ContainerExec, error) {
	cli, err := dockerclient.NewClientWithOpts(
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("source %q: unable to create docker client: %w", name, err)
	}

	if _, err := cli.Ping(ctx); err != nil {
		return nil, fmt.Errorf("source %q: docker daemon unreachable: %w", name, err)
	}

	if _, err := cli.ContainerInspect(ctx, containerName); err != nil {
		return nil, fmt.Errorf("source %q: container %q not found: %w", name, containerName, err)
	}

	return &ContainerExec{
		name:          name,
		containerName: containerName,
		command:       strings.Fields(command),
		docker:        cli,
	}, nil
}

func (c *ContainerExec) Name() string { return c.name }

// dumpPath is "<source-name>.dump" in the working directory, per spec.md §4.4.
func (c *ContainerExec) dumpPath() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, fmt.Sprintf("%s.dump", c.name)), nil
}

// Dump execs the configured command inside the container and writes its
// stdout to the dump file. stderr is kept apart and only reported in the
// error when the command exits non-zero.
func (c *ContainerExec) Dump(ctx context.Context) (*dump.Handle, error) {
	dest, err := c.dumpPath()
	if err != nil {
		return nil, fmt.Errorf("%w: source %q: %v", ErrDump, c.name, err)
	}

	execCfg := container.ExecOptions{
		Cmd:          c.command,
		AttachStdout: true,
		AttachStderr: true,
	}
	execID, err := c.docker.ContainerExecCreate(ctx, c.containerName, execCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: source %q: exec create: %v", ErrDump, c.name, err)
	}

	attach, err := c.docker.ContainerExecAttach(ctx, execID.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: source %q: exec attach: %v", ErrDump, c.name, err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		return nil, fmt.Errorf("%w: source %q: reading exec output: %v", ErrDump, c.name, err)
	}

	inspect, err := c.docker.ContainerExecInspect(ctx, execID.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: source %q: exec inspect: %v", ErrDump, c.name, err)
	}
	if inspect.ExitCode != 0 {
		return nil, fmt.Errorf("%w: source %q: command exited %d: %s",
			ErrDump, c.name, inspect.ExitCode, stderr.String())
	}

	if err := os.WriteFile(dest, stdout.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("%w: source %q: writing dump file: %v", ErrDump, c.name, err)
	}

	return dump.New(dest), nil
}

// Enumerate returns the dump artifact's path if it exists, else an empty list.
func (c *ContainerExec) Enumerate() ([]string, error) {
	dest, err := c.dumpPath()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dest); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return []string{dest}, nil
}
