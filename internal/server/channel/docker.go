package channel

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// DockerChannel runs commands in throwaway containers on the local
// daemon. The env handle names the image. Used for local environments
// and development setups without SSH reachability.
type DockerChannel struct {
	cli *client.Client
}

func NewDockerChannel() (*DockerChannel, error) {
	cli, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, err
	}
	return &DockerChannel{cli: cli}, nil
}

func (d *DockerChannel) EnsureSession(ctx context.Context, envHandle string) error {
	_, err := d.cli.Ping(ctx)
	return err
}

func (d *DockerChannel) RunCommand(ctx context.Context, envHandle, command string, onOutput func(chunk []byte)) (int, error) {
	resp, err := d.cli.ContainerCreate(
		ctx,
		&container.Config{
			Image: envHandle,
			Cmd:   []string{"sh", "-c", command},
		},
		nil, nil, nil, "",
	)
	if err != nil {
		return -1, err
	}
	containerID := resp.ID

	defer func() {
		removeCtx := context.WithoutCancel(ctx)
		d.cli.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true})
	}()

	if err := d.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return -1, fmt.Errorf("start container: %w", err)
	}

	exitCode := -1
	statusCh, errCh := d.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return -1, err
		}
	case status := <-statusCh:
		exitCode = int(status.StatusCode)
	case <-ctx.Done():
		return -1, ctx.Err()
	}

	out, err := d.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return exitCode, fmt.Errorf("container logs: %w", err)
	}
	defer out.Close()

	w := outputWriter{fn: onOutput}
	if _, err := stdcopy.StdCopy(w, w, out); err != nil {
		return exitCode, fmt.Errorf("copy container logs: %w", err)
	}

	return exitCode, nil
}
