// internal/container/api.go

package container

import (
	"context"
	"errors"
	"fmt"
	"net"

	apperr "sshOrchestrator/internal/error"
	"sshOrchestrator/internal/ssh"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// DockerAPI to fragment klienta Docker używany przy sprzątaniu
type DockerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	Close() error
}

// Opener otwiera klienta Docker na czas jednego sprzątania
type Opener func() (DockerAPI, error)

// SSHDockerOpener łączy się z gniazdem Dockera na maszynie przez jej połączenie SSH
func SSHDockerOpener(conn *ssh.Connection, socket string) Opener {
	return func() (DockerAPI, error) {
		sshClient := conn.Client()
		if sshClient == nil {
			return nil, apperr.New(apperr.NotConnectedError,
				fmt.Sprintf("connection to %s not established", conn.Name()), nil)
		}

		cli, err := client.NewClientWithOpts(
			client.WithHost("unix://"+socket),
			client.WithDialContext(func(ctx context.Context, network, addr string) (net.Conn, error) {
				return sshClient.Dial("unix", socket)
			}),
			client.WithAPIVersionNegotiation(),
		)
		if err != nil {
			return nil, err
		}
		return cli, nil
	}
}

// APICleaner sprząta kontenery przez API Dockera
type APICleaner struct {
	open Opener
}

func NewAPICleaner(open Opener) *APICleaner {
	return &APICleaner{open: open}
}

func (c *APICleaner) Cleanup(ctx context.Context) (*Report, error) {
	report := &Report{}

	api, err := c.open()
	if err != nil {
		return report, fmt.Errorf("failed to create docker client: %w", err)
	}
	defer api.Close()

	var errs []error

	running, err := api.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return report, fmt.Errorf("failed to list running containers: %w", err)
	}
	for _, ctr := range running {
		if err := api.ContainerStop(ctx, ctr.ID, container.StopOptions{}); err != nil && !cerrdefs.IsNotFound(err) {
			errs = append(errs, fmt.Errorf("failed to stop container %s: %w", shortID(ctr.ID), err))
			continue
		}
		report.Stopped = append(report.Stopped, ctr.ID)
	}

	all, err := api.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to list containers: %w", err))
		return report, errors.Join(errs...)
	}
	for _, ctr := range all {
		if err := api.ContainerRemove(ctx, ctr.ID, container.RemoveOptions{}); err != nil && !cerrdefs.IsNotFound(err) {
			errs = append(errs, fmt.Errorf("failed to remove container %s: %w", shortID(ctr.ID), err))
			continue
		}
		report.Removed = append(report.Removed, ctr.ID)
	}

	return report, errors.Join(errs...)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
