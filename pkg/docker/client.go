package docker

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/vishvananda/netlink"
)

type Client struct {
	cli    *client.Client
	labels map[string]string
}

func NewClient(labels map[string]string) (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &Client{
		cli:    cli,
		labels: labels,
	}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// DiscoverDevices lists running containers matching the configured labels
// and resolves each one's host-side veth interface. Containers without a
// resolvable device are skipped.
func (c *Client) DiscoverDevices(ctx context.Context) ([]Device, error) {
	filterArgs := filters.NewArgs()
	for key, value := range c.labels {
		filterArgs.Add("label", fmt.Sprintf("%s=%s", key, value))
	}
	filterArgs.Add("status", "running")

	containers, err := c.cli.ContainerList(ctx, container.ListOptions{
		Filters: filterArgs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	devices := make([]Device, 0, len(containers))
	now := time.Now()

	for _, ctr := range containers {
		inspect, err := c.cli.ContainerInspect(ctx, ctr.ID)
		if err != nil {
			continue
		}
		if inspect.State == nil || inspect.State.Pid == 0 {
			continue
		}

		iface, err := hostVethForPid(inspect.State.Pid)
		if err != nil {
			continue
		}

		name := ""
		if len(ctr.Names) > 0 {
			name = strings.TrimPrefix(ctr.Names[0], "/")
		}

		devices = append(devices, Device{
			Iface:         iface,
			ContainerID:   ctr.ID,
			ContainerName: name,
			LastUpdated:   now,
		})
	}

	return devices, nil
}

// hostVethForPid resolves the host-side peer of a container's eth0: the
// container's iflink is the peer's ifindex in the host namespace.
func hostVethForPid(pid int) (string, error) {
	path := fmt.Sprintf("/proc/%d/root/sys/class/net/eth0/iflink", pid)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	peerIndex, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return "", fmt.Errorf("bad iflink for pid %d: %w", pid, err)
	}

	link, err := netlink.LinkByIndex(peerIndex)
	if err != nil {
		return "", fmt.Errorf("failed to resolve ifindex %d: %w", peerIndex, err)
	}
	return link.Attrs().Name, nil
}
