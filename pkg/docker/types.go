package docker

import "time"

// Device is a container's host-side network device, discovered so the
// pipelines can produce device-scoped statistics for it.
type Device struct {
	Iface         string
	ContainerID   string
	ContainerName string
	LastUpdated   time.Time
}
