// Package report builds point-in-time summaries of the shared statistics
// tables for the HTTP API, the Prometheus exporter, and the periodic log
// line. Snapshots tolerate concurrent pipeline writes: individual fields
// are consistent, whole records may be mid-update.
package report

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/laik/xnet/pkg/pipeline"
)

type PortEntry struct {
	Port     uint16 `json:"port"`
	Packets  uint64 `json:"packets"`
	Bytes    uint64 `json:"bytes"`
	LastSeen uint64 `json:"last_seen"`
}

type IPEntry struct {
	Addr  string `json:"addr"`
	Bytes uint64 `json:"bytes"`
}

type ConnEntry struct {
	Key   string `json:"key"`
	State string `json:"state"`
	Bytes uint64 `json:"bytes"`
}

type DeviceEntry struct {
	Device    string `json:"device"`
	DeviceID  uint32 `json:"device_id"`
	Direction string `json:"direction"`
	Packets   uint64 `json:"packets"`
	Bytes     uint64 `json:"bytes"`
	LastSeen  uint64 `json:"last_seen"`
}

type DeviceConnEntry struct {
	Device    string `json:"device"`
	SrcPort   uint16 `json:"src_port"`
	DstPort   uint16 `json:"dst_port"`
	Direction string `json:"direction"`
	Protocol  uint8  `json:"protocol"`
	Packets   uint64 `json:"packets"`
	Bytes     uint64 `json:"bytes"`
	LastSeen  uint64 `json:"last_seen"`
}

type Summary struct {
	TotalPackets      uint64            `json:"total_packets"`
	TotalBytes        uint64            `json:"total_bytes"`
	Ports             []PortEntry       `json:"ports"`
	IPs               []IPEntry         `json:"ips"`
	Connections       []ConnEntry       `json:"connections"`
	Devices           []DeviceEntry     `json:"devices"`
	DeviceConnections []DeviceConnEntry `json:"device_connections"`
}

// Collect snapshots every table into a Summary, each axis sorted by bytes
// descending.
func Collect(tables *pipeline.Tables, devices *pipeline.DeviceRegistry) Summary {
	s := Summary{
		TotalPackets: tables.Totals.Packets(),
		TotalBytes:   tables.Totals.Bytes(),
	}

	for port, stats := range tables.PortStats.Snapshot() {
		s.Ports = append(s.Ports, PortEntry{
			Port:     port,
			Packets:  stats.Packets,
			Bytes:    stats.Bytes,
			LastSeen: stats.LastSeen,
		})
	}
	sort.Slice(s.Ports, func(i, j int) bool { return s.Ports[i].Bytes > s.Ports[j].Bytes })

	for addr, bytes := range tables.IPStats.Snapshot() {
		s.IPs = append(s.IPs, IPEntry{Addr: pipeline.IPString(addr), Bytes: bytes})
	}
	sort.Slice(s.IPs, func(i, j int) bool { return s.IPs[i].Bytes > s.IPs[j].Bytes })

	states := tables.ConnTrack.Snapshot()
	for key, bytes := range tables.ConnStats.Snapshot() {
		s.Connections = append(s.Connections, ConnEntry{
			Key:   fmt.Sprintf("%016x", key),
			State: states[key].String(),
			Bytes: bytes,
		})
	}
	sort.Slice(s.Connections, func(i, j int) bool { return s.Connections[i].Bytes > s.Connections[j].Bytes })

	for key, stats := range tables.DeviceStats.Snapshot() {
		id := key / 2
		name, _ := devices.NameByID(id)
		s.Devices = append(s.Devices, DeviceEntry{
			Device:    name,
			DeviceID:  id,
			Direction: pipeline.Direction(key & 1).String(),
			Packets:   stats.Packets,
			Bytes:     stats.Bytes,
			LastSeen:  stats.LastSeen,
		})
	}
	sort.Slice(s.Devices, func(i, j int) bool { return s.Devices[i].Bytes > s.Devices[j].Bytes })

	for _, rec := range tables.DeviceConnStats.Snapshot() {
		name, _ := devices.NameByID(rec.DeviceID)
		s.DeviceConnections = append(s.DeviceConnections, DeviceConnEntry{
			Device:    name,
			SrcPort:   rec.SrcPort,
			DstPort:   rec.DstPort,
			Direction: rec.Direction.String(),
			Protocol:  rec.Protocol,
			Packets:   rec.TotalPackets,
			Bytes:     rec.TotalBytes,
			LastSeen:  rec.Timestamp,
		})
	}
	sort.Slice(s.DeviceConnections, func(i, j int) bool {
		return s.DeviceConnections[i].Bytes > s.DeviceConnections[j].Bytes
	})

	return s
}

// Log writes a compact periodic summary with the top n ports and IPs.
func (s Summary) Log(n int) {
	slog.Info("Traffic summary",
		"total_packets", s.TotalPackets,
		"total_bytes", s.TotalBytes,
		"active_ports", len(s.Ports),
		"tracked_connections", len(s.Connections),
	)
	for i, p := range s.Ports {
		if i >= n {
			break
		}
		slog.Info("Top port", "port", p.Port, "packets", p.Packets, "bytes", p.Bytes, "last_seen", p.LastSeen)
	}
	for i, ip := range s.IPs {
		if i >= n {
			break
		}
		slog.Info("Top source", "addr", ip.Addr, "bytes", ip.Bytes)
	}
}
