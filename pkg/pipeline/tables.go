package pipeline

import (
	"sync"
	"sync/atomic"
)

// ConnState is the tracked lifecycle state of a TCP flow.
type ConnState uint32

const (
	StateNew         ConnState = 1
	StateEstablished ConnState = 2
	StateClosing     ConnState = 3
	StateReset       ConnState = 4
)

func (s ConnState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateEstablished:
		return "established"
	case StateClosing:
		return "closing"
	case StateReset:
		return "reset"
	default:
		return "unknown"
	}
}

// TrafficCounters is the per-port and per-device record. LastSeen is the
// global packet counter at update time, a logical clock rather than
// wall-clock time.
type TrafficCounters struct {
	Packets  uint64
	Bytes    uint64
	LastSeen uint64
}

// DeviceConnStats is the per-device-connection record.
type DeviceConnStats struct {
	DeviceID     uint32
	SrcPort      uint16
	DstPort      uint16
	Direction    Direction
	Protocol     uint8
	Timestamp    uint64
	TotalPackets uint64
	TotalBytes   uint64
}

// Table is a fixed-capacity associative table. Writes to existing keys
// always succeed; inserting a new key past capacity is silently dropped
// (no eviction). Safe for concurrent use.
type Table[K comparable, V any] struct {
	mu  sync.RWMutex
	m   map[K]V
	cap int
}

func NewTable[K comparable, V any](capacity int) *Table[K, V] {
	return &Table[K, V]{
		m:   make(map[K]V),
		cap: capacity,
	}
}

func (t *Table[K, V]) Get(key K) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.m[key]
	return v, ok
}

// Put upserts a value. A new key is dropped if the table is full.
func (t *Table[K, V]) Put(key K, val V) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.m[key]; !exists && len(t.m) >= t.cap {
		return
	}
	t.m[key] = val
}

// Update applies fn to the current value under the write lock. fn receives
// the zero value and ok=false when the key is absent. The insert is dropped
// at capacity, same as Put.
func (t *Table[K, V]) Update(key K, fn func(cur V, ok bool) V) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.m[key]
	if !ok && len(t.m) >= t.cap {
		return
	}
	t.m[key] = fn(cur, ok)
}

func (t *Table[K, V]) Delete(key K) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.m, key)
}

func (t *Table[K, V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}

// Snapshot copies the table for the reporting plane. Field-level values are
// consistent but the copy is not a point-in-time view relative to
// concurrent pipeline updates.
func (t *Table[K, V]) Snapshot() map[K]V {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[K]V, len(t.m))
	for k, v := range t.m {
		out[k] = v
	}
	return out
}

// TotalStats holds the two global counters incremented on every classifier
// packet. Atomic fetch-and-add keeps the values approximate but never
// corrupted under concurrent updates.
type TotalStats struct {
	packets atomic.Uint64
	bytes   atomic.Uint64
}

// Record counts one packet of n bytes and returns the new packet total,
// which callers use as the last_seen logical clock.
func (t *TotalStats) Record(n uint64) uint64 {
	t.bytes.Add(n)
	return t.packets.Add(1)
}

func (t *TotalStats) Packets() uint64 { return t.packets.Load() }
func (t *TotalStats) Bytes() uint64   { return t.bytes.Load() }

// TableSizes is the fixed capacity of each shared table, set at creation.
type TableSizes struct {
	IPStats           int `yaml:"ip_stats"`
	Connections       int `yaml:"connections"`
	Ports             int `yaml:"ports"`
	Devices           int `yaml:"devices"`
	DeviceStats       int `yaml:"device_stats"`
	DeviceConnections int `yaml:"device_connections"`
}

// DefaultTableSizes mirrors the map capacities of the kernel programs this
// pipeline was lifted from.
func DefaultTableSizes() TableSizes {
	return TableSizes{
		IPStats:           1024,
		Connections:       8192,
		Ports:             65536,
		Devices:           64,
		DeviceStats:       1024,
		DeviceConnections: 1024,
	}
}

// Tables is the full set of shared tables read by the reporting plane.
type Tables struct {
	// IPStats maps a source address to its cumulative byte count.
	IPStats *Table[uint32, uint64]

	// ConnTrack maps a connection key to its tracked state. ConnStats maps
	// the same key space to cumulative bytes.
	ConnTrack *Table[uint64, ConnState]
	ConnStats *Table[uint64, uint64]

	// PortStats maps a TCP/UDP port (either side) to its counters.
	PortStats *Table[uint16, TrafficCounters]

	// DeviceMap and DeviceContext back the device registry: name to id, and
	// id to monitoring context. Absence from DeviceContext means "not
	// monitored".
	DeviceMap     *Table[string, uint32]
	DeviceContext *Table[uint32, DeviceContext]

	// DeviceStats is keyed by id*2+direction. DeviceConnStats is keyed by
	// the combining hash of (id, ports, direction, protocol).
	DeviceStats     *Table[uint32, TrafficCounters]
	DeviceConnStats *Table[uint32, DeviceConnStats]

	Totals TotalStats
}

func NewTables(sizes TableSizes) *Tables {
	return &Tables{
		IPStats:         NewTable[uint32, uint64](sizes.IPStats),
		ConnTrack:       NewTable[uint64, ConnState](sizes.Connections),
		ConnStats:       NewTable[uint64, uint64](sizes.Connections),
		PortStats:       NewTable[uint16, TrafficCounters](sizes.Ports),
		DeviceMap:       NewTable[string, uint32](sizes.Devices),
		DeviceContext:   NewTable[uint32, DeviceContext](sizes.Devices),
		DeviceStats:     NewTable[uint32, TrafficCounters](sizes.DeviceStats),
		DeviceConnStats: NewTable[uint32, DeviceConnStats](sizes.DeviceConnections),
	}
}
