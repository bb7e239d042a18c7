package pipeline

import (
	"strings"
	"sync"
)

// Direction of a packet relative to a device as observed at the hook.
type Direction uint32

const (
	DirIngress Direction = 0
	DirEgress  Direction = 1
)

func (d Direction) String() string {
	if d == DirEgress {
		return "egress"
	}
	return "ingress"
}

// Invert returns the opposite direction.
func (d Direction) Invert() Direction {
	return d ^ 1
}

// VirtualPairPrefix marks devices whose two logical ends present inverted
// ingress/egress semantics relative to a physical interface.
const VirtualPairPrefix = "veth"

// DeviceContext marks a device as monitored. Presence in the context table
// is the gate for device-scoped statistics.
type DeviceContext struct {
	Direction Direction
}

// DeviceRegistry assigns numeric ids to device names and answers the
// direction-inversion question for virtual paired devices. It writes
// through to the shared DeviceMap and DeviceContext tables and keeps an
// id-indexed reverse index so name lookups are O(1) instead of a scan.
type DeviceRegistry struct {
	mu     sync.RWMutex
	byID   map[uint32]string
	nextID uint32

	deviceMap *Table[string, uint32]
	context   *Table[uint32, DeviceContext]
}

func NewDeviceRegistry(t *Tables) *DeviceRegistry {
	return &DeviceRegistry{
		byID:      make(map[uint32]string),
		nextID:    1,
		deviceMap: t.DeviceMap,
		context:   t.DeviceContext,
	}
}

// Register maps a device name to an id, allocating one on first sight, and
// marks the device as monitored. Registration is idempotent per name.
func (r *DeviceRegistry) Register(name string, dir Direction) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.deviceMap.Get(name); ok {
		r.context.Put(id, DeviceContext{Direction: dir})
		return id
	}

	id := r.nextID
	r.nextID++
	r.deviceMap.Put(name, id)
	if _, ok := r.deviceMap.Get(name); !ok {
		// Device table full; the id is not observable, do not index it.
		return 0
	}
	r.byID[id] = name
	r.context.Put(id, DeviceContext{Direction: dir})
	return id
}

// Unregister removes the monitoring context for a device. The name-to-id
// mapping survives so ids stay stable across re-registration.
func (r *DeviceRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.deviceMap.Get(name); ok {
		r.context.Delete(id)
	}
}

// Lookup returns the id for a registered name.
func (r *DeviceRegistry) Lookup(name string) (uint32, bool) {
	return r.deviceMap.Get(name)
}

// NameByID resolves an id back to its device name.
func (r *DeviceRegistry) NameByID(id uint32) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byID[id]
	return name, ok
}

// Monitored reports whether the device has a context entry. Absence is the
// normal default state, not an error.
func (r *DeviceRegistry) Monitored(id uint32) bool {
	_, ok := r.context.Get(id)
	return ok
}

// EffectiveDirection applies the virtual-pair inversion rule: a veth-named
// device reports the opposite of the direction observed at the hook.
func (r *DeviceRegistry) EffectiveDirection(id uint32, hook Direction) Direction {
	name, ok := r.NameByID(id)
	if ok && strings.HasPrefix(name, VirtualPairPrefix) {
		return hook.Invert()
	}
	return hook
}

// DeviceStatsKey folds a device id and direction into the device_stats key:
// even slots are ingress, odd slots egress.
func DeviceStatsKey(id uint32, dir Direction) uint32 {
	return id*2 + uint32(dir)
}

// DeviceConnKey is the combining hash keying device_connection_stats.
// Wrapping adds at shifted positions; collisions are an accepted trade-off.
func DeviceConnKey(id uint32, srcPort, dstPort uint16, dir Direction, proto uint8) uint32 {
	key := id
	key += uint32(srcPort)
	key += uint32(dstPort) << 16
	key += uint32(dir) << 24
	key += uint32(proto) << 28
	return key
}
