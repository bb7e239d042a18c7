package pipeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClassifier() (*Classifier, *DeviceRegistry, *Tables) {
	tables := NewTables(DefaultTableSizes())
	reg := NewDeviceRegistry(tables)
	return NewClassifier(tables, reg), reg, tables
}

func TestClassifierGlobalsAndPorts(t *testing.T) {
	cls, _, tables := newTestClassifier()

	src := ipv4Addr(10, 0, 0, 1)
	dst := ipv4Addr(10, 0, 0, 2)

	for _, wireLen := range []uint64{60, 1500, 40} {
		cls.Process(tcpFrame(src, dst, 1234, 80, TCPFlagACK), wireLen, 0, DirIngress)
	}

	assert.Equal(t, uint64(3), tables.Totals.Packets())
	assert.Equal(t, uint64(1600), tables.Totals.Bytes())

	for _, port := range []uint16{1234, 80} {
		stats, ok := tables.PortStats.Get(port)
		require.True(t, ok, "port %d", port)
		assert.Equal(t, uint64(3), stats.Packets)
		assert.Equal(t, uint64(1600), stats.Bytes)
		assert.Equal(t, uint64(3), stats.LastSeen, "last_seen is the packet clock")
	}
}

func TestClassifierNonTransportStopsAfterGlobals(t *testing.T) {
	cls, _, tables := newTestClassifier()

	frame := ipv4Frame(ipv4Addr(10, 0, 0, 1), ipv4Addr(10, 0, 0, 2), 1, 8) // ICMP
	cls.Process(frame, 98, 0, DirIngress)

	assert.Equal(t, uint64(1), tables.Totals.Packets())
	assert.Equal(t, uint64(98), tables.Totals.Bytes())
	assert.Equal(t, 0, tables.PortStats.Len())
}

func TestClassifierNonIPv4NoGlobals(t *testing.T) {
	cls, _, tables := newTestClassifier()

	cls.Process(ethFrame(0x0806, 28), 42, 0, DirIngress) // ARP

	assert.Equal(t, uint64(0), tables.Totals.Packets())
}

func TestClassifierUnmonitoredDeviceSkipsDeviceStats(t *testing.T) {
	cls, _, tables := newTestClassifier()

	frame := tcpFrame(ipv4Addr(10, 0, 0, 1), ipv4Addr(10, 0, 0, 2), 1234, 80, TCPFlagACK)
	cls.Process(frame, 60, 9, DirIngress)

	assert.Equal(t, 0, tables.DeviceStats.Len())
	assert.Equal(t, 0, tables.DeviceConnStats.Len())
	// Port and global stats still update without a device context.
	assert.Equal(t, 2, tables.PortStats.Len())
}

func TestClassifierVethDirectionInversion(t *testing.T) {
	cls, reg, tables := newTestClassifier()

	// Ids are allocated sequentially from 1; burn six so veth0 gets id 7.
	for i := 0; i < 6; i++ {
		reg.Register(fmt.Sprintf("eth%d", i), DirIngress)
	}
	id := reg.Register("veth0", DirIngress)
	require.Equal(t, uint32(7), id)

	frame := tcpFrame(ipv4Addr(10, 0, 0, 1), ipv4Addr(10, 0, 0, 2), 1234, 80, TCPFlagACK)
	cls.Process(frame, 60, id, DirIngress)

	// Ingress at the hook lands in the egress slot for a veth device.
	_, ok := tables.DeviceStats.Get(14)
	assert.False(t, ok)

	stats, ok := tables.DeviceStats.Get(15)
	require.True(t, ok)
	assert.Equal(t, uint64(1), stats.Packets)
	assert.Equal(t, uint64(60), stats.Bytes)
}

func TestClassifierPhysicalDirectionUnchanged(t *testing.T) {
	cls, reg, tables := newTestClassifier()

	id := reg.Register("eth0", DirIngress)
	require.Equal(t, uint32(1), id)

	frame := tcpFrame(ipv4Addr(10, 0, 0, 1), ipv4Addr(10, 0, 0, 2), 1234, 80, TCPFlagACK)
	cls.Process(frame, 60, id, DirIngress)
	cls.Process(frame, 60, id, DirEgress)

	in, ok := tables.DeviceStats.Get(DeviceStatsKey(id, DirIngress))
	require.True(t, ok)
	assert.Equal(t, uint64(1), in.Packets)

	out, ok := tables.DeviceStats.Get(DeviceStatsKey(id, DirEgress))
	require.True(t, ok)
	assert.Equal(t, uint64(1), out.Packets)
}

func TestClassifierDeviceConnectionRecord(t *testing.T) {
	cls, reg, tables := newTestClassifier()

	id := reg.Register("eth0", DirIngress)

	frame := udpFrame(ipv4Addr(10, 0, 0, 1), ipv4Addr(10, 0, 0, 2), 5000, 53)
	cls.Process(frame, 80, id, DirEgress)
	cls.Process(frame, 120, id, DirEgress)

	key := DeviceConnKey(id, 5000, 53, DirEgress, ProtoUDP)
	rec, ok := tables.DeviceConnStats.Get(key)
	require.True(t, ok)
	assert.Equal(t, id, rec.DeviceID)
	assert.Equal(t, uint16(5000), rec.SrcPort)
	assert.Equal(t, uint16(53), rec.DstPort)
	assert.Equal(t, DirEgress, rec.Direction)
	assert.Equal(t, uint8(ProtoUDP), rec.Protocol)
	assert.Equal(t, uint64(2), rec.TotalPackets)
	assert.Equal(t, uint64(200), rec.TotalBytes)
	assert.Equal(t, uint64(2), rec.Timestamp)
}

func TestClassifierTruncatedTransportStopsAfterGlobals(t *testing.T) {
	cls, reg, tables := newTestClassifier()
	id := reg.Register("eth0", DirIngress)

	full := tcpFrame(ipv4Addr(10, 0, 0, 1), ipv4Addr(10, 0, 0, 2), 1234, 80, TCPFlagACK)
	cls.Process(full[:EthHeaderLen+IPv4HeaderLen+8], 60, id, DirIngress)

	assert.Equal(t, uint64(1), tables.Totals.Packets())
	assert.Equal(t, 0, tables.PortStats.Len())
	assert.Equal(t, 0, tables.DeviceStats.Len())
}
