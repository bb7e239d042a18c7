package pipeline

// Classifier is the queuing-hook pipeline: global and per-port accounting
// for TCP/UDP traffic, plus device-scoped statistics for monitored devices.
// It is attached per device and per direction; like the ingress pipeline it
// only ever observes.
type Classifier struct {
	tables  *Tables
	devices *DeviceRegistry
}

func NewClassifier(t *Tables, devices *DeviceRegistry) *Classifier {
	return &Classifier{tables: t, devices: devices}
}

// Process accounts one frame seen on deviceID at the given hook direction.
// wireLen is the packet's on-wire length, which byte counters use even when
// capture snapped the frame.
func (p *Classifier) Process(frame []byte, wireLen uint64, deviceID uint32, hook Direction) Verdict {
	eth, ok := DecodeEthernet(frame)
	if !ok || eth.EtherType != EtherTypeIPv4 {
		return VerdictPass
	}

	// Globals are committed before any per-axis breakdown; the running
	// packet total doubles as the last_seen clock below.
	pktLen := wireLen
	clock := p.tables.Totals.Record(pktLen)

	ip, ok := DecodeIPv4(frame, EthHeaderLen)
	if !ok {
		return VerdictPass
	}
	if ip.Protocol != ProtoTCP && ip.Protocol != ProtoUDP {
		return VerdictPass
	}

	// Port fields sit at the same offsets for TCP and UDP, so one decode
	// covers both transports.
	tp, ok := DecodeTCP(frame, EthHeaderLen+IPv4HeaderLen)
	if !ok {
		return VerdictPass
	}

	p.addPortCounters(tp.SrcPort, pktLen, clock)
	p.addPortCounters(tp.DstPort, pktLen, clock)

	if !p.devices.Monitored(deviceID) {
		return VerdictPass
	}

	dir := p.devices.EffectiveDirection(deviceID, hook)
	p.addDeviceCounters(DeviceStatsKey(deviceID, dir), pktLen, clock)
	p.addDeviceConn(deviceID, tp.SrcPort, tp.DstPort, dir, ip.Protocol, pktLen, clock)

	return VerdictPass
}

func (p *Classifier) addPortCounters(port uint16, n, clock uint64) {
	p.tables.PortStats.Update(port, func(cur TrafficCounters, _ bool) TrafficCounters {
		return TrafficCounters{
			Packets:  cur.Packets + 1,
			Bytes:    cur.Bytes + n,
			LastSeen: clock,
		}
	})
}

func (p *Classifier) addDeviceCounters(key uint32, n, clock uint64) {
	p.tables.DeviceStats.Update(key, func(cur TrafficCounters, _ bool) TrafficCounters {
		return TrafficCounters{
			Packets:  cur.Packets + 1,
			Bytes:    cur.Bytes + n,
			LastSeen: clock,
		}
	})
}

func (p *Classifier) addDeviceConn(id uint32, srcPort, dstPort uint16, dir Direction, proto uint8, n, clock uint64) {
	key := DeviceConnKey(id, srcPort, dstPort, dir, proto)
	p.tables.DeviceConnStats.Update(key, func(cur DeviceConnStats, _ bool) DeviceConnStats {
		// Direction and protocol take the freshly computed values even on a
		// key collision.
		return DeviceConnStats{
			DeviceID:     id,
			SrcPort:      srcPort,
			DstPort:      dstPort,
			Direction:    dir,
			Protocol:     proto,
			Timestamp:    clock,
			TotalPackets: cur.TotalPackets + 1,
			TotalBytes:   cur.TotalBytes + n,
		}
	})
}
