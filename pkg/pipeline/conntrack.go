package pipeline

import "log/slog"

// Conntrack applies the TCP handshake/teardown state machine to the shared
// connection tables. One value per key, last writer wins.
type Conntrack struct {
	track *Table[uint64, ConnState]
	stats *Table[uint64, uint64]
}

func NewConntrack(t *Tables) *Conntrack {
	return &Conntrack{track: t.ConnTrack, stats: t.ConnStats}
}

// Observe accounts one TCP packet against its forward connection and, for
// bidirectional transitions, the reverse connection. Byte counters are
// updated unconditionally; state writes follow flag precedence:
//
//	SYN        -> NEW, forward key only
//	SYN+ACK    -> ESTABLISHED, both keys
//	ACK        -> counters only
//	FIN        -> CLOSING, both keys
//	RST        -> RESET, both keys
func (c *Conntrack) Observe(srcIP, dstIP uint32, srcPort, dstPort uint16, flags uint8, pktLen uint64) {
	fwd := ConnKey(srcIP, dstIP, srcPort, dstPort)
	rev := ReverseConnKey(srcIP, dstIP, srcPort, dstPort)

	c.stats.Update(fwd, func(cur uint64, _ bool) uint64 {
		return cur + pktLen
	})

	syn := flags&TCPFlagSYN != 0
	ack := flags&TCPFlagACK != 0
	fin := flags&TCPFlagFIN != 0
	rst := flags&TCPFlagRST != 0

	switch {
	case syn && !ack:
		c.track.Put(fwd, StateNew)
		slog.Debug("tcp syn", "src", IPString(srcIP), "sport", srcPort, "dst", IPString(dstIP), "dport", dstPort)
	case syn && ack:
		c.track.Put(fwd, StateEstablished)
		c.track.Put(rev, StateEstablished)
		slog.Debug("tcp syn-ack", "src", IPString(srcIP), "sport", srcPort, "dst", IPString(dstIP), "dport", dstPort)
	case ack && !syn:
		// Data transfer, counters only.
	case fin:
		c.track.Put(fwd, StateClosing)
		c.track.Put(rev, StateClosing)
		slog.Debug("tcp fin", "src", IPString(srcIP), "sport", srcPort, "dst", IPString(dstIP), "dport", dstPort)
	case rst:
		c.track.Put(fwd, StateReset)
		c.track.Put(rev, StateReset)
		slog.Debug("tcp rst", "src", IPString(srcIP), "sport", srcPort, "dst", IPString(dstIP), "dport", dstPort)
	}
}
