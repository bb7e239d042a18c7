package pipeline

// Verdict is what a pipeline tells the hook to do with the packet. This is
// a pure tap: the only verdict is to continue normal processing.
type Verdict int

const VerdictPass Verdict = 0

// Ingress is the receive-hook pipeline: per-source-IP accounting plus TCP
// connection tracking. It never drops, rewrites, or delays a packet; any
// parse failure is a silent pass with no update beyond what was already
// committed.
type Ingress struct {
	tables    *Tables
	conntrack *Conntrack
}

func NewIngress(t *Tables) *Ingress {
	return &Ingress{tables: t, conntrack: NewConntrack(t)}
}

// Process accounts one frame. wireLen is the packet's length on the wire,
// which may exceed len(frame) when capture snaps long packets; byte
// counters use the wire length, bounds checks use the captured bytes.
func (p *Ingress) Process(frame []byte, wireLen uint64) Verdict {
	eth, ok := DecodeEthernet(frame)
	if !ok || eth.EtherType != EtherTypeIPv4 {
		return VerdictPass
	}

	ip, ok := DecodeIPv4(frame, EthHeaderLen)
	if !ok {
		return VerdictPass
	}

	pktLen := wireLen
	p.addIPBytes(ip.SrcIP, pktLen)

	switch ip.Protocol {
	case ProtoTCP:
		p.handleTCP(frame, ip, pktLen)
	case ProtoUDP:
		p.handleUDP(frame, ip, pktLen)
	}

	return VerdictPass
}

func (p *Ingress) handleTCP(frame []byte, ip IPv4Header, pktLen uint64) {
	tcp, ok := DecodeTCP(frame, EthHeaderLen+IPv4HeaderLen)
	if !ok {
		return
	}
	p.conntrack.Observe(ip.SrcIP, ip.DstIP, tcp.SrcPort, tcp.DstPort, tcp.Flags, pktLen)
}

func (p *Ingress) handleUDP(frame []byte, ip IPv4Header, pktLen uint64) {
	if _, ok := DecodeUDP(frame, EthHeaderLen+IPv4HeaderLen); !ok {
		return
	}
	// The UDP path accounts both endpoints as separate source keys, on top
	// of the source update already made for every IPv4 packet.
	p.addIPBytes(ip.SrcIP, pktLen)
	p.addIPBytes(ip.DstIP, pktLen)
}

func (p *Ingress) addIPBytes(addr uint32, n uint64) {
	p.tables.IPStats.Update(addr, func(cur uint64, _ bool) uint64 {
		return cur + n
	})
}
