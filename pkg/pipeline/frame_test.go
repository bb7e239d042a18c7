package pipeline

import "encoding/binary"

// Synthetic frame builders shared by the pipeline tests.

func ipv4Addr(a, b, c, d byte) uint32 {
	return uint32(a)<<24 | uint32(b)<<16 | uint32(c)<<8 | uint32(d)
}

func ethFrame(etherType uint16, payloadLen int) []byte {
	frame := make([]byte, EthHeaderLen+payloadLen)
	binary.BigEndian.PutUint16(frame[12:14], etherType)
	return frame
}

func ipv4Frame(srcIP, dstIP uint32, proto uint8, transportLen int) []byte {
	frame := ethFrame(EtherTypeIPv4, IPv4HeaderLen+transportLen)
	ip := frame[EthHeaderLen:]
	ip[0] = 0x45
	ip[8] = 64
	ip[9] = proto
	binary.BigEndian.PutUint32(ip[12:16], srcIP)
	binary.BigEndian.PutUint32(ip[16:20], dstIP)
	return frame
}

func tcpFrame(srcIP, dstIP uint32, srcPort, dstPort uint16, flags uint8) []byte {
	frame := ipv4Frame(srcIP, dstIP, ProtoTCP, TCPHeaderLen)
	tp := frame[EthHeaderLen+IPv4HeaderLen:]
	binary.BigEndian.PutUint16(tp[0:2], srcPort)
	binary.BigEndian.PutUint16(tp[2:4], dstPort)
	tp[12] = 5 << 4
	tp[13] = flags
	return frame
}

func udpFrame(srcIP, dstIP uint32, srcPort, dstPort uint16) []byte {
	// The classifier decodes ports through the TCP layout, so give UDP
	// frames a full 20-byte transport slice as well.
	frame := ipv4Frame(srcIP, dstIP, ProtoUDP, TCPHeaderLen)
	tp := frame[EthHeaderLen+IPv4HeaderLen:]
	binary.BigEndian.PutUint16(tp[0:2], srcPort)
	binary.BigEndian.PutUint16(tp[2:4], dstPort)
	binary.BigEndian.PutUint16(tp[4:6], UDPHeaderLen)
	return frame
}
