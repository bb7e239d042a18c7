package pipeline

import (
	"encoding/binary"
	"net/netip"
)

// Fixed header sizes. IPv4 options are not parsed; the transport header is
// always decoded at the 20-byte offset, matching the wire layouts below.
const (
	EthHeaderLen  = 14
	IPv4HeaderLen = 20
	TCPHeaderLen  = 20
	UDPHeaderLen  = 8
)

const EtherTypeIPv4 = 0x0800

const (
	ProtoTCP = 6
	ProtoUDP = 17
)

// TCP flag bits.
const (
	TCPFlagFIN = 0x01
	TCPFlagSYN = 0x02
	TCPFlagRST = 0x04
	TCPFlagPSH = 0x08
	TCPFlagACK = 0x10
)

type EthernetHeader struct {
	DstMAC    [6]byte
	SrcMAC    [6]byte
	EtherType uint16
}

type IPv4Header struct {
	VersionIHL uint8
	TOS        uint8
	TotalLen   uint16
	ID         uint16
	FragOff    uint16
	TTL        uint8
	Protocol   uint8
	Checksum   uint16
	SrcIP      uint32
	DstIP      uint32
}

type TCPHeader struct {
	SrcPort  uint16
	DstPort  uint16
	Seq      uint32
	AckSeq   uint32
	DataOff  uint8
	Flags    uint8
	Window   uint16
	Checksum uint16
	Urgent   uint16
}

type UDPHeader struct {
	SrcPort  uint16
	DstPort  uint16
	Length   uint16
	Checksum uint16
}

// DecodeEthernet reads the Ethernet header at the start of frame. Returns
// ok=false if the frame is too short; callers treat that as "not
// classifiable" and pass the packet through untouched.
func DecodeEthernet(frame []byte) (EthernetHeader, bool) {
	if len(frame) < EthHeaderLen {
		return EthernetHeader{}, false
	}
	var h EthernetHeader
	copy(h.DstMAC[:], frame[0:6])
	copy(h.SrcMAC[:], frame[6:12])
	h.EtherType = binary.BigEndian.Uint16(frame[12:14])
	return h, true
}

// DecodeIPv4 reads a 20-byte IPv4 header at offset. Multi-byte fields are
// big-endian; addresses come back as host-comparable uint32 values.
func DecodeIPv4(frame []byte, offset int) (IPv4Header, bool) {
	if offset+IPv4HeaderLen > len(frame) {
		return IPv4Header{}, false
	}
	b := frame[offset : offset+IPv4HeaderLen]
	return IPv4Header{
		VersionIHL: b[0],
		TOS:        b[1],
		TotalLen:   binary.BigEndian.Uint16(b[2:4]),
		ID:         binary.BigEndian.Uint16(b[4:6]),
		FragOff:    binary.BigEndian.Uint16(b[6:8]),
		TTL:        b[8],
		Protocol:   b[9],
		Checksum:   binary.BigEndian.Uint16(b[10:12]),
		SrcIP:      binary.BigEndian.Uint32(b[12:16]),
		DstIP:      binary.BigEndian.Uint32(b[16:20]),
	}, true
}

func DecodeTCP(frame []byte, offset int) (TCPHeader, bool) {
	if offset+TCPHeaderLen > len(frame) {
		return TCPHeader{}, false
	}
	b := frame[offset : offset+TCPHeaderLen]
	return TCPHeader{
		SrcPort:  binary.BigEndian.Uint16(b[0:2]),
		DstPort:  binary.BigEndian.Uint16(b[2:4]),
		Seq:      binary.BigEndian.Uint32(b[4:8]),
		AckSeq:   binary.BigEndian.Uint32(b[8:12]),
		DataOff:  b[12],
		Flags:    b[13],
		Window:   binary.BigEndian.Uint16(b[14:16]),
		Checksum: binary.BigEndian.Uint16(b[16:18]),
		Urgent:   binary.BigEndian.Uint16(b[18:20]),
	}, true
}

// IPString renders a decoded address in dotted-quad form.
func IPString(addr uint32) string {
	return netip.AddrFrom4([4]byte{
		byte(addr >> 24),
		byte(addr >> 16),
		byte(addr >> 8),
		byte(addr),
	}).String()
}

func DecodeUDP(frame []byte, offset int) (UDPHeader, bool) {
	if offset+UDPHeaderLen > len(frame) {
		return UDPHeader{}, false
	}
	b := frame[offset : offset+UDPHeaderLen]
	return UDPHeader{
		SrcPort:  binary.BigEndian.Uint16(b[0:2]),
		DstPort:  binary.BigEndian.Uint16(b[2:4]),
		Length:   binary.BigEndian.Uint16(b[4:6]),
		Checksum: binary.BigEndian.Uint16(b[6:8]),
	}, true
}
