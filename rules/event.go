package rules

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// eventSize is the wire size of one rule-match event as emitted by the
// kernel program into its ring buffer, including struct padding.
const eventSize = 24

// Event is one rule match reported by the kernel program.
type Event struct {
	// Timestamp is kernel monotonic time in nanoseconds.
	Timestamp uint64
	SrcAddr   netip.Addr
	DstAddr   netip.Addr
	SrcPort   uint16
	DstPort   uint16
	Protocol  uint8
}

// DecodeEvent parses a raw ring buffer record. The timestamp is in
// host byte order; addresses and ports come straight from packet
// headers and are network order.
func DecodeEvent(raw []byte) (Event, error) {
	if len(raw) < eventSize {
		return Event{}, fmt.Errorf("short event record: %d bytes, want %d", len(raw), eventSize)
	}

	var src, dst [4]byte
	copy(src[:], raw[8:12])
	copy(dst[:], raw[12:16])

	return Event{
		Timestamp: binary.NativeEndian.Uint64(raw[0:8]),
		SrcAddr:   netip.AddrFrom4(src),
		DstAddr:   netip.AddrFrom4(dst),
		SrcPort:   binary.BigEndian.Uint16(raw[16:18]),
		DstPort:   binary.BigEndian.Uint16(raw[18:20]),
		Protocol:  raw[20],
	}, nil
}

func (e Event) String() string {
	return fmt.Sprintf("%s:%d -> %s:%d proto=%d",
		e.SrcAddr, e.SrcPort, e.DstAddr, e.DstPort, e.Protocol)
}
