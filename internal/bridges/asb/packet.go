package asb

import (
	"fmt"
	"strings"
)

// MessageType selects the addressing mode of a packet.
type MessageType uint8

// Addressing modes.
const (
	// Broadcast addresses every node on the bus.
	Broadcast MessageType = 0x00

	// Multicast addresses a group. Actuator state is multicast.
	Multicast MessageType = 0x01

	// Unicast addresses a single node and optionally one of its ports.
	Unicast MessageType = 0x02
)

// String returns the display name of the message type.
func (t MessageType) String() string {
	switch t {
	case Broadcast:
		return "Broadcast"
	case Multicast:
		return "Multicast"
	case Unicast:
		return "Unicast"
	default:
		return "unknown"
	}
}

// Known reports whether t is one of the three defined addressing modes.
func (t MessageType) Known() bool {
	return t <= Unicast
}

// Address and payload limits.
const (
	// PortNone marks a packet without a port. It is written as FF on the wire.
	PortNone = -1

	// portWire is the on-wire port value meaning "not applicable".
	portWire = 0xFF

	// MaxPort is the highest unicast port number.
	MaxPort = 0x1F

	// MaxNodeAddress is the highest address a single node can have.
	MaxNodeAddress = 0x07FF

	// MaxPayload is the largest number of data bytes in one packet.
	MaxPayload = 8
)

// Packet is one decoded bus message.
//
// Packets are values. The codec does not range-check any field; call Valid
// when a caller needs to know whether the packet is structurally sound.
type Packet struct {
	// Type is the addressing mode. Decoded values above Unicast are kept as-is.
	Type MessageType

	// Target is the destination node or group.
	Target uint16

	// Source is the sending node.
	Source uint16

	// Port is the unicast port, or PortNone.
	Port int

	// Length is the payload length declared in the frame header.
	Length int

	// Data is the payload. It can be shorter than Length when the frame
	// carried malformed payload groups.
	Data []byte
}

// NewPacket builds a packet whose Length matches data.
func NewPacket(t MessageType, target, source uint16, port int, data []byte) Packet {
	buf := make([]byte, len(data))
	copy(buf, data)
	return Packet{
		Type:   t,
		Target: target,
		Source: source,
		Port:   port,
		Length: len(buf),
		Data:   buf,
	}
}

// Opcode returns the first payload byte.
func (p Packet) Opcode() (byte, bool) {
	if len(p.Data) == 0 {
		return 0, false
	}
	return p.Data[0], true
}

// Truncated reports whether fewer payload bytes were recovered than declared.
func (p Packet) Truncated() bool {
	return len(p.Data) < p.Length
}

// HasPort reports whether the packet carries a port number.
func (p Packet) HasPort() bool {
	return p.Port != PortNone && p.Port != portWire
}

// Valid checks the packet against the bus addressing rules.
func (p Packet) Valid() error {
	var problems []string

	if !p.Type.Known() {
		problems = append(problems, fmt.Sprintf("unknown message type 0x%02x", uint8(p.Type)))
	}
	if p.Target == 0 {
		problems = append(problems, "target address 0x0000")
	}
	if p.Source == 0 || p.Source > MaxNodeAddress {
		problems = append(problems, fmt.Sprintf("source address 0x%04x out of range", p.Source))
	}
	if p.Type == Unicast {
		if p.Target > MaxNodeAddress {
			problems = append(problems, fmt.Sprintf("unicast target 0x%04x out of range", p.Target))
		}
		if p.HasPort() && (p.Port < 0 || p.Port > MaxPort) {
			problems = append(problems, fmt.Sprintf("port %d out of range", p.Port))
		}
	}
	if p.Length < 0 || p.Length > MaxPayload {
		problems = append(problems, fmt.Sprintf("length %d out of range", p.Length))
	}
	if len(p.Data) != p.Length {
		problems = append(problems, fmt.Sprintf("payload has %d bytes, header declares %d", len(p.Data), p.Length))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidPacket, strings.Join(problems, "; "))
	}
	return nil
}

// String returns a compact one-line form for logs.
func (p Packet) String() string {
	return fmt.Sprintf("%s 0x%04x<-0x%04x port=%s len=%d data=% X",
		p.Type, p.Target, p.Source, p.portString(), p.Length, p.Data)
}

// Report renders the multi-line monitor view of the packet.
//
//	Packet type: Multicast (0x01)
//	Target:      0x0122
//	Source:      0x0001
//	Port:        0xff
//	Length:      0x02
//	  0 => 0x51
//	  1 => 0x01
//	1-bit-message, state is 1
func (p Packet) Report(mode NumericMode) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Packet type: %s (0x%02x)\n", p.Type, uint8(p.Type))
	fmt.Fprintf(&b, "Target:      0x%04x\n", p.Target)
	fmt.Fprintf(&b, "Source:      0x%04x\n", p.Source)
	fmt.Fprintf(&b, "Port:        %s\n", p.portString())
	fmt.Fprintf(&b, "Length:      0x%02x\n", p.Length)
	for i, db := range p.Data {
		fmt.Fprintf(&b, "  %d => 0x%02x\n", i, db)
	}
	b.WriteString(Interpret(p.Data, mode))

	return b.String()
}

func (p Packet) portString() string {
	if !p.HasPort() {
		return fmt.Sprintf("0x%02x", portWire)
	}
	return fmt.Sprintf("0x%02x", p.Port)
}
