package asb

import (
	"bytes"
	"fmt"
	"strconv"
)

// Frame control bytes.
const (
	// SOH starts a frame.
	SOH byte = 0x01

	// STX separates the header from the payload.
	STX byte = 0x02

	// EOT ends the payload.
	EOT byte = 0x04

	// US separates header fields and terminates each payload byte.
	US byte = 0x1F
)

// headerFields is the number of hex fields between SOH and STX.
const headerFields = 5

// Header field indices, in wire order.
const (
	fieldType = iota
	fieldTarget
	fieldSource
	fieldPort
	fieldLength
)

// fieldBits is the width each header field must fit into.
var fieldBits = [headerFields]int{8, 16, 16, 8, 8}

var fieldNames = [headerFields]string{"type", "target", "source", "port", "length"}

const hexDigits = "0123456789ABCDEF"

// Encode renders a packet as a wire frame including the trailing CR LF.
//
// Values are written as given. A negative port is written as FF. The
// length field is always len(data).
func Encode(t MessageType, target, source uint16, port int, data []byte) []byte {
	out := make([]byte, 0, 24+3*len(data))

	out = append(out, SOH)
	out = appendHex(out, uint64(t))
	out = append(out, US)
	out = appendHex(out, uint64(target))
	out = append(out, US)
	out = appendHex(out, uint64(source))
	out = append(out, US)
	if port < 0 {
		out = append(out, 'F', 'F')
	} else {
		out = appendHex(out, uint64(port))
	}
	out = append(out, US)
	out = appendHex(out, uint64(len(data)))
	out = append(out, STX)
	for _, db := range data {
		out = appendHex(out, uint64(db))
		out = append(out, US)
	}
	out = append(out, EOT, '\r', '\n')

	return out
}

// Encode renders the packet as a wire frame. Length is taken from Data.
func (p Packet) Encode() []byte {
	return Encode(p.Type, p.Target, p.Source, p.Port, p.Data)
}

// appendHex appends v as uppercase hex without leading zeros.
func appendHex(dst []byte, v uint64) []byte {
	if v == 0 {
		return append(dst, '0')
	}
	var buf [16]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = hexDigits[v&0xF]
		v >>= 4
	}
	return append(dst, buf[i:]...)
}

// Decode extracts the first frame found in line.
//
// The frame may be preceded by arbitrary bytes; scanning starts at every
// SOH until one yields a complete frame. Bytes after EOT are ignored.
//
// Payload groups beyond the declared length are ignored. Groups that do
// not hold a byte value are dropped, and a frame with fewer groups than
// declared decodes without error. Check Packet.Truncated to detect both.
func Decode(line []byte) (Packet, error) {
	var lastErr *DecodeError

	for from := 0; from < len(line); {
		i := bytes.IndexByte(line[from:], SOH)
		if i < 0 {
			break
		}
		start := from + i

		p, err := scanFrame(line, start)
		if err == nil {
			return p, nil
		}
		lastErr = err
		from = start + 1
	}

	if lastErr == nil {
		return Packet{}, &DecodeError{Line: string(line), Offset: 0, Reason: "no start-of-header marker"}
	}
	return Packet{}, lastErr
}

// DecodeString is Decode for string input.
func DecodeString(line string) (Packet, error) {
	return Decode([]byte(line))
}

// scanState is the position of the frame scanner within a frame.
type scanState int

const (
	stateAwaitStart scanState = iota
	stateField
	statePayloadGroup
	stateDone
)

// frameScanner walks one candidate frame byte by byte.
type frameScanner struct {
	line   []byte
	state  scanState
	field  int
	runAt  int
	header [headerFields][]byte
	groups [][]byte
}

func scanFrame(line []byte, start int) (Packet, *DecodeError) {
	s := frameScanner{line: line, state: stateAwaitStart}

	for pos := start; pos < len(line) && s.state != stateDone; pos++ {
		if err := s.step(pos, line[pos]); err != nil {
			return Packet{}, err
		}
	}
	if s.state != stateDone {
		return Packet{}, s.fail(len(line), "missing end-of-transmission marker")
	}

	return s.packet()
}

func (s *frameScanner) step(pos int, c byte) *DecodeError {
	switch s.state {
	case stateAwaitStart:
		if c != SOH {
			return s.fail(pos, "missing start-of-header marker")
		}
		s.state = stateField
		s.runAt = pos + 1

	case stateField:
		switch {
		case isHexDigit(c):
		case c == US && s.field < fieldLength:
			s.header[s.field] = s.line[s.runAt:pos]
			s.field++
			s.runAt = pos + 1
		case c == STX && s.field == fieldLength:
			s.header[s.field] = s.line[s.runAt:pos]
			s.state = statePayloadGroup
			s.runAt = pos + 1
		default:
			return s.fail(pos, fmt.Sprintf("unexpected byte 0x%02x in %s field", c, fieldNames[s.field]))
		}

	case statePayloadGroup:
		switch {
		case isHexDigit(c):
		case c == US:
			s.groups = append(s.groups, s.line[s.runAt:pos])
			s.runAt = pos + 1
		case c == EOT && s.runAt == pos:
			s.state = stateDone
		default:
			return s.fail(pos, fmt.Sprintf("unexpected byte 0x%02x in payload", c))
		}
	}
	return nil
}

func (s *frameScanner) packet() (Packet, *DecodeError) {
	var values [headerFields]uint64
	for i, raw := range s.header {
		if len(raw) == 0 {
			return Packet{}, s.fail(s.runAt, fmt.Sprintf("empty %s field", fieldNames[i]))
		}
		v, err := strconv.ParseUint(string(raw), 16, fieldBits[i])
		if err != nil {
			return Packet{}, s.fail(s.runAt, fmt.Sprintf("%s field %q out of range", fieldNames[i], raw))
		}
		values[i] = v
	}

	p := Packet{
		Type:   MessageType(values[fieldType]),
		Target: uint16(values[fieldTarget]),
		Source: uint16(values[fieldSource]),
		Port:   int(values[fieldPort]),
		Length: int(values[fieldLength]),
	}
	if values[fieldPort] == portWire {
		p.Port = PortNone
	}

	for i := 0; i < p.Length && i < len(s.groups); i++ {
		v, err := strconv.ParseUint(string(s.groups[i]), 16, 8)
		if err != nil {
			continue
		}
		p.Data = append(p.Data, byte(v))
	}

	return p, nil
}

func (s *frameScanner) fail(pos int, reason string) *DecodeError {
	return &DecodeError{Line: string(s.line), Offset: pos, Reason: reason}
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F')
}
