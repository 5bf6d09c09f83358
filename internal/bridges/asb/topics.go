package asb

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/asysbus-bridge/internal/infrastructure/mqtt"
)

// Topic leaves and segments below <prefix>/<addr>/.
const (
	// LeafSwitch carries a 1-bit state, "0" or "1".
	LeafSwitch = "switch"

	// LeafLevel carries a percentage, "0" to "100".
	LeafLevel = "level"

	segmentSet      = "set"
	segmentGet      = "get"
	segmentLastBoot = "lastboot"

	// controlTopicParts is <addr>/set/<leaf>.
	controlTopicParts = 3
)

// Topic suffixes are relative to the configured prefix and start with "/".
// The broker publisher joins them with mqtt.Topics.

// SwitchStateTopic returns the suffix for a group's switch state.
//
// Example: SwitchStateTopic(0x1001) -> "/1001/get/switch"
func SwitchStateTopic(addr uint16) string {
	return fmt.Sprintf("/%04x/%s/%s", addr, segmentGet, LeafSwitch)
}

// LevelStateTopic returns the suffix for a group's level state.
//
// Example: LevelStateTopic(0x0fa2) -> "/0fa2/get/level"
func LevelStateTopic(addr uint16) string {
	return fmt.Sprintf("/%04x/%s/%s", addr, segmentGet, LeafLevel)
}

// LastBootTopic returns the suffix for a node's last boot time.
//
// Example: LastBootTopic(0x0001) -> "/0001/lastboot"
func LastBootTopic(addr uint16) string {
	return fmt.Sprintf("/%04x/%s", addr, segmentLastBoot)
}

// ControlRequest is a parsed <prefix>/<addr>/set/<leaf> topic.
type ControlRequest struct {
	// Target is the bus address parsed from the topic.
	Target uint16

	// AddressSegment is the address exactly as it appeared in the topic.
	// Echoes are published under the same spelling.
	AddressSegment string

	// Leaf is LeafSwitch or LeafLevel.
	Leaf string
}

// Opcode returns the bus command for the leaf: 0x51 or 0x52.
func (r ControlRequest) Opcode() byte {
	if r.Leaf == LeafLevel {
		return CmdPercent
	}
	return CmdSwitch
}

// EchoTopic returns the get/<leaf> suffix the requested state is echoed on.
func (r ControlRequest) EchoTopic() string {
	return "/" + r.AddressSegment + "/" + segmentGet + "/" + r.Leaf
}

// ParseControlTopic parses a full control topic received on the
// <prefix>/+/set/# subscription.
func ParseControlTopic(prefix, topic string) (ControlRequest, error) {
	rest, ok := mqtt.Topics{Prefix: prefix}.Strip(topic)
	if !ok {
		return ControlRequest{}, fmt.Errorf("%w: %q is outside prefix %q", ErrInvalidTopic, topic, prefix)
	}

	parts := strings.Split(rest, "/")
	if len(parts) != controlTopicParts {
		return ControlRequest{}, fmt.Errorf("%w: %q has %d segments, want %d", ErrInvalidTopic, topic, len(parts), controlTopicParts)
	}
	if parts[1] != segmentSet {
		return ControlRequest{}, fmt.Errorf("%w: %q: second segment is %q, want %q", ErrInvalidTopic, topic, parts[1], segmentSet)
	}

	leaf := parts[2]
	if leaf != LeafSwitch && leaf != LeafLevel {
		return ControlRequest{}, fmt.Errorf("%w: %q: unknown leaf %q", ErrInvalidTopic, topic, leaf)
	}

	addr, err := strconv.ParseUint(parts[0], 16, 16)
	if err != nil || addr == 0 {
		return ControlRequest{}, fmt.Errorf("%w: %q: bad address %q", ErrInvalidTopic, topic, parts[0])
	}

	return ControlRequest{
		Target:         uint16(addr),
		AddressSegment: parts[0],
		Leaf:           leaf,
	}, nil
}

// ParseControlPayload parses a decimal value 0-255. Surrounding whitespace
// is ignored.
func ParseControlPayload(payload []byte) (byte, error) {
	s := strings.TrimSpace(string(payload))
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPayload, s)
	}
	return byte(v), nil
}
