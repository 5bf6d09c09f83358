package asb

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"
)

// Publication is a message waiting for the broker. Topic is a suffix below
// the configured prefix.
type Publication struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// ControlMessage is a raw message received on the control subscription.
type ControlMessage struct {
	Topic   string
	Payload []byte
}

// RelayConfig configures a Relay.
type RelayConfig struct {
	// BridgeID is the bus address frames from the broker are sent from.
	BridgeID uint16

	// Prefix is the MQTT topic prefix control topics arrive under.
	Prefix string

	// QueueSize bounds each of the four queues. 0 uses DefaultQueueSize.
	QueueSize int

	// Clock returns the time for lastboot messages. Defaults to time.Now.
	Clock func() time.Time
}

// RelayStats is a snapshot of the relay counters.
type RelayStats struct {
	PacketsRouted    uint64 `json:"packets_routed"`
	PacketsIgnored   uint64 `json:"packets_ignored"`
	PacketsRejected  uint64 `json:"packets_rejected"`
	ControlFrames    uint64 `json:"control_frames"`
	ControlsRejected uint64 `json:"controls_rejected"`
	PublishFailures  uint64 `json:"publish_failures"`

	InboundDepth  int `json:"inbound_depth"`
	ControlDepth  int `json:"control_depth"`
	ToBusDepth    int `json:"to_bus_depth"`
	ToBrokerDepth int `json:"to_broker_depth"`

	InboundDropped  uint64 `json:"inbound_dropped"`
	ControlDropped  uint64 `json:"control_dropped"`
	ToBusDropped    uint64 `json:"to_bus_dropped"`
	ToBrokerDropped uint64 `json:"to_broker_dropped"`
}

// Counters flattens the monotonic counters for time-series export.
func (s RelayStats) Counters() map[string]uint64 {
	return map[string]uint64{
		"packets_routed":    s.PacketsRouted,
		"packets_ignored":   s.PacketsIgnored,
		"packets_rejected":  s.PacketsRejected,
		"control_frames":    s.ControlFrames,
		"controls_rejected": s.ControlsRejected,
		"publish_failures":  s.PublishFailures,
		"inbound_dropped":   s.InboundDropped,
		"control_dropped":   s.ControlDropped,
		"to_bus_dropped":    s.ToBusDropped,
		"to_broker_dropped": s.ToBrokerDropped,
	}
}

// Relay translates between bus packets and broker messages.
//
// It keeps no per-node state: every packet and every control message is
// routed on its own. Results go onto ToBus and ToBroker, which the bridge
// drains.
type Relay struct {
	Inbound  *Queue[Packet]
	Control  *Queue[ControlMessage]
	ToBus    *Queue[[]byte]
	ToBroker *Queue[Publication]

	bridgeID uint16
	prefix   string
	now      func() time.Time

	routed          atomic.Uint64
	ignored         atomic.Uint64
	rejected        atomic.Uint64
	controlFrames   atomic.Uint64
	controlRejected atomic.Uint64
	publishFailures atomic.Uint64
}

// NewRelay creates a relay with its four queues.
func NewRelay(cfg RelayConfig) *Relay {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Relay{
		Inbound:  NewQueue[Packet](cfg.QueueSize),
		Control:  NewQueue[ControlMessage](cfg.QueueSize),
		ToBus:    NewQueue[[]byte](cfg.QueueSize),
		ToBroker: NewQueue[Publication](cfg.QueueSize),
		bridgeID: cfg.BridgeID,
		prefix:   cfg.Prefix,
		now:      clock,
	}
}

// Route returns the publication a packet maps to.
//
//   - 0x51 with length 2: data[1] on <target>/get/switch, retained
//   - 0x52 with length 2: data[1] on <target>/get/level, retained
//   - 0x21 with length 1: unix time on <source>/lastboot, not retained
//
// Every other packet, and any packet with an unknown message type, maps
// to nothing.
func (r *Relay) Route(p Packet) (Publication, bool) {
	if !p.Type.Known() || len(p.Data) != p.Length {
		return Publication{}, false
	}
	op, ok := p.Opcode()
	if !ok {
		return Publication{}, false
	}

	switch {
	case op == CmdSwitch && p.Length == 2:
		return Publication{
			Topic:    SwitchStateTopic(p.Target),
			Payload:  []byte(strconv.Itoa(int(p.Data[1]))),
			Retained: true,
		}, true
	case op == CmdPercent && p.Length == 2:
		return Publication{
			Topic:    LevelStateTopic(p.Target),
			Payload:  []byte(strconv.Itoa(int(p.Data[1]))),
			Retained: true,
		}, true
	case op == CmdBoot && p.Length == 1:
		return Publication{
			Topic:   LastBootTopic(p.Source),
			Payload: []byte(strconv.FormatInt(r.now().Unix(), 10)),
		}, true
	}
	return Publication{}, false
}

// HandlePacket routes a decoded packet and enqueues the resulting
// publication. It reports whether anything was enqueued.
func (r *Relay) HandlePacket(p Packet) bool {
	if !p.Type.Known() {
		r.rejected.Add(1)
		return false
	}

	pub, ok := r.Route(p)
	if !ok {
		r.ignored.Add(1)
		return false
	}

	if !r.ToBroker.Push(pub) {
		return false
	}
	r.routed.Add(1)
	return true
}

// HandleControl translates a control message into a bus frame and an echo.
//
// The frame is a Multicast from the bridge address to the topic's address
// without a port, carrying [0x51|0x52, value]. The echo repeats the raw
// payload on the matching get topic, retained, without waiting for the bus.
func (r *Relay) HandleControl(topic string, payload []byte) error {
	req, err := ParseControlTopic(r.prefix, topic)
	if err != nil {
		r.controlRejected.Add(1)
		return err
	}
	value, err := ParseControlPayload(payload)
	if err != nil {
		r.controlRejected.Add(1)
		return fmt.Errorf("%s: %w", topic, err)
	}

	frame := Encode(Multicast, req.Target, r.bridgeID, PortNone, []byte{req.Opcode(), value})
	if !r.ToBus.Push(frame) {
		return fmt.Errorf("%s: bus queue full", topic)
	}
	r.controlFrames.Add(1)

	echo := make([]byte, len(payload))
	copy(echo, payload)
	r.ToBroker.Push(Publication{Topic: req.EchoTopic(), Payload: echo, Retained: true})

	return nil
}

// RecordPublishFailure counts a publication the broker did not accept.
func (r *Relay) RecordPublishFailure() {
	r.publishFailures.Add(1)
}

// Close closes all four queues. Queued items can still be drained.
func (r *Relay) Close() {
	r.Inbound.Close()
	r.Control.Close()
	r.ToBus.Close()
	r.ToBroker.Close()
}

// Stats returns a snapshot of the relay counters and queue state.
func (r *Relay) Stats() RelayStats {
	return RelayStats{
		PacketsRouted:    r.routed.Load(),
		PacketsIgnored:   r.ignored.Load(),
		PacketsRejected:  r.rejected.Load(),
		ControlFrames:    r.controlFrames.Load(),
		ControlsRejected: r.controlRejected.Load(),
		PublishFailures:  r.publishFailures.Load(),

		InboundDepth:  r.Inbound.Len(),
		ControlDepth:  r.Control.Len(),
		ToBusDepth:    r.ToBus.Len(),
		ToBrokerDepth: r.ToBroker.Len(),

		InboundDropped:  r.Inbound.Dropped(),
		ControlDropped:  r.Control.Dropped(),
		ToBusDropped:    r.ToBus.Dropped(),
		ToBrokerDropped: r.ToBroker.Dropped(),
	}
}
