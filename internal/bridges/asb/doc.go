// Package asb implements the aSysBus serial bridge.
//
// aSysBus is a small field bus for home automation nodes. A gateway node
// exposes the bus on a UART (115200 baud, 8N1) using a textual frame format.
// This package decodes those frames, describes their payloads, and relays
// actuator state between the bus and an MQTT broker.
//
// # Architecture
//
//	┌──────────────┐  serial   ┌───────────────────────────────┐   MQTT   ┌────────┐
//	│ aSysBus      │◄─────────►│ Connector ─► Inbound ─► Relay │◄────────►│ Broker │
//	│ gateway node │           │ ToBus ◄── Relay ──► ToBroker  │          └────────┘
//	└──────────────┘           └───────────────────────────────┘
//
// The serial side and the broker side never call each other. Every
// direction goes through a Queue drained by exactly one goroutine.
//
// # Frame Format
//
//	0x01 <type> 0x1F <target> 0x1F <source> 0x1F <port|FF> 0x1F <len> 0x02 (<byte> 0x1F)* 0x04 CR LF
//
// All numbers are uppercase hexadecimal without padding. A port of FF
// means "not applicable" and decodes to PortNone.
//
// Example:
//
//	frame := asb.Encode(asb.Multicast, 0x0122, 0x0001, asb.PortNone, []byte{0x51, 0x01})
//	p, err := asb.Decode(frame)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(asb.Interpret(p.Data, asb.NumericCorrected)) // "1-bit-message, state is 1"
//
// # Topics
//
// With the default prefix "/asysbus":
//
//   - /asysbus/<addr>/get/switch  "0" or "1", retained
//   - /asysbus/<addr>/get/level   0-100, retained
//   - /asysbus/<addr>/lastboot    unix timestamp
//   - /asysbus/<addr>/set/switch  control input
//   - /asysbus/<addr>/set/level   control input
//   - /asysbus/LWT                "ON" / "OFF"
//
// Addresses in topics are four lowercase hex digits.
//
// # Thread Safety
//
// Packet values are immutable once decoded. Queue, Relay, Bridge and
// SerialConnector are safe for concurrent use.
package asb
