package mqtt

import "strings"

// Topic segments of the aSysBus topic scheme.
const (
	// SegmentLWT is the bridge availability topic below the prefix.
	SegmentLWT = "LWT"

	// SegmentHealth is the bridge health topic below the prefix.
	SegmentHealth = "bridge/health"

	// PayloadOnline is published on the LWT topic after every connect.
	PayloadOnline = "ON"

	// PayloadOffline is the will payload and the graceful shutdown payload.
	PayloadOffline = "OFF"
)

// Topics builds full topic names below a configurable prefix.
//
// The prefix is used verbatim, so "/asysbus" produces topics with a leading
// slash, matching existing aSysBus installations:
//
//	topics := mqtt.Topics{Prefix: "/asysbus"}
//	topics.LWT()           // "/asysbus/LWT"
//	topics.ControlFilter() // "/asysbus/+/set/#"
type Topics struct {
	Prefix string
}

// Join appends a suffix that starts with "/" to the prefix.
//
// Example: Join("/0122/get/switch") -> "/asysbus/0122/get/switch"
func (t Topics) Join(suffix string) string {
	return t.Prefix + suffix
}

// LWT returns the availability topic.
//
// Example: /asysbus/LWT
func (t Topics) LWT() string {
	return t.Prefix + "/" + SegmentLWT
}

// Health returns the topic for bridge health reports.
//
// Example: /asysbus/bridge/health
func (t Topics) Health() string {
	return t.Prefix + "/" + SegmentHealth
}

// ControlFilter returns the subscription filter for control messages.
//
// Pattern: /asysbus/+/set/#
func (t Topics) ControlFilter() string {
	return t.Prefix + "/+/set/#"
}

// Strip removes the prefix and its trailing slash from topic. The second
// result is false when topic is not below the prefix.
func (t Topics) Strip(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.Prefix+"/")
	return rest, ok
}
