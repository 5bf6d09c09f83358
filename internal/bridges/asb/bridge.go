package asb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/asysbus-bridge/internal/infrastructure/mqtt"
)

// Direction tells whether a journaled frame came from or went to the bus.
type Direction string

// Frame directions.
const (
	DirectionRx Direction = "rx"
	DirectionTx Direction = "tx"
)

// FrameRecord is one line seen on, or written to, the serial transport.
type FrameRecord struct {
	Direction Direction
	Raw       []byte

	// Packet is nil when Err is set.
	Packet *Packet
	Err    error

	At time.Time
}

// MQTTClient is the broker side of the bridge.
type MQTTClient interface {
	// Publish sends a message to a full topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic filter.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// TelemetryWriter receives decoded sensor values and bridge counters.
// It is optional; *influxdb.Client satisfies it.
type TelemetryWriter interface {
	WriteReading(node uint16, command, name, unit string, value float64, at time.Time)
	WriteBridgeStats(bridgeID uint16, counters map[string]uint64, at time.Time)
}

// FrameJournal records raw frames. It is optional; *journal.SQLiteRepository
// satisfies it.
type FrameJournal interface {
	Record(ctx context.Context, rec FrameRecord) error
}

// BridgeConfig holds the bridge settings taken from configuration.
type BridgeConfig struct {
	// ID is the bus address frames from the broker are sent from.
	ID uint16

	// Prefix is the MQTT topic prefix, e.g. "/asysbus".
	Prefix string

	// Mode selects the numeric decoding used for reports and telemetry.
	Mode NumericMode

	// QoS is used for state publications and the control subscription.
	QoS byte

	// QueueSize bounds each relay queue.
	QueueSize int

	// HealthInterval is the health publish period. 0 disables health reports.
	HealthInterval time.Duration

	// Version is reported in health messages.
	Version string
}

// BridgeOptions holds the collaborators of a bridge.
type BridgeOptions struct {
	Config BridgeConfig

	// MQTT and Serial are required.
	MQTT   MQTTClient
	Serial Connector

	// Telemetry and Journal are optional.
	Telemetry TelemetryWriter
	Journal   FrameJournal

	// Logger is optional.
	Logger Logger

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Bridge connects the serial bus and the MQTT broker through a Relay.
//
// Run starts five pipelines under one errgroup:
//
//	serial reader     lines -> Decode -> Inbound
//	packet processor  Inbound -> report, telemetry, Relay.HandlePacket -> ToBroker
//	control processor Control -> Relay.HandleControl -> ToBus, ToBroker
//	bus writer        ToBus -> serial
//	broker publisher  ToBroker -> MQTT
//
// plus a journal writer when a FrameJournal is configured. The MQTT message
// handler and the serial line callback only enqueue; neither waits on the
// broker or the journal.
type Bridge struct {
	cfg       BridgeConfig
	mqtt      MQTTClient
	serial    Connector
	relay     *Relay
	topics    mqtt.Topics
	health    *HealthReporter
	telemetry TelemetryWriter
	journal   FrameJournal
	journalQ  *Queue[FrameRecord]
	logger    Logger
	now       func() time.Time
}

// NewBridge creates a bridge. Call Run to start it.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Serial == nil {
		return nil, fmt.Errorf("serial connector is required")
	}
	if opts.Config.ID == 0 {
		return nil, fmt.Errorf("bridge id is required")
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	b := &Bridge{
		cfg:    opts.Config,
		mqtt:   opts.MQTT,
		serial: opts.Serial,
		relay: NewRelay(RelayConfig{
			BridgeID:  opts.Config.ID,
			Prefix:    opts.Config.Prefix,
			QueueSize: opts.Config.QueueSize,
			Clock:     clock,
		}),
		topics:    mqtt.Topics{Prefix: opts.Config.Prefix},
		telemetry: opts.Telemetry,
		journal:   opts.Journal,
		logger:    opts.Logger,
		now:       clock,
	}

	if b.journal != nil {
		b.journalQ = NewQueue[FrameRecord](opts.Config.QueueSize)
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  opts.Config.ID,
		Version:   opts.Config.Version,
		Interval:  opts.Config.HealthInterval,
		Topic:     b.topics.Health(),
		QoS:       opts.Config.QoS,
		Publisher: opts.MQTT,
		Source:    b,
		Telemetry: opts.Telemetry,
		Logger:    opts.Logger,
		Clock:     clock,
	})

	return b, nil
}

// Relay returns the relay, mainly for inspection in tests and status APIs.
func (b *Bridge) Relay() *Relay {
	return b.relay
}

// Run subscribes to the control topics and runs the pipelines until ctx is
// cancelled or a pipeline fails. A lost serial port ends Run with an error
// wrapping ErrTransportClosed; cancellation returns nil.
func (b *Bridge) Run(ctx context.Context) error {
	filter := b.topics.ControlFilter()
	if err := b.mqtt.Subscribe(filter, b.cfg.QoS, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to %s: %w", filter, err)
	}
	b.logInfo("subscribed to control topics", "topic", filter)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return b.serial.Run(gctx, b.handleLine)
	})
	g.Go(func() error { return drain(gctx, b.relay.Inbound, b.processPacket) })
	g.Go(func() error { return drain(gctx, b.relay.Control, b.processControl) })
	g.Go(func() error {
		return drain(gctx, b.relay.ToBus, func(frame []byte) { b.writeFrame(gctx, frame) })
	})
	g.Go(func() error { return drain(gctx, b.relay.ToBroker, b.publish) })
	if b.journalQ != nil {
		g.Go(func() error { return drain(gctx, b.journalQ, b.writeJournal) })
	}
	if b.cfg.HealthInterval > 0 {
		g.Go(func() error { return b.health.Run(gctx) })
	}

	b.logInfo("bridge started", "bridge_id", fmt.Sprintf("0x%04x", b.cfg.ID), "prefix", b.cfg.Prefix, "numeric_mode", b.cfg.Mode.String())

	err := g.Wait()
	b.relay.Close()
	b.flushJournal()

	if err == nil || (errors.Is(err, context.Canceled) && ctx.Err() != nil) {
		b.logInfo("bridge stopped")
		return nil
	}
	return err
}

// drain pops q until ctx is done or q is closed and empty.
func drain[T any](ctx context.Context, q *Queue[T], fn func(T)) error {
	for {
		v, err := q.Pop(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) {
				return nil
			}
			return err
		}
		fn(v)
	}
}

// handleMQTTMessage is called from the MQTT client's goroutines.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) error {
	msg := ControlMessage{Topic: topic, Payload: append([]byte(nil), payload...)}
	if !b.relay.Control.Push(msg) {
		return fmt.Errorf("control queue full, dropped %s", topic)
	}
	return nil
}

// handleLine decodes one line from the serial reader.
func (b *Bridge) handleLine(line []byte) {
	p, err := Decode(line)
	rec := FrameRecord{Direction: DirectionRx, Raw: line, At: b.now()}
	if err != nil {
		rec.Err = err
		b.record(rec)
		b.logWarn("frame decode failed", "line", fmt.Sprintf("%q", line), "error", err)
		return
	}
	rec.Packet = &p
	b.record(rec)

	if !b.relay.Inbound.Push(p) {
		b.logWarn("inbound queue full, packet dropped", "packet", p.String())
	}
}

// processPacket handles one decoded packet.
func (b *Bridge) processPacket(p Packet) {
	cmd, known := Describe(p.Data, b.cfg.Mode)
	b.logDebug("packet received",
		"type", p.Type.String(),
		"target", fmt.Sprintf("0x%04x", p.Target),
		"source", fmt.Sprintf("0x%04x", p.Source),
		"port", p.portString(),
		"length", p.Length,
		"data", fmt.Sprintf("% X", p.Data),
		"command", cmd.Description,
	)

	if known && cmd.Reading != nil && b.telemetry != nil && p.Type.Known() {
		r := cmd.Reading
		b.telemetry.WriteReading(p.Source, cmd.Name, r.Measurement, r.Unit, r.Value, b.now())
	}

	if !p.Type.Known() {
		b.logWarn("packet with unknown message type rejected", "packet", p.String())
	}
	b.relay.HandlePacket(p)
}

// processControl handles one message from the control subscription.
func (b *Bridge) processControl(msg ControlMessage) {
	if err := b.relay.HandleControl(msg.Topic, msg.Payload); err != nil {
		b.logWarn("control message rejected", "topic", msg.Topic, "payload", string(msg.Payload), "error", err)
		return
	}
	b.logDebug("control message queued", "topic", msg.Topic, "payload", string(msg.Payload))
}

// writeFrame sends one frame to the bus. A failed write loses the frame.
func (b *Bridge) writeFrame(ctx context.Context, frame []byte) {
	rec := FrameRecord{Direction: DirectionTx, Raw: frame, At: b.now()}
	if p, err := Decode(frame); err == nil {
		rec.Packet = &p
	}

	if err := b.serial.Write(ctx, frame); err != nil {
		rec.Err = err
		b.record(rec)
		b.logError("bus write failed", "frame", fmt.Sprintf("%q", frame), "error", err)
		return
	}
	b.record(rec)
	b.logDebug("frame sent", "frame", fmt.Sprintf("%q", frame))
}

// publish sends one publication. Failures are counted and logged; the
// publisher keeps going.
func (b *Bridge) publish(pub Publication) {
	topic := b.topics.Join(pub.Topic)
	if err := b.mqtt.Publish(topic, pub.Payload, b.cfg.QoS, pub.Retained); err != nil {
		b.relay.RecordPublishFailure()
		b.logError("MQTT publish failed", "topic", topic, "error", err)
		return
	}
	b.logDebug("MQTT published", "topic", topic, "payload", string(pub.Payload), "retained", pub.Retained)
}

// Journal write bounds.
const (
	journalTimeout      = 2 * time.Second
	journalFlushTimeout = 5 * time.Second
)

// record queues rec for the journal writer when a journal is configured.
// It never blocks; a full queue drops the record.
func (b *Bridge) record(rec FrameRecord) {
	if b.journalQ == nil {
		return
	}
	if !b.journalQ.Push(rec) {
		b.logWarn("journal queue full, record dropped", "direction", string(rec.Direction), "dropped", b.journalQ.Dropped())
	}
}

// writeJournal runs on the journal writer goroutine. Journal errors never
// affect relaying.
func (b *Bridge) writeJournal(rec FrameRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	if err := b.journal.Record(ctx, rec); err != nil {
		b.logWarn("journal write failed", "direction", string(rec.Direction), "error", err)
	}
}

// flushJournal writes what is still queued once the pipelines have stopped.
func (b *Bridge) flushJournal() {
	if b.journalQ == nil {
		return
	}
	b.journalQ.Close()
	ctx, cancel := context.WithTimeout(context.Background(), journalFlushTimeout)
	defer cancel()
	if err := drain(ctx, b.journalQ, b.writeJournal); err != nil {
		b.logWarn("journal flush incomplete", "pending", b.journalQ.Len(), "error", err)
	}
}

// Status implements StatusSource for the health reporter and the HTTP API.
func (b *Bridge) Status() BridgeStatus {
	return BridgeStatus{
		MQTTConnected: b.mqtt.IsConnected(),
		Serial:        b.serial.Stats(),
		Relay:         b.relay.Stats(),
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Debug(msg, keysAndValues...)
	}
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Error(msg, keysAndValues...)
	}
}
