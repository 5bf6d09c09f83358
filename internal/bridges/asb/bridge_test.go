package asb

//go:generate mockgen -destination mock_asb_test.go -package $GOPACKAGE -write_package_comment=false github.com/nerrad567/asysbus-bridge/internal/bridges/asb MQTTClient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// fakeConnector is a Connector fed from a channel.
type fakeConnector struct {
	lines   chan []byte
	written chan []byte
	fail    chan error

	mu       sync.Mutex
	writeErr error
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{
		lines:   make(chan []byte, 16),
		written: make(chan []byte, 16),
		fail:    make(chan error, 1),
	}
}

func (c *fakeConnector) Run(ctx context.Context, onLine func([]byte)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-c.fail:
			return err
		case line := <-c.lines:
			onLine(line)
		}
	}
}

func (c *fakeConnector) Write(_ context.Context, frame []byte) error {
	c.mu.Lock()
	err := c.writeErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.written <- frame
	return nil
}

func (c *fakeConnector) IsConnected() bool { return true }

func (c *fakeConnector) Stats() SerialStats {
	return SerialStats{Port: "fake", Connected: true}
}

func (c *fakeConnector) Close() error { return nil }

// memoryJournal records frames in memory.
type memoryJournal struct {
	mu      sync.Mutex
	records []FrameRecord
}

func (j *memoryJournal) Record(_ context.Context, rec FrameRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, rec)
	return nil
}

func (j *memoryJournal) snapshot() []FrameRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]FrameRecord(nil), j.records...)
}

// memoryTelemetry records readings in memory.
type memoryTelemetry struct {
	mu       sync.Mutex
	readings []string
	stats    int
}

func (m *memoryTelemetry) WriteReading(node uint16, command, name, unit string, value float64, _ time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = append(m.readings, fmt.Sprintf("%04x %s %s %s %.1f", node, command, name, unit, value))
}

func (m *memoryTelemetry) WriteBridgeStats(uint16, map[string]uint64, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats++
}

func (m *memoryTelemetry) snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.readings...)
}

type bridgeHarness struct {
	bridge    *Bridge
	mqtt      *MockMQTTClient
	serial    *fakeConnector
	journal   *memoryJournal
	telemetry *memoryTelemetry
	handler   chan func(string, []byte) error

	cancel context.CancelFunc
	done   chan error
}

func newBridgeHarness(t *testing.T) *bridgeHarness {
	t.Helper()
	ctrl := gomock.NewController(t)

	h := &bridgeHarness{
		mqtt:      NewMockMQTTClient(ctrl),
		serial:    newFakeConnector(),
		journal:   &memoryJournal{},
		telemetry: &memoryTelemetry{},
		handler:   make(chan func(string, []byte) error, 1),
		done:      make(chan error, 1),
	}

	h.mqtt.EXPECT().IsConnected().Return(true).AnyTimes()
	h.mqtt.EXPECT().
		Subscribe("/asysbus/+/set/#", byte(0), gomock.Any()).
		DoAndReturn(func(_ string, _ byte, fn func(string, []byte) error) error {
			h.handler <- fn
			return nil
		})

	b, err := NewBridge(BridgeOptions{
		Config: BridgeConfig{
			ID:     0x0001,
			Prefix: "/asysbus",
		},
		MQTT:      h.mqtt,
		Serial:    h.serial,
		Telemetry: h.telemetry,
		Journal:   h.journal,
		Clock:     func() time.Time { return time.Unix(1700000000, 0) },
	})
	require.NoError(t, err)
	h.bridge = b
	return h
}

func (h *bridgeHarness) start(t *testing.T) func(string, []byte) error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.bridge.Run(ctx) }()

	select {
	case fn := <-h.handler:
		return fn
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not subscribe")
		return nil
	}
}

func (h *bridgeHarness) stop(t *testing.T) error {
	t.Helper()
	h.cancel()
	select {
	case err := <-h.done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not stop")
		return nil
	}
}

func TestNewBridgeValidation(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockMQTTClient(ctrl)

	_, err := NewBridge(BridgeOptions{Config: BridgeConfig{ID: 1}, Serial: newFakeConnector()})
	assert.Error(t, err)

	_, err = NewBridge(BridgeOptions{Config: BridgeConfig{ID: 1}, MQTT: client})
	assert.Error(t, err)

	_, err = NewBridge(BridgeOptions{MQTT: client, Serial: newFakeConnector()})
	assert.Error(t, err)
}

func TestBridgeBusToBroker(t *testing.T) {
	h := newBridgeHarness(t)

	published := make(chan struct{})
	h.mqtt.EXPECT().
		Publish("/asysbus/1001/get/switch", []byte("1"), byte(0), true).
		Do(func(string, []byte, byte, bool) { close(published) }).
		Return(nil)

	h.start(t)
	h.serial.lines <- Encode(Multicast, 0x1001, 0x0005, PortNone, []byte{0x51, 0x01})

	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("switch state was not published")
	}

	require.NoError(t, h.stop(t))
	assert.Equal(t, uint64(1), h.bridge.Relay().Stats().PacketsRouted)

	records := h.journal.snapshot()
	require.Len(t, records, 1)
	assert.Equal(t, DirectionRx, records[0].Direction)
	require.NotNil(t, records[0].Packet)
	assert.Equal(t, uint16(0x1001), records[0].Packet.Target)

	assert.Equal(t, []string{"0005 switch switch  1.0"}, h.telemetry.snapshot())
}

func TestBridgeBrokerToBus(t *testing.T) {
	h := newBridgeHarness(t)

	echoed := make(chan struct{})
	h.mqtt.EXPECT().
		Publish("/asysbus/0fa2/get/level", []byte("77"), byte(0), true).
		Do(func(string, []byte, byte, bool) { close(echoed) }).
		Return(nil)

	handler := h.start(t)
	require.NoError(t, handler("/asysbus/0fa2/set/level", []byte("77")))

	select {
	case frame := <-h.serial.written:
		p, err := Decode(frame)
		require.NoError(t, err)
		assert.Equal(t, Multicast, p.Type)
		assert.Equal(t, uint16(0x0FA2), p.Target)
		assert.Equal(t, uint16(0x0001), p.Source)
		assert.Equal(t, PortNone, p.Port)
		assert.Equal(t, []byte{0x52, 77}, p.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame written to the bus")
	}

	select {
	case <-echoed:
	case <-time.After(2 * time.Second):
		t.Fatal("echo was not published")
	}

	require.NoError(t, h.stop(t))

	require.Eventually(t, func() bool {
		for _, rec := range h.journal.snapshot() {
			if rec.Direction == DirectionTx {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestBridgeRejectsBadControl(t *testing.T) {
	h := newBridgeHarness(t)

	handler := h.start(t)
	require.NoError(t, handler("/asysbus/0fa2/set/level", []byte("loud")))

	require.Eventually(t, func() bool {
		return h.bridge.Relay().Stats().ControlsRejected == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, h.stop(t))
	assert.Empty(t, h.serial.written)
}

func TestBridgeDecodeFailureIsJournaled(t *testing.T) {
	h := newBridgeHarness(t)
	h.start(t)

	h.serial.lines <- []byte("line noise")

	require.Eventually(t, func() bool {
		return len(h.journal.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, h.stop(t))

	rec := h.journal.snapshot()[0]
	assert.Nil(t, rec.Packet)
	assert.ErrorIs(t, rec.Err, ErrDecodeFailure)
	assert.Zero(t, h.bridge.Relay().Inbound.Pushed())
}

// stuckJournal holds every Record until its context expires, like a
// locked SQLite file.
type stuckJournal struct {
	calls atomic.Int32
}

func (j *stuckJournal) Record(ctx context.Context, _ FrameRecord) error {
	j.calls.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func TestBridgeHandleLineDoesNotWaitForJournal(t *testing.T) {
	journal := &stuckJournal{}
	b, err := NewBridge(BridgeOptions{
		Config:  BridgeConfig{ID: 0x0001, Prefix: "/asysbus", QueueSize: 4},
		MQTT:    NewMockMQTTClient(gomock.NewController(t)),
		Serial:  newFakeConnector(),
		Journal: journal,
	})
	require.NoError(t, err)

	frame := Encode(Multicast, 0x1001, 0x0005, PortNone, []byte{0x51, 0x01})
	lines := [][]byte{frame, []byte("line noise"), frame, frame, frame}

	start := time.Now()
	for _, line := range lines {
		b.handleLine(line)
	}
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 100*time.Millisecond, "serial callback waited on the journal")
	assert.Zero(t, journal.calls.Load())
	assert.Equal(t, 4, b.Relay().Inbound.Len())
	assert.Equal(t, 4, b.journalQ.Len())
	assert.Equal(t, uint64(1), b.journalQ.Dropped())
}

func TestBridgeSensorReadingGoesToTelemetryOnly(t *testing.T) {
	h := newBridgeHarness(t)
	h.start(t)

	h.serial.lines <- Encode(Unicast, 0x0100, 0x0010, 1, []byte{0xA0, 0x00, 0xD7})

	require.Eventually(t, func() bool {
		return len(h.telemetry.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, h.stop(t))
	assert.Equal(t, "0010 temperature temperature °C 21.5", h.telemetry.snapshot()[0])
	assert.Equal(t, uint64(1), h.bridge.Relay().Stats().PacketsIgnored)
}

func TestBridgePublishFailureIsCounted(t *testing.T) {
	h := newBridgeHarness(t)
	h.mqtt.EXPECT().
		Publish("/asysbus/0042/lastboot", []byte("1700000000"), byte(0), false).
		Return(errors.New("not connected"))

	h.start(t)
	h.serial.lines <- Encode(Broadcast, 0xFFFF, 0x0042, PortNone, []byte{0x21})

	require.Eventually(t, func() bool {
		return h.bridge.Relay().Stats().PublishFailures == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, h.stop(t))
}

func TestBridgeTransportLossEndsRun(t *testing.T) {
	h := newBridgeHarness(t)
	h.start(t)

	h.serial.fail <- fmt.Errorf("%w: fake: %w", ErrTransportClosed, errors.New("EOF"))

	select {
	case err := <-h.done:
		assert.ErrorIs(t, err, ErrTransportClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not stop on transport loss")
	}
	h.cancel()
}

func TestBridgeSubscribeFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockMQTTClient(ctrl)
	client.EXPECT().Subscribe(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("refused"))

	b, err := NewBridge(BridgeOptions{
		Config: BridgeConfig{ID: 1, Prefix: "/asysbus"},
		MQTT:   client,
		Serial: newFakeConnector(),
	})
	require.NoError(t, err)

	err = b.Run(context.Background())
	assert.ErrorContains(t, err, "refused")
}

func TestBridgeStatus(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockMQTTClient(ctrl)
	client.EXPECT().IsConnected().Return(false)

	b, err := NewBridge(BridgeOptions{
		Config: BridgeConfig{ID: 1, Prefix: "/asysbus"},
		MQTT:   client,
		Serial: newFakeConnector(),
	})
	require.NoError(t, err)

	status := b.Status()
	assert.False(t, status.MQTTConnected)
	assert.True(t, status.Serial.Connected)
	assert.Equal(t, "fake", status.Serial.Port)
}
