package asb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"github.com/nerrad567/asysbus-bridge/internal/infrastructure/config"
)

// Serial defaults.
const (
	// DefaultBaudRate is the gateway UART speed.
	DefaultBaudRate = 115200

	// defaultReadTimeout lets Run notice cancellation between reads.
	defaultReadTimeout = 500 * time.Millisecond

	// defaultMaxReconnectInterval caps the reopen backoff.
	defaultMaxReconnectInterval = time.Minute

	// reconnectBackoffFactor grows the delay after each failed reopen.
	reconnectBackoffFactor = 1.5
)

// Logger is the structured logger used by the bridge components.
// *logging.Logger and *slog.Logger satisfy it.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Connector is the bus transport seen by the bridge.
type Connector interface {
	// Run reads lines until ctx is done or the transport is lost for good.
	Run(ctx context.Context, onLine func(line []byte)) error

	// Write sends one encoded frame.
	Write(ctx context.Context, frame []byte) error

	IsConnected() bool
	Stats() SerialStats
	Close() error
}

// Ensure SerialConnector implements Connector.
var _ Connector = (*SerialConnector)(nil)

// Port is the part of a serial port the connector uses.
type Port interface {
	io.ReadWriteCloser
}

// Opener opens the configured port.
type Opener func(cfg SerialConfig) (Port, error)

// SerialConfig holds serial transport settings.
type SerialConfig struct {
	// Port is the device path, e.g. /dev/ttyUSB0.
	Port string

	// BaudRate defaults to 115200. The line is always 8N1.
	BaudRate int

	// ReadTimeout bounds a single read. Default: 500ms.
	ReadTimeout time.Duration

	// ReconnectInterval is the first reopen delay after the port is lost.
	// Zero disables reconnecting: losing the port ends Run with
	// ErrTransportClosed.
	ReconnectInterval time.Duration

	// MaxReconnectInterval caps the backoff. Default: 1 minute.
	MaxReconnectInterval time.Duration

	// MaxPending caps an unterminated line. Default: DefaultMaxPending.
	MaxPending int
}

// SerialConfigFrom converts the serial section of the bridge configuration.
func SerialConfigFrom(cfg config.SerialConfig) SerialConfig {
	return SerialConfig{
		Port:                 cfg.Port,
		BaudRate:             cfg.BaudRate,
		ReadTimeout:          time.Duration(cfg.ReadTimeout) * time.Millisecond,
		ReconnectInterval:    time.Duration(cfg.ReconnectInterval) * time.Second,
		MaxReconnectInterval: time.Duration(cfg.MaxReconnectInterval) * time.Second,
	}
}

// SerialStats holds transport statistics.
type SerialStats struct {
	Port         string    `json:"port"`
	Connected    bool      `json:"connected"`
	LinesRx      uint64    `json:"lines_rx"`
	FramesTx     uint64    `json:"frames_tx"`
	BytesRx      uint64    `json:"bytes_rx"`
	Discarded    uint64    `json:"discarded_fragments"`
	ErrorsTotal  uint64    `json:"errors_total"`
	Reconnects   uint64    `json:"reconnects_total"`
	LastActivity time.Time `json:"last_activity"`
}

// OpenSerialPort opens a UART with go.bug.st/serial at 8N1.
func OpenSerialPort(cfg SerialConfig) (Port, error) {
	port, err := serial.Open(cfg.Port, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Port, err)
	}
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", cfg.Port, err)
	}
	return port, nil
}

// ListSerialPorts returns the serial devices present on the system.
func ListSerialPorts() ([]string, error) {
	return serial.GetPortsList()
}

// SerialConnector reads and writes frames on the gateway UART.
//
// Thread Safety:
//   - Run must be called from one goroutine at a time.
//   - Write, Stats, IsConnected and Close are safe for concurrent use.
//
// Reconnection:
//   - With ReconnectInterval > 0 a lost port is reopened with a backoff
//     growing by 1.5 up to MaxReconnectInterval, until ctx is done.
type SerialConnector struct {
	cfg  SerialConfig
	open Opener

	port   Port
	portMu sync.RWMutex

	// writeMu serialises frames so two writers never interleave bytes.
	writeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex

	linesRx      atomic.Uint64
	framesTx     atomic.Uint64
	bytesRx      atomic.Uint64
	discarded    atomic.Uint64
	errorsTotal  atomic.Uint64
	reconnects   atomic.Uint64
	lastActivity atomic.Int64
}

// NewSerialConnector creates a connector. A nil open uses OpenSerialPort.
// The port is opened by Open or lazily by Run.
func NewSerialConnector(cfg SerialConfig, open Opener) *SerialConnector {
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.MaxReconnectInterval <= 0 {
		cfg.MaxReconnectInterval = defaultMaxReconnectInterval
	}
	if open == nil {
		open = OpenSerialPort
	}
	return &SerialConnector{
		cfg:  cfg,
		open: open,
		done: make(chan struct{}),
	}
}

// SetLogger sets the logger for connection events.
func (c *SerialConnector) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// Open opens the port if it is not open yet.
func (c *SerialConnector) Open() error {
	if c.isClosed() {
		return ErrNotConnected
	}

	c.portMu.Lock()
	defer c.portMu.Unlock()
	if c.port != nil {
		return nil
	}

	port, err := c.open(c.cfg)
	if err != nil {
		c.errorsTotal.Add(1)
		return err
	}
	c.port = port
	c.lastActivity.Store(time.Now().Unix())
	c.logInfo("serial port opened", "port", c.cfg.Port, "baud", c.cfg.BaudRate)
	return nil
}

// Run reads the port line by line and calls onLine for every non-empty
// line with surrounding whitespace removed.
//
// It returns nil when ctx is cancelled or Close is called, and an error
// wrapping ErrTransportClosed when the port is lost and reconnecting is
// disabled.
func (c *SerialConnector) Run(ctx context.Context, onLine func(line []byte)) error {
	if err := c.Open(); err != nil {
		return fmt.Errorf("%w: %w", ErrTransportClosed, err)
	}

	// Closing the port unblocks a pending Read on cancellation.
	stop := context.AfterFunc(ctx, c.closePort)
	defer stop()

	lr := NewLineReader(c.cfg.MaxPending)
	deliver := func(line []byte) {
		c.linesRx.Add(1)
		c.lastActivity.Store(time.Now().Unix())
		onLine(line)
	}

	for {
		port := c.currentPort()
		var err error
		if port == nil {
			err = ErrNotConnected
		} else {
			err = ReadLines(ctx, &countingReader{r: port, n: &c.bytesRx}, lr, deliver)
		}
		c.discarded.Store(lr.Discarded())

		if ctx.Err() != nil || c.isClosed() {
			return nil
		}

		if err == nil {
			err = io.EOF
		}
		c.errorsTotal.Add(1)
		c.closePort()
		lr.Reset()

		if c.cfg.ReconnectInterval <= 0 {
			return fmt.Errorf("%w: %s: %w", ErrTransportClosed, c.cfg.Port, err)
		}
		c.logWarn("serial port lost, reconnecting", "port", c.cfg.Port, "error", err)

		if !c.reconnect(ctx) {
			return nil
		}
	}
}

// reconnect reopens the port with backoff. It returns false once ctx is
// done or the connector is closed.
func (c *SerialConnector) reconnect(ctx context.Context) bool {
	backoff := c.cfg.ReconnectInterval
	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return false
		case <-c.done:
			return false
		case <-time.After(backoff):
		}

		if err := c.Open(); err != nil {
			c.logWarn("serial reopen failed", "port", c.cfg.Port, "attempt", attempt, "backoff", backoff.String(), "error", err)
			backoff = time.Duration(float64(backoff) * reconnectBackoffFactor)
			if backoff > c.cfg.MaxReconnectInterval {
				backoff = c.cfg.MaxReconnectInterval
			}
			continue
		}

		c.reconnects.Add(1)
		c.logInfo("serial port reconnected", "port", c.cfg.Port, "attempts", attempt)
		return true
	}
}

// Write sends frame to the port.
func (c *SerialConnector) Write(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	port := c.currentPort()
	if port == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := port.Write(frame); err != nil {
		c.errorsTotal.Add(1)
		return fmt.Errorf("serial write: %w", err)
	}
	c.framesTx.Add(1)
	c.lastActivity.Store(time.Now().Unix())
	return nil
}

// IsConnected reports whether the port is open.
func (c *SerialConnector) IsConnected() bool {
	return c.currentPort() != nil
}

// Stats returns current transport statistics.
func (c *SerialConnector) Stats() SerialStats {
	return SerialStats{
		Port:         c.cfg.Port,
		Connected:    c.IsConnected(),
		LinesRx:      c.linesRx.Load(),
		FramesTx:     c.framesTx.Load(),
		BytesRx:      c.bytesRx.Load(),
		Discarded:    c.discarded.Load(),
		ErrorsTotal:  c.errorsTotal.Load(),
		Reconnects:   c.reconnects.Load(),
		LastActivity: time.Unix(c.lastActivity.Load(), 0),
	}
}

// Close closes the port and stops Run. Safe to call multiple times.
func (c *SerialConnector) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	c.closePort()
	return nil
}

func (c *SerialConnector) currentPort() Port {
	c.portMu.RLock()
	defer c.portMu.RUnlock()
	return c.port
}

func (c *SerialConnector) closePort() {
	c.portMu.Lock()
	port := c.port
	c.port = nil
	c.portMu.Unlock()

	if port != nil {
		if err := port.Close(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			c.logWarn("closing serial port", "port", c.cfg.Port, "error", err)
		}
	}
}

func (c *SerialConnector) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *SerialConnector) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *SerialConnector) logInfo(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (c *SerialConnector) logWarn(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// countingReader counts bytes read from the port.
type countingReader struct {
	r io.Reader
	n *atomic.Uint64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n.Add(uint64(n)) //nolint:gosec // n is never negative
	return n, err
}
