package asb

import (
	"errors"
	"fmt"
)

// Domain errors for the aSysBus bridge package.
var (
	// ErrDecodeFailure is returned when a line does not contain a valid frame.
	ErrDecodeFailure = errors.New("asb: decode failure")

	// ErrInvalidPacket is returned by Packet.Valid for out-of-range fields.
	ErrInvalidPacket = errors.New("asb: invalid packet")

	// ErrInvalidTopic is returned when a control topic does not match
	// <prefix>/<addr>/set/<switch|level>.
	ErrInvalidTopic = errors.New("asb: invalid control topic")

	// ErrInvalidPayload is returned when a control payload is not an
	// integer in the range 0-255.
	ErrInvalidPayload = errors.New("asb: invalid control payload")

	// ErrNotConnected is returned when writing to a closed serial port.
	ErrNotConnected = errors.New("asb: serial port not connected")

	// ErrTransportClosed is returned when the serial transport is lost
	// and reconnecting is disabled.
	ErrTransportClosed = errors.New("asb: serial transport closed")

	// ErrQueueClosed is returned by Pop after Close once the queue is drained.
	ErrQueueClosed = errors.New("asb: queue closed")
)

// DecodeError describes where and why a frame failed to decode.
type DecodeError struct {
	// Line is the input as handed to Decode.
	Line string

	// Offset is the byte offset at which scanning gave up.
	Offset int

	// Reason is a short description of the failure.
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s at offset %d: %s", ErrDecodeFailure, e.Offset, e.Reason)
}

// Unwrap allows errors.Is(err, ErrDecodeFailure).
func (e *DecodeError) Unwrap() error {
	return ErrDecodeFailure
}
