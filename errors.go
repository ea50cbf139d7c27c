package datagram

import (
	"errors"
	"fmt"
)

// Errors returned by chunking and dechunking operations. The detail types
// below wrap these sentinels, so callers can match with errors.Is and still
// recover index/size diagnostics with errors.As.
var (
	// ErrInvalidConfig is returned when the configured maximum datagram size
	// cannot hold even a single empty frame.
	ErrInvalidConfig = errors.New("max datagram size too small")
	// ErrMessageTooLarge is returned when a message's frame can never fit in
	// one datagram under the configured size.
	ErrMessageTooLarge = errors.New("message too large")
	// ErrOversizedDatagram is returned when a received datagram exceeds the
	// configured maximum size.
	ErrOversizedDatagram = errors.New("datagram exceeds max size")
	// ErrMalformedFrame is returned when a length prefix or payload does not
	// fit within the remaining bytes of its datagram.
	ErrMalformedFrame = errors.New("malformed frame")
)

// MessageSizeError reports a message whose frame cannot fit in any datagram.
// Index is the zero-based position of the message in the input sequence, or
// -1 when the position is not tracked.
type MessageSizeError struct {
	Index int
	Size  int
	Limit int
}

func (e *MessageSizeError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%v: %d bytes, limit %d", ErrMessageTooLarge, e.Size, e.Limit)
	}
	return fmt.Sprintf("message %d: %v: %d bytes, limit %d", e.Index, ErrMessageTooLarge, e.Size, e.Limit)
}

func (e *MessageSizeError) Unwrap() error { return ErrMessageTooLarge }

// DatagramSizeError reports a received datagram larger than the configured
// maximum. Index is the zero-based position of the datagram in the stream.
type DatagramSizeError struct {
	Index int
	Size  int
	Limit int
}

func (e *DatagramSizeError) Error() string {
	return fmt.Sprintf("datagram %d: %v: %d bytes, limit %d", e.Index, ErrOversizedDatagram, e.Size, e.Limit)
}

func (e *DatagramSizeError) Unwrap() error { return ErrOversizedDatagram }

// FrameError reports a frame that cannot be parsed out of its datagram.
// Offset is the byte position within the datagram where parsing failed.
type FrameError struct {
	Index  int // datagram index, -1 when decoding a standalone datagram
	Offset int
}

func (e *FrameError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%v at offset %d", ErrMalformedFrame, e.Offset)
	}
	return fmt.Sprintf("datagram %d: %v at offset %d", e.Index, ErrMalformedFrame, e.Offset)
}

func (e *FrameError) Unwrap() error { return ErrMalformedFrame }

// validateMaxSize rejects configurations that cannot hold a single empty frame.
func validateMaxSize(maxSize int) error {
	if maxSize <= PrefixSize {
		return fmt.Errorf("%w: %d bytes, need more than %d", ErrInvalidConfig, maxSize, PrefixSize)
	}
	return nil
}
