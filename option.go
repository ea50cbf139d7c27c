package datagram

import (
	"golang.org/x/time/rate"
)

// ErrorAction defines the action to take when an error occurs.
type ErrorAction int

const (
	// Disconnect closes the connection when an error occurs.
	Disconnect ErrorAction = iota
	// Continue suppresses the error and continues processing.
	Continue
)

// options holds the configuration for a connection.
type options struct {
	codec  Codec
	logger Logger

	onMessage func(message Message) error
	// onError is called when an error occurs.
	// Returns Disconnect to close the connection, Continue to suppress the error.
	onError func(error) ErrorAction

	bufferSize  int // size of the buffered send channel
	maxSize     int // maximum datagram size, shared by both ends of a session
	sendLimiter *rate.Limiter
}

// Option is a function that configures connection options.
type Option func(*options)

// CustomCodecOption returns an Option that sets the message codec.
// The codec is required and must be provided before creating a connection.
func CustomCodecOption(codec Codec) Option {
	return func(o *options) {
		o.codec = codec
	}
}

// BufferSizeOption returns an Option that sets the size of the send channel
// buffer. A larger buffer allows more messages to be queued before blocking,
// and lets the write loop batch more messages into each datagram.
func BufferSizeOption(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// MaxDatagramSizeOption returns an Option that sets the maximum datagram size
// in bytes. Both ends of a session must agree on this value; it bounds every
// sent datagram and, transitively, the largest single message. The default is
// 1200 bytes, which fits common path MTUs.
func MaxDatagramSizeOption(size int) Option {
	return func(o *options) {
		o.maxSize = size
	}
}

// SendRateOption returns an Option that limits outgoing datagrams to r per
// second with the given burst, using a token bucket. Useful on links that
// drop datagrams when flooded (radio modems, constrained IPC queues).
// Unset means no pacing.
func SendRateOption(r float64, burst int) Option {
	return func(o *options) {
		o.sendLimiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

// OnErrorOption returns an Option that sets the error callback.
// The callback is invoked when a read/write error occurs.
// Return Disconnect to close the connection, or Continue to suppress the error.
func OnErrorOption(cb func(error) ErrorAction) Option {
	return func(o *options) {
		o.onError = cb
	}
}

// OnMessageOption returns an Option that sets the message handler callback.
// This callback is required and is invoked for each received message.
func OnMessageOption(cb func(Message) error) Option {
	return func(o *options) {
		o.onMessage = cb
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
