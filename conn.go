package datagram

import (
	"bytes"
	"context"
	stderrors "errors"
	"net"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Errors returned by connection operations.
var (
	// ErrInvalidCodec is returned when no codec is provided.
	ErrInvalidCodec = stderrors.New("invalid codec callback")
	// ErrInvalidOnMessage is returned when no message handler is provided.
	ErrInvalidOnMessage = stderrors.New("invalid on message callback")
	// ErrConnectionClosed is returned when operating on a closed connection.
	ErrConnectionClosed = stderrors.New("connection closed")
)

// ErrBufferFull is returned when the send buffer is full and cannot accept
// more messages. This indicates backpressure - the write loop is not draining
// messages fast enough (often because of a send rate limit). Use WriteBlocking
// to wait for buffer space instead of dropping.
var ErrBufferFull = stderrors.New("send buffer full")

// Default configuration values.
const (
	// defaultBufferSize is the default size of the send channel buffer.
	defaultBufferSize = 1
	// defaultMaxDatagramSize is the default maximum datagram size. 1200 bytes
	// fits common path MTUs without fragmentation.
	defaultMaxDatagramSize = 1200
	// readPollInterval bounds how long a blocked read can delay noticing a
	// canceled context.
	readPollInterval = time.Second
)

// Conn represents one end of a datagram session over a connected UDP socket.
// Outgoing messages are encoded with the configured codec, batched into
// datagrams by a chunker, and sent by the write loop; incoming datagrams are
// dechunked and each reconstructed message is decoded and handed to the
// message handler.
type Conn struct {
	rawConn   *net.UDPConn
	dechunker *Dechunker
	logger    Logger

	opts options

	sendMsg chan []byte
	closed  atomic.Bool
	cancel  context.CancelFunc
}

// NewConn creates a connection wrapper around the given connected UDP socket.
// It applies the provided options and validates them before returning.
// Returns an error if required options (codec, onMessage) are missing or the
// datagram size is invalid.
func NewConn(conn *net.UDPConn, opt ...Option) (*Conn, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}

	err := checkOptions(&opts)
	if err != nil {
		return nil, err
	}

	return newConnWithOptions(conn, opts), nil
}

// checkOptions validates and sets default values for connection options.
func checkOptions(opts *options) error {
	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferSize
	}

	if opts.maxSize <= 0 {
		opts.maxSize = defaultMaxDatagramSize
	}

	if err := validateMaxSize(opts.maxSize); err != nil {
		return err
	}

	if opts.onMessage == nil {
		return ErrInvalidOnMessage
	}

	if opts.codec == nil {
		return ErrInvalidCodec
	}

	if opts.onError == nil {
		opts.onError = func(err error) ErrorAction { return Disconnect }
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	return nil
}

// newConnWithOptions creates a new Conn with the given options.
// opts must already be validated, so the dechunker cannot fail.
func newConnWithOptions(c *net.UDPConn, opts options) *Conn {
	dechunker, _ := NewDechunker(opts.maxSize)
	return &Conn{
		rawConn:   c,
		dechunker: dechunker,
		logger:    opts.logger,
		opts:      opts,
		sendMsg:   make(chan []byte, opts.bufferSize),
	}
}

// Run starts the connection's read and write loops.
// It creates two goroutines for concurrent reading and writing,
// and blocks until an error occurs or the context is canceled.
// The connection is automatically closed when Run returns.
func (c *Conn) Run(ctx context.Context) error {
	c.logger.Info("session established", "addr", c.Addr())
	c.logger.Debug("session options", "addr", c.Addr(),
		"buffer_size", c.opts.bufferSize,
		"max_datagram_size", c.opts.maxSize)

	ctx, c.cancel = context.WithCancel(ctx)
	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		return c.readLoop(child)
	})

	group.Go(func() error {
		return c.writeLoop(child)
	})

	err := group.Wait()
	c.closeConn()

	if err != nil && !stderrors.Is(err, context.Canceled) {
		c.logger.Info("session closed with error", "addr", c.Addr(), "error", err)
	} else {
		c.logger.Info("session closed", "addr", c.Addr())
	}

	return err
}

// Close gracefully closes the connection.
// It cancels the context and closes the underlying socket.
// Safe to call multiple times.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil // already closed
	}
	if c.cancel != nil {
		c.cancel()
	}
	return c.rawConn.Close()
}

// IsClosed returns true if the connection has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// Write sends a message through the connection without blocking
// (fire-and-forget). The message is encoded using the configured codec and
// queued for the write loop, which packs queued messages into datagrams.
//
// Returns:
//   - nil: message was successfully queued (not yet sent)
//   - ErrBufferFull: send buffer is full, message was NOT queued
//   - ErrMessageTooLarge: the message can never fit in one datagram
//   - ErrConnectionClosed: connection is closed
//   - encoding error: if codec.Encode fails
func (c *Conn) Write(message Message) error {
	body, err := c.encode(message)
	if err != nil {
		return err
	}

	select {
	case c.sendMsg <- body:
		return nil
	default:
		return ErrBufferFull
	}
}

// WriteBlocking sends a message through the connection, blocking until the
// message is queued or the context is canceled. This is the safest write
// method when the send rate is limited and the buffer may stay full.
func (c *Conn) WriteBlocking(ctx context.Context, message Message) error {
	body, err := c.encode(message)
	if err != nil {
		return err
	}

	select {
	case c.sendMsg <- body:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// encode turns a message into its wire body and rejects messages that could
// never fit in one datagram, so the caller learns immediately instead of the
// write loop failing later.
func (c *Conn) encode(message Message) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrConnectionClosed
	}

	body, err := c.opts.codec.Encode(message)
	if err != nil {
		return nil, err
	}
	if len(body) > MaxPayload(c.opts.maxSize) {
		return nil, &MessageSizeError{Index: -1, Size: len(body), Limit: MaxPayload(c.opts.maxSize)}
	}
	return body, nil
}

// Addr returns the remote address of the connection.
func (c *Conn) Addr() net.Addr {
	return c.rawConn.RemoteAddr()
}

// readLoop receives datagrams and dispatches the messages packed inside them.
// Each read returns exactly one datagram; the scanner-based dechunker splits
// it back into messages, which are decoded and handed to the message handler.
// Returns when the context is canceled or an unrecoverable error occurs.
func (c *Conn) readLoop(ctx context.Context) error {
	// One spare byte past the maximum: a UDP read silently truncates excess,
	// so an oversized datagram is only observable by reading beyond the limit.
	buf := make([]byte, c.opts.maxSize+1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			_ = c.rawConn.SetReadDeadline(time.Now().Add(readPollInterval))

			n, err := c.rawConn.Read(buf)
			if err != nil {
				var netErr net.Error
				if stderrors.As(err, &netErr) && netErr.Timeout() {
					continue // poll tick, check ctx again
				}
				c.logger.Debug("read error", "addr", c.Addr(), "error", err)
				if c.opts.onError(errors.Wrap(err, "read datagram")) == Disconnect {
					return err
				}
				continue
			}

			if err = c.dispatch(buf[:n]); err != nil {
				return err
			}
		}
	}
}

// dispatch dechunks one received datagram and feeds each message to the
// handler. Malformed or oversized datagrams go through the onError policy;
// messages decoded before a bad frame are still delivered.
func (c *Conn) dispatch(buf []byte) error {
	bodies, err := c.dechunker.Push(buf)

	for _, body := range bodies {
		message, derr := c.opts.codec.Decode(bytes.NewReader(body))
		if derr != nil {
			c.logger.Debug("decode error", "addr", c.Addr(), "error", derr)
			if c.opts.onError(derr) == Disconnect {
				return derr
			}
			continue
		}
		if herr := c.opts.onMessage(message); herr != nil {
			return herr
		}
	}

	if err != nil {
		c.logger.Debug("dechunk error", "addr", c.Addr(), "error", err)
		if c.opts.onError(err) == Disconnect {
			return err
		}
	}
	return nil
}

// writeLoop drains the send channel and packs queued messages into datagrams.
// Returns when the context is canceled or an unrecoverable error occurs.
func (c *Conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case body := <-c.sendMsg:
			if err := c.sendBatch(ctx, body); err != nil {
				return err
			}
		}
	}
}

// sendBatch packs the given message plus everything else currently queued
// into as few datagrams as possible and sends them. Completed datagrams are
// sent as soon as they fill, so a long queue does not delay the first one.
func (c *Conn) sendBatch(ctx context.Context, body []byte) error {
	writer, err := NewChunkWriter(c.opts.maxSize, func(datagram []byte) error {
		return c.send(ctx, datagram)
	})
	if err != nil {
		return err
	}

	for {
		if err = writer.Write(body); err != nil {
			c.logger.Debug("write error", "addr", c.Addr(), "error", err)
			if c.opts.onError(err) == Disconnect {
				return err
			}
		}

		select {
		case body = <-c.sendMsg:
		default:
			return writer.Flush()
		}
	}
}

// send transmits one datagram, honoring the configured send rate limit.
func (c *Conn) send(ctx context.Context, datagram []byte) error {
	if c.opts.sendLimiter != nil {
		if err := c.opts.sendLimiter.Wait(ctx); err != nil {
			return err
		}
	}

	if _, err := c.rawConn.Write(datagram); err != nil {
		return errors.Wrap(err, "send datagram")
	}
	return nil
}

// closeConn marks the connection as closed and closes the underlying socket.
func (c *Conn) closeConn() {
	c.closed.Store(true)
	c.rawConn.Close()
}
