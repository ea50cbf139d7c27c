package datagram

import (
	"bytes"
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Handler is the interface for handling messages received by a Server.
// Handle is called once per reconstructed message, with the peer address the
// enclosing datagram came from. Implementations must not retain the message
// past the call.
type Handler interface {
	Handle(addr *net.UDPAddr, message Message)
}

// Server receives datagrams on an unconnected UDP socket, unpacks the
// messages inside each one, and dispatches them to a handler. Replies are
// packed back into datagrams with WriteTo.
type Server struct {
	conn      *net.UDPConn
	dechunker *Dechunker
	codec     Codec
	logger    Logger

	maxSize         int
	shutdownTimeout time.Duration

	writeMu sync.Mutex // serializes WriteTo packing

	mu          sync.Mutex
	shutdown    bool
	shutdownNow chan struct{} // signals immediate shutdown, bypassing timeout
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// ServerLoggerOption sets the logger for the server.
func ServerLoggerOption(logger Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// ServerCodecOption sets the message codec for the server.
// The codec is required.
func ServerCodecOption(codec Codec) ServerOption {
	return func(s *Server) {
		s.codec = codec
	}
}

// ServerMaxDatagramSizeOption sets the maximum datagram size. It must match
// the value used by the peers' connections. Default is 1200 bytes.
func ServerMaxDatagramSizeOption(size int) ServerOption {
	return func(s *Server) {
		s.maxSize = size
	}
}

// ServerShutdownTimeoutOption sets the graceful shutdown timeout.
// When the context is canceled, the server will wait up to this duration
// before closing the socket, giving in-flight handlers time to reply.
// Default is 0 (immediate shutdown). Call Close() to bypass the timeout.
func ServerShutdownTimeoutOption(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.shutdownTimeout = timeout
	}
}

// New creates a new datagram server bound to the specified UDP address.
// Returns an error if the address cannot be bound, no codec is provided, or
// the datagram size is invalid.
func New(addr *net.UDPAddr, opts ...ServerOption) (*Server, error) {
	conn, err := net.ListenUDP(addr.Network(), addr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		conn:        conn,
		logger:      slog.Default(),
		maxSize:     defaultMaxDatagramSize,
		shutdownNow: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.codec == nil {
		conn.Close()
		return nil, ErrInvalidCodec
	}
	if err := validateMaxSize(s.maxSize); err != nil {
		conn.Close()
		return nil, err
	}

	s.dechunker, _ = NewDechunker(s.maxSize)
	return s, nil
}

// Serve starts receiving datagrams and dispatching their messages to the
// handler. It blocks until the context is canceled or an unrecoverable error
// occurs. Malformed datagrams from a peer are logged and skipped rather than
// stopping the server; messages unpacked before the bad frame are still
// dispatched.
func (s *Server) Serve(ctx context.Context, handler Handler) error {
	s.logger.Info("server started", "addr", s.conn.LocalAddr())

	// Handle context cancellation: optionally wait out the grace period,
	// then unblock the pending read with an expired deadline.
	go func() {
		<-ctx.Done()

		if s.shutdownTimeout > 0 {
			s.logger.Info("graceful shutdown initiated", "timeout", s.shutdownTimeout)
			select {
			case <-time.After(s.shutdownTimeout):
				// Timeout expired, proceed with shutdown
			case <-s.shutdownNow:
				// Close() was called, skip remaining timeout
				s.logger.Debug("shutdown timeout bypassed via Close()")
			}
		}

		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		_ = s.conn.SetReadDeadline(time.Now())
	}()

	// One spare byte past the maximum so oversized datagrams are observable
	// instead of being silently truncated by the socket.
	buf := make([]byte, s.maxSize+1)

	for {
		n, peer, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			s.mu.Lock()
			isShutdown := s.shutdown
			s.mu.Unlock()

			if isShutdown {
				s.logger.Info("server stopped", "addr", s.conn.LocalAddr())
				return ctx.Err()
			}

			var netErr net.Error
			if stderrors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.logger.Error("read error", "error", err)
			return errors.Wrap(err, "read datagram")
		}

		s.dispatch(handler, peer, buf[:n])
	}
}

// dispatch unpacks one datagram and hands each message to the handler.
func (s *Server) dispatch(handler Handler, peer *net.UDPAddr, buf []byte) {
	bodies, err := s.dechunker.Push(buf)

	for _, body := range bodies {
		message, derr := s.codec.Decode(bytes.NewReader(body))
		if derr != nil {
			s.logger.Warn("decode error", "peer", peer, "error", derr)
			continue
		}
		handler.Handle(peer, message)
	}

	if err != nil {
		s.logger.Warn("bad datagram", "peer", peer, "error", err)
	}
}

// WriteTo encodes the given messages, packs them into as few datagrams as
// possible, and sends them to the peer. Messages that cannot fit in one
// datagram fail with ErrMessageTooLarge before anything is sent.
func (s *Server) WriteTo(addr *net.UDPAddr, messages ...Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	chunker, err := NewChunker(s.maxSize)
	if err != nil {
		return err
	}
	for _, message := range messages {
		body, err := s.codec.Encode(message)
		if err != nil {
			return err
		}
		if err = chunker.Push(body); err != nil {
			return err
		}
	}

	for _, dgram := range chunker.Finalize() {
		if _, err := s.conn.WriteToUDP(dgram, addr); err != nil {
			return errors.Wrapf(err, "send datagram to %s", addr)
		}
	}
	return nil
}

// Close stops the server by closing the underlying socket.
// If a shutdown timeout is configured, Close() bypasses the remaining timeout.
// Any blocked read calls will return with an error.
func (s *Server) Close() error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	// Signal to bypass any pending shutdown timeout
	select {
	case s.shutdownNow <- struct{}{}:
	default:
		// Channel already has a signal or no one is listening
	}

	return s.conn.Close()
}

// Addr returns the server's local network address.
func (s *Server) Addr() net.Addr {
	return s.conn.LocalAddr()
}
