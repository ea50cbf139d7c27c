package datagram

import (
	"encoding/binary"
	"errors"
)

// Scanner iterates over the length-prefixed frames of a single datagram, in
// the style of bufio.Scanner:
//
//	s := datagram.NewScanner(buf)
//	for s.Next() {
//		handle(s.Message())
//	}
//	if err := s.Err(); err != nil { ... }
//
// Because the wire format never splits a frame across datagrams, one Scanner
// per datagram reconstructs every message with no carry-over state. A frame
// that runs past the end of the datagram stops the scan with a FrameError;
// there is no resynchronization, the remaining bytes are undecodable.
type Scanner struct {
	buf []byte
	off int
	msg []byte
	err error
}

// NewScanner returns a Scanner over one datagram's bytes. The Scanner reads
// from buf without copying; the caller must not modify buf during the scan.
func NewScanner(buf []byte) *Scanner {
	return &Scanner{buf: buf}
}

// Next advances to the next frame. It returns false when the datagram is
// exhausted or a frame is malformed; Err tells the two cases apart.
func (s *Scanner) Next() bool {
	if s.err != nil || s.off == len(s.buf) {
		return false
	}
	if len(s.buf)-s.off < PrefixSize {
		s.err = &FrameError{Index: -1, Offset: s.off}
		return false
	}
	n := int(binary.BigEndian.Uint16(s.buf[s.off:]))
	if s.off+PrefixSize+n > len(s.buf) {
		s.err = &FrameError{Index: -1, Offset: s.off}
		return false
	}
	s.msg = s.buf[s.off+PrefixSize : s.off+PrefixSize+n]
	s.off += PrefixSize + n
	return true
}

// Message returns the payload of the current frame. The slice aliases the
// scanned datagram; copy it if it must outlive the buffer.
func (s *Scanner) Message() []byte {
	return s.msg
}

// Err returns the first malformed-frame error encountered, or nil if the
// scan stopped at the datagram's end on a frame boundary.
func (s *Scanner) Err() error {
	return s.err
}

// Dechunker reconstructs messages from a stream of received datagrams. It is
// the receiving counterpart of Chunker and must be configured with the same
// maximum datagram size as the sending side.
//
// Frame parsing is stateless across datagrams; the Dechunker only counts
// datagrams so that errors can name the offending one.
type Dechunker struct {
	maxSize  int
	received int
}

// NewDechunker creates a Dechunker for the given maximum datagram size.
// Returns ErrInvalidConfig if maxSize cannot hold a single empty frame.
func NewDechunker(maxSize int) (*Dechunker, error) {
	if err := validateMaxSize(maxSize); err != nil {
		return nil, err
	}
	return &Dechunker{maxSize: maxSize}, nil
}

// Push decodes one received datagram and returns its messages in order. An
// empty datagram yields zero messages.
//
// A datagram larger than the configured maximum returns a DatagramSizeError
// (matching ErrOversizedDatagram); a truncated prefix or payload returns a
// FrameError (matching ErrMalformedFrame) along with the messages decoded
// before the bad frame. Messages returned alias the datagram's bytes.
func (d *Dechunker) Push(buf []byte) ([][]byte, error) {
	index := d.received
	d.received++

	if len(buf) > d.maxSize {
		return nil, &DatagramSizeError{Index: index, Size: len(buf), Limit: d.maxSize}
	}

	var msgs [][]byte
	s := NewScanner(buf)
	for s.Next() {
		msgs = append(msgs, s.Message())
	}
	if err := s.Err(); err != nil {
		var ferr *FrameError
		if errors.As(err, &ferr) {
			ferr.Index = index
		}
		return msgs, err
	}
	return msgs, nil
}

// Unpack decodes datagrams back into the original message sequence in one
// call. It is shorthand for NewDechunker and Push for each datagram. On
// error, the messages reconstructed before the offending datagram are
// returned along with the error.
func Unpack(datagrams [][]byte, maxSize int) ([][]byte, error) {
	dechunker, err := NewDechunker(maxSize)
	if err != nil {
		return nil, err
	}
	var all [][]byte
	for _, buf := range datagrams {
		msgs, err := dechunker.Push(buf)
		all = append(all, msgs...)
		if err != nil {
			return all, err
		}
	}
	return all, nil
}
