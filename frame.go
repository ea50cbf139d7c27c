// Package datagram packs length-prefixed messages into size-bounded datagrams
// and unpacks them on the receiving side. It targets transports with a hard
// per-datagram size ceiling and no native message framing (UDP sockets, radio
// links, IPC datagram queues).
//
// Each message becomes one frame: a 2-byte big-endian length prefix followed
// by the message body. Frames are packed greedily into datagrams and a frame
// never spans two datagrams, so each received datagram can be decoded on its
// own with no carry-over state.
package datagram

import "encoding/binary"

// PrefixSize is the width of the length prefix in front of each frame's
// payload. Both ends of a session share it implicitly through the wire format.
const PrefixSize = 2

// maxPrefixValue is the largest payload length a 2-byte prefix can express.
const maxPrefixValue = 1<<16 - 1

// MaxPayload returns the largest message body that fits in a single datagram
// of the given maximum size. The 16-bit prefix caps the body at 65535 bytes
// even when maxSize allows more.
func MaxPayload(maxSize int) int {
	n := maxSize - PrefixSize
	if n > maxPrefixValue {
		return maxPrefixValue
	}
	return n
}

// appendFrame appends the frame for body (prefix then payload) to buf.
func appendFrame(buf, body []byte) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(body)))
	return append(buf, body...)
}
