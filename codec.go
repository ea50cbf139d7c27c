package datagram

import (
	"bytes"
	"io"
)

// Message is the interface for messages carried inside datagrams.
// Implementations should provide the message length and body.
type Message interface {
	// Length returns the length of the message body.
	Length() int
	// Body returns the raw message data.
	Body() []byte
}

// Codec is the interface for message encoding and decoding. Applications
// implement it to define their own message serialization format (e.g., JSON,
// Protocol Buffers, etc.); the chunking layer treats the encoded bytes as
// opaque.
//
// Unlike a stream codec, Decode never has to solve framing: the dechunker
// hands it a reader over exactly one message's bytes.
type Codec interface {
	// Decode reads one complete message from the reader. The reader holds
	// exactly the bytes of a single reconstructed message.
	Decode(r io.Reader) (Message, error)
	// Encode encodes a Message into raw bytes for transmission.
	Encode(Message) ([]byte, error)
}

// PackMessages encodes msgs with the codec and chunks them into datagrams of
// at most maxSize bytes. Datagrams completed before an encoding or size error
// are returned along with the error.
func PackMessages(c Codec, msgs []Message, maxSize int) ([][]byte, error) {
	chunker, err := NewChunker(maxSize)
	if err != nil {
		return nil, err
	}
	for _, msg := range msgs {
		body, err := c.Encode(msg)
		if err != nil {
			return chunker.Finalize(), err
		}
		if err = chunker.Push(body); err != nil {
			return chunker.Finalize(), err
		}
	}
	return chunker.Finalize(), nil
}

// UnpackDatagrams decodes received datagrams back into messages, in order.
// Messages reconstructed before a decoding error are returned along with the
// error.
func UnpackDatagrams(c Codec, datagrams [][]byte, maxSize int) ([]Message, error) {
	dechunker, err := NewDechunker(maxSize)
	if err != nil {
		return nil, err
	}
	var all []Message
	for _, buf := range datagrams {
		bodies, err := dechunker.Push(buf)
		for _, body := range bodies {
			msg, derr := c.Decode(bytes.NewReader(body))
			if derr != nil {
				return all, derr
			}
			all = append(all, msg)
		}
		if err != nil {
			return all, err
		}
	}
	return all, nil
}
