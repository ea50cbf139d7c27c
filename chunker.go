package datagram

// Chunker packs a sequence of messages into datagrams no larger than the
// configured maximum size. Messages are framed with a length prefix and
// appended to the current datagram while they fit; a message that does not
// fit closes the current datagram and starts a new one (greedy first-fit).
// A frame is never split across two datagrams.
//
// Chunker is not safe for concurrent use; each goroutine should own its own
// instance. For streaming output use ChunkWriter instead.
type Chunker struct {
	datagrams [][]byte
	current   []byte
	maxSize   int
	pushed    int // messages pushed so far, for error reporting
}

// NewChunker creates a Chunker for the given maximum datagram size.
// Returns ErrInvalidConfig if maxSize cannot hold a single empty frame.
func NewChunker(maxSize int) (*Chunker, error) {
	if err := validateMaxSize(maxSize); err != nil {
		return nil, err
	}
	return &Chunker{
		current: make([]byte, 0, maxSize),
		maxSize: maxSize,
	}, nil
}

// Push adds one message to the chunker, closing the current datagram and
// starting a new one when the message's frame does not fit.
//
// Returns a MessageSizeError (matching ErrMessageTooLarge) if the frame can
// never fit in one datagram. Datagrams completed before the error remain
// available through Finalize, so partial progress is observable.
func (c *Chunker) Push(msg []byte) error {
	if len(msg) > MaxPayload(c.maxSize) {
		return &MessageSizeError{Index: c.pushed, Size: len(msg), Limit: MaxPayload(c.maxSize)}
	}
	c.pushed++

	if len(c.current)+PrefixSize+len(msg) > c.maxSize {
		c.datagrams = append(c.datagrams, c.current)
		c.current = appendFrame(make([]byte, 0, c.maxSize), msg)
	} else {
		c.current = appendFrame(c.current, msg)
	}
	return nil
}

// Finalize closes the trailing datagram, if any, and returns all datagrams in
// order. The chunker must not be used after Finalize. Zero pushed messages
// yield zero datagrams.
func (c *Chunker) Finalize() [][]byte {
	if len(c.current) > 0 {
		c.datagrams = append(c.datagrams, c.current)
		c.current = nil
	}
	return c.datagrams
}

// ChunkWriter is the streaming counterpart of Chunker: every datagram is
// handed to the sink the moment it completes, so producer and transport can
// be interleaved without buffering the whole message sequence.
type ChunkWriter struct {
	sink    func(datagram []byte) error
	current []byte
	maxSize int
	written int
}

// NewChunkWriter creates a ChunkWriter that emits completed datagrams to
// sink. Returns ErrInvalidConfig if maxSize cannot hold a single empty frame.
func NewChunkWriter(maxSize int, sink func(datagram []byte) error) (*ChunkWriter, error) {
	if err := validateMaxSize(maxSize); err != nil {
		return nil, err
	}
	return &ChunkWriter{
		sink:    sink,
		current: make([]byte, 0, maxSize),
		maxSize: maxSize,
	}, nil
}

// Write adds one message, emitting the current datagram to the sink first
// when the message's frame does not fit. Datagrams already emitted stay
// emitted when Write later fails; the sink's error is returned as-is.
func (w *ChunkWriter) Write(msg []byte) error {
	if len(msg) > MaxPayload(w.maxSize) {
		return &MessageSizeError{Index: w.written, Size: len(msg), Limit: MaxPayload(w.maxSize)}
	}

	if len(w.current)+PrefixSize+len(msg) > w.maxSize {
		if err := w.sink(w.current); err != nil {
			return err
		}
		w.current = appendFrame(make([]byte, 0, w.maxSize), msg)
	} else {
		w.current = appendFrame(w.current, msg)
	}
	w.written++
	return nil
}

// Flush emits the trailing partial datagram, if any. Call it once after the
// last Write; the writer is reusable afterwards for a fresh sequence.
func (w *ChunkWriter) Flush() error {
	if len(w.current) == 0 {
		return nil
	}
	if err := w.sink(w.current); err != nil {
		return err
	}
	w.current = make([]byte, 0, w.maxSize)
	return nil
}

// Pack chunks msgs into datagrams of at most maxSize bytes in one call.
// It is shorthand for NewChunker, Push for each message, and Finalize.
// On error, the datagrams completed before the offending message are
// returned along with the error.
func Pack(msgs [][]byte, maxSize int) ([][]byte, error) {
	chunker, err := NewChunker(maxSize)
	if err != nil {
		return nil, err
	}
	for _, msg := range msgs {
		if err = chunker.Push(msg); err != nil {
			return chunker.Finalize(), err
		}
	}
	return chunker.Finalize(), nil
}
