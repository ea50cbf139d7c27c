package datagram

import (
	"bytes"
	"errors"
	"testing"
)

func TestNewDechunker_InvalidConfig(t *testing.T) {
	for _, size := range []int{-1, 0, PrefixSize} {
		_, err := NewDechunker(size)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("NewDechunker(%d) error = %v, want ErrInvalidConfig", size, err)
		}
	}
}

func TestScanner_MultipleFrames(t *testing.T) {
	buf := []byte{0, 2, 'A', 'B', 0, 3, 'C', 'D', 'E', 0, 0, 0, 1, 'F'}

	var msgs []string
	s := NewScanner(buf)
	for s.Next() {
		msgs = append(msgs, string(s.Message()))
	}
	if err := s.Err(); err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	want := []string{"AB", "CDE", "", "F"}
	if len(msgs) != len(want) {
		t.Fatalf("got %d messages, want %d", len(msgs), len(want))
	}
	for i := range want {
		if msgs[i] != want[i] {
			t.Errorf("message %d = %q, want %q", i, msgs[i], want[i])
		}
	}
}

func TestScanner_EmptyDatagram(t *testing.T) {
	s := NewScanner(nil)
	if s.Next() {
		t.Error("Next returned true for empty datagram")
	}
	if err := s.Err(); err != nil {
		t.Errorf("Err = %v, want nil", err)
	}
}

func TestScanner_TruncatedPayload(t *testing.T) {
	// Prefix claims 10 payload bytes but only 3 remain.
	buf := []byte{0, 10, 'X', 'Y', 'Z'}

	s := NewScanner(buf)
	if s.Next() {
		t.Fatal("Next returned true for truncated frame")
	}

	err := s.Err()
	if !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("Err = %v, want ErrMalformedFrame", err)
	}
	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("error %v is not a FrameError", err)
	}
	if frameErr.Offset != 0 {
		t.Errorf("Offset = %d, want 0", frameErr.Offset)
	}
}

func TestScanner_TruncatedPrefix(t *testing.T) {
	// One good frame, then a single trailing byte where a prefix should be.
	buf := []byte{0, 1, 'A', 0x7}

	s := NewScanner(buf)
	if !s.Next() {
		t.Fatalf("first frame not scanned: %v", s.Err())
	}
	if s.Next() {
		t.Fatal("Next returned true for truncated prefix")
	}

	var frameErr *FrameError
	if !errors.As(s.Err(), &frameErr) {
		t.Fatalf("Err = %v, want FrameError", s.Err())
	}
	if frameErr.Offset != 3 {
		t.Errorf("Offset = %d, want 3", frameErr.Offset)
	}
}

func TestScanner_StopsAfterError(t *testing.T) {
	s := NewScanner([]byte{0, 10, 'X'})
	for i := 0; i < 3; i++ {
		if s.Next() {
			t.Fatal("Next returned true after error")
		}
	}
	if s.Err() == nil {
		t.Error("Err = nil after failed scan")
	}
}

func TestDechunker_OversizedDatagram(t *testing.T) {
	dechunker, err := NewDechunker(10)
	if err != nil {
		t.Fatalf("NewDechunker failed: %v", err)
	}

	// 10 zero bytes parse as five empty frames; exactly at the limit is fine.
	if _, err := dechunker.Push(make([]byte, 10)); err != nil {
		t.Fatalf("Push at limit failed: %v", err)
	}

	_, err = dechunker.Push(make([]byte, 11))
	if !errors.Is(err, ErrOversizedDatagram) {
		t.Fatalf("Push error = %v, want ErrOversizedDatagram", err)
	}

	var sizeErr *DatagramSizeError
	if !errors.As(err, &sizeErr) {
		t.Fatalf("error %v is not a DatagramSizeError", err)
	}
	if sizeErr.Index != 1 {
		t.Errorf("Index = %d, want 1", sizeErr.Index)
	}
	if sizeErr.Size != 11 {
		t.Errorf("Size = %d, want 11", sizeErr.Size)
	}
}

func TestDechunker_FrameErrorNamesDatagram(t *testing.T) {
	dechunker, err := NewDechunker(16)
	if err != nil {
		t.Fatalf("NewDechunker failed: %v", err)
	}

	if _, err := dechunker.Push([]byte{0, 1, 'A'}); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	_, err = dechunker.Push([]byte{0, 9, 'B'})
	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("Push error = %v, want FrameError", err)
	}
	if frameErr.Index != 1 {
		t.Errorf("Index = %d, want 1", frameErr.Index)
	}
}

func TestDechunker_PartialProgressOnBadFrame(t *testing.T) {
	dechunker, err := NewDechunker(16)
	if err != nil {
		t.Fatalf("NewDechunker failed: %v", err)
	}

	// A complete frame followed by a truncated one: the good message is
	// still delivered alongside the error.
	msgs, err := dechunker.Push([]byte{0, 2, 'O', 'K', 0, 9, 'X'})
	if !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("Push error = %v, want ErrMalformedFrame", err)
	}
	if len(msgs) != 1 || string(msgs[0]) != "OK" {
		t.Errorf("messages = %q, want [OK]", msgs)
	}
}

func TestUnpack_EmptyInput(t *testing.T) {
	msgs, err := Unpack(nil, 10)
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("got %d messages for zero datagrams, want 0", len(msgs))
	}
}

func TestUnpack_EmptyDatagramsContributeNothing(t *testing.T) {
	datagrams, err := Pack([][]byte{[]byte("First"), []byte("Second")}, 1024)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	datagrams = append(datagrams, []byte{}, nil)

	msgs, err := Unpack(datagrams, 1024)
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	if len(msgs) != 2 || string(msgs[0]) != "First" || string(msgs[1]) != "Second" {
		t.Errorf("messages = %q, want [First Second]", msgs)
	}
}

func TestUnpack_StopsAtBadDatagram(t *testing.T) {
	good, err := Pack([][]byte{[]byte("Hello")}, 1024)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	datagrams := append(good, []byte{0, 200, 0xFF, 0xFE, 0xFD})

	msgs, err := Unpack(datagrams, 1024)
	if !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("Unpack error = %v, want ErrMalformedFrame", err)
	}
	if len(msgs) != 1 || string(msgs[0]) != "Hello" {
		t.Errorf("messages before error = %q, want [Hello]", msgs)
	}
}

func TestRoundTrip_VariedSizes(t *testing.T) {
	const maxSize = 64

	var msgs [][]byte
	for n := 0; n <= MaxPayload(maxSize); n++ {
		msg := bytes.Repeat([]byte{byte(n)}, n)
		msgs = append(msgs, msg)
	}

	datagrams, err := Pack(msgs, maxSize)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	for i, dgram := range datagrams {
		if len(dgram) > maxSize {
			t.Fatalf("datagram %d is %d bytes, exceeds %d", i, len(dgram), maxSize)
		}
	}

	decoded, err := Unpack(datagrams, maxSize)
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	if len(decoded) != len(msgs) {
		t.Fatalf("got %d messages, want %d", len(decoded), len(msgs))
	}
	for i := range msgs {
		if !bytes.Equal(decoded[i], msgs[i]) {
			t.Errorf("message %d does not round-trip", i)
		}
	}
}
