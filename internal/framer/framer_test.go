package framer

import (
	"bytes"
	"testing"

	"gridctl/internal/coreerr"
)

func TestS1_TwoFramesOneChunk(t *testing.T) {
	in := []byte{0x41, 0x04, 0xAA, 0xBB, 0x0A, 0x42, 0x04, 0xCC, 0xDD, 0x0A}
	f := New()
	got, err := f.Push(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := [][]byte{
		{0x41, 0x04, 0xAA, 0xBB},
		{0x42, 0x04, 0xCC, 0xDD},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d payloads, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Errorf("payload %d: got %x want %x", i, got[i], want[i])
		}
	}
	if f.Pending() != 0 {
		t.Errorf("expected empty buffer after full consumption, got %d bytes pending", f.Pending())
	}
}

func TestArbitraryChunkBoundaries(t *testing.T) {
	whole := []byte{0x41, 0x04, 0xAA, 0xBB, 0x0A, 0x42, 0x04, 0xCC, 0xDD, 0x0A, 0x43, 0x04, 0x01, 0x02, 0x0A}
	want := [][]byte{
		{0x41, 0x04, 0xAA, 0xBB},
		{0x42, 0x04, 0xCC, 0xDD},
		{0x43, 0x04, 0x01, 0x02},
	}

	for split := 1; split < len(whole); split++ {
		f := New()
		var got [][]byte
		a, b := whole[:split], whole[split:]
		for _, chunk := range [][]byte{a, b} {
			frames, err := f.Push(chunk)
			if err != nil {
				t.Fatalf("split=%d: unexpected error: %v", split, err)
			}
			got = append(got, frames...)
		}
		if len(got) != len(want) {
			t.Fatalf("split=%d: got %d payloads, want %d", split, len(got), len(want))
		}
		for i := range want {
			if !bytes.Equal(got[i], want[i]) {
				t.Errorf("split=%d payload %d: got %x want %x", split, i, got[i], want[i])
			}
		}
	}
}

func TestByteByByteDelivery(t *testing.T) {
	whole := []byte{0x41, 0x04, 0xAA, 0xBB, 0x0A, 0x42, 0x04, 0xCC, 0xDD, 0x0A}
	f := New()
	var got [][]byte
	for _, b := range whole {
		frames, err := f.Push([]byte{b})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, frames...)
	}
	if len(got) != 2 {
		t.Fatalf("got %d payloads, want 2", len(got))
	}
}

func TestEmbeddedNewlineInChecksumIsNotADelimiter(t *testing.T) {
	// Checksum byte c1 happens to be 0x0A; the "newline" at index 3 is only
	// 2 bytes after EOT (index 1), so it must not terminate the frame. The
	// real terminator is the LF at the end.
	in := []byte{0x41, 0x04, 0xBB, 0x0A, 0x0A}
	f := New()
	got, err := f.Push(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d payloads, want 1: %x", len(got), got)
	}
	want := []byte{0x41, 0x04, 0xBB, 0x0A}
	if !bytes.Equal(got[0], want) {
		t.Errorf("got %x want %x", got[0], want)
	}
}

func TestOverflowResetsBufferAndRaisesFraming(t *testing.T) {
	f := New()
	junk := bytes.Repeat([]byte{0x55}, maxBuffer)
	_, err := f.Push(junk)
	if err == nil {
		t.Fatal("expected a Framing error on overflow")
	}
	if coreerr.Of(err) != coreerr.Framing {
		t.Fatalf("expected Framing kind, got %v", coreerr.Of(err))
	}
	if f.Pending() != 0 {
		t.Errorf("expected buffer reset on overflow, got %d bytes pending", f.Pending())
	}
}

func TestNoPartialFrameEmittedAcrossPushes(t *testing.T) {
	f := New()
	partial := []byte{0x41, 0x04, 0xAA} // no LF yet
	frames, err := f.Push(partial)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 0 {
		t.Fatalf("expected no frames from a partial payload, got %v", frames)
	}
	if f.Pending() != len(partial) {
		t.Errorf("expected partial bytes retained, got %d pending", f.Pending())
	}
}

func TestResetDiscardsPartialOnStreamEnd(t *testing.T) {
	f := New()
	_, _ = f.Push([]byte{0x41, 0x04, 0xAA})
	f.Reset()
	if f.Pending() != 0 {
		t.Errorf("expected 0 pending after Reset, got %d", f.Pending())
	}
}

func TestFrameAppendsSingleNewline(t *testing.T) {
	got := Frame([]byte{0x01, 0x02})
	want := []byte{0x01, 0x02, 0x0A}
	if !bytes.Equal(got, want) {
		t.Errorf("got %x want %x", got, want)
	}
}
