package wire

import (
	"testing"

	"gridctl/internal/framer"
	"gridctl/internal/protocol"
)

func TestRoundTripThroughFramer(t *testing.T) {
	c := New()
	d := protocol.Descriptor{
		DX: 0, DY: 0,
		Class:       "CONFIG",
		Instruction: protocol.Fetch,
		Params: map[string]any{
			"PAGENUMBER": 0, "ELEMENTNUMBER": 1, "EVENTTYPE": 3, "ACTIONLENGTH": 0,
		},
	}
	payload, err := c.EncodePacket(d)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	fr := framer.New()
	frames, err := fr.Push(framer.Frame(payload))
	if err != nil {
		t.Fatalf("framer push: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}

	msgs, err := c.DecodePacketFrame(frames[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	got := msgs[0]
	if got.Class != "CONFIG" || got.Instruction != protocol.Fetch {
		t.Errorf("unexpected class/instruction: %+v", got)
	}
	if got.Params["PAGENUMBER"].(float64) != 0 {
		t.Errorf("unexpected PAGENUMBER: %v", got.Params["PAGENUMBER"])
	}
}

func TestChecksumMismatchRejected(t *testing.T) {
	c := New()
	payload, err := c.EncodePacket(protocol.Descriptor{Class: "X", Instruction: protocol.Execute})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	payload[len(payload)-1] ^= 0xFF // corrupt checksum
	if _, err := c.DecodePacketFrame(payload); err == nil {
		t.Fatal("expected checksum mismatch error")
	}
}

func TestS6FilterNumericStringEquivalence(t *testing.T) {
	msg := protocol.DecodedMessage{
		BRC:   map[string]any{"SX": "0", "SY": "-1"},
		Class: "CONFIG", Instruction: protocol.Report,
		Params: map[string]any{"PAGENUMBER": "0", "ELEMENTNUMBER": "1", "EVENTTYPE": "3"},
	}
	f := protocol.Filter{
		BRC:         map[string]any{"SX": 0, "SY": -1},
		Class:       "CONFIG",
		Instruction: protocol.Report,
		Params:      map[string]any{"PAGENUMBER": 0, "ELEMENTNUMBER": 1, "EVENTTYPE": 3},
	}
	if !f.Match(msg) {
		t.Fatal("expected filter to match via numeric/string equivalence")
	}
}
