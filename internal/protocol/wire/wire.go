// Package wire provides the one concrete PacketCodec this build ships.
// Spec.md explicitly scopes the real class-tag/BRC byte layout to an
// external codec collaborator; this is this build's own choice of layout,
// not a reproduction of any firmware's actual bytes. It exists so the
// Framer → Link → Correlator → Device pipeline is runnable end to end.
//
// Layout: a JSON envelope (DX/DY header, class, instruction, params) encoded
// with encoding/json — which escapes control bytes, so the JSON text itself
// never contains a raw 0x0A or 0x04 — followed by a 3-byte tail: EOT, then
// a big-endian 16-bit additive checksum of the JSON bytes. The Framer finds
// frame boundaries from that tail; this codec verifies the checksum on
// decode and rejects a mismatch as a Protocol error.
package wire

import (
	"encoding/json"

	"gridctl/internal/coreerr"
	"gridctl/internal/protocol"
)

const eot byte = 0x04

type envelope struct {
	DX          int8           `json:"dx"`
	DY          int8           `json:"dy"`
	Class       string         `json:"class"`
	Instruction string         `json:"instruction"`
	Params      map[string]any `json:"params,omitempty"`
}

// Codec is the concrete protocol.PacketCodec.
type Codec struct{}

func New() *Codec { return &Codec{} }

func (Codec) EncodePacket(d protocol.Descriptor) ([]byte, error) {
	if d.DX < -127 || d.DX > 127 || d.DY < -127 || d.DY > 127 {
		return nil, coreerr.New(coreerr.Protocol, "wire.EncodePacket", "dx/dy out of range")
	}
	env := envelope{DX: d.DX, DY: d.DY, Class: d.Class, Instruction: string(d.Instruction), Params: d.Params}
	body, err := json.Marshal(env)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Protocol, "wire.EncodePacket", "marshal envelope", err)
	}
	sum := checksum16(body)
	payload := make([]byte, 0, len(body)+3)
	payload = append(payload, body...)
	payload = append(payload, eot, byte(sum>>8), byte(sum&0xFF))
	return payload, nil
}

func (Codec) DecodePacketFrame(payload []byte) ([]protocol.DecodedMessage, error) {
	if len(payload) < 3 || payload[len(payload)-3] != eot {
		return nil, coreerr.New(coreerr.Protocol, "wire.DecodePacketFrame", "missing EOT tail")
	}
	body := payload[:len(payload)-3]
	c0, c1 := payload[len(payload)-2], payload[len(payload)-1]
	want := checksum16(body)
	if byte(want>>8) != c0 || byte(want&0xFF) != c1 {
		return nil, coreerr.New(coreerr.Protocol, "wire.DecodePacketFrame", "checksum mismatch")
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, coreerr.Wrap(coreerr.Protocol, "wire.DecodePacketFrame", "unmarshal envelope", err)
	}
	msg := protocol.DecodedMessage{
		BRC:         map[string]any{"SX": env.DX, "SY": env.DY},
		Class:       env.Class,
		Instruction: protocol.Instruction(env.Instruction),
		Params:      env.Params,
	}
	return []protocol.DecodedMessage{msg}, nil
}

func checksum16(b []byte) uint16 {
	var sum uint16
	for _, x := range b {
		sum += uint16(x)
	}
	return sum
}
