// Package protocol defines the wire-level contracts at the Device's
// altitude: outbound Descriptors, inbound DecodedMessages, and the Filter
// used by the Correlator to match one against the other. The actual packet
// byte layout (class tags, BRC header encoding) is delegated to a
// PacketCodec, with one concrete implementation in the wire subpackage.
package protocol

import (
	"fmt"
	"strconv"
)

// BroadcastDX and BroadcastDY address every module on the chain.
const (
	BroadcastDX int8 = -127
	BroadcastDY int8 = -127
)

// Instruction is one of the four verbs the wire protocol uses.
type Instruction string

const (
	Execute Instruction = "EXECUTE"
	Fetch   Instruction = "FETCH"
	Report  Instruction = "REPORT"
	Ack     Instruction = "ACKNOWLEDGE"
)

// Descriptor is an outbound request: a broadcast-header address, a class
// name, an instruction, and typed class parameters.
type Descriptor struct {
	DX, DY      int8
	Class       string
	Instruction Instruction
	Params      map[string]any
}

// DecodedMessage is an inbound payload as produced by a PacketCodec. The
// broadcast-header fields (BRC) and the class parameters (Params) are kept
// as two separate untyped maps, mirroring the two independently-matchable
// parts of a Filter — the device emits both as a mix of numeric and
// numeric-string values.
type DecodedMessage struct {
	BRC         map[string]any
	Class       string
	Instruction Instruction
	Params      map[string]any
}

// Filter selects messages a Waiter cares about. A zero-value (empty/nil)
// field is a wildcard. Keys present in BRC or Params must match the
// corresponding message field, with numeric ≡ numeric-string equivalence.
type Filter struct {
	BRC         map[string]any
	Class       string
	Instruction Instruction
	Params      map[string]any
}

// Match reports whether msg satisfies f.
func (f Filter) Match(msg DecodedMessage) bool {
	if f.Class != "" && f.Class != msg.Class {
		return false
	}
	if f.Instruction != "" && f.Instruction != msg.Instruction {
		return false
	}
	if !subsetMatch(f.BRC, msg.BRC) {
		return false
	}
	if !subsetMatch(f.Params, msg.Params) {
		return false
	}
	return true
}

func subsetMatch(want, got map[string]any) bool {
	for k, wv := range want {
		gv, ok := got[k]
		if !ok || !valueEqual(wv, gv) {
			return false
		}
	}
	return true
}

// valueEqual implements numeric ≡ numeric-string equivalence: a filter
// specifying SX=0 matches a message whose SX is the string "0".
func valueEqual(a, b any) bool {
	if a == b {
		return true
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// ToFloat coerces a class-parameter value (numeric or numeric-string, as
// the device emits both) to a float64. Callers needing an int truncate the
// result themselves.
func ToFloat(v any) (float64, bool) { return toFloat(v) }

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// BRC builds a broadcast-header match/param map from an (dx,dy) pair.
func BRC(dx, dy int8) map[string]any {
	return map[string]any{"SX": dx, "SY": dy}
}
