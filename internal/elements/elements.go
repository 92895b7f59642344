// Package elements models the closed enumeration of element and event
// types as tagged variants with a per-variant descriptor table — a flat
// registry of data, never an inheritance hierarchy.
package elements

import (
	"fmt"

	"gridctl/internal/domain"
)

// EventKind names one trigger an element can fire.
type EventKind string

const (
	Init    EventKind = "init"
	Press   EventKind = "press"
	Turn    EventKind = "turn"
	Move    EventKind = "move"
	Timer   EventKind = "timer"
	MapMode EventKind = "mapmode"
	MIDIRx  EventKind = "midirx"
	Draw    EventKind = "draw"
)

// eventSlot pairs a supported event with its wire-level numeric code and
// factory-default action list for one element type.
type eventSlot struct {
	kind    EventKind
	code    int
	dflt    []domain.Action
	hasDflt bool
}

// Type is one element type's descriptor table: which events it supports,
// their wire codes, and their default bindings.
type Type struct {
	name  string
	id    int
	slots []eventSlot
}

func (t Type) Name() string { return t.name }
func (t Type) ID() int      { return t.id }

// SupportedEvents lists the event kinds this element type can bind, in
// canonical iteration order.
func (t Type) SupportedEvents() []EventKind {
	out := make([]EventKind, 0, len(t.slots))
	for _, s := range t.slots {
		out = append(out, s.kind)
	}
	return out
}

// Code returns the wire-level event-type code for kind, if supported.
func (t Type) Code(kind EventKind) (int, bool) {
	for _, s := range t.slots {
		if s.kind == kind {
			return s.code, true
		}
	}
	return 0, false
}

// KindForCode is the inverse of Code, used when decoding a FETCH/EXECUTE
// response that only carries the numeric EVENTTYPE.
func (t Type) KindForCode(code int) (EventKind, bool) {
	for _, s := range t.slots {
		if s.code == code {
			return s.kind, true
		}
	}
	return "", false
}

// DefaultConfig returns the factory action list for (t, kind) as a
// (actions, hasDefault, supported) triple. hasDefault is false when no
// factory default is defined for this event at all, distinct from a
// defined-but-empty default; supported reports whether kind is even a
// valid event for this element type.
func (t Type) DefaultConfig(kind EventKind) (actions []domain.Action, hasDefault, supported bool) {
	for _, s := range t.slots {
		if s.kind == kind {
			return s.dflt, s.hasDflt, true
		}
	}
	return nil, false, false
}

// Supports reports whether kind is a valid event for this element type, a
// check required whenever configuration is read back off disk.
func (t Type) Supports(kind EventKind) bool {
	_, ok := t.Code(kind)
	return ok
}

func action(short, script string) domain.Action {
	return domain.Action{Short: short, Script: script}
}

// Button (BU16): press/init/timer/mapmode/midirx.
var Button = Type{
	name: "BU16", id: 1,
	slots: []eventSlot{
		{kind: Init, code: 0, dflt: nil, hasDflt: true},
		{kind: Press, code: 1, dflt: []domain.Action{action("led", "led.set(index, true)")}, hasDflt: true},
		{kind: Timer, code: 2, dflt: nil, hasDflt: true},
		{kind: MapMode, code: 3, dflt: nil, hasDflt: true},
		{kind: MIDIRx, code: 4, dflt: nil, hasDflt: true},
	},
}

// Encoder (EN16): turn/press(click)/init/timer/mapmode/midirx.
var Encoder = Type{
	name: "EN16", id: 2,
	slots: []eventSlot{
		{kind: Init, code: 0, dflt: nil, hasDflt: true},
		{kind: Turn, code: 1, dflt: []domain.Action{action("rel", "midi.cc(index, delta)")}, hasDflt: true},
		{kind: Press, code: 2, dflt: nil, hasDflt: true},
		{kind: Timer, code: 3, dflt: nil, hasDflt: true},
		{kind: MapMode, code: 4, dflt: nil, hasDflt: true},
		{kind: MIDIRx, code: 5, dflt: nil, hasDflt: true},
	},
}

// Potentiometer (PO16): absolute move/init/timer/mapmode/midirx.
var Potentiometer = Type{
	name: "PO16", id: 0,
	slots: []eventSlot{
		{kind: Init, code: 0, dflt: nil, hasDflt: true},
		{kind: Move, code: 1, dflt: []domain.Action{action("abs", "midi.cc(index, value)")}, hasDflt: true},
		{kind: Timer, code: 2, dflt: nil, hasDflt: true},
		{kind: MapMode, code: 3, dflt: nil, hasDflt: true},
		{kind: MIDIRx, code: 4, dflt: nil, hasDflt: true},
	},
}

// Fader (FA16): same event shape as a potentiometer, distinct type id.
var Fader = Type{
	name: "FA16", id: 4,
	slots: []eventSlot{
		{kind: Init, code: 0, dflt: nil, hasDflt: true},
		{kind: Move, code: 1, dflt: []domain.Action{action("abs", "midi.cc(index, value)")}, hasDflt: true},
		{kind: Timer, code: 2, dflt: nil, hasDflt: true},
		{kind: MapMode, code: 3, dflt: nil, hasDflt: true},
		{kind: MIDIRx, code: 4, dflt: nil, hasDflt: true},
	},
}

// Display (DI16): draw/init/timer/mapmode/midirx, no press/turn.
var Display = Type{
	name: "DI16", id: 5,
	slots: []eventSlot{
		{kind: Init, code: 0, dflt: nil, hasDflt: true},
		{kind: Draw, code: 1, dflt: []domain.Action{action("clear", "display.clear(index)")}, hasDflt: true},
		{kind: Timer, code: 2, dflt: nil, hasDflt: true},
		{kind: MapMode, code: 3, dflt: nil, hasDflt: true},
		{kind: MIDIRx, code: 4, dflt: nil, hasDflt: true},
	},
}

// System is the virtual whole-module element carrying module-level init
// and MIDI-rx bindings not tied to any physical control.
var System = Type{
	name: "SYSTEM", id: 0,
	slots: []eventSlot{
		{kind: Init, code: 0, dflt: nil, hasDflt: true},
		{kind: MIDIRx, code: 1, dflt: nil, hasDflt: true},
	},
}

// ByName is the closed registry consulted when resolving a module's
// element types from heartbeat/manifest data.
var ByName = map[string]Type{
	Button.name:       Button,
	Encoder.name:      Encoder,
	Potentiometer.name: Potentiometer,
	Fader.name:        Fader,
	Display.name:      Display,
	System.name:       System,
}

// ByID mirrors ByName keyed by the numeric type id carried in HEARTBEAT's
// HWCFG field. System is deliberately absent: it is a virtual within-module
// element, never a heartbeat-reported module type, and its id must not
// shadow a real module id in the HWCFG lookup.
var ByID = map[int]Type{
	Button.id:       Button,
	Encoder.id:      Encoder,
	Potentiometer.id: Potentiometer,
	Fader.id:        Fader,
	Display.id:      Display,
}

// Lookup resolves a HWCFG value to a Type: full value first, then
// HWCFG & 0x7F, then the caller falls back to an Unknown(raw) placeholder.
func Lookup(hwcfg int) (Type, bool) {
	if t, ok := ByID[hwcfg]; ok {
		return t, true
	}
	if t, ok := ByID[hwcfg&0x7F]; ok {
		return t, true
	}
	return Type{}, false
}

// Unknown builds a placeholder Type for a HWCFG value that resolved
// through neither the full-value nor the masked lookup. It supports no
// events; any read-time event-binding check against it fails closed.
func Unknown(raw int) Type {
	return Type{name: fmt.Sprintf("Unknown(%d)", raw), id: raw}
}
