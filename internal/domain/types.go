// Package domain holds the core data model shared by the Device and
// ConfigRepo: module/page/event/action trees and the small value types that
// key them.
package domain

// Position is the signed (dx,dy) grid coordinate that uniquely keys a
// module within a connected device, and is the value sent in every
// per-module operation.
type Position struct {
	DX, DY int8
}

// Firmware is the module's reported firmware version.
type Firmware struct {
	Major, Minor, Patch int
}

// DeviceInfo describes one connected host-to-device serial path, as
// produced by (out-of-core) USB enumeration.
type DeviceInfo struct {
	Path        string
	VendorID    uint16
	ProductID   uint16
	Product     string
	SerialNum   string // normalized
}

// ElementRef names one element slot on a module by its index and resolved
// type name (e.g. "BU16").
type ElementRef struct {
	Index int
	Type  string
}

// ModuleInfo is discovered from HEARTBEAT traffic. Created by the Device
// and mutated only by it.
type ModuleInfo struct {
	Position      Position
	TypeName      string
	TypeID        int
	Firmware      Firmware
	ElementCount  int
}

// Action is a (short, name?, script) triple; events bind ordered action
// lists.
type Action struct {
	Short  string
	Name   string // optional; empty means unset
	Script string
}

// Equal reports exact equality: equal Short, equal Name and byte-equal
// Script, with no whitespace normalization. ActionsEqual below is the
// normalized comparison used for default-collapse.
func (a Action) Equal(b Action) bool {
	return a.Short == b.Short && a.Name == b.Name && a.Script == b.Script
}

// EventConfig binds an ordered action list to one (element, event-type)
// pair within a page.
type EventConfig struct {
	Element   int
	EventType string // event kind name, e.g. "press", "init"
	Actions   []Action
}

// PageConfig is one of the four selectable pages (0..3) on a module.
type PageConfig struct {
	Page   int
	Events []EventConfig
}

// ModuleConfig is a ModuleInfo plus its ordered pages. Immutable once
// constructed — produced by Device.fetchModuleConfig or ConfigRepo.Read.
type ModuleConfig struct {
	Module ModuleInfo
	Pages  []PageConfig
}

// ActionsEqual reports whether two action lists are structurally equal
// after whitespace-normalizing each script (runs of whitespace collapsed
// to a single space, then trimmed) — the rule used to decide whether a
// page's event equals its element-type default and can be elided on write.
func ActionsEqual(a, b []Action) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Short != b[i].Short || a[i].Name != b[i].Name {
			return false
		}
		if NormalizeWhitespace(a[i].Script) != NormalizeWhitespace(b[i].Script) {
			return false
		}
	}
	return true
}
