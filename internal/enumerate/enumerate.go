// Package enumerate is the out-of-core USB-serial enumeration collaborator
// named in spec.md §1/§6: the core only ever consumes a []domain.DeviceInfo,
// never a concrete USB backend. This package supplies the vid/pid filter
// table plus a Source contract; cmd/ wires a real OS-backed Source (see
// sysfs.go), while tests and the core's own package boundary only ever
// need Filter and the Source interface below.
package enumerate

import "gridctl/internal/domain"

// GridVidPids are the USB vendor/product id pairs a Grid host adaptor
// enumerates (spec.md §6).
var GridVidPids = [][2]uint16{
	{0x03EB, 0xECAC},
	{0x03EB, 0xECAD},
	{0x303A, 0x8123},
	{0x303A, 0x8124},
}

// Source lists every serial device candidate the host OS currently exposes,
// Grid or not; Filter narrows that list down. Kept as an interface so the
// default in-process implementation is a plain table lookup over a
// caller-supplied list — real OS enumeration is a separate, swappable
// Source (SysfsSource on Linux).
type Source interface {
	List() []domain.DeviceInfo
}

// StaticSource is the trivial Source: a fixed, caller-supplied device list.
// Used by tests and by any caller that already has a device list from
// elsewhere (e.g. a config file) rather than live OS enumeration.
type StaticSource []domain.DeviceInfo

func (s StaticSource) List() []domain.DeviceInfo { return []domain.DeviceInfo(s) }

// Matches reports whether (vid,pid) is one of GridVidPids.
func Matches(vid, pid uint16) bool {
	for _, p := range GridVidPids {
		if p[0] == vid && p[1] == pid {
			return true
		}
	}
	return false
}

// Filter narrows src's candidates down to those whose vendor/product id
// matches GridVidPids.
func Filter(src Source) []domain.DeviceInfo {
	var out []domain.DeviceInfo
	for _, d := range src.List() {
		if Matches(d.VendorID, d.ProductID) {
			out = append(out, d)
		}
	}
	return out
}
