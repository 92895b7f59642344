//go:build linux

package enumerate

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gridctl/internal/domain"
)

// SysfsSource lists every tty device under /sys/class/tty that resolves to
// a USB device node, regardless of vid/pid — callers run it through Filter.
// This is the one OS-specific piece of the enumeration collaborator; it
// deliberately does not try to be a general USB stack.
type SysfsSource struct{}

func (SysfsSource) List() []domain.DeviceInfo {
	const ttyClass = "/sys/class/tty"
	entries, err := os.ReadDir(ttyClass)
	if err != nil {
		return nil
	}

	var out []domain.DeviceInfo
	for _, e := range entries {
		usbDir, ok := resolveUSBDeviceDir(filepath.Join(ttyClass, e.Name()))
		if !ok {
			continue
		}
		vid, ok1 := parseHex16(readSysAttr(usbDir, "idVendor"))
		pid, ok2 := parseHex16(readSysAttr(usbDir, "idProduct"))
		if !ok1 || !ok2 {
			continue
		}
		out = append(out, domain.DeviceInfo{
			Path:      "/dev/" + e.Name(),
			VendorID:  vid,
			ProductID: pid,
			Product:   readSysAttr(usbDir, "product"),
			SerialNum: normalizeSerial(readSysAttr(usbDir, "serial")),
		})
	}
	return out
}

// resolveUSBDeviceDir walks up a tty class device's symlinked device chain
// looking for the ancestor directory that carries idVendor/idProduct —
// normally two or three levels above the tty leaf for a USB-CDC ACM device.
func resolveUSBDeviceDir(ttyDir string) (string, bool) {
	real, err := filepath.EvalSymlinks(filepath.Join(ttyDir, "device"))
	if err != nil {
		return "", false
	}
	dir := real
	for i := 0; i < 5; i++ {
		if _, err := os.Stat(filepath.Join(dir, "idVendor")); err == nil {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

func parseHex16(s string) (uint16, bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 16, 16)
	if err != nil {
		return 0, false
	}
	return uint16(n), true
}

func readSysAttr(dir, name string) string {
	b, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

// normalizeSerial trims whitespace and drops any trailing NUL padding some
// USB serial-number descriptors carry.
func normalizeSerial(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "\x00")
}
