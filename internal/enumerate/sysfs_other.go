//go:build !linux

package enumerate

import "gridctl/internal/domain"

// SysfsSource has no OS-native implementation outside Linux; List always
// returns empty, so callers fall back to -d / a StaticSource.
type SysfsSource struct{}

func (SysfsSource) List() []domain.DeviceInfo { return nil }
