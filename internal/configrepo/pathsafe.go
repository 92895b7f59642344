package configrepo

import (
	"path/filepath"
	"strings"

	"gridctl/internal/coreerr"
)

// safeJoin resolves name against base and refuses any name that would
// escape base or that contains a path separator or ".." component —
// the guard against a malicious or corrupt module type/slug string.
func safeJoin(base, name string) (string, error) {
	if strings.ContainsAny(name, "/\\") || name == ".." || strings.Contains(name, "..") {
		return "", coreerr.New(coreerr.Config, "configrepo.safeJoin", "unsafe path component "+name)
	}
	joined := filepath.Join(base, name)
	rel, err := filepath.Rel(base, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", coreerr.New(coreerr.Config, "configrepo.safeJoin", "path escapes base directory: "+name)
	}
	return joined, nil
}

// validTypeString rejects module type strings that would be unsafe to
// embed in a path component once slugified.
func validTypeString(s string) bool {
	return !strings.ContainsAny(s, "/\\") && !strings.Contains(s, "..")
}
