// Package scriptcodec implements the device wire-format action-string
// codec: parsing and serializing the single-line
// "--[[@short[#name]]] body --[[@short2]] body2 …" form carried in
// CONFIG's ACTIONSTRING parameter (after stripping the <?lua … ?> wrapper).
//
// The script minifier/humanizer itself is an external collaborator — this
// package only needs its two opaque operations, modeled as the
// Minifier/Humanizer interfaces below, with a passthrough stand-in for
// builds that haven't wired a real one in.
package scriptcodec

import (
	"regexp"
	"strings"

	"gridctl/internal/coreerr"
	"gridctl/internal/domain"
)

// maxWireLength bounds the ACTIONSTRING this codec will attempt to parse.
const maxWireLength = 100000

// Minifier shortens a script body. ok is false when the minifier rejects
// the input (e.g. a bare fragment like "if … end" with no enclosing
// statement) — callers fall back to whitespace-collapse in that case.
type Minifier interface {
	Minify(body string) (out string, ok bool)
}

// Humanizer expands a minified script body back into a more readable form.
// Nothing in this build calls it; ConfigRepo writes device-fetched scripts
// to page files unchanged.
type Humanizer interface {
	Humanize(body string) (out string, ok bool)
}

// Passthrough is a stand-in for both external collaborators: it returns its
// input unchanged. Real builds wire in the actual minifier/humanizer;
// nothing in this package depends on the specifics of either.
type Passthrough struct{}

func (Passthrough) Minify(body string) (string, bool)   { return body, true }
func (Passthrough) Humanize(body string) (string, bool) { return body, true }

var headerPattern = regexp.MustCompile(`--\[\[@([A-Za-z0-9_.\-]*)(?:#([^\]]*))?\]\]`)

const luaPrefix, luaSuffix = "<?lua ", " ?>"

// WrapLua wraps a wire action string for placement in ACTIONSTRING.
func WrapLua(s string) string { return luaPrefix + s + luaSuffix }

// UnwrapLua strips the <?lua … ?> wrapper if present; ok is false if s
// doesn't carry it (the caller treats that as a malformed ACTIONSTRING).
func UnwrapLua(s string) (string, bool) {
	if !strings.HasPrefix(s, luaPrefix) || !strings.HasSuffix(s, luaSuffix) {
		return s, false
	}
	return s[len(luaPrefix) : len(s)-len(luaSuffix)], true
}

// ParseWireActionString parses a single-line wire action string (already
// unwrapped) into an ordered action list. An empty string yields an empty
// (not nil-vs-empty-significant) action list.
func ParseWireActionString(s string) ([]domain.Action, error) {
	if len(s) > maxWireLength {
		return nil, coreerr.New(coreerr.Protocol, "scriptcodec.ParseWireActionString", "ScriptTooLarge")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	matches := headerPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return nil, coreerr.New(coreerr.Protocol, "scriptcodec.ParseWireActionString", "no action headers found")
	}

	actions := make([]domain.Action, 0, len(matches))
	for i, m := range matches {
		short := s[m[2]:m[3]]
		name := ""
		if m[4] != -1 {
			name = s[m[4]:m[5]]
		}
		bodyStart := m[1]
		bodyEnd := len(s)
		if i+1 < len(matches) {
			bodyEnd = matches[i+1][0]
		}
		body := strings.TrimSpace(s[bodyStart:bodyEnd])
		actions = append(actions, domain.Action{Short: short, Name: name, Script: body})
	}
	return actions, nil
}

// SerializeWireActionString renders actions as the single-line wire form,
// minifying each body and falling back to whitespace-collapse when the
// minifier rejects a body.
func SerializeWireActionString(actions []domain.Action, m Minifier) (string, error) {
	if m == nil {
		m = Passthrough{}
	}
	var b strings.Builder
	for i, a := range actions {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("--[[@")
		b.WriteString(a.Short)
		if a.Name != "" {
			b.WriteByte('#')
			b.WriteString(a.Name)
		}
		b.WriteString("]]")

		body, ok := m.Minify(a.Script)
		if !ok {
			body = domain.NormalizeWhitespace(a.Script)
		}
		if body != "" {
			b.WriteByte(' ')
			b.WriteString(body)
		}
	}
	out := b.String()
	if len(out) > maxWireLength {
		return "", coreerr.New(coreerr.Protocol, "scriptcodec.SerializeWireActionString", "ScriptTooLarge")
	}
	return out, nil
}
