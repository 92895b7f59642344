package configrepo

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"gridctl/internal/coreerr"
	"gridctl/internal/domain"
)

var (
	pageFilenamePattern = regexp.MustCompile(`^page-(\d+)\.lua$`)
	newHeaderPattern    = regexp.MustCompile(`^--\[\[@([A-Za-z0-9_.\-]*)(?:#([^\]]*))?\]\]\s*(.*)$`)
	legacyHeaderPattern = regexp.MustCompile(`^--\[\[\s*@action\s+(\S+)\s+"([^"]*)"\s*\]\]\s*(.*)$`)
	separatorPattern    = regexp.MustCompile(`^--\s*([=-]{3,})\s*$`)
)

var ignoredLinePrefixes = []string{
	"-- Grid Configuration",
	"-- Module:",
	"-- Element:",
	"-- Event:",
	"-- Page:",
	"-- grid:event",
	"-- grid:",
	"-- action:",
}

func isIgnoredLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if separatorPattern.MatchString(trimmed) {
		return true
	}
	for _, p := range ignoredLinePrefixes {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	return false
}

// pageEventBlock is one "-- grid:event ..." section of a parsed page file.
type pageEventBlock struct {
	Element     int
	Event       string
	ElementType string // "" if not specified
	Actions     []domain.Action
}

// parsedPage is the result of parsing one page-<N>.lua file.
type parsedPage struct {
	Page        int
	Events      []pageEventBlock
	FrontMatter map[string]string
}

// parsePageFile parses the content of one page script file. filename is
// used only for the filename-fallback page-number rule; warn receives
// human-readable non-fatal diagnostics (nil is a valid no-op sink).
func parsePageFile(filename, content string, warn func(string)) (parsedPage, error) {
	if warn == nil {
		warn = func(string) {}
	}
	lines := strings.Split(content, "\n")

	frontMatter := map[string]string{}
	i := 0
	for ; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "-- grid:event") {
			break
		}
		if !strings.HasPrefix(line, "-- grid:") {
			continue // non-grid comment, skipped
		}
		rest := strings.TrimSpace(strings.TrimPrefix(line, "-- grid:"))
		key, value, ok := strings.Cut(rest, "=")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if !ok || key == "" || value == "" {
			return parsedPage{}, coreerr.New(coreerr.Config, "configrepo.parsePageFile", "malformed front-matter line: "+lines[i])
		}
		frontMatter[key] = value
	}

	page, err := resolvePageNumber(filename, frontMatter, warn)
	if err != nil {
		return parsedPage{}, err
	}

	events, err := parseEventBlocks(lines[i:], warn)
	if err != nil {
		return parsedPage{}, err
	}
	return parsedPage{Page: page, Events: events, FrontMatter: frontMatter}, nil
}

func resolvePageNumber(filename string, frontMatter map[string]string, warn func(string)) (int, error) {
	fromFrontMatter, hasFrontMatter := frontMatter["page"]
	var fmPage int
	if hasFrontMatter {
		n, err := strconv.Atoi(fromFrontMatter)
		if err != nil {
			return 0, coreerr.New(coreerr.Config, "configrepo.resolvePageNumber", "non-numeric page in front matter: "+fromFrontMatter)
		}
		fmPage = n
	}

	m := pageFilenamePattern.FindStringSubmatch(filename)
	if m == nil {
		if !hasFrontMatter {
			return 0, coreerr.New(coreerr.Config, "configrepo.resolvePageNumber", "no page number in front matter or filename: "+filename)
		}
		return fmPage, nil
	}
	fnPage, _ := strconv.Atoi(m[1])

	if !hasFrontMatter {
		warn(fmt.Sprintf("page number taken from filename %s (no front-matter page= line)", filename))
		return fnPage, nil
	}
	if fnPage != fmPage {
		warn(fmt.Sprintf("front-matter page=%d disagrees with filename %s; front matter wins", fmPage, filename))
	}
	return fmPage, nil
}

func parseEventBlocks(lines []string, warn func(string)) ([]pageEventBlock, error) {
	var blocks []pageEventBlock
	var cur *pageEventBlock
	var curAction *domain.Action
	var curBody []string

	flushAction := func() {
		if curAction == nil {
			return
		}
		curAction.Script = strings.TrimSpace(strings.Join(curBody, "\n"))
		cur.Actions = append(cur.Actions, *curAction)
		curAction = nil
		curBody = nil
	}
	flushBlock := func() {
		flushAction()
		if cur != nil {
			blocks = append(blocks, *cur)
		}
	}

	for _, raw := range lines {
		line := raw
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "-- grid:event") {
			flushBlock()
			header, err := parseEventHeader(trimmed)
			if err != nil {
				return nil, err
			}
			cur = &header
			continue
		}
		if cur == nil {
			continue // content before any event header; nothing to attach it to
		}
		if m := newHeaderPattern.FindStringSubmatch(trimmed); m != nil {
			flushAction()
			curAction = &domain.Action{Short: m[1], Name: m[2]}
			if inline := strings.TrimSpace(m[3]); inline != "" {
				curBody = append(curBody, inline)
			}
			continue
		}
		if m := legacyHeaderPattern.FindStringSubmatch(trimmed); m != nil {
			flushAction()
			curAction = &domain.Action{Short: m[1], Name: m[2]}
			if inline := strings.TrimSpace(m[3]); inline != "" {
				curBody = append(curBody, inline)
			}
			continue
		}
		if isIgnoredLine(line) {
			continue
		}
		if curAction != nil {
			curBody = append(curBody, line)
		}
	}
	flushBlock()
	return blocks, nil
}

func parseEventHeader(line string) (pageEventBlock, error) {
	rest := strings.TrimSpace(strings.TrimPrefix(line, "-- grid:event"))
	tokens, err := shlex.Split(rest)
	if err != nil {
		return pageEventBlock{}, coreerr.Wrap(coreerr.Config, "configrepo.parseEventHeader", "tokenizing event header", err)
	}

	block := pageEventBlock{Element: -1}
	for _, tok := range tokens {
		key, value, ok := strings.Cut(tok, "=")
		if !ok {
			return pageEventBlock{}, coreerr.New(coreerr.Config, "configrepo.parseEventHeader", "malformed event header token: "+tok)
		}
		switch key {
		case "element":
			n, err := strconv.Atoi(value)
			if err != nil {
				return pageEventBlock{}, coreerr.New(coreerr.Config, "configrepo.parseEventHeader", "non-numeric element: "+value)
			}
			block.Element = n
		case "event":
			block.Event = value
		case "elementType":
			block.ElementType = value
		}
	}
	if block.Element < 0 || block.Event == "" {
		return pageEventBlock{}, coreerr.New(coreerr.Config, "configrepo.parseEventHeader", "event header missing element or event: "+line)
	}
	return block, nil
}

// renderPageFile serializes page into the on-disk script format. emptyFile
// is true when every event on this page equals its default (the
// "All events use default configuration" sentinel body is used instead of
// per-event blocks).
func renderPageFile(page int, events []pageEventBlock, emptyFile bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "-- grid: page=%d\n\n", page)
	if emptyFile {
		b.WriteString("-- All events use default configuration\n")
		return b.String()
	}
	for i, ev := range events {
		if i > 0 {
			b.WriteString("-- " + strings.Repeat("=", 60) + "\n")
		}
		fmt.Fprintf(&b, "-- grid:event element=%d event=%s", ev.Element, ev.Event)
		if ev.ElementType != "" {
			fmt.Fprintf(&b, " elementType=%s", ev.ElementType)
		}
		b.WriteString("\n")
		for _, a := range ev.Actions {
			if a.Name != "" {
				fmt.Fprintf(&b, "--[[@%s#%s]]\n", a.Short, a.Name)
			} else {
				fmt.Fprintf(&b, "--[[@%s]]\n", a.Short)
			}
			if a.Script != "" {
				b.WriteString(a.Script)
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}
