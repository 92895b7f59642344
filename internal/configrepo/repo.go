// Package configrepo serializes a ModuleConfig tree to and from the
// on-disk layout: one subdirectory per module (module.json plus zero or
// more page-<N>.lua script files), applying default-collapse on write and
// default-expansion on read against the elements package's descriptor
// tables.
package configrepo

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/exp/slices"

	"gridctl/internal/coreerr"
	"gridctl/internal/domain"
	"gridctl/internal/elements"
)

const filePerm = 0o644
const dirPerm = 0o755

var moduleDirPattern = regexp.MustCompile(`^(\d{2})-(.+)$`)

// Repo reads and writes module trees under a base directory.
type Repo struct {
	toolVersion string
	validator   *validator
}

// New builds a Repo. toolVersion is recorded in each module.json.
func New(toolVersion string) (*Repo, error) {
	v, err := newValidator()
	if err != nil {
		return nil, err
	}
	return &Repo{toolVersion: toolVersion, validator: v}, nil
}

// Write serializes configs under baseDir, one "NN-<slug>" directory per
// module in slice order (index is 1-based).
func (r *Repo) Write(baseDir string, configs []domain.ModuleConfig) error {
	if err := os.MkdirAll(baseDir, dirPerm); err != nil {
		return coreerr.Wrap(coreerr.Config, "configrepo.Write", "create base directory", err)
	}
	for i, cfg := range configs {
		if err := r.writeModule(baseDir, i+1, cfg); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) writeModule(baseDir string, index int, cfg domain.ModuleConfig) error {
	if !validTypeString(cfg.Module.TypeName) {
		return coreerr.New(coreerr.Config, "configrepo.writeModule", "unsafe module type string: "+cfg.Module.TypeName)
	}
	slug := slugify(cfg.Module.TypeName)
	dirName := fmt.Sprintf("%02d-%s", index, slug)
	dir, err := safeJoin(baseDir, dirName)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return coreerr.Wrap(coreerr.Config, "configrepo.writeModule", "create module directory", err)
	}

	elemType := resolveElementType(cfg.Module)
	kept, keptPages := collapsePages(cfg.Pages, elemType)

	if len(keptPages) == 0 {
		sentinel := renderPageFile(0, nil, true)
		if err := os.WriteFile(filepath.Join(dir, "page-0.lua"), []byte(sentinel), filePerm); err != nil {
			return coreerr.Wrap(coreerr.Config, "configrepo.writeModule", "write sentinel page file", err)
		}
		keptPages = []int{0}
	} else {
		for _, page := range keptPages {
			content := renderPageFile(page, kept[page], false)
			name := fmt.Sprintf("page-%d.lua", page)
			if err := os.WriteFile(filepath.Join(dir, name), []byte(content), filePerm); err != nil {
				return coreerr.Wrap(coreerr.Config, "configrepo.writeModule", "write "+name, err)
			}
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	mf := moduleFileFromInfo(index, cfg.Module, elemType.Name(), now, now, r.toolVersion)
	mf.Pages = keptPages

	data, err := json.MarshalIndent(mf, "", "  ")
	if err != nil {
		return coreerr.Wrap(coreerr.Config, "configrepo.writeModule", "marshal module.json", err)
	}
	if err := r.validator.Validate(data); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "module.json"), data, filePerm); err != nil {
		return coreerr.Wrap(coreerr.Config, "configrepo.writeModule", "write module.json", err)
	}
	return nil
}

// collapsePages splits each page's events into those that differ from the
// element type's factory default (kept, written to disk) versus those
// that match it (elided). A page with zero kept events is dropped
// entirely from the returned page-number list.
func collapsePages(pages []domain.PageConfig, elemType elements.Type) (kept map[int][]pageEventBlock, pageNumbers []int) {
	kept = map[int][]pageEventBlock{}
	for _, page := range pages {
		var blocks []pageEventBlock
		for _, ev := range page.Events {
			if isDefaultBinding(elemType, ev) {
				continue
			}
			blocks = append(blocks, pageEventBlock{
				Element: ev.Element, Event: ev.EventType, ElementType: elemType.Name(), Actions: ev.Actions,
			})
		}
		if len(blocks) > 0 {
			kept[page.Page] = blocks
			pageNumbers = append(pageNumbers, page.Page)
		}
	}
	sort.Ints(pageNumbers)
	return kept, pageNumbers
}

func isDefaultBinding(elemType elements.Type, ev domain.EventConfig) bool {
	kind := elements.EventKind(ev.EventType)
	dflt, hasDflt, _ := elemType.DefaultConfig(kind)
	if hasDflt {
		return domain.ActionsEqual(ev.Actions, dflt)
	}
	return len(ev.Actions) == 0
}

func resolveElementType(info domain.ModuleInfo) elements.Type {
	if t, ok := elements.ByID[info.TypeID]; ok {
		return t
	}
	if t, ok := elements.ByName[info.TypeName]; ok {
		return t
	}
	return elements.Unknown(info.TypeID)
}

// Read walks baseDir's module subdirectories in NN-order and reconstructs
// each ModuleConfig, expanding unlisted (element, event) pairs to their
// type's factory default.
func (r *Repo) Read(baseDir string) ([]domain.ModuleConfig, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Config, "configrepo.Read", "read base directory", err)
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() && moduleDirPattern.MatchString(e.Name()) {
			dirs = append(dirs, e.Name())
		}
	}
	slices.SortFunc(dirs, func(a, b string) int {
		return indexOf(a) - indexOf(b)
	})

	var out []domain.ModuleConfig
	for _, name := range dirs {
		dir, err := safeJoin(baseDir, name)
		if err != nil {
			return nil, err
		}
		cfg, err := r.readModule(dir)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

func indexOf(dirName string) int {
	m := moduleDirPattern.FindStringSubmatch(dirName)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

func (r *Repo) readModule(dir string) (domain.ModuleConfig, error) {
	data, err := os.ReadFile(filepath.Join(dir, "module.json"))
	if err != nil {
		return domain.ModuleConfig{}, coreerr.Wrap(coreerr.Config, "configrepo.readModule", "read module.json", err)
	}
	if err := r.validator.Validate(data); err != nil {
		return domain.ModuleConfig{}, err
	}
	var mf moduleFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return domain.ModuleConfig{}, coreerr.Wrap(coreerr.Config, "configrepo.readModule", "unmarshal module.json", err)
	}

	info := mf.toInfo()
	elemType := resolveElementType(info)

	var pages []domain.PageConfig
	for _, pageNum := range mf.Pages {
		pc, err := r.readPage(dir, pageNum, info, elemType)
		if err != nil {
			return domain.ModuleConfig{}, err
		}
		pages = append(pages, pc)
	}
	return domain.ModuleConfig{Module: info, Pages: pages}, nil
}

func (r *Repo) readPage(dir string, pageNum int, info domain.ModuleInfo, elemType elements.Type) (domain.PageConfig, error) {
	filename := fmt.Sprintf("page-%d.lua", pageNum)
	raw, err := os.ReadFile(filepath.Join(dir, filename))
	if err != nil {
		return domain.PageConfig{}, coreerr.Wrap(coreerr.Config, "configrepo.readPage", "read "+filename, err)
	}

	var warnings []string
	parsed, err := parsePageFile(filename, string(raw), func(w string) { warnings = append(warnings, w) })
	if err != nil {
		return domain.PageConfig{}, err
	}
	mf := moduleFileFromInfo(0, info, elemType.Name(), "", "", "")
	if err := validateAgainstManifest(mf, parsed.FrontMatter["module"], parsed.FrontMatter["position"]); err != nil {
		return domain.PageConfig{}, err
	}

	explicit := map[[2]string][]domain.Action{}
	for _, blk := range parsed.Events {
		if blk.ElementType != "" && blk.ElementType != elemType.Name() {
			warnings = append(warnings, fmt.Sprintf("page-%d.lua element %d: elementType %q disagrees with manifest %q; manifest wins", pageNum, blk.Element, blk.ElementType, elemType.Name()))
		}
		if !elemType.Supports(elements.EventKind(blk.Event)) {
			return domain.PageConfig{}, coreerr.New(coreerr.Config, "configrepo.readPage",
				fmt.Sprintf("%s(%d,%d)/page-%d/element-%d/%s: unknown event for element type %s",
					elemType.Name(), info.Position.DX, info.Position.DY, pageNum, blk.Element, blk.Event, elemType.Name()))
		}
		key := [2]string{strconv.Itoa(blk.Element), blk.Event}
		if _, dup := explicit[key]; dup {
			return domain.PageConfig{}, coreerr.New(coreerr.Config, "configrepo.readPage",
				fmt.Sprintf("%s(%d,%d)/page-%d/element-%d/%s: duplicate event binding",
					elemType.Name(), info.Position.DX, info.Position.DY, pageNum, blk.Element, blk.Event))
		}
		explicit[key] = blk.Actions
	}

	var events []domain.EventConfig
	for elIdx := 0; elIdx < info.ElementCount; elIdx++ {
		for _, kind := range elemType.SupportedEvents() {
			key := [2]string{strconv.Itoa(elIdx), string(kind)}
			actions, ok := explicit[key]
			if !ok {
				dflt, _, _ := elemType.DefaultConfig(kind)
				actions = dflt
			}
			events = append(events, domain.EventConfig{Element: elIdx, EventType: string(kind), Actions: actions})
		}
	}
	return domain.PageConfig{Page: pageNum, Events: events}, nil
}

// validateAgainstManifest checks invariant (e): a script file's front-matter
// module/position, when present, must agree with its parent module.json.
func validateAgainstManifest(mf moduleFile, frontMatterModule, frontMatterPosition string) error {
	if frontMatterModule != "" && frontMatterModule != mf.Type {
		return coreerr.New(coreerr.Config, "configrepo.validateAgainstManifest", "front-matter module disagrees with module.json")
	}
	if frontMatterPosition != "" {
		want := fmt.Sprintf("%d,%d", mf.Position[0], mf.Position[1])
		if strings.TrimSpace(frontMatterPosition) != want {
			return coreerr.New(coreerr.Config, "configrepo.validateAgainstManifest", "front-matter position disagrees with module.json")
		}
	}
	return nil
}
