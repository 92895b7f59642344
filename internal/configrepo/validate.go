package configrepo

import (
	"fmt"
	"strconv"

	"gridctl/internal/coreerr"
	"gridctl/internal/domain"
	"gridctl/internal/elements"
)

// ValidatePush checks the invariants the push path must hold before any
// device operation starts: every EventConfig matches a supported event for
// its module's resolved element type (invariant c), and at most one
// EventConfig exists per (page, element, eventType) triple (invariant d).
// Diagnostics accumulate into a single *coreerr.ValidationErr rather than
// failing on the first bad event, so a push reports every problem at once;
// nil is returned when configs is entirely clean.
func ValidatePush(configs []domain.ModuleConfig) error {
	verr := &coreerr.ValidationErr{}
	for _, cfg := range configs {
		elemType := resolveElementType(cfg.Module)
		prefix := fmt.Sprintf("%s(%d,%d)", elemType.Name(), cfg.Module.Position.DX, cfg.Module.Position.DY)
		for _, page := range cfg.Pages {
			seen := map[[2]string]bool{}
			for _, ev := range page.Events {
				path := fmt.Sprintf("%s/page-%d/element-%d/%s", prefix, page.Page, ev.Element, ev.EventType)
				if !elemType.Supports(elements.EventKind(ev.EventType)) {
					verr.Add(path, "unknown event for element type "+elemType.Name())
					continue
				}
				key := [2]string{strconv.Itoa(ev.Element), ev.EventType}
				if seen[key] {
					verr.Add(path, "duplicate (page, element, eventType) binding")
					continue
				}
				seen[key] = true
			}
		}
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}
