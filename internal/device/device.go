// Package device is the stateful façade over a Correlator: it maintains
// the heartbeat-discovered module inventory and drives the page/element/
// event transfer loops with retry, ordering, and page-switch coordination.
package device

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gridctl/internal/coreerr"
	"gridctl/internal/correlator"
	"gridctl/internal/domain"
	"gridctl/internal/elements"
	"gridctl/internal/protocol"
	"gridctl/internal/scriptcodec"
	"gridctl/internal/transport"
)

// Protocol version fields sent with every CONFIG request.
const (
	ProtocolVersionMajor = 1
	ProtocolVersionMinor = 0
	ProtocolVersionPatch = 0
)

// Per-request timeouts.
const (
	fetchTimeout      = 5 * time.Second
	sendTimeout       = 10 * time.Second
	pageActiveTimeout = 1500 * time.Millisecond
	storeTimeout      = 10 * time.Second
	eraseTimeout      = 15 * time.Second

	eventPacing         = 30 * time.Millisecond
	moduleDiscoveryPoll = 100 * time.Millisecond
	moduleDiscoveryTail = 500 * time.Millisecond
	editorHeartbeatTick = 300 * time.Millisecond

	maxConfigLength = 4096
)

const debugTextDisabledSubstring = "page change is disabled"

// PageFilter selects a page subset for fetch/send. At most one of Include
// or Exclude may be non-empty; neither set means "all pages".
type PageFilter struct {
	Include []int
	Exclude []int
}

func (f PageFilter) resolve() ([]int, error) {
	if len(f.Include) > 0 && len(f.Exclude) > 0 {
		return nil, coreerr.New(coreerr.Config, "device.PageFilter", "include and exclude are mutually exclusive")
	}
	if len(f.Include) > 0 {
		return f.Include, nil
	}
	excluded := map[int]bool{}
	for _, n := range f.Exclude {
		excluded[n] = true
	}
	var out []int
	for n := 0; n <= 3; n++ {
		if !excluded[n] {
			out = append(out, n)
		}
	}
	return out, nil
}

// Progress reports fetch/send advancement; index is non-decreasing across
// one fetchModuleConfig/sendModuleConfig call.
type Progress struct {
	Index, Total int
	Detail       string
}

// ProgressFunc receives Progress updates; nil is a valid no-op callback.
type ProgressFunc func(Progress)

// Device is the stateful façade described above. Safe for concurrent use.
type Device struct {
	link *transport.Link
	corr *correlator.Correlator
	log  zerolog.Logger

	mu                 sync.RWMutex
	modules            map[domain.Position]domain.ModuleInfo
	pageChangeDisabled bool
	closing            bool

	heartbeatStop chan struct{}
	heartbeatDone chan struct{}
	closeOnce     sync.Once
}

// New wires a Device on top of an already-running Correlator, registers
// the heartbeat/debug-text inventory sink, and starts the periodic editor
// heartbeat that keeps the host in the device's active-editor set.
func New(link *transport.Link, corr *correlator.Correlator, log zerolog.Logger) *Device {
	d := &Device{
		link:          link,
		corr:          corr,
		log:           log,
		modules:       make(map[domain.Position]domain.ModuleInfo),
		heartbeatStop: make(chan struct{}),
		heartbeatDone: make(chan struct{}),
	}
	corr.AddSink(d.onMessage)
	go d.editorHeartbeatLoop()
	return d
}

func (d *Device) onMessage(msg protocol.DecodedMessage) {
	d.mu.RLock()
	closing := d.closing
	d.mu.RUnlock()
	if closing {
		return
	}

	switch msg.Class {
	case "HEARTBEAT":
		d.handleHeartbeat(msg)
	case "DEBUGTEXT":
		d.handleDebugText(msg)
	}
}

func (d *Device) handleHeartbeat(msg protocol.DecodedMessage) {
	sx, ok1 := intParam(msg.BRC, "SX")
	sy, ok2 := intParam(msg.BRC, "SY")
	hwcfg, ok3 := intParam(msg.Params, "HWCFG")
	if !ok1 || !ok2 || !ok3 {
		d.log.Debug().Msg("device: dropping heartbeat with non-numeric SX/SY/HWCFG")
		return
	}

	var typeName string
	var typeID int
	if t, ok := elements.Lookup(hwcfg); ok {
		typeName, typeID = t.Name(), t.ID()
	} else {
		u := elements.Unknown(hwcfg)
		typeName, typeID = u.Name(), hwcfg
	}

	vmaj, _ := intParam(msg.Params, "VMAJOR")
	vmin, _ := intParam(msg.Params, "VMINOR")
	vpat, _ := intParam(msg.Params, "VPATCH")
	elementCount, _ := intParam(msg.Params, "ELEMENTCOUNT")

	pos := domain.Position{DX: int8(sx), DY: int8(sy)}
	info := domain.ModuleInfo{
		Position:     pos,
		TypeName:     typeName,
		TypeID:       typeID,
		Firmware:     domain.Firmware{Major: vmaj, Minor: vmin, Patch: vpat},
		ElementCount: elementCount,
	}

	d.mu.Lock()
	d.modules[pos] = info
	d.mu.Unlock()
}

func (d *Device) handleDebugText(msg protocol.DecodedMessage) {
	text, _ := msg.Params["TEXT"].(string)
	if containsSubstring(text, debugTextDisabledSubstring) {
		d.mu.Lock()
		d.pageChangeDisabled = true
		d.mu.Unlock()
	}
}

func containsSubstring(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

func intParam(m map[string]any, key string) (int, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	f, ok := protocol.ToFloat(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func (d *Device) editorHeartbeatLoop() {
	defer close(d.heartbeatDone)
	tick := time.NewTicker(editorHeartbeatTick)
	defer tick.Stop()
	for {
		select {
		case <-d.heartbeatStop:
			return
		case <-tick.C:
			desc := protocol.Descriptor{
				DX: protocol.BroadcastDX, DY: protocol.BroadcastDY,
				Class:       "EDITORHEARTBEAT",
				Instruction: protocol.Execute,
				Params:      map[string]any{"type": 255},
			}
			if err := d.encodeAndWrite(desc); err != nil {
				d.log.Warn().Err(err).Msg("device: editor heartbeat send failed")
			}
		}
	}
}

func (d *Device) encodeAndWrite(desc protocol.Descriptor) error {
	codec, err := protocol.Current()
	if err != nil {
		return err
	}
	payload, err := codec.EncodePacket(desc)
	if err != nil {
		return err
	}
	return d.link.Write(payload)
}

// GetModules returns a snapshot of the current inventory.
func (d *Device) GetModules() []domain.ModuleInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.ModuleInfo, 0, len(d.modules))
	for _, m := range d.modules {
		out = append(out, m)
	}
	return out
}

// WaitForModules polls the inventory every 100ms up to budget; once
// non-empty, it waits up to an additional 500ms (never exceeding the
// remaining budget) to let late heartbeats arrive, then returns a
// snapshot. It never fails; it may return an empty slice.
func (d *Device) WaitForModules(ctx context.Context, budget time.Duration) []domain.ModuleInfo {
	deadline := time.Now().Add(budget)
	ticker := time.NewTicker(moduleDiscoveryPoll)
	defer ticker.Stop()

	for {
		if len(d.GetModules()) > 0 {
			break
		}
		if time.Now().After(deadline) {
			return d.GetModules()
		}
		select {
		case <-ctx.Done():
			return d.GetModules()
		case <-ticker.C:
		}
	}

	remaining := time.Until(deadline)
	tail := moduleDiscoveryTail
	if remaining < tail {
		tail = remaining
	}
	if tail > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(tail):
		}
	}
	return d.GetModules()
}

// FetchEventConfig fetches the action list bound to (page, element,
// eventType) on the module at (dx,dy). failed is true if the device never
// returned a usable ACTIONSTRING within the retry budget (one retry on
// Timeout); callers must not mistake failed for "genuinely empty".
func (d *Device) FetchEventConfig(ctx context.Context, dx, dy int8, page, element, eventType int) (actions []domain.Action, failed bool) {
	attempt := func() ([]domain.Action, error) {
		desc := protocol.Descriptor{
			DX: dx, DY: dy,
			Class:       "CONFIG",
			Instruction: protocol.Fetch,
			Params: map[string]any{
				"VERSIONMAJOR": ProtocolVersionMajor, "VERSIONMINOR": ProtocolVersionMinor, "VERSIONPATCH": ProtocolVersionPatch,
				"PAGENUMBER": page, "ELEMENTNUMBER": element, "EVENTTYPE": eventType, "ACTIONLENGTH": 0,
			},
		}
		if err := d.encodeAndWrite(desc); err != nil {
			return nil, err
		}
		filter := protocol.Filter{
			Class: "CONFIG", Instruction: protocol.Report,
			Params: map[string]any{"PAGENUMBER": page, "ELEMENTNUMBER": element, "EVENTTYPE": eventType},
		}
		msg, err := d.corr.Await(filter, fetchTimeout)
		if err != nil {
			return nil, err
		}
		raw, ok := msg.Params["ACTIONSTRING"].(string)
		if !ok {
			return nil, coreerr.New(coreerr.Protocol, "device.FetchEventConfig", "missing or non-string ACTIONSTRING")
		}
		unwrapped, ok := scriptcodec.UnwrapLua(raw)
		if !ok {
			return nil, coreerr.New(coreerr.Protocol, "device.FetchEventConfig", "ACTIONSTRING missing <?lua ?> wrapper")
		}
		return scriptcodec.ParseWireActionString(unwrapped)
	}

	actions, err := attempt()
	if err != nil && coreerr.Is(err, coreerr.Timeout) {
		actions, err = attempt()
	}
	if err != nil {
		return nil, true
	}
	return actions, false
}

// FetchModuleConfig fetches every page/element/event combination for
// module, filtered by filter, aborting with ProtocolUnstable if the
// number of failed fetches exceeds max(5, floor(0.1*total)).
func (d *Device) FetchModuleConfig(ctx context.Context, module domain.ModuleInfo, filter PageFilter, progress ProgressFunc) (domain.ModuleConfig, error) {
	pages, err := filter.resolve()
	if err != nil {
		return domain.ModuleConfig{}, err
	}

	elemType := resolveType(module)
	type work struct {
		page, element int
		kind          elements.EventKind
	}
	var items []work
	for _, page := range pages {
		for elIdx := 0; elIdx < module.ElementCount; elIdx++ {
			for _, kind := range elemType.SupportedEvents() {
				items = append(items, work{page, elIdx, kind})
			}
		}
	}

	total := len(items)
	threshold := maxInt(5, int(math.Floor(0.1*float64(total))))

	pageMap := map[int][]domain.EventConfig{}
	failedCount := 0
	for i, it := range items {
		code, _ := elemType.Code(it.kind)
		actions, failed := d.FetchEventConfig(ctx, module.Position.DX, module.Position.DY, it.page, it.element, code)
		if failed {
			failedCount++
			if failedCount > threshold {
				return domain.ModuleConfig{}, coreerr.New(coreerr.Protocol, "device.FetchModuleConfig", "ProtocolUnstable")
			}
		}
		pageMap[it.page] = append(pageMap[it.page], domain.EventConfig{
			Element: it.element, EventType: string(it.kind), Actions: actions,
		})
		if progress != nil {
			progress(Progress{Index: i + 1, Total: total})
		}
	}

	var pageConfigs []domain.PageConfig
	for _, page := range pages {
		pageConfigs = append(pageConfigs, domain.PageConfig{Page: page, Events: pageMap[page]})
	}
	return domain.ModuleConfig{Module: module, Pages: pageConfigs}, nil
}

func resolveType(module domain.ModuleInfo) elements.Type {
	if t, ok := elements.ByID[module.TypeID]; ok {
		return t
	}
	return elements.Unknown(module.TypeID)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// SendEventConfig formats actions to the wire shape, validates its UTF-8
// byte length against the device's CONFIG_LENGTH limit, sends CONFIG/
// EXECUTE, and awaits CONFIG/ACKNOWLEDGE. Retried up to twice on Timeout.
func (d *Device) SendEventConfig(ctx context.Context, dx, dy int8, page, element, eventType int, actions []domain.Action) error {
	wire, err := scriptcodec.SerializeWireActionString(actions, nil)
	if err != nil {
		return err
	}
	wrapped := scriptcodec.WrapLua(wire)
	if len(wrapped) > maxConfigLength {
		return coreerr.New(coreerr.Protocol, "device.SendEventConfig", "ACTIONSTRING exceeds CONFIG_LENGTH")
	}

	attempt := func() error {
		desc := protocol.Descriptor{
			DX: dx, DY: dy,
			Class:       "CONFIG",
			Instruction: protocol.Execute,
			Params: map[string]any{
				"VERSIONMAJOR": ProtocolVersionMajor, "VERSIONMINOR": ProtocolVersionMinor, "VERSIONPATCH": ProtocolVersionPatch,
				"PAGENUMBER": page, "ELEMENTNUMBER": element, "EVENTTYPE": eventType,
				"ACTIONSTRING": wrapped, "ACTIONLENGTH": len(wrapped),
			},
		}
		if err := d.encodeAndWrite(desc); err != nil {
			return err
		}
		filter := protocol.Filter{
			Class: "CONFIG", Instruction: protocol.Ack,
			Params: map[string]any{"PAGENUMBER": page, "ELEMENTNUMBER": element, "EVENTTYPE": eventType},
		}
		_, err := d.corr.Await(filter, sendTimeout)
		return err
	}

	var lastErr error
	for i := 0; i < 3; i++ {
		lastErr = attempt()
		if lastErr == nil || !coreerr.Is(lastErr, coreerr.Timeout) {
			return lastErr
		}
	}
	return lastErr
}

// SendModuleConfig pushes config page by page, in event order, confirming
// each page switch before issuing any EXECUTE for that page and pacing
// successive EXECUTEs by eventPacing. target, if provided, overrides
// config.Module.Position as the addressing (dx,dy), enabling push by
// position match against a different physical device.
func (d *Device) SendModuleConfig(ctx context.Context, config domain.ModuleConfig, target *domain.ModuleInfo, progress ProgressFunc) error {
	pos := config.Module.Position
	var addrModule *domain.ModuleInfo
	if target != nil {
		pos = target.Position
		addrModule = target
	} else {
		addrModule = &config.Module
	}

	total := 0
	for _, p := range config.Pages {
		total += len(p.Events)
	}

	idx := 0
	for _, page := range config.Pages {
		ok, err := d.ChangePage(ctx, page.Page, addrModule)
		if err != nil {
			return err
		}
		if !ok {
			return coreerr.New(coreerr.Protocol, "device.SendModuleConfig", "page switch unconfirmed")
		}
		for _, ev := range page.Events {
			elemType := resolveType(config.Module)
			kind := elements.EventKind(ev.EventType)
			code, ok := elemType.Code(kind)
			if !ok {
				return coreerr.New(coreerr.Config, "device.SendModuleConfig", "unknown event type "+ev.EventType)
			}
			if err := d.SendEventConfig(ctx, pos.DX, pos.DY, page.Page, ev.Element, code, ev.Actions); err != nil {
				return err
			}
			idx++
			if progress != nil {
				progress(Progress{Index: idx, Total: total})
			}
			time.Sleep(eventPacing)
		}
	}
	return nil
}

// ChangePage attempts to switch the active page to n in up to two rounds;
// each round tries the broadcast address, then (if module is non-nil) the
// module's own address.
// If page_change_disabled is latched and n>0, storeToFlash is attempted
// first; the latch is cleared only if the store succeeds. ok reports
// whether any attempt was confirmed by a PAGEACTIVE/REPORT.
func (d *Device) ChangePage(ctx context.Context, n int, module *domain.ModuleInfo) (ok bool, err error) {
	d.mu.RLock()
	disabled := d.pageChangeDisabled
	d.mu.RUnlock()

	if disabled && n > 0 {
		if err := d.StoreToFlash(ctx); err == nil {
			d.mu.Lock()
			d.pageChangeDisabled = false
			d.mu.Unlock()
		}
	}

	attempts := []struct{ dx, dy int8 }{{protocol.BroadcastDX, protocol.BroadcastDY}}
	if module != nil {
		attempts = append(attempts, struct{ dx, dy int8 }{module.Position.DX, module.Position.DY})
	}

	for round := 0; round < 2; round++ {
		for _, a := range attempts {
			desc := protocol.Descriptor{
				DX: a.dx, DY: a.dy,
				Class:       "PAGEACTIVE",
				Instruction: protocol.Execute,
				Params:      map[string]any{"PAGENUMBER": n},
			}
			if err := d.encodeAndWrite(desc); err != nil {
				continue
			}
			filter := protocol.Filter{
				Class: "PAGEACTIVE", Instruction: protocol.Report,
				Params: map[string]any{"PAGENUMBER": n},
			}
			if _, err := d.corr.Await(filter, pageActiveTimeout); err == nil {
				return true, nil
			}
		}
	}
	return false, nil
}

// StoreToFlash persists the active page configuration, one retry on
// Timeout. Clears the page-change-disabled latch on success.
func (d *Device) StoreToFlash(ctx context.Context) error {
	attempt := func() error {
		desc := protocol.Descriptor{DX: protocol.BroadcastDX, DY: protocol.BroadcastDY, Class: "PAGESTORE", Instruction: protocol.Execute}
		if err := d.encodeAndWrite(desc); err != nil {
			return err
		}
		filter := protocol.Filter{Class: "PAGESTORE", Instruction: protocol.Ack}
		_, err := d.corr.Await(filter, storeTimeout)
		return err
	}
	err := attempt()
	if err != nil && coreerr.Is(err, coreerr.Timeout) {
		err = attempt()
	}
	if err == nil {
		d.mu.Lock()
		d.pageChangeDisabled = false
		d.mu.Unlock()
	}
	return err
}

// EraseNvm erases device non-volatile memory. No retry.
func (d *Device) EraseNvm(ctx context.Context) error {
	desc := protocol.Descriptor{DX: protocol.BroadcastDX, DY: protocol.BroadcastDY, Class: "NVMERASE", Instruction: protocol.Execute}
	if err := d.encodeAndWrite(desc); err != nil {
		return err
	}
	filter := protocol.Filter{Class: "NVMERASE", Instruction: protocol.Ack}
	_, err := d.corr.Await(filter, eraseTimeout)
	return err
}

// Close stops the editor heartbeat, marks the Device as closing (new
// heartbeat/debug-text messages are ignored), and closes the Correlator
// and Link beneath it. Close never fails.
func (d *Device) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closing = true
		d.mu.Unlock()
		close(d.heartbeatStop)
		d.corr.Close()
		d.link.Close()
		// Waited for only after the Link is closed, so a heartbeat blocked in
		// a port write is released instead of stalling Close.
		<-d.heartbeatDone
	})
}
