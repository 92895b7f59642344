// Command gridctl pulls, pushes, clears and lists configuration for a
// chain of Grid USB-serial hardware modules. Argument parsing, help text
// and exit codes are deliberately minimal here — the command-line surface
// is an out-of-core concern (spec §1); this file exists to wire the real
// engine (framer/transport/correlator/device/configrepo) into something
// runnable end to end.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gridctl/internal/configrepo"
	"gridctl/internal/coreerr"
	"gridctl/internal/correlator"
	"gridctl/internal/device"
	"gridctl/internal/domain"
	"gridctl/internal/enumerate"
	"gridctl/internal/pagelist"
	"gridctl/internal/protocol"
	"gridctl/internal/protocol/wire"
	"gridctl/internal/transport"
)

const toolVersion = "0.1.0"

var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	if err := dispatch(os.Args[1], os.Args[2:]); err != nil {
		log.Error().Err(err).Msg("gridctl: command failed")
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  gridctl devices
  gridctl clear [--dry-run] [-d path]
  gridctl pull <dir> [-d path] [-f] [--pages L] [--skip-pages L]
  gridctl push <dir> [-d path] [--dry-run] [--clear] [--no-store] [--pages L] [--skip-pages L]`)
}

type flags struct {
	devicePath string
	dir        string
	dryRun     bool
	force      bool
	clear      bool
	noStore    bool
	pages      string
	skipPages  string
}

func parseFlags(args []string) (flags, []string) {
	var f flags
	var positional []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		next := func() string {
			if i+1 < len(args) {
				i++
				return args[i]
			}
			return ""
		}
		switch {
		case a == "-d":
			f.devicePath = next()
		case a == "--dry-run":
			f.dryRun = true
		case a == "-f":
			f.force = true
		case a == "--clear":
			f.clear = true
		case a == "--no-store":
			f.noStore = true
		case strings.HasPrefix(a, "--pages"):
			f.pages = flagValue(a, next)
		case strings.HasPrefix(a, "--skip-pages"):
			f.skipPages = flagValue(a, next)
		default:
			positional = append(positional, a)
		}
	}
	return f, positional
}

func flagValue(a string, next func() string) string {
	if eq := strings.IndexByte(a, '='); eq >= 0 {
		return a[eq+1:]
	}
	return next()
}

func dispatch(cmd string, args []string) error {
	f, positional := parseFlags(args)

	switch cmd {
	case "devices":
		return cmdDevices()
	case "clear":
		return cmdClear(f)
	case "pull":
		if len(positional) < 1 {
			usage()
			return coreerr.New(coreerr.Config, "main.dispatch", "pull requires a directory argument")
		}
		return cmdPull(positional[0], f)
	case "push":
		if len(positional) < 1 {
			usage()
			return coreerr.New(coreerr.Config, "main.dispatch", "push requires a directory argument")
		}
		return cmdPush(positional[0], f)
	default:
		usage()
		return coreerr.New(coreerr.Config, "main.dispatch", "unknown command "+cmd)
	}
}

func cmdDevices() error {
	for _, d := range enumerateDevices() {
		fmt.Printf("%s\tvid=%04x pid=%04x\t%s\t%s\n", d.Path, d.VendorID, d.ProductID, d.Product, d.SerialNum)
	}
	return nil
}

func enumerateDevices() []domain.DeviceInfo {
	return enumerate.Filter(enumerate.SysfsSource{})
}

// openSession picks the device path (explicit -d, or the sole enumerated
// device), opens the Link/Correlator/Device stack, and waits a short time
// for the initial heartbeat-discovered module inventory.
func openSession(ctx context.Context, devicePath string) (*device.Device, []domain.ModuleInfo, error) {
	if devicePath == "" {
		found := enumerateDevices()
		if len(found) == 0 {
			return nil, nil, coreerr.New(coreerr.Connection, "main.openSession", "no Grid device found; pass -d")
		}
		if len(found) > 1 {
			return nil, nil, coreerr.New(coreerr.Connection, "main.openSession", "multiple Grid devices found; pass -d to pick one")
		}
		devicePath = found[0].Path
	}

	codec := wire.New()
	protocol.InitProtocol(codec)

	link, err := transport.Open(devicePath, codec, log)
	if err != nil {
		return nil, nil, err
	}
	corr := correlator.New(link, log)
	dev := device.New(link, corr, log)

	modules := dev.WaitForModules(ctx, 3*time.Second)
	return dev, modules, nil
}

func cmdClear(f flags) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dev, _, err := openSession(ctx, f.devicePath)
	if err != nil {
		return err
	}
	defer dev.Close()

	if f.dryRun {
		log.Info().Msg("clear: dry-run, not erasing NVM")
		return nil
	}
	return dev.EraseNvm(ctx)
}

func cmdPull(dir string, f flags) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	include, exclude, err := resolvePageLists(f)
	if err != nil {
		return err
	}

	dev, modules, err := openSession(ctx, f.devicePath)
	if err != nil {
		return err
	}
	defer dev.Close()

	if len(modules) == 0 {
		return coreerr.New(coreerr.Protocol, "main.cmdPull", "no modules discovered; check the connection")
	}
	if _, err := os.Stat(dir); err == nil && !f.force {
		return coreerr.New(coreerr.Config, "main.cmdPull", dir+" already exists; pass -f to overwrite")
	}

	filter := device.PageFilter{Include: include, Exclude: exclude}
	var configs []domain.ModuleConfig
	for _, m := range modules {
		log.Info().Str("module", m.TypeName).Msg("pull: fetching module")
		cfg, err := dev.FetchModuleConfig(ctx, m, filter, func(p device.Progress) {
			log.Debug().Int("index", p.Index).Int("total", p.Total).Msg("pull: progress")
		})
		if err != nil {
			return err
		}
		configs = append(configs, cfg)
	}

	repo, err := configrepo.New(toolVersion)
	if err != nil {
		return err
	}
	return repo.Write(dir, configs)
}

func cmdPush(dir string, f flags) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	include, exclude, err := resolvePageLists(f)
	if err != nil {
		return err
	}

	repo, err := configrepo.New(toolVersion)
	if err != nil {
		return err
	}
	configs, err := repo.Read(dir)
	if err != nil {
		return err
	}
	if err := configrepo.ValidatePush(configs); err != nil {
		return err
	}
	configs = filterConfigPages(configs, include, exclude)

	dev, modules, err := openSession(ctx, f.devicePath)
	if err != nil {
		return err
	}
	defer dev.Close()

	if f.dryRun {
		log.Info().Int("modules", len(configs)).Msg("push: dry-run, nothing sent")
		return nil
	}
	if f.clear {
		if err := dev.EraseNvm(ctx); err != nil {
			return err
		}
	}

	byPosition := map[domain.Position]domain.ModuleInfo{}
	for _, m := range modules {
		byPosition[m.Position] = m
	}

	for _, cfg := range configs {
		var target *domain.ModuleInfo
		if m, ok := byPosition[cfg.Module.Position]; ok {
			target = &m
		}
		log.Info().Str("module", cfg.Module.TypeName).Msg("push: sending module")
		if err := dev.SendModuleConfig(ctx, cfg, target, func(p device.Progress) {
			log.Debug().Int("index", p.Index).Int("total", p.Total).Msg("push: progress")
		}); err != nil {
			return err
		}
	}

	if !f.noStore {
		return dev.StoreToFlash(ctx)
	}
	return nil
}

func resolvePageLists(f flags) (include, exclude []int, err error) {
	if f.pages != "" {
		include, err = pagelist.Parse(f.pages)
		if err != nil {
			return nil, nil, err
		}
	}
	if f.skipPages != "" {
		exclude, err = pagelist.Parse(f.skipPages)
		if err != nil {
			return nil, nil, err
		}
	}
	if len(include) > 0 && len(exclude) > 0 {
		return nil, nil, coreerr.New(coreerr.Config, "main.resolvePageLists", "--pages and --skip-pages are mutually exclusive")
	}
	return include, exclude, nil
}

func filterConfigPages(configs []domain.ModuleConfig, include, exclude []int) []domain.ModuleConfig {
	if len(include) == 0 && len(exclude) == 0 {
		return configs
	}
	wanted, err := pagelist.Resolve(include, exclude)
	if err != nil {
		return configs
	}
	want := map[int]bool{}
	for _, p := range wanted {
		want[p] = true
	}
	out := make([]domain.ModuleConfig, len(configs))
	for i, cfg := range configs {
		var pages []domain.PageConfig
		for _, p := range cfg.Pages {
			if want[p.Page] {
				pages = append(pages, p)
			}
		}
		out[i] = domain.ModuleConfig{Module: cfg.Module, Pages: pages}
	}
	return out
}
