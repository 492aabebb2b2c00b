// Package app wires the importers, registries and tracing behind the socon
// command line.
package app

import (
	"context"
	"fmt"

	"github.com/zjrosen/socon/internal/config"
	"github.com/zjrosen/socon/internal/core"
	"github.com/zjrosen/socon/internal/flags"
	"github.com/zjrosen/socon/internal/log"
	"github.com/zjrosen/socon/internal/management"
	"github.com/zjrosen/socon/internal/manager"
	"github.com/zjrosen/socon/internal/module"
	"github.com/zjrosen/socon/internal/module/script"
	"github.com/zjrosen/socon/internal/paths"
	"github.com/zjrosen/socon/internal/pubsub"
	"github.com/zjrosen/socon/internal/registry"
	"github.com/zjrosen/socon/internal/tracing"
)

// Options configures an App.
type Options struct {
	// Config is the tool configuration.
	Config config.Config
	// Flags gates the disk importer and the import cache. Nil uses the defaults.
	Flags *flags.Registry
	// BaseDir resolves relative source_paths. Empty means the working directory.
	BaseDir string
	// Units are extra in-process modules registered next to the built-in unit.
	Units []module.Spec
	// OnTierEvent, when set, receives the tier events of every load.
	OnTierEvent func(pubsub.Event[registry.TierEvent])
}

// App owns the importer chain shared by every runtime it loads.
type App struct {
	opts     Options
	table    *module.Table
	disk     *script.Importer
	cache    *module.Cached
	importer module.Importer
	tracer   *tracing.Provider
}

// New validates opts.Config and builds the importer chain: in-process units
// first, then the source roots on disk when script-commands is enabled.
func New(ctx context.Context, opts Options) (*App, error) {
	if err := config.Validate(opts.Config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if opts.Flags == nil {
		opts.Flags = flags.New(opts.Config.Flags)
	}

	a := &App{opts: opts, table: module.NewTable()}
	if err := core.Register(a.table); err != nil {
		return nil, err
	}
	for _, spec := range opts.Units {
		if err := a.table.Register(spec); err != nil {
			return nil, err
		}
	}

	chain := module.Chain{a.table}
	if opts.Flags.Enabled(flags.FlagScriptCommands) {
		roots := paths.ResolveSourceRoots(opts.BaseDir, opts.Config.SourcePaths)
		a.disk = script.New(roots...)
		var disk module.Importer = a.disk
		if opts.Flags.Enabled(flags.FlagImportCache) {
			a.cache = module.NewCached(a.disk, opts.Config.Cache.TTL)
			disk = a.cache
		}
		chain = append(chain, disk)
		log.Debug(log.CatModule, "disk importer enabled", "roots", roots, "cached", a.cache != nil)
	}
	a.importer = chain

	tc := tracing.DefaultConfig()
	tc.Enabled = opts.Config.Tracing.Enabled
	if opts.Config.Tracing.Exporter != "" {
		tc.Exporter = opts.Config.Tracing.Exporter
	}
	tc.FilePath = opts.Config.Tracing.FilePath
	if opts.Config.Tracing.OTLPEndpoint != "" {
		tc.OTLPEndpoint = opts.Config.Tracing.OTLPEndpoint
	}
	tc.SampleRate = opts.Config.Tracing.SampleRate
	tracer, err := tracing.NewProvider(ctx, tc)
	if err != nil {
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}
	a.tracer = tracer
	return a, nil
}

// Importer returns the importer chain runtimes resolve units through.
func (a *App) Importer() module.Importer { return a.importer }

// Sources returns the source roots on disk, nil when the disk importer is off.
func (a *App) Sources() []string {
	if a.disk == nil {
		return nil
	}
	return a.disk.Roots()
}

// Load builds a ready runtime for settingsModule. It is a management.Loader.
func (a *App) Load(ctx context.Context, settingsModule string) (*management.Runtime, error) {
	s, err := config.Load(ctx, a.importer, settingsModule)
	if err != nil {
		return nil, err
	}
	c := registry.NewCore(s, a.importer)
	managers := manager.NewRegistry(c)

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := c.Events().Subscribe(subCtx)
	setupErr := c.Setup(ctx)
	a.drain(events)
	if setupErr != nil {
		return nil, setupErr
	}

	rt := &management.Runtime{
		Core:          c,
		Managers:      managers,
		Sources:       a.Sources(),
		WatchDebounce: a.opts.Config.Watch.Debounce,
	}
	rt.Reload = func(ctx context.Context) (*management.Runtime, error) {
		if err := a.Invalidate(ctx); err != nil {
			return nil, err
		}
		return a.Load(ctx, settingsModule)
	}
	return rt, nil
}

// drain handles the tier events buffered during Setup.
func (a *App) drain(events <-chan pubsub.Event[registry.TierEvent]) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			p := ev.Payload
			switch ev.Type {
			case pubsub.FailedEvent:
				log.Warn(log.CatRegistry, "tier event", "type", ev.Type, "tier", p.Kind, "entry", p.Entry, "error", p.Err)
			default:
				log.Debug(log.CatRegistry, "tier event", "type", ev.Type, "tier", p.Kind, "configs", p.Configs, "failures", p.Failures)
			}
			if a.opts.OnTierEvent != nil {
				a.opts.OnTierEvent(ev)
			}
		default:
			return
		}
	}
}

// Invalidate drops cached disk imports so the next load sees changed files.
func (a *App) Invalidate(ctx context.Context) error {
	if a.cache == nil {
		return nil
	}
	return a.cache.Invalidate(ctx)
}

// Utility returns the command-line entry point backed by Load.
func (a *App) Utility(prog, version string) *management.Utility {
	return management.NewUtility(prog, version, a.Load)
}

// Close flushes pending spans.
func (a *App) Close(ctx context.Context) error {
	return a.tracer.Shutdown(ctx)
}
