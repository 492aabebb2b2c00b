package registry

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zjrosen/socon/internal/config"
	"github.com/zjrosen/socon/internal/log"
	"github.com/zjrosen/socon/internal/module"
	"github.com/zjrosen/socon/internal/pubsub"
	"github.com/zjrosen/socon/internal/tracing"
)

// CoreName is the package of the built-in common config.
const CoreName = "socon.core"

// CoreLabel is the label of the built-in common config.
const CoreLabel = "core"

// Core owns the three tier stores and populates them in order.
type Core struct {
	settings *config.Settings
	importer module.Importer
	events   *pubsub.Broker[TierEvent]

	plugins  *Store
	projects *Store
	commons  *Store

	mu    sync.Mutex
	ready bool
}

// NewCore creates the registries for settings, resolving units through imp.
func NewCore(settings *config.Settings, imp module.Importer) *Core {
	events := pubsub.NewBrokerWithBuffer[TierEvent](64)
	return &Core{
		settings: settings,
		importer: imp,
		events:   events,
		plugins:  NewStore(KindPlugin, imp, WithEvents(events)),
		projects: NewStore(KindProject, imp, WithEvents(events)),
		commons:  NewStore(KindCommon, imp, WithEvents(events)),
	}
}

// SetManagerLoader installs the phase two loader on every store. It must be
// called before Setup.
func (c *Core) SetManagerLoader(l ManagerLoader) {
	for _, s := range c.stores() {
		s.SetManagerLoader(l)
	}
}

func (c *Core) stores() []*Store {
	return []*Store{c.plugins, c.projects, c.commons}
}

// Setup populates plugins, then projects, then commons. Plugin and common
// failures are fatal; project failures follow SKIP_ERROR_ON_PROJECTS_IMPORT.
func (c *Core) Setup(ctx context.Context) (err error) {
	ctx, span := tracing.Start(ctx, tracing.SpanCoreSetup, attribute.String("socon.settings_module", c.settings.Module()))
	defer func() { tracing.End(span, err) }()

	if err := c.plugins.Populate(ctx, c.settings.GetStringSlice(config.InstalledPlugins), false); err != nil {
		return err
	}
	skip := c.settings.GetBool(config.SkipErrorOnProjectsImport)
	if err := c.projects.Populate(ctx, c.settings.GetStringSlice(config.InstalledProjects), skip); err != nil {
		return err
	}
	if err := c.commons.Populate(ctx, c.commonEntries(), false); err != nil {
		return err
	}

	c.mu.Lock()
	c.ready = true
	c.mu.Unlock()
	log.Info(log.CatRegistry, "registries ready",
		"plugins", c.plugins.count(), "projects", c.projects.count(), "commons", c.commons.count())
	return nil
}

func (c *Core) commonEntries() []string {
	entries := []string{CoreName}
	if name := c.settings.ModuleName(); name != "" && name != CoreName {
		entries = append(entries, name)
	}
	return entries
}

// Ready reports whether all three tiers are populated.
func (c *Core) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready && c.plugins.Ready() && c.projects.Ready() && c.commons.Ready()
}

func (c *Core) Plugins() *Store  { return c.plugins }
func (c *Core) Projects() *Store { return c.projects }
func (c *Core) Commons() *Store  { return c.commons }

// Store returns the store of the given tier.
func (c *Core) Store(kind Kind) *Store {
	switch kind {
	case KindPlugin:
		return c.plugins
	case KindProject:
		return c.projects
	default:
		return c.commons
	}
}

func (c *Core) Settings() *config.Settings { return c.settings }
func (c *Core) Importer() module.Importer  { return c.importer }

// Events is the broker receiving tier lifecycle events.
func (c *Core) Events() *pubsub.Broker[TierEvent] { return c.events }

// CoreConfig returns the built-in common config.
func (c *Core) CoreConfig() (*Config, error) {
	return c.commons.Config(CoreLabel)
}

// UserCommonConfig returns the common config named after the settings module,
// or nil when there is none.
func (c *Core) UserCommonConfig() *Config {
	name := c.settings.ModuleName()
	if name == "" || name == CoreName {
		return nil
	}
	cfg, err := c.commons.ConfigByName(name)
	if err != nil {
		return nil
	}
	return cfg
}

// UserConfigs returns plugins then projects, each in declaration order.
func (c *Core) UserConfigs() ([]*Config, error) {
	plugins, err := c.plugins.Configs()
	if err != nil {
		return nil, err
	}
	projects, err := c.projects.Configs()
	if err != nil {
		return nil, err
	}
	return append(plugins, projects...), nil
}

// RegistriesByImportance lists the tier names from most to least important.
func (c *Core) RegistriesByImportance() []string {
	kinds := ByImportance()
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

// ContainingConfig returns the config, from any ready tier, whose package
// contains objectName. The longest matching name wins.
func (c *Core) ContainingConfig(objectName string) *Config {
	var all []*Config
	for _, s := range c.stores() {
		if cfgs, err := s.Configs(); err == nil {
			all = append(all, cfgs...)
		}
	}
	return longestContaining(all, objectName)
}

// ActiveProjectLabel returns label, or SOCON_ACTIVE_PROJECT when label is
// empty.
func (c *Core) ActiveProjectLabel(label string) string {
	if label == "" {
		return os.Getenv(config.EnvActiveProject)
	}
	return label
}

// ActiveProject returns the project labelled ActiveProjectLabel(label). With
// no label at all it returns ErrNoActiveProject listing the installed
// projects.
func (c *Core) ActiveProject(label string) (*Config, error) {
	label = c.ActiveProjectLabel(label)
	if label == "" {
		labels, err := c.projects.Labels()
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: Cannot autodetect any project. You can find below the list of the available projects:\n[%s]",
			ErrNoActiveProject, quoteJoin(labels))
	}
	return c.projects.Config(label)
}

func quoteJoin(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = "'" + s + "'"
	}
	return strings.Join(quoted, ", ")
}

// Reset returns every store to the unpopulated state.
func (c *Core) Reset() {
	c.mu.Lock()
	c.ready = false
	c.mu.Unlock()
	for _, s := range c.stores() {
		s.Reset()
	}
}
