package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zjrosen/socon/internal/config"
	"github.com/zjrosen/socon/internal/log"
	"github.com/zjrosen/socon/internal/module"
	"github.com/zjrosen/socon/internal/pubsub"
	"github.com/zjrosen/socon/internal/tracing"
)

// State is the population state of a Store.
type State int

const (
	StateUnpopulated State = iota
	StatePopulating
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUnpopulated:
		return "unpopulated"
	case StatePopulating:
		return "populating"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// ManagerLoader runs the second population phase: it imports the managers
// module of a ready config and registers what it declares.
type ManagerLoader interface {
	LoadManagers(ctx context.Context, cfg *Config) error
}

// Failure records an installed entry that could not be loaded.
type Failure struct {
	Entry string
	Err   error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Entry, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// Store holds the configs of one tier in declaration order.
type Store struct {
	kind     Kind
	importer module.Importer
	events   *pubsub.Broker[TierEvent]

	mu        sync.RWMutex
	state     State
	configs   []*Config
	byLabel   map[string]*Config
	failures  []Failure
	installed []string
	loader    ManagerLoader
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithManagerLoader sets the loader run after the store becomes ready.
func WithManagerLoader(l ManagerLoader) StoreOption {
	return func(s *Store) { s.loader = l }
}

// WithEvents publishes lifecycle transitions to b.
func WithEvents(b *pubsub.Broker[TierEvent]) StoreOption {
	return func(s *Store) { s.events = b }
}

// NewStore creates an unpopulated store for kind.
func NewStore(kind Kind, imp module.Importer, opts ...StoreOption) *Store {
	s := &Store{
		kind:     kind,
		importer: imp,
		byLabel:  make(map[string]*Config),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Kind returns the tier of the store.
func (s *Store) Kind() Kind { return s.kind }

// SetManagerLoader replaces the phase two loader.
func (s *Store) SetManagerLoader(l ManagerLoader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loader = l
}

// State returns the population state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Ready reports whether the store is populated.
func (s *Store) Ready() bool {
	return s.State() == StateReady
}

// Populate resolves every installed entry and then loads their managers.
//
// Populating a ready store is a no-op and re-entering population fails with
// ErrPopulating. For projects, skipErrors records per-entry import failures in
// Failures instead of aborting. Duplicate names or labels always abort. An
// aborted population leaves the store unpopulated.
func (s *Store) Populate(ctx context.Context, installed []string, skipErrors bool) (err error) {
	s.mu.Lock()
	switch s.state {
	case StateReady:
		s.mu.Unlock()
		return nil
	case StatePopulating:
		s.mu.Unlock()
		return ErrPopulating
	}
	s.state = StatePopulating
	loader := s.loader
	s.mu.Unlock()

	ctx, span := tracing.Start(ctx, tracing.SpanPopulate,
		attribute.String(tracing.AttrTier, string(s.kind)),
		attribute.StringSlice(tracing.AttrInstalled, installed),
	)
	defer func() { tracing.End(span, err) }()

	s.publish(pubsub.PopulatingEvent, TierEvent{State: StatePopulating})
	log.Debug(log.CatRegistry, "populating", "tier", s.kind, "installed", installed)

	tolerate := skipErrors && s.kind == KindProject
	configs, failures, err := s.resolve(ctx, installed, tolerate)
	if err != nil {
		s.abort(err)
		return err
	}

	byLabel := make(map[string]*Config, len(configs))
	for _, c := range configs {
		byLabel[c.label] = c
	}
	s.mu.Lock()
	s.configs = configs
	s.byLabel = byLabel
	s.failures = failures
	s.installed = append([]string(nil), installed...)
	s.state = StateReady
	s.mu.Unlock()

	span.SetAttributes(attribute.Int(tracing.AttrFailures, len(failures)))

	if loader != nil {
		ctx, lspan := tracing.Start(ctx, tracing.SpanLoadManagers, attribute.String(tracing.AttrTier, string(s.kind)))
		for _, c := range configs {
			if lerr := loader.LoadManagers(ctx, c); lerr != nil {
				lerr = fmt.Errorf("load managers of %s '%s': %w", s.kind.Singular(), c.label, lerr)
				tracing.End(lspan, lerr)
				s.abort(lerr)
				return lerr
			}
		}
		tracing.End(lspan, nil)
	}

	s.publish(pubsub.ReadyEvent, TierEvent{State: StateReady, Configs: len(configs), Failures: len(failures)})
	log.Info(log.CatRegistry, "tier ready", "tier", s.kind, "configs", len(configs), "failures", len(failures))
	return nil
}

func (s *Store) resolve(ctx context.Context, installed []string, tolerate bool) ([]*Config, []Failure, error) {
	var (
		configs  []*Config
		failures []Failure
	)
	for _, entry := range installed {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		c, err := createConfig(ctx, s.importer, s.kind, entry)
		if err != nil {
			if !tolerate {
				return nil, nil, fmt.Errorf("%s '%s': %w", s.kind.Singular(), entry, err)
			}
			log.Warn(log.CatRegistry, "skipping unit that failed to load", "tier", s.kind, "entry", entry, "error", err)
			failures = append(failures, Failure{Entry: entry, Err: err})
			s.publish(pubsub.FailedEvent, TierEvent{State: StatePopulating, Entry: entry, Err: err})
			continue
		}
		configs = append(configs, c)
	}

	if dups := duplicates(configs, func(c *Config) string { return c.label }); len(dups) > 0 {
		return nil, nil, fmt.Errorf("%w: %s labels aren't unique, duplicates: %s",
			config.ErrImproperlyConfigured, s.kind.Title(), strings.Join(dups, ", "))
	}
	if dups := duplicates(configs, func(c *Config) string { return c.name }); len(dups) > 0 {
		return nil, nil, fmt.Errorf("%w: %s names aren't unique, duplicates: %s",
			config.ErrImproperlyConfigured, s.kind.Title(), strings.Join(dups, ", "))
	}
	return configs, failures, nil
}

func duplicates(configs []*Config, key func(*Config) string) []string {
	counts := make(map[string]int, len(configs))
	var dups []string
	for _, c := range configs {
		k := key(c)
		counts[k]++
		if counts[k] == 2 {
			dups = append(dups, k)
		}
	}
	return dups
}

func (s *Store) abort(err error) {
	s.mu.Lock()
	s.state = StateUnpopulated
	s.configs = nil
	s.byLabel = make(map[string]*Config)
	s.failures = nil
	s.installed = nil
	s.mu.Unlock()
	s.publish(pubsub.FailedEvent, TierEvent{State: StateUnpopulated, Err: err})
	log.ErrorErr(log.CatRegistry, "population aborted", err, "tier", s.kind)
}

func (s *Store) publish(t pubsub.EventType, ev TierEvent) {
	if s.events == nil {
		return
	}
	ev.Kind = s.kind
	s.events.Publish(t, ev)
}

// Configs returns the configs in declaration order.
func (s *Store) Configs() ([]*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateReady {
		return nil, ErrNotReady
	}
	return append([]*Config(nil), s.configs...), nil
}

// Config returns the config with the given label.
func (s *Store) Config(label string) (*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateReady {
		return nil, ErrNotReady
	}
	if c, ok := s.byLabel[label]; ok {
		return c, nil
	}
	msg := fmt.Sprintf("No installed %s with label '%s'.", s.kind.Singular(), label)
	for _, c := range s.configs {
		if c.name == label {
			msg += fmt.Sprintf(" Did you mean '%s'?", c.label)
			break
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrLookup, msg)
}

// ConfigByName returns the config whose dotted name is name.
func (s *Store) ConfigByName(name string) (*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateReady {
		return nil, ErrNotReady
	}
	for _, c := range s.configs {
		if c.name == name {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: No installed %s named '%s'.", ErrLookup, s.kind.Singular(), name)
}

// IsInstalled reports whether a config named name is in the ready store.
func (s *Store) IsInstalled(name string) bool {
	_, err := s.ConfigByName(name)
	return err == nil
}

// ContainingConfig returns the config whose package contains objectName. The
// longest matching name wins; ErrLookup is returned when none does.
func (s *Store) ContainingConfig(objectName string) (*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateReady {
		return nil, ErrNotReady
	}
	if c := longestContaining(s.configs, objectName); c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("%w: No installed %s contains '%s'.", ErrLookup, s.kind.Singular(), objectName)
}

func longestContaining(configs []*Config, objectName string) *Config {
	var best *Config
	for _, c := range configs {
		if objectName != c.name && !strings.HasPrefix(objectName, c.name+".") {
			continue
		}
		if best == nil || len(c.name) > len(best.name) {
			best = c
		}
	}
	return best
}

// Labels returns the labels in declaration order.
func (s *Store) Labels() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateReady {
		return nil, ErrNotReady
	}
	labels := make([]string, 0, len(s.configs))
	for _, c := range s.configs {
		labels = append(labels, c.label)
	}
	return labels, nil
}

// Failures returns the entries skipped during population.
func (s *Store) Failures() ([]Failure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateReady {
		return nil, ErrNotReady
	}
	return append([]Failure(nil), s.failures...), nil
}

// Installed returns the entries the store was last populated from, including
// the ones that failed.
func (s *Store) Installed() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.installed...)
}

func (s *Store) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.configs)
}

// Reset returns the store to the unpopulated state.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateUnpopulated
	s.configs = nil
	s.byLabel = make(map[string]*Config)
	s.failures = nil
	s.installed = nil
}

type storeSnapshot struct {
	state     State
	configs   []*Config
	byLabel   map[string]*Config
	failures  []Failure
	installed []string
}

// Override repopulates the store from installed until the returned restore
// func puts the previous contents back. Restore is safe to call once the
// override failed.
func (s *Store) Override(ctx context.Context, installed []string, skipErrors bool) (func(), error) {
	s.mu.Lock()
	if s.state == StatePopulating {
		s.mu.Unlock()
		return nil, ErrPopulating
	}
	snap := storeSnapshot{
		state:     s.state,
		configs:   s.configs,
		byLabel:   s.byLabel,
		failures:  s.failures,
		installed: s.installed,
	}
	s.state = StateUnpopulated
	s.configs = nil
	s.byLabel = make(map[string]*Config)
	s.failures = nil
	s.installed = nil
	s.mu.Unlock()

	restore := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.state = snap.state
		s.configs = snap.configs
		s.byLabel = snap.byLabel
		s.failures = snap.failures
		s.installed = snap.installed
	}
	if err := s.Populate(ctx, installed, skipErrors); err != nil {
		restore()
		return func() {}, err
	}
	return restore, nil
}
