package presentation

import (
	"context"

	"github.com/zjrosen/socon/internal/manager"
	"github.com/zjrosen/socon/internal/registry"
)

// RegistryDTO is the JSON view of a loaded runtime.
type RegistryDTO struct {
	SettingsModule string       `json:"settings_module"`
	Settings       []string     `json:"settings"`
	Tiers          []TierDTO    `json:"tiers"`
	Managers       []ManagerDTO `json:"managers"`
}

// TierDTO represents one populated tier.
type TierDTO struct {
	Kind      string       `json:"kind"`
	Installed []string     `json:"installed"`
	Configs   []ConfigDTO  `json:"configs"`
	Failures  []FailureDTO `json:"failures,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// ConfigDTO represents one installed unit.
type ConfigDTO struct {
	Label          string `json:"label"`
	Name           string `json:"name"`
	Path           string `json:"path,omitempty"`
	SettingsModule string `json:"settings_module,omitempty"` // projects only
}

// FailureDTO represents a project that failed to load.
type FailureDTO struct {
	Entry string `json:"entry"`
	Error string `json:"error"`
}

// ManagerDTO represents a manager and the hook names it discovered.
type ManagerDTO struct {
	Name  string   `json:"name"`
	Hooks []string `json:"hooks"`
	Error string   `json:"error,omitempty"`
}

// FromConfig converts a registry config to a DTO.
func FromConfig(cfg *registry.Config) ConfigDTO {
	dto := ConfigDTO{
		Label: cfg.Label(),
		Name:  cfg.Name(),
		Path:  cfg.Path(),
	}
	if cfg.Kind() == registry.KindProject {
		dto.SettingsModule = cfg.SettingsModule()
	}
	return dto
}

// FromStore converts a store to a DTO. A store that is not ready has no
// configs and carries the error instead.
func FromStore(s *registry.Store) TierDTO {
	dto := TierDTO{
		Kind:      string(s.Kind()),
		Installed: append(make([]string, 0), s.Installed()...),
		Configs:   make([]ConfigDTO, 0),
	}
	configs, err := s.Configs()
	if err != nil {
		dto.Error = err.Error()
		return dto
	}
	for _, cfg := range configs {
		dto.Configs = append(dto.Configs, FromConfig(cfg))
	}
	failures, err := s.Failures()
	if err != nil {
		dto.Error = err.Error()
		return dto
	}
	for _, f := range failures {
		dto.Failures = append(dto.Failures, FailureDTO{Entry: f.Entry, Error: f.Err.Error()})
	}
	return dto
}

// FromManager runs discovery for m and lists its hook names. A discovery
// error is reported in the DTO instead of failing the listing.
func FromManager(ctx context.Context, m manager.Manager) ManagerDTO {
	dto := ManagerDTO{Name: m.Name(), Hooks: make([]string, 0)}
	if err := m.FindAll(ctx); err != nil {
		dto.Error = err.Error()
	}
	dto.Hooks = append(dto.Hooks, m.GetHooksName()...)
	return dto
}

// FromRuntime converts the tiers, most important first, and the managers in
// registration order.
func FromRuntime(ctx context.Context, core *registry.Core, managers *manager.Registry) RegistryDTO {
	dto := RegistryDTO{
		SettingsModule: core.Settings().Module(),
		Settings:       core.Settings().Keys(),
		Tiers:          make([]TierDTO, 0, 3),
		Managers:       make([]ManagerDTO, 0),
	}
	for _, kind := range registry.ByImportance() {
		dto.Tiers = append(dto.Tiers, FromStore(core.Store(kind)))
	}
	for _, m := range managers.List() {
		dto.Managers = append(dto.Managers, FromManager(ctx, m))
	}
	return dto
}
