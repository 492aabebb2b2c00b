package cmd

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/socon/internal/app"
	"github.com/zjrosen/socon/internal/config"
	"github.com/zjrosen/socon/internal/module"
	"github.com/zjrosen/socon/internal/presentation"
	"github.com/zjrosen/socon/internal/registry"
)

func newRegistryListCmd(tf *toolFlags) *cobra.Command {
	var (
		settings string
		tiers    []string
		labels   []string
	)
	cmd := &cobra.Command{
		Use:   "registry:list",
		Short: "List the installed units and managers as JSON",
		Long: `List the installed units of every tier and the managers with the hooks
they discovered, as JSON.

Projects that failed to load are listed under "failures" of the projects tier.
A manager whose discovery failed carries the error instead of failing the
listing.

Examples:
  # List everything for the configured settings module
  socon registry:list

  # Use another settings module
  socon registry:list --settings mysite.settings

  # Only the projects tier
  socon registry:list --tier projects
  socon registry:list -t projects

  # Only some configs (repeatable)
  socon registry:list -l apollo -l core

  # Parse specific fields with jq
  socon registry:list | jq '.tiers[].configs[].label'
  socon registry:list | jq '.managers[].hooks'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, t := range tiers {
				if !validTier(t) {
					return fmt.Errorf("unknown tier %q, choices are: %s", t, strings.Join(tierNames(), ", "))
				}
			}

			cfg, base, cleanup, err := prepare(*tf)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			a, err := app.New(ctx, app.Options{Config: cfg, BaseDir: base})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(ctx) }()

			if settings == "" {
				settings = os.Getenv(config.EnvSettingsModule)
			}
			rt, err := a.Load(ctx, settings)
			if err != nil {
				return err
			}

			dto := presentation.FromRuntime(ctx, rt.Core, rt.Managers)
			if len(labels) > 0 {
				dto.Tiers = filterByLabels(dto.Tiers, labels)
			}
			formatter := presentation.NewFormatter(cmd.OutOrStdout())
			if len(tiers) > 0 {
				return formatter.FormatTiers(filterByKind(dto.Tiers, tiers))
			}
			return formatter.FormatRegistry(dto)
		},
	}
	cmd.Flags().StringVar(&settings, "settings", "",
		"settings module (default: $"+config.EnvSettingsModule+" or settings_module)")
	cmd.Flags().StringArrayVarP(&tiers, "tier", "t", nil,
		"only list these tiers (repeatable: "+strings.Join(tierNames(), ", ")+")")
	cmd.Flags().StringArrayVarP(&labels, "label", "l", nil,
		"only list configs with these labels (repeatable)")
	return cmd
}

func tierNames() []string {
	kinds := registry.ByImportance()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return names
}

func validTier(name string) bool {
	return slices.Contains(tierNames(), name)
}

// filterByKind keeps the tiers named in kinds, in importance order.
func filterByKind(tiers []presentation.TierDTO, kinds []string) []presentation.TierDTO {
	result := make([]presentation.TierDTO, 0, len(kinds))
	for _, t := range tiers {
		if slices.Contains(kinds, t.Kind) {
			result = append(result, t)
		}
	}
	return result
}

// filterByLabels keeps the configs whose label is one of labels. Failures are
// kept when their entry ends with one of the labels.
func filterByLabels(tiers []presentation.TierDTO, labels []string) []presentation.TierDTO {
	result := make([]presentation.TierDTO, 0, len(tiers))
	for _, t := range tiers {
		filtered := presentation.TierDTO{Kind: t.Kind, Configs: make([]presentation.ConfigDTO, 0)}
		for _, c := range t.Configs {
			if slices.Contains(labels, c.Label) {
				filtered.Configs = append(filtered.Configs, c)
			}
		}
		for _, f := range t.Failures {
			if _, label := module.Split(f.Entry); slices.Contains(labels, label) {
				filtered.Failures = append(filtered.Failures, f)
			}
		}
		result = append(result, filtered)
	}
	return result
}
