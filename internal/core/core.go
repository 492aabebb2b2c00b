// Package core declares the built-in socon.core unit: the command and
// subcommand managers and the check command.
package core

import (
	"github.com/zjrosen/socon/internal/management"
	"github.com/zjrosen/socon/internal/manager"
	"github.com/zjrosen/socon/internal/module"
	"github.com/zjrosen/socon/internal/registry"
)

// Specs returns the modules of the built-in unit.
func Specs() []module.Spec {
	return []module.Spec{
		{Path: registry.CoreName, Package: true},
		{
			Path: module.Join(registry.CoreName, manager.ManagersModule),
			Load: module.Static(
				module.Sym("CommandManager", management.CommandManagerConstructor(management.CommandsManager, management.CommandsLookup)),
				module.Sym("SubcommandManager", management.CommandManagerConstructor(management.SubcommandsManager, management.SubcommandsLookup)),
			),
		},
		{
			Path: module.Join(registry.CoreName, management.CommandsLookup, "check"),
			Load: module.Static(module.Sym("CheckCommand", CheckCommand{})),
		},
	}
}

// Register adds the built-in unit to tbl.
func Register(tbl *module.Table) error {
	for _, spec := range Specs() {
		if err := tbl.Register(spec); err != nil {
			return err
		}
	}
	return nil
}
