package testutil

import (
	"fmt"

	"github.com/zjrosen/socon/internal/module"
)

// UnitOption configures a unit added to a Builder.
type UnitOption func(*unitData, *Builder)

// Declares adds a config declaration to the unit's lookup module. Declaring
// more than one makes the unit ambiguous.
func Declares(decl module.ConfigDecl) UnitOption {
	return func(u *unitData, _ *Builder) {
		name := decl.Class
		if name == "" {
			name = fmt.Sprintf("Config%d", len(u.decls))
		}
		u.decls = append(u.decls, module.Sym(name, decl))
	}
}

// Labeled declares the unit with a label other than its last segment.
func Labeled(label string) UnitOption {
	return Declares(module.ConfigDecl{Label: label})
}

// InDir sets the filesystem directory of the unit package.
func InDir(dir string) UnitOption {
	return func(u *unitData, _ *Builder) { u.dir = dir }
}

// Commands registers one command module per hook under
// <unit>.management.commands. Each module declares its hook as "Command".
func Commands(hooks map[string]any) UnitOption {
	return func(u *unitData, b *Builder) {
		for name, hook := range hooks {
			b.WithModule(module.Join(u.name, CommandsPackage, name), module.Sym("Command", hook))
		}
	}
}

// Hooks registers a hook module at <unit>.<lookup>.
func Hooks(lookup string, hooks ...any) UnitOption {
	return func(u *unitData, b *Builder) {
		symbols := make([]module.Symbol, len(hooks))
		for i, h := range hooks {
			symbols[i] = module.Sym(fmt.Sprintf("Hook%d", i), h)
		}
		b.WithModule(module.Join(u.name, lookup), symbols...)
	}
}

// Managers registers the unit's managers module with the given declarations
// or constructors.
func Managers(values ...any) UnitOption {
	return func(u *unitData, b *Builder) {
		symbols := make([]module.Symbol, len(values))
		for i, v := range values {
			symbols[i] = module.Sym(fmt.Sprintf("Manager%d", i), v)
		}
		b.WithModule(module.Join(u.name, ManagersModule), symbols...)
	}
}

// ProjectSettings registers the project settings module at
// <unit>.management.config.
func ProjectSettings(values map[string]any) UnitOption {
	return func(u *unitData, b *Builder) {
		b.WithSettings(module.Join(u.name, "management", "config"), values)
	}
}
