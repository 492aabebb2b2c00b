package module

// ConfigDecl declares the configuration of one unit. A unit declares it in its
// lookup module (config, plugins or projects), or an installed entry can point
// at it directly by dotted path.
type ConfigDecl struct {
	// Name is the dotted path of the unit package. Optional in a lookup module,
	// where it defaults to the package path.
	Name string `yaml:"name" toml:"name"`
	// Label is the short alias; defaults to the last segment of Name.
	Label string `yaml:"label" toml:"label"`
	// Path overrides the filesystem root of the unit.
	Path string `yaml:"path" toml:"path"`
	// SettingsModule is the project settings module relative to the package.
	SettingsModule string `yaml:"settings_module" toml:"settings_module"`
	// Class names the declaration so entries can reference it as pkg.mod.Class.
	Class string `yaml:"class" toml:"class"`
}

// ManagerDecl declares a manager in a unit's managers module.
type ManagerDecl struct {
	Name         string `yaml:"name" toml:"name"`
	LookupModule string `yaml:"lookup_module" toml:"lookup_module"`
}

// Entrypoint is an executable symbol declared by a script module. It receives
// the remaining command-line arguments and returns text to print.
type Entrypoint func(args []string) (string, error)
