package registry

// Kind identifies a registry tier.
type Kind string

const (
	KindCommon  Kind = "common"
	KindPlugin  Kind = "plugins"
	KindProject Kind = "projects"
)

// LookupModule is the submodule of a unit package that declares its config.
func (k Kind) LookupModule() string {
	switch k {
	case KindCommon:
		return "config"
	case KindPlugin:
		return "plugins"
	default:
		return "projects"
	}
}

// Singular names one unit of the tier in messages.
func (k Kind) Singular() string {
	switch k {
	case KindCommon:
		return "common config"
	case KindPlugin:
		return "plugin"
	default:
		return "project"
	}
}

// Title is the capitalised tier name used at the start of messages.
func (k Kind) Title() string {
	switch k {
	case KindCommon:
		return "Common"
	case KindPlugin:
		return "Plugins"
	default:
		return "Projects"
	}
}

// ByImportance lists the tiers from most to least important for help output.
func ByImportance() []Kind {
	return []Kind{KindCommon, KindPlugin, KindProject}
}
