package script

import (
	"fmt"
	"os"
	"sort"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/socon/internal/module"
)

const (
	keyConfigs  = "configs"
	keyManagers = "managers"
)

// declarations is the typed part of a declaration file.
type declarations struct {
	Configs  []module.ConfigDecl  `yaml:"configs" toml:"configs"`
	Managers []module.ManagerDecl `yaml:"managers" toml:"managers"`
}

func decodeYAML(file string) ([]module.Symbol, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}
	var decls declarations
	if err := yaml.Unmarshal(data, &decls); err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}
	return symbolsFrom(decls, raw), nil
}

func decodeTOML(file string) ([]module.Symbol, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}
	var decls declarations
	if err := toml.Unmarshal(data, &decls); err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}
	return symbolsFrom(decls, raw), nil
}

// symbolsFrom orders symbols as configs, managers, then the remaining keys
// sorted by name. Config declarations are named by their class or by position.
func symbolsFrom(decls declarations, raw map[string]any) []module.Symbol {
	symbols := make([]module.Symbol, 0, len(decls.Configs)+len(decls.Managers)+len(raw))
	for i, c := range decls.Configs {
		name := c.Class
		if name == "" {
			name = fmt.Sprintf("Config%d", i)
		}
		symbols = append(symbols, module.Sym(name, c))
	}
	for i, m := range decls.Managers {
		name := m.Name
		if name == "" {
			name = fmt.Sprintf("Manager%d", i)
		}
		symbols = append(symbols, module.Sym(name, m))
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		if k == keyConfigs || k == keyManagers {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		symbols = append(symbols, module.Sym(k, raw[k]))
	}
	return symbols
}
