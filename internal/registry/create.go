package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/zjrosen/socon/internal/config"
	"github.com/zjrosen/socon/internal/module"
)

// createConfig resolves one installed entry into a Config.
//
// The entry is either the dotted path of a unit package, whose lookup module
// may declare its config, or the dotted path of a config declaration inside a
// module (pkg.mod.Class).
func createConfig(ctx context.Context, imp module.Importer, kind Kind, entry string) (*Config, error) {
	mod, err := imp.Import(ctx, entry)
	if err != nil {
		if !errors.Is(err, module.ErrNotFound) {
			return nil, err
		}
		return createFromDeclPath(ctx, imp, kind, entry, err)
	}

	lookup := kind.LookupModule()
	has, err := module.HasSubmodule(ctx, imp, entry, lookup)
	if err != nil {
		return nil, err
	}
	if !has {
		return validated(NewConfig(kind, module.ConfigDecl{}, mod, imp))
	}

	lookupPath := module.Join(entry, lookup)
	lm, err := imp.Import(ctx, lookupPath)
	if err != nil {
		return nil, err
	}
	decls := configDecls(lm)
	switch len(decls) {
	case 0:
		return validated(NewConfig(kind, module.ConfigDecl{}, mod, imp))
	case 1:
	default:
		names := make([]string, len(decls))
		for i, d := range decls {
			names[i] = d.name
		}
		return nil, fmt.Errorf("%w: '%s' declares %d %s configs (%s); declare exactly one",
			config.ErrImproperlyConfigured, lookupPath, len(decls), kind.Singular(), strings.Join(names, ", "))
	}

	decl := decls[0].decl
	if decl.Name != "" && decl.Name != entry {
		root, err := importDeclaredName(ctx, imp, decl, lookupPath+"."+decls[0].name)
		if err != nil {
			return nil, err
		}
		mod = root
	}
	return validated(NewConfig(kind, decl, mod, imp))
}

// createFromDeclPath handles entries of the form pkg.mod.Class. notFound is
// the error from importing the whole entry and is returned when the parent
// cannot be imported either.
func createFromDeclPath(ctx context.Context, imp module.Importer, kind Kind, entry string, notFound error) (*Config, error) {
	parent, attr := module.Split(entry)
	if parent == "" {
		return nil, notFound
	}
	pm, err := imp.Import(ctx, parent)
	if err != nil {
		return nil, notFound
	}

	v, ok := pm.Lookup(attr)
	if !ok {
		if looksLikeClass(attr) {
			var choices []string
			for _, d := range configDecls(pm) {
				choices = append(choices, "'"+d.name+"'")
			}
			msg := fmt.Sprintf("Module '%s' does not contain a '%s' class.", parent, attr)
			if len(choices) > 0 {
				msg += " Choices are: " + strings.Join(choices, ", ") + "."
			}
			return nil, fmt.Errorf("%w: %s", config.ErrImproperlyConfigured, msg)
		}
		return nil, notFound
	}

	decl, ok := v.(module.ConfigDecl)
	if !ok {
		return nil, fmt.Errorf("%w: '%s' isn't a config declaration", config.ErrImproperlyConfigured, entry)
	}
	if decl.Name == "" {
		return nil, fmt.Errorf("%w: '%s' must supply a name attribute", config.ErrImproperlyConfigured, entry)
	}
	root, err := importDeclaredName(ctx, imp, decl, entry)
	if err != nil {
		return nil, err
	}
	return validated(NewConfig(kind, decl, root, imp))
}

func importDeclaredName(ctx context.Context, imp module.Importer, decl module.ConfigDecl, declPath string) (module.Module, error) {
	root, err := imp.Import(ctx, decl.Name)
	if err != nil {
		return module.Module{}, fmt.Errorf("%w: Cannot import '%s'. Check that '%s.Name' is correct: %w",
			config.ErrImproperlyConfigured, decl.Name, declPath, err)
	}
	return root, nil
}

type namedDecl struct {
	name string
	decl module.ConfigDecl
}

func configDecls(m module.Module) []namedDecl {
	var out []namedDecl
	for _, s := range m.Symbols {
		if d, ok := s.Value.(module.ConfigDecl); ok {
			out = append(out, namedDecl{name: s.Name, decl: d})
		}
	}
	return out
}

func looksLikeClass(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}

func validated(c *Config) (*Config, error) {
	if !validLabel(c.label) {
		return nil, fmt.Errorf("%w: The %s label '%s' is not a valid identifier.",
			config.ErrImproperlyConfigured, c.kind.Singular(), c.label)
	}
	return c, nil
}

func validLabel(label string) bool {
	if label == "" {
		return false
	}
	for i, r := range label {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case unicode.IsDigit(r) && i > 0:
		default:
			return false
		}
	}
	return true
}
