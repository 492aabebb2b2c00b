package module

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is matched by every error reporting a missing module.
var ErrNotFound = errors.New("module not found")

// ErrDuplicateModule is returned when a path is registered twice in a Table.
var ErrDuplicateModule = errors.New("module already registered")

// NotFoundError reports the dotted path that could not be resolved.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no module named '%s'", e.Path)
}

// Is makes errors.Is(err, ErrNotFound) true for NotFoundError values.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Symbol is one named value declared by a module.
type Symbol struct {
	Name  string
	Value any
}

// Sym is shorthand for building a Symbol.
func Sym(name string, value any) Symbol {
	return Symbol{Name: name, Value: value}
}

// Module is the result of importing a dotted path.
type Module struct {
	Path    string
	Dir     string
	Package bool
	Symbols []Symbol
}

// Lookup returns the value of the named symbol.
func (m Module) Lookup(name string) (any, bool) {
	for _, s := range m.Symbols {
		if s.Name == name {
			return s.Value, true
		}
	}
	return nil, false
}

// Values returns the declared values in declaration order.
func (m Module) Values() []any {
	values := make([]any, 0, len(m.Symbols))
	for _, s := range m.Symbols {
		values = append(values, s.Value)
	}
	return values
}

// Entry describes one submodule of a package.
type Entry struct {
	Name    string
	Package bool
}

// Importer resolves dotted module paths.
type Importer interface {
	// Import loads the module at path. Missing modules yield an error matching
	// ErrNotFound.
	Import(ctx context.Context, path string) (Module, error)
	// Submodules lists the direct children of the package at path, sorted by name.
	Submodules(ctx context.Context, path string) ([]Entry, error)
}

// Join builds a dotted path from its parts, skipping empty parts.
func Join(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ".")
}

// Split returns the parent path and the last segment of path.
func Split(path string) (parent, last string) {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return "", path
	}
	return path[:idx], path[idx+1:]
}

// Head returns the first segment of path.
func Head(path string) string {
	head, _, _ := strings.Cut(path, ".")
	return head
}

// ValidPath reports whether path is a non-empty dotted path without empty
// segments.
func ValidPath(path string) bool {
	if path == "" {
		return false
	}
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return false
		}
	}
	return true
}

// HasSubmodule reports whether the package at path has a direct child named
// name. Lookup errors other than a missing package are returned.
func HasSubmodule(ctx context.Context, imp Importer, path, name string) (bool, error) {
	entries, err := imp.Submodules(ctx, path)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	for _, e := range entries {
		if e.Name == name {
			return true, nil
		}
	}
	return false, nil
}
