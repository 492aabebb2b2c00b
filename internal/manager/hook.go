// Package manager discovers hooks declared by installed units and resolves
// which implementation of a named hook wins.
//
// A hook belongs to exactly one manager. Each manager scans the configs of
// every tier for its lookup module, registers the hooks it finds under
// (tier, config label, hook name), and resolves a name by walking the
// override chain: an explicitly named config, the user common config, the
// plugins in declaration order, then the built-in core config.
package manager

import (
	"reflect"
	"strings"
)

// Hook is a named extension point implementation.
type Hook interface {
	// Name is the hook name. An empty name is derived from the type, see NameOf.
	Name() string
	// ManagerName names the manager the hook is registered with.
	ManagerName() string
}

// Abstract is implemented by hooks that only serve as bases for others and
// must not be registered.
type Abstract interface {
	Abstract() bool
}

// NameOf returns the hook's name, falling back to its type name with a
// trailing "Command" removed, lower-cased.
func NameOf(h Hook) string {
	if name := h.Name(); name != "" {
		return name
	}
	t := reflect.TypeOf(h)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return strings.ToLower(strings.TrimSuffix(t.Name(), "Command"))
}

// IsAbstract reports whether h opts out of registration.
func IsAbstract(h Hook) bool {
	a, ok := h.(Abstract)
	return ok && a.Abstract()
}
