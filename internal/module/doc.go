// Package module resolves dotted module paths into declared values.
//
// A Module is what an import yields: a dotted path, an optional directory on
// disk, a package flag and the ordered symbols the module declares (config
// declarations, manager declarations, hooks, uppercase settings). Importers
// are the only way the registry and managers reach unit code, so a static
// Table of Go values and an on-disk source tree are interchangeable.
package module
