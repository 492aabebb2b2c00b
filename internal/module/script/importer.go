// Package script imports modules from source directories on disk.
//
// A dotted path maps onto the directory tree under each root: a directory is a
// package and a file is a module. Modules are Go scripts evaluated with yaegi,
// or YAML and TOML declaration files.
package script

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zjrosen/socon/internal/log"
	"github.com/zjrosen/socon/internal/module"
)

// Extensions lists the recognised module file extensions in lookup order.
var Extensions = []string{".go", ".yaml", ".yml", ".toml"}

// Importer resolves modules from a list of source roots. Earlier roots shadow
// later ones.
type Importer struct {
	roots []string
}

var _ module.Importer = (*Importer)(nil)

// New creates an Importer over roots. Empty roots are ignored.
func New(roots ...string) *Importer {
	kept := make([]string, 0, len(roots))
	for _, r := range roots {
		if strings.TrimSpace(r) != "" {
			kept = append(kept, r)
		}
	}
	return &Importer{roots: kept}
}

// Roots returns the source roots in lookup order.
func (imp *Importer) Roots() []string {
	return append([]string(nil), imp.roots...)
}

// Import resolves path against each root in turn.
func (imp *Importer) Import(ctx context.Context, path string) (module.Module, error) {
	if err := ctx.Err(); err != nil {
		return module.Module{}, err
	}
	rel, ok := relPath(path)
	if !ok {
		return module.Module{}, &module.NotFoundError{Path: path}
	}

	for _, root := range imp.roots {
		base := filepath.Join(root, rel)
		if isDir(base) {
			return module.Module{Path: path, Dir: base, Package: true}, nil
		}
		for _, ext := range Extensions {
			file := base + ext
			if !isFile(file) {
				continue
			}
			symbols, err := load(file)
			if err != nil {
				log.Warn(log.CatModule, "module failed to load", "path", path, "file", file, "error", err)
				return module.Module{}, fmt.Errorf("import %s: %w", path, err)
			}
			log.Debug(log.CatModule, "loaded script module", "path", path, "file", file, "symbols", len(symbols))
			return module.Module{Path: path, Dir: filepath.Dir(file), Symbols: symbols}, nil
		}
	}
	return module.Module{}, &module.NotFoundError{Path: path}
}

// Submodules lists packages and modules directly under path across all roots.
// Names starting with "_" or "." and Go test files are not modules.
func (imp *Importer) Submodules(ctx context.Context, path string) ([]module.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel, ok := relPath(path)
	if !ok {
		return nil, &module.NotFoundError{Path: path}
	}

	found := make(map[string]bool)
	seen := false
	for _, root := range imp.roots {
		dir := filepath.Join(root, rel)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrInvalid) || isFile(dir) {
				continue
			}
			return nil, fmt.Errorf("list %s: %w", path, err)
		}
		seen = true
		for _, e := range entries {
			name, isPkg, ok := entryName(e)
			if !ok {
				continue
			}
			found[name] = found[name] || isPkg
		}
	}
	if !seen {
		return nil, &module.NotFoundError{Path: path}
	}

	out := make([]module.Entry, 0, len(found))
	for name, isPkg := range found {
		out = append(out, module.Entry{Name: name, Package: isPkg})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func entryName(e fs.DirEntry) (name string, isPkg, ok bool) {
	name = e.Name()
	if strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
		return "", false, false
	}
	if e.IsDir() {
		return name, true, module.ValidPath(name)
	}
	if strings.HasSuffix(name, "_test.go") {
		return "", false, false
	}
	ext := filepath.Ext(name)
	for _, known := range Extensions {
		if ext == known {
			stem := strings.TrimSuffix(name, ext)
			return stem, false, module.ValidPath(stem) && !strings.Contains(stem, ".")
		}
	}
	return "", false, false
}

// relPath turns a dotted path into a relative filesystem path. Segments that
// would escape the root are rejected.
func relPath(path string) (string, bool) {
	if !module.ValidPath(path) {
		return "", false
	}
	segs := strings.Split(path, ".")
	for _, s := range segs {
		if strings.ContainsAny(s, `/\`) || s == "~" {
			return "", false
		}
	}
	return filepath.Join(segs...), true
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

func load(file string) ([]module.Symbol, error) {
	switch filepath.Ext(file) {
	case ".go":
		return evalGo(file)
	case ".yaml", ".yml":
		return decodeYAML(file)
	case ".toml":
		return decodeTOML(file)
	default:
		return nil, fmt.Errorf("unsupported module file %s", file)
	}
}
