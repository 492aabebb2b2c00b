// Package paths resolves source roots and config file locations.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// EnvPath lists extra source roots, separated like PATH.
const EnvPath = "SOCON_PATH"

// ResolveSourceRoots makes entries absolute against base, expands a leading
// "~/", appends the roots from SOCON_PATH and drops duplicates. Order is kept.
func ResolveSourceRoots(base string, entries []string) []string {
	all := append([]string(nil), entries...)
	all = append(all, filepath.SplitList(os.Getenv(EnvPath))...)

	seen := make(map[string]bool, len(all))
	roots := make([]string, 0, len(all))
	for _, e := range all {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		p := expandHome(e)
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		p = filepath.Clean(p)
		if seen[p] {
			continue
		}
		seen[p] = true
		roots = append(roots, p)
	}
	return roots
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// UserConfigDir returns ~/.config/socon, or "" without a home directory.
func UserConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "socon")
}

// ProjectConfigPath returns the config file inside dir.
func ProjectConfigPath(dir string) string {
	return filepath.Join(dir, ".socon", "config.yaml")
}

// FindProjectConfig walks up from dir looking for .socon/config.yaml.
func FindProjectConfig(dir string) (string, bool) {
	dir = filepath.Clean(dir)
	for {
		candidate := ProjectConfigPath(dir)
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
