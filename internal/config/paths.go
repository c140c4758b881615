package config

import (
	"os"
	"path/filepath"
	"strings"
)

const defaultBaseDir = ".docent"

// Paths holds resolved filesystem paths for docent data.
type Paths struct {
	Base   string // ~/.docent
	Config string // ~/.docent/config.yaml
	Data   string // ~/.docent/data (SQLite registry)
	Docs   string // ~/.docent/docs (ingestion staging area)
	Logs   string // ~/.docent/logs
}

// ResolvePaths computes all standard paths from the home directory.
// If DOCENT_HOME is set, it overrides the default base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("DOCENT_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	return Paths{
		Base:   base,
		Config: filepath.Join(base, "config.yaml"),
		Data:   filepath.Join(base, "data"),
		Docs:   filepath.Join(base, "docs"),
		Logs:   filepath.Join(base, "logs"),
	}, nil
}

// EnsureDirs creates all standard directories if they don't exist.
func (p Paths) EnsureDirs() error {
	dirs := []string{p.Base, p.Data, p.Docs, p.Logs}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// DatabasePath returns the configured SQLite path, or the default under Data.
func (p Paths) DatabasePath(cfg *Config) string {
	if cfg.Storage.Path != "" {
		return cfg.Storage.Path
	}
	return filepath.Join(p.Data, "docent.db")
}

// blockedKeys may never appear as config path segments. They are inert
// in Go, but the file is shared with tooling that treats YAML as loose
// objects, so they stay rejected at the edge.
var blockedKeys = map[string]bool{
	"__proto__":   true,
	"prototype":   true,
	"constructor": true,
}

// ParseConfigPath splits a dot-separated key like "llm.model" into
// segments, rejecting empty or blocked ones.
func ParseConfigPath(raw string) ([]string, error) {
	parts := strings.Split(raw, ".")
	for _, p := range parts {
		switch {
		case p == "":
			return nil, &ConfigError{Message: "empty segment in config path: " + raw}
		case blockedKeys[p]:
			return nil, &ConfigError{Message: "config path contains blocked key: " + p}
		}
	}
	return parts, nil
}

// GetValueAtPath walks nested maps and returns the value at path.
func GetValueAtPath(root map[string]any, path []string) (any, bool) {
	parent, ok := descend(root, path, false)
	if !ok {
		return nil, false
	}
	v, ok := parent[path[len(path)-1]]
	return v, ok
}

// SetValueAtPath writes value at path, growing intermediate maps as it
// goes. A scalar in the way is replaced by a map, matching what a user
// editing the YAML by hand would end up with.
func SetValueAtPath(root map[string]any, path []string, value any) {
	parent, _ := descend(root, path, true)
	parent[path[len(path)-1]] = value
}

// UnsetValueAtPath deletes the value at path, reporting whether
// anything was there.
func UnsetValueAtPath(root map[string]any, path []string) bool {
	parent, ok := descend(root, path, false)
	if !ok {
		return false
	}
	last := path[len(path)-1]
	if _, ok := parent[last]; !ok {
		return false
	}
	delete(parent, last)
	return true
}

// descend returns the map holding the final segment of path. With
// create set it materializes missing levels (and replaces non-map
// values); otherwise it reports false as soon as the walk dead-ends.
func descend(root map[string]any, path []string, create bool) (map[string]any, bool) {
	current := root
	for _, key := range path[:len(path)-1] {
		child, ok := current[key].(map[string]any)
		if !ok {
			if !create {
				return nil, false
			}
			child = map[string]any{}
			current[key] = child
		}
		current = child
	}
	return current, true
}
