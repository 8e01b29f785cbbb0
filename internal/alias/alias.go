// Package alias implements the per-user alias store (spec §3 Alias,
// SPEC_FULL.md "zr alias add|remove|show|list persists to the per-user
// alias store as well as reading config-file aliases").
package alias

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/adrg/xdg"

	"github.com/zr-run/zr/internal/config"
	"github.com/zr-run/zr/internal/zrerrors"
)

// storeFileName is the JSON file holding user-level aliases, parallel to
// the config file's [alias] table but independent of any one project.
const storeFileName = "aliases.json"

// Store is the per-user alias store, rooted at the XDG config home (spec §6
// "Alias store (per-user) at the user's home config directory").
type Store struct {
	path string
}

// Open resolves the store path under the XDG config home (~/.config/zr on
// linux, the platform equivalent elsewhere) and ensures its directory
// exists.
func Open() (*Store, error) {
	path, err := xdg.ConfigFile(filepath.Join("zr", storeFileName))
	if err != nil {
		return nil, zrerrors.Wrap(zrerrors.KindIO, err, "resolve alias store path")
	}
	return &Store{path: path}, nil
}

func (s *Store) load() (map[string][]string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string][]string{}, nil
	}
	if err != nil {
		return nil, zrerrors.Wrap(zrerrors.KindIO, err, "read alias store %s", s.path)
	}
	var m map[string][]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, zrerrors.Wrap(zrerrors.KindIO, err, "parse alias store %s", s.path)
	}
	return m, nil
}

func (s *Store) save(m map[string][]string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return zrerrors.Wrap(zrerrors.KindIO, err, "marshal alias store")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return zrerrors.Wrap(zrerrors.KindIO, err, "create alias store dir")
	}
	return os.WriteFile(s.path, data, 0o644)
}

// Add sets name's expansion, overwriting any prior value.
func (s *Store) Add(name string, values []string) error {
	m, err := s.load()
	if err != nil {
		return err
	}
	m[name] = values
	return s.save(m)
}

// Remove deletes name from the store; removing an unknown name is not an
// error.
func (s *Store) Remove(name string) error {
	m, err := s.load()
	if err != nil {
		return err
	}
	delete(m, name)
	return s.save(m)
}

// Show returns name's expansion and whether it exists.
func (s *Store) Show(name string) ([]string, bool, error) {
	m, err := s.load()
	if err != nil {
		return nil, false, err
	}
	v, ok := m[name]
	return v, ok, nil
}

// List returns every user-level alias keyed by name; the map carries no
// order, so callers that print it sort the names themselves.
func (s *Store) List() (map[string][]string, error) {
	return s.load()
}

// Merge combines the user-level store with a config's [alias]/[aliases]
// table into the map the Graph Builder expands against. Config-file
// aliases win on name collision, since they are scoped to the project being
// run (spec §3: project config is authoritative for its own task graph).
func Merge(userAliases map[string][]string, cfg *config.Config) map[string]*config.Alias {
	out := make(map[string]*config.Alias, len(userAliases)+len(cfg.Aliases))
	names := make([]string, 0, len(userAliases))
	for n := range userAliases {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		out[n] = &config.Alias{Name: n, Values: userAliases[n]}
	}
	for n, a := range cfg.Aliases {
		out[n] = a
	}
	return out
}
