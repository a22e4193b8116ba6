// Package applist resolves the configured application entries into the
// shape /applist and /launch need: a stable numeric id, a title, and an
// optional boxart path. An optional YAML catalog can supplement the TOML
// config's own entries, so a deployment can maintain a richer app catalog
// than the host's config file without editing it.
package applist

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hgaiser/moonshine/internal/config"
)

// Entry is one launchable application, keyed by the 32-bit id Moonlight
// uses in /launch and /resume requests.
type Entry struct {
	ID      int32
	Title   string
	Boxart  string
	Command []string
}

// catalogDocument is the on-disk shape of an optional supplementary app
// catalog (YAML), merged on top of the config file's own Applications list.
type catalogDocument struct {
	Applications []struct {
		Title   string   `yaml:"title"`
		Boxart  string   `yaml:"boxart"`
		Command []string `yaml:"command"`
	} `yaml:"applications"`
}

// Load builds the effective application list: every entry from cfg, plus
// any entries from an optional YAML catalog file at catalogPath (ignored if
// empty or missing).
func Load(cfg *config.Config, catalogPath string) ([]Entry, error) {
	entries := make([]Entry, 0, len(cfg.Applications))
	seen := make(map[int32]struct{}, len(cfg.Applications))

	for _, app := range cfg.Applications {
		id := app.ID()
		entries = append(entries, Entry{ID: id, Title: app.Title, Boxart: app.Boxart, Command: app.Command})
		seen[id] = struct{}{}
	}

	if catalogPath == "" {
		return entries, nil
	}

	raw, err := os.ReadFile(catalogPath)
	if err != nil {
		if os.IsNotExist(err) {
			return entries, nil
		}
		return nil, fmt.Errorf("applist: read catalog %q: %w", catalogPath, err)
	}

	var doc catalogDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("applist: parse catalog %q: %w", catalogPath, err)
	}

	for _, app := range doc.Applications {
		id := (config.ApplicationConfig{Title: app.Title}).ID()
		if _, dup := seen[id]; dup {
			continue
		}
		entries = append(entries, Entry{ID: id, Title: app.Title, Boxart: app.Boxart, Command: app.Command})
		seen[id] = struct{}{}
	}

	return entries, nil
}

// Find returns the entry with the given id, if any.
func Find(entries []Entry, id int32) (Entry, bool) {
	for _, e := range entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}
