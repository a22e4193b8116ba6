package applist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hgaiser/moonshine/internal/config"
)

func TestLoadFromConfigOnly(t *testing.T) {
	cfg := config.Default()
	cfg.Applications = []config.ApplicationConfig{
		{Title: "Desktop"},
		{Title: "Steam", Command: []string{"steam", "-bigpicture"}},
	}

	entries, err := Load(cfg, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[1].Command[1] != "-bigpicture" {
		t.Fatalf("command not carried over: %v", entries[1].Command)
	}
}

func TestLoadMergesCatalogWithoutDuplicates(t *testing.T) {
	cfg := config.Default()
	cfg.Applications = []config.ApplicationConfig{{Title: "Desktop"}}

	catalog := filepath.Join(t.TempDir(), "applist.yaml")
	doc := `applications:
  - title: Desktop
    command: ["true"]
  - title: RetroArch
    boxart: /tmp/retroarch.png
`
	if err := os.WriteFile(catalog, []byte(doc), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	entries, err := Load(cfg, catalog)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected config entry plus one new catalog entry, got %d", len(entries))
	}

	entry, ok := Find(entries, (config.ApplicationConfig{Title: "RetroArch"}).ID())
	if !ok {
		t.Fatal("RetroArch not found by id")
	}
	if entry.Boxart != "/tmp/retroarch.png" {
		t.Fatalf("boxart = %q", entry.Boxart)
	}
}

func TestLoadIgnoresMissingCatalog(t *testing.T) {
	cfg := config.Default()
	if _, err := Load(cfg, filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("missing catalog should not fail: %v", err)
	}
}
