package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestSaveConfig_RoundTripAndBackup(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GROCER_CONFIG_DIR", dir)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load missing config: %v", err)
	}
	if cfg.APIBaseURL != "" || cfg.CurrentListID != 0 {
		t.Fatalf("expected zero config, got %+v", cfg)
	}

	cfg.APIBaseURL = "http://example.test/api/v1"
	cfg.CurrentListID = 7
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	cfg.CurrentListID = 8
	cfg.TUI = &TUIConfig{MarkdownStyle: "light"}
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("save again: %v", err)
	}

	got, err := LoadConfig()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.CurrentListID != 8 || got.TUI == nil || got.TUI.MarkdownStyle != "light" {
		t.Fatalf("unexpected config: %+v", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.json.bak")); err != nil {
		t.Fatalf("expected backup file: %v", err)
	}
	if p, _ := StatePath(); filepath.Dir(p) != dir {
		t.Fatalf("state path should live in config dir, got %s", p)
	}
}

func TestSaveConfig_ConcurrentWriters_DoesNotCorruptConfig(t *testing.T) {
	cfgDir := t.TempDir()
	t.Setenv("GROCER_CONFIG_DIR", cfgDir)

	if err := SaveConfig(&Config{APIBaseURL: "http://seed/api/v1"}); err != nil {
		t.Fatalf("SaveConfig(seed): %v", err)
	}

	const n = 64
	errCh := make(chan error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cfg, err := LoadConfig()
			if err != nil {
				errCh <- err
				return
			}
			cfg.CurrentListID = int64(i + 1)
			if err := SaveConfig(cfg); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Errorf("concurrent SaveConfig: %v", err)
	}
	if t.Failed() {
		return
	}

	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config.json: %v", err)
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		t.Fatalf("config.json corrupted/unparseable: %v\nraw:\n%s", err, string(raw))
	}
	if cfg.APIBaseURL != "http://seed/api/v1" || cfg.CurrentListID == 0 {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	ents, err := os.ReadDir(cfgDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range ents {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Fatalf("leftover temp file: %s", e.Name())
		}
	}
}
