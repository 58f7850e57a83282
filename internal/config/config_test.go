package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RICHSYNC_CONFIG_DIR", dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Dialect != DialectMarkdown {
		t.Fatalf("expected markdown dialect, got %q", cfg.Dialect)
	}
	if cfg.Debounce() != 200*time.Millisecond {
		t.Fatalf("expected 200ms debounce, got %v", cfg.Debounce())
	}
	if !cfg.Capabilities.Has(CapStrike) || !cfg.Capabilities.Has(CapLink) {
		t.Fatalf("expected toolbar capabilities, got %v", cfg.Capabilities.List())
	}
	if want := filepath.Join(dir, "richsync.sqlite"); cfg.DBPath != want {
		t.Fatalf("expected db path %q, got %q", want, cfg.DBPath)
	}
}

func TestSaveThenLoad_RoundTrips(t *testing.T) {
	t.Setenv("RICHSYNC_CONFIG_DIR", t.TempDir())

	caps, err := ParseCapabilities("bold, italic,link")
	if err != nil {
		t.Fatalf("ParseCapabilities: %v", err)
	}
	in := Default()
	in.Dialect = DialectHTML
	in.DebounceMS = 300
	in.Capabilities = caps
	in.FocusGuard = true
	in.DBPath = "/tmp/x.sqlite"
	if err := Save(in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("config mismatch (-saved +loaded):\n%s", diff)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RICHSYNC_CONFIG_DIR", t.TempDir())
	t.Setenv("RICHSYNC_DIALECT", "HTML")
	t.Setenv("RICHSYNC_DEBOUNCE_MS", "50")
	t.Setenv("RICHSYNC_CAPABILITIES", "bold")
	t.Setenv("RICHSYNC_FOCUS_GUARD", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Dialect != DialectHTML || cfg.DebounceMS != 50 || !cfg.FocusGuard {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if got := cfg.Capabilities.List(); len(got) != 1 || got[0] != CapBold {
		t.Fatalf("expected only bold, got %v", got)
	}
}

func TestLoad_RejectsBadFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RICHSYNC_CONFIG_DIR", dir)
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"dialect":"bbcode"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(); err == nil {
		t.Fatalf("expected invalid dialect error")
	}
}

func TestParseCapabilities_Unknown(t *testing.T) {
	if _, err := ParseCapabilities("bold,blink"); err == nil {
		t.Fatalf("expected error for unknown capability")
	}
}
