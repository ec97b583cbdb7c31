package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	cfgDir := filepath.Join(dir, Dir)
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfgDir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
view: /views/jdoe_dev
branches:
  - main
  - project_dev
exclude:
  - "*.log"
since: "2024-01-15"
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.View != "/views/jdoe_dev" {
		t.Errorf("view: got %q", cfg.View)
	}
	if len(cfg.Branches) != 2 || cfg.Branches[1] != "project_dev" {
		t.Errorf("branches: got %v", cfg.Branches)
	}
	if cfg.Branch != DefaultBranch {
		t.Errorf("branch default: got %q, want %q", cfg.Branch, DefaultBranch)
	}
	if cfg.GitDir != dir {
		t.Errorf("gitdir default: got %q, want %q", cfg.GitDir, dir)
	}
	if cfg.TieBreak != "backend" {
		t.Errorf("tiebreak default: got %q", cfg.TieBreak)
	}
	if cfg.PollInterval != DefaultPollInterval {
		t.Errorf("poll-interval default: got %v", cfg.PollInterval)
	}
	if !strings.HasSuffix(cfg.CachePath(), filepath.Join(Dir, "cache.db")) {
		t.Errorf("cache path: got %q", cfg.CachePath())
	}
}

func TestLoadMissingView(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "branches: [main]\n")

	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "view is required") {
		t.Fatalf("got %v, want a view-is-required error", err)
	}
}

func TestLoadBadTieBreak(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "view: /views/x\nbranches: [main]\ntiebreak: random\n")

	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "tiebreak") {
		t.Fatalf("got %v, want a tiebreak validation error", err)
	}
}

func TestEnvOverride(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "view: /views/from-file\nbranches: [main]\n")
	t.Setenv("CCB_VIEW", "/views/from-env")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.View != "/views/from-env" {
		t.Errorf("view: got %q, want the environment override", cfg.View)
	}
}

func TestInit(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{View: "/views/jdoe_dev", Branches: []string{"main"}, Branch: "master"}

	if err := Init(dir, cfg); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load after Init failed: %v", err)
	}
	if loaded.View != cfg.View {
		t.Errorf("round trip: got %q", loaded.View)
	}

	// A second init must not clobber the existing file.
	if err := Init(dir, cfg); err == nil {
		t.Fatal("Init over an existing config did not fail")
	}
}

func TestParseSince(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	zero, err := ParseSince("", now)
	if err != nil || !zero.IsZero() {
		t.Errorf("empty since: got %v, %v", zero, err)
	}

	got, err := ParseSince("2024-01-15", now)
	if err != nil {
		t.Fatalf("date parse failed: %v", err)
	}
	if got.Year() != 2024 || got.Month() != time.January || got.Day() != 15 {
		t.Errorf("date: got %v", got)
	}

	rel, err := ParseSince("3 days ago", now)
	if err != nil {
		t.Fatalf("natural parse failed: %v", err)
	}
	if want := now.AddDate(0, 0, -3); rel.Day() != want.Day() {
		t.Errorf("relative: got %v, want around %v", rel, want)
	}

	if _, err := ParseSince("gibberish xyzzy", now); err == nil {
		t.Error("nonsense input did not fail")
	}
}

func TestLoadUsers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.toml")
	content := `
mail-suffix = "example.com"

[users.jdoe]
name = "Jane Doe"
email = "jane.doe@corp.example.com"

[users.bsmith]
name = "Bob Smith"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	users, err := LoadUsers(path)
	if err != nil {
		t.Fatalf("LoadUsers failed: %v", err)
	}

	name, email := users.Lookup("jdoe")
	if name != "Jane Doe" || email != "jane.doe@corp.example.com" {
		t.Errorf("jdoe: got %q <%s>", name, email)
	}

	// Mapped name, synthesized email.
	name, email = users.Lookup("bsmith")
	if name != "Bob Smith" || email != "bsmith@example.com" {
		t.Errorf("bsmith: got %q <%s>", name, email)
	}

	// Unmapped user: username as name, synthesized email.
	name, email = users.Lookup("ghost")
	if name != "ghost" || email != "ghost@example.com" {
		t.Errorf("ghost: got %q <%s>", name, email)
	}

	// Usernames keep their case in the name but are lowercased in the
	// synthesized email.
	name, email = users.Lookup("JDavis")
	if name != "JDavis" || email != "jdavis@example.com" {
		t.Errorf("JDavis: got %q <%s>", name, email)
	}
}

func TestLoadUsersMissingFile(t *testing.T) {
	users, err := LoadUsers(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	name, email := users.Lookup("jdoe")
	if name != "jdoe" || email != "" {
		t.Errorf("fallback: got %q <%s>", name, email)
	}
}
