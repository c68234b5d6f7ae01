package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.General.DefaultAI = "claude"
	cfg.Identity = Identity{Name: "Ada Example", Email: "ada@example.com", ChatHandle: "ada"}
	cfg.Thresholds = Thresholds{
		Similarity:          0.6,
		SimhashMaxDistance:  10,
		CompletionDone:      0.85,
		CompletionTentative: 0.5,
		DefaultConfidence:   0.5,
	}
	cfg.Limits = Limits{LookbackDays: 7, MaxContentChars: 4000}
	cfg.Store = Store{Driver: "memory"}
	cfg.AI = map[string]map[string]interface{}{
		"claude": {"api_key": "test-key", "model": "claude-sonnet-4-20250514"},
	}
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Thresholds.CompletionDone != 0.85 {
		t.Errorf("default completion_done = %f, want 0.85", cfg.Thresholds.CompletionDone)
	}
	if cfg.Thresholds.CompletionTentative != 0.5 {
		t.Errorf("default completion_tentative = %f, want 0.5", cfg.Thresholds.CompletionTentative)
	}
	if cfg.Thresholds.Similarity != 0.6 {
		t.Errorf("default similarity = %f, want 0.6", cfg.Thresholds.Similarity)
	}
	if cfg.Limits.LookbackDays != 7 {
		t.Errorf("default lookback_days = %d, want 7", cfg.Limits.LookbackDays)
	}
	if !cfg.Features.PriorityScoring || !cfg.Features.CategoryTagging || !cfg.Features.DueDateInference {
		t.Error("feature flags should default on")
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("default store driver = %q, want memory", cfg.Store.Driver)
	}
}

func TestLoad_TOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "todoharvest.toml")
	content := `
[general]
default_ai = "openai"

[identity]
name = "Ada Example"
email = "ada@example.com"

[thresholds]
completion_done = 0.9

[ai.openai]
api_key = "sk-test"
model = "gpt-4o"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.General.DefaultAI != "openai" {
		t.Errorf("default_ai = %q, want openai", cfg.General.DefaultAI)
	}
	if cfg.Identity.Name != "Ada Example" {
		t.Errorf("identity.name = %q", cfg.Identity.Name)
	}
	if cfg.Thresholds.CompletionDone != 0.9 {
		t.Errorf("completion_done = %f, want 0.9 (file overrides default)", cfg.Thresholds.CompletionDone)
	}
	// untouched defaults survive
	if cfg.Thresholds.CompletionTentative != 0.5 {
		t.Errorf("completion_tentative = %f, want default 0.5", cfg.Thresholds.CompletionTentative)
	}
}

func TestValidate_OK(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestValidate_MissingIdentity(t *testing.T) {
	cfg := validConfig()
	cfg.Identity = Identity{}
	if err := Validate(cfg); err == nil {
		t.Error("expected error for missing identity")
	}
}

func TestValidate_MissingAPIKey(t *testing.T) {
	cfg := validConfig()
	cfg.AI["claude"] = map[string]interface{}{"model": "claude-sonnet-4-20250514"}
	if err := Validate(cfg); err == nil {
		t.Error("expected error for missing api_key")
	}
}

func TestValidate_UnknownAIProvider(t *testing.T) {
	cfg := validConfig()
	cfg.General.DefaultAI = "nonexistent"
	if err := Validate(cfg); err == nil {
		t.Error("expected error for unknown AI provider")
	}
}

func TestValidate_ThresholdOrdering(t *testing.T) {
	cfg := validConfig()
	cfg.Thresholds.CompletionTentative = 0.95 // above done threshold
	if err := Validate(cfg); err == nil {
		t.Error("expected error when tentative floor exceeds done threshold")
	}
}

func TestValidate_PostgresRequiresDSN(t *testing.T) {
	cfg := validConfig()
	cfg.Store = Store{Driver: "postgres"}
	if err := Validate(cfg); err == nil {
		t.Error("expected error for postgres driver without DSN")
	}

	cfg.Store.DSN = "postgres://localhost/todoharvest"
	if err := Validate(cfg); err != nil {
		t.Errorf("postgres driver with DSN rejected: %v", err)
	}
}

func TestInit_RefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "todoharvest.toml")

	if err := Init(path); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := Init(path); err == nil {
		t.Error("expected error when config file already exists")
	}

	// generated sample must load and carry the documented defaults
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("generated sample does not load: %v", err)
	}
	if cfg.General.DefaultAI != "claude" {
		t.Errorf("sample default_ai = %q", cfg.General.DefaultAI)
	}
}
