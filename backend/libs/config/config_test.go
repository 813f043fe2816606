package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type sample struct {
	Label   string        `yaml:"label"`
	Timeout time.Duration `yaml:"timeout" env:"SAMPLE_TIMEOUT"`
	Nested  struct {
		Port    int      `yaml:"port"`
		Enabled bool     `yaml:"enabled"`
		Ratio   float64  `yaml:"ratio"`
		Topics  []string `yaml:"topics"`
	} `yaml:"nested"`
}

func TestLoadConfigFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("label: file\ntimeout: 5s\nnested:\n  port: 9000\n  ratio: 0.5\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("SAMPLE_TIMEOUT", "1m30s")
	t.Setenv("NESTED_ENABLED", "true")
	t.Setenv("NESTED_TOPICS", "a, b,,c")

	var cfg sample
	if err := LoadConfigFile(path, &cfg); err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Label != "file" {
		t.Fatalf("expected label from file, got %q", cfg.Label)
	}
	if cfg.Timeout != 90*time.Second {
		t.Fatalf("expected env duration override, got %s", cfg.Timeout)
	}
	if cfg.Nested.Port != 9000 || cfg.Nested.Ratio != 0.5 {
		t.Fatalf("unexpected nested values: %+v", cfg.Nested)
	}
	if !cfg.Nested.Enabled {
		t.Fatalf("expected nested bool from env")
	}
	if len(cfg.Nested.Topics) != 3 || cfg.Nested.Topics[2] != "c" {
		t.Fatalf("unexpected topics: %v", cfg.Nested.Topics)
	}
}

func TestLoadConfigRejectsBadTargets(t *testing.T) {
	if err := LoadConfigFile("", nil); err == nil {
		t.Fatalf("expected error for nil target")
	}
	var notStruct int
	if err := LoadConfigFile("", &notStruct); err == nil {
		t.Fatalf("expected error for non-struct target")
	}
}

func TestLoadConfigInvalidEnvValue(t *testing.T) {
	t.Setenv("SAMPLE_TIMEOUT", "soon")
	var cfg sample
	if err := LoadConfigFile("", &cfg); err == nil {
		t.Fatalf("expected parse error for invalid duration")
	}
}
