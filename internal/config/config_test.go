package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"reelsmith/internal/config"
	"reelsmith/internal/media"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "reelsmith", "state")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Paths.OutboxPath != filepath.Join(wantState, "outbox.db") {
		t.Fatalf("unexpected outbox path: %q", cfg.Paths.OutboxPath)
	}
	if cfg.Pipeline.SegmentDuration != 4 {
		t.Fatalf("unexpected segment duration: %v", cfg.Pipeline.SegmentDuration)
	}
	if cfg.Generation.DefaultVersion != "v2" {
		t.Fatalf("unexpected generation version: %q", cfg.Generation.DefaultVersion)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("unexpected log format: %q", cfg.Logging.Format)
	}
	settings := cfg.OutputSettings()
	if settings != media.DefaultOutputSettings() {
		t.Fatalf("unexpected output settings: %+v", settings)
	}
	rules, err := cfg.RuleSet()
	if err != nil {
		t.Fatalf("RuleSet: %v", err)
	}
	if rules.Len() != 4 {
		t.Fatalf("expected four default rules, got %d", rules.Len())
	}
	policy, err := cfg.TransitionPolicy()
	if err != nil {
		t.Fatalf("TransitionPolicy: %v", err)
	}
	if policy[media.RuleColor] != media.TransitionDissolve {
		t.Fatalf("unexpected color transition: %q", policy[media.RuleColor])
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "reelsmith.toml")

	custom := struct {
		Paths struct {
			StateDir string `toml:"state_dir"`
		} `toml:"paths"`
		Pipeline struct {
			SegmentDuration float64 `toml:"segment_duration"`
		} `toml:"pipeline"`
		Output struct {
			Format string `toml:"format"`
		} `toml:"output"`
		Continuity struct {
			Transitions map[string]string `toml:"transitions"`
		} `toml:"continuity"`
	}{}
	custom.Paths.StateDir = filepath.Join(tempDir, "state")
	custom.Pipeline.SegmentDuration = 2.5
	custom.Output.Format = "MOV"
	custom.Continuity.Transitions = map[string]string{"Motion": "Fade"}

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	if cfg.Paths.StateDir != filepath.Join(tempDir, "state") {
		t.Fatalf("unexpected state dir: %q", cfg.Paths.StateDir)
	}
	if cfg.Pipeline.SegmentDuration != 2.5 {
		t.Fatalf("unexpected segment duration: %v", cfg.Pipeline.SegmentDuration)
	}
	if cfg.OutputSettings().Format != media.FormatMOV {
		t.Fatalf("unexpected format: %q", cfg.Output.Format)
	}
	policy, err := cfg.TransitionPolicy()
	if err != nil {
		t.Fatalf("TransitionPolicy: %v", err)
	}
	if policy[media.RuleMotion] != media.TransitionFade {
		t.Fatalf("expected motion override to fade, got %q", policy[media.RuleMotion])
	}
	if policy[media.RuleColor] != media.TransitionDissolve {
		t.Fatalf("expected color default to survive override, got %q", policy[media.RuleColor])
	}
}

func TestEnvOverridesDirectories(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("HOME", tempDir)
	t.Setenv("REELSMITH_STATE_DIR", filepath.Join(tempDir, "env-state"))
	t.Setenv("REELSMITH_OUTPUT_DIR", filepath.Join(tempDir, "env-output"))

	cfg, _, _, err := config.Load(filepath.Join(tempDir, "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.StateDir != filepath.Join(tempDir, "env-state") {
		t.Fatalf("expected env state dir, got %q", cfg.Paths.StateDir)
	}
	if cfg.Paths.OutputDir != filepath.Join(tempDir, "env-output") {
		t.Fatalf("expected env output dir, got %q", cfg.Paths.OutputDir)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "[continuity.rules]") {
		t.Fatal("sample config missing continuity rules section")
	}
	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("sample config is not valid TOML: %v", err)
	}
	if cfg.Output.Width != 1920 {
		t.Fatalf("unexpected sample width: %d", cfg.Output.Width)
	}

	t.Setenv("HOME", t.TempDir())
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"negative segment duration", func(c *config.Config) { c.Pipeline.SegmentDuration = -1 }, "pipeline.segment_duration"},
		{"unknown rule", func(c *config.Config) { c.Continuity.Rules["texture"] = 0.3 }, "unknown rule type"},
		{"negative threshold", func(c *config.Config) { c.Continuity.Rules["color"] = -0.1 }, "threshold"},
		{"cut as correction", func(c *config.Config) { c.Continuity.Transitions["color"] = "cut" }, "cannot map to cut"},
		{"bad format", func(c *config.Config) { c.Output.Format = "mkv" }, "format"},
		{"zero width", func(c *config.Config) { c.Output.Width = 0 }, "output"},
		{"bad generation", func(c *config.Config) { c.Generation.DefaultVersion = "v3" }, "generation.default_version"},
		{"bad lock retry", func(c *config.Config) { c.Store.LockRetryMillis = 0 }, "store.lock_retry_ms"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Paths.StateDir = "/tmp/state"
			cfg.Paths.OutputDir = "/tmp/output"
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.OutputDir = filepath.Join(base, "output")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.OutboxPath = filepath.Join(base, "queue", "outbox.db")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{"state", "output", "logs", "queue"} {
		if info, err := os.Stat(filepath.Join(base, dir)); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}
