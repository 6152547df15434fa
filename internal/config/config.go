package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"reelsmith/internal/media"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir   string `toml:"state_dir"`
	OutputDir  string `toml:"output_dir"`
	LogDir     string `toml:"log_dir"`
	OutboxPath string `toml:"outbox_path"`
}

// Pipeline contains segmentation and transition tuning.
type Pipeline struct {
	SegmentDuration    float64 `toml:"segment_duration"`
	TransitionDuration float64 `toml:"transition_duration"`
	// MaxCorrection is how far past its threshold a delta may be before
	// smoothing is reported as partial.
	MaxCorrection float64 `toml:"max_correction"`
}

// Continuity contains rule thresholds and the rule-to-transition policy.
// Keys are rule types (color, lighting, motion, composition).
type Continuity struct {
	Rules       map[string]float64 `toml:"rules"`
	Transitions map[string]string  `toml:"transitions"`
}

// Output contains the default render settings.
type Output struct {
	Width     int     `toml:"width"`
	Height    int     `toml:"height"`
	FrameRate float64 `toml:"frame_rate"`
	Bitrate   int     `toml:"bitrate"`
	Format    string  `toml:"format"`
}

// Store contains project state store coordination settings.
type Store struct {
	LockRetryMillis    int `toml:"lock_retry_ms"`
	LockTimeoutSeconds int `toml:"lock_timeout_seconds"`
}

// Generation contains the provenance tag assigned to new prompts.
type Generation struct {
	DefaultVersion string `toml:"default_version"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format         string            `toml:"format"`
	Level          string            `toml:"level"`
	StageOverrides map[string]string `toml:"stage_overrides"`
}

// Config encapsulates all configuration values for reelsmith.
//
// Configuration sections by subsystem:
//   - Paths: state, output, log directories and the sync outbox database
//   - Pipeline: segment length, transition length, correction ceiling
//   - Continuity: rule thresholds and transition policy
//   - Output: default render settings
//   - Store: lock polling and timeout for the project state store
//   - Generation: default generation version for new prompts
//   - Logging: log format, level, and per-stage overrides
type Config struct {
	Paths      Paths      `toml:"paths"`
	Pipeline   Pipeline   `toml:"pipeline"`
	Continuity Continuity `toml:"continuity"`
	Output     Output     `toml:"output"`
	Store      Store      `toml:"store"`
	Generation Generation `toml:"generation"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("reelsmith.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for CLI operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.OutputDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if dir := filepath.Dir(c.Paths.OutboxPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create outbox directory %q: %w", dir, err)
		}
	}
	return nil
}

// RuleSet builds the continuity rule set from the configured thresholds.
func (c *Config) RuleSet() (media.RuleSet, error) {
	rules := make([]media.Rule, 0, len(c.Continuity.Rules))
	for key, threshold := range c.Continuity.Rules {
		rt, ok := media.ParseRuleType(key)
		if !ok {
			return media.RuleSet{}, fmt.Errorf("continuity.rules: unknown rule type %q", key)
		}
		rules = append(rules, media.Rule{Type: rt, Threshold: threshold})
	}
	return media.NewRuleSet(rules...)
}

// TransitionPolicy returns the configured rule-to-transition mapping.
func (c *Config) TransitionPolicy() (map[media.RuleType]media.TransitionType, error) {
	policy := make(map[media.RuleType]media.TransitionType, len(c.Continuity.Transitions))
	for key, value := range c.Continuity.Transitions {
		rt, ok := media.ParseRuleType(key)
		if !ok {
			return nil, fmt.Errorf("continuity.transitions: unknown rule type %q", key)
		}
		tt, ok := media.ParseTransitionType(value)
		if !ok {
			return nil, fmt.Errorf("continuity.transitions.%s: unknown transition type %q", key, value)
		}
		policy[rt] = tt
	}
	return policy, nil
}

// OutputSettings converts the output section into render settings.
func (c *Config) OutputSettings() media.OutputSettings {
	format, _ := media.ParseFormat(c.Output.Format)
	return media.OutputSettings{
		Resolution: media.Resolution{Width: c.Output.Width, Height: c.Output.Height},
		FrameRate:  c.Output.FrameRate,
		Bitrate:    c.Output.Bitrate,
		Format:     format,
	}
}

// LockRetryInterval returns the polling interval used while waiting for a
// state file lock.
func (c *Config) LockRetryInterval() time.Duration {
	return time.Duration(c.Store.LockRetryMillis) * time.Millisecond
}

// LockTimeout bounds how long a store operation waits for coordination.
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.Store.LockTimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
