package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeContinuity()
	c.normalizeOutput()
	c.normalizeStore()
	c.normalizeGeneration()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("REELSMITH_STATE_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.StateDir = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv("REELSMITH_OUTPUT_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.OutputDir = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}

	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutboxPath) == "" {
		c.Paths.OutboxPath = filepath.Join(c.Paths.StateDir, defaultOutboxFile)
	}
	if c.Paths.OutboxPath, err = expandPath(c.Paths.OutboxPath); err != nil {
		return fmt.Errorf("paths.outbox_path: %w", err)
	}
	return nil
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.SegmentDuration == 0 {
		c.Pipeline.SegmentDuration = defaultSegmentDuration
	}
	if c.Pipeline.TransitionDuration == 0 {
		c.Pipeline.TransitionDuration = defaultTransitionDuration
	}
	if c.Pipeline.MaxCorrection == 0 {
		c.Pipeline.MaxCorrection = defaultMaxCorrection
	}
}

// normalizeContinuity lower-cases keys so "Color" and "color" collide during
// validation instead of silently producing two rules.
func (c *Config) normalizeContinuity() {
	if c.Continuity.Rules == nil {
		c.Continuity.Rules = defaultRules()
	} else {
		rules := make(map[string]float64, len(c.Continuity.Rules))
		for key, value := range c.Continuity.Rules {
			rules[strings.ToLower(strings.TrimSpace(key))] = value
		}
		c.Continuity.Rules = rules
	}

	transitions := defaultTransitions()
	for key, value := range c.Continuity.Transitions {
		transitions[strings.ToLower(strings.TrimSpace(key))] = strings.ToLower(strings.TrimSpace(value))
	}
	c.Continuity.Transitions = transitions
}

func (c *Config) normalizeOutput() {
	c.Output.Format = strings.ToLower(strings.TrimSpace(c.Output.Format))
	if c.Output.Format == "" {
		c.Output.Format = defaultOutputFormat
	}
	if c.Output.FrameRate == 0 {
		c.Output.FrameRate = defaultOutputFrameRate
	}
	if c.Output.Bitrate == 0 {
		c.Output.Bitrate = defaultOutputBitrate
	}
}

func (c *Config) normalizeStore() {
	if c.Store.LockRetryMillis <= 0 {
		c.Store.LockRetryMillis = defaultLockRetryMillis
	}
	if c.Store.LockTimeoutSeconds < 0 {
		c.Store.LockTimeoutSeconds = 0
	}
}

func (c *Config) normalizeGeneration() {
	c.Generation.DefaultVersion = strings.ToLower(strings.TrimSpace(c.Generation.DefaultVersion))
	if c.Generation.DefaultVersion == "" {
		c.Generation.DefaultVersion = defaultGenerationVersion
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	if value, ok := os.LookupEnv("REELSMITH_LOG_LEVEL"); ok && strings.TrimSpace(value) != "" {
		c.Logging.Level = value
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
