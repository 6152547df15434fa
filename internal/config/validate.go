package config

import (
	"errors"
	"fmt"
	"math"

	"reelsmith/internal/media"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateContinuity(); err != nil {
		return err
	}
	if err := c.validateOutput(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateGeneration(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir must be set")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if err := ensurePositiveFloats(map[string]float64{
		"pipeline.segment_duration":    c.Pipeline.SegmentDuration,
		"pipeline.transition_duration": c.Pipeline.TransitionDuration,
		"pipeline.max_correction":      c.Pipeline.MaxCorrection,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateContinuity() error {
	if _, err := c.RuleSet(); err != nil {
		return err
	}
	policy, err := c.TransitionPolicy()
	if err != nil {
		return err
	}
	for rt, tt := range policy {
		if tt == media.TransitionCut {
			return fmt.Errorf("continuity.transitions.%s: a violated rule cannot map to cut", rt)
		}
	}
	return nil
}

func (c *Config) validateOutput() error {
	if problems := c.OutputSettings().ValidationErrors(); len(problems) > 0 {
		return fmt.Errorf("output: %s", problems[0])
	}
	if _, ok := media.ParseFormat(c.Output.Format); !ok {
		return fmt.Errorf("output.format: unsupported value %q (use mp4, mov, or avi)", c.Output.Format)
	}
	return nil
}

func (c *Config) validateStore() error {
	if c.Store.LockRetryMillis <= 0 {
		return errors.New("store.lock_retry_ms must be positive")
	}
	if c.Store.LockTimeoutSeconds < 0 {
		return errors.New("store.lock_timeout_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateGeneration() error {
	switch c.Generation.DefaultVersion {
	case "v1", "v2":
		return nil
	default:
		return fmt.Errorf("generation.default_version: unsupported value %q (use v1 or v2)", c.Generation.DefaultVersion)
	}
}

func ensurePositiveFloats(values map[string]float64) error {
	for key, value := range values {
		if math.IsNaN(value) || value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
