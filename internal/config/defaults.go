package config

const (
	defaultConfigPath         = "~/.config/reelsmith/config.toml"
	defaultStateDir           = "~/.local/share/reelsmith/state"
	defaultOutputDir          = "~/.local/share/reelsmith/output"
	defaultLogDir             = "~/.local/share/reelsmith/logs"
	defaultOutboxFile         = "outbox.db"
	defaultSegmentDuration    = 4.0
	defaultTransitionDuration = 0.5
	defaultMaxCorrection      = 0.5
	defaultOutputWidth        = 1920
	defaultOutputHeight       = 1080
	defaultOutputFrameRate    = 30.0
	defaultOutputBitrate      = 8000
	defaultOutputFormat       = "mp4"
	defaultLockRetryMillis    = 10
	defaultLockTimeoutSeconds = 30
	defaultGenerationVersion  = "v2"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:  defaultStateDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
		},
		Pipeline: Pipeline{
			SegmentDuration:    defaultSegmentDuration,
			TransitionDuration: defaultTransitionDuration,
			MaxCorrection:      defaultMaxCorrection,
		},
		Continuity: Continuity{
			Rules:       defaultRules(),
			Transitions: defaultTransitions(),
		},
		Output: Output{
			Width:     defaultOutputWidth,
			Height:    defaultOutputHeight,
			FrameRate: defaultOutputFrameRate,
			Bitrate:   defaultOutputBitrate,
			Format:    defaultOutputFormat,
		},
		Store: Store{
			LockRetryMillis:    defaultLockRetryMillis,
			LockTimeoutSeconds: defaultLockTimeoutSeconds,
		},
		Generation: Generation{
			DefaultVersion: defaultGenerationVersion,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

func defaultRules() map[string]float64 {
	return map[string]float64{
		"color":       0.5,
		"lighting":    0.5,
		"motion":      0.6,
		"composition": 0.7,
	}
}

func defaultTransitions() map[string]string {
	return map[string]string{
		"color":       "dissolve",
		"lighting":    "dissolve",
		"motion":      "slide",
		"composition": "fade",
	}
}
