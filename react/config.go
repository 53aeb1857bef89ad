package react

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the agent loop. The thresholds are
// heuristics; they live here so deployments can retune them from YAML
// without code changes.
type Config struct {
	Loop       LoopConfig       `yaml:"loop"`
	Memory     MemoryConfig     `yaml:"memory"`
	Repetition RepetitionConfig `yaml:"repetition"`
	Progress   ProgressConfig   `yaml:"progress"`
	Retry      RetryConfig      `yaml:"retry"`
	Patterns   PatternConfig    `yaml:"patterns"`
}

// LoopConfig bounds the control loop.
type LoopConfig struct {
	IterationBudget      int           `yaml:"iteration_budget"`
	SessionTimeout       time.Duration `yaml:"session_timeout"` // 0 = no timeout
	AutoSubstitute       bool          `yaml:"auto_substitute"`
	Model                string        `yaml:"model,omitempty"`
	FallbackModels       []string      `yaml:"fallback_models,omitempty"`
	PromptTailMessages   int           `yaml:"prompt_tail_messages"`
	PromptTokenBudget    int           `yaml:"prompt_token_budget"`
	ObservationCharLimit int           `yaml:"observation_char_limit"` // 0 = per-class defaults
	WorkingDirectory     string        `yaml:"working_directory,omitempty"`
}

// MemoryConfig controls conversation rotation.
type MemoryConfig struct {
	RotationThreshold int `yaml:"rotation_threshold"`
	RetainedTail      int `yaml:"retained_tail"`
	FallbackTail      int `yaml:"fallback_tail"`
}

// RepetitionConfig controls the repetition guard.
type RepetitionConfig struct {
	Capacity                 int           `yaml:"capacity"`
	ExactRepeatLimit         int           `yaml:"exact_repeat_limit"`
	ExactRepeatWindow        time.Duration `yaml:"exact_repeat_window"`
	ListingRepeatLimit       int           `yaml:"listing_repeat_limit"`
	ListingRepeatWindow      time.Duration `yaml:"listing_repeat_window"`
	ListingsWithoutReadLimit int           `yaml:"listings_without_read_limit"`
	ReadRepeatLimit          int           `yaml:"read_repeat_limit"`
	AnalysisRepeatLimit      int           `yaml:"analysis_repeat_limit"`
}

// ProgressConfig holds the conclusion thresholds.
type ProgressConfig struct {
	ConcludeDirectories     int     `yaml:"conclude_directories"`
	ConcludeCriticalFiles   int     `yaml:"conclude_critical_files"`
	ConcludeDistinctTools   int     `yaml:"conclude_distinct_tools"`
	DiagnosingCriticalFiles int     `yaml:"diagnosing_critical_files"`
	TimePressureRatio       float64 `yaml:"time_pressure_ratio"`
	MinDirectories          int     `yaml:"min_directories"`
	MinFilesExplored        int     `yaml:"min_files_explored"`
	MinDistinctTools        int     `yaml:"min_distinct_tools"`
	MaxIssues               int     `yaml:"max_issues"`
}

// RetryConfig configures the default recovery policy.
type RetryConfig struct {
	MaxAttempts      int           `yaml:"max_attempts"`
	BaseDelay        time.Duration `yaml:"base_delay"`
	MaxDelay         time.Duration `yaml:"max_delay"`
	Multiplier       float64       `yaml:"multiplier"`
	Jitter           bool          `yaml:"jitter"`
	SwitchModelAfter int           `yaml:"switch_model_after"` // consecutive model failures; 0 = never
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Loop: LoopConfig{
			IterationBudget:    10,
			PromptTailMessages: 12,
			PromptTokenBudget:  6000,
		},
		Memory: MemoryConfig{
			RotationThreshold: 30,
			RetainedTail:      10,
			FallbackTail:      15,
		},
		Repetition: RepetitionConfig{
			Capacity:                 10,
			ExactRepeatLimit:         2,
			ExactRepeatWindow:        5 * time.Minute,
			ListingRepeatLimit:       2,
			ListingRepeatWindow:      3 * time.Minute,
			ListingsWithoutReadLimit: 3,
			ReadRepeatLimit:          2,
			AnalysisRepeatLimit:      1,
		},
		Progress: ProgressConfig{
			ConcludeDirectories:     2,
			ConcludeCriticalFiles:   3,
			ConcludeDistinctTools:   4,
			DiagnosingCriticalFiles: 3,
			TimePressureRatio:       0.7,
			MinDirectories:          1,
			MinFilesExplored:        2,
			MinDistinctTools:        3,
			MaxIssues:               50,
		},
		Retry: RetryConfig{
			MaxAttempts:      3,
			BaseDelay:        500 * time.Millisecond,
			MaxDelay:         8 * time.Second,
			Multiplier:       2.0,
			Jitter:           true,
			SwitchModelAfter: 2,
		},
		Patterns: DefaultPatternConfig(),
	}
}

// LoadConfig reads a YAML file and overlays it on DefaultConfig. Keys absent
// from the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks internal consistency.
func (c Config) Validate() error {
	switch {
	case c.Loop.IterationBudget <= 0:
		return fmt.Errorf("loop.iteration_budget must be positive, got %d", c.Loop.IterationBudget)
	case c.Memory.RetainedTail <= 0 || c.Memory.RetainedTail >= c.Memory.RotationThreshold:
		return fmt.Errorf("memory.retained_tail must be in (0, rotation_threshold), got %d", c.Memory.RetainedTail)
	case c.Memory.FallbackTail <= 0 || c.Memory.FallbackTail > c.Memory.RotationThreshold:
		return fmt.Errorf("memory.fallback_tail must be in (0, rotation_threshold], got %d", c.Memory.FallbackTail)
	case c.Repetition.Capacity <= 0:
		return fmt.Errorf("repetition.capacity must be positive, got %d", c.Repetition.Capacity)
	case c.Progress.TimePressureRatio <= 0 || c.Progress.TimePressureRatio > 1:
		return fmt.Errorf("progress.time_pressure_ratio must be in (0, 1], got %v", c.Progress.TimePressureRatio)
	case c.Retry.MaxAttempts <= 0:
		return fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	if _, err := CompilePatterns(c.Patterns); err != nil {
		return err
	}
	return nil
}
