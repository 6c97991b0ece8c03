// Package config handles Polylog configuration via environment variables.
//
// All settings carry defaults matching the engine's policy numbers, can be
// overridden by an optional YAML file, and finally by POLYLOG_* environment
// variables. Environment always wins so deployments can patch a single knob
// without editing the config file.
//
// Example Usage:
//
//	cfg, err := config.Load("./polylog.yaml")
//	if err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
//
//	prop := constraint.NewPropagator(graph, cfg.Constraint())
//
// Environment Variables:
//   - POLYLOG_DATA_DIR="./data/polylog"
//   - POLYLOG_PROPAGATION_CYCLES=5
//   - POLYLOG_SAMPLING_BUDGET=64
//   - POLYLOG_PROMOTION_MIN_FREQUENCY=10
//   - POLYLOG_PROMOTION_MIN_STABILITY=0.85
//   - POLYLOG_DECAY_THRESHOLD=0.5
//   - POLYLOG_DECAY_ACCEPT_THRESHOLD=0.6
//   - POLYLOG_FOLD_STEP_DEGREES=5
//
// For the complete list, see the Config struct field documentation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lolothefuzzy-ai/polylog-sub004/pkg/constraint"
	"github.com/lolothefuzzy-ai/polylog-sub004/pkg/foldcache"
	"github.com/lolothefuzzy-ai/polylog-sub004/pkg/registry"
	"github.com/lolothefuzzy-ai/polylog-sub004/pkg/stability"
)

// Config holds all Polylog engine configuration.
//
// Configuration is organized into logical sections:
//   - Engine: constraint propagation settings
//   - Promotion: tier promotion thresholds
//   - Decay: stability decay thresholds
//   - Fold: offline fold precompute settings
//   - Storage: snapshot store settings
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Promotion PromotionConfig `yaml:"promotion"`
	Decay     DecayConfig     `yaml:"decay"`
	Fold      FoldConfig      `yaml:"fold"`
	Storage   StorageConfig   `yaml:"storage"`
}

// EngineConfig holds constraint propagation settings.
type EngineConfig struct {
	// PropagationCycles bounds constraint propagation iterations.
	PropagationCycles int `yaml:"propagation_cycles"`
	// SamplingBudget is the default candidate budget per proposal.
	SamplingBudget int `yaml:"sampling_budget"`
	// MinStability is the projected-stability floor for placements.
	MinStability float64 `yaml:"min_stability"`
	// AlignmentTolerance bounds relative edge-alignment deviation.
	AlignmentTolerance float64 `yaml:"alignment_tolerance"`
	// MinSeparation is the candidate crowding distance.
	MinSeparation float64 `yaml:"min_separation"`
}

// PromotionConfig holds tier promotion thresholds.
type PromotionConfig struct {
	// MinFrequency is the observation count required for promotion.
	MinFrequency int64 `yaml:"min_frequency"`
	// MinStability is the stability ratio required for promotion.
	MinStability float64 `yaml:"min_stability"`
}

// DecayConfig holds stability decay thresholds.
type DecayConfig struct {
	// Threshold is the stability ratio below which decay triggers.
	Threshold float64 `yaml:"threshold"`
	// AcceptThreshold is the minimum subassembly ratio to survive decay.
	AcceptThreshold float64 `yaml:"accept_threshold"`
	// MaxCandidates bounds subassembly enumeration.
	MaxCandidates int `yaml:"max_candidates"`
}

// FoldConfig holds offline fold precompute settings.
type FoldConfig struct {
	// StepDegrees is the dihedral discretization step.
	StepDegrees float64 `yaml:"step_degrees"`
	// MaxEdgePairs caps precomputed signatures per run (0 = unlimited).
	MaxEdgePairs int `yaml:"max_edge_pairs"`
}

// StorageConfig holds snapshot store settings.
type StorageConfig struct {
	// DataDir is the directory for the badger snapshot store.
	DataDir string `yaml:"data_dir"`
	// InMemory runs the store in memory-only mode, for testing.
	InMemory bool `yaml:"in_memory"`
}

// Default returns the engine policy defaults.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			PropagationCycles:  5,
			SamplingBudget:     64,
			MinStability:       0,
			AlignmentTolerance: 0.25,
			MinSeparation:      0.5,
		},
		Promotion: PromotionConfig{
			MinFrequency: 10,
			MinStability: 0.85,
		},
		Decay: DecayConfig{
			Threshold:       0.5,
			AcceptThreshold: 0.6,
			MaxCandidates:   64,
		},
		Fold: FoldConfig{
			StepDegrees:  foldcache.DefaultStepDegrees,
			MaxEdgePairs: 0,
		},
		Storage: StorageConfig{
			DataDir: "./data/polylog",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty and the file exists), then environment overrides, then
// validation.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parsing %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv builds the configuration from defaults plus environment
// overrides, without a config file.
func LoadFromEnv() *Config {
	cfg := Default()
	cfg.applyEnv()
	return cfg
}

func (c *Config) applyEnv() {
	c.Engine.PropagationCycles = getEnvInt("POLYLOG_PROPAGATION_CYCLES", c.Engine.PropagationCycles)
	c.Engine.SamplingBudget = getEnvInt("POLYLOG_SAMPLING_BUDGET", c.Engine.SamplingBudget)
	c.Engine.MinStability = getEnvFloat("POLYLOG_MIN_STABILITY", c.Engine.MinStability)
	c.Engine.AlignmentTolerance = getEnvFloat("POLYLOG_ALIGNMENT_TOLERANCE", c.Engine.AlignmentTolerance)
	c.Engine.MinSeparation = getEnvFloat("POLYLOG_MIN_SEPARATION", c.Engine.MinSeparation)

	c.Promotion.MinFrequency = getEnvInt64("POLYLOG_PROMOTION_MIN_FREQUENCY", c.Promotion.MinFrequency)
	c.Promotion.MinStability = getEnvFloat("POLYLOG_PROMOTION_MIN_STABILITY", c.Promotion.MinStability)

	c.Decay.Threshold = getEnvFloat("POLYLOG_DECAY_THRESHOLD", c.Decay.Threshold)
	c.Decay.AcceptThreshold = getEnvFloat("POLYLOG_DECAY_ACCEPT_THRESHOLD", c.Decay.AcceptThreshold)
	c.Decay.MaxCandidates = getEnvInt("POLYLOG_DECAY_MAX_CANDIDATES", c.Decay.MaxCandidates)

	c.Fold.StepDegrees = getEnvFloat("POLYLOG_FOLD_STEP_DEGREES", c.Fold.StepDegrees)
	c.Fold.MaxEdgePairs = getEnvInt("POLYLOG_FOLD_MAX_EDGE_PAIRS", c.Fold.MaxEdgePairs)

	c.Storage.DataDir = getEnv("POLYLOG_DATA_DIR", c.Storage.DataDir)
	c.Storage.InMemory = getEnvBool("POLYLOG_STORAGE_IN_MEMORY", c.Storage.InMemory)
}

// Validate checks all numeric ranges. Call before handing sections to the
// engine packages.
func (c *Config) Validate() error {
	if c.Engine.PropagationCycles < 1 {
		return fmt.Errorf("config: propagation_cycles %d < 1", c.Engine.PropagationCycles)
	}
	if c.Engine.SamplingBudget < 1 {
		return fmt.Errorf("config: sampling_budget %d < 1", c.Engine.SamplingBudget)
	}
	if c.Engine.MinStability < 0 || c.Engine.MinStability > 1 {
		return fmt.Errorf("config: min_stability %v outside [0,1]", c.Engine.MinStability)
	}
	if c.Engine.AlignmentTolerance < 0 {
		return fmt.Errorf("config: negative alignment_tolerance")
	}
	if c.Promotion.MinFrequency < 0 {
		return fmt.Errorf("config: negative promotion min_frequency")
	}
	if c.Promotion.MinStability < 0 || c.Promotion.MinStability > 1 {
		return fmt.Errorf("config: promotion min_stability %v outside [0,1]", c.Promotion.MinStability)
	}
	if c.Decay.Threshold < 0 || c.Decay.Threshold > 1 {
		return fmt.Errorf("config: decay threshold %v outside [0,1]", c.Decay.Threshold)
	}
	if c.Decay.AcceptThreshold < 0 || c.Decay.AcceptThreshold > 1 {
		return fmt.Errorf("config: decay accept_threshold %v outside [0,1]", c.Decay.AcceptThreshold)
	}
	if c.Decay.MaxCandidates < 1 {
		return fmt.Errorf("config: decay max_candidates %d < 1", c.Decay.MaxCandidates)
	}
	if c.Fold.StepDegrees <= 0 || c.Fold.StepDegrees > 90 {
		return fmt.Errorf("config: fold step_degrees %v outside (0,90]", c.Fold.StepDegrees)
	}
	if c.Fold.MaxEdgePairs < 0 {
		return fmt.Errorf("config: negative fold max_edge_pairs")
	}
	if c.Storage.DataDir == "" && !c.Storage.InMemory {
		return fmt.Errorf("config: storage data_dir required")
	}
	return nil
}

// Constraint returns the propagator section in its package's config type.
func (c *Config) Constraint() *constraint.Config {
	out := constraint.DefaultConfig()
	out.MaxCycles = c.Engine.PropagationCycles
	out.MinStability = c.Engine.MinStability
	out.AlignmentTolerance = c.Engine.AlignmentTolerance
	out.MinSeparation = c.Engine.MinSeparation
	return out
}

// Stability returns the decay section in its package's config type.
func (c *Config) Stability() *stability.Config {
	return &stability.Config{
		DecayThreshold:  c.Decay.Threshold,
		AcceptThreshold: c.Decay.AcceptThreshold,
		MaxCandidates:   c.Decay.MaxCandidates,
	}
}

// Registry returns the promotion section in its package's config type.
func (c *Config) Registry() *registry.Config {
	return &registry.Config{
		MinFrequency: c.Promotion.MinFrequency,
		MinStability: c.Promotion.MinStability,
	}
}

// Precompute returns the fold section in its package's config type.
func (c *Config) Precompute() foldcache.PrecomputeConfig {
	return foldcache.PrecomputeConfig{
		StepDegrees:  c.Fold.StepDegrees,
		MaxEdgePairs: c.Fold.MaxEdgePairs,
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}
