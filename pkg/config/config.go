package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/boristopalov/spacenav/pkg/core"
)

// EnvPrefix prefixes every environment override, e.g. SPACENAV_SIMULATION_STEP.
const EnvPrefix = "SPACENAV_"

type Config struct {
	Logging    LogConfig        `yaml:"logging" envPrefix:"LOGGING_"`
	Simulation SimulationConfig `yaml:"simulation" envPrefix:"SIMULATION_"`
	Training   TrainingConfig   `yaml:"training" envPrefix:"TRAINING_"`
	Storage    StorageConfig    `yaml:"storage" envPrefix:"STORAGE_"`
	Metrics    MetricsConfig    `yaml:"metrics" envPrefix:"METRICS_"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL" validate:"omitempty,oneof=debug info warn warning error"`
	Path   string `yaml:"path" env:"PATH"`
	Format string `yaml:"format" env:"FORMAT" validate:"omitempty,oneof=text json"`
}

// SimulationConfig holds session parameters. A nil StartEpoch or EndEpoch
// falls back to that side of the scenario window.
type SimulationConfig struct {
	Scenario     string        `yaml:"scenario" env:"SCENARIO"`
	ActionTable  string        `yaml:"action_table" env:"ACTION_TABLE"`
	StartEpoch   *float64      `yaml:"start_epoch" env:"START_EPOCH" validate:"omitempty,gte=0"`
	EndEpoch     *float64      `yaml:"end_epoch" env:"END_EPOCH" validate:"omitempty,gte=0"`
	Step         float64       `yaml:"step" env:"STEP" validate:"gt=0"`
	UpdateRPStep int           `yaml:"update_rp_step" env:"UPDATE_RP_STEP" validate:"gte=0"`
	SampleEvery  int           `yaml:"sample_every" env:"SAMPLE_EVERY" validate:"gte=1"`
	RenderEvery  int           `yaml:"render_every" env:"RENDER_EVERY" validate:"gte=1"`
	RenderPause  time.Duration `yaml:"render_pause" env:"RENDER_PAUSE" validate:"gte=0"`
}

type TrainingConfig struct {
	Samples   int     `yaml:"samples" env:"SAMPLES" validate:"gte=0"`
	Workers   int     `yaml:"workers" env:"WORKERS" validate:"gte=1"`
	Seed      int64   `yaml:"seed" env:"SEED"`
	MaxDeltaV float64 `yaml:"max_delta_v" env:"MAX_DELTA_V" validate:"gt=0"`
	SavePath  string  `yaml:"save_path" env:"SAVE_PATH" validate:"required"`
	StatsPath string  `yaml:"stats_path" env:"STATS_PATH"`
}

type StorageConfig struct {
	DBPath string `yaml:"db_path" env:"DB_PATH"`
}

type MetricsConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Logging: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Simulation: SimulationConfig{
			Step:        0.001,
			SampleEvery: 1,
			RenderEvery: 100,
		},
		Training: TrainingConfig{
			Samples:   100,
			Workers:   4,
			Seed:      1,
			MaxDeltaV: 1,
			SavePath:  "action_table.csv",
		},
	}
}

// LoadConfig layers the YAML file at path (optional, "" skips it) and
// SPACENAV_ environment variables over Default.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and the simulation window.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if s := c.Simulation; s.StartEpoch != nil && s.EndEpoch != nil && *s.EndEpoch < *s.StartEpoch {
		return fmt.Errorf("invalid config: simulation end_epoch %v precedes start_epoch %v", *s.EndEpoch, *s.StartEpoch)
	}
	return nil
}

// Window overlays the configured epochs on the scenario window and checks
// the merged order.
func (s SimulationConfig) Window(scenarioStart, scenarioEnd core.Epoch) (core.Epoch, core.Epoch, error) {
	start, end := scenarioStart, scenarioEnd
	if s.StartEpoch != nil {
		start = core.Epoch(*s.StartEpoch)
	}
	if s.EndEpoch != nil {
		end = core.Epoch(*s.EndEpoch)
	}
	if end < start {
		return 0, 0, fmt.Errorf("invalid simulation window: end epoch %s precedes start epoch %s", end, start)
	}
	return start, end, nil
}
