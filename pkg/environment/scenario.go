package environment

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/boristopalov/spacenav/pkg/core"
)

const (
	DefaultSigma = 50.0 // metres

	DefaultCollisionProbabilityWeight = 100.0
	DefaultFuelWeight                 = 1.0
	DefaultTrajectoryDeviationWeight  = 1000.0
)

var scenarioValidate = validator.New()

// ObjectSpec describes the initial state of one space object.
type ObjectSpec struct {
	Name     string    `yaml:"name" validate:"required"`
	Position core.Vec3 `yaml:"position"`
	Velocity core.Vec3 `yaml:"velocity"`
	Fuel     float64   `yaml:"fuel" validate:"gte=0"`
}

func (o ObjectSpec) stateVector() core.StateVector {
	return core.StateVector{Position: o.Position, Velocity: o.Velocity}
}

// RewardWeights scale the three penalty terms of the reward.
type RewardWeights struct {
	CollisionProbability float64 `yaml:"collision_probability" validate:"gte=0"`
	Fuel                 float64 `yaml:"fuel" validate:"gte=0"`
	TrajectoryDeviation  float64 `yaml:"trajectory_deviation" validate:"gte=0"`
}

// Scenario is the YAML description of a conjunction: one protected object,
// the debris threatening it and the budgets that constrain maneuvers.
type Scenario struct {
	Name               string        `yaml:"name"`
	StartEpoch         core.Epoch    `yaml:"start_epoch" validate:"gte=0"`
	EndEpoch           core.Epoch    `yaml:"end_epoch" validate:"gtefield=StartEpoch"`
	MaxFuelConsumption float64       `yaml:"max_fuel_consumption" validate:"gt=0"`
	Sigma              float64       `yaml:"sigma" validate:"gt=0"`
	Reward             RewardWeights `yaml:"reward"`
	Protected          ObjectSpec    `yaml:"protected"`
	Debris             []ObjectSpec  `yaml:"debris" validate:"min=1,dive"`
}

// LoadScenario reads, defaults and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	s.applyDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Scenario) applyDefaults() {
	if s.Sigma == 0 {
		s.Sigma = DefaultSigma
	}
	if s.Reward == (RewardWeights{}) {
		s.Reward = RewardWeights{
			CollisionProbability: DefaultCollisionProbabilityWeight,
			Fuel:                 DefaultFuelWeight,
			TrajectoryDeviation:  DefaultTrajectoryDeviationWeight,
		}
	}
}

// Validate checks the scenario's struct constraints.
func (s *Scenario) Validate() error {
	if err := scenarioValidate.Struct(s); err != nil {
		return fmt.Errorf("invalid scenario: %w", err)
	}
	return nil
}
