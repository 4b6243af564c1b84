// Package usecase contains the simulation engine: action resolution, threat
// escalation and the tick scheduler.
package usecase

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Misaka-0x447f/project-DaBES/internal/domain"
)

// Config holds the engine's tunable constants.
type Config struct {
	TickBudget float64 `yaml:"tick_budget" validate:"gt=0"` // Processor time per tick
	MaxTicks   int     `yaml:"max_ticks" validate:"gte=0"`  // 0 = no time limit

	// Probe raised by attempting each probe-raising action type.
	ProbeIncrements    map[domain.ActionType]int `yaml:"probe_increments" validate:"dive,gte=0"`
	PriorityRaiseProbe int                       `yaml:"priority_raise_probe" validate:"gte=0"` // Per point of intent boost

	VisibilityThreshold   int `yaml:"visibility_threshold" validate:"gte=0"` // Used by counter-measures without their own
	ThreatPerStrength     int `yaml:"threat_per_strength" validate:"gte=0"`
	MarkedThreatPerAction int `yaml:"marked_threat_per_action" validate:"gte=0"`

	AlarmCeiling        int           `yaml:"alarm_ceiling" validate:"gt=0"`
	AlarmCountdownTicks int           `yaml:"alarm_countdown_ticks" validate:"gt=0"`
	GracePeriod         time.Duration `yaml:"grace_period" validate:"gte=0"` // Real time before intervention

	MaxOverwriteRetries int `yaml:"max_overwrite_retries" validate:"gte=0"` // 0 = nodes never crash

	// Player profile.
	CostMultiplier float64 `yaml:"cost_multiplier" validate:"gt=0"`
	RateBonus      float64 `yaml:"rate_bonus" validate:"gte=-1,lte=1"`
}

// DefaultConfig returns default engine configuration.
func DefaultConfig() Config {
	return Config{
		TickBudget: 10,
		MaxTicks:   30,
		ProbeIncrements: map[domain.ActionType]int{
			domain.ActionStop:                   1,
			domain.ActionForceRestart:           1,
			domain.ActionOverwriteDisable:       2,
			domain.ActionOverwriteAlterBehavior: 2,
			domain.ActionOverwriteAlterRelay:    2,
			domain.ActionOverwriteJam:           2,
		},
		PriorityRaiseProbe:    1,
		VisibilityThreshold:   5,
		ThreatPerStrength:     1,
		MarkedThreatPerAction: 1,
		AlarmCeiling:          20,
		AlarmCountdownTicks:   3,
		GracePeriod:           5 * time.Second,
		MaxOverwriteRetries:   3,
		CostMultiplier:        1,
		RateBonus:             0,
	}
}

var configValidate = validator.New()

// Validate checks ranges and that probe increments name probe-raising actions.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for t := range c.ProbeIncrements {
		if !t.RaisesProbe() {
			return fmt.Errorf("invalid config: %s does not raise probe", t)
		}
	}
	return nil
}

// ProbeIncrement returns the probe raised by attempting t.
func (c Config) ProbeIncrement(t domain.ActionType) int {
	if !t.RaisesProbe() {
		return 0
	}
	return c.ProbeIncrements[t]
}

// WithOverrides returns a copy with the level's own budget and time limit applied.
func (c Config) WithOverrides(tickBudget *float64, maxTicks *int) Config {
	if tickBudget != nil {
		c.TickBudget = *tickBudget
	}
	if maxTicks != nil {
		c.MaxTicks = *maxTicks
	}
	return c
}

// LoadConfig reads a YAML override file on top of DefaultConfig.
// A missing file yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
