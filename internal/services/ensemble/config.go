package ensemble

import (
	"fmt"

	"github.com/creasty/defaults"
)

// Config holds the engine's tunables. Zero values are filled from the default tags by DefaultConfig.
type Config struct {
	Capacity     int     `yaml:"capacity" default:"10000"`
	MinHistory   int     `yaml:"min_history" default:"10"`
	TieThreshold float64 `yaml:"tie_threshold" default:"5"`
	NoSkip       bool    `yaml:"no_skip" default:"true"`
	SkipBelow    int     `yaml:"skip_below" default:"55"`
	CautionLevel int     `yaml:"caution_level" default:"4"`

	Confidence  ConfidenceConfig  `yaml:"confidence"`
	Pattern     PatternConfig     `yaml:"pattern"`
	Markov      MarkovConfig      `yaml:"markov"`
	Streak      StreakConfig      `yaml:"streak"`
	Periodicity PeriodicityConfig `yaml:"periodicity"`
	PRNG        PRNGConfig        `yaml:"prng"`
	Reliability ReliabilityConfig `yaml:"reliability"`
}

type ConfidenceConfig struct {
	Ultra       int `yaml:"ultra" default:"85"`
	High        int `yaml:"high" default:"70"`
	Medium      int `yaml:"medium" default:"55"`
	NoVotes     int `yaml:"no_votes" default:"55"`
	Calibrating int `yaml:"calibrating" default:"50"`
}

type PatternConfig struct {
	MinSamples int     `yaml:"min_samples" default:"3"`
	Weight     float64 `yaml:"weight" default:"30"`
}

type MarkovConfig struct {
	MinTransitions int     `yaml:"min_transitions" default:"20"`
	Threshold      float64 `yaml:"threshold" default:"0.55"`
	Weight         float64 `yaml:"weight" default:"25"`
}

type StreakConfig struct {
	DragonRun       int     `yaml:"dragon_run" default:"6"`
	IncubatorRun    int     `yaml:"incubator_run" default:"4"`
	BreakRun        int     `yaml:"break_run" default:"3"`
	DragonWeight    float64 `yaml:"dragon_weight" default:"40"`
	IncubatorWeight float64 `yaml:"incubator_weight" default:"25"`
	BreakWeight     float64 `yaml:"break_weight" default:"30"`
	TrendWeight     float64 `yaml:"trend_weight" default:"10"`
	ChoppyWindow    int     `yaml:"choppy_window" default:"15"`
	ChoppyRate      float64 `yaml:"choppy_rate" default:"0.5"`
}

type PeriodicityConfig struct {
	Window int     `yaml:"window" default:"8"`
	Weight float64 `yaml:"weight" default:"30"`
}

// PRNGConfig controls the formula hypothesis component. Its weight is deliberately the largest.
type PRNGConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Window    int     `yaml:"window" default:"10"`
	Threshold float64 `yaml:"threshold" default:"0.7"`
	Weight    float64 `yaml:"weight" default:"60"`
}

type ReliabilityConfig struct {
	InitialScore  float64 `yaml:"initial_score" default:"100"`
	MinScore      float64 `yaml:"min_score" default:"50"`
	MaxScore      float64 `yaml:"max_score" default:"200"`
	Reward        float64 `yaml:"reward" default:"10"`
	Penalty       float64 `yaml:"penalty" default:"15"`
	InvertAfter   int     `yaml:"invert_after" default:"2"`
	CooldownAfter int     `yaml:"cooldown_after" default:"3"`
	Cooldown      int     `yaml:"cooldown" default:"5"`
	InvertBoost   float64 `yaml:"invert_boost" default:"1.2"`
}

// DefaultConfig returns the baseline policy.
func DefaultConfig() Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(fmt.Sprintf("ensemble defaults: %v", err))
	}
	return c
}

// Validate checks ranges the engine relies on.
func (c Config) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("capacity must be positive, got %d", c.Capacity)
	}
	if c.MinHistory < 1 {
		return fmt.Errorf("min_history must be positive, got %d", c.MinHistory)
	}
	if c.TieThreshold < 0 {
		return fmt.Errorf("tie_threshold must not be negative")
	}
	r := c.Reliability
	if r.MinScore <= 0 || r.MinScore > r.MaxScore {
		return fmt.Errorf("reliability score bounds invalid: [%v,%v]", r.MinScore, r.MaxScore)
	}
	if r.InitialScore < r.MinScore || r.InitialScore > r.MaxScore {
		return fmt.Errorf("reliability.initial_score %v outside bounds", r.InitialScore)
	}
	if r.InvertAfter < 1 || r.CooldownAfter <= r.InvertAfter {
		return fmt.Errorf("reliability: invert_after must be >= 1 and below cooldown_after")
	}
	if r.Cooldown < 0 {
		return fmt.Errorf("reliability.cooldown must not be negative")
	}
	if c.Periodicity.Window < 4 || c.Periodicity.Window%2 != 0 {
		return fmt.Errorf("periodicity.window must be even and >= 4, got %d", c.Periodicity.Window)
	}
	if c.PRNG.Enabled && c.PRNG.Window < 1 {
		return fmt.Errorf("prng.window must be positive")
	}
	return nil
}
