/*
Package factory provides JSON to Go scoring-configuration conversion.

PURPOSE:
  Converts JSON threshold definitions into a scoring.Config. This enables
  chapters to run custom tier tables without code changes - an operator
  defines thresholds in JSON, and the factory produces the proper struct
  on top of the built-in defaults.

WHY JSON?
  - Non-developers can tune thresholds
  - Easy integration with an admin UI
  - Version control for threshold definitions

JSON SCHEMA (all sections optional; omitted ones keep the defaults):
  {
    "referrals": [
      {"threshold": 1.2, "points": 20},
      {"threshold": 0.5, "points": 5}
    ],
    "tyfcb": [
      {"threshold": 2000000, "points": 15}
    ],
    "punctualityPoints": 5,
    "bands": {"top": 70, "mid": 50, "low": 30}
  }

VALIDATION:
  - Tier tables must be ordered best-first (strictly descending thresholds)
  - Points must be non-negative
  - Band cutoffs must be strictly descending

USAGE:
  cfg, err := factory.ParseConfig(jsonStr)
  // or from a file path:
  cfg, err := factory.LoadConfig("./thresholds.json")

SEE ALSO:
  - scoring/config.go: Config definition and defaults
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/chapterpulse/score-engine/scoring"
)

// ParseConfig overlays a JSON threshold definition onto the default
// scoring configuration and validates the result.
func ParseConfig(jsonStr string) (scoring.Config, error) {
	cfg := scoring.DefaultConfig()
	if err := json.Unmarshal([]byte(jsonStr), &cfg); err != nil {
		return scoring.Config{}, fmt.Errorf("failed to parse scoring config JSON: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return scoring.Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads a JSON threshold file and parses it.
func LoadConfig(path string) (scoring.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return scoring.Config{}, fmt.Errorf("failed to read scoring config: %w", err)
	}
	return ParseConfig(string(data))
}

// Validate checks a scoring configuration for structural mistakes that
// would make tier lookup silently wrong.
func Validate(cfg scoring.Config) error {
	if err := validateTiers("referrals", cfg.Referrals); err != nil {
		return err
	}
	if err := validateTiers("visitors", cfg.Visitors); err != nil {
		return err
	}
	if err := validateTiers("testimonials", cfg.Testimonials); err != nil {
		return err
	}
	if len(cfg.TYFCB) == 0 {
		return fmt.Errorf("scoring config: tyfcb tier table is empty")
	}
	for i, tier := range cfg.TYFCB {
		if tier.Points < 0 {
			return fmt.Errorf("scoring config: tyfcb tier %d has negative points", i)
		}
		if i > 0 && !tier.Threshold.LessThan(cfg.TYFCB[i-1].Threshold) {
			return fmt.Errorf("scoring config: tyfcb tiers must descend by threshold")
		}
	}

	// Absenteeism ascends: 0 absences is the best tier.
	if len(cfg.Absenteeism) == 0 {
		return fmt.Errorf("scoring config: absenteeism tier table is empty")
	}
	for i, tier := range cfg.Absenteeism {
		if tier.Points < 0 {
			return fmt.Errorf("scoring config: absenteeism tier %d has negative points", i)
		}
		if i > 0 && tier.Threshold <= cfg.Absenteeism[i-1].Threshold {
			return fmt.Errorf("scoring config: absenteeism tiers must ascend by threshold")
		}
	}

	if cfg.TrainingTopCount < 0 || cfg.TrainingTop < 0 {
		return fmt.Errorf("scoring config: training thresholds must be non-negative")
	}
	if cfg.PunctualityPoints < 0 {
		return fmt.Errorf("scoring config: punctuality points must be non-negative")
	}

	b := cfg.Bands
	if !(b.Top > b.Mid && b.Mid > b.Low && b.Low > 0) {
		return fmt.Errorf("scoring config: band cutoffs must strictly descend (top > mid > low > 0)")
	}
	return nil
}

func validateTiers(name string, tiers []scoring.Tier) error {
	if len(tiers) == 0 {
		return fmt.Errorf("scoring config: %s tier table is empty", name)
	}
	for i, tier := range tiers {
		if tier.Points < 0 {
			return fmt.Errorf("scoring config: %s tier %d has negative points", name, i)
		}
		if i > 0 && tier.Threshold >= tiers[i-1].Threshold {
			return fmt.Errorf("scoring config: %s tiers must descend by threshold", name)
		}
	}
	return nil
}
