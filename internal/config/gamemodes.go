package config

import (
	"fmt"
	"ht2peer/internal/constants"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	RuleSpeedHack = "speed_hack"
	RuleWallHack  = "wall_hack"
	RuleRapidFire = "rapid_fire"
)

type Bounds struct {
	MinX float64 `yaml:"min_x"`
	MinY float64 `yaml:"min_y"`
	MaxX float64 `yaml:"max_x"`
	MaxY float64 `yaml:"max_y"`
}

// GameModeRules is one entry of the game modes file.
type GameModeRules struct {
	AntiCheat       []string      `yaml:"anti_cheat"`
	MaxSpeed        float64       `yaml:"max_speed"`
	Bounds          *Bounds       `yaml:"bounds"`
	MinFireInterval time.Duration `yaml:"min_fire_interval"`
}

type gameModesFile struct {
	Modes map[string]GameModeRules `yaml:"modes"`
}

func DefaultGameModes() map[string]GameModeRules {
	return map[string]GameModeRules{
		constants.DefaultGameMode: withDefaults(GameModeRules{
			AntiCheat: []string{RuleSpeedHack, RuleWallHack, RuleRapidFire},
		}),
	}
}

// LoadGameModes reads the rules file at path. An empty path yields the
// built-in default mode only.
func LoadGameModes(path string) (map[string]GameModeRules, error) {
	if path == "" {
		return DefaultGameModes(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read game modes file: %w", err)
	}
	return ParseGameModes(raw)
}

func ParseGameModes(raw []byte) (map[string]GameModeRules, error) {
	var file gameModesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse game modes: %w", err)
	}
	if len(file.Modes) == 0 {
		return nil, fmt.Errorf("game modes file defines no modes")
	}

	modes := make(map[string]GameModeRules, len(file.Modes))
	for name, rules := range file.Modes {
		for _, rule := range rules.AntiCheat {
			switch rule {
			case RuleSpeedHack, RuleWallHack, RuleRapidFire:
			default:
				return nil, fmt.Errorf("game mode %q: unknown anti-cheat rule %q", name, rule)
			}
		}
		modes[name] = withDefaults(rules)
	}
	return modes, nil
}

func withDefaults(r GameModeRules) GameModeRules {
	if r.MaxSpeed <= 0 {
		r.MaxSpeed = constants.DefaultMaxSpeed
	}
	if r.Bounds == nil {
		r.Bounds = &Bounds{MaxX: constants.DefaultMapSize, MaxY: constants.DefaultMapSize}
	}
	if r.MinFireInterval <= 0 {
		r.MinFireInterval = constants.DefaultMinFireInterval
	}
	return r
}
