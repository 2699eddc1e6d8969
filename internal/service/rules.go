package service

import (
	"fmt"
	"ht2peer/internal/config"
	"ht2peer/internal/domain"
	"math"
	"time"
)

// Rule checks a snapshot against the previously accepted one. prev is nil on
// the first snapshot of a room. A nil error means the snapshot passes.
type Rule func(prev, cur *domain.Snapshot) error

type NamedRule struct {
	Name  string
	Check Rule
}

// GameMode is the rule set resolved for one game mode tag.
type GameMode struct {
	Name      string
	Mode      Rule
	AntiCheat []NamedRule
}

// BuildGameModes resolves the configured rule sets into GameModes.
func BuildGameModes(modes map[string]config.GameModeRules) map[string]GameMode {
	out := make(map[string]GameMode, len(modes))
	for name, rules := range modes {
		mode := GameMode{Name: name, Mode: ConsistentPlayers}
		for _, rule := range rules.AntiCheat {
			switch rule {
			case config.RuleSpeedHack:
				mode.AntiCheat = append(mode.AntiCheat, NamedRule{rule, SpeedHack(rules.MaxSpeed)})
			case config.RuleWallHack:
				mode.AntiCheat = append(mode.AntiCheat, NamedRule{rule, WallHack(*rules.Bounds)})
			case config.RuleRapidFire:
				mode.AntiCheat = append(mode.AntiCheat, NamedRule{rule, RapidFire(rules.MinFireInterval)})
			}
		}
		out[name] = mode
	}
	return out
}

// Structural rejects snapshots that are missing, stamped in the future or
// carry no player list.
func Structural(now time.Time) Rule {
	return func(_, cur *domain.Snapshot) error {
		if cur == nil {
			return domain.Validation("state missing")
		}
		if cur.Timestamp <= 0 {
			return domain.Validation("timestamp missing")
		}
		if cur.Timestamp > now.UnixMilli() {
			return domain.Validation("timestamp in the future")
		}
		if cur.Players == nil {
			return domain.Validation("players missing")
		}
		return nil
	}
}

// ConsistentPlayers requires unique non-empty player ids and finite
// coordinates.
func ConsistentPlayers(_, cur *domain.Snapshot) error {
	seen := make(map[string]struct{}, len(cur.Players))
	for _, p := range cur.Players {
		if p.ID == "" {
			return domain.Validation("player without id")
		}
		if _, dup := seen[p.ID]; dup {
			return domain.Validation(fmt.Sprintf("duplicate player %s", p.ID))
		}
		seen[p.ID] = struct{}{}

		if !finite(p.Position.X) || !finite(p.Position.Y) {
			return domain.Validation(fmt.Sprintf("player %s has a non-finite position", p.ID))
		}
	}
	return nil
}

// SpeedHack fails when a player present in both snapshots moved faster than
// maxSpeed units per second.
func SpeedHack(maxSpeed float64) Rule {
	return func(prev, cur *domain.Snapshot) error {
		if prev == nil {
			return nil
		}
		elapsed := float64(cur.Timestamp-prev.Timestamp) / 1000

		for _, p := range cur.Players {
			before, ok := prev.Player(p.ID)
			if !ok {
				continue
			}
			distance := math.Hypot(p.Position.X-before.Position.X, p.Position.Y-before.Position.Y)
			if distance == 0 {
				continue
			}
			if elapsed <= 0 || distance/elapsed > maxSpeed {
				return domain.Validation(fmt.Sprintf("player %s moved %.2f units in %.3fs", p.ID, distance, elapsed))
			}
		}
		return nil
	}
}

// WallHack fails when a player stands outside the playfield.
func WallHack(b config.Bounds) Rule {
	return func(_, cur *domain.Snapshot) error {
		for _, p := range cur.Players {
			x, y := p.Position.X, p.Position.Y
			if x < b.MinX || x > b.MaxX || y < b.MinY || y > b.MaxY {
				return domain.Validation(fmt.Sprintf("player %s out of bounds at (%.1f, %.1f)", p.ID, x, y))
			}
		}
		return nil
	}
}

// RapidFire fails when a player's new shot follows the previous one by less
// than minInterval.
func RapidFire(minInterval time.Duration) Rule {
	minMillis := minInterval.Milliseconds()
	return func(prev, cur *domain.Snapshot) error {
		if prev == nil {
			return nil
		}
		for _, p := range cur.Players {
			before, ok := prev.Player(p.ID)
			if !ok || p.LastShot == 0 || before.LastShot == 0 || p.LastShot == before.LastShot {
				continue
			}
			if p.LastShot-before.LastShot < minMillis {
				return domain.Validation(fmt.Sprintf("player %s fired twice within %dms", p.ID, p.LastShot-before.LastShot))
			}
		}
		return nil
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
