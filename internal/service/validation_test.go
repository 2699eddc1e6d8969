package service

import (
	"context"
	"ht2peer/internal/config"
	"ht2peer/internal/domain"
	"ht2peer/internal/events"
	"ht2peer/internal/metrics"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var validationNow = time.UnixMilli(1_700_000_000_000)

func newTestValidator(t *testing.T) (*ValidationService, *metrics.Metrics) {
	t.Helper()

	m := metrics.New()
	v := newValidationService(BuildGameModes(config.DefaultGameModes()), m, events.Nop{}, zerolog.Nop())
	v.now = func() time.Time { return validationNow }
	return v, m
}

func snapshot(offset time.Duration, players ...domain.PlayerState) *domain.Snapshot {
	return &domain.Snapshot{
		Timestamp: validationNow.Add(offset).UnixMilli(),
		Players:   players,
	}
}

func at(id string, x, y float64) domain.PlayerState {
	return domain.PlayerState{ID: id, Position: domain.Position{X: x, Y: y}}
}

func TestSpeedHackThreshold(t *testing.T) {
	v, m := newTestValidator(t)
	ctx := context.Background()
	prev := snapshot(-100*time.Millisecond, at("p1", 100, 100))

	assert.False(t, v.ValidateState(ctx, "r1", "default", snapshot(0, at("p1", 100, 1100)), prev))
	assert.Equal(t, int64(1), m.Get(metrics.CheatDetected))

	assert.True(t, v.ValidateState(ctx, "r2", "default", snapshot(0, at("p1", 100.5, 100)), prev))
}

func TestValidateKeepsPreviousOnFailure(t *testing.T) {
	v, _ := newTestValidator(t)
	ctx := context.Background()

	first := snapshot(-time.Second, at("p1", 10, 10))
	require.NoError(t, v.Validate(ctx, "r1", "default", first))

	err := v.Validate(ctx, "r1", "default", snapshot(-900*time.Millisecond, at("p1", 900, 900)))
	require.ErrorIs(t, err, domain.ErrValidationFailed)
	assert.Equal(t, domain.KindValidationFailed, domain.KindOf(err))

	prev, ok := v.Previous("r1")
	require.True(t, ok)
	assert.Same(t, first, prev)

	next := snapshot(0, at("p1", 15, 10))
	require.NoError(t, v.Validate(ctx, "r1", "default", next))
	prev, _ = v.Previous("r1")
	assert.Same(t, next, prev)

	v.ForgetRoom("r1")
	_, ok = v.Previous("r1")
	assert.False(t, ok)
}

func TestValidateStateDoesNotMoveBaseline(t *testing.T) {
	v, _ := newTestValidator(t)
	ctx := context.Background()

	base := snapshot(-time.Second, at("A", 10, 10))
	require.NoError(t, v.Validate(ctx, "r1", "default", base))

	far := snapshot(-500*time.Millisecond, at("A", 900, 10))
	assert.True(t, v.ValidateState(ctx, "r1", "default", far, far))

	prev, ok := v.Previous("r1")
	require.True(t, ok)
	assert.Same(t, base, prev)
	assert.ErrorIs(t, v.Validate(ctx, "r1", "default", snapshot(-400*time.Millisecond, at("A", 900, 10))), domain.ErrValidationFailed)

	_, ok = v.Previous("other")
	assert.False(t, ok)
	assert.NoError(t, v.Check(ctx, "other", "default", far, nil))
	_, ok = v.Previous("other")
	assert.False(t, ok)
}

func TestValidateUnknownModeAlwaysPasses(t *testing.T) {
	v, m := newTestValidator(t)

	assert.NoError(t, v.Validate(context.Background(), "r1", "no-such-mode", nil))
	assert.Equal(t, int64(0), m.Get(metrics.InvalidState))
}

func TestValidateStructural(t *testing.T) {
	v, m := newTestValidator(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		state *domain.Snapshot
	}{
		{"missing state", nil},
		{"missing timestamp", &domain.Snapshot{Players: []domain.PlayerState{}}},
		{"future timestamp", snapshot(time.Second, at("p1", 1, 1))},
		{"missing players", &domain.Snapshot{Timestamp: validationNow.UnixMilli()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, v.ValidateState(ctx, "r1", "default", tt.state, nil))
		})
	}
	assert.Equal(t, int64(len(tests)), m.Get(metrics.InvalidState))
	assert.Equal(t, int64(0), m.Get(metrics.CheatDetected))
}

func TestValidateModeRule(t *testing.T) {
	v, m := newTestValidator(t)
	ctx := context.Background()

	assert.False(t, v.ValidateState(ctx, "r1", "default", snapshot(0, at("p1", 1, 1), at("p1", 2, 2)), nil))
	assert.False(t, v.ValidateState(ctx, "r1", "default", snapshot(0, at("p1", math.NaN(), 1)), nil))
	assert.Equal(t, int64(2), m.Get(metrics.InvalidState))
}

func TestWallHack(t *testing.T) {
	rule := WallHack(config.Bounds{MaxX: 1000, MaxY: 1000})

	assert.NoError(t, rule(nil, snapshot(0, at("p1", 0, 1000))))
	assert.Error(t, rule(nil, snapshot(0, at("p1", -1, 500))))
	assert.Error(t, rule(nil, snapshot(0, at("p1", 500, 1000.1))))
}

func TestRapidFire(t *testing.T) {
	rule := RapidFire(100 * time.Millisecond)
	shot := func(id string, lastShot int64) domain.PlayerState {
		return domain.PlayerState{ID: id, LastShot: lastShot}
	}

	prev := snapshot(-time.Second, shot("p1", 1000), shot("p2", 0))

	assert.NoError(t, rule(nil, snapshot(0, shot("p1", 1050))))
	assert.Error(t, rule(prev, snapshot(0, shot("p1", 1050))))
	assert.NoError(t, rule(prev, snapshot(0, shot("p1", 1100))))
	assert.NoError(t, rule(prev, snapshot(0, shot("p1", 1000))), "no new shot")
	assert.NoError(t, rule(prev, snapshot(0, shot("p2", 5))), "first shot")
}

func TestSpeedHackZeroElapsed(t *testing.T) {
	rule := SpeedHack(10)
	prev := snapshot(0, at("p1", 1, 1))

	assert.NoError(t, rule(prev, snapshot(0, at("p1", 1, 1))))
	assert.Error(t, rule(prev, snapshot(0, at("p1", 2, 1))))
}

func TestBuildGameModesRespectsConfiguredRules(t *testing.T) {
	modes, err := config.ParseGameModes([]byte(`
modes:
  arena:
    anti_cheat: [wall_hack]
    bounds: {min_x: 0, min_y: 0, max_x: 10, max_y: 10}
`))
	require.NoError(t, err)

	built := BuildGameModes(modes)
	require.Contains(t, built, "arena")
	require.Len(t, built["arena"].AntiCheat, 1)
	assert.Equal(t, config.RuleWallHack, built["arena"].AntiCheat[0].Name)

	v := newValidationService(built, metrics.New(), events.Nop{}, zerolog.Nop())
	v.now = func() time.Time { return validationNow }

	ctx := context.Background()
	prev := snapshot(-100*time.Millisecond, at("p1", 1, 1))
	assert.True(t, v.ValidateState(ctx, "r1", "arena", snapshot(0, at("p1", 9, 9)), prev), "speed is not checked in arena")
	assert.False(t, v.ValidateState(ctx, "r1", "arena", snapshot(0, at("p1", 11, 9)), prev))
}
