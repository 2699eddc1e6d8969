package service

import (
	"context"
	"ht2peer/internal/config"
	"ht2peer/internal/domain"
	"ht2peer/internal/events"
	"ht2peer/internal/metrics"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ValidationService checks client reported snapshots against the rule set of
// their game mode and remembers the last accepted snapshot per room.
type ValidationService struct {
	modes   map[string]GameMode
	metrics *metrics.Metrics
	events  events.Publisher
	now     func() time.Time
	logger  zerolog.Logger

	mu       sync.Mutex
	previous map[string]*domain.Snapshot
}

func NewValidationService(cfg *config.Config, m *metrics.Metrics, pub events.Publisher, logger zerolog.Logger) (*ValidationService, error) {
	rules, err := config.LoadGameModes(cfg.GameModesPath)
	if err != nil {
		return nil, err
	}
	return newValidationService(BuildGameModes(rules), m, pub, logger), nil
}

func newValidationService(modes map[string]GameMode, m *metrics.Metrics, pub events.Publisher, logger zerolog.Logger) *ValidationService {
	names := make([]string, 0, len(modes))
	for name := range modes {
		names = append(names, name)
	}
	logger = logger.With().Str("component", "validator").Logger()
	logger.Info().Strs("game_modes", names).Msg("game mode rules loaded")

	return &ValidationService{
		modes:    modes,
		metrics:  m,
		events:   pub,
		now:      time.Now,
		logger:   logger,
		previous: make(map[string]*domain.Snapshot),
	}
}

// Validate checks state against the last snapshot accepted for roomID.
func (s *ValidationService) Validate(ctx context.Context, roomID, gameMode string, state *domain.Snapshot) error {
	s.mu.Lock()
	prev := s.previous[roomID]
	s.mu.Unlock()

	if err := s.Check(ctx, roomID, gameMode, state, prev); err != nil {
		return err
	}

	s.mu.Lock()
	s.previous[roomID] = state
	s.mu.Unlock()
	return nil
}

// ValidateState checks state against an explicit previous snapshot. The
// result never replaces the snapshot remembered for roomID.
func (s *ValidationService) ValidateState(ctx context.Context, roomID, gameMode string, state, previous *domain.Snapshot) bool {
	return s.Check(ctx, roomID, gameMode, state, previous) == nil
}

// Check is ValidateState with the rejection reason.
func (s *ValidationService) Check(ctx context.Context, roomID, gameMode string, state, prev *domain.Snapshot) error {
	mode, ok := s.modes[gameMode]
	if !ok {
		s.logger.Warn().Str("game_mode", gameMode).Str("room_id", roomID).Msg("no validator for game mode")
		return nil
	}

	if err := Structural(s.now())(prev, state); err != nil {
		s.reject(ctx, roomID, gameMode, "structural", err, metrics.InvalidState)
		return err
	}
	if mode.Mode != nil {
		if err := mode.Mode(prev, state); err != nil {
			s.reject(ctx, roomID, gameMode, "mode", err, metrics.InvalidState)
			return err
		}
	}
	for _, rule := range mode.AntiCheat {
		if err := rule.Check(prev, state); err != nil {
			s.reject(ctx, roomID, gameMode, rule.Name, err, metrics.CheatDetected)
			return err
		}
	}
	return nil
}

func (s *ValidationService) reject(ctx context.Context, roomID, gameMode, rule string, err error, counter string) {
	s.metrics.Inc(counter)
	s.logger.Warn().
		Err(err).
		Str("room_id", roomID).
		Str("game_mode", gameMode).
		Str("rule", rule).
		Msg("game state rejected")

	if counter == metrics.CheatDetected {
		s.events.Publish(ctx, events.Event{
			Type:   events.CheatDetected,
			RoomID: roomID,
			Data:   map[string]any{"game_mode": gameMode, "rule": rule, "reason": err.Error()},
		})
	}
}

// Previous returns the last snapshot accepted for roomID.
func (s *ValidationService) Previous(roomID string) (*domain.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.previous[roomID]
	return prev, ok
}

func (s *ValidationService) ForgetRoom(roomID string) {
	s.mu.Lock()
	delete(s.previous, roomID)
	s.mu.Unlock()
}
