package service

import (
	"context"
	"fmt"
	"ht2peer/internal/config"
	"ht2peer/internal/constants"
	"ht2peer/internal/domain"
	"ht2peer/internal/events"
	"ht2peer/internal/metrics"
	"ht2peer/internal/repository"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

const roomIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Notifier delivers a server message to a connected player. It reports
// false when the player has no live connection.
type Notifier interface {
	Notify(playerID, msgType string, payload any) bool
}

type MatchFound struct {
	MatchID string   `json:"matchId"`
	RoomID  string   `json:"roomId"`
	Players []string `json:"players"`
}

type queued struct {
	entry domain.QueueEntry
	seq   uint64
}

type MatchmakingService struct {
	players  *repository.PlayerRepository
	matches  *repository.MatchRepository
	ledger   *repository.LedgerRepository
	rooms    *RoomService
	notifier Notifier
	metrics  *metrics.Metrics
	events   events.Publisher
	elo      Elo
	logger   zerolog.Logger

	interval  time.Duration
	baseRange int
	maxRange  int
	rangeStep int
	now       func() time.Time

	mu    sync.Mutex
	queue map[string]*queued
	seq   uint64
}

func NewMatchmakingService(
	players *repository.PlayerRepository,
	matches *repository.MatchRepository,
	ledger *repository.LedgerRepository,
	rooms *RoomService,
	notifier Notifier,
	m *metrics.Metrics,
	pub events.Publisher,
	cfg *config.Config,
	logger zerolog.Logger,
) *MatchmakingService {
	return &MatchmakingService{
		players:   players,
		matches:   matches,
		ledger:    ledger,
		rooms:     rooms,
		notifier:  notifier,
		metrics:   m,
		events:    pub,
		elo:       Elo{K: cfg.EloKFactor},
		logger:    logger.With().Str("component", "matchmaking").Logger(),
		interval:  cfg.MatchInterval,
		baseRange: cfg.BaseRatingRange,
		maxRange:  cfg.MaxRatingRange,
		rangeStep: cfg.RatingRangeStep,
		now:       time.Now,
		queue:     make(map[string]*queued),
	}
}

// Enqueue puts playerID at the back of the queue, replacing any earlier entry.
func (s *MatchmakingService) Enqueue(ctx context.Context, playerID, gameMode string) (*domain.QueueEntry, error) {
	if gameMode == "" {
		gameMode = constants.DefaultGameMode
	}

	rating, err := s.players.GetRating(ctx, playerID)
	if err != nil {
		return nil, err
	}

	entry := domain.QueueEntry{
		PlayerID:    playerID,
		Rating:      rating,
		GameMode:    gameMode,
		JoinTime:    s.now(),
		RatingRange: s.baseRange,
	}

	s.mu.Lock()
	s.seq++
	s.queue[playerID] = &queued{entry: entry, seq: s.seq}
	size := len(s.queue)
	s.mu.Unlock()

	s.metrics.Inc(metrics.QueueJoined)
	s.logger.Info().
		Str("player_id", playerID).
		Str("game_mode", gameMode).
		Int("rating", rating).
		Int("queue_size", size).
		Msg("player queued")

	return &entry, nil
}

func (s *MatchmakingService) Dequeue(playerID string) bool {
	s.mu.Lock()
	_, ok := s.queue[playerID]
	delete(s.queue, playerID)
	s.mu.Unlock()

	if ok {
		s.metrics.Inc(metrics.QueueLeft)
		s.logger.Debug().Str("player_id", playerID).Msg("player dequeued")
	}
	return ok
}

func (s *MatchmakingService) Entry(playerID string) (domain.QueueEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queue[playerID]
	if !ok {
		return domain.QueueEntry{}, false
	}
	return q.entry, true
}

func (s *MatchmakingService) QueueSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

type pairing struct {
	a, b queued
}

// ProcessQueue runs one matching pass. Entries are visited in arrival order
// and each takes the first unmatched candidate of the same mode within its
// own rating range. Unmatched entries that waited longer than one interval
// get a wider range.
func (s *MatchmakingService) ProcessQueue(ctx context.Context) {
	pairs := s.pair()

	for _, p := range pairs {
		match, err := s.createMatch(ctx, p.a.entry, p.b.entry)
		if err != nil {
			s.metrics.Inc(metrics.Errors)
			s.logger.Error().
				Err(err).
				Str("player_id", p.a.entry.PlayerID).
				Str("opponent_id", p.b.entry.PlayerID).
				Msg("failed to create match, players stay queued")
			continue
		}

		s.mu.Lock()
		s.retire(p.a)
		s.retire(p.b)
		s.mu.Unlock()

		found := MatchFound{MatchID: match.ID, RoomID: match.RoomID, Players: match.Players}
		for _, playerID := range match.Players {
			if !s.notifier.Notify(playerID, "match_found", found) {
				s.logger.Warn().Str("player_id", playerID).Str("match_id", match.ID).Msg("matched player not connected")
			}
		}
	}
}

func (s *MatchmakingService) pair() []pairing {
	s.mu.Lock()
	defer s.mu.Unlock()

	ordered := make([]*queued, 0, len(s.queue))
	for _, q := range s.queue {
		ordered = append(ordered, q)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].seq < ordered[j].seq })

	now := s.now()
	matched := make(map[string]bool, len(ordered))
	var pairs []pairing

	for _, q := range ordered {
		if matched[q.entry.PlayerID] {
			continue
		}

		var hit *queued
		for _, other := range ordered {
			if other == q || matched[other.entry.PlayerID] || other.entry.GameMode != q.entry.GameMode {
				continue
			}
			if abs(other.entry.Rating-q.entry.Rating) <= q.entry.RatingRange {
				hit = other
				break
			}
		}

		if hit != nil {
			matched[q.entry.PlayerID] = true
			matched[hit.entry.PlayerID] = true
			pairs = append(pairs, pairing{a: *q, b: *hit})
			continue
		}

		if now.Sub(q.entry.JoinTime) > s.interval && q.entry.RatingRange < s.maxRange {
			q.entry.RatingRange = min(q.entry.RatingRange+s.rangeStep, s.maxRange)
			s.logger.Debug().
				Str("player_id", q.entry.PlayerID).
				Int("rating_range", q.entry.RatingRange).
				Msg("rating range widened")
		}
	}
	return pairs
}

// retire removes the entry unless the player re-enqueued meanwhile. mu must be held.
func (s *MatchmakingService) retire(q queued) {
	if cur, ok := s.queue[q.entry.PlayerID]; ok && cur.seq == q.seq {
		delete(s.queue, q.entry.PlayerID)
	}
}

func (s *MatchmakingService) createMatch(ctx context.Context, a, b domain.QueueEntry) (*domain.Match, error) {
	suffix, err := gonanoid.Generate(roomIDAlphabet, 9)
	if err != nil {
		return nil, fmt.Errorf("failed to generate room id: %w", err)
	}
	now := s.now().UTC()
	matchID := uuid.NewString()
	roomID := fmt.Sprintf("%s%d_%s", constants.MatchRoomPrefix, now.UnixMilli(), suffix)

	room, err := s.rooms.CreateRoom(ctx, roomID, a.PlayerID, domain.RoomOptions{
		MaxPlayers: constants.MatchRoomMaxPlayers,
		GameMode:   a.GameMode,
		IsRanked:   true,
		MatchID:    matchID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create match room: %w", err)
	}

	match := &domain.Match{
		ID:        matchID,
		RoomID:    room.ID,
		HostID:    a.PlayerID,
		GameMode:  a.GameMode,
		Status:    domain.MatchStarting,
		Players:   []string{a.PlayerID, b.PlayerID},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.matches.Create(ctx, match); err != nil {
		if delErr := s.rooms.DeleteRoom(ctx, room.ID); delErr != nil {
			s.logger.Warn().Err(delErr).Str("room_id", room.ID).Msg("failed to delete orphaned match room")
		}
		return nil, fmt.Errorf("failed to create match record: %w", err)
	}

	s.metrics.Inc(metrics.MatchesCreated)
	s.events.Publish(ctx, events.Event{
		Type:    events.MatchCreated,
		MatchID: matchID,
		RoomID:  room.ID,
		Data:    map[string]any{"players": match.Players, "game_mode": match.GameMode},
	})
	s.logger.Info().
		Str("match_id", matchID).
		Str("room_id", room.ID).
		Str("game_mode", a.GameMode).
		Strs("players", match.Players).
		Int("rating_gap", abs(a.Rating-b.Rating)).
		Msg("match created")

	return match, nil
}

// ActivateMatch marks a starting match active. It reports whether the
// transition happened.
func (s *MatchmakingService) ActivateMatch(ctx context.Context, matchID string) (bool, error) {
	ok, err := s.matches.Transition(ctx, matchID, domain.MatchStarting, domain.MatchActive)
	if err != nil {
		return false, err
	}
	if ok {
		s.events.Publish(ctx, events.Event{Type: events.MatchActivated, MatchID: matchID})
		s.logger.Info().Str("match_id", matchID).Msg("match active")
	}
	return ok, nil
}

// CompleteMatch records the result once. Repeated or unknown completions
// are no-ops.
func (s *MatchmakingService) CompleteMatch(ctx context.Context, matchID, winnerID, loserID string) (*domain.MatchResult, error) {
	if matchID == "" || winnerID == "" || loserID == "" {
		return nil, domain.ErrBadRequest
	}

	result, err := s.ledger.CompleteMatch(ctx, matchID, winnerID, loserID, s.elo.Deltas)
	if err != nil {
		s.logger.Error().Err(err).Str("match_id", matchID).Msg("failed to complete match")
		return nil, err
	}
	if result == nil {
		s.logger.Debug().Str("match_id", matchID).Msg("match missing or already completed")
		return nil, nil
	}

	s.metrics.Inc(metrics.MatchesCompleted)
	s.events.Publish(ctx, events.Event{
		Type:    events.MatchCompleted,
		MatchID: matchID,
		Data: map[string]any{
			"winner":             result.WinnerID,
			"loser":              result.LoserID,
			"winnerRatingChange": result.WinnerRatingDelta,
			"loserRatingChange":  result.LoserRatingDelta,
		},
	})
	return result, nil
}

func (s *MatchmakingService) GetMatch(ctx context.Context, matchID string) (*domain.Match, error) {
	return s.matches.Get(ctx, matchID)
}

// PlayerDisconnected drops the player's queue entry.
func (s *MatchmakingService) PlayerDisconnected(playerID string) {
	if s.Dequeue(playerID) {
		s.logger.Info().Str("player_id", playerID).Msg("queued player disconnected")
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
