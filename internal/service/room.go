package service

import (
	"context"
	"errors"
	"fmt"
	"ht2peer/internal/config"
	"ht2peer/internal/constants"
	"ht2peer/internal/domain"
	"ht2peer/internal/events"
	"ht2peer/internal/metrics"
	"ht2peer/internal/repository"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type RoomService struct {
	repo       *repository.RoomRepository
	registry   *Registry
	metrics    *metrics.Metrics
	events     events.Publisher
	maxPlayers int
	timeout    time.Duration
	locks      roomLocks
	now        func() time.Time
	logger     zerolog.Logger

	closeMu sync.RWMutex
	onClose []func(roomID string)
}

func NewRoomService(repo *repository.RoomRepository, registry *Registry, m *metrics.Metrics, pub events.Publisher, cfg *config.Config, logger zerolog.Logger) *RoomService {
	return &RoomService{
		repo:       repo,
		registry:   registry,
		metrics:    m,
		events:     pub,
		maxPlayers: cfg.MaxPlayersPerRoom,
		timeout:    cfg.RoomTimeout,
		locks:      roomLocks{locks: make(map[string]*roomLock)},
		now:        time.Now,
		logger:     logger.With().Str("component", "rooms").Logger(),
	}
}

// OnClose registers fn to run after a room is removed from both stores.
func (s *RoomService) OnClose(fn func(roomID string)) {
	s.closeMu.Lock()
	s.onClose = append(s.onClose, fn)
	s.closeMu.Unlock()
}

func (s *RoomService) CreateRoom(ctx context.Context, roomID, hostID string, opts domain.RoomOptions) (*domain.Room, error) {
	if hostID == "" {
		return nil, domain.ErrBadRequest
	}
	if roomID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return nil, fmt.Errorf("failed to generate room id: %w", err)
		}
		roomID = id
	}
	if opts.MaxPlayers <= 0 {
		opts.MaxPlayers = s.maxPlayers
	}
	if opts.GameMode == "" {
		opts.GameMode = constants.DefaultGameMode
	}

	room := &domain.Room{
		ID:        roomID,
		HostID:    hostID,
		CreatedAt: s.now().UTC(),
		Players:   []string{hostID},
		Options:   opts,
		State:     domain.RoomWaiting,
	}

	if err := s.repo.Create(ctx, room); err != nil {
		return nil, err
	}
	s.registry.Track(roomID, hostID)

	s.metrics.Inc(metrics.RoomsCreated)
	s.events.Publish(ctx, events.Event{
		Type:     events.RoomCreated,
		RoomID:   roomID,
		PlayerID: hostID,
		Data:     map[string]any{"game_mode": opts.GameMode, "max_players": opts.MaxPlayers},
	})
	s.logger.Info().
		Str("room_id", roomID).
		Str("host_id", hostID).
		Str("game_mode", opts.GameMode).
		Int("max_players", opts.MaxPlayers).
		Msg("room created")

	return room, nil
}

// JoinRoom adds playerID to the room and attaches peer. It returns the ids
// of the other members connected in this process.
func (s *RoomService) JoinRoom(ctx context.Context, roomID, playerID string, peer Peer) (*domain.Room, []string, error) {
	unlock := s.locks.lock(roomID)
	defer unlock()

	room, err := s.repo.Get(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}

	if !room.HasPlayer(playerID) {
		if room.IsFull() {
			return nil, nil, domain.ErrRoomFull
		}
		room.Players = append(room.Players, playerID)
		if err := s.repo.Update(ctx, room); err != nil {
			return nil, nil, err
		}
		s.metrics.Inc(metrics.PlayersJoined)
	}

	if peer != nil {
		s.registry.Attach(roomID, playerID, peer)
	} else {
		s.registry.Track(roomID, playerID)
	}
	peers := s.registry.Peers(roomID, playerID)

	s.logger.Info().
		Str("room_id", roomID).
		Str("player_id", playerID).
		Int("players", len(room.Players)).
		Msg("player joined room")

	return room, peers, nil
}

// AttachConnection binds peer to a member already recorded in the room.
func (s *RoomService) AttachConnection(roomID, playerID string, peer Peer) {
	s.registry.Attach(roomID, playerID, peer)
}

// LeaveRoom removes playerID. It returns nil when the room was deleted or
// no longer exists.
func (s *RoomService) LeaveRoom(ctx context.Context, roomID, playerID string) (*domain.Room, error) {
	return s.leave(ctx, roomID, playerID, nil)
}

// LeaveRoomFrom removes playerID on behalf of the connection peer. When a
// newer connection of the player has taken over the membership nothing is
// removed and nil is returned.
func (s *RoomService) LeaveRoomFrom(ctx context.Context, roomID, playerID string, peer Peer) (*domain.Room, error) {
	return s.leave(ctx, roomID, playerID, peer)
}

func (s *RoomService) leave(ctx context.Context, roomID, playerID string, peer Peer) (*domain.Room, error) {
	unlock := s.locks.lock(roomID)
	defer unlock()

	tracked := s.registry.Has(roomID)
	var empty bool
	if peer == nil {
		empty = s.registry.Detach(roomID, playerID)
	} else {
		var detached bool
		if detached, empty = s.registry.DetachPeer(roomID, playerID, peer); !detached {
			s.logger.Debug().
				Str("room_id", roomID).
				Str("player_id", playerID).
				Msg("membership held by a newer connection, kept")
			return nil, nil
		}
	}

	room, err := s.repo.Get(ctx, roomID)
	if errors.Is(err, domain.ErrRoomNotFound) {
		if tracked && empty {
			s.closeLocal(ctx, roomID, "missing")
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if room.RemovePlayer(playerID) {
		s.metrics.Inc(metrics.PlayersLeft)
	}

	if len(room.Players) == 0 {
		if err := s.repo.Delete(ctx, roomID); err != nil {
			return nil, err
		}
		s.closeLocal(ctx, roomID, "empty")
		return nil, nil
	}

	if err := s.repo.Update(ctx, room); err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			return nil, nil
		}
		return nil, err
	}

	s.logger.Info().
		Str("room_id", roomID).
		Str("player_id", playerID).
		Str("host_id", room.HostID).
		Msg("player left room")
	return room, nil
}

func (s *RoomService) GetRoomState(ctx context.Context, roomID string) (*domain.Room, error) {
	return s.repo.Get(ctx, roomID)
}

// UpdateRoomState replaces the state field. Writers from other processes are
// not coordinated: the last write wins.
func (s *RoomService) UpdateRoomState(ctx context.Context, roomID string, state domain.RoomState) (*domain.Room, error) {
	if !state.Valid() {
		return nil, domain.ErrBadRequest
	}

	unlock := s.locks.lock(roomID)
	defer unlock()

	room, err := s.repo.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	room.State = state
	if err := s.repo.Update(ctx, room); err != nil {
		return nil, err
	}

	s.logger.Debug().Str("room_id", roomID).Str("state", string(state)).Msg("room state updated")
	return room, nil
}

// DeleteRoom removes a room from both stores regardless of its members.
func (s *RoomService) DeleteRoom(ctx context.Context, roomID string) error {
	unlock := s.locks.lock(roomID)
	defer unlock()

	if err := s.repo.Delete(ctx, roomID); err != nil {
		return err
	}
	s.closeLocal(ctx, roomID, "deleted")
	return nil
}

func (s *RoomService) Peers(roomID, exclude string) []string {
	return s.registry.Peers(roomID, exclude)
}

func (s *RoomService) Connection(roomID, playerID string) (Peer, bool) {
	return s.registry.Connection(roomID, playerID)
}

// Sweep drops locally tracked rooms whose durable record is gone or older
// than the room timeout. It returns the number of rooms closed.
func (s *RoomService) Sweep(ctx context.Context) int {
	roomIDs := s.registry.Rooms()
	if len(roomIDs) == 0 {
		return 0
	}

	var (
		mu     sync.Mutex
		closed int
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(constants.SweepParallelism)

	for _, roomID := range roomIDs {
		roomID := roomID
		g.Go(func() error {
			reason, err := s.sweepOne(gCtx, roomID)
			if err != nil {
				s.logger.Warn().Err(err).Str("room_id", roomID).Msg("failed to sweep room")
				return nil
			}
			if reason != "" {
				mu.Lock()
				closed++
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	s.logger.Debug().Int("tracked", len(roomIDs)).Int("closed", closed).Msg("room sweep finished")
	return closed
}

func (s *RoomService) sweepOne(ctx context.Context, roomID string) (string, error) {
	unlock := s.locks.lock(roomID)
	defer unlock()

	room, err := s.repo.Get(ctx, roomID)
	if errors.Is(err, domain.ErrRoomNotFound) {
		s.closeLocal(ctx, roomID, "missing")
		return "missing", nil
	}
	if err != nil {
		return "", err
	}

	if s.now().Sub(room.CreatedAt) > s.timeout {
		if err := s.repo.Delete(ctx, roomID); err != nil {
			return "", err
		}
		s.closeLocal(ctx, roomID, "expired")
		return "expired", nil
	}
	return "", nil
}

func (s *RoomService) closeLocal(ctx context.Context, roomID, reason string) {
	s.registry.Remove(roomID)

	s.metrics.Inc(metrics.RoomsClosed)
	s.events.Publish(ctx, events.Event{
		Type:   events.RoomClosed,
		RoomID: roomID,
		Data:   map[string]any{"reason": reason},
	})

	s.closeMu.RLock()
	hooks := s.onClose
	s.closeMu.RUnlock()
	for _, fn := range hooks {
		fn(roomID)
	}

	s.logger.Info().Str("room_id", roomID).Str("reason", reason).Msg("room closed")
}

// roomLocks serializes read-modify-write cycles per room within the process.
type roomLocks struct {
	mu    sync.Mutex
	locks map[string]*roomLock
}

type roomLock struct {
	sync.Mutex
	refs int
}

func (l *roomLocks) lock(roomID string) func() {
	l.mu.Lock()
	rl, ok := l.locks[roomID]
	if !ok {
		rl = &roomLock{}
		l.locks[roomID] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.Lock()
	return func() {
		rl.Unlock()

		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, roomID)
		}
		l.mu.Unlock()
	}
}
