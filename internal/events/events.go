package events

import (
	"context"
	"encoding/json"
	"fmt"
	"ht2peer/internal/config"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

const subjectPrefix = "ht2peer."

const (
	RoomCreated    = "room.created"
	RoomClosed     = "room.closed"
	MatchCreated   = "match.created"
	MatchActivated = "match.activated"
	MatchCompleted = "match.completed"
	CheatDetected  = "cheat.detected"
)

type Event struct {
	Type      string         `json:"type"`
	RoomID    string         `json:"room_id,omitempty"`
	MatchID   string         `json:"match_id,omitempty"`
	PlayerID  string         `json:"player_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Publisher is fire-and-forget: failures are logged by the implementation and
// never surface to the caller.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

type NATSPublisher struct {
	conn   *nats.Conn
	logger zerolog.Logger
}

func NewNATSPublisher(url string, logger zerolog.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("ht2peer"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return &NATSPublisher{
		conn:   conn,
		logger: logger.With().Str("component", "events").Logger(),
	}, nil
}

func Subject(eventType string) string {
	return subjectPrefix + eventType
}

func (p *NATSPublisher) Publish(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn().Err(err).Str("type", event.Type).Msg("failed to encode event")
		return
	}
	if err := p.conn.Publish(Subject(event.Type), data); err != nil {
		p.logger.Warn().Err(err).Str("type", event.Type).Msg("failed to publish event")
	}
}

func (p *NATSPublisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return err
	}
	return nil
}

// New returns a NATS publisher when NATS_URL is set, otherwise Nop.
func New(lc fx.Lifecycle, cfg *config.Config, logger zerolog.Logger) (Publisher, error) {
	if cfg.NATSURL == "" {
		logger.Info().Msg("NATS_URL not set, domain events disabled")
		return Nop{}, nil
	}

	pub, err := NewNATSPublisher(cfg.NATSURL, logger)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("url", cfg.NATSURL).Msg("publishing domain events to nats")

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return pub.Close()
		},
	})
	return pub, nil
}
