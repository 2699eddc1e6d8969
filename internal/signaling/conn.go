package signaling

import (
	"errors"
	"ht2peer/internal/constants"
	"ht2peer/internal/metrics"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var (
	ErrConnClosed     = errors.New("connection closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// Conn is one client socket. Writes go through a buffered queue drained by
// the write pump, so Send never blocks.
type Conn struct {
	playerID string
	ws       *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

func NewConn(playerID string, ws *websocket.Conn, m *metrics.Metrics, logger zerolog.Logger) *Conn {
	return newConn(playerID, ws, constants.SendBufferSize, m, logger)
}

func newConn(playerID string, ws *websocket.Conn, buffer int, m *metrics.Metrics, logger zerolog.Logger) *Conn {
	return &Conn{
		playerID: playerID,
		ws:       ws,
		send:     make(chan []byte, buffer),
		done:     make(chan struct{}),
		metrics:  m,
		logger:   logger.With().Str("player_id", playerID).Logger(),
	}
}

func (c *Conn) PlayerID() string { return c.playerID }

// Send queues data for the peer. A full queue drops the message.
func (c *Conn) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		c.metrics.Inc(metrics.MessagesDropped)
		c.logger.Warn().Int("bytes", len(data)).Msg("send buffer full, message dropped")
		return ErrSendBufferFull
	}
}

// Close stops the pumps. It is safe to call more than once.
func (c *Conn) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Start runs the pumps. onMessage is called from the read pump for every
// frame in order; onClose runs once after the read pump stops.
func (c *Conn) Start(onMessage func(data []byte), onClose func()) {
	go c.writePump()
	go c.readPump(onMessage, onClose)
}

func (c *Conn) readPump(onMessage func(data []byte), onClose func()) {
	defer func() {
		c.Close()
		onClose()
	}()

	c.ws.SetReadLimit(constants.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(constants.PongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(constants.PongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Warn().Err(err).Msg("read error")
			}
			return
		}
		onMessage(data)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(constants.PingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(constants.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(constants.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(constants.WriteWait))
			c.flush()
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever is still queued, best effort.
func (c *Conn) flush() {
	for {
		select {
		case message := <-c.send:
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}
