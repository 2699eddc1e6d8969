package metrics

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/fx"
)

const (
	ConnectionsOpened = "connections_opened"
	ConnectionsClosed = "connections_closed"
	RoomsCreated      = "rooms_created"
	RoomsClosed       = "rooms_closed"
	PlayersJoined     = "players_joined"
	PlayersLeft       = "players_left"
	QueueJoined       = "queue_joined"
	QueueLeft         = "queue_left"
	MatchesCreated    = "matches_created"
	MatchesCompleted  = "matches_completed"
	InvalidState      = "invalid_state"
	CheatDetected     = "cheat_detected"
	MessagesDropped   = "messages_dropped"
	Errors            = "errors"
)

// UnknownMessage is the message label for frames that did not decode or
// carried a type no handler accepts.
const UnknownMessage = "unknown"

const namespace = "ht2peer"

// Metrics holds the process counters on a private prometheus registry.
// All methods are safe for concurrent use and never fail.
type Metrics struct {
	registry *prometheus.Registry
	events   *prometheus.CounterVec
	messages *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Room, queue, match and connection events.",
		}, []string{"event"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound signaling messages by envelope type.",
		}, []string{"type"}),
	}
	m.registry.MustRegister(
		m.events,
		m.messages,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

// Add ignores negative deltas.
func (m *Metrics) Add(name string, delta int64) {
	if delta < 0 {
		return
	}
	m.events.WithLabelValues(name).Add(float64(delta))
}

// Message counts one inbound signaling message. Callers pass a known
// envelope type or UnknownMessage so the label set stays bounded.
func (m *Metrics) Message(msgType string) {
	m.messages.WithLabelValues(msgType).Inc()
}

func (m *Metrics) Get(name string) int64 {
	var pb dto.Metric
	if err := m.events.WithLabelValues(name).Write(&pb); err != nil {
		return 0
	}
	return int64(pb.GetCounter().GetValue())
}

type Snapshot struct {
	Counters map[string]int64 `json:"counters"`
	Messages map[string]int64 `json:"messages"`
}

func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		Counters: make(map[string]int64),
		Messages: make(map[string]int64),
	}

	families, err := m.registry.Gather()
	if err != nil {
		return s
	}
	for _, family := range families {
		var (
			into  map[string]int64
			label string
		)
		switch family.GetName() {
		case namespace + "_events_total":
			into, label = s.Counters, "event"
		case namespace + "_messages_total":
			into, label = s.Messages, "type"
		default:
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if pair.GetName() == label {
					into[pair.GetValue()] = int64(metric.GetCounter().GetValue())
				}
			}
		}
	}
	return s
}

// Handler serves the prometheus text format, or the JSON snapshot when the
// request asks for application/json.
func (m *Metrics) Handler() http.Handler {
	prom := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept"), "application/json") {
			prom.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.Snapshot())
	})
}

var Module = fx.Provide(New)
