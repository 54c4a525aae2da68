// Package socketio is a minimal Engine.IO v4 / Socket.IO v5 server over
// websockets. Viewers connect anonymously and receive every broadcast.
package socketio

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"fitsbook-server/internal/hub"
	"fitsbook-server/internal/metrics"
)

const (
	maxPayload   int64         = 1000000
	writeTimeout time.Duration = 10 * time.Second

	DefaultPingInterval = 25 * time.Second
	DefaultPingTimeout  = 20 * time.Second
)

type Deps struct {
	Hub     *hub.Hub
	Metrics *metrics.Metrics

	PingInterval time.Duration
	PingTimeout  time.Duration
}

type Server struct {
	hub     *hub.Hub
	metrics *metrics.Metrics
	log     *log.Entry

	pingInterval time.Duration
	pingTimeout  time.Duration

	upgrader websocket.Upgrader
}

func NewServer(deps Deps) *Server {
	h := deps.Hub
	if h == nil {
		h = hub.New()
	}
	s := &Server{
		hub:          h,
		metrics:      deps.Metrics,
		log:          log.WithField("component", "socketio"),
		pingInterval: deps.PingInterval,
		pingTimeout:  deps.PingTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	if s.pingInterval <= 0 {
		s.pingInterval = DefaultPingInterval
	}
	if s.pingTimeout <= 0 {
		s.pingTimeout = DefaultPingTimeout
	}
	return s
}

// Viewers returns the number of connected viewers.
func (s *Server) Viewers() int { return s.hub.Len(hub.Viewers) }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	ws.SetReadLimit(maxPayload)

	c := newConn(ws, s.pingInterval, s.pingTimeout)
	member := &hub.Connection{Room: hub.Viewers, Writer: c}
	defer s.disconnect(c, member)

	open, _ := json.Marshal(map[string]any{
		"sid":          c.sid,
		"upgrades":     []string{},
		"pingInterval": s.pingInterval.Milliseconds(),
		"pingTimeout":  s.pingTimeout.Milliseconds(),
		"maxPayload":   maxPayload,
	})
	if err := c.writeText(string(engineOpen) + string(open)); err != nil {
		return
	}

	go c.pingLoop()
	c.readLoop(func(msg string) {
		s.handleMessage(c, member, msg)
	})
}

func (s *Server) disconnect(c *conn, member *hub.Connection) {
	if c.connected.Swap(false) {
		s.hub.Unregister(member)
		if s.metrics != nil {
			s.metrics.Viewers.Dec()
		}
		s.log.WithField("sid", c.socketSID).Debug("viewer disconnected")
	}
	c.close()
}

func (s *Server) handleMessage(c *conn, member *hub.Connection, msg string) {
	if msg == "" {
		return
	}
	switch enginePacketType(msg[0]) {
	case enginePong:
		c.markPong()
	case enginePing:
		_ = c.writeText(string(enginePong) + msg[1:])
	case engineMessage:
		s.handleSocketPayload(c, member, msg[1:])
	case engineClose:
		c.close()
	}
}

func (s *Server) handleSocketPayload(c *conn, member *hub.Connection, payload string) {
	if payload == "" {
		return
	}
	switch socketPacketType(payload[0]) {
	case socketConnect:
		s.handleConnect(c, member, payload)
	case socketDisconnect:
		s.disconnect(c, member)
	case socketEvent:
		s.handleEvent(c, payload)
	}
}

// handleConnect accepts every viewer. Any auth payload is ignored.
func (s *Server) handleConnect(c *conn, member *hub.Connection, payload string) {
	if c.connected.Load() {
		return
	}
	ns, _ := parseOptionalNamespace(payload[1:])

	ack, err := buildConnectPacket(ns, c.socketSID)
	if err != nil {
		return
	}
	if err := c.writeText(string(frame(ack))); err != nil {
		return
	}

	c.connected.Store(true)
	s.hub.Register(member)
	if s.metrics != nil {
		s.metrics.Viewers.Inc()
	}
	s.log.WithField("sid", c.socketSID).Info("viewer connected")

	greeting, err := buildEventPacket(ns, "news", map[string]string{"hello": "world"})
	if err == nil {
		_ = c.writeText(string(frame(greeting)))
	}
}

func (s *Server) handleEvent(c *conn, payload string) {
	if !c.connected.Load() {
		return
	}
	pkt, err := parseEventPacket(payload)
	if err != nil {
		s.log.WithError(err).Debug("dropping malformed event")
		return
	}

	switch pkt.Event {
	case "ping":
		if pkt.ID == nil {
			return
		}
		ack, err := buildAckPacket(pkt.Namespace, *pkt.ID)
		if err == nil {
			_ = c.writeText(string(frame(ack)))
		}
	case "client-event":
		s.log.WithFields(log.Fields{"sid": c.socketSID, "args": rawArgs(pkt.Args)}).Info("client event")
	default:
		s.log.WithFields(log.Fields{"sid": c.socketSID, "event": pkt.Event}).Debug("ignoring event")
	}
}

func rawArgs(args []json.RawMessage) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = string(a)
	}
	return out
}

// Emit sends event to every connected viewer and returns the number of
// viewers it reached. Delivery is best effort.
func (s *Server) Emit(event string, args ...any) int {
	packet, err := buildEventPacket("/", event, args...)
	if err != nil {
		s.log.WithError(err).WithField("event", event).Error("encoding event")
		return 0
	}
	n := s.hub.Broadcast(hub.Viewers, frame(packet))
	if s.metrics != nil {
		s.metrics.SocketEvents.WithLabelValues(metrics.EventLabel(event)).Inc()
	}
	return n
}

func (s *Server) ModelCreated(id int64) {
	s.Emit("model-created", map[string]int64{"id": id})
}

func (s *Server) HistoryAppended(id int64, event json.RawMessage) {
	s.Emit(HistoryEvent(id), event)
}

func (s *Server) TrainingEnded(id int64, stopped bool) {
	s.Emit("training-ended", map[string]any{"id": id, "stopped": stopped})
}

// HistoryEvent names the per-model history channel.
func HistoryEvent(id int64) string {
	return fmt.Sprintf("history-%d", id)
}
