// Package webui serves a small diagnostics surface: a WebSocket that
// pushes periodic position/state snapshots to any connected viewer, the
// same upgrade-then-push-loop shape as livekit-client-2's bridge WebSocket
// handler, generalized from per-user audio bridging to a broadcast of
// one shared snapshot.
package webui

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Snapshot is what gets pushed to every connected viewer.
type Snapshot struct {
	PipelineState   string  `json:"pipeline_state"`
	PositionSeconds float64 `json:"position_seconds"`
	Connected       bool    `json:"connected"`
}

// Source supplies the current Snapshot; internal/coordinator implements it.
type Source interface {
	Snapshot() Snapshot
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server pushes Source snapshots to every connected /status/ws client on
// a fixed interval.
type Server struct {
	source   Source
	interval time.Duration

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// New builds a Server. Call Handler to obtain the http.Handler to mount
// at /status/ws, and Run (in its own goroutine) to start the push loop.
func New(source Source, interval time.Duration) *Server {
	if interval <= 0 {
		interval = time.Second
	}
	return &Server{
		source:   source,
		interval: interval,
		clients:  make(map[*websocket.Conn]struct{}),
	}
}

// Handler upgrades and registers a viewer connection.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("webui: upgrade failed: %v", err)
			return
		}
		if tcpConn, ok := conn.UnderlyingConn().(*net.TCPConn); ok {
			_ = tcpConn.SetNoDelay(true)
		}

		s.mu.Lock()
		s.clients[conn] = struct{}{}
		s.mu.Unlock()

		go s.readUntilClosed(conn)
	})
}

// readUntilClosed drains and discards inbound frames so pong control
// frames are processed, and deregisters the client once the connection
// drops.
func (s *Server) readUntilClosed(conn *websocket.Conn) {
	defer s.remove(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) remove(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
}

// Run pushes a Snapshot to every connected client every interval, until
// ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return
		case <-ticker.C:
			s.broadcast(s.source.Snapshot())
		}
	}
}

func (s *Server) broadcast(snap Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}

	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			s.remove(c)
		}
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.clients = make(map[*websocket.Conn]struct{})
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
