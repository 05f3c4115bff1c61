// Package server streams a meeting to spectators over WebSocket and serves
// its statistics as JSON.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/horserace/internal/meeting"
)

// Server represents the spectator server
type Server struct {
	addr        string
	upgrader    websocket.Upgrader
	connections map[*Connection]bool
	unregister  chan *Connection
	logger      *log.Logger
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	meeting     *meeting.Meeting
	httpServer  *http.Server
	startOnce   sync.Once
}

// NewServer creates a spectator server for a meeting
func NewServer(addr string, m *meeting.Meeting, logger *log.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[*Connection]bool),
		unregister:  make(chan *Connection),
		logger:      logger.WithPrefix("server"),
		ctx:         ctx,
		cancel:      cancel,
		meeting:     m,
	}
}

// Handler returns the HTTP routes and starts following the meeting
func (s *Server) Handler() http.Handler {
	s.startOnce.Do(func() {
		s.meeting.Events().Subscribe(s)
		go s.run()
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/snapshot", s.handleSnapshot)
	return mux
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	handler := s.Handler()

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return nil
	}
	s.httpServer = &http.Server{Addr: s.addr, Handler: handler}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("Starting spectator server", "addr", s.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and closes every spectator
func (s *Server) Shutdown(ctx context.Context) error {
	s.meeting.Events().Unsubscribe(s)
	s.cancel()

	s.mu.Lock()
	for conn := range s.connections {
		_ = conn.Close()
	}
	srv := s.httpServer
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// run removes closed connections
func (s *Server) run() {
	for {
		select {
		case conn := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.connections[conn]; ok {
				delete(s.connections, conn)
				_ = conn.Close()
			}
			total := len(s.connections)
			s.mu.Unlock()
			s.logger.Info("Spectator disconnected", "total", total)

		case <-s.ctx.Done():
			return
		}
	}
}

// handleWebSocket upgrades a spectator and sends the current snapshot
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := NewConnection(conn, s.logger, s)
	s.mu.Lock()
	s.connections[client] = true
	total := len(s.connections)
	s.mu.Unlock()
	s.logger.Info("Spectator connected", "total", total)

	client.Start()
	client.sendData(MessageTypeSnapshot, s.meeting.Snapshot())

	go func() {
		<-client.Done()
		select {
		case s.unregister <- client:
		case <-s.ctx.Done():
		}
	}()
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK")
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.Stats())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.meeting.Snapshot())
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

// OnEvent implements meeting.EventSubscriber
func (s *Server) OnEvent(event meeting.Event) {
	msg, err := MessageFromEvent(event)
	if err != nil {
		s.logger.Error("Failed to encode event", "type", event.EventType(), "error", err)
		return
	}
	if msg != nil {
		s.Broadcast(msg)
	}
}

// Broadcast sends a message to every spectator
func (s *Server) Broadcast(msg *Message) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for conn := range s.connections {
		if err := conn.SendMessage(msg); err == nil {
			count++
		}
	}
	s.logger.Debug("Broadcast", "type", msg.Type, "recipients", count)
}

// ConnectionCount returns the number of connected spectators
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

// Stats summarises the meeting and every horse currently on the card. Horse
// state comes from a snapshot so a settling race is never read mid-write.
func (s *Server) Stats() StatsData {
	m := s.meeting
	tracker := m.Tracker()
	snap := m.Snapshot()

	data := StatsData{
		Races:   m.Races(),
		Balance: m.Balance().StringFixed(2),
		Weather: m.Weather(),
		Horses:  []HorseStats{},
	}
	for _, lane := range snap.Occupied() {
		id := lane.EntrantID
		hs := HorseStats{
			Lane:         lane.Lane,
			Symbol:       lane.Symbol,
			Name:         lane.Name,
			Races:        tracker.Races(id),
			Wins:         lane.RacesWon,
			WinRatio:     tracker.WinRatio(id),
			AverageSpeed: tracker.AverageSpeed(id),
			Confidence:   lane.Confidence,
		}
		if best, ok := tracker.BestTime(id, ""); ok {
			hs.BestTime = best
		}
		data.Horses = append(data.Horses, hs)
	}
	return data
}
