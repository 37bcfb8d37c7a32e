package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/agentforge/internal/observability"
	"github.com/harun/agentforge/pkg/control"
	"github.com/harun/agentforge/pkg/events"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// Config holds server configuration
type Config struct {
	Host string
	// Port 0 picks a free port; see Addr.
	Port int
	// Token, when set, is required on every endpoint except /healthz.
	Token string
	// Approver receives decisions posted to /api/approvals/{step}.
	Approver     *control.DeferredApprover
	TickInterval time.Duration
	HistorySize  int
	Logger       zerolog.Logger
}

// Server is the dashboard HTTP server
type Server struct {
	cfg         Config
	server      *http.Server
	listener    net.Listener
	upgrader    websocket.Upgrader
	clients     *viewers
	broadcaster *EventBroadcaster
	approver    *control.DeferredApprover
	logger      zerolog.Logger

	shutdownMu     sync.RWMutex
	isShuttingDown bool
	tickCancel     context.CancelFunc
	tickWG         sync.WaitGroup
}

// NewServer creates a new dashboard server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	observability.EnsureRegistered()

	logger := cfg.Logger.With().Str("component", "dashboard").Logger()
	clients := newViewers()

	s := &Server{
		cfg:         cfg,
		clients:     clients,
		broadcaster: newEventBroadcaster(clients, cfg.HistorySize, logger),
		approver:    cfg.Approver,
		logger:      logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	if s.approver != nil {
		s.approver.OnRequest = func(p control.PendingApproval) {
			s.broadcaster.Broadcast("approval_pending", map[string]interface{}{
				"id":             p.ID,
				"step_id":        p.Request.StepID,
				"agent":          p.Request.AgentName,
				"output_preview": p.Request.Output,
			})
		}
	}

	return s, nil
}

// Subscriber returns the function to register with events.Tracer.Subscribe
func (s *Server) Subscriber() func(events.Event) {
	return s.broadcaster.Publish
}

// Broadcaster returns the event broadcaster
func (s *Server) Broadcaster() *EventBroadcaster {
	return s.broadcaster
}

// Handler returns the HTTP routes of the dashboard
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /ws", s.handleWebSocket)
	api.HandleFunc("GET /api/approvals", s.handleListApprovals)
	api.HandleFunc("POST /api/approvals/{step}", s.handleResolveApproval)
	api.HandleFunc("GET /api/events", s.handleEvents)
	api.HandleFunc("GET /api/clients", s.handleClients)
	api.Handle("GET /metrics", observability.MetricsHandler())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"clients": s.clients.len(),
		})
	})
	mux.Handle("/", requireToken(s.cfg.Token, api))
	return mux
}

// Start listens and serves in the background
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting dashboard")

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Dashboard server error")
		}
	}()

	s.startTickEmitter()
	return nil
}

// Addr returns the listening address once started
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes every client and shuts the server down
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down dashboard")
	s.stopTickEmitter()

	s.broadcaster.Broadcast("server_shutdown", map[string]interface{}{
		"message": "Dashboard is shutting down",
	})

	for _, client := range s.clients.snapshot() {
		client.Conn.Close()
	}

	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown dashboard: %w", err)
	}
	s.logger.Info().Msg("Dashboard stopped")
	return nil
}

func (s *Server) startTickEmitter() {
	if s.cfg.TickInterval <= 0 {
		return
	}

	tickCtx, cancel := context.WithCancel(context.Background())
	s.tickCancel = cancel
	s.tickWG.Add(1)

	go func() {
		defer s.tickWG.Done()

		ticker := time.NewTicker(s.cfg.TickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-tickCtx.Done():
				return
			case <-ticker.C:
				s.broadcaster.Broadcast("tick", map[string]interface{}{"status": "alive"})
			}
		}
	}()
}

func (s *Server) stopTickEmitter() {
	if s.tickCancel != nil {
		s.tickCancel()
		s.tickCancel = nil
	}
	s.tickWG.Wait()
}

// handleWebSocket streams events to the client until it disconnects.
// Clients are read-only; incoming frames only refresh activity.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.shutdownMu.RUnlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, err := gonanoid.New()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate client id")
		conn.Close()
		return
	}
	now := time.Now()
	client := &Client{
		ID:           clientID,
		Conn:         conn,
		ConnectedAt:  now,
		LastActivity: now,
		IPAddress:    r.RemoteAddr,
	}

	if err := client.WriteJSON(map[string]interface{}{"type": "hello", "client_id": clientID}); err != nil {
		conn.Close()
		return
	}
	if err := s.broadcaster.Attach(client); err != nil {
		s.logger.Warn().Err(err).Str("client_id", clientID).Msg("Failed to replay history")
		conn.Close()
		return
	}

	s.logger.Info().Str("client_id", clientID).Str("ip", r.RemoteAddr).Msg("Client connected")
	go s.readLoop(client)
}

func (s *Server) readLoop(client *Client) {
	defer func() {
		client.Conn.Close()
		s.clients.remove(client.ID)
		s.logger.Info().Str("client_id", client.ID).Msg("Client disconnected")
	}()

	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Error().Err(err).Str("client_id", client.ID).Msg("WebSocket error")
			}
			return
		}
		s.clients.touch(client.ID, time.Now())
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.broadcaster.History())
}

func (s *Server) handleClients(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.clients.infos(time.Now()))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
