package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/wintracker/internal/logger"
	"github.com/bryanchriswhite/wintracker/internal/tracker"
	"github.com/bryanchriswhite/wintracker/internal/window"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Server represents the HTTP API server
type Server struct {
	router   *mux.Router
	tracker  *tracker.Tracker
	upgrader websocket.Upgrader
	log      *zerolog.Logger
	started  time.Time

	httpServer *http.Server
}

// NewServer creates a new API server over a running tracker.
func NewServer(t *tracker.Tracker) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		tracker: t,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for development
			},
		},
		log:     logger.WithComponent("api"),
		started: time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/windows", s.handleGetWindows).Methods("GET")
	api.HandleFunc("/windows/stream", s.handleWindowStream)
	api.HandleFunc("/windows/{handle}", s.handleGetWindow).Methods("GET")

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves on port until Shutdown is called.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info().Str("addr", addr).Msg("Starting server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops a server started with Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// HTTP Handlers

func (s *Server) handleGetWindows(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, NewWindowList(s.tracker.Snapshot()))
}

func (s *Server) handleGetWindow(w http.ResponseWriter, r *http.Request) {
	h, err := ParseHandle(mux.Vars(r)["handle"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entry, ok := s.tracker.Snapshot().Lookup(h)
	if !ok {
		http.Error(w, fmt.Sprintf("window %s is not tracked", h), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, NewWindow(entry))
}

func (s *Server) handleWindowStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	updates := s.tracker.Subscribe()
	defer s.tracker.Unsubscribe(updates)

	// The client never sends anything we use; reading detects its close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	last := s.tracker.Snapshot()
	if err := conn.WriteJSON(NewWindowList(last)); err != nil {
		s.log.Debug().Err(err).Msg("WebSocket write error")
		return
	}

	for {
		select {
		case <-gone:
			return
		case _, ok := <-updates:
			if !ok {
				// Tracker stopped.
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "tracker stopped"))
				return
			}
			snap := s.tracker.Snapshot()
			if snap.SameWindows(last) {
				continue
			}
			last = snap
			if err := conn.WriteJSON(NewWindowList(snap)); err != nil {
				s.log.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	select {
	case <-s.tracker.Done():
		status = "stopped"
	default:
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   status,
		"version":  Version,
		"platform": s.tracker.Platform(),
		"windows":  s.tracker.Len(),
		"uptime":   time.Since(s.started).Round(time.Second).String(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// ParseHandle accepts a handle in hex ("0x1A") or decimal form.
func ParseHandle(s string) (window.Handle, error) {
	n, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid window handle %q", s)
	}
	h := window.Handle(n)
	if !h.Valid() {
		return 0, fmt.Errorf("invalid window handle %q", s)
	}
	return h, nil
}
