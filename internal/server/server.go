package server

import (
	"bufio"
	"database/sql"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Server wraps HTTP handlers, storage and configuration.
type Server struct {
	cfg             Config
	logger          *slog.Logger
	db              *sql.DB
	router          *mux.Router
	hub             *Hub
	upgrader        websocket.Upgrader
	allowedOrigins  []string
	allowAllOrigins bool
}

// New constructs a Server with storage, routes and middleware configured.
func New(cfg Config) (*Server, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))

	db, err := openDatabase(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	srv := &Server{
		cfg:            cfg,
		logger:         logger,
		db:             db,
		allowedOrigins: cfg.AllowedOrigins,
		hub:            newHub(logger),
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			srv.allowAllOrigins = true
		}
	}
	srv.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || srv.matchOrigin(origin) != ""
		},
	}

	srv.routes()
	return srv, nil
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	addr := ":" + s.cfg.Port
	s.logger.Info("starting server", slog.String("addr", addr))
	handler := s.withCORS(s.loggingMiddleware(s.router))
	return http.ListenAndServe(addr, handler)
}

// Router exposes the configured routes, wrapped in middleware. Used by
// tests and by Run.
func (s *Server) Router() http.Handler {
	return s.withCORS(s.loggingMiddleware(s.router))
}

func (s *Server) routes() {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	// anonymous combat-session routes, gated by session tokens
	r.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{code}", s.handleJoinSession).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", s.handleUpdateSession).Methods(http.MethodPatch)
	r.HandleFunc("/sessions/{id}/end", s.handleEndSession).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/advance", s.handleAdvanceTurn).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/reset-actions", s.handleResetActions).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/combatants", s.handleListCombatants).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}/combatants", s.handleAddCombatant).Methods(http.MethodPost)
	r.HandleFunc("/combatants/{id}", s.handleRemoveCombatant).Methods(http.MethodDelete)
	r.HandleFunc("/combatants/{id}/actions", s.handleUpdateActions).Methods(http.MethodPatch)
	r.HandleFunc("/combatants/{id}/claim", s.handleClaimCombatant).Methods(http.MethodPost)
	r.HandleFunc("/combatants/{id}/custom-actions/{actionID}/spend", s.handleSpendCustomAction).Methods(http.MethodPost)
	r.HandleFunc("/ws/sessions/{id}", s.handleSessionStream).Methods(http.MethodGet)

	// account routes
	r.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/campaigns", s.requireAccount(s.handleListCampaigns)).Methods(http.MethodGet)
	r.HandleFunc("/campaigns", s.requireAccount(s.handleCreateCampaign)).Methods(http.MethodPost)
	r.HandleFunc("/campaigns/{id}", s.requireAccount(s.handleGetCampaign)).Methods(http.MethodGet)
	r.HandleFunc("/campaigns/{id}", s.requireAccount(s.handleUpdateCampaign)).Methods(http.MethodPatch)
	r.HandleFunc("/campaigns/{id}", s.requireAccount(s.handleDeleteCampaign)).Methods(http.MethodDelete)
	r.HandleFunc("/campaigns/{id}/stats", s.requireAccount(s.handleCampaignStats)).Methods(http.MethodGet)
	r.HandleFunc("/campaigns/{id}/players", s.requireAccount(s.handleListCampaignPlayers)).Methods(http.MethodGet)
	r.HandleFunc("/campaigns/{id}/players", s.requireAccount(s.handleAddCampaignPlayer)).Methods(http.MethodPost)
	r.HandleFunc("/players/{id}", s.requireAccount(s.handleUpdateCampaignPlayer)).Methods(http.MethodPatch)
	r.HandleFunc("/players/{id}", s.requireAccount(s.handleRemoveCampaignPlayer)).Methods(http.MethodDelete)

	// monster reference data; reads are public, writes are account-scoped
	r.HandleFunc("/monsters", s.handleListMonsters).Methods(http.MethodGet)
	r.HandleFunc("/monsters/options", s.handleMonsterOptions).Methods(http.MethodGet)
	r.HandleFunc("/monsters", s.requireAccount(s.handleCreateMonster)).Methods(http.MethodPost)
	r.HandleFunc("/monsters/{id}", s.handleGetMonster).Methods(http.MethodGet)
	r.HandleFunc("/monsters/{id}", s.requireAccount(s.handleUpdateMonster)).Methods(http.MethodPatch)
	r.HandleFunc("/monsters/{id}", s.requireAccount(s.handleDeleteMonster)).Methods(http.MethodDelete)

	s.router = r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		s.logger.Info("request", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.Int("status", rw.status), slog.Duration("duration", time.Since(start)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

// Hijack allows the WebSocket upgrade to pass through the wrapped writer.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijack not supported")
}
