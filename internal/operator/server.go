// Package operator implements the operator-facing HTTP API surface this
// repository carries: an always-open health check and a read-only state
// snapshot gated by the shared password when one is configured. The full GraphQL management
// surface the original system exposes here is out of scope; what remains is
// the authentication primitive and the read path that would back it.
package operator

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/restreamctl/restreamer/internal/auth"
	"github.com/restreamctl/restreamer/internal/state"
)

// ServerConfig configures a Server.
type ServerConfig struct {
	Store *state.Store
	Log   *slog.Logger
	// Debug enables the unauthenticated /playground stub, mirroring the
	// original system's debug-gated GraphQL explorer.
	Debug bool
}

// Server is the operator-facing HTTP API.
type Server struct {
	store *state.Store
	log   *slog.Logger
	mux   *http.ServeMux
}

// NewServer builds a Server from cfg.
func NewServer(cfg ServerConfig) *Server {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	s := &Server{store: cfg.Store, log: log, mux: http.NewServeMux()}
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/api/snapshot", s.withAuth(http.HandlerFunc(s.handleSnapshot)))
	if cfg.Debug {
		s.mux.HandleFunc("/playground", s.handlePlayground)
	}
	return s
}

// Handler returns the server's http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handlePlayground(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("debug explorer disabled in this build\n"))
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.store.Snapshot()); err != nil {
		s.log.Error("encoding snapshot", "error", err)
	}
}

// withAuth enforces HTTP Basic auth against the store's password hash. A
// store with no password hash set leaves the API open, matching the
// original system's unauthenticated-until-configured default.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hash := s.store.Snapshot().PasswordHash
		if hash == nil {
			next.ServeHTTP(w, r)
			return
		}
		_, pass, ok := r.BasicAuth()
		if !ok || !auth.Verify(*hash, pass) {
			w.Header().Set("WWW-Authenticate", `Basic realm="restreamer"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
