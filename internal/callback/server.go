// Package callback implements the broker's single HTTP callback endpoint:
// on_connect, on_publish, and on_unpublish notifications from the RTMP
// broker, translated into state store mutations.
package callback

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/restreamctl/restreamer/internal/state"
)

// Request is the broker's callback payload.
type Request struct {
	Action   string `json:"action"`
	App      string `json:"app"`
	Stream   string `json:"stream,omitempty"`
	ClientID int64  `json:"client_id"`
	IP       string `json:"ip"`
}

const (
	actionConnect   = "on_connect"
	actionPublish   = "on_publish"
	actionUnpublish = "on_unpublish"
)

// ServerConfig configures a Server.
type ServerConfig struct {
	Store *state.Store
	Log   *slog.Logger
}

// Server is the broker callback HTTP handler.
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
	s.mux.HandleFunc("/", s.handleCallback)
	s.mux.HandleFunc("/health", s.handleHealth)
	return s
}

// Handler returns the server's http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ip := req.IP
	if ip == "" {
		ip = remoteIP(r)
	}

	var err error
	switch req.Action {
	case actionConnect:
		err = s.store.OnConnect(req.App)
	case actionPublish:
		err = s.store.OnPublish(req.App, req.Stream, strconv.FormatInt(req.ClientID, 10), ip)
	case actionUnpublish:
		err = s.store.OnUnpublish(req.App)
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}

	if err != nil {
		s.writeError(w, req, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("0"))
}

func (s *Server) writeError(w http.ResponseWriter, req Request, err error) {
	switch {
	case errors.Is(err, state.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, state.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, state.ErrClosed):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		s.log.Error("callback handler error", "action", req.Action, "app", req.App, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
