// Package admin serves health, metrics and operator endpoints next to the
// websocket entry point.
package admin

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/gorilla/mux"

	"realmsync.io/internal/game"
	"realmsync.io/internal/protocol"
)

type Config struct {
	// EnableAdmin mounts /admin/v1.
	EnableAdmin bool
	// AllowRemote lets non-loopback clients reach /admin/v1.
	AllowRemote bool
	EnablePprof bool
	// WS is mounted at /v1/ws when set.
	WS http.Handler
}

type handler struct {
	g      *game.Game
	logger *log.Logger
}

func NewRouter(g *game.Game, cfg Config, logger *log.Logger) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	h := &handler{g: g, logger: logger}

	r := mux.NewRouter()
	r.Use(recovery(logger))
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.HandleFunc("/metrics", h.metrics).Methods(http.MethodGet)
	if cfg.WS != nil {
		r.Handle("/v1/ws", cfg.WS)
	}

	if cfg.EnableAdmin {
		api := r.PathPrefix("/admin/v1").Subrouter()
		if !cfg.AllowRemote {
			api.Use(loopbackOnly)
		}
		api.HandleFunc("/state", h.state).Methods(http.MethodGet)
		api.HandleFunc("/sessions", h.sessions).Methods(http.MethodGet)
		api.HandleFunc("/sessions/{player_id}/kick", h.kick).Methods(http.MethodPost)
		api.HandleFunc("/matchmaking", h.matchmaking).Methods(http.MethodGet)
	} else {
		logger.Printf("admin endpoints disabled")
	}

	if cfg.EnablePprof {
		dbg := r.PathPrefix("/debug/pprof").Subrouter()
		dbg.Use(loopbackOnly)
		dbg.HandleFunc("/cmdline", pprof.Cmdline)
		dbg.HandleFunc("/profile", pprof.Profile)
		dbg.HandleFunc("/symbol", pprof.Symbol)
		dbg.HandleFunc("/trace", pprof.Trace)
		dbg.PathPrefix("/").HandlerFunc(pprof.Index)
	}
	return r
}

func (h *handler) health(rw http.ResponseWriter, _ *http.Request) {
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write([]byte("ok"))
}

func (h *handler) metrics(rw http.ResponseWriter, _ *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
	h.g.WriteMetrics(rw)
}

func (h *handler) state(rw http.ResponseWriter, _ *http.Request) {
	writeJSON(rw, http.StatusOK, h.g.State())
}

func (h *handler) sessions(rw http.ResponseWriter, _ *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]any{"sessions": h.g.SessionInfos()})
}

type kickRequest struct {
	Reason string `json:"reason"`
}

func (h *handler) kick(rw http.ResponseWriter, r *http.Request) {
	playerID := mux.Vars(r)["player_id"]
	var req kickRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": "bad request body"})
			return
		}
	}
	if strings.TrimSpace(req.Reason) == "" {
		req.Reason = "kicked by operator"
	}
	if !h.g.Registry.Kick(r.Context(), playerID, protocol.ErrNoPermission, req.Reason) {
		writeJSON(rw, http.StatusNotFound, map[string]any{"ok": false, "error": "player not connected"})
		return
	}
	h.logger.Printf("kicked %s: %s", playerID, req.Reason)
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "player_id": playerID})
}

type queueStatus struct {
	QueueType string `json:"queue_type"`
	Required  int    `json:"required"`
	Depth     int    `json:"depth"`
}

func (h *handler) matchmaking(rw http.ResponseWriter, _ *http.Request) {
	st := h.g.Matchmaking.Stats()
	queues := make([]queueStatus, 0, len(st.Depth))
	for _, qt := range h.g.Tuning.QueueTypes() {
		queues = append(queues, queueStatus{QueueType: qt, Required: h.g.Tuning.Matchmaking.Queues[qt], Depth: st.Depth[qt]})
	}
	writeJSON(rw, http.StatusOK, map[string]any{
		"queues":         queues,
		"tickets":        st.Tickets,
		"matches_formed": st.Formed,
	})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func loopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(rw, r)
	})
}

func recovery(logger *log.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					logger.Printf("panic serving %s %s: %v", r.Method, r.URL.Path, p)
					http.Error(rw, "internal error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(rw, r)
		})
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
