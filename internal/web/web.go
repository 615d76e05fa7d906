package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"apptline/internal/board"
	"apptline/internal/config"
	appLog "apptline/internal/log"
	"apptline/internal/model"
	"apptline/internal/push"
	"apptline/internal/timeline"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Server exposes the boards over HTTP: JSON API, WebSocket stream, HTML
// preview and Prometheus metrics.
type Server struct {
	cfg     *config.Config
	boards  *board.Registry
	hub     *push.Hub
	metrics http.Handler
	mux     *http.ServeMux
}

// NewServer constructs a Server. metrics may be nil, in which case
// /metrics is not served.
func NewServer(cfg *config.Config, boards *board.Registry, hub *push.Hub, metrics http.Handler) *Server {
	s := &Server{
		cfg:     cfg,
		boards:  boards,
		hub:     hub,
		metrics: metrics,
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler, wrapped in basic auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Run serves on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="apptline", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics)
	}
	s.mux.HandleFunc("GET /api/resources", s.handleResources)
	s.mux.HandleFunc("GET /api/layout", s.handleLayout)
	s.mux.HandleFunc("POST /api/updates", s.handleUpdate)
	s.mux.HandleFunc("POST /api/interaction", s.handleInteraction)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("GET /ws", s.handleWS)
	s.mux.HandleFunc("GET /timeline", s.handleTimeline)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type resourceDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SpanHours int    `json:"span_hours"`
	Timezone  string `json:"timezone"`
	Version   uint64 `json:"version"`
}

func (s *Server) handleResources(w http.ResponseWriter, _ *http.Request) {
	boards := s.boards.Boards()
	out := make([]resourceDTO, 0, len(boards))
	for _, b := range boards {
		out = append(out, resourceDTO{
			ID:        b.ID(),
			Name:      b.Name(),
			SpanHours: b.SpanHours(),
			Timezone:  b.Location().String(),
			Version:   b.Snapshot().Version,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	b, ok := s.lookupBoard(w, r.URL.Query().Get("resource"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, b.Snapshot())
}

type updateRequest struct {
	Resource string `json:"resource"`
	model.UpdateMessage
}

// handleUpdate validates a live change and publishes it on the resource's
// topic. When nothing subscribes to the topic the change is applied to the
// board directly.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, ok := s.lookupBoard(w, req.Resource)
	if !ok {
		return
	}
	if _, err := timeline.EventFromMessage(req.UpdateMessage, b.Location()); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.hub.Publish(b.ID(), req.UpdateMessage) == 0 {
		if _, err := s.boards.Apply(b.ID(), req.UpdateMessage); err != nil {
			writeBoardError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, b.Snapshot())
}

type interactionRequest struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
	ID       string `json:"id"`
}

func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	var req interactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, ok := s.lookupBoard(w, req.Resource)
	if !ok {
		return
	}

	var snap board.Snapshot
	switch req.Action {
	case "hover":
		snap = b.Hover(req.ID)
	case "unhover":
		snap = b.Unhover(req.ID)
	case "select":
		snap = b.Select(req.ID)
	case "clear":
		snap = b.ClearSelection()
	default:
		writeError(w, http.StatusBadRequest, "unknown action "+req.Action)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("resource")
	if id == "" {
		if err := s.boards.RefreshAll(r.Context()); err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"refreshed": len(s.boards.Boards())})
		return
	}

	snap, err := s.boards.Refresh(r.Context(), id)
	if err != nil {
		writeBoardError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleWS streams layout snapshots. Without a resource parameter the
// client is subscribed to every board and greeted with none.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	var (
		topics   []string
		greeting []byte
	)
	if id := r.URL.Query().Get("resource"); id != "" {
		b, ok := s.lookupBoard(w, id)
		if !ok {
			return
		}
		topics = []string{b.ID()}
		data, err := json.Marshal(b.Snapshot())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "encode snapshot")
			return
		}
		greeting, err = json.Marshal(push.Event{
			Type:      push.EventLayout,
			Topic:     b.ID(),
			Timestamp: time.Now().UTC(),
			Data:      data,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "encode snapshot")
			return
		}
	} else {
		for _, b := range s.boards.Boards() {
			topics = append(topics, b.ID())
		}
	}

	if err := s.hub.ServeWS(w, r, topics, greeting); err != nil {
		appLog.Warn("websocket upgrade failed", "err", err, "remote", r.RemoteAddr)
	}
}

// handlePreview serves the last captured PNG snapshot from disk.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, s.cfg.Snapshot.Path)
}

// lookupBoard resolves a resource ID, defaulting to the first board when id
// is empty. It writes the error response itself.
func (s *Server) lookupBoard(w http.ResponseWriter, id string) (*board.Board, bool) {
	if id == "" {
		boards := s.boards.Boards()
		if len(boards) == 0 {
			writeError(w, http.StatusNotFound, "no resources configured")
			return nil, false
		}
		return boards[0], true
	}
	b, err := s.boards.Get(id)
	if err != nil {
		writeBoardError(w, err)
		return nil, false
	}
	return b, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeBoardError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, board.ErrUnknownResource):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, timeline.ErrInvalidSpan):
		appLog.Error("layout failed", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	case errors.Is(err, timeline.ErrInvalidTimestamp),
		errors.Is(err, timeline.ErrMissingID),
		errors.Is(err, timeline.ErrUnknownUpdateKind):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		appLog.Error("request failed", err)
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
