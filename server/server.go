package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	cfg "github.com/vidhhya1/Conversational-Emotion-Recognizer/config"
	"github.com/vidhhya1/Conversational-Emotion-Recognizer/metrics"
	"github.com/vidhhya1/Conversational-Emotion-Recognizer/orchestrator"
)

type Server struct {
	cfg      cfg.Server
	session  orchestrator.SessionConfig
	pipeline *orchestrator.Pipeline
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
	mux      *http.ServeMux
	upgrader websocket.Upgrader

	mu       sync.Mutex
	draining bool
	sessions sync.WaitGroup
}

// New wires the routes. m may be nil, in which case /metrics is not served
// and sessions are not observed.
func New(conf *cfg.Root, p *orchestrator.Pipeline, log logrus.FieldLogger, m *metrics.Metrics) *Server {
	s := &Server{
		cfg: conf.Server,
		session: orchestrator.SessionConfig{
			WriteTimeout:        conf.Server.WriteTimeout,
			PingInterval:        conf.Server.PingInterval,
			ReadTimeout:         conf.Server.ReadTimeout,
			MaxQueuedUtterances: conf.Session.MaxQueuedUtterances,
		},
		pipeline: p,
		log:      log,
		metrics:  m,
		mux:      http.NewServeMux(),
	}
	s.upgrader = websocket.Upgrader{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		CheckOrigin:      s.originAllowed,
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET "+s.cfg.WSPath, s.handleConversation)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

// Run serves until ctx is done, then stops accepting connections and waits
// for open sessions to wind down.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.WithFields(logrus.Fields{
		"addr":    ln.Addr().String(),
		"ws_path": s.cfg.WSPath,
	}).Info("server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("server shutting down")
	s.drain()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.sessions.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	return err
}

// drain refuses new sessions. Once it returns no further sessions.Add can
// happen, so waiting on the group is safe.
func (s *Server) drain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draining = true
}

func (s *Server) admit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		return false
	}
	s.sessions.Add(1)
	return true
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	if !s.admit() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.sessions.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()
	if s.cfg.ReadLimitBytes > 0 {
		conn.SetReadLimit(s.cfg.ReadLimitBytes)
	}

	var obs orchestrator.Observer
	if s.metrics != nil {
		obs = s.metrics
	}
	id := uuid.NewString()
	log := s.log.WithField("remote", r.RemoteAddr)
	_ = orchestrator.NewSession(id, conn, s.pipeline, s.session, log, obs).Run(r.Context())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// originAllowed accepts everything when no origins are configured. Requests
// without an Origin header are not from a browser and are let through.
func (s *Server) originAllowed(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, u.Host) {
			return true
		}
	}
	return false
}
