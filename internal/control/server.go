// Package control serves the local HTTP API used to inspect the display
// and trigger the lifecycle hooks.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net"
	"net/http"
	"time"

	"github.com/genricoloni/raspdac/internal/domain"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

const readHeaderTimeout = 5 * time.Second

// SnapshotSource reports what the display shows
type SnapshotSource interface {
	Snapshot(ctx context.Context) (domain.DisplaySnapshot, error)
}

type hookFunc func(ctx context.Context) error

// NewRouter builds the API routes. Cross-origin requests are only
// answered for the listed origins; an empty list keeps the API same-origin.
// Lifecycle hooks require a JSON body type so browsers must preflight them.
func NewRouter(logger *zap.Logger, lifecycle domain.Lifecycle, snapshots SnapshotSource, origins []string) http.Handler {
	hooks := map[string]hookFunc{
		"restart":  lifecycle.OnRestart,
		"shutdown": lifecycle.OnHostShutdown,
		"reboot":   lifecycle.OnHostReboot,
	}

	r := mux.NewRouter().StrictSlash(true)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(map[string]interface{}{"ok": true}, http.StatusOK, w)
	}).Methods("GET")

	r.HandleFunc("/api/display", func(w http.ResponseWriter, r *http.Request) {
		snap, err := snapshots.Snapshot(r.Context())
		if err != nil {
			logger.Warn("Display snapshot failed", zap.Error(err))
			respondWithError(err.Error(), http.StatusServiceUnavailable, w)
			return
		}
		respondWithJSON(snap, http.StatusOK, w)
	}).Methods("GET")

	r.HandleFunc("/api/lifecycle/{hook}", func(w http.ResponseWriter, r *http.Request) {
		if !isJSON(r) {
			respondWithError("content type must be application/json", http.StatusUnsupportedMediaType, w)
			return
		}

		name := mux.Vars(r)["hook"]
		hook, ok := hooks[name]
		if !ok {
			respondWithError("unknown hook "+name, http.StatusNotFound, w)
			return
		}

		logger.Info("Lifecycle hook requested", zap.String("hook", name), zap.String("remote", r.RemoteAddr))
		if err := hook(r.Context()); err != nil {
			logger.Error("Lifecycle hook failed", zap.String("hook", name), zap.Error(err))
			respondWithError(err.Error(), http.StatusInternalServerError, w)
			return
		}
		respondWithJSON(map[string]interface{}{"ok": true, "hook": name}, http.StatusOK, w)
	}).Methods("POST")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondWithError("not found", http.StatusNotFound, w)
	})

	if len(origins) == 0 {
		return r
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(r)
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

func respondWithJSON(m interface{}, statusCode int, w http.ResponseWriter) {
	payload, _ := json.Marshal(m)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(payload)
}

func respondWithError(reason string, statusCode int, w http.ResponseWriter) {
	respondWithJSON(map[string]interface{}{
		"ok":     false,
		"reason": reason,
	}, statusCode, w)
}

// Server runs the control API. An empty address disables it.
type Server struct {
	logger *zap.Logger
	addr   string
	srv    *http.Server
	done   chan struct{}
}

// NewServer creates a server for handler on addr
func NewServer(logger *zap.Logger, addr string, handler http.Handler) *Server {
	return &Server{
		logger: logger,
		addr:   addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}
}

// Start binds the listener and serves in the background
func (s *Server) Start(ctx context.Context) error {
	if s.addr == "" {
		s.logger.Info("Control API disabled")
		return nil
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}

	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Control API stopped", zap.Error(err))
		}
	}()

	s.logger.Info("Control API listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Stop shuts the server down gracefully
func (s *Server) Stop(ctx context.Context) error {
	if s.done == nil {
		return nil
	}
	err := s.srv.Shutdown(ctx)
	<-s.done
	s.logger.Info("Control API stopped")
	return err
}
