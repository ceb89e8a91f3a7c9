// Package server exposes the twin over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"digitaltwin/internal/config"
	"digitaltwin/internal/conversation"
	"digitaltwin/internal/logger"
	"digitaltwin/internal/twin"
	"digitaltwin/internal/version"
	"digitaltwin/pkg/twintypes"
)

const (
	maxBodyBytes           = 1 << 20
	defaultShutdownTimeout = 10 * time.Second
	readHeaderTimeout      = 10 * time.Second
)

// Turner runs chat turns and serves stored histories.
type Turner interface {
	Turn(ctx context.Context, req twintypes.TurnRequest) (twintypes.TurnResult, error)
	History(ctx context.Context, sessionID string) ([]twintypes.Record, error)
	Backend() string
}

// Options configures the HTTP surface.
type Options struct {
	Addr            string
	Model           string
	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

// Server serves the chat API.
type Server struct {
	turns   Turner
	opts    Options
	handler http.Handler
	logger  *log.Logger
}

// New creates a server around the turn controller.
func New(turns Turner, opts Options) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	s := &Server{turns: turns, opts: opts, logger: logger.NewStyledLogger("HTTP")}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /conversation/{session_id}", s.handleConversation)

	c := cors.New(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	})
	s.handler = c.Handler(s.logRequests(mux))
	return s
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then drains in-flight requests.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.handler, ReadHeaderTimeout: readHeaderTimeout}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Listening", "addr", ln.Addr().String(), "storage", s.turns.Backend(), "model", s.opts.Model)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		s.logger.Info("Shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

type rootResponse struct {
	Message       string        `json:"message"`
	MemoryEnabled bool          `json:"memory_enabled"`
	Storage       string        `json:"storage"`
	AIModel       string        `json:"ai_model"`
	Version       string        `json:"version"`
	Build         *version.Info `json:"build,omitempty"`
}

type healthResponse struct {
	Status  string `json:"status"`
	UseS3   bool   `json:"use_s3"`
	Storage string `json:"storage"`
	Model   string `json:"model"`
}

type conversationResponse struct {
	SessionID string             `json:"session_id"`
	Messages  []twintypes.Record `json:"messages"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	resp := rootResponse{
		Message:       "AI Digital Twin API",
		MemoryEnabled: true,
		Storage:       s.turns.Backend(),
		AIModel:       s.opts.Model,
		Version:       version.GetVersion(),
	}
	if info, err := version.GetInfo(); err == nil {
		resp.Build = info
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	backend := s.turns.Backend()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "healthy",
		UseS3:   backend == config.StorageS3,
		Storage: backend,
		Model:   s.opts.Model,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req twintypes.TurnRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	result, err := s.turns.Turn(r.Context(), req)
	if err != nil {
		writeJSON(w, statusFor(err), errorResponse{Detail: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")

	records, err := s.turns.History(r.Context(), sessionID)
	if err != nil {
		writeJSON(w, statusFor(err), errorResponse{Detail: err.Error()})
		return
	}
	if records == nil {
		records = []twintypes.Record{}
	}
	writeJSON(w, http.StatusOK, conversationResponse{SessionID: sessionID, Messages: records})
}

// statusFor maps caller mistakes to 400; everything else is a server failure.
func statusFor(err error) int {
	if errors.Is(err, twin.ErrEmptyMessage) || errors.Is(err, conversation.ErrInvalidSessionID) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to write response", "error", err)
	}
}

// statusRecorder captures the status code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("Request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}
