package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/landing-lab/landing-lab/internal/assign"
	"github.com/landing-lab/landing-lab/internal/combos"
	"github.com/landing-lab/landing-lab/internal/experiment"
	"github.com/landing-lab/landing-lab/internal/ledger"
	"github.com/landing-lab/landing-lab/internal/metrics"
	"github.com/landing-lab/landing-lab/internal/stats"
)

// Deps are the components the HTTP surface exposes. Ranker may be nil when no
// pattern catalogue is configured.
type Deps struct {
	Registry    *experiment.Registry
	Assigner    *assign.Service
	Ledger      *ledger.Ledger
	Analyzer    *stats.Analyzer
	Ranker      *combos.Ranker
	RankOptions combos.Options
	Logger      *slog.Logger
}

type Server struct {
	deps      Deps
	logger    *slog.Logger
	port      int
	token     string
	tokenFile string
	router    *http.ServeMux
	startTime time.Time
}

func New(deps Deps, port int, tokenFile string) *Server {
	srv := &Server{
		deps:      deps,
		logger:    deps.Logger,
		port:      port,
		token:     generateToken(),
		tokenFile: tokenFile,
		router:    http.NewServeMux(),
		startTime: time.Now(),
	}
	if srv.logger == nil {
		srv.logger = slog.Default()
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	// Public endpoints
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.HandleFunc("/assign", s.handleAssign)
	s.router.HandleFunc("/e", s.handleEvent)
	s.router.HandleFunc("/vl.js", s.handleSnippet)
	s.router.Handle("/metrics", metrics.Handler())

	// Management API (protected)
	s.router.Handle("GET /api/experiments", s.authMiddleware(http.HandlerFunc(s.handleListExperiments)))
	s.router.Handle("POST /api/experiments", s.authMiddleware(http.HandlerFunc(s.handleCreateExperiment)))
	s.router.Handle("GET /api/experiments/{id}", s.authMiddleware(http.HandlerFunc(s.handleGetExperiment)))
	s.router.Handle("POST /api/experiments/{id}/stop", s.authMiddleware(http.HandlerFunc(s.handleStopExperiment)))
	s.router.Handle("GET /api/experiments/{id}/analysis", s.authMiddleware(http.HandlerFunc(s.handleAnalysis)))
	s.router.Handle("GET /api/combinations", s.authMiddleware(http.HandlerFunc(s.handleCombinations)))
}

func (s *Server) Start() error {
	return s.StartWithOptions(true)
}

// StartQuiet starts the server without printing startup messages
func (s *Server) StartQuiet() error {
	return s.StartWithOptions(false)
}

func (s *Server) StartWithOptions(printMessages bool) error {
	return s.ListenAndServe(context.Background(), printMessages)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, printMessages bool) error {
	// Token file lets `llab token` print the current API token.
	if s.tokenFile != "" {
		if err := os.WriteFile(s.tokenFile, []byte(s.token), 0600); err != nil {
			s.logger.Warn("failed to write token file", "path", s.tokenFile, "error", err)
		}
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if printMessages {
		fmt.Println()
		fmt.Printf("landing-lab running on http://localhost:%d\n", s.port)
		fmt.Printf("API: http://localhost:%d/api/experiments?token=%s\n", s.port, s.token)
		fmt.Println()
		fmt.Println("Press Ctrl+C to stop")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) Token() string {
	return s.token
}

func (s *Server) StartTime() time.Time {
	return s.startTime
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func generateToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
