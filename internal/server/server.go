// Package server provides the HTTP server and routing for Wagerline.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/oddstack/wagerline/internal/cycle"
	"github.com/oddstack/wagerline/internal/modules/backtest"
	"github.com/oddstack/wagerline/internal/modules/bankroll"
	"github.com/oddstack/wagerline/internal/modules/dedup"
	"github.com/oddstack/wagerline/internal/modules/movement"
	"github.com/oddstack/wagerline/internal/modules/quotes"
	"github.com/oddstack/wagerline/internal/modules/staking"
)

// Config holds server configuration.
type Config struct {
	Log      zerolog.Logger
	Port     int
	DevMode  bool
	Cycle    *cycle.Service
	Store    *quotes.Store
	History  *quotes.HistoryRepository
	RecRepo  *dedup.Repository
	Monitor  *movement.Monitor
	Bankroll *bankroll.Repository
	Engine   *staking.Engine
	Backtest *backtest.Runner
}

// Server represents the HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	api    *apiHandlers
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		api: &apiHandlers{
			log:       cfg.Log,
			startedAt: time.Now(),
			cycle:     cfg.Cycle,
			store:     cfg.Store,
			history:   cfg.History,
			recRepo:   cfg.RecRepo,
			monitor:   cfg.Monitor,
			bankroll:  cfg.Bankroll,
			engine:    cfg.Engine,
			backtest:  cfg.Backtest,
		},
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !cfg.DevMode {
		s.router.Use(middleware.Compress(5))
	}

	s.router.Route("/api", s.api.RegisterRoutes)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: s.router,
	}
	return s
}

// Router exposes the router, for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
