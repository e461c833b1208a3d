package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"freqy/internal/auth"
	"freqy/internal/config"
	"freqy/internal/database"
	"freqy/internal/generator"
	"freqy/internal/leaderboard"
	"freqy/internal/ngrok"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// FreqyServer serves the Freqy web pages and JSON API.
type FreqyServer struct {
	config       *config.Config
	db           *database.Database
	authService  *auth.Service
	generator    *generator.Generator
	leaderboard  *leaderboard.Board
	templates    *templateSet
	watcher      *fsnotify.Watcher
	ngrokService *ngrok.Service
	logger       *logrus.Logger
}

// NewFreqyServer wires the collaborators into a server and loads the page templates.
func NewFreqyServer(
	cfg *config.Config,
	db *database.Database,
	authService *auth.Service,
	gen *generator.Generator,
	board *leaderboard.Board,
	logger *logrus.Logger,
) (*FreqyServer, error) {
	templates, err := newTemplateSet(cfg.Server.TemplatesDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	ngrokSvc, err := ngrok.NewService(&cfg.Ngrok, logger)
	if err != nil {
		logger.WithError(err).Warn("Ngrok service not available")
		ngrokSvc = nil
	}

	return &FreqyServer{
		config:       cfg,
		db:           db,
		authService:  authService,
		generator:    gen,
		leaderboard:  board,
		templates:    templates,
		ngrokService: ngrokSvc,
		logger:       logger,
	}, nil
}

// Handler returns the full middleware-wrapped router.
func (s *FreqyServer) Handler() http.Handler {
	mux := http.NewServeMux()
	s.setupRoutes(mux)

	var handler http.Handler = mux
	handler = s.sessionMiddleware(handler)
	handler = s.requestLoggingMiddleware(handler)
	handler = s.panicRecoveryMiddleware(handler)
	return handler
}

func (s *FreqyServer) setupRoutes(mux *http.ServeMux) {
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(s.config.Server.StaticDir))))
	mux.HandleFunc("GET /health", s.handleHealthCheck)

	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("GET /login", s.handleLogin)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("GET /logout", s.requireAuth(s.handleLogout))
	mux.HandleFunc("POST /logout", s.requireAuth(s.handleLogout))
	mux.HandleFunc("GET /sign-up", s.handleSignUp)
	mux.HandleFunc("POST /sign-up", s.handleSignUp)
	mux.HandleFunc("GET /change_password", s.requireAuth(s.handleChangePassword))
	mux.HandleFunc("POST /change_password", s.requireAuth(s.handleChangePassword))
	mux.HandleFunc("GET /leaderboard", s.handleLeaderboard)
	mux.HandleFunc("POST /leaderboard", s.handleLeaderboard)
	mux.HandleFunc("GET /my-playlists", s.requireAuth(s.handleMyPlaylists))
	mux.HandleFunc("POST /my-playlists", s.requireAuth(s.handleMyPlaylists))

	// Playlist routes
	mux.HandleFunc("GET /api/playlists", s.requireAuth(s.handleGetPlaylists))
	mux.HandleFunc("POST /api/playlists", s.requireAuth(s.handleCreatePlaylist))
	mux.HandleFunc("GET /api/playlists/{id}", s.requireAuth(s.handleGetPlaylist))
	mux.HandleFunc("PUT /api/playlists/{id}", s.requireAuth(s.handleUpdatePlaylist))
	mux.HandleFunc("DELETE /api/playlists/{id}", s.requireAuth(s.handleDeletePlaylist))

	// Song routes
	mux.HandleFunc("GET /api/playlists/{id}/songs", s.requireAuth(s.handleGetSongs))
	mux.HandleFunc("POST /api/playlists/{id}/songs", s.requireAuth(s.handleAddSong))
	mux.HandleFunc("GET /api/playlists/{id}/songs/{song_id}", s.requireAuth(s.handleGetSong))
	mux.HandleFunc("PUT /api/playlists/{id}/songs/{song_id}", s.requireAuth(s.handleUpdateSong))
	mux.HandleFunc("DELETE /api/playlists/{id}/songs/{song_id}", s.requireAuth(s.handleDeleteSong))

	mux.HandleFunc("POST /api/generate_playlist_name", s.requireAuth(s.handleGeneratePlaylistName))

	mux.HandleFunc("/", s.handleNotFound)
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *FreqyServer) Start(ctx context.Context) error {
	if s.config.Server.WatchTemplates && s.templates.dir != "" {
		if err := s.startTemplateWatcher(); err != nil {
			s.logger.WithError(err).Warn("Could not start template watcher")
		} else {
			defer s.stopTemplateWatcher()
		}
	}

	localAddress := fmt.Sprintf("http://%s", s.config.GetAddress())

	server := &http.Server{
		Addr:         s.config.GetAddress(),
		Handler:      s.Handler(),
		ReadTimeout:  time.Duration(s.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.Server.WriteTimeout) * time.Second,
	}

	s.logger.WithFields(logrus.Fields{
		"address": localAddress,
		"store":   s.config.Auth.SessionStore,
		"model":   s.config.Generator.Model,
	}).Info("Freqy server starting")

	if s.ngrokService != nil {
		if err := s.ngrokService.StartTunnel(ctx, localAddress); err != nil {
			s.logger.WithError(err).Warn("Could not start ngrok tunnel")
		} else {
			defer s.ngrokService.Stop()
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down Freqy server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	s.logger.Info("Freqy server shutdown complete")
	return nil
}
