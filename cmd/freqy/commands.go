package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"freqy/internal/auth"
	"freqy/internal/cache"
	"freqy/internal/config"
	"freqy/internal/database"
	"freqy/internal/generator"
	"freqy/internal/leaderboard"
	"freqy/internal/server"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

// configureLogger applies the logging section of cfg to logger.
func configureLogger(logger *logrus.Logger, cfg config.LoggingConfig) (io.Closer, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	if cfg.File == "" {
		return nil, nil
	}

	file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logger.SetOutput(io.MultiWriter(os.Stderr, file))
	return file, nil
}

func loadConfig(cmd *cli.Command, logger *logrus.Logger) (*config.Config, io.Closer, error) {
	cfg, err := config.LoadConfig(cmd.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("error loading configuration: %w", err)
	}

	logFile, err := configureLogger(logger, cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logFile, nil
}

// newSessionStore builds the configured session backend.
func newSessionStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (auth.SessionStore, error) {
	switch cfg.Auth.SessionStore {
	case "redis":
		store := auth.NewRedisSessionStore(cfg.Auth.RedisAddr, cfg.Auth.RedisPassword, cfg.Auth.RedisPrefix)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Auth.RedisAddr, err)
		}

		logger.WithField("addr", cfg.Auth.RedisAddr).Info("Using Redis session store")
		return store, nil
	default:
		return auth.NewMemorySessionStore(5 * time.Minute), nil
	}
}

func runServe(ctx context.Context, cmd *cli.Command, logger *logrus.Logger) error {
	cfg, logFile, err := loadConfig(cmd, logger)
	if err != nil {
		return err
	}
	if logFile != nil {
		defer logFile.Close()
	}

	if err := cfg.LoadSecrets(cmd.String("env-file")); err != nil {
		return err
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.Path, cfg.Database.MaxConnections, logger)
	if err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}
	defer db.Close()

	store, err := newSessionStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	users, err := auth.NewUserStore(db, cfg.Auth.BcryptCost, logger)
	if err != nil {
		return err
	}
	sessions := auth.NewSessionManager(store, cfg.Secrets.SecretKey, cfg.SessionDuration(), cfg.Auth.CookieName, cfg.Auth.SecureCookies)
	authService := auth.NewService(users, sessions, logger)

	client := generator.NewOpenAICompatClient(generator.ClientConfig{
		BaseURL:           cfg.Generator.BaseURL,
		APIKey:            cfg.Secrets.APIKey,
		Model:             cfg.Generator.Model,
		Temperature:       cfg.Generator.Temperature,
		MaxTokens:         cfg.Generator.MaxTokens,
		Timeout:           cfg.GeneratorTimeout(),
		RequestsPerMinute: cfg.Generator.RequestsPerMinute,
		Burst:             cfg.Generator.Burst,
	}, logger)
	gen := generator.New(client, db, cfg.Generator.SongCount, cfg.Generator.NamePlaylists, logger)
	gen.SetDeadline(cfg.GenerationDeadline())

	userCache := cache.NewUserCache(time.Duration(cfg.Leaderboard.CacheTTLSeconds) * time.Second)
	defer userCache.Close()
	board := leaderboard.New(db, userCache, logger)

	freqyServer, err := server.NewFreqyServer(cfg, db, authService, gen, board, logger)
	if err != nil {
		return fmt.Errorf("error creating server: %w", err)
	}

	return freqyServer.Start(ctx)
}

func runInitConfig(cmd *cli.Command, logger *logrus.Logger) error {
	path := cmd.String("config")

	if _, err := os.Stat(path); err == nil && !cmd.Bool("force") {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := config.DefaultConfig().SaveToFile(path); err != nil {
		return err
	}

	logger.WithField("path", path).Info("Wrote default configuration")
	return nil
}

func runUsers(ctx context.Context, cmd *cli.Command, logger *logrus.Logger) error {
	cfg, logFile, err := loadConfig(cmd, logger)
	if err != nil {
		return err
	}
	if logFile != nil {
		defer logFile.Close()
	}

	db, err := database.NewDatabase(cfg.Database.Path, 1, logger)
	if err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}
	defer db.Close()

	all, err := db.GetAllUsers(ctx)
	if err != nil {
		return err
	}
	matched := leaderboard.Filter(all, cmd.String("filter"))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL\tJOINED")
	for _, user := range matched {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", user.ID, user.Username, user.Email, user.CreatedAt.Format("2006-01-02"))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(matched) == 0 && strings.TrimSpace(cmd.String("filter")) != "" {
		logger.WithField("filter", cmd.String("filter")).Info("No users matched")
	}
	return nil
}
