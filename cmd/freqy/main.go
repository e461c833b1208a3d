package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

func main() {
	// Initialize basic logger for startup
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "freqy",
		Usage: "Mood-based playlist generator",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Optional .env file holding secrets",
				Value: ".env",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runServe(ctx, cmd, logger)
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the web server",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runServe(ctx, cmd, logger)
				},
			},
			{
				Name:  "init-config",
				Usage: "Write a default configuration file",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing file",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runInitConfig(cmd, logger)
				},
			},
			{
				Name:  "users",
				Usage: "List registered users",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "filter",
						Aliases: []string{"f"},
						Usage:   "Only show users whose name contains this text",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runUsers(ctx, cmd, logger)
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		logger.WithError(err).Fatal("Freqy exited with an error")
	}
}
