package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/fernandezvara/gallerykit/internal/config"
	"github.com/fernandezvara/gallerykit/internal/logging"
)

func main() {
	cliApp := &cli.App{
		Name:  "gallerykit",
		Usage: "art gallery roles and artist request service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "path to the configuration file",
				EnvVars: []string{"GALLERY_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			reconcileCommand(),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API and the reconcile schedule",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "migrate",
				Usage: "apply migrations before serving",
			},
		},
		Action: func(c *cli.Context) error {
			return withApp(c, func(ctx context.Context, app *App) error {
				if c.Bool("migrate") {
					if err := app.Migrate(ctx); err != nil {
						return err
					}
				}
				return app.Serve(ctx)
			})
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply database migrations",
		Action: func(c *cli.Context) error {
			return withApp(c, func(ctx context.Context, app *App) error {
				return app.Migrate(ctx)
			})
		},
	}
}

func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "grant the artist role to approved requests that are missing it",
		Action: func(c *cli.Context) error {
			return withApp(c, func(ctx context.Context, app *App) error {
				n, err := app.Reconcile(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "repaired %d grant(s)\n", n)
				return nil
			})
		},
	}
}

// withApp loads configuration, sets up logging and runs fn with an App whose
// context is cancelled on SIGINT or SIGTERM.
func withApp(c *cli.Context, fn func(ctx context.Context, app *App) error) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, closer, err := logging.Setup(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()

	app, err := NewApp(cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return fn(ctx, app)
}
