package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/ctxvault/internal"
	pkgconfig "github.com/starford/ctxvault/pkg/config"
)

var version = "dev"

const defaultConfigPath = "config/config.toml"

// loadConfig reads the --config file over the defaults. A missing file
// leaves the defaults in place.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadWithDefaults(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// withVault opens the configured vault for a one-shot command. Logs go to
// stderr so command output stays clean.
func withVault(ctx context.Context, cmd *cli.Command, fn func(context.Context, *internal.Vault) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := internal.NewLogger(os.Stderr, cfg.App.LogLevel)
	slog.SetDefault(logger)

	v, err := internal.OpenVault(cfg, logger)
	if err != nil {
		return err
	}
	defer v.Close()
	return fn(ctx, v)
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithWatch(cmd.Bool("watch")),
		internal.WithSyncOnStart(cmd.Bool("sync")),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx,
		internal.WithConfig(cfg),
		internal.WithSyncOnStart(cmd.Bool("sync")),
		internal.WithVersion(version))
}

func syncFlag() cli.Flag {
	return &cli.BoolFlag{Name: "sync", Usage: "Reindex files edited while the vault was not running before serving"}
}

func main() {
	cmd := &cli.Command{
		Name:    "ctxvault",
		Usage:   "Local knowledge and session vault for agent CLIs, with SQLite search",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file (.toml or .yaml)",
				DefaultText: defaultConfigPath,
				Value:       defaultConfigPath,
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			cmdInit(),
			{
				Name:  "serve",
				Usage: "Run the HTTP API",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "watch", Usage: "Re-index files changed by external editors"},
					syncFlag(),
				},
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Flags:  []cli.Flag{syncFlag()},
				Action: serveMCP,
			},
			cmdKnowledge(),
			cmdSessions(),
			cmdSession(),
			cmdPromote(),
			cmdSearch(),
			cmdStats(),
			cmdReindex(),
			cmdSkills(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(exitCode(err))
	}
}
