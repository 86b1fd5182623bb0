package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"quotewatch/internal/infrastructure/config"
	"quotewatch/internal/infrastructure/logger"
	"quotewatch/internal/infrastructure/svc"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:  "quotewatch",
		Usage: "Realtime venue quotes, watchlists and price alerts",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config.toml",
				Value:   "configs/config.toml",
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			quoteCommand(),
			alertCommand(),
			watchCommand(),
			accountCommand(),
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal().Err(err).Msg("quotewatch exited")
	}
}

// bootstrap 加载配置、初始化日志并构建 ServiceContext
func bootstrap(ctx context.Context, cmd *cli.Command) (*svc.ServiceContext, error) {
	path := cmd.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logger.Setup(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	log.Debug().Str("config", path).Msg("config loaded")

	return svc.New(ctx, cfg)
}
