package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/attnlens/attnlens/internal/analyze"
	"github.com/attnlens/attnlens/internal/api"
	"github.com/attnlens/attnlens/internal/hub"
	"github.com/attnlens/attnlens/internal/inference"
	"github.com/attnlens/attnlens/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the analysis REST API",
		Flags: append(append(commonModelFlags(), loggingFlags()...),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8000",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := LoadConfig()
			applyCommonConfig(cmd, cfg)
			applyServeConfig(cmd, cfg, &addr)
			log := newLogger()

			service := analyze.NewService(newLoader(log), analyze.NewResolver(cfg.Substitutions))
			server := api.NewServer(service, log)

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)

			log.Info("starting server", "address", addr)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}

func newLoader(log logger.Logger) inference.Loader {
	dir := cacheDir
	if dir == "" {
		dir = hub.DefaultCacheDir()
	}
	opts := []hub.Option{hub.WithLogger(log)}
	if hubBaseURL != "" {
		opts = append(opts, hub.WithBaseURL(hubBaseURL))
	}
	return inference.Loader{Hub: hub.New(dir, opts...), Log: log}
}
