package main

import (
	"context"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/attnlens/attnlens/internal/analyze"
	"github.com/attnlens/attnlens/internal/api"
	"github.com/attnlens/attnlens/internal/logger"
)

func analyzeCmd() *cli.Command {
	var (
		prompt    string
		modelName string
	)

	return &cli.Command{
		Name:  "analyze",
		Usage: "Run one analysis pass and print the result as JSON",
		Flags: append(append(commonModelFlags(), loggingFlags()...),
			&cli.StringFlag{
				Name:        "prompt",
				Aliases:     []string{"p"},
				Usage:       "prompt text",
				Required:    true,
				Destination: &prompt,
			},
			&cli.StringFlag{
				Name:        "model",
				Aliases:     []string{"m"},
				Usage:       "model identifier",
				Value:       "distilgpt2",
				Destination: &modelName,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := LoadConfig()
			applyCommonConfig(cmd, cfg)
			log := newLogger()

			service := analyze.NewService(newLoader(log), analyze.NewResolver(cfg.Substitutions))

			res, err := service.Analyze(logger.WithContext(ctx, log), prompt, modelName)
			if err != nil {
				return fmt.Errorf("analyze: %w", err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(api.ResponseFromResult(res))
		},
	}
}
