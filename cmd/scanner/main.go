package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"qrattend/internal/config"
	"qrattend/internal/log"
)

func main() {
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:  "scanner",
		Usage: "scan student QR codes into an attendance session",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "section",
				Aliases:  []string{"s"},
				Usage:    "section id to open",
				Sources:  cli.EnvVars("SCANNER_SECTION"),
				Required: true,
			},
			&cli.StringFlag{
				Name:  "offering",
				Usage: "course offering id accepted in scanned payloads",
			},
			&cli.StringFlag{
				Name:  "date",
				Usage: "session date (YYYY-MM-DD), today when empty",
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "backend base URL, overrides SCANNER_BACKEND_URL",
			},
			&cli.StringFlag{
				Name:  "token",
				Usage: "bearer token, overrides SCANNER_TOKEN",
			},
		},
		Commands: []*cli.Command{
			scanCommand(),
			markCommand(),
			reconcileCommand(),
			snapshotCommand(),
			summaryCommand(),
		},
	}

	ctx := context.Background()
	if cfg, err := config.LoadScanner(ctx); err == nil {
		_ = log.SetLevel(cfg.LogLevel)
	}
	logger := log.New("scanner")
	ctx = log.IntoContext(ctx, logger)

	if err := cmd.Run(ctx, os.Args); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}
