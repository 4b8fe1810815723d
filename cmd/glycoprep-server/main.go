// Copyright 2026 the glycoprep authors.
// SPDX-License-Identifier: MIT

// Command glycoprep-server exposes the matching and calibration pipeline
// over HTTP for the web frontend.
package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/glycomics/glycoprep/internal/server"
	"github.com/glycomics/glycoprep/pkg/config"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment")
	}

	cfg := config.Load()

	if err := os.MkdirAll(cfg.SessionsRoot, 0o755); err != nil {
		slog.Error("failed to create sessions directory", "path", cfg.SessionsRoot, "error", err)
		os.Exit(1)
	}

	_, app := server.New(cfg)

	slog.Info("starting glycoprep server",
		"port", cfg.Port,
		"sessions_root", cfg.SessionsRoot,
		"frontend_url", cfg.FrontendURL,
	)

	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
