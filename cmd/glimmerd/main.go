// Package main provides the glimmerd server binary.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/avanlaar/glimmer/internal/cli"
	"github.com/avanlaar/glimmer/internal/config"
	"github.com/avanlaar/glimmer/internal/db"
)

const version = "0.1.0"

func main() {
	cfg := config.Load()

	// Dual output: stderr text + file JSON
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() { _ = cleanup() }()

	logger.Info("glimmerd starting",
		"version", version,
		"surrealdb_url", cfg.SurrealDBURL,
		"listen_addr", cfg.ListenAddr,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.NewClient(ctx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(context.Background()); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	if err := dbClient.InitSchema(ctx); err != nil {
		logger.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}

	if err := cli.RunServer(ctx, cfg, dbClient, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
