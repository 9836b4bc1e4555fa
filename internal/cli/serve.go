package cli

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/avanlaar/glimmer/internal/assets"
	"github.com/avanlaar/glimmer/internal/catalog"
	"github.com/avanlaar/glimmer/internal/config"
	"github.com/avanlaar/glimmer/internal/db"
	"github.com/avanlaar/glimmer/internal/inference"
	"github.com/avanlaar/glimmer/internal/ledger"
	"github.com/avanlaar/glimmer/internal/llm"
	"github.com/avanlaar/glimmer/internal/metrics"
	"github.com/avanlaar/glimmer/internal/render"
	"github.com/avanlaar/glimmer/internal/server"
	"github.com/avanlaar/glimmer/internal/service"
	"github.com/avanlaar/glimmer/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and background workers",
	Long: `Start the glimmer server: the HTTP API, the streaming generation
worker and the image render worker. Blocks until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() { _ = cleanup() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return RunServer(ctx, cfg, dbClient, logger)
}

// RunServer wires the full application against an established database
// connection and serves until ctx is cancelled. Shared by the serve command
// and the glimmerd binary.
func RunServer(ctx context.Context, cfg config.Config, dbClient *db.Client, logger *slog.Logger) error {
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}

	assetStore, err := assets.NewStore(cfg.AssetDir)
	if err != nil {
		return err
	}

	led := ledger.New(dbClient, logger)
	collector := metrics.NewCollector()
	dispatcher := worker.NewDispatcher(logger)

	// A missing inference or render endpoint is surfaced per-turn/per-job by
	// the respective client, never at startup.
	inferenceClient := inference.NewClient(cfg.InferenceURL, cfg.InferenceAPIKey)
	renderClient := render.NewClient(cfg.RenderURL)

	var titler worker.Titler
	if cfg.InferenceURL != "" {
		if active := cat.List(); len(active) > 0 {
			tg, err := llm.NewTitleGenerator(cfg.InferenceURL, cfg.InferenceAPIKey, active[0].RemoteID)
			if err != nil {
				logger.Warn("title generation disabled", "error", err)
			} else {
				titler = tg
			}
		}
	}

	gen := worker.NewGenerationWorker(dbClient, led, inferenceClient, titler, collector, logger)
	imgWorker := worker.NewImageJobWorker(dbClient, led, renderClient, assetStore, collector, logger,
		cfg.RenderPollInterval, cfg.RenderPollBudget)

	srv := server.New(server.Deps{
		Store:   dbClient,
		Chat:    service.NewChatService(dbClient, cat, gen, dispatcher, logger),
		Images:  service.NewImageService(dbClient, led, imgWorker, dispatcher, logger),
		Assets:  assetStore,
		Catalog: cat,
		Metrics: collector,
		Logger:  logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.ListenAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// Dispatched turns and render jobs finish against persisted state.
	dispatcher.Wait()
	logger.Info("server stopped")
	return nil
}
