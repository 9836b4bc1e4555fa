package worker

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/avanlaar/glimmer/internal/ledger"
	"github.com/avanlaar/glimmer/internal/metrics"
	"github.com/avanlaar/glimmer/internal/render"
)

// JobStore is the slice of the persistent store the image worker writes
// through. *db.Client implements it.
type JobStore interface {
	MarkImageJobProcessing(ctx context.Context, id string) error
	CompleteImageJob(ctx context.Context, id, assetRef string) error
	FailImageJob(ctx context.Context, id, errorText string) error
}

// Renderer submits workflows and retrieves their outputs. *render.Client
// implements it.
type Renderer interface {
	Submit(ctx context.Context, wf render.Workflow) (string, error)
	History(ctx context.Context, promptID string) (*render.ImageRef, error)
	Download(ctx context.Context, ref render.ImageRef) ([]byte, error)
}

// AssetSaver persists downloaded output bytes. *assets.Store implements it.
type AssetSaver interface {
	Save(data []byte, ext string) (string, error)
}

// ImageJobWorker drives one render job from pending to a terminal state.
// Credits were already debited when the job row was created; the worker
// holds the reservation and refunds it on every failure path.
type ImageJobWorker struct {
	store    JobStore
	ledger   *ledger.Ledger
	renderer Renderer
	saver    AssetSaver
	metrics  *metrics.Collector
	logger   *slog.Logger

	pollInterval time.Duration
	pollBudget   time.Duration
}

// NewImageJobWorker wires an image worker. collector may be nil.
func NewImageJobWorker(store JobStore, l *ledger.Ledger, renderer Renderer, saver AssetSaver, collector *metrics.Collector, logger *slog.Logger, pollInterval, pollBudget time.Duration) *ImageJobWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if pollBudget <= 0 {
		pollBudget = 5 * time.Minute
	}
	return &ImageJobWorker{
		store:        store,
		ledger:       l,
		renderer:     renderer,
		saver:        saver,
		metrics:      collector,
		logger:       logger,
		pollInterval: pollInterval,
		pollBudget:   pollBudget,
	}
}

// JobParams identifies one dispatched render job.
type JobParams struct {
	JobID      string
	UserID     string
	Prompt     string
	Resolution string
}

// Run executes the job to a terminal state. It never returns an error to its
// caller: outcomes are recorded on the job row. The reservation resolves on
// every path, including panics.
func (w *ImageJobWorker) Run(ctx context.Context, params JobParams, res *ledger.Reservation) {
	resolved := false
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("image worker panicked", "job_id", params.JobID, "panic", r)
			if !resolved {
				w.failJob(ctx, params, res, fmt.Errorf("internal error: %v", r))
			}
		}
	}()

	if err := w.store.MarkImageJobProcessing(ctx, params.JobID); err != nil {
		w.failJob(ctx, params, res, fmt.Errorf("mark processing: %w", err))
		resolved = true
		return
	}

	assetRef, err := w.renderJob(ctx, params)
	if err != nil {
		w.failJob(ctx, params, res, err)
		resolved = true
		return
	}

	if err := w.store.CompleteImageJob(ctx, params.JobID, assetRef); err != nil {
		w.failJob(ctx, params, res, fmt.Errorf("persist completion: %w", err))
		resolved = true
		return
	}
	if err := w.ledger.Confirm(ctx, res); err != nil {
		w.logger.Error("failed to confirm reservation", "job_id", params.JobID, "error", err)
	}
	resolved = true

	w.logger.Info("image job completed",
		"job_id", params.JobID, "user_id", params.UserID, "asset", assetRef)
}

// renderJob submits the workflow, polls for the output under the wall-clock
// budget, downloads it and persists the asset.
func (w *ImageJobWorker) renderJob(ctx context.Context, params JobParams) (string, error) {
	wf := render.BuildWorkflow(params.Prompt, params.Resolution)

	submitStart := time.Now()
	promptID, err := w.renderer.Submit(ctx, wf)
	if err != nil {
		if w.metrics != nil {
			w.metrics.RecordFailure(metrics.OpRenderSubmit, time.Since(submitStart))
		}
		return "", fmt.Errorf("submit: %w", err)
	}
	if w.metrics != nil {
		w.metrics.RecordTiming(metrics.OpRenderSubmit, time.Since(submitStart))
	}

	w.logger.Info("render job submitted",
		"job_id", params.JobID, "prompt_id", promptID, "resolution", params.Resolution)

	ref, err := w.pollForOutput(ctx, promptID)
	if err != nil {
		return "", err
	}

	downloadStart := time.Now()
	data, err := w.renderer.Download(ctx, *ref)
	if err != nil {
		if w.metrics != nil {
			w.metrics.RecordFailure(metrics.OpRenderDownload, time.Since(downloadStart))
		}
		return "", fmt.Errorf("download: %w", err)
	}
	if w.metrics != nil {
		w.metrics.RecordTiming(metrics.OpRenderDownload, time.Since(downloadStart))
	}

	ext := filepath.Ext(ref.Filename)
	if ext == "" {
		ext = ".png"
	}
	assetRef, err := w.saver.Save(data, ext)
	if err != nil {
		return "", fmt.Errorf("persist asset: %w", err)
	}
	return assetRef, nil
}

// pollForOutput queries history on a fixed interval until an output appears
// or the wall-clock budget elapses. The remote job is not cancelled on
// timeout; the engine owns its own lifecycle.
func (w *ImageJobWorker) pollForOutput(ctx context.Context, promptID string) (*render.ImageRef, error) {
	deadline := time.Now().Add(w.pollBudget)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("poll: %w", ctx.Err())
		case <-ticker.C:
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("poll: no output within %s", w.pollBudget)
		}

		pollStart := time.Now()
		ref, err := w.renderer.History(ctx, promptID)
		if err != nil {
			// Poll errors are transient by definition; keep polling until
			// the budget runs out.
			if w.metrics != nil {
				w.metrics.RecordFailure(metrics.OpRenderPoll, time.Since(pollStart))
			}
			w.logger.Warn("history poll failed", "prompt_id", promptID, "error", err)
			continue
		}
		if w.metrics != nil {
			w.metrics.RecordTiming(metrics.OpRenderPoll, time.Since(pollStart))
		}
		if ref != nil {
			return ref, nil
		}
	}
}

// failJob marks the job failed and refunds its full cost in the same
// transition.
func (w *ImageJobWorker) failJob(ctx context.Context, params JobParams, res *ledger.Reservation, cause error) {
	if err := w.store.FailImageJob(ctx, params.JobID, cause.Error()); err != nil {
		w.logger.Error("failed to persist job failure", "job_id", params.JobID, "error", err)
	}
	if err := w.ledger.Release(ctx, res, res.Amount()); err != nil {
		w.logger.Error("failed to refund job cost", "job_id", params.JobID, "error", err)
	}
	w.logger.Error("image job failed",
		"job_id", params.JobID, "user_id", params.UserID, "error", cause)
}
