package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/avanlaar/glimmer/internal/ledger"
	"github.com/avanlaar/glimmer/internal/models"
	"github.com/avanlaar/glimmer/internal/worker"
)

// maxImagePromptLen bounds a render prompt.
const maxImagePromptLen = 1000

// resolutionCost maps a supported resolution to its flat credit price.
var resolutionCost = map[string]int{
	"512":  50,
	"768":  75,
	"1024": 100,
}

// JobStore is the slice of the persistent store the image service uses.
// *db.Client implements it.
type JobStore interface {
	CreateImageJob(ctx context.Context, id, userID, prompt, resolution string, cost int, conversationID *string) (*models.ImageJob, error)
	GetImageJob(ctx context.Context, id string) (*models.ImageJob, error)
	ListImageJobs(ctx context.Context, userID string) ([]models.ImageJob, error)
}

// ImageService accepts render requests: validate, price, reserve, persist,
// dispatch. Everything after dispatch is the worker's problem and surfaces
// only on the job row.
type ImageService struct {
	store      JobStore
	ledger     *ledger.Ledger
	renderer   *worker.ImageJobWorker
	dispatcher *worker.Dispatcher
	logger     *slog.Logger
}

// NewImageService wires an image service.
func NewImageService(store JobStore, led *ledger.Ledger, renderer *worker.ImageJobWorker, dispatcher *worker.Dispatcher, logger *slog.Logger) *ImageService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageService{
		store:      store,
		ledger:     led,
		renderer:   renderer,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// ResolutionCost returns the credit price for a resolution, or an error for
// an unsupported one.
func ResolutionCost(resolution string) (int, error) {
	cost, ok := resolutionCost[resolution]
	if !ok {
		return 0, fmt.Errorf("unsupported resolution %q: %w", resolution, ErrInvalidInput)
	}
	return cost, nil
}

// CreateJob validates the request, reserves the flat resolution cost and
// persists a pending job before dispatching the render worker. Validation
// runs before any credit deduction; a reservation made here is released if
// the job row cannot be written.
func (s *ImageService) CreateJob(ctx context.Context, userID, prompt, resolution string, conversationID *string) (*models.ImageJob, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("prompt is empty: %w", ErrInvalidInput)
	}
	if len(prompt) > maxImagePromptLen {
		return nil, fmt.Errorf("prompt exceeds %d characters: %w", maxImagePromptLen, ErrInvalidInput)
	}
	cost, err := ResolutionCost(resolution)
	if err != nil {
		return nil, err
	}

	res, err := s.ledger.Reserve(ctx, userID, cost)
	if err != nil {
		return nil, err
	}

	jobID := uuid.New().String()
	job, err := s.store.CreateImageJob(ctx, jobID, userID, prompt, resolution, cost, conversationID)
	if err != nil {
		if relErr := s.ledger.Release(ctx, res, res.Amount()); relErr != nil {
			s.logger.Error("release after failed job create", "user_id", userID, "error", relErr)
		}
		return nil, fmt.Errorf("create image job: %w", err)
	}

	s.dispatcher.Dispatch("render", func(ctx context.Context) {
		s.renderer.Run(ctx, worker.JobParams{
			JobID:      jobID,
			UserID:     userID,
			Prompt:     prompt,
			Resolution: resolution,
		}, res)
	})

	s.logger.Info("image job dispatched",
		"user_id", userID, "job_id", jobID, "resolution", resolution, "cost", cost)
	return job, nil
}

// GetJob returns a single job, checking ownership.
func (s *ImageService) GetJob(ctx context.Context, userID, jobID string) (*models.ImageJob, error) {
	job, err := s.store.GetImageJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if owner, err := models.RecordIDString(job.User); err != nil || owner != userID {
		return nil, fmt.Errorf("job %q does not belong to user %q: %w", jobID, userID, ErrNotOwner)
	}
	return job, nil
}

// ListJobs returns the user's jobs, newest first.
func (s *ImageService) ListJobs(ctx context.Context, userID string) ([]models.ImageJob, error) {
	return s.store.ListImageJobs(ctx, userID)
}
