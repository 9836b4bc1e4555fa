package db

import (
	"context"
	"fmt"

	"github.com/avanlaar/glimmer/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// CreateImageJob inserts a pending render job. The caller has already
// debited cost from the owning user's balance.
func (c *Client) CreateImageJob(ctx context.Context, id, userID, prompt, resolution string, cost int, conversationID *string) (*models.ImageJob, error) {
	vars := map[string]any{
		"id":         id,
		"user":       userID,
		"prompt":     prompt,
		"resolution": resolution,
		"cost":       cost,
	}
	convClause := "NONE"
	if conversationID != nil {
		convClause = `type::record("conversation", $conversation)`
		vars["conversation"] = *conversationID
	}

	results, err := surrealdb.Query[[]models.ImageJob](ctx, c.db, fmt.Sprintf(`
		CREATE type::record("image_job", $id) CONTENT {
			user: type::record("user", $user),
			conversation: %s,
			prompt: $prompt,
			resolution: $resolution,
			status: "pending",
			cost: $cost
		}
	`, convClause), vars)
	if err != nil {
		return nil, fmt.Errorf("create image job: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create image job: empty result")
	}
	return &(*results)[0].Result[0], nil
}

// GetImageJob retrieves a job by ID. Returns ErrNotFound if absent.
func (c *Client) GetImageJob(ctx context.Context, id string) (*models.ImageJob, error) {
	results, err := surrealdb.Query[[]models.ImageJob](ctx, c.db, `
		SELECT * FROM type::record("image_job", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get image job: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("get image job %q: %w", id, ErrNotFound)
	}
	return &(*results)[0].Result[0], nil
}

// ListImageJobs returns a user's render jobs, newest first.
func (c *Client) ListImageJobs(ctx context.Context, userID string) ([]models.ImageJob, error) {
	results, err := surrealdb.Query[[]models.ImageJob](ctx, c.db, `
		SELECT * FROM image_job
		WHERE user = type::record("user", $user)
		ORDER BY created_at DESC
	`, map[string]any{"user": userID})
	if err != nil {
		return nil, fmt.Errorf("list image jobs: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.ImageJob{}, nil
	}
	return (*results)[0].Result, nil
}

// MarkImageJobProcessing transitions a pending job to processing.
func (c *Client) MarkImageJobProcessing(ctx context.Context, id string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("image_job", $id)
		SET status = "processing"
		WHERE status = "pending"
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("mark image job processing: %w", err)
	}
	return nil
}

// CompleteImageJob marks a job completed with its asset reference.
func (c *Client) CompleteImageJob(ctx context.Context, id, assetRef string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("image_job", $id) SET
			status = "completed",
			asset_ref = $asset,
			completed_at = time::now()
	`, map[string]any{"id": id, "asset": assetRef})
	if err != nil {
		return fmt.Errorf("complete image job: %w", err)
	}
	return nil
}

// FailImageJob marks a job failed with an error message. The credit refund is
// issued by the worker in the same transition.
func (c *Client) FailImageJob(ctx context.Context, id, errorText string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("image_job", $id) SET
			status = "failed",
			error = $error,
			completed_at = time::now()
	`, map[string]any{"id": id, "error": errorText})
	if err != nil {
		return fmt.Errorf("fail image job: %w", err)
	}
	return nil
}
