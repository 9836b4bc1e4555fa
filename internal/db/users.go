package db

import (
	"context"
	"fmt"

	"github.com/avanlaar/glimmer/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// CreateUser creates a user with the given ID, name and starting balance.
func (c *Client) CreateUser(ctx context.Context, id, name string, credits int) (*models.User, error) {
	results, err := surrealdb.Query[[]models.User](ctx, c.db, `
		CREATE type::record("user", $id) CONTENT {
			name: $name,
			credits: $credits
		}
	`, map[string]any{"id": id, "name": name, "credits": credits})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create user: empty result")
	}
	return &(*results)[0].Result[0], nil
}

// GetUser retrieves a user by ID. Returns ErrNotFound if absent.
func (c *Client) GetUser(ctx context.Context, id string) (*models.User, error) {
	results, err := surrealdb.Query[[]models.User](ctx, c.db, `
		SELECT * FROM type::record("user", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("get user %q: %w", id, ErrNotFound)
	}
	return &(*results)[0].Result[0], nil
}

// DebitCredits atomically subtracts amount from the user's balance, but only
// if the balance covers it. Returns the balance after the debit, or
// (0, false, nil) when the balance was insufficient. The single WHERE-guarded
// UPDATE is what keeps concurrent debits for one user from losing updates.
func (c *Client) DebitCredits(ctx context.Context, userID string, amount int) (int, bool, error) {
	results, err := surrealdb.Query[[]models.User](ctx, c.db, `
		UPDATE type::record("user", $id)
		SET credits -= $amount
		WHERE credits >= $amount
		RETURN AFTER
	`, map[string]any{"id": userID, "amount": amount})
	if err != nil {
		return 0, false, fmt.Errorf("debit credits: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		// Guard rejected the update: either the user is missing or broke.
		if _, err := c.GetUser(ctx, userID); err != nil {
			return 0, false, err
		}
		return 0, false, nil
	}
	return (*results)[0].Result[0].Credits, true, nil
}

// CreditCredits atomically adds amount to the user's balance and returns the
// balance after the refund.
func (c *Client) CreditCredits(ctx context.Context, userID string, amount int) (int, error) {
	results, err := surrealdb.Query[[]models.User](ctx, c.db, `
		UPDATE type::record("user", $id)
		SET credits += $amount
		RETURN AFTER
	`, map[string]any{"id": userID, "amount": amount})
	if err != nil {
		return 0, fmt.Errorf("credit credits: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, fmt.Errorf("credit credits for %q: %w", userID, ErrNotFound)
	}
	return (*results)[0].Result[0].Credits, nil
}
