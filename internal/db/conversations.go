package db

import (
	"context"
	"fmt"

	"github.com/avanlaar/glimmer/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// CreateConversation creates a conversation owned by userID using modelID.
func (c *Client) CreateConversation(ctx context.Context, id, userID, modelID string) (*models.Conversation, error) {
	results, err := surrealdb.Query[[]models.Conversation](ctx, c.db, `
		CREATE type::record("conversation", $id) CONTENT {
			user: type::record("user", $user),
			model: $model
		}
	`, map[string]any{"id": id, "user": userID, "model": modelID})
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create conversation: empty result")
	}
	return &(*results)[0].Result[0], nil
}

// GetConversation retrieves a conversation by ID. Returns ErrNotFound if absent.
func (c *Client) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	results, err := surrealdb.Query[[]models.Conversation](ctx, c.db, `
		SELECT * FROM type::record("conversation", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("get conversation %q: %w", id, ErrNotFound)
	}
	return &(*results)[0].Result[0], nil
}

// ListConversations returns a user's conversations, most recently updated first.
func (c *Client) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	results, err := surrealdb.Query[[]models.Conversation](ctx, c.db, `
		SELECT * FROM conversation
		WHERE user = type::record("user", $user)
		ORDER BY updated_at DESC
	`, map[string]any{"user": userID})
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Conversation{}, nil
	}
	return (*results)[0].Result, nil
}

// TouchConversation bumps a conversation's updated_at to now.
func (c *Client) TouchConversation(ctx context.Context, id string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("conversation", $id) SET updated_at = time::now()
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

// SetConversationTitle sets the title if it is still empty. Titles are
// generated once, after the first completed turn.
func (c *Client) SetConversationTitle(ctx context.Context, id, title string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("conversation", $id)
		SET title = $title
		WHERE title = ""
	`, map[string]any{"id": id, "title": title})
	if err != nil {
		return fmt.Errorf("set conversation title: %w", err)
	}
	return nil
}

// DeleteConversation removes a conversation and all of its messages.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		DELETE message WHERE conversation = type::record("conversation", $id);
		DELETE type::record("conversation", $id);
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("delete conversation: %w", wrapQueryError(err))
	}
	return nil
}
