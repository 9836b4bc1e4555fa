package db

import (
	"context"
	"fmt"

	"github.com/avanlaar/glimmer/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// AppendMessage appends a complete, immutable message (user or system role)
// to a conversation.
func (c *Client) AppendMessage(ctx context.Context, id, conversationID, role, content string) (*models.Message, error) {
	results, err := surrealdb.Query[[]models.Message](ctx, c.db, `
		CREATE type::record("message", $id) CONTENT {
			conversation: type::record("conversation", $conversation),
			role: $role,
			content: $content,
			status: "complete"
		}
	`, map[string]any{
		"id":           id,
		"conversation": conversationID,
		"role":         role,
		"content":      content,
	})
	if err != nil {
		return nil, fmt.Errorf("append message: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("append message: empty result")
	}
	return &(*results)[0].Result[0], nil
}

// CreateStreamingMessage creates an empty assistant message in streaming
// status. The insert runs inside a transaction that throws when the
// conversation already has a streaming message, so at most one turn can
// stream per conversation. Returns ErrTurnInFlight in that case.
func (c *Client) CreateStreamingMessage(ctx context.Context, id, conversationID string) (*models.Message, error) {
	results, err := surrealdb.Query[[]models.Message](ctx, c.db, `
		BEGIN;
		LET $inflight = (
			SELECT count() FROM message
			WHERE conversation = type::record("conversation", $conversation)
			  AND status = "streaming"
			GROUP ALL
		);
		IF $inflight[0].count > 0 {
			THROW "turn_in_flight";
		};
		CREATE type::record("message", $id) CONTENT {
			conversation: type::record("conversation", $conversation),
			role: "assistant",
			content: "",
			status: "streaming"
		};
		COMMIT;
	`, map[string]any{"id": id, "conversation": conversationID})
	if err != nil {
		return nil, fmt.Errorf("create streaming message: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return nil, fmt.Errorf("create streaming message: empty result")
	}
	// The CREATE is the last statement in the transaction.
	last := (*results)[len(*results)-1].Result
	if len(last) == 0 {
		return nil, fmt.Errorf("create streaming message: empty result")
	}
	return &last[0], nil
}

// UpdateMessageContent replaces the content of a streaming message. Used for
// periodic flushes while deltas arrive.
func (c *Client) UpdateMessageContent(ctx context.Context, id, content string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("message", $id)
		SET content = $content
		WHERE status = "streaming"
	`, map[string]any{"id": id, "content": content})
	if err != nil {
		return fmt.Errorf("update message content: %w", err)
	}
	return nil
}

// CompleteMessage finalizes a message with its full content and token count.
func (c *Client) CompleteMessage(ctx context.Context, id, content string, tokenCount int) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("message", $id) SET
			content = $content,
			status = "complete",
			token_count = $tokens
	`, map[string]any{"id": id, "content": content, "tokens": tokenCount})
	if err != nil {
		return fmt.Errorf("complete message: %w", err)
	}
	return nil
}

// FailMessage marks a message as errored, replacing its content with a
// human-readable error string.
func (c *Client) FailMessage(ctx context.Context, id, errorText string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("message", $id) SET
			content = $content,
			status = "error"
	`, map[string]any{"id": id, "content": errorText})
	if err != nil {
		return fmt.Errorf("fail message: %w", err)
	}
	return nil
}

// GetMessage retrieves a message by ID. Returns ErrNotFound if absent.
func (c *Client) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	results, err := surrealdb.Query[[]models.Message](ctx, c.db, `
		SELECT * FROM type::record("message", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("get message %q: %w", id, ErrNotFound)
	}
	return &(*results)[0].Result[0], nil
}

// ListMessages returns a conversation's messages in creation order.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	results, err := surrealdb.Query[[]models.Message](ctx, c.db, `
		SELECT * FROM message
		WHERE conversation = type::record("conversation", $conversation)
		ORDER BY created_at ASC
	`, map[string]any{"conversation": conversationID})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Message{}, nil
	}
	return (*results)[0].Result, nil
}

// StreamingMessage returns the message currently streaming for a
// conversation, or nil when no turn is in flight. UI collaborators poll this
// for live updates.
func (c *Client) StreamingMessage(ctx context.Context, conversationID string) (*models.Message, error) {
	results, err := surrealdb.Query[[]models.Message](ctx, c.db, `
		SELECT * FROM message
		WHERE conversation = type::record("conversation", $conversation)
		  AND status = "streaming"
		LIMIT 1
	`, map[string]any{"conversation": conversationID})
	if err != nil {
		return nil, fmt.Errorf("streaming message: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}
