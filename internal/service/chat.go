package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/avanlaar/glimmer/internal/catalog"
	"github.com/avanlaar/glimmer/internal/models"
	"github.com/avanlaar/glimmer/internal/worker"
)

// maxMessageLen bounds a single user message.
const maxMessageLen = 4000

// ConversationStore is the slice of the persistent store the chat service
// uses. *db.Client implements it.
type ConversationStore interface {
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	CreateConversation(ctx context.Context, id, userID, modelID string) (*models.Conversation, error)
	AppendMessage(ctx context.Context, id, conversationID, role, content string) (*models.Message, error)
}

// ChatService handles one user-message turn end to end: synchronous
// validation and pre-flight, then a dispatched streaming worker.
type ChatService struct {
	store      ConversationStore
	catalog    *catalog.Catalog
	generator  *worker.GenerationWorker
	dispatcher *worker.Dispatcher
	logger     *slog.Logger
}

// NewChatService wires a chat service.
func NewChatService(store ConversationStore, cat *catalog.Catalog, generator *worker.GenerationWorker, dispatcher *worker.Dispatcher, logger *slog.Logger) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		store:      store,
		catalog:    cat,
		generator:  generator,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// TurnResult reports the synchronous outcome of SendMessage. The assistant
// message streams in the background; its terminal status appears on the row.
type TurnResult struct {
	ConversationID string
	UserMessageID  string
	ReplyMessageID string
}

// SendMessage validates and persists a user message, reserves credits,
// creates the streaming placeholder and dispatches the generation worker.
// conversationID may be empty to start a new conversation with modelID.
// Validation and reservation failures propagate synchronously; failures
// after dispatch surface only on the message row.
func (s *ChatService) SendMessage(ctx context.Context, userID, conversationID, text, modelID string) (*TurnResult, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("message is empty: %w", ErrInvalidInput)
	}
	if len(text) > maxMessageLen {
		return nil, fmt.Errorf("message exceeds %d characters: %w", maxMessageLen, ErrInvalidInput)
	}

	conv, err := s.resolveConversation(ctx, userID, conversationID, modelID)
	if err != nil {
		return nil, err
	}
	convID := models.MustRecordIDString(conv.ID)

	model, err := s.catalog.Get(conv.Model)
	if err != nil {
		return nil, err
	}

	userMsg, err := s.store.AppendMessage(ctx, uuid.New().String(), convID, models.RoleUser, text)
	if err != nil {
		return nil, fmt.Errorf("append user message: %w", err)
	}

	turn, err := s.generator.Prepare(ctx, worker.TurnRequest{
		UserID:         userID,
		ConversationID: convID,
		Model:          model,
		WantTitle:      conv.Title == "",
	})
	if err != nil {
		return nil, err
	}

	s.dispatcher.Dispatch("generation", func(ctx context.Context) {
		s.generator.Run(ctx, turn)
	})

	s.logger.Info("turn dispatched",
		"user_id", userID, "conversation_id", convID, "model", model.ID)

	return &TurnResult{
		ConversationID: convID,
		UserMessageID:  models.MustRecordIDString(userMsg.ID),
		ReplyMessageID: turn.MessageID(),
	}, nil
}

// resolveConversation loads an existing conversation (checking ownership) or
// creates a new one on first message.
func (s *ChatService) resolveConversation(ctx context.Context, userID, conversationID, modelID string) (*models.Conversation, error) {
	if conversationID == "" {
		if _, err := s.catalog.Get(modelID); err != nil {
			return nil, err
		}
		conv, err := s.store.CreateConversation(ctx, uuid.New().String(), userID, modelID)
		if err != nil {
			return nil, fmt.Errorf("create conversation: %w", err)
		}
		return conv, nil
	}

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if owner, err := models.RecordIDString(conv.User); err != nil || owner != userID {
		return nil, fmt.Errorf("conversation %q does not belong to user %q: %w", conversationID, userID, ErrNotOwner)
	}
	return conv, nil
}
