package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/avanlaar/glimmer/internal/catalog"
	"github.com/avanlaar/glimmer/internal/inference"
	"github.com/avanlaar/glimmer/internal/ledger"
	"github.com/avanlaar/glimmer/internal/metrics"
	"github.com/avanlaar/glimmer/internal/models"
	"github.com/avanlaar/glimmer/internal/sse"
	"github.com/avanlaar/glimmer/internal/tokens"
)

// Flush policy: partial content is persisted whenever either threshold is
// hit, bounding both write amplification and perceived latency.
const (
	defaultFlushInterval = 500 * time.Millisecond
	defaultFlushTokens   = 50
)

// attemptState makes the retry-once contract explicit: a stream error on the
// first attempt moves to attemptRetry, a second error to attemptExhausted.
type attemptState int

const (
	attemptFirst attemptState = iota
	attemptRetry
	attemptExhausted
)

// MessageStore is the slice of the persistent store the generation worker
// writes through. *db.Client implements it.
type MessageStore interface {
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	CreateStreamingMessage(ctx context.Context, id, conversationID string) (*models.Message, error)
	UpdateMessageContent(ctx context.Context, id, content string) error
	CompleteMessage(ctx context.Context, id, content string, tokenCount int) error
	FailMessage(ctx context.Context, id, errorText string) error
	TouchConversation(ctx context.Context, id string) error
	SetConversationTitle(ctx context.Context, id, title string) error
}

// Streamer opens streaming completion calls. *inference.Client implements it.
type Streamer interface {
	StreamChat(ctx context.Context, model string, messages []inference.Message, maxTokens int) (*sse.Decoder, error)
}

// Titler generates conversation titles. Optional.
type Titler interface {
	Title(ctx context.Context, firstMessage string) (string, error)
}

// GenerationWorker drives one user-message turn: reserve credits, stream the
// completion, persist partials, retry once, reconcile cost.
type GenerationWorker struct {
	store   MessageStore
	ledger  *ledger.Ledger
	stream  Streamer
	titler  Titler
	metrics *metrics.Collector
	logger  *slog.Logger

	flushInterval time.Duration
	flushTokens   int
}

// NewGenerationWorker wires a generation worker. titler and collector may be
// nil.
func NewGenerationWorker(store MessageStore, l *ledger.Ledger, stream Streamer, titler Titler, collector *metrics.Collector, logger *slog.Logger) *GenerationWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &GenerationWorker{
		store:         store,
		ledger:        l,
		stream:        stream,
		titler:        titler,
		metrics:       collector,
		logger:        logger,
		flushInterval: defaultFlushInterval,
		flushTokens:   defaultFlushTokens,
	}
}

// TurnRequest describes one turn to prepare.
type TurnRequest struct {
	UserID         string
	ConversationID string
	Model          catalog.Model

	// WantTitle requests best-effort title generation after the turn
	// completes (set when the conversation is still untitled).
	WantTitle bool
}

// Turn is a prepared turn: credits are reserved and the placeholder message
// exists. The reservation lives only here; Run resolves it on every path.
type Turn struct {
	req          TurnRequest
	messageID    string
	context      []inference.Message
	firstUserMsg string
	reservation  *ledger.Reservation
}

// MessageID returns the placeholder assistant message's ID.
func (t *Turn) MessageID() string { return t.messageID }

// Prepare runs the synchronous pre-flight of a turn: assemble the context
// window, reserve the estimated cost, create the streaming placeholder.
// Failures here propagate to the caller; nothing is dispatched and, on a
// failed placeholder insert, the reservation is rolled back.
func (w *GenerationWorker) Prepare(ctx context.Context, req TurnRequest) (*Turn, error) {
	history, err := w.store.ListMessages(ctx, req.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("prepare turn: %w", err)
	}

	window, firstUserMsg := buildContextWindow(history, req.Model.ContextTokens)
	if len(window) == 0 {
		return nil, fmt.Errorf("prepare turn: conversation %q has no usable messages", req.ConversationID)
	}

	estimated := tokens.Cost(req.Model.MaxTokens, req.Model.RatePerBlock)
	res, err := w.ledger.Reserve(ctx, req.UserID, estimated)
	if err != nil {
		return nil, err
	}

	messageID := uuid.New().String()
	if _, err := w.store.CreateStreamingMessage(ctx, messageID, req.ConversationID); err != nil {
		if relErr := w.ledger.Release(ctx, res, res.Amount()); relErr != nil {
			w.logger.Error("failed to roll back reservation",
				"user_id", req.UserID, "error", relErr)
		}
		return nil, err
	}

	return &Turn{
		req:          req,
		messageID:    messageID,
		context:      window,
		firstUserMsg: firstUserMsg,
		reservation:  res,
	}, nil
}

// buildContextWindow selects the maximal trailing run of completed messages
// whose summed estimated token count fits the budget, preserving
// chronological order (oldest messages drop first). Also returns the first
// user message for title generation.
func buildContextWindow(history []models.Message, budget int) ([]inference.Message, string) {
	var firstUserMsg string
	for _, m := range history {
		if m.Role == models.RoleUser && m.Status == models.MessageComplete {
			firstUserMsg = m.Content
			break
		}
	}

	usable := make([]models.Message, 0, len(history))
	for _, m := range history {
		if m.Status == models.MessageComplete {
			usable = append(usable, m)
		}
	}

	used := 0
	start := len(usable)
	for i := len(usable) - 1; i >= 0; i-- {
		cost := tokens.Estimate(usable[i].Content)
		if used+cost > budget {
			break
		}
		used += cost
		start = i
	}

	window := make([]inference.Message, 0, len(usable)-start)
	for _, m := range usable[start:] {
		window = append(window, inference.Message{Role: m.Role, Content: m.Content})
	}
	return window, firstUserMsg
}

// Run executes the asynchronous phase of a prepared turn. It never returns
// an error to its caller: outcomes are recorded on the owned message row.
// The reservation is resolved on every path, including panics.
func (w *GenerationWorker) Run(ctx context.Context, turn *Turn) {
	start := time.Now()
	resolved := false

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("generation worker panicked",
				"conversation_id", turn.req.ConversationID, "panic", r)
			if !resolved {
				w.failTurn(ctx, turn, fmt.Errorf("internal error: %v", r))
			}
		}
	}()

	state := attemptFirst
	var content string
	var usage *int

	for state != attemptExhausted {
		var err error
		content, usage, err = w.streamOnce(ctx, turn)
		if err == nil {
			break
		}

		switch state {
		case attemptFirst:
			state = attemptRetry
			w.logger.Warn("stream attempt failed, retrying once",
				"conversation_id", turn.req.ConversationID,
				"message_id", turn.messageID, "error", err)
		case attemptRetry:
			state = attemptExhausted
			w.failTurn(ctx, turn, err)
			resolved = true
			if w.metrics != nil {
				w.metrics.RecordFailure(metrics.OpGeneration, time.Since(start))
			}
			return
		}
	}

	// Finalize on success. Fall back to estimating from the final content
	// when the endpoint reported no usage.
	tokenCount := tokens.Estimate(content)
	if usage != nil {
		tokenCount = *usage
	}
	actual := tokens.Cost(tokenCount, turn.req.Model.RatePerBlock)

	if err := w.store.CompleteMessage(ctx, turn.messageID, content, tokenCount); err != nil {
		w.logger.Error("failed to persist completed message",
			"message_id", turn.messageID, "error", err)
	}
	if err := w.ledger.Reconcile(ctx, turn.reservation, turn.reservation.Amount(), actual); err != nil {
		w.logger.Error("failed to reconcile reservation",
			"message_id", turn.messageID, "error", err)
	}
	resolved = true

	if err := w.store.TouchConversation(ctx, turn.req.ConversationID); err != nil {
		w.logger.Warn("failed to touch conversation",
			"conversation_id", turn.req.ConversationID, "error", err)
	}

	if w.metrics != nil {
		w.metrics.RecordGeneration(time.Since(start), int64(tokenCount))
	}
	w.logger.Info("turn completed",
		"conversation_id", turn.req.ConversationID,
		"message_id", turn.messageID,
		"tokens", tokenCount,
		"reserved", turn.reservation.Amount(),
		"actual", actual)

	w.generateTitle(ctx, turn)
}

// streamOnce performs a single streaming attempt. The accumulator starts
// empty on every attempt so a retry never concatenates onto failed partial
// output.
func (w *GenerationWorker) streamOnce(ctx context.Context, turn *Turn) (string, *int, error) {
	decoder, err := w.stream.StreamChat(ctx, turn.req.Model.RemoteID, turn.context, turn.req.Model.MaxTokens)
	if err != nil {
		return "", nil, err
	}
	defer decoder.Close()

	var content string
	var usage *int
	flushedLen := 0
	lastFlush := time.Now()

	for {
		chunk, err := decoder.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", nil, err
		}

		content += chunk.Delta
		if chunk.Usage != nil {
			u := chunk.Usage.CompletionTokens
			usage = &u
		}

		if chunk.Delta != "" && w.shouldFlush(content, flushedLen, lastFlush) {
			if err := w.store.UpdateMessageContent(ctx, turn.messageID, content); err != nil {
				w.logger.Warn("partial flush failed",
					"message_id", turn.messageID, "error", err)
			} else {
				flushedLen = len(content)
				lastFlush = time.Now()
			}
		}
	}

	return content, usage, nil
}

// shouldFlush applies the interval-or-token-count policy to unflushed content.
func (w *GenerationWorker) shouldFlush(content string, flushedLen int, lastFlush time.Time) bool {
	if time.Since(lastFlush) >= w.flushInterval {
		return true
	}
	return tokens.Estimate(content[flushedLen:]) >= w.flushTokens
}

// failTurn releases the entire reservation and records the terminal error on
// the message row. Failures inside a dispatched worker are visible only
// through that row.
func (w *GenerationWorker) failTurn(ctx context.Context, turn *Turn, cause error) {
	if err := w.store.FailMessage(ctx, turn.messageID, fmt.Sprintf("generation failed: %v", cause)); err != nil {
		w.logger.Error("failed to persist message failure",
			"message_id", turn.messageID, "error", err)
	}
	if err := w.ledger.Release(ctx, turn.reservation, turn.reservation.Amount()); err != nil {
		w.logger.Error("failed to release reservation",
			"message_id", turn.messageID, "error", err)
	}
	w.logger.Error("turn failed",
		"conversation_id", turn.req.ConversationID,
		"message_id", turn.messageID, "error", cause)
}

// generateTitle best-effort titles an untitled conversation from its first
// user message. Never fails the turn.
func (w *GenerationWorker) generateTitle(ctx context.Context, turn *Turn) {
	if w.titler == nil || !turn.req.WantTitle || turn.firstUserMsg == "" {
		return
	}

	start := time.Now()
	title, err := w.titler.Title(ctx, turn.firstUserMsg)
	if err != nil {
		w.logger.Warn("title generation failed",
			"conversation_id", turn.req.ConversationID, "error", err)
		if w.metrics != nil {
			w.metrics.RecordFailure(metrics.OpTitle, time.Since(start))
		}
		return
	}
	if w.metrics != nil {
		w.metrics.RecordTiming(metrics.OpTitle, time.Since(start))
	}

	if err := w.store.SetConversationTitle(ctx, turn.req.ConversationID, title); err != nil {
		w.logger.Warn("failed to store conversation title",
			"conversation_id", turn.req.ConversationID, "error", err)
	}
}
