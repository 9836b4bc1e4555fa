package server

import (
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/avanlaar/glimmer/internal/assets"
	"github.com/avanlaar/glimmer/internal/catalog"
	"github.com/avanlaar/glimmer/internal/db"
	"github.com/avanlaar/glimmer/internal/ledger"
	"github.com/avanlaar/glimmer/internal/models"
	"github.com/avanlaar/glimmer/internal/service"
)

// jsonError maps domain sentinels to HTTP status codes. Unknown errors are
// opaque 500s; the cause goes to the log, not the client.
func jsonError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, catalog.ErrUnknownModel):
		status = http.StatusBadRequest
	case errors.Is(err, ledger.ErrInsufficientCredits):
		status = http.StatusPaymentRequired
	case errors.Is(err, db.ErrNotFound), errors.Is(err, assets.ErrNotFound), errors.Is(err, service.ErrNotOwner):
		status = http.StatusNotFound
	case errors.Is(err, db.ErrTurnInFlight):
		status = http.StatusConflict
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	return c.JSON(status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

type modelJSON struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	RatePerBlock int    `json:"rate_per_block"`
	MaxTokens    int    `json:"max_tokens"`
}

func (s *Server) handleListModels(c echo.Context) error {
	list := s.deps.Catalog.List()
	out := make([]modelJSON, 0, len(list))
	for _, m := range list {
		out = append(out, modelJSON{
			ID:           m.ID,
			Name:         m.Name,
			RatePerBlock: m.RatePerBlock,
			MaxTokens:    m.MaxTokens,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleBalance(c echo.Context) error {
	user, err := s.deps.Store.GetUser(c.Request().Context(), c.Param("id"))
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"user_id": models.MustRecordIDString(user.ID),
		"credits": user.Credits,
	})
}

func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Metrics.Snapshot())
}

type startConversationRequest struct {
	UserID string `json:"user_id"`
	Model  string `json:"model"`
	Text   string `json:"text"`
}

type turnJSON struct {
	ConversationID string `json:"conversation_id"`
	UserMessageID  string `json:"user_message_id"`
	ReplyMessageID string `json:"reply_message_id"`
}

// handleStartConversation begins a new conversation with its first message.
// The assistant reply streams in the background; the client follows it via
// the live endpoint or by polling messages.
func (s *Server) handleStartConversation(c echo.Context) error {
	var req startConversationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed request body"})
	}
	res, err := s.deps.Chat.SendMessage(c.Request().Context(), req.UserID, "", req.Text, req.Model)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusAccepted, turnJSON(*res))
}

type sendMessageRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

func (s *Server) handleSendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed request body"})
	}
	res, err := s.deps.Chat.SendMessage(c.Request().Context(), req.UserID, c.Param("id"), req.Text, "")
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusAccepted, turnJSON(*res))
}

type conversationJSON struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toConversationJSON(conv models.Conversation) conversationJSON {
	return conversationJSON{
		ID:        models.MustRecordIDString(conv.ID),
		Model:     conv.Model,
		Title:     conv.Title,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	}
}

func (s *Server) handleListConversations(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id is required"})
	}
	convs, err := s.deps.Store.ListConversations(c.Request().Context(), userID)
	if err != nil {
		return jsonError(c, err)
	}
	out := make([]conversationJSON, 0, len(convs))
	for _, conv := range convs {
		out = append(out, toConversationJSON(conv))
	}
	return c.JSON(http.StatusOK, out)
}

type messageJSON struct {
	ID         string    `json:"id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	Status     string    `json:"status"`
	TokenCount *int      `json:"token_count,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func toMessageJSON(m models.Message) messageJSON {
	return messageJSON{
		ID:         models.MustRecordIDString(m.ID),
		Role:       m.Role,
		Content:    m.Content,
		Status:     m.Status,
		TokenCount: m.TokenCount,
		CreatedAt:  m.CreatedAt,
	}
}

// ownedConversation loads a conversation and verifies the requesting user
// owns it.
func (s *Server) ownedConversation(c echo.Context, conversationID string) (*models.Conversation, error) {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return nil, service.ErrInvalidInput
	}
	conv, err := s.deps.Store.GetConversation(c.Request().Context(), conversationID)
	if err != nil {
		return nil, err
	}
	if owner, err := models.RecordIDString(conv.User); err != nil || owner != userID {
		return nil, service.ErrNotOwner
	}
	return conv, nil
}

func (s *Server) handleListMessages(c echo.Context) error {
	if _, err := s.ownedConversation(c, c.Param("id")); err != nil {
		return jsonError(c, err)
	}
	msgs, err := s.deps.Store.ListMessages(c.Request().Context(), c.Param("id"))
	if err != nil {
		return jsonError(c, err)
	}
	out := make([]messageJSON, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageJSON(m))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleDeleteConversation(c echo.Context) error {
	if _, err := s.ownedConversation(c, c.Param("id")); err != nil {
		return jsonError(c, err)
	}
	if err := s.deps.Store.DeleteConversation(c.Request().Context(), c.Param("id")); err != nil {
		return jsonError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type createImageRequest struct {
	UserID         string  `json:"user_id"`
	Prompt         string  `json:"prompt"`
	Resolution     string  `json:"resolution"`
	ConversationID *string `json:"conversation_id,omitempty"`
}

type jobJSON struct {
	ID          string     `json:"id"`
	Prompt      string     `json:"prompt"`
	Resolution  string     `json:"resolution"`
	Status      string     `json:"status"`
	Cost        int        `json:"cost"`
	AssetRef    *string    `json:"asset_ref,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func toJobJSON(job models.ImageJob) jobJSON {
	return jobJSON{
		ID:          models.MustRecordIDString(job.ID),
		Prompt:      job.Prompt,
		Resolution:  job.Resolution,
		Status:      job.Status,
		Cost:        job.Cost,
		AssetRef:    job.AssetRef,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
	}
}

func (s *Server) handleCreateImage(c echo.Context) error {
	var req createImageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed request body"})
	}
	job, err := s.deps.Images.CreateJob(c.Request().Context(), req.UserID, req.Prompt, req.Resolution, req.ConversationID)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusAccepted, toJobJSON(*job))
}

func (s *Server) handleListImages(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id is required"})
	}
	jobs, err := s.deps.Images.ListJobs(c.Request().Context(), userID)
	if err != nil {
		return jsonError(c, err)
	}
	out := make([]jobJSON, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobJSON(j))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetImage(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id is required"})
	}
	job, err := s.deps.Images.GetJob(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, toJobJSON(*job))
}

func (s *Server) handleAsset(c echo.Context) error {
	data, err := s.deps.Assets.Load(c.Param("ref"))
	if err != nil {
		return jsonError(c, err)
	}
	contentType := "application/octet-stream"
	switch filepath.Ext(c.Param("ref")) {
	case ".png":
		contentType = "image/png"
	case ".jpg", ".jpeg":
		contentType = "image/jpeg"
	case ".webp":
		contentType = "image/webp"
	}
	return c.Blob(http.StatusOK, contentType, data)
}
