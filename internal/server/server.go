// Package server exposes the HTTP API: chat turns, image jobs and the read
// surface that UI collaborators poll.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/avanlaar/glimmer/internal/catalog"
	"github.com/avanlaar/glimmer/internal/metrics"
	"github.com/avanlaar/glimmer/internal/models"
	"github.com/avanlaar/glimmer/internal/service"
)

// Store is the read surface the HTTP handlers need. *db.Client implements it.
type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]models.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	StreamingMessage(ctx context.Context, conversationID string) (*models.Message, error)
	DeleteConversation(ctx context.Context, id string) error
}

// AssetLoader serves stored render outputs. *assets.Store implements it.
type AssetLoader interface {
	Load(ref string) ([]byte, error)
}

// Deps carries the server's collaborators.
type Deps struct {
	Store   Store
	Chat    *service.ChatService
	Images  *service.ImageService
	Assets  AssetLoader
	Catalog *catalog.Catalog
	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// Server wraps echo with route registration and lifecycle management.
type Server struct {
	echo *echo.Echo
	deps Deps
}

// New builds the server and registers all routes.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(RequestLogger(deps.Logger))

	s := &Server{echo: e, deps: deps}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)

	v1 := s.echo.Group("/v1")

	v1.GET("/models", s.handleListModels)
	v1.GET("/users/:id/balance", s.handleBalance)
	v1.GET("/stats", s.handleStats)

	v1.POST("/conversations", s.handleStartConversation)
	v1.GET("/conversations", s.handleListConversations)
	v1.POST("/conversations/:id/messages", s.handleSendMessage)
	v1.GET("/conversations/:id/messages", s.handleListMessages)
	v1.GET("/conversations/:id/live", s.handleLive)
	v1.DELETE("/conversations/:id", s.handleDeleteConversation)

	v1.POST("/images", s.handleCreateImage)
	v1.GET("/images", s.handleListImages)
	v1.GET("/images/:id", s.handleGetImage)
	v1.GET("/assets/:ref", s.handleAsset)
}

// Start blocks serving on addr until Shutdown or a listener error.
func (s *Server) Start(addr string) error {
	s.deps.Logger.Info("starting HTTP server", "addr", addr)
	err := s.echo.Start(addr)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router for httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}
