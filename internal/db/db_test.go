// Package db provides integration tests for SurrealDB operations.
package db

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/avanlaar/glimmer/internal/models"
)

var testDB *Client
var testContainer testcontainers.Container

// TestMain sets up and tears down the SurrealDB container for all tests.
// Run with -short to skip the container-backed suite entirely.
func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(0)
	}

	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := testDB.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

func newTestUser(t *testing.T, credits int) string {
	t.Helper()
	id := uuid.New().String()
	if _, err := testDB.CreateUser(context.Background(), id, "test-user", credits); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return id
}

func newTestConversation(t *testing.T, userID string) string {
	t.Helper()
	id := uuid.New().String()
	if _, err := testDB.CreateConversation(context.Background(), id, userID, "swift"); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	return id
}

// =============================================================================
// USER / CREDIT TESTS
// =============================================================================

func TestCreateAndGetUser(t *testing.T) {
	ctx := context.Background()
	id := newTestUser(t, 1000)

	user, err := testDB.GetUser(ctx, id)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user.Credits != 1000 {
		t.Errorf("Expected 1000 credits, got %d", user.Credits)
	}
	if user.Name != "test-user" {
		t.Errorf("Expected name 'test-user', got %q", user.Name)
	}
}

func TestGetUserNotFound(t *testing.T) {
	_, err := testDB.GetUser(context.Background(), uuid.New().String())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestDebitCredits(t *testing.T) {
	ctx := context.Background()
	id := newTestUser(t, 100)

	balance, ok, err := testDB.DebitCredits(ctx, id, 30)
	if err != nil {
		t.Fatalf("DebitCredits failed: %v", err)
	}
	if !ok {
		t.Fatal("Expected debit to succeed")
	}
	if balance != 70 {
		t.Errorf("Expected balance 70, got %d", balance)
	}
}

func TestDebitCreditsInsufficient(t *testing.T) {
	ctx := context.Background()
	id := newTestUser(t, 10)

	_, ok, err := testDB.DebitCredits(ctx, id, 50)
	if err != nil {
		t.Fatalf("DebitCredits failed: %v", err)
	}
	if ok {
		t.Fatal("Expected debit to be refused")
	}

	// Balance untouched by the refused debit
	user, err := testDB.GetUser(ctx, id)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user.Credits != 10 {
		t.Errorf("Expected balance 10, got %d", user.Credits)
	}
}

func TestDebitCreditsMissingUser(t *testing.T) {
	_, _, err := testDB.DebitCredits(context.Background(), uuid.New().String(), 10)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCreditCredits(t *testing.T) {
	ctx := context.Background()
	id := newTestUser(t, 950)

	balance, err := testDB.CreditCredits(ctx, id, 50)
	if err != nil {
		t.Fatalf("CreditCredits failed: %v", err)
	}
	if balance != 1000 {
		t.Errorf("Expected balance 1000, got %d", balance)
	}
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestConversationLifecycle(t *testing.T) {
	ctx := context.Background()
	userID := newTestUser(t, 100)
	convID := newTestConversation(t, userID)

	conv, err := testDB.GetConversation(ctx, convID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if conv.Model != "swift" {
		t.Errorf("Expected model 'swift', got %q", conv.Model)
	}
	if conv.Title != "" {
		t.Errorf("Expected empty title, got %q", conv.Title)
	}

	convs, err := testDB.ListConversations(ctx, userID)
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("Expected 1 conversation, got %d", len(convs))
	}

	if err := testDB.DeleteConversation(ctx, convID); err != nil {
		t.Fatalf("DeleteConversation failed: %v", err)
	}
	if _, err := testDB.GetConversation(ctx, convID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestSetConversationTitleOnlyWhenEmpty(t *testing.T) {
	ctx := context.Background()
	userID := newTestUser(t, 100)
	convID := newTestConversation(t, userID)

	if err := testDB.SetConversationTitle(ctx, convID, "First Title"); err != nil {
		t.Fatalf("SetConversationTitle failed: %v", err)
	}
	if err := testDB.SetConversationTitle(ctx, convID, "Second Title"); err != nil {
		t.Fatalf("SetConversationTitle failed: %v", err)
	}

	conv, err := testDB.GetConversation(ctx, convID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if conv.Title != "First Title" {
		t.Errorf("Expected title to stay 'First Title', got %q", conv.Title)
	}
}

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestMessageTurnLifecycle(t *testing.T) {
	ctx := context.Background()
	userID := newTestUser(t, 100)
	convID := newTestConversation(t, userID)

	if _, err := testDB.AppendMessage(ctx, uuid.New().String(), convID, models.RoleUser, "hello"); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	msgID := uuid.New().String()
	if _, err := testDB.CreateStreamingMessage(ctx, msgID, convID); err != nil {
		t.Fatalf("CreateStreamingMessage failed: %v", err)
	}

	streaming, err := testDB.StreamingMessage(ctx, convID)
	if err != nil {
		t.Fatalf("StreamingMessage failed: %v", err)
	}
	if streaming == nil {
		t.Fatal("Expected a streaming message")
	}

	if err := testDB.UpdateMessageContent(ctx, msgID, "partial"); err != nil {
		t.Fatalf("UpdateMessageContent failed: %v", err)
	}
	if err := testDB.CompleteMessage(ctx, msgID, "final text", 42); err != nil {
		t.Fatalf("CompleteMessage failed: %v", err)
	}

	msg, err := testDB.GetMessage(ctx, msgID)
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if msg.Status != models.MessageComplete {
		t.Errorf("Expected status complete, got %q", msg.Status)
	}
	if msg.Content != "final text" {
		t.Errorf("Expected final content, got %q", msg.Content)
	}
	if msg.TokenCount == nil || *msg.TokenCount != 42 {
		t.Errorf("Expected token count 42, got %v", msg.TokenCount)
	}

	// Content is frozen after the terminal state
	if err := testDB.UpdateMessageContent(ctx, msgID, "late write"); err != nil {
		t.Fatalf("UpdateMessageContent failed: %v", err)
	}
	msg, _ = testDB.GetMessage(ctx, msgID)
	if msg.Content != "final text" {
		t.Errorf("Expected content to stay frozen, got %q", msg.Content)
	}

	msgs, err := testDB.ListMessages(ctx, convID)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != models.RoleUser {
		t.Errorf("Expected user message first, got %q", msgs[0].Role)
	}
}

func TestSecondStreamingMessageRejected(t *testing.T) {
	ctx := context.Background()
	userID := newTestUser(t, 100)
	convID := newTestConversation(t, userID)

	if _, err := testDB.CreateStreamingMessage(ctx, uuid.New().String(), convID); err != nil {
		t.Fatalf("CreateStreamingMessage failed: %v", err)
	}

	_, err := testDB.CreateStreamingMessage(ctx, uuid.New().String(), convID)
	if !errors.Is(err, ErrTurnInFlight) {
		t.Errorf("Expected ErrTurnInFlight, got %v", err)
	}
}

func TestFailMessage(t *testing.T) {
	ctx := context.Background()
	userID := newTestUser(t, 100)
	convID := newTestConversation(t, userID)

	msgID := uuid.New().String()
	if _, err := testDB.CreateStreamingMessage(ctx, msgID, convID); err != nil {
		t.Fatalf("CreateStreamingMessage failed: %v", err)
	}
	if err := testDB.FailMessage(ctx, msgID, "generation failed: boom"); err != nil {
		t.Fatalf("FailMessage failed: %v", err)
	}

	msg, err := testDB.GetMessage(ctx, msgID)
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if msg.Status != models.MessageError {
		t.Errorf("Expected status error, got %q", msg.Status)
	}

	// A failed turn no longer blocks the next one
	if _, err := testDB.CreateStreamingMessage(ctx, uuid.New().String(), convID); err != nil {
		t.Errorf("Expected next turn to be accepted, got %v", err)
	}
}

func TestDeleteConversationCascadesMessages(t *testing.T) {
	ctx := context.Background()
	userID := newTestUser(t, 100)
	convID := newTestConversation(t, userID)

	msg, err := testDB.AppendMessage(ctx, uuid.New().String(), convID, models.RoleUser, "hello")
	if err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	if err := testDB.DeleteConversation(ctx, convID); err != nil {
		t.Fatalf("DeleteConversation failed: %v", err)
	}

	if _, err := testDB.GetMessage(ctx, models.MustRecordIDString(msg.ID)); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected message deleted with conversation, got %v", err)
	}
}

// =============================================================================
// IMAGE JOB TESTS
// =============================================================================

func TestImageJobLifecycle(t *testing.T) {
	ctx := context.Background()
	userID := newTestUser(t, 100)

	jobID := uuid.New().String()
	job, err := testDB.CreateImageJob(ctx, jobID, userID, "a red fox", "512", 50, nil)
	if err != nil {
		t.Fatalf("CreateImageJob failed: %v", err)
	}
	if job.Status != models.JobPending {
		t.Errorf("Expected status pending, got %q", job.Status)
	}
	if job.Cost != 50 {
		t.Errorf("Expected cost 50, got %d", job.Cost)
	}

	if err := testDB.MarkImageJobProcessing(ctx, jobID); err != nil {
		t.Fatalf("MarkImageJobProcessing failed: %v", err)
	}
	if err := testDB.CompleteImageJob(ctx, jobID, "asset-1.png"); err != nil {
		t.Fatalf("CompleteImageJob failed: %v", err)
	}

	job, err = testDB.GetImageJob(ctx, jobID)
	if err != nil {
		t.Fatalf("GetImageJob failed: %v", err)
	}
	if job.Status != models.JobCompleted {
		t.Errorf("Expected status completed, got %q", job.Status)
	}
	if job.AssetRef == nil || *job.AssetRef != "asset-1.png" {
		t.Errorf("Expected asset ref 'asset-1.png', got %v", job.AssetRef)
	}
	if job.CompletedAt == nil {
		t.Error("Expected completed_at to be set")
	}
}

func TestFailImageJob(t *testing.T) {
	ctx := context.Background()
	userID := newTestUser(t, 100)

	jobID := uuid.New().String()
	if _, err := testDB.CreateImageJob(ctx, jobID, userID, "a fox", "768", 75, nil); err != nil {
		t.Fatalf("CreateImageJob failed: %v", err)
	}
	if err := testDB.FailImageJob(ctx, jobID, "no output within budget"); err != nil {
		t.Fatalf("FailImageJob failed: %v", err)
	}

	job, err := testDB.GetImageJob(ctx, jobID)
	if err != nil {
		t.Fatalf("GetImageJob failed: %v", err)
	}
	if job.Status != models.JobFailed {
		t.Errorf("Expected status failed, got %q", job.Status)
	}
	if job.Error == nil || *job.Error != "no output within budget" {
		t.Errorf("Expected error text, got %v", job.Error)
	}
}

func TestImageJobWithConversation(t *testing.T) {
	ctx := context.Background()
	userID := newTestUser(t, 100)
	convID := newTestConversation(t, userID)

	job, err := testDB.CreateImageJob(ctx, uuid.New().String(), userID, "a fox", "1024", 100, &convID)
	if err != nil {
		t.Fatalf("CreateImageJob failed: %v", err)
	}
	if job.Conversation == nil {
		t.Fatal("Expected conversation link on job")
	}
	if got := models.MustRecordIDString(*job.Conversation); got != convID {
		t.Errorf("Expected conversation %q, got %q", convID, got)
	}

	jobs, err := testDB.ListImageJobs(ctx, userID)
	if err != nil {
		t.Fatalf("ListImageJobs failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("Expected 1 job, got %d", len(jobs))
	}
}
