package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/avanlaar/glimmer/internal/db"
	"github.com/avanlaar/glimmer/internal/ledger"
	"github.com/avanlaar/glimmer/internal/models"
	"github.com/avanlaar/glimmer/internal/render"
	"github.com/avanlaar/glimmer/internal/worker"
)

// memJobs backs both the image service and the render worker in tests.
type memJobs struct {
	mu         sync.Mutex
	jobs       map[string]*models.ImageJob
	failCreate bool
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: make(map[string]*models.ImageJob)}
}

func (s *memJobs) CreateImageJob(_ context.Context, id, userID, prompt, resolution string, cost int, conversationID *string) (*models.ImageJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate {
		return nil, errors.New("database unavailable")
	}
	job := &models.ImageJob{
		ID:         surrealmodels.RecordID{Table: "image_job", ID: id},
		User:       surrealmodels.RecordID{Table: "user", ID: userID},
		Prompt:     prompt,
		Resolution: resolution,
		Status:     models.JobPending,
		Cost:       cost,
		CreatedAt:  time.Now(),
	}
	s.jobs[id] = job
	cp := *job
	return &cp, nil
}

func (s *memJobs) GetImageJob(_ context.Context, id string) (*models.ImageJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *memJobs) ListImageJobs(_ context.Context, userID string) ([]models.ImageJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ImageJob
	for _, j := range s.jobs {
		if owner, _ := models.RecordIDString(j.User); owner == userID {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (s *memJobs) MarkImageJobProcessing(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok && j.Status == models.JobPending {
		j.Status = models.JobProcessing
	}
	return nil
}

func (s *memJobs) CompleteImageJob(_ context.Context, id, assetRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return db.ErrNotFound
	}
	j.Status = models.JobCompleted
	j.AssetRef = &assetRef
	now := time.Now()
	j.CompletedAt = &now
	return nil
}

func (s *memJobs) FailImageJob(_ context.Context, id, errorText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return db.ErrNotFound
	}
	j.Status = models.JobFailed
	j.Error = &errorText
	return nil
}

func (s *memJobs) job(id string) models.ImageJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

type fakeRenderEngine struct{}

func (f *fakeRenderEngine) Submit(_ context.Context, _ render.Workflow) (string, error) {
	return "prompt-1", nil
}

func (f *fakeRenderEngine) History(_ context.Context, _ string) (*render.ImageRef, error) {
	return &render.ImageRef{Filename: "out.png", Type: "output"}, nil
}

func (f *fakeRenderEngine) Download(_ context.Context, _ render.ImageRef) ([]byte, error) {
	return []byte("png-bytes"), nil
}

type fakeAssetSaver struct {
	mu   sync.Mutex
	refs []string
}

func (f *fakeAssetSaver) Save(data []byte, ext string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := "asset-1" + ext
	f.refs = append(f.refs, ref)
	return ref, nil
}

type imageRig struct {
	svc        *ImageService
	store      *memJobs
	balances   *ledger.MemoryStore
	dispatcher *worker.Dispatcher
}

func newImageRig(t *testing.T) *imageRig {
	t.Helper()

	store := newMemJobs()
	balances := ledger.NewMemoryStore()
	balances.SetBalance("alice", 1000)

	led := ledger.New(balances, nil)
	renderer := worker.NewImageJobWorker(store, led, &fakeRenderEngine{}, &fakeAssetSaver{}, nil, nil,
		time.Millisecond, 50*time.Millisecond)
	dispatcher := worker.NewDispatcher(nil)

	return &imageRig{
		svc:        NewImageService(store, led, renderer, dispatcher, nil),
		store:      store,
		balances:   balances,
		dispatcher: dispatcher,
	}
}

func TestCreateJobHappyPath(t *testing.T) {
	rig := newImageRig(t)

	job, err := rig.svc.CreateJob(context.Background(), "alice", "a red fox", "512", nil)
	require.NoError(t, err)
	assert.Equal(t, 50, job.Cost)
	assert.Equal(t, 1000-50, rig.balances.Balance("alice"), "flat cost debited up front")

	rig.dispatcher.Wait()

	done := rig.store.job(models.MustRecordIDString(job.ID))
	assert.Equal(t, models.JobCompleted, done.Status)
	require.NotNil(t, done.AssetRef)
	assert.Equal(t, "asset-1.png", *done.AssetRef)
	assert.Equal(t, 1000-50, rig.balances.Balance("alice"), "confirmed jobs keep their cost")
}

func TestCreateJobRejectsInvalidInputBeforeDeduction(t *testing.T) {
	rig := newImageRig(t)

	cases := map[string]struct {
		prompt     string
		resolution string
	}{
		"empty prompt":      {"", "512"},
		"whitespace prompt": {"  \n ", "512"},
		"oversized prompt":  {strings.Repeat("x", maxImagePromptLen+1), "512"},
		"bad resolution":    {"a fox", "640"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := rig.svc.CreateJob(context.Background(), "alice", tc.prompt, tc.resolution, nil)
			require.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	rig.dispatcher.Wait()
	assert.Equal(t, 1000, rig.balances.Balance("alice"), "validation precedes any deduction")
	assert.Empty(t, rig.store.jobs)
}

func TestCreateJobReleasesReservationWhenStoreFails(t *testing.T) {
	rig := newImageRig(t)
	rig.store.failCreate = true

	_, err := rig.svc.CreateJob(context.Background(), "alice", "a fox", "1024", nil)
	require.Error(t, err)

	rig.dispatcher.Wait()
	assert.Equal(t, 1000, rig.balances.Balance("alice"), "reservation released when the row cannot be written")
}

func TestCreateJobInsufficientCredits(t *testing.T) {
	rig := newImageRig(t)
	rig.balances.SetBalance("alice", 40) // 512 costs 50

	_, err := rig.svc.CreateJob(context.Background(), "alice", "a fox", "512", nil)
	require.ErrorIs(t, err, ledger.ErrInsufficientCredits)
	assert.Equal(t, 40, rig.balances.Balance("alice"))
}

func TestResolutionCosts(t *testing.T) {
	for res, want := range map[string]int{"512": 50, "768": 75, "1024": 100} {
		got, err := ResolutionCost(res)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ResolutionCost("2048")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestGetJobChecksOwnership(t *testing.T) {
	rig := newImageRig(t)

	job, err := rig.svc.CreateJob(context.Background(), "alice", "a fox", "512", nil)
	require.NoError(t, err)
	rig.dispatcher.Wait()

	jobID := models.MustRecordIDString(job.ID)
	got, err := rig.svc.GetJob(context.Background(), "alice", jobID)
	require.NoError(t, err)
	assert.Equal(t, jobID, models.MustRecordIDString(got.ID))

	_, err = rig.svc.GetJob(context.Background(), "bob", jobID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not belong")
}
