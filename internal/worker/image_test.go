package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avanlaar/glimmer/internal/assets"
	"github.com/avanlaar/glimmer/internal/ledger"
	"github.com/avanlaar/glimmer/internal/models"
	"github.com/avanlaar/glimmer/internal/render"
)

// memJobStore records job transitions in memory.
type memJobStore struct {
	mu       sync.Mutex
	status   map[string]string
	assetRef map[string]string
	errText  map[string]string
}

func newMemJobStore() *memJobStore {
	return &memJobStore{
		status:   make(map[string]string),
		assetRef: make(map[string]string),
		errText:  make(map[string]string),
	}
}

func (s *memJobStore) MarkImageJobProcessing(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[id] = models.JobProcessing
	return nil
}

func (s *memJobStore) CompleteImageJob(_ context.Context, id, assetRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[id] = models.JobCompleted
	s.assetRef[id] = assetRef
	return nil
}

func (s *memJobStore) FailImageJob(_ context.Context, id, errorText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[id] = models.JobFailed
	s.errText[id] = errorText
	return nil
}

func (s *memJobStore) get(id string) (status, assetRef, errText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status[id], s.assetRef[id], s.errText[id]
}

// fakeEngine is an httptest render engine with configurable readiness.
type fakeEngine struct {
	mu         sync.Mutex
	polls      int
	readyAfter int // number of not-ready polls before the output appears; -1 = never
	nodeErrors bool
	failView   bool
}

func (e *fakeEngine) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/prompt":
			resp := map[string]any{"prompt_id": "p-1"}
			if e.nodeErrors {
				resp["node_errors"] = map[string]any{"5": map[string]any{"message": "boom"}}
			}
			_ = json.NewEncoder(w).Encode(resp)

		case r.URL.Path == "/history/p-1":
			e.mu.Lock()
			e.polls++
			ready := e.readyAfter >= 0 && e.polls > e.readyAfter
			e.mu.Unlock()
			if !ready {
				http.NotFound(w, r)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"p-1": map[string]any{
					"outputs": map[string]any{
						render.NodeSave: map[string]any{
							"images": []map[string]string{
								{"filename": "out_0001.png", "subfolder": "", "type": "output"},
							},
						},
					},
				},
			})

		case r.URL.Path == "/view":
			if e.failView {
				http.Error(w, "gone", http.StatusInternalServerError)
				return
			}
			_, _ = w.Write([]byte("image-bytes"))

		default:
			t.Errorf("unexpected request: %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}
}

func newImageTestRig(t *testing.T, engine *fakeEngine, budget time.Duration) (*ImageJobWorker, *memJobStore, *ledger.MemoryStore, *ledger.Ledger) {
	t.Helper()
	srv := httptest.NewServer(engine.handler(t))
	t.Cleanup(srv.Close)

	store := newMemJobStore()
	balances := ledger.NewMemoryStore()
	balances.SetBalance("alice", 1000)
	l := ledger.New(balances, nil)

	saver, err := assets.NewStore(t.TempDir())
	require.NoError(t, err)

	w := NewImageJobWorker(store, l, render.NewClient(srv.URL), saver, nil, nil,
		5*time.Millisecond, budget)
	return w, store, balances, l
}

func TestImageJobHappyPath(t *testing.T) {
	w, store, balances, l := newImageTestRig(t, &fakeEngine{readyAfter: 2}, time.Second)

	ctx := context.Background()
	res, err := l.Reserve(ctx, "alice", 50)
	require.NoError(t, err)
	assert.Equal(t, 950, balances.Balance("alice"))

	w.Run(ctx, JobParams{JobID: "job1", UserID: "alice", Prompt: "sunset", Resolution: "512"}, res)

	status, assetRef, _ := store.get("job1")
	assert.Equal(t, models.JobCompleted, status)
	assert.NotEmpty(t, assetRef)
	assert.Equal(t, 950, balances.Balance("alice"), "completed job keeps its cost")
}

func TestImageJobTimeoutRefunds(t *testing.T) {
	// Engine never returns an output within the budget: job fails, credits
	// return to the starting balance.
	w, store, balances, l := newImageTestRig(t, &fakeEngine{readyAfter: -1}, 30*time.Millisecond)

	ctx := context.Background()
	res, err := l.Reserve(ctx, "alice", 50)
	require.NoError(t, err)
	assert.Equal(t, 950, balances.Balance("alice"))

	w.Run(ctx, JobParams{JobID: "job1", UserID: "alice", Prompt: "sunset", Resolution: "512"}, res)

	status, _, errText := store.get("job1")
	assert.Equal(t, models.JobFailed, status)
	assert.Contains(t, errText, "no output within")
	assert.Equal(t, 1000, balances.Balance("alice"))
}

func TestImageJobSubmissionFailureRefunds(t *testing.T) {
	w, store, balances, l := newImageTestRig(t, &fakeEngine{nodeErrors: true}, time.Second)

	ctx := context.Background()
	res, err := l.Reserve(ctx, "alice", 75)
	require.NoError(t, err)

	w.Run(ctx, JobParams{JobID: "job1", UserID: "alice", Prompt: "sunset", Resolution: "768"}, res)

	status, _, errText := store.get("job1")
	assert.Equal(t, models.JobFailed, status)
	assert.Contains(t, errText, "node errors")
	assert.Equal(t, 1000, balances.Balance("alice"))
}

func TestImageJobDownloadFailureRefunds(t *testing.T) {
	w, store, balances, l := newImageTestRig(t, &fakeEngine{readyAfter: 0, failView: true}, time.Second)

	ctx := context.Background()
	res, err := l.Reserve(ctx, "alice", 50)
	require.NoError(t, err)

	w.Run(ctx, JobParams{JobID: "job1", UserID: "alice", Prompt: "sunset", Resolution: "512"}, res)

	status, _, errText := store.get("job1")
	assert.Equal(t, models.JobFailed, status)
	assert.Contains(t, errText, "download")
	assert.Equal(t, 1000, balances.Balance("alice"))
}

func TestDispatcherContainsPanics(t *testing.T) {
	d := NewDispatcher(nil)
	d.Dispatch("bad", func(ctx context.Context) {
		panic("worker bug")
	})
	d.Wait() // must not deadlock or crash the test binary
}
