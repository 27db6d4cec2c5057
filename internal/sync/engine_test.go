package sync

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telos-app/telos-offline/internal/db"
	apperrors "github.com/telos-app/telos-offline/internal/errors"
	"github.com/telos-app/telos-offline/internal/models"
)

// fakeAPI records remote calls and fails or blocks on demand.
type fakeAPI struct {
	mu    sync.Mutex
	calls []string

	createErr error
	updateErr error
	deleteErr error
	markErr   error

	// createBlock, when non-nil, blocks CreateHighlight until closed.
	createBlock chan struct{}
}

func (f *fakeAPI) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeAPI) callNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) ExtractContent(ctx context.Context, itemID string) (*models.CachedItem, error) {
	f.record("extract")
	return &models.CachedItem{ID: models.UUID(itemID)}, nil
}

func (f *fakeAPI) ListHighlights(ctx context.Context, itemID string) ([]models.CachedHighlight, error) {
	f.record("list")
	return nil, nil
}

func (f *fakeAPI) CreateHighlight(ctx context.Context, p models.CreateHighlightPayload) error {
	if f.createBlock != nil {
		<-f.createBlock
	}
	f.record("create")
	return f.createErr
}

func (f *fakeAPI) UpdateHighlight(ctx context.Context, p models.UpdateHighlightPayload) error {
	f.record("update")
	return f.updateErr
}

func (f *fakeAPI) DeleteHighlight(ctx context.Context, highlightID string) error {
	f.record("delete")
	return f.deleteErr
}

func (f *fakeAPI) MarkItemRead(ctx context.Context, itemID string) error {
	f.record("mark")
	return f.markErr
}

func setupEngine(t *testing.T, api *fakeAPI, online OnlineFunc) (*Engine, *db.Repository) {
	t.Helper()

	database, err := db.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.Migrate(database.DB))

	repo := db.NewRepository(database.DB)
	return NewEngine(repo, api, online), repo
}

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func enqueueAll(t *testing.T, repo *db.Repository) {
	t.Helper()
	_, err := repo.EnqueueAction(models.ActionCreateHighlight,
		mustJSON(t, models.CreateHighlightPayload{ClientRef: "ref-1", ItemID: "item-1", Text: "hi"}))
	require.NoError(t, err)
	_, err = repo.EnqueueAction(models.ActionUpdateHighlight,
		mustJSON(t, models.UpdateHighlightPayload{HighlightID: "h-1"}))
	require.NoError(t, err)
	_, err = repo.EnqueueAction(models.ActionDeleteHighlight,
		mustJSON(t, models.DeleteHighlightPayload{HighlightID: "h-2"}))
	require.NoError(t, err)
	_, err = repo.EnqueueAction(models.ActionMarkItemRead,
		mustJSON(t, models.MarkItemReadPayload{ItemID: "item-1", Status: models.ItemStatusArchived}))
	require.NoError(t, err)
}

func TestDrainReplaysInCreationOrder(t *testing.T) {
	api := &fakeAPI{}
	engine, repo := setupEngine(t, api, nil)
	enqueueAll(t, repo)

	res := engine.Drain(context.Background())

	assert.Equal(t, Result{Succeeded: 4, Failed: 0}, res)
	assert.Equal(t, []string{"create", "update", "delete", "mark"}, api.callNames())
	assert.Equal(t, StatusIdle, engine.Status())

	actions, err := repo.ListActions()
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestDrainDoesNotReattemptReplayedActions(t *testing.T) {
	api := &fakeAPI{}
	engine, repo := setupEngine(t, api, nil)
	enqueueAll(t, repo)

	engine.Drain(context.Background())
	before := len(api.callNames())

	res := engine.Drain(context.Background())

	assert.Equal(t, Result{}, res)
	assert.Len(t, api.callNames(), before, "second drain must not re-attempt replayed actions")
}

func TestDrainFailureRetention(t *testing.T) {
	api := &fakeAPI{markErr: apperrors.New(apperrors.ErrRemoteRejected, "Failed to fetch URL: 500")}
	engine, repo := setupEngine(t, api, nil)
	enqueueAll(t, repo)

	res := engine.Drain(context.Background())

	assert.Equal(t, Result{Succeeded: 3, Failed: 1}, res)
	assert.Equal(t, StatusError, engine.Status())

	actions, err := repo.ListActions()
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, models.ActionMarkItemRead, actions[0].Kind)
}

func TestDrainNoDoubleDrain(t *testing.T) {
	api := &fakeAPI{createBlock: make(chan struct{})}
	engine, repo := setupEngine(t, api, nil)

	_, err := repo.EnqueueAction(models.ActionCreateHighlight,
		mustJSON(t, models.CreateHighlightPayload{ClientRef: "ref-1", ItemID: "item-1", Text: "hi"}))
	require.NoError(t, err)

	firstDone := make(chan Result, 1)
	go func() { firstDone <- engine.Drain(context.Background()) }()

	require.Eventually(t, func() bool {
		return engine.Status() == StatusSyncing
	}, time.Second, 5*time.Millisecond)

	second := engine.Drain(context.Background())
	assert.Equal(t, Result{}, second, "concurrent drain must be a no-op")

	close(api.createBlock)
	first := <-firstDone
	assert.Equal(t, Result{Succeeded: 1, Failed: 0}, first)
	assert.Equal(t, StatusIdle, engine.Status())
}

func TestDrainSnapshotExcludesMidDrainEnqueues(t *testing.T) {
	api := &fakeAPI{createBlock: make(chan struct{})}
	engine, repo := setupEngine(t, api, nil)

	_, err := repo.EnqueueAction(models.ActionCreateHighlight,
		mustJSON(t, models.CreateHighlightPayload{ClientRef: "ref-1", ItemID: "item-1", Text: "hi"}))
	require.NoError(t, err)

	done := make(chan Result, 1)
	go func() { done <- engine.Drain(context.Background()) }()

	require.Eventually(t, func() bool {
		return engine.Status() == StatusSyncing
	}, time.Second, 5*time.Millisecond)

	// Enqueued mid-drain: stays queued until the next trigger.
	_, err = repo.EnqueueAction(models.ActionMarkItemRead,
		mustJSON(t, models.MarkItemReadPayload{ItemID: "item-2"}))
	require.NoError(t, err)

	close(api.createBlock)
	res := <-done

	assert.Equal(t, Result{Succeeded: 1, Failed: 0}, res)

	actions, listErr := repo.ListActions()
	require.NoError(t, listErr)
	require.Len(t, actions, 1)
	assert.Equal(t, models.ActionMarkItemRead, actions[0].Kind)
}

func TestDrainStatusTransitions(t *testing.T) {
	api := &fakeAPI{}
	engine, repo := setupEngine(t, api, nil)
	enqueueAll(t, repo)

	var transitions []Status
	unsubscribe := engine.SubscribeStatus(func(s Status) {
		transitions = append(transitions, s)
	})
	defer unsubscribe()

	engine.Drain(context.Background())
	assert.Equal(t, []Status{StatusSyncing, StatusIdle}, transitions)

	api.markErr = apperrors.New(apperrors.ErrNetwork, "request failed")
	_, err := repo.EnqueueAction(models.ActionMarkItemRead,
		mustJSON(t, models.MarkItemReadPayload{ItemID: "item-1"}))
	require.NoError(t, err)

	transitions = nil
	engine.Drain(context.Background())
	assert.Equal(t, []Status{StatusSyncing, StatusError}, transitions)
}

func TestSubscribeUnsubscribe(t *testing.T) {
	api := &fakeAPI{}
	engine, repo := setupEngine(t, api, nil)
	enqueueAll(t, repo)

	calls := 0
	unsubscribe := engine.SubscribeStatus(func(Status) { calls++ })
	unsubscribe()

	engine.Drain(context.Background())
	assert.Zero(t, calls, "unsubscribed callback must not fire")
}

func TestDrainSkipsUnknownKind(t *testing.T) {
	api := &fakeAPI{}
	engine, repo := setupEngine(t, api, nil)

	_, err := repo.EnqueueAction(models.ActionKind("frobnicate"), json.RawMessage(`{}`))
	require.NoError(t, err)

	res := engine.Drain(context.Background())

	// Not a success, not a failure: skipped and retained.
	assert.Equal(t, Result{}, res)
	assert.Equal(t, StatusIdle, engine.Status())
	assert.Empty(t, api.callNames())

	actions, listErr := repo.ListActions()
	require.NoError(t, listErr)
	assert.Len(t, actions, 1)
}

func TestApplyQueuesWhenOffline(t *testing.T) {
	api := &fakeAPI{}
	engine, repo := setupEngine(t, api, func() bool { return false })

	queued, err := engine.Apply(context.Background(), models.ActionCreateHighlight,
		mustJSON(t, models.CreateHighlightPayload{ClientRef: "ref-1", ItemID: "item-1", Text: "hi"}))

	require.NoError(t, err)
	assert.True(t, queued)
	assert.Empty(t, api.callNames(), "no remote call may happen while offline")

	actions, listErr := repo.ListActions()
	require.NoError(t, listErr)
	assert.Len(t, actions, 1)
}

func TestApplyCallsRemoteWhenOnline(t *testing.T) {
	api := &fakeAPI{}
	engine, repo := setupEngine(t, api, func() bool { return true })

	queued, err := engine.Apply(context.Background(), models.ActionMarkItemRead,
		mustJSON(t, models.MarkItemReadPayload{ItemID: "item-1"}))

	require.NoError(t, err)
	assert.False(t, queued)
	assert.Equal(t, []string{"mark"}, api.callNames())

	actions, listErr := repo.ListActions()
	require.NoError(t, listErr)
	assert.Empty(t, actions)
}

func TestApplyQueuesOnNetworkError(t *testing.T) {
	api := &fakeAPI{markErr: apperrors.New(apperrors.ErrNetwork, "request failed")}
	engine, repo := setupEngine(t, api, func() bool { return true })

	queued, err := engine.Apply(context.Background(), models.ActionMarkItemRead,
		mustJSON(t, models.MarkItemReadPayload{ItemID: "item-1"}))

	require.NoError(t, err)
	assert.True(t, queued, "a transport failure queues the action")

	actions, listErr := repo.ListActions()
	require.NoError(t, listErr)
	assert.Len(t, actions, 1)
}

func TestApplySurfacesRemoteRejection(t *testing.T) {
	api := &fakeAPI{markErr: apperrors.New(apperrors.ErrRemoteRejected, "item not found")}
	engine, repo := setupEngine(t, api, func() bool { return true })

	queued, err := engine.Apply(context.Background(), models.ActionMarkItemRead,
		mustJSON(t, models.MarkItemReadPayload{ItemID: "item-1"}))

	require.Error(t, err)
	assert.False(t, queued)
	assert.True(t, apperrors.Is(err, apperrors.ErrRemoteRejected))

	actions, listErr := repo.ListActions()
	require.NoError(t, listErr)
	assert.Empty(t, actions, "a rejected mutation must not be queued for replay")
}
