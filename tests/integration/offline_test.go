// Integration tests for the offline workflow: saving while disconnected,
// queueing mutations in the outbox, and draining it on reconnection.
package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telos-app/telos-offline/internal/db"
	"github.com/telos-app/telos-offline/internal/models"
	"github.com/telos-app/telos-offline/internal/offline"
	"github.com/telos-app/telos-offline/internal/remote"
	syncpkg "github.com/telos-app/telos-offline/internal/sync"
	"github.com/telos-app/telos-offline/internal/sync/netmon"
)

// fixture wires a real store, a real HTTP client, and a fake remote API
// server together the way the daemon does.
type fixture struct {
	repo    *db.Repository
	client  *remote.Client
	monitor *netmon.Monitor
	engine  *syncpkg.Engine
	saver   *offline.Saver

	server      *httptest.Server
	apiHits     atomic.Int64
	failPattern func(r *http.Request) bool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/items/", func(w http.ResponseWriter, r *http.Request) {
		f.apiHits.Add(1)
		if f.failPattern != nil && f.failPattern(r) {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		if r.Method == http.MethodPost { // extraction
			json.NewEncoder(w).Encode(models.CachedItem{
				ID:      "item-1",
				Type:    "article",
				URL:     "https://example.com/post",
				Title:   "Example",
				Content: "<p>full text</p>",
			})
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/highlights", func(w http.ResponseWriter, r *http.Request) {
		f.apiHits.Add(1)
		if f.failPattern != nil && f.failPattern(r) {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		if r.Method == http.MethodGet {
			json.NewEncoder(w).Encode([]models.CachedHighlight{})
			return
		}
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/api/highlights/", func(w http.ResponseWriter, r *http.Request) {
		f.apiHits.Add(1)
		if f.failPattern != nil && f.failPattern(r) {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)

	database, err := db.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.Migrate(database.DB))

	f.repo = db.NewRepository(database.DB)
	f.client = remote.NewClient(f.server.URL, "test-token")
	f.monitor = netmon.New(f.server.URL+"/api/health", 0)
	f.engine = syncpkg.NewEngine(f.repo, f.client, f.monitor.IsOnline)
	f.saver = offline.NewSaver(f.repo, f.client)
	return f
}

func (f *fixture) enqueueHighlight(t *testing.T, ref, text string) {
	t.Helper()
	payload, err := json.Marshal(models.CreateHighlightPayload{
		ClientRef: ref,
		ItemID:    "item-1",
		Text:      text,
	})
	require.NoError(t, err)

	queued, err := f.engine.Apply(context.Background(), models.ActionCreateHighlight, payload)
	require.NoError(t, err)
	require.True(t, queued, "an offline mutation must be queued")
}

// TestOfflineHighlightCreation covers the core offline promise: a highlight
// created while disconnected lands in the outbox and never touches the
// network.
func TestOfflineHighlightCreation(t *testing.T) {
	f := newFixture(t)
	f.monitor.SetOnline(false)

	before := f.apiHits.Load()
	f.enqueueHighlight(t, "ref-1", "saved while offline")

	actions, err := f.repo.ListActions()
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, models.ActionCreateHighlight, actions[0].Kind)

	var p models.CreateHighlightPayload
	require.NoError(t, json.Unmarshal(actions[0].Payload, &p))
	assert.Equal(t, "ref-1", p.ClientRef)
	assert.Equal(t, "saved while offline", p.Text)

	assert.Equal(t, before, f.apiHits.Load(), "offline apply must not reach the API")
	assert.Equal(t, syncpkg.StatusIdle, f.engine.Status())
}

// TestReconnectionDrainsOutbox covers the reconnection path: queued actions
// replay in creation order, a server failure retains its action, and the
// terminal status reflects the failure.
func TestReconnectionDrainsOutbox(t *testing.T) {
	f := newFixture(t)
	f.monitor.SetOnline(false)

	f.enqueueHighlight(t, "ref-1", "first")
	f.enqueueHighlight(t, "ref-2", "second")

	payload, err := json.Marshal(models.MarkItemReadPayload{ItemID: "item-1"})
	require.NoError(t, err)
	queued, err := f.engine.Apply(context.Background(), models.ActionMarkItemRead, payload)
	require.NoError(t, err)
	require.True(t, queued)

	// The item PATCH fails server-side; highlight creation succeeds.
	f.failPattern = func(r *http.Request) bool {
		return r.Method == http.MethodPatch
	}

	f.monitor.OnTransition(func() {
		f.engine.Drain(context.Background())
	}, nil)
	f.monitor.SetOnline(true)

	actions, err := f.repo.ListActions()
	require.NoError(t, err)
	require.Len(t, actions, 1, "only the failed action stays queued")
	assert.Equal(t, models.ActionMarkItemRead, actions[0].Kind)
	assert.Equal(t, syncpkg.StatusError, f.engine.Status())

	// The server recovers; the retained action drains on the next pass.
	f.failPattern = nil
	res := f.engine.Drain(context.Background())
	assert.Equal(t, syncpkg.Result{Succeeded: 1, Failed: 0}, res)
	assert.Equal(t, syncpkg.StatusIdle, f.engine.Status())

	actions, err = f.repo.ListActions()
	require.NoError(t, err)
	assert.Empty(t, actions)
}

// TestSaveThenReadOffline covers the offline save workflow end to end:
// extract online, then serve the item and its content from the local store
// with no network.
func TestSaveThenReadOffline(t *testing.T) {
	f := newFixture(t)

	res := f.saver.SaveForOffline(context.Background(), "item-1")
	require.Empty(t, res.Err)
	require.NotNil(t, res.Item)

	// Gone dark: everything must come from the store.
	f.server.Close()
	f.monitor.SetOnline(false)

	item, err := f.repo.GetItem("item-1")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "<p>full text</p>", item.Content)
	assert.NotZero(t, item.CachedAt)
}

// TestOnlineApplyBypassesOutbox verifies a mutation applied while online is
// sent straight to the API and never queued.
func TestOnlineApplyBypassesOutbox(t *testing.T) {
	f := newFixture(t)

	payload, err := json.Marshal(models.CreateHighlightPayload{
		ClientRef: "ref-1", ItemID: "item-1", Text: "direct",
	})
	require.NoError(t, err)

	queued, err := f.engine.Apply(context.Background(), models.ActionCreateHighlight, payload)
	require.NoError(t, err)
	assert.False(t, queued)

	actions, err := f.repo.ListActions()
	require.NoError(t, err)
	assert.Empty(t, actions)
}
