// Package sync provides the outbox drain engine that reconciles queued
// local mutations with the remote Telos API.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/telos-app/telos-offline/internal/db"
	apperrors "github.com/telos-app/telos-offline/internal/errors"
	"github.com/telos-app/telos-offline/internal/logging"
	"github.com/telos-app/telos-offline/internal/models"
	"github.com/telos-app/telos-offline/internal/remote"
)

// Status represents the engine's sync status.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusError   Status = "error"
)

// Result is the tally of one drain pass.
type Result struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// OnlineFunc reports the current connectivity belief. Used by Apply to
// decide between an immediate remote call and queueing.
type OnlineFunc func() bool

// errUnknownKind marks an outbox entry whose kind this version does not
// understand. Skipped at replay time: not a success, not a failure.
var errUnknownKind = errors.New("unknown action kind")

// Engine owns the sync status and drains the outbox against the remote API.
// Status is instance state with an explicit subscribe interface, so tests
// can run independent engines side by side.
type Engine struct {
	repo   *db.Repository
	api    remote.API
	online OnlineFunc

	mu      sync.Mutex
	status  Status
	subs    map[int]func(Status)
	nextSub int
}

// NewEngine creates a new Engine. online may be nil, in which case Apply
// always queues.
func NewEngine(repo *db.Repository, api remote.API, online OnlineFunc) *Engine {
	return &Engine{
		repo:   repo,
		api:    api,
		online: online,
		status: StatusIdle,
		subs:   make(map[int]func(Status)),
	}
}

// Status returns the current sync status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// SubscribeStatus registers a callback invoked synchronously on every status
// transition. Missed transitions are not replayed to late subscribers; query
// Status separately if needed. The returned function unsubscribes.
func (e *Engine) SubscribeStatus(fn func(Status)) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

// setStatus transitions the status and notifies subscribers outside the lock.
func (e *Engine) setStatus(s Status) {
	e.mu.Lock()
	e.status = s
	subs := make([]func(Status), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}

// beginDrain atomically claims the syncing state. Returns false when a drain
// is already in flight.
func (e *Engine) beginDrain() bool {
	e.mu.Lock()
	if e.status == StatusSyncing {
		e.mu.Unlock()
		return false
	}
	e.status = StatusSyncing
	subs := make([]func(Status), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()

	for _, fn := range subs {
		fn(StatusSyncing)
	}
	return true
}

// Drain replays every action currently in the outbox against the remote
// API, one call at a time, in creation order. Actions enqueued mid-drain
// are not part of this pass. A drain requested while one is running is a
// no-op returning a zero tally. Per-action failures are tallied, never
// raised; the terminal status is idle iff the failed count is zero.
func (e *Engine) Drain(ctx context.Context) Result {
	if !e.beginDrain() {
		return Result{}
	}

	var res Result

	actions, err := e.repo.ListActions()
	if err != nil {
		logging.ErrorWithCode("Failed to read outbox", string(apperrors.ErrSyncFailed), err)
		e.setStatus(StatusError)
		return res
	}

	for i, action := range actions {
		if ctx.Err() != nil {
			// Untried actions stay queued for the next pass.
			res.Failed += len(actions) - i
			break
		}

		err := e.replay(ctx, action)
		switch {
		case err == nil:
			if rmErr := e.repo.RemoveAction(string(action.ID)); rmErr != nil {
				logging.Error("Failed to remove replayed action", rmErr,
					map[string]interface{}{"action_id": string(action.ID)})
				res.Failed++
				continue
			}
			res.Succeeded++
		case errors.Is(err, errUnknownKind):
			// Forward-compatibility fallback: not counted either way.
			logging.Warn("Skipping pending action of unknown kind",
				map[string]interface{}{"action_id": string(action.ID), "kind": string(action.Kind)})
		default:
			logging.Warn("Pending action replay failed",
				map[string]interface{}{"action_id": string(action.ID), "kind": string(action.Kind), "error": err.Error()})
			res.Failed++
		}
	}

	if res.Failed == 0 {
		e.setStatus(StatusIdle)
	} else {
		e.setStatus(StatusError)
	}

	logging.Info("Outbox drain finished",
		map[string]interface{}{"succeeded": res.Succeeded, "failed": res.Failed})

	return res
}

// replay dispatches one outbox entry to the remote call its kind requires.
// The kind set is a closed union; every known kind is matched exhaustively.
func (e *Engine) replay(ctx context.Context, a *models.PendingAction) error {
	switch a.Kind {
	case models.ActionCreateHighlight:
		var p models.CreateHighlightPayload
		if err := json.Unmarshal(a.Payload, &p); err != nil {
			return apperrors.Wrap(apperrors.ErrInvalid, "malformed create-highlight payload", err)
		}
		return e.api.CreateHighlight(ctx, p)

	case models.ActionUpdateHighlight:
		var p models.UpdateHighlightPayload
		if err := json.Unmarshal(a.Payload, &p); err != nil {
			return apperrors.Wrap(apperrors.ErrInvalid, "malformed update-highlight payload", err)
		}
		return e.api.UpdateHighlight(ctx, p)

	case models.ActionDeleteHighlight:
		var p models.DeleteHighlightPayload
		if err := json.Unmarshal(a.Payload, &p); err != nil {
			return apperrors.Wrap(apperrors.ErrInvalid, "malformed delete-highlight payload", err)
		}
		return e.api.DeleteHighlight(ctx, p.HighlightID)

	case models.ActionMarkItemRead:
		var p models.MarkItemReadPayload
		if err := json.Unmarshal(a.Payload, &p); err != nil {
			return apperrors.Wrap(apperrors.ErrInvalid, "malformed mark-item-read payload", err)
		}
		return e.api.MarkItemRead(ctx, p.ItemID)

	default:
		return errUnknownKind
	}
}

// Apply performs a mutation immediately when the network is believed
// available, and queues it for later replay otherwise. A remote rejection is
// returned to the caller rather than queued: the server actively refused the
// mutation and a replay would refuse it again. A transport failure queues
// the action, since the call may simply not have reached the server.
func (e *Engine) Apply(ctx context.Context, kind models.ActionKind, payload json.RawMessage) (queued bool, err error) {
	if e.online == nil || !e.online() {
		if _, err := e.repo.EnqueueAction(kind, payload); err != nil {
			return false, err
		}
		return true, nil
	}

	a := &models.PendingAction{Kind: kind, Payload: payload}
	if err := e.replay(ctx, a); err != nil {
		if apperrors.Is(err, apperrors.ErrNetwork) {
			if _, qErr := e.repo.EnqueueAction(kind, payload); qErr != nil {
				return false, qErr
			}
			return true, nil
		}
		return false, err
	}
	return false, nil
}
