package kanban

import (
	"context"
	"sync"

	"github.com/CrowderSoup/begtask/database"
)

// Registry hands out one Controller per board.
type Registry struct {
	store    Store
	notifier Notifier
	publish  Publisher
	pending  sync.WaitGroup

	mu     sync.Mutex
	boards map[string]*Controller
}

func NewRegistry(store Store, notifier Notifier, publish Publisher) *Registry {
	return &Registry{
		store:    store,
		notifier: notifier,
		publish:  publish,
		boards:   make(map[string]*Controller),
	}
}

// Controller returns the controller of a board, creating it if needed.
func (r *Registry) Controller(boardID string) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.boards[boardID]
	if !ok {
		c = NewController(boardID, r.store, r.notifier, r.publish)
		c.pending = &r.pending
		r.boards[boardID] = c
	}
	return c
}

func (r *Registry) Apply(ctx context.Context, boardID string, g Gesture) (*Result, error) {
	return r.Controller(boardID).Apply(ctx, g)
}

func (r *Registry) Snapshot(ctx context.Context, boardID string) (*database.KanbanData, error) {
	return r.Controller(boardID).Snapshot(ctx)
}

// Refresh reloads a board after a change made outside the protocol (create,
// edit, delete) and publishes the result.
func (r *Registry) Refresh(ctx context.Context, boardID string) (*database.KanbanData, error) {
	return r.Controller(boardID).Reload(ctx)
}

// Forget drops the controller of a deleted board.
func (r *Registry) Forget(boardID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.boards, boardID)
}

// Wait blocks until all in-flight notifications have finished.
func (r *Registry) Wait() {
	r.pending.Wait()
}
