package kanban

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/CrowderSoup/begtask/database"
)

const notifyTimeout = 30 * time.Second

// Store is the part of the data layer the protocol needs: a full board read
// and the single-row position writes.
type Store interface {
	LoadBoard(ctx context.Context, boardID string) (*database.KanbanData, error)
	UpdateColumnPosition(ctx context.Context, id string, position int) error
	UpdateTaskPosition(ctx context.Context, id string, position int) error
	MoveTask(ctx context.Context, id, columnID string, position int) error
}

// MoveEvent describes a task that changed columns.
type MoveEvent struct {
	BoardID string
	Task    database.Task
	From    database.Column
	To      database.Column
}

// Notifier is told about cross-column moves of tasks that have a responsible
// user. Errors are logged and never affect the move.
type Notifier interface {
	TaskMoved(ctx context.Context, ev MoveEvent) error
}

// EventType labels state pushed to a Publisher.
type EventType string

const (
	EventOptimistic EventType = "optimistic"
	EventReloaded   EventType = "reloaded"
	EventRefreshed  EventType = "refreshed"
)

// Publisher receives every new state of a board.
type Publisher func(boardID string, kind EventType, data *database.KanbanData)

// PersistError is returned when a write of a gesture failed. Snapshot holds
// the state reloaded from the store afterwards.
type PersistError struct {
	Err      error
	Applied  int
	Total    int
	Snapshot *database.KanbanData
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist gesture (%d of %d writes applied): %v", e.Applied, e.Total, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// Result is what a successful gesture produced.
type Result struct {
	Noop   bool                 `json:"noop"`
	Writes int                  `json:"writes"`
	Data   *database.KanbanData `json:"data,omitempty"`
}

// Controller owns the in-memory view of one board. Gestures on the same
// board are applied one at a time. The view is read from the store before
// every gesture, so writes made by other processes are never renumbered
// from a stale order.
type Controller struct {
	boardID  string
	store    Store
	notifier Notifier
	publish  Publisher
	pending  *sync.WaitGroup

	mu    sync.Mutex
	state *State
}

// NewController creates a controller; nothing is loaded until first use.
// notifier and publish may be nil.
func NewController(boardID string, store Store, notifier Notifier, publish Publisher) *Controller {
	return &Controller{
		boardID:  boardID,
		store:    store,
		notifier: notifier,
		publish:  publish,
		pending:  &sync.WaitGroup{},
	}
}

// Snapshot reads the board from the store. It waits for a gesture in flight
// on the same board to finish.
func (c *Controller) Snapshot(ctx context.Context) (*database.KanbanData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.reload(ctx); err != nil {
		c.state = nil
		return nil, err
	}
	return c.state.Data(), nil
}

// Reload discards the view and reads the board again.
func (c *Controller) Reload(ctx context.Context) (*database.KanbanData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.reload(ctx); err != nil {
		c.state = nil
		return nil, err
	}
	data := c.state.Data()
	c.emit(EventRefreshed, data)
	return data, nil
}

// Apply runs one gesture: the new order is applied to the view and published
// at once, then written to the store one row at a time. If any write fails
// the view is thrown away and reloaded from the store.
func (c *Controller) Apply(ctx context.Context, g Gesture) (*Result, error) {
	if g.Noop() {
		return &Result{Noop: true}, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.reload(ctx); err != nil {
		c.state = nil
		return nil, err
	}

	next, writes, move, err := c.plan(g)
	if err != nil {
		return nil, err
	}
	if len(writes) == 0 {
		return &Result{Noop: true, Data: c.state.Data()}, nil
	}

	c.state = next
	c.emit(EventOptimistic, next.Data())

	// A started write sequence runs to completion or failure.
	persistCtx := context.WithoutCancel(ctx)
	if applied, err := c.persist(persistCtx, writes); err != nil {
		log.Printf("Error persisting %s gesture on board %s (%d of %d writes applied): %v",
			g.Type, c.boardID, applied, len(writes), err)

		perr := &PersistError{Err: err, Applied: applied, Total: len(writes)}
		c.state = nil
		if rerr := c.reload(persistCtx); rerr != nil {
			return nil, errors.Join(perr, fmt.Errorf("reload board %s: %w", c.boardID, rerr))
		}
		perr.Snapshot = c.state.Data()
		c.emit(EventReloaded, perr.Snapshot)
		return nil, perr
	}

	if move != nil && move.Task.ResponsibleID != nil {
		c.notify(*move)
	}

	return &Result{Writes: len(writes), Data: c.state.Data()}, nil
}

// plan computes the next state and its writes without touching c.state.
func (c *Controller) plan(g Gesture) (*State, []Write, *MoveEvent, error) {
	next := c.state.Clone()
	src, dst := g.Source, *g.Destination

	switch g.Type {
	case ItemColumn:
		if !c.isBoard(src.ContainerID) || !c.isBoard(dst.ContainerID) {
			return nil, nil, nil, fmt.Errorf("%w: columns can only move inside board %s", ErrInvalidGesture, c.boardID)
		}
		columns, writes, err := ReorderColumns(next.Columns, src.Index, dst.Index)
		if err != nil {
			return nil, nil, nil, err
		}
		next.Columns = columns
		return next, writes, nil, nil

	case ItemTask:
		from, ok := next.Column(src.ContainerID)
		if !ok {
			return nil, nil, nil, fmt.Errorf("%w: unknown source column %q", ErrInvalidGesture, src.ContainerID)
		}
		if src.ContainerID == dst.ContainerID {
			tasks, writes, err := ReorderTasks(next.Tasks[from.ID], src.Index, dst.Index)
			if err != nil {
				return nil, nil, nil, err
			}
			next.Tasks[from.ID] = tasks
			return next, writes, nil, nil
		}

		to, ok := next.Column(dst.ContainerID)
		if !ok {
			return nil, nil, nil, fmt.Errorf("%w: unknown destination column %q", ErrInvalidGesture, dst.ContainerID)
		}
		srcTasks, dstTasks, writes, err := MoveTask(next.Tasks[from.ID], next.Tasks[to.ID], src.Index, dst.Index, to.ID)
		if err != nil {
			return nil, nil, nil, err
		}
		next.Tasks[from.ID] = srcTasks
		next.Tasks[to.ID] = dstTasks

		var moved database.Task
		for _, t := range dstTasks {
			if t.ID == writes[0].ID {
				moved = t
				break
			}
		}
		return next, writes, &MoveEvent{BoardID: c.boardID, Task: moved, From: from, To: to}, nil
	}

	return nil, nil, nil, fmt.Errorf("%w: unknown item type %q", ErrInvalidGesture, g.Type)
}

func (c *Controller) isBoard(containerID string) bool {
	return containerID == "" || containerID == c.boardID
}

// persist issues the writes in order and stops at the first failure,
// returning how many succeeded.
func (c *Controller) persist(ctx context.Context, writes []Write) (int, error) {
	for i, w := range writes {
		var err error
		switch {
		case w.Type == ItemColumn:
			err = c.store.UpdateColumnPosition(ctx, w.ID, w.Position)
		case w.Moved:
			err = c.store.MoveTask(ctx, w.ID, w.ColumnID, w.Position)
		default:
			err = c.store.UpdateTaskPosition(ctx, w.ID, w.Position)
		}
		if err != nil {
			return i, err
		}
	}
	return len(writes), nil
}

func (c *Controller) reload(ctx context.Context) error {
	data, err := c.store.LoadBoard(ctx, c.boardID)
	if err != nil {
		return fmt.Errorf("load board %s: %w", c.boardID, err)
	}
	c.state = NewState(data)
	return nil
}

func (c *Controller) emit(kind EventType, data *database.KanbanData) {
	if c.publish != nil {
		c.publish(c.boardID, kind, data)
	}
}

func (c *Controller) notify(ev MoveEvent) {
	if c.notifier == nil {
		return
	}
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := c.notifier.TaskMoved(ctx, ev); err != nil {
			log.Printf("Warning: failed to notify move of task %s: %v", ev.Task.ID, err)
		}
	}()
}

// Wait blocks until every notification started by this controller is done.
func (c *Controller) Wait() {
	c.pending.Wait()
}
