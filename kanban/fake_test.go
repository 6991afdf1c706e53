package kanban

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/CrowderSoup/begtask/database"
)

var errWriteFailed = errors.New("write failed")

// fakeStore is the remote side of the protocol. Writes are applied as they
// arrive; failAt makes the n-th write (1-based) fail.
type fakeStore struct {
	mu      sync.Mutex
	board   database.Board
	columns map[string]database.Column
	tasks   map[string]database.Task
	writes  int
	failAt  int
	loads   int
}

func newFakeStore(boardID string) *fakeStore {
	return &fakeStore{
		board:   database.Board{ID: boardID, Title: "Board"},
		columns: make(map[string]database.Column),
		tasks:   make(map[string]database.Task),
	}
}

func (f *fakeStore) addColumn(id, title string) {
	f.columns[id] = database.Column{ID: id, BoardID: f.board.ID, Title: title, Position: len(f.columns)}
}

func (f *fakeStore) addTask(columnID, id, title string, responsible *string) {
	n := 0
	for _, t := range f.tasks {
		if t.ColumnID == columnID {
			n++
		}
	}
	f.tasks[id] = database.Task{ID: id, ColumnID: columnID, Title: title, Position: n,
		Priority: database.PriorityMedium, ResponsibleID: responsible}
}

func (f *fakeStore) LoadBoard(ctx context.Context, boardID string) (*database.KanbanData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++

	data := &database.KanbanData{Board: f.board}
	for _, c := range f.columns {
		data.Columns = append(data.Columns, c)
	}
	sort.Slice(data.Columns, func(i, j int) bool {
		if data.Columns[i].Position != data.Columns[j].Position {
			return data.Columns[i].Position < data.Columns[j].Position
		}
		return data.Columns[i].ID < data.Columns[j].ID
	})
	for _, t := range f.tasks {
		data.Tasks = append(data.Tasks, t)
	}
	sort.Slice(data.Tasks, func(i, j int) bool {
		a, b := data.Tasks[i], data.Tasks[j]
		if a.ColumnID != b.ColumnID {
			return a.ColumnID < b.ColumnID
		}
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		return a.ID < b.ID
	})
	return data, nil
}

func (f *fakeStore) write(ctx context.Context, apply func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	f.writes++
	if f.failAt > 0 && f.writes == f.failAt {
		return errWriteFailed
	}
	apply()
	return nil
}

func (f *fakeStore) UpdateColumnPosition(ctx context.Context, id string, position int) error {
	return f.write(ctx, func() {
		c := f.columns[id]
		c.Position = position
		f.columns[id] = c
	})
}

func (f *fakeStore) UpdateTaskPosition(ctx context.Context, id string, position int) error {
	return f.write(ctx, func() {
		t := f.tasks[id]
		t.Position = position
		f.tasks[id] = t
	})
}

func (f *fakeStore) MoveTask(ctx context.Context, id, columnID string, position int) error {
	return f.write(ctx, func() {
		t := f.tasks[id]
		t.ColumnID = columnID
		t.Position = position
		f.tasks[id] = t
	})
}

func (f *fakeStore) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []MoveEvent
	err    error
}

func (n *fakeNotifier) TaskMoved(ctx context.Context, ev MoveEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *fakeNotifier) calls() []MoveEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]MoveEvent(nil), n.events...)
}
