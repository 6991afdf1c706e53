package kanban

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/CrowderSoup/begtask/database"
)

const boardID = "board-1"

func columnGesture(from, to int) Gesture {
	return Gesture{
		Type:        ItemColumn,
		Source:      Location{ContainerID: boardID, Index: from},
		Destination: &Location{ContainerID: boardID, Index: to},
	}
}

func taskGesture(srcCol string, from int, dstCol string, to int) Gesture {
	return Gesture{
		Type:        ItemTask,
		Source:      Location{ContainerID: srcCol, Index: from},
		Destination: &Location{ContainerID: dstCol, Index: to},
	}
}

func columnTitles(data *database.KanbanData) string {
	titles := make([]string, len(data.Columns))
	for i, c := range data.Columns {
		titles[i] = c.Title
	}
	return strings.Join(titles, ",")
}

func tasksOf(data *database.KanbanData, columnID string) []database.Task {
	var out []database.Task
	for _, t := range data.Tasks {
		if t.ColumnID == columnID {
			out = append(out, t)
		}
	}
	return out
}

func taskTitles(tasks []database.Task) string {
	titles := make([]string, len(tasks))
	for i, t := range tasks {
		titles[i] = t.Title
	}
	return strings.Join(titles, ",")
}

func assertDenseColumns(t *testing.T, columns []database.Column) {
	t.Helper()
	seen := make(map[int]bool)
	for _, c := range columns {
		if c.Position < 0 || c.Position >= len(columns) || seen[c.Position] {
			t.Fatalf("column positions not dense: %+v", columns)
		}
		seen[c.Position] = true
	}
}

func assertDenseTasks(t *testing.T, tasks []database.Task) {
	t.Helper()
	seen := make(map[int]bool)
	for _, task := range tasks {
		if task.Position < 0 || task.Position >= len(tasks) || seen[task.Position] {
			t.Fatalf("task positions not dense: %+v", tasks)
		}
		seen[task.Position] = true
	}
}

// assertInSync checks that the controller view matches a fresh read of the
// store.
func assertInSync(t *testing.T, c *Controller, store *fakeStore) {
	t.Helper()
	local, err := c.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	remote, err := store.LoadBoard(context.Background(), boardID)
	if err != nil {
		t.Fatalf("load board: %v", err)
	}
	if want := NewState(remote).Data(); !reflect.DeepEqual(local, want) {
		t.Fatalf("local state differs from store:\nlocal:  %+v\nremote: %+v", local, want)
	}
}

func threeColumnStore() *fakeStore {
	store := newFakeStore(boardID)
	store.addColumn("col-a", "A")
	store.addColumn("col-b", "B")
	store.addColumn("col-c", "C")
	return store
}

func TestColumnReorderSequenceKeepsPositionsDense(t *testing.T) {
	store := newFakeStore(boardID)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		store.addColumn(id, strings.ToUpper(id))
	}
	c := NewController(boardID, store, nil, nil)

	moves := [][2]int{{0, 4}, {3, 1}, {2, 2}, {4, 0}, {1, 3}, {0, 9}, {4, -1}}
	for _, m := range moves {
		res, err := c.Apply(context.Background(), columnGesture(m[0], m[1]))
		if err != nil {
			t.Fatalf("apply %v: %v", m, err)
		}
		assertDenseColumns(t, res.Data.Columns)
		assertInSync(t, c, store)
	}
}

func TestTaskReorderWithinColumnKeepsPositionsDense(t *testing.T) {
	store := threeColumnStore()
	for _, id := range []string{"t1", "t2", "t3", "t4"} {
		store.addTask("col-a", id, id, nil)
	}
	c := NewController(boardID, store, nil, nil)

	moves := [][2]int{{0, 3}, {2, 0}, {1, 2}, {3, 3}, {0, 10}}
	for _, m := range moves {
		res, err := c.Apply(context.Background(), taskGesture("col-a", m[0], "col-a", m[1]))
		if err != nil {
			t.Fatalf("apply %v: %v", m, err)
		}
		tasks := tasksOf(res.Data, "col-a")
		if len(tasks) != 4 {
			t.Fatalf("expected 4 tasks, got %d", len(tasks))
		}
		assertDenseTasks(t, tasks)
		assertInSync(t, c, store)
	}
}

func TestTaskMoveAcrossColumns(t *testing.T) {
	store := threeColumnStore()
	store.addTask("col-a", "t1", "um", nil)
	store.addTask("col-a", "t2", "dois", nil)
	store.addTask("col-a", "t3", "tres", nil)
	store.addTask("col-b", "t4", "quatro", nil)
	c := NewController(boardID, store, nil, nil)

	res, err := c.Apply(context.Background(), taskGesture("col-a", 0, "col-b", 1))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	src := tasksOf(res.Data, "col-a")
	dst := tasksOf(res.Data, "col-b")
	if got := taskTitles(src); got != "dois,tres" {
		t.Fatalf("source column = %s, want dois,tres", got)
	}
	if got := taskTitles(dst); got != "quatro,um" {
		t.Fatalf("destination column = %s, want quatro,um", got)
	}
	if dst[1].ColumnID != "col-b" {
		t.Fatalf("moved task column = %s, want col-b", dst[1].ColumnID)
	}
	assertDenseTasks(t, src)
	assertDenseTasks(t, dst)
	assertInSync(t, c, store)

	// moved task + two renumbered source tasks
	if res.Writes != 3 {
		t.Fatalf("expected 3 writes, got %d", res.Writes)
	}
}

func TestTaskMoveIntoEmptyColumn(t *testing.T) {
	store := threeColumnStore()
	store.addTask("col-a", "t1", "um", nil)
	c := NewController(boardID, store, nil, nil)

	res, err := c.Apply(context.Background(), taskGesture("col-a", 0, "col-c", 0))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := tasksOf(res.Data, "col-c"); len(got) != 1 || got[0].Position != 0 {
		t.Fatalf("expected task at position 0 of empty column, got %+v", got)
	}
	if got := tasksOf(res.Data, "col-a"); len(got) != 0 {
		t.Fatalf("expected source column to be empty, got %+v", got)
	}
	assertInSync(t, c, store)
}

func TestDropAtDestinationLengthAppends(t *testing.T) {
	store := threeColumnStore()
	store.addTask("col-a", "t1", "um", nil)
	store.addTask("col-b", "t2", "dois", nil)
	store.addTask("col-b", "t3", "tres", nil)
	c := NewController(boardID, store, nil, nil)

	res, err := c.Apply(context.Background(), taskGesture("col-a", 0, "col-b", 2))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	dst := tasksOf(res.Data, "col-b")
	if got := taskTitles(dst); got != "dois,tres,um" {
		t.Fatalf("destination column = %s, want dois,tres,um", got)
	}
	if dst[2].Position != 2 {
		t.Fatalf("appended task position = %d, want 2", dst[2].Position)
	}
}

func TestSameSlotIsNoop(t *testing.T) {
	store := threeColumnStore()
	store.addTask("col-a", "t1", "um", nil)
	c := NewController(boardID, store, nil, nil)

	for _, g := range []Gesture{
		columnGesture(1, 1),
		taskGesture("col-a", 0, "col-a", 0),
		{Type: ItemTask, Source: Location{ContainerID: "col-a", Index: 0}},
	} {
		res, err := c.Apply(context.Background(), g)
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
		if !res.Noop {
			t.Fatalf("expected no-op for %+v", g)
		}
	}
	if n := store.writeCount(); n != 0 {
		t.Fatalf("expected no writes, got %d", n)
	}
}

func TestClampedToCurrentSlotIsNoop(t *testing.T) {
	store := threeColumnStore()
	c := NewController(boardID, store, nil, nil)

	res, err := c.Apply(context.Background(), columnGesture(2, 7))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !res.Noop || store.writeCount() != 0 {
		t.Fatalf("expected no writes when last column is dropped past the end, got %d", store.writeCount())
	}
}

func TestColumnRoundTrip(t *testing.T) {
	store := threeColumnStore()
	c := NewController(boardID, store, nil, nil)

	res, err := c.Apply(context.Background(), columnGesture(0, 2))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := columnTitles(res.Data); got != "B,C,A" {
		t.Fatalf("after first move = %s, want B,C,A", got)
	}

	res, err = c.Apply(context.Background(), columnGesture(2, 0))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := columnTitles(res.Data); got != "A,B,C" {
		t.Fatalf("after second move = %s, want A,B,C", got)
	}
	assertInSync(t, c, store)
}

func TestFailedWriteReloadsFromStore(t *testing.T) {
	store := threeColumnStore()
	store.failAt = 2

	var (
		mu     sync.Mutex
		events []EventType
	)
	publish := func(id string, kind EventType, data *database.KanbanData) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, kind)
	}
	c := NewController(boardID, store, nil, publish)

	_, err := c.Apply(context.Background(), columnGesture(0, 2))
	var perr *PersistError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistError, got %v", err)
	}
	if !errors.Is(err, errWriteFailed) {
		t.Fatalf("expected wrapped write error, got %v", err)
	}
	if perr.Applied != 1 || perr.Total != 3 {
		t.Fatalf("expected 1 of 3 writes applied, got %d of %d", perr.Applied, perr.Total)
	}

	// The first write (B -> 0) landed, the second (C -> 1) did not.
	fresh, err := store.LoadBoard(context.Background(), boardID)
	if err != nil {
		t.Fatalf("load board: %v", err)
	}
	want := NewState(fresh).Data()
	if !reflect.DeepEqual(perr.Snapshot, want) {
		t.Fatalf("snapshot differs from fresh fetch:\ngot:  %+v\nwant: %+v", perr.Snapshot, want)
	}
	if got := columnTitles(perr.Snapshot); got == "B,C,A" {
		t.Fatalf("optimistic state survived the failure")
	}
	assertInSync(t, c, store)

	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(events, []EventType{EventOptimistic, EventReloaded}) {
		t.Fatalf("unexpected events: %v", events)
	}
}

func TestFailedMoveDoesNotNotify(t *testing.T) {
	store := threeColumnStore()
	owner := "user-1"
	store.addTask("col-a", "t1", "um", &owner)
	store.failAt = 1
	notifier := &fakeNotifier{}
	c := NewController(boardID, store, notifier, nil)

	if _, err := c.Apply(context.Background(), taskGesture("col-a", 0, "col-b", 0)); err == nil {
		t.Fatal("expected error")
	}
	c.Wait()
	if n := len(notifier.calls()); n != 0 {
		t.Fatalf("expected no notification, got %d", n)
	}
	assertInSync(t, c, store)
}

func TestMoveWithoutResponsibleDoesNotNotify(t *testing.T) {
	store := threeColumnStore()
	store.addTask("col-a", "t1", "um", nil)
	notifier := &fakeNotifier{}
	c := NewController(boardID, store, notifier, nil)

	if _, err := c.Apply(context.Background(), taskGesture("col-a", 0, "col-b", 0)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	c.Wait()
	if n := len(notifier.calls()); n != 0 {
		t.Fatalf("expected no notification, got %d", n)
	}
}

func TestMoveWithResponsibleNotifiesOnce(t *testing.T) {
	store := threeColumnStore()
	owner := "user-1"
	store.addTask("col-a", "t1", "Escrever relatório", &owner)
	notifier := &fakeNotifier{err: errors.New("whatsapp down")}
	c := NewController(boardID, store, notifier, nil)

	res, err := c.Apply(context.Background(), taskGesture("col-a", 0, "col-c", 0))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	c.Wait()

	calls := notifier.calls()
	if len(calls) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(calls))
	}
	ev := calls[0]
	if ev.From.Title != "A" || ev.To.Title != "C" || ev.Task.Title != "Escrever relatório" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Task.ColumnID != "col-c" {
		t.Fatalf("event task column = %s, want col-c", ev.Task.ColumnID)
	}
	if got := tasksOf(res.Data, "col-c"); len(got) != 1 {
		t.Fatalf("notifier error must not undo the move, got %+v", got)
	}

	// Reordering inside a column never notifies.
	store.addTask("col-c", "t2", "outra", &owner)
	if _, err := c.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if _, err := c.Apply(context.Background(), taskGesture("col-c", 0, "col-c", 1)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	c.Wait()
	if n := len(notifier.calls()); n != 1 {
		t.Fatalf("expected still one notification, got %d", n)
	}
}

func TestInvalidGestures(t *testing.T) {
	store := threeColumnStore()
	store.addTask("col-a", "t1", "um", nil)
	c := NewController(boardID, store, nil, nil)

	for name, g := range map[string]Gesture{
		"source out of range":  columnGesture(5, 0),
		"negative source":      taskGesture("col-a", -1, "col-b", 0),
		"unknown source":       taskGesture("nope", 0, "col-b", 0),
		"unknown destination":  taskGesture("col-a", 0, "nope", 0),
		"column outside board": {Type: ItemColumn, Source: Location{ContainerID: "other", Index: 0}, Destination: &Location{ContainerID: "other", Index: 1}},
		"unknown type":         {Type: "card", Source: Location{Index: 0}, Destination: &Location{Index: 1}},
	} {
		if _, err := c.Apply(context.Background(), g); !errors.Is(err, ErrInvalidGesture) {
			t.Errorf("%s: expected ErrInvalidGesture, got %v", name, err)
		}
	}
	if n := store.writeCount(); n != 0 {
		t.Fatalf("expected no writes, got %d", n)
	}
}

func TestWritesSurviveRequestCancellation(t *testing.T) {
	store := threeColumnStore()
	c := NewController(boardID, store, nil, nil)
	if _, err := c.Snapshot(context.Background()); err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Apply(ctx, columnGesture(0, 1)); err != nil {
		t.Fatalf("apply with cancelled context: %v", err)
	}
	assertInSync(t, c, store)
}

func TestRegistrySharesControllers(t *testing.T) {
	store := threeColumnStore()
	owner := "user-1"
	store.addTask("col-a", "t1", "um", &owner)
	notifier := &fakeNotifier{}
	r := NewRegistry(store, notifier, nil)

	if r.Controller(boardID) != r.Controller(boardID) {
		t.Fatal("expected the same controller for the same board")
	}
	if _, err := r.Apply(context.Background(), boardID, taskGesture("col-a", 0, "col-b", 0)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	r.Wait()
	if n := len(notifier.calls()); n != 1 {
		t.Fatalf("expected one notification, got %d", n)
	}

	store.addColumn("col-d", "D")
	data, err := r.Refresh(context.Background(), boardID)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := columnTitles(data); got != "A,B,C,D" {
		t.Fatalf("columns after refresh = %s", got)
	}

	r.Forget(boardID)
	if loads := store.loads; loads == 0 {
		t.Fatal("expected the board to have been loaded")
	}
}
