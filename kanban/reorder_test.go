package kanban

import (
	"errors"
	"testing"

	"github.com/CrowderSoup/begtask/database"
)

func makeColumns(ids ...string) []database.Column {
	cols := make([]database.Column, len(ids))
	for i, id := range ids {
		cols[i] = database.Column{ID: id, Title: id, Position: i}
	}
	return cols
}

func makeTasks(columnID string, ids ...string) []database.Task {
	tasks := make([]database.Task, len(ids))
	for i, id := range ids {
		tasks[i] = database.Task{ID: id, ColumnID: columnID, Title: id, Position: i}
	}
	return tasks
}

func columnIDs(cols []database.Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.ID
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestReorderColumns(t *testing.T) {
	tests := []struct {
		name     string
		from, to int
		want     []string
		writes   int
	}{
		{"first to last", 0, 2, []string{"b", "c", "a"}, 3},
		{"last to first", 2, 0, []string{"c", "a", "b"}, 3},
		{"adjacent swap", 0, 1, []string{"b", "a", "c"}, 2},
		{"past the end appends", 0, 10, []string{"b", "c", "a"}, 3},
		{"negative clamps to start", 1, -3, []string{"b", "a", "c"}, 2},
		{"same slot", 1, 1, []string{"a", "b", "c"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := makeColumns("a", "b", "c")
			got, writes, err := ReorderColumns(input, tt.from, tt.to)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ids := columnIDs(got); !equalStrings(ids, tt.want) {
				t.Fatalf("order = %v, want %v", ids, tt.want)
			}
			if len(writes) != tt.writes {
				t.Fatalf("writes = %d, want %d", len(writes), tt.writes)
			}
			for i, c := range got {
				if c.Position != i {
					t.Fatalf("column %s position = %d, want %d", c.ID, c.Position, i)
				}
			}
			for i, c := range input {
				if c.Position != i {
					t.Fatalf("input was modified: %+v", input)
				}
			}
		})
	}
}

func TestReorderRejectsBadSource(t *testing.T) {
	if _, _, err := ReorderColumns(makeColumns("a"), 1, 0); !errors.Is(err, ErrInvalidGesture) {
		t.Fatalf("expected ErrInvalidGesture, got %v", err)
	}
	if _, _, err := ReorderTasks(nil, 0, 0); !errors.Is(err, ErrInvalidGesture) {
		t.Fatalf("expected ErrInvalidGesture for empty column, got %v", err)
	}
	if _, _, _, err := MoveTask(makeTasks("x", "t1"), nil, -1, 0, "y"); !errors.Is(err, ErrInvalidGesture) {
		t.Fatalf("expected ErrInvalidGesture for negative index, got %v", err)
	}
}

func TestMoveTaskWritesMovedTaskFirst(t *testing.T) {
	src := makeTasks("a", "t1", "t2", "t3")
	dst := makeTasks("b", "t4", "t5")

	newSrc, newDst, writes, err := MoveTask(src, dst, 1, 0, "b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(newSrc) != 2 || len(newDst) != 3 {
		t.Fatalf("unexpected sizes: src=%d dst=%d", len(newSrc), len(newDst))
	}
	if newDst[0].ID != "t2" || newDst[0].ColumnID != "b" {
		t.Fatalf("moved task not at head of destination: %+v", newDst[0])
	}

	first := writes[0]
	if !first.Moved || first.ID != "t2" || first.ColumnID != "b" || first.Position != 0 {
		t.Fatalf("first write should move t2, got %+v", first)
	}
	// t3 shifts up in the source, t4 and t5 shift down in the destination.
	if len(writes) != 4 {
		t.Fatalf("writes = %d, want 4: %+v", len(writes), writes)
	}
	for _, w := range writes[1:] {
		if w.Moved {
			t.Fatalf("only the first write may move a task: %+v", w)
		}
	}
	for i, task := range newSrc {
		if task.Position != i {
			t.Fatalf("source not renumbered: %+v", newSrc)
		}
	}
	for i, task := range newDst {
		if task.Position != i {
			t.Fatalf("destination not renumbered: %+v", newDst)
		}
	}
}

func TestMoveLastTaskToEnd(t *testing.T) {
	src := makeTasks("a", "t1", "t2")
	dst := makeTasks("b", "t3")

	_, newDst, writes, err := MoveTask(src, dst, 1, 99, "b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if newDst[1].ID != "t2" || newDst[1].Position != 1 {
		t.Fatalf("expected t2 appended, got %+v", newDst)
	}
	// Removing the tail of the source shifts nobody.
	if len(writes) != 1 {
		t.Fatalf("writes = %d, want 1: %+v", len(writes), writes)
	}
}

func TestGestureNoop(t *testing.T) {
	loc := Location{ContainerID: "c", Index: 2}
	if !(Gesture{Type: ItemTask, Source: loc}).Noop() {
		t.Fatal("cancelled gesture should be a no-op")
	}
	same := loc
	if !(Gesture{Type: ItemTask, Source: loc, Destination: &same}).Noop() {
		t.Fatal("drop at origin should be a no-op")
	}
	other := Location{ContainerID: "d", Index: 2}
	if (Gesture{Type: ItemTask, Source: loc, Destination: &other}).Noop() {
		t.Fatal("drop in another column is not a no-op")
	}
}
