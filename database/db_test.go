package database

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestStore(t *testing.T) (*DataService, func()) {
	t.Helper()
	db, err := Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	return NewDataService(db, "sqlite"), func() {
		_ = db.Close()
	}
}

func seedBoard(t *testing.T, store *DataService) (*User, *Board) {
	t.Helper()
	ctx := context.Background()
	owner := &User{Email: "Dono@Example.com", Name: "Dono", Active: true}
	if err := store.CreateUser(ctx, owner); err != nil {
		t.Fatalf("create user: %v", err)
	}
	board := &Board{OwnerID: owner.ID, Title: "Sprint"}
	if err := store.CreateBoard(ctx, board); err != nil {
		t.Fatalf("create board: %v", err)
	}
	return owner, board
}

func positionsOf(columns []Column) []int {
	out := make([]int, len(columns))
	for i, c := range columns {
		out[i] = c.Position
	}
	return out
}

func taskPositions(tasks []Task) []int {
	out := make([]int, len(tasks))
	for i, task := range tasks {
		out[i] = task.Position
	}
	return out
}

func assertDense(t *testing.T, what string, positions []int) {
	t.Helper()
	for i, p := range positions {
		if p != i {
			t.Fatalf("%s positions not dense: %v", what, positions)
		}
	}
}

func TestCreateColumnsAppend(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()
	_, board := seedBoard(t, store)

	for _, title := range []string{"A fazer", "Fazendo", "Feito"} {
		if err := store.CreateColumn(ctx, &Column{BoardID: board.ID, Title: title}); err != nil {
			t.Fatalf("create column: %v", err)
		}
	}

	columns, err := store.ListColumns(ctx, board.ID)
	if err != nil {
		t.Fatalf("list columns: %v", err)
	}
	if len(columns) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(columns))
	}
	assertDense(t, "column", positionsOf(columns))
	if columns[2].Title != "Feito" {
		t.Fatalf("expected last column 'Feito', got %q", columns[2].Title)
	}
}

func TestTaskLifecycleKeepsPositionsDense(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()
	owner, board := seedBoard(t, store)

	column := &Column{BoardID: board.ID, Title: "A fazer"}
	if err := store.CreateColumn(ctx, column); err != nil {
		t.Fatalf("create column: %v", err)
	}

	due := time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i, title := range []string{"um", "dois", "tres", "quatro"} {
		task := &Task{ColumnID: column.ID, Title: title}
		if i == 1 {
			task.DueDate = &due
			task.ResponsibleID = &owner.ID
			task.Priority = PriorityHigh
		}
		if err := store.CreateTask(ctx, task); err != nil {
			t.Fatalf("create task: %v", err)
		}
		if task.Position != i {
			t.Fatalf("task %q created at position %d, want %d", title, task.Position, i)
		}
		ids = append(ids, task.ID)
	}

	got, err := store.GetTask(ctx, ids[1])
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Fatalf("expected due date %v, got %v", due, got.DueDate)
	}
	if got.ResponsibleID == nil || *got.ResponsibleID != owner.ID {
		t.Fatalf("expected responsible %s, got %v", owner.ID, got.ResponsibleID)
	}
	if got.Priority != PriorityHigh {
		t.Fatalf("expected priority alta, got %q", got.Priority)
	}

	if err := store.CreateComment(ctx, &Comment{TaskID: ids[1], UserID: owner.ID, Body: "ok"}); err != nil {
		t.Fatalf("create comment: %v", err)
	}
	if err := store.AddParticipant(ctx, ids[1], owner.ID); err != nil {
		t.Fatalf("add participant: %v", err)
	}

	if err := store.DeleteTask(ctx, ids[1]); err != nil {
		t.Fatalf("delete task: %v", err)
	}

	tasks, err := store.ListColumnTasks(ctx, column.ID)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}
	assertDense(t, "task", taskPositions(tasks))
	if tasks[1].Title != "tres" {
		t.Fatalf("expected 'tres' to move up, got %q", tasks[1].Title)
	}

	if _, err := store.GetTask(ctx, ids[1]); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for deleted task, got %v", err)
	}
}

func TestMoveTaskChangesColumn(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()
	_, board := seedBoard(t, store)

	todo := &Column{BoardID: board.ID, Title: "A fazer"}
	done := &Column{BoardID: board.ID, Title: "Feito"}
	for _, c := range []*Column{todo, done} {
		if err := store.CreateColumn(ctx, c); err != nil {
			t.Fatalf("create column: %v", err)
		}
	}
	task := &Task{ColumnID: todo.ID, Title: "mover"}
	if err := store.CreateTask(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}

	if err := store.MoveTask(ctx, task.ID, done.ID, 0); err != nil {
		t.Fatalf("move task: %v", err)
	}
	boardID, err := store.BoardIDForTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("board for task: %v", err)
	}
	if boardID != board.ID {
		t.Fatalf("expected board %s, got %s", board.ID, boardID)
	}

	data, err := store.LoadBoard(ctx, board.ID)
	if err != nil {
		t.Fatalf("load board: %v", err)
	}
	if len(data.Tasks) != 1 || data.Tasks[0].ColumnID != done.ID {
		t.Fatalf("expected task in column %s, got %+v", done.ID, data.Tasks)
	}

	if err := store.UpdateTaskPosition(ctx, "missing", 3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing task, got %v", err)
	}
}

func TestDeleteColumnCascades(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()
	owner, board := seedBoard(t, store)

	var columns []*Column
	for _, title := range []string{"A", "B", "C"} {
		c := &Column{BoardID: board.ID, Title: title}
		if err := store.CreateColumn(ctx, c); err != nil {
			t.Fatalf("create column: %v", err)
		}
		columns = append(columns, c)
	}
	task := &Task{ColumnID: columns[0].ID, Title: "x"}
	if err := store.CreateTask(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := store.AddParticipant(ctx, task.ID, owner.ID); err != nil {
		t.Fatalf("add participant: %v", err)
	}
	if err := store.UpsertEmbedding(ctx, Embedding{TaskID: task.ID, BoardID: board.ID, Content: "x", Vector: []float32{1, 0}}); err != nil {
		t.Fatalf("upsert embedding: %v", err)
	}

	if err := store.DeleteColumn(ctx, columns[0].ID); err != nil {
		t.Fatalf("delete column: %v", err)
	}

	remaining, err := store.ListColumns(ctx, board.ID)
	if err != nil {
		t.Fatalf("list columns: %v", err)
	}
	if len(remaining) != 2 || remaining[0].Title != "B" {
		t.Fatalf("unexpected columns after delete: %+v", remaining)
	}
	assertDense(t, "column", positionsOf(remaining))

	embeddings, err := store.ListEmbeddings(ctx, board.ID)
	if err != nil {
		t.Fatalf("list embeddings: %v", err)
	}
	if len(embeddings) != 0 {
		t.Fatalf("expected embeddings to be deleted, got %d", len(embeddings))
	}

	if err := store.DeleteBoard(ctx, board.ID); err != nil {
		t.Fatalf("delete board: %v", err)
	}
	if _, err := store.GetBoard(ctx, board.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for deleted board, got %v", err)
	}
}

func TestListBoardsIncludesParticipants(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()
	_, board := seedBoard(t, store)

	guest := &User{Email: "convidado@example.com", Active: true}
	if err := store.CreateUser(ctx, guest); err != nil {
		t.Fatalf("create guest: %v", err)
	}

	member, err := store.IsBoardMember(ctx, board.ID, guest.ID)
	if err != nil {
		t.Fatalf("is member: %v", err)
	}
	if member {
		t.Fatal("guest should not be a member yet")
	}

	column := &Column{BoardID: board.ID, Title: "A"}
	if err := store.CreateColumn(ctx, column); err != nil {
		t.Fatalf("create column: %v", err)
	}
	task := &Task{ColumnID: column.ID, Title: "t"}
	if err := store.CreateTask(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := store.AddParticipant(ctx, task.ID, guest.ID); err != nil {
		t.Fatalf("add participant: %v", err)
	}
	if err := store.AddParticipant(ctx, task.ID, guest.ID); err != nil {
		t.Fatalf("add participant twice: %v", err)
	}

	boards, err := store.ListBoards(ctx, guest.ID)
	if err != nil {
		t.Fatalf("list boards: %v", err)
	}
	if len(boards) != 1 || boards[0].ID != board.ID {
		t.Fatalf("expected guest to see board %s, got %+v", board.ID, boards)
	}

	participants, err := store.ListParticipants(ctx, task.ID)
	if err != nil {
		t.Fatalf("list participants: %v", err)
	}
	if len(participants) != 1 || participants[0].Email != "convidado@example.com" {
		t.Fatalf("unexpected participants: %+v", participants)
	}
}

func TestUserLookupIsCaseInsensitive(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()
	owner, _ := seedBoard(t, store)

	got, err := store.GetUserByEmail(ctx, "DONO@example.com")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.ID != owner.ID || got.Role != RoleUser {
		t.Fatalf("unexpected user: %+v", got)
	}

	if err := store.SetUserStatus(ctx, owner.ID, false, RoleAdmin); err != nil {
		t.Fatalf("set status: %v", err)
	}
	got, err = store.GetUser(ctx, owner.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.Active || got.Role != RoleAdmin {
		t.Fatalf("status not saved: %+v", got)
	}
}

func TestPostgresPlaceholders(t *testing.T) {
	s := &DataService{postgres: true}
	got := s.q("UPDATE tasks SET column_id = ?, position = ? WHERE id = ?")
	want := "UPDATE tasks SET column_id = $1, position = $2 WHERE id = $3"
	if got != want {
		t.Fatalf("q() = %q, want %q", got, want)
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in      string
		want    Priority
		wantErr bool
	}{
		{"", PriorityMedium, false},
		{"low", PriorityLow, false},
		{"ALTA", PriorityHigh, false},
		{"média", PriorityMedium, false},
		{"urgent", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePriority(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParsePriority(%q) err = %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParsePriority(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
