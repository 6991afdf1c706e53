// Package kanban keeps column and task ordering of a board dense while
// gestures are applied optimistically and persisted one row at a time.
package kanban

import (
	"errors"
	"fmt"

	"github.com/CrowderSoup/begtask/database"
)

// ItemType says what a gesture drags.
type ItemType string

const (
	ItemColumn ItemType = "column"
	ItemTask   ItemType = "task"
)

// ErrInvalidGesture reports a gesture that cannot be applied to the current
// state (unknown container, source index out of range, bad type).
var ErrInvalidGesture = errors.New("invalid gesture")

// Location is a slot inside a container: the board for columns, a column for
// tasks.
type Location struct {
	ContainerID string `json:"container_id"`
	Index       int    `json:"index"`
}

// Gesture is the result of a drag and drop. A nil Destination means the drag
// was cancelled.
type Gesture struct {
	Type        ItemType  `json:"type"`
	Source      Location  `json:"source"`
	Destination *Location `json:"destination,omitempty"`
}

// Noop reports whether the gesture needs no work at all.
func (g Gesture) Noop() bool {
	return g.Destination == nil || *g.Destination == g.Source
}

// Write is one persistence call. Moved writes change the owning column of a
// task as well as its position.
type Write struct {
	Type     ItemType
	ID       string
	ColumnID string
	Position int
	Moved    bool
}

// splice returns a copy of items with the element at from re-inserted at to.
// to is clamped to the valid range, so anything past the end appends.
func splice[T any](items []T, from, to int) ([]T, error) {
	if from < 0 || from >= len(items) {
		return nil, fmt.Errorf("%w: source index %d out of range [0,%d)", ErrInvalidGesture, from, len(items))
	}
	moved := items[from]
	rest := make([]T, 0, len(items))
	rest = append(rest, items[:from]...)
	rest = append(rest, items[from+1:]...)
	return insert(rest, moved, to), nil
}

func insert[T any](items []T, item T, at int) []T {
	if at < 0 {
		at = 0
	}
	if at > len(items) {
		at = len(items)
	}
	out := make([]T, 0, len(items)+1)
	out = append(out, items[:at]...)
	out = append(out, item)
	return append(out, items[at:]...)
}

// ReorderColumns moves the column at from to to and renumbers every column.
// The returned writes cover only the columns whose position changed.
func ReorderColumns(columns []database.Column, from, to int) ([]database.Column, []Write, error) {
	next, err := splice(columns, from, to)
	if err != nil {
		return nil, nil, err
	}
	var writes []Write
	for i := range next {
		if next[i].Position != i {
			next[i].Position = i
			writes = append(writes, Write{Type: ItemColumn, ID: next[i].ID, Position: i})
		}
	}
	return next, writes, nil
}

// ReorderTasks is ReorderColumns for the tasks of a single column.
func ReorderTasks(tasks []database.Task, from, to int) ([]database.Task, []Write, error) {
	next, err := splice(tasks, from, to)
	if err != nil {
		return nil, nil, err
	}
	return next, renumberTasks(next, ""), nil
}

// MoveTask takes the task at from out of src and inserts it into dst at to,
// owned by dstColumnID. Both lists are renumbered independently. The first
// write is always the moved task; the rest are siblings whose position
// changed.
func MoveTask(src, dst []database.Task, from, to int, dstColumnID string) (newSrc, newDst []database.Task, writes []Write, err error) {
	if from < 0 || from >= len(src) {
		return nil, nil, nil, fmt.Errorf("%w: source index %d out of range [0,%d)", ErrInvalidGesture, from, len(src))
	}

	moved := src[from]
	moved.ColumnID = dstColumnID

	newSrc = make([]database.Task, 0, len(src)-1)
	newSrc = append(newSrc, src[:from]...)
	newSrc = append(newSrc, src[from+1:]...)
	newDst = insert(append([]database.Task(nil), dst...), moved, to)

	for i := range newDst {
		if newDst[i].ID == moved.ID {
			newDst[i].Position = i
			writes = append(writes, Write{Type: ItemTask, ID: moved.ID, ColumnID: dstColumnID, Position: i, Moved: true})
			break
		}
	}
	writes = append(writes, renumberTasks(newSrc, "")...)
	writes = append(writes, renumberTasks(newDst, moved.ID)...)
	return newSrc, newDst, writes, nil
}

// renumberTasks assigns position = index in place, skipping the task with
// id skip, and returns writes for the tasks that changed.
func renumberTasks(tasks []database.Task, skip string) []Write {
	var writes []Write
	for i := range tasks {
		if tasks[i].ID == skip {
			continue
		}
		if tasks[i].Position != i {
			tasks[i].Position = i
			writes = append(writes, Write{Type: ItemTask, ID: tasks[i].ID, ColumnID: tasks[i].ColumnID, Position: i})
		}
	}
	return writes
}
